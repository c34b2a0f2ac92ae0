package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/telebill/call-billing/internal/model"
)

// ErrDuplicateRun is returned by CreateRun when a marker for the same
// period_start already exists.
var ErrDuplicateRun = errors.New("billing run already recorded for period")

// CustomerUsage is one row of the aggregation read: a customer, their rate
// plan's monthly fee, and the sum of their finished-call charges in the
// period. Customers with no qualifying calls appear with CallSum = 0.
type CustomerUsage struct {
	CustomerID int64   `db:"customer_id"`
	MonthlyFee float64 `db:"monthly_fee"`
	CallSum    float64 `db:"call_sum"`
}

// BillingRepository is the aggregator's store.
type BillingRepository interface {
	// CustomerUsage reads every customer exactly once (left-join semantics)
	// with their monthly fee and the charge sum of FINISHED calls they
	// originated whose finished_at lies in [start, end).
	CustomerUsage(ctx context.Context, start, end time.Time) ([]CustomerUsage, error)

	// CreateRun inserts the run marker (unless run is nil), the payment rows
	// and their outbox events in a single transaction. payloads is aligned
	// with payments. Returns ErrDuplicateRun when the period was already
	// billed; in every failure case nothing is written.
	CreateRun(ctx context.Context, run *model.BillingRun, payments []model.Payment, topic string, payloads [][]byte) error
}

type BillingRepositoryImpl struct {
	db *sqlx.DB
}

func NewBillingRepository(db *sqlx.DB) *BillingRepositoryImpl {
	return &BillingRepositoryImpl{db: db}
}

var _ BillingRepository = (*BillingRepositoryImpl)(nil)

func (r *BillingRepositoryImpl) CustomerUsage(ctx context.Context, start, end time.Time) ([]CustomerUsage, error) {
	var rows []CustomerUsage
	err := r.db.SelectContext(ctx, &rows, `
		SELECT cu.id AS customer_id,
		       ra.cost AS monthly_fee,
		       COALESCE(SUM(c.charge), 0) AS call_sum
		  FROM customers cu
		  JOIN categories ca ON ca.id = cu.category_id
		  JOIN rates ra      ON ra.id = ca.rate_id
		  LEFT JOIN calls c  ON c.from_customer_id = cu.id
		                    AND c.status = 'FINISHED'
		                    AND c.finished_at >= ?
		                    AND c.finished_at < ?
		 GROUP BY cu.id, ra.cost
		 ORDER BY cu.id
	`, start, end)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *BillingRepositoryImpl) CreateRun(ctx context.Context, run *model.BillingRun, payments []model.Payment, topic string, payloads [][]byte) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if run != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO billing_runs (run_id, period_start, period_end, customers, total_amount, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, run.RunID, run.PeriodStart, run.PeriodEnd, run.Customers, run.TotalAmount, run.CreatedAt)
		if err != nil {
			if isDuplicateKey(err) {
				return ErrDuplicateRun
			}
			return err
		}
	}

	if len(payments) > 0 {
		var sb strings.Builder
		args := make([]any, 0, len(payments)*4)
		sb.WriteString(`INSERT INTO payments (customer_id, amount, status, created_at) VALUES `)
		for i, p := range payments {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString("(?, ?, ?, ?)")
			args = append(args, p.CustomerID, p.Amount, p.Status.String(), p.CreatedAt)
		}
		if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
			return err
		}
	}

	runID := ""
	if run != nil {
		runID = run.RunID
	}
	for _, p := range payloads {
		if err := insertOutbox(ctx, tx, "payment", runID, topic, p); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// isDuplicateKey reports MySQL error 1062 (duplicate entry).
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
