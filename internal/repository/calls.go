package repository

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/jmoiron/sqlx"

	"github.com/telebill/call-billing/internal/model"
)

// CallsRepository defines persistence for the calls table.
type CallsRepository interface {
	Get(ctx context.Context, id int64) (*model.Call, error)
	Insert(ctx context.Context, c *model.Call) (int64, error)

	// CountActive returns how many IN_PROGRESS calls involve either customer,
	// as caller or callee.
	CountActive(ctx context.Context, customerA, customerB int64) (int, error)

	// Complete flips the call to FINISHED and writes finished_at, duration and
	// charge in the same statement, guarded by status = 'IN_PROGRESS'. The
	// outbox event commits in the same transaction. Returns false when the
	// guard matched no row (call absent or already finished) — in that case
	// nothing is written.
	Complete(ctx context.Context, cp model.CallCompletion, topic string, payload []byte) (bool, error)
}

type CallsRepositoryImpl struct {
	db *sqlx.DB
}

func NewCallsRepository(db *sqlx.DB) *CallsRepositoryImpl {
	return &CallsRepositoryImpl{db: db}
}

var _ CallsRepository = (*CallsRepositoryImpl)(nil)

func (r *CallsRepositoryImpl) Get(ctx context.Context, id int64) (*model.Call, error) {
	var c model.Call
	err := r.db.GetContext(ctx, &c, `
		SELECT id, from_customer_id, to_customer_id, started_at, finished_at, duration, charge, status
		  FROM calls
		 WHERE id = ? LIMIT 1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CallsRepositoryImpl) Insert(ctx context.Context, c *model.Call) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO calls
		    (from_customer_id, to_customer_id, started_at, duration, charge, status)
		VALUES
		    (?, ?, ?, 0, 0, 'IN_PROGRESS')
	`, c.FromCustomerID, c.ToCustomerID, c.StartedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *CallsRepositoryImpl) CountActive(ctx context.Context, customerA, customerB int64) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `
		SELECT COUNT(*)
		  FROM calls
		 WHERE status = 'IN_PROGRESS'
		   AND (from_customer_id IN (?, ?) OR to_customer_id IN (?, ?))
	`, customerA, customerB, customerA, customerB)
	return n, err
}

func (r *CallsRepositoryImpl) Complete(ctx context.Context, cp model.CallCompletion, topic string, payload []byte) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	// Conditional update is the exactly-once guard: of two concurrent
	// finishers, only one matches the IN_PROGRESS row.
	res, err := tx.ExecContext(ctx, `
		UPDATE calls
		   SET status = 'FINISHED', finished_at = ?, duration = ?, charge = ?
		 WHERE id = ? AND status = 'IN_PROGRESS'
	`, cp.FinishedAt, cp.Duration, cp.Charge, cp.CallID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	if err := insertOutbox(ctx, tx, "call", strconv.FormatInt(cp.CallID, 10), topic, payload); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}
