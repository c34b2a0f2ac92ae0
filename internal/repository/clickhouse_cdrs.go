package repository

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/telebill/call-billing/internal/model"
)

// CDRRepository archives priced call records in ClickHouse.
type CDRRepository interface {
	InsertBatch(ctx context.Context, rows []model.CDREnvelope) error
}

type cdrRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewCDRRepository(ch *sqlx.DB) CDRRepository {
	return &cdrRepository{ch: ch}
}

func (r *cdrRepository) InsertBatch(ctx context.Context, rows []model.CDREnvelope) error {
	if len(rows) == 0 {
		return nil
	}

	var sb strings.Builder
	args := make([]any, 0, len(rows)*7)

	sb.WriteString(`
		INSERT INTO callbill.cdrs
		    (call_id, from_customer_id, to_customer_id, started_at, finished_at, duration, charge)
		VALUES `)
	for i, cdr := range rows {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			cdr.CallID, cdr.FromCustomerID, cdr.ToCustomerID,
			cdr.StartedAt, cdr.FinishedAt, cdr.Duration, cdr.Charge,
		)
	}

	_, err := r.ch.ExecContext(ctx, sb.String(), args...)
	return err
}
