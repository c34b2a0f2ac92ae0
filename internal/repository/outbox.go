package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/telebill/call-billing/internal/model"
)

// OutboxRepository exposes the relay side of the transactional outbox.
// Rows are inserted inside the calls/billing transactions via insertOutbox.
type OutboxRepository interface {
	// FetchUnrelayed returns the oldest unrelayed events, up to limit.
	FetchUnrelayed(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkRelayed(ctx context.Context, ids []int64) error
	IncrementAttempts(ctx context.Context, ids []int64) error
}

type OutboxRepositoryImpl struct {
	db *sqlx.DB
}

func NewOutboxRepository(db *sqlx.DB) *OutboxRepositoryImpl {
	return &OutboxRepositoryImpl{db: db}
}

var _ OutboxRepository = (*OutboxRepositoryImpl)(nil)

// insertOutbox adds an event row inside the caller's transaction so the event
// commits or rolls back together with the domain write.
func insertOutbox(ctx context.Context, tx *sqlx.Tx, aggregate, aggregateID, topic string, payload []byte) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO outbox (aggregate, aggregate_id, topic, payload, attempts, created_at)
		VALUES (?, ?, ?, ?, 0, NOW())
	`, aggregate, aggregateID, topic, payload)
	return err
}

func (r *OutboxRepositoryImpl) FetchUnrelayed(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []model.OutboxEvent
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, aggregate, aggregate_id, topic, payload, attempts, relayed_at, created_at
		  FROM outbox
		 WHERE relayed_at IS NULL
		 ORDER BY id
		 LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *OutboxRepositoryImpl) MarkRelayed(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`UPDATE outbox SET relayed_at = NOW() WHERE id IN (?)`, ids)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	return err
}

func (r *OutboxRepositoryImpl) IncrementAttempts(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`UPDATE outbox SET attempts = attempts + 1 WHERE id IN (?)`, ids)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	return err
}
