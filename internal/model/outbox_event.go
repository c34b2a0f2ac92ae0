package model

import "time"

type OutboxEvent struct {
	ID          int64      `db:"id"`
	Aggregate   string     `db:"aggregate"`    // e.g. "call", "payment"
	AggregateID string     `db:"aggregate_id"` // call id / payment run id
	Topic       string     `db:"topic"`
	Payload     []byte     `db:"payload"`
	Attempts    int        `db:"attempts"`
	RelayedAt   *time.Time `db:"relayed_at"`
	CreatedAt   time.Time  `db:"created_at"`
}
