package model

import "time"

// CDREnvelope is the call.finished payload published through the outbox.
// The CDR sink consumes it and archives the priced record in ClickHouse.
type CDREnvelope struct {
	CallID         int64     `json:"call_id"`
	FromCustomerID int64     `json:"from_customer_id"`
	ToCustomerID   int64     `json:"to_customer_id"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	Duration       float64   `json:"duration"` // minutes
	Charge         float64   `json:"charge"`
}

// PaymentEnvelope is the payment.created payload published through the outbox
// for the external settlement system.
type PaymentEnvelope struct {
	RunID      string    `json:"run_id"`
	CustomerID int64     `json:"customer_id"`
	Amount     float64   `json:"amount"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}
