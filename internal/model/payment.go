package model

import "time"

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentSuccess PaymentStatus = "SUCCESS"
)

func (s PaymentStatus) String() string { return string(s) }

func (s PaymentStatus) Valid() bool {
	return s == PaymentPending || s == PaymentSuccess
}

// Payment is one monthly invoice line for one customer. Rows are created only
// by the billing aggregator; settlement mutates Status out of scope.
type Payment struct {
	ID         int64         `db:"id"`
	CustomerID int64         `db:"customer_id"`
	Amount     float64       `db:"amount"`
	Status     PaymentStatus `db:"status"`
	CreatedAt  time.Time     `db:"created_at"`
	UpdatedAt  *time.Time    `db:"updated_at"`
}

// BillingRun marks one executed aggregation for a billing period.
// period_start is unique, which is what makes the daily schedule idempotent
// per calendar month.
type BillingRun struct {
	ID          int64     `db:"id"`
	RunID       string    `db:"run_id"` // ULID
	PeriodStart time.Time `db:"period_start"`
	PeriodEnd   time.Time `db:"period_end"`
	Customers   int       `db:"customers"`
	TotalAmount float64   `db:"total_amount"`
	CreatedAt   time.Time `db:"created_at"`
}
