package model

import (
	"strings"
	"time"
)

type CallStatus string

const (
	CallInProgress CallStatus = "IN_PROGRESS"
	CallFinished   CallStatus = "FINISHED"
)

func (s CallStatus) String() string { return string(s) }

func (s CallStatus) Valid() bool {
	return s == CallInProgress || s == CallFinished
}

// ParseCallStatus normalizes input; empty => IN_PROGRESS.
// Returns (value, true) if valid; otherwise (IN_PROGRESS, false).
func ParseCallStatus(s string) (CallStatus, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "IN_PROGRESS":
		return CallInProgress, true
	case "FINISHED":
		return CallFinished, true
	default:
		return CallInProgress, false
	}
}

// Call is the DB entity persisted in the calls table.
// Duration (fractional minutes) and Charge are written exactly once,
// at the IN_PROGRESS -> FINISHED transition, and never recomputed.
type Call struct {
	ID             int64      `db:"id"`
	FromCustomerID int64      `db:"from_customer_id"`
	ToCustomerID   int64      `db:"to_customer_id"`
	StartedAt      time.Time  `db:"started_at"`
	FinishedAt     *time.Time `db:"finished_at"`
	Duration       float64    `db:"duration"` // minutes
	Charge         float64    `db:"charge"`
	Status         CallStatus `db:"status"`
}

// CallCompletion carries the fields a finishing transition writes atomically
// together with the status flip.
type CallCompletion struct {
	CallID     int64
	FinishedAt time.Time
	Duration   float64
	Charge     float64
}
