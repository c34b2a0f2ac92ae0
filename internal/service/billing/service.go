package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/telebill/call-billing/internal/logger"
	"github.com/telebill/call-billing/internal/metrics"
	"github.com/telebill/call-billing/internal/model"
	"github.com/telebill/call-billing/internal/repository"
	"github.com/telebill/call-billing/internal/util"
)

// PaymentsTopic notifies the external settlement system of new PENDING
// payments.
const PaymentsTopic = "billing.payments"

// DefaultMarkup is the fixed invoice markup applied on top of call charges
// plus the monthly fee.
const DefaultMarkup = 1.2

// ErrPeriodAlreadyBilled means a billing run for the same period has already
// been recorded; the new run wrote nothing.
var ErrPeriodAlreadyBilled = errors.New("billing period already billed")

// AggregationError wraps any failure of the read/aggregate/write sequence.
// The run is all-or-nothing: when it is returned, no payments were written.
type AggregationError struct {
	PeriodStart time.Time
	Err         error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("billing aggregation for period %s failed: %v",
		e.PeriodStart.Format("2006-01"), e.Err)
}

func (e *AggregationError) Unwrap() error { return e.Err }

// RunOptions tunes a single aggregation run.
type RunOptions struct {
	// Force skips the run-marker guard, allowing a period to be billed again.
	// The resulting duplicate payments are the operator's explicit choice.
	Force bool
}

// Result summarizes a completed run.
type Result struct {
	RunID       string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Customers   int
	TotalAmount float64
}

// Service is the monthly billing aggregator: one PENDING payment per customer
// per billing period, amount = (finished-call charge sum + monthly fee) x markup.
type Service struct {
	repo   repository.BillingRepository
	markup float64

	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func New(repo repository.BillingRepository, markup float64) *Service {
	if markup <= 0 {
		markup = DefaultMarkup
	}
	return &Service{repo: repo, markup: markup, clock: time.Now}
}

// Run bills the previous calendar month relative to the current date.
func (s *Service) Run(ctx context.Context) (*Result, error) {
	start, end := PreviousMonth(s.clock().UTC())
	return s.RunPeriod(ctx, start, end, RunOptions{})
}

// RunPeriod bills the half-open period [start, end). Every customer gets
// exactly one payment, including those with no qualifying calls. The run is
// atomic: marker, payments and outbox events commit together or not at all.
func (s *Service) RunPeriod(ctx context.Context, start, end time.Time, opts RunOptions) (*Result, error) {
	now := s.clock().UTC()

	usage, err := s.repo.CustomerUsage(ctx, start, end)
	if err != nil {
		metrics.BillingRunsTotal.WithLabelValues("failed").Inc()
		return nil, &AggregationError{PeriodStart: start, Err: err}
	}

	runID := util.New()

	payments := make([]model.Payment, 0, len(usage))
	payloads := make([][]byte, 0, len(usage))
	var total float64
	for _, u := range usage {
		amount := InvoiceAmount(u.CallSum, u.MonthlyFee, s.markup)
		p := model.Payment{
			CustomerID: u.CustomerID,
			Amount:     amount,
			Status:     model.PaymentPending,
			CreatedAt:  now,
		}
		payload, err := json.Marshal(model.PaymentEnvelope{
			RunID:      runID,
			CustomerID: p.CustomerID,
			Amount:     p.Amount,
			Status:     p.Status.String(),
			CreatedAt:  p.CreatedAt,
		})
		if err != nil {
			metrics.BillingRunsTotal.WithLabelValues("failed").Inc()
			return nil, &AggregationError{PeriodStart: start, Err: err}
		}
		payments = append(payments, p)
		payloads = append(payloads, payload)
		total += amount
	}

	run := &model.BillingRun{
		RunID:       runID,
		PeriodStart: start,
		PeriodEnd:   end,
		Customers:   len(payments),
		TotalAmount: total,
		CreatedAt:   now,
	}
	if opts.Force {
		run = nil
	}

	if err := s.repo.CreateRun(ctx, run, payments, PaymentsTopic, payloads); err != nil {
		if errors.Is(err, repository.ErrDuplicateRun) {
			metrics.BillingRunsTotal.WithLabelValues("skipped").Inc()
			return nil, ErrPeriodAlreadyBilled
		}
		metrics.BillingRunsTotal.WithLabelValues("failed").Inc()
		return nil, &AggregationError{PeriodStart: start, Err: err}
	}

	metrics.BillingRunsTotal.WithLabelValues("ok").Inc()
	metrics.PaymentsCreated.Add(float64(len(payments)))

	logger.Log.Info("billing run complete",
		zap.String("run_id", runID),
		zap.Time("period_start", start),
		zap.Time("period_end", end),
		zap.Int("customers", len(payments)),
		zap.Float64("total_amount", total),
	)

	return &Result{
		RunID:       runID,
		PeriodStart: start,
		PeriodEnd:   end,
		Customers:   len(payments),
		TotalAmount: total,
	}, nil
}

// InvoiceAmount is (call charge sum + fixed monthly fee) x markup.
func InvoiceAmount(callSum, monthlyFee, markup float64) float64 {
	return (callSum + monthlyFee) * markup
}

// PreviousMonth returns the half-open previous calendar month around now:
// the first instant of the previous month and the first instant of the
// current month, both UTC.
func PreviousMonth(now time.Time) (start, end time.Time) {
	now = now.UTC()
	end = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	start = end.AddDate(0, -1, 0)
	return start, end
}
