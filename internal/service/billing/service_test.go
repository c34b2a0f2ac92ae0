package billing

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/telebill/call-billing/internal/model"
	"github.com/telebill/call-billing/internal/repository"
)

const eps = 1e-9

type billingStub struct {
	usage    []repository.CustomerUsage
	usageErr error

	createErr error
	run       *model.BillingRun
	payments  []model.Payment
	topic     string
	payloads  [][]byte
	created   bool
}

func (s *billingStub) CustomerUsage(ctx context.Context, start, end time.Time) ([]repository.CustomerUsage, error) {
	if s.usageErr != nil {
		return nil, s.usageErr
	}
	return s.usage, nil
}

func (s *billingStub) CreateRun(ctx context.Context, run *model.BillingRun, payments []model.Payment, topic string, payloads [][]byte) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.run = run
	s.payments = payments
	s.topic = topic
	s.payloads = payloads
	s.created = true
	return nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestInvoiceAmount(t *testing.T) {
	// No calls: only the monthly fee is marked up.
	if got := InvoiceAmount(0, 250, 1.2); math.Abs(got-300) > eps {
		t.Fatalf("expected 300, got %v", got)
	}
	if got := InvoiceAmount(30, 450, 1.2); math.Abs(got-576) > eps {
		t.Fatalf("expected 576, got %v", got)
	}
}

func TestPreviousMonth(t *testing.T) {
	start, end := PreviousMonth(time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC))
	if !start.Equal(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start %v", start)
	}
	if !end.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected end %v", end)
	}

	// January rolls back into the previous year.
	start, end = PreviousMonth(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))
	if !start.Equal(time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start %v", start)
	}
	if !end.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected end %v", end)
	}
}

func TestRunPeriodBillsEveryCustomerOnce(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 10, 0, 0, time.UTC)
	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	repo := &billingStub{usage: []repository.CustomerUsage{
		{CustomerID: 1, MonthlyFee: 250, CallSum: 0},
		{CustomerID: 2, MonthlyFee: 450, CallSum: 30},
	}}

	svc := New(repo, 1.2)
	svc.clock = fixedClock(now)

	res, err := svc.RunPeriod(context.Background(), start, end, RunOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Customers != 2 {
		t.Fatalf("expected 2 payments, got %d", res.Customers)
	}
	if math.Abs(res.TotalAmount-876) > eps {
		t.Fatalf("expected total 876, got %v", res.TotalAmount)
	}
	if res.RunID == "" {
		t.Fatal("expected a run id")
	}

	if len(repo.payments) != 2 {
		t.Fatalf("expected 2 payments written, got %d", len(repo.payments))
	}
	// Customer with zero qualifying calls still gets an invoice.
	if math.Abs(repo.payments[0].Amount-300) > eps {
		t.Fatalf("expected 300 for customer 1, got %v", repo.payments[0].Amount)
	}
	if math.Abs(repo.payments[1].Amount-576) > eps {
		t.Fatalf("expected 576 for customer 2, got %v", repo.payments[1].Amount)
	}
	for _, p := range repo.payments {
		if p.Status != model.PaymentPending {
			t.Fatalf("expected PENDING, got %s", p.Status)
		}
		if !p.CreatedAt.Equal(now) {
			t.Fatalf("expected created_at %v, got %v", now, p.CreatedAt)
		}
	}

	if repo.run == nil {
		t.Fatal("expected a run marker")
	}
	if !repo.run.PeriodStart.Equal(start) || !repo.run.PeriodEnd.Equal(end) {
		t.Fatalf("unexpected run period: %+v", repo.run)
	}
	if repo.topic != PaymentsTopic {
		t.Fatalf("expected topic %s, got %s", PaymentsTopic, repo.topic)
	}
	if len(repo.payloads) != 2 {
		t.Fatalf("expected 2 outbox payloads, got %d", len(repo.payloads))
	}
}

func TestRunPeriodDuplicateIsSkipped(t *testing.T) {
	repo := &billingStub{
		usage:     []repository.CustomerUsage{{CustomerID: 1, MonthlyFee: 250}},
		createErr: repository.ErrDuplicateRun,
	}

	svc := New(repo, 1.2)

	start, end := PreviousMonth(time.Date(2026, 3, 1, 0, 10, 0, 0, time.UTC))
	_, err := svc.RunPeriod(context.Background(), start, end, RunOptions{})
	if !errors.Is(err, ErrPeriodAlreadyBilled) {
		t.Fatalf("expected ErrPeriodAlreadyBilled, got %v", err)
	}
}

func TestRunPeriodForceSkipsRunMarker(t *testing.T) {
	repo := &billingStub{usage: []repository.CustomerUsage{{CustomerID: 1, MonthlyFee: 250}}}

	svc := New(repo, 1.2)

	start, end := PreviousMonth(time.Date(2026, 3, 1, 0, 10, 0, 0, time.UTC))
	if _, err := svc.RunPeriod(context.Background(), start, end, RunOptions{Force: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !repo.created {
		t.Fatal("expected payments to be written")
	}
	if repo.run != nil {
		t.Fatal("forced run must not write a run marker")
	}
}

func TestRunPeriodReadFailureWritesNothing(t *testing.T) {
	repo := &billingStub{usageErr: errors.New("mysql gone away")}

	svc := New(repo, 1.2)

	start, end := PreviousMonth(time.Date(2026, 3, 1, 0, 10, 0, 0, time.UTC))
	_, err := svc.RunPeriod(context.Background(), start, end, RunOptions{})

	var agg *AggregationError
	if !errors.As(err, &agg) {
		t.Fatalf("expected AggregationError, got %v", err)
	}
	if !agg.PeriodStart.Equal(start) {
		t.Fatalf("unexpected period in error: %v", agg.PeriodStart)
	}
	if repo.created {
		t.Fatal("a failed run must write nothing")
	}
}

func TestRunUsesPreviousCalendarMonth(t *testing.T) {
	repo := &billingStub{}

	svc := New(repo, 0) // falls back to the default markup
	svc.clock = fixedClock(time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC))

	res, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.PeriodStart.Equal(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected period start %v", res.PeriodStart)
	}
	if !res.PeriodEnd.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected period end %v", res.PeriodEnd)
	}
}
