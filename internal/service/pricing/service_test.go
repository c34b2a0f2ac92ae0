package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/telebill/call-billing/internal/model"
)

const eps = 1e-9

type callsStub struct {
	call *model.Call

	insertErr error
	inserted  *model.Call
	nextID    int64

	active int

	completeOK       bool
	completed        *model.CallCompletion
	completedTopic   string
	completedPayload []byte
}

func (s *callsStub) Get(ctx context.Context, id int64) (*model.Call, error) {
	return s.call, nil
}

func (s *callsStub) Insert(ctx context.Context, c *model.Call) (int64, error) {
	if s.insertErr != nil {
		return 0, s.insertErr
	}
	cp := *c
	s.inserted = &cp
	if s.nextID == 0 {
		s.nextID = 1
	}
	return s.nextID, nil
}

func (s *callsStub) CountActive(ctx context.Context, a, b int64) (int, error) {
	return s.active, nil
}

func (s *callsStub) Complete(ctx context.Context, cp model.CallCompletion, topic string, payload []byte) (bool, error) {
	if !s.completeOK {
		return false, nil
	}
	s.completed = &cp
	s.completedTopic = topic
	s.completedPayload = payload
	return true, nil
}

type customersStub struct {
	missing  map[int64]bool
	noPhones map[int64]bool
}

func (s *customersStub) Exists(ctx context.Context, id int64) (bool, error) {
	return !s.missing[id], nil
}

func (s *customersStub) PhoneNumberCount(ctx context.Context, id int64) (int, error) {
	if s.noPhones[id] {
		return 0, nil
	}
	return 1, nil
}

type ratesStub struct {
	minuteCost   float64
	minuteCostOK bool
	discount     float64
	discountOK   bool
}

func (s *ratesStub) MinuteCostForCustomer(ctx context.Context, id int64) (float64, bool, error) {
	return s.minuteCost, s.minuteCostOK, nil
}

func (s *ratesStub) DiscountForCustomer(ctx context.Context, id int64) (float64, bool, error) {
	return s.discount, s.discountOK, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestDurationMinutes(t *testing.T) {
	start := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	if got := DurationMinutes(start, start.Add(90*time.Second)); math.Abs(got-1.5) > eps {
		t.Fatalf("expected 1.5 minutes, got %v", got)
	}
	if got := DurationMinutes(time.Time{}, start); got != 0 {
		t.Fatalf("expected 0 for zero start, got %v", got)
	}
	if got := DurationMinutes(start, start); got != 0 {
		t.Fatalf("expected 0 for equal start/finish, got %v", got)
	}
}

func TestCharge(t *testing.T) {
	if got := Charge(10, 0.5, 0.8); math.Abs(got-4.0) > eps {
		t.Fatalf("expected charge 4.0, got %v", got)
	}
	if got := Charge(0, 0.5, 0.8); got != 0 {
		t.Fatalf("expected charge 0 for zero duration, got %v", got)
	}
}

func TestFinishPricesCall(t *testing.T) {
	start := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	finish := start.Add(90 * time.Second)

	calls := &callsStub{
		call: &model.Call{
			ID:             7,
			FromCustomerID: 1,
			ToCustomerID:   2,
			StartedAt:      start,
			Status:         model.CallInProgress,
		},
		completeOK: true,
	}
	rates := &ratesStub{minuteCost: 0.5, minuteCostOK: true, discount: 0.8, discountOK: true}

	svc := New(calls, &customersStub{}, rates)
	svc.clock = fixedClock(finish)

	got, err := svc.Finish(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.Status != model.CallFinished {
		t.Fatalf("expected FINISHED, got %s", got.Status)
	}
	if math.Abs(got.Duration-1.5) > eps {
		t.Fatalf("expected duration 1.5, got %v", got.Duration)
	}
	// 1.5 min x 0.5 per minute x 0.8 discount
	if math.Abs(got.Charge-0.6) > eps {
		t.Fatalf("expected charge 0.6, got %v", got.Charge)
	}
	if got.FinishedAt == nil || !got.FinishedAt.Equal(finish) {
		t.Fatalf("expected finished_at %v, got %v", finish, got.FinishedAt)
	}

	if calls.completed == nil {
		t.Fatal("expected a completion write")
	}
	if calls.completed.CallID != 7 {
		t.Fatalf("expected completion for call 7, got %d", calls.completed.CallID)
	}
	if calls.completedTopic != CallFinishedTopic {
		t.Fatalf("expected topic %s, got %s", CallFinishedTopic, calls.completedTopic)
	}

	var cdr model.CDREnvelope
	if err := json.Unmarshal(calls.completedPayload, &cdr); err != nil {
		t.Fatalf("bad cdr payload: %v", err)
	}
	if cdr.CallID != 7 || math.Abs(cdr.Charge-0.6) > eps {
		t.Fatalf("unexpected cdr payload: %+v", cdr)
	}
}

func TestFinishAlreadyFinishedIsRejected(t *testing.T) {
	finished := time.Date(2026, 3, 14, 12, 5, 0, 0, time.UTC)
	calls := &callsStub{
		call: &model.Call{
			ID:         7,
			StartedAt:  finished.Add(-10 * time.Minute),
			FinishedAt: &finished,
			Duration:   10,
			Charge:     4,
			Status:     model.CallFinished,
		},
		completeOK: true,
	}

	svc := New(calls, &customersStub{}, &ratesStub{minuteCostOK: true, discountOK: true})

	_, err := svc.Finish(context.Background(), 7)
	if !errors.Is(err, ErrAlreadyFinished) {
		t.Fatalf("expected ErrAlreadyFinished, got %v", err)
	}
	if calls.completed != nil {
		t.Fatal("re-submitting finish must not write anything")
	}
}

func TestFinishMissingPricingData(t *testing.T) {
	calls := &callsStub{
		call: &model.Call{
			ID:             7,
			FromCustomerID: 1,
			ToCustomerID:   2,
			StartedAt:      time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
			Status:         model.CallInProgress,
		},
		completeOK: true,
	}
	// Receiver's country cost unresolvable.
	rates := &ratesStub{minuteCostOK: false, discount: 0.8, discountOK: true}

	svc := New(calls, &customersStub{}, rates)

	_, err := svc.Finish(context.Background(), 7)
	var missing *PricingDataMissingError
	if !errors.As(err, &missing) {
		t.Fatalf("expected PricingDataMissingError, got %v", err)
	}
	if missing.CustomerID != 2 {
		t.Fatalf("expected receiving customer 2 in error, got %d", missing.CustomerID)
	}
	if calls.completed != nil {
		t.Fatal("transition must not commit without a price")
	}
}

func TestFinishMissingDiscountData(t *testing.T) {
	calls := &callsStub{
		call: &model.Call{
			ID:             7,
			FromCustomerID: 1,
			ToCustomerID:   2,
			StartedAt:      time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
			Status:         model.CallInProgress,
		},
		completeOK: true,
	}
	rates := &ratesStub{minuteCost: 0.5, minuteCostOK: true, discountOK: false}

	svc := New(calls, &customersStub{}, rates)

	_, err := svc.Finish(context.Background(), 7)
	var missing *DiscountDataMissingError
	if !errors.As(err, &missing) {
		t.Fatalf("expected DiscountDataMissingError, got %v", err)
	}
	if missing.CustomerID != 1 {
		t.Fatalf("expected originating customer 1 in error, got %d", missing.CustomerID)
	}
	if calls.completed != nil {
		t.Fatal("transition must not commit without a discount")
	}
}

func TestFinishLosesRace(t *testing.T) {
	calls := &callsStub{
		call: &model.Call{
			ID:             7,
			FromCustomerID: 1,
			ToCustomerID:   2,
			StartedAt:      time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
			Status:         model.CallInProgress,
		},
		completeOK: false, // guard matched no row
	}
	rates := &ratesStub{minuteCost: 0.5, minuteCostOK: true, discount: 0.8, discountOK: true}

	svc := New(calls, &customersStub{}, rates)

	_, err := svc.Finish(context.Background(), 7)
	if !errors.Is(err, ErrAlreadyFinished) {
		t.Fatalf("expected ErrAlreadyFinished on lost race, got %v", err)
	}
}

func TestFinishUnknownCall(t *testing.T) {
	svc := New(&callsStub{call: nil}, &customersStub{}, &ratesStub{})

	_, err := svc.Finish(context.Background(), 404)
	if !errors.Is(err, ErrCallNotFound) {
		t.Fatalf("expected ErrCallNotFound, got %v", err)
	}
}

func TestStartRejectsSameCustomer(t *testing.T) {
	svc := New(&callsStub{}, &customersStub{}, &ratesStub{})

	_, err := svc.Start(context.Background(), 1, 1)
	if !errors.Is(err, ErrSameCustomer) {
		t.Fatalf("expected ErrSameCustomer, got %v", err)
	}
}

func TestStartRejectsUnknownCustomer(t *testing.T) {
	svc := New(&callsStub{}, &customersStub{missing: map[int64]bool{2: true}}, &ratesStub{})

	_, err := svc.Start(context.Background(), 1, 2)
	if !errors.Is(err, ErrNoSuchCustomer) {
		t.Fatalf("expected ErrNoSuchCustomer, got %v", err)
	}
}

func TestStartRejectsBusyCustomer(t *testing.T) {
	svc := New(&callsStub{active: 1}, &customersStub{}, &ratesStub{})

	_, err := svc.Start(context.Background(), 1, 2)
	if !errors.Is(err, ErrCustomerBusy) {
		t.Fatalf("expected ErrCustomerBusy, got %v", err)
	}
}

func TestStartRejectsCustomerWithoutPhoneNumber(t *testing.T) {
	svc := New(&callsStub{}, &customersStub{noPhones: map[int64]bool{1: true}}, &ratesStub{})

	_, err := svc.Start(context.Background(), 1, 2)
	if !errors.Is(err, ErrNoPhoneNumber) {
		t.Fatalf("expected ErrNoPhoneNumber, got %v", err)
	}
}

func TestStartCreatesInProgressCall(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	calls := &callsStub{nextID: 42}

	svc := New(calls, &customersStub{}, &ratesStub{})
	svc.clock = fixedClock(now)

	c, err := svc.Start(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ID != 42 {
		t.Fatalf("expected id 42, got %d", c.ID)
	}
	if c.Status != model.CallInProgress {
		t.Fatalf("expected IN_PROGRESS, got %s", c.Status)
	}
	if !c.StartedAt.Equal(now) {
		t.Fatalf("expected started_at %v, got %v", now, c.StartedAt)
	}
	if calls.inserted == nil || calls.inserted.FromCustomerID != 1 || calls.inserted.ToCustomerID != 2 {
		t.Fatalf("unexpected insert: %+v", calls.inserted)
	}
}
