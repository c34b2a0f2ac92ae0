package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/telebill/call-billing/internal/metrics"
	"github.com/telebill/call-billing/internal/model"
	"github.com/telebill/call-billing/internal/repository"
)

// CallFinishedTopic receives one priced CDR per finished call.
const CallFinishedTopic = "billing.calls.finished"

var (
	ErrCallNotFound    = errors.New("no such call")
	ErrAlreadyFinished = errors.New("call is already finished")
	ErrSameCustomer    = errors.New("cannot make a call with the same customer")
	ErrCustomerBusy    = errors.New("customer is already in an active call")
	ErrNoSuchCustomer  = errors.New("no such customer")
	ErrNoPhoneNumber   = errors.New("customer must have at least one phone number")
)

// PricingDataMissingError means the receiving customer's country-level
// per-minute cost could not be resolved. The finishing transition must not
// commit without a price.
type PricingDataMissingError struct {
	CustomerID int64
}

func (e *PricingDataMissingError) Error() string {
	return fmt.Sprintf("pricing data missing for receiving customer %d", e.CustomerID)
}

// DiscountDataMissingError means the originating customer's category discount
// could not be resolved.
type DiscountDataMissingError struct {
	CustomerID int64
}

func (e *DiscountDataMissingError) Error() string {
	return fmt.Sprintf("discount data missing for originating customer %d", e.CustomerID)
}

// Service is the call pricing engine. Finish runs synchronously inside the
// call-finishing operation: the status flip is acknowledged only after
// finished_at, duration and charge are committed with it, or the whole
// transition is rejected.
type Service struct {
	calls     repository.CallsRepository
	customers repository.CustomersRepository
	rates     repository.RatesRepository

	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func New(
	calls repository.CallsRepository,
	customers repository.CustomersRepository,
	rates repository.RatesRepository,
) *Service {
	return &Service{
		calls:     calls,
		customers: customers,
		rates:     rates,
		clock:     time.Now,
	}
}

// Start opens an IN_PROGRESS call between two customers after the same
// checks the original call setup performs: distinct parties, neither side in
// an active call, both sides holding at least one phone number.
func (s *Service) Start(ctx context.Context, fromCustomerID, toCustomerID int64) (*model.Call, error) {
	if fromCustomerID == toCustomerID {
		return nil, ErrSameCustomer
	}

	for _, id := range []int64{fromCustomerID, toCustomerID} {
		exists, err := s.customers.Exists(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("customer lookup: %w", err)
		}
		if !exists {
			return nil, fmt.Errorf("customer %d: %w", id, ErrNoSuchCustomer)
		}
	}

	active, err := s.calls.CountActive(ctx, fromCustomerID, toCustomerID)
	if err != nil {
		return nil, fmt.Errorf("active call count: %w", err)
	}
	if active > 0 {
		return nil, ErrCustomerBusy
	}

	for _, id := range []int64{fromCustomerID, toCustomerID} {
		n, err := s.customers.PhoneNumberCount(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("phone number count: %w", err)
		}
		if n == 0 {
			return nil, fmt.Errorf("customer %d: %w", id, ErrNoPhoneNumber)
		}
	}

	c := &model.Call{
		FromCustomerID: fromCustomerID,
		ToCustomerID:   toCustomerID,
		StartedAt:      s.clock().UTC(),
		Status:         model.CallInProgress,
	}
	id, err := s.calls.Insert(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("insert call: %w", err)
	}
	c.ID = id

	metrics.CallsTotal.WithLabelValues("started").Inc()

	return c, nil
}

// Finish prices the call and flips it to FINISHED. It fires only on a genuine
// IN_PROGRESS -> FINISHED transition; re-submitting on an already finished
// call changes nothing and returns ErrAlreadyFinished.
func (s *Service) Finish(ctx context.Context, callID int64) (*model.Call, error) {
	c, err := s.calls.Get(ctx, callID)
	if err != nil {
		return nil, fmt.Errorf("load call: %w", err)
	}
	if c == nil {
		return nil, ErrCallNotFound
	}
	if c.Status == model.CallFinished {
		metrics.CallsTotal.WithLabelValues("already_finished").Inc()
		return nil, ErrAlreadyFinished
	}

	finishedAt := s.clock().UTC()
	duration := DurationMinutes(c.StartedAt, finishedAt)

	minuteCost, ok, err := s.rates.MinuteCostForCustomer(ctx, c.ToCustomerID)
	if err != nil {
		return nil, fmt.Errorf("minute cost lookup: %w", err)
	}
	if !ok {
		metrics.CallsTotal.WithLabelValues("missing_data").Inc()
		return nil, &PricingDataMissingError{CustomerID: c.ToCustomerID}
	}

	discount, ok, err := s.rates.DiscountForCustomer(ctx, c.FromCustomerID)
	if err != nil {
		return nil, fmt.Errorf("discount lookup: %w", err)
	}
	if !ok {
		metrics.CallsTotal.WithLabelValues("missing_data").Inc()
		return nil, &DiscountDataMissingError{CustomerID: c.FromCustomerID}
	}

	charge := Charge(duration, minuteCost, discount)

	cdr := model.CDREnvelope{
		CallID:         c.ID,
		FromCustomerID: c.FromCustomerID,
		ToCustomerID:   c.ToCustomerID,
		StartedAt:      c.StartedAt,
		FinishedAt:     finishedAt,
		Duration:       duration,
		Charge:         charge,
	}
	payload, err := json.Marshal(cdr)
	if err != nil {
		return nil, fmt.Errorf("marshal cdr: %w", err)
	}

	done, err := s.calls.Complete(ctx, model.CallCompletion{
		CallID:     c.ID,
		FinishedAt: finishedAt,
		Duration:   duration,
		Charge:     charge,
	}, CallFinishedTopic, payload)
	if err != nil {
		return nil, fmt.Errorf("complete call: %w", err)
	}
	if !done {
		// Lost the race: someone else finished the call between our read and
		// the guarded update. Their pricing stands.
		metrics.CallsTotal.WithLabelValues("already_finished").Inc()
		return nil, ErrAlreadyFinished
	}

	metrics.CallsTotal.WithLabelValues("priced").Inc()

	c.Status = model.CallFinished
	c.FinishedAt = &finishedAt
	c.Duration = duration
	c.Charge = charge
	return c, nil
}

// Get returns a single call.
func (s *Service) Get(ctx context.Context, callID int64) (*model.Call, error) {
	c, err := s.calls.Get(ctx, callID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrCallNotFound
	}
	return c, nil
}

// DurationMinutes is the elapsed wall-clock time between start and finish in
// fractional minutes. A zero start means the duration is zero.
func DurationMinutes(start, finish time.Time) float64 {
	if start.IsZero() {
		return 0
	}
	d := finish.Sub(start).Minutes()
	if d < 0 {
		return 0
	}
	return d
}

// Charge is duration_minutes x per_minute_cost x discount_multiplier.
func Charge(durationMinutes, minuteCost, discountMtp float64) float64 {
	return durationMinutes * minuteCost * discountMtp
}
