// Package scheduler drives the daily billing tick. Each tick runs the
// aggregator at a fixed time of day under a Redis advisory lock; a tick that
// cannot take the lock is skipped, and a failed run waits for the next tick
// rather than retrying immediately.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/telebill/call-billing/internal/logger"
	"github.com/telebill/call-billing/internal/metrics"
	"github.com/telebill/call-billing/internal/service/billing"
	"github.com/telebill/call-billing/internal/util"
)

// Job is the work one tick performs.
type Job interface {
	Run(ctx context.Context) (*billing.Result, error)
}

type Scheduler struct {
	lock *Lock
	job  Job

	hour   int
	minute int

	// clock is injectable for deterministic tests.
	clock func() time.Time
}

// New builds a scheduler ticking daily at runAt ("HH:MM", UTC).
func New(lock *Lock, job Job, runAt string) (*Scheduler, error) {
	hour, minute, err := ParseRunAt(runAt)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		lock:   lock,
		job:    job,
		hour:   hour,
		minute: minute,
		clock:  time.Now,
	}, nil
}

// Run blocks until ctx is cancelled, executing one tick per day.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		next := NextTick(s.clock().UTC(), s.hour, s.minute)
		timer := time.NewTimer(next.Sub(s.clock().UTC()))

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		s.tick(ctx)
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	token := util.New()

	ok, err := s.lock.Acquire(ctx, token)
	if err != nil {
		logger.Log.Error("billing lock acquire failed", zap.Error(err))
		metrics.BillingRunsTotal.WithLabelValues("failed").Inc()
		return
	}
	if !ok {
		logger.Log.Warn("billing run already in flight, skipping tick")
		metrics.BillingRunsTotal.WithLabelValues("lock_busy").Inc()
		return
	}
	defer func() {
		if err := s.lock.Release(ctx, token); err != nil {
			logger.Log.Warn("billing lock release failed", zap.Error(err))
		}
	}()

	res, err := s.job.Run(ctx)
	switch {
	case errors.Is(err, billing.ErrPeriodAlreadyBilled):
		logger.Log.Info("billing period already billed, nothing to do")
	case err != nil:
		logger.Log.Error("billing run failed", zap.Error(err))
	default:
		logger.Log.Info("billing tick done",
			zap.String("run_id", res.RunID),
			zap.Int("customers", res.Customers),
		)
	}
}

// ParseRunAt parses "HH:MM" into hour and minute.
func ParseRunAt(s string) (hour, minute int, err error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid run_at %q, want HH:MM", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid run_at hour %q", parts[0])
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid run_at minute %q", parts[1])
	}
	return hour, minute, nil
}

// NextTick is the next instant strictly after now whose UTC time-of-day is
// hour:minute.
func NextTick(now time.Time, hour, minute int) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
