package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/telebill/call-billing/internal/logger"
	"github.com/telebill/call-billing/internal/metrics"
	"github.com/telebill/call-billing/internal/repository"
)

// Publisher is the Kafka side of the relay.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Relay polls the transactional outbox and publishes events to Kafka.
// Delivery is at-least-once: rows are marked relayed only after a successful
// publish, and failed rows stay in the outbox with a bumped attempt count.
type Relay struct {
	Outbox   repository.OutboxRepository
	Producer Publisher

	BatchSize int
	Interval  time.Duration
}

func NewRelay(outbox repository.OutboxRepository, producer Publisher) *Relay {
	return &Relay{
		Outbox:    outbox,
		Producer:  producer,
		BatchSize: 200,
		Interval:  time.Second,
	}
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	if r.BatchSize <= 0 {
		r.BatchSize = 200
	}
	if r.Interval <= 0 {
		r.Interval = time.Second
	}

	tick := time.NewTicker(r.Interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			if err := r.relayOnce(ctx); err != nil {
				logger.Log.Error("outbox relay pass failed", zap.Error(err))
			}
		}
	}
}

// relayOnce drains one batch. Publish errors are per-row; a row that fails
// keeps its place in the outbox for the next pass.
func (r *Relay) relayOnce(ctx context.Context) error {
	events, err := r.Outbox.FetchUnrelayed(ctx, r.BatchSize)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	var relayed, failed []int64
	for _, ev := range events {
		if err := r.Producer.Publish(ctx, ev.Topic, []byte(ev.AggregateID), ev.Payload); err != nil {
			logger.Log.Warn("publish outbox event failed",
				zap.Int64("outbox_id", ev.ID),
				zap.String("topic", ev.Topic),
				zap.Error(err),
			)
			failed = append(failed, ev.ID)
			continue
		}
		relayed = append(relayed, ev.ID)
	}

	if err := r.Outbox.MarkRelayed(ctx, relayed); err != nil {
		return err
	}
	if err := r.Outbox.IncrementAttempts(ctx, failed); err != nil {
		return err
	}

	metrics.OutboxRelayed.WithLabelValues("ok").Add(float64(len(relayed)))
	metrics.OutboxRelayed.WithLabelValues("failed").Add(float64(len(failed)))
	return nil
}
