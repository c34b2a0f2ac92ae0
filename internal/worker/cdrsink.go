package worker

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/telebill/call-billing/internal/kafka"
	"github.com/telebill/call-billing/internal/logger"
	"github.com/telebill/call-billing/internal/metrics"
	"github.com/telebill/call-billing/internal/model"
	"github.com/telebill/call-billing/internal/repository"
)

// CDRSink:
// - fetches priced-call envelopes from Kafka,
// - batches by size/time,
// - appends them to the ClickHouse CDR archive.
// At-least-once; the archive tolerates replayed rows.
type CDRSink struct {
	Consumer *kafka.Consumer
	CDRs     repository.CDRRepository

	Workers   int
	BatchSize int
	BatchWait time.Duration
}

func NewCDRSink(consumer *kafka.Consumer, cdrs repository.CDRRepository) *CDRSink {
	return &CDRSink{
		Consumer:  consumer,
		CDRs:      cdrs,
		Workers:   8,
		BatchSize: 500,
		BatchWait: 300 * time.Millisecond,
	}
}

// Run starts the sink and blocks until ctx is cancelled.
func (w *CDRSink) Run(ctx context.Context) error {
	if w.Workers <= 0 {
		w.Workers = 8
	}
	if w.BatchSize <= 0 {
		w.BatchSize = 500
	}
	if w.BatchWait <= 0 {
		w.BatchWait = 300 * time.Millisecond
	}

	rows := make(chan model.CDREnvelope, w.BatchSize*2)
	defer close(rows)

	go w.runBatchWriter(ctx, rows)

	msgCh := make(chan kafka.Message, w.Workers*2)

	// Fetcher goroutine
	go func() {
		defer close(msgCh)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				m, err := w.Consumer.Fetch(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					logger.Log.Warn("cdr sink fetch failed", zap.Error(err))
					time.Sleep(200 * time.Millisecond)
					continue
				}
				msgCh <- m
			}
		}
	}()

	for i := 0; i < w.Workers; i++ {
		go w.runProcessor(ctx, msgCh, rows)
	}

	<-ctx.Done()
	return ctx.Err()
}

func (w *CDRSink) runProcessor(ctx context.Context, in <-chan kafka.Message, out chan<- model.CDREnvelope) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			w.processOne(ctx, m, out)
		}
	}
}

func (w *CDRSink) processOne(ctx context.Context, m kafka.Message, out chan<- model.CDREnvelope) {
	var cdr model.CDREnvelope
	if err := json.Unmarshal(m.Value, &cdr); err != nil || cdr.CallID == 0 {
		// poison -> commit, skip
		_ = w.Consumer.Commit(ctx, m)
		logger.Log.Warn("bad cdr envelope", zap.Error(err))
		return
	}

	out <- cdr

	// Always commit (at-least-once).
	if err := w.Consumer.Commit(ctx, m); err != nil {
		logger.Log.Warn("cdr sink commit failed", zap.Error(err))
	}
}

// runBatchWriter does size/time-based flush into ClickHouse.
func (w *CDRSink) runBatchWriter(ctx context.Context, in <-chan model.CDREnvelope) {
	tick := time.NewTicker(w.BatchWait)
	defer tick.Stop()

	buf := make([]model.CDREnvelope, 0, w.BatchSize)

	flush := func() {
		if len(buf) == 0 {
			return
		}
		if err := w.CDRs.InsertBatch(ctx, buf); err != nil {
			// Offsets are already committed; keep the batch and retry on
			// the next flush.
			logger.Log.Error("cdr batch insert failed", zap.Int("rows", len(buf)), zap.Error(err))
			return
		}
		metrics.CDRsArchived.Add(float64(len(buf)))
		buf = buf[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case cdr, ok := <-in:
			if !ok {
				flush()
				return
			}
			buf = append(buf, cdr)
			if len(buf) >= w.BatchSize {
				flush()
			}
		case <-tick.C:
			flush()
		}
	}
}
