package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/telebill/call-billing/internal/config"
	"github.com/telebill/call-billing/internal/db"
	"github.com/telebill/call-billing/internal/kafka"
	"github.com/telebill/call-billing/internal/logger"
	"github.com/telebill/call-billing/internal/metrics"
	"github.com/telebill/call-billing/internal/repository"
	"github.com/telebill/call-billing/internal/service/pricing"
	"github.com/telebill/call-billing/internal/worker"
)

var cdrSinkCmd = &cobra.Command{
	Use:   "cdrsink",
	Short: "Archive priced CDRs from Kafka into ClickHouse",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger.Init(cfg.Log.Level)

		metrics.MustRegister(prometheus.DefaultRegisterer)

		chDB, err := db.NewClickHouse(cfg.ClickHouse)
		if err != nil {
			return fmt.Errorf("clickhouse connect: %w", err)
		}
		defer func() { _ = chDB.Close() }()

		groupID := cfg.Kafka.GroupID
		if groupID == "" {
			groupID = "callbill"
		}
		groupID += "-cdrsink"

		consumer := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:        cfg.Kafka.Brokers,
			Topic:          pricing.CallFinishedTopic,
			GroupID:        groupID,
			MinBytes:       cfg.Kafka.MinBytes,
			MaxBytes:       cfg.Kafka.MaxBytes,
			CommitInterval: time.Duration(cfg.Kafka.CommitInterval) * time.Millisecond,
		})
		defer consumer.Close()

		w := worker.NewCDRSink(consumer, repository.NewCDRRepository(chDB))
		if cfg.CDRSink.Workers > 0 {
			w.Workers = cfg.CDRSink.Workers
		}
		if cfg.CDRSink.BatchSize > 0 {
			w.BatchSize = cfg.CDRSink.BatchSize
		}
		if cfg.CDRSink.BatchWait > 0 {
			w.BatchWait = cfg.CDRSink.BatchWait
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.Log.Info("cdr sink started",
			zap.String("topic", pricing.CallFinishedTopic),
			zap.String("group", groupID),
			zap.Int("workers", w.Workers),
			zap.Int("batch_size", w.BatchSize),
			zap.Duration("batch_wait", w.BatchWait),
		)

		if err := w.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	},
}
