package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/telebill/call-billing/internal/config"
	"github.com/telebill/call-billing/internal/db"
	"github.com/telebill/call-billing/internal/kafka"
	"github.com/telebill/call-billing/internal/logger"
	"github.com/telebill/call-billing/internal/metrics"
	"github.com/telebill/call-billing/internal/repository"
	"github.com/telebill/call-billing/internal/worker"
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Relay outbox events to Kafka",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger.Init(cfg.Log.Level)

		metrics.MustRegister(prometheus.DefaultRegisterer)

		dbx, err := db.NewMySQL(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer dbx.Close()

		producer := kafka.NewProducer(cfg.Kafka.Brokers)
		defer producer.Close()

		r := worker.NewRelay(repository.NewOutboxRepository(dbx), producer)
		if cfg.Relay.BatchSize > 0 {
			r.BatchSize = cfg.Relay.BatchSize
		}
		if cfg.Relay.Interval > 0 {
			r.Interval = cfg.Relay.Interval
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.Log.Info("outbox relay started",
			zap.Int("batch_size", r.BatchSize),
			zap.Duration("interval", r.Interval),
		)

		if err := r.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	},
}
