package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/telebill/call-billing/internal/config"
	"github.com/telebill/call-billing/internal/db"
	httpSrv "github.com/telebill/call-billing/internal/http"
	"github.com/telebill/call-billing/internal/logger"
	"github.com/telebill/call-billing/internal/repository"
	"github.com/telebill/call-billing/internal/scheduler"
	"github.com/telebill/call-billing/internal/service/billing"
	"github.com/telebill/call-billing/internal/service/pricing"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the billing daemon: call endpoints + daily aggregation schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger.Init(cfg.Log.Level)

		mysqlDB, err := db.NewMySQL(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer mysqlDB.Close()

		redisClient, err := db.NewRedis(cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis connect: %w", err)
		}
		defer func() { _ = redisClient.Close() }()

		// repos
		callsRepo := repository.NewCallsRepository(mysqlDB)
		customersRepo := repository.NewCustomersRepository(mysqlDB)
		ratesRepo := repository.NewRatesRepository(mysqlDB)
		billingRepo := repository.NewBillingRepository(mysqlDB)

		// services
		pricingSvc := pricing.New(callsRepo, customersRepo, ratesRepo)
		billingSvc := billing.New(billingRepo, cfg.Billing.Markup)

		lock := scheduler.NewLock(redisClient, cfg.Billing.LockKey, cfg.Billing.LockTTL)
		sched, err := scheduler.New(lock, billingSvc, cfg.Billing.RunAt)
		if err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}

		server := httpSrv.NewServer(pricingSvc)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			logger.Log.Info("http listening", zap.String("addr", cfg.HTTP.Addr))
			errCh <- server.Start(cfg.HTTP.Addr)
		}()
		go func() {
			logger.Log.Info("billing scheduler started", zap.String("run_at", cfg.Billing.RunAt))
			_ = sched.Run(ctx)
		}()

		select {
		case <-ctx.Done():
			logger.Log.Info("signal received, shutting down")
		case err := <-errCh:
			if err != nil {
				logger.Log.Error("http server exited", zap.Error(err))
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)

		return nil
	},
}
