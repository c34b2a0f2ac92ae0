package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/telebill/call-billing/internal/config"
	"github.com/telebill/call-billing/internal/db"
	"github.com/telebill/call-billing/internal/logger"
	"github.com/telebill/call-billing/internal/repository"
	"github.com/telebill/call-billing/internal/service/billing"
)

var (
	aggregatePeriod string
	aggregateForce  bool
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Run one billing aggregation (previous month by default)",
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

		svc := billing.New(repository.NewBillingRepository(mysqlDB), cfg.Billing.Markup)

		ctx := context.Background()

		var res *billing.Result
		if aggregatePeriod == "" {
			res, err = svc.Run(ctx)
		} else {
			month, perr := time.Parse("2006-01", aggregatePeriod)
			if perr != nil {
				return fmt.Errorf("invalid --period %q, want YYYY-MM: %w", aggregatePeriod, perr)
			}
			start := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
			end := start.AddDate(0, 1, 0)
			res, err = svc.RunPeriod(ctx, start, end, billing.RunOptions{Force: aggregateForce})
		}
		if err != nil {
			if errors.Is(err, billing.ErrPeriodAlreadyBilled) {
				return fmt.Errorf("period already billed; pass --force to bill it again: %w", err)
			}
			return err
		}

		fmt.Printf(">> billing run %s: %d customers, total %.2f for %s\n",
			res.RunID, res.Customers, res.TotalAmount, res.PeriodStart.Format("2006-01"))
		return nil
	},
}

func init() {
	aggregateCmd.Flags().StringVar(&aggregatePeriod, "period", "", "billing period YYYY-MM (default: previous month)")
	aggregateCmd.Flags().BoolVar(&aggregateForce, "force", false, "bill the period even if a run marker exists (duplicates payments)")
}
