package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/telebill/call-billing/cmd/worker"
)

var (
	cfgPath string
	rootCmd = &cobra.Command{
		Use:   "call-billing",
		Short: "Call billing CLI",
	}
)

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "path to YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(aggregateCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(worker.NewWorkerCmd())
}
