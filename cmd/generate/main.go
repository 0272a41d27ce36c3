package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/facturas/internal/app"
	"github.com/facturas/internal/config"
	"github.com/facturas/internal/purchase"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		dir   string
		count int
		seed  uint64
	)

	cmd := &cobra.Command{
		Use:           "generate",
		Short:         "Write a file of synthetic purchases for testing the invoice pipeline",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if count < 0 {
				return fmt.Errorf("-n must not be negative, got %d", count)
			}
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := app.NewLogger(cfg, os.Stdout)

			csvPath, logPath, err := purchase.NewGenerator(seed).WriteFiles(dir, count, time.Now())
			if err != nil {
				return err
			}
			logger.Info("purchases written", "file", csvPath, "errors", logPath, "count", count)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "compras", "output directory")
	cmd.Flags().IntVarP(&count, "count", "n", 10, "number of purchases")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "random seed, 0 for a random one")
	cmd.Flags().String("log-level", "", "log level: debug, info, warn, error")
	return cmd
}
