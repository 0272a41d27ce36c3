package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/facturas/internal/app"
	"github.com/facturas/internal/config"
	"github.com/facturas/internal/store"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "migrate",
		Short:         "Apply pending ledger mirror migrations to LEDGER_DATABASE_URL",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(nil)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.LedgerDatabaseURL == "" {
		return errors.New("LEDGER_DATABASE_URL is required")
	}
	app.NewLogger(cfg, os.Stdout)

	ctx := cmd.Context()
	pool, err := app.OpenDB(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer pool.Close()

	applied, err := store.Migrate(ctx, pool)
	for _, version := range applied {
		fmt.Fprintf(cmd.OutOrStdout(), "applied: %s\n", version)
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "migrations complete")
	return nil
}
