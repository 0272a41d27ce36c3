package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/facturas/internal/app"
	"github.com/facturas/internal/config"
	"github.com/facturas/internal/mailer"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(execute(ctx, os.Args[1:], os.Stdout, os.Stderr, nil))
}

// execute runs the command with args. A nil transport sends over SMTP.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer, transport mailer.Transport) int {
	cmd := newRootCmd(transport)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd(transport mailer.Transport) *cobra.Command {
	var queuePath, ledgerPath string

	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Send every pending invoice in the queue and record the outcome",
		Long: `Reads attachment,recipient rows from the queue file, emails each invoice,
appends one attachment,recipient,status row per attempt to the ledger and
removes delivered rows from the queue.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, transport, queuePath, ledgerPath)
		},
	}

	cmd.Flags().StringVar(&queuePath, "queue", "pendientes_envio.csv", "pending queue file")
	cmd.Flags().StringVar(&ledgerPath, "ledger", "log_envios.csv", "delivery ledger file")
	cmd.Flags().Int("workers", 0, "concurrent SMTP sessions (overrides DISPATCH_WORKERS)")
	cmd.Flags().String("smtp-host", "", "SMTP server host (overrides SMTP_HOST)")
	cmd.Flags().Int("smtp-port", 0, "SMTP server port (overrides SMTP_PORT)")
	cmd.Flags().String("log-level", "", "log level: debug, info, warn, error")
	return cmd
}

func run(cmd *cobra.Command, transport mailer.Transport, queuePath, ledgerPath string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.RequireCredentials(); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), config.CredentialsHelp)
		return err
	}

	ctx := cmd.Context()
	a, err := app.New(ctx, cfg, transport)
	if err != nil {
		return err
	}
	defer a.Close()

	summary, err := a.Processor().ProcessQueue(ctx, queuePath, ledgerPath)
	fmt.Fprintf(cmd.OutOrStdout(), "%d sent, %d failed, %d pending\n",
		summary.Succeeded, summary.Failed, summary.Pending)

	if s := a.LedgerStore(); s != nil && summary.Total > 0 {
		succeeded, failed, cerr := s.RunCounts(context.WithoutCancel(ctx), summary.RunID.String())
		if cerr != nil {
			slog.Warn("dispatch: cannot read mirrored run", "run_id", summary.RunID, "err", cerr)
		} else {
			slog.Info("dispatch: mirrored run", "run_id", summary.RunID, "succeeded", succeeded, "failed", failed)
		}
	}
	return err
}
