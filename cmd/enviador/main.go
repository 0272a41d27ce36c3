package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/facturas/internal/app"
	"github.com/facturas/internal/config"
)

var errUsage = errors.New("usage: enviador <email> <subject> <body> [attachment] | enviador <file.csv>")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(execute(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enviador <email> <subject> <body> [attachment] | enviador <file.csv>",
		Short: "Send invoices by email, one at a time or from a CSV batch",
		Long: `Send a single message from arguments, or every row of a CSV file with the
header email,asunto,mensaje,adjunto. Credentials come from EMAIL_USER and
EMAIL_PASS (environment or .env).`,
		Args:          cobra.MaximumNArgs(4),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	cmd.Flags().String("smtp-host", "", "SMTP server host (overrides SMTP_HOST)")
	cmd.Flags().Int("smtp-port", 0, "SMTP server port (overrides SMTP_PORT)")
	cmd.Flags().Int("workers", 0, "concurrent SMTP sessions for batches (overrides DISPATCH_WORKERS)")
	cmd.Flags().String("log-level", "", "log level: debug, info, warn, error")
	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	// Credentials are checked before anything touches the network.
	if err := cfg.RequireCredentials(); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), config.CredentialsHelp)
		return err
	}

	// A first argument naming a .csv file always selects batch mode.
	batch := len(args) > 0 && strings.HasSuffix(strings.ToLower(args[0]), ".csv")
	if (batch && len(args) != 1) || (!batch && len(args) < 3) {
		fmt.Fprintln(cmd.ErrOrStderr(), cmd.Long)
		return errUsage
	}

	ctx := cmd.Context()
	a, err := app.New(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	if batch {
		result, err := a.Mailer().SendBatch(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d sent, %d failed, %d skipped\n",
			result.Succeeded, result.Failed, result.Skipped)
		return nil
	}

	var attachment string
	if len(args) == 4 {
		attachment = args[3]
	}
	res := a.Mailer().SendOne(ctx, args[0], args[1], args[2], attachment)
	if !res.OK() {
		return res.Err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "sent to %s\n", res.To)
	return nil
}
