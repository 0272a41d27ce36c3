package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/facturas/internal/config"
	"github.com/facturas/internal/dispatch"
	"github.com/facturas/internal/mailer"
	"github.com/facturas/internal/store"
)

type App struct {
	config      *config.Config
	logger      *slog.Logger
	mailer      *mailer.Mailer
	pool        *pgxpool.Pool
	ledgerStore *store.LedgerStore
}

// New wires the mailer from cfg and, when LEDGER_DATABASE_URL is set,
// connects the ledger mirror. Callers check credentials before New.
func New(ctx context.Context, cfg *config.Config, transport mailer.Transport) (*App, error) {
	logger := NewLogger(cfg, os.Stdout)

	if transport == nil {
		transport = mailer.NewSMTPTransport(cfg.SMTPHost, cfg.SMTPPort, cfg.EmailUser, cfg.EmailPass)
	}

	app := &App{
		config: cfg,
		logger: logger,
		mailer: mailer.New(mailer.Config{
			FromAddress:   cfg.EmailUser,
			FromName:      cfg.SMTPFromName,
			Workers:       cfg.Workers,
			RatePerMinute: cfg.SendRate,
		}, transport),
	}

	if cfg.LedgerDatabaseURL != "" {
		pool, err := OpenDB(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("open ledger database: %w", err)
		}
		app.pool = pool
		app.ledgerStore = store.NewLedgerStore(pool)
		logger.Info("ledger mirror enabled")
	}

	return app, nil
}

func (app *App) Close() {
	if app.pool != nil {
		app.pool.Close()
	}
}

func (app *App) Mailer() *mailer.Mailer {
	return app.mailer
}

// LedgerStore returns the mirror, or nil when it is disabled.
func (app *App) LedgerStore() *store.LedgerStore {
	return app.ledgerStore
}

// Processor returns a queue processor using the invoice subject and body
// from config, mirroring records when the ledger database is configured.
func (app *App) Processor() *dispatch.Processor {
	var mirrors []dispatch.Ledger
	if app.ledgerStore != nil {
		mirrors = append(mirrors, app.ledgerStore)
	}
	return dispatch.NewProcessor(app.mailer, dispatch.Config{
		Subject: app.config.InvoiceSubject,
		Body:    app.config.InvoiceBody,
		Workers: app.config.Workers,
	}, mirrors...)
}

// OpenDB connects to LEDGER_DATABASE_URL and pings it.
func OpenDB(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.LedgerDatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// NewLogger builds the text logger for cfg and installs it as the slog default.
func NewLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: cfg.Level(),
	}))

	slog.SetDefault(logger)
	return logger
}
