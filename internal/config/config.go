package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ErrMissingCredentials is returned by RequireCredentials when the SMTP
// account identity or secret is not configured.
var ErrMissingCredentials = errors.New("EMAIL_USER and EMAIL_PASS are required")

type Config struct {
	Env      string // development, production
	LogLevel string

	// SMTP
	SMTPHost     string
	SMTPPort     int
	EmailUser    string
	EmailPass    string
	SMTPFromName string

	// Invoice dispatch
	InvoiceSubject string
	InvoiceBody    string
	Workers        int
	SendRate       int // messages per minute, 0 for no limit

	// Optional PostgreSQL copy of the delivery ledger.
	LedgerDatabaseURL string
}

// flagKeys maps command-line flag names to the environment keys they override.
var flagKeys = map[string]string{
	"smtp-host": "SMTP_HOST",
	"smtp-port": "SMTP_PORT",
	"workers":   "DISPATCH_WORKERS",
	"log-level": "LOG_LEVEL",
}

// Load reads configuration from the process environment, after loading a
// .env file if one exists. Variables already set in the environment win over
// the file. Flags present in fs and listed in flagKeys win over both when set.
func Load(fs *pflag.FlagSet) (*Config, error) {
	// Load .env file if it exists (don't error if missing)
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			f := fs.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	cfg := &Config{
		Env:               v.GetString("ENV"),
		LogLevel:          v.GetString("LOG_LEVEL"),
		SMTPHost:          v.GetString("SMTP_HOST"),
		SMTPPort:          v.GetInt("SMTP_PORT"),
		EmailUser:         strings.TrimSpace(v.GetString("EMAIL_USER")),
		EmailPass:         v.GetString("EMAIL_PASS"),
		SMTPFromName:      v.GetString("SMTP_FROM_NAME"),
		InvoiceSubject:    v.GetString("INVOICE_SUBJECT"),
		InvoiceBody:       v.GetString("INVOICE_BODY"),
		Workers:           v.GetInt("DISPATCH_WORKERS"),
		SendRate:          v.GetInt("SEND_RATE_PER_MINUTE"),
		LedgerDatabaseURL: v.GetString("LEDGER_DATABASE_URL"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", "production")
	v.SetDefault("LOG_LEVEL", "")
	v.SetDefault("SMTP_HOST", "smtp.gmail.com")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("EMAIL_USER", "")
	v.SetDefault("EMAIL_PASS", "")
	v.SetDefault("SMTP_FROM_NAME", "")
	v.SetDefault("INVOICE_SUBJECT", "Factura Mercado IRSI")
	v.SetDefault("INVOICE_BODY", "Adjuntamos su factura electrónica. ¡Gracias por su compra!")
	v.SetDefault("DISPATCH_WORKERS", 1)
	v.SetDefault("SEND_RATE_PER_MINUTE", 0)
	v.SetDefault("LEDGER_DATABASE_URL", "")
}

// Validate checks values that make every command unusable. Credentials are
// checked separately because not every command sends mail.
func (c *Config) Validate() error {
	if c.SMTPHost == "" {
		return fmt.Errorf("SMTP_HOST must not be empty")
	}
	if c.SMTPPort <= 0 || c.SMTPPort > 65535 {
		return fmt.Errorf("SMTP_PORT must be between 1 and 65535, got %d", c.SMTPPort)
	}
	if c.Workers < 1 {
		return fmt.Errorf("DISPATCH_WORKERS must be at least 1, got %d", c.Workers)
	}
	if c.SendRate < 0 {
		return fmt.Errorf("SEND_RATE_PER_MINUTE must not be negative, got %d", c.SendRate)
	}
	return nil
}

// RequireCredentials reports ErrMissingCredentials unless both the SMTP
// account identity and secret are set.
func (c *Config) RequireCredentials() error {
	if c.EmailUser == "" || c.EmailPass == "" {
		return ErrMissingCredentials
	}
	return nil
}

// CredentialsHelp is printed when RequireCredentials fails.
const CredentialsHelp = `Configure the environment variables:
   export EMAIL_USER='account@example.com'
   export EMAIL_PASS='app-password'
or create a .env file with the same keys.`

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Level resolves the slog level. An explicit LOG_LEVEL wins; otherwise
// development runs at debug and everything else at info.
func (c *Config) Level() slog.Level {
	if c.LogLevel != "" {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(c.LogLevel)); err == nil {
			return lvl
		}
	}
	if c.IsDevelopment() {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
