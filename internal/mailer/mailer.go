package mailer

import (
	"context"
	"fmt"
	"log/slog"
)

type Config struct {
	FromAddress string
	FromName    string
	// Workers bounds how many messages SendBatch has in flight.
	Workers int
	// RatePerMinute caps transmissions per minute; zero means no cap.
	RatePerMinute int
}

// Result is the outcome of one delivery attempt. A nil Err means success.
type Result struct {
	To   string
	Kind Kind
	Err  error
}

func (r Result) OK() bool { return r.Err == nil }

func failed(to string, err error) Result {
	return Result{To: to, Kind: KindOf(err), Err: err}
}

// Mailer composes messages and hands them to a Transport.
type Mailer struct {
	cfg       Config
	transport Transport
	throttle  *Throttle
}

func New(cfg Config, transport Transport) *Mailer {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Mailer{cfg: cfg, transport: transport, throttle: NewThrottle(cfg.RatePerMinute)}
}

// Send composes msg and transmits it once. It does not validate the
// recipient; callers apply the address rule they need first.
func (m *Mailer) Send(ctx context.Context, msg Message) Result {
	g := m.compose(msg)

	if err := m.throttle.Wait(ctx); err != nil {
		err = fmt.Errorf("%w: %w", ErrTransport, err)
		logFailure(msg.To, err)
		return failed(msg.To, err)
	}

	slog.Debug("mailer: sending", "to", msg.To, "subject", msg.Subject)
	err := m.transport.Send(ctx, m.cfg.FromAddress, []string{msg.To}, g)
	if err != nil {
		err = Classify(err)
		logFailure(msg.To, err)
		return failed(msg.To, err)
	}

	slog.Info("mailer: sent", "to", msg.To)
	return Result{To: msg.To}
}

// SendOne validates the recipient, attaches attachmentPath when it names an
// existing file, and sends. A missing attachment is dropped with a warning.
func (m *Mailer) SendOne(ctx context.Context, to, subject, body, attachmentPath string) Result {
	if !ValidAddress(to) {
		err := fmt.Errorf("%w: %q", ErrInvalidAddress, to)
		slog.Warn("mailer: invalid address", "to", to)
		return failed(to, err)
	}

	att, err := loadOptionalAttachment(attachmentPath)
	if err != nil {
		slog.Error("mailer: cannot read attachment", "to", to, "attachment", attachmentPath, "err", err)
		return failed(to, err)
	}
	if att == nil && attachmentPath != "" {
		slog.Warn("mailer: attachment not found, sending without it", "to", to, "attachment", attachmentPath)
	}
	if att != nil {
		slog.Debug("mailer: attachment added", "to", to, "attachment", att.Filename)
	}

	return m.Send(ctx, Message{
		To:         to,
		Subject:    subject,
		Body:       body,
		Attachment: att,
	})
}

func logFailure(to string, err error) {
	switch KindOf(err) {
	case KindAuth:
		slog.Error("mailer: authentication failed, check the account password", "to", to, "err", err)
	case KindRecipientRefused:
		slog.Error("mailer: recipient refused", "to", to, "err", err)
	case KindDisconnected:
		slog.Error("mailer: connection lost with smtp server", "to", to, "err", err)
	default:
		slog.Error("mailer: send failed", "to", to, "err", err)
	}
}
