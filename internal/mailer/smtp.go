package mailer

import (
	"context"
	"crypto/tls"
	"io"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"time"
)

const (
	dialTimeout = 10 * time.Second
	// Port 465 speaks TLS from the first byte; every other port must offer STARTTLS.
	implicitTLSPort = 465
)

// Transport delivers a rendered message. Implementations open and close
// their own session per call.
type Transport interface {
	Send(ctx context.Context, from string, to []string, msg io.WriterTo) error
}

// SMTPTransport sends through an authenticated SMTP relay. Every Send dials a
// new session: connect, STARTTLS, AUTH PLAIN, MAIL, RCPT, DATA, QUIT. A relay
// that offers no STARTTLS or no AUTH is refused before any credentials or
// message data are sent.
type SMTPTransport struct {
	host     string
	port     int
	username string
	password string

	// tlsConfig overrides the client TLS settings; nil verifies host.
	tlsConfig *tls.Config
}

func NewSMTPTransport(host string, port int, username, password string) *SMTPTransport {
	return &SMTPTransport{
		host:     host,
		port:     port,
		username: username,
		password: password,
	}
}

// Send implements Transport. The returned error is unclassified.
func (t *SMTPTransport) Send(ctx context.Context, from string, to []string, msg io.WriterTo) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	conn, err := t.dial(ctx)
	if err != nil {
		return &sessionError{step: stepDial, err: err}
	}

	c, err := smtp.NewClient(conn, t.host)
	if err != nil {
		conn.Close()
		return &sessionError{step: stepDial, err: err}
	}
	defer c.Close()

	if err := t.secure(c); err != nil {
		return err
	}

	if err := c.Mail(from); err != nil {
		return &sessionError{step: stepMail, err: err}
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return &sessionError{step: stepRcpt, err: err}
		}
	}

	w, err := c.Data()
	if err != nil {
		return &sessionError{step: stepData, err: err}
	}
	if _, err := msg.WriteTo(w); err != nil {
		w.Close()
		return &sessionError{step: stepData, err: err}
	}
	if err := w.Close(); err != nil {
		return &sessionError{step: stepData, err: err}
	}

	// The server accepted the message once DATA completed; a failed QUIT
	// does not undo that.
	if err := c.Quit(); err != nil {
		slog.Debug("mailer: quit failed after delivery", "to", to, "err", err)
	}
	return nil
}

func (t *SMTPTransport) dial(ctx context.Context) (net.Conn, error) {
	addr := net.JoinHostPort(t.host, strconv.Itoa(t.port))
	d := &net.Dialer{Timeout: dialTimeout}
	if t.port == implicitTLSPort {
		td := &tls.Dialer{NetDialer: d, Config: t.clientTLS()}
		return td.DialContext(ctx, "tcp", addr)
	}
	return d.DialContext(ctx, "tcp", addr)
}

// secure greets the server, upgrades to TLS and authenticates. Both steps
// are mandatory.
func (t *SMTPTransport) secure(c *smtp.Client) error {
	if err := c.Hello("localhost"); err != nil {
		return &sessionError{step: stepHello, err: err}
	}

	if _, ok := c.TLSConnectionState(); !ok {
		if ok, _ := c.Extension("STARTTLS"); !ok {
			return &sessionError{step: stepStartTLS, err: errNoStartTLS}
		}
		if err := c.StartTLS(t.clientTLS()); err != nil {
			return &sessionError{step: stepStartTLS, err: err}
		}
	}

	if ok, _ := c.Extension("AUTH"); !ok {
		return &sessionError{step: stepAuth, err: errNoAuth}
	}
	// PlainAuth itself refuses to run over a connection without TLS.
	if err := c.Auth(smtp.PlainAuth("", t.username, t.password, t.host)); err != nil {
		return &sessionError{step: stepAuth, err: err}
	}
	return nil
}

func (t *SMTPTransport) clientTLS() *tls.Config {
	if t.tlsConfig != nil {
		return t.tlsConfig.Clone()
	}
	return &tls.Config{ServerName: t.host, MinVersion: tls.VersionTLS12}
}
