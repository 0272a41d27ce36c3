package mailer

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"syscall"
)

var (
	// ErrInvalidAddress indicates the recipient failed syntactic validation.
	ErrInvalidAddress = errors.New("invalid recipient address")

	// ErrAttachment indicates the attachment file could not be read.
	ErrAttachment = errors.New("attachment unreadable")

	// ErrAuth indicates the SMTP server rejected the credentials.
	ErrAuth = errors.New("smtp authentication failed")

	// ErrRecipientRefused indicates the SMTP server refused the recipient.
	ErrRecipientRefused = errors.New("recipient refused")

	// ErrDisconnected indicates the SMTP server closed the session early.
	ErrDisconnected = errors.New("smtp server disconnected")

	// ErrTransport covers every other SMTP or network failure.
	ErrTransport = errors.New("smtp transport error")

	// ErrBatchNotFound indicates the batch file does not exist.
	ErrBatchNotFound = errors.New("batch file not found")
)

// Kind names the reason a delivery attempt failed.
type Kind string

const (
	KindNone             Kind = ""
	KindInvalidAddress   Kind = "invalid_address"
	KindAttachment       Kind = "attachment"
	KindAuth             Kind = "auth"
	KindRecipientRefused Kind = "recipient_refused"
	KindDisconnected     Kind = "disconnected"
	KindTransport        Kind = "transport"
)

// KindOf maps an error produced by this package to its Kind.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidAddress):
		return KindInvalidAddress
	case errors.Is(err, ErrAttachment):
		return KindAttachment
	case errors.Is(err, ErrAuth):
		return KindAuth
	case errors.Is(err, ErrRecipientRefused):
		return KindRecipientRefused
	case errors.Is(err, ErrDisconnected):
		return KindDisconnected
	default:
		return KindTransport
	}
}

// step names the SMTP command a session failed on.
type step string

const (
	stepDial     step = "dial"
	stepHello    step = "ehlo"
	stepStartTLS step = "starttls"
	stepAuth     step = "auth"
	stepMail     step = "mail"
	stepRcpt     step = "rcpt"
	stepData     step = "data"
)

var (
	errNoStartTLS = errors.New("server does not offer STARTTLS")
	errNoAuth     = errors.New("server does not offer AUTH")
)

// sessionError records which command of the SMTP session failed. The same
// reply code means different things at AUTH, MAIL and RCPT.
type sessionError struct {
	step step
	err  error
}

func (e *sessionError) Error() string { return fmt.Sprintf("smtp %s: %v", e.step, e.err) }
func (e *sessionError) Unwrap() error { return e.err }

// Classify wraps a raw transport error with the sentinel for its failure
// class. Errors that already carry a sentinel are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindTransport || errors.Is(err, ErrTransport) {
		return err
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return fmt.Errorf("%w: %w", ErrDisconnected, err)
	}

	var se *sessionError
	errors.As(err, &se)

	var tpErr *textproto.Error
	isReply := errors.As(err, &tpErr)

	switch {
	case isReply && tpErr.Code == 421:
		return fmt.Errorf("%w: %w", ErrDisconnected, err)
	case se != nil && se.step == stepAuth:
		return fmt.Errorf("%w: %w", ErrAuth, err)
	case isReply && (tpErr.Code == 530 || tpErr.Code == 534 || tpErr.Code == 535 || tpErr.Code == 538):
		return fmt.Errorf("%w: %w", ErrAuth, err)
	case isReply && se != nil && se.step == stepRcpt:
		return fmt.Errorf("%w: %w", ErrRecipientRefused, err)
	}

	return fmt.Errorf("%w: %w", ErrTransport, err)
}
