package dispatch

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/facturas/internal/mailer"
)

// Ledger status values as written to the CSV ledger.
const (
	StatusSuccess = "exitoso"
	StatusFailure = "fallido"
)

// Record is the outcome of one delivery attempt within a run.
type Record struct {
	RunID  uuid.UUID
	Item   Item
	Result mailer.Result
	At     time.Time
}

func (r Record) Status() string {
	if r.Result.OK() {
		return StatusSuccess
	}
	return StatusFailure
}

// Ledger is an append-only sink for delivery records.
type Ledger interface {
	Append(ctx context.Context, rec Record) error
}

// CSVLedger appends attachmentPath,recipient,status rows to a file opened in
// append mode, so history from earlier runs is kept.
type CSVLedger struct {
	f *os.File
	w *csv.Writer
}

func OpenCSVLedger(path string) (*CSVLedger, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return &CSVLedger{f: f, w: csv.NewWriter(f)}, nil
}

// Append writes and flushes one row. It is not safe for concurrent use.
func (l *CSVLedger) Append(_ context.Context, rec Record) error {
	if err := l.w.Write([]string{rec.Item.AttachmentPath, rec.Item.Recipient, rec.Status()}); err != nil {
		return fmt.Errorf("append ledger: %w", err)
	}
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		return fmt.Errorf("append ledger: %w", err)
	}
	return nil
}

// Close syncs the file to disk and closes it.
func (l *CSVLedger) Close() error {
	if err := l.f.Sync(); err != nil {
		l.f.Close()
		return err
	}
	return l.f.Close()
}
