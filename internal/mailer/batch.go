package mailer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

const defaultBatchSubject = "Factura"

// BatchRecord is one row of a batch file.
type BatchRecord struct {
	Line       int
	Email      string
	Subject    string
	Body       string
	Attachment string
}

type BatchResult struct {
	Succeeded int
	Failed    int
	// Skipped counts rows without an email; they are neither sent nor failed.
	Skipped int
}

func (r BatchResult) Total() int { return r.Succeeded + r.Failed }

// ReadBatch parses a comma-delimited batch file with the header
// email,asunto,mensaje,adjunto. Columns may appear in any order; asunto,
// mensaje and adjunto may be absent. Values are trimmed.
func ReadBatch(path string) ([]BatchRecord, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("open batch file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read batch header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}

	field := func(row []string, name string) (string, bool) {
		i, ok := cols[name]
		if !ok {
			return "", false
		}
		if i >= len(row) {
			return "", true
		}
		return strings.TrimSpace(row[i]), true
	}

	var records []BatchRecord
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read batch file: %w", err)
		}
		line, _ := r.FieldPos(0)

		rec := BatchRecord{Line: line}
		rec.Email, _ = field(row, "email")
		rec.Body, _ = field(row, "mensaje")
		rec.Attachment, _ = field(row, "adjunto")
		if subject, ok := field(row, "asunto"); ok {
			rec.Subject = subject
		} else {
			rec.Subject = defaultBatchSubject
		}
		records = append(records, rec)
	}
	return records, nil
}

// SendBatch sends every row of the batch file at path, one SMTP session per
// message. Per-row failures are counted and logged; only an unreadable batch
// file returns an error.
func (m *Mailer) SendBatch(ctx context.Context, path string) (BatchResult, error) {
	records, err := ReadBatch(path)
	if err != nil {
		return BatchResult{}, err
	}

	var (
		mu     sync.Mutex
		result BatchResult
	)

	g := &errgroup.Group{}
	g.SetLimit(m.cfg.Workers)

	for _, rec := range records {
		if ctx.Err() != nil {
			slog.Warn("mailer: batch interrupted", "line", rec.Line)
			break
		}
		if rec.Email == "" {
			slog.Warn("mailer: row without email, skipping", "line", rec.Line)
			mu.Lock()
			result.Skipped++
			mu.Unlock()
			continue
		}

		g.Go(func() error {
			res := m.SendOne(ctx, rec.Email, rec.Subject, rec.Body, rec.Attachment)

			mu.Lock()
			defer mu.Unlock()
			if res.OK() {
				result.Succeeded++
			} else {
				result.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	slog.Info("mailer: batch complete",
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"total", result.Total(),
	)
	return result, nil
}
