package dispatch

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

var (
	// ErrQueueNotFound indicates the queue file does not exist.
	ErrQueueNotFound = errors.New("queue file not found")

	// ErrMalformedQueue indicates a queue row without exactly two fields.
	ErrMalformedQueue = errors.New("malformed queue row")
)

// Item is one pending invoice delivery. Index is the row position in the
// queue file when it was read and identifies the item for the whole run.
type Item struct {
	Index          int
	AttachmentPath string
	Recipient      string
}

// ReadQueue parses a headerless attachmentPath,recipient file. A missing
// file or a malformed row fails the whole read.
func ReadQueue(path string) ([]Item, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrQueueNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("open queue: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var items []Item
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read queue: %w", err)
		}
		if len(row) != 2 {
			line, _ := r.FieldPos(0)
			return nil, fmt.Errorf("%w: line %d has %d fields", ErrMalformedQueue, line, len(row))
		}
		items = append(items, Item{
			Index:          len(items),
			AttachmentPath: row[0],
			Recipient:      row[1],
		})
	}
	return items, nil
}

// WriteQueue replaces the queue file with items. The new content goes to a
// temporary file in the same directory which is synced and renamed over
// path, so readers see either the old queue or the new one.
func WriteQueue(path string, items []Item) (err error) {
	mode := os.FileMode(0o644)
	if fi, statErr := os.Stat(path); statErr == nil {
		mode = fi.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp queue: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	w := csv.NewWriter(tmp)
	for _, it := range items {
		if err := w.Write([]string{it.AttachmentPath, it.Recipient}); err != nil {
			return fmt.Errorf("write temp queue: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write temp queue: %w", err)
	}

	if err := tmp.Chmod(mode); err != nil {
		return fmt.Errorf("chmod temp queue: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp queue: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp queue: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace queue: %w", err)
	}
	return nil
}
