package mailer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-gomail/gomail"
)

const (
	ContentTypePDF   = "application/pdf"
	ContentTypeOctet = "application/octet-stream"
)

// Message is a plain-text email with at most one attachment.
type Message struct {
	To         string
	Subject    string
	Body       string
	Attachment *Attachment
}

// Attachment is a file already read into memory.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// LoadAttachment reads the file at path. The attachment is named after the
// file's base name. Read failures are wrapped with ErrAttachment.
func LoadAttachment(path, contentType string) (*Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAttachment, err)
	}
	return &Attachment{
		Filename:    filepath.Base(path),
		ContentType: contentType,
		Data:        data,
	}, nil
}

// loadOptionalAttachment is LoadAttachment for callers that drop missing
// files instead of failing. It returns nil, nil when path is empty or the
// file does not exist.
func loadOptionalAttachment(path string) (*Attachment, error) {
	if path == "" {
		return nil, nil
	}
	att, err := LoadAttachment(path, ContentTypeOctet)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return att, err
}

// compose builds the MIME message: a text/plain part, plus a base64
// attachment part with Content-Disposition: attachment when present.
func (m *Mailer) compose(msg Message) *gomail.Message {
	g := gomail.NewMessage()
	g.SetAddressHeader("From", m.cfg.FromAddress, m.cfg.FromName)
	g.SetHeader("To", msg.To)
	g.SetHeader("Subject", msg.Subject)
	g.SetBody("text/plain", msg.Body)

	if att := msg.Attachment; att != nil {
		data := att.Data
		contentType := att.ContentType
		if contentType == "" {
			contentType = ContentTypeOctet
		}
		g.Attach(att.Filename,
			gomail.SetHeader(map[string][]string{
				"Content-Type": {fmt.Sprintf("%s; name=%q", contentType, att.Filename)},
			}),
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(data)
				return err
			}),
		)
	}
	return g
}
