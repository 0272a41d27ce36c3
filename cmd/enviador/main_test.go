package main

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// listen points SMTP_HOST and SMTP_PORT at a local listener and returns a
// function reporting whether anything connected to it.
func listen(t *testing.T) func() bool {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	addr := ln.Addr().(*net.TCPAddr)
	t.Setenv("SMTP_HOST", "127.0.0.1")
	t.Setenv("SMTP_PORT", strconv.Itoa(addr.Port))

	return func() bool {
		tl := ln.(*net.TCPListener)
		require.NoError(t, tl.SetDeadline(time.Now().Add(200*time.Millisecond)))
		conn, err := tl.Accept()
		if err != nil {
			var ne net.Error
			require.True(t, errors.As(err, &ne) && ne.Timeout(), "unexpected accept error: %v", err)
			return false
		}
		conn.Close()
		return true
	}
}

func setCredentials(t *testing.T, user, pass string) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("EMAIL_USER", user)
	t.Setenv("EMAIL_PASS", pass)
	t.Setenv("LOG_LEVEL", "error")
}

func TestMissingCredentialsExitsWithoutConnecting(t *testing.T) {
	setCredentials(t, "", "")
	connected := listen(t)

	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), []string{"x@y.com", "s", "b"}, &stdout, &stderr)

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "EMAIL_USER")
	assert.Contains(t, stderr.String(), "EMAIL_PASS")
	assert.False(t, connected(), "no SMTP connection is attempted")
}

func TestMalformedInvocation(t *testing.T) {
	setCredentials(t, "sender@example.com", "secret")
	connected := listen(t)

	tests := []struct {
		name string
		args []string
	}{
		{"no arguments", nil},
		{"email only", []string{"x@y.com"}},
		{"missing body", []string{"x@y.com", "subject"}},
		{"too many", []string{"x@y.com", "s", "b", "a.pdf", "extra"}},
		{"batch with extra arguments", []string{"lista.csv", "x", "y"}},
		{"batch file uppercase with extra", []string{"LISTA.CSV", "asunto"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := execute(context.Background(), tt.args, &stdout, &stderr)
			assert.Equal(t, 1, code)
			assert.Contains(t, stderr.String(), "Error:")
		})
	}
	assert.False(t, connected())
}

func TestMissingBatchFile(t *testing.T) {
	setCredentials(t, "sender@example.com", "secret")
	connected := listen(t)

	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), []string{"no_such_batch.csv"}, &stdout, &stderr)

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "no_such_batch.csv")
	assert.False(t, connected())
}

func TestInvalidRecipientFailsSingleSend(t *testing.T) {
	setCredentials(t, "sender@example.com", "secret")
	connected := listen(t)

	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), []string{"not-an-address", "s", "b"}, &stdout, &stderr)

	assert.Equal(t, 1, code)
	assert.False(t, connected(), "invalid recipients never reach the server")
}

func TestEmptyBatchSucceeds(t *testing.T) {
	setCredentials(t, "sender@example.com", "secret")
	connected := listen(t)

	path := filepath.Join(t.TempDir(), "lote.csv")
	require.NoError(t, os.WriteFile(path, []byte("email,asunto,mensaje,adjunto\n"), 0o644))

	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), []string{path}, &stdout, &stderr)

	assert.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "0 sent, 0 failed, 0 skipped")
	assert.False(t, connected())
}

func TestBatchModeRejectsExtraArguments(t *testing.T) {
	setCredentials(t, "sender@example.com", "secret")
	connected := listen(t)

	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), []string{"lista.csv", "x@y.com", "cuerpo"}, &stdout, &stderr)

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "usage: enviador")
	assert.NotContains(t, stderr.String(), "invalid recipient", "not treated as a single send")
	assert.False(t, connected())
}
