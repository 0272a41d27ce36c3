package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facturas/internal/dispatch"
	"github.com/facturas/internal/mailer"
)

// Set LEDGER_TEST_DATABASE_URL to a disposable database to run these tests.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv("LEDGER_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("LEDGER_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, pool.Ping(ctx))
	_, err = Migrate(ctx, pool)
	require.NoError(t, err)
	return pool
}

func TestMigrateIsIdempotent(t *testing.T) {
	pool := testPool(t)

	applied, err := Migrate(context.Background(), pool)
	require.NoError(t, err)
	assert.Empty(t, applied, "second run applies nothing")
}

func TestLedgerStoreAppend(t *testing.T) {
	pool := testPool(t)
	s := NewLedgerStore(pool)
	ctx := context.Background()
	runID := uuid.New()

	ok := dispatch.Record{
		RunID:  runID,
		Item:   dispatch.Item{Index: 0, AttachmentPath: "inv1.pdf", Recipient: "a@b.com"},
		Result: mailer.Result{To: "a@b.com"},
		At:     time.Now().UTC(),
	}
	bad := dispatch.Record{
		RunID:  runID,
		Item:   dispatch.Item{Index: 1, AttachmentPath: "inv2.pdf", Recipient: "bad@@"},
		Result: mailer.Result{To: "bad@@", Kind: mailer.KindInvalidAddress, Err: errors.New("invalid")},
		At:     time.Now().UTC(),
	}

	require.NoError(t, s.Append(ctx, ok))
	require.NoError(t, s.Append(ctx, bad))
	require.NoError(t, s.Append(ctx, bad), "duplicate records are ignored")

	succeeded, failed, err := s.RunCounts(ctx, runID.String())
	require.NoError(t, err)
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, failed)
}
