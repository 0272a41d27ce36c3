package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/facturas/internal/dispatch"
)

var _ dispatch.Ledger = (*LedgerStore)(nil)

// LedgerStore mirrors delivery records into PostgreSQL.
type LedgerStore struct {
	db *pgxpool.Pool
}

func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{db: pool}
}

// Append implements dispatch.Ledger. A record is stored at most once per
// run and item.
func (s *LedgerStore) Append(ctx context.Context, rec dispatch.Record) error {
	var errText string
	if rec.Result.Err != nil {
		errText = rec.Result.Err.Error()
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO delivery_ledger
			(run_id, item_index, attachment_path, recipient, status, failure_kind, error, attempted_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_id, item_index) DO NOTHING`,
		rec.RunID.String(),
		rec.Item.Index,
		rec.Item.AttachmentPath,
		rec.Item.Recipient,
		rec.Status(),
		string(rec.Result.Kind),
		errText,
		rec.At,
	)
	if err != nil {
		return fmt.Errorf("insert ledger record: %w", err)
	}
	return nil
}

// RunCounts returns how many records of a run succeeded and failed.
func (s *LedgerStore) RunCounts(ctx context.Context, runID string) (succeeded, failed int, err error) {
	err = s.db.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'exitoso'),
			COUNT(*) FILTER (WHERE status = 'fallido')
		FROM delivery_ledger
		WHERE run_id = $1::uuid`,
		runID,
	).Scan(&succeeded, &failed)
	return succeeded, failed, err
}
