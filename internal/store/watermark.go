// Package store persists the sync engine's output: the watermark row, the
// deduplicated batched writes of a run, and the derived reporting tables.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// WatermarkStore reads and writes the single-row binlog_sync_timestamp table
type WatermarkStore struct {
	db *sqlx.DB
}

// NewWatermarkStore creates a watermark store on the OLTP pool
func NewWatermarkStore(db *sqlx.DB) *WatermarkStore {
	return &WatermarkStore{db: db}
}

// Get returns the last-synced timestamp in epoch ms, or 0 when the row has
// never been written.
func (w *WatermarkStore) Get(ctx context.Context) (int64, error) {
	var ts int64
	err := w.db.GetContext(ctx, &ts, `SELECT timestamp FROM binlog_sync_timestamp LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read watermark: %w", err)
	}
	return ts, nil
}

// Save writes the timestamp unconditionally. Callers advance the watermark
// only after the main transaction committed under the run's lock.
func (w *WatermarkStore) Save(ctx context.Context, ts int64) error {
	res, err := w.db.ExecContext(ctx, `UPDATE binlog_sync_timestamp SET timestamp = ?`, ts)
	if err != nil {
		return fmt.Errorf("save watermark: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save watermark: %w", err)
	}
	if n == 0 {
		// MySQL reports zero affected rows for a no-op update, so probe
		// before inserting the initial row.
		var count int
		if err := w.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM binlog_sync_timestamp`); err != nil {
			return fmt.Errorf("probe watermark: %w", err)
		}
		if count == 0 {
			if _, err := w.db.ExecContext(ctx, `INSERT INTO binlog_sync_timestamp (timestamp) VALUES (?)`, ts); err != nil {
				return fmt.Errorf("insert watermark: %w", err)
			}
		}
	}
	return nil
}
