package store

import (
	"context"
	"database/sql"
)

const keyLastRun = "last_run_id"

// SetMetadata upserts a key-value pair in the quizen_metadata table.
func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO quizen_metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM quizen_metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetLastRun records the most recently started run.
func (s *Store) SetLastRun(ctx context.Context, runID string) error {
	return s.SetMetadata(ctx, keyLastRun, runID)
}

// LastRun returns the most recently started run id, or "".
func (s *Store) LastRun(ctx context.Context) (string, error) {
	return s.GetMetadata(ctx, keyLastRun)
}
