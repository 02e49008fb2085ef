package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
)

// CheckpointRepository is the durable string -> string cursor store both
// ingestion paths resume from. A checkpoint is only written after the work
// it covers has been committed.
type CheckpointRepository struct {
	db *sqlx.DB
}

// NewCheckpointRepository creates a new checkpoint repository
func NewCheckpointRepository(db *sqlx.DB) *CheckpointRepository {
	return &CheckpointRepository{db: db}
}

// Get returns the checkpoint value, or empty string if the key is absent
func (r *CheckpointRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.GetContext(ctx, &value, `SELECT value FROM checkpoints WHERE key = $1`, key)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get checkpoint %q: %w", key, err)
	}
	return value, nil
}

// Set upserts a checkpoint value
func (r *CheckpointRepository) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO checkpoints (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query, key, value, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set checkpoint %q: %w", key, err)
	}
	return nil
}

// GetInt64 returns the checkpoint as an integer, or zero if absent
func (r *CheckpointRepository) GetInt64(ctx context.Context, key string) (int64, error) {
	value, err := r.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if value == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("checkpoint %q is not an integer: %w", key, err)
	}
	return n, nil
}

// SetInt64 upserts an integer checkpoint
func (r *CheckpointRepository) SetInt64(ctx context.Context, key string, value int64) error {
	return r.Set(ctx, key, strconv.FormatInt(value, 10))
}

// All returns the full checkpoint map for the diagnostics surface
func (r *CheckpointRepository) All(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT key, value FROM checkpoints ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	checkpoints := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint row: %w", err)
		}
		checkpoints[key] = value
	}

	return checkpoints, rows.Err()
}
