package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/vestra/chain_service/internal/domain/entities"
)

// ScanLogRepository persists the append-only scan diagnostic trail. Rows
// are never mutated or deleted.
type ScanLogRepository struct {
	db *sqlx.DB
}

// NewScanLogRepository creates a new scan log repository
func NewScanLogRepository(db *sqlx.DB) *ScanLogRepository {
	return &ScanLogRepository{db: db}
}

// Create appends one scan log row
func (r *ScanLogRepository) Create(ctx context.Context, log *entities.ScanLog) error {
	if !log.Status.IsValid() {
		return fmt.Errorf("invalid scan status: %s", log.Status)
	}

	query := `
		INSERT INTO scan_logs (
			user_id, address, status, reason,
			latest_block, confirmations, safe_to_block,
			cursor_before, cursor_after, from_block, to_block,
			rounds, logs_found, credited_events, duration_ms,
			error_code, error_message, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
		) RETURNING id
	`

	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}

	err := r.db.QueryRowxContext(ctx, query,
		log.UserID,
		log.Address,
		log.Status,
		log.Reason,
		log.LatestBlock,
		log.Confirmations,
		log.SafeToBlock,
		log.CursorBefore,
		log.CursorAfter,
		log.FromBlock,
		log.ToBlock,
		log.Rounds,
		log.LogsFound,
		log.CreditedEvents,
		log.DurationMs,
		log.ErrorCode,
		log.ErrorMessage,
		log.CreatedAt,
	).Scan(&log.ID)

	if err != nil {
		return fmt.Errorf("failed to create scan log: %w", err)
	}

	return nil
}

// ScanLogFilter narrows diagnostic scan log listings
type ScanLogFilter struct {
	UserID *uuid.UUID
	Search string // free-text match on address
	Status string
	Limit  int
	Offset int
}

// List returns scan logs for the diagnostics surface, newest first
func (r *ScanLogRepository) List(ctx context.Context, filter ScanLogFilter) ([]*entities.ScanLog, error) {
	query := `
		SELECT id, user_id, address, status, reason,
			   latest_block, confirmations, safe_to_block,
			   cursor_before, cursor_after, from_block, to_block,
			   rounds, logs_found, credited_events, duration_ms,
			   error_code, error_message, created_at
		FROM scan_logs
		WHERE ($1::uuid IS NULL OR user_id = $1)
		  AND ($2 = '' OR address ILIKE '%' || $2 || '%')
		  AND ($3 = '' OR status = $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5
	`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var logs []*entities.ScanLog
	err := r.db.SelectContext(ctx, &logs, query, filter.UserID, filter.Search, filter.Status, limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list scan logs: %w", err)
	}

	return logs, nil
}
