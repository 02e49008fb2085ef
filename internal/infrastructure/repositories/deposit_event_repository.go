package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/vestra/chain_service/internal/domain/entities"
)

// DepositEventRepository persists observed on-chain transfer logs. The
// UNIQUE (tx_hash, log_index) constraint is the single dedup boundary for
// both ingestion paths.
type DepositEventRepository struct {
	db *sqlx.DB
}

// NewDepositEventRepository creates a new deposit event repository
func NewDepositEventRepository(db *sqlx.DB) *DepositEventRepository {
	return &DepositEventRepository{db: db}
}

// Upsert inserts an event, ignoring duplicates on (tx_hash, log_index).
// Returns true if a new row was inserted, false for a duplicate. Duplicates
// are the expected outcome of the two ingestion paths racing; they are
// never an error.
func (r *DepositEventRepository) Upsert(ctx context.Context, event *entities.ChainDepositEvent) (bool, error) {
	if err := event.Validate(); err != nil {
		return false, fmt.Errorf("validate event: %w", err)
	}

	query := `
		INSERT INTO chain_deposit_events (
			chain, token, user_id, address, amount,
			tx_hash, log_index, block_number, source, credited, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, false, $10)
		ON CONFLICT (tx_hash, log_index) DO NOTHING
		RETURNING id
	`

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	err := r.db.QueryRowxContext(ctx, query,
		event.Chain,
		event.Token,
		event.UserID,
		event.Address,
		event.Amount,
		event.TxHash,
		event.LogIndex,
		event.BlockNumber,
		event.Source,
		event.CreatedAt,
	).Scan(&event.ID)

	if err == sql.ErrNoRows {
		// Conflict: the other ingestion path got there first
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to upsert deposit event: %w", err)
	}

	return true, nil
}

// GetByDedupKey retrieves an event by its natural key
func (r *DepositEventRepository) GetByDedupKey(ctx context.Context, txHash string, logIndex int64) (*entities.ChainDepositEvent, error) {
	query := `
		SELECT id, chain, token, user_id, address, amount,
			   tx_hash, log_index, block_number, source, credited, credited_at, created_at
		FROM chain_deposit_events
		WHERE tx_hash = $1 AND log_index = $2
	`

	var event entities.ChainDepositEvent
	err := r.db.GetContext(ctx, &event, query, txHash, logIndex)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("deposit event not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get deposit event: %w", err)
	}

	return &event, nil
}

// ListCreditable returns uncredited, user-resolved events at or below the
// safe-to-block boundary and at or above the minimum deposit floor. Events
// above the boundary wait for confirmations; events below the floor stay
// recorded but are never credited.
func (r *DepositEventRepository) ListCreditable(ctx context.Context, chain string, safeToBlock int64, minAmount decimal.Decimal, limit int) ([]*entities.ChainDepositEvent, error) {
	query := `
		SELECT id, chain, token, user_id, address, amount,
			   tx_hash, log_index, block_number, source, credited, credited_at, created_at
		FROM chain_deposit_events
		WHERE chain = $1
		  AND credited = false
		  AND user_id IS NOT NULL
		  AND block_number <= $2
		  AND amount >= $3
		ORDER BY block_number, log_index
		LIMIT $4
	`

	var events []*entities.ChainDepositEvent
	err := r.db.SelectContext(ctx, &events, query, chain, safeToBlock, minAmount, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list creditable events: %w", err)
	}

	return events, nil
}

// SumCreditedByUser sums amounts over a user's credited events. Together
// with the deposit-kind ledger sum this is the tie-out check.
func (r *DepositEventRepository) SumCreditedByUser(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM chain_deposit_events
		WHERE user_id = $1 AND credited = true
	`

	var total decimal.Decimal
	err := r.db.GetContext(ctx, &total, query, userID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum credited events: %w", err)
	}

	return total, nil
}

// LockForCreditTx re-reads an event inside a transaction with a row lock.
// The crediting worker re-checks credited=false under this lock before any
// balance mutation, which keeps a second concurrent instance safe.
func (r *DepositEventRepository) LockForCreditTx(ctx context.Context, tx *sqlx.Tx, id int64) (*entities.ChainDepositEvent, error) {
	query := `
		SELECT id, chain, token, user_id, address, amount,
			   tx_hash, log_index, block_number, source, credited, credited_at, created_at
		FROM chain_deposit_events
		WHERE id = $1
		FOR UPDATE
	`

	var event entities.ChainDepositEvent
	err := tx.GetContext(ctx, &event, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("deposit event not found: %w", err)
		}
		return nil, fmt.Errorf("failed to lock deposit event: %w", err)
	}

	return &event, nil
}

// MarkCreditedTx flips credited false -> true inside the crediting
// transaction. The flip is monotonic and never reversed.
func (r *DepositEventRepository) MarkCreditedTx(ctx context.Context, tx *sqlx.Tx, id int64, creditedAt time.Time) error {
	query := `
		UPDATE chain_deposit_events
		SET credited = true, credited_at = $2
		WHERE id = $1 AND credited = false
	`

	res, err := tx.ExecContext(ctx, query, id, creditedAt)
	if err != nil {
		return fmt.Errorf("failed to mark event credited: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("event %d already credited", id)
	}

	return nil
}

// MaxBlockForAddress returns the highest observed block for an address, or
// zero if none has been observed
func (r *DepositEventRepository) MaxBlockForAddress(ctx context.Context, chain, address string) (int64, error) {
	query := `
		SELECT COALESCE(MAX(block_number), 0)
		FROM chain_deposit_events
		WHERE chain = $1 AND lower(address) = lower($2)
	`

	var maxBlock int64
	err := r.db.GetContext(ctx, &maxBlock, query, chain, address)
	if err != nil {
		return 0, fmt.Errorf("failed to get max block for address: %w", err)
	}

	return maxBlock, nil
}

// ListUnresolved returns events whose address never resolved to a user
func (r *DepositEventRepository) ListUnresolved(ctx context.Context, limit int) ([]*entities.ChainDepositEvent, error) {
	query := `
		SELECT id, chain, token, user_id, address, amount,
			   tx_hash, log_index, block_number, source, credited, credited_at, created_at
		FROM chain_deposit_events
		WHERE user_id IS NULL
		ORDER BY created_at
		LIMIT $1
	`

	var events []*entities.ChainDepositEvent
	err := r.db.SelectContext(ctx, &events, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unresolved events: %w", err)
	}

	return events, nil
}

// ResolveUser attaches a user id to previously unresolved events for an
// address. Used by the reconciliation sweep when an address row is
// provisioned after its transfer was observed.
func (r *DepositEventRepository) ResolveUser(ctx context.Context, chain, address string, userID uuid.UUID) (int64, error) {
	query := `
		UPDATE chain_deposit_events
		SET user_id = $3
		WHERE chain = $1 AND lower(address) = lower($2) AND user_id IS NULL
	`

	res, err := r.db.ExecContext(ctx, query, chain, address, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve events for address: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return n, nil
}

// EventFilter narrows diagnostic event listings
type EventFilter struct {
	UserID *uuid.UUID
	Search string // free-text match on address or tx hash
	Limit  int
	Offset int
}

// List returns events for the diagnostics surface
func (r *DepositEventRepository) List(ctx context.Context, filter EventFilter) ([]*entities.ChainDepositEvent, error) {
	query := `
		SELECT id, chain, token, user_id, address, amount,
			   tx_hash, log_index, block_number, source, credited, credited_at, created_at
		FROM chain_deposit_events
		WHERE ($1::uuid IS NULL OR user_id = $1)
		  AND ($2 = '' OR address ILIKE '%' || $2 || '%' OR tx_hash ILIKE '%' || $2 || '%')
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var events []*entities.ChainDepositEvent
	err := r.db.SelectContext(ctx, &events, query, filter.UserID, filter.Search, limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list deposit events: %w", err)
	}

	return events, nil
}

// EventCounts aggregates event totals for the diagnostics surface
type EventCounts struct {
	Total      int64 `json:"total" db:"total"`
	Credited   int64 `json:"credited" db:"credited"`
	Pending    int64 `json:"pending" db:"pending"`
	Unresolved int64 `json:"unresolved" db:"unresolved"`
}

// Counts returns aggregate event counts
func (r *DepositEventRepository) Counts(ctx context.Context) (*EventCounts, error) {
	query := `
		SELECT COUNT(*) AS total,
			   COUNT(*) FILTER (WHERE credited) AS credited,
			   COUNT(*) FILTER (WHERE NOT credited AND user_id IS NOT NULL) AS pending,
			   COUNT(*) FILTER (WHERE user_id IS NULL) AS unresolved
		FROM chain_deposit_events
	`

	var counts EventCounts
	err := r.db.GetContext(ctx, &counts, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count deposit events: %w", err)
	}

	return &counts, nil
}
