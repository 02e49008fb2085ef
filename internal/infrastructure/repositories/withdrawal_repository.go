package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/vestra/chain_service/internal/domain/entities"
)

// WithdrawalRepository handles withdrawal request persistence
type WithdrawalRepository struct {
	db *sqlx.DB
}

// NewWithdrawalRepository creates a new withdrawal repository
func NewWithdrawalRepository(db *sqlx.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

// Create creates a new withdrawal request in pending state
func (r *WithdrawalRepository) Create(ctx context.Context, withdrawal *entities.WithdrawalRequest) error {
	return r.create(ctx, r.db, withdrawal)
}

// CreateTx is Create inside a caller-owned transaction
func (r *WithdrawalRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, withdrawal *entities.WithdrawalRequest) error {
	return r.create(ctx, tx, withdrawal)
}

func (r *WithdrawalRepository) create(ctx context.Context, execer sqlx.ExecerContext, withdrawal *entities.WithdrawalRequest) error {
	if err := withdrawal.Validate(); err != nil {
		return fmt.Errorf("validate withdrawal: %w", err)
	}

	query := `
		INSERT INTO withdrawal_requests (
			id, user_id, chain, token, address, amount, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	now := time.Now()
	withdrawal.CreatedAt = now
	withdrawal.UpdatedAt = now

	_, err := execer.ExecContext(ctx, query,
		withdrawal.ID,
		withdrawal.UserID,
		withdrawal.Chain,
		withdrawal.Token,
		withdrawal.Address,
		withdrawal.Amount,
		withdrawal.Status,
		withdrawal.CreatedAt,
		withdrawal.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create withdrawal request: %w", err)
	}

	return nil
}

// GetByID retrieves a withdrawal request by ID
func (r *WithdrawalRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.WithdrawalRequest, error) {
	query := `
		SELECT id, user_id, chain, token, address, amount, status,
			   tx_hash, admin_note, created_at, updated_at, completed_at
		FROM withdrawal_requests
		WHERE id = $1
	`

	var withdrawal entities.WithdrawalRequest
	err := r.db.GetContext(ctx, &withdrawal, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("withdrawal request not found")
		}
		return nil, fmt.Errorf("failed to get withdrawal request: %w", err)
	}

	return &withdrawal, nil
}

// ListByStatus retrieves withdrawal requests in a given status, oldest first
func (r *WithdrawalRepository) ListByStatus(ctx context.Context, status entities.WithdrawalStatus, limit int) ([]*entities.WithdrawalRequest, error) {
	query := `
		SELECT id, user_id, chain, token, address, amount, status,
			   tx_hash, admin_note, created_at, updated_at, completed_at
		FROM withdrawal_requests
		WHERE status = $1
		ORDER BY created_at
		LIMIT $2
	`

	var withdrawals []*entities.WithdrawalRequest
	err := r.db.SelectContext(ctx, &withdrawals, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list withdrawal requests: %w", err)
	}

	return withdrawals, nil
}

// ListStalledProcessing returns processing requests whose transfer was
// already submitted. These are orphans of an earlier process: the worker
// resumes confirmation polling for them on startup instead of leaving
// them stuck.
func (r *WithdrawalRepository) ListStalledProcessing(ctx context.Context) ([]*entities.WithdrawalRequest, error) {
	query := `
		SELECT id, user_id, chain, token, address, amount, status,
			   tx_hash, admin_note, created_at, updated_at, completed_at
		FROM withdrawal_requests
		WHERE status = $1 AND tx_hash IS NOT NULL
		ORDER BY created_at
	`

	var withdrawals []*entities.WithdrawalRequest
	err := r.db.SelectContext(ctx, &withdrawals, query, entities.WithdrawalStatusProcessing)
	if err != nil {
		return nil, fmt.Errorf("failed to list stalled withdrawals: %w", err)
	}

	return withdrawals, nil
}

// ClaimNextApproved atomically moves the oldest approved request to
// processing and returns it. SKIP LOCKED keeps two worker instances from
// claiming the same request. Returns nil when nothing is approved.
func (r *WithdrawalRepository) ClaimNextApproved(ctx context.Context) (*entities.WithdrawalRequest, error) {
	query := `
		UPDATE withdrawal_requests
		SET status = $1, updated_at = $2
		WHERE id = (
			SELECT id FROM withdrawal_requests
			WHERE status = $3
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, user_id, chain, token, address, amount, status,
				  tx_hash, admin_note, created_at, updated_at, completed_at
	`

	var withdrawal entities.WithdrawalRequest
	err := r.db.GetContext(ctx, &withdrawal, query,
		entities.WithdrawalStatusProcessing,
		time.Now(),
		entities.WithdrawalStatusApproved,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim approved withdrawal: %w", err)
	}

	return &withdrawal, nil
}

// UpdateStatus transitions a request after validating the state machine
func (r *WithdrawalRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to entities.WithdrawalStatus) error {
	return r.updateStatus(ctx, r.db, id, from, to)
}

// UpdateStatusTx is UpdateStatus inside a caller-owned transaction
func (r *WithdrawalRepository) UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, from, to entities.WithdrawalStatus) error {
	return r.updateStatus(ctx, tx, id, from, to)
}

func (r *WithdrawalRepository) updateStatus(ctx context.Context, execer sqlx.ExecerContext, id uuid.UUID, from, to entities.WithdrawalStatus) error {
	if err := from.ValidateTransition(to); err != nil {
		return err
	}

	query := `
		UPDATE withdrawal_requests
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`

	res, err := execer.ExecContext(ctx, query, to, time.Now(), id, from)
	if err != nil {
		return fmt.Errorf("failed to update withdrawal status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("withdrawal %s is no longer in status %s", id, from)
	}

	return nil
}

// SetAdminNoteTx records the admin's note inside a caller-owned transaction
func (r *WithdrawalRepository) SetAdminNoteTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, note string) error {
	query := `
		UPDATE withdrawal_requests
		SET admin_note = $1, updated_at = $2
		WHERE id = $3
	`

	_, err := tx.ExecContext(ctx, query, note, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set admin note: %w", err)
	}

	return nil
}

// SetTxHash records the submitted on-chain transaction hash
func (r *WithdrawalRepository) SetTxHash(ctx context.Context, id uuid.UUID, txHash string) error {
	query := `
		UPDATE withdrawal_requests
		SET tx_hash = $1, updated_at = $2
		WHERE id = $3
	`

	_, err := r.db.ExecContext(ctx, query, txHash, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set withdrawal tx hash: %w", err)
	}

	return nil
}

// MarkCompleted moves a processing request to its terminal completed state
func (r *WithdrawalRepository) MarkCompleted(ctx context.Context, id uuid.UUID, txHash string) error {
	query := `
		UPDATE withdrawal_requests
		SET status = $1, tx_hash = $2, completed_at = $3, updated_at = $3
		WHERE id = $4 AND status = $5
	`

	now := time.Now()
	res, err := r.db.ExecContext(ctx, query,
		entities.WithdrawalStatusApprovedCompleted, txHash, now, id,
		entities.WithdrawalStatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("failed to complete withdrawal: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("withdrawal %s is not processing", id)
	}

	return nil
}

// MarkFailed moves a processing request to failed with the error recorded.
// The balance is not re-credited automatically; a human reconciles.
func (r *WithdrawalRepository) MarkFailed(ctx context.Context, id uuid.UUID, adminNote string) error {
	query := `
		UPDATE withdrawal_requests
		SET status = $1, admin_note = $2, updated_at = $3
		WHERE id = $4 AND status = $5
	`

	res, err := r.db.ExecContext(ctx, query,
		entities.WithdrawalStatusFailed, adminNote, time.Now(), id,
		entities.WithdrawalStatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("failed to fail withdrawal: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("withdrawal %s is not processing", id)
	}

	return nil
}
