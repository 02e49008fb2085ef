package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/vestra/chain_service/internal/domain/entities"
	domainerrors "github.com/vestra/chain_service/internal/domain/errors"
)

// BalanceRepository handles wallet balances and their ledger transaction
// audit trail. Balance mutations from chain events happen only inside the
// crediting transaction, through the Tx-scoped methods.
type BalanceRepository struct {
	db *sqlx.DB
}

// NewBalanceRepository creates a new balance repository
func NewBalanceRepository(db *sqlx.DB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

// GetBalance retrieves the wallet balance for a user and token. A missing
// row reads as zero.
func (r *BalanceRepository) GetBalance(ctx context.Context, userID uuid.UUID, token string) (*entities.WalletBalance, error) {
	query := `
		SELECT user_id, token, balance, updated_at
		FROM wallet_balances
		WHERE user_id = $1 AND token = $2
	`

	var balance entities.WalletBalance
	err := r.db.GetContext(ctx, &balance, query, userID, token)
	if err == sql.ErrNoRows {
		return &entities.WalletBalance{
			UserID:  userID,
			Token:   token,
			Balance: decimal.Zero,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet balance: %w", err)
	}

	return &balance, nil
}

// IncrementBalanceTx adds amount to a user's balance inside a transaction,
// creating the balance row if it does not exist yet
func (r *BalanceRepository) IncrementBalanceTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, token string, amount decimal.Decimal) error {
	query := `
		INSERT INTO wallet_balances (user_id, token, balance, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, token)
		DO UPDATE SET balance = wallet_balances.balance + EXCLUDED.balance,
					  updated_at = EXCLUDED.updated_at
	`

	_, err := tx.ExecContext(ctx, query, userID, token, amount, time.Now())
	if err != nil {
		return fmt.Errorf("failed to increment balance: %w", err)
	}

	return nil
}

// DecrementBalanceTx subtracts amount from a user's balance inside a
// transaction. Fails if the balance would go negative.
func (r *BalanceRepository) DecrementBalanceTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, token string, amount decimal.Decimal) error {
	query := `
		UPDATE wallet_balances
		SET balance = balance - $3, updated_at = $4
		WHERE user_id = $1 AND token = $2 AND balance >= $3
	`

	res, err := tx.ExecContext(ctx, query, userID, token, amount, time.Now())
	if err != nil {
		return fmt.Errorf("failed to decrement balance: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("insufficient balance for user %s", userID)
	}

	return nil
}

// InsertTransactionTx inserts a ledger transaction inside a transaction.
// A unique violation on idempotency_key means the transaction was already
// recorded; that maps to CreditingConflictError so callers can treat it as
// already done.
func (r *BalanceRepository) InsertTransactionTx(ctx context.Context, tx *sqlx.Tx, txn *entities.LedgerTransaction) error {
	if err := txn.Validate(); err != nil {
		return fmt.Errorf("validate transaction: %w", err)
	}

	query := `
		INSERT INTO ledger_transactions (
			id, user_id, kind, token, amount, idempotency_key, description, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now()
	}

	_, err := tx.ExecContext(ctx, query,
		txn.ID,
		txn.UserID,
		txn.Kind,
		txn.Token,
		txn.Amount,
		txn.IdempotencyKey,
		txn.Description,
		txn.CreatedAt,
	)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return domainerrors.CreditingConflictError
		}
		return fmt.Errorf("failed to insert ledger transaction: %w", err)
	}

	return nil
}

// SumTransactionsByKind sums a user's ledger transactions of a given kind.
// Used by the ledger tie-out check: deposit-kind sums must equal the sum of
// amounts over credited events.
func (r *BalanceRepository) SumTransactionsByKind(ctx context.Context, userID uuid.UUID, kind entities.TransactionKind) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM ledger_transactions
		WHERE user_id = $1 AND kind = $2
	`

	var total decimal.Decimal
	err := r.db.GetContext(ctx, &total, query, userID, kind)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum ledger transactions: %w", err)
	}

	return total, nil
}

// ListTransactions returns a user's ledger transactions, newest first
func (r *BalanceRepository) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entities.LedgerTransaction, error) {
	query := `
		SELECT id, user_id, kind, token, amount, idempotency_key, description, created_at
		FROM ledger_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	if limit <= 0 {
		limit = 100
	}

	var txns []*entities.LedgerTransaction
	err := r.db.SelectContext(ctx, &txns, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger transactions: %w", err)
	}

	return txns, nil
}
