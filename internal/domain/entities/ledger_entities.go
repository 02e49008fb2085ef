package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionKind represents the kind of ledger transaction
type TransactionKind string

const (
	TransactionKindDeposit    TransactionKind = "deposit"
	TransactionKindWithdrawal TransactionKind = "withdrawal"
)

// Validate checks if the transaction kind is valid
func (k TransactionKind) Validate() error {
	switch k {
	case TransactionKindDeposit, TransactionKindWithdrawal:
		return nil
	default:
		return fmt.Errorf("invalid transaction kind: %s", k)
	}
}

// WalletBalance is the spendable balance for a user, updated only by the
// crediting worker (deposits) and the withdrawal approval flow (debits).
type WalletBalance struct {
	UserID    uuid.UUID       `json:"user_id" db:"user_id"`
	Token     string          `json:"token" db:"token"`
	Balance   decimal.Decimal `json:"balance" db:"balance"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// LedgerTransaction is the audit trail behind every balance mutation. A
// deposit-kind transaction exists exactly once per credited chain event,
// linked by the txHash:logIndex idempotency key.
type LedgerTransaction struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	UserID         uuid.UUID       `json:"user_id" db:"user_id"`
	Kind           TransactionKind `json:"kind" db:"kind"`
	Token          string          `json:"token" db:"token"`
	Amount         decimal.Decimal `json:"amount" db:"amount"`
	IdempotencyKey string          `json:"idempotency_key" db:"idempotency_key"`
	Description    string          `json:"description,omitempty" db:"description"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// Validate validates the ledger transaction
func (t *LedgerTransaction) Validate() error {
	if t.ID == uuid.Nil {
		return fmt.Errorf("transaction ID is required")
	}
	if t.UserID == uuid.Nil {
		return fmt.Errorf("user ID is required")
	}
	if err := t.Kind.Validate(); err != nil {
		return err
	}
	if t.IdempotencyKey == "" {
		return fmt.Errorf("idempotency key is required")
	}
	if t.Amount.IsNegative() || t.Amount.IsZero() {
		return fmt.Errorf("amount must be positive")
	}
	return nil
}
