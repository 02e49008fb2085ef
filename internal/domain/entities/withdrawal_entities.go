package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WithdrawalStatus represents the status of a withdrawal request
type WithdrawalStatus string

const (
	WithdrawalStatusPending           WithdrawalStatus = "pending"
	WithdrawalStatusApproved          WithdrawalStatus = "approved"
	WithdrawalStatusProcessing        WithdrawalStatus = "processing"
	WithdrawalStatusApprovedCompleted WithdrawalStatus = "approved-completed"
	WithdrawalStatusFailed            WithdrawalStatus = "failed"
	WithdrawalStatusRejected          WithdrawalStatus = "rejected"
)

// ValidWithdrawalStatuses contains all valid withdrawal statuses
var ValidWithdrawalStatuses = map[WithdrawalStatus]bool{
	WithdrawalStatusPending:           true,
	WithdrawalStatusApproved:          true,
	WithdrawalStatusProcessing:        true,
	WithdrawalStatusApprovedCompleted: true,
	WithdrawalStatusFailed:            true,
	WithdrawalStatusRejected:          true,
}

// ValidWithdrawalTransitions defines allowed status transitions.
// rejected is reachable only from pending and only by an admin; the worker
// never touches it.
var ValidWithdrawalTransitions = map[WithdrawalStatus][]WithdrawalStatus{
	WithdrawalStatusPending:           {WithdrawalStatusApproved, WithdrawalStatusRejected},
	WithdrawalStatusApproved:          {WithdrawalStatusProcessing},
	WithdrawalStatusProcessing:        {WithdrawalStatusApprovedCompleted, WithdrawalStatusFailed},
	WithdrawalStatusApprovedCompleted: {}, // Terminal state
	WithdrawalStatusFailed:            {}, // Terminal state
	WithdrawalStatusRejected:          {}, // Terminal state
}

// IsValid checks if the status is a valid withdrawal status
func (s WithdrawalStatus) IsValid() bool {
	return ValidWithdrawalStatuses[s]
}

// CanTransitionTo checks if transition to new status is allowed
func (s WithdrawalStatus) CanTransitionTo(newStatus WithdrawalStatus) bool {
	allowed, exists := ValidWithdrawalTransitions[s]
	if !exists {
		return false
	}
	for _, status := range allowed {
		if status == newStatus {
			return true
		}
	}
	return false
}

// IsTerminal returns true if this is a terminal state
func (s WithdrawalStatus) IsTerminal() bool {
	return s == WithdrawalStatusApprovedCompleted ||
		s == WithdrawalStatusFailed ||
		s == WithdrawalStatusRejected
}

// ValidateTransition validates and returns error if transition is invalid
func (s WithdrawalStatus) ValidateTransition(newStatus WithdrawalStatus) error {
	if !newStatus.IsValid() {
		return fmt.Errorf("invalid withdrawal status: %s", newStatus)
	}
	if !s.CanTransitionTo(newStatus) {
		return fmt.Errorf("invalid status transition from %s to %s", s, newStatus)
	}
	return nil
}

// WithdrawalRequest is a user-initiated, admin-approved, worker-executed
// outbound transfer. The worker only ever sees approved and processing rows.
type WithdrawalRequest struct {
	ID          uuid.UUID        `json:"id" db:"id"`
	UserID      uuid.UUID        `json:"user_id" db:"user_id"`
	Chain       string           `json:"chain" db:"chain"`
	Token       string           `json:"token" db:"token"`
	Address     string           `json:"address" db:"address"`
	Amount      decimal.Decimal  `json:"amount" db:"amount"`
	Status      WithdrawalStatus `json:"status" db:"status"`
	TxHash      *string          `json:"tx_hash,omitempty" db:"tx_hash"`
	AdminNote   *string          `json:"admin_note,omitempty" db:"admin_note"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at" db:"updated_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty" db:"completed_at"`
}

// Validate validates a new withdrawal request
func (w *WithdrawalRequest) Validate() error {
	if w.ID == uuid.Nil {
		return fmt.Errorf("withdrawal ID is required")
	}
	if w.UserID == uuid.Nil {
		return fmt.Errorf("user ID is required")
	}
	if w.Address == "" {
		return fmt.Errorf("destination address is required")
	}
	if w.Amount.IsNegative() || w.Amount.IsZero() {
		return fmt.Errorf("amount must be positive")
	}
	if !w.Status.IsValid() {
		return fmt.Errorf("invalid withdrawal status: %s", w.Status)
	}
	return nil
}
