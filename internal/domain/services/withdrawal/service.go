// Package withdrawal owns the request lifecycle up to the point the
// auto-withdrawal worker takes over: creation debits the balance, admins
// approve or reject, and the worker drives everything after approved.
package withdrawal

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/vestra/chain_service/internal/domain/entities"
	domainerrors "github.com/vestra/chain_service/internal/domain/errors"
	"github.com/vestra/chain_service/internal/infrastructure/database"
	"github.com/vestra/chain_service/pkg/logger"
)

// RequestStore persists withdrawal requests
type RequestStore interface {
	CreateTx(ctx context.Context, tx *sqlx.Tx, withdrawal *entities.WithdrawalRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.WithdrawalRequest, error)
	ListByStatus(ctx context.Context, status entities.WithdrawalStatus, limit int) ([]*entities.WithdrawalRequest, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to entities.WithdrawalStatus) error
	UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, from, to entities.WithdrawalStatus) error
	SetAdminNoteTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, note string) error
}

// LedgerStore moves balance when requests are created or rejected
type LedgerStore interface {
	IncrementBalanceTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, token string, amount decimal.Decimal) error
	DecrementBalanceTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, token string, amount decimal.Decimal) error
	InsertTransactionTx(ctx context.Context, tx *sqlx.Tx, txn *entities.LedgerTransaction) error
}

// CreateParams describes a new withdrawal request
type CreateParams struct {
	UserID  uuid.UUID
	Chain   string
	Token   string
	Address string
	Amount  decimal.Decimal
}

// Service manages the withdrawal request lifecycle
type Service struct {
	db       *sqlx.DB
	requests RequestStore
	ledger   LedgerStore
	logger   *logger.Logger
	runTx    func(ctx context.Context, fn func(tx *sqlx.Tx) error) error
}

// NewService creates a new withdrawal service
func NewService(db *sqlx.DB, requests RequestStore, ledger LedgerStore, logger *logger.Logger) *Service {
	return &Service{
		db:       db,
		requests: requests,
		ledger:   ledger,
		logger:   logger,
		runTx: func(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
			return database.WithTransaction(ctx, db, fn)
		},
	}
}

// Create debits the user's balance and records a pending request in one
// transaction. An insufficient balance fails the whole thing; no debit
// ever exists without a matching request row.
func (s *Service) Create(ctx context.Context, params CreateParams) (*entities.WithdrawalRequest, error) {
	amount := params.Amount.Truncate(8)
	if amount.IsZero() || amount.IsNegative() {
		return nil, domainerrors.ValidationError("amount", "amount must be positive")
	}
	if params.Address == "" {
		return nil, domainerrors.ValidationError("address", "destination address is required")
	}

	request := &entities.WithdrawalRequest{
		ID:      uuid.New(),
		UserID:  params.UserID,
		Chain:   params.Chain,
		Token:   params.Token,
		Address: params.Address,
		Amount:  amount,
		Status:  entities.WithdrawalStatusPending,
	}

	err := s.runTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.ledger.DecrementBalanceTx(ctx, tx, params.UserID, params.Token, amount); err != nil {
			return err
		}

		txn := &entities.LedgerTransaction{
			ID:             uuid.New(),
			UserID:         params.UserID,
			Kind:           entities.TransactionKindWithdrawal,
			Token:          params.Token,
			Amount:         amount.Neg(),
			IdempotencyKey: fmt.Sprintf("withdrawal:%s", request.ID),
			Description:    fmt.Sprintf("Withdrawal to %s", params.Address),
		}
		if err := s.ledger.InsertTransactionTx(ctx, tx, txn); err != nil {
			return fmt.Errorf("failed to insert ledger transaction: %w", err)
		}

		return s.requests.CreateTx(ctx, tx, request)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Withdrawal request created",
		"request_id", request.ID,
		"user_id", params.UserID,
		"amount", amount.String())
	return request, nil
}

// Approve moves a pending request to approved, releasing it to the worker
func (s *Service) Approve(ctx context.Context, id uuid.UUID) error {
	if err := s.requests.UpdateStatus(ctx, id, entities.WithdrawalStatusPending, entities.WithdrawalStatusApproved); err != nil {
		return err
	}
	s.logger.Info("Withdrawal request approved", "request_id", id)
	return nil
}

// Reject terminally rejects a pending request and refunds the debit. The
// worker never touches rejected requests.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, note string) error {
	request, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := request.Status.ValidateTransition(entities.WithdrawalStatusRejected); err != nil {
		return err
	}

	err = s.runTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.requests.UpdateStatusTx(ctx, tx, id, entities.WithdrawalStatusPending, entities.WithdrawalStatusRejected); err != nil {
			return err
		}
		if note != "" {
			if err := s.requests.SetAdminNoteTx(ctx, tx, id, note); err != nil {
				return err
			}
		}

		if err := s.ledger.IncrementBalanceTx(ctx, tx, request.UserID, request.Token, request.Amount); err != nil {
			return fmt.Errorf("failed to refund balance: %w", err)
		}

		txn := &entities.LedgerTransaction{
			ID:             uuid.New(),
			UserID:         request.UserID,
			Kind:           entities.TransactionKindWithdrawal,
			Token:          request.Token,
			Amount:         request.Amount,
			IdempotencyKey: fmt.Sprintf("withdrawal-reject:%s", request.ID),
			Description:    fmt.Sprintf("Rejected withdrawal %s refunded", request.ID),
		}
		if err := s.ledger.InsertTransactionTx(ctx, tx, txn); err != nil {
			return fmt.Errorf("failed to insert refund transaction: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("Withdrawal request rejected", "request_id", id, "note", note)
	return nil
}

// Get returns one request
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*entities.WithdrawalRequest, error) {
	return s.requests.GetByID(ctx, id)
}

// ListByStatus returns requests in one state, oldest first
func (s *Service) ListByStatus(ctx context.Context, status entities.WithdrawalStatus, limit int) ([]*entities.WithdrawalRequest, error) {
	if !status.IsValid() {
		return nil, domainerrors.ValidationError("status", fmt.Sprintf("unknown withdrawal status %q", status))
	}
	return s.requests.ListByStatus(ctx, status, limit)
}
