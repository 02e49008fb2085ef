// Package crediting applies confirmed deposit events to wallet balances.
// Each event is credited at most once: the row is locked and re-checked
// inside a transaction, and the ledger insert carries the event's dedup
// key as an idempotency key so a concurrent crediter loses cleanly.
package crediting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/vestra/chain_service/internal/domain/entities"
	domainerrors "github.com/vestra/chain_service/internal/domain/errors"
	"github.com/vestra/chain_service/internal/infrastructure/config"
	"github.com/vestra/chain_service/internal/infrastructure/database"
	"github.com/vestra/chain_service/pkg/logger"
	"github.com/vestra/chain_service/pkg/metrics"
)

// EventStore is the slice of the deposit event repository the crediter uses
type EventStore interface {
	ListCreditable(ctx context.Context, chain string, safeToBlock int64, minAmount decimal.Decimal, limit int) ([]*entities.ChainDepositEvent, error)
	SumCreditedByUser(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	LockForCreditTx(ctx context.Context, tx *sqlx.Tx, id int64) (*entities.ChainDepositEvent, error)
	MarkCreditedTx(ctx context.Context, tx *sqlx.Tx, id int64, creditedAt time.Time) error
}

// LedgerStore is the slice of the balance repository the crediter uses
type LedgerStore interface {
	IncrementBalanceTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, token string, amount decimal.Decimal) error
	InsertTransactionTx(ctx context.Context, tx *sqlx.Tx, txn *entities.LedgerTransaction) error
	SumTransactionsByKind(ctx context.Context, userID uuid.UUID, kind entities.TransactionKind) (decimal.Decimal, error)
}

// HeadReader reports the current chain head block number
type HeadReader interface {
	CurrentHead(ctx context.Context) (int64, error)
}

// BatchResult summarizes one crediting pass
type BatchResult struct {
	Head        int64
	SafeToBlock int64
	Examined    int
	Credited    int
	Skipped     int
	Failed      int
}

// Service credits confirmed deposit events to user balances
type Service struct {
	db       *sqlx.DB
	events   EventStore
	ledger   LedgerStore
	head     HeadReader
	chainCfg config.ChainConfig
	cfg      config.DepositConfig
	logger   *logger.Logger
	runTx    func(ctx context.Context, fn func(tx *sqlx.Tx) error) error
}

// NewService creates a new crediting service
func NewService(
	db *sqlx.DB,
	events EventStore,
	ledger LedgerStore,
	head HeadReader,
	chainCfg config.ChainConfig,
	cfg config.DepositConfig,
	logger *logger.Logger,
) *Service {
	return &Service{
		db:       db,
		events:   events,
		ledger:   ledger,
		head:     head,
		chainCfg: chainCfg,
		cfg:      cfg,
		logger:   logger,
		runTx: func(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
			return database.WithTransaction(ctx, db, fn)
		},
	}
}

// RunOnce performs one crediting pass: fetch the head, compute the safe
// confirmation horizon, and credit every resolved event at or below it.
// A failure on one event does not stop the batch.
func (s *Service) RunOnce(ctx context.Context) (*BatchResult, error) {
	head, err := s.head.CurrentHead(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain head: %w", err)
	}
	metrics.ChainHeadGauge.Set(float64(head))

	safeToBlock := head - s.cfg.Confirmations
	result := &BatchResult{Head: head, SafeToBlock: safeToBlock}
	if safeToBlock < 0 {
		return result, nil
	}

	events, err := s.events.ListCreditable(ctx, s.chainCfg.Name, safeToBlock, s.cfg.MinAmount(), s.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list creditable events: %w", err)
	}
	result.Examined = len(events)

	for _, event := range events {
		credited, err := s.CreditEvent(ctx, event.ID)
		switch {
		case err != nil:
			result.Failed++
			s.logger.Error("Failed to credit deposit event",
				"event_id", event.ID,
				"tx_hash", event.TxHash,
				"error", err,
			)
		case credited:
			result.Credited++
		default:
			result.Skipped++
		}
	}

	return result, nil
}

// CreditEvent atomically credits a single deposit event. Returns false
// with a nil error when the event was already credited by another pass.
// The balance increment, ledger insert and credited flag commit together
// or not at all.
func (s *Service) CreditEvent(ctx context.Context, eventID int64) (bool, error) {
	credited := false

	err := s.runTx(ctx, func(tx *sqlx.Tx) error {
		event, err := s.events.LockForCreditTx(ctx, tx, eventID)
		if err != nil {
			return fmt.Errorf("failed to lock deposit event: %w", err)
		}

		if event.Credited {
			metrics.CreditsSkipped.WithLabelValues("already_credited").Inc()
			return nil
		}
		if event.UserID == nil {
			metrics.CreditsSkipped.WithLabelValues("unresolved").Inc()
			return nil
		}

		amount := event.Amount.Truncate(8)
		if err := s.ledger.IncrementBalanceTx(ctx, tx, *event.UserID, event.Token, amount); err != nil {
			return fmt.Errorf("failed to increment balance: %w", err)
		}

		txn := &entities.LedgerTransaction{
			ID:             uuid.New(),
			UserID:         *event.UserID,
			Kind:           entities.TransactionKindDeposit,
			Token:          event.Token,
			Amount:         amount,
			IdempotencyKey: event.DedupKey(),
			Description:    fmt.Sprintf("On-chain deposit %s", event.TxHash),
		}
		if err := s.ledger.InsertTransactionTx(ctx, tx, txn); err != nil {
			if errors.Is(err, domainerrors.CreditingConflictError) {
				// Another pass already wrote the ledger row. Abort so the
				// balance increment rolls back; the winner owns the flag.
				metrics.CreditsSkipped.WithLabelValues("ledger_conflict").Inc()
				return err
			}
			return fmt.Errorf("failed to insert ledger transaction: %w", err)
		}

		if err := s.events.MarkCreditedTx(ctx, tx, event.ID, time.Now().UTC()); err != nil {
			return fmt.Errorf("failed to mark event credited: %w", err)
		}

		credited = true
		s.logger.Info("Deposit credited",
			"event_id", event.ID,
			"user_id", event.UserID.String(),
			"amount", amount.String(),
			"tx_hash", event.TxHash,
		)
		return nil
	})

	if err != nil {
		if errors.Is(err, domainerrors.CreditingConflictError) {
			return false, nil
		}
		return false, err
	}

	if credited {
		metrics.CreditsApplied.Inc()
	}
	return credited, nil
}

// TieOut compares the sum of credited events against the deposit side of
// the ledger for one user. The two totals must match; a discrepancy means
// a credit committed partially, which the transaction boundary is meant
// to make impossible.
func (s *Service) TieOut(ctx context.Context, userID uuid.UUID) (bool, error) {
	eventSum, err := s.events.SumCreditedByUser(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to sum credited events: %w", err)
	}
	ledgerSum, err := s.ledger.SumTransactionsByKind(ctx, userID, entities.TransactionKindDeposit)
	if err != nil {
		return false, fmt.Errorf("failed to sum ledger deposits: %w", err)
	}
	if !eventSum.Equal(ledgerSum) {
		s.logger.Error("Ledger tie-out mismatch",
			"user_id", userID.String(),
			"event_sum", eventSum.String(),
			"ledger_sum", ledgerSum.String(),
		)
		return false, nil
	}
	return true, nil
}
