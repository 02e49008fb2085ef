// Package ingest normalizes incoming transfer notifications and writes
// them through the idempotent upsert boundary. Both the webhook handler
// and the polling scanner funnel through this package, so correctness
// never depends on which path saw a transfer first.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vestra/chain_service/internal/domain/entities"
	domainerrors "github.com/vestra/chain_service/internal/domain/errors"
	"github.com/vestra/chain_service/internal/infrastructure/config"
	"github.com/vestra/chain_service/pkg/logger"
	"github.com/vestra/chain_service/pkg/metrics"
)

// AddressResolver resolves a deposit address to its monitored address row
type AddressResolver interface {
	GetByAddress(ctx context.Context, chain, address string) (*entities.MonitoredAddress, error)
}

// EventStore upserts deposit events through the dedup boundary
type EventStore interface {
	Upsert(ctx context.Context, event *entities.ChainDepositEvent) (bool, error)
}

// CheckpointStore persists ingestion cursors
type CheckpointStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	SetInt64(ctx context.Context, key string, value int64) error
}

// IncomingTransfer is one normalized transfer from either ingestion path
type IncomingTransfer struct {
	Chain       string
	Token       string
	TxHash      string
	LogIndex    int64
	BlockNumber int64
	To          string
	Amount      decimal.Decimal
	Source      entities.IngestionSource
}

// Result summarizes one processed transfer
type Result struct {
	Event     *entities.ChainDepositEvent
	Inserted  bool
	Duplicate bool
	Resolved  bool
}

// Service is the single write path into the deposit event table
type Service struct {
	addresses   AddressResolver
	events      EventStore
	checkpoints CheckpointStore
	chainCfg    config.ChainConfig
	logger      *logger.Logger
}

// NewService creates a new ingest service
func NewService(
	addresses AddressResolver,
	events EventStore,
	checkpoints CheckpointStore,
	chainCfg config.ChainConfig,
	logger *logger.Logger,
) *Service {
	return &Service{
		addresses:   addresses,
		events:      events,
		checkpoints: checkpoints,
		chainCfg:    chainCfg,
		logger:      logger,
	}
}

// Matches reports whether a transfer targets the monitored chain and token
// contract. Transfers for other contracts are ignored, not errors.
func (s *Service) Matches(t IncomingTransfer) bool {
	if !strings.EqualFold(t.Chain, s.chainCfg.Name) {
		return false
	}
	return strings.EqualFold(t.Token, s.chainCfg.TokenContract)
}

// ProcessTransfer resolves and upserts one transfer. An address that does
// not resolve to a user is stored with a null user id for later
// reconciliation, never dropped. Duplicate (txHash, logIndex) pairs are
// no-ops.
func (s *Service) ProcessTransfer(ctx context.Context, t IncomingTransfer) (*Result, error) {
	event := &entities.ChainDepositEvent{
		Chain:       s.chainCfg.Name,
		Token:       s.chainCfg.TokenContract,
		Address:     strings.ToLower(t.To),
		Amount:      t.Amount.Truncate(8),
		TxHash:      strings.ToLower(t.TxHash),
		LogIndex:    t.LogIndex,
		BlockNumber: t.BlockNumber,
		Source:      t.Source,
	}

	resolved := false
	var addressID int64
	addr, err := s.addresses.GetByAddress(ctx, event.Chain, event.Address)
	switch {
	case err == nil:
		event.UserID = &addr.UserID
		addressID = addr.ID
		resolved = true
	case errors.Is(err, domainerrors.ErrNotFound):
		s.logger.Warn("Deposit address does not resolve to a user",
			"address", event.Address,
			"tx_hash", event.TxHash,
			"source", t.Source,
		)
	default:
		// A transient lookup failure must not persist the event with a
		// null user. Fail the ingest so the delivery is retried.
		metrics.DepositEventsIngested.WithLabelValues(string(t.Source), "error").Inc()
		return nil, fmt.Errorf("failed to resolve deposit address %s: %w", event.Address, err)
	}

	inserted, err := s.events.Upsert(ctx, event)
	if err != nil {
		metrics.DepositEventsIngested.WithLabelValues(string(t.Source), "error").Inc()
		return nil, err
	}

	result := &Result{
		Event:     event,
		Inserted:  inserted,
		Duplicate: !inserted,
		Resolved:  resolved,
	}

	outcome := "inserted"
	if result.Duplicate {
		outcome = "duplicate"
	}
	metrics.DepositEventsIngested.WithLabelValues(string(t.Source), outcome).Inc()

	if inserted && resolved && t.Source == entities.IngestionSourceStream {
		s.advanceStreamCheckpoint(ctx, addressID)
	}

	if inserted {
		s.logger.Info("Deposit event recorded",
			"tx_hash", event.TxHash,
			"log_index", event.LogIndex,
			"block", event.BlockNumber,
			"amount", event.Amount.String(),
			"resolved", resolved,
			"source", t.Source,
		)
	}

	return result, nil
}

// advanceStreamCheckpoint records the last monitored address seen on the
// webhook path. This is an advisory ordering hint only; dedup comes from
// the unique constraint, so imprecision here is harmless.
func (s *Service) advanceStreamCheckpoint(ctx context.Context, addressID int64) {
	if err := s.checkpoints.SetInt64(ctx, entities.CheckpointStreamLastUserID, addressID); err != nil {
		s.logger.Warn("Failed to advance stream checkpoint", "error", err)
	}
}
