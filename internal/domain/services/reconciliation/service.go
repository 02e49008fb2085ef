// Package reconciliation re-resolves deposit events that arrived before
// their address was registered. Events with no user stay in the table
// untouched until a sweep can attach them, so a late registration still
// gets credited.
package reconciliation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/vestra/chain_service/internal/domain/entities"
	"github.com/vestra/chain_service/pkg/logger"
)

// EventStore lists unresolved events and re-attaches their user
type EventStore interface {
	ListUnresolved(ctx context.Context, limit int) ([]*entities.ChainDepositEvent, error)
	ResolveUser(ctx context.Context, chain, address string, userID uuid.UUID) (int64, error)
}

// AddressResolver resolves deposit addresses to monitored address rows
type AddressResolver interface {
	GetByAddress(ctx context.Context, chain, address string) (*entities.MonitoredAddress, error)
}

// SweepResult summarizes one reconciliation sweep
type SweepResult struct {
	Examined   int
	Resolved   int64
	Unresolved int
}

// Service sweeps unresolved deposit events against the address book
type Service struct {
	events    EventStore
	addresses AddressResolver
	batchSize int
	logger    *logger.Logger
	cron      *cron.Cron
}

// NewService creates a new reconciliation service
func NewService(events EventStore, addresses AddressResolver, batchSize int, logger *logger.Logger) *Service {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Service{
		events:    events,
		addresses: addresses,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Sweep resolves as many orphaned events as the address book allows.
// Addresses that still have no registration are left for the next sweep.
func (s *Service) Sweep(ctx context.Context) (*SweepResult, error) {
	events, err := s.events.ListUnresolved(ctx, s.batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list unresolved events: %w", err)
	}

	result := &SweepResult{Examined: len(events)}

	// One ResolveUser call fixes every event for that address, so dedupe
	// by address before hitting the address book.
	seen := make(map[string]bool)
	for _, event := range events {
		if seen[event.Address] {
			continue
		}
		seen[event.Address] = true

		addr, err := s.addresses.GetByAddress(ctx, event.Chain, event.Address)
		if err != nil {
			result.Unresolved++
			continue
		}

		n, err := s.events.ResolveUser(ctx, event.Chain, event.Address, addr.UserID)
		if err != nil {
			s.logger.Error("Failed to resolve deposit events",
				"address", event.Address,
				"error", err,
			)
			continue
		}
		result.Resolved += n
	}

	if result.Resolved > 0 {
		s.logger.Info("Reconciliation sweep resolved events",
			"examined", result.Examined,
			"resolved", result.Resolved,
		)
	}
	return result, nil
}

// Schedule registers the sweep on a cron schedule and starts the runner.
// Call Stop to drain it during shutdown.
func (s *Service) Schedule(spec string) error {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Error("Reconciliation sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule reconciliation sweep: %w", err)
	}
	c.Start()
	s.cron = c
	return nil
}

// Stop halts the cron runner and waits for a running sweep to finish
func (s *Service) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}
