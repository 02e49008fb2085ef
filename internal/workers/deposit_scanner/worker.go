// Package deposit_scanner is the polling fallback for deposit ingestion.
// It walks every monitored address over a bounded block range each cycle,
// writing through the same idempotent upsert boundary as the webhook, so
// the two paths can race without double-recording anything.
package deposit_scanner

import (
	"context"
	"time"

	"github.com/vestra/chain_service/internal/adapters/chainrpc"
	"github.com/vestra/chain_service/internal/domain/entities"
	domainerrors "github.com/vestra/chain_service/internal/domain/errors"
	"github.com/vestra/chain_service/internal/domain/services/ingest"
	"github.com/vestra/chain_service/pkg/logger"
	"github.com/vestra/chain_service/pkg/metrics"
)

// ChainReader fetches head and transfer logs from the RPC endpoint
type ChainReader interface {
	CurrentHead(ctx context.Context) (int64, error)
	TransferLogs(ctx context.Context, address string, fromBlock, toBlock int64) ([]chainrpc.TransferLog, error)
}

// AddressStore walks monitored addresses in insertion order
type AddressStore interface {
	ListAfterID(ctx context.Context, afterID int64, limit int) ([]*entities.MonitoredAddress, error)
}

// CheckpointStore persists the poll cursor and per-address scan cursors
type CheckpointStore interface {
	GetInt64(ctx context.Context, key string) (int64, error)
	SetInt64(ctx context.Context, key string, value int64) error
}

// EventStore seeds a missing cursor from the address's last seen event
type EventStore interface {
	MaxBlockForAddress(ctx context.Context, chain, address string) (int64, error)
}

// ScanLogStore appends one diagnostic row per address per cycle
type ScanLogStore interface {
	Create(ctx context.Context, log *entities.ScanLog) error
}

// Ingestor is the shared write path into the deposit event table
type Ingestor interface {
	ProcessTransfer(ctx context.Context, t ingest.IncomingTransfer) (*ingest.Result, error)
}

// Config holds worker configuration
type Config struct {
	Chain           string
	Token           string
	Confirmations   int64
	MaxRangePerCall int64
	BatchSize       int
	LoopInterval    time.Duration
	IdleInterval    time.Duration
}

// DefaultConfig returns default worker configuration
func DefaultConfig() *Config {
	return &Config{
		Confirmations:   12,
		MaxRangePerCall: 2000,
		BatchSize:       50,
		LoopInterval:    15 * time.Second,
		IdleInterval:    60 * time.Second,
	}
}

// Worker is the polling deposit scanner
type Worker struct {
	reader      ChainReader
	addresses   AddressStore
	checkpoints CheckpointStore
	events      EventStore
	scanLogs    ScanLogStore
	ingestor    Ingestor
	config      *Config
	logger      *logger.Logger
	stopCh      chan struct{}
}

// NewWorker creates a new deposit scanner worker
func NewWorker(
	reader ChainReader,
	addresses AddressStore,
	checkpoints CheckpointStore,
	events EventStore,
	scanLogs ScanLogStore,
	ingestor Ingestor,
	config *Config,
	logger *logger.Logger,
) *Worker {
	if config == nil {
		config = DefaultConfig()
	}
	return &Worker{
		reader:      reader,
		addresses:   addresses,
		checkpoints: checkpoints,
		events:      events,
		scanLogs:    scanLogs,
		ingestor:    ingestor,
		config:      config,
		logger:      logger,
		stopCh:      make(chan struct{}),
	}
}

// Start begins the scan loop
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Starting deposit scanner worker",
		"chain", w.config.Chain,
		"confirmations", w.config.Confirmations,
		"max_range", w.config.MaxRangePerCall,
		"loop_interval", w.config.LoopInterval.String())

	for {
		idle := w.runCycle(ctx)

		interval := w.config.LoopInterval
		if idle {
			interval = w.config.IdleInterval
		}

		select {
		case <-ctx.Done():
			w.logger.Info("Deposit scanner worker stopped (context cancelled)")
			return
		case <-w.stopCh:
			w.logger.Info("Deposit scanner worker stopped")
			return
		case <-time.After(interval):
		}
	}
}

// Stop stops the worker
func (w *Worker) Stop() {
	close(w.stopCh)
}

// runCycle scans one batch of addresses. Returns true when nothing needed
// scanning, so the caller can back off to the idle interval.
func (w *Worker) runCycle(ctx context.Context) bool {
	start := time.Now()

	head, err := w.reader.CurrentHead(ctx)
	if err != nil {
		metrics.ScanCycles.WithLabelValues("error").Inc()
		w.logger.Error("Failed to read chain head", "error", err)
		return false
	}
	metrics.ChainHeadGauge.Set(float64(head))

	safeToBlock := head - w.config.Confirmations
	if safeToBlock <= 0 {
		return true
	}

	lastID, err := w.checkpoints.GetInt64(ctx, entities.CheckpointPollLastUserID)
	if err != nil {
		metrics.ScanCycles.WithLabelValues("error").Inc()
		w.logger.Error("Failed to read poll checkpoint", "error", err)
		return false
	}

	addrs, err := w.addresses.ListAfterID(ctx, lastID, w.config.BatchSize)
	if err != nil {
		metrics.ScanCycles.WithLabelValues("error").Inc()
		w.logger.Error("Failed to list monitored addresses", "error", err)
		return false
	}
	if len(addrs) == 0 && lastID > 0 {
		// Wrapped around the address list; restart from the beginning.
		addrs, err = w.addresses.ListAfterID(ctx, 0, w.config.BatchSize)
		if err != nil {
			metrics.ScanCycles.WithLabelValues("error").Inc()
			w.logger.Error("Failed to list monitored addresses", "error", err)
			return false
		}
	}
	if len(addrs) == 0 {
		metrics.ScanCycles.WithLabelValues("idle").Inc()
		return true
	}

	allUpToDate := true
	for _, addr := range addrs {
		status := w.scanAddress(ctx, addr, head, safeToBlock)
		if status != entities.ScanStatusUpToDate && status != entities.ScanStatusSkipped {
			allUpToDate = false
		}
		// The poll checkpoint only moves once this address's cycle is
		// durably recorded, and never past a failed range.
		if status.AdvancesCursor() {
			if err := w.checkpoints.SetInt64(ctx, entities.CheckpointPollLastUserID, addr.ID); err != nil {
				w.logger.Error("Failed to advance poll checkpoint", "address_id", addr.ID, "error", err)
			}
		}
	}

	metrics.ScanCycles.WithLabelValues("success").Inc()
	metrics.ScanDuration.Observe(time.Since(start).Seconds())
	return allUpToDate
}

// scanAddress scans one bounded block range for one address and records
// the outcome as a ScanLog row.
func (w *Worker) scanAddress(ctx context.Context, addr *entities.MonitoredAddress, head, safeToBlock int64) entities.ScanStatus {
	start := time.Now()

	scanLog := &entities.ScanLog{
		UserID:        &addr.UserID,
		Address:       addr.Address,
		LatestBlock:   head,
		Confirmations: w.config.Confirmations,
		SafeToBlock:   safeToBlock,
		Rounds:        1,
	}

	if addr.Chain != w.config.Chain {
		// Monitored on another chain; not this scanner's job.
		scanLog.Status = entities.ScanStatusSkipped
		reason := "address monitored on another chain"
		scanLog.Reason = &reason
		w.finish(ctx, scanLog, start)
		return entities.ScanStatusSkipped
	}

	cursor, err := w.checkpoints.GetInt64(ctx, entities.ScanCursorKey(addr.ID))
	if err != nil {
		return w.finishError(ctx, scanLog, start, "checkpoint_read", err)
	}
	if cursor == 0 {
		// No cursor yet: seed from the last event we have for this
		// address rather than replaying the whole chain.
		maxBlock, err := w.events.MaxBlockForAddress(ctx, addr.Chain, addr.Address)
		if err != nil {
			return w.finishError(ctx, scanLog, start, "cursor_seed", err)
		}
		if maxBlock > 0 {
			cursor = maxBlock
		} else {
			cursor = safeToBlock - w.config.MaxRangePerCall
			if cursor < 0 {
				cursor = 0
			}
		}
	}
	scanLog.CursorBefore = cursor
	scanLog.CursorAfter = cursor

	fromBlock := cursor + 1
	if fromBlock > safeToBlock {
		scanLog.Status = entities.ScanStatusUpToDate
		reason := "cursor at safe-to-block horizon"
		scanLog.Reason = &reason
		w.finish(ctx, scanLog, start)
		return entities.ScanStatusUpToDate
	}

	toBlock := safeToBlock
	if capped := fromBlock + w.config.MaxRangePerCall - 1; capped < toBlock {
		toBlock = capped
	}
	scanLog.FromBlock = fromBlock
	scanLog.ToBlock = toBlock

	logs, err := w.reader.TransferLogs(ctx, addr.Address, fromBlock, toBlock)
	if err != nil {
		return w.finishError(ctx, scanLog, start, domainerrors.GetErrorCode(err), err)
	}
	scanLog.LogsFound = len(logs)

	inserted := 0
	for _, tl := range logs {
		result, err := w.ingestor.ProcessTransfer(ctx, ingest.IncomingTransfer{
			Chain:       addr.Chain,
			Token:       w.config.Token,
			TxHash:      tl.TxHash,
			LogIndex:    tl.LogIndex,
			BlockNumber: tl.BlockNumber,
			To:          tl.To,
			Amount:      tl.Amount,
			Source:      entities.IngestionSourcePoll,
		})
		if err != nil {
			// Storage failure: do not advance the cursor past a range
			// whose events may not all be recorded.
			return w.finishError(ctx, scanLog, start, "ingest", err)
		}
		if result.Inserted {
			inserted++
		}
	}
	scanLog.CreditedEvents = inserted

	scanLog.Status = entities.ScanStatusSuccess
	scanLog.CursorAfter = toBlock
	w.finish(ctx, scanLog, start)

	// Cursor advance is deliberately last: the ScanLog row commits first
	// so a crash between the two replays the range instead of skipping it.
	if err := w.checkpoints.SetInt64(ctx, entities.ScanCursorKey(addr.ID), toBlock); err != nil {
		w.logger.Error("Failed to advance scan cursor", "address_id", addr.ID, "error", err)
		return entities.ScanStatusError
	}

	if inserted > 0 {
		w.logger.Info("Scan cycle recorded new deposit events",
			"address", addr.Address,
			"from_block", fromBlock,
			"to_block", toBlock,
			"logs_found", len(logs),
			"inserted", inserted)
	}
	return entities.ScanStatusSuccess
}

func (w *Worker) finish(ctx context.Context, scanLog *entities.ScanLog, start time.Time) {
	scanLog.DurationMs = time.Since(start).Milliseconds()
	if err := w.scanLogs.Create(ctx, scanLog); err != nil {
		w.logger.Error("Failed to write scan log", "address", scanLog.Address, "error", err)
	}
}

func (w *Worker) finishError(ctx context.Context, scanLog *entities.ScanLog, start time.Time, code string, cause error) entities.ScanStatus {
	scanLog.Status = entities.ScanStatusError
	msg := cause.Error()
	scanLog.ErrorCode = &code
	scanLog.ErrorMessage = &msg
	w.finish(ctx, scanLog, start)

	w.logger.Error("Scan cycle failed",
		"address", scanLog.Address,
		"from_block", scanLog.FromBlock,
		"to_block", scanLog.ToBlock,
		"error_code", code,
		"error", cause)
	return entities.ScanStatusError
}
