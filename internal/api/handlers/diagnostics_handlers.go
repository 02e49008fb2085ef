package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vestra/chain_service/internal/domain/entities"
	"github.com/vestra/chain_service/internal/infrastructure/config"
	"github.com/vestra/chain_service/internal/infrastructure/repositories"
	"github.com/vestra/chain_service/internal/workers/auto_withdrawal"
	"github.com/vestra/chain_service/pkg/logger"
)

// EventLister is the diagnostic slice of the deposit event repository
type EventLister interface {
	List(ctx context.Context, filter repositories.EventFilter) ([]*entities.ChainDepositEvent, error)
	Counts(ctx context.Context) (*repositories.EventCounts, error)
}

// ScanLogLister lists scan log rows
type ScanLogLister interface {
	List(ctx context.Context, filter repositories.ScanLogFilter) ([]*entities.ScanLog, error)
}

// CheckpointReader exposes the full checkpoint map
type CheckpointReader interface {
	All(ctx context.Context) (map[string]string, error)
}

// AddressCounter counts monitored addresses
type AddressCounter interface {
	Count(ctx context.Context) (int64, error)
}

// WithdrawalWorkerStatus reports the auto-withdrawal worker snapshot
type WithdrawalWorkerStatus interface {
	Status() auto_withdrawal.Status
}

// DiagnosticsHandlers is the read-only surface consumed by the admin tool.
// Everything here reports state; nothing mutates it.
type DiagnosticsHandlers struct {
	events           EventLister
	scanLogs         ScanLogLister
	checkpoints      CheckpointReader
	addresses        AddressCounter
	withdrawalWorker WithdrawalWorkerStatus
	chainCfg         config.ChainConfig
	depositCfg       config.DepositConfig
	logger           *logger.Logger
}

// NewDiagnosticsHandlers creates a new DiagnosticsHandlers instance
func NewDiagnosticsHandlers(
	events EventLister,
	scanLogs ScanLogLister,
	checkpoints CheckpointReader,
	addresses AddressCounter,
	withdrawalWorker WithdrawalWorkerStatus,
	chainCfg config.ChainConfig,
	depositCfg config.DepositConfig,
	logger *logger.Logger,
) *DiagnosticsHandlers {
	return &DiagnosticsHandlers{
		events:           events,
		scanLogs:         scanLogs,
		checkpoints:      checkpoints,
		addresses:        addresses,
		withdrawalWorker: withdrawalWorker,
		chainCfg:         chainCfg,
		depositCfg:       depositCfg,
		logger:           logger,
	}
}

// GetConfig handles GET /diagnostics/config
func (h *DiagnosticsHandlers) GetConfig(c *gin.Context) {
	respondSuccess(c, gin.H{
		"chain":              h.chainCfg.Name,
		"token_contract":     h.chainCfg.TokenContract,
		"token_symbol":       h.chainCfg.TokenSymbol,
		"confirmations":      h.depositCfg.Confirmations,
		"min_deposit_amount": h.depositCfg.MinAmount().String(),
		"polling_enabled":    h.depositCfg.PollingEnabled,
		"max_range_per_call": h.depositCfg.MaxRangePerCall,
		"loop_ms":            h.depositCfg.LoopMs,
		"idle_ms":            h.depositCfg.IdleMs,
		"stream_id":          h.depositCfg.StreamID,
	})
}

// GetCheckpoints handles GET /diagnostics/checkpoints
func (h *DiagnosticsHandlers) GetCheckpoints(c *gin.Context) {
	checkpoints, err := h.checkpoints.All(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to read checkpoints", "error", err)
		respondInternalError(c, ErrCodeInternalError, "Failed to read checkpoints")
		return
	}
	respondSuccess(c, gin.H{"checkpoints": checkpoints})
}

// GetCounts handles GET /diagnostics/counts
func (h *DiagnosticsHandlers) GetCounts(c *gin.Context) {
	counts, err := h.events.Counts(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to aggregate event counts", "error", err)
		respondInternalError(c, ErrCodeInternalError, "Failed to aggregate event counts")
		return
	}

	addresses, err := h.addresses.Count(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to count monitored addresses", "error", err)
		respondInternalError(c, ErrCodeInternalError, "Failed to count monitored addresses")
		return
	}

	respondSuccess(c, gin.H{
		"monitored_addresses": addresses,
		"events":              counts,
	})
}

// ListEvents handles GET /diagnostics/events
func (h *DiagnosticsHandlers) ListEvents(c *gin.Context) {
	limit, offset := parseLimitOffset(c, 50, 500)
	filter := repositories.EventFilter{
		Search: c.Query("search"),
		Limit:  limit,
		Offset: offset,
	}

	if raw := c.Query("user_id"); raw != "" {
		userID, err := uuid.Parse(raw)
		if err != nil {
			respondBadRequest(c, ErrCodeInvalidID, "Invalid user_id")
			return
		}
		filter.UserID = &userID
	}

	events, err := h.events.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list deposit events", "error", err)
		respondInternalError(c, ErrCodeInternalError, "Failed to list deposit events")
		return
	}

	respondSuccess(c, gin.H{"events": events, "count": len(events)})
}

// ListScanLogs handles GET /diagnostics/scan-logs
func (h *DiagnosticsHandlers) ListScanLogs(c *gin.Context) {
	limit, offset := parseLimitOffset(c, 50, 500)
	filter := repositories.ScanLogFilter{
		Search: c.Query("search"),
		Status: c.Query("status"),
		Limit:  limit,
		Offset: offset,
	}

	if raw := c.Query("user_id"); raw != "" {
		userID, err := uuid.Parse(raw)
		if err != nil {
			respondBadRequest(c, ErrCodeInvalidID, "Invalid user_id")
			return
		}
		filter.UserID = &userID
	}

	logs, err := h.scanLogs.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list scan logs", "error", err)
		respondInternalError(c, ErrCodeInternalError, "Failed to list scan logs")
		return
	}

	respondSuccess(c, gin.H{"scan_logs": logs, "count": len(logs)})
}

// GetWithdrawalWorker handles GET /diagnostics/withdrawal-worker
func (h *DiagnosticsHandlers) GetWithdrawalWorker(c *gin.Context) {
	if h.withdrawalWorker == nil {
		respondSuccess(c, gin.H{"enabled": false})
		return
	}
	respondSuccess(c, h.withdrawalWorker.Status())
}
