// Package auto_withdrawal executes admin-approved withdrawal requests.
// It claims one approved request at a time, submits the on-chain transfer
// through the signing service, waits for confirmation depth, and records
// the terminal outcome. Failed requests are never retried without admin
// re-approval.
package auto_withdrawal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vestra/chain_service/internal/adapters/chainrpc"
	"github.com/vestra/chain_service/internal/domain/entities"
	domainerrors "github.com/vestra/chain_service/internal/domain/errors"
	"github.com/vestra/chain_service/internal/infrastructure/cache"
	"github.com/vestra/chain_service/pkg/logger"
	"github.com/vestra/chain_service/pkg/metrics"
)

// WithdrawalStore claims and transitions withdrawal requests
type WithdrawalStore interface {
	ClaimNextApproved(ctx context.Context) (*entities.WithdrawalRequest, error)
	ListStalledProcessing(ctx context.Context) ([]*entities.WithdrawalRequest, error)
	SetTxHash(ctx context.Context, id uuid.UUID, txHash string) error
	MarkCompleted(ctx context.Context, id uuid.UUID, txHash string) error
	MarkFailed(ctx context.Context, id uuid.UUID, adminNote string) error
}

// errStopping marks a withdrawal interrupted by shutdown rather than a
// chain or submission failure. The row stays in processing and is picked
// up again by the next startup's resume pass.
var errStopping = errors.New("worker stopping")

// TransferSubmitter submits a signed on-chain transfer
type TransferSubmitter interface {
	SubmitTransfer(ctx context.Context, to string, amount decimal.Decimal) (string, error)
}

// ChainReader tracks confirmation depth for submitted transfers
type ChainReader interface {
	CurrentHead(ctx context.Context) (int64, error)
	TransactionReceipt(ctx context.Context, txHash string) (*chainrpc.Receipt, error)
}

// Config holds worker configuration
type Config struct {
	Enabled           bool
	WithdrawalAddress string
	TokenContract     string
	Confirmations     int64
	LoopInterval      time.Duration
	IdleInterval      time.Duration
	ConfirmPollEvery  time.Duration
	ConfirmTimeout    time.Duration
}

// DefaultConfig returns default worker configuration
func DefaultConfig() *Config {
	return &Config{
		Enabled:          true,
		Confirmations:    12,
		LoopInterval:     10 * time.Second,
		IdleInterval:     30 * time.Second,
		ConfirmPollEvery: 15 * time.Second,
		ConfirmTimeout:   30 * time.Minute,
	}
}

// Worker is the auto-withdrawal executor
type Worker struct {
	withdrawals WithdrawalStore
	submitter   TransferSubmitter
	reader      ChainReader
	redis       cache.RedisClient
	config      *Config
	status      *statusTracker
	logger      *logger.Logger
	stopCh      chan struct{}
}

// NewWorker creates a new auto-withdrawal worker
func NewWorker(
	withdrawals WithdrawalStore,
	submitter TransferSubmitter,
	reader ChainReader,
	redis cache.RedisClient,
	config *Config,
	logger *logger.Logger,
) *Worker {
	if config == nil {
		config = DefaultConfig()
	}
	return &Worker{
		withdrawals: withdrawals,
		submitter:   submitter,
		reader:      reader,
		redis:       redis,
		config:      config,
		status:      newStatusTracker(config),
		logger:      logger,
		stopCh:      make(chan struct{}),
	}
}

// Status returns the current operability snapshot
func (w *Worker) Status() Status {
	return w.status.Snapshot()
}

// Start begins the withdrawal loop
func (w *Worker) Start(ctx context.Context) {
	if !w.config.Enabled {
		w.logger.Info("Auto-withdrawal worker disabled")
		return
	}

	w.logger.Info("Starting auto-withdrawal worker",
		"withdrawal_address", w.config.WithdrawalAddress,
		"token_contract", w.config.TokenContract,
		"confirmations", w.config.Confirmations)
	w.status.record("info", "worker started", nil)

	w.resumeStalled(ctx)

	for {
		idle := w.runOnce(ctx)
		w.status.heartbeat()
		w.publishStatus(ctx)

		interval := w.config.LoopInterval
		if idle {
			interval = w.config.IdleInterval
		}

		select {
		case <-ctx.Done():
			w.logger.Info("Auto-withdrawal worker stopped (context cancelled)")
			return
		case <-w.stopCh:
			w.logger.Info("Auto-withdrawal worker stopped")
			return
		case <-time.After(interval):
		}
	}
}

// Stop stops the worker
func (w *Worker) Stop() {
	close(w.stopCh)
}

// runOnce claims and executes at most one approved request. Returns true
// when nothing was waiting.
func (w *Worker) runOnce(ctx context.Context) bool {
	request, err := w.withdrawals.ClaimNextApproved(ctx)
	if err != nil {
		w.logger.Error("Failed to claim approved withdrawal", "error", err)
		w.status.record("error", "claim failed: "+err.Error(), nil)
		return false
	}
	if request == nil {
		return true
	}

	w.status.record("info", "claimed withdrawal", map[string]interface{}{
		"request_id": request.ID.String(),
		"amount":     request.Amount.String(),
	})

	if err := w.execute(ctx, request); err != nil {
		if errors.Is(err, errStopping) {
			// Shutdown is not a withdrawal failure. The row stays in
			// processing with its tx hash; startup resumes the wait.
			w.logger.Info("Shutdown while awaiting confirmation, leaving withdrawal in processing",
				"request_id", request.ID)
			w.status.record("info", "shutdown mid-confirmation, withdrawal left in processing", map[string]interface{}{
				"request_id": request.ID.String(),
			})
			return false
		}
		metrics.WithdrawalSubmissions.WithLabelValues("failed").Inc()
		w.logger.Error("Withdrawal failed",
			"request_id", request.ID,
			"error", err)
		w.status.record("error", "withdrawal failed: "+err.Error(), map[string]interface{}{
			"request_id": request.ID.String(),
		})
		if markErr := w.withdrawals.MarkFailed(ctx, request.ID, err.Error()); markErr != nil {
			w.logger.Error("Failed to record withdrawal failure",
				"request_id", request.ID,
				"error", markErr)
		}
		return false
	}

	metrics.WithdrawalSubmissions.WithLabelValues("completed").Inc()
	return false
}

// execute submits the transfer and waits for confirmation depth
func (w *Worker) execute(ctx context.Context, request *entities.WithdrawalRequest) error {
	txHash, err := w.submitter.SubmitTransfer(ctx, request.Address, request.Amount)
	if err != nil {
		return domainerrors.NewWithdrawalSubmissionError("SUBMIT_FAILED", "signing service rejected the transfer", err)
	}

	// Persist the hash before waiting so a crash mid-confirmation leaves
	// an auditable trail on the processing row.
	if err := w.withdrawals.SetTxHash(ctx, request.ID, txHash); err != nil {
		return fmt.Errorf("failed to record tx hash %s: %w", txHash, err)
	}

	w.status.record("info", "transfer submitted", map[string]interface{}{
		"request_id": request.ID.String(),
		"tx_hash":    txHash,
	})

	return w.confirmAndComplete(ctx, request.ID, txHash)
}

// confirmAndComplete waits out the confirmation depth and records the
// terminal completed state. Shared by the claim path and the startup
// resume pass.
func (w *Worker) confirmAndComplete(ctx context.Context, id uuid.UUID, txHash string) error {
	if err := w.awaitConfirmation(ctx, txHash); err != nil {
		return err
	}

	if err := w.withdrawals.MarkCompleted(ctx, id, txHash); err != nil {
		return fmt.Errorf("failed to complete withdrawal: %w", err)
	}

	w.logger.Info("Withdrawal completed",
		"request_id", id,
		"tx_hash", txHash)
	w.status.record("info", "withdrawal completed", map[string]interface{}{
		"request_id": id.String(),
		"tx_hash":    txHash,
	})
	return nil
}

// resumeStalled picks up processing rows orphaned by a previous process.
// A submitted transfer may have confirmed while nobody was watching, so
// each one re-enters confirmation polling instead of being failed or
// re-submitted.
func (w *Worker) resumeStalled(ctx context.Context) {
	stalled, err := w.withdrawals.ListStalledProcessing(ctx)
	if err != nil {
		w.logger.Error("Failed to list stalled withdrawals", "error", err)
		return
	}

	for _, request := range stalled {
		if request.TxHash == nil || *request.TxHash == "" {
			continue
		}
		txHash := *request.TxHash

		w.logger.Info("Resuming in-flight withdrawal",
			"request_id", request.ID,
			"tx_hash", txHash)
		w.status.record("info", "resuming in-flight withdrawal", map[string]interface{}{
			"request_id": request.ID.String(),
			"tx_hash":    txHash,
		})

		err := w.confirmAndComplete(ctx, request.ID, txHash)
		switch {
		case err == nil:
			metrics.WithdrawalSubmissions.WithLabelValues("completed").Inc()
		case errors.Is(err, errStopping):
			return
		default:
			metrics.WithdrawalSubmissions.WithLabelValues("failed").Inc()
			w.logger.Error("Resumed withdrawal failed",
				"request_id", request.ID,
				"error", err)
			if markErr := w.withdrawals.MarkFailed(ctx, request.ID, err.Error()); markErr != nil {
				w.logger.Error("Failed to record withdrawal failure",
					"request_id", request.ID,
					"error", markErr)
			}
		}
	}
}

// awaitConfirmation polls until the transfer is buried under the
// configured confirmation depth
func (w *Worker) awaitConfirmation(ctx context.Context, txHash string) error {
	deadline := time.Now().Add(w.config.ConfirmTimeout)

	for {
		receipt, err := w.reader.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			if !receipt.Succeeded {
				return domainerrors.NewWithdrawalSubmissionError("TX_REVERTED", "on-chain transfer reverted", nil)
			}
			head, headErr := w.reader.CurrentHead(ctx)
			if headErr == nil && head-receipt.BlockNumber >= w.config.Confirmations {
				return nil
			}
		} else if err != nil {
			// Transient read failures just extend the wait.
			w.logger.Warn("Failed to poll withdrawal receipt", "tx_hash", txHash, "error", err)
		}

		if time.Now().After(deadline) {
			return domainerrors.NewWithdrawalSubmissionError("CONFIRM_TIMEOUT", "transfer not confirmed in time", nil)
		}

		w.status.heartbeat()
		w.publishStatus(ctx)

		select {
		case <-ctx.Done():
			return fmt.Errorf("awaiting confirmation of %s: %w", txHash, errStopping)
		case <-w.stopCh:
			return fmt.Errorf("awaiting confirmation of %s: %w", txHash, errStopping)
		case <-time.After(w.config.ConfirmPollEvery):
		}
	}
}

// publishStatus mirrors the snapshot to redis for the diagnostics surface
func (w *Worker) publishStatus(ctx context.Context) {
	if w.redis == nil {
		return
	}
	if err := w.redis.Set(ctx, statusRedisKey, w.status.Snapshot(), 5*time.Minute); err != nil {
		w.logger.Debug("Failed to publish worker status", "error", err)
	}
}
