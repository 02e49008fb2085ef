package crediting

import (
	"context"
	"time"

	creditingservice "github.com/vestra/chain_service/internal/domain/services/crediting"
	"github.com/vestra/chain_service/pkg/logger"
)

// Config holds worker configuration
type Config struct {
	LoopInterval time.Duration
	IdleInterval time.Duration
}

// DefaultConfig returns default worker configuration
func DefaultConfig() *Config {
	return &Config{
		LoopInterval: 15 * time.Second,
		IdleInterval: 60 * time.Second,
	}
}

// Worker runs the crediting service on its own cadence. It is the only
// component that mutates balances from chain events, and it is safe to run
// more than one instance: the per-event row lock arbitrates.
type Worker struct {
	service *creditingservice.Service
	config  *Config
	logger  *logger.Logger
	stopCh  chan struct{}
}

// NewWorker creates a new crediting worker
func NewWorker(service *creditingservice.Service, config *Config, logger *logger.Logger) *Worker {
	if config == nil {
		config = DefaultConfig()
	}
	return &Worker{
		service: service,
		config:  config,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
}

// Start begins the crediting loop
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Starting crediting worker",
		"loop_interval", w.config.LoopInterval.String(),
		"idle_interval", w.config.IdleInterval.String())

	for {
		idle := w.runOnce(ctx)

		interval := w.config.LoopInterval
		if idle {
			interval = w.config.IdleInterval
		}

		select {
		case <-ctx.Done():
			w.logger.Info("Crediting worker stopped (context cancelled)")
			return
		case <-w.stopCh:
			w.logger.Info("Crediting worker stopped")
			return
		case <-time.After(interval):
		}
	}
}

// Stop stops the worker
func (w *Worker) Stop() {
	close(w.stopCh)
}

func (w *Worker) runOnce(ctx context.Context) bool {
	result, err := w.service.RunOnce(ctx)
	if err != nil {
		w.logger.Error("Crediting pass failed", "error", err)
		return false
	}

	if result.Examined == 0 {
		return true
	}

	w.logger.Info("Crediting pass finished",
		"head", result.Head,
		"safe_to_block", result.SafeToBlock,
		"examined", result.Examined,
		"credited", result.Credited,
		"skipped", result.Skipped,
		"failed", result.Failed)
	return false
}
