package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DatabaseConnectionsGauge tracks database pool state by connection state label
	DatabaseConnectionsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chain_service_db_connections",
		Help: "Database connection pool state",
	}, []string{"state"})

	// DepositEventsIngested counts deposit events upserted by ingestion source
	DepositEventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chain_service_deposit_events_ingested_total",
		Help: "Deposit events observed per ingestion source",
	}, []string{"source", "result"})

	// ScanCycles counts polling scanner cycles by outcome status
	ScanCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chain_service_scan_cycles_total",
		Help: "Polling scanner cycles per address by status",
	}, []string{"status"})

	// ScanDuration observes per-address scan duration in seconds
	ScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chain_service_scan_duration_seconds",
		Help:    "Per-address scan cycle duration",
		Buckets: prometheus.DefBuckets,
	})

	// CreditsApplied counts balance credits applied by the crediting worker
	CreditsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chain_service_credits_applied_total",
		Help: "Deposit events promoted to wallet balance credits",
	})

	// CreditsSkipped counts events the crediting worker skipped, by reason
	CreditsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chain_service_credits_skipped_total",
		Help: "Crediting skips by reason",
	}, []string{"reason"})

	// WithdrawalSubmissions counts on-chain withdrawal submissions by outcome
	WithdrawalSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chain_service_withdrawal_submissions_total",
		Help: "Auto-withdrawal submissions by outcome",
	}, []string{"outcome"})

	// ChainHeadGauge records the most recently observed chain head
	ChainHeadGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chain_service_chain_head_block",
		Help: "Latest observed chain head block number",
	})
)
