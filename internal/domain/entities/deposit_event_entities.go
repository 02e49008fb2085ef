package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// IngestionSource identifies which path observed a deposit event
type IngestionSource string

const (
	IngestionSourceStream IngestionSource = "stream" // push webhook
	IngestionSourcePoll   IngestionSource = "poll"   // fallback scanner
)

// MonitoredAddress is a per-user deposit address watched by both ingestion
// paths. Rows are created by the wallet provisioning collaborator and are
// immutable here.
type MonitoredAddress struct {
	ID        int64     `json:"id" db:"id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Chain     string    `json:"chain" db:"chain"`
	Token     string    `json:"token" db:"token"`
	Address   string    `json:"address" db:"address"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ChainDepositEvent is one observed on-chain transfer log. The pair
// (tx_hash, log_index) is globally unique and is the sole dedup mechanism
// across the webhook and polling paths. Rows are never deleted; the only
// mutation ever applied is the single credited=false -> true flip.
type ChainDepositEvent struct {
	ID          int64           `json:"id" db:"id"`
	Chain       string          `json:"chain" db:"chain"`
	Token       string          `json:"token" db:"token"`
	UserID      *uuid.UUID      `json:"user_id,omitempty" db:"user_id"`
	Address     string          `json:"address" db:"address"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	TxHash      string          `json:"tx_hash" db:"tx_hash"`
	LogIndex    int64           `json:"log_index" db:"log_index"`
	BlockNumber int64           `json:"block_number" db:"block_number"`
	Source      IngestionSource `json:"source" db:"source"`
	Credited    bool            `json:"credited" db:"credited"`
	CreditedAt  *time.Time      `json:"credited_at,omitempty" db:"credited_at"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// Validate checks the event carries everything the dedup invariant needs
func (e *ChainDepositEvent) Validate() error {
	if e.TxHash == "" {
		return fmt.Errorf("tx hash is required")
	}
	if e.LogIndex < 0 {
		return fmt.Errorf("log index cannot be negative")
	}
	if e.BlockNumber <= 0 {
		return fmt.Errorf("block number must be positive")
	}
	if e.Address == "" {
		return fmt.Errorf("address is required")
	}
	if e.Amount.IsNegative() || e.Amount.IsZero() {
		return fmt.Errorf("amount must be positive")
	}
	return nil
}

// DedupKey returns the natural key shared with the ledger transaction
func (e *ChainDepositEvent) DedupKey() string {
	return fmt.Sprintf("%s:%d", e.TxHash, e.LogIndex)
}

// IsResolved reports whether the deposit address mapped to a known user
func (e *ChainDepositEvent) IsResolved() bool {
	return e.UserID != nil
}

// ScanStatus is the outcome of one scan cycle for one address
type ScanStatus string

const (
	ScanStatusSuccess  ScanStatus = "success"
	ScanStatusUpToDate ScanStatus = "up_to_date"
	ScanStatusSkipped  ScanStatus = "skipped"
	ScanStatusError    ScanStatus = "error"
)

// IsValid checks the scan status value
func (s ScanStatus) IsValid() bool {
	switch s {
	case ScanStatusSuccess, ScanStatusUpToDate, ScanStatusSkipped, ScanStatusError:
		return true
	}
	return false
}

// AdvancesCursor reports whether this outcome permits checkpoint advance.
// A skipped address scanned no range, so moving past it loses nothing.
// On error the same range is retried next cycle.
func (s ScanStatus) AdvancesCursor() bool {
	return s == ScanStatusSuccess || s == ScanStatusUpToDate || s == ScanStatusSkipped
}

// ScanLog is one append-only diagnostic row per scan attempt per address.
// Never mutated or deleted.
type ScanLog struct {
	ID             int64      `json:"id" db:"id"`
	UserID         *uuid.UUID `json:"user_id,omitempty" db:"user_id"`
	Address        string     `json:"address" db:"address"`
	Status         ScanStatus `json:"status" db:"status"`
	Reason         *string    `json:"reason,omitempty" db:"reason"`
	LatestBlock    int64      `json:"latest_block" db:"latest_block"`
	Confirmations  int64      `json:"confirmations" db:"confirmations"`
	SafeToBlock    int64      `json:"safe_to_block" db:"safe_to_block"`
	CursorBefore   int64      `json:"cursor_before" db:"cursor_before"`
	CursorAfter    int64      `json:"cursor_after" db:"cursor_after"`
	FromBlock      int64      `json:"from_block" db:"from_block"`
	ToBlock        int64      `json:"to_block" db:"to_block"`
	Rounds         int        `json:"rounds" db:"rounds"`
	LogsFound      int        `json:"logs_found" db:"logs_found"`
	CreditedEvents int        `json:"credited_events" db:"credited_events"`
	DurationMs     int64      `json:"duration_ms" db:"duration_ms"`
	ErrorCode      *string    `json:"error_code,omitempty" db:"error_code"`
	ErrorMessage   *string    `json:"error_message,omitempty" db:"error_message"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// Checkpoint keys shared by the ingestion paths
const (
	CheckpointStreamLastUserID = "moralis_stream_last_user_id"
	CheckpointPollLastUserID   = "moralis_poll_last_user_id"
)

// ScanCursorKey returns the per-address cursor checkpoint key
func ScanCursorKey(addressID int64) string {
	return fmt.Sprintf("scan_cursor:%d", addressID)
}
