package entities

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestChainDepositEventValidate(t *testing.T) {
	userID := uuid.New()
	valid := ChainDepositEvent{
		Chain:       "bsc",
		Token:       "0xcontract",
		UserID:      &userID,
		Address:     "0xdeposit",
		Amount:      decimal.RequireFromString("100.00000000"),
		TxHash:      "0xabc",
		LogIndex:    0,
		BlockNumber: 1000,
		Source:      IngestionSourceStream,
	}
	assert.NoError(t, valid.Validate())

	// Unresolved events are still valid; user resolution is not a
	// storage precondition.
	unresolved := valid
	unresolved.UserID = nil
	assert.NoError(t, unresolved.Validate())

	noHash := valid
	noHash.TxHash = ""
	assert.Error(t, noHash.Validate())

	negativeIndex := valid
	negativeIndex.LogIndex = -1
	assert.Error(t, negativeIndex.Validate())

	zeroAmount := valid
	zeroAmount.Amount = decimal.Zero
	assert.Error(t, zeroAmount.Validate())
}

func TestChainDepositEventDedupKey(t *testing.T) {
	event := ChainDepositEvent{TxHash: "0xabc", LogIndex: 7}
	assert.Equal(t, "0xabc:7", event.DedupKey())
}

func TestScanStatusAdvancesCursor(t *testing.T) {
	assert.True(t, ScanStatusSuccess.AdvancesCursor())
	assert.True(t, ScanStatusUpToDate.AdvancesCursor())
	assert.True(t, ScanStatusSkipped.AdvancesCursor())
	assert.False(t, ScanStatusError.AdvancesCursor())
}

func TestScanCursorKey(t *testing.T) {
	assert.Equal(t, "scan_cursor:42", ScanCursorKey(42))
}
