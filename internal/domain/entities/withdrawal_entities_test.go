package entities

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestWithdrawalStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    WithdrawalStatus
		to      WithdrawalStatus
		allowed bool
	}{
		{"pending to approved", WithdrawalStatusPending, WithdrawalStatusApproved, true},
		{"pending to rejected", WithdrawalStatusPending, WithdrawalStatusRejected, true},
		{"approved to processing", WithdrawalStatusApproved, WithdrawalStatusProcessing, true},
		{"processing to completed", WithdrawalStatusProcessing, WithdrawalStatusApprovedCompleted, true},
		{"processing to failed", WithdrawalStatusProcessing, WithdrawalStatusFailed, true},
		{"pending to processing skips approval", WithdrawalStatusPending, WithdrawalStatusProcessing, false},
		{"approved to rejected", WithdrawalStatusApproved, WithdrawalStatusRejected, false},
		{"processing to rejected", WithdrawalStatusProcessing, WithdrawalStatusRejected, false},
		{"completed is terminal", WithdrawalStatusApprovedCompleted, WithdrawalStatusPending, false},
		{"failed is not retried", WithdrawalStatusFailed, WithdrawalStatusApproved, false},
		{"rejected is terminal", WithdrawalStatusRejected, WithdrawalStatusApproved, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
			err := tt.from.ValidateTransition(tt.to)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestWithdrawalStatusIsTerminal(t *testing.T) {
	assert.True(t, WithdrawalStatusApprovedCompleted.IsTerminal())
	assert.True(t, WithdrawalStatusFailed.IsTerminal())
	assert.True(t, WithdrawalStatusRejected.IsTerminal())
	assert.False(t, WithdrawalStatusPending.IsTerminal())
	assert.False(t, WithdrawalStatusApproved.IsTerminal())
	assert.False(t, WithdrawalStatusProcessing.IsTerminal())
}

func TestWithdrawalStatusValidateTransitionRejectsUnknownStatus(t *testing.T) {
	err := WithdrawalStatusPending.ValidateTransition(WithdrawalStatus("cancelled"))
	assert.Error(t, err)
}

func TestWithdrawalRequestValidate(t *testing.T) {
	valid := WithdrawalRequest{
		ID:      uuid.New(),
		UserID:  uuid.New(),
		Chain:   "bsc",
		Token:   "0xdeadbeef",
		Address: "0xabc",
		Amount:  decimal.NewFromInt(10),
		Status:  WithdrawalStatusPending,
	}
	assert.NoError(t, valid.Validate())

	missingAddress := valid
	missingAddress.Address = ""
	assert.Error(t, missingAddress.Validate())

	zeroAmount := valid
	zeroAmount.Amount = decimal.Zero
	assert.Error(t, zeroAmount.Validate())

	badStatus := valid
	badStatus.Status = WithdrawalStatus("limbo")
	assert.Error(t, badStatus.Validate())
}
