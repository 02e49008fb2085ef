package errors

import (
	"errors"
	"fmt"
)

// ChainReadError is a transient failure talking to the RPC/explorer
// endpoint. Callers must not advance any checkpoint when they see one; the
// same block range is retried next cycle. No retry logic lives in the
// reader itself.
type ChainReadError struct {
	Endpoint string
	Op       string
	Err      error
}

// Error implements the error interface
func (e *ChainReadError) Error() string {
	return fmt.Sprintf("chain read %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *ChainReadError) Unwrap() error {
	return e.Err
}

// NewChainReadError creates a chain read error for an RPC operation
func NewChainReadError(endpoint, op string, err error) *ChainReadError {
	return &ChainReadError{Endpoint: endpoint, Op: op, Err: err}
}

// IsChainRead reports whether err is (or wraps) a ChainReadError
func IsChainRead(err error) bool {
	var cre *ChainReadError
	return errors.As(err, &cre)
}

// DuplicateEventError is the expected, benign outcome of both ingestion
// paths racing to insert the same (txHash, logIndex). Swallowed at the
// unique-constraint boundary.
var DuplicateEventError = &DomainError{
	Err:     ErrAlreadyExists,
	Code:    "DUPLICATE_EVENT",
	Message: "deposit event already recorded",
}

// UnresolvedAddressError marks an event whose address has no monitored
// address row yet. The event is stored with a null user id and surfaced for
// manual review; it is not fatal.
var UnresolvedAddressError = &DomainError{
	Err:     ErrNotFound,
	Code:    "UNRESOLVED_ADDRESS",
	Message: "deposit address does not resolve to a user",
}

// CreditingConflictError means another crediting worker instance already
// credited the event. Safe to swallow.
var CreditingConflictError = &DomainError{
	Err:     ErrConflict,
	Code:    "CREDITING_CONFLICT",
	Message: "event already credited by a concurrent worker",
}

// WithdrawalSubmissionError moves a withdrawal request to failed. It is
// never silently retried; an admin must re-approve.
type WithdrawalSubmissionError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *WithdrawalSubmissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("withdrawal submission failed (%s): %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("withdrawal submission failed (%s): %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *WithdrawalSubmissionError) Unwrap() error {
	return e.Err
}

// NewWithdrawalSubmissionError creates a withdrawal submission error
func NewWithdrawalSubmissionError(code, message string, err error) *WithdrawalSubmissionError {
	return &WithdrawalSubmissionError{Code: code, Message: message, Err: err}
}
