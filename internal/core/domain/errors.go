package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSignatureInvalid means the webhook HMAC did not match the raw body.
	// Always answered with 401 and never retried internally.
	ErrSignatureInvalid = errors.New("webhook signature invalid")

	// ErrInsufficientFunds is returned by an atomic debit whose balance
	// precondition failed.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateEvent short-circuits webhook processing when the event was
	// already applied. It is internal: the provider still gets a 200.
	ErrDuplicateEvent = errors.New("event already processed")

	// ErrScheduleConflict means a live instance for the same cycle already
	// exists; the scheduler logs and skips.
	ErrScheduleConflict = errors.New("open instance already exists for cycle")

	ErrWalletNotFound      = errors.New("wallet not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrPayoutNotFound      = errors.New("payout not found")
)

// ValidationError is a local input failure: no network call was made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ProviderError wraps a network or provider-side failure with enough context
// to triage which provider and operation broke.
type ProviderError struct {
	Provider Provider
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s failed: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
