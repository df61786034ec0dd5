/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers classify errors with errors.Is/errors.As or the helpers below.

ERROR CATEGORIES:
  1. Validation errors - malformed or out-of-bounds input; reject the single
     operation, no partial state change
  2. Not-found errors  - referenced commitment/call/fund/deal does not exist
  3. Conflict errors   - lifecycle rule violations
  4. Sync errors       - a proportional rescale aborted partway; carries the
     ids that did complete for diagnostics
  5. Store errors      - underlying persistence failures

SEE ALSO:
  - store.go: Uses these errors
  - sync.go: Produces SyncError
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the base class for all input validation failures.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a referenced record doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an operation violates a lifecycle rule.
	ErrConflict = errors.New("conflict")

	// ErrConcurrentModification is returned when optimistic locking detects
	// a stale version. Retryable.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrStore wraps underlying persistence failures.
	ErrStore = errors.New("store failure")

	// ErrTerminalStatus is returned when a transition is attempted on a paid
	// or defaulted call without an administrative override.
	ErrTerminalStatus = errors.New("call status is terminal")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes a single rejected input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError identifies which record was missing.
type NotFoundError struct {
	Kind string // "commitment", "call", "fund", "deal", "event"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError describes a lifecycle rule violation.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return e.Reason }

func (e *ConflictError) Unwrap() error { return ErrConflict }

// SyncError reports a proportional rescale that aborted partway. The whole
// operation must be retried; the completed id lists exist for diagnostic
// logging, never for resuming.
type SyncError struct {
	CommitmentID      string
	CompletedCallIDs  []string
	CompletedEventIDs []string
	Cause             error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("rescale of commitment %s aborted after %d calls and %d events: %v",
		e.CommitmentID, len(e.CompletedCallIDs), len(e.CompletedEventIDs), e.Cause)
}

func (e *SyncError) Unwrap() error { return e.Cause }

// StoreError wraps a persistence failure with the operation that hit it.
type StoreError struct {
	Op    string
	Cause error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Cause)
}

func (e *StoreError) Unwrap() error { return ErrStore }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsValidation returns true for business-rule input rejections.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true for lifecycle rule violations.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrTerminalStatus)
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
