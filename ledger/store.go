/*
store.go - Persistence interfaces for the ledger

PURPOSE:
  Defines the interface between the domain logic and the database. Every
  component takes these interfaces through its constructor; nothing reaches
  into process-wide state.

KEY INTERFACES:
  Store:         All record persistence (commitments, calls, payments, events)
  TxStore:       Transactional composition (atomic multi-record writes)
  FundDirectory: External fund reference data + AUM updates
  DealDirectory: External deal reference data + stage signals
  AuditSink:     Write-only timeline events, fire-and-forget

APPEND-ONLY CONTRACT:
  Payments are append-only: AppendPayment exists, no update or delete ever.
  Corrections to a call happen through further payments or administrative
  override, with history preserved.

OPTIMISTIC CONCURRENCY:
  UpdateCommitment/UpdateCall/UpdateEvent take the version the caller read.
  Implementations must fail with ErrConcurrentModification when the stored
  version differs, so read-then-write sequences (the overpayment check) are
  serialized per record.

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite
  - ledger/store: In-memory for testing

SEE ALSO:
  - payments.go: Relies on the version check
  - sync.go: Relies on WithTx for atomic rescale
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STORE - Record persistence
// =============================================================================

type CommitmentStore interface {
	// PutCommitment inserts a new commitment.
	PutCommitment(ctx context.Context, c Commitment) error

	// GetCommitment returns nil, NotFoundError if absent.
	GetCommitment(ctx context.Context, id string) (*Commitment, error)

	// UpdateCommitment persists c if the stored version equals
	// expectedVersion, bumping the version. Fails with
	// ErrConcurrentModification otherwise.
	UpdateCommitment(ctx context.Context, c Commitment, expectedVersion int) error

	// DeleteCommitment removes the record. Lifecycle rules are enforced by
	// the service, not here.
	DeleteCommitment(ctx context.Context, id string) error

	CommitmentsByFund(ctx context.Context, fundID string) ([]Commitment, error)
	CommitmentsByDeal(ctx context.Context, dealID string) ([]Commitment, error)

	// CommitmentsByIDs returns the records that exist; missing ids are not an
	// error. Used by the batch aggregation layer.
	CommitmentsByIDs(ctx context.Context, ids []string) ([]Commitment, error)
}

type CallStore interface {
	// PutCalls inserts a batch of calls atomically: either all are written or
	// none are.
	PutCalls(ctx context.Context, calls []CapitalCall) error

	GetCall(ctx context.Context, id string) (*CapitalCall, error)

	// UpdateCall has the same version discipline as UpdateCommitment.
	UpdateCall(ctx context.Context, c CapitalCall, expectedVersion int) error

	CallsByCommitment(ctx context.Context, allocationID string) ([]CapitalCall, error)

	// CallsDueBetween returns calls with a due date in [from, to], for
	// calendar views.
	CallsDueBetween(ctx context.Context, from, to time.Time) ([]CapitalCall, error)
}

type PaymentStore interface {
	// AppendPayment records a payment. Append-only: no update, no delete.
	AppendPayment(ctx context.Context, p Payment) error

	PaymentsByCall(ctx context.Context, callID string) ([]Payment, error)
}

type EventStore interface {
	PutEvents(ctx context.Context, events []ClosingScheduleEvent) error
	EventsByDeal(ctx context.Context, dealID string) ([]ClosingScheduleEvent, error)
	UpdateEvent(ctx context.Context, e ClosingScheduleEvent, expectedVersion int) error
}

// Store bundles all record persistence. Services depend on this, or on the
// narrower interfaces above when that is all they need.
type Store interface {
	CommitmentStore
	CallStore
	PaymentStore
	EventStore
}

// TxStore wraps Store with transaction support. fn runs against a Store view
// whose writes commit together or roll back together.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// DIRECTORIES - External collaborators, specified at the boundary only
// =============================================================================

// FundDirectory is the external fund registry. The ledger reads fund identity
// and pushes AUM totals after commitment mutations.
type FundDirectory interface {
	GetFund(ctx context.Context, id string) (*Fund, error)

	// UpdateFundAUM replaces the fund's assets-under-management figure with
	// the given total of funded commitment amounts.
	UpdateFundAUM(ctx context.Context, fundID string, aum decimal.Decimal) error
}

// DealDirectory is the external deal registry. The ledger reads deal identity
// and signals (does not perform) a stage change when a deal loses its last
// active commitment.
type DealDirectory interface {
	GetDeal(ctx context.Context, id string) (*Deal, error)

	// SignalDealDivested tells the directory the deal no longer has active
	// commitments. The directory owns the actual stage mutation.
	SignalDealDivested(ctx context.Context, dealID string) error
}

// =============================================================================
// AUDIT SINK - Write-only timeline, fire-and-forget
// =============================================================================

type AuditAction string

const (
	AuditCommitmentCreated    AuditAction = "commitment_created"
	AuditCommitmentRescaled   AuditAction = "commitment_rescaled"
	AuditCommitmentDeleted    AuditAction = "commitment_deleted"
	AuditCommitmentWrittenOff AuditAction = "commitment_written_off"
	AuditCallsScheduled       AuditAction = "calls_scheduled"
	AuditCallActivated        AuditAction = "call_activated"
	AuditCallOverridden       AuditAction = "call_overridden"
	AuditPaymentApplied       AuditAction = "payment_applied"
)

// AuditEvent is one structured timeline entry per mutating operation.
type AuditEvent struct {
	ID           string
	At           time.Time
	ActorID      string
	Action       AuditAction
	CommitmentID string
	FundID       string
	DealID       string
	Payload      map[string]any
}

// AuditSink receives timeline events. Delivery is fire-and-forget: a sink
// failure must never fail the ledger operation that produced the event.
type AuditSink interface {
	Record(ctx context.Context, e AuditEvent) error
}

// AuditQuerier is the read side of a sink that also stores its events.
type AuditQuerier interface {
	EventsByCommitment(ctx context.Context, commitmentID string) ([]AuditEvent, error)
}

// NopAuditSink discards events. Useful in tests.
type NopAuditSink struct{}

func (NopAuditSink) Record(context.Context, AuditEvent) error { return nil }
