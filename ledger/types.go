/*
Package ledger provides the capital commitment and call engine.

PURPOSE:
  This package contains the domain types and algorithms for tracking capital
  commitments made by funds into deals, the capital calls drawn against those
  commitments, the payments applied to calls, and the performance metrics
  derived from them (MOIC, DPI, TVPI, portfolio weight).

KEY CONCEPTS IN THIS FILE (types.go):
  - Commitment: Total capital a fund has agreed to invest in a deal
  - CapitalCall: A draw-down request against a commitment
  - Payment: An immutable record of capital received against a call
  - CallAmount: Tagged percentage/dollar variant with one normalization point
  - ClosingScheduleEvent: Deal-level milestone targets, rescaled with calls

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point errors
  2. Immutability: Payments are never modified or deleted
  3. Derived status: Call and commitment status are functions of amounts,
     never set directly by callers (see status.go)
  4. Versioning: Mutable records carry a version counter for optimistic
     concurrency (see store.go)

SEE ALSO:
  - status.go: Status derivation rules
  - store.go: Persistence interfaces
  - errors.go: Error taxonomy
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT VARIANT - Percentage or dollar, normalized in one place
// =============================================================================

type AmountType string

const (
	AmountDollar     AmountType = "dollar"
	AmountPercentage AmountType = "percentage"
)

// CallAmount is the tagged {Percentage | Dollar} variant used wherever an
// amount can be expressed either way. Value is dollars when Type is dollar,
// a 0-100 percentage when Type is percentage.
type CallAmount struct {
	Type  AmountType
	Value decimal.Decimal
}

func Dollars(v decimal.Decimal) CallAmount {
	return CallAmount{Type: AmountDollar, Value: v}
}

func Percentage(v decimal.Decimal) CallAmount {
	return CallAmount{Type: AmountPercentage, Value: v}
}

// Normalize resolves the variant against a base amount and returns both forms:
// the dollar amount (2 decimal places) and the percentage of base (4 places).
// Both forms are always stored, regardless of how the amount was given.
func (a CallAmount) Normalize(base decimal.Decimal) (amount, pct decimal.Decimal, err error) {
	if base.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, decimal.Zero, &ValidationError{
			Field:  "base",
			Reason: "base amount must be positive",
		}
	}
	switch a.Type {
	case AmountPercentage:
		if a.Value.LessThanOrEqual(decimal.Zero) || a.Value.GreaterThan(decimal.NewFromInt(100)) {
			return decimal.Zero, decimal.Zero, &ValidationError{
				Field:  "amount",
				Reason: "percentage must be in (0, 100]",
			}
		}
		amount = base.Mul(a.Value).Div(decimal.NewFromInt(100)).Round(2)
		pct = a.Value.Round(4)
	case AmountDollar:
		if a.Value.LessThanOrEqual(decimal.Zero) {
			return decimal.Zero, decimal.Zero, &ValidationError{
				Field:  "amount",
				Reason: "amount must be positive",
			}
		}
		amount = a.Value.Round(2)
		pct = a.Value.Div(base).Mul(decimal.NewFromInt(100)).Round(4)
	default:
		return decimal.Zero, decimal.Zero, &ValidationError{
			Field:  "amount_type",
			Reason: "unknown amount type: " + string(a.Type),
		}
	}
	return amount, pct, nil
}

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// STATUSES
// =============================================================================

type CommitmentStatus string

const (
	CommitmentCommitted     CommitmentStatus = "committed"
	CommitmentFunded        CommitmentStatus = "funded"
	CommitmentPartiallyPaid CommitmentStatus = "partially_paid"
	CommitmentUnfunded      CommitmentStatus = "unfunded"
	CommitmentWrittenOff    CommitmentStatus = "written_off"
)

type CallStatus string

const (
	CallScheduled CallStatus = "scheduled"
	CallCalled    CallStatus = "called"
	CallPartial   CallStatus = "partial"
	CallPaid      CallStatus = "paid"
	CallDefaulted CallStatus = "defaulted"
)

type PaymentType string

const (
	PaymentWire  PaymentType = "wire"
	PaymentCheck PaymentType = "check"
	PaymentACH   PaymentType = "ach"
	PaymentOther PaymentType = "other"
)

// =============================================================================
// COMMITMENT - One per fund x deal allocation
// =============================================================================

type Commitment struct {
	ID           string
	FundID       string
	DealID       string
	Amount       decimal.Decimal // total committed capital, always dollars
	AmountType   AmountType      // how the amount was originally expressed
	SecurityType string
	Status       CommitmentStatus

	// Share of the fund's total active commitments, 0-100.
	// Written-off commitments have weight 0 and are excluded from the
	// denominator.
	PortfolioWeight decimal.Decimal

	// Derived valuation inputs, maintained by external reporting feeds.
	MarketValue   decimal.Decimal
	TotalReturned decimal.Decimal // distributions
	MOIC          decimal.Decimal

	Date    time.Time
	Notes   string
	Version int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Active reports whether the commitment counts toward the fund's weight
// denominator.
func (c *Commitment) Active() bool {
	return c.Status != CommitmentWrittenOff
}

// =============================================================================
// CAPITAL CALL - Many per commitment
// =============================================================================

type CapitalCall struct {
	ID           string
	AllocationID string // owning commitment

	CallAmount decimal.Decimal // dollars
	AmountType AmountType      // how the call was originally expressed
	CallPct    decimal.Decimal // 0-100, always stored alongside CallAmount

	CallDate time.Time
	DueDate  time.Time

	PaidAmount decimal.Decimal
	PaidDate   *time.Time
	Status     CallStatus

	// Activated distinguishes scheduled from called when no payments exist.
	Activated bool

	// Overridden marks a call whose status was set administratively. Lazy
	// default detection leaves overridden calls alone; without this the
	// escape hatch out of defaulted would be undone on the next read.
	Overridden bool

	Version int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Remaining returns the unpaid portion of the call.
func (c *CapitalCall) Remaining() decimal.Decimal {
	return c.CallAmount.Sub(c.PaidAmount)
}

// =============================================================================
// PAYMENT - Append-only audit trail, many per call
// =============================================================================

type Payment struct {
	ID            string
	CapitalCallID string
	Amount        decimal.Decimal
	Date          time.Time
	Type          PaymentType
	Notes         string
	CreatedBy     string

	// Flagged marks a payment that pushed the call past its amount while the
	// overpayment allowance was on.
	Flagged bool

	CreatedAt time.Time
}

// =============================================================================
// CLOSING SCHEDULE EVENT - Deal-level milestones, siblings of commitments
// =============================================================================

type ClosingScheduleEvent struct {
	ID     string
	DealID string
	Name   string

	AmountType   AmountType
	TargetAmount *decimal.Decimal // nil = no target set
	ActualAmount *decimal.Decimal

	EventDate time.Time
	Version   int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// EXTERNAL ENTITIES - Read through directory interfaces
// =============================================================================

type Fund struct {
	ID   string
	Name string
	AUM  decimal.Decimal
}

type Deal struct {
	ID    string
	Name  string
	Stage string

	// RaiseAmount is the deal-level raise a percentage commitment resolves
	// against.
	RaiseAmount decimal.Decimal
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config carries the tunable policy inputs for the engine. The grace period
// and the overpayment allowance are explicit configuration, not inferred
// defaults.
type Config struct {
	MinCommitment decimal.Decimal
	MaxCommitment decimal.Decimal

	// GracePeriod is how long past the due date an unpaid call may sit before
	// it is considered defaulted.
	GracePeriod time.Duration

	// AllowOverpayment records excess payments instead of rejecting them.
	// Excess payments are flagged.
	AllowOverpayment bool

	// Batch aggregation tuning.
	BatchChunkSize  int
	BatchingEnabled bool
	BatchDeadline   time.Duration

	// PaymentRetries bounds optimistic-concurrency retries when applying a
	// payment.
	PaymentRetries int
}

func DefaultConfig() Config {
	return Config{
		MinCommitment:    decimal.NewFromInt(1),
		MaxCommitment:    decimal.NewFromInt(1_000_000_000),
		GracePeriod:      30 * 24 * time.Hour,
		AllowOverpayment: false,
		BatchChunkSize:   50,
		BatchingEnabled:  true,
		BatchDeadline:    10 * time.Second,
		PaymentRetries:   3,
	}
}
