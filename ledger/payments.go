/*
payments.go - Payment applicator

PURPOSE:
  Validates and records a payment against a capital call, then re-derives the
  call's and the owning commitment's status. Payment records are an append-only
  audit trail: created once, never mutated or deleted. The call caches
  paidAmount; the invariant paidAmount == sum(payments) holds because both are
  written in the same transaction.

CONCURRENCY:
  The overpayment check reads paidAmount and then writes it. Two concurrent
  payments against the same call could both pass validation against a stale
  value, so the write goes through the store's version check: a stale version
  fails with ErrConcurrentModification and the whole read-validate-write cycle
  is retried, up to Config.PaymentRetries times.

OVERPAYMENT:
  paidAmount + amount > callAmount is rejected with a ValidationError unless
  Config.AllowOverpayment is set, in which case the excess is recorded and the
  payment is flagged.
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentApplicator records payments against calls.
type PaymentApplicator struct {
	store TxStore
	audit AuditSink
	cfg   Config
	now   func() time.Time
}

func NewPaymentApplicator(store TxStore, audit AuditSink, cfg Config) *PaymentApplicator {
	return &PaymentApplicator{store: store, audit: audit, cfg: cfg, now: time.Now}
}

// ApplyPaymentInput carries one payment against one call.
type ApplyPaymentInput struct {
	CallID  string
	Amount  decimal.Decimal
	Date    time.Time
	Type    PaymentType
	ActorID string
	Notes   string
}

// PaymentResult is what changed: the appended payment and the call as updated.
type PaymentResult struct {
	Payment     Payment
	UpdatedCall CapitalCall
}

// ApplyPayment validates, appends the payment record, bumps the call's cached
// paidAmount, re-derives statuses, and sets paidDate when the call completes.
// Either everything commits or nothing does.
func (pa *PaymentApplicator) ApplyPayment(ctx context.Context, in ApplyPaymentInput) (*PaymentResult, error) {
	if in.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, &ValidationError{Field: "amount", Reason: "payment amount must be positive"}
	}
	switch in.Type {
	case PaymentWire, PaymentCheck, PaymentACH, PaymentOther:
	case "":
		in.Type = PaymentOther
	default:
		return nil, &ValidationError{Field: "payment_type", Reason: "unknown payment type: " + string(in.Type)}
	}

	var result *PaymentResult
	var err error
	retries := pa.cfg.PaymentRetries
	if retries < 1 {
		retries = 1
	}
	for attempt := 0; attempt < retries; attempt++ {
		result, err = pa.apply(ctx, in)
		if err == nil || !IsRetryable(err) {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	recordAudit(ctx, pa.audit, AuditEvent{
		At:           pa.now(),
		ActorID:      in.ActorID,
		Action:       AuditPaymentApplied,
		CommitmentID: result.UpdatedCall.AllocationID,
		Payload: map[string]any{
			"call_id":     in.CallID,
			"payment_id":  result.Payment.ID,
			"amount":      in.Amount.String(),
			"call_status": string(result.UpdatedCall.Status),
			"flagged":     result.Payment.Flagged,
		},
	})
	return result, nil
}

func (pa *PaymentApplicator) apply(ctx context.Context, in ApplyPaymentInput) (*PaymentResult, error) {
	var result PaymentResult
	now := pa.now()

	err := pa.store.WithTx(ctx, func(s Store) error {
		call, err := s.GetCall(ctx, in.CallID)
		if err != nil {
			return err
		}
		if call.Status == CallDefaulted {
			return ErrTerminalStatus
		}

		flagged := false
		if call.PaidAmount.Add(in.Amount).GreaterThan(call.CallAmount) {
			if !pa.cfg.AllowOverpayment {
				return &ValidationError{
					Field: "amount",
					Reason: "payment would exceed call amount: paid " + call.PaidAmount.String() +
						" + " + in.Amount.String() + " > " + call.CallAmount.String(),
				}
			}
			flagged = true
		}

		payment := Payment{
			ID:            newID(),
			CapitalCallID: call.ID,
			Amount:        in.Amount,
			Date:          in.Date,
			Type:          in.Type,
			Notes:         in.Notes,
			CreatedBy:     in.ActorID,
			Flagged:       flagged,
			CreatedAt:     now,
		}
		if err := s.AppendPayment(ctx, payment); err != nil {
			return err
		}

		call.PaidAmount = call.PaidAmount.Add(in.Amount)
		call.Activated = true
		call.Status = DeriveCallStatus(*call, now, pa.cfg.GracePeriod)
		if call.Status == CallPaid && call.PaidDate == nil {
			paidDate := in.Date
			call.PaidDate = &paidDate
		}
		call.UpdatedAt = now

		if err := s.UpdateCall(ctx, *call, call.Version); err != nil {
			return err
		}
		call.Version++

		result.Payment = payment
		result.UpdatedCall = *call

		return recomputeCommitmentStatus(ctx, s, call.AllocationID, now)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// PaymentsByCall returns a call's full payment trail, oldest first.
func (pa *PaymentApplicator) PaymentsByCall(ctx context.Context, callID string) ([]Payment, error) {
	return pa.store.PaymentsByCall(ctx, callID)
}
