/*
sync.go - Proportional sync engine

PURPOSE:
  When a commitment's total amount is edited after calls already exist, every
  dependent record must stay consistent with the new total. Dollar-denominated
  calls and closing-schedule targets scale by ratio = new/old; percentage-
  denominated records keep their percentage (it is already relative) and have
  their stored dollar form re-derived from the new total.

ATOMICITY:
  The whole rescale - commitment amount, calls, schedule events, portfolio
  weights - runs inside one store transaction. No reader ever observes the new
  amount next to calls still reflecting the old ratio. Any single record
  failure aborts the whole rescale and surfaces a SyncError carrying the ids
  that had succeeded before the failure, for diagnostic logging. The caller
  retries the whole operation; it never resumes.

AUDIT:
  One audit record summarizing the rescale (old/new amount, counts) is emitted
  after the transaction commits. Fire-and-forget.
*/
package ledger

import (
	"context"
	"log"
	"time"

	"github.com/shopspring/decimal"
)

// SyncResult reports what a rescale touched, so callers can invalidate cached
// aggregates.
type SyncResult struct {
	CommitmentID    string
	OldAmount       decimal.Decimal
	NewAmount       decimal.Decimal
	Ratio           decimal.Decimal
	UpdatedCallIDs  []string
	UpdatedEventIDs []string
}

// SyncEngine rescales a commitment's dependent records when its amount
// changes.
type SyncEngine struct {
	store TxStore
	audit AuditSink
	cfg   Config
	now   func() time.Time
}

func NewSyncEngine(store TxStore, audit AuditSink, cfg Config) *SyncEngine {
	return &SyncEngine{store: store, audit: audit, cfg: cfg, now: time.Now}
}

// SyncCommitmentUpdate applies newAmount to the commitment and rescales all
// dependent calls and closing-schedule events by newAmount/oldAmount,
// atomically. A no-op (newAmount equal to the current amount) changes nothing.
func (e *SyncEngine) SyncCommitmentUpdate(ctx context.Context, commitmentID string, newAmount decimal.Decimal, actorID string) (*SyncResult, error) {
	if newAmount.LessThanOrEqual(decimal.Zero) {
		return nil, &ValidationError{Field: "amount", Reason: "new amount must be positive"}
	}

	result := &SyncResult{CommitmentID: commitmentID, NewAmount: newAmount}

	err := e.store.WithTx(ctx, func(s Store) error {
		c, err := s.GetCommitment(ctx, commitmentID)
		if err != nil {
			return err
		}
		if c.Amount.LessThanOrEqual(decimal.Zero) {
			// Division guard.
			return &ValidationError{Field: "amount", Reason: "existing amount must be positive"}
		}

		result.OldAmount = c.Amount
		result.Ratio = newAmount.Div(c.Amount)

		if newAmount.Equal(c.Amount) {
			// Ratio 1: nothing to do.
			return nil
		}

		if err := e.rescaleCalls(ctx, s, c, newAmount, result); err != nil {
			return err
		}
		if err := e.rescaleEvents(ctx, s, c.DealID, result); err != nil {
			return err
		}

		c.Amount = newAmount
		c.UpdatedAt = e.now()
		if err := s.UpdateCommitment(ctx, *c, c.Version); err != nil {
			return e.abort(result, err)
		}

		// The denominator shifted, so every commitment in the fund gets a
		// fresh weight.
		if err := recomputeWeights(ctx, s, c.FundID, e.now()); err != nil {
			return e.abort(result, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.Ratio.Equal(decimal.NewFromInt(1)) {
		recordAudit(ctx, e.audit, AuditEvent{
			At:           e.now(),
			ActorID:      actorID,
			Action:       AuditCommitmentRescaled,
			CommitmentID: commitmentID,
			Payload: map[string]any{
				"old_amount":      result.OldAmount.String(),
				"new_amount":      result.NewAmount.String(),
				"ratio":           result.Ratio.String(),
				"rescaled_calls":  len(result.UpdatedCallIDs),
				"rescaled_events": len(result.UpdatedEventIDs),
			},
		})
	}
	return result, nil
}

func (e *SyncEngine) rescaleCalls(ctx context.Context, s Store, c *Commitment, newAmount decimal.Decimal, result *SyncResult) error {
	calls, err := s.CallsByCommitment(ctx, c.ID)
	if err != nil {
		return e.abort(result, err)
	}

	hundred := decimal.NewFromInt(100)
	sum := decimal.Zero
	for _, call := range calls {
		switch call.AmountType {
		case AmountDollar:
			call.CallAmount = call.CallAmount.Mul(result.Ratio).Round(2)
			call.CallPct = call.CallAmount.Div(newAmount).Mul(hundred).Round(4)
		case AmountPercentage:
			// The percentage is already relative; only the stored dollar
			// form is re-derived.
			call.CallAmount = newAmount.Mul(call.CallPct).Div(hundred).Round(2)
		}
		if call.PaidAmount.GreaterThan(call.CallAmount) {
			// Money already received cannot be rescaled away.
			return e.abort(result, &ValidationError{
				Field:  "amount",
				Reason: "rescaled amount for call " + call.ID + " would fall below its paid amount " + call.PaidAmount.String(),
			})
		}
		call.Status = DeriveCallStatus(call, e.now(), e.cfg.GracePeriod)
		call.UpdatedAt = e.now()
		sum = sum.Add(call.CallAmount)

		if err := s.UpdateCall(ctx, call, call.Version); err != nil {
			return e.abort(result, err)
		}
		result.UpdatedCallIDs = append(result.UpdatedCallIDs, call.ID)
	}

	if sum.GreaterThan(newAmount) {
		return e.abort(result, &ValidationError{
			Field:  "amount",
			Reason: "rescaled call total exceeds the new commitment amount",
		})
	}
	return nil
}

func (e *SyncEngine) rescaleEvents(ctx context.Context, s Store, dealID string, result *SyncResult) error {
	events, err := s.EventsByDeal(ctx, dealID)
	if err != nil {
		return e.abort(result, err)
	}

	for _, ev := range events {
		if ev.AmountType != AmountDollar || ev.TargetAmount == nil {
			continue
		}
		target := ev.TargetAmount.Mul(result.Ratio).Round(2)
		ev.TargetAmount = &target
		ev.UpdatedAt = e.now()

		if err := s.UpdateEvent(ctx, ev, ev.Version); err != nil {
			return e.abort(result, err)
		}
		result.UpdatedEventIDs = append(result.UpdatedEventIDs, ev.ID)
	}
	return nil
}

// abort wraps a mid-rescale failure in a SyncError carrying the ids that had
// already been written inside the transaction. The transaction rolls back, so
// the list is diagnostic only.
func (e *SyncEngine) abort(result *SyncResult, cause error) error {
	return &SyncError{
		CommitmentID:      result.CommitmentID,
		CompletedCallIDs:  result.UpdatedCallIDs,
		CompletedEventIDs: result.UpdatedEventIDs,
		Cause:             cause,
	}
}

// recordAudit delivers an audit event without letting sink failures surface.
func recordAudit(ctx context.Context, sink AuditSink, e AuditEvent) {
	if sink == nil {
		return
	}
	if e.ID == "" {
		e.ID = newID()
	}
	if err := sink.Record(ctx, e); err != nil {
		log.Printf("audit sink failed for %s on %s: %v", e.Action, e.CommitmentID, err)
	}
}
