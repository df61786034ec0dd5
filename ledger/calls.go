/*
calls.go - Capital call scheduler

PURPOSE:
  Creates draw-down schedules against a commitment and owns the two explicit
  status inputs the state machine allows: activation (scheduled -> called) and
  administrative override of terminal states.

NORMALIZATION:
  A requested call may arrive as a percentage of the commitment or as a dollar
  figure. Both forms are always stored: percentage requests derive the dollar
  amount, dollar requests back-compute the percentage. One normalization
  point (CallAmount.Normalize), not per-call-site string dispatch.

BATCH INVARIANT:
  sum(existing calls) + sum(new calls) <= commitment.amount. A violation fails
  the whole batch; the store writes the batch atomically so a partial batch
  can never leave calls whose sum exceeds the commitment.
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// CallScheduler creates and administers capital calls.
type CallScheduler struct {
	store TxStore
	audit AuditSink
	cfg   Config
	now   func() time.Time
}

func NewCallScheduler(store TxStore, audit AuditSink, cfg Config) *CallScheduler {
	return &CallScheduler{store: store, audit: audit, cfg: cfg, now: time.Now}
}

// CallRequest is one requested draw-down in a schedule batch.
type CallRequest struct {
	Amount   CallAmount
	CallDate time.Time
	DueDate  time.Time
}

// CreateCapitalCalls normalizes and validates the batch, then writes it
// atomically. All-or-nothing: one bad request rejects every call in the batch.
func (cs *CallScheduler) CreateCapitalCalls(ctx context.Context, commitmentID string, reqs []CallRequest, actorID string) ([]CapitalCall, error) {
	if len(reqs) == 0 {
		return nil, &ValidationError{Field: "calls", Reason: "empty call batch"}
	}

	c, err := cs.store.GetCommitment(ctx, commitmentID)
	if err != nil {
		return nil, err
	}
	if !c.Active() {
		return nil, &ConflictError{Reason: "commitment is written off"}
	}

	existing, err := cs.store.CallsByCommitment(ctx, commitmentID)
	if err != nil {
		return nil, err
	}
	scheduled := decimal.Zero
	for _, call := range existing {
		scheduled = scheduled.Add(call.CallAmount)
	}

	now := cs.now()
	calls := make([]CapitalCall, 0, len(reqs))
	batchTotal := decimal.Zero
	for _, req := range reqs {
		amount, pct, err := req.Amount.Normalize(c.Amount)
		if err != nil {
			return nil, err
		}
		batchTotal = batchTotal.Add(amount)

		calls = append(calls, CapitalCall{
			ID:           newID(),
			AllocationID: commitmentID,
			CallAmount:   amount,
			AmountType:   req.Amount.Type,
			CallPct:      pct,
			CallDate:     req.CallDate,
			DueDate:      req.DueDate,
			PaidAmount:   decimal.Zero,
			Status:       CallScheduled,
			Version:      1,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}

	if scheduled.Add(batchTotal).GreaterThan(c.Amount) {
		return nil, &ValidationError{
			Field: "calls",
			Reason: "call total " + scheduled.Add(batchTotal).String() +
				" exceeds commitment amount " + c.Amount.String(),
		}
	}

	if err := cs.store.PutCalls(ctx, calls); err != nil {
		return nil, err
	}

	recordAudit(ctx, cs.audit, AuditEvent{
		At:           now,
		ActorID:      actorID,
		Action:       AuditCallsScheduled,
		CommitmentID: commitmentID,
		FundID:       c.FundID,
		DealID:       c.DealID,
		Payload:      map[string]any{"count": len(calls), "total": batchTotal.String()},
	})
	return calls, nil
}

// ActivateCall marks a scheduled call as issued (scheduled -> called).
func (cs *CallScheduler) ActivateCall(ctx context.Context, callID string, actorID string) (*CapitalCall, error) {
	var updated *CapitalCall
	err := cs.store.WithTx(ctx, func(s Store) error {
		call, err := s.GetCall(ctx, callID)
		if err != nil {
			return err
		}
		if TerminalCallStatus(call.Status) {
			return ErrTerminalStatus
		}
		call.Activated = true
		call.Status = DeriveCallStatus(*call, cs.now(), cs.cfg.GracePeriod)
		call.UpdatedAt = cs.now()
		if err := s.UpdateCall(ctx, *call, call.Version); err != nil {
			return err
		}
		call.Version++
		updated = call
		return nil
	})
	if err != nil {
		return nil, err
	}

	recordAudit(ctx, cs.audit, AuditEvent{
		At:           cs.now(),
		ActorID:      actorID,
		Action:       AuditCallActivated,
		CommitmentID: updated.AllocationID,
		Payload:      map[string]any{"call_id": callID},
	})
	return updated, nil
}

// OverrideCallStatus is the administrative escape hatch for terminal states.
// It is the only path out of paid or defaulted. The call is marked overridden
// so lazy default detection does not re-default it while still past due.
func (cs *CallScheduler) OverrideCallStatus(ctx context.Context, callID string, status CallStatus, actorID string) (*CapitalCall, error) {
	switch status {
	case CallScheduled, CallCalled, CallPartial, CallPaid, CallDefaulted:
	default:
		return nil, &ValidationError{Field: "status", Reason: "unknown call status: " + string(status)}
	}
	if actorID == "" {
		return nil, &ValidationError{Field: "actor_id", Reason: "override requires an acting user"}
	}

	var updated *CapitalCall
	err := cs.store.WithTx(ctx, func(s Store) error {
		call, err := s.GetCall(ctx, callID)
		if err != nil {
			return err
		}
		call.Status = status
		call.Activated = status != CallScheduled
		call.Overridden = true
		call.UpdatedAt = cs.now()
		if err := s.UpdateCall(ctx, *call, call.Version); err != nil {
			return err
		}
		call.Version++
		updated = call

		return recomputeCommitmentStatus(ctx, s, call.AllocationID, cs.now())
	})
	if err != nil {
		return nil, err
	}

	recordAudit(ctx, cs.audit, AuditEvent{
		At:           cs.now(),
		ActorID:      actorID,
		Action:       AuditCallOverridden,
		CommitmentID: updated.AllocationID,
		Payload:      map[string]any{"call_id": callID, "status": string(status)},
	})
	return updated, nil
}

// CallsByCommitment lists a commitment's calls with statuses refreshed against
// the clock (a call past due date + grace becomes defaulted lazily).
func (cs *CallScheduler) CallsByCommitment(ctx context.Context, commitmentID string) ([]CapitalCall, error) {
	calls, err := cs.store.CallsByCommitment(ctx, commitmentID)
	if err != nil {
		return nil, err
	}
	now := cs.now()
	for i := range calls {
		derived := DeriveCallStatus(calls[i], now, cs.cfg.GracePeriod)
		if derived == calls[i].Status {
			continue
		}
		calls[i].Status = derived
		calls[i].UpdatedAt = now
		if err := cs.store.UpdateCall(ctx, calls[i], calls[i].Version); err != nil {
			return nil, err
		}
		calls[i].Version++
	}
	return calls, nil
}

// recomputeCommitmentStatus re-derives the owning commitment's status from
// its calls. Runs inside the caller's transaction.
func recomputeCommitmentStatus(ctx context.Context, s Store, commitmentID string, now time.Time) error {
	c, err := s.GetCommitment(ctx, commitmentID)
	if err != nil {
		return err
	}
	calls, err := s.CallsByCommitment(ctx, commitmentID)
	if err != nil {
		return err
	}
	derived := DeriveCommitmentStatus(c.Status, calls)
	if derived == c.Status {
		return nil
	}
	c.Status = derived
	c.UpdatedAt = now
	return s.UpdateCommitment(ctx, *c, c.Version)
}
