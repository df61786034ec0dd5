/*
status.go - Status state machine

PURPOSE:
  Derives a call's and a commitment's status purely from amounts (plus the
  clock, for defaults). This is the ONLY place status is computed; callers
  never set it directly except the initial scheduled state and administrative
  override of terminal states.

CALL STATUS TABLE:
  paidAmount == 0, not activated                       -> scheduled
  paidAmount == 0, activated                           -> called
  0 < paidAmount < callAmount                          -> partial
  paidAmount >= callAmount                             -> paid
  due date + grace passed, paidAmount < callAmount     -> defaulted (terminal)

TERMINAL STATES:
  paid and defaulted reject further transitions except explicit administrative
  override (see calls.go OverrideCallStatus). Overridden calls never re-enter
  defaulted through the clock; only a further override or full payment moves
  them.

COMMITMENT STATUS:
  written_off        sticky, set by write-off only
  unfunded           any call defaulted
  funded             at least one call and all calls paid
  partially_paid     some money received but not all calls paid
  committed          otherwise
*/
package ledger

import "time"

// TerminalCallStatus reports whether s rejects non-override transitions.
func TerminalCallStatus(s CallStatus) bool {
	return s == CallPaid || s == CallDefaulted
}

// DeriveCallStatus computes the status a call should have at the given time.
// Once a call is defaulted it stays defaulted; payment after default needs an
// administrative override.
func DeriveCallStatus(c CapitalCall, now time.Time, grace time.Duration) CallStatus {
	if c.Status == CallDefaulted {
		return CallDefaulted
	}
	if c.PaidAmount.GreaterThanOrEqual(c.CallAmount) {
		return CallPaid
	}
	if !c.Overridden && !c.DueDate.IsZero() && now.After(c.DueDate.Add(grace)) {
		return CallDefaulted
	}
	if c.PaidAmount.IsPositive() {
		return CallPartial
	}
	if c.Activated {
		return CallCalled
	}
	return CallScheduled
}

// DeriveCommitmentStatus computes a commitment's status from its calls.
// written_off is sticky and owned by the write-off operation.
func DeriveCommitmentStatus(current CommitmentStatus, calls []CapitalCall) CommitmentStatus {
	if current == CommitmentWrittenOff {
		return CommitmentWrittenOff
	}

	anyPaid := false
	allPaid := len(calls) > 0
	for _, c := range calls {
		if c.Status == CallDefaulted {
			return CommitmentUnfunded
		}
		if c.PaidAmount.IsPositive() {
			anyPaid = true
		}
		if c.Status != CallPaid {
			allPaid = false
		}
	}

	switch {
	case allPaid:
		return CommitmentFunded
	case anyPaid:
		return CommitmentPartiallyPaid
	default:
		return CommitmentCommitted
	}
}
