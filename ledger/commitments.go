/*
commitments.go - Commitment store service

PURPOSE:
  Owns the commitment lifecycle: creation against min/max bounds, amount edits
  (delegated to the sync engine so dependent calls are always consistent with
  the new total), deletion, and write-off. Also maintains portfolio weights
  across the owning fund and pushes AUM totals to the fund directory.

WEIGHT MAINTENANCE:
  weight(c) = c.amount / sum(active commitments in fund) * 100. Written-off
  commitments get weight 0 and leave the denominator. The whole fund is
  recomputed whenever any commitment's amount, status, or existence changes,
  because the denominator shifts.

COLLABORATORS:
  FundDirectory.UpdateFundAUM keeps fund-level assets-under-management equal
  to the sum of funded commitment amounts. DealDirectory.SignalDealDivested is
  notified when a deal loses its last active commitment; the directory owns
  the actual stage change. Both are best-effort boundary calls; the audit sink
  is fire-and-forget.
*/
package ledger

import (
	"context"
	"log"
	"time"

	"github.com/shopspring/decimal"
)

// CommitmentService is the commitment store component. All dependencies are
// injected; there is no process-wide storage factory.
type CommitmentService struct {
	store TxStore
	funds FundDirectory
	deals DealDirectory
	audit AuditSink
	sync  *SyncEngine
	cfg   Config
	now   func() time.Time
}

func NewCommitmentService(store TxStore, funds FundDirectory, deals DealDirectory, audit AuditSink, cfg Config) *CommitmentService {
	return &CommitmentService{
		store: store,
		funds: funds,
		deals: deals,
		audit: audit,
		sync:  NewSyncEngine(store, audit, cfg),
		cfg:   cfg,
		now:   time.Now,
	}
}

// CreateCommitmentInput carries the caller-supplied fields for a new
// commitment. Amount may be a percentage of the deal-level raise or a dollar
// figure.
type CreateCommitmentInput struct {
	FundID       string
	DealID       string
	Amount       CallAmount
	SecurityType string
	Date         time.Time
	Notes        string
	ActorID      string
}

// CreateCommitment validates the amount against configured bounds and creates
// the record with status committed and identity metrics (moic = 1).
func (svc *CommitmentService) CreateCommitment(ctx context.Context, in CreateCommitmentInput) (*Commitment, error) {
	fund, err := svc.funds.GetFund(ctx, in.FundID)
	if err != nil {
		return nil, err
	}
	if fund == nil {
		return nil, &NotFoundError{Kind: "fund", ID: in.FundID}
	}
	deal, err := svc.deals.GetDeal(ctx, in.DealID)
	if err != nil {
		return nil, err
	}
	if deal == nil {
		return nil, &NotFoundError{Kind: "deal", ID: in.DealID}
	}

	// Percentage commitments resolve against the deal-level raise.
	base := in.Amount.Value
	if in.Amount.Type == AmountPercentage {
		base = deal.RaiseAmount
	}
	amount, _, err := in.Amount.Normalize(base)
	if err != nil {
		return nil, err
	}

	if amount.LessThan(svc.cfg.MinCommitment) || amount.GreaterThan(svc.cfg.MaxCommitment) {
		return nil, &ValidationError{
			Field: "amount",
			Reason: "amount outside configured bounds [" +
				svc.cfg.MinCommitment.String() + ", " + svc.cfg.MaxCommitment.String() + "]",
		}
	}

	now := svc.now()
	c := Commitment{
		ID:            newID(),
		FundID:        in.FundID,
		DealID:        in.DealID,
		Amount:        amount,
		AmountType:    in.Amount.Type,
		SecurityType:  in.SecurityType,
		Status:        CommitmentCommitted,
		MarketValue:   decimal.Zero,
		TotalReturned: decimal.Zero,
		MOIC:          decimal.NewFromInt(1),
		Date:          in.Date,
		Notes:         in.Notes,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = svc.store.WithTx(ctx, func(s Store) error {
		// The new record is inserted with its final weight so it stays at
		// version 1; recomputeWeights then only touches the siblings whose
		// share of the denominator shifted.
		siblings, err := s.CommitmentsByFund(ctx, c.FundID)
		if err != nil {
			return err
		}
		c.PortfolioWeight = ComputeWeights(append(siblings, c))[c.ID]
		if err := s.PutCommitment(ctx, c); err != nil {
			return err
		}
		return recomputeWeights(ctx, s, c.FundID, now)
	})
	if err != nil {
		return nil, err
	}

	svc.refreshFundAUM(ctx, c.FundID)
	recordAudit(ctx, svc.audit, AuditEvent{
		At:           now,
		ActorID:      in.ActorID,
		Action:       AuditCommitmentCreated,
		CommitmentID: c.ID,
		FundID:       c.FundID,
		DealID:       c.DealID,
		Payload:      map[string]any{"amount": c.Amount.String()},
	})

	return svc.GetCommitment(ctx, c.ID)
}

// GetCommitment returns one commitment.
func (svc *CommitmentService) GetCommitment(ctx context.Context, id string) (*Commitment, error) {
	return svc.store.GetCommitment(ctx, id)
}

// CommitmentsByFund lists a fund's commitments with current weights.
func (svc *CommitmentService) CommitmentsByFund(ctx context.Context, fundID string) ([]Commitment, error) {
	return svc.store.CommitmentsByFund(ctx, fundID)
}

// UpdateCommitmentAmount edits the committed total. Rescaling of dependent
// calls and schedule events is delegated to the sync engine before the new
// amount is visible, so they are never inconsistent with the total.
func (svc *CommitmentService) UpdateCommitmentAmount(ctx context.Context, id string, newAmount decimal.Decimal, actorID string) (*Commitment, *SyncResult, error) {
	if newAmount.LessThanOrEqual(decimal.Zero) {
		return nil, nil, &ValidationError{Field: "amount", Reason: "amount must be positive"}
	}
	if newAmount.LessThan(svc.cfg.MinCommitment) || newAmount.GreaterThan(svc.cfg.MaxCommitment) {
		return nil, nil, &ValidationError{Field: "amount", Reason: "amount outside configured bounds"}
	}

	result, err := svc.sync.SyncCommitmentUpdate(ctx, id, newAmount, actorID)
	if err != nil {
		return nil, nil, err
	}

	c, err := svc.store.GetCommitment(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	svc.refreshFundAUM(ctx, c.FundID)
	return c, result, nil
}

// DeleteCommitment removes a commitment that has no issued calls. Calls still
// in scheduled state are removed with it; anything further along blocks the
// delete with a ConflictError. Returns true when the deal lost its last
// active commitment (the deal directory is signaled to revert its invested
// classification).
func (svc *CommitmentService) DeleteCommitment(ctx context.Context, id string, actorID string) (bool, error) {
	c, err := svc.store.GetCommitment(ctx, id)
	if err != nil {
		return false, err
	}

	calls, err := svc.store.CallsByCommitment(ctx, id)
	if err != nil {
		return false, err
	}
	for _, call := range calls {
		if call.Status != CallScheduled {
			return false, &ConflictError{
				Reason: "commitment has calls beyond scheduled state",
			}
		}
	}

	err = svc.store.WithTx(ctx, func(s Store) error {
		if err := s.DeleteCommitment(ctx, id); err != nil {
			return err
		}
		return recomputeWeights(ctx, s, c.FundID, svc.now())
	})
	if err != nil {
		return false, err
	}

	svc.refreshFundAUM(ctx, c.FundID)

	lastActive, err := svc.dealHasNoActiveCommitments(ctx, c.DealID)
	if err == nil && lastActive {
		if err := svc.deals.SignalDealDivested(ctx, c.DealID); err != nil {
			log.Printf("deal divested signal failed for %s: %v", c.DealID, err)
		}
	}

	recordAudit(ctx, svc.audit, AuditEvent{
		At:           svc.now(),
		ActorID:      actorID,
		Action:       AuditCommitmentDeleted,
		CommitmentID: id,
		FundID:       c.FundID,
		DealID:       c.DealID,
	})
	return lastActive, nil
}

// WriteOffCommitment retires a commitment without deleting history. The
// commitment drops out of the weight denominator and its own weight goes to
// zero.
func (svc *CommitmentService) WriteOffCommitment(ctx context.Context, id string, actorID string) (*Commitment, error) {
	now := svc.now()
	err := svc.store.WithTx(ctx, func(s Store) error {
		c, err := s.GetCommitment(ctx, id)
		if err != nil {
			return err
		}
		if c.Status == CommitmentWrittenOff {
			return &ConflictError{Reason: "commitment already written off"}
		}
		c.Status = CommitmentWrittenOff
		c.PortfolioWeight = decimal.Zero
		c.UpdatedAt = now
		if err := s.UpdateCommitment(ctx, *c, c.Version); err != nil {
			return err
		}
		return recomputeWeights(ctx, s, c.FundID, now)
	})
	if err != nil {
		return nil, err
	}

	c, err := svc.store.GetCommitment(ctx, id)
	if err != nil {
		return nil, err
	}
	svc.refreshFundAUM(ctx, c.FundID)
	recordAudit(ctx, svc.audit, AuditEvent{
		At:           now,
		ActorID:      actorID,
		Action:       AuditCommitmentWrittenOff,
		CommitmentID: id,
		FundID:       c.FundID,
		DealID:       c.DealID,
	})
	return c, nil
}

// =============================================================================
// FUND-LEVEL MAINTENANCE
// =============================================================================

// recomputeWeights refreshes PortfolioWeight for every commitment in the fund.
// Runs inside the caller's transaction so weights are never observed mid-shift.
func recomputeWeights(ctx context.Context, s Store, fundID string, now time.Time) error {
	commitments, err := s.CommitmentsByFund(ctx, fundID)
	if err != nil {
		return err
	}

	weights := ComputeWeights(commitments)
	for _, c := range commitments {
		w := weights[c.ID]
		if c.PortfolioWeight.Equal(w) {
			continue
		}
		c.PortfolioWeight = w
		c.UpdatedAt = now
		if err := s.UpdateCommitment(ctx, c, c.Version); err != nil {
			return err
		}
	}
	return nil
}

// refreshFundAUM pushes the sum of funded commitment amounts to the fund
// directory. Best-effort: a directory failure is logged, not surfaced.
func (svc *CommitmentService) refreshFundAUM(ctx context.Context, fundID string) {
	if fundID == "" {
		return
	}
	commitments, err := svc.store.CommitmentsByFund(ctx, fundID)
	if err != nil {
		log.Printf("aum refresh: loading commitments for fund %s: %v", fundID, err)
		return
	}
	aum := decimal.Zero
	for _, c := range commitments {
		if c.Status == CommitmentFunded {
			aum = aum.Add(c.Amount)
		}
	}
	if err := svc.funds.UpdateFundAUM(ctx, fundID, aum); err != nil {
		log.Printf("aum refresh failed for fund %s: %v", fundID, err)
	}
}

func (svc *CommitmentService) dealHasNoActiveCommitments(ctx context.Context, dealID string) (bool, error) {
	commitments, err := svc.store.CommitmentsByDeal(ctx, dealID)
	if err != nil {
		return false, err
	}
	for _, c := range commitments {
		if c.Active() {
			return false, nil
		}
	}
	return true, nil
}
