package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian/capital-ledger/ledger"
	"github.com/meridian/capital-ledger/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func dec(s string) decimal.Decimal {
	return ledger.MustParseDecimal(s)
}

func sampleCommitment(id string) ledger.Commitment {
	now := time.Now().UTC().Truncate(time.Second)
	return ledger.Commitment{
		ID:              id,
		FundID:          "fund-1",
		DealID:          "deal-1",
		Amount:          dec("1234567.89"),
		AmountType:      ledger.AmountDollar,
		SecurityType:    "preferred",
		Status:          ledger.CommitmentCommitted,
		PortfolioWeight: dec("33.3333"),
		MarketValue:     dec("1500000"),
		TotalReturned:   dec("100000.50"),
		MOIC:            dec("1.2963"),
		Date:            now,
		Notes:           "anchor allocation",
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func sampleCall(id, commitmentID string) ledger.CapitalCall {
	now := time.Now().UTC().Truncate(time.Second)
	return ledger.CapitalCall{
		ID:           id,
		AllocationID: commitmentID,
		CallAmount:   dec("250000.25"),
		AmountType:   ledger.AmountPercentage,
		CallPct:      dec("20.2525"),
		CallDate:     now,
		DueDate:      now.AddDate(0, 1, 0),
		PaidAmount:   dec("0"),
		Status:       ledger.CallScheduled,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// =============================================================================
// ROUND TRIPS
// =============================================================================

func TestSQLite_CommitmentRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	want := sampleCommitment("c-1")

	require.NoError(t, s.PutCommitment(ctx, want))

	got, err := s.GetCommitment(ctx, "c-1")
	require.NoError(t, err)

	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.FundID, got.FundID)
	assert.Equal(t, want.DealID, got.DealID)
	assert.True(t, got.Amount.Equal(want.Amount), "amount = %s", got.Amount)
	assert.True(t, got.PortfolioWeight.Equal(want.PortfolioWeight))
	assert.True(t, got.MOIC.Equal(want.MOIC))
	assert.Equal(t, want.Status, got.Status)
	assert.Equal(t, want.Notes, got.Notes)
	assert.Equal(t, 1, got.Version)
	assert.True(t, got.Date.Equal(want.Date), "date = %s", got.Date)
	assert.True(t, got.CreatedAt.Equal(want.CreatedAt), "created_at = %s", got.CreatedAt)
	assert.True(t, got.UpdatedAt.Equal(want.UpdatedAt), "updated_at = %s", got.UpdatedAt)
}

func TestSQLite_CallRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.PutCommitment(ctx, sampleCommitment("c-1")))

	want := sampleCall("call-1", "c-1")
	require.NoError(t, s.PutCalls(ctx, []ledger.CapitalCall{want}))

	got, err := s.GetCall(ctx, "call-1")
	require.NoError(t, err)
	assert.True(t, got.CallAmount.Equal(want.CallAmount))
	assert.True(t, got.CallPct.Equal(want.CallPct))
	assert.Equal(t, ledger.AmountPercentage, got.AmountType)
	assert.True(t, got.DueDate.Equal(want.DueDate))
	assert.Nil(t, got.PaidDate)
	assert.False(t, got.Overridden)
	assert.True(t, got.CreatedAt.Equal(want.CreatedAt), "created_at = %s", got.CreatedAt)
}

func TestSQLite_OverriddenFlagSurvives(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.PutCommitment(ctx, sampleCommitment("c-1")))

	call := sampleCall("call-1", "c-1")
	require.NoError(t, s.PutCalls(ctx, []ledger.CapitalCall{call}))

	call.Status = ledger.CallCalled
	call.Activated = true
	call.Overridden = true
	require.NoError(t, s.UpdateCall(ctx, call, 1))

	got, err := s.GetCall(ctx, "call-1")
	require.NoError(t, err)
	assert.True(t, got.Overridden)
	assert.Equal(t, ledger.CallCalled, got.Status)
}

func TestSQLite_PaidDateSurvives(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.PutCommitment(ctx, sampleCommitment("c-1")))

	call := sampleCall("call-1", "c-1")
	require.NoError(t, s.PutCalls(ctx, []ledger.CapitalCall{call}))

	paidAt := time.Now().UTC().Truncate(time.Second)
	call.PaidAmount = call.CallAmount
	call.Status = ledger.CallPaid
	call.PaidDate = &paidAt
	require.NoError(t, s.UpdateCall(ctx, call, 1))

	got, err := s.GetCall(ctx, "call-1")
	require.NoError(t, err)
	require.NotNil(t, got.PaidDate)
	assert.True(t, got.PaidDate.Equal(paidAt))
	assert.Equal(t, 2, got.Version)
}

func TestSQLite_EventTargetAmountNullable(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	target := dec("400000")
	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.PutEvents(ctx, []ledger.ClosingScheduleEvent{
		{ID: "ev-1", DealID: "deal-1", Name: "First close", AmountType: ledger.AmountDollar,
			TargetAmount: &target, EventDate: now, Version: 1, CreatedAt: now, UpdatedAt: now},
		{ID: "ev-2", DealID: "deal-1", Name: "Final close", AmountType: ledger.AmountDollar,
			EventDate: now, Version: 1, CreatedAt: now, UpdatedAt: now},
	}))

	events, err := s.EventsByDeal(ctx, "deal-1")
	require.NoError(t, err)
	require.Len(t, events, 2)

	byID := map[string]ledger.ClosingScheduleEvent{}
	for _, ev := range events {
		byID[ev.ID] = ev
	}
	require.NotNil(t, byID["ev-1"].TargetAmount)
	assert.True(t, byID["ev-1"].TargetAmount.Equal(target))
	assert.Nil(t, byID["ev-2"].TargetAmount)
}

// =============================================================================
// VERSIONING
// =============================================================================

func TestSQLite_StaleVersionRejected(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	c := sampleCommitment("c-1")
	require.NoError(t, s.PutCommitment(ctx, c))

	c.Notes = "first"
	require.NoError(t, s.UpdateCommitment(ctx, c, 1))

	c.Notes = "second"
	err := s.UpdateCommitment(ctx, c, 1)
	assert.True(t, errors.Is(err, ledger.ErrConcurrentModification))

	got, err := s.GetCommitment(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, "first", got.Notes)
}

func TestSQLite_UpdateMissingCommitment(t *testing.T) {
	s := newStore(t)

	err := s.UpdateCommitment(context.Background(), sampleCommitment("ghost"), 1)
	assert.True(t, ledger.IsNotFound(err))
}

func TestSQLite_GetMissing(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.GetCommitment(ctx, "ghost")
	assert.True(t, ledger.IsNotFound(err))

	_, err = s.GetCall(ctx, "ghost")
	assert.True(t, ledger.IsNotFound(err))
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestSQLite_WithTxRollback(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.PutCommitment(ctx, sampleCommitment("c-1")))

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx ledger.Store) error {
		c, err := tx.GetCommitment(ctx, "c-1")
		if err != nil {
			return err
		}
		c.Notes = "mutated"
		if err := tx.UpdateCommitment(ctx, *c, c.Version); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetCommitment(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, "anchor allocation", got.Notes)
	assert.Equal(t, 1, got.Version)
}

func TestSQLite_WithTxCommit(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.PutCommitment(ctx, sampleCommitment("c-1")))

	err := s.WithTx(ctx, func(tx ledger.Store) error {
		c, err := tx.GetCommitment(ctx, "c-1")
		if err != nil {
			return err
		}
		c.Notes = "kept"
		if err := tx.UpdateCommitment(ctx, *c, c.Version); err != nil {
			return err
		}
		return tx.PutCalls(ctx, []ledger.CapitalCall{sampleCall("call-1", "c-1")})
	})
	require.NoError(t, err)

	got, err := s.GetCommitment(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, "kept", got.Notes)

	_, err = s.GetCall(ctx, "call-1")
	assert.NoError(t, err)
}

func TestSQLite_PutCallsAtomic(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.PutCommitment(ctx, sampleCommitment("c-1")))
	require.NoError(t, s.PutCalls(ctx, []ledger.CapitalCall{sampleCall("call-1", "c-1")}))

	// A batch containing a duplicate id must leave nothing behind.
	err := s.PutCalls(ctx, []ledger.CapitalCall{
		sampleCall("call-2", "c-1"),
		sampleCall("call-1", "c-1"),
	})
	require.Error(t, err)

	_, err = s.GetCall(ctx, "call-2")
	assert.True(t, ledger.IsNotFound(err), "partial batch must roll back")
}

// =============================================================================
// DIRECTORIES AND AUDIT
// =============================================================================

func TestSQLite_FundDirectory(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	fund, err := s.GetFund(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, fund, "missing funds are nil, not an error")

	require.NoError(t, s.SaveFund(ctx, ledger.Fund{ID: "fund-1", Name: "Meridian Fund I", AUM: dec("0")}))
	require.NoError(t, s.UpdateFundAUM(ctx, "fund-1", dec("2500000")))

	fund, err = s.GetFund(ctx, "fund-1")
	require.NoError(t, err)
	require.NotNil(t, fund)
	assert.True(t, fund.AUM.Equal(dec("2500000")))

	funds, err := s.FundsByIDs(ctx, []string{"fund-1", "ghost"})
	require.NoError(t, err)
	assert.Len(t, funds, 1)
}

func TestSQLite_DealDirectory(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDeal(ctx, ledger.Deal{
		ID: "deal-1", Name: "Acme Series B", Stage: "invested", RaiseAmount: dec("10000000"),
	}))

	deal, err := s.GetDeal(ctx, "deal-1")
	require.NoError(t, err)
	require.NotNil(t, deal)
	assert.True(t, deal.RaiseAmount.Equal(dec("10000000")))

	require.NoError(t, s.SignalDealDivested(ctx, "deal-1"))
	deal, err = s.GetDeal(ctx, "deal-1")
	require.NoError(t, err)
	assert.Equal(t, "divested", deal.Stage)
}

func TestSQLite_AuditTrail(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for i, action := range []ledger.AuditAction{ledger.AuditCommitmentCreated, ledger.AuditPaymentApplied} {
		require.NoError(t, s.Record(ctx, ledger.AuditEvent{
			ID:           string(rune('a' + i)),
			At:           time.Now().UTC().Add(time.Duration(i) * time.Second),
			ActorID:      "tester",
			Action:       action,
			CommitmentID: "c-1",
			Payload:      map[string]any{"n": i},
		}))
	}

	events, err := s.EventsByCommitment(ctx, "c-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, ledger.AuditCommitmentCreated, events[0].Action)
	assert.Equal(t, ledger.AuditPaymentApplied, events[1].Action)
	assert.Equal(t, "tester", events[0].ActorID)
}

func TestSQLite_CallsDueBetween(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.PutCommitment(ctx, sampleCommitment("c-1")))

	base := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	inside := sampleCall("call-inside", "c-1")
	inside.DueDate = base.AddDate(0, 0, 10)
	outside := sampleCall("call-outside", "c-1")
	outside.DueDate = base.AddDate(0, 2, 0)
	require.NoError(t, s.PutCalls(ctx, []ledger.CapitalCall{inside, outside}))

	calls, err := s.CallsDueBetween(ctx, base, base.AddDate(0, 1, 0))
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, "call-inside", calls[0].ID)
}
