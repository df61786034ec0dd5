package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian/capital-ledger/ledger"
)

// =============================================================================
// PROPORTIONAL RESCALE
// =============================================================================

func TestSync_DollarCallsScaleByRatio(t *testing.T) {
	// GIVEN: A 1,000,000 commitment with two dollar-denominated calls
	env := newTestEnv(ledger.DefaultConfig())
	ctx := context.Background()
	env.createCommitment(t, "c-1", "1000000")
	call1 := env.scheduleCall(t, "c-1", dollars("250000"), futureDue())
	call2 := env.scheduleCall(t, "c-1", dollars("150000"), futureDue())

	// WHEN: The commitment is halved
	result, err := env.sync.SyncCommitmentUpdate(ctx, "c-1", d("500000"), "tester")
	require.NoError(t, err)

	// THEN: Dollar calls halve and their stored percentages track the new total
	assert.True(t, result.Ratio.Equal(d("0.5")), "ratio = %s", result.Ratio)
	assert.ElementsMatch(t, []string{call1.ID, call2.ID}, result.UpdatedCallIDs)

	got1, err := env.store.GetCall(ctx, call1.ID)
	require.NoError(t, err)
	assert.True(t, got1.CallAmount.Equal(d("125000")), "call1 amount = %s", got1.CallAmount)
	assert.True(t, got1.CallPct.Equal(d("25")), "call1 pct = %s", got1.CallPct)

	got2, err := env.store.GetCall(ctx, call2.ID)
	require.NoError(t, err)
	assert.True(t, got2.CallAmount.Equal(d("75000")), "call2 amount = %s", got2.CallAmount)
	assert.True(t, got2.CallPct.Equal(d("15")), "call2 pct = %s", got2.CallPct)

	c, err := env.store.GetCommitment(ctx, "c-1")
	require.NoError(t, err)
	assert.True(t, c.Amount.Equal(d("500000")))
}

func TestSync_PercentageCallsKeepTheirPercentage(t *testing.T) {
	// GIVEN: A percentage-denominated call for 10% of a 1,000,000 commitment
	env := newTestEnv(ledger.DefaultConfig())
	ctx := context.Background()
	env.createCommitment(t, "c-1", "1000000")
	call := env.scheduleCall(t, "c-1", pct("10"), futureDue())
	require.True(t, call.CallAmount.Equal(d("100000")))

	// WHEN: The commitment is halved
	_, err := env.sync.SyncCommitmentUpdate(ctx, "c-1", d("500000"), "tester")
	require.NoError(t, err)

	// THEN: The percentage is untouched; only the stored dollar form moves
	got, err := env.store.GetCall(ctx, call.ID)
	require.NoError(t, err)
	assert.True(t, got.CallPct.Equal(d("10")), "pct = %s", got.CallPct)
	assert.True(t, got.CallAmount.Equal(d("50000")), "amount = %s", got.CallAmount)
}

func TestSync_SameAmountIsANoOp(t *testing.T) {
	env := newTestEnv(ledger.DefaultConfig())
	ctx := context.Background()
	env.createCommitment(t, "c-1", "1000000")
	call := env.scheduleCall(t, "c-1", dollars("250000"), futureDue())

	result, err := env.sync.SyncCommitmentUpdate(ctx, "c-1", d("1000000"), "tester")
	require.NoError(t, err)

	// THEN: Ratio 1, no calls touched, no audit record
	assert.True(t, result.Ratio.Equal(d("1")))
	assert.Empty(t, result.UpdatedCallIDs)

	got, err := env.store.GetCall(ctx, call.ID)
	require.NoError(t, err)
	assert.Equal(t, call.Version, got.Version, "untouched call must keep its version")

	events, err := env.audit.EventsByCommitment(ctx, "c-1")
	require.NoError(t, err)
	for _, e := range events {
		assert.NotEqual(t, ledger.AuditCommitmentRescaled, e.Action)
	}
}

func TestSync_RescaleEmitsOneAuditRecord(t *testing.T) {
	env := newTestEnv(ledger.DefaultConfig())
	ctx := context.Background()
	env.createCommitment(t, "c-1", "1000000")
	env.scheduleCall(t, "c-1", dollars("250000"), futureDue())

	_, err := env.sync.SyncCommitmentUpdate(ctx, "c-1", d("2000000"), "admin-7")
	require.NoError(t, err)

	events, err := env.audit.EventsByCommitment(ctx, "c-1")
	require.NoError(t, err)

	rescales := 0
	for _, e := range events {
		if e.Action == ledger.AuditCommitmentRescaled {
			rescales++
			assert.Equal(t, "admin-7", e.ActorID)
		}
	}
	assert.Equal(t, 1, rescales)
}

func TestSync_DollarEventTargetsScale(t *testing.T) {
	// GIVEN: A dollar-target closing event and a percentage-target one
	env := newTestEnv(ledger.DefaultConfig())
	ctx := context.Background()
	env.createCommitment(t, "c-1", "1000000")

	dollarTarget := d("400000")
	pctTarget := d("40")
	now := time.Now().UTC()
	require.NoError(t, env.store.PutEvents(ctx, []ledger.ClosingScheduleEvent{
		{
			ID: "ev-dollar", DealID: "deal-1", Name: "First close",
			AmountType: ledger.AmountDollar, TargetAmount: &dollarTarget,
			EventDate: now, Version: 1, CreatedAt: now, UpdatedAt: now,
		},
		{
			ID: "ev-pct", DealID: "deal-1", Name: "Second close",
			AmountType: ledger.AmountPercentage, TargetAmount: &pctTarget,
			EventDate: now, Version: 1, CreatedAt: now, UpdatedAt: now,
		},
		{
			ID: "ev-open", DealID: "deal-1", Name: "Final close",
			AmountType: ledger.AmountDollar, TargetAmount: nil,
			EventDate: now, Version: 1, CreatedAt: now, UpdatedAt: now,
		},
	}))

	// WHEN: The commitment is halved
	result, err := env.sync.SyncCommitmentUpdate(ctx, "c-1", d("500000"), "tester")
	require.NoError(t, err)

	// THEN: Only the dollar target with a value set is rescaled
	assert.Equal(t, []string{"ev-dollar"}, result.UpdatedEventIDs)

	events, err := env.store.EventsByDeal(ctx, "deal-1")
	require.NoError(t, err)
	byID := make(map[string]ledger.ClosingScheduleEvent, len(events))
	for _, ev := range events {
		byID[ev.ID] = ev
	}
	assert.True(t, byID["ev-dollar"].TargetAmount.Equal(d("200000")))
	assert.True(t, byID["ev-pct"].TargetAmount.Equal(d("40")))
	assert.Nil(t, byID["ev-open"].TargetAmount)
}

func TestSync_RescaleRefreshesCallStatus(t *testing.T) {
	// GIVEN: A half-paid call
	env := newTestEnv(ledger.DefaultConfig())
	ctx := context.Background()
	env.createCommitment(t, "c-1", "1000000")
	call := env.scheduleCall(t, "c-1", dollars("500000"), futureDue())
	_, err := env.payments.ApplyPayment(ctx, ledger.ApplyPaymentInput{
		CallID: call.ID, Amount: d("250000"), Date: time.Now().UTC(),
		Type: ledger.PaymentWire, ActorID: "tester",
	})
	require.NoError(t, err)

	// WHEN: The commitment shrinks so the paid amount now covers the call
	_, err = env.sync.SyncCommitmentUpdate(ctx, "c-1", d("500000"), "tester")
	require.NoError(t, err)

	got, err := env.store.GetCall(ctx, call.ID)
	require.NoError(t, err)
	assert.True(t, got.CallAmount.Equal(d("250000")))
	assert.Equal(t, ledger.CallPaid, got.Status)
}

func TestSync_RecomputesFundWeights(t *testing.T) {
	// GIVEN: Two equal commitments in the same fund
	env := newTestEnv(ledger.DefaultConfig())
	ctx := context.Background()
	env.createCommitment(t, "c-1", "1000000")
	env.createCommitment(t, "c-2", "1000000")

	// WHEN: One commitment triples
	_, err := env.sync.SyncCommitmentUpdate(ctx, "c-1", d("3000000"), "tester")
	require.NoError(t, err)

	c1, err := env.store.GetCommitment(ctx, "c-1")
	require.NoError(t, err)
	c2, err := env.store.GetCommitment(ctx, "c-2")
	require.NoError(t, err)
	assert.True(t, c1.PortfolioWeight.Equal(d("75")), "c-1 weight = %s", c1.PortfolioWeight)
	assert.True(t, c2.PortfolioWeight.Equal(d("25")), "c-2 weight = %s", c2.PortfolioWeight)
}

// =============================================================================
// ABORT PATHS
// =============================================================================

func TestSync_AbortsWhenRescaledCallsExceedNewAmount(t *testing.T) {
	// GIVEN: Percentage calls inserted directly whose shares exceed 100%
	env := newTestEnv(ledger.DefaultConfig())
	ctx := context.Background()
	env.createCommitment(t, "c-1", "100")

	now := time.Now().UTC()
	require.NoError(t, env.store.PutCalls(ctx, []ledger.CapitalCall{
		{
			ID: "call-a", AllocationID: "c-1", CallAmount: d("60"),
			AmountType: ledger.AmountPercentage, CallPct: d("60"),
			CallDate: now, DueDate: futureDue(), Status: ledger.CallScheduled,
			Version: 1, CreatedAt: now, UpdatedAt: now,
		},
		{
			ID: "call-b", AllocationID: "c-1", CallAmount: d("50"),
			AmountType: ledger.AmountPercentage, CallPct: d("50"),
			CallDate: now, DueDate: futureDue(), Status: ledger.CallScheduled,
			Version: 1, CreatedAt: now, UpdatedAt: now,
		},
	}))

	// WHEN: The rescale would make the calls overrun the new total
	_, err := env.sync.SyncCommitmentUpdate(ctx, "c-1", d("200"), "tester")

	// THEN: The whole rescale rolls back and the diagnostics name what had run
	var syncErr *ledger.SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, "c-1", syncErr.CommitmentID)
	assert.ElementsMatch(t, []string{"call-a", "call-b"}, syncErr.CompletedCallIDs)
	assert.True(t, ledger.IsValidation(err))

	got, err := env.store.GetCall(ctx, "call-a")
	require.NoError(t, err)
	assert.True(t, got.CallAmount.Equal(d("60")), "rollback must restore the call")

	c, err := env.store.GetCommitment(ctx, "c-1")
	require.NoError(t, err)
	assert.True(t, c.Amount.Equal(d("100")), "rollback must restore the amount")
}

func TestSync_AbortsWhenShrinkFallsBelowPaidAmount(t *testing.T) {
	// GIVEN: A fully paid 400,000 call on a 1,000,000 commitment
	env := newTestEnv(ledger.DefaultConfig())
	ctx := context.Background()
	env.createCommitment(t, "c-1", "1000000")
	call := env.scheduleCall(t, "c-1", dollars("400000"), futureDue())
	_, err := pay(env, call.ID, "400000")
	require.NoError(t, err)

	// WHEN: Halving would rescale the call below what was already received
	_, err = env.sync.SyncCommitmentUpdate(ctx, "c-1", d("500000"), "tester")

	// THEN: The rescale aborts; money received is never rescaled away
	var syncErr *ledger.SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.True(t, ledger.IsValidation(err))

	got, err := env.store.GetCall(ctx, call.ID)
	require.NoError(t, err)
	assert.True(t, got.CallAmount.Equal(d("400000")), "rollback must keep the call amount")
	assert.True(t, got.PaidAmount.Equal(d("400000")))
	assert.Equal(t, ledger.CallPaid, got.Status)

	c, err := env.store.GetCommitment(ctx, "c-1")
	require.NoError(t, err)
	assert.True(t, c.Amount.Equal(d("1000000")), "rollback must restore the amount")
}

func TestSync_RejectsNonPositiveAmount(t *testing.T) {
	env := newTestEnv(ledger.DefaultConfig())
	env.createCommitment(t, "c-1", "1000000")

	_, err := env.sync.SyncCommitmentUpdate(context.Background(), "c-1", d("0"), "tester")
	assert.True(t, ledger.IsValidation(err))
}

func TestSync_UnknownCommitment(t *testing.T) {
	env := newTestEnv(ledger.DefaultConfig())

	_, err := env.sync.SyncCommitmentUpdate(context.Background(), "nope", d("1000"), "tester")
	assert.True(t, ledger.IsNotFound(err))
	assert.False(t, errors.As(err, new(*ledger.SyncError)), "lookup failures are not rescale aborts")
}
