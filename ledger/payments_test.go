package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian/capital-ledger/ledger"
	"github.com/meridian/capital-ledger/ledger/store"
)

func pay(env *testEnv, callID, amount string) (*ledger.PaymentResult, error) {
	return env.payments.ApplyPayment(context.Background(), ledger.ApplyPaymentInput{
		CallID:  callID,
		Amount:  d(amount),
		Date:    time.Now().UTC(),
		Type:    ledger.PaymentWire,
		ActorID: "tester",
	})
}

// =============================================================================
// APPLYING PAYMENTS
// =============================================================================

func TestApplyPayment_PartialThenPaid(t *testing.T) {
	// GIVEN: A 500,000 call paid within a cent of completion
	env := newTestEnv(ledger.DefaultConfig())
	env.createCommitment(t, "c-1", "1000000")
	call := env.scheduleCall(t, "c-1", dollars("500000"), futureDue())

	result, err := pay(env, call.ID, "499999.99")
	require.NoError(t, err)
	assert.Equal(t, ledger.CallPartial, result.UpdatedCall.Status)
	assert.Nil(t, result.UpdatedCall.PaidDate)

	// WHEN: Two cents would overshoot
	_, err = pay(env, call.ID, "0.02")
	assert.True(t, ledger.IsValidation(err), "overpayment must be rejected, got %v", err)

	// THEN: The exact remaining cent completes the call
	result, err = pay(env, call.ID, "0.01")
	require.NoError(t, err)
	assert.Equal(t, ledger.CallPaid, result.UpdatedCall.Status)
	assert.True(t, result.UpdatedCall.PaidAmount.Equal(d("500000")))
	require.NotNil(t, result.UpdatedCall.PaidDate)
}

func TestApplyPayment_AppendsToTrail(t *testing.T) {
	env := newTestEnv(ledger.DefaultConfig())
	ctx := context.Background()
	env.createCommitment(t, "c-1", "1000000")
	call := env.scheduleCall(t, "c-1", dollars("500000"), futureDue())

	_, err := pay(env, call.ID, "100000")
	require.NoError(t, err)
	_, err = pay(env, call.ID, "150000")
	require.NoError(t, err)

	// THEN: Every payment survives as its own record and the cache agrees
	payments, err := env.payments.PaymentsByCall(ctx, call.ID)
	require.NoError(t, err)
	require.Len(t, payments, 2)

	got, err := env.store.GetCall(ctx, call.ID)
	require.NoError(t, err)
	total := payments[0].Amount.Add(payments[1].Amount)
	assert.True(t, got.PaidAmount.Equal(total))
}

func TestApplyPayment_OverpaymentFlaggedWhenAllowed(t *testing.T) {
	// GIVEN: The overpayment allowance is on
	cfg := ledger.DefaultConfig()
	cfg.AllowOverpayment = true
	env := newTestEnv(cfg)
	env.createCommitment(t, "c-1", "1000000")
	call := env.scheduleCall(t, "c-1", dollars("500000"), futureDue())

	// WHEN: A payment exceeds the call amount
	result, err := pay(env, call.ID, "600000")
	require.NoError(t, err)

	// THEN: The excess is recorded and flagged, and the call is paid
	assert.True(t, result.Payment.Flagged)
	assert.Equal(t, ledger.CallPaid, result.UpdatedCall.Status)
	assert.True(t, result.UpdatedCall.PaidAmount.Equal(d("600000")))
}

func TestApplyPayment_DefaultedCallRejected(t *testing.T) {
	env := newTestEnv(ledger.DefaultConfig())
	ctx := context.Background()
	env.createCommitment(t, "c-1", "1000000")
	call := env.scheduleCall(t, "c-1", dollars("500000"), futureDue())
	_, err := env.calls.OverrideCallStatus(ctx, call.ID, ledger.CallDefaulted, "admin-1")
	require.NoError(t, err)

	_, err = pay(env, call.ID, "100000")
	assert.True(t, errors.Is(err, ledger.ErrTerminalStatus))
}

func TestApplyPayment_ValidatesInput(t *testing.T) {
	env := newTestEnv(ledger.DefaultConfig())
	env.createCommitment(t, "c-1", "1000000")
	call := env.scheduleCall(t, "c-1", dollars("500000"), futureDue())

	_, err := pay(env, call.ID, "0")
	assert.True(t, ledger.IsValidation(err), "zero amount")

	_, err = pay(env, call.ID, "-50")
	assert.True(t, ledger.IsValidation(err), "negative amount")

	_, err = env.payments.ApplyPayment(context.Background(), ledger.ApplyPaymentInput{
		CallID: call.ID, Amount: d("100"), Date: time.Now().UTC(),
		Type: "cash", ActorID: "tester",
	})
	assert.True(t, ledger.IsValidation(err), "unknown payment type")
}

func TestApplyPayment_EmptyTypeDefaultsToOther(t *testing.T) {
	env := newTestEnv(ledger.DefaultConfig())
	env.createCommitment(t, "c-1", "1000000")
	call := env.scheduleCall(t, "c-1", dollars("500000"), futureDue())

	result, err := env.payments.ApplyPayment(context.Background(), ledger.ApplyPaymentInput{
		CallID: call.ID, Amount: d("100"), Date: time.Now().UTC(), ActorID: "tester",
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.PaymentOther, result.Payment.Type)
}

func TestApplyPayment_UnknownCall(t *testing.T) {
	env := newTestEnv(ledger.DefaultConfig())

	_, err := pay(env, "nope", "100")
	assert.True(t, ledger.IsNotFound(err))
}

// =============================================================================
// COMMITMENT STATUS FOLLOWS PAYMENTS
// =============================================================================

func TestApplyPayment_CommitmentStatusTransitions(t *testing.T) {
	// GIVEN: Two calls on one commitment
	env := newTestEnv(ledger.DefaultConfig())
	ctx := context.Background()
	env.createCommitment(t, "c-1", "1000000")
	call1 := env.scheduleCall(t, "c-1", dollars("400000"), futureDue())
	call2 := env.scheduleCall(t, "c-1", dollars("600000"), futureDue())

	// WHEN: The first call is fully paid
	_, err := pay(env, call1.ID, "400000")
	require.NoError(t, err)

	c, err := env.store.GetCommitment(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.CommitmentPartiallyPaid, c.Status)

	// WHEN: The second call is fully paid
	_, err = pay(env, call2.ID, "600000")
	require.NoError(t, err)

	c, err = env.store.GetCommitment(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.CommitmentFunded, c.Status)
}

// =============================================================================
// OPTIMISTIC CONCURRENCY RETRY
// =============================================================================

// conflictingStore injects stale-version failures into UpdateCall to exercise
// the applicator's retry loop.
type conflictingStore struct {
	*store.TxMemory
	remaining int
}

func (cs *conflictingStore) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	return cs.TxMemory.WithTx(ctx, func(s ledger.Store) error {
		return fn(&conflictingView{Store: s, owner: cs})
	})
}

type conflictingView struct {
	ledger.Store
	owner *conflictingStore
}

func (v *conflictingView) UpdateCall(ctx context.Context, c ledger.CapitalCall, expectedVersion int) error {
	if v.owner.remaining > 0 {
		v.owner.remaining--
		return ledger.ErrConcurrentModification
	}
	return v.Store.UpdateCall(ctx, c, expectedVersion)
}

func TestApplyPayment_RetriesOnVersionConflict(t *testing.T) {
	// GIVEN: A store that fails the first write with a stale version
	env := newTestEnv(ledger.DefaultConfig())
	env.createCommitment(t, "c-1", "1000000")
	call := env.scheduleCall(t, "c-1", dollars("500000"), futureDue())

	flaky := &conflictingStore{TxMemory: env.store, remaining: 1}
	applicator := ledger.NewPaymentApplicator(flaky, env.audit, env.cfg)

	// WHEN: A payment is applied
	result, err := applicator.ApplyPayment(context.Background(), ledger.ApplyPaymentInput{
		CallID: call.ID, Amount: d("500000"), Date: time.Now().UTC(),
		Type: ledger.PaymentWire, ActorID: "tester",
	})

	// THEN: The retry succeeds and exactly one payment lands
	require.NoError(t, err)
	assert.Equal(t, ledger.CallPaid, result.UpdatedCall.Status)

	payments, err := env.payments.PaymentsByCall(context.Background(), call.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestApplyPayment_GivesUpAfterRetryBudget(t *testing.T) {
	// GIVEN: More conflicts than the configured retry budget
	cfg := ledger.DefaultConfig()
	cfg.PaymentRetries = 2
	env := newTestEnv(cfg)
	env.createCommitment(t, "c-1", "1000000")
	call := env.scheduleCall(t, "c-1", dollars("500000"), futureDue())

	flaky := &conflictingStore{TxMemory: env.store, remaining: 10}
	applicator := ledger.NewPaymentApplicator(flaky, env.audit, cfg)

	_, err := applicator.ApplyPayment(context.Background(), ledger.ApplyPaymentInput{
		CallID: call.ID, Amount: d("100"), Date: time.Now().UTC(),
		Type: ledger.PaymentWire, ActorID: "tester",
	})
	assert.True(t, ledger.IsRetryable(err))

	// Nothing committed.
	payments, listErr := env.payments.PaymentsByCall(context.Background(), call.ID)
	require.NoError(t, listErr)
	assert.Empty(t, payments)
}
