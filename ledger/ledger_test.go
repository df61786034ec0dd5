package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian/capital-ledger/ledger"
	"github.com/meridian/capital-ledger/ledger/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================
// Shared by the service tests in this package (calls_test.go, payments_test.go,
// sync_test.go, metrics_test.go, batch_test.go, commitments_test.go).

type testEnv struct {
	store *store.TxMemory
	dir   *store.MemoryDirectory
	audit *store.MemoryAuditSink
	cfg   ledger.Config

	commitments *ledger.CommitmentService
	calls       *ledger.CallScheduler
	payments    *ledger.PaymentApplicator
	metrics     *ledger.MetricsCalculator
	sync        *ledger.SyncEngine
}

func newTestEnv(cfg ledger.Config) *testEnv {
	st := store.NewTxMemory()
	dir := store.NewMemoryDirectory()
	audit := store.NewMemoryAuditSink()

	dir.PutFund(ledger.Fund{ID: "fund-1", Name: "Meridian Fund I"})
	dir.PutDeal(ledger.Deal{ID: "deal-1", Name: "Acme Series B", Stage: "invested", RaiseAmount: d("10000000")})

	return &testEnv{
		store:       st,
		dir:         dir,
		audit:       audit,
		cfg:         cfg,
		commitments: ledger.NewCommitmentService(st, dir, dir, audit, cfg),
		calls:       ledger.NewCallScheduler(st, audit, cfg),
		payments:    ledger.NewPaymentApplicator(st, audit, cfg),
		metrics:     ledger.NewMetricsCalculator(st),
		sync:        ledger.NewSyncEngine(st, audit, cfg),
	}
}

func d(s string) decimal.Decimal {
	return ledger.MustParseDecimal(s)
}

func dollars(s string) ledger.CallAmount {
	return ledger.Dollars(d(s))
}

func pct(s string) ledger.CallAmount {
	return ledger.Percentage(d(s))
}

// createCommitment inserts a commitment directly, bypassing service
// validation, for tests that need full control over the record.
func (env *testEnv) createCommitment(t *testing.T, id, amount string) ledger.Commitment {
	t.Helper()
	now := time.Now().UTC()
	c := ledger.Commitment{
		ID:         id,
		FundID:     "fund-1",
		DealID:     "deal-1",
		Amount:     d(amount),
		AmountType: ledger.AmountDollar,
		Status:     ledger.CommitmentCommitted,
		MOIC:       d("1"),
		Date:       now,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, env.store.PutCommitment(context.Background(), c))
	return c
}

// scheduleCall creates one call through the scheduler and returns it.
func (env *testEnv) scheduleCall(t *testing.T, commitmentID string, amount ledger.CallAmount, due time.Time) ledger.CapitalCall {
	t.Helper()
	calls, err := env.calls.CreateCapitalCalls(context.Background(), commitmentID, []ledger.CallRequest{
		{Amount: amount, CallDate: time.Now().UTC(), DueDate: due},
	}, "tester")
	require.NoError(t, err)
	require.Len(t, calls, 1)
	return calls[0]
}

func futureDue() time.Time {
	return time.Now().UTC().AddDate(0, 1, 0)
}
