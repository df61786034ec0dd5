package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian/capital-ledger/ledger"
	"github.com/meridian/capital-ledger/ledger/store"
)

// countingStore records how the batch layer hits the commitment store.
type countingStore struct {
	*store.TxMemory
	batchQueries  int
	singleQueries int
	delay         time.Duration
}

func (cs *countingStore) CommitmentsByIDs(ctx context.Context, ids []string) ([]ledger.Commitment, error) {
	cs.batchQueries++
	if cs.delay > 0 {
		time.Sleep(cs.delay)
	}
	return cs.TxMemory.CommitmentsByIDs(ctx, ids)
}

func (cs *countingStore) GetCommitment(ctx context.Context, id string) (*ledger.Commitment, error) {
	cs.singleQueries++
	return cs.TxMemory.GetCommitment(ctx, id)
}

// seedCommitments inserts n commitments named c-0..c-(n-1) and returns their
// ids.
func (env *testEnv) seedCommitments(t *testing.T, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("c-%d", i)
		env.createCommitment(t, id, "100000")
		ids = append(ids, id)
	}
	return ids
}

// =============================================================================
// CHUNKED FAN-OUT
// =============================================================================

func TestBatchFetch_ChunksQueries(t *testing.T) {
	// GIVEN: 120 commitments and a chunk size of 50
	cfg := ledger.DefaultConfig()
	cfg.BatchChunkSize = 50
	env := newTestEnv(cfg)
	ids := env.seedCommitments(t, 120)

	counting := &countingStore{TxMemory: env.store}
	fetcher := ledger.NewBatchFetcher(counting, env.dir, env.dir, cfg)

	result, err := fetcher.BatchFetch(context.Background(), ids)
	require.NoError(t, err)

	// THEN: Three chunk queries (50 + 50 + 20), no per-id lookups
	assert.Equal(t, 3, counting.batchQueries)
	assert.Equal(t, 0, counting.singleQueries)
	assert.Len(t, result.Allocations, 120)
	assert.False(t, result.Partial)

	// Referenced deals and funds are hydrated alongside.
	assert.Contains(t, result.Deals, "deal-1")
	assert.Contains(t, result.Funds, "fund-1")
}

func TestBatchFetch_DeduplicatesIDs(t *testing.T) {
	cfg := ledger.DefaultConfig()
	cfg.BatchChunkSize = 50
	env := newTestEnv(cfg)
	ids := env.seedCommitments(t, 40)

	counting := &countingStore{TxMemory: env.store}
	fetcher := ledger.NewBatchFetcher(counting, env.dir, env.dir, cfg)

	// WHEN: Every id appears twice in the request
	doubled := append(append([]string{}, ids...), ids...)
	result, err := fetcher.BatchFetch(context.Background(), doubled)
	require.NoError(t, err)

	// THEN: 40 distinct ids fit a single chunk
	assert.Equal(t, 1, counting.batchQueries)
	assert.Len(t, result.Allocations, 40)
}

func TestBatchFetch_MissingIDsAreAbsent(t *testing.T) {
	env := newTestEnv(ledger.DefaultConfig())
	env.createCommitment(t, "c-1", "100000")

	result, err := env.batchFetcher().BatchFetch(context.Background(), []string{"c-1", "ghost"})
	require.NoError(t, err)

	assert.Len(t, result.Allocations, 1)
	assert.Contains(t, result.Allocations, "c-1")
	assert.NotContains(t, result.Allocations, "ghost")
}

func TestBatchFetch_EmptyInput(t *testing.T) {
	env := newTestEnv(ledger.DefaultConfig())

	result, err := env.batchFetcher().BatchFetch(context.Background(), nil)
	require.NoError(t, err)

	assert.Empty(t, result.Allocations)
	assert.Empty(t, result.Deals)
	assert.Empty(t, result.Funds)
	assert.False(t, result.Partial)
}

func TestBatchFetch_FallbackWhenBatchingDisabled(t *testing.T) {
	// GIVEN: Batching turned off
	cfg := ledger.DefaultConfig()
	cfg.BatchingEnabled = false
	env := newTestEnv(cfg)
	ids := env.seedCommitments(t, 5)

	counting := &countingStore{TxMemory: env.store}
	fetcher := ledger.NewBatchFetcher(counting, env.dir, env.dir, cfg)

	// WHEN: Ids including a missing one are fetched
	result, err := fetcher.BatchFetch(context.Background(), append(ids, "ghost"))
	require.NoError(t, err)

	// THEN: One lookup per id, missing ids skipped without error
	assert.Equal(t, 0, counting.batchQueries)
	assert.Equal(t, 6, counting.singleQueries)
	assert.Len(t, result.Allocations, 5)
}

// =============================================================================
// DEADLINE
// =============================================================================

func TestBatchFetch_DeadlineProducesPartialResult(t *testing.T) {
	// GIVEN: A store slow enough that the deadline expires mid fan-out
	cfg := ledger.DefaultConfig()
	cfg.BatchChunkSize = 50
	cfg.BatchDeadline = 30 * time.Millisecond
	env := newTestEnv(cfg)
	ids := env.seedCommitments(t, 120)

	slow := &countingStore{TxMemory: env.store, delay: 25 * time.Millisecond}
	fetcher := ledger.NewBatchFetcher(slow, env.dir, env.dir, cfg)

	result, err := fetcher.BatchFetch(context.Background(), ids)

	// THEN: No error; the result holds what was gathered and says so
	require.NoError(t, err)
	assert.True(t, result.Partial)
	assert.Less(t, len(result.Allocations), 120)
}

// =============================================================================
// DIRECTORY FAILURES
// =============================================================================

// brokenDealDirectory hard-fails its batch lookup.
type brokenDealDirectory struct {
	*store.MemoryDirectory
}

func (b *brokenDealDirectory) DealsByIDs(context.Context, []string) ([]ledger.Deal, error) {
	return nil, &ledger.StoreError{Op: "deals by ids", Cause: errors.New("connection reset")}
}

func TestBatchFetch_DirectoryFailureIsAnError(t *testing.T) {
	// GIVEN: A deal directory whose batch lookup fails outright
	env := newTestEnv(ledger.DefaultConfig())
	env.createCommitment(t, "c-1", "100000")
	broken := &brokenDealDirectory{MemoryDirectory: env.dir}
	fetcher := ledger.NewBatchFetcher(env.store, broken, env.dir, env.cfg)

	// THEN: The failure surfaces instead of masquerading as a partial result
	result, err := fetcher.BatchFetch(context.Background(), []string{"c-1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ledger.ErrStore))
	assert.Nil(t, result)
}

// batchFetcher builds a fetcher over the environment's own store, for tests
// that don't count queries.
func (env *testEnv) batchFetcher() *ledger.BatchFetcher {
	return ledger.NewBatchFetcher(env.store, env.dir, env.dir, env.cfg)
}
