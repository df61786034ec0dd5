/*
batch.go - Batch aggregation layer

PURPOSE:
  Calendar and report views need many commitments plus their referenced deals
  and funds at once. Fetching them one query per record is an N+1 pattern, so
  this layer splits the id set into fixed-size chunks, fetches each chunk,
  then hydrates the distinct deal and fund ids in their own chunked batches.

CONSISTENCY:
  The returned maps are a best-effort snapshot for read display. The reads are
  independent and carry no cross-chunk transaction; nothing here may be used
  to drive ledger invariant checks.

DEADLINE:
  The fan-out is bounded by an overall deadline. On timeout the result holds
  whatever was gathered plus Partial = true, rather than failing silently.
*/
package ledger

import (
	"context"
	"errors"
)

// DealBatchDirectory is an optional widening of DealDirectory for backends
// that can fetch many deals per query.
type DealBatchDirectory interface {
	DealsByIDs(ctx context.Context, ids []string) ([]Deal, error)
}

// FundBatchDirectory is the fund-side equivalent.
type FundBatchDirectory interface {
	FundsByIDs(ctx context.Context, ids []string) ([]Fund, error)
}

// BatchResult is a snapshot of commitments with their related deals and funds,
// keyed by id. Partial is set when the deadline cut the fan-out short.
type BatchResult struct {
	Allocations map[string]Commitment
	Deals       map[string]Deal
	Funds       map[string]Fund
	Partial     bool
}

// BatchFetcher hydrates commitments and their references in bounded chunks.
type BatchFetcher struct {
	commitments CommitmentStore
	deals       DealDirectory
	funds       FundDirectory
	cfg         Config
}

func NewBatchFetcher(commitments CommitmentStore, deals DealDirectory, funds FundDirectory, cfg Config) *BatchFetcher {
	if cfg.BatchChunkSize <= 0 {
		cfg.BatchChunkSize = DefaultConfig().BatchChunkSize
	}
	return &BatchFetcher{commitments: commitments, deals: deals, funds: funds, cfg: cfg}
}

// BatchFetch loads the given allocation ids plus the distinct deals and funds
// they reference. Duplicate ids are fetched once. Missing ids are simply
// absent from the maps.
func (bf *BatchFetcher) BatchFetch(ctx context.Context, allocationIDs []string) (*BatchResult, error) {
	result := &BatchResult{
		Allocations: make(map[string]Commitment),
		Deals:       make(map[string]Deal),
		Funds:       make(map[string]Fund),
	}
	if len(allocationIDs) == 0 {
		return result, nil
	}

	if bf.cfg.BatchDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, bf.cfg.BatchDeadline)
		defer cancel()
	}

	ids := distinct(allocationIDs)

	if !bf.cfg.BatchingEnabled {
		// One-by-one fallback.
		for _, id := range ids {
			if timedOut(ctx) {
				result.Partial = true
				return result, nil
			}
			c, err := bf.commitments.GetCommitment(ctx, id)
			if err != nil {
				if IsNotFound(err) {
					continue
				}
				if deadlineErr(err) {
					result.Partial = true
					return result, nil
				}
				return nil, err
			}
			result.Allocations[c.ID] = *c
		}
	} else {
		for _, chunk := range chunks(ids, bf.cfg.BatchChunkSize) {
			if timedOut(ctx) {
				result.Partial = true
				return result, nil
			}
			cs, err := bf.commitments.CommitmentsByIDs(ctx, chunk)
			if err != nil {
				if deadlineErr(err) {
					result.Partial = true
					return result, nil
				}
				return nil, err
			}
			for _, c := range cs {
				result.Allocations[c.ID] = c
			}
		}
	}

	dealIDs := make([]string, 0, len(result.Allocations))
	fundIDs := make([]string, 0, len(result.Allocations))
	for _, c := range result.Allocations {
		dealIDs = append(dealIDs, c.DealID)
		fundIDs = append(fundIDs, c.FundID)
	}

	partial, err := bf.fetchDeals(ctx, distinct(dealIDs), result)
	if err != nil {
		return nil, err
	}
	if partial {
		result.Partial = true
		return result, nil
	}
	partial, err = bf.fetchFunds(ctx, distinct(fundIDs), result)
	if err != nil {
		return nil, err
	}
	result.Partial = result.Partial || partial
	return result, nil
}

// fetchDeals hydrates the referenced deals. Only deadline expiry degrades the
// result to partial; a hard directory failure surfaces as an error.
func (bf *BatchFetcher) fetchDeals(ctx context.Context, ids []string, result *BatchResult) (partial bool, err error) {
	if batcher, ok := bf.deals.(DealBatchDirectory); ok && bf.cfg.BatchingEnabled {
		for _, chunk := range chunks(ids, bf.cfg.BatchChunkSize) {
			if timedOut(ctx) {
				return true, nil
			}
			deals, err := batcher.DealsByIDs(ctx, chunk)
			if err != nil {
				if deadlineErr(err) {
					return true, nil
				}
				return false, err
			}
			for _, d := range deals {
				result.Deals[d.ID] = d
			}
		}
		return false, nil
	}

	for _, id := range ids {
		if timedOut(ctx) {
			return true, nil
		}
		d, err := bf.deals.GetDeal(ctx, id)
		if err != nil {
			if deadlineErr(err) {
				return true, nil
			}
			return false, err
		}
		if d == nil {
			continue
		}
		result.Deals[d.ID] = *d
	}
	return false, nil
}

func (bf *BatchFetcher) fetchFunds(ctx context.Context, ids []string, result *BatchResult) (partial bool, err error) {
	if batcher, ok := bf.funds.(FundBatchDirectory); ok && bf.cfg.BatchingEnabled {
		for _, chunk := range chunks(ids, bf.cfg.BatchChunkSize) {
			if timedOut(ctx) {
				return true, nil
			}
			funds, err := batcher.FundsByIDs(ctx, chunk)
			if err != nil {
				if deadlineErr(err) {
					return true, nil
				}
				return false, err
			}
			for _, f := range funds {
				result.Funds[f.ID] = f
			}
		}
		return false, nil
	}

	for _, id := range ids {
		if timedOut(ctx) {
			return true, nil
		}
		f, err := bf.funds.GetFund(ctx, id)
		if err != nil {
			if deadlineErr(err) {
				return true, nil
			}
			return false, err
		}
		if f == nil {
			continue
		}
		result.Funds[f.ID] = *f
	}
	return false, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func distinct(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func chunks(ids []string, size int) [][]string {
	if size <= 0 {
		return [][]string{ids}
	}
	var out [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}

func timedOut(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func deadlineErr(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
