/*
metrics.go - Performance metrics calculator

PURPOSE:
  Aggregates calls and payments into investment performance ratios, per
  commitment and per fund.

DEFINITIONS:
  totalCalled  = sum(call.callAmount)
  totalPaid    = sum(call.paidAmount)
  moic         = (currentValue + distributions) / totalPaid, identity 1 when
                 nothing has been paid in
  dpi          = distributions / totalPaid (0 when totalPaid is 0)
  tvpi         = (currentValue + distributions) / totalPaid
  netCashFlow  = distributions - totalPaid
  weight(c)    = c.amount / sum(active commitments in fund) * 100

Written-off commitments carry weight 0 and are excluded from the weight
denominator.
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// AllocationMetrics is the per-commitment statistics block.
type AllocationMetrics struct {
	CommitmentID  string
	TotalInvested decimal.Decimal
	CurrentValue  decimal.Decimal
	Distributions decimal.Decimal
	TotalCalled   decimal.Decimal
	TotalPaid     decimal.Decimal
	MOIC          decimal.Decimal
	Unrealized    decimal.Decimal
}

// FundMetrics aggregates across all of a fund's commitments.
type FundMetrics struct {
	FundID             string
	CommitmentCount    int
	TotalCommitted     decimal.Decimal
	TotalCalled        decimal.Decimal
	TotalPaid          decimal.Decimal
	TotalCurrentValue  decimal.Decimal
	TotalDistributions decimal.Decimal
	DPI                decimal.Decimal
	TVPI               decimal.Decimal
	NetCashFlow        decimal.Decimal
	AUM                decimal.Decimal
}

// MetricsCalculator derives performance ratios from stored records. Read-only.
type MetricsCalculator struct {
	store Store
}

func NewMetricsCalculator(store Store) *MetricsCalculator {
	return &MetricsCalculator{store: store}
}

// CalculateAllocationMetrics computes the statistics for one commitment.
func (mc *MetricsCalculator) CalculateAllocationMetrics(ctx context.Context, commitmentID string) (*AllocationMetrics, error) {
	c, err := mc.store.GetCommitment(ctx, commitmentID)
	if err != nil {
		return nil, err
	}
	calls, err := mc.store.CallsByCommitment(ctx, commitmentID)
	if err != nil {
		return nil, err
	}

	m := &AllocationMetrics{
		CommitmentID:  commitmentID,
		CurrentValue:  c.MarketValue,
		Distributions: c.TotalReturned,
	}
	for _, call := range calls {
		m.TotalCalled = m.TotalCalled.Add(call.CallAmount)
		m.TotalPaid = m.TotalPaid.Add(call.PaidAmount)
	}
	m.TotalInvested = m.TotalPaid
	m.MOIC = moic(m.CurrentValue, m.Distributions, m.TotalPaid)
	m.Unrealized = m.CurrentValue.Sub(m.TotalPaid)
	return m, nil
}

// CalculateFundMetrics aggregates every commitment in the fund.
func (mc *MetricsCalculator) CalculateFundMetrics(ctx context.Context, fundID string) (*FundMetrics, error) {
	commitments, err := mc.store.CommitmentsByFund(ctx, fundID)
	if err != nil {
		return nil, err
	}

	m := &FundMetrics{FundID: fundID, CommitmentCount: len(commitments)}
	for _, c := range commitments {
		m.TotalCommitted = m.TotalCommitted.Add(c.Amount)
		m.TotalCurrentValue = m.TotalCurrentValue.Add(c.MarketValue)
		m.TotalDistributions = m.TotalDistributions.Add(c.TotalReturned)
		if c.Status == CommitmentFunded {
			m.AUM = m.AUM.Add(c.Amount)
		}

		calls, err := mc.store.CallsByCommitment(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		for _, call := range calls {
			m.TotalCalled = m.TotalCalled.Add(call.CallAmount)
			m.TotalPaid = m.TotalPaid.Add(call.PaidAmount)
		}
	}

	if m.TotalPaid.IsPositive() {
		m.DPI = m.TotalDistributions.Div(m.TotalPaid).Round(4)
		m.TVPI = m.TotalCurrentValue.Add(m.TotalDistributions).Div(m.TotalPaid).Round(4)
	}
	m.NetCashFlow = m.TotalDistributions.Sub(m.TotalPaid)
	return m, nil
}

// moic is (currentValue + distributions) / totalPaid with identity 1 when
// nothing has been paid in.
func moic(currentValue, distributions, totalPaid decimal.Decimal) decimal.Decimal {
	if !totalPaid.IsPositive() {
		return decimal.NewFromInt(1)
	}
	return currentValue.Add(distributions).Div(totalPaid).Round(4)
}

// ComputeWeights returns portfolio weights (0-100) keyed by commitment id.
// Written-off commitments get weight 0 and do not contribute to the
// denominator.
func ComputeWeights(commitments []Commitment) map[string]decimal.Decimal {
	weights := make(map[string]decimal.Decimal, len(commitments))

	denominator := decimal.Zero
	for _, c := range commitments {
		if c.Active() {
			denominator = denominator.Add(c.Amount)
		}
	}

	hundred := decimal.NewFromInt(100)
	for _, c := range commitments {
		if !c.Active() || !denominator.IsPositive() {
			weights[c.ID] = decimal.Zero
			continue
		}
		weights[c.ID] = c.Amount.Div(denominator).Mul(hundred).Round(4)
	}
	return weights
}
