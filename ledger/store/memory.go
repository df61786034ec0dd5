// Package store provides in-memory implementations of the ledger's
// persistence interfaces, for testing and development.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian/capital-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	commitments map[string]ledger.Commitment
	calls       map[string]ledger.CapitalCall
	payments    map[string][]ledger.Payment // keyed by call id
	events      map[string]ledger.ClosingScheduleEvent
}

func NewMemory() *Memory {
	return &Memory{
		commitments: make(map[string]ledger.Commitment),
		calls:       make(map[string]ledger.CapitalCall),
		payments:    make(map[string][]ledger.Payment),
		events:      make(map[string]ledger.ClosingScheduleEvent),
	}
}

// ---- commitments ----

func (m *Memory) PutCommitment(_ context.Context, c ledger.Commitment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commitments[c.ID] = c
	return nil
}

func (m *Memory) GetCommitment(_ context.Context, id string) (*ledger.Commitment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.commitments[id]
	if !ok {
		return nil, &ledger.NotFoundError{Kind: "commitment", ID: id}
	}
	out := c
	return &out, nil
}

func (m *Memory) UpdateCommitment(_ context.Context, c ledger.Commitment, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.commitments[c.ID]
	if !ok {
		return &ledger.NotFoundError{Kind: "commitment", ID: c.ID}
	}
	if stored.Version != expectedVersion {
		return ledger.ErrConcurrentModification
	}
	c.Version = expectedVersion + 1
	m.commitments[c.ID] = c
	return nil
}

func (m *Memory) DeleteCommitment(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.commitments[id]; !ok {
		return &ledger.NotFoundError{Kind: "commitment", ID: id}
	}
	delete(m.commitments, id)
	for callID, call := range m.calls {
		if call.AllocationID == id {
			delete(m.calls, callID)
		}
	}
	return nil
}

func (m *Memory) CommitmentsByFund(_ context.Context, fundID string) ([]ledger.Commitment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.Commitment
	for _, c := range m.commitments {
		if c.FundID == fundID {
			out = append(out, c)
		}
	}
	sortCommitments(out)
	return out, nil
}

func (m *Memory) CommitmentsByDeal(_ context.Context, dealID string) ([]ledger.Commitment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.Commitment
	for _, c := range m.commitments {
		if c.DealID == dealID {
			out = append(out, c)
		}
	}
	sortCommitments(out)
	return out, nil
}

func (m *Memory) CommitmentsByIDs(_ context.Context, ids []string) ([]ledger.Commitment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.Commitment
	for _, id := range ids {
		if c, ok := m.commitments[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// ---- calls ----

func (m *Memory) PutCalls(_ context.Context, calls []ledger.CapitalCall) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Atomic: the map writes all happen under one lock hold.
	for _, c := range calls {
		m.calls[c.ID] = c
	}
	return nil
}

func (m *Memory) GetCall(_ context.Context, id string) (*ledger.CapitalCall, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.calls[id]
	if !ok {
		return nil, &ledger.NotFoundError{Kind: "call", ID: id}
	}
	out := c
	return &out, nil
}

func (m *Memory) UpdateCall(_ context.Context, c ledger.CapitalCall, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.calls[c.ID]
	if !ok {
		return &ledger.NotFoundError{Kind: "call", ID: c.ID}
	}
	if stored.Version != expectedVersion {
		return ledger.ErrConcurrentModification
	}
	c.Version = expectedVersion + 1
	m.calls[c.ID] = c
	return nil
}

func (m *Memory) CallsByCommitment(_ context.Context, allocationID string) ([]ledger.CapitalCall, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.CapitalCall
	for _, c := range m.calls {
		if c.AllocationID == allocationID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CallDate.Equal(out[j].CallDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].CallDate.Before(out[j].CallDate)
	})
	return out, nil
}

func (m *Memory) CallsDueBetween(_ context.Context, from, to time.Time) ([]ledger.CapitalCall, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.CapitalCall
	for _, c := range m.calls {
		if !c.DueDate.Before(from) && !c.DueDate.After(to) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

// ---- payments ----

func (m *Memory) AppendPayment(_ context.Context, p ledger.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[p.CapitalCallID] = append(m.payments[p.CapitalCallID], p)
	return nil
}

func (m *Memory) PaymentsByCall(_ context.Context, callID string) ([]ledger.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.Payment, len(m.payments[callID]))
	copy(out, m.payments[callID])
	return out, nil
}

// ---- closing schedule events ----

func (m *Memory) PutEvents(_ context.Context, events []ledger.ClosingScheduleEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range events {
		m.events[e.ID] = e
	}
	return nil
}

func (m *Memory) EventsByDeal(_ context.Context, dealID string) ([]ledger.ClosingScheduleEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.ClosingScheduleEvent
	for _, e := range m.events {
		if e.DealID == dealID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) UpdateEvent(_ context.Context, e ledger.ClosingScheduleEvent, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.events[e.ID]
	if !ok {
		return &ledger.NotFoundError{Kind: "event", ID: e.ID}
	}
	if stored.Version != expectedVersion {
		return ledger.ErrConcurrentModification
	}
	e.Version = expectedVersion + 1
	m.events[e.ID] = e
	return nil
}

func sortCommitments(cs []ledger.Commitment) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].CreatedAt.Equal(cs[j].CreatedAt) {
			return cs[i].ID < cs[j].ID
		}
		return cs[i].CreatedAt.Before(cs[j].CreatedAt)
	})
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
	txMu sync.Mutex
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction. For the memory store this is
// simulated with a snapshot, restored on error.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	tm.txMu.Lock()
	defer tm.txMu.Unlock()

	snapshot := tm.snapshot()
	if err := fn(tm.Memory); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

func (tm *TxMemory) snapshot() memorySnapshot {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	s := memorySnapshot{
		commitments: make(map[string]ledger.Commitment, len(tm.commitments)),
		calls:       make(map[string]ledger.CapitalCall, len(tm.calls)),
		payments:    make(map[string][]ledger.Payment, len(tm.payments)),
		events:      make(map[string]ledger.ClosingScheduleEvent, len(tm.events)),
	}
	for k, v := range tm.commitments {
		s.commitments[k] = v
	}
	for k, v := range tm.calls {
		s.calls[k] = v
	}
	for k, v := range tm.payments {
		s.payments[k] = append([]ledger.Payment{}, v...)
	}
	for k, v := range tm.events {
		s.events[k] = v
	}
	return s
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.commitments = s.commitments
	tm.calls = s.calls
	tm.payments = s.payments
	tm.events = s.events
}

type memorySnapshot struct {
	commitments map[string]ledger.Commitment
	calls       map[string]ledger.CapitalCall
	payments    map[string][]ledger.Payment
	events      map[string]ledger.ClosingScheduleEvent
}

// =============================================================================
// MEMORY DIRECTORIES - Fund/deal reference data for tests and dev
// =============================================================================

type MemoryDirectory struct {
	mu    sync.RWMutex
	funds map[string]ledger.Fund
	deals map[string]ledger.Deal
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		funds: make(map[string]ledger.Fund),
		deals: make(map[string]ledger.Deal),
	}
}

func (d *MemoryDirectory) PutFund(f ledger.Fund) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.funds[f.ID] = f
}

func (d *MemoryDirectory) PutDeal(deal ledger.Deal) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deals[deal.ID] = deal
}

func (d *MemoryDirectory) SaveFund(_ context.Context, f ledger.Fund) error {
	d.PutFund(f)
	return nil
}

func (d *MemoryDirectory) SaveDeal(_ context.Context, deal ledger.Deal) error {
	d.PutDeal(deal)
	return nil
}

func (d *MemoryDirectory) ListFunds(_ context.Context) ([]ledger.Fund, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]ledger.Fund, 0, len(d.funds))
	for _, f := range d.funds {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (d *MemoryDirectory) ListDeals(_ context.Context) ([]ledger.Deal, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]ledger.Deal, 0, len(d.deals))
	for _, deal := range d.deals {
		out = append(out, deal)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (d *MemoryDirectory) GetFund(_ context.Context, id string) (*ledger.Fund, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	f, ok := d.funds[id]
	if !ok {
		return nil, nil
	}
	out := f
	return &out, nil
}

func (d *MemoryDirectory) GetDeal(_ context.Context, id string) (*ledger.Deal, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	deal, ok := d.deals[id]
	if !ok {
		return nil, nil
	}
	out := deal
	return &out, nil
}

func (d *MemoryDirectory) FundsByIDs(_ context.Context, ids []string) ([]ledger.Fund, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []ledger.Fund
	for _, id := range ids {
		if f, ok := d.funds[id]; ok {
			out = append(out, f)
		}
	}
	return out, nil
}

func (d *MemoryDirectory) DealsByIDs(_ context.Context, ids []string) ([]ledger.Deal, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []ledger.Deal
	for _, id := range ids {
		if deal, ok := d.deals[id]; ok {
			out = append(out, deal)
		}
	}
	return out, nil
}

func (d *MemoryDirectory) UpdateFundAUM(_ context.Context, fundID string, aum decimal.Decimal) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.funds[fundID]
	if !ok {
		return &ledger.NotFoundError{Kind: "fund", ID: fundID}
	}
	f.AUM = aum
	d.funds[fundID] = f
	return nil
}

func (d *MemoryDirectory) SignalDealDivested(_ context.Context, dealID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	deal, ok := d.deals[dealID]
	if !ok {
		return &ledger.NotFoundError{Kind: "deal", ID: dealID}
	}
	deal.Stage = "divested"
	d.deals[dealID] = deal
	return nil
}

// =============================================================================
// MEMORY AUDIT SINK
// =============================================================================

type MemoryAuditSink struct {
	mu     sync.Mutex
	Events []ledger.AuditEvent
}

func NewMemoryAuditSink() *MemoryAuditSink {
	return &MemoryAuditSink{}
}

func (s *MemoryAuditSink) Record(_ context.Context, e ledger.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events, e)
	return nil
}

func (s *MemoryAuditSink) EventsByCommitment(_ context.Context, commitmentID string) ([]ledger.AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.AuditEvent
	for _, e := range s.Events {
		if e.CommitmentID == commitmentID {
			out = append(out, e)
		}
	}
	return out, nil
}
