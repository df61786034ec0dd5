/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements all persistence interfaces (ledger.Store, ledger.TxStore,
  ledger.FundDirectory, ledger.DealDirectory, ledger.AuditSink) using SQLite.
  In production, the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

INTERFACES IMPLEMENTED:
  ledger.Store:         Commitments, calls, payments, closing events
  ledger.TxStore:       Atomic multi-record writes (proportional sync)
  ledger.FundDirectory: Fund reference data + AUM totals
  ledger.DealDirectory: Deal reference data + divestment signals
  ledger.AuditSink:     Commitment timeline events

APPEND-ONLY ENFORCEMENT:
  Payments are append-only:
  - No UPDATE statements on the payments table
  - No DELETE statements on the payments table
  - Corrections via further payments or administrative override only

OPTIMISTIC CONCURRENCY:
  Every UPDATE on a versioned table carries "AND version = ?". Zero rows
  affected means either the record is gone (NotFoundError) or someone else
  committed first (ErrConcurrentModification); we re-read to tell them apart.

KEY TABLES:
  commitments:    One row per fund x deal allocation, versioned
  capital_calls:  Draw-down requests, versioned
  payments:       Immutable record of capital received
  closing_events: Deal-level milestone targets, versioned
  funds, deals:   Reference data
  audit_events:   Timeline entries, payload as JSON

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := ledger.NewCommitmentService(store, store, store, store, cfg)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/meridian/capital-ledger/ledger"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Funds (reference data)
	CREATE TABLE IF NOT EXISTS funds (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		aum TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL
	);

	-- Deals (reference data)
	CREATE TABLE IF NOT EXISTS deals (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		stage TEXT NOT NULL DEFAULT '',
		raise_amount TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL
	);

	-- Commitments (one per fund x deal allocation)
	CREATE TABLE IF NOT EXISTS commitments (
		id TEXT PRIMARY KEY,
		fund_id TEXT NOT NULL,
		deal_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		amount_type TEXT NOT NULL,
		security_type TEXT,
		status TEXT NOT NULL,
		portfolio_weight TEXT NOT NULL DEFAULT '0',
		market_value TEXT NOT NULL DEFAULT '0',
		total_returned TEXT NOT NULL DEFAULT '0',
		moic TEXT NOT NULL DEFAULT '1',
		commitment_date TEXT NOT NULL,
		notes TEXT,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_commitments_fund
		ON commitments(fund_id);
	CREATE INDEX IF NOT EXISTS idx_commitments_deal
		ON commitments(deal_id);

	-- Capital calls (many per commitment)
	CREATE TABLE IF NOT EXISTS capital_calls (
		id TEXT PRIMARY KEY,
		allocation_id TEXT NOT NULL,
		call_amount TEXT NOT NULL,
		amount_type TEXT NOT NULL,
		call_pct TEXT NOT NULL,
		call_date TEXT NOT NULL,
		due_date TEXT NOT NULL,
		paid_amount TEXT NOT NULL DEFAULT '0',
		paid_date TEXT,
		status TEXT NOT NULL,
		activated BOOLEAN NOT NULL DEFAULT FALSE,
		overridden BOOLEAN NOT NULL DEFAULT FALSE,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_calls_allocation
		ON capital_calls(allocation_id);

	-- Composite index for calendar views (due-date range scans)
	CREATE INDEX IF NOT EXISTS idx_calls_due_date
		ON capital_calls(due_date);

	-- Payments (append-only: never updated, never deleted)
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		capital_call_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		payment_date TEXT NOT NULL,
		payment_type TEXT NOT NULL,
		notes TEXT,
		created_by TEXT,
		flagged BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_call
		ON payments(capital_call_id);

	-- Closing schedule events (deal-level milestones)
	CREATE TABLE IF NOT EXISTS closing_events (
		id TEXT PRIMARY KEY,
		deal_id TEXT NOT NULL,
		name TEXT NOT NULL,
		amount_type TEXT NOT NULL,
		target_amount TEXT,
		actual_amount TEXT,
		event_date TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_deal
		ON closing_events(deal_id);

	-- Audit timeline (append-only, payload as JSON)
	CREATE TABLE IF NOT EXISTS audit_events (
		id TEXT PRIMARY KEY,
		at TEXT NOT NULL,
		actor_id TEXT,
		action TEXT NOT NULL,
		commitment_id TEXT,
		fund_id TEXT,
		deal_id TEXT,
		payload_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_commitment
		ON audit_events(commitment_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx, so every query helper can
// run inside or outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// COMMITMENT STORE (ledger.CommitmentStore interface)
// =============================================================================

func (s *Store) PutCommitment(ctx context.Context, c ledger.Commitment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return putCommitment(ctx, s.db, c)
}

func putCommitment(ctx context.Context, db dbtx, c ledger.Commitment) error {
	query := `
		INSERT INTO commitments
		(id, fund_id, deal_id, amount, amount_type, security_type, status,
		 portfolio_weight, market_value, total_returned, moic, commitment_date,
		 notes, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		c.ID, c.FundID, c.DealID,
		c.Amount.String(), string(c.AmountType), c.SecurityType, string(c.Status),
		c.PortfolioWeight.String(), c.MarketValue.String(), c.TotalReturned.String(),
		c.MOIC.String(), c.Date.Format(time.RFC3339),
		c.Notes, c.Version,
		c.CreatedAt.UTC().Format(time.RFC3339), c.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return &ledger.StoreError{Op: "put commitment", Cause: err}
	}
	return nil
}

func (s *Store) GetCommitment(ctx context.Context, id string) (*ledger.Commitment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getCommitment(ctx, s.db, id)
}

func getCommitment(ctx context.Context, db dbtx, id string) (*ledger.Commitment, error) {
	rows, err := db.QueryContext(ctx, commitmentSelect+" WHERE id = ?", id)
	if err != nil {
		return nil, &ledger.StoreError{Op: "get commitment", Cause: err}
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, &ledger.StoreError{Op: "get commitment", Cause: err}
		}
		return nil, &ledger.NotFoundError{Kind: "commitment", ID: id}
	}
	c, err := scanCommitment(rows)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) UpdateCommitment(ctx context.Context, c ledger.Commitment, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateCommitment(ctx, s.db, c, expectedVersion)
}

func updateCommitment(ctx context.Context, db dbtx, c ledger.Commitment, expectedVersion int) error {
	query := `
		UPDATE commitments SET
			amount = ?, amount_type = ?, security_type = ?, status = ?,
			portfolio_weight = ?, market_value = ?, total_returned = ?, moic = ?,
			commitment_date = ?, notes = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`

	res, err := db.ExecContext(ctx, query,
		c.Amount.String(), string(c.AmountType), c.SecurityType, string(c.Status),
		c.PortfolioWeight.String(), c.MarketValue.String(), c.TotalReturned.String(),
		c.MOIC.String(), c.Date.Format(time.RFC3339), c.Notes,
		time.Now().UTC().Format(time.RFC3339),
		c.ID, expectedVersion,
	)
	if err != nil {
		return &ledger.StoreError{Op: "update commitment", Cause: err}
	}
	return checkVersionedWrite(ctx, db, res, "commitments", "commitment", c.ID)
}

func (s *Store) DeleteCommitment(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteCommitment(ctx, s.db, id)
}

func deleteCommitment(ctx context.Context, db dbtx, id string) error {
	res, err := db.ExecContext(ctx, "DELETE FROM commitments WHERE id = ?", id)
	if err != nil {
		return &ledger.StoreError{Op: "delete commitment", Cause: err}
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &ledger.NotFoundError{Kind: "commitment", ID: id}
	}
	// Scheduled calls go with the commitment; the service guards against
	// deleting when anything past scheduled exists.
	_, err = db.ExecContext(ctx, "DELETE FROM capital_calls WHERE allocation_id = ?", id)
	if err != nil {
		return &ledger.StoreError{Op: "delete commitment calls", Cause: err}
	}
	return nil
}

func (s *Store) CommitmentsByFund(ctx context.Context, fundID string) ([]ledger.Commitment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryCommitments(ctx, s.db, commitmentSelect+" WHERE fund_id = ? ORDER BY created_at ASC, id ASC", fundID)
}

func (s *Store) CommitmentsByDeal(ctx context.Context, dealID string) ([]ledger.Commitment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryCommitments(ctx, s.db, commitmentSelect+" WHERE deal_id = ? ORDER BY created_at ASC, id ASC", dealID)
}

func (s *Store) CommitmentsByIDs(ctx context.Context, ids []string) ([]ledger.Commitment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(ids) == 0 {
		return nil, nil
	}
	query := commitmentSelect + " WHERE id IN (" + placeholders(len(ids)) + ")"
	return queryCommitments(ctx, s.db, query, toAny(ids)...)
}

const commitmentSelect = `
	SELECT id, fund_id, deal_id, amount, amount_type, security_type, status,
	       portfolio_weight, market_value, total_returned, moic, commitment_date,
	       notes, version, created_at, updated_at
	FROM commitments`

func queryCommitments(ctx context.Context, db dbtx, query string, args ...any) ([]ledger.Commitment, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &ledger.StoreError{Op: "query commitments", Cause: err}
	}
	defer rows.Close()

	var commitments []ledger.Commitment
	for rows.Next() {
		c, err := scanCommitment(rows)
		if err != nil {
			return nil, err
		}
		commitments = append(commitments, c)
	}
	return commitments, rows.Err()
}

func scanCommitment(rows *sql.Rows) (ledger.Commitment, error) {
	var (
		c              ledger.Commitment
		amount         string
		amountType     string
		securityType   sql.NullString
		status         string
		weight         string
		marketValue    string
		totalReturned  string
		moic           string
		commitmentDate string
		notes          sql.NullString
		createdAt      string
		updatedAt      string
	)

	err := rows.Scan(
		&c.ID, &c.FundID, &c.DealID, &amount, &amountType, &securityType, &status,
		&weight, &marketValue, &totalReturned, &moic, &commitmentDate,
		&notes, &c.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		return c, &ledger.StoreError{Op: "scan commitment", Cause: err}
	}

	c.Amount = ledger.MustParseDecimal(amount)
	c.AmountType = ledger.AmountType(amountType)
	c.SecurityType = securityType.String
	c.Status = ledger.CommitmentStatus(status)
	c.PortfolioWeight = ledger.MustParseDecimal(weight)
	c.MarketValue = ledger.MustParseDecimal(marketValue)
	c.TotalReturned = ledger.MustParseDecimal(totalReturned)
	c.MOIC = ledger.MustParseDecimal(moic)
	c.Date, _ = time.Parse(time.RFC3339, commitmentDate)
	c.Notes = notes.String
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return c, nil
}

// =============================================================================
// CALL STORE (ledger.CallStore interface)
// =============================================================================

func (s *Store) PutCalls(ctx context.Context, calls []ledger.CapitalCall) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Atomic: either the whole batch is written or none of it.
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &ledger.StoreError{Op: "begin tx", Cause: err}
	}
	defer sqlTx.Rollback()

	if err := putCalls(ctx, sqlTx, calls); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func putCalls(ctx context.Context, db dbtx, calls []ledger.CapitalCall) error {
	query := `
		INSERT INTO capital_calls
		(id, allocation_id, call_amount, amount_type, call_pct, call_date,
		 due_date, paid_amount, paid_date, status, activated, overridden,
		 version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	for _, c := range calls {
		_, err := db.ExecContext(ctx, query,
			c.ID, c.AllocationID,
			c.CallAmount.String(), string(c.AmountType), c.CallPct.String(),
			c.CallDate.Format(time.RFC3339), c.DueDate.Format(time.RFC3339),
			c.PaidAmount.String(), nullTime(c.PaidDate), string(c.Status),
			c.Activated, c.Overridden, c.Version,
			c.CreatedAt.UTC().Format(time.RFC3339), c.UpdatedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return &ledger.StoreError{Op: "put call", Cause: err}
		}
	}
	return nil
}

func (s *Store) GetCall(ctx context.Context, id string) (*ledger.CapitalCall, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getCall(ctx, s.db, id)
}

func getCall(ctx context.Context, db dbtx, id string) (*ledger.CapitalCall, error) {
	rows, err := db.QueryContext(ctx, callSelect+" WHERE id = ?", id)
	if err != nil {
		return nil, &ledger.StoreError{Op: "get call", Cause: err}
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, &ledger.StoreError{Op: "get call", Cause: err}
		}
		return nil, &ledger.NotFoundError{Kind: "call", ID: id}
	}
	c, err := scanCall(rows)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) UpdateCall(ctx context.Context, c ledger.CapitalCall, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateCall(ctx, s.db, c, expectedVersion)
}

func updateCall(ctx context.Context, db dbtx, c ledger.CapitalCall, expectedVersion int) error {
	query := `
		UPDATE capital_calls SET
			call_amount = ?, amount_type = ?, call_pct = ?, call_date = ?,
			due_date = ?, paid_amount = ?, paid_date = ?, status = ?,
			activated = ?, overridden = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`

	res, err := db.ExecContext(ctx, query,
		c.CallAmount.String(), string(c.AmountType), c.CallPct.String(),
		c.CallDate.Format(time.RFC3339), c.DueDate.Format(time.RFC3339),
		c.PaidAmount.String(), nullTime(c.PaidDate), string(c.Status),
		c.Activated, c.Overridden, time.Now().UTC().Format(time.RFC3339),
		c.ID, expectedVersion,
	)
	if err != nil {
		return &ledger.StoreError{Op: "update call", Cause: err}
	}
	return checkVersionedWrite(ctx, db, res, "capital_calls", "call", c.ID)
}

func (s *Store) CallsByCommitment(ctx context.Context, allocationID string) ([]ledger.CapitalCall, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryCalls(ctx, s.db,
		callSelect+" WHERE allocation_id = ? ORDER BY call_date ASC, id ASC", allocationID)
}

func (s *Store) CallsDueBetween(ctx context.Context, from, to time.Time) ([]ledger.CapitalCall, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryCalls(ctx, s.db,
		callSelect+" WHERE due_date >= ? AND due_date <= ? ORDER BY due_date ASC",
		from.Format(time.RFC3339), to.Format(time.RFC3339))
}

const callSelect = `
	SELECT id, allocation_id, call_amount, amount_type, call_pct, call_date,
	       due_date, paid_amount, paid_date, status, activated, overridden,
	       version, created_at, updated_at
	FROM capital_calls`

func queryCalls(ctx context.Context, db dbtx, query string, args ...any) ([]ledger.CapitalCall, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &ledger.StoreError{Op: "query calls", Cause: err}
	}
	defer rows.Close()

	var calls []ledger.CapitalCall
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		calls = append(calls, c)
	}
	return calls, rows.Err()
}

func scanCall(rows *sql.Rows) (ledger.CapitalCall, error) {
	var (
		c          ledger.CapitalCall
		callAmount string
		amountType string
		callPct    string
		callDate   string
		dueDate    string
		paidAmount string
		paidDate   sql.NullString
		status     string
		createdAt  string
		updatedAt  string
	)

	err := rows.Scan(
		&c.ID, &c.AllocationID, &callAmount, &amountType, &callPct, &callDate,
		&dueDate, &paidAmount, &paidDate, &status, &c.Activated, &c.Overridden,
		&c.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		return c, &ledger.StoreError{Op: "scan call", Cause: err}
	}

	c.CallAmount = ledger.MustParseDecimal(callAmount)
	c.AmountType = ledger.AmountType(amountType)
	c.CallPct = ledger.MustParseDecimal(callPct)
	c.CallDate, _ = time.Parse(time.RFC3339, callDate)
	c.DueDate, _ = time.Parse(time.RFC3339, dueDate)
	c.PaidAmount = ledger.MustParseDecimal(paidAmount)
	c.Status = ledger.CallStatus(status)
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if paidDate.Valid {
		t, _ := time.Parse(time.RFC3339, paidDate.String)
		c.PaidDate = &t
	}

	return c, nil
}

// =============================================================================
// PAYMENT STORE (ledger.PaymentStore interface)
// =============================================================================

func (s *Store) AppendPayment(ctx context.Context, p ledger.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendPayment(ctx, s.db, p)
}

func appendPayment(ctx context.Context, db dbtx, p ledger.Payment) error {
	query := `
		INSERT INTO payments
		(id, capital_call_id, amount, payment_date, payment_type, notes,
		 created_by, flagged, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		p.ID, p.CapitalCallID, p.Amount.String(),
		p.Date.Format(time.RFC3339), string(p.Type),
		p.Notes, p.CreatedBy, p.Flagged,
		p.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return &ledger.StoreError{Op: "append payment", Cause: err}
	}
	return nil
}

func (s *Store) PaymentsByCall(ctx context.Context, callID string) ([]ledger.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryPayments(ctx, s.db, callID)
}

func queryPayments(ctx context.Context, db dbtx, callID string) ([]ledger.Payment, error) {
	query := `
		SELECT id, capital_call_id, amount, payment_date, payment_type, notes,
		       created_by, flagged, created_at
		FROM payments
		WHERE capital_call_id = ?
		ORDER BY payment_date ASC, created_at ASC
	`

	rows, err := db.QueryContext(ctx, query, callID)
	if err != nil {
		return nil, &ledger.StoreError{Op: "query payments", Cause: err}
	}
	defer rows.Close()

	var payments []ledger.Payment
	for rows.Next() {
		var (
			p           ledger.Payment
			amount      string
			paymentDate string
			paymentType string
			notes       sql.NullString
			createdBy   sql.NullString
			createdAt   string
		)
		if err := rows.Scan(&p.ID, &p.CapitalCallID, &amount, &paymentDate,
			&paymentType, &notes, &createdBy, &p.Flagged, &createdAt); err != nil {
			return nil, &ledger.StoreError{Op: "scan payment", Cause: err}
		}
		p.Amount = ledger.MustParseDecimal(amount)
		p.Date, _ = time.Parse(time.RFC3339, paymentDate)
		p.Type = ledger.PaymentType(paymentType)
		p.Notes = notes.String
		p.CreatedBy = createdBy.String
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// =============================================================================
// EVENT STORE (ledger.EventStore interface)
// =============================================================================

func (s *Store) PutEvents(ctx context.Context, events []ledger.ClosingScheduleEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &ledger.StoreError{Op: "begin tx", Cause: err}
	}
	defer sqlTx.Rollback()

	if err := putEvents(ctx, sqlTx, events); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func putEvents(ctx context.Context, db dbtx, events []ledger.ClosingScheduleEvent) error {
	query := `
		INSERT INTO closing_events
		(id, deal_id, name, amount_type, target_amount, actual_amount,
		 event_date, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	for _, e := range events {
		_, err := db.ExecContext(ctx, query,
			e.ID, e.DealID, e.Name, string(e.AmountType),
			nullDecimal(e.TargetAmount), nullDecimal(e.ActualAmount),
			e.EventDate.Format(time.RFC3339), e.Version,
			e.CreatedAt.UTC().Format(time.RFC3339), e.UpdatedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return &ledger.StoreError{Op: "put event", Cause: err}
		}
	}
	return nil
}

func (s *Store) EventsByDeal(ctx context.Context, dealID string) ([]ledger.ClosingScheduleEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryEvents(ctx, s.db, dealID)
}

func queryEvents(ctx context.Context, db dbtx, dealID string) ([]ledger.ClosingScheduleEvent, error) {
	query := `
		SELECT id, deal_id, name, amount_type, target_amount, actual_amount,
		       event_date, version, created_at, updated_at
		FROM closing_events
		WHERE deal_id = ?
		ORDER BY event_date ASC, id ASC
	`

	rows, err := db.QueryContext(ctx, query, dealID)
	if err != nil {
		return nil, &ledger.StoreError{Op: "query events", Cause: err}
	}
	defer rows.Close()

	var events []ledger.ClosingScheduleEvent
	for rows.Next() {
		var (
			e            ledger.ClosingScheduleEvent
			amountType   string
			targetAmount sql.NullString
			actualAmount sql.NullString
			eventDate    string
			createdAt    string
			updatedAt    string
		)
		if err := rows.Scan(&e.ID, &e.DealID, &e.Name, &amountType,
			&targetAmount, &actualAmount, &eventDate, &e.Version,
			&createdAt, &updatedAt); err != nil {
			return nil, &ledger.StoreError{Op: "scan event", Cause: err}
		}
		e.AmountType = ledger.AmountType(amountType)
		if targetAmount.Valid {
			d := ledger.MustParseDecimal(targetAmount.String)
			e.TargetAmount = &d
		}
		if actualAmount.Valid {
			d := ledger.MustParseDecimal(actualAmount.String)
			e.ActualAmount = &d
		}
		e.EventDate, _ = time.Parse(time.RFC3339, eventDate)
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		e.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *Store) UpdateEvent(ctx context.Context, e ledger.ClosingScheduleEvent, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateEvent(ctx, s.db, e, expectedVersion)
}

func updateEvent(ctx context.Context, db dbtx, e ledger.ClosingScheduleEvent, expectedVersion int) error {
	query := `
		UPDATE closing_events SET
			name = ?, amount_type = ?, target_amount = ?, actual_amount = ?,
			event_date = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`

	res, err := db.ExecContext(ctx, query,
		e.Name, string(e.AmountType),
		nullDecimal(e.TargetAmount), nullDecimal(e.ActualAmount),
		e.EventDate.Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339),
		e.ID, expectedVersion,
	)
	if err != nil {
		return &ledger.StoreError{Op: "update event", Cause: err}
	}
	return checkVersionedWrite(ctx, db, res, "closing_events", "event", e.ID)
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &ledger.StoreError{Op: "begin tx", Cause: err}
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) PutCommitment(ctx context.Context, c ledger.Commitment) error {
	return putCommitment(ctx, ts.tx, c)
}

func (ts *txStore) GetCommitment(ctx context.Context, id string) (*ledger.Commitment, error) {
	return getCommitment(ctx, ts.tx, id)
}

func (ts *txStore) UpdateCommitment(ctx context.Context, c ledger.Commitment, expectedVersion int) error {
	return updateCommitment(ctx, ts.tx, c, expectedVersion)
}

func (ts *txStore) DeleteCommitment(ctx context.Context, id string) error {
	return deleteCommitment(ctx, ts.tx, id)
}

func (ts *txStore) CommitmentsByFund(ctx context.Context, fundID string) ([]ledger.Commitment, error) {
	return queryCommitments(ctx, ts.tx,
		commitmentSelect+" WHERE fund_id = ? ORDER BY created_at ASC, id ASC", fundID)
}

func (ts *txStore) CommitmentsByDeal(ctx context.Context, dealID string) ([]ledger.Commitment, error) {
	return queryCommitments(ctx, ts.tx,
		commitmentSelect+" WHERE deal_id = ? ORDER BY created_at ASC, id ASC", dealID)
}

func (ts *txStore) CommitmentsByIDs(ctx context.Context, ids []string) ([]ledger.Commitment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return queryCommitments(ctx, ts.tx,
		commitmentSelect+" WHERE id IN ("+placeholders(len(ids))+")", toAny(ids)...)
}

func (ts *txStore) PutCalls(ctx context.Context, calls []ledger.CapitalCall) error {
	return putCalls(ctx, ts.tx, calls)
}

func (ts *txStore) GetCall(ctx context.Context, id string) (*ledger.CapitalCall, error) {
	return getCall(ctx, ts.tx, id)
}

func (ts *txStore) UpdateCall(ctx context.Context, c ledger.CapitalCall, expectedVersion int) error {
	return updateCall(ctx, ts.tx, c, expectedVersion)
}

func (ts *txStore) CallsByCommitment(ctx context.Context, allocationID string) ([]ledger.CapitalCall, error) {
	return queryCalls(ctx, ts.tx,
		callSelect+" WHERE allocation_id = ? ORDER BY call_date ASC, id ASC", allocationID)
}

func (ts *txStore) CallsDueBetween(ctx context.Context, from, to time.Time) ([]ledger.CapitalCall, error) {
	return queryCalls(ctx, ts.tx,
		callSelect+" WHERE due_date >= ? AND due_date <= ? ORDER BY due_date ASC",
		from.Format(time.RFC3339), to.Format(time.RFC3339))
}

func (ts *txStore) AppendPayment(ctx context.Context, p ledger.Payment) error {
	return appendPayment(ctx, ts.tx, p)
}

func (ts *txStore) PaymentsByCall(ctx context.Context, callID string) ([]ledger.Payment, error) {
	return queryPayments(ctx, ts.tx, callID)
}

func (ts *txStore) PutEvents(ctx context.Context, events []ledger.ClosingScheduleEvent) error {
	return putEvents(ctx, ts.tx, events)
}

func (ts *txStore) EventsByDeal(ctx context.Context, dealID string) ([]ledger.ClosingScheduleEvent, error) {
	return queryEvents(ctx, ts.tx, dealID)
}

func (ts *txStore) UpdateEvent(ctx context.Context, e ledger.ClosingScheduleEvent, expectedVersion int) error {
	return updateEvent(ctx, ts.tx, e, expectedVersion)
}

// =============================================================================
// FUND DIRECTORY (ledger.FundDirectory interface)
// =============================================================================

// SaveFund inserts or updates a fund record.
func (s *Store) SaveFund(ctx context.Context, f ledger.Fund) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO funds (id, name, aum, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			aum = excluded.aum
	`

	_, err := s.db.ExecContext(ctx, query,
		f.ID, f.Name, f.AUM.String(),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return &ledger.StoreError{Op: "save fund", Cause: err}
	}
	return nil
}

func (s *Store) GetFund(ctx context.Context, id string) (*ledger.Fund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var f ledger.Fund
	var aum string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, aum FROM funds WHERE id = ?", id,
	).Scan(&f.ID, &f.Name, &aum)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &ledger.StoreError{Op: "get fund", Cause: err}
	}
	f.AUM = ledger.MustParseDecimal(aum)
	return &f, nil
}

// ListFunds returns all funds.
func (s *Store) ListFunds(ctx context.Context) ([]ledger.Fund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryFunds(ctx, "SELECT id, name, aum FROM funds ORDER BY name")
}

// FundsByIDs returns the funds that exist; missing ids are not an error.
func (s *Store) FundsByIDs(ctx context.Context, ids []string) ([]ledger.Fund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(ids) == 0 {
		return nil, nil
	}
	return s.queryFunds(ctx,
		"SELECT id, name, aum FROM funds WHERE id IN ("+placeholders(len(ids))+")",
		toAny(ids)...)
}

func (s *Store) queryFunds(ctx context.Context, query string, args ...any) ([]ledger.Fund, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &ledger.StoreError{Op: "query funds", Cause: err}
	}
	defer rows.Close()

	var funds []ledger.Fund
	for rows.Next() {
		var f ledger.Fund
		var aum string
		if err := rows.Scan(&f.ID, &f.Name, &aum); err != nil {
			return nil, &ledger.StoreError{Op: "scan fund", Cause: err}
		}
		f.AUM = ledger.MustParseDecimal(aum)
		funds = append(funds, f)
	}
	return funds, rows.Err()
}

func (s *Store) UpdateFundAUM(ctx context.Context, fundID string, aum decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE funds SET aum = ? WHERE id = ?", aum.String(), fundID)
	if err != nil {
		return &ledger.StoreError{Op: "update fund aum", Cause: err}
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &ledger.NotFoundError{Kind: "fund", ID: fundID}
	}
	return nil
}

// =============================================================================
// DEAL DIRECTORY (ledger.DealDirectory interface)
// =============================================================================

// SaveDeal inserts or updates a deal record.
func (s *Store) SaveDeal(ctx context.Context, d ledger.Deal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO deals (id, name, stage, raise_amount, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			stage = excluded.stage,
			raise_amount = excluded.raise_amount
	`

	_, err := s.db.ExecContext(ctx, query,
		d.ID, d.Name, d.Stage, d.RaiseAmount.String(),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return &ledger.StoreError{Op: "save deal", Cause: err}
	}
	return nil
}

func (s *Store) GetDeal(ctx context.Context, id string) (*ledger.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var d ledger.Deal
	var raiseAmount string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, stage, raise_amount FROM deals WHERE id = ?", id,
	).Scan(&d.ID, &d.Name, &d.Stage, &raiseAmount)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &ledger.StoreError{Op: "get deal", Cause: err}
	}
	d.RaiseAmount = ledger.MustParseDecimal(raiseAmount)
	return &d, nil
}

// ListDeals returns all deals.
func (s *Store) ListDeals(ctx context.Context) ([]ledger.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryDeals(ctx, "SELECT id, name, stage, raise_amount FROM deals ORDER BY name")
}

// DealsByIDs returns the deals that exist; missing ids are not an error.
func (s *Store) DealsByIDs(ctx context.Context, ids []string) ([]ledger.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(ids) == 0 {
		return nil, nil
	}
	return s.queryDeals(ctx,
		"SELECT id, name, stage, raise_amount FROM deals WHERE id IN ("+placeholders(len(ids))+")",
		toAny(ids)...)
}

func (s *Store) queryDeals(ctx context.Context, query string, args ...any) ([]ledger.Deal, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &ledger.StoreError{Op: "query deals", Cause: err}
	}
	defer rows.Close()

	var deals []ledger.Deal
	for rows.Next() {
		var d ledger.Deal
		var raiseAmount string
		if err := rows.Scan(&d.ID, &d.Name, &d.Stage, &raiseAmount); err != nil {
			return nil, &ledger.StoreError{Op: "scan deal", Cause: err}
		}
		d.RaiseAmount = ledger.MustParseDecimal(raiseAmount)
		deals = append(deals, d)
	}
	return deals, rows.Err()
}

func (s *Store) SignalDealDivested(ctx context.Context, dealID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE deals SET stage = 'divested' WHERE id = ?", dealID)
	if err != nil {
		return &ledger.StoreError{Op: "signal deal divested", Cause: err}
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &ledger.NotFoundError{Kind: "deal", ID: dealID}
	}
	return nil
}

// =============================================================================
// AUDIT SINK (ledger.AuditSink + ledger.AuditQuerier interfaces)
// =============================================================================

func (s *Store) Record(ctx context.Context, e ledger.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payloadJSON, _ := json.Marshal(e.Payload)

	query := `
		INSERT INTO audit_events
		(id, at, actor_id, action, commitment_id, fund_id, deal_id, payload_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.At.Format(time.RFC3339), e.ActorID, string(e.Action),
		e.CommitmentID, e.FundID, e.DealID, string(payloadJSON),
	)
	if err != nil {
		return &ledger.StoreError{Op: "record audit event", Cause: err}
	}
	return nil
}

func (s *Store) EventsByCommitment(ctx context.Context, commitmentID string) ([]ledger.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, at, actor_id, action, commitment_id, fund_id, deal_id, payload_json
		FROM audit_events
		WHERE commitment_id = ?
		ORDER BY at ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, commitmentID)
	if err != nil {
		return nil, &ledger.StoreError{Op: "query audit events", Cause: err}
	}
	defer rows.Close()

	var events []ledger.AuditEvent
	for rows.Next() {
		var (
			e           ledger.AuditEvent
			at          string
			actorID     sql.NullString
			action      string
			payloadJSON sql.NullString
		)
		if err := rows.Scan(&e.ID, &at, &actorID, &action,
			&e.CommitmentID, &e.FundID, &e.DealID, &payloadJSON); err != nil {
			return nil, &ledger.StoreError{Op: "scan audit event", Cause: err}
		}
		e.At, _ = time.Parse(time.RFC3339, at)
		e.ActorID = actorID.String
		e.Action = ledger.AuditAction(action)
		if payloadJSON.Valid && payloadJSON.String != "" {
			json.Unmarshal([]byte(payloadJSON.String), &e.Payload)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"payments", "capital_calls", "closing_events", "commitments", "audit_events", "deals", "funds"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// checkVersionedWrite distinguishes "record gone" from "version mismatch"
// after a zero-row versioned UPDATE.
func checkVersionedWrite(ctx context.Context, db dbtx, res sql.Result, table, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return &ledger.StoreError{Op: "update " + kind, Cause: err}
	}
	if n > 0 {
		return nil
	}

	var count int
	err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table+" WHERE id = ?", id).Scan(&count)
	if err != nil {
		return &ledger.StoreError{Op: "update " + kind, Cause: err}
	}
	if count == 0 {
		return &ledger.NotFoundError{Kind: kind, ID: id}
	}
	return ledger.ErrConcurrentModification
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toAny(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

func nullTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

func nullDecimal(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}
