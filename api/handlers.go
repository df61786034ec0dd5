/*
handlers.go - HTTP API handlers for the capital ledger

PURPOSE:
  Exposes the commitment and capital-call engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Commitments:
    POST   /api/commitments                 Create commitment
    GET    /api/commitments/{id}            Get commitment
    PUT    /api/commitments/{id}/amount     Rescale commitment (proportional sync)
    DELETE /api/commitments/{id}            Delete commitment
    POST   /api/commitments/{id}/writeoff   Write off commitment
    GET    /api/commitments/{id}/calls      List calls
    POST   /api/commitments/{id}/calls      Schedule call batch
    GET    /api/commitments/{id}/metrics    Per-commitment metrics
    GET    /api/commitments/{id}/timeline   Audit timeline

  Calls:
    POST   /api/calls/{id}/activate         Issue a scheduled call
    POST   /api/calls/{id}/override         Administrative status override
    POST   /api/calls/{id}/payments         Record a payment
    GET    /api/calls/{id}/payments         Payment history

  Aggregation:
    POST   /api/batch                       Bulk commitment+deal+fund fetch
    GET    /api/calendar                    Calls due in a date range

  Funds / Deals:
    GET,POST /api/funds                     List / upsert funds
    GET    /api/funds/{id}                  Get fund
    GET    /api/funds/{id}/metrics          Fund-level metrics
    GET    /api/funds/{id}/commitments      Fund's commitments
    GET,POST /api/deals                     List / upsert deals
    GET    /api/deals/{id}                  Get deal
    GET    /api/deals/{id}/commitments      Deal's commitments
    GET,POST /api/deals/{id}/events         Closing schedule

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input (go-playground/validator tags, then decimal parsing)
  3. Call domain logic (services in the ledger package)
  4. Serialize response
  5. Map domain errors to HTTP status

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Record not found
  - 409: Conflict (terminal status, concurrent modification, lifecycle guard)
  - 500: Internal errors

ACTOR ATTRIBUTION:
  Mutating endpoints read the acting user from the X-Actor-ID header and
  thread it into the audit timeline. No authentication is performed here.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian/capital-ledger/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// FundAdmin widens FundDirectory with the write/list operations the API
// exposes. Both the SQLite store and the in-memory directory satisfy it.
type FundAdmin interface {
	ledger.FundDirectory
	SaveFund(ctx context.Context, f ledger.Fund) error
	ListFunds(ctx context.Context) ([]ledger.Fund, error)
}

// DealAdmin is the deal-side equivalent.
type DealAdmin interface {
	ledger.DealDirectory
	SaveDeal(ctx context.Context, d ledger.Deal) error
	ListDeals(ctx context.Context) ([]ledger.Deal, error)
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Commitments *ledger.CommitmentService
	Calls       *ledger.CallScheduler
	Payments    *ledger.PaymentApplicator
	Metrics     *ledger.MetricsCalculator
	Batch       *ledger.BatchFetcher

	Store ledger.TxStore
	Funds FundAdmin
	Deals DealAdmin
	Audit ledger.AuditQuerier // nil when the sink has no read side

	validate *validator.Validate
}

// NewHandler wires the domain services around the given stores.
func NewHandler(store ledger.TxStore, funds FundAdmin, deals DealAdmin, audit ledger.AuditSink, cfg ledger.Config) *Handler {
	h := &Handler{
		Commitments: ledger.NewCommitmentService(store, funds, deals, audit, cfg),
		Calls:       ledger.NewCallScheduler(store, audit, cfg),
		Payments:    ledger.NewPaymentApplicator(store, audit, cfg),
		Metrics:     ledger.NewMetricsCalculator(store),
		Batch:       ledger.NewBatchFetcher(store, deals, funds, cfg),
		Store:       store,
		Funds:       funds,
		Deals:       deals,
		validate:    validator.New(),
	}
	if q, ok := audit.(ledger.AuditQuerier); ok {
		h.Audit = q
	}
	return h
}

// =============================================================================
// COMMITMENT HANDLERS
// =============================================================================

// CreateCommitment creates a new commitment.
// POST /api/commitments
func (h *Handler) CreateCommitment(w http.ResponseWriter, r *http.Request) {
	var req CreateCommitmentRequest
	if !h.decode(w, r, &req) {
		return
	}

	amount, ok := parseDecimalField(w, "amount", req.Amount)
	if !ok {
		return
	}
	date, ok := parseDateField(w, "date", req.Date)
	if !ok {
		return
	}

	c, err := h.Commitments.CreateCommitment(r.Context(), ledger.CreateCommitmentInput{
		FundID:       req.FundID,
		DealID:       req.DealID,
		Amount:       ledger.CallAmount{Type: ledger.AmountType(req.AmountType), Value: amount},
		SecurityType: req.SecurityType,
		Date:         date,
		Notes:        req.Notes,
		ActorID:      actorID(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toCommitmentDTO(c))
}

// GetCommitment returns a single commitment.
// GET /api/commitments/{id}
func (h *Handler) GetCommitment(w http.ResponseWriter, r *http.Request) {
	c, err := h.Commitments.GetCommitment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCommitmentDTO(c))
}

// UpdateCommitmentAmount rescales a commitment and all dependent records.
// PUT /api/commitments/{id}/amount
func (h *Handler) UpdateCommitmentAmount(w http.ResponseWriter, r *http.Request) {
	var req UpdateAmountRequest
	if !h.decode(w, r, &req) {
		return
	}

	amount, ok := parseDecimalField(w, "amount", req.Amount)
	if !ok {
		return
	}

	c, sync, err := h.Commitments.UpdateCommitmentAmount(r.Context(), chi.URLParam(r, "id"), amount, actorID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, UpdateAmountResponse{
		Commitment: toCommitmentDTO(c),
		Sync:       toSyncResultDTO(sync),
	})
}

// DeleteCommitment removes a commitment that has no calls past scheduled.
// DELETE /api/commitments/{id}
func (h *Handler) DeleteCommitment(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Commitments.DeleteCommitment(r.Context(), chi.URLParam(r, "id"), actorID(r)); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// WriteOffCommitment marks a commitment written off, zeroing its weight.
// POST /api/commitments/{id}/writeoff
func (h *Handler) WriteOffCommitment(w http.ResponseWriter, r *http.Request) {
	c, err := h.Commitments.WriteOffCommitment(r.Context(), chi.URLParam(r, "id"), actorID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCommitmentDTO(c))
}

// GetCommitmentTimeline returns the commitment's audit trail.
// GET /api/commitments/{id}/timeline
func (h *Handler) GetCommitmentTimeline(w http.ResponseWriter, r *http.Request) {
	if h.Audit == nil {
		writeJSON(w, http.StatusOK, []AuditEventDTO{})
		return
	}

	events, err := h.Audit.EventsByCommitment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]AuditEventDTO, len(events))
	for i := range events {
		dtos[i] = toAuditEventDTO(&events[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCommitmentMetrics returns the per-commitment statistics block.
// GET /api/commitments/{id}/metrics
func (h *Handler) GetCommitmentMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := h.Metrics.CalculateAllocationMetrics(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, AllocationMetricsDTO{
		CommitmentID:  m.CommitmentID,
		TotalInvested: m.TotalInvested.String(),
		CurrentValue:  m.CurrentValue.String(),
		Distributions: m.Distributions.String(),
		TotalCalled:   m.TotalCalled.String(),
		TotalPaid:     m.TotalPaid.String(),
		MOIC:          m.MOIC.String(),
		Unrealized:    m.Unrealized.String(),
	})
}

// =============================================================================
// CAPITAL CALL HANDLERS
// =============================================================================

// ScheduleCalls creates a batch of calls against a commitment.
// POST /api/commitments/{id}/calls
func (h *Handler) ScheduleCalls(w http.ResponseWriter, r *http.Request) {
	var req ScheduleCallsRequest
	if !h.decode(w, r, &req) {
		return
	}

	reqs := make([]ledger.CallRequest, 0, len(req.Calls))
	for _, c := range req.Calls {
		amount, ok := parseDecimalField(w, "amount", c.Amount)
		if !ok {
			return
		}
		callDate, ok := parseDateField(w, "call_date", c.CallDate)
		if !ok {
			return
		}
		dueDate, ok := parseDateField(w, "due_date", c.DueDate)
		if !ok {
			return
		}
		reqs = append(reqs, ledger.CallRequest{
			Amount:   ledger.CallAmount{Type: ledger.AmountType(c.AmountType), Value: amount},
			CallDate: callDate,
			DueDate:  dueDate,
		})
	}

	calls, err := h.Calls.CreateCapitalCalls(r.Context(), chi.URLParam(r, "id"), reqs, actorID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCallDTOs(calls))
}

// ListCalls returns a commitment's calls with freshly derived statuses.
// GET /api/commitments/{id}/calls
func (h *Handler) ListCalls(w http.ResponseWriter, r *http.Request) {
	calls, err := h.Calls.CallsByCommitment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCallDTOs(calls))
}

// ActivateCall issues a scheduled call.
// POST /api/calls/{id}/activate
func (h *Handler) ActivateCall(w http.ResponseWriter, r *http.Request) {
	call, err := h.Calls.ActivateCall(r.Context(), chi.URLParam(r, "id"), actorID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCallDTO(call))
}

// OverrideCallStatus sets a call's status directly, bypassing derivation.
// POST /api/calls/{id}/override
func (h *Handler) OverrideCallStatus(w http.ResponseWriter, r *http.Request) {
	var req OverrideStatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	call, err := h.Calls.OverrideCallStatus(r.Context(), chi.URLParam(r, "id"),
		ledger.CallStatus(req.Status), actorID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCallDTO(call))
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// ApplyPayment records a payment against a call.
// POST /api/calls/{id}/payments
func (h *Handler) ApplyPayment(w http.ResponseWriter, r *http.Request) {
	var req ApplyPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}

	amount, ok := parseDecimalField(w, "amount", req.Amount)
	if !ok {
		return
	}
	date, ok := parseDateField(w, "date", req.Date)
	if !ok {
		return
	}

	result, err := h.Payments.ApplyPayment(r.Context(), ledger.ApplyPaymentInput{
		CallID:  chi.URLParam(r, "id"),
		Amount:  amount,
		Date:    date,
		Type:    ledger.PaymentType(req.Type),
		ActorID: actorID(r),
		Notes:   req.Notes,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, ApplyPaymentResponse{
		Payment: toPaymentDTO(&result.Payment),
		Call:    toCallDTO(&result.UpdatedCall),
	})
}

// ListPayments returns the payment history of a call.
// GET /api/calls/{id}/payments
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.Payments.PaymentsByCall(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]PaymentDTO, len(payments))
	for i := range payments {
		dtos[i] = toPaymentDTO(&payments[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// AGGREGATION HANDLERS
// =============================================================================

// BatchFetch hydrates many commitments with their deals and funds.
// POST /api/batch
func (h *Handler) BatchFetch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.Batch.BatchFetch(r.Context(), req.AllocationIDs)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := BatchResponse{
		Allocations: make(map[string]CommitmentDTO, len(result.Allocations)),
		Deals:       make(map[string]DealDTO, len(result.Deals)),
		Funds:       make(map[string]FundDTO, len(result.Funds)),
		Partial:     result.Partial,
	}
	for id, c := range result.Allocations {
		c := c
		resp.Allocations[id] = toCommitmentDTO(&c)
	}
	for id, d := range result.Deals {
		d := d
		resp.Deals[id] = toDealDTO(&d)
	}
	for id, f := range result.Funds {
		f := f
		resp.Funds[id] = toFundDTO(&f)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetCalendar returns calls due in [from, to] with their deal and fund names,
// defaulting to the next 90 days.
// GET /api/calendar?from=2026-01-01&to=2026-03-31
func (h *Handler) GetCalendar(w http.ResponseWriter, r *http.Request) {
	from := time.Now().UTC().Truncate(24 * time.Hour)
	to := from.AddDate(0, 3, 0)

	var ok bool
	if q := r.URL.Query().Get("from"); q != "" {
		if from, ok = parseDateField(w, "from", q); !ok {
			return
		}
	}
	if q := r.URL.Query().Get("to"); q != "" {
		if to, ok = parseDateField(w, "to", q); !ok {
			return
		}
		// Include the whole end day.
		to = to.Add(24*time.Hour - time.Second)
	}

	calls, err := h.Store.CallsDueBetween(r.Context(), from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// Hydrate the owning allocations plus their deal and fund names through
	// the batch layer, one chunked fan-out instead of a lookup per call.
	ids := make([]string, 0, len(calls))
	for i := range calls {
		ids = append(ids, calls[i].AllocationID)
	}
	hydrated, err := h.Batch.BatchFetch(r.Context(), ids)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := CalendarResponse{
		Entries: make([]CalendarEntryDTO, 0, len(calls)),
		Partial: hydrated.Partial,
	}
	for i := range calls {
		entry := CalendarEntryDTO{Call: toCallDTO(&calls[i])}
		if c, ok := hydrated.Allocations[calls[i].AllocationID]; ok {
			entry.FundID = c.FundID
			entry.DealID = c.DealID
			if d, ok := hydrated.Deals[c.DealID]; ok {
				entry.DealName = d.Name
			}
			if f, ok := hydrated.Funds[c.FundID]; ok {
				entry.FundName = f.Name
			}
		}
		resp.Entries = append(resp.Entries, entry)
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// FUND HANDLERS
// =============================================================================

// ListFunds returns all funds.
func (h *Handler) ListFunds(w http.ResponseWriter, r *http.Request) {
	funds, err := h.Funds.ListFunds(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]FundDTO, len(funds))
	for i := range funds {
		dtos[i] = toFundDTO(&funds[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateFund inserts or updates a fund.
func (h *Handler) CreateFund(w http.ResponseWriter, r *http.Request) {
	var req CreateFundRequest
	if !h.decode(w, r, &req) {
		return
	}

	aum := decimal.Zero
	if req.AUM != "" {
		var ok bool
		if aum, ok = parseDecimalField(w, "aum", req.AUM); !ok {
			return
		}
	}

	f := ledger.Fund{ID: req.ID, Name: req.Name, AUM: aum}
	if err := h.Funds.SaveFund(r.Context(), f); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toFundDTO(&f))
}

// GetFund returns a single fund.
func (h *Handler) GetFund(w http.ResponseWriter, r *http.Request) {
	f, err := h.Funds.GetFund(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if f == nil {
		writeError(w, http.StatusNotFound, "Fund not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toFundDTO(f))
}

// GetFundMetrics returns fund-level performance ratios.
func (h *Handler) GetFundMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := h.Metrics.CalculateFundMetrics(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FundMetricsDTO{
		FundID:             m.FundID,
		CommitmentCount:    m.CommitmentCount,
		TotalCommitted:     m.TotalCommitted.String(),
		TotalCalled:        m.TotalCalled.String(),
		TotalPaid:          m.TotalPaid.String(),
		TotalCurrentValue:  m.TotalCurrentValue.String(),
		TotalDistributions: m.TotalDistributions.String(),
		DPI:                m.DPI.String(),
		TVPI:               m.TVPI.String(),
		NetCashFlow:        m.NetCashFlow.String(),
		AUM:                m.AUM.String(),
	})
}

// ListFundCommitments returns the fund's commitments.
func (h *Handler) ListFundCommitments(w http.ResponseWriter, r *http.Request) {
	commitments, err := h.Store.CommitmentsByFund(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCommitmentDTOs(commitments))
}

// =============================================================================
// DEAL HANDLERS
// =============================================================================

// ListDeals returns all deals.
func (h *Handler) ListDeals(w http.ResponseWriter, r *http.Request) {
	deals, err := h.Deals.ListDeals(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]DealDTO, len(deals))
	for i := range deals {
		dtos[i] = toDealDTO(&deals[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateDeal inserts or updates a deal.
func (h *Handler) CreateDeal(w http.ResponseWriter, r *http.Request) {
	var req CreateDealRequest
	if !h.decode(w, r, &req) {
		return
	}

	raise := decimal.Zero
	if req.RaiseAmount != "" {
		var ok bool
		if raise, ok = parseDecimalField(w, "raise_amount", req.RaiseAmount); !ok {
			return
		}
	}

	d := ledger.Deal{ID: req.ID, Name: req.Name, Stage: req.Stage, RaiseAmount: raise}
	if err := h.Deals.SaveDeal(r.Context(), d); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDealDTO(&d))
}

// GetDeal returns a single deal.
func (h *Handler) GetDeal(w http.ResponseWriter, r *http.Request) {
	d, err := h.Deals.GetDeal(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if d == nil {
		writeError(w, http.StatusNotFound, "Deal not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toDealDTO(d))
}

// ListDealCommitments returns the deal's commitments.
func (h *Handler) ListDealCommitments(w http.ResponseWriter, r *http.Request) {
	commitments, err := h.Store.CommitmentsByDeal(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCommitmentDTOs(commitments))
}

// ListDealEvents returns the deal's closing schedule.
// GET /api/deals/{id}/events
func (h *Handler) ListDealEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.Store.EventsByDeal(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]EventDTO, len(events))
	for i := range events {
		dtos[i] = toEventDTO(&events[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateDealEvent adds a closing-schedule milestone.
// POST /api/deals/{id}/events
func (h *Handler) CreateDealEvent(w http.ResponseWriter, r *http.Request) {
	var req CreateEventRequest
	if !h.decode(w, r, &req) {
		return
	}

	eventDate, ok := parseDateField(w, "event_date", req.EventDate)
	if !ok {
		return
	}

	now := time.Now().UTC()
	e := ledger.ClosingScheduleEvent{
		ID:         uuid.NewString(),
		DealID:     chi.URLParam(r, "id"),
		Name:       req.Name,
		AmountType: ledger.AmountType(req.AmountType),
		EventDate:  eventDate,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if req.TargetAmount != "" {
		target, ok := parseDecimalField(w, "target_amount", req.TargetAmount)
		if !ok {
			return
		}
		e.TargetAmount = &target
	}

	if err := h.Store.PutEvents(r.Context(), []ledger.ClosingScheduleEvent{e}); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventDTO(&e))
}

// =============================================================================
// HELPERS
// =============================================================================

// decode parses and validates the request body. Writes a 400 and returns
// false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

func parseDecimalField(w http.ResponseWriter, field, value string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid decimal for "+field, err)
		return decimal.Zero, false
	}
	return d, true
}

func parseDateField(w http.ResponseWriter, field, value string) (time.Time, bool) {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid "+field+" format (use YYYY-MM-DD)", err)
		return time.Time{}, false
	}
	return t, true
}

func actorID(r *http.Request) string {
	return r.Header.Get("X-Actor-ID")
}

func toCommitmentDTOs(commitments []ledger.Commitment) []CommitmentDTO {
	dtos := make([]CommitmentDTO, len(commitments))
	for i := range commitments {
		dtos[i] = toCommitmentDTO(&commitments[i])
	}
	return dtos
}

// writeDomainError maps the ledger error taxonomy onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case ledger.IsValidation(err):
		writeError(w, http.StatusBadRequest, "Validation failed", err)
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case ledger.IsConflict(err) || ledger.IsRetryable(err):
		writeError(w, http.StatusConflict, "Conflict", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
