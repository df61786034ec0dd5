/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  All monetary fields travel as decimal strings ("250000.00"), never floats.
  Parsing happens once, at the handler boundary.

VALIDATION:
  Request types carry go-playground/validator struct tags. Handlers run
  the validator before touching domain logic; decimal parsing and range
  checks beyond tag expressiveness stay in the domain layer.

SEE ALSO:
  - handlers.go: Uses these types
  - ledger/types.go: Domain model these map from
*/
package api

import (
	"time"

	"github.com/meridian/capital-ledger/ledger"
)

// =============================================================================
// COMMITMENT TYPES
// =============================================================================

// CommitmentDTO represents a commitment in API responses.
type CommitmentDTO struct {
	ID              string `json:"id"`
	FundID          string `json:"fund_id"`
	DealID          string `json:"deal_id"`
	Amount          string `json:"amount"`
	AmountType      string `json:"amount_type"`
	SecurityType    string `json:"security_type,omitempty"`
	Status          string `json:"status"`
	PortfolioWeight string `json:"portfolio_weight"`
	MarketValue     string `json:"market_value"`
	TotalReturned   string `json:"total_returned"`
	MOIC            string `json:"moic"`
	Date            string `json:"date"`
	Notes           string `json:"notes,omitempty"`
	Version         int    `json:"version"`
	CreatedAt       string `json:"created_at,omitempty"`
	UpdatedAt       string `json:"updated_at,omitempty"`
}

// CreateCommitmentRequest is the request to create a commitment.
// Amount is a percentage of the deal raise or a dollar figure, per AmountType.
type CreateCommitmentRequest struct {
	FundID       string `json:"fund_id" validate:"required"`
	DealID       string `json:"deal_id" validate:"required"`
	Amount       string `json:"amount" validate:"required"`
	AmountType   string `json:"amount_type" validate:"required,oneof=dollar percentage"`
	SecurityType string `json:"security_type,omitempty"`
	Date         string `json:"date" validate:"required"`
	Notes        string `json:"notes,omitempty"`
}

// UpdateAmountRequest is the request to rescale a commitment.
type UpdateAmountRequest struct {
	Amount string `json:"amount" validate:"required"`
}

// SyncResultDTO reports what a rescale touched.
type SyncResultDTO struct {
	CommitmentID    string   `json:"commitment_id"`
	OldAmount       string   `json:"old_amount"`
	NewAmount       string   `json:"new_amount"`
	Ratio           string   `json:"ratio"`
	UpdatedCallIDs  []string `json:"updated_call_ids"`
	UpdatedEventIDs []string `json:"updated_event_ids"`
}

// UpdateAmountResponse wraps the rescaled commitment with the sync report.
type UpdateAmountResponse struct {
	Commitment CommitmentDTO `json:"commitment"`
	Sync       SyncResultDTO `json:"sync"`
}

// =============================================================================
// CAPITAL CALL TYPES
// =============================================================================

// CallDTO represents a capital call in API responses.
type CallDTO struct {
	ID           string  `json:"id"`
	AllocationID string  `json:"allocation_id"`
	CallAmount   string  `json:"call_amount"`
	AmountType   string  `json:"amount_type"`
	CallPct      string  `json:"call_pct"`
	CallDate     string  `json:"call_date"`
	DueDate      string  `json:"due_date"`
	PaidAmount   string  `json:"paid_amount"`
	PaidDate     *string `json:"paid_date,omitempty"`
	Status       string  `json:"status"`
	Activated    bool    `json:"activated"`
	Overridden   bool    `json:"overridden"`
	Version      int     `json:"version"`
}

// CallRequestDTO is one requested draw-down in a schedule batch.
type CallRequestDTO struct {
	Amount     string `json:"amount" validate:"required"`
	AmountType string `json:"amount_type" validate:"required,oneof=dollar percentage"`
	CallDate   string `json:"call_date" validate:"required"`
	DueDate    string `json:"due_date" validate:"required"`
}

// ScheduleCallsRequest is the request to create a batch of calls.
// All-or-nothing: one invalid entry rejects the whole batch.
type ScheduleCallsRequest struct {
	Calls []CallRequestDTO `json:"calls" validate:"required,min=1,dive"`
}

// OverrideStatusRequest is the administrative status override.
type OverrideStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=scheduled called partial paid defaulted"`
}

// =============================================================================
// PAYMENT TYPES
// =============================================================================

// PaymentDTO represents a recorded payment.
type PaymentDTO struct {
	ID            string `json:"id"`
	CapitalCallID string `json:"capital_call_id"`
	Amount        string `json:"amount"`
	Date          string `json:"date"`
	Type          string `json:"type"`
	Notes         string `json:"notes,omitempty"`
	CreatedBy     string `json:"created_by,omitempty"`
	Flagged       bool   `json:"flagged"`
	CreatedAt     string `json:"created_at,omitempty"`
}

// ApplyPaymentRequest is the request to record a payment against a call.
type ApplyPaymentRequest struct {
	Amount string `json:"amount" validate:"required"`
	Date   string `json:"date" validate:"required"`
	Type   string `json:"type,omitempty" validate:"omitempty,oneof=wire check ach other"`
	Notes  string `json:"notes,omitempty"`
}

// ApplyPaymentResponse wraps the payment with the call it updated.
type ApplyPaymentResponse struct {
	Payment PaymentDTO `json:"payment"`
	Call    CallDTO    `json:"call"`
}

// =============================================================================
// METRICS TYPES
// =============================================================================

// AllocationMetricsDTO is the per-commitment statistics block.
type AllocationMetricsDTO struct {
	CommitmentID  string `json:"commitment_id"`
	TotalInvested string `json:"total_invested"`
	CurrentValue  string `json:"current_value"`
	Distributions string `json:"distributions"`
	TotalCalled   string `json:"total_called"`
	TotalPaid     string `json:"total_paid"`
	MOIC          string `json:"moic"`
	Unrealized    string `json:"unrealized"`
}

// FundMetricsDTO aggregates across all of a fund's commitments.
type FundMetricsDTO struct {
	FundID             string `json:"fund_id"`
	CommitmentCount    int    `json:"commitment_count"`
	TotalCommitted     string `json:"total_committed"`
	TotalCalled        string `json:"total_called"`
	TotalPaid          string `json:"total_paid"`
	TotalCurrentValue  string `json:"total_current_value"`
	TotalDistributions string `json:"total_distributions"`
	DPI                string `json:"dpi"`
	TVPI               string `json:"tvpi"`
	NetCashFlow        string `json:"net_cash_flow"`
	AUM                string `json:"aum"`
}

// =============================================================================
// BATCH TYPES
// =============================================================================

// BatchRequest asks for a set of commitments with their deals and funds.
type BatchRequest struct {
	AllocationIDs []string `json:"allocation_ids" validate:"required,min=1"`
}

// BatchResponse is the hydrated snapshot. Partial is set when the deadline
// cut the fan-out short.
type BatchResponse struct {
	Allocations map[string]CommitmentDTO `json:"allocations"`
	Deals       map[string]DealDTO       `json:"deals"`
	Funds       map[string]FundDTO       `json:"funds"`
	Partial     bool                     `json:"partial"`
}

// CalendarEntryDTO is one due call with the names of the deal and fund behind
// its allocation.
type CalendarEntryDTO struct {
	Call     CallDTO `json:"call"`
	FundID   string  `json:"fund_id,omitempty"`
	FundName string  `json:"fund_name,omitempty"`
	DealID   string  `json:"deal_id,omitempty"`
	DealName string  `json:"deal_name,omitempty"`
}

// CalendarResponse lists the calls due in a window, hydrated through the batch
// layer. Partial mirrors the batch result.
type CalendarResponse struct {
	Entries []CalendarEntryDTO `json:"entries"`
	Partial bool               `json:"partial"`
}

// =============================================================================
// FUND / DEAL TYPES
// =============================================================================

// FundDTO represents a fund.
type FundDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	AUM  string `json:"aum"`
}

// CreateFundRequest is the request to create or update a fund.
type CreateFundRequest struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name" validate:"required"`
	AUM  string `json:"aum,omitempty"`
}

// DealDTO represents a deal.
type DealDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Stage       string `json:"stage,omitempty"`
	RaiseAmount string `json:"raise_amount"`
}

// CreateDealRequest is the request to create or update a deal.
type CreateDealRequest struct {
	ID          string `json:"id" validate:"required"`
	Name        string `json:"name" validate:"required"`
	Stage       string `json:"stage,omitempty"`
	RaiseAmount string `json:"raise_amount,omitempty"`
}

// =============================================================================
// CLOSING SCHEDULE TYPES
// =============================================================================

// EventDTO represents a closing-schedule milestone.
type EventDTO struct {
	ID           string  `json:"id"`
	DealID       string  `json:"deal_id"`
	Name         string  `json:"name"`
	AmountType   string  `json:"amount_type"`
	TargetAmount *string `json:"target_amount,omitempty"`
	ActualAmount *string `json:"actual_amount,omitempty"`
	EventDate    string  `json:"event_date"`
	Version      int     `json:"version"`
}

// CreateEventRequest is the request to add a closing-schedule milestone.
type CreateEventRequest struct {
	Name         string `json:"name" validate:"required"`
	AmountType   string `json:"amount_type" validate:"required,oneof=dollar percentage"`
	TargetAmount string `json:"target_amount,omitempty"`
	EventDate    string `json:"event_date" validate:"required"`
}

// =============================================================================
// AUDIT / MISC TYPES
// =============================================================================

// AuditEventDTO is one timeline entry.
type AuditEventDTO struct {
	ID           string         `json:"id"`
	At           string         `json:"at"`
	ActorID      string         `json:"actor_id,omitempty"`
	Action       string         `json:"action"`
	CommitmentID string         `json:"commitment_id,omitempty"`
	FundID       string         `json:"fund_id,omitempty"`
	DealID       string         `json:"deal_id,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
}

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// DOMAIN -> DTO MAPPERS
// =============================================================================

func toCommitmentDTO(c *ledger.Commitment) CommitmentDTO {
	return CommitmentDTO{
		ID:              c.ID,
		FundID:          c.FundID,
		DealID:          c.DealID,
		Amount:          c.Amount.String(),
		AmountType:      string(c.AmountType),
		SecurityType:    c.SecurityType,
		Status:          string(c.Status),
		PortfolioWeight: c.PortfolioWeight.String(),
		MarketValue:     c.MarketValue.String(),
		TotalReturned:   c.TotalReturned.String(),
		MOIC:            c.MOIC.String(),
		Date:            c.Date.Format("2006-01-02"),
		Notes:           c.Notes,
		Version:         c.Version,
		CreatedAt:       c.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       c.UpdatedAt.Format(time.RFC3339),
	}
}

func toCallDTO(c *ledger.CapitalCall) CallDTO {
	dto := CallDTO{
		ID:           c.ID,
		AllocationID: c.AllocationID,
		CallAmount:   c.CallAmount.String(),
		AmountType:   string(c.AmountType),
		CallPct:      c.CallPct.String(),
		CallDate:     c.CallDate.Format("2006-01-02"),
		DueDate:      c.DueDate.Format("2006-01-02"),
		PaidAmount:   c.PaidAmount.String(),
		Status:       string(c.Status),
		Activated:    c.Activated,
		Overridden:   c.Overridden,
		Version:      c.Version,
	}
	if c.PaidDate != nil {
		s := c.PaidDate.Format("2006-01-02")
		dto.PaidDate = &s
	}
	return dto
}

func toCallDTOs(calls []ledger.CapitalCall) []CallDTO {
	dtos := make([]CallDTO, len(calls))
	for i := range calls {
		dtos[i] = toCallDTO(&calls[i])
	}
	return dtos
}

func toPaymentDTO(p *ledger.Payment) PaymentDTO {
	return PaymentDTO{
		ID:            p.ID,
		CapitalCallID: p.CapitalCallID,
		Amount:        p.Amount.String(),
		Date:          p.Date.Format("2006-01-02"),
		Type:          string(p.Type),
		Notes:         p.Notes,
		CreatedBy:     p.CreatedBy,
		Flagged:       p.Flagged,
		CreatedAt:     p.CreatedAt.Format(time.RFC3339),
	}
}

func toSyncResultDTO(r *ledger.SyncResult) SyncResultDTO {
	dto := SyncResultDTO{
		CommitmentID:    r.CommitmentID,
		OldAmount:       r.OldAmount.String(),
		NewAmount:       r.NewAmount.String(),
		Ratio:           r.Ratio.String(),
		UpdatedCallIDs:  r.UpdatedCallIDs,
		UpdatedEventIDs: r.UpdatedEventIDs,
	}
	if dto.UpdatedCallIDs == nil {
		dto.UpdatedCallIDs = []string{}
	}
	if dto.UpdatedEventIDs == nil {
		dto.UpdatedEventIDs = []string{}
	}
	return dto
}

func toFundDTO(f *ledger.Fund) FundDTO {
	return FundDTO{ID: f.ID, Name: f.Name, AUM: f.AUM.String()}
}

func toDealDTO(d *ledger.Deal) DealDTO {
	return DealDTO{ID: d.ID, Name: d.Name, Stage: d.Stage, RaiseAmount: d.RaiseAmount.String()}
}

func toEventDTO(e *ledger.ClosingScheduleEvent) EventDTO {
	dto := EventDTO{
		ID:         e.ID,
		DealID:     e.DealID,
		Name:       e.Name,
		AmountType: string(e.AmountType),
		EventDate:  e.EventDate.Format("2006-01-02"),
		Version:    e.Version,
	}
	if e.TargetAmount != nil {
		s := e.TargetAmount.String()
		dto.TargetAmount = &s
	}
	if e.ActualAmount != nil {
		s := e.ActualAmount.String()
		dto.ActualAmount = &s
	}
	return dto
}

func toAuditEventDTO(e *ledger.AuditEvent) AuditEventDTO {
	return AuditEventDTO{
		ID:           e.ID,
		At:           e.At.Format(time.RFC3339),
		ActorID:      e.ActorID,
		Action:       string(e.Action),
		CommitmentID: e.CommitmentID,
		FundID:       e.FundID,
		DealID:       e.DealID,
		Payload:      e.Payload,
	}
}
