package inventory

import (
	"time"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AppendMovementRequest is the input of StockLedger.Append
type AppendMovementRequest struct {
	MovementType     string
	SourceLocationID *uuid.UUID
	DestLocationID   *uuid.UUID
	VariantID        uuid.UUID
	LotID            *uuid.UUID
	ContainerID      *uuid.UUID
	Quantity         decimal.Decimal
	UOM              string
	UnitCost         *decimal.Decimal
	ReasonCode       string
	SourceDocument   string
	Note             string
	OccurredAt       *time.Time
}

// Draft converts the request into a domain draft for a company and actor
func (r AppendMovementRequest) Draft(companyID, actorID uuid.UUID) inventory.MovementDraft {
	d := inventory.MovementDraft{
		CompanyID:        companyID,
		Type:             inventory.MovementType(r.MovementType),
		SourceLocationID: r.SourceLocationID,
		DestLocationID:   r.DestLocationID,
		VariantID:        r.VariantID,
		LotID:            r.LotID,
		ContainerID:      r.ContainerID,
		Quantity:         r.Quantity,
		UOM:              r.UOM,
		UnitCost:         r.UnitCost,
		ReasonCode:       r.ReasonCode,
		SourceDocument:   r.SourceDocument,
		Note:             r.Note,
		ActorID:          actorID,
	}
	if r.OccurredAt != nil {
		d.OccurredAt = *r.OccurredAt
	}
	return d
}

// MovementResponse represents a ledger entry in API responses
type MovementResponse struct {
	ID                 uuid.UUID        `json:"id"`
	CompanyID          uuid.UUID        `json:"company_id"`
	MovementType       string           `json:"movement_type"`
	SourceLocationID   *uuid.UUID       `json:"source_location_id,omitempty"`
	DestLocationID     *uuid.UUID       `json:"dest_location_id,omitempty"`
	VariantID          uuid.UUID        `json:"variant_id"`
	LotID              *uuid.UUID       `json:"lot_id,omitempty"`
	ContainerID        *uuid.UUID       `json:"container_id,omitempty"`
	Quantity           decimal.Decimal  `json:"quantity"`
	UOM                string           `json:"uom"`
	UnitCost           *decimal.Decimal `json:"unit_cost,omitempty"`
	TotalCost          decimal.Decimal  `json:"total_cost"`
	ReasonCode         string           `json:"reason_code,omitempty"`
	SourceDocument     string           `json:"source_document,omitempty"`
	CorrectsMovementID *uuid.UUID       `json:"corrects_movement_id,omitempty"`
	Note               string           `json:"note,omitempty"`
	ActorID            uuid.UUID        `json:"actor_id"`
	OccurredAt         time.Time        `json:"occurred_at"`
	RecordedAt         time.Time        `json:"recorded_at"`
}

// ToMovementResponse converts a domain movement to a response
func ToMovementResponse(m *inventory.StockMovement) MovementResponse {
	return MovementResponse{
		ID:                 m.ID,
		CompanyID:          m.CompanyID,
		MovementType:       string(m.MovementType),
		SourceLocationID:   m.SourceLocationID,
		DestLocationID:     m.DestLocationID,
		VariantID:          m.VariantID,
		LotID:              m.LotID,
		ContainerID:        m.ContainerID,
		Quantity:           m.Quantity,
		UOM:                m.UOM,
		UnitCost:           m.UnitCost,
		TotalCost:          m.TotalCost,
		ReasonCode:         m.ReasonCode,
		SourceDocument:     m.SourceDocument,
		CorrectsMovementID: m.CorrectsMovementID,
		Note:               m.Note,
		ActorID:            m.ActorID,
		OccurredAt:         m.OccurredAt,
		RecordedAt:         m.RecordedAt,
	}
}

// WarningResponse is a non-fatal condition raised while appending
type WarningResponse struct {
	Code       string           `json:"code"`
	Message    string           `json:"message"`
	LocationID uuid.UUID        `json:"location_id"`
	Before     *decimal.Decimal `json:"before,omitempty"`
	After      *decimal.Decimal `json:"after,omitempty"`
	Shortfall  *decimal.Decimal `json:"shortfall,omitempty"`
}

// AppendResult is the outcome of a committed append
type AppendResult struct {
	Movement MovementResponse  `json:"movement"`
	Balances []BalanceResponse `json:"balances"`
	Warnings []WarningResponse `json:"warnings,omitempty"`
}

// HasWarning reports whether a warning with code was raised
func (r *AppendResult) HasWarning(code string) bool {
	for _, w := range r.Warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}

// MovementListFilter represents filter options for ledger listings
type MovementListFilter struct {
	VariantID    *uuid.UUID `form:"variant_id"`
	LocationID   *uuid.UUID `form:"location_id"`
	MovementType string     `form:"movement_type" binding:"omitempty,oneof=inbound outbound transfer adjustment count_adjustment"`
	From         *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To           *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
	Page         int        `form:"page" binding:"omitempty,min=1"`
	PageSize     int        `form:"page_size" binding:"omitempty,min=1,max=500"`
	OrderDir     string     `form:"order_dir" binding:"omitempty,oneof=asc desc"`
}

// BalanceResponse represents one balance scope
type BalanceResponse struct {
	CompanyID    uuid.UUID       `json:"company_id"`
	LocationID   uuid.UUID       `json:"location_id"`
	VariantID    uuid.UUID       `json:"variant_id"`
	LotID        *uuid.UUID      `json:"lot_id,omitempty"`
	ContainerID  *uuid.UUID      `json:"container_id,omitempty"`
	OnHandQty    decimal.Decimal `json:"on_hand_qty"`
	ReservedQty  decimal.Decimal `json:"reserved_qty"`
	AvailableQty decimal.Decimal `json:"available_qty"`
	Version      int             `json:"version"`
	UpdatedAt    *time.Time      `json:"updated_at,omitempty"`
}

// ToBalanceResponse converts a balance row to a response
func ToBalanceResponse(b *inventory.StockBalance) BalanceResponse {
	resp := BalanceResponse{
		CompanyID:    b.CompanyID,
		LocationID:   b.LocationID,
		VariantID:    b.VariantID,
		LotID:        optionalID(b.LotID),
		ContainerID:  optionalID(b.ContainerID),
		OnHandQty:    b.OnHandQty,
		ReservedQty:  b.ReservedQty,
		AvailableQty: b.Available(),
		Version:      b.Version,
	}
	if !b.UpdatedAt.IsZero() {
		t := b.UpdatedAt
		resp.UpdatedAt = &t
	}
	return resp
}

// ToBalanceResponses converts a slice of balance rows
func ToBalanceResponses(rows []inventory.StockBalance) []BalanceResponse {
	out := make([]BalanceResponse, len(rows))
	for i := range rows {
		out[i] = ToBalanceResponse(&rows[i])
	}
	return out
}

// BalanceQuery identifies one balance scope
type BalanceQuery struct {
	LocationID  uuid.UUID  `form:"location_id" binding:"required"`
	VariantID   uuid.UUID  `form:"variant_id" binding:"required"`
	LotID       *uuid.UUID `form:"lot_id"`
	ContainerID *uuid.UUID `form:"container_id"`
}

// DiscrepancyResponse is one scope where stored and replayed on-hand differ
type DiscrepancyResponse struct {
	LocationID  uuid.UUID       `json:"location_id"`
	LotID       *uuid.UUID      `json:"lot_id,omitempty"`
	ContainerID *uuid.UUID      `json:"container_id,omitempty"`
	Stored      decimal.Decimal `json:"stored"`
	Replayed    decimal.Decimal `json:"replayed"`
}

// ReplayReport is the result of a replay check for one variant
type ReplayReport struct {
	VariantID     uuid.UUID             `json:"variant_id"`
	Movements     int                   `json:"movements"`
	Consistent    bool                  `json:"consistent"`
	Discrepancies []DiscrepancyResponse `json:"discrepancies"`
	Repaired      int                   `json:"repaired,omitempty"`
}

// LayerResponse represents a valuation layer
type LayerResponse struct {
	ID            uuid.UUID       `json:"id"`
	VariantID     uuid.UUID       `json:"variant_id"`
	LocationID    uuid.UUID       `json:"location_id"`
	Method        string          `json:"method"`
	Sequence      int64           `json:"sequence"`
	MovementID    uuid.UUID       `json:"movement_id"`
	QtyIn         decimal.Decimal `json:"qty_in"`
	QtyOut        decimal.Decimal `json:"qty_out"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	RemainingQty  decimal.Decimal `json:"remaining_qty"`
	RemainingCost decimal.Decimal `json:"remaining_cost"`
}

// ToLayerResponse converts a layer to a response
func ToLayerResponse(l *inventory.ValuationLayer) LayerResponse {
	return LayerResponse{
		ID:            l.ID,
		VariantID:     l.VariantID,
		LocationID:    l.LocationID,
		Method:        string(l.Method),
		Sequence:      l.Sequence,
		MovementID:    l.MovementID,
		QtyIn:         l.QtyIn,
		QtyOut:        l.QtyOut,
		UnitCost:      l.UnitCost,
		TotalCost:     l.TotalCost,
		RemainingQty:  l.RemainingQty,
		RemainingCost: l.RemainingCost,
	}
}

// LayerQuery narrows a layer listing
type LayerQuery struct {
	VariantID  *uuid.UUID `form:"variant_id"`
	LocationID *uuid.UUID `form:"location_id"`
	Method     string     `form:"method" binding:"omitempty,oneof=fifo wac"`
	OnlyOpen   bool       `form:"only_open"`
}

// ValuationResponse is the inventory value of a company under one method
type ValuationResponse struct {
	CompanyID uuid.UUID                    `json:"company_id"`
	Method    string                       `json:"method"`
	Total     decimal.Decimal              `json:"total"`
	Variants  []inventory.VariantValuation `json:"variants,omitempty"`
}

// ValuationReplayResponse compares stored layers against a ledger replay for one variant
type ValuationReplayResponse struct {
	VariantID       uuid.UUID       `json:"variant_id"`
	Method          string          `json:"method"`
	StoredQty       decimal.Decimal `json:"stored_qty"`
	StoredCost      decimal.Decimal `json:"stored_cost"`
	ReplayedQty     decimal.Decimal `json:"replayed_qty"`
	ReplayedCost    decimal.Decimal `json:"replayed_cost"`
	Consistent      bool            `json:"consistent"`
	MovementsFolded int             `json:"movements_folded"`
}

// CountLineRequest is one submitted count line. ExpectedQty nil means
// "snapshot from the current balance".
type CountLineRequest struct {
	VariantID   uuid.UUID
	LotID       *uuid.UUID
	ExpectedQty *decimal.Decimal
	CountedQty  decimal.Decimal
	ReasonCode  string
	Note        string
}

// CountLineResponse represents a count line
type CountLineResponse struct {
	ID          uuid.UUID       `json:"id"`
	VariantID   uuid.UUID       `json:"variant_id"`
	LotID       *uuid.UUID      `json:"lot_id,omitempty"`
	ExpectedQty decimal.Decimal `json:"expected_qty"`
	CountedQty  decimal.Decimal `json:"counted_qty"`
	Diff        decimal.Decimal `json:"diff"`
	ReasonCode  string          `json:"reason_code,omitempty"`
	Note        string          `json:"note,omitempty"`
	MovementID  *uuid.UUID      `json:"movement_id,omitempty"`
}

// CountSessionResponse represents a count session with its lines
type CountSessionResponse struct {
	ID         uuid.UUID           `json:"id"`
	CompanyID  uuid.UUID           `json:"company_id"`
	LocationID uuid.UUID           `json:"location_id"`
	Status     string              `json:"status"`
	OpenedBy   uuid.UUID           `json:"opened_by"`
	OpenedAt   time.Time           `json:"opened_at"`
	ClosedBy   *uuid.UUID          `json:"closed_by,omitempty"`
	ClosedAt   *time.Time          `json:"closed_at,omitempty"`
	Note       string              `json:"note,omitempty"`
	Lines      []CountLineResponse `json:"lines"`
	Version    int                 `json:"version"`
}

// ToCountSessionResponse converts a session to a response
func ToCountSessionResponse(s *inventory.CountSession) CountSessionResponse {
	lines := make([]CountLineResponse, len(s.Lines))
	for i := range s.Lines {
		l := &s.Lines[i]
		lines[i] = CountLineResponse{
			ID:          l.ID,
			VariantID:   l.VariantID,
			LotID:       l.LotRef(),
			ExpectedQty: l.ExpectedQty,
			CountedQty:  l.CountedQty,
			Diff:        l.Diff,
			ReasonCode:  l.ReasonCode,
			Note:        l.Note,
			MovementID:  l.MovementID,
		}
	}
	return CountSessionResponse{
		ID:         s.ID,
		CompanyID:  s.CompanyID,
		LocationID: s.LocationID,
		Status:     string(s.Status),
		OpenedBy:   s.OpenedBy,
		OpenedAt:   s.OpenedAt,
		ClosedBy:   s.ClosedBy,
		ClosedAt:   s.ClosedAt,
		Note:       s.Note,
		Lines:      lines,
		Version:    s.GetVersion(),
	}
}

// CloseCountResult is the outcome of closing one session
type CloseCountResult struct {
	Session     CountSessionResponse `json:"session"`
	MovementIDs []uuid.UUID          `json:"movement_ids"`
}

// CloseManyOutcome is the per-session result of a bulk close
type CloseManyOutcome struct {
	SessionID   uuid.UUID   `json:"session_id"`
	Closed      bool        `json:"closed"`
	MovementIDs []uuid.UUID `json:"movement_ids,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// CloseManySummary summarises a bulk close
type CloseManySummary struct {
	Closed   int                `json:"closed"`
	Failed   int                `json:"failed"`
	Outcomes []CloseManyOutcome `json:"outcomes"`
}

// CountSessionListFilter represents filter options for session listings
type CountSessionListFilter struct {
	Status   string `form:"status" binding:"omitempty,oneof=draft in_progress closed"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=500"`
}

// UpsertRuleRequest creates or replaces the replenishment rule of a scope
type UpsertRuleRequest struct {
	LocationID          uuid.UUID
	VariantID           uuid.UUID
	MinQty              decimal.Decimal
	MaxQty              decimal.Decimal
	ReorderQty          decimal.Decimal
	PreferredSupplierID *uuid.UUID
	LeadTimeDays        int
	Active              *bool
}

// RuleResponse represents a replenishment rule
type RuleResponse struct {
	ID                  uuid.UUID       `json:"id"`
	LocationID          uuid.UUID       `json:"location_id"`
	VariantID           uuid.UUID       `json:"variant_id"`
	MinQty              decimal.Decimal `json:"min_qty"`
	MaxQty              decimal.Decimal `json:"max_qty"`
	ReorderQty          decimal.Decimal `json:"reorder_qty"`
	PreferredSupplierID *uuid.UUID      `json:"preferred_supplier_id,omitempty"`
	LeadTimeDays        int             `json:"lead_time_days"`
	Active              bool            `json:"active"`
}

// ToRuleResponse converts a rule to a response
func ToRuleResponse(r *inventory.ReplenishmentRule) RuleResponse {
	return RuleResponse{
		ID:                  r.ID,
		LocationID:          r.LocationID,
		VariantID:           r.VariantID,
		MinQty:              r.MinQty,
		MaxQty:              r.MaxQty,
		ReorderQty:          r.ReorderQty,
		PreferredSupplierID: r.PreferredSupplierID,
		LeadTimeDays:        r.LeadTimeDays,
		Active:              r.Active,
	}
}

// AlertResponse represents a stock alert
type AlertResponse struct {
	ID                uuid.UUID       `json:"id"`
	LocationID        uuid.UUID       `json:"location_id"`
	VariantID         uuid.UUID       `json:"variant_id"`
	AlertType         string          `json:"alert_type"`
	ThresholdValue    decimal.Decimal `json:"threshold_value"`
	CurrentValue      decimal.Decimal `json:"current_value"`
	Status            string          `json:"status"`
	TriggeredAt       time.Time       `json:"triggered_at"`
	ResolvedAt        *time.Time      `json:"resolved_at,omitempty"`
	SuggestedReorder  decimal.Decimal `json:"suggested_reorder_qty"`
	PreferredSupplier *uuid.UUID      `json:"preferred_supplier_id,omitempty"`
}

// ToAlertResponse converts an alert to a response
func ToAlertResponse(a *inventory.StockAlert) AlertResponse {
	return AlertResponse{
		ID:               a.ID,
		LocationID:       a.LocationID,
		VariantID:        a.VariantID,
		AlertType:        string(a.AlertType),
		ThresholdValue:   a.ThresholdValue,
		CurrentValue:     a.CurrentValue,
		Status:           string(a.Status),
		TriggeredAt:      a.TriggeredAt,
		ResolvedAt:       a.ResolvedAt,
		SuggestedReorder: decimal.Zero,
	}
}

// AlertListFilter represents filter options for alert listings
type AlertListFilter struct {
	Status   string `form:"status" binding:"omitempty,oneof=open resolved"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=500"`
}

// ScopeEvaluation is the result of evaluating one (location, variant)
type ScopeEvaluation struct {
	LocationID uuid.UUID       `json:"location_id"`
	VariantID  uuid.UUID       `json:"variant_id"`
	Available  decimal.Decimal `json:"available"`
	Decision   string          `json:"decision"`
	AlertID    *uuid.UUID      `json:"alert_id,omitempty"`
}

// SweepSummary summarises a polling pass over all active rules
type SweepSummary struct {
	Evaluated int `json:"evaluated"`
	Opened    int `json:"opened"`
	Resolved  int `json:"resolved"`
	Errors    int `json:"errors"`
}

func optionalID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func derefID(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}

// ReconcileRunResponse represents a recorded reconciliation run
type ReconcileRunResponse struct {
	ID              uuid.UUID  `json:"id"`
	LocationID      uuid.UUID  `json:"location_id"`
	FeedHash        string     `json:"feed_hash"`
	DryRun          bool       `json:"dry_run"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	Processed       int        `json:"processed"`
	Writes          int        `json:"writes"`
	Creates         int        `json:"creates"`
	NegativeGuards  int        `json:"negative_guards"`
	Unchanged       int        `json:"unchanged"`
	Unmapped        int        `json:"unmapped"`
	Errors          int        `json:"errors"`
	MultipackGroups int        `json:"multipack_groups"`
	ArchiveKey      string     `json:"archive_key,omitempty"`
}

// ToReconcileRunResponse converts a run record to a response
func ToReconcileRunResponse(r *inventory.ReconcileRun) ReconcileRunResponse {
	return ReconcileRunResponse{
		ID:              r.ID,
		LocationID:      r.LocationID,
		FeedHash:        r.FeedHash,
		DryRun:          r.DryRun,
		StartedAt:       r.StartedAt,
		FinishedAt:      r.FinishedAt,
		Processed:       r.Processed,
		Writes:          r.Writes,
		Creates:         r.Creates,
		NegativeGuards:  r.NegativeGuards,
		Unchanged:       r.Unchanged,
		Unmapped:        r.Unmapped,
		Errors:          r.Errors,
		MultipackGroups: r.MultipackGroups,
		ArchiveKey:      r.ArchiveKey,
	}
}
