package handler

import (
	"fmt"

	inventoryapp "github.com/erp/stockledger/internal/application/inventory"
	"github.com/erp/stockledger/internal/domain/reconciliation"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AppendMovementRequest is the body of POST /inventory/movements
type AppendMovementRequest struct {
	MovementType     string           `json:"movement_type" binding:"required,oneof=inbound outbound transfer adjustment count_adjustment"`
	SourceLocationID string           `json:"source_location_id" binding:"omitempty,uuid"`
	DestLocationID   string           `json:"dest_location_id" binding:"omitempty,uuid"`
	VariantID        string           `json:"variant_id" binding:"required,uuid"`
	LotID            string           `json:"lot_id" binding:"omitempty,uuid"`
	ContainerID      string           `json:"container_id" binding:"omitempty,uuid"`
	Quantity         decimal.Decimal  `json:"quantity" binding:"decimal_nonzero"`
	UOM              string           `json:"uom" binding:"omitempty,max=20"`
	UnitCost         *decimal.Decimal `json:"unit_cost" binding:"omitempty,decimal_gte0"`
	ReasonCode       string           `json:"reason_code" binding:"omitempty,max=50"`
	SourceDocument   string           `json:"source_document" binding:"omitempty,max=100"`
	Note             string           `json:"note" binding:"omitempty,max=500"`
	OccurredAt       string           `json:"occurred_at"`
}

func (r AppendMovementRequest) toApp() (inventoryapp.AppendMovementRequest, error) {
	out := inventoryapp.AppendMovementRequest{
		MovementType:   r.MovementType,
		VariantID:      uuid.MustParse(r.VariantID),
		Quantity:       r.Quantity,
		UOM:            r.UOM,
		UnitCost:       r.UnitCost,
		ReasonCode:     r.ReasonCode,
		SourceDocument: r.SourceDocument,
		Note:           r.Note,
	}
	var err error
	if out.SourceLocationID, err = parseOptionalUUID(r.SourceLocationID); err != nil {
		return out, fmt.Errorf("source_location_id: %w", err)
	}
	if out.DestLocationID, err = parseOptionalUUID(r.DestLocationID); err != nil {
		return out, fmt.Errorf("dest_location_id: %w", err)
	}
	if out.LotID, err = parseOptionalUUID(r.LotID); err != nil {
		return out, fmt.Errorf("lot_id: %w", err)
	}
	if out.ContainerID, err = parseOptionalUUID(r.ContainerID); err != nil {
		return out, fmt.Errorf("container_id: %w", err)
	}
	if out.OccurredAt, err = parseOptionalTime(r.OccurredAt); err != nil {
		return out, fmt.Errorf("occurred_at: %w", err)
	}
	return out, nil
}

// ReverseMovementRequest is the body of POST /inventory/movements/:id/reverse
type ReverseMovementRequest struct {
	ReasonCode string `json:"reason_code" binding:"required,max=50"`
	Note       string `json:"note" binding:"omitempty,max=500"`
}

// MovementListQuery holds movement listing query parameters
type MovementListQuery struct {
	VariantID    string `form:"variant_id" binding:"omitempty,uuid"`
	LocationID   string `form:"location_id" binding:"omitempty,uuid"`
	MovementType string `form:"movement_type" binding:"omitempty,oneof=inbound outbound transfer adjustment count_adjustment"`
	From         string `form:"from"`
	To           string `form:"to"`
	OrderDir     string `form:"order_dir" binding:"omitempty,oneof=asc desc"`
	PageRequest
}

func (q MovementListQuery) toFilter() (inventoryapp.MovementListFilter, error) {
	q.Normalize()
	f := inventoryapp.MovementListFilter{
		MovementType: q.MovementType,
		OrderDir:     q.OrderDir,
		Page:         q.Page,
		PageSize:     q.PageSize,
	}
	var err error
	if f.VariantID, err = parseOptionalUUID(q.VariantID); err != nil {
		return f, err
	}
	if f.LocationID, err = parseOptionalUUID(q.LocationID); err != nil {
		return f, err
	}
	if f.From, err = parseOptionalTime(q.From); err != nil {
		return f, fmt.Errorf("from: %w", err)
	}
	if f.To, err = parseOptionalTime(q.To); err != nil {
		return f, fmt.Errorf("to: %w", err)
	}
	return f, nil
}

// BalanceScopeQuery identifies a balance scope
type BalanceScopeQuery struct {
	LocationID  string `form:"location_id" binding:"omitempty,uuid"`
	VariantID   string `form:"variant_id" binding:"omitempty,uuid"`
	LotID       string `form:"lot_id" binding:"omitempty,uuid"`
	ContainerID string `form:"container_id" binding:"omitempty,uuid"`
	PageRequest
}

// LayerListQuery holds layer listing query parameters
type LayerListQuery struct {
	VariantID  string `form:"variant_id" binding:"omitempty,uuid"`
	LocationID string `form:"location_id" binding:"omitempty,uuid"`
	Method     string `form:"method" binding:"omitempty,oneof=fifo wac"`
	OnlyOpen   bool   `form:"only_open"`
}

// OpenCountSessionRequest is the body of POST /inventory/count-sessions
type OpenCountSessionRequest struct {
	LocationID string `json:"location_id" binding:"required,uuid"`
	Note       string `json:"note" binding:"omitempty,max=500"`
}

// CountLineInput is one submitted count line
type CountLineInput struct {
	VariantID   string           `json:"variant_id" binding:"required,uuid"`
	LotID       string           `json:"lot_id" binding:"omitempty,uuid"`
	ExpectedQty *decimal.Decimal `json:"expected_qty" binding:"omitempty,decimal_gte0"`
	CountedQty  decimal.Decimal  `json:"counted_qty" binding:"decimal_gte0"`
	ReasonCode  string           `json:"reason_code" binding:"omitempty,max=50"`
	Note        string           `json:"note" binding:"omitempty,max=500"`
}

// RecordCountLinesRequest is the body of PUT /inventory/count-sessions/:id/lines
type RecordCountLinesRequest struct {
	Lines []CountLineInput `json:"lines" binding:"required,min=1,max=1000,dive"`
}

func (r RecordCountLinesRequest) toApp() ([]inventoryapp.CountLineRequest, error) {
	out := make([]inventoryapp.CountLineRequest, 0, len(r.Lines))
	for i, l := range r.Lines {
		lotID, err := parseOptionalUUID(l.LotID)
		if err != nil {
			return nil, fmt.Errorf("lines[%d].lot_id: %w", i, err)
		}
		out = append(out, inventoryapp.CountLineRequest{
			VariantID:   uuid.MustParse(l.VariantID),
			LotID:       lotID,
			ExpectedQty: l.ExpectedQty,
			CountedQty:  l.CountedQty,
			ReasonCode:  l.ReasonCode,
			Note:        l.Note,
		})
	}
	return out, nil
}

// CloseCountSessionsRequest is the body of POST /inventory/count-sessions/close
type CloseCountSessionsRequest struct {
	SessionIDs []string `json:"session_ids" binding:"required,min=1,max=100,dive,uuid"`
}

// CountSessionListQuery holds count session listing query parameters
type CountSessionListQuery struct {
	Status string `form:"status" binding:"omitempty,oneof=draft in_progress closed"`
	PageRequest
}

// UpsertRuleRequest is the body of PUT /inventory/replenishment-rules
type UpsertRuleRequest struct {
	LocationID          string          `json:"location_id" binding:"required,uuid"`
	VariantID           string          `json:"variant_id" binding:"required,uuid"`
	MinQty              decimal.Decimal `json:"min_qty" binding:"decimal_gte0"`
	MaxQty              decimal.Decimal `json:"max_qty" binding:"decimal_gte0"`
	ReorderQty          decimal.Decimal `json:"reorder_qty" binding:"decimal_gte0"`
	PreferredSupplierID string          `json:"preferred_supplier_id" binding:"omitempty,uuid"`
	LeadTimeDays        int             `json:"lead_time_days" binding:"gte=0,max=365"`
	Active              *bool           `json:"active"`
}

func (r UpsertRuleRequest) toApp() (inventoryapp.UpsertRuleRequest, error) {
	supplier, err := parseOptionalUUID(r.PreferredSupplierID)
	if err != nil {
		return inventoryapp.UpsertRuleRequest{}, fmt.Errorf("preferred_supplier_id: %w", err)
	}
	return inventoryapp.UpsertRuleRequest{
		LocationID:          uuid.MustParse(r.LocationID),
		VariantID:           uuid.MustParse(r.VariantID),
		MinQty:              r.MinQty,
		MaxQty:              r.MaxQty,
		ReorderQty:          r.ReorderQty,
		PreferredSupplierID: supplier,
		LeadTimeDays:        r.LeadTimeDays,
		Active:              r.Active,
	}, nil
}

// EvaluateScopeRequest is the body of POST /inventory/alerts/evaluate
type EvaluateScopeRequest struct {
	LocationID string `json:"location_id" binding:"required,uuid"`
	VariantID  string `json:"variant_id" binding:"required,uuid"`
}

// AlertListQuery holds alert listing query parameters
type AlertListQuery struct {
	Status string `form:"status" binding:"omitempty,oneof=open resolved"`
	PageRequest
}

// ReconcileRequest is the body of POST /inventory/reconcile. Without a feed
// the configured marketplace is fetched.
type ReconcileRequest struct {
	LocationID string               `json:"location_id" binding:"omitempty,uuid"`
	DryRun     bool                 `json:"dry_run"`
	Feed       *reconciliation.Feed `json:"feed"`
}

func (r ReconcileRequest) toApp() (inventoryapp.ReconcileRequest, error) {
	locationID, err := parseOptionalUUID(r.LocationID)
	if err != nil {
		return inventoryapp.ReconcileRequest{}, fmt.Errorf("location_id: %w", err)
	}
	return inventoryapp.ReconcileRequest{
		LocationID: locationID,
		DryRun:     r.DryRun,
		Feed:       r.Feed,
	}, nil
}

// ReportURLResponse is a time-limited download link for an archived report
type ReportURLResponse struct {
	Key       string `json:"key"`
	URL       string `json:"url"`
	ExpiresAt string `json:"expires_at"`
}
