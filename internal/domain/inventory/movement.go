package inventory

import (
	"strings"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MovementType represents the kind of quantity-affecting event in the ledger
type MovementType string

const (
	// MovementTypeInbound brings stock into a location (receipt)
	MovementTypeInbound MovementType = "inbound"
	// MovementTypeOutbound takes stock out of a location (sale, shipment)
	MovementTypeOutbound MovementType = "outbound"
	// MovementTypeTransfer moves stock between two locations
	MovementTypeTransfer MovementType = "transfer"
	// MovementTypeAdjustment is a signed manual correction
	MovementTypeAdjustment MovementType = "adjustment"
	// MovementTypeCountAdjustment is a signed correction emitted by a closed count session
	MovementTypeCountAdjustment MovementType = "count_adjustment"
)

// String returns the string representation of MovementType
func (t MovementType) String() string {
	return string(t)
}

// IsValid returns true if the movement type is valid
func (t MovementType) IsValid() bool {
	switch t {
	case MovementTypeInbound, MovementTypeOutbound, MovementTypeTransfer,
		MovementTypeAdjustment, MovementTypeCountAdjustment:
		return true
	}
	return false
}

// IsSigned returns true if the quantity may carry either sign
func (t MovementType) IsSigned() bool {
	return t == MovementTypeAdjustment || t == MovementTypeCountAdjustment
}

// Reason codes used by the core itself
const (
	ReasonReversal             = "reversal"
	ReasonCountAdjustment      = "count_adjustment"
	ReasonMarketplaceReconcile = "marketplace_reconcile"
	DefaultUOM                 = "unit"
)

// Decimal places stored for movement quantities and unit costs
const (
	QuantityScale = 4
	UnitCostScale = 6
)

// fitsScale reports whether d survives rounding to places unchanged.
// Trailing zeros beyond places are fine.
func fitsScale(d decimal.Decimal, places int32) bool {
	return d.Equal(d.Round(places))
}

// StockMovement is an immutable ledger entry. Corrections are new entries with
// opposite sign referencing the corrected movement.
type StockMovement struct {
	ID                 uuid.UUID        `gorm:"type:uuid;primaryKey"`
	CompanyID          uuid.UUID        `gorm:"type:uuid;not null;index:idx_stock_movement_company_time,priority:1;index:idx_stock_movement_variant,priority:1"`
	MovementType       MovementType     `gorm:"type:varchar(30);not null"`
	SourceLocationID   *uuid.UUID       `gorm:"type:uuid;index"`
	DestLocationID     *uuid.UUID       `gorm:"type:uuid;index"`
	VariantID          uuid.UUID        `gorm:"type:uuid;not null;index:idx_stock_movement_variant,priority:2"`
	LotID              *uuid.UUID       `gorm:"type:uuid"`
	ContainerID        *uuid.UUID       `gorm:"type:uuid"`
	Quantity           decimal.Decimal  `gorm:"type:decimal(18,4);not null"`
	UOM                string           `gorm:"type:varchar(20);not null;default:'unit'"`
	UnitCost           *decimal.Decimal `gorm:"type:decimal(18,6)"`
	TotalCost          decimal.Decimal  `gorm:"type:decimal(18,4);not null;default:0"` // cost the valuation engine booked for this movement
	ReasonCode         string           `gorm:"type:varchar(50)"`
	SourceDocument     string           `gorm:"type:varchar(100);index"`
	CorrectsMovementID *uuid.UUID       `gorm:"type:uuid;uniqueIndex"`
	Note               string           `gorm:"type:text"`
	ActorID            uuid.UUID        `gorm:"type:uuid;not null"`
	OccurredAt         time.Time        `gorm:"not null;index:idx_stock_movement_company_time,priority:2"`
	RecordedAt         time.Time        `gorm:"not null"`
}

// TableName returns the table name for GORM
func (StockMovement) TableName() string {
	return "stock_movements"
}

// MovementDraft carries the caller-supplied fields of a new ledger entry
type MovementDraft struct {
	CompanyID          uuid.UUID
	Type               MovementType
	SourceLocationID   *uuid.UUID
	DestLocationID     *uuid.UUID
	VariantID          uuid.UUID
	LotID              *uuid.UUID
	ContainerID        *uuid.UUID
	Quantity           decimal.Decimal
	UOM                string
	UnitCost           *decimal.Decimal
	ReasonCode         string
	SourceDocument     string
	CorrectsMovementID *uuid.UUID
	Note               string
	ActorID            uuid.UUID
	OccurredAt         time.Time
}

// NewStockMovement validates a draft and builds the ledger entry.
// It never touches any state, so a rejected draft has no partial effect.
func NewStockMovement(d MovementDraft) (*StockMovement, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	occurred := d.OccurredAt
	if occurred.IsZero() {
		occurred = now
	}
	uom := strings.TrimSpace(d.UOM)
	if uom == "" {
		uom = DefaultUOM
	}

	return &StockMovement{
		ID:                 uuid.New(),
		CompanyID:          d.CompanyID,
		MovementType:       d.Type,
		SourceLocationID:   normalizeOptionalID(d.SourceLocationID),
		DestLocationID:     normalizeOptionalID(d.DestLocationID),
		VariantID:          d.VariantID,
		LotID:              normalizeOptionalID(d.LotID),
		ContainerID:        normalizeOptionalID(d.ContainerID),
		Quantity:           d.Quantity,
		UOM:                uom,
		UnitCost:           d.UnitCost,
		TotalCost:          decimal.Zero,
		ReasonCode:         d.ReasonCode,
		SourceDocument:     d.SourceDocument,
		CorrectsMovementID: d.CorrectsMovementID,
		Note:               d.Note,
		ActorID:            d.ActorID,
		OccurredAt:         occurred,
		RecordedAt:         now,
	}, nil
}

// Validate checks the location and quantity invariants of a draft
func (d MovementDraft) Validate() error {
	if d.CompanyID == uuid.Nil {
		return shared.InvalidMovement("company is required")
	}
	if d.VariantID == uuid.Nil {
		return shared.InvalidMovement("variant is required")
	}
	if d.ActorID == uuid.Nil {
		return shared.InvalidMovement("actor is required")
	}
	if !d.Type.IsValid() {
		return shared.InvalidMovement("unknown movement type " + string(d.Type))
	}
	if d.Quantity.IsZero() {
		return shared.InvalidMovement("quantity must be non-zero")
	}
	if !d.Type.IsSigned() && d.Quantity.IsNegative() {
		return shared.InvalidMovement(string(d.Type) + " quantity must be positive")
	}
	if !fitsScale(d.Quantity, QuantityScale) {
		return shared.InvalidMovement("quantity has more than 4 decimal places")
	}
	if d.UnitCost != nil && d.UnitCost.IsNegative() {
		return shared.InvalidMovement("unit cost cannot be negative")
	}
	if d.UnitCost != nil && !fitsScale(*d.UnitCost, UnitCostScale) {
		return shared.InvalidMovement("unit cost has more than 6 decimal places")
	}

	hasSource := normalizeOptionalID(d.SourceLocationID) != nil
	hasDest := normalizeOptionalID(d.DestLocationID) != nil

	switch d.Type {
	case MovementTypeTransfer:
		if !hasSource || !hasDest {
			return shared.InvalidMovement("transfer requires both source and destination")
		}
		if *d.SourceLocationID == *d.DestLocationID {
			return shared.InvalidMovement("transfer source and destination must differ")
		}
	case MovementTypeInbound:
		if !hasDest || hasSource {
			return shared.InvalidMovement("inbound requires a destination and no source")
		}
	case MovementTypeOutbound:
		if !hasSource || hasDest {
			return shared.InvalidMovement("outbound requires a source and no destination")
		}
	case MovementTypeAdjustment, MovementTypeCountAdjustment:
		if !hasSource && !hasDest {
			return shared.InvalidMovement(string(d.Type) + " requires at least one location")
		}
	}
	return nil
}

// LocationIDs returns the distinct locations the movement touches
func (m *StockMovement) LocationIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, 2)
	if m.SourceLocationID != nil {
		ids = append(ids, *m.SourceLocationID)
	}
	if m.DestLocationID != nil {
		ids = append(ids, *m.DestLocationID)
	}
	return ids
}

// BalanceEffect is the signed change a movement makes to one balance scope
type BalanceEffect struct {
	Key   BalanceKey
	Delta decimal.Decimal
}

// Effects returns the balance deltas of the movement: the source side
// receives -quantity and the destination side +quantity.
func (m *StockMovement) Effects() []BalanceEffect {
	effects := make([]BalanceEffect, 0, 2)
	if m.SourceLocationID != nil {
		effects = append(effects, BalanceEffect{Key: m.keyAt(*m.SourceLocationID), Delta: m.Quantity.Neg()})
	}
	if m.DestLocationID != nil {
		effects = append(effects, BalanceEffect{Key: m.keyAt(*m.DestLocationID), Delta: m.Quantity})
	}
	return effects
}

func (m *StockMovement) keyAt(locationID uuid.UUID) BalanceKey {
	return NewBalanceKey(m.CompanyID, locationID, m.VariantID, m.LotID, m.ContainerID)
}

// IsReversal returns true if this entry corrects another movement
func (m *StockMovement) IsReversal() bool {
	return m.CorrectsMovementID != nil
}

// ReversalDraft builds the opposite-sign correction of this movement. The
// correction is a signed adjustment on the same locations so every balance
// effect is exactly negated.
func (m *StockMovement) ReversalDraft(actorID uuid.UUID, reason, note string) (MovementDraft, error) {
	if m.IsReversal() {
		return MovementDraft{}, shared.NewDomainError(shared.CodeInvalidState, "A reversal entry cannot itself be reversed")
	}
	if reason == "" {
		reason = ReasonReversal
	}
	id := m.ID
	var unitCost *decimal.Decimal
	if cost := m.BookedUnitCost(); !cost.IsZero() {
		unitCost = &cost
	}
	return MovementDraft{
		CompanyID:          m.CompanyID,
		Type:               MovementTypeAdjustment,
		SourceLocationID:   m.SourceLocationID,
		DestLocationID:     m.DestLocationID,
		VariantID:          m.VariantID,
		LotID:              m.LotID,
		ContainerID:        m.ContainerID,
		Quantity:           m.Quantity.Neg(),
		UOM:                m.UOM,
		UnitCost:           unitCost,
		ReasonCode:         reason,
		SourceDocument:     m.SourceDocument,
		CorrectsMovementID: &id,
		Note:               note,
		ActorID:            actorID,
	}, nil
}

// BookedUnitCost returns the per-unit cost the movement was valued at
func (m *StockMovement) BookedUnitCost() decimal.Decimal {
	if m.UnitCost != nil {
		return *m.UnitCost
	}
	if m.Quantity.IsZero() || m.TotalCost.IsZero() {
		return decimal.Zero
	}
	return m.TotalCost.Div(m.Quantity.Abs()).Round(6)
}

func normalizeOptionalID(id *uuid.UUID) *uuid.UUID {
	if id == nil || *id == uuid.Nil {
		return nil
	}
	return id
}
