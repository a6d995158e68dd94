package inventory

import (
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReplenishmentRule holds min/max/reorder thresholds for one (location, variant).
// Rules are consulted, never mutated, by alert evaluation.
type ReplenishmentRule struct {
	ID                  uuid.UUID       `gorm:"type:uuid;primaryKey"`
	CompanyID           uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_replenishment_rule_scope,priority:1"`
	LocationID          uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_replenishment_rule_scope,priority:2"`
	VariantID           uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_replenishment_rule_scope,priority:3"`
	MinQty              decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	MaxQty              decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	ReorderQty          decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	PreferredSupplierID *uuid.UUID      `gorm:"type:uuid"`
	LeadTimeDays        int             `gorm:"not null;default:0"`
	Active              bool            `gorm:"not null;default:true"`
	CreatedAt           time.Time       `gorm:"not null"`
	UpdatedAt           time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ReplenishmentRule) TableName() string {
	return "replenishment_rules"
}

// NewReplenishmentRule creates a rule after checking its thresholds
func NewReplenishmentRule(companyID, locationID, variantID uuid.UUID, minQty, maxQty, reorderQty decimal.Decimal) (*ReplenishmentRule, error) {
	now := time.Now()
	r := &ReplenishmentRule{
		ID:         uuid.New(),
		CompanyID:  companyID,
		LocationID: locationID,
		VariantID:  variantID,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := r.SetThresholds(minQty, maxQty, reorderQty); err != nil {
		return nil, err
	}
	if companyID == uuid.Nil || locationID == uuid.Nil || variantID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Company, location and variant are required")
	}
	return r, nil
}

// SetThresholds replaces min/max/reorder. A zero max means "no maximum".
func (r *ReplenishmentRule) SetThresholds(minQty, maxQty, reorderQty decimal.Decimal) error {
	if minQty.IsNegative() || maxQty.IsNegative() || reorderQty.IsNegative() {
		return shared.NewDomainError(shared.CodeInvalidInput, "Thresholds cannot be negative")
	}
	if maxQty.IsPositive() && maxQty.LessThan(minQty) {
		return shared.NewDomainError(shared.CodeInvalidInput, "Maximum quantity cannot be less than minimum quantity")
	}
	r.MinQty = minQty
	r.MaxQty = maxQty
	r.ReorderQty = reorderQty
	r.UpdatedAt = time.Now()
	return nil
}

// IsLowStock reports whether available is under a positive minimum
func (r *ReplenishmentRule) IsLowStock(available decimal.Decimal) bool {
	return r.Active && r.MinQty.IsPositive() && available.LessThan(r.MinQty)
}

// SuggestedReorderQty returns how much to order to get back to max, never
// less than the reorder quantity. Zero when stock is not low.
func (r *ReplenishmentRule) SuggestedReorderQty(available decimal.Decimal) decimal.Decimal {
	if !r.IsLowStock(available) {
		return decimal.Zero
	}
	qty := decimal.Zero
	if r.MaxQty.IsPositive() {
		qty = r.MaxQty.Sub(available)
	}
	if qty.LessThan(r.ReorderQty) {
		qty = r.ReorderQty
	}
	if qty.IsNegative() {
		return decimal.Zero
	}
	return qty
}

// AlertStatus is the state of a stock alert
type AlertStatus string

const (
	AlertStatusOpen     AlertStatus = "open"
	AlertStatusResolved AlertStatus = "resolved"
)

// AlertType names the condition an alert tracks
type AlertType string

const AlertTypeLowStock AlertType = "low_stock"

// StockAlert is a derived signal, recomputable from balances and rules.
// At most one open alert exists per (company, location, variant, type).
type StockAlert struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey"`
	CompanyID      uuid.UUID       `gorm:"type:uuid;not null;index:idx_stock_alert_open,unique,where:status = 'open',priority:1"`
	LocationID     uuid.UUID       `gorm:"type:uuid;not null;index:idx_stock_alert_open,unique,where:status = 'open',priority:2"`
	VariantID      uuid.UUID       `gorm:"type:uuid;not null;index:idx_stock_alert_open,unique,where:status = 'open',priority:3"`
	AlertType      AlertType       `gorm:"type:varchar(30);not null;index:idx_stock_alert_open,unique,where:status = 'open',priority:4"`
	ThresholdValue decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	CurrentValue   decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Status         AlertStatus     `gorm:"type:varchar(20);not null;index"`
	TriggeredAt    time.Time       `gorm:"not null"`
	ResolvedAt     *time.Time
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (StockAlert) TableName() string {
	return "stock_alerts"
}

// NewLowStockAlert opens a low stock alert for a rule's scope
func NewLowStockAlert(rule *ReplenishmentRule, available decimal.Decimal) *StockAlert {
	now := time.Now()
	return &StockAlert{
		ID:             uuid.New(),
		CompanyID:      rule.CompanyID,
		LocationID:     rule.LocationID,
		VariantID:      rule.VariantID,
		AlertType:      AlertTypeLowStock,
		ThresholdValue: rule.MinQty,
		CurrentValue:   available,
		Status:         AlertStatusOpen,
		TriggeredAt:    now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Resolve closes the alert with the value that cleared it
func (a *StockAlert) Resolve(current decimal.Decimal) {
	now := time.Now()
	a.Status = AlertStatusResolved
	a.CurrentValue = current
	a.ResolvedAt = &now
	a.UpdatedAt = now
}

// IsOpen returns true if the alert is still open
func (a *StockAlert) IsOpen() bool {
	return a.Status == AlertStatusOpen
}

// AlertDecision is the outcome of evaluating a scope
type AlertDecision string

const (
	AlertDecisionOpenLowStock    AlertDecision = "open_low_stock"
	AlertDecisionResolveLowStock AlertDecision = "resolve_low_stock"
	AlertDecisionNoChange        AlertDecision = "no_change"
)

// EvaluateAlert decides the alert transition for a scope from current state only.
// It opens when available < min with no open alert and resolves an open alert
// once available >= min. A missing or inactive rule resolves any open alert.
func EvaluateAlert(available decimal.Decimal, rule *ReplenishmentRule, open *StockAlert) AlertDecision {
	hasOpen := open != nil && open.IsOpen()
	if rule == nil || !rule.Active {
		if hasOpen {
			return AlertDecisionResolveLowStock
		}
		return AlertDecisionNoChange
	}
	low := rule.IsLowStock(available)
	switch {
	case low && !hasOpen:
		return AlertDecisionOpenLowStock
	case !low && hasOpen:
		return AlertDecisionResolveLowStock
	}
	return AlertDecisionNoChange
}
