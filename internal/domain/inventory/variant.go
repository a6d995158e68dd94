package inventory

import (
	"strings"

	"github.com/erp/stockledger/internal/domain/reconciliation"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
)

// CostMethod is the inventory costing method of a cost layer
type CostMethod string

const (
	CostMethodFIFO CostMethod = "fifo"
	CostMethodWAC  CostMethod = "wac"
)

// IsValid returns true if the method is supported
func (m CostMethod) IsValid() bool {
	return m == CostMethodFIFO || m == CostMethodWAC
}

// String returns the string representation of CostMethod
func (m CostMethod) String() string {
	return string(m)
}

// Variant is a sellable unit identified by SKU and optional EAN.
type Variant struct {
	shared.BaseEntity
	CompanyID     uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_variant_sku,priority:1;index:idx_variant_ean,priority:1"`
	ProductID     uuid.UUID  `gorm:"type:uuid;not null;index"`
	SKU           string     `gorm:"type:varchar(100);not null;uniqueIndex:idx_variant_sku,priority:2"`
	EAN           string     `gorm:"type:varchar(50);index:idx_variant_ean,priority:2"`
	Name          string     `gorm:"type:varchar(300);not null"`
	MarketplaceID string     `gorm:"type:varchar(100);index"`
	CostMethod    CostMethod `gorm:"type:varchar(10)"`
	Active        bool       `gorm:"not null;default:true"`
}

// TableName returns the table name for GORM
func (Variant) TableName() string {
	return "product_variants"
}

// NewVariant creates a new variant
func NewVariant(companyID, productID uuid.UUID, sku, name string) (*Variant, error) {
	if companyID == uuid.Nil || productID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Company and product IDs are required")
	}
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "SKU is required")
	}
	return &Variant{
		BaseEntity: shared.NewBaseEntity(),
		CompanyID:  companyID,
		ProductID:  productID,
		SKU:        sku,
		Name:       strings.TrimSpace(name),
		Active:     true,
	}, nil
}

// EffectiveCostMethod returns the variant override or the company default
func (v *Variant) EffectiveCostMethod(fallback CostMethod) CostMethod {
	if v.CostMethod.IsValid() {
		return v.CostMethod
	}
	return fallback
}

// PackSizeHint derives the pack multiplier from the display name.
func (v *Variant) PackSizeHint() (int, bool) {
	return reconciliation.ParsePackSize(v.Name)
}
