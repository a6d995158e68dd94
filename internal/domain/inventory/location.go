package inventory

import (
	"strings"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
)

// LocationUsage distinguishes physical stock locations from virtual ones
type LocationUsage string

const (
	LocationUsageInternal  LocationUsage = "internal"
	LocationUsageSupplier  LocationUsage = "supplier"
	LocationUsageCustomer  LocationUsage = "customer"
	LocationUsageScrap     LocationUsage = "scrap"
	LocationUsageInventory LocationUsage = "inventory"
	LocationUsageTransit   LocationUsage = "transit"
)

// IsValid returns true if the usage is known
func (u LocationUsage) IsValid() bool {
	switch u {
	case LocationUsageInternal, LocationUsageSupplier, LocationUsageCustomer,
		LocationUsageScrap, LocationUsageInventory, LocationUsageTransit:
		return true
	}
	return false
}

// Location is a node in a company's storage tree (warehouse, zone, bin).
type Location struct {
	shared.BaseEntity
	CompanyID uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex:idx_stock_location_code,priority:1"`
	ParentID  *uuid.UUID    `gorm:"type:uuid;index"`
	Name      string        `gorm:"type:varchar(200);not null"`
	Code      string        `gorm:"type:varchar(50);not null;uniqueIndex:idx_stock_location_code,priority:2"`
	Usage     LocationUsage `gorm:"type:varchar(20);not null"`
	Active    bool          `gorm:"not null;default:true"`
}

// TableName returns the table name for GORM
func (Location) TableName() string {
	return "stock_locations"
}

// NewLocation creates a new location
func NewLocation(companyID uuid.UUID, parentID *uuid.UUID, name, code string, usage LocationUsage) (*Location, error) {
	if companyID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Company ID cannot be empty")
	}
	name = strings.TrimSpace(name)
	code = strings.TrimSpace(code)
	if name == "" || code == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Location name and code are required")
	}
	if !usage.IsValid() {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Unknown location usage: "+string(usage))
	}
	return &Location{
		BaseEntity: shared.NewBaseEntity(),
		CompanyID:  companyID,
		ParentID:   parentID,
		Name:       name,
		Code:       code,
		Usage:      usage,
		Active:     true,
	}, nil
}

// HoldsStock reports whether movements touching this location change balances
// and cost layers. Virtual locations only appear in the ledger.
func (l *Location) HoldsStock() bool {
	return l.Usage == LocationUsageInternal
}
