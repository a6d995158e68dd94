package persistence

import (
	"context"
	"strings"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormLayerRepository implements inventory.LayerRepository using GORM
type GormLayerRepository struct {
	db *gorm.DB
}

// NewGormLayerRepository creates a new GormLayerRepository
func NewGormLayerRepository(db *gorm.DB) *GormLayerRepository {
	return &GormLayerRepository{db: db}
}

// LockScope serializes on the cost book key, then locks the open layers of
// the book together with the highest-sequence layer, which carries the next
// sequence number and the rolling WAC cost even when exhausted. Exhausted
// FIFO history is not loaded.
func (r *GormLayerRepository) LockScope(ctx context.Context, companyID, variantID, locationID uuid.UUID, method inventory.CostMethod) ([]*inventory.ValuationLayer, error) {
	db := r.db.WithContext(ctx)
	if err := lockBook(db, companyID, variantID, locationID, method); err != nil {
		return nil, err
	}
	scope := "company_id = ? AND variant_id = ? AND location_id = ? AND method = ?"

	maxSeq := db.Model(&inventory.ValuationLayer{}).
		Select("MAX(sequence)").
		Where(scope, companyID, variantID, locationID, method)

	var layers []*inventory.ValuationLayer
	if err := db.
		Where(scope, companyID, variantID, locationID, method).
		Where("(remaining_qty > 0 OR sequence = (?))", maxSeq).
		Order("sequence ASC").
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Find(&layers).Error; err != nil {
		return nil, err
	}
	return layers, nil
}

// lockBook takes a transaction-scoped advisory lock on one cost book. Row
// locks cannot cover a book with no layers yet, and appends on different
// lots or containers lock different balance rows. The lock is released at
// commit or rollback.
func lockBook(db *gorm.DB, companyID, variantID, locationID uuid.UUID, method inventory.CostMethod) error {
	if db.Dialector.Name() != "postgres" {
		return nil
	}
	key := strings.Join([]string{"valuation", companyID.String(), variantID.String(), locationID.String(), string(method)}, ":")
	return db.Exec("SELECT pg_advisory_xact_lock(hashtextextended(?, 0))", key).Error
}

// Create inserts new layers. A sequence collision means another transaction
// appended to the same book first.
func (r *GormLayerRepository) Create(ctx context.Context, layers ...*inventory.ValuationLayer) error {
	if len(layers) == 0 {
		return nil
	}
	return translateWriteError(r.db.WithContext(ctx).Create(layers).Error)
}

// Update writes back modified layers
func (r *GormLayerRepository) Update(ctx context.Context, layers ...*inventory.ValuationLayer) error {
	db := r.db.WithContext(ctx)
	for _, l := range layers {
		if err := db.Save(l).Error; err != nil {
			return err
		}
	}
	return nil
}

// List returns layers matching the filter in sequence order
func (r *GormLayerRepository) List(ctx context.Context, companyID uuid.UUID, filter inventory.LayerFilter) ([]inventory.ValuationLayer, error) {
	query := r.db.WithContext(ctx).Where("company_id = ?", companyID)
	if filter.VariantID != nil {
		query = query.Where("variant_id = ?", *filter.VariantID)
	}
	if filter.LocationID != nil {
		query = query.Where("location_id = ?", *filter.LocationID)
	}
	if filter.Method != "" {
		query = query.Where("method = ?", filter.Method)
	}
	if filter.OnlyOpen {
		query = query.Where("remaining_qty > 0")
	}

	var layers []inventory.ValuationLayer
	if err := query.
		Order("variant_id").Order("location_id").Order("sequence ASC").
		Find(&layers).Error; err != nil {
		return nil, err
	}
	return layers, nil
}

// SumRemainingCost sums remaining_cost across all layers of a method
func (r *GormLayerRepository) SumRemainingCost(ctx context.Context, companyID uuid.UUID, method inventory.CostMethod) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	if err := r.db.WithContext(ctx).Model(&inventory.ValuationLayer{}).
		Select("SUM(remaining_cost)").
		Where("company_id = ? AND method = ?", companyID, method).
		Scan(&total).Error; err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

// SumByVariant groups remaining quantity and cost per variant
func (r *GormLayerRepository) SumByVariant(ctx context.Context, companyID uuid.UUID, method inventory.CostMethod) ([]inventory.VariantValuation, error) {
	var rows []inventory.VariantValuation
	if err := r.db.WithContext(ctx).Model(&inventory.ValuationLayer{}).
		Select("variant_id, SUM(remaining_qty) AS remaining_qty, SUM(remaining_cost) AS remaining_cost").
		Where("company_id = ? AND method = ?", companyID, method).
		Group("variant_id").
		Order("variant_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

var _ inventory.LayerRepository = (*GormLayerRepository)(nil)
