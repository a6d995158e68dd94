package persistence

import (
	"context"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormVariantRepository implements inventory.VariantRepository using GORM
type GormVariantRepository struct {
	db *gorm.DB
}

// NewGormVariantRepository creates a new GormVariantRepository
func NewGormVariantRepository(db *gorm.DB) *GormVariantRepository {
	return &GormVariantRepository{db: db}
}

// FindByID finds a variant within a company
func (r *GormVariantRepository) FindByID(ctx context.Context, companyID, id uuid.UUID) (*inventory.Variant, error) {
	return r.findOne(ctx, "company_id = ? AND id = ?", companyID, id)
}

// FindBySKU finds a variant by its SKU
func (r *GormVariantRepository) FindBySKU(ctx context.Context, companyID uuid.UUID, sku string) (*inventory.Variant, error) {
	return r.findOne(ctx, "company_id = ? AND sku = ?", companyID, sku)
}

// FindByEAN finds a variant by barcode. When several variants share an EAN
// the oldest wins.
func (r *GormVariantRepository) FindByEAN(ctx context.Context, companyID uuid.UUID, ean string) (*inventory.Variant, error) {
	if ean == "" {
		return nil, translateReadError(gorm.ErrRecordNotFound)
	}
	return r.findOne(ctx, "company_id = ? AND ean = ?", companyID, ean)
}

// FindByMarketplaceID finds a variant by its external listing id
func (r *GormVariantRepository) FindByMarketplaceID(ctx context.Context, companyID uuid.UUID, marketplaceID string) (*inventory.Variant, error) {
	if marketplaceID == "" {
		return nil, translateReadError(gorm.ErrRecordNotFound)
	}
	return r.findOne(ctx, "company_id = ? AND marketplace_id = ?", companyID, marketplaceID)
}

// Save creates or updates a variant. A duplicate SKU is a conflict.
func (r *GormVariantRepository) Save(ctx context.Context, v *inventory.Variant) error {
	return translateWriteError(r.db.WithContext(ctx).Save(v).Error)
}

func (r *GormVariantRepository) findOne(ctx context.Context, query string, args ...any) (*inventory.Variant, error) {
	var v inventory.Variant
	if err := r.db.WithContext(ctx).
		Where(query, args...).
		Order("created_at ASC").
		First(&v).Error; err != nil {
		return nil, translateReadError(err)
	}
	return &v, nil
}

var _ inventory.VariantRepository = (*GormVariantRepository)(nil)
