package persistence

import (
	"context"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormLocationRepository implements inventory.LocationRepository using GORM
type GormLocationRepository struct {
	db *gorm.DB
}

// NewGormLocationRepository creates a new GormLocationRepository
func NewGormLocationRepository(db *gorm.DB) *GormLocationRepository {
	return &GormLocationRepository{db: db}
}

// FindByID finds a location within a company
func (r *GormLocationRepository) FindByID(ctx context.Context, companyID, id uuid.UUID) (*inventory.Location, error) {
	var loc inventory.Location
	if err := r.db.WithContext(ctx).
		Where("company_id = ? AND id = ?", companyID, id).
		First(&loc).Error; err != nil {
		return nil, translateReadError(err)
	}
	return &loc, nil
}

// FindByIDs returns the locations that exist among ids. Missing ids are skipped.
func (r *GormLocationRepository) FindByIDs(ctx context.Context, companyID uuid.UUID, ids []uuid.UUID) ([]inventory.Location, error) {
	if len(ids) == 0 {
		return []inventory.Location{}, nil
	}
	var locs []inventory.Location
	if err := r.db.WithContext(ctx).
		Where("company_id = ? AND id IN ?", companyID, ids).
		Find(&locs).Error; err != nil {
		return nil, err
	}
	return locs, nil
}

// ListInternal returns active stock-holding locations ordered by code
func (r *GormLocationRepository) ListInternal(ctx context.Context, companyID uuid.UUID) ([]inventory.Location, error) {
	var locs []inventory.Location
	if err := r.db.WithContext(ctx).
		Where("company_id = ? AND usage = ? AND active = ?", companyID, inventory.LocationUsageInternal, true).
		Order("code").
		Find(&locs).Error; err != nil {
		return nil, err
	}
	return locs, nil
}

// Save creates or updates a location. A duplicate code is a conflict.
func (r *GormLocationRepository) Save(ctx context.Context, l *inventory.Location) error {
	return translateWriteError(r.db.WithContext(ctx).Save(l).Error)
}

var _ inventory.LocationRepository = (*GormLocationRepository)(nil)
