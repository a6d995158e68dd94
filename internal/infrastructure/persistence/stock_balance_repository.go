package persistence

import (
	"context"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormBalanceRepository implements inventory.BalanceRepository using GORM
type GormBalanceRepository struct {
	db *gorm.DB
}

// NewGormBalanceRepository creates a new GormBalanceRepository
func NewGormBalanceRepository(db *gorm.DB) *GormBalanceRepository {
	return &GormBalanceRepository{db: db}
}

var balanceScopeColumns = []clause.Column{
	{Name: "company_id"}, {Name: "location_id"}, {Name: "variant_id"}, {Name: "lot_id"}, {Name: "container_id"},
}

// LockOrCreate inserts a zero row for key if missing, then reads it back
// FOR UPDATE. Concurrent first writers race on the unique scope index and the
// loser's insert is a no-op, so both end up locking the same row.
func (r *GormBalanceRepository) LockOrCreate(ctx context.Context, key inventory.BalanceKey) (*inventory.StockBalance, error) {
	db := r.db.WithContext(ctx)
	if err := db.
		Clauses(clause.OnConflict{Columns: balanceScopeColumns, DoNothing: true}).
		Create(inventory.NewStockBalance(key)).Error; err != nil {
		return nil, err
	}

	var bal inventory.StockBalance
	if err := scopeWhere(db, key).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&bal).Error; err != nil {
		return nil, translateReadError(err)
	}
	return &bal, nil
}

// Save writes back a balance row
func (r *GormBalanceRepository) Save(ctx context.Context, b *inventory.StockBalance) error {
	return r.db.WithContext(ctx).Save(b).Error
}

// Find returns the row for key
func (r *GormBalanceRepository) Find(ctx context.Context, key inventory.BalanceKey) (*inventory.StockBalance, error) {
	var bal inventory.StockBalance
	if err := scopeWhere(r.db.WithContext(ctx), key).First(&bal).Error; err != nil {
		return nil, translateReadError(err)
	}
	return &bal, nil
}

// ListByVariant returns every balance row of a variant
func (r *GormBalanceRepository) ListByVariant(ctx context.Context, companyID, variantID uuid.UUID) ([]inventory.StockBalance, error) {
	var rows []inventory.StockBalance
	if err := r.db.WithContext(ctx).
		Where("company_id = ? AND variant_id = ?", companyID, variantID).
		Order("location_id").Order("lot_id").Order("container_id").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListByLocation returns a page of balance rows at a location.
// Filters: variant_id, non_zero (bool), sort_by (see balanceSort).
func (r *GormBalanceRepository) ListByLocation(ctx context.Context, companyID, locationID uuid.UUID, filter shared.Filter) ([]inventory.StockBalance, int64, error) {
	query := r.db.WithContext(ctx).Model(&inventory.StockBalance{}).
		Where("company_id = ? AND location_id = ?", companyID, locationID)

	if v, ok := filter.Filters["variant_id"]; ok {
		query = query.Where("variant_id = ?", v)
	}
	if v, ok := filter.Filters["non_zero"]; ok && v == true {
		query = query.Where("on_hand_qty <> 0")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []inventory.StockBalance
	if err := pageQuery(query, filter, balanceSort, "variant_id").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// ListAt returns the rows of one variant at one location across lots and containers
func (r *GormBalanceRepository) ListAt(ctx context.Context, companyID, locationID, variantID uuid.UUID) ([]inventory.StockBalance, error) {
	var rows []inventory.StockBalance
	if err := r.db.WithContext(ctx).
		Where("company_id = ? AND location_id = ? AND variant_id = ?", companyID, locationID, variantID).
		Order("lot_id").Order("container_id").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func scopeWhere(db *gorm.DB, key inventory.BalanceKey) *gorm.DB {
	return db.Where(
		"company_id = ? AND location_id = ? AND variant_id = ? AND lot_id = ? AND container_id = ?",
		key.CompanyID, key.LocationID, key.VariantID, key.LotID, key.ContainerID,
	)
}

var _ inventory.BalanceRepository = (*GormBalanceRepository)(nil)
