package persistence

import (
	"context"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormMovementRepository implements inventory.MovementRepository using GORM.
// The ledger is append-only, so the repository exposes no update or delete.
type GormMovementRepository struct {
	db *gorm.DB
}

// NewGormMovementRepository creates a new GormMovementRepository
func NewGormMovementRepository(db *gorm.DB) *GormMovementRepository {
	return &GormMovementRepository{db: db}
}

// Create inserts a new ledger entry. A second correction of the same movement
// violates the unique index on corrects_movement_id and surfaces as a conflict.
func (r *GormMovementRepository) Create(ctx context.Context, m *inventory.StockMovement) error {
	return translateWriteError(r.db.WithContext(ctx).Create(m).Error)
}

// FindByID finds a movement within a company
func (r *GormMovementRepository) FindByID(ctx context.Context, companyID, id uuid.UUID) (*inventory.StockMovement, error) {
	var m inventory.StockMovement
	if err := r.db.WithContext(ctx).
		Where("company_id = ? AND id = ?", companyID, id).
		First(&m).Error; err != nil {
		return nil, translateReadError(err)
	}
	return &m, nil
}

// FindReversalOf returns the entry correcting id
func (r *GormMovementRepository) FindReversalOf(ctx context.Context, companyID, id uuid.UUID) (*inventory.StockMovement, error) {
	var m inventory.StockMovement
	if err := r.db.WithContext(ctx).
		Where("company_id = ? AND corrects_movement_id = ?", companyID, id).
		First(&m).Error; err != nil {
		return nil, translateReadError(err)
	}
	return &m, nil
}

// List returns a page of movements, newest first unless asc is requested
func (r *GormMovementRepository) List(ctx context.Context, companyID uuid.UUID, filter inventory.MovementFilter) ([]inventory.StockMovement, int64, error) {
	page := filter.Normalize()
	query := r.db.WithContext(ctx).Model(&inventory.StockMovement{}).Where("company_id = ?", companyID)

	if filter.VariantID != nil {
		query = query.Where("variant_id = ?", *filter.VariantID)
	}
	if filter.LocationID != nil {
		query = query.Where("(source_location_id = ? OR dest_location_id = ?)", *filter.LocationID, *filter.LocationID)
	}
	if filter.MovementType != "" {
		query = query.Where("movement_type = ?", filter.MovementType)
	}
	if filter.From != nil {
		query = query.Where("occurred_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("occurred_at < ?", *filter.To)
	}
	if v, ok := page.Filters["source_document"]; ok {
		query = query.Where("source_document = ?", v)
	}
	if v, ok := page.Filters["reason_code"]; ok {
		query = query.Where("reason_code = ?", v)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	desc := filter.OrderDir == "" || descending(page.OrderDir)
	var movements []inventory.StockMovement
	if err := query.
		Order(clause.OrderByColumn{Column: clause.Column{Name: "occurred_at"}, Desc: desc}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "recorded_at"}, Desc: desc}).
		Offset(page.Offset()).
		Limit(page.PageSize).
		Find(&movements).Error; err != nil {
		return nil, 0, err
	}
	return movements, total, nil
}

// ListForVariant returns the full history of a variant in occurred order
func (r *GormMovementRepository) ListForVariant(ctx context.Context, companyID, variantID uuid.UUID) ([]inventory.StockMovement, error) {
	var movements []inventory.StockMovement
	if err := r.db.WithContext(ctx).
		Where("company_id = ? AND variant_id = ?", companyID, variantID).
		Order("occurred_at ASC").
		Order("recorded_at ASC").
		Find(&movements).Error; err != nil {
		return nil, err
	}
	return movements, nil
}

var _ inventory.MovementRepository = (*GormMovementRepository)(nil)
