package persistence

import (
	"context"
	"errors"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormReplenishmentRuleRepository implements inventory.ReplenishmentRuleRepository using GORM
type GormReplenishmentRuleRepository struct {
	db *gorm.DB
}

// NewGormReplenishmentRuleRepository creates a new GormReplenishmentRuleRepository
func NewGormReplenishmentRuleRepository(db *gorm.DB) *GormReplenishmentRuleRepository {
	return &GormReplenishmentRuleRepository{db: db}
}

// Find returns the rule for a scope
func (r *GormReplenishmentRuleRepository) Find(ctx context.Context, companyID, locationID, variantID uuid.UUID) (*inventory.ReplenishmentRule, error) {
	var rule inventory.ReplenishmentRule
	if err := r.db.WithContext(ctx).
		Where("company_id = ? AND location_id = ? AND variant_id = ?", companyID, locationID, variantID).
		First(&rule).Error; err != nil {
		return nil, translateReadError(err)
	}
	return &rule, nil
}

// ListActive returns every active rule of a company
func (r *GormReplenishmentRuleRepository) ListActive(ctx context.Context, companyID uuid.UUID) ([]inventory.ReplenishmentRule, error) {
	var rules []inventory.ReplenishmentRule
	if err := r.db.WithContext(ctx).
		Where("company_id = ? AND active = ?", companyID, true).
		Order("location_id").Order("variant_id").
		Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

// List returns a page of rules
func (r *GormReplenishmentRuleRepository) List(ctx context.Context, companyID uuid.UUID, filter shared.Filter) ([]inventory.ReplenishmentRule, int64, error) {
	query := r.db.WithContext(ctx).Model(&inventory.ReplenishmentRule{}).Where("company_id = ?", companyID)
	if v, ok := filter.Filters["location_id"]; ok {
		query = query.Where("location_id = ?", v)
	}
	if v, ok := filter.Filters["active"]; ok {
		query = query.Where("active = ?", v)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rules []inventory.ReplenishmentRule
	if err := pageQuery(query, filter, ruleSort, "created_at").Find(&rules).Error; err != nil {
		return nil, 0, err
	}
	return rules, total, nil
}

// Save creates or updates the rule for its scope. Posting a rule for a scope
// that already has one keeps the stored id.
func (r *GormReplenishmentRuleRepository) Save(ctx context.Context, rule *inventory.ReplenishmentRule) error {
	db := r.db.WithContext(ctx)

	var existing inventory.ReplenishmentRule
	err := db.Select("id", "created_at").
		Where("company_id = ? AND location_id = ? AND variant_id = ?", rule.CompanyID, rule.LocationID, rule.VariantID).
		First(&existing).Error
	switch {
	case err == nil:
		rule.ID = existing.ID
		rule.CreatedAt = existing.CreatedAt
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return err
	}
	return translateWriteError(db.Save(rule).Error)
}

var _ inventory.ReplenishmentRuleRepository = (*GormReplenishmentRuleRepository)(nil)

// GormStockAlertRepository implements inventory.StockAlertRepository using GORM
type GormStockAlertRepository struct {
	db *gorm.DB
}

// NewGormStockAlertRepository creates a new GormStockAlertRepository
func NewGormStockAlertRepository(db *gorm.DB) *GormStockAlertRepository {
	return &GormStockAlertRepository{db: db}
}

// FindOpen returns the open alert for a scope
func (r *GormStockAlertRepository) FindOpen(ctx context.Context, companyID, locationID, variantID uuid.UUID, alertType inventory.AlertType) (*inventory.StockAlert, error) {
	var alert inventory.StockAlert
	if err := r.db.WithContext(ctx).
		Where("company_id = ? AND location_id = ? AND variant_id = ? AND alert_type = ? AND status = ?",
			companyID, locationID, variantID, alertType, inventory.AlertStatusOpen).
		First(&alert).Error; err != nil {
		return nil, translateReadError(err)
	}
	return &alert, nil
}

// List returns alerts, optionally filtered by status
func (r *GormStockAlertRepository) List(ctx context.Context, companyID uuid.UUID, status inventory.AlertStatus, filter shared.Filter) ([]inventory.StockAlert, int64, error) {
	query := r.db.WithContext(ctx).Model(&inventory.StockAlert{}).Where("company_id = ?", companyID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if v, ok := filter.Filters["location_id"]; ok {
		query = query.Where("location_id = ?", v)
	}
	if v, ok := filter.Filters["variant_id"]; ok {
		query = query.Where("variant_id = ?", v)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var alerts []inventory.StockAlert
	if err := pageQuery(query, filter, alertSort, "triggered_at").Find(&alerts).Error; err != nil {
		return nil, 0, err
	}
	return alerts, total, nil
}

// Save creates or updates an alert. Opening a second alert for the same scope
// violates the partial unique index and returns a concurrency conflict.
func (r *GormStockAlertRepository) Save(ctx context.Context, a *inventory.StockAlert) error {
	return translateWriteError(r.db.WithContext(ctx).Save(a).Error)
}

var _ inventory.StockAlertRepository = (*GormStockAlertRepository)(nil)

// GormReconcileRunRepository implements inventory.ReconcileRunRepository using GORM
type GormReconcileRunRepository struct {
	db *gorm.DB
}

// NewGormReconcileRunRepository creates a new GormReconcileRunRepository
func NewGormReconcileRunRepository(db *gorm.DB) *GormReconcileRunRepository {
	return &GormReconcileRunRepository{db: db}
}

// Save creates or updates a run record
func (r *GormReconcileRunRepository) Save(ctx context.Context, run *inventory.ReconcileRun) error {
	return r.db.WithContext(ctx).Save(run).Error
}

// FindByID finds a run within a company
func (r *GormReconcileRunRepository) FindByID(ctx context.Context, companyID, id uuid.UUID) (*inventory.ReconcileRun, error) {
	var run inventory.ReconcileRun
	if err := r.db.WithContext(ctx).
		Where("company_id = ? AND id = ?", companyID, id).
		First(&run).Error; err != nil {
		return nil, translateReadError(err)
	}
	return &run, nil
}

// List returns runs newest first
func (r *GormReconcileRunRepository) List(ctx context.Context, companyID uuid.UUID, filter shared.Filter) ([]inventory.ReconcileRun, int64, error) {
	query := r.db.WithContext(ctx).Model(&inventory.ReconcileRun{}).Where("company_id = ?", companyID)
	if v, ok := filter.Filters["location_id"]; ok {
		query = query.Where("location_id = ?", v)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	f := filter.Normalize()
	var runs []inventory.ReconcileRun
	if err := query.Order("started_at DESC").Offset(f.Offset()).Limit(f.PageSize).Find(&runs).Error; err != nil {
		return nil, 0, err
	}
	return runs, total, nil
}

var _ inventory.ReconcileRunRepository = (*GormReconcileRunRepository)(nil)
