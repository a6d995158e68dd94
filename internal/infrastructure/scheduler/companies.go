package scheduler

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RuleCompanies lists companies that have at least one active replenishment rule
type RuleCompanies struct {
	db *gorm.DB
}

// NewRuleCompanies creates a CompanyProvider backed by replenishment_rules
func NewRuleCompanies(db *gorm.DB) *RuleCompanies {
	return &RuleCompanies{db: db}
}

// Companies implements CompanyProvider
func (p *RuleCompanies) Companies(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := p.db.WithContext(ctx).
		Table("replenishment_rules").
		Where("active = ?", true).
		Distinct().
		Pluck("company_id", &ids).Error
	return ids, err
}
