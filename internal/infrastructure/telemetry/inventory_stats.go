package telemetry

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormInventoryStats implements InventoryStats with aggregate queries
type GormInventoryStats struct {
	db *gorm.DB
}

// NewGormInventoryStats creates the stats source
func NewGormInventoryStats(db *gorm.DB) *GormInventoryStats {
	return &GormInventoryStats{db: db}
}

type companyCount struct {
	CompanyID uuid.UUID `gorm:"column:company_id"`
	N         int64     `gorm:"column:n"`
}

func toCountMap(rows []companyCount) map[uuid.UUID]int64 {
	m := make(map[uuid.UUID]int64, len(rows))
	for _, r := range rows {
		m[r.CompanyID] = r.N
	}
	return m
}

// OpenAlertCounts returns open alerts per company
func (s *GormInventoryStats) OpenAlertCounts(ctx context.Context) (map[uuid.UUID]int64, error) {
	var rows []companyCount
	err := s.db.WithContext(ctx).
		Table("stock_alerts").
		Select("company_id, COUNT(*) AS n").
		Where("status = ?", "open").
		Group("company_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return toCountMap(rows), nil
}

// NegativeBalanceCounts returns negative internal balance rows per company
func (s *GormInventoryStats) NegativeBalanceCounts(ctx context.Context) (map[uuid.UUID]int64, error) {
	var rows []companyCount
	err := s.db.WithContext(ctx).
		Table("stock_balances AS b").
		Select("b.company_id, COUNT(*) AS n").
		Joins("JOIN stock_locations l ON l.id = b.location_id").
		Where("l.usage = ? AND b.on_hand_qty < 0", "internal").
		Group("b.company_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return toCountMap(rows), nil
}
