package persistence

import (
	"context"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormCountSessionRepository implements inventory.CountSessionRepository using GORM
type GormCountSessionRepository struct {
	db *gorm.DB
}

// NewGormCountSessionRepository creates a new GormCountSessionRepository
func NewGormCountSessionRepository(db *gorm.DB) *GormCountSessionRepository {
	return &GormCountSessionRepository{db: db}
}

// FindByID loads a session with its lines
func (r *GormCountSessionRepository) FindByID(ctx context.Context, companyID, id uuid.UUID) (*inventory.CountSession, error) {
	return r.find(r.db.WithContext(ctx), companyID, id)
}

// FindByIDForUpdate locks the session row before loading it, serializing
// concurrent close attempts
func (r *GormCountSessionRepository) FindByIDForUpdate(ctx context.Context, companyID, id uuid.UUID) (*inventory.CountSession, error) {
	return r.find(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), companyID, id)
}

func (r *GormCountSessionRepository) find(db *gorm.DB, companyID, id uuid.UUID) (*inventory.CountSession, error) {
	var s inventory.CountSession
	if err := db.
		Preload("Lines", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Where("company_id = ? AND id = ?", companyID, id).
		First(&s).Error; err != nil {
		return nil, translateReadError(err)
	}
	return &s, nil
}

// List returns sessions without their lines, optionally filtered by status
func (r *GormCountSessionRepository) List(ctx context.Context, companyID uuid.UUID, status inventory.CountSessionStatus, filter shared.Filter) ([]inventory.CountSession, int64, error) {
	query := r.db.WithContext(ctx).Model(&inventory.CountSession{}).Where("company_id = ?", companyID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if v, ok := filter.Filters["location_id"]; ok {
		query = query.Where("location_id = ?", v)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var sessions []inventory.CountSession
	if err := pageQuery(query, filter, countSessionSort, "opened_at").Find(&sessions).Error; err != nil {
		return nil, 0, err
	}
	return sessions, total, nil
}

// Save upserts the session and every line. Lines are never removed from a session.
func (r *GormCountSessionRepository) Save(ctx context.Context, s *inventory.CountSession) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Lines").Save(s).Error; err != nil {
			return err
		}
		for i := range s.Lines {
			s.Lines[i].SessionID = s.ID
			if err := tx.Save(&s.Lines[i]).Error; err != nil {
				return translateWriteError(err)
			}
		}
		return nil
	})
}

var _ inventory.CountSessionRepository = (*GormCountSessionRepository)(nil)
