package shared

import (
	"time"

	"github.com/google/uuid"
)

// BaseEntity carries the identity and timestamps shared by persisted records
type BaseEntity struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func NewBaseEntity() BaseEntity {
	now := time.Now()
	return BaseEntity{ID: uuid.New(), CreatedAt: now, UpdatedAt: now}
}

// Touch marks the record as modified now
func (e *BaseEntity) Touch() {
	e.UpdatedAt = time.Now()
}

// CompanyAggregateRoot is embedded by aggregates that a company owns and that
// are mutated across several requests. Version starts at 1 and is bumped on
// every state transition.
type CompanyAggregateRoot struct {
	BaseEntity
	CompanyID uuid.UUID `gorm:"type:uuid;not null;index"`
	Version   int       `gorm:"not null;default:1"`
}

func NewCompanyAggregateRoot(companyID uuid.UUID) CompanyAggregateRoot {
	return CompanyAggregateRoot{
		BaseEntity: NewBaseEntity(),
		CompanyID:  companyID,
		Version:    1,
	}
}

func (a *CompanyAggregateRoot) GetVersion() int { return a.Version }

func (a *CompanyAggregateRoot) IncrementVersion() { a.Version++ }
