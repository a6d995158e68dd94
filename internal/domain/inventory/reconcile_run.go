package inventory

import (
	"time"

	"github.com/google/uuid"
)

// ReconcileRun records one marketplace reconciliation batch for operator follow-up
type ReconcileRun struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	CompanyID       uuid.UUID `gorm:"type:uuid;not null;index:idx_reconcile_run_company_time,priority:1"`
	LocationID      uuid.UUID `gorm:"type:uuid;not null"`
	FeedHash        string    `gorm:"type:varchar(64);not null"`
	DryRun          bool      `gorm:"not null"`
	StartedAt       time.Time `gorm:"not null;index:idx_reconcile_run_company_time,priority:2"`
	FinishedAt      *time.Time
	Processed       int    `gorm:"not null;default:0"`
	Writes          int    `gorm:"not null;default:0"`
	Creates         int    `gorm:"not null;default:0"`
	NegativeGuards  int    `gorm:"not null;default:0"`
	Unchanged       int    `gorm:"not null;default:0"`
	Unmapped        int    `gorm:"not null;default:0"`
	Errors          int    `gorm:"not null;default:0"`
	MultipackGroups int    `gorm:"not null;default:0"`
	ArchiveKey      string `gorm:"type:varchar(300)"`
}

// TableName returns the table name for GORM
func (ReconcileRun) TableName() string {
	return "reconcile_runs"
}

// NewReconcileRun starts a run record
func NewReconcileRun(companyID, locationID uuid.UUID, feedHash string, dryRun bool) *ReconcileRun {
	return &ReconcileRun{
		ID:         uuid.New(),
		CompanyID:  companyID,
		LocationID: locationID,
		FeedHash:   feedHash,
		DryRun:     dryRun,
		StartedAt:  time.Now(),
	}
}

// Finish stamps the end of the run
func (r *ReconcileRun) Finish() {
	now := time.Now()
	r.FinishedAt = &now
}
