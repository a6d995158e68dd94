package persistence

import (
	"context"

	appinv "github.com/erp/stockledger/internal/application/inventory"
	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/infrastructure/event"
	"gorm.io/gorm"
)

// GormTransactionScope implements TransactionScope using GORM transactions.
// Repository writes and outbox entries recorded inside Execute commit or roll
// back together.
type GormTransactionScope struct {
	db     *gorm.DB
	outbox *event.OutboxPublisher
}

// NewGormTransactionScope creates a new GormTransactionScope
func NewGormTransactionScope(db *gorm.DB, outbox *event.OutboxPublisher) *GormTransactionScope {
	return &GormTransactionScope{db: db, outbox: outbox}
}

// Execute runs fn within a database transaction.
// If fn returns an error, the transaction is rolled back.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos appinv.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTransactionalRepositories{tx: tx, outbox: s.outbox})
	})
}

// gormTransactionalRepositories provides access to all repositories within a transaction
type gormTransactionalRepositories struct {
	tx     *gorm.DB
	outbox *event.OutboxPublisher
}

func (r *gormTransactionalRepositories) Movements() inventory.MovementRepository {
	return NewGormMovementRepository(r.tx)
}

func (r *gormTransactionalRepositories) Balances() inventory.BalanceRepository {
	return NewGormBalanceRepository(r.tx)
}

func (r *gormTransactionalRepositories) Layers() inventory.LayerRepository {
	return NewGormLayerRepository(r.tx)
}

func (r *gormTransactionalRepositories) Locations() inventory.LocationRepository {
	return NewGormLocationRepository(r.tx)
}

func (r *gormTransactionalRepositories) Variants() inventory.VariantRepository {
	return NewGormVariantRepository(r.tx)
}

func (r *gormTransactionalRepositories) CountSessions() inventory.CountSessionRepository {
	return NewGormCountSessionRepository(r.tx)
}

func (r *gormTransactionalRepositories) Rules() inventory.ReplenishmentRuleRepository {
	return NewGormReplenishmentRuleRepository(r.tx)
}

func (r *gormTransactionalRepositories) Alerts() inventory.StockAlertRepository {
	return NewGormStockAlertRepository(r.tx)
}

func (r *gormTransactionalRepositories) ReconcileRuns() inventory.ReconcileRunRepository {
	return NewGormReconcileRunRepository(r.tx)
}

// Outbox writes events to outbox_entries on the same transaction
func (r *gormTransactionalRepositories) Outbox() appinv.EventRecorder {
	return r.outbox.Recorder(r.tx)
}

// NewRepositories builds the non-transactional read repositories on db
func NewRepositories(db *gorm.DB) appinv.Repositories {
	return appinv.Repositories{
		Movements:     NewGormMovementRepository(db),
		Balances:      NewGormBalanceRepository(db),
		Layers:        NewGormLayerRepository(db),
		Locations:     NewGormLocationRepository(db),
		Variants:      NewGormVariantRepository(db),
		CountSessions: NewGormCountSessionRepository(db),
		Rules:         NewGormReplenishmentRuleRepository(db),
		Alerts:        NewGormStockAlertRepository(db),
		ReconcileRuns: NewGormReconcileRunRepository(db),
	}
}

// Models lists every table owned by the inventory core, in dependency order
func Models() []any {
	return []any{
		&inventory.Location{},
		&inventory.Variant{},
		&inventory.StockMovement{},
		&inventory.StockBalance{},
		&inventory.ValuationLayer{},
		&inventory.CountSession{},
		&inventory.CountLine{},
		&inventory.ReplenishmentRule{},
		&inventory.StockAlert{},
		&inventory.ReconcileRun{},
	}
}

var _ appinv.TransactionScope = (*GormTransactionScope)(nil)
var _ appinv.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
