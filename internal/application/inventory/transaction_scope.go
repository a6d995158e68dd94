package inventory

import (
	"context"
	"sync"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
)

// TransactionScope provides transactional access to inventory repositories.
// When a function is executed within a transaction scope, all repository operations
// will be part of the same database transaction and will be committed or rolled back atomically.
type TransactionScope interface {
	// Execute runs the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	// If the function succeeds, the transaction is committed.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// EventRecorder writes domain events to the outbox of the current transaction
type EventRecorder interface {
	Record(ctx context.Context, events ...shared.DomainEvent) error
}

// TransactionalRepositories provides access to all inventory repositories within a transaction.
// All repositories returned share the same underlying database transaction.
//
// Movements is append-only. Balances and Layers are only mutated from inside the
// ledger append path; every other caller reads them.
type TransactionalRepositories interface {
	Movements() inventory.MovementRepository
	Balances() inventory.BalanceRepository
	Layers() inventory.LayerRepository
	Locations() inventory.LocationRepository
	Variants() inventory.VariantRepository
	CountSessions() inventory.CountSessionRepository
	Rules() inventory.ReplenishmentRuleRepository
	Alerts() inventory.StockAlertRepository
	ReconcileRuns() inventory.ReconcileRunRepository
	// Outbox records events atomically with the repository writes
	Outbox() EventRecorder
}

// Repositories bundles the non-transactional repositories used for reads
type Repositories struct {
	Movements     inventory.MovementRepository
	Balances      inventory.BalanceRepository
	Layers        inventory.LayerRepository
	Locations     inventory.LocationRepository
	Variants      inventory.VariantRepository
	CountSessions inventory.CountSessionRepository
	Rules         inventory.ReplenishmentRuleRepository
	Alerts        inventory.StockAlertRepository
	ReconcileRuns inventory.ReconcileRunRepository
}

// NoOpTransactionScope is a transaction scope that doesn't actually use transactions.
// This is useful for testing or when transaction support is not required.
// Recorded events are kept in memory.
type NoOpTransactionScope struct {
	repos  Repositories
	outbox *MemoryEventRecorder
}

// NewNoOpTransactionScope creates a NoOpTransactionScope with the given repositories.
func NewNoOpTransactionScope(repos Repositories) *NoOpTransactionScope {
	return &NoOpTransactionScope{repos: repos, outbox: &MemoryEventRecorder{}}
}

// Execute runs the function without a real transaction (for testing/compatibility).
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

func (s *NoOpTransactionScope) Movements() inventory.MovementRepository {
	return s.repos.Movements
}

func (s *NoOpTransactionScope) Balances() inventory.BalanceRepository {
	return s.repos.Balances
}

func (s *NoOpTransactionScope) Layers() inventory.LayerRepository {
	return s.repos.Layers
}

func (s *NoOpTransactionScope) Locations() inventory.LocationRepository {
	return s.repos.Locations
}

func (s *NoOpTransactionScope) Variants() inventory.VariantRepository {
	return s.repos.Variants
}

func (s *NoOpTransactionScope) CountSessions() inventory.CountSessionRepository {
	return s.repos.CountSessions
}

func (s *NoOpTransactionScope) Rules() inventory.ReplenishmentRuleRepository {
	return s.repos.Rules
}

func (s *NoOpTransactionScope) Alerts() inventory.StockAlertRepository {
	return s.repos.Alerts
}

func (s *NoOpTransactionScope) ReconcileRuns() inventory.ReconcileRunRepository {
	return s.repos.ReconcileRuns
}

// Outbox returns the in-memory recorder
func (s *NoOpTransactionScope) Outbox() EventRecorder {
	return s.outbox
}

// Recorded returns every event recorded so far
func (s *NoOpTransactionScope) Recorded() []shared.DomainEvent { return s.outbox.Events() }

// MemoryEventRecorder keeps recorded events in memory
type MemoryEventRecorder struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

// Record appends events
func (r *MemoryEventRecorder) Record(_ context.Context, events ...shared.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

// Events returns a copy of the recorded events
func (r *MemoryEventRecorder) Events() []shared.DomainEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]shared.DomainEvent(nil), r.events...)
}

// Ensure NoOpTransactionScope implements both interfaces
var _ TransactionScope = (*NoOpTransactionScope)(nil)
var _ TransactionalRepositories = (*NoOpTransactionScope)(nil)
