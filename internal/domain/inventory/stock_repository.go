package inventory

import (
	"context"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MovementFilter narrows a ledger listing
type MovementFilter struct {
	shared.Filter
	VariantID    *uuid.UUID
	LocationID   *uuid.UUID
	MovementType MovementType
	From         *time.Time
	To           *time.Time
}

// MovementRepository persists the append-only ledger. It has no update or
// delete operations.
type MovementRepository interface {
	// Create inserts a new ledger entry
	Create(ctx context.Context, m *StockMovement) error

	// FindByID finds a movement within a company
	FindByID(ctx context.Context, companyID, id uuid.UUID) (*StockMovement, error)

	// FindReversalOf returns the entry correcting id, or shared.ErrNotFound
	FindReversalOf(ctx context.Context, companyID, id uuid.UUID) (*StockMovement, error)

	// List returns a page of movements and the total count
	List(ctx context.Context, companyID uuid.UUID, filter MovementFilter) ([]StockMovement, int64, error)

	// ListForVariant returns every movement of a variant ordered by (occurred_at, recorded_at)
	ListForVariant(ctx context.Context, companyID, variantID uuid.UUID) ([]StockMovement, error)
}

// BalanceRepository persists derived balance rows
type BalanceRepository interface {
	// LockOrCreate inserts a zero row for key if missing and returns it locked FOR UPDATE
	LockOrCreate(ctx context.Context, key BalanceKey) (*StockBalance, error)

	// Save writes back a balance row
	Save(ctx context.Context, b *StockBalance) error

	// Find returns the row for key, or shared.ErrNotFound
	Find(ctx context.Context, key BalanceKey) (*StockBalance, error)

	// ListByVariant returns every balance row of a variant
	ListByVariant(ctx context.Context, companyID, variantID uuid.UUID) ([]StockBalance, error)

	// ListByLocation returns balance rows at a location
	ListByLocation(ctx context.Context, companyID, locationID uuid.UUID, filter shared.Filter) ([]StockBalance, int64, error)

	// ListAt returns the rows of one variant at one location across lots and containers
	ListAt(ctx context.Context, companyID, locationID, variantID uuid.UUID) ([]StockBalance, error)
}

// LayerFilter narrows a valuation layer listing
type LayerFilter struct {
	VariantID  *uuid.UUID
	LocationID *uuid.UUID
	Method     CostMethod
	OnlyOpen   bool
}

// VariantValuation is the remaining cost of one variant under a method
type VariantValuation struct {
	VariantID     uuid.UUID       `json:"variant_id"`
	RemainingQty  decimal.Decimal `json:"remaining_qty"`
	RemainingCost decimal.Decimal `json:"remaining_cost"`
}

// LayerRepository persists valuation layers
type LayerRepository interface {
	// LockScope serializes on one cost book for the rest of the transaction and
	// returns its layers in sequence order, locked FOR UPDATE
	LockScope(ctx context.Context, companyID, variantID, locationID uuid.UUID, method CostMethod) ([]*ValuationLayer, error)

	// Create inserts new layers
	Create(ctx context.Context, layers ...*ValuationLayer) error

	// Update writes back modified layers
	Update(ctx context.Context, layers ...*ValuationLayer) error

	// List returns layers matching the filter in sequence order
	List(ctx context.Context, companyID uuid.UUID, filter LayerFilter) ([]ValuationLayer, error)

	// SumRemainingCost sums remaining_cost across all layers of a method
	SumRemainingCost(ctx context.Context, companyID uuid.UUID, method CostMethod) (decimal.Decimal, error)

	// SumByVariant groups remaining quantity and cost per variant
	SumByVariant(ctx context.Context, companyID uuid.UUID, method CostMethod) ([]VariantValuation, error)
}

// LocationRepository reads and seeds locations
type LocationRepository interface {
	FindByID(ctx context.Context, companyID, id uuid.UUID) (*Location, error)
	FindByIDs(ctx context.Context, companyID uuid.UUID, ids []uuid.UUID) ([]Location, error)
	ListInternal(ctx context.Context, companyID uuid.UUID) ([]Location, error)
	Save(ctx context.Context, l *Location) error
}

// VariantRepository reads and seeds variants
type VariantRepository interface {
	FindByID(ctx context.Context, companyID, id uuid.UUID) (*Variant, error)
	FindBySKU(ctx context.Context, companyID uuid.UUID, sku string) (*Variant, error)
	FindByEAN(ctx context.Context, companyID uuid.UUID, ean string) (*Variant, error)
	FindByMarketplaceID(ctx context.Context, companyID uuid.UUID, marketplaceID string) (*Variant, error)
	Save(ctx context.Context, v *Variant) error
}

// CountSessionRepository persists count sessions with their lines
type CountSessionRepository interface {
	// FindByID loads a session with its lines
	FindByID(ctx context.Context, companyID, id uuid.UUID) (*CountSession, error)

	// FindByIDForUpdate loads a session with its lines, locking the session row
	FindByIDForUpdate(ctx context.Context, companyID, id uuid.UUID) (*CountSession, error)

	// List returns sessions, optionally filtered by status
	List(ctx context.Context, companyID uuid.UUID, status CountSessionStatus, filter shared.Filter) ([]CountSession, int64, error)

	// Save upserts the session and all its lines
	Save(ctx context.Context, s *CountSession) error
}

// ReplenishmentRuleRepository persists replenishment rules
type ReplenishmentRuleRepository interface {
	// Find returns the rule for a scope, or shared.ErrNotFound
	Find(ctx context.Context, companyID, locationID, variantID uuid.UUID) (*ReplenishmentRule, error)

	// ListActive returns every active rule of a company
	ListActive(ctx context.Context, companyID uuid.UUID) ([]ReplenishmentRule, error)

	// List returns a page of rules
	List(ctx context.Context, companyID uuid.UUID, filter shared.Filter) ([]ReplenishmentRule, int64, error)

	// Save creates or updates a rule
	Save(ctx context.Context, r *ReplenishmentRule) error
}

// StockAlertRepository persists alerts
type StockAlertRepository interface {
	// FindOpen returns the open alert for a scope, or shared.ErrNotFound
	FindOpen(ctx context.Context, companyID, locationID, variantID uuid.UUID, alertType AlertType) (*StockAlert, error)

	// List returns alerts, optionally filtered by status
	List(ctx context.Context, companyID uuid.UUID, status AlertStatus, filter shared.Filter) ([]StockAlert, int64, error)

	// Save creates or updates an alert
	Save(ctx context.Context, a *StockAlert) error
}

// ReconcileRunRepository persists reconciliation run records
type ReconcileRunRepository interface {
	Save(ctx context.Context, r *ReconcileRun) error
	FindByID(ctx context.Context, companyID, id uuid.UUID) (*ReconcileRun, error)
	List(ctx context.Context, companyID uuid.UUID, filter shared.Filter) ([]ReconcileRun, int64, error)
}
