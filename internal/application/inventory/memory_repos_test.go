package inventory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// memStore is an in-memory backing store for the repository interfaces.
// Rows are copied in and out so callers never alias stored state.
type memStore struct {
	mu        sync.Mutex
	movements []inventory.StockMovement
	balances  map[inventory.BalanceKey]inventory.StockBalance
	layers    map[uuid.UUID]inventory.ValuationLayer
	locations map[uuid.UUID]inventory.Location
	variants  map[uuid.UUID]inventory.Variant
	sessions  map[uuid.UUID]inventory.CountSession
	rules     map[uuid.UUID]inventory.ReplenishmentRule
	alerts    map[uuid.UUID]inventory.StockAlert
	runs      map[uuid.UUID]inventory.ReconcileRun

	failMovementCreate error
}

func newMemStore() *memStore {
	return &memStore{
		balances:  make(map[inventory.BalanceKey]inventory.StockBalance),
		layers:    make(map[uuid.UUID]inventory.ValuationLayer),
		locations: make(map[uuid.UUID]inventory.Location),
		variants:  make(map[uuid.UUID]inventory.Variant),
		sessions:  make(map[uuid.UUID]inventory.CountSession),
		rules:     make(map[uuid.UUID]inventory.ReplenishmentRule),
		alerts:    make(map[uuid.UUID]inventory.StockAlert),
		runs:      make(map[uuid.UUID]inventory.ReconcileRun),
	}
}

func (s *memStore) repositories() Repositories {
	return Repositories{
		Movements:     memMovements{s},
		Balances:      memBalances{s},
		Layers:        memLayers{s},
		Locations:     memLocations{s},
		Variants:      memVariants{s},
		CountSessions: memSessions{s},
		Rules:         memRules{s},
		Alerts:        memAlerts{s},
		ReconcileRuns: memRuns{s},
	}
}

func page[T any](rows []T, f shared.Filter) []T {
	f = f.Normalize()
	start := f.Offset()
	if start >= len(rows) {
		return []T{}
	}
	end := start + f.PageSize
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end]
}

// movements

type memMovements struct{ s *memStore }

func (r memMovements) Create(_ context.Context, m *inventory.StockMovement) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failMovementCreate != nil {
		return r.s.failMovementCreate
	}
	r.s.movements = append(r.s.movements, *m)
	return nil
}

func (r memMovements) FindByID(_ context.Context, companyID, id uuid.UUID) (*inventory.StockMovement, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.movements {
		if r.s.movements[i].ID == id && r.s.movements[i].CompanyID == companyID {
			m := r.s.movements[i]
			return &m, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r memMovements) FindReversalOf(_ context.Context, companyID, id uuid.UUID) (*inventory.StockMovement, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.movements {
		m := r.s.movements[i]
		if m.CompanyID == companyID && m.CorrectsMovementID != nil && *m.CorrectsMovementID == id {
			return &m, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r memMovements) List(_ context.Context, companyID uuid.UUID, f inventory.MovementFilter) ([]inventory.StockMovement, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var rows []inventory.StockMovement
	for _, m := range r.s.movements {
		if m.CompanyID != companyID {
			continue
		}
		if f.VariantID != nil && m.VariantID != *f.VariantID {
			continue
		}
		if f.MovementType != "" && m.MovementType != f.MovementType {
			continue
		}
		rows = append(rows, m)
	}
	return page(rows, f.Filter), int64(len(rows)), nil
}

func (r memMovements) ListForVariant(_ context.Context, companyID, variantID uuid.UUID) ([]inventory.StockMovement, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var rows []inventory.StockMovement
	for _, m := range r.s.movements {
		if m.CompanyID == companyID && m.VariantID == variantID {
			rows = append(rows, m)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].OccurredAt.Before(rows[j].OccurredAt) })
	return rows, nil
}

// balances

type memBalances struct{ s *memStore }

func (r memBalances) LockOrCreate(_ context.Context, key inventory.BalanceKey) (*inventory.StockBalance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.balances[key]
	if !ok {
		b = *inventory.NewStockBalance(key)
		r.s.balances[key] = b
	}
	return &b, nil
}

func (r memBalances) Save(_ context.Context, b *inventory.StockBalance) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.balances[b.Key()] = *b
	return nil
}

func (r memBalances) Find(_ context.Context, key inventory.BalanceKey) (*inventory.StockBalance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.balances[key]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &b, nil
}

func (r memBalances) where(match func(inventory.StockBalance) bool) []inventory.StockBalance {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var rows []inventory.StockBalance
	for _, b := range r.s.balances {
		if match(b) {
			rows = append(rows, b)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key().Less(rows[j].Key()) })
	return rows
}

func (r memBalances) ListByVariant(_ context.Context, companyID, variantID uuid.UUID) ([]inventory.StockBalance, error) {
	return r.where(func(b inventory.StockBalance) bool {
		return b.CompanyID == companyID && b.VariantID == variantID
	}), nil
}

func (r memBalances) ListByLocation(_ context.Context, companyID, locationID uuid.UUID, f shared.Filter) ([]inventory.StockBalance, int64, error) {
	rows := r.where(func(b inventory.StockBalance) bool {
		return b.CompanyID == companyID && b.LocationID == locationID
	})
	return page(rows, f), int64(len(rows)), nil
}

func (r memBalances) ListAt(_ context.Context, companyID, locationID, variantID uuid.UUID) ([]inventory.StockBalance, error) {
	return r.where(func(b inventory.StockBalance) bool {
		return b.CompanyID == companyID && b.LocationID == locationID && b.VariantID == variantID
	}), nil
}

// layers

type memLayers struct{ s *memStore }

func (r memLayers) sorted(match func(inventory.ValuationLayer) bool) []inventory.ValuationLayer {
	var rows []inventory.ValuationLayer
	for _, l := range r.s.layers {
		if match(l) {
			rows = append(rows, l)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Sequence < rows[j].Sequence })
	return rows
}

func (r memLayers) LockScope(_ context.Context, companyID, variantID, locationID uuid.UUID, method inventory.CostMethod) ([]*inventory.ValuationLayer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rows := r.sorted(func(l inventory.ValuationLayer) bool {
		return l.CompanyID == companyID && l.VariantID == variantID && l.LocationID == locationID && l.Method == method
	})
	out := make([]*inventory.ValuationLayer, len(rows))
	for i := range rows {
		l := rows[i]
		out[i] = &l
	}
	return out, nil
}

func (r memLayers) Create(_ context.Context, layers ...*inventory.ValuationLayer) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, l := range layers {
		if _, ok := r.s.layers[l.ID]; ok {
			return shared.ErrConcurrencyConflict
		}
		r.s.layers[l.ID] = *l
	}
	return nil
}

func (r memLayers) Update(_ context.Context, layers ...*inventory.ValuationLayer) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, l := range layers {
		r.s.layers[l.ID] = *l
	}
	return nil
}

func (r memLayers) List(_ context.Context, companyID uuid.UUID, f inventory.LayerFilter) ([]inventory.ValuationLayer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.sorted(func(l inventory.ValuationLayer) bool {
		if l.CompanyID != companyID {
			return false
		}
		if f.VariantID != nil && l.VariantID != *f.VariantID {
			return false
		}
		if f.LocationID != nil && l.LocationID != *f.LocationID {
			return false
		}
		if f.Method != "" && l.Method != f.Method {
			return false
		}
		return !f.OnlyOpen || l.RemainingQty.IsPositive()
	}), nil
}

func (r memLayers) SumRemainingCost(ctx context.Context, companyID uuid.UUID, method inventory.CostMethod) (decimal.Decimal, error) {
	rows, _ := r.List(ctx, companyID, inventory.LayerFilter{Method: method})
	total := decimal.Zero
	for _, l := range rows {
		total = total.Add(l.RemainingCost)
	}
	return total, nil
}

func (r memLayers) SumByVariant(ctx context.Context, companyID uuid.UUID, method inventory.CostMethod) ([]inventory.VariantValuation, error) {
	rows, _ := r.List(ctx, companyID, inventory.LayerFilter{Method: method})
	byVariant := make(map[uuid.UUID]*inventory.VariantValuation)
	var order []uuid.UUID
	for _, l := range rows {
		v, ok := byVariant[l.VariantID]
		if !ok {
			v = &inventory.VariantValuation{VariantID: l.VariantID}
			byVariant[l.VariantID] = v
			order = append(order, l.VariantID)
		}
		v.RemainingQty = v.RemainingQty.Add(l.RemainingQty)
		v.RemainingCost = v.RemainingCost.Add(l.RemainingCost)
	}
	out := make([]inventory.VariantValuation, 0, len(order))
	for _, id := range order {
		out = append(out, *byVariant[id])
	}
	return out, nil
}

// locations and variants

type memLocations struct{ s *memStore }

func (r memLocations) FindByID(_ context.Context, companyID, id uuid.UUID) (*inventory.Location, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.locations[id]
	if !ok || l.CompanyID != companyID {
		return nil, shared.ErrNotFound
	}
	return &l, nil
}

func (r memLocations) FindByIDs(_ context.Context, companyID uuid.UUID, ids []uuid.UUID) ([]inventory.Location, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []inventory.Location
	for _, id := range ids {
		if l, ok := r.s.locations[id]; ok && l.CompanyID == companyID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r memLocations) ListInternal(_ context.Context, companyID uuid.UUID) ([]inventory.Location, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []inventory.Location
	for _, l := range r.s.locations {
		if l.CompanyID == companyID && l.HoldsStock() {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r memLocations) Save(_ context.Context, l *inventory.Location) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.locations[l.ID] = *l
	return nil
}

type memVariants struct{ s *memStore }

func (r memVariants) find(companyID uuid.UUID, match func(inventory.Variant) bool) (*inventory.Variant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, v := range r.s.variants {
		if v.CompanyID == companyID && match(v) {
			return &v, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r memVariants) FindByID(_ context.Context, companyID, id uuid.UUID) (*inventory.Variant, error) {
	return r.find(companyID, func(v inventory.Variant) bool { return v.ID == id })
}

func (r memVariants) FindBySKU(_ context.Context, companyID uuid.UUID, sku string) (*inventory.Variant, error) {
	return r.find(companyID, func(v inventory.Variant) bool { return v.SKU == sku })
}

func (r memVariants) FindByEAN(_ context.Context, companyID uuid.UUID, ean string) (*inventory.Variant, error) {
	return r.find(companyID, func(v inventory.Variant) bool { return v.EAN != "" && v.EAN == ean })
}

func (r memVariants) FindByMarketplaceID(_ context.Context, companyID uuid.UUID, id string) (*inventory.Variant, error) {
	return r.find(companyID, func(v inventory.Variant) bool { return v.MarketplaceID != "" && v.MarketplaceID == id })
}

func (r memVariants) Save(_ context.Context, v *inventory.Variant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.variants[v.ID] = *v
	return nil
}

// count sessions

type memSessions struct{ s *memStore }

func cloneSession(cs inventory.CountSession) *inventory.CountSession {
	cs.Lines = append([]inventory.CountLine(nil), cs.Lines...)
	return &cs
}

func (r memSessions) FindByID(_ context.Context, companyID, id uuid.UUID) (*inventory.CountSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cs, ok := r.s.sessions[id]
	if !ok || cs.CompanyID != companyID {
		return nil, shared.ErrNotFound
	}
	return cloneSession(cs), nil
}

func (r memSessions) FindByIDForUpdate(ctx context.Context, companyID, id uuid.UUID) (*inventory.CountSession, error) {
	return r.FindByID(ctx, companyID, id)
}

func (r memSessions) List(_ context.Context, companyID uuid.UUID, status inventory.CountSessionStatus, f shared.Filter) ([]inventory.CountSession, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var rows []inventory.CountSession
	for _, cs := range r.s.sessions {
		if cs.CompanyID == companyID && (status == "" || cs.Status == status) {
			rows = append(rows, *cloneSession(cs))
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].OpenedAt.Before(rows[j].OpenedAt) })
	return page(rows, f), int64(len(rows)), nil
}

func (r memSessions) Save(_ context.Context, cs *inventory.CountSession) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.sessions[cs.ID] = *cloneSession(*cs)
	return nil
}

// rules, alerts and runs

type memRules struct{ s *memStore }

func (r memRules) Find(_ context.Context, companyID, locationID, variantID uuid.UUID) (*inventory.ReplenishmentRule, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, rule := range r.s.rules {
		if rule.CompanyID == companyID && rule.LocationID == locationID && rule.VariantID == variantID {
			return &rule, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r memRules) ListActive(_ context.Context, companyID uuid.UUID) ([]inventory.ReplenishmentRule, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []inventory.ReplenishmentRule
	for _, rule := range r.s.rules {
		if rule.CompanyID == companyID && rule.Active {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (r memRules) List(_ context.Context, companyID uuid.UUID, f shared.Filter) ([]inventory.ReplenishmentRule, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []inventory.ReplenishmentRule
	for _, rule := range r.s.rules {
		if rule.CompanyID == companyID {
			out = append(out, rule)
		}
	}
	return page(out, f), int64(len(out)), nil
}

func (r memRules) Save(_ context.Context, rule *inventory.ReplenishmentRule) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rule.UpdatedAt = time.Now()
	r.s.rules[rule.ID] = *rule
	return nil
}

type memAlerts struct{ s *memStore }

func (r memAlerts) FindOpen(_ context.Context, companyID, locationID, variantID uuid.UUID, t inventory.AlertType) (*inventory.StockAlert, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.alerts {
		if a.CompanyID == companyID && a.LocationID == locationID && a.VariantID == variantID && a.AlertType == t && a.IsOpen() {
			return &a, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r memAlerts) List(_ context.Context, companyID uuid.UUID, status inventory.AlertStatus, f shared.Filter) ([]inventory.StockAlert, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []inventory.StockAlert
	for _, a := range r.s.alerts {
		if a.CompanyID == companyID && (status == "" || a.Status == status) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TriggeredAt.Before(out[j].TriggeredAt) })
	return page(out, f), int64(len(out)), nil
}

func (r memAlerts) Save(_ context.Context, a *inventory.StockAlert) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if a.IsOpen() {
		for id, other := range r.s.alerts {
			if id != a.ID && other.IsOpen() && other.CompanyID == a.CompanyID &&
				other.LocationID == a.LocationID && other.VariantID == a.VariantID && other.AlertType == a.AlertType {
				return shared.ErrConcurrencyConflict
			}
		}
	}
	r.s.alerts[a.ID] = *a
	return nil
}

type memRuns struct{ s *memStore }

func (r memRuns) Save(_ context.Context, run *inventory.ReconcileRun) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.runs[run.ID] = *run
	return nil
}

func (r memRuns) FindByID(_ context.Context, companyID, id uuid.UUID) (*inventory.ReconcileRun, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	run, ok := r.s.runs[id]
	if !ok || run.CompanyID != companyID {
		return nil, shared.ErrNotFound
	}
	return &run, nil
}

func (r memRuns) List(_ context.Context, companyID uuid.UUID, f shared.Filter) ([]inventory.ReconcileRun, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []inventory.ReconcileRun
	for _, run := range r.s.runs {
		if run.CompanyID == companyID {
			out = append(out, run)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return page(out, f), int64(len(out)), nil
}
