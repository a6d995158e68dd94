package inventory

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"time"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// StockLedger is the single entry point that changes stock. Every append
// writes the movement, the balance deltas, the valuation layers and the
// stock.changed outbox entry in one transaction.
type StockLedger struct {
	repos         Repositories
	txScope       TransactionScope
	logger        *zap.Logger
	notifier      ChangeNotifier
	audit         AuditSink
	metrics       Metrics
	defaultMethod inventory.CostMethod
}

// NewStockLedger creates a new StockLedger
func NewStockLedger(repos Repositories, txScope TransactionScope, defaultMethod inventory.CostMethod, logger *zap.Logger) *StockLedger {
	if !defaultMethod.IsValid() {
		defaultMethod = inventory.CostMethodFIFO
	}
	return &StockLedger{
		repos:         repos,
		txScope:       txScope,
		logger:        logger,
		notifier:      nopNotifier{},
		audit:         nopAudit{},
		metrics:       nopMetrics{},
		defaultMethod: defaultMethod,
	}
}

// WithNotifier sets the post-commit live notifier
func (s *StockLedger) WithNotifier(n ChangeNotifier) *StockLedger {
	s.notifier = n
	return s
}

// WithAuditSink sets the audit sink
func (s *StockLedger) WithAuditSink(a AuditSink) *StockLedger {
	s.audit = a
	return s
}

// WithMetrics sets the metrics recorder
func (s *StockLedger) WithMetrics(m Metrics) *StockLedger {
	s.metrics = m
	return s
}

// DefaultCostMethod returns the method used for variants without an override
func (s *StockLedger) DefaultCostMethod() inventory.CostMethod {
	return s.defaultMethod
}

// appendOutcome is what one append produced inside a transaction
type appendOutcome struct {
	movement  *inventory.StockMovement
	balances  []*inventory.StockBalance
	negatives []inventory.NegativeBalanceWarning
	shortages []inventory.InsufficientLayersFlag
}

// Append validates and records a movement. Validation failures return
// INVALID_MOVEMENT before any state is touched.
func (s *StockLedger) Append(ctx context.Context, companyID, actorID uuid.UUID, req AppendMovementRequest) (*AppendResult, error) {
	ctx, span := startSpan(ctx, "stock_ledger.append", companyID, attribute.String("movement_type", string(req.MovementType)))
	res, err := s.appendMovement(ctx, companyID, actorID, req)
	endSpan(span, err)
	return res, err
}

func (s *StockLedger) appendMovement(ctx context.Context, companyID, actorID uuid.UUID, req AppendMovementRequest) (*AppendResult, error) {
	draft := req.Draft(companyID, actorID)
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	var out *appendOutcome
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		out, err = s.appendInTx(ctx, repos, draft)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, out)
	return out.result(), nil
}

// Reverse appends the opposite-sign correction of a movement. A movement can
// be reversed once and a reversal entry cannot itself be reversed.
func (s *StockLedger) Reverse(ctx context.Context, companyID, actorID, movementID uuid.UUID, reason, note string) (*AppendResult, error) {
	ctx, span := startSpan(ctx, "stock_ledger.reverse", companyID, attribute.String("movement_id", movementID.String()))
	res, err := s.reverse(ctx, companyID, actorID, movementID, reason, note)
	endSpan(span, err)
	return res, err
}

func (s *StockLedger) reverse(ctx context.Context, companyID, actorID, movementID uuid.UUID, reason, note string) (*AppendResult, error) {
	if actorID == uuid.Nil {
		return nil, shared.InvalidMovement("actor is required")
	}

	var out *appendOutcome
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		original, err := repos.Movements().FindByID(ctx, companyID, movementID)
		if err != nil {
			return err
		}
		_, err = repos.Movements().FindReversalOf(ctx, companyID, movementID)
		if err == nil {
			return shared.NewDomainError(shared.CodeInvalidState, "Movement has already been reversed")
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return err
		}

		draft, err := original.ReversalDraft(actorID, reason, note)
		if err != nil {
			return err
		}
		out, err = s.appendInTx(ctx, repos, draft)
		if err != nil {
			return err
		}
		return repos.Outbox().Record(ctx, inventory.NewStockMovementReversedEvent(original, out.movement))
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, out)
	s.audit.Record(ctx, AuditEvent{
		CompanyID:  companyID,
		ActorID:    actorID,
		EntityType: inventory.AggregateTypeStockMovement,
		EntityID:   movementID,
		Action:     "reverse",
		After:      out.movement.ID,
		OccurredAt: time.Now(),
	})
	return out.result(), nil
}

// Get returns one movement
func (s *StockLedger) Get(ctx context.Context, companyID, movementID uuid.UUID) (*MovementResponse, error) {
	m, err := s.repos.Movements.FindByID(ctx, companyID, movementID)
	if err != nil {
		return nil, err
	}
	resp := ToMovementResponse(m)
	return &resp, nil
}

// List returns a page of movements
func (s *StockLedger) List(ctx context.Context, companyID uuid.UUID, filter MovementListFilter) ([]MovementResponse, int64, error) {
	f := inventory.MovementFilter{
		Filter: shared.Filter{
			Page:     filter.Page,
			PageSize: filter.PageSize,
			OrderDir: filter.OrderDir,
		},
		VariantID:    filter.VariantID,
		LocationID:   filter.LocationID,
		MovementType: inventory.MovementType(filter.MovementType),
		From:         filter.From,
		To:           filter.To,
	}
	f.Filter = f.Filter.Normalize()

	rows, total, err := s.repos.Movements.List(ctx, companyID, f)
	if err != nil {
		return nil, 0, err
	}
	out := make([]MovementResponse, len(rows))
	for i := range rows {
		out[i] = ToMovementResponse(&rows[i])
	}
	return out, total, nil
}

// appendInTx records one movement using the transaction's repositories.
// Balance rows are locked in key order and cost books in location order so
// concurrent appends touching the same scopes cannot deadlock.
func (s *StockLedger) appendInTx(ctx context.Context, repos TransactionalRepositories, draft inventory.MovementDraft) (*appendOutcome, error) {
	m, err := inventory.NewStockMovement(draft)
	if err != nil {
		return nil, err
	}

	variant, err := repos.Variants().FindByID(ctx, m.CompanyID, m.VariantID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.InvalidMovement("unknown variant " + m.VariantID.String())
		}
		return nil, err
	}

	holds, err := s.stockHoldingLocations(ctx, repos, m)
	if err != nil {
		return nil, err
	}
	holdsStock := func(id uuid.UUID) bool { return holds[id] }

	out := &appendOutcome{movement: m}

	// balances
	effects := make(map[inventory.BalanceKey]decimal.Decimal)
	keys := make([]inventory.BalanceKey, 0, 2)
	for _, eff := range m.Effects() {
		if !holdsStock(eff.Key.LocationID) {
			continue
		}
		effects[eff.Key] = effects[eff.Key].Add(eff.Delta)
		keys = append(keys, eff.Key)
	}
	changes := make([]inventory.BalanceChange, 0, len(keys))
	for _, key := range inventory.SortBalanceKeys(keys) {
		bal, err := repos.Balances().LockOrCreate(ctx, key)
		if err != nil {
			return nil, err
		}
		delta := effects[key]
		if w := bal.Apply(delta); w != nil {
			out.negatives = append(out.negatives, *w)
		}
		if err := repos.Balances().Save(ctx, bal); err != nil {
			return nil, err
		}
		out.balances = append(out.balances, bal)
		changes = append(changes, inventory.BalanceChange{
			LocationID:  key.LocationID,
			LotID:       key.LotID,
			ContainerID: key.ContainerID,
			Delta:       delta,
			OnHandQty:   bal.OnHandQty,
		})
	}

	// valuation
	method := variant.EffectiveCostMethod(s.defaultMethod)
	totalCost, shortages, err := s.valuate(ctx, repos, m, method, holdsStock)
	if err != nil {
		return nil, err
	}
	m.TotalCost = totalCost
	out.shortages = shortages
	// stamped under the book locks so recorded order is layer consumption order
	m.RecordedAt = time.Now()

	if err := repos.Movements().Create(ctx, m); err != nil {
		return nil, err
	}

	if len(changes) > 0 {
		if err := repos.Outbox().Record(ctx, inventory.NewStockChangedEvent(m, changes)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// stockHoldingLocations loads the movement's locations and reports which of
// them hold stock. Unknown locations reject the movement.
func (s *StockLedger) stockHoldingLocations(ctx context.Context, repos TransactionalRepositories, m *inventory.StockMovement) (map[uuid.UUID]bool, error) {
	ids := m.LocationIDs()
	locs, err := repos.Locations().FindByIDs(ctx, m.CompanyID, ids)
	if err != nil {
		return nil, err
	}
	holds := make(map[uuid.UUID]bool, len(locs))
	found := make(map[uuid.UUID]bool, len(locs))
	for i := range locs {
		found[locs[i].ID] = true
		holds[locs[i].ID] = locs[i].HoldsStock()
	}
	for _, id := range ids {
		if !found[id] {
			return nil, shared.InvalidMovement("unknown location " + id.String())
		}
	}
	return holds, nil
}

// valuate runs the movement through the cost books of every stock-holding
// side. Issues are booked before receipts so a transfer's destination is
// valued at the cost that left the source. It returns the cost booked for
// the movement and any zero-floored shortfalls.
func (s *StockLedger) valuate(
	ctx context.Context,
	repos TransactionalRepositories,
	m *inventory.StockMovement,
	method inventory.CostMethod,
	holdsStock func(uuid.UUID) bool,
) (decimal.Decimal, []inventory.InsufficientLayersFlag, error) {
	type side struct {
		locationID uuid.UUID
		delta      decimal.Decimal
	}
	var sides []side
	for _, eff := range m.Effects() {
		if holdsStock(eff.Key.LocationID) {
			sides = append(sides, side{locationID: eff.Key.LocationID, delta: eff.Delta})
		}
	}
	if len(sides) == 0 {
		return decimal.Zero, nil, nil
	}
	sort.Slice(sides, func(i, j int) bool {
		return bytes.Compare(sides[i].locationID[:], sides[j].locationID[:]) < 0
	})

	books := make(map[uuid.UUID]*inventory.CostBook, len(sides))
	for _, sd := range sides {
		if _, ok := books[sd.locationID]; ok {
			continue
		}
		layers, err := repos.Layers().LockScope(ctx, m.CompanyID, m.VariantID, sd.locationID, method)
		if err != nil {
			return decimal.Zero, nil, err
		}
		books[sd.locationID] = inventory.NewCostBook(method, m.CompanyID, m.VariantID, sd.locationID, layers)
	}

	var (
		shortages   []inventory.InsufficientLayersFlag
		issuedCost  = decimal.Zero
		receiptCost = decimal.Zero
		issuedUnit  *decimal.Decimal
	)
	for _, sd := range sides {
		if !sd.delta.IsNegative() {
			continue
		}
		res, err := books[sd.locationID].Issue(sd.delta.Abs())
		if err != nil {
			return decimal.Zero, nil, err
		}
		if res.Insufficient {
			shortages = append(shortages, inventory.InsufficientLayersFlag{
				VariantID:  m.VariantID,
				LocationID: sd.locationID,
				Method:     method,
				Shortfall:  res.Shortfall,
			})
		}
		issuedCost = issuedCost.Add(res.Cost)
		avg := res.AverageUnitCost()
		issuedUnit = &avg
	}
	for _, sd := range sides {
		if !sd.delta.IsPositive() {
			continue
		}
		book := books[sd.locationID]
		unit := inventory.ReceiptUnitCost(m, issuedUnit, book)
		if _, err := book.Receive(m.ID, sd.delta, unit); err != nil {
			return decimal.Zero, nil, err
		}
		receiptCost = receiptCost.Add(sd.delta.Mul(unit))
	}

	for _, sd := range sides {
		book, ok := books[sd.locationID]
		if !ok {
			continue
		}
		delete(books, sd.locationID)
		if created := book.NewLayers(); len(created) > 0 {
			if err := repos.Layers().Create(ctx, created...); err != nil {
				return decimal.Zero, nil, err
			}
		}
		if touched := book.TouchedLayers(); len(touched) > 0 {
			if err := repos.Layers().Update(ctx, touched...); err != nil {
				return decimal.Zero, nil, err
			}
		}
	}

	if issuedCost.IsPositive() {
		return issuedCost.Round(4), shortages, nil
	}
	return receiptCost.Round(4), shortages, nil
}

// afterCommit pushes live notifications and surfaces warnings. Nothing here
// can undo the committed append.
func (s *StockLedger) afterCommit(ctx context.Context, outcomes ...*appendOutcome) {
	for _, out := range outcomes {
		if out == nil {
			continue
		}
		m := out.movement
		s.metrics.MovementAppended(ctx, m.CompanyID, string(m.MovementType))

		notified := make(map[uuid.UUID]bool, len(out.balances))
		for _, b := range out.balances {
			if notified[b.LocationID] {
				continue
			}
			notified[b.LocationID] = true
			n := ChangeNotification{
				Scope:      ChannelForLocation(b.LocationID),
				CompanyID:  m.CompanyID,
				LocationID: b.LocationID,
				VariantID:  m.VariantID,
				MovementID: m.ID,
			}
			if err := s.notifier.Notify(ctx, n); err != nil {
				s.logger.Warn("live notification failed",
					zap.String("channel", n.Scope),
					zap.String("movement_id", m.ID.String()),
					zap.Error(err),
				)
			}
		}

		for _, w := range out.negatives {
			s.metrics.NegativeBalance(ctx, m.CompanyID)
			s.logger.Warn("negative balance",
				zap.String("code", w.Code()),
				zap.String("movement_id", m.ID.String()),
				zap.String("location_id", w.Key.LocationID.String()),
				zap.String("variant_id", w.Key.VariantID.String()),
				zap.String("before", w.Before.String()),
				zap.String("after", w.After.String()),
			)
		}
		for _, f := range out.shortages {
			s.metrics.InsufficientLayers(ctx, m.CompanyID)
			s.logger.Warn("insufficient valuation layers",
				zap.String("code", f.Code()),
				zap.String("movement_id", m.ID.String()),
				zap.String("location_id", f.LocationID.String()),
				zap.String("variant_id", f.VariantID.String()),
				zap.String("method", string(f.Method)),
				zap.String("shortfall", f.Shortfall.String()),
			)
		}

		s.audit.Record(ctx, AuditEvent{
			CompanyID:  m.CompanyID,
			ActorID:    m.ActorID,
			EntityType: inventory.AggregateTypeStockMovement,
			EntityID:   m.ID,
			Action:     "append",
			After:      ToMovementResponse(m),
			OccurredAt: m.RecordedAt,
		})
	}
}

func (o *appendOutcome) result() *AppendResult {
	res := &AppendResult{
		Movement: ToMovementResponse(o.movement),
		Balances: make([]BalanceResponse, 0, len(o.balances)),
	}
	for _, b := range o.balances {
		res.Balances = append(res.Balances, ToBalanceResponse(b))
	}
	for _, w := range o.negatives {
		before, after := w.Before, w.After
		res.Warnings = append(res.Warnings, WarningResponse{
			Code:       w.Code(),
			Message:    w.Message(),
			LocationID: w.Key.LocationID,
			Before:     &before,
			After:      &after,
		})
	}
	for _, f := range o.shortages {
		shortfall := f.Shortfall
		res.Warnings = append(res.Warnings, WarningResponse{
			Code:       f.Code(),
			Message:    "valuation layers could not cover the issued quantity",
			LocationID: f.LocationID,
			Shortfall:  &shortfall,
		})
	}
	return res
}
