//go:build integration

package integration

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	appinv "github.com/erp/stockledger/internal/application/inventory"
	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/event"
	"github.com/erp/stockledger/internal/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type ledgerFixture struct {
	db        *TestDB
	repos     appinv.Repositories
	scope     appinv.TransactionScope
	ledger    *appinv.StockLedger
	companyID uuid.UUID
	actorID   uuid.UUID
	warehouse *inventory.Location
	variant   *inventory.Variant
}

func newLedgerFixture(t *testing.T, method inventory.CostMethod) *ledgerFixture {
	t.Helper()
	tdb := NewTestDB(t)
	repos := persistence.NewRepositories(tdb.DB)
	scope := persistence.NewGormTransactionScope(tdb.DB, event.NewOutboxPublisher(event.NewRegisteredSerializer()))
	f := &ledgerFixture{
		db:        tdb,
		repos:     repos,
		scope:     scope,
		ledger:    appinv.NewStockLedger(repos, scope, method, zap.NewNop()),
		companyID: uuid.New(),
		actorID:   uuid.New(),
	}

	ctx := context.Background()
	loc, err := inventory.NewLocation(f.companyID, nil, "Main warehouse", "WH", inventory.LocationUsageInternal)
	require.NoError(t, err)
	require.NoError(t, repos.Locations.Save(ctx, loc))
	f.warehouse = loc

	v, err := inventory.NewVariant(f.companyID, uuid.New(), "SKU-1", "Widget")
	require.NoError(t, err)
	require.NoError(t, repos.Variants.Save(ctx, v))
	f.variant = v
	return f
}

func (f *ledgerFixture) receive(t *testing.T, qty, cost int64) *appinv.AppendResult {
	t.Helper()
	unit := decimal.NewFromInt(cost)
	res, err := f.ledger.Append(context.Background(), f.companyID, f.actorID, appinv.AppendMovementRequest{
		MovementType:   "inbound",
		DestLocationID: &f.warehouse.ID,
		VariantID:      f.variant.ID,
		Quantity:       decimal.NewFromInt(qty),
		UnitCost:       &unit,
	})
	require.NoError(t, err)
	return res
}

func (f *ledgerFixture) onHand(t *testing.T) decimal.Decimal {
	t.Helper()
	b, err := f.repos.Balances.Find(context.Background(), inventory.NewBalanceKey(f.companyID, f.warehouse.ID, f.variant.ID, nil, nil))
	require.NoError(t, err)
	return b.OnHandQty
}

func TestLedger_ConcurrentIssuesSerialiseOnTheBalanceRow(t *testing.T) {
	f := newLedgerFixture(t, inventory.CostMethodFIFO)
	ctx := context.Background()

	f.receive(t, 10, 4)
	f.receive(t, 10, 6)

	const workers = 20
	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.Append(ctx, f.companyID, f.actorID, appinv.AppendMovementRequest{
				MovementType:     "outbound",
				SourceLocationID: &f.warehouse.ID,
				VariantID:        f.variant.ID,
				Quantity:         decimal.NewFromInt(1),
			})
			if err != nil {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Zero(t, failures.Load())
	assert.True(t, f.onHand(t).IsZero())

	var issued decimal.Decimal
	require.NoError(t, f.db.DB.Model(&inventory.StockMovement{}).
		Where("movement_type = ?", "outbound").
		Select("COALESCE(SUM(total_cost), 0)").Scan(&issued).Error)
	assert.True(t, issued.Equal(decimal.NewFromInt(100)), "10 @ 4 + 10 @ 6, got %s", issued)

	valuation, err := appinv.NewValuationService(f.repos, inventory.CostMethodFIFO).Valuation(ctx, f.companyID, "fifo")
	require.NoError(t, err)
	assert.True(t, valuation.Total.IsZero())

	report, err := appinv.NewBalanceService(f.repos, f.scope, zap.NewNop()).VerifyReplay(ctx, f.companyID, f.variant.ID)
	require.NoError(t, err)
	assert.True(t, report.Consistent)
	assert.Equal(t, workers+2, report.Movements)
}

func TestLedger_ConcurrentLotsShareOneCostBook(t *testing.T) {
	ctx := context.Background()

	t.Run("first receipts into an empty book", func(t *testing.T) {
		f := newLedgerFixture(t, inventory.CostMethodFIFO)
		const workers = 10
		var wg sync.WaitGroup
		var failures atomic.Int32
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				lot := uuid.New()
				unit := decimal.NewFromInt(5)
				_, err := f.ledger.Append(ctx, f.companyID, f.actorID, appinv.AppendMovementRequest{
					MovementType:   "inbound",
					DestLocationID: &f.warehouse.ID,
					VariantID:      f.variant.ID,
					LotID:          &lot,
					Quantity:       decimal.NewFromInt(1),
					UnitCost:       &unit,
				})
				if err != nil {
					failures.Add(1)
				}
			}()
		}
		wg.Wait()
		require.Zero(t, failures.Load())

		valuation := appinv.NewValuationService(f.repos, inventory.CostMethodFIFO)
		layers, err := valuation.Layers(ctx, f.companyID, appinv.LayerQuery{VariantID: &f.variant.ID})
		require.NoError(t, err)
		require.Len(t, layers, workers)
		for i, l := range layers {
			assert.Equal(t, int64(i+1), l.Sequence)
		}

		replay, err := valuation.Replay(ctx, f.companyID, f.variant.ID)
		require.NoError(t, err)
		assert.True(t, replay.Consistent)
		assert.True(t, replay.StoredCost.Equal(decimal.NewFromInt(50)), "stored %s", replay.StoredCost)
	})

	t.Run("issues from one lot while another lot receives", func(t *testing.T) {
		f := newLedgerFixture(t, inventory.CostMethodFIFO)
		lotA, lotB := uuid.New(), uuid.New()
		four := decimal.NewFromInt(4)
		_, err := f.ledger.Append(ctx, f.companyID, f.actorID, appinv.AppendMovementRequest{
			MovementType:   "inbound",
			DestLocationID: &f.warehouse.ID,
			VariantID:      f.variant.ID,
			LotID:          &lotB,
			Quantity:       decimal.NewFromInt(10),
			UnitCost:       &four,
		})
		require.NoError(t, err)

		const workers = 10
		var wg sync.WaitGroup
		var failures atomic.Int32
		submit := func(req appinv.AppendMovementRequest) {
			defer wg.Done()
			res, err := f.ledger.Append(ctx, f.companyID, f.actorID, req)
			if err != nil || len(res.Warnings) > 0 {
				failures.Add(1)
			}
		}
		six := decimal.NewFromInt(6)
		for i := 0; i < workers; i++ {
			wg.Add(2)
			go submit(appinv.AppendMovementRequest{
				MovementType:   "inbound",
				DestLocationID: &f.warehouse.ID,
				VariantID:      f.variant.ID,
				LotID:          &lotA,
				Quantity:       decimal.NewFromInt(1),
				UnitCost:       &six,
			})
			go submit(appinv.AppendMovementRequest{
				MovementType:     "outbound",
				SourceLocationID: &f.warehouse.ID,
				VariantID:        f.variant.ID,
				LotID:            &lotB,
				Quantity:         decimal.NewFromInt(1),
			})
		}
		wg.Wait()
		require.Zero(t, failures.Load())

		var issued decimal.Decimal
		require.NoError(t, f.db.DB.Model(&inventory.StockMovement{}).
			Where("movement_type = ?", "outbound").
			Select("COALESCE(SUM(total_cost), 0)").Scan(&issued).Error)
		assert.True(t, issued.Equal(decimal.NewFromInt(40)), "every issue consumed a 4.00 layer, got %s", issued)

		replay, err := appinv.NewValuationService(f.repos, inventory.CostMethodFIFO).Replay(ctx, f.companyID, f.variant.ID)
		require.NoError(t, err)
		assert.True(t, replay.Consistent)
		assert.True(t, replay.StoredQty.Equal(decimal.NewFromInt(10)))
		assert.True(t, replay.StoredCost.Equal(decimal.NewFromInt(60)), "stored %s", replay.StoredCost)
	})
}

func TestLedger_ConcurrentReversalsOnlyOneWins(t *testing.T) {
	f := newLedgerFixture(t, inventory.CostMethodWAC)
	ctx := context.Background()
	in := f.receive(t, 5, 3)

	var wg sync.WaitGroup
	var wins atomic.Int32
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.ledger.Reverse(ctx, f.companyID, f.actorID, in.Movement.ID, "", "double entry"); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.True(t, f.onHand(t).IsZero())
}

func TestLedger_MovementsAreAppendOnly(t *testing.T) {
	f := newLedgerFixture(t, inventory.CostMethodFIFO)
	in := f.receive(t, 1, 1)

	err := f.db.DB.Exec("UPDATE stock_movements SET quantity = 2 WHERE id = ?", in.Movement.ID).Error
	assert.Error(t, err)
	err = f.db.DB.Exec("DELETE FROM stock_movements WHERE id = ?", in.Movement.ID).Error
	assert.Error(t, err)
}

func TestLedger_LockOrCreateIsRaceFree(t *testing.T) {
	f := newLedgerFixture(t, inventory.CostMethodFIFO)
	ctx := context.Background()
	key := inventory.NewBalanceKey(f.companyID, f.warehouse.ID, f.variant.ID, nil, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.scope.Execute(ctx, func(repos appinv.TransactionalRepositories) error {
				b, err := repos.Balances().LockOrCreate(ctx, key)
				if err != nil {
					return err
				}
				b.Apply(decimal.NewFromInt(1))
				return repos.Balances().Save(ctx, b)
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var rows int64
	require.NoError(t, f.db.DB.Model(&inventory.StockBalance{}).Count(&rows).Error)
	assert.Equal(t, int64(1), rows)
	assert.True(t, f.onHand(t).Equal(decimal.NewFromInt(10)))
}

func TestLedger_CountCloseWritesAdjustments(t *testing.T) {
	f := newLedgerFixture(t, inventory.CostMethodFIFO)
	ctx := context.Background()
	counts := appinv.NewCountService(f.repos, f.scope, f.ledger, zap.NewNop())
	f.receive(t, 10, 2)

	session, err := counts.Open(ctx, f.companyID, f.actorID, f.warehouse.ID, "")
	require.NoError(t, err)
	_, err = counts.RecordLines(ctx, f.companyID, session.ID, []appinv.CountLineRequest{
		{VariantID: f.variant.ID, CountedQty: decimal.NewFromInt(7)},
	})
	require.NoError(t, err)

	result, err := counts.Close(ctx, f.companyID, f.actorID, session.ID)
	require.NoError(t, err)
	require.Len(t, result.MovementIDs, 1)
	assert.True(t, f.onHand(t).Equal(decimal.NewFromInt(7)))

	_, err = counts.Close(ctx, f.companyID, f.actorID, session.ID)
	assert.ErrorIs(t, err, shared.ErrSessionAlreadyClosed)
}

func TestLedger_OneOpenAlertPerScope(t *testing.T) {
	f := newLedgerFixture(t, inventory.CostMethodFIFO)
	ctx := context.Background()

	rule, err := inventory.NewReplenishmentRule(f.companyID, f.warehouse.ID, f.variant.ID,
		decimal.NewFromInt(5), decimal.NewFromInt(20), decimal.NewFromInt(10))
	require.NoError(t, err)
	require.NoError(t, f.repos.Rules.Save(ctx, rule))

	first := inventory.NewLowStockAlert(rule, decimal.NewFromInt(2))
	require.NoError(t, f.repos.Alerts.Save(ctx, first))

	err = f.repos.Alerts.Save(ctx, inventory.NewLowStockAlert(rule, decimal.NewFromInt(1)))
	assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)

	first.Resolve(decimal.NewFromInt(8))
	require.NoError(t, f.repos.Alerts.Save(ctx, first))
	require.NoError(t, f.repos.Alerts.Save(ctx, inventory.NewLowStockAlert(rule, decimal.NewFromInt(3))))
}
