package persistence

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newMovement(t *testing.T, companyID, variantID uuid.UUID, dest uuid.UUID, qty int64, occurred time.Time) *inventory.StockMovement {
	t.Helper()
	m, err := inventory.NewStockMovement(inventory.MovementDraft{
		CompanyID:      companyID,
		Type:           inventory.MovementTypeInbound,
		DestLocationID: &dest,
		VariantID:      variantID,
		Quantity:       decimal.NewFromInt(qty),
		ActorID:        uuid.New(),
		OccurredAt:     occurred,
	})
	require.NoError(t, err)
	return m
}

func TestGormMovementRepository(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewGormMovementRepository(db)
	ctx := context.Background()
	companyID, variantID, dest := uuid.New(), uuid.New(), uuid.New()
	base := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

	first := newMovement(t, companyID, variantID, dest, 10, base)
	second := newMovement(t, companyID, variantID, dest, 3, base.Add(time.Hour))
	other := newMovement(t, uuid.New(), variantID, dest, 7, base)
	for _, m := range []*inventory.StockMovement{second, first, other} {
		require.NoError(t, repo.Create(ctx, m))
	}

	t.Run("find is company scoped", func(t *testing.T) {
		got, err := repo.FindByID(ctx, companyID, first.ID)
		require.NoError(t, err)
		assert.True(t, got.Quantity.Equal(decimal.NewFromInt(10)))

		_, err = repo.FindByID(ctx, companyID, other.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("history is in occurred order", func(t *testing.T) {
		history, err := repo.ListForVariant(ctx, companyID, variantID)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, first.ID, history[0].ID)
		assert.Equal(t, second.ID, history[1].ID)
	})

	t.Run("list pages newest first", func(t *testing.T) {
		page, total, err := repo.List(ctx, companyID, inventory.MovementFilter{
			Filter: shared.Filter{Page: 1, PageSize: 1},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		require.Len(t, page, 1)
		assert.Equal(t, second.ID, page[0].ID)
	})

	t.Run("list filters by location and window", func(t *testing.T) {
		from := base.Add(30 * time.Minute)
		page, total, err := repo.List(ctx, companyID, inventory.MovementFilter{
			LocationID: &dest,
			From:       &from,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		assert.Equal(t, second.ID, page[0].ID)
	})

	t.Run("second correction of a movement conflicts", func(t *testing.T) {
		draft, err := first.ReversalDraft(uuid.New(), "", "")
		require.NoError(t, err)
		rev1, err := inventory.NewStockMovement(draft)
		require.NoError(t, err)
		rev2, err := inventory.NewStockMovement(draft)
		require.NoError(t, err)

		require.NoError(t, repo.Create(ctx, rev1))
		err = repo.Create(ctx, rev2)
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)

		found, err := repo.FindReversalOf(ctx, companyID, first.ID)
		require.NoError(t, err)
		assert.Equal(t, rev1.ID, found.ID)
	})
}

func TestGormBalanceRepository(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewGormBalanceRepository(db)
	ctx := context.Background()
	key := inventory.NewBalanceKey(uuid.New(), uuid.New(), uuid.New(), nil, nil)

	_, err := repo.Find(ctx, key)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	bal, err := repo.LockOrCreate(ctx, key)
	require.NoError(t, err)
	assert.True(t, bal.OnHandQty.IsZero())

	bal.Apply(decimal.NewFromInt(12))
	require.NoError(t, repo.Save(ctx, bal))

	again, err := repo.LockOrCreate(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, bal.ID, again.ID, "existing row is reused")
	assert.True(t, again.OnHandQty.Equal(decimal.NewFromInt(12)))

	lot := uuid.New()
	lotKey := inventory.NewBalanceKey(key.CompanyID, key.LocationID, key.VariantID, &lot, nil)
	lotBal, err := repo.LockOrCreate(ctx, lotKey)
	require.NoError(t, err)
	lotBal.Apply(decimal.NewFromInt(3))
	require.NoError(t, repo.Save(ctx, lotBal))

	rows, err := repo.ListAt(ctx, key.CompanyID, key.LocationID, key.VariantID)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.True(t, inventory.SumBalances(rows).OnHandQty.Equal(decimal.NewFromInt(15)))

	byVariant, err := repo.ListByVariant(ctx, key.CompanyID, key.VariantID)
	require.NoError(t, err)
	assert.Len(t, byVariant, 2)

	page, total, err := repo.ListByLocation(ctx, key.CompanyID, key.LocationID, shared.Filter{
		Filters: map[string]any{"sort_by": "on_hand_qty"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.True(t, page[0].OnHandQty.LessThan(page[1].OnHandQty), "sorted by quantity ascending")
}

func TestGormBalanceRepository_LockOrCreateSQL(t *testing.T) {
	db, mock, _ := setupMockDB(t)
	repo := NewGormBalanceRepository(db)
	key := inventory.NewBalanceKey(uuid.New(), uuid.New(), uuid.New(), nil, nil)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "stock_balances"`) + `.*ON CONFLICT .*DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "stock_balances"`) + `.*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "company_id", "location_id", "variant_id", "lot_id", "container_id", "on_hand_qty", "reserved_qty", "version"}).
			AddRow(uuid.New(), key.CompanyID, key.LocationID, key.VariantID, uuid.Nil, uuid.Nil, "4", "0", 3))

	bal, err := repo.LockOrCreate(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, bal.OnHandQty.Equal(decimal.NewFromInt(4)))
	assert.Equal(t, 3, bal.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormLayerRepository_LockScopeTakesBookLockFirst(t *testing.T) {
	db, mock, _ := setupMockDB(t)
	repo := NewGormLayerRepository(db)
	companyID, variantID, locationID := uuid.New(), uuid.New(), uuid.New()
	key := "valuation:" + companyID.String() + ":" + variantID.String() + ":" + locationID.String() + ":fifo"

	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`)).
		WithArgs(key).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "valuation_layers"`) + `.*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "company_id", "variant_id", "location_id", "method", "sequence"}))

	layers, err := repo.LockScope(context.Background(), companyID, variantID, locationID, inventory.CostMethodFIFO)
	require.NoError(t, err)
	assert.Empty(t, layers)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormLayerRepository(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewGormLayerRepository(db)
	ctx := context.Background()
	companyID, variantID, locationID := uuid.New(), uuid.New(), uuid.New()

	book := inventory.NewCostBook(inventory.CostMethodFIFO, companyID, variantID, locationID, nil)
	_, err := book.Receive(uuid.New(), decimal.NewFromInt(5), decimal.NewFromInt(10))
	require.NoError(t, err)
	_, err = book.Receive(uuid.New(), decimal.NewFromInt(5), decimal.NewFromInt(12))
	require.NoError(t, err)
	_, err = book.Receive(uuid.New(), decimal.NewFromInt(5), decimal.NewFromInt(14))
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, book.NewLayers()...))

	loaded, err := repo.LockScope(ctx, companyID, variantID, locationID, inventory.CostMethodFIFO)
	require.NoError(t, err)
	require.Len(t, loaded, 3)

	// exhaust the first layer
	book = inventory.NewCostBook(inventory.CostMethodFIFO, companyID, variantID, locationID, loaded)
	res, err := book.Issue(decimal.NewFromInt(5))
	require.NoError(t, err)
	assert.True(t, res.Cost.Equal(decimal.NewFromInt(50)))
	require.NoError(t, repo.Update(ctx, book.TouchedLayers()...))

	t.Run("lock scope skips exhausted history", func(t *testing.T) {
		open, err := repo.LockScope(ctx, companyID, variantID, locationID, inventory.CostMethodFIFO)
		require.NoError(t, err)
		require.Len(t, open, 2)
		assert.Equal(t, int64(2), open[0].Sequence)
		assert.Equal(t, int64(3), open[1].Sequence)
	})

	t.Run("lock scope keeps the newest layer even when exhausted", func(t *testing.T) {
		loaded, err := repo.LockScope(ctx, companyID, variantID, locationID, inventory.CostMethodFIFO)
		require.NoError(t, err)
		book := inventory.NewCostBook(inventory.CostMethodFIFO, companyID, variantID, locationID, loaded)
		_, err = book.Issue(decimal.NewFromInt(10))
		require.NoError(t, err)
		require.NoError(t, repo.Update(ctx, book.TouchedLayers()...))

		remaining, err := repo.LockScope(ctx, companyID, variantID, locationID, inventory.CostMethodFIFO)
		require.NoError(t, err)
		require.Len(t, remaining, 1)
		assert.Equal(t, int64(3), remaining[0].Sequence)
		assert.True(t, remaining[0].UnitCost.Equal(decimal.NewFromInt(14)))
	})

	t.Run("duplicate sequence is a conflict", func(t *testing.T) {
		stale := inventory.NewCostBook(inventory.CostMethodFIFO, companyID, variantID, locationID, nil)
		_, err := stale.Receive(uuid.New(), decimal.NewFromInt(1), decimal.NewFromInt(1))
		require.NoError(t, err)
		err = repo.Create(ctx, stale.NewLayers()...)
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	})

	t.Run("sums", func(t *testing.T) {
		total, err := repo.SumRemainingCost(ctx, companyID, inventory.CostMethodFIFO)
		require.NoError(t, err)
		assert.True(t, total.IsZero(), "everything was issued")

		empty, err := repo.SumRemainingCost(ctx, uuid.New(), inventory.CostMethodWAC)
		require.NoError(t, err)
		assert.True(t, empty.IsZero())

		rows, err := repo.SumByVariant(ctx, companyID, inventory.CostMethodFIFO)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, variantID, rows[0].VariantID)
	})

	t.Run("list filters open layers", func(t *testing.T) {
		all, err := repo.List(ctx, companyID, inventory.LayerFilter{VariantID: &variantID})
		require.NoError(t, err)
		assert.Len(t, all, 3)

		open, err := repo.List(ctx, companyID, inventory.LayerFilter{OnlyOpen: true})
		require.NoError(t, err)
		assert.Empty(t, open)
	})
}

func TestGormLocationAndVariantRepositories(t *testing.T) {
	db := setupSQLiteDB(t)
	ctx := context.Background()
	companyID := uuid.New()
	locations := NewGormLocationRepository(db)
	variants := NewGormVariantRepository(db)

	wh, err := inventory.NewLocation(companyID, nil, "Main", "WH", inventory.LocationUsageInternal)
	require.NoError(t, err)
	cust, err := inventory.NewLocation(companyID, nil, "Customers", "CUST", inventory.LocationUsageCustomer)
	require.NoError(t, err)
	require.NoError(t, locations.Save(ctx, wh))
	require.NoError(t, locations.Save(ctx, cust))

	dup, err := inventory.NewLocation(companyID, nil, "Again", "WH", inventory.LocationUsageInternal)
	require.NoError(t, err)
	assert.ErrorIs(t, locations.Save(ctx, dup), shared.ErrConcurrencyConflict)

	internal, err := locations.ListInternal(ctx, companyID)
	require.NoError(t, err)
	require.Len(t, internal, 1)
	assert.Equal(t, wh.ID, internal[0].ID)

	found, err := locations.FindByIDs(ctx, companyID, []uuid.UUID{wh.ID, cust.ID, uuid.New()})
	require.NoError(t, err)
	assert.Len(t, found, 2)

	none, err := locations.FindByIDs(ctx, companyID, nil)
	require.NoError(t, err)
	assert.Empty(t, none)

	v, err := inventory.NewVariant(companyID, uuid.New(), "TEA-3PK", "Green tea 3 pack")
	require.NoError(t, err)
	v.EAN = "4006381333931"
	v.MarketplaceID = "wc-991"
	require.NoError(t, variants.Save(ctx, v))

	bySKU, err := variants.FindBySKU(ctx, companyID, "TEA-3PK")
	require.NoError(t, err)
	assert.Equal(t, v.ID, bySKU.ID)

	byEAN, err := variants.FindByEAN(ctx, companyID, "4006381333931")
	require.NoError(t, err)
	assert.Equal(t, v.ID, byEAN.ID)

	byMarket, err := variants.FindByMarketplaceID(ctx, companyID, "wc-991")
	require.NoError(t, err)
	assert.Equal(t, v.ID, byMarket.ID)

	_, err = variants.FindByEAN(ctx, companyID, "")
	assert.ErrorIs(t, err, shared.ErrNotFound)
	_, err = variants.FindBySKU(ctx, uuid.New(), "TEA-3PK")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGormCountSessionRepository(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewGormCountSessionRepository(db)
	ctx := context.Background()
	companyID, locationID, variantID := uuid.New(), uuid.New(), uuid.New()

	s, err := inventory.NewCountSession(companyID, locationID, uuid.New(), "cycle count")
	require.NoError(t, err)
	require.NoError(t, s.Start())
	_, err = s.RecordLine(inventory.CountLineInput{
		VariantID:   variantID,
		ExpectedQty: decimal.NewFromInt(10),
		CountedQty:  decimal.NewFromInt(8),
	})
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, s))

	loaded, err := repo.FindByIDForUpdate(ctx, companyID, s.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Lines, 1)
	assert.True(t, loaded.Lines[0].Diff.Equal(decimal.NewFromInt(-2)))

	_, err = loaded.RecordLine(inventory.CountLineInput{
		VariantID:   variantID,
		ExpectedQty: decimal.NewFromInt(10),
		CountedQty:  decimal.NewFromInt(9),
	})
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, loaded))

	again, err := repo.FindByID(ctx, companyID, s.ID)
	require.NoError(t, err)
	require.Len(t, again.Lines, 1, "recounting a line updates it in place")
	assert.True(t, again.Lines[0].CountedQty.Equal(decimal.NewFromInt(9)))

	list, total, err := repo.List(ctx, companyID, inventory.CountSessionStatusInProgress, shared.DefaultFilter())
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, list, 1)

	_, total, err = repo.List(ctx, companyID, inventory.CountSessionStatusClosed, shared.DefaultFilter())
	require.NoError(t, err)
	assert.Zero(t, total)

	_, err = repo.FindByID(ctx, uuid.New(), s.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGormRuleAndAlertRepositories(t *testing.T) {
	db := setupSQLiteDB(t)
	ctx := context.Background()
	rules := NewGormReplenishmentRuleRepository(db)
	alerts := NewGormStockAlertRepository(db)
	companyID, locationID, variantID := uuid.New(), uuid.New(), uuid.New()

	rule, err := inventory.NewReplenishmentRule(companyID, locationID, variantID, decimal.NewFromInt(5), decimal.NewFromInt(20), decimal.NewFromInt(15))
	require.NoError(t, err)
	require.NoError(t, rules.Save(ctx, rule))

	repost, err := inventory.NewReplenishmentRule(companyID, locationID, variantID, decimal.NewFromInt(8), decimal.NewFromInt(20), decimal.NewFromInt(15))
	require.NoError(t, err)
	require.NoError(t, rules.Save(ctx, repost))
	assert.Equal(t, rule.ID, repost.ID, "reposting a scope keeps its id")

	got, err := rules.Find(ctx, companyID, locationID, variantID)
	require.NoError(t, err)
	assert.True(t, got.MinQty.Equal(decimal.NewFromInt(8)))

	active, err := rules.ListActive(ctx, companyID)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	first := inventory.NewLowStockAlert(got, decimal.NewFromInt(2))
	require.NoError(t, alerts.Save(ctx, first))

	t.Run("second open alert for the scope conflicts", func(t *testing.T) {
		second := inventory.NewLowStockAlert(got, decimal.NewFromInt(1))
		assert.ErrorIs(t, alerts.Save(ctx, second), shared.ErrConcurrencyConflict)
	})

	open, err := alerts.FindOpen(ctx, companyID, locationID, variantID, inventory.AlertTypeLowStock)
	require.NoError(t, err)
	assert.Equal(t, first.ID, open.ID)

	open.Resolve(decimal.NewFromInt(12))
	require.NoError(t, alerts.Save(ctx, open))
	_, err = alerts.FindOpen(ctx, companyID, locationID, variantID, inventory.AlertTypeLowStock)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	t.Run("a resolved alert does not block a new one", func(t *testing.T) {
		next := inventory.NewLowStockAlert(got, decimal.NewFromInt(0))
		require.NoError(t, alerts.Save(ctx, next))

		_, total, err := alerts.List(ctx, companyID, "", shared.DefaultFilter())
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)

		_, total, err = alerts.List(ctx, companyID, inventory.AlertStatusResolved, shared.DefaultFilter())
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
	})
}

func TestGormReconcileRunRepository(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewGormReconcileRunRepository(db)
	ctx := context.Background()
	companyID := uuid.New()

	older := inventory.NewReconcileRun(companyID, uuid.New(), "aaa", false)
	older.StartedAt = older.StartedAt.Add(-time.Hour)
	newer := inventory.NewReconcileRun(companyID, uuid.New(), "bbb", true)
	require.NoError(t, repo.Save(ctx, older))
	require.NoError(t, repo.Save(ctx, newer))

	newer.Writes = 4
	newer.Finish()
	require.NoError(t, repo.Save(ctx, newer))

	got, err := repo.FindByID(ctx, companyID, newer.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Writes)
	assert.NotNil(t, got.FinishedAt)

	runs, total, err := repo.List(ctx, companyID, shared.DefaultFilter())
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, newer.ID, runs[0].ID)
}

func TestTranslateErrors(t *testing.T) {
	assert.NoError(t, translateWriteError(nil))
	assert.ErrorIs(t, translateWriteError(gorm.ErrDuplicatedKey), shared.ErrConcurrencyConflict)
	assert.ErrorIs(t, translateWriteError(&pgconn.PgError{Code: "23505"}), shared.ErrConcurrencyConflict)

	other := errors.New("disk full")
	assert.Equal(t, other, translateWriteError(other))

	assert.ErrorIs(t, translateReadError(gorm.ErrRecordNotFound), shared.ErrNotFound)
	assert.Equal(t, other, translateReadError(other))
}
