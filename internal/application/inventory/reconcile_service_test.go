package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/reconciliation"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memIdempotency struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{keys: make(map[string]bool)}
}

func (m *memIdempotency) MarkProcessed(_ context.Context, key string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *memIdempotency) IsProcessed(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys[key], nil
}

func (m *memIdempotency) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

func (m *memIdempotency) Close() error { return nil }

type staticFeed struct {
	feed  *reconciliation.Feed
	err   error
	calls int
}

func (s *staticFeed) FetchFeed(context.Context) (*reconciliation.Feed, error) {
	s.calls++
	return s.feed, s.err
}

func stock(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

type reconcileFixture struct {
	*ledgerFixture
	svc         *ReconcileService
	idempotency *memIdempotency
	archive     *memArchive
	single      *inventory.Variant
	sixPack     *inventory.Variant
}

func newReconcileFixture(t *testing.T) *reconcileFixture {
	f := newLedgerFixture(t, inventory.CostMethodFIFO)
	rf := &reconcileFixture{
		ledgerFixture: f,
		idempotency:   newMemIdempotency(),
		archive:       newMemArchive(),
	}
	rf.single = f.newVariant("MUG-1")
	rf.single.MarketplaceID = "101"
	require.NoError(t, f.repos.Variants.Save(context.Background(), rf.single))
	rf.sixPack = f.newVariant("MUG-6")
	rf.sixPack.EAN = "4006381333931"
	require.NoError(t, f.repos.Variants.Save(context.Background(), rf.sixPack))

	rf.svc = NewReconcileService(f.repos, f.scope, f.ledger, ReconcileConfig{
		TargetLocationID: f.warehouse.ID,
		ArchiveEnabled:   true,
	}, zap.NewNop()).
		WithIdempotencyStore(rf.idempotency).
		WithArchive(rf.archive)
	return rf
}

func mugFeed() *reconciliation.Feed {
	return &reconciliation.Feed{Products: []reconciliation.FeedProduct{{
		MarketplaceID: "100",
		Name:          "Mug",
		Variants: []reconciliation.FeedVariant{
			{MarketplaceID: "101", SKU: "MUG-1", DisplayText: "Mug 1-pack", ReportedStock: stock(40)},
			{MarketplaceID: "106", SKU: "unknown-sku", EAN: "4006381333931", DisplayText: "Mug 6-Pack", ReportedStock: stock(10)},
		},
	}}}
}

func TestReconcileService_CollapsesMultipackAndCorrectsPrimaryRows(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()
	f.receive(f.single, f.warehouse, 25, 2)
	f.receive(f.sixPack, f.warehouse, 5, 9)

	summary, err := f.svc.Reconcile(ctx, f.companyID, f.actorID, ReconcileRequest{Feed: mugFeed()})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.MultipackGroups)
	assert.Equal(t, 2, summary.Writes)
	assert.Equal(t, 0, summary.Errors)
	assert.True(t, f.onHand(f.single, f.warehouse).Equal(qty(40)))
	assert.True(t, f.onHand(f.sixPack, f.warehouse).IsZero())

	require.Len(t, summary.Items, 2)
	assert.True(t, summary.Items[0].Delta.Equal(qty(15)))
	assert.True(t, summary.Items[1].Collapsed)
	assert.True(t, summary.Items[1].Delta.Equal(qty(-5)))
	require.NotNil(t, summary.Items[0].MovementID)

	m, err := f.repos.Movements.FindByID(ctx, f.companyID, *summary.Items[0].MovementID)
	require.NoError(t, err)
	assert.Equal(t, inventory.MovementTypeAdjustment, m.MovementType)
	assert.Equal(t, inventory.ReasonMarketplaceReconcile, m.ReasonCode)
	assert.Equal(t, "reconcile:"+summary.RunID.String(), m.SourceDocument)

	assert.NotEmpty(t, summary.ArchiveKey)
	assert.Contains(t, f.archive.objects, summary.ArchiveKey)
	run, err := f.repos.ReconcileRuns.FindByID(ctx, f.companyID, summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, 2, run.Writes)
	assert.NotNil(t, run.FinishedAt)
	assert.Len(t, f.eventsOfType(inventory.EventTypeReconcileCompleted), 1)
	assert.Empty(t, f.idempotency.keys)
}

func TestReconcileService_RerunIsIdempotent(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()
	f.receive(f.single, f.warehouse, 25, 2)

	_, err := f.svc.Reconcile(ctx, f.companyID, f.actorID, ReconcileRequest{Feed: mugFeed()})
	require.NoError(t, err)
	movements := len(f.store.movements)

	summary, err := f.svc.Reconcile(ctx, f.companyID, f.actorID, ReconcileRequest{Feed: mugFeed()})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Writes)
	assert.Equal(t, 0, summary.Creates)
	assert.Equal(t, 2, summary.Unchanged)
	assert.Len(t, f.store.movements, movements)
}

func TestReconcileService_NegativeGuardLeavesOtherLocationsUntouched(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()
	f.receive(f.single, f.shelf, 50, 1)

	feed := &reconciliation.Feed{Products: []reconciliation.FeedProduct{{
		Name: "Mug",
		Variants: []reconciliation.FeedVariant{
			{MarketplaceID: "101", DisplayText: "Mug", ReportedStock: stock(30)},
		},
	}}}

	summary, err := f.svc.Reconcile(ctx, f.companyID, f.actorID, ReconcileRequest{Feed: feed})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.NegativeGuards)
	assert.Equal(t, 0, summary.Writes)
	assert.Equal(t, 0, summary.Creates)
	require.Len(t, summary.Items, 1)
	assert.True(t, summary.Items[0].Target.IsZero())
	assert.True(t, summary.Items[0].OthersSum.Equal(qty(50)))
	assert.True(t, f.onHand(f.single, f.shelf).Equal(qty(50)))
	assert.True(t, f.onHand(f.single, f.warehouse).IsZero())
}

func TestReconcileService_CreatesMissingPrimaryRow(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()
	f.receive(f.single, f.shelf, 4, 1)

	feed := &reconciliation.Feed{Products: []reconciliation.FeedProduct{{
		Name:     "Mug",
		Variants: []reconciliation.FeedVariant{{MarketplaceID: "101", DisplayText: "Mug", ReportedStock: stock(10)}},
	}}}

	summary, err := f.svc.Reconcile(ctx, f.companyID, f.actorID, ReconcileRequest{Feed: feed})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Creates)
	assert.True(t, f.onHand(f.single, f.warehouse).Equal(qty(6)))
	assert.True(t, f.onHand(f.single, f.shelf).Equal(qty(4)))
}

func TestReconcileService_DryRunPlansWithoutWriting(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()
	f.receive(f.single, f.warehouse, 25, 2)
	before := len(f.store.movements)

	summary, err := f.svc.Reconcile(ctx, f.companyID, f.actorID, ReconcileRequest{Feed: mugFeed(), DryRun: true})
	require.NoError(t, err)

	assert.True(t, summary.DryRun)
	assert.Equal(t, 0, summary.Writes)
	assert.Equal(t, 0, summary.Creates)
	assert.Equal(t, 1, summary.PlannedWrites)
	assert.Equal(t, 1, summary.Unchanged)
	assert.Len(t, f.store.movements, before)
	assert.True(t, f.onHand(f.single, f.warehouse).Equal(qty(25)))
	assert.Empty(t, f.eventsOfType(inventory.EventTypeReconcileCompleted))

	run, err := f.repos.ReconcileRuns.FindByID(ctx, f.companyID, summary.RunID)
	require.NoError(t, err)
	assert.True(t, run.DryRun)
}

func TestReconcileService_CountsUnmappedVariants(t *testing.T) {
	f := newReconcileFixture(t)
	feed := &reconciliation.Feed{Products: []reconciliation.FeedProduct{{
		Name:     "Ghost",
		Variants: []reconciliation.FeedVariant{{MarketplaceID: "999", SKU: "nope", DisplayText: "Ghost", ReportedStock: stock(3)}},
	}}}

	summary, err := f.svc.Reconcile(context.Background(), f.companyID, f.actorID, ReconcileRequest{Feed: feed})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Unmapped)
	assert.Equal(t, ReconcileStatusUnmapped, summary.Items[0].Status)
}

func TestReconcileService_RejectsConcurrentRunOfSameFeed(t *testing.T) {
	f := newReconcileFixture(t)
	feed := mugFeed()
	key := "reconcile:" + f.companyID.String() + ":" + f.warehouse.ID.String() + ":" + feed.Hash()
	f.idempotency.keys[key] = true

	_, err := f.svc.Reconcile(context.Background(), f.companyID, f.actorID, ReconcileRequest{Feed: feed})
	assert.True(t, errors.Is(err, shared.ErrReconcileInProgress))

	// dry runs never claim the key
	_, err = f.svc.Reconcile(context.Background(), f.companyID, f.actorID, ReconcileRequest{Feed: feed, DryRun: true})
	assert.NoError(t, err)
}

func TestReconcileService_FetchesFromSourceWhenNoFeedGiven(t *testing.T) {
	f := newReconcileFixture(t)
	src := &staticFeed{feed: mugFeed()}
	f.svc.WithFeedSource(src)

	summary, err := f.svc.Reconcile(context.Background(), f.companyID, f.actorID, ReconcileRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)
	assert.Equal(t, 2, summary.Processed)

	timeout := errors.New("timeout")
	src.err = timeout
	_, err = f.svc.Reconcile(context.Background(), f.companyID, f.actorID, ReconcileRequest{})
	assert.ErrorIs(t, err, ErrFeedUnavailable)
	assert.ErrorIs(t, err, timeout)
}

func TestReconcileService_RequiresInternalTarget(t *testing.T) {
	f := newReconcileFixture(t)
	_, err := f.svc.Reconcile(context.Background(), f.companyID, f.actorID, ReconcileRequest{
		LocationID: &f.customer.ID,
		Feed:       mugFeed(),
	})
	assert.True(t, errors.Is(err, shared.ErrInvalidInput))
}

func TestReconcileService_RunsAreRecorded(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()
	f.receive(f.single, f.warehouse, 25, 2)

	summary, err := f.svc.Reconcile(ctx, f.companyID, f.actorID, ReconcileRequest{Feed: mugFeed(), DryRun: true})
	require.NoError(t, err)

	runs, total, err := f.svc.ListRuns(ctx, f.companyID, 1, 20)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	assert.Equal(t, summary.RunID, runs[0].ID)
	assert.True(t, runs[0].DryRun)
	assert.NotNil(t, runs[0].FinishedAt)

	run, err := f.svc.GetRun(ctx, f.companyID, summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, summary.FeedHash, run.FeedHash)

	_, err = f.svc.GetRun(ctx, f.companyID, f.warehouse.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
