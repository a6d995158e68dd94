package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/reconciliation"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// FeedSource fetches a marketplace stock snapshot
type FeedSource interface {
	FetchFeed(ctx context.Context) (*reconciliation.Feed, error)
}

// ErrFeedUnavailable wraps failures to load the marketplace feed
var ErrFeedUnavailable = errors.New("marketplace feed unavailable")

// ReportArchive stores JSON reports in object storage
type ReportArchive interface {
	Put(ctx context.Context, key string, body []byte) error
}

// ReconcileConfig configures ReconcileService
type ReconcileConfig struct {
	// TargetLocationID is the internal location whose primary rows are corrected
	TargetLocationID uuid.UUID
	// IdempotencyTTL bounds how long a run holds its feed key
	IdempotencyTTL time.Duration
	// ProgressEvery logs progress after this many items, 0 disables it
	ProgressEvery  int
	ArchiveEnabled bool
}

// Item statuses reported by a reconciliation run
const (
	ReconcileStatusWritten   = "written"
	ReconcileStatusCreated   = "created"
	ReconcileStatusUnchanged = "unchanged"
	ReconcileStatusPlanned   = "planned"
	ReconcileStatusUnmapped  = "unmapped"
	ReconcileStatusError     = "error"
)

// ReconcileRequest starts one reconciliation run
type ReconcileRequest struct {
	// LocationID overrides the configured target location
	LocationID *uuid.UUID
	DryRun     bool
	// Feed is reconciled as given; nil fetches from the FeedSource
	Feed *reconciliation.Feed
}

// ReconcileItem is the per-variant outcome of a run
type ReconcileItem struct {
	Product       string          `json:"product"`
	MarketplaceID string          `json:"marketplace_id,omitempty"`
	SKU           string          `json:"sku,omitempty"`
	EAN           string          `json:"ean,omitempty"`
	DisplayText   string          `json:"display_text"`
	VariantID     *uuid.UUID      `json:"variant_id,omitempty"`
	PackSize      int             `json:"pack_size,omitempty"`
	Multipack     bool            `json:"multipack"`
	Collapsed     bool            `json:"collapsed"`
	Desired       decimal.Decimal `json:"desired"`
	OthersSum     decimal.Decimal `json:"others_sum"`
	Current       decimal.Decimal `json:"current"`
	Target        decimal.Decimal `json:"target"`
	Delta         decimal.Decimal `json:"delta"`
	Action        string          `json:"action"`
	Guarded       bool            `json:"guarded"`
	MovementID    *uuid.UUID      `json:"movement_id,omitempty"`
	Status        string          `json:"status"`
	Error         string          `json:"error,omitempty"`
}

// ReconcileSummary is the batch outcome. Per-item failures are counted, not returned.
type ReconcileSummary struct {
	RunID           uuid.UUID       `json:"run_id"`
	LocationID      uuid.UUID       `json:"location_id"`
	FeedHash        string          `json:"feed_hash"`
	DryRun          bool            `json:"dry_run"`
	Processed       int             `json:"processed"`
	Writes          int             `json:"writes"`
	Creates         int             `json:"creates"`
	PlannedWrites   int             `json:"planned_writes"`
	PlannedCreates  int             `json:"planned_creates"`
	NegativeGuards  int             `json:"negative_guards"`
	Unchanged       int             `json:"unchanged"`
	Unmapped        int             `json:"unmapped"`
	Errors          int             `json:"errors"`
	MultipackGroups int             `json:"multipack_groups"`
	ArchiveKey      string          `json:"archive_key,omitempty"`
	StartedAt       time.Time       `json:"started_at"`
	FinishedAt      time.Time       `json:"finished_at"`
	Items           []ReconcileItem `json:"items"`
}

// ReconcileService aligns internal stock with a marketplace feed. Corrections
// are only ever written as adjustment movements through the ledger.
type ReconcileService struct {
	repos       Repositories
	txScope     TransactionScope
	ledger      *StockLedger
	source      FeedSource
	idempotency shared.IdempotencyStore
	archive     ReportArchive
	metrics     Metrics
	logger      *zap.Logger
	cfg         ReconcileConfig
}

// NewReconcileService creates a new ReconcileService
func NewReconcileService(repos Repositories, txScope TransactionScope, ledger *StockLedger, cfg ReconcileConfig, logger *zap.Logger) *ReconcileService {
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = time.Hour
	}
	return &ReconcileService{
		repos:   repos,
		txScope: txScope,
		ledger:  ledger,
		metrics: nopMetrics{},
		logger:  logger,
		cfg:     cfg,
	}
}

// WithFeedSource sets the marketplace feed source
func (s *ReconcileService) WithFeedSource(src FeedSource) *ReconcileService {
	s.source = src
	return s
}

// WithIdempotencyStore sets the store that guards against concurrent duplicate runs
func (s *ReconcileService) WithIdempotencyStore(store shared.IdempotencyStore) *ReconcileService {
	s.idempotency = store
	return s
}

// WithArchive sets the report archive
func (s *ReconcileService) WithArchive(a ReportArchive) *ReconcileService {
	s.archive = a
	return s
}

// WithMetrics sets the metrics recorder
func (s *ReconcileService) WithMetrics(m Metrics) *ReconcileService {
	s.metrics = m
	return s
}

// Reconcile runs one reconciliation batch. Re-running the same feed against
// unchanged stock writes nothing.
func (s *ReconcileService) Reconcile(ctx context.Context, companyID, actorID uuid.UUID, req ReconcileRequest) (*ReconcileSummary, error) {
	ctx, span := startSpan(ctx, "reconcile.run", companyID, attribute.Bool("dry_run", req.DryRun))
	res, err := s.reconcile(ctx, companyID, actorID, req)
	endSpan(span, err)
	return res, err
}

func (s *ReconcileService) reconcile(ctx context.Context, companyID, actorID uuid.UUID, req ReconcileRequest) (*ReconcileSummary, error) {
	if actorID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Actor ID cannot be empty")
	}
	locationID := s.cfg.TargetLocationID
	if req.LocationID != nil && *req.LocationID != uuid.Nil {
		locationID = *req.LocationID
	}
	if locationID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "A target location is required")
	}
	loc, err := s.repos.Locations.FindByID(ctx, companyID, locationID)
	if err != nil {
		return nil, err
	}
	if !loc.HoldsStock() {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Target location must be internal")
	}

	feed := req.Feed
	if feed == nil {
		if s.source == nil {
			return nil, shared.NewDomainError(shared.CodeInvalidInput, "No feed given and no marketplace source configured")
		}
		feed, err = s.source.FetchFeed(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFeedUnavailable, err)
		}
	}

	hash := feed.Hash()
	if !req.DryRun && s.idempotency != nil {
		key := fmt.Sprintf("reconcile:%s:%s:%s", companyID, locationID, hash)
		claimed, err := s.idempotency.MarkProcessed(ctx, key, s.cfg.IdempotencyTTL)
		if err != nil {
			return nil, fmt.Errorf("claim reconcile run: %w", err)
		}
		if !claimed {
			return nil, shared.ErrReconcileInProgress
		}
		defer func() {
			if err := s.idempotency.Release(context.WithoutCancel(ctx), key); err != nil {
				s.logger.Warn("failed to release reconcile key", zap.String("key", key), zap.Error(err))
			}
		}()
	}

	run := inventory.NewReconcileRun(companyID, locationID, hash, req.DryRun)
	summary := &ReconcileSummary{
		RunID:      run.ID,
		LocationID: locationID,
		FeedHash:   hash,
		DryRun:     req.DryRun,
		StartedAt:  run.StartedAt,
		Items:      make([]ReconcileItem, 0, feed.VariantCount()),
	}

	var outcomes []*appendOutcome
	var runErr error
products:
	for _, product := range feed.Products {
		plan := reconciliation.ComputeDesired(product)
		if plan.Multipack {
			summary.MultipackGroups++
		}
		for _, dq := range plan.Variants {
			if err := ctx.Err(); err != nil {
				runErr = err
				break products
			}
			item, out := s.reconcileVariant(ctx, companyID, actorID, locationID, run.ID, plan, dq, req.DryRun)
			summary.add(item)
			if out != nil {
				outcomes = append(outcomes, out)
			}
			if s.cfg.ProgressEvery > 0 && summary.Processed%s.cfg.ProgressEvery == 0 {
				s.logger.Info("reconcile progress",
					zap.String("run_id", run.ID.String()),
					zap.Int("processed", summary.Processed),
					zap.Int("errors", summary.Errors),
				)
			}
		}
	}

	s.ledger.afterCommit(ctx, outcomes...)
	s.finish(context.WithoutCancel(ctx), run, summary)
	if runErr != nil {
		return summary, runErr
	}
	return summary, nil
}

// reconcileVariant plans and, unless dry-run, applies the correction for one
// feed variant in its own transaction.
func (s *ReconcileService) reconcileVariant(
	ctx context.Context,
	companyID, actorID, locationID, runID uuid.UUID,
	plan reconciliation.ProductPlan,
	dq reconciliation.DesiredQuantity,
	dryRun bool,
) (ReconcileItem, *appendOutcome) {
	item := ReconcileItem{
		Product:       plan.Product.Name,
		MarketplaceID: dq.Variant.MarketplaceID,
		SKU:           dq.Variant.SKU,
		EAN:           dq.Variant.EAN,
		DisplayText:   dq.Variant.DisplayText,
		PackSize:      dq.PackSize,
		Multipack:     plan.Multipack,
		Collapsed:     dq.Collapsed,
		Desired:       dq.Desired,
	}

	variant, err := s.mapVariant(ctx, companyID, dq.Variant)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			item.Status = ReconcileStatusUnmapped
			return item, nil
		}
		item.Status = ReconcileStatusError
		item.Error = err.Error()
		return item, nil
	}
	vid := variant.ID
	item.VariantID = &vid

	var out *appendOutcome
	err = s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		out = nil
		rows, err := repos.Balances().ListByVariant(ctx, companyID, variant.ID)
		if err != nil {
			return err
		}
		primary := inventory.NewBalanceKey(companyID, locationID, variant.ID, nil, nil)
		current, others := splitPrimary(rows, primary)
		corr := reconciliation.PlanCorrection(dq.Desired, current, others)
		item.apply(corr)
		if dryRun || corr.Action == reconciliation.ActionNone {
			return nil
		}

		// re-plan against the locked primary row
		bal, err := repos.Balances().LockOrCreate(ctx, primary)
		if err != nil {
			return err
		}
		locked := bal.OnHandQty
		if current == nil && locked.IsZero() {
			corr = reconciliation.PlanCorrection(dq.Desired, nil, others)
		} else {
			corr = reconciliation.PlanCorrection(dq.Desired, &locked, others)
		}
		item.apply(corr)
		if corr.Action == reconciliation.ActionNone {
			return nil
		}

		out, err = s.ledger.appendInTx(ctx, repos, inventory.MovementDraft{
			CompanyID:      companyID,
			Type:           inventory.MovementTypeAdjustment,
			DestLocationID: &locationID,
			VariantID:      variant.ID,
			Quantity:       corr.Delta,
			ReasonCode:     inventory.ReasonMarketplaceReconcile,
			SourceDocument: "reconcile:" + runID.String(),
			Note:           fmt.Sprintf("desired=%s others=%s target=%s", corr.Desired, corr.OthersSum, corr.Target),
			ActorID:        actorID,
		})
		if err != nil {
			return err
		}
		id := out.movement.ID
		item.MovementID = &id
		return nil
	})
	if err != nil {
		out = nil
		item.MovementID = nil
		item.Status = ReconcileStatusError
		item.Error = err.Error()
		s.logger.Error("reconcile item failed",
			zap.String("run_id", runID.String()),
			zap.String("variant_id", variant.ID.String()),
			zap.Error(err),
		)
		return item, nil
	}

	switch {
	case item.Action == string(reconciliation.ActionNone):
		item.Status = ReconcileStatusUnchanged
	case dryRun:
		item.Status = ReconcileStatusPlanned
	case item.Action == string(reconciliation.ActionCreate):
		item.Status = ReconcileStatusCreated
	default:
		item.Status = ReconcileStatusWritten
	}
	return item, out
}

// mapVariant resolves a feed variant by marketplace id, then SKU, then EAN
func (s *ReconcileService) mapVariant(ctx context.Context, companyID uuid.UUID, fv reconciliation.FeedVariant) (*inventory.Variant, error) {
	lookups := []struct {
		value string
		find  func(context.Context, uuid.UUID, string) (*inventory.Variant, error)
	}{
		{fv.MarketplaceID, s.repos.Variants.FindByMarketplaceID},
		{fv.SKU, s.repos.Variants.FindBySKU},
		{reconciliation.ExtractEAN(fv.EAN, fv.SKU), s.repos.Variants.FindByEAN},
	}
	for _, l := range lookups {
		if l.value == "" {
			continue
		}
		v, err := l.find(ctx, companyID, l.value)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
	}
	return nil, shared.ErrNotFound
}

// splitPrimary separates the primary row from every other stock-holding row
// of the variant. current is nil when the primary row does not exist.
func splitPrimary(rows []inventory.StockBalance, primary inventory.BalanceKey) (*decimal.Decimal, decimal.Decimal) {
	var current *decimal.Decimal
	others := decimal.Zero
	for i := range rows {
		if rows[i].Key() == primary {
			q := rows[i].OnHandQty
			current = &q
			continue
		}
		others = others.Add(rows[i].OnHandQty)
	}
	return current, others
}

func (i *ReconcileItem) apply(c reconciliation.Correction) {
	i.OthersSum = c.OthersSum
	i.Current = c.Current
	i.Target = c.Target
	i.Delta = c.Delta
	i.Action = string(c.Action)
	i.Guarded = c.Guarded
}

func (s *ReconcileSummary) add(item ReconcileItem) {
	s.Processed++
	if item.Guarded {
		s.NegativeGuards++
	}
	switch item.Status {
	case ReconcileStatusWritten:
		s.Writes++
	case ReconcileStatusCreated:
		s.Creates++
	case ReconcileStatusPlanned:
		if item.Action == string(reconciliation.ActionCreate) {
			s.PlannedCreates++
		} else {
			s.PlannedWrites++
		}
	case ReconcileStatusUnchanged:
		s.Unchanged++
	case ReconcileStatusUnmapped:
		s.Unmapped++
	case ReconcileStatusError:
		s.Errors++
	}
	s.Items = append(s.Items, item)
}

// finish persists the run record, archives the report and emits the
// completion event. Failures here are logged; the corrections are already committed.
func (s *ReconcileService) finish(ctx context.Context, run *inventory.ReconcileRun, summary *ReconcileSummary) {
	run.Finish()
	summary.FinishedAt = *run.FinishedAt
	run.Processed = summary.Processed
	run.Writes = summary.Writes
	run.Creates = summary.Creates
	run.NegativeGuards = summary.NegativeGuards
	run.Unchanged = summary.Unchanged
	run.Unmapped = summary.Unmapped
	run.Errors = summary.Errors
	run.MultipackGroups = summary.MultipackGroups

	if s.cfg.ArchiveEnabled && s.archive != nil {
		key := fmt.Sprintf("reconcile/%s/%s/%s.json", run.CompanyID, run.StartedAt.UTC().Format("2006/01/02"), run.ID)
		body, err := json.Marshal(summary)
		if err == nil {
			err = s.archive.Put(ctx, key, body)
		}
		if err != nil {
			s.logger.Warn("failed to archive reconcile report", zap.String("run_id", run.ID.String()), zap.Error(err))
		} else {
			run.ArchiveKey = key
			summary.ArchiveKey = key
		}
	}

	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		if err := repos.ReconcileRuns().Save(ctx, run); err != nil {
			return err
		}
		if run.DryRun {
			return nil
		}
		return repos.Outbox().Record(ctx, inventory.NewReconcileCompletedEvent(run))
	})
	if err != nil {
		s.logger.Error("failed to record reconcile run", zap.String("run_id", run.ID.String()), zap.Error(err))
	}

	for outcome, n := range map[string]int{
		ReconcileStatusWritten:   summary.Writes,
		ReconcileStatusCreated:   summary.Creates,
		ReconcileStatusUnchanged: summary.Unchanged,
		ReconcileStatusUnmapped:  summary.Unmapped,
		ReconcileStatusError:     summary.Errors,
		"guarded":                summary.NegativeGuards,
	} {
		if n > 0 {
			s.metrics.ReconcileOutcome(ctx, run.CompanyID, outcome, n)
		}
	}

	s.logger.Info("reconcile run finished",
		zap.String("run_id", run.ID.String()),
		zap.String("location_id", run.LocationID.String()),
		zap.Bool("dry_run", run.DryRun),
		zap.Int("processed", summary.Processed),
		zap.Int("multipack_groups", summary.MultipackGroups),
		zap.Int("writes", summary.Writes),
		zap.Int("creates", summary.Creates),
		zap.Int("negative_guards", summary.NegativeGuards),
		zap.Int("unmapped", summary.Unmapped),
		zap.Int("errors", summary.Errors),
	)
}

// ListRuns returns a page of past runs, newest first
func (s *ReconcileService) ListRuns(ctx context.Context, companyID uuid.UUID, page, pageSize int) ([]ReconcileRunResponse, int64, error) {
	runs, total, err := s.repos.ReconcileRuns.List(ctx, companyID, shared.Filter{Page: page, PageSize: pageSize}.Normalize())
	if err != nil {
		return nil, 0, err
	}
	out := make([]ReconcileRunResponse, len(runs))
	for i := range runs {
		out[i] = ToReconcileRunResponse(&runs[i])
	}
	return out, total, nil
}

// GetRun returns one past run
func (s *ReconcileService) GetRun(ctx context.Context, companyID, runID uuid.UUID) (*ReconcileRunResponse, error) {
	run, err := s.repos.ReconcileRuns.FindByID(ctx, companyID, runID)
	if err != nil {
		return nil, err
	}
	resp := ToReconcileRunResponse(run)
	return &resp, nil
}
