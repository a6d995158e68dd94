package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// BalanceService answers balance queries and checks balances against the ledger.
// It never applies deltas; only StockLedger does.
type BalanceService struct {
	repos   Repositories
	txScope TransactionScope
	logger  *zap.Logger
	audit   AuditSink
}

// NewBalanceService creates a new BalanceService
func NewBalanceService(repos Repositories, txScope TransactionScope, logger *zap.Logger) *BalanceService {
	return &BalanceService{
		repos:   repos,
		txScope: txScope,
		logger:  logger,
		audit:   nopAudit{},
	}
}

// WithAuditSink sets the audit sink used by repairs
func (s *BalanceService) WithAuditSink(a AuditSink) *BalanceService {
	s.audit = a
	return s
}

// Get returns the balance of one scope. An unseen scope is a zero balance,
// not an error.
func (s *BalanceService) Get(ctx context.Context, companyID uuid.UUID, q BalanceQuery) (*BalanceResponse, error) {
	key := inventory.NewBalanceKey(companyID, q.LocationID, q.VariantID, q.LotID, q.ContainerID)
	bal, err := s.repos.Balances.Find(ctx, key)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
		bal = inventory.NewStockBalance(key)
		bal.Version = 0
		bal.UpdatedAt = time.Time{}
	}
	resp := ToBalanceResponse(bal)
	return &resp, nil
}

// ListByVariant returns every balance row of a variant
func (s *BalanceService) ListByVariant(ctx context.Context, companyID, variantID uuid.UUID) ([]BalanceResponse, error) {
	rows, err := s.repos.Balances.ListByVariant(ctx, companyID, variantID)
	if err != nil {
		return nil, err
	}
	return ToBalanceResponses(rows), nil
}

// ListByLocation returns a page of balance rows at a location
func (s *BalanceService) ListByLocation(ctx context.Context, companyID, locationID uuid.UUID, page, pageSize int) ([]BalanceResponse, int64, error) {
	filter := shared.Filter{Page: page, PageSize: pageSize}.Normalize()
	rows, total, err := s.repos.Balances.ListByLocation(ctx, companyID, locationID, filter)
	if err != nil {
		return nil, 0, err
	}
	return ToBalanceResponses(rows), total, nil
}

// VerifyReplay sums the ledger effects of a variant per scope and reports
// every scope whose stored on-hand disagrees.
func (s *BalanceService) VerifyReplay(ctx context.Context, companyID, variantID uuid.UUID) (*ReplayReport, error) {
	movements, err := s.repos.Movements.ListForVariant(ctx, companyID, variantID)
	if err != nil {
		return nil, err
	}
	stored, err := s.repos.Balances.ListByVariant(ctx, companyID, variantID)
	if err != nil {
		return nil, err
	}
	holds, err := locationHolds(ctx, s.repos.Locations, companyID, movements)
	if err != nil {
		return nil, err
	}

	replayed := inventory.ReplayBalances(movements, func(id uuid.UUID) bool { return holds[id] })
	diffs := inventory.CompareReplay(stored, replayed)
	return newReplayReport(variantID, len(movements), diffs), nil
}

// RebuildFromLedger rewrites stored on-hand from the ledger for a variant.
// Rows are locked in key order; reserved quantities are left alone.
func (s *BalanceService) RebuildFromLedger(ctx context.Context, companyID, actorID, variantID uuid.UUID) (*ReplayReport, error) {
	var report *ReplayReport
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		movements, err := repos.Movements().ListForVariant(ctx, companyID, variantID)
		if err != nil {
			return err
		}
		stored, err := repos.Balances().ListByVariant(ctx, companyID, variantID)
		if err != nil {
			return err
		}
		holds, err := locationHolds(ctx, repos.Locations(), companyID, movements)
		if err != nil {
			return err
		}

		replayed := inventory.ReplayBalances(movements, func(id uuid.UUID) bool { return holds[id] })
		diffs := inventory.CompareReplay(stored, replayed)
		report = newReplayReport(variantID, len(movements), diffs)

		keys := make([]inventory.BalanceKey, len(diffs))
		want := make(map[inventory.BalanceKey]decimal.Decimal, len(diffs))
		for i, d := range diffs {
			keys[i] = d.Key
			want[d.Key] = d.Replayed
		}
		for _, key := range inventory.SortBalanceKeys(keys) {
			bal, err := repos.Balances().LockOrCreate(ctx, key)
			if err != nil {
				return err
			}
			bal.Apply(want[key].Sub(bal.OnHandQty))
			if err := repos.Balances().Save(ctx, bal); err != nil {
				return err
			}
			report.Repaired++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if report.Repaired > 0 {
		s.logger.Warn("balances rebuilt from ledger",
			zap.String("company_id", companyID.String()),
			zap.String("variant_id", variantID.String()),
			zap.Int("repaired", report.Repaired),
		)
		s.audit.Record(ctx, AuditEvent{
			CompanyID:  companyID,
			ActorID:    actorID,
			EntityType: "StockBalance",
			EntityID:   variantID,
			Action:     "rebuild",
			Before:     report.Discrepancies,
			OccurredAt: time.Now(),
		})
	}
	return report, nil
}

func newReplayReport(variantID uuid.UUID, movementCount int, diffs []inventory.ReplayDiscrepancy) *ReplayReport {
	report := &ReplayReport{
		VariantID:     variantID,
		Movements:     movementCount,
		Consistent:    len(diffs) == 0,
		Discrepancies: make([]DiscrepancyResponse, 0, len(diffs)),
	}
	for _, d := range diffs {
		report.Discrepancies = append(report.Discrepancies, DiscrepancyResponse{
			LocationID:  d.Key.LocationID,
			LotID:       optionalID(d.Key.LotID),
			ContainerID: optionalID(d.Key.ContainerID),
			Stored:      d.Stored,
			Replayed:    d.Replayed,
		})
	}
	return report
}

// locationHolds resolves which of the locations referenced by movements hold stock
func locationHolds(ctx context.Context, repo inventory.LocationRepository, companyID uuid.UUID, movements []inventory.StockMovement) (map[uuid.UUID]bool, error) {
	seen := make(map[uuid.UUID]bool)
	var ids []uuid.UUID
	for i := range movements {
		for _, id := range movements[i].LocationIDs() {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	holds := make(map[uuid.UUID]bool, len(ids))
	if len(ids) == 0 {
		return holds, nil
	}
	locs, err := repo.FindByIDs(ctx, companyID, ids)
	if err != nil {
		return nil, err
	}
	for i := range locs {
		holds[locs[i].ID] = locs[i].HoldsStock()
	}
	return holds, nil
}
