package handler

import (
	"context"
	"time"

	eventapp "github.com/erp/stockledger/internal/application/event"
	inventoryapp "github.com/erp/stockledger/internal/application/inventory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type MockMovementService struct {
	mock.Mock
}

func (m *MockMovementService) Append(ctx context.Context, companyID, actorID uuid.UUID, req inventoryapp.AppendMovementRequest) (*inventoryapp.AppendResult, error) {
	args := m.Called(ctx, companyID, actorID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventoryapp.AppendResult), args.Error(1)
}

func (m *MockMovementService) Reverse(ctx context.Context, companyID, actorID, movementID uuid.UUID, reason, note string) (*inventoryapp.AppendResult, error) {
	args := m.Called(ctx, companyID, actorID, movementID, reason, note)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventoryapp.AppendResult), args.Error(1)
}

func (m *MockMovementService) Get(ctx context.Context, companyID, movementID uuid.UUID) (*inventoryapp.MovementResponse, error) {
	args := m.Called(ctx, companyID, movementID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventoryapp.MovementResponse), args.Error(1)
}

func (m *MockMovementService) List(ctx context.Context, companyID uuid.UUID, filter inventoryapp.MovementListFilter) ([]inventoryapp.MovementResponse, int64, error) {
	args := m.Called(ctx, companyID, filter)
	return args.Get(0).([]inventoryapp.MovementResponse), args.Get(1).(int64), args.Error(2)
}

type MockBalanceReader struct {
	mock.Mock
}

func (m *MockBalanceReader) Get(ctx context.Context, companyID uuid.UUID, q inventoryapp.BalanceQuery) (*inventoryapp.BalanceResponse, error) {
	args := m.Called(ctx, companyID, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventoryapp.BalanceResponse), args.Error(1)
}

func (m *MockBalanceReader) ListByVariant(ctx context.Context, companyID, variantID uuid.UUID) ([]inventoryapp.BalanceResponse, error) {
	args := m.Called(ctx, companyID, variantID)
	return args.Get(0).([]inventoryapp.BalanceResponse), args.Error(1)
}

func (m *MockBalanceReader) ListByLocation(ctx context.Context, companyID, locationID uuid.UUID, page, pageSize int) ([]inventoryapp.BalanceResponse, int64, error) {
	args := m.Called(ctx, companyID, locationID, page, pageSize)
	return args.Get(0).([]inventoryapp.BalanceResponse), args.Get(1).(int64), args.Error(2)
}

func (m *MockBalanceReader) VerifyReplay(ctx context.Context, companyID, variantID uuid.UUID) (*inventoryapp.ReplayReport, error) {
	args := m.Called(ctx, companyID, variantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventoryapp.ReplayReport), args.Error(1)
}

func (m *MockBalanceReader) RebuildFromLedger(ctx context.Context, companyID, actorID, variantID uuid.UUID) (*inventoryapp.ReplayReport, error) {
	args := m.Called(ctx, companyID, actorID, variantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventoryapp.ReplayReport), args.Error(1)
}

type MockValuationReader struct {
	mock.Mock
}

func (m *MockValuationReader) Valuation(ctx context.Context, companyID uuid.UUID, method string) (*inventoryapp.ValuationResponse, error) {
	args := m.Called(ctx, companyID, method)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventoryapp.ValuationResponse), args.Error(1)
}

func (m *MockValuationReader) ValuationByVariant(ctx context.Context, companyID uuid.UUID, method string) (*inventoryapp.ValuationResponse, error) {
	args := m.Called(ctx, companyID, method)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventoryapp.ValuationResponse), args.Error(1)
}

func (m *MockValuationReader) Layers(ctx context.Context, companyID uuid.UUID, q inventoryapp.LayerQuery) ([]inventoryapp.LayerResponse, error) {
	args := m.Called(ctx, companyID, q)
	return args.Get(0).([]inventoryapp.LayerResponse), args.Error(1)
}

func (m *MockValuationReader) Replay(ctx context.Context, companyID, variantID uuid.UUID) (*inventoryapp.ValuationReplayResponse, error) {
	args := m.Called(ctx, companyID, variantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventoryapp.ValuationReplayResponse), args.Error(1)
}

type MockCountSessions struct {
	mock.Mock
}

func (m *MockCountSessions) Open(ctx context.Context, companyID, actorID, locationID uuid.UUID, note string) (*inventoryapp.CountSessionResponse, error) {
	args := m.Called(ctx, companyID, actorID, locationID, note)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventoryapp.CountSessionResponse), args.Error(1)
}

func (m *MockCountSessions) RecordLines(ctx context.Context, companyID, sessionID uuid.UUID, lines []inventoryapp.CountLineRequest) (*inventoryapp.CountSessionResponse, error) {
	args := m.Called(ctx, companyID, sessionID, lines)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventoryapp.CountSessionResponse), args.Error(1)
}

func (m *MockCountSessions) Close(ctx context.Context, companyID, actorID, sessionID uuid.UUID) (*inventoryapp.CloseCountResult, error) {
	args := m.Called(ctx, companyID, actorID, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventoryapp.CloseCountResult), args.Error(1)
}

func (m *MockCountSessions) CloseMany(ctx context.Context, companyID, actorID uuid.UUID, sessionIDs []uuid.UUID) *inventoryapp.CloseManySummary {
	args := m.Called(ctx, companyID, actorID, sessionIDs)
	return args.Get(0).(*inventoryapp.CloseManySummary)
}

func (m *MockCountSessions) Get(ctx context.Context, companyID, sessionID uuid.UUID) (*inventoryapp.CountSessionResponse, error) {
	args := m.Called(ctx, companyID, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventoryapp.CountSessionResponse), args.Error(1)
}

func (m *MockCountSessions) List(ctx context.Context, companyID uuid.UUID, filter inventoryapp.CountSessionListFilter) ([]inventoryapp.CountSessionResponse, int64, error) {
	args := m.Called(ctx, companyID, filter)
	return args.Get(0).([]inventoryapp.CountSessionResponse), args.Get(1).(int64), args.Error(2)
}

type MockAlertRules struct {
	mock.Mock
}

func (m *MockAlertRules) EvaluateScope(ctx context.Context, companyID, locationID, variantID uuid.UUID) (*inventoryapp.ScopeEvaluation, error) {
	args := m.Called(ctx, companyID, locationID, variantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventoryapp.ScopeEvaluation), args.Error(1)
}

func (m *MockAlertRules) Sweep(ctx context.Context, companyID uuid.UUID) (*inventoryapp.SweepSummary, error) {
	args := m.Called(ctx, companyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventoryapp.SweepSummary), args.Error(1)
}

func (m *MockAlertRules) ListAlerts(ctx context.Context, companyID uuid.UUID, filter inventoryapp.AlertListFilter) ([]inventoryapp.AlertResponse, int64, error) {
	args := m.Called(ctx, companyID, filter)
	return args.Get(0).([]inventoryapp.AlertResponse), args.Get(1).(int64), args.Error(2)
}

func (m *MockAlertRules) UpsertRule(ctx context.Context, companyID, actorID uuid.UUID, req inventoryapp.UpsertRuleRequest) (*inventoryapp.RuleResponse, error) {
	args := m.Called(ctx, companyID, actorID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventoryapp.RuleResponse), args.Error(1)
}

func (m *MockAlertRules) ListRules(ctx context.Context, companyID uuid.UUID, page, pageSize int) ([]inventoryapp.RuleResponse, int64, error) {
	args := m.Called(ctx, companyID, page, pageSize)
	return args.Get(0).([]inventoryapp.RuleResponse), args.Get(1).(int64), args.Error(2)
}

type MockReconciler struct {
	mock.Mock
}

func (m *MockReconciler) Reconcile(ctx context.Context, companyID, actorID uuid.UUID, req inventoryapp.ReconcileRequest) (*inventoryapp.ReconcileSummary, error) {
	args := m.Called(ctx, companyID, actorID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventoryapp.ReconcileSummary), args.Error(1)
}

func (m *MockReconciler) ListRuns(ctx context.Context, companyID uuid.UUID, page, pageSize int) ([]inventoryapp.ReconcileRunResponse, int64, error) {
	args := m.Called(ctx, companyID, page, pageSize)
	return args.Get(0).([]inventoryapp.ReconcileRunResponse), args.Get(1).(int64), args.Error(2)
}

func (m *MockReconciler) GetRun(ctx context.Context, companyID, runID uuid.UUID) (*inventoryapp.ReconcileRunResponse, error) {
	args := m.Called(ctx, companyID, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventoryapp.ReconcileRunResponse), args.Error(1)
}

type MockReportLinker struct {
	mock.Mock
}

func (m *MockReportLinker) DownloadURL(ctx context.Context, key string) (string, time.Time, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Get(1).(time.Time), args.Error(2)
}

type MockDeadLetters struct {
	mock.Mock
}

func (m *MockDeadLetters) List(ctx context.Context, companyID uuid.UUID, page, pageSize int) ([]eventapp.OutboxEntryResponse, int64, error) {
	args := m.Called(ctx, companyID, page, pageSize)
	return args.Get(0).([]eventapp.OutboxEntryResponse), args.Get(1).(int64), args.Error(2)
}

func (m *MockDeadLetters) Get(ctx context.Context, companyID, id uuid.UUID) (*eventapp.OutboxEntryResponse, error) {
	args := m.Called(ctx, companyID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*eventapp.OutboxEntryResponse), args.Error(1)
}

func (m *MockDeadLetters) Retry(ctx context.Context, companyID, id uuid.UUID) (*eventapp.OutboxEntryResponse, error) {
	args := m.Called(ctx, companyID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*eventapp.OutboxEntryResponse), args.Error(1)
}

func (m *MockDeadLetters) RetryAll(ctx context.Context, companyID uuid.UUID) (int, error) {
	args := m.Called(ctx, companyID)
	return args.Int(0), args.Error(1)
}

func (m *MockDeadLetters) Stats(ctx context.Context) (*eventapp.OutboxStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*eventapp.OutboxStats), args.Error(1)
}
