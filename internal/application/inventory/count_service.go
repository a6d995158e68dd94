package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// CountService runs physical count sessions and turns their differences into
// count_adjustment movements.
type CountService struct {
	repos   Repositories
	txScope TransactionScope
	ledger  *StockLedger
	logger  *zap.Logger
	audit   AuditSink
	archive ReportArchive
}

// NewCountService creates a new CountService
func NewCountService(repos Repositories, txScope TransactionScope, ledger *StockLedger, logger *zap.Logger) *CountService {
	return &CountService{
		repos:   repos,
		txScope: txScope,
		ledger:  ledger,
		logger:  logger,
		audit:   nopAudit{},
	}
}

// WithAuditSink sets the audit sink
func (s *CountService) WithAuditSink(a AuditSink) *CountService {
	s.audit = a
	return s
}

// WithArchive archives a JSON report of every closed session
func (s *CountService) WithArchive(a ReportArchive) *CountService {
	s.archive = a
	return s
}

// Open creates a session at a stock-holding location and starts it
func (s *CountService) Open(ctx context.Context, companyID, actorID, locationID uuid.UUID, note string) (*CountSessionResponse, error) {
	loc, err := s.repos.Locations.FindByID(ctx, companyID, locationID)
	if err != nil {
		return nil, err
	}
	if !loc.HoldsStock() {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Counts can only be taken at internal locations")
	}

	session, err := inventory.NewCountSession(companyID, locationID, actorID, note)
	if err != nil {
		return nil, err
	}
	if err := session.Start(); err != nil {
		return nil, err
	}
	if err := s.repos.CountSessions.Save(ctx, session); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, AuditEvent{
		CompanyID:  companyID,
		ActorID:    actorID,
		EntityType: inventory.AggregateTypeCountSession,
		EntityID:   session.ID,
		Action:     "open",
		OccurredAt: time.Now(),
	})
	resp := ToCountSessionResponse(session)
	return &resp, nil
}

// RecordLines upserts lines on an open session. Resubmitting a (variant, lot)
// replaces its values. A missing expected quantity is taken from the line's
// earlier snapshot, or from the current on-hand on first record.
func (s *CountService) RecordLines(ctx context.Context, companyID, sessionID uuid.UUID, lines []CountLineRequest) (*CountSessionResponse, error) {
	var session *inventory.CountSession
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		session, err = repos.CountSessions().FindByIDForUpdate(ctx, companyID, sessionID)
		if err != nil {
			return err
		}
		if session.IsClosed() {
			return shared.ErrSessionAlreadyClosed
		}

		for _, in := range lines {
			lotID := derefID(in.LotID)
			expected, err := s.expectedFor(ctx, repos, session, in, lotID)
			if err != nil {
				return err
			}
			if _, err := session.RecordLine(inventory.CountLineInput{
				VariantID:   in.VariantID,
				LotID:       lotID,
				ExpectedQty: expected,
				CountedQty:  in.CountedQty,
				ReasonCode:  in.ReasonCode,
				Note:        in.Note,
			}); err != nil {
				return err
			}
		}
		return repos.CountSessions().Save(ctx, session)
	})
	if err != nil {
		return nil, err
	}
	resp := ToCountSessionResponse(session)
	return &resp, nil
}

func (s *CountService) expectedFor(ctx context.Context, repos TransactionalRepositories, session *inventory.CountSession, in CountLineRequest, lotID uuid.UUID) (decimal.Decimal, error) {
	if in.ExpectedQty != nil {
		return *in.ExpectedQty, nil
	}
	if line := session.FindLine(in.VariantID, lotID); line != nil {
		return line.ExpectedQty, nil
	}
	key := inventory.NewBalanceKey(session.CompanyID, session.LocationID, in.VariantID, in.LotID, nil)
	bal, err := repos.Balances().Find(ctx, key)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return bal.OnHandQty, nil
}

// Close closes the session and appends one count_adjustment per line with a
// non-zero difference, all in one transaction. Closing twice fails with
// SESSION_ALREADY_CLOSED.
func (s *CountService) Close(ctx context.Context, companyID, actorID, sessionID uuid.UUID) (*CloseCountResult, error) {
	ctx, span := startSpan(ctx, "count.close", companyID, attribute.String("session_id", sessionID.String()))
	res, err := s.closeSession(ctx, companyID, actorID, sessionID)
	endSpan(span, err)
	return res, err
}

func (s *CountService) closeSession(ctx context.Context, companyID, actorID, sessionID uuid.UUID) (*CloseCountResult, error) {
	var (
		session  *inventory.CountSession
		outcomes []*appendOutcome
	)
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		outcomes = nil
		session, err = repos.CountSessions().FindByIDForUpdate(ctx, companyID, sessionID)
		if err != nil {
			return err
		}
		adjust, err := session.Close(actorID)
		if err != nil {
			return err
		}

		movementIDs := make([]uuid.UUID, 0, len(adjust))
		for _, line := range adjust {
			out, err := s.ledger.appendInTx(ctx, repos, countAdjustmentDraft(session, line, actorID))
			if err != nil {
				return err
			}
			id := out.movement.ID
			line.MovementID = &id
			movementIDs = append(movementIDs, id)
			outcomes = append(outcomes, out)
		}

		if err := repos.CountSessions().Save(ctx, session); err != nil {
			return err
		}
		return repos.Outbox().Record(ctx, inventory.NewCountClosedEvent(session, movementIDs))
	})
	if err != nil {
		return nil, err
	}

	s.ledger.afterCommit(ctx, outcomes...)
	s.logger.Info("count session closed",
		zap.String("session_id", session.ID.String()),
		zap.String("location_id", session.LocationID.String()),
		zap.Int("lines", len(session.Lines)),
		zap.Int("adjustments", len(outcomes)),
	)
	s.audit.Record(ctx, AuditEvent{
		CompanyID:  companyID,
		ActorID:    actorID,
		EntityType: inventory.AggregateTypeCountSession,
		EntityID:   session.ID,
		Action:     "close",
		After:      len(outcomes),
		OccurredAt: time.Now(),
	})

	result := &CloseCountResult{Session: ToCountSessionResponse(session)}
	for _, out := range outcomes {
		result.MovementIDs = append(result.MovementIDs, out.movement.ID)
	}
	s.archiveReport(context.WithoutCancel(ctx), result)
	return result, nil
}

func (s *CountService) archiveReport(ctx context.Context, result *CloseCountResult) {
	if s.archive == nil {
		return
	}
	key := fmt.Sprintf("counts/%s/%s.json", result.Session.CompanyID, result.Session.ID)
	body, err := json.Marshal(result)
	if err == nil {
		err = s.archive.Put(ctx, key, body)
	}
	if err != nil {
		s.logger.Warn("failed to archive count report", zap.String("session_id", result.Session.ID.String()), zap.Error(err))
	}
}

// CloseMany closes each session in its own transaction and reports per-session
// outcomes instead of stopping at the first failure.
func (s *CountService) CloseMany(ctx context.Context, companyID, actorID uuid.UUID, sessionIDs []uuid.UUID) *CloseManySummary {
	summary := &CloseManySummary{Outcomes: make([]CloseManyOutcome, 0, len(sessionIDs))}
	for _, id := range sessionIDs {
		if ctx.Err() != nil {
			summary.Failed++
			summary.Outcomes = append(summary.Outcomes, CloseManyOutcome{SessionID: id, Error: ctx.Err().Error()})
			continue
		}
		res, err := s.Close(ctx, companyID, actorID, id)
		if err != nil {
			summary.Failed++
			summary.Outcomes = append(summary.Outcomes, CloseManyOutcome{SessionID: id, Error: err.Error()})
			continue
		}
		summary.Closed++
		summary.Outcomes = append(summary.Outcomes, CloseManyOutcome{SessionID: id, Closed: true, MovementIDs: res.MovementIDs})
	}
	return summary
}

// Get returns one session with its lines
func (s *CountService) Get(ctx context.Context, companyID, sessionID uuid.UUID) (*CountSessionResponse, error) {
	session, err := s.repos.CountSessions.FindByID(ctx, companyID, sessionID)
	if err != nil {
		return nil, err
	}
	resp := ToCountSessionResponse(session)
	return &resp, nil
}

// List returns a page of sessions
func (s *CountService) List(ctx context.Context, companyID uuid.UUID, filter CountSessionListFilter) ([]CountSessionResponse, int64, error) {
	f := shared.Filter{Page: filter.Page, PageSize: filter.PageSize}.Normalize()
	rows, total, err := s.repos.CountSessions.List(ctx, companyID, inventory.CountSessionStatus(filter.Status), f)
	if err != nil {
		return nil, 0, err
	}
	out := make([]CountSessionResponse, len(rows))
	for i := range rows {
		out[i] = ToCountSessionResponse(&rows[i])
	}
	return out, total, nil
}

// countAdjustmentDraft books a line's signed difference at the session location
func countAdjustmentDraft(session *inventory.CountSession, line *inventory.CountLine, actorID uuid.UUID) inventory.MovementDraft {
	locationID := session.LocationID
	reason := line.ReasonCode
	if reason == "" {
		reason = inventory.ReasonCountAdjustment
	}
	return inventory.MovementDraft{
		CompanyID:      session.CompanyID,
		Type:           inventory.MovementTypeCountAdjustment,
		DestLocationID: &locationID,
		VariantID:      line.VariantID,
		LotID:          line.LotRef(),
		Quantity:       line.Diff,
		ReasonCode:     reason,
		SourceDocument: "count:" + session.ID.String(),
		Note:           line.AdjustmentNote(),
		ActorID:        actorID,
	}
}
