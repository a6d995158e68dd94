package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// sweepPageSize bounds how many open alerts a sweep loads per page
const sweepPageSize = 500

// AlertService evaluates replenishment rules against balances and keeps the
// open/resolved state of low stock alerts. Alerts are derived and can always
// be recomputed from balances and rules.
type AlertService struct {
	repos   Repositories
	txScope TransactionScope
	logger  *zap.Logger
	metrics Metrics
	audit   AuditSink
}

// NewAlertService creates a new AlertService
func NewAlertService(repos Repositories, txScope TransactionScope, logger *zap.Logger) *AlertService {
	return &AlertService{
		repos:   repos,
		txScope: txScope,
		logger:  logger,
		metrics: nopMetrics{},
		audit:   nopAudit{},
	}
}

// WithMetrics sets the metrics recorder
func (s *AlertService) WithMetrics(m Metrics) *AlertService {
	s.metrics = m
	return s
}

// WithAuditSink sets the audit sink
func (s *AlertService) WithAuditSink(a AuditSink) *AlertService {
	s.audit = a
	return s
}

// EvaluateScope re-evaluates one (location, variant) from current state and
// persists the resulting transition. Available stock is summed across lots and
// containers at the location.
func (s *AlertService) EvaluateScope(ctx context.Context, companyID, locationID, variantID uuid.UUID) (*ScopeEvaluation, error) {
	var eval *ScopeEvaluation
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		rows, err := repos.Balances().ListAt(ctx, companyID, locationID, variantID)
		if err != nil {
			return err
		}
		available := inventory.SumBalances(rows).Available()

		rule, err := repos.Rules().Find(ctx, companyID, locationID, variantID)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return err
		}
		open, err := repos.Alerts().FindOpen(ctx, companyID, locationID, variantID, inventory.AlertTypeLowStock)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return err
		}

		decision := inventory.EvaluateAlert(available, rule, open)
		eval = &ScopeEvaluation{
			LocationID: locationID,
			VariantID:  variantID,
			Available:  available,
			Decision:   string(decision),
		}

		switch decision {
		case inventory.AlertDecisionOpenLowStock:
			alert := inventory.NewLowStockAlert(rule, available)
			if err := repos.Alerts().Save(ctx, alert); err != nil {
				return err
			}
			eval.AlertID = &alert.ID
			return repos.Outbox().Record(ctx, inventory.NewAlertOpenedEvent(alert))
		case inventory.AlertDecisionResolveLowStock:
			open.Resolve(available)
			if err := repos.Alerts().Save(ctx, open); err != nil {
				return err
			}
			eval.AlertID = &open.ID
			return repos.Outbox().Record(ctx, inventory.NewAlertResolvedEvent(open))
		}
		return nil
	})
	if err != nil {
		// A concurrent evaluation already opened the alert for this scope.
		if errors.Is(err, shared.ErrConcurrencyConflict) {
			return &ScopeEvaluation{
				LocationID: locationID,
				VariantID:  variantID,
				Decision:   string(inventory.AlertDecisionNoChange),
			}, nil
		}
		return nil, err
	}

	if eval.Decision != string(inventory.AlertDecisionNoChange) {
		s.metrics.AlertTransition(ctx, companyID, eval.Decision)
		s.logger.Info("stock alert transition",
			zap.String("decision", eval.Decision),
			zap.String("location_id", locationID.String()),
			zap.String("variant_id", variantID.String()),
			zap.String("available", eval.Available.String()),
		)
	}
	return eval, nil
}

type scopeRef struct {
	locationID uuid.UUID
	variantID  uuid.UUID
}

// Sweep re-evaluates every active rule and every open alert of a company.
// Per-scope failures are counted and the sweep continues.
func (s *AlertService) Sweep(ctx context.Context, companyID uuid.UUID) (*SweepSummary, error) {
	ctx, span := startSpan(ctx, "alert.sweep", companyID)
	res, err := s.sweep(ctx, companyID)
	endSpan(span, err)
	return res, err
}

func (s *AlertService) sweep(ctx context.Context, companyID uuid.UUID) (*SweepSummary, error) {
	rules, err := s.repos.Rules.ListActive(ctx, companyID)
	if err != nil {
		return nil, err
	}

	seen := make(map[scopeRef]bool, len(rules))
	scopes := make([]scopeRef, 0, len(rules))
	add := func(ref scopeRef) {
		if !seen[ref] {
			seen[ref] = true
			scopes = append(scopes, ref)
		}
	}
	for i := range rules {
		add(scopeRef{locationID: rules[i].LocationID, variantID: rules[i].VariantID})
	}
	for page := 1; ; page++ {
		alerts, total, err := s.repos.Alerts.List(ctx, companyID, inventory.AlertStatusOpen, shared.Filter{Page: page, PageSize: sweepPageSize})
		if err != nil {
			return nil, err
		}
		for i := range alerts {
			add(scopeRef{locationID: alerts[i].LocationID, variantID: alerts[i].VariantID})
		}
		if len(alerts) == 0 || int64(page*sweepPageSize) >= total {
			break
		}
	}

	summary := &SweepSummary{}
	for _, ref := range scopes {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		eval, err := s.EvaluateScope(ctx, companyID, ref.locationID, ref.variantID)
		summary.Evaluated++
		if err != nil {
			summary.Errors++
			s.logger.Error("alert evaluation failed",
				zap.String("location_id", ref.locationID.String()),
				zap.String("variant_id", ref.variantID.String()),
				zap.Error(err),
			)
			continue
		}
		switch inventory.AlertDecision(eval.Decision) {
		case inventory.AlertDecisionOpenLowStock:
			summary.Opened++
		case inventory.AlertDecisionResolveLowStock:
			summary.Resolved++
		}
	}
	return summary, nil
}

// ListAlerts returns a page of alerts with the suggested reorder quantity
// derived from the current rule and balance.
func (s *AlertService) ListAlerts(ctx context.Context, companyID uuid.UUID, filter AlertListFilter) ([]AlertResponse, int64, error) {
	f := shared.Filter{Page: filter.Page, PageSize: filter.PageSize}.Normalize()
	alerts, total, err := s.repos.Alerts.List(ctx, companyID, inventory.AlertStatus(filter.Status), f)
	if err != nil {
		return nil, 0, err
	}

	out := make([]AlertResponse, len(alerts))
	for i := range alerts {
		a := &alerts[i]
		resp := ToAlertResponse(a)
		if a.IsOpen() {
			rule, err := s.repos.Rules.Find(ctx, companyID, a.LocationID, a.VariantID)
			if err == nil {
				rows, err := s.repos.Balances.ListAt(ctx, companyID, a.LocationID, a.VariantID)
				if err != nil {
					return nil, 0, err
				}
				resp.SuggestedReorder = rule.SuggestedReorderQty(inventory.SumBalances(rows).Available())
				resp.PreferredSupplier = rule.PreferredSupplierID
			} else if !errors.Is(err, shared.ErrNotFound) {
				return nil, 0, err
			}
		}
		out[i] = resp
	}
	return out, total, nil
}

// UpsertRule creates or replaces the rule of a scope and re-evaluates it
func (s *AlertService) UpsertRule(ctx context.Context, companyID, actorID uuid.UUID, req UpsertRuleRequest) (*RuleResponse, error) {
	rule, err := s.repos.Rules.Find(ctx, companyID, req.LocationID, req.VariantID)
	var before *RuleResponse
	switch {
	case err == nil:
		prev := ToRuleResponse(rule)
		before = &prev
		if err := rule.SetThresholds(req.MinQty, req.MaxQty, req.ReorderQty); err != nil {
			return nil, err
		}
	case errors.Is(err, shared.ErrNotFound):
		if _, err := s.repos.Locations.FindByID(ctx, companyID, req.LocationID); err != nil {
			return nil, err
		}
		if _, err := s.repos.Variants.FindByID(ctx, companyID, req.VariantID); err != nil {
			return nil, err
		}
		rule, err = inventory.NewReplenishmentRule(companyID, req.LocationID, req.VariantID, req.MinQty, req.MaxQty, req.ReorderQty)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	rule.PreferredSupplierID = req.PreferredSupplierID
	if req.LeadTimeDays < 0 {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Lead time cannot be negative")
	}
	rule.LeadTimeDays = req.LeadTimeDays
	if req.Active != nil {
		rule.Active = *req.Active
	}
	if err := s.repos.Rules.Save(ctx, rule); err != nil {
		return nil, err
	}

	resp := ToRuleResponse(rule)
	s.audit.Record(ctx, AuditEvent{
		CompanyID:  companyID,
		ActorID:    actorID,
		EntityType: "ReplenishmentRule",
		EntityID:   rule.ID,
		Action:     "upsert",
		Before:     before,
		After:      resp,
		OccurredAt: time.Now(),
	})

	if _, err := s.EvaluateScope(ctx, companyID, rule.LocationID, rule.VariantID); err != nil {
		s.logger.Warn("evaluation after rule change failed",
			zap.String("rule_id", rule.ID.String()),
			zap.Error(err),
		)
	}
	return &resp, nil
}

// ListRules returns a page of rules
func (s *AlertService) ListRules(ctx context.Context, companyID uuid.UUID, page, pageSize int) ([]RuleResponse, int64, error) {
	f := shared.Filter{Page: page, PageSize: pageSize}.Normalize()
	rules, total, err := s.repos.Rules.List(ctx, companyID, f)
	if err != nil {
		return nil, 0, err
	}
	out := make([]RuleResponse, len(rules))
	for i := range rules {
		out[i] = ToRuleResponse(&rules[i])
	}
	return out, total, nil
}
