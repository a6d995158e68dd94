package inventory

import (
	"context"
	"fmt"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ScopeEvaluator re-evaluates the alert state of one (location, variant)
type ScopeEvaluator interface {
	EvaluateScope(ctx context.Context, companyID, locationID, variantID uuid.UUID) (*ScopeEvaluation, error)
}

// StockChangedHandler handles stock.changed events delivered from the outbox
// and re-evaluates the alert state of every touched scope
type StockChangedHandler struct {
	logger    *zap.Logger
	evaluator ScopeEvaluator
}

// NewStockChangedHandler creates a new handler for stock.changed events
func NewStockChangedHandler(evaluator ScopeEvaluator, logger *zap.Logger) *StockChangedHandler {
	return &StockChangedHandler{
		logger:    logger,
		evaluator: evaluator,
	}
}

// EventTypes returns the event types this handler is interested in
func (h *StockChangedHandler) EventTypes() []string {
	return []string{inventory.EventTypeStockChanged}
}

// Handle processes the event
func (h *StockChangedHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	e, ok := event.(*inventory.StockChangedEvent)
	if !ok {
		return fmt.Errorf("unexpected event type: expected *StockChangedEvent, got %T", event)
	}

	var firstErr error
	for _, locationID := range e.LocationIDs() {
		eval, err := h.evaluator.EvaluateScope(ctx, e.CompanyID(), locationID, e.VariantID)
		if err != nil {
			h.logger.Error("Failed to evaluate stock alert",
				zap.String("event_id", e.EventID().String()),
				zap.String("location_id", locationID.String()),
				zap.String("variant_id", e.VariantID.String()),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		h.logger.Debug("Stock alert evaluated",
			zap.String("event_id", e.EventID().String()),
			zap.String("location_id", locationID.String()),
			zap.String("decision", eval.Decision),
		)
	}
	return firstErr
}

var _ shared.EventHandler = (*StockChangedHandler)(nil)
