package event

import (
	"context"

	"github.com/erp/stockledger/internal/domain/shared"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

const handledEventsMetric = "stockledger.events.handled"

// Outcomes recorded on the handled events counter
const (
	OutcomeProcessed = "processed"
	OutcomeDuplicate = "duplicate"
	OutcomeFailed    = "failed"
)

// IdempotentHandler wraps an EventHandler so that an event redelivered by the
// outbox reaches the wrapped handler once per handler name.
type IdempotentHandler struct {
	name    string
	inner   shared.EventHandler
	store   shared.IdempotencyStore
	config  shared.IdempotencyConfig
	logger  *zap.Logger
	handled metric.Int64Counter
}

type IdempotentHandlerOption func(*IdempotentHandler)

func WithIdempotencyConfig(config shared.IdempotencyConfig) IdempotentHandlerOption {
	return func(h *IdempotentHandler) { h.config = config }
}

// WithHandlerMeter counts handled events by handler and outcome
func WithHandlerMeter(meter metric.Meter) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		counter, err := meter.Int64Counter(handledEventsMetric,
			metric.WithDescription("Outbox events delivered to a handler"),
			metric.WithUnit("{event}"),
		)
		if err != nil {
			h.logger.Warn("handled events counter unavailable", zap.Error(err))
			return
		}
		h.handled = counter
	}
}

// NewIdempotentHandler wraps inner. name scopes the claim keys so two
// handlers of the same event keep separate claims.
func NewIdempotentHandler(
	name string,
	inner shared.EventHandler,
	store shared.IdempotencyStore,
	logger *zap.Logger,
	opts ...IdempotentHandlerOption,
) *IdempotentHandler {
	noopCounter, _ := noop.NewMeterProvider().Meter("").Int64Counter(handledEventsMetric)
	h := &IdempotentHandler{
		name:    name,
		inner:   inner,
		store:   store,
		config:  shared.DefaultIdempotencyConfig(),
		logger:  logger.With(zap.String("handler", name)),
		handled: noopCounter,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *IdempotentHandler) EventTypes() []string {
	return h.inner.EventTypes()
}

// Handle claims the event key and runs the wrapped handler. A failed run
// releases the claim so the outbox retry reaches the handler again. When the
// store itself fails the event is processed anyway.
func (h *IdempotentHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	if !h.config.Enabled {
		return h.run(ctx, event, "", false)
	}

	key := claimKey(h.name, event)
	claimed, err := h.store.MarkProcessed(ctx, key, h.config.TTL)
	if err != nil {
		h.logger.Warn("idempotency check failed, processing anyway",
			zap.String("event_id", event.EventID().String()), zap.Error(err))
	} else if !claimed {
		h.record(ctx, OutcomeDuplicate)
		h.logger.Debug("duplicate event skipped", zap.String("event_id", event.EventID().String()))
		return nil
	}
	return h.run(ctx, event, key, claimed)
}

func (h *IdempotentHandler) run(ctx context.Context, event shared.DomainEvent, key string, claimed bool) error {
	err := h.inner.Handle(ctx, event)
	if err == nil {
		h.record(ctx, OutcomeProcessed)
		return nil
	}

	h.record(ctx, OutcomeFailed)
	h.logger.Error("event handler failed",
		zap.String("event_id", event.EventID().String()),
		zap.String("event_type", event.EventType()),
		zap.Error(err),
	)
	if claimed {
		if relErr := h.store.Release(context.WithoutCancel(ctx), key); relErr != nil {
			h.logger.Warn("failed to release idempotency key", zap.String("key", key), zap.Error(relErr))
		}
	}
	return err
}

func (h *IdempotentHandler) record(ctx context.Context, outcome string) {
	h.handled.Add(ctx, 1, metric.WithAttributes(
		attribute.String("handler", h.name),
		attribute.String("outcome", outcome),
	))
}

// claimKey is "event:<handler>:<event id>"
func claimKey(handler string, event shared.DomainEvent) string {
	return "event:" + handler + ":" + event.EventID().String()
}

var _ shared.EventHandler = (*IdempotentHandler)(nil)
