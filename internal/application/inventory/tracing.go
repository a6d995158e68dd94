package inventory

import (
	"context"

	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// startSpan tags every service span with the owning company.
func startSpan(ctx context.Context, name string, companyID uuid.UUID, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("company_id", companyID.String()))
	return telemetry.StartSpan(ctx, name, telemetry.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) { telemetry.EndSpan(span, err) }
