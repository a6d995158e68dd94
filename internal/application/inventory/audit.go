package inventory

import (
	"context"

	"go.uber.org/zap"
)

// ZapAuditSink writes audit events as structured log lines
type ZapAuditSink struct {
	logger *zap.Logger
}

// NewZapAuditSink creates an audit sink on top of a zap logger
func NewZapAuditSink(logger *zap.Logger) *ZapAuditSink {
	return &ZapAuditSink{logger: logger.Named("audit")}
}

// Record logs the audit event
func (s *ZapAuditSink) Record(_ context.Context, e AuditEvent) {
	s.logger.Info("audit",
		zap.String("company_id", e.CompanyID.String()),
		zap.String("actor_id", e.ActorID.String()),
		zap.String("entity_type", e.EntityType),
		zap.String("entity_id", e.EntityID.String()),
		zap.String("action", e.Action),
		zap.Any("before", e.Before),
		zap.Any("after", e.After),
		zap.Time("occurred_at", e.OccurredAt),
	)
}

var _ AuditSink = (*ZapAuditSink)(nil)
