package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ctxKey int

const (
	loggerKey ctxKey = iota
	scopeKey
)

// scope carries the correlation identifiers of one unit of work. It is copied
// on every change so parent contexts never observe a child's identifiers.
type scope struct {
	requestID string
	companyID string
	actorID   string
}

func (s scope) fields() []zap.Field {
	fields := make([]zap.Field, 0, 3)
	if s.requestID != "" {
		fields = append(fields, zap.String("request_id", s.requestID))
	}
	if s.companyID != "" {
		fields = append(fields, zap.String("company_id", s.companyID))
	}
	if s.actorID != "" {
		fields = append(fields, zap.String("actor_id", s.actorID))
	}
	return fields
}

func scopeOf(ctx context.Context) scope {
	s, _ := ctx.Value(scopeKey).(scope)
	return s
}

// WithContext stores the base logger. Identifiers are attached when the logger
// is read back, never baked into the stored value.
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the stored logger enriched with the trace and scope
// identifiers of ctx, or a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	base, ok := ctx.Value(loggerKey).(*zap.Logger)
	if !ok || base == nil {
		return zap.NewNop()
	}
	return enrich(ctx, base)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	s := scopeOf(ctx)
	s.requestID = requestID
	return context.WithValue(ctx, scopeKey, s)
}

func WithCompanyID(ctx context.Context, companyID string) context.Context {
	s := scopeOf(ctx)
	s.companyID = companyID
	return context.WithValue(ctx, scopeKey, s)
}

func WithActorID(ctx context.Context, actorID string) context.Context {
	s := scopeOf(ctx)
	s.actorID = actorID
	return context.WithValue(ctx, scopeKey, s)
}

func GetRequestID(ctx context.Context) string { return scopeOf(ctx).requestID }

func GetCompanyID(ctx context.Context) string { return scopeOf(ctx).companyID }

func GetActorID(ctx context.Context) string { return scopeOf(ctx).actorID }

// GetTraceID returns the active span's trace ID, or "" without a valid span
func GetTraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}

// GetSpanID returns the active span ID, or "" without a valid span
func GetSpanID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.SpanID().String()
}

// enrich returns logger unchanged when ctx carries nothing to add.
func enrich(ctx context.Context, logger *zap.Logger) *zap.Logger {
	fields := scopeOf(ctx).fields()
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}

// ContextLogger logs with the trace, request, company and actor identifiers
// found in its context.
//
//	logger.L(ctx).Info("movement appended", zap.String("movement_id", id))
type ContextLogger struct {
	ctx    context.Context
	logger *zap.Logger
}

// L returns a ContextLogger backed by the logger stored in ctx
func L(ctx context.Context) *ContextLogger {
	base, _ := ctx.Value(loggerKey).(*zap.Logger)
	return WithLogger(ctx, base)
}

// WithLogger returns a ContextLogger backed by an explicit logger
func WithLogger(ctx context.Context, logger *zap.Logger) *ContextLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContextLogger{ctx: ctx, logger: logger}
}

// With creates a child ContextLogger with additional fields.
func (cl *ContextLogger) With(fields ...zap.Field) *ContextLogger {
	return &ContextLogger{ctx: cl.ctx, logger: cl.logger.With(fields...)}
}

func (cl *ContextLogger) Debug(msg string, fields ...zap.Field) {
	cl.Zap().Debug(msg, fields...)
}

func (cl *ContextLogger) Info(msg string, fields ...zap.Field) {
	cl.Zap().Info(msg, fields...)
}

func (cl *ContextLogger) Warn(msg string, fields ...zap.Field) {
	cl.Zap().Warn(msg, fields...)
}

func (cl *ContextLogger) Error(msg string, fields ...zap.Field) {
	cl.Zap().Error(msg, fields...)
}

// Zap returns the enriched zap.Logger for APIs that take one directly
func (cl *ContextLogger) Zap() *zap.Logger {
	return enrich(cl.ctx, cl.logger)
}

func (cl *ContextLogger) Sugar() *zap.SugaredLogger {
	return cl.Zap().Sugar()
}
