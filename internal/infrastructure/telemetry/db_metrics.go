package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBMetricsConfig configures query and pool metrics
type DBMetricsConfig struct {
	SlowQueryThreshold time.Duration
	PoolStatsInterval  time.Duration
}

// DBMetrics records query latency, slow queries and connection pool usage.
type DBMetrics struct {
	queryTotal     *Counter
	queryDuration  *Histogram
	slowQueryTotal *Counter
	poolConns      *Gauge
	poolConnsMax   *Gauge

	config   DBMetricsConfig
	logger   *zap.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

type dbMetricsStartKey struct{}

// NewDBMetrics creates the instruments on meter
func NewDBMetrics(meter metric.Meter, cfg DBMetricsConfig, logger *zap.Logger) (*DBMetrics, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SlowQueryThreshold <= 0 {
		cfg.SlowQueryThreshold = 200 * time.Millisecond
	}
	if cfg.PoolStatsInterval <= 0 {
		cfg.PoolStatsInterval = 15 * time.Second
	}
	m := &DBMetrics{config: cfg, logger: logger, stopCh: make(chan struct{})}

	var err error
	if m.queryTotal, err = NewCounter(meter, "db_query_total", "Database queries by operation", "{query}"); err != nil {
		return nil, err
	}
	if m.queryDuration, err = NewHistogram(meter, "db_query_duration_seconds", "Database query latency", "s", DBDurationBuckets); err != nil {
		return nil, err
	}
	if m.slowQueryTotal, err = NewCounter(meter, "db_slow_query_total", "Queries slower than the threshold", "{query}"); err != nil {
		return nil, err
	}
	if m.poolConns, err = NewGauge(meter, "db_pool_connections", "Pool connections by state", "{connection}"); err != nil {
		return nil, err
	}
	if m.poolConnsMax, err = NewGauge(meter, "db_pool_connections_max", "Maximum open connections", "{connection}"); err != nil {
		return nil, err
	}
	return m, nil
}

// Register installs query callbacks on db
func (m *DBMetrics) Register(db *gorm.DB) error {
	before := func(tx *gorm.DB) {
		if tx.Statement.Context != nil {
			tx.Statement.Context = context.WithValue(tx.Statement.Context, dbMetricsStartKey{}, time.Now())
		}
	}
	after := func(tx *gorm.DB) {
		ctx := tx.Statement.Context
		if ctx == nil {
			return
		}
		start, ok := ctx.Value(dbMetricsStartKey{}).(time.Time)
		if !ok {
			return
		}
		m.RecordQuery(ctx, operationOf(tx), tx.Statement.Table, time.Since(start), tx.Error)
	}
	return registerAround(db, "stock_metrics", before, after)
}

// RecordQuery records one query observation
func (m *DBMetrics) RecordQuery(ctx context.Context, operation, table string, d time.Duration, err error) {
	status := "ok"
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		status = "error"
	}
	attrs := []attribute.KeyValue{
		attribute.String("operation", operation),
		attribute.String("table", table),
		attribute.String("status", status),
	}
	m.queryTotal.Inc(ctx, attrs...)
	m.queryDuration.RecordDuration(ctx, d, attrs[:2]...)
	if d > m.config.SlowQueryThreshold {
		m.slowQueryTotal.Inc(ctx, attrs[:2]...)
	}
}

// operationOf classifies a statement by its leading SQL keyword
func operationOf(tx *gorm.DB) string {
	sqlText := strings.TrimSpace(tx.Statement.SQL.String())
	if i := strings.IndexAny(sqlText, " \n\t"); i > 0 {
		sqlText = sqlText[:i]
	}
	switch op := strings.ToUpper(sqlText); op {
	case "SELECT", "INSERT", "UPDATE", "DELETE":
		return strings.ToLower(op)
	case "":
		return "unknown"
	default:
		return "other"
	}
}

// StartPoolStatsCollection samples sqlDB.Stats until ctx ends or Stop
func (m *DBMetrics) StartPoolStatsCollection(ctx context.Context, sqlDB *sql.DB) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.config.PoolStatsInterval)
		defer ticker.Stop()
		for {
			m.recordPoolStats(ctx, sqlDB.Stats())
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
			}
		}
	}()
}

func (m *DBMetrics) recordPoolStats(ctx context.Context, s sql.DBStats) {
	m.poolConns.Record(ctx, int64(s.InUse), attribute.String("state", "in_use"))
	m.poolConns.Record(ctx, int64(s.Idle), attribute.String("state", "idle"))
	m.poolConnsMax.Record(ctx, int64(s.MaxOpenConnections))
}

// Stop ends pool sampling
func (m *DBMetrics) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}
