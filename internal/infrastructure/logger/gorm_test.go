package logger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newObservedGormLogger(level gormlogger.LogLevel, opts ...GormLoggerOption) (*GormLogger, *observer.ObservedLogs) {
	core, recorded := observer.New(zapcore.DebugLevel)
	return NewGormLogger(zap.New(core), level, opts...), recorded
}

func sqlFn(sql string, rows int64) func() (string, int64) {
	return func() (string, int64) { return sql, rows }
}

func TestGormLogger_Options(t *testing.T) {
	l, _ := newObservedGormLogger(gormlogger.Info,
		WithSlowThreshold(time.Second),
		WithNotFoundLogging(true),
		WithMaxSQLLength(16),
	)
	assert.Equal(t, time.Second, l.slowThreshold)
	assert.True(t, l.logNotFound)
	assert.Equal(t, "INSERT INTO stoc...(truncated)", l.truncate("INSERT INTO stock_movements VALUES"))

	switched, ok := l.LogMode(gormlogger.Error).(*GormLogger)
	require.True(t, ok)
	assert.Equal(t, gormlogger.Error, switched.level)
	assert.Equal(t, gormlogger.Info, l.level)
}

func TestGormLogger_Trace(t *testing.T) {
	t.Run("silent", func(t *testing.T) {
		l, recorded := newObservedGormLogger(gormlogger.Silent)
		l.Trace(context.Background(), time.Now(), sqlFn("SELECT 1", 1), errors.New("boom"))
		assert.Zero(t, recorded.Len())
	})

	t.Run("error carries context ids", func(t *testing.T) {
		l, recorded := newObservedGormLogger(gormlogger.Error)
		ctx := WithCompanyID(context.Background(), "company-1")
		l.Trace(ctx, time.Now(), sqlFn("UPDATE stock_balances", 0), errors.New("boom"))

		require.Equal(t, 1, recorded.Len())
		entry := recorded.All()[0]
		assert.Equal(t, zapcore.ErrorLevel, entry.Level)
		assert.Equal(t, "company-1", entry.ContextMap()["company_id"])
		assert.Equal(t, "UPDATE stock_balances", entry.ContextMap()["sql"])
		assert.Equal(t, "UPDATE", entry.ContextMap()["op"])
	})

	t.Run("record not found ignored", func(t *testing.T) {
		l, recorded := newObservedGormLogger(gormlogger.Error)
		l.Trace(context.Background(), time.Now(), sqlFn("SELECT", 0), gorm.ErrRecordNotFound)
		assert.Zero(t, recorded.Len())

		verbose, recorded := newObservedGormLogger(gormlogger.Error, WithNotFoundLogging(true))
		verbose.Trace(context.Background(), time.Now(), sqlFn("SELECT", 0), gorm.ErrRecordNotFound)
		assert.Equal(t, 1, recorded.Len())
	})

	t.Run("unique violation is a warning", func(t *testing.T) {
		l, recorded := newObservedGormLogger(gormlogger.Error)
		err := fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey)
		l.Trace(context.Background(), time.Now(), sqlFn("INSERT INTO stock_movements", 0), err)

		require.Equal(t, 1, recorded.Len())
		assert.Equal(t, zapcore.WarnLevel, recorded.All()[0].Level)
	})

	t.Run("slow query", func(t *testing.T) {
		l, recorded := newObservedGormLogger(gormlogger.Warn, WithSlowThreshold(time.Millisecond))
		l.Trace(context.Background(), time.Now().Add(-time.Second), sqlFn("SELECT * FROM valuation_layers", 3), nil)

		require.Equal(t, 1, recorded.Len())
		assert.Contains(t, recorded.All()[0].Message, "SLOW SQL")
	})

	t.Run("info logs queries at debug", func(t *testing.T) {
		l, recorded := newObservedGormLogger(gormlogger.Info)
		l.Trace(context.Background(), time.Now(), sqlFn("SELECT 1", 1), nil)

		require.Equal(t, 1, recorded.Len())
		assert.Equal(t, zapcore.DebugLevel, recorded.All()[0].Level)
	})
}

func TestMapGormLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, MapGormLogLevel("silent"))
	assert.Equal(t, gormlogger.Error, MapGormLogLevel("error"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel("warn"))
	assert.Equal(t, gormlogger.Info, MapGormLogLevel("debug"))
	assert.Equal(t, gormlogger.Info, MapGormLogLevel("INFO"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel("other"))
}
