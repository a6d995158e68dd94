package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap/zaptest"
)

func newTestMeter(t *testing.T) (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	return reader, mp
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sumFor(t *testing.T, data metricdata.Aggregation, key, value string) int64 {
	t.Helper()
	sum, ok := data.(metricdata.Sum[int64])
	require.True(t, ok, "expected int64 sum, got %T", data)
	var total int64
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			total += dp.Value
		}
	}
	return total
}

func TestInventoryMetrics_Counters(t *testing.T) {
	reader, mp := newTestMeter(t)
	m, err := NewInventoryMetrics(mp.Meter("test"), zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx := context.Background()
	company := uuid.New()
	m.MovementAppended(ctx, company, "receipt")
	m.MovementAppended(ctx, company, "receipt")
	m.MovementAppended(ctx, company, "issue")
	m.NegativeBalance(ctx, company)
	m.InsufficientLayers(ctx, company)
	m.ReconcileOutcome(ctx, company, "write", 4)
	m.ReconcileOutcome(ctx, company, "unmapped", 0)
	m.AlertTransition(ctx, company, "open")

	got := collect(t, reader)
	assert.Equal(t, int64(2), sumFor(t, got["stock_movements_total"], "movement_type", "receipt"))
	assert.Equal(t, int64(1), sumFor(t, got["stock_movements_total"], "movement_type", "issue"))
	assert.Equal(t, int64(1), sumFor(t, got["stock_negative_balance_total"], "company_id", company.String()))
	assert.Equal(t, int64(1), sumFor(t, got["stock_insufficient_layers_total"], "company_id", company.String()))
	assert.Equal(t, int64(4), sumFor(t, got["stock_reconcile_items_total"], "outcome", "write"))
	assert.Equal(t, int64(0), sumFor(t, got["stock_reconcile_items_total"], "outcome", "unmapped"))
	assert.Equal(t, int64(1), sumFor(t, got["stock_alert_transitions_total"], "decision", "open"))
}

type fakeStats struct {
	alerts    map[uuid.UUID]int64
	negatives map[uuid.UUID]int64
	err       error
}

func (f fakeStats) OpenAlertCounts(context.Context) (map[uuid.UUID]int64, error) {
	return f.alerts, f.err
}

func (f fakeStats) NegativeBalanceCounts(context.Context) (map[uuid.UUID]int64, error) {
	return f.negatives, f.err
}

func gaugeFor(t *testing.T, data metricdata.Aggregation, company uuid.UUID) int64 {
	t.Helper()
	g, ok := data.(metricdata.Gauge[int64])
	require.True(t, ok, "expected int64 gauge, got %T", data)
	for _, dp := range g.DataPoints {
		if v, ok := dp.Attributes.Value("company_id"); ok && v.AsString() == company.String() {
			return dp.Value
		}
	}
	t.Fatalf("no data point for %s", company)
	return 0
}

func TestInventoryMetrics_Collect(t *testing.T) {
	reader, mp := newTestMeter(t)
	m, err := NewInventoryMetrics(mp.Meter("test"), nil)
	require.NoError(t, err)

	a, b := uuid.New(), uuid.New()
	m.Collect(context.Background(), fakeStats{
		alerts:    map[uuid.UUID]int64{a: 3, b: 1},
		negatives: map[uuid.UUID]int64{a: 2},
	})

	got := collect(t, reader)
	assert.Equal(t, int64(3), gaugeFor(t, got["stock_alerts_open"], a))
	assert.Equal(t, int64(1), gaugeFor(t, got["stock_alerts_open"], b))
	assert.Equal(t, int64(2), gaugeFor(t, got["stock_balances_negative"], a))
}

func TestInventoryMetrics_CollectErrorsAreLogged(t *testing.T) {
	reader, mp := newTestMeter(t)
	m, err := NewInventoryMetrics(mp.Meter("test"), zaptest.NewLogger(t))
	require.NoError(t, err)

	m.Collect(context.Background(), fakeStats{err: errors.New("db down")})

	got := collect(t, reader)
	_, ok := got["stock_alerts_open"]
	assert.False(t, ok)
}

func TestInventoryMetrics_PeriodicCollectionStops(t *testing.T) {
	_, mp := newTestMeter(t)
	m, err := NewInventoryMetrics(mp.Meter("test"), nil)
	require.NoError(t, err)

	m.StartPeriodicCollection(context.Background(), fakeStats{}, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		m.Stop()
		m.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}
