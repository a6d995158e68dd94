package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// InventoryStats supplies per-company gauges sampled on an interval
type InventoryStats interface {
	OpenAlertCounts(ctx context.Context) (map[uuid.UUID]int64, error)
	NegativeBalanceCounts(ctx context.Context) (map[uuid.UUID]int64, error)
}

// InventoryMetrics records ledger, reconciliation and alert counters and
// samples open alerts and negative balances.
type InventoryMetrics struct {
	movements          *Counter
	negativeBalances   *Counter
	insufficientLayers *Counter
	reconcileItems     *Counter
	alertTransitions   *Counter
	openAlerts         *Gauge
	negativeRows       *Gauge

	logger   *zap.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewInventoryMetrics creates the instruments on meter
func NewInventoryMetrics(meter metric.Meter, logger *zap.Logger) (*InventoryMetrics, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &InventoryMetrics{logger: logger, stopCh: make(chan struct{})}

	var err error
	if m.movements, err = NewCounter(meter, "stock_movements_total", "Stock movements appended to the ledger", "{movement}"); err != nil {
		return nil, err
	}
	if m.negativeBalances, err = NewCounter(meter, "stock_negative_balance_total", "Movements that left an internal balance below zero", "{event}"); err != nil {
		return nil, err
	}
	if m.insufficientLayers, err = NewCounter(meter, "stock_insufficient_layers_total", "Outbound movements costed past the last open layer", "{event}"); err != nil {
		return nil, err
	}
	if m.reconcileItems, err = NewCounter(meter, "stock_reconcile_items_total", "Reconciliation items by outcome", "{item}"); err != nil {
		return nil, err
	}
	if m.alertTransitions, err = NewCounter(meter, "stock_alert_transitions_total", "Alert evaluator decisions", "{decision}"); err != nil {
		return nil, err
	}
	if m.openAlerts, err = NewGauge(meter, "stock_alerts_open", "Open low-stock alerts", "{alert}"); err != nil {
		return nil, err
	}
	if m.negativeRows, err = NewGauge(meter, "stock_balances_negative", "Internal balance rows with negative on-hand", "{balance}"); err != nil {
		return nil, err
	}
	return m, nil
}

func companyAttr(companyID uuid.UUID) attribute.KeyValue {
	return attribute.String("company_id", companyID.String())
}

// MovementAppended counts one movement by type
func (m *InventoryMetrics) MovementAppended(ctx context.Context, companyID uuid.UUID, movementType string) {
	m.movements.Inc(ctx, companyAttr(companyID), attribute.String("movement_type", movementType))
}

// NegativeBalance counts a balance that went below zero
func (m *InventoryMetrics) NegativeBalance(ctx context.Context, companyID uuid.UUID) {
	m.negativeBalances.Inc(ctx, companyAttr(companyID))
}

// InsufficientLayers counts an issue that exhausted the open layers
func (m *InventoryMetrics) InsufficientLayers(ctx context.Context, companyID uuid.UUID) {
	m.insufficientLayers.Inc(ctx, companyAttr(companyID))
}

// ReconcileOutcome adds n items with the given outcome
func (m *InventoryMetrics) ReconcileOutcome(ctx context.Context, companyID uuid.UUID, outcome string, n int) {
	if n <= 0 {
		return
	}
	m.reconcileItems.Add(ctx, int64(n), companyAttr(companyID), attribute.String("outcome", outcome))
}

// AlertTransition counts one evaluator decision
func (m *InventoryMetrics) AlertTransition(ctx context.Context, companyID uuid.UUID, decision string) {
	m.alertTransitions.Inc(ctx, companyAttr(companyID), attribute.String("decision", decision))
}

// StartPeriodicCollection samples stats every interval until Stop
func (m *InventoryMetrics) StartPeriodicCollection(ctx context.Context, stats InventoryStats, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		m.Collect(ctx, stats)
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.Collect(ctx, stats)
			}
		}
	}()
}

// Collect samples the gauges once
func (m *InventoryMetrics) Collect(ctx context.Context, stats InventoryStats) {
	alerts, err := stats.OpenAlertCounts(ctx)
	if err != nil {
		m.logger.Warn("Failed to collect open alert counts", zap.Error(err))
	} else {
		for companyID, n := range alerts {
			m.openAlerts.Record(ctx, n, companyAttr(companyID))
		}
	}

	negatives, err := stats.NegativeBalanceCounts(ctx)
	if err != nil {
		m.logger.Warn("Failed to collect negative balance counts", zap.Error(err))
		return
	}
	for companyID, n := range negatives {
		m.negativeRows.Record(ctx, n, companyAttr(companyID))
	}
}

// Stop ends periodic collection
func (m *InventoryMetrics) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}
