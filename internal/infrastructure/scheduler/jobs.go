package scheduler

import (
	"context"
	"errors"

	"github.com/erp/stockledger/internal/application/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/ecommerce"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Reconciler runs an external stock reconciliation
type Reconciler interface {
	Reconcile(ctx context.Context, companyID, actorID uuid.UUID, req inventory.ReconcileRequest) (*inventory.ReconcileSummary, error)
}

// AlertSweeper re-evaluates all replenishment rules for a company
type AlertSweeper interface {
	Sweep(ctx context.Context, companyID uuid.UUID) (*inventory.SweepSummary, error)
}

// ReconcileJob reconciles the marketplace feed into the configured location
type ReconcileJob struct {
	reconciler Reconciler
	actorID    uuid.UUID
	locationID *uuid.UUID
	logger     *zap.Logger
}

// NewReconcileJob creates the reconcile executor. A zero locationID uses
// the service's configured target location.
func NewReconcileJob(r Reconciler, actorID, locationID uuid.UUID, logger *zap.Logger) *ReconcileJob {
	j := &ReconcileJob{reconciler: r, actorID: actorID, logger: logger.Named("reconcile_job")}
	if locationID != uuid.Nil {
		j.locationID = &locationID
	}
	return j
}

// Execute implements JobExecutor. Only transport failures are retried.
func (j *ReconcileJob) Execute(ctx context.Context, job *Job) error {
	summary, err := j.reconciler.Reconcile(ctx, job.CompanyID, j.actorID, inventory.ReconcileRequest{
		LocationID: j.locationID,
	})
	if err != nil {
		if errors.Is(err, shared.ErrReconcileInProgress) {
			j.logger.Info("Reconciliation already running, skipping",
				zap.String("company_id", job.CompanyID.String()))
			return nil
		}
		if ecommerce.IsTransient(err) {
			return err
		}
		return Permanent(err)
	}

	j.logger.Info("Reconciliation finished",
		zap.String("company_id", job.CompanyID.String()),
		zap.String("run_id", summary.RunID.String()),
		zap.Int("processed", summary.Processed),
		zap.Int("writes", summary.Writes),
		zap.Int("creates", summary.Creates),
		zap.Int("negative_guards", summary.NegativeGuards),
		zap.Int("unmapped", summary.Unmapped),
		zap.Int("errors", summary.Errors),
	)
	return nil
}

// AlertSweepJob sweeps replenishment rules
type AlertSweepJob struct {
	sweeper AlertSweeper
	logger  *zap.Logger
}

// NewAlertSweepJob creates the sweep executor
func NewAlertSweepJob(s AlertSweeper, logger *zap.Logger) *AlertSweepJob {
	return &AlertSweepJob{sweeper: s, logger: logger.Named("alert_sweep_job")}
}

// Execute implements JobExecutor
func (j *AlertSweepJob) Execute(ctx context.Context, job *Job) error {
	summary, err := j.sweeper.Sweep(ctx, job.CompanyID)
	if err != nil {
		return err
	}
	j.logger.Info("Alert sweep finished",
		zap.String("company_id", job.CompanyID.String()),
		zap.Int("evaluated", summary.Evaluated),
		zap.Int("opened", summary.Opened),
		zap.Int("resolved", summary.Resolved),
		zap.Int("errors", summary.Errors),
	)
	return nil
}
