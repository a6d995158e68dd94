package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CompanyProvider lists the companies a trigger should submit jobs for
type CompanyProvider interface {
	Companies(ctx context.Context) ([]uuid.UUID, error)
}

// StaticCompanies is a CompanyProvider over a fixed list
type StaticCompanies []uuid.UUID

// Companies returns the fixed list
func (s StaticCompanies) Companies(context.Context) ([]uuid.UUID, error) {
	return s, nil
}

// IntervalTrigger submits one job per company every Interval
type IntervalTrigger struct {
	kind       JobKind
	interval   time.Duration
	maxRetries int
	companies  CompanyProvider
	scheduler  *Scheduler
	logger     *zap.Logger

	stopCh    chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewIntervalTrigger creates a trigger for one job kind
func NewIntervalTrigger(
	kind JobKind,
	interval time.Duration,
	maxRetries int,
	companies CompanyProvider,
	scheduler *Scheduler,
	logger *zap.Logger,
) *IntervalTrigger {
	return &IntervalTrigger{
		kind:       kind,
		interval:   interval,
		maxRetries: maxRetries,
		companies:  companies,
		scheduler:  scheduler,
		logger:     logger.Named("trigger").With(zap.String("kind", string(kind))),
	}
}

// Start begins ticking. The first round runs immediately.
func (t *IntervalTrigger) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.isRunning {
		return nil
	}
	if t.interval <= 0 {
		return errors.New("trigger interval must be positive")
	}
	t.isRunning = true
	t.stopCh = make(chan struct{})

	t.wg.Add(1)
	go t.loop(ctx, t.stopCh)

	t.logger.Info("Interval trigger started", zap.Duration("interval", t.interval))
	return nil
}

// Stop stops ticking and waits for the loop to exit
func (t *IntervalTrigger) Stop() {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return
	}
	t.isRunning = false
	close(t.stopCh)
	t.mu.Unlock()

	t.wg.Wait()
	t.logger.Info("Interval trigger stopped")
}

func (t *IntervalTrigger) loop(ctx context.Context, stopCh <-chan struct{}) {
	defer t.wg.Done()

	t.Fire(ctx)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			t.Fire(ctx)
		}
	}
}

// Fire submits one round of jobs and returns how many were queued
func (t *IntervalTrigger) Fire(ctx context.Context) int {
	ids, err := t.companies.Companies(ctx)
	if err != nil {
		t.logger.Error("Failed to list companies", zap.Error(err))
		return 0
	}

	queued := 0
	for _, id := range ids {
		err := t.scheduler.Submit(NewJob(t.kind, id, t.maxRetries))
		switch {
		case err == nil:
			queued++
		case errors.Is(err, ErrJobAlreadyQueued):
			t.logger.Debug("Previous job still pending", zap.String("company_id", id.String()))
		default:
			t.logger.Warn("Failed to submit job",
				zap.String("company_id", id.String()),
				zap.Error(err),
			)
		}
	}
	return queued
}
