// Package scheduler runs the periodic reconciliation and alert sweep jobs on
// a small worker pool with exponential retry backoff.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// JobStatus represents the status of a scheduled job
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// JobKind names the work a job performs
type JobKind string

const (
	JobKindReconcile  JobKind = "reconcile"
	JobKindAlertSweep JobKind = "alert_sweep"
)

// Job is one unit of scheduled work for one company
type Job struct {
	ID          uuid.UUID
	Kind        JobKind
	CompanyID   uuid.UUID
	Status      JobStatus
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time
	RetryCount  int
	MaxRetries  int
}

// NewJob creates a pending job
func NewJob(kind JobKind, companyID uuid.UUID, maxRetries int) *Job {
	return &Job{
		ID:         uuid.New(),
		Kind:       kind,
		CompanyID:  companyID,
		Status:     JobStatusPending,
		MaxRetries: maxRetries,
	}
}

func (j *Job) key() string {
	return string(j.Kind) + ":" + j.CompanyID.String()
}

// Start marks the job as running
func (j *Job) Start() {
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.Error = ""
}

// Complete marks the job as successful
func (j *Job) Complete() {
	now := time.Now()
	j.Status = JobStatusSuccess
	j.CompletedAt = &now
}

// Fail marks the job as failed
func (j *Job) Fail(err error) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.CompletedAt = &now
	j.Error = err.Error()
}

// ShouldRetry reports whether a failed job has retries left
func (j *Job) ShouldRetry() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// JobExecutor runs one job. Wrap errors with Permanent to skip retries.
type JobExecutor interface {
	Execute(ctx context.Context, job *Job) error
}

// Config holds scheduler configuration
type Config struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
	// RetryAttempts bounds retries per job
	RetryAttempts int
	// RetryDelay is the first retry delay; it doubles per attempt up to MaxRetryDelay
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

// DefaultConfig returns default scheduler configuration
func DefaultConfig() Config {
	return Config{
		Workers:       2,
		QueueSize:     64,
		JobTimeout:    15 * time.Minute,
		RetryAttempts: 3,
		RetryDelay:    30 * time.Second,
		MaxRetryDelay: 10 * time.Minute,
	}
}

// Scheduler executes submitted jobs on a worker pool. At most one job per
// kind and company is queued or running at a time.
type Scheduler struct {
	config    Config
	executors map[JobKind]JobExecutor
	logger    *zap.Logger

	jobs      chan *Job
	inflight  map[string]bool
	retries   map[uuid.UUID]*time.Timer
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// New creates a scheduler
func New(config Config, logger *zap.Logger) *Scheduler {
	def := DefaultConfig()
	if config.Workers <= 0 {
		config.Workers = def.Workers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = def.QueueSize
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = def.JobTimeout
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = def.RetryDelay
	}
	if config.MaxRetryDelay <= 0 {
		config.MaxRetryDelay = def.MaxRetryDelay
	}
	return &Scheduler{
		config:    config,
		executors: make(map[JobKind]JobExecutor),
		logger:    logger.Named("scheduler"),
		inflight:  make(map[string]bool),
		retries:   make(map[uuid.UUID]*time.Timer),
	}
}

// Register binds an executor to a job kind. Call before Start.
func (s *Scheduler) Register(kind JobKind, exec JobExecutor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executors[kind] = exec
}

// Start starts the worker pool
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	s.isRunning = true
	s.jobs = make(chan *Job, s.config.QueueSize)

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	for i := 0; i < s.config.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i, s.jobs)
	}

	s.logger.Info("Scheduler started",
		zap.Int("workers", s.config.Workers),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
	return nil
}

// Stop cancels running jobs and waits for workers until ctx expires
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	for id, t := range s.retries {
		t.Stop()
		delete(s.retries, id)
	}
	close(s.jobs)
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Scheduler stop timed out")
		return ctx.Err()
	}
}

// Submit queues a job
func (s *Scheduler) Submit(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return ErrSchedulerNotRunning
	}
	if _, ok := s.executors[job.Kind]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJobKind, job.Kind)
	}
	if s.inflight[job.key()] {
		return ErrJobAlreadyQueued
	}
	return s.enqueueLocked(job)
}

func (s *Scheduler) enqueueLocked(job *Job) error {
	select {
	case s.jobs <- job:
		s.inflight[job.key()] = true
		s.logger.Debug("Job submitted",
			zap.String("job_id", job.ID.String()),
			zap.String("kind", string(job.Kind)),
			zap.String("company_id", job.CompanyID.String()),
		)
		return nil
	default:
		return ErrJobQueueFull
	}
}

func (s *Scheduler) worker(ctx context.Context, workerID int, jobs <-chan *Job) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			s.process(ctx, job, workerID)
		}
	}
}

func (s *Scheduler) process(ctx context.Context, job *Job, workerID int) {
	s.mu.Lock()
	exec := s.executors[job.Kind]
	s.mu.Unlock()

	job.Start()
	log := s.logger.With(
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		zap.String("kind", string(job.Kind)),
		zap.String("company_id", job.CompanyID.String()),
	)

	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	var err error
	telemetry.WithProfilingLabels(jobCtx, telemetry.OperationLabels(string(job.Kind), map[string]string{
		telemetry.LabelJob: "scheduler",
	}), func(c context.Context) {
		err = exec.Execute(c, job)
	})
	cancel()

	if err == nil {
		job.Complete()
		log.Info("Job completed")
		s.release(job)
		return
	}

	job.Fail(err)
	if IsPermanent(err) || !job.ShouldRetry() || ctx.Err() != nil {
		log.Error("Job failed", zap.Int("retry_count", job.RetryCount), zap.Error(err))
		s.release(job)
		return
	}

	delay := s.backoff(job.RetryCount)
	job.RetryCount++
	log.Warn("Job failed, scheduling retry",
		zap.Int("retry_count", job.RetryCount),
		zap.Duration("delay", delay),
		zap.Error(err),
	)
	s.scheduleRetry(job, delay)
}

// backoff returns RetryDelay * 2^attempt capped at MaxRetryDelay
func (s *Scheduler) backoff(attempt int) time.Duration {
	d := s.config.RetryDelay
	for i := 0; i < attempt && d < s.config.MaxRetryDelay; i++ {
		d *= 2
	}
	if d > s.config.MaxRetryDelay {
		d = s.config.MaxRetryDelay
	}
	return d
}

func (s *Scheduler) scheduleRetry(job *Job, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		delete(s.inflight, job.key())
		return
	}
	s.retries[job.ID] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.retries, job.ID)
		if !s.isRunning {
			delete(s.inflight, job.key())
			return
		}
		job.Status = JobStatusPending
		delete(s.inflight, job.key())
		if err := s.enqueueLocked(job); err != nil {
			s.logger.Warn("Failed to re-queue job for retry",
				zap.String("job_id", job.ID.String()),
				zap.Error(err),
			)
		}
	})
}

func (s *Scheduler) release(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, job.key())
}

// Pending reports whether a job of kind is queued or running for a company
func (s *Scheduler) Pending(kind JobKind, companyID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight[string(kind)+":"+companyID.String()]
}
