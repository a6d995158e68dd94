package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type funcExecutor func(ctx context.Context, job *Job) error

func (f funcExecutor) Execute(ctx context.Context, job *Job) error { return f(ctx, job) }

func testConfig() Config {
	return Config{
		Workers:       2,
		QueueSize:     8,
		JobTimeout:    time.Second,
		RetryAttempts: 2,
		RetryDelay:    5 * time.Millisecond,
		MaxRetryDelay: 20 * time.Millisecond,
	}
}

func startScheduler(t *testing.T, cfg Config, kind JobKind, exec JobExecutor) *Scheduler {
	t.Helper()
	s := New(cfg, zap.NewNop())
	s.Register(kind, exec)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func TestJobLifecycle(t *testing.T) {
	job := NewJob(JobKindReconcile, uuid.New(), 1)
	assert.Equal(t, JobStatusPending, job.Status)

	job.Start()
	assert.Equal(t, JobStatusRunning, job.Status)
	assert.NotNil(t, job.StartedAt)

	job.Fail(errors.New("boom"))
	assert.Equal(t, "boom", job.Error)
	assert.True(t, job.ShouldRetry())

	job.RetryCount = 1
	assert.False(t, job.ShouldRetry())

	job.Start()
	job.Complete()
	assert.Equal(t, JobStatusSuccess, job.Status)
	assert.Empty(t, job.Error)
	assert.False(t, job.ShouldRetry())
}

func TestScheduler_RunsJob(t *testing.T) {
	done := make(chan uuid.UUID, 1)
	s := startScheduler(t, testConfig(), JobKindAlertSweep, funcExecutor(func(_ context.Context, job *Job) error {
		done <- job.CompanyID
		return nil
	}))

	company := uuid.New()
	require.NoError(t, s.Submit(NewJob(JobKindAlertSweep, company, 0)))

	select {
	case got := <-done:
		assert.Equal(t, company, got)
	case <-time.After(time.Second):
		t.Fatal("job did not run")
	}
	assert.Eventually(t, func() bool { return !s.Pending(JobKindAlertSweep, company) }, time.Second, 5*time.Millisecond)
}

func TestScheduler_RejectsDuplicateAndUnknownKind(t *testing.T) {
	release := make(chan struct{})
	s := startScheduler(t, testConfig(), JobKindReconcile, funcExecutor(func(context.Context, *Job) error {
		<-release
		return nil
	}))
	defer close(release)

	company := uuid.New()
	require.NoError(t, s.Submit(NewJob(JobKindReconcile, company, 0)))
	assert.ErrorIs(t, s.Submit(NewJob(JobKindReconcile, company, 0)), ErrJobAlreadyQueued)
	assert.NoError(t, s.Submit(NewJob(JobKindReconcile, uuid.New(), 0)))
	assert.ErrorIs(t, s.Submit(NewJob(JobKindAlertSweep, company, 0)), ErrUnknownJobKind)
}

func TestScheduler_NotRunning(t *testing.T) {
	s := New(testConfig(), zap.NewNop())
	s.Register(JobKindReconcile, funcExecutor(func(context.Context, *Job) error { return nil }))
	assert.ErrorIs(t, s.Submit(NewJob(JobKindReconcile, uuid.New(), 0)), ErrSchedulerNotRunning)
}

func TestScheduler_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	done := make(chan struct{})
	s := startScheduler(t, testConfig(), JobKindReconcile, funcExecutor(func(context.Context, *Job) error {
		if calls.Add(1) < 3 {
			return errors.New("upstream unavailable")
		}
		close(done)
		return nil
	}))

	require.NoError(t, s.Submit(NewJob(JobKindReconcile, uuid.New(), 2)))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not retried to success")
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestScheduler_PermanentErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	company := uuid.New()
	s := startScheduler(t, testConfig(), JobKindReconcile, funcExecutor(func(context.Context, *Job) error {
		calls.Add(1)
		return Permanent(errors.New("bad credentials"))
	}))

	require.NoError(t, s.Submit(NewJob(JobKindReconcile, company, 5)))
	assert.Eventually(t, func() bool { return !s.Pending(JobKindReconcile, company) }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestScheduler_Backoff(t *testing.T) {
	s := New(Config{RetryDelay: time.Second, MaxRetryDelay: 5 * time.Second}, zap.NewNop())
	assert.Equal(t, time.Second, s.backoff(0))
	assert.Equal(t, 2*time.Second, s.backoff(1))
	assert.Equal(t, 4*time.Second, s.backoff(2))
	assert.Equal(t, 5*time.Second, s.backoff(3))
	assert.Equal(t, 5*time.Second, s.backoff(10))
}

func TestScheduler_StopCancelsRunningJob(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	s := New(testConfig(), zap.NewNop())
	s.Register(JobKindReconcile, funcExecutor(func(ctx context.Context, _ *Job) error {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return ctx.Err()
	}))
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Submit(NewJob(JobKindReconcile, uuid.New(), 3)))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.ErrorIs(t, s.Submit(NewJob(JobKindReconcile, uuid.New(), 0)), ErrSchedulerNotRunning)
}

func TestPermanent(t *testing.T) {
	assert.Nil(t, Permanent(nil))
	base := errors.New("x")
	err := Permanent(base)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsPermanent(base))
}
