package event

import (
	"context"
	"sync"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"go.uber.org/zap"
)

// OutboxProcessorConfig tunes delivery and housekeeping. StaleAfter is how
// long an entry may stay PROCESSING before housekeeping hands it back to the
// poll loop.
type OutboxProcessorConfig struct {
	BatchSize        int
	PollInterval     time.Duration
	StaleAfter       time.Duration
	CleanupEnabled   bool
	CleanupRetention time.Duration
	CleanupInterval  time.Duration
}

func DefaultOutboxProcessorConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		BatchSize:        100,
		PollInterval:     5 * time.Second,
		StaleAfter:       5 * time.Minute,
		CleanupEnabled:   true,
		CleanupRetention: 7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}

// BatchResult counts the outcome of one processing round
type BatchResult struct {
	Claimed int
	Sent    int
	Failed  int
	Dead    int
}

// OutboxProcessor delivers outbox entries to the event bus at least once.
// Failed deliveries are retried with exponential backoff until they become dead letters.
type OutboxProcessor struct {
	repo       shared.OutboxRepository
	eventBus   shared.EventPublisher
	serializer *EventSerializer
	config     OutboxProcessorConfig
	logger     *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOutboxProcessor creates a new outbox processor
func NewOutboxProcessor(
	repo shared.OutboxRepository,
	eventBus shared.EventPublisher,
	serializer *EventSerializer,
	config OutboxProcessorConfig,
	logger *zap.Logger,
) *OutboxProcessor {
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 5 * time.Second
	}
	return &OutboxProcessor{
		repo:       repo,
		eventBus:   eventBus,
		serializer: serializer,
		config:     config,
		logger:     logger,
	}
}

// Start launches the poll loop and, if enabled, the cleanup loop
func (p *OutboxProcessor) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go p.every(ctx, p.config.PollInterval, func(ctx context.Context) { p.ProcessOnce(ctx) })

	if p.config.CleanupInterval > 0 {
		p.wg.Add(1)
		go p.every(ctx, p.config.CleanupInterval, p.housekeep)
	}

	p.logger.Info("outbox processor started",
		zap.Int("batch_size", p.config.BatchSize),
		zap.Duration("poll_interval", p.config.PollInterval),
	)
	return nil
}

// Stop cancels the loops and waits for the current round to finish
func (p *OutboxProcessor) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("outbox processor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *OutboxProcessor) every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	defer p.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// ProcessOnce claims one batch of due entries and delivers it
func (p *OutboxProcessor) ProcessOnce(ctx context.Context) BatchResult {
	var result BatchResult

	claimed, err := p.repo.ClaimDue(ctx, time.Now(), p.config.BatchSize)
	if err != nil {
		p.logger.Error("failed to claim outbox entries", zap.Error(err))
		return result
	}
	result.Claimed = len(claimed)

	for _, entry := range claimed {
		if err := p.deliver(ctx, entry); err != nil {
			p.fail(ctx, entry, err)
			if entry.IsDead() {
				result.Dead++
			} else {
				result.Failed++
			}
			continue
		}

		entry.MarkSent()
		if err := p.repo.Update(ctx, entry); err != nil {
			p.logger.Error("failed to mark outbox entry as sent",
				zap.String("event_id", entry.EventID.String()),
				zap.Error(err),
			)
			continue
		}
		result.Sent++
	}
	return result
}

func (p *OutboxProcessor) deliver(ctx context.Context, entry *shared.OutboxEntry) error {
	event, err := p.serializer.Deserialize(entry.EventType, entry.Payload)
	if err != nil {
		return err
	}
	return p.eventBus.Publish(ctx, event)
}

func (p *OutboxProcessor) fail(ctx context.Context, entry *shared.OutboxEntry, cause error) {
	entry.MarkFailed(cause.Error())

	fields := []zap.Field{
		zap.String("event_id", entry.EventID.String()),
		zap.String("event_type", entry.EventType),
		zap.String("company_id", entry.CompanyID.String()),
		zap.String("aggregate_id", entry.AggregateID.String()),
		zap.Int("retry_count", entry.RetryCount),
		zap.Error(cause),
	}
	if entry.IsDead() {
		p.logger.Warn("outbox entry moved to dead letters", fields...)
	} else {
		p.logger.Error("outbox delivery failed", append(fields, zap.Timep("next_retry_at", entry.NextRetryAt))...)
	}

	if err := p.repo.Update(ctx, entry); err != nil {
		p.logger.Error("failed to update outbox entry", zap.Error(err))
	}
}

// housekeep requeues stale claims and purges old delivered entries
func (p *OutboxProcessor) housekeep(ctx context.Context) {
	if p.config.StaleAfter > 0 {
		requeued, err := p.repo.RequeueStale(ctx, time.Now().Add(-p.config.StaleAfter))
		if err != nil {
			p.logger.Error("failed to requeue stale outbox entries", zap.Error(err))
		} else if requeued > 0 {
			p.logger.Warn("requeued stale outbox entries", zap.Int64("requeued", requeued))
		}
	}

	if !p.config.CleanupEnabled {
		return
	}
	cutoff := time.Now().Add(-p.config.CleanupRetention)
	purged, err := p.repo.PurgeSent(ctx, cutoff)
	if err != nil {
		p.logger.Error("failed to purge sent outbox entries", zap.Error(err))
		return
	}
	if purged > 0 {
		p.logger.Info("purged sent outbox entries", zap.Int64("purged", purged), zap.Time("cutoff", cutoff))
	}
}
