package event

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DeadLetterStore is the slice of the outbox repository the service needs
type DeadLetterStore interface {
	FindDead(ctx context.Context, companyID uuid.UUID, page, pageSize int) ([]*shared.OutboxEntry, int64, error)
	FindByID(ctx context.Context, companyID, id uuid.UUID) (*shared.OutboxEntry, error)
	Update(ctx context.Context, entry *shared.OutboxEntry) error
	CountByStatus(ctx context.Context) (map[shared.OutboxStatus]int64, error)
}

// DeadLetterService lets operators inspect outbox entries that exhausted
// their retries and push them back to pending.
type DeadLetterService struct {
	store  DeadLetterStore
	logger *zap.Logger
}

// NewDeadLetterService creates a new dead letter service
func NewDeadLetterService(store DeadLetterStore, logger *zap.Logger) *DeadLetterService {
	return &DeadLetterService{store: store, logger: logger}
}

// OutboxEntryResponse is the API view of an outbox entry. The payload is omitted.
type OutboxEntryResponse struct {
	ID            uuid.UUID  `json:"id"`
	EventID       uuid.UUID  `json:"event_id"`
	EventType     string     `json:"event_type"`
	AggregateID   uuid.UUID  `json:"aggregate_id"`
	AggregateType string     `json:"aggregate_type"`
	Status        string     `json:"status"`
	RetryCount    int        `json:"retry_count"`
	MaxRetries    int        `json:"max_retries"`
	LastError     string     `json:"last_error,omitempty"`
	NextRetryAt   *time.Time `json:"next_retry_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// OutboxStats counts entries per delivery status across all companies
type OutboxStats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Sent       int64 `json:"sent"`
	Failed     int64 `json:"failed"`
	Dead       int64 `json:"dead"`
	Total      int64 `json:"total"`
}

const retryAllPageSize = 100

// List returns a page of the company's dead letters, most recent first
func (s *DeadLetterService) List(ctx context.Context, companyID uuid.UUID, page, pageSize int) ([]OutboxEntryResponse, int64, error) {
	entries, total, err := s.store.FindDead(ctx, companyID, page, pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list dead letters: %w", err)
	}
	out := make([]OutboxEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = toOutboxEntryResponse(e)
	}
	return out, total, nil
}

// Get returns one outbox entry of the company
func (s *DeadLetterService) Get(ctx context.Context, companyID, id uuid.UUID) (*OutboxEntryResponse, error) {
	entry, err := s.store.FindByID(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	resp := toOutboxEntryResponse(entry)
	return &resp, nil
}

// Retry resets a dead letter to pending so the processor picks it up again.
// Entries in any other status are rejected with INVALID_STATE.
func (s *DeadLetterService) Retry(ctx context.Context, companyID, id uuid.UUID) (*OutboxEntryResponse, error) {
	entry, err := s.store.FindByID(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if err := entry.ResetForRetry(); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to reset outbox entry: %w", err)
	}

	s.logger.Info("Dead letter reset for retry",
		zap.String("company_id", companyID.String()),
		zap.String("entry_id", id.String()),
		zap.String("event_type", entry.EventType),
	)
	resp := toOutboxEntryResponse(entry)
	return &resp, nil
}

// RetryAll resets every dead letter of the company and returns how many were
// reset. Entries that fail to update are logged and skipped.
func (s *DeadLetterService) RetryAll(ctx context.Context, companyID uuid.UUID) (int, error) {
	reset := 0
	for {
		// Reset entries leave the dead set, so the first page always holds the remainder
		entries, _, err := s.store.FindDead(ctx, companyID, 1, retryAllPageSize)
		if err != nil {
			return reset, fmt.Errorf("failed to list dead letters: %w", err)
		}
		progressed := false
		for _, entry := range entries {
			if err := entry.ResetForRetry(); err != nil {
				continue
			}
			if err := s.store.Update(ctx, entry); err != nil {
				s.logger.Error("Failed to reset dead letter",
					zap.String("entry_id", entry.ID.String()),
					zap.Error(err),
				)
				continue
			}
			reset++
			progressed = true
		}
		if len(entries) < retryAllPageSize || !progressed {
			break
		}
	}

	s.logger.Info("Dead letters reset for retry",
		zap.String("company_id", companyID.String()),
		zap.Int("count", reset),
	)
	return reset, nil
}

// Stats counts outbox entries per status
func (s *DeadLetterService) Stats(ctx context.Context) (*OutboxStats, error) {
	counts, err := s.store.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count outbox entries: %w", err)
	}
	stats := &OutboxStats{
		Pending:    counts[shared.OutboxStatusPending],
		Processing: counts[shared.OutboxStatusProcessing],
		Sent:       counts[shared.OutboxStatusSent],
		Failed:     counts[shared.OutboxStatusFailed],
		Dead:       counts[shared.OutboxStatusDead],
	}
	for _, n := range counts {
		stats.Total += n
	}
	return stats, nil
}

func toOutboxEntryResponse(e *shared.OutboxEntry) OutboxEntryResponse {
	return OutboxEntryResponse{
		ID:            e.ID,
		EventID:       e.EventID,
		EventType:     e.EventType,
		AggregateID:   e.AggregateID,
		AggregateType: e.AggregateType,
		Status:        string(e.Status),
		RetryCount:    e.RetryCount,
		MaxRetries:    e.MaxRetries,
		LastError:     e.LastError,
		NextRetryAt:   e.NextRetryAt,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}
