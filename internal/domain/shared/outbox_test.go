package shared

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEvent struct {
	EventHeader
}

func TestNewOutboxEntry_CopiesEventIdentity(t *testing.T) {
	companyID := uuid.New()
	aggID := uuid.New()
	evt := &testEvent{EventHeader: NewEventHeader("stock.changed", "stock_movement", aggID, companyID)}

	entry := NewOutboxEntry(evt, []byte(`{"k":"v"}`))

	assert.Equal(t, companyID, entry.CompanyID)
	assert.Equal(t, evt.EventID(), entry.EventID)
	assert.Equal(t, "stock.changed", entry.EventType)
	assert.Equal(t, "stock_movement", entry.AggregateType)
	assert.Equal(t, aggID, entry.AggregateID)
	assert.Equal(t, OutboxStatusPending, entry.Status)
	assert.Equal(t, DefaultMaxRetries, entry.MaxRetries)
}

func TestOutboxEntry_ResetForRetry(t *testing.T) {
	t.Run("resets dead letter entry", func(t *testing.T) {
		entry := &OutboxEntry{
			ID:         uuid.New(),
			Status:     OutboxStatusDead,
			RetryCount: 5,
			MaxRetries: 5,
			LastError:  "boom",
			UpdatedAt:  time.Now().Add(-time.Minute),
		}

		require.NoError(t, entry.ResetForRetry())
		assert.Equal(t, OutboxStatusPending, entry.Status)
		assert.Equal(t, 0, entry.RetryCount)
		assert.Empty(t, entry.LastError)
		assert.Nil(t, entry.NextRetryAt)
	})

	t.Run("rejects non-dead entries", func(t *testing.T) {
		for _, status := range []OutboxStatus{OutboxStatusPending, OutboxStatusProcessing, OutboxStatusSent, OutboxStatusFailed} {
			entry := &OutboxEntry{Status: status}
			err := entry.ResetForRetry()
			assert.Error(t, err, status)
		}
	})
}

func TestOutboxEntry_MarkFailed_MovesToDeadAfterMaxRetries(t *testing.T) {
	entry := &OutboxEntry{Status: OutboxStatusProcessing, MaxRetries: 2}

	entry.MarkFailed("first")
	assert.Equal(t, OutboxStatusFailed, entry.Status)
	assert.True(t, entry.CanRetry())
	require.NotNil(t, entry.NextRetryAt)

	entry.MarkFailed("second")
	assert.True(t, entry.IsDead())
	assert.False(t, entry.CanRetry())
	assert.Nil(t, entry.NextRetryAt)
	assert.Equal(t, "second", entry.LastError)
}

func TestOutboxEntry_MarkFailed_ExponentialBackoff(t *testing.T) {
	entry := &OutboxEntry{MaxRetries: 10}

	var previous time.Duration
	for i := 0; i < 4; i++ {
		before := time.Now()
		entry.MarkFailed("err")
		require.NotNil(t, entry.NextRetryAt)
		delay := entry.NextRetryAt.Sub(before)
		assert.Greater(t, delay, previous, "attempt %d", i+1)
		previous = delay
	}
}

func TestOutboxEntry_MarkSent(t *testing.T) {
	entry := &OutboxEntry{Status: OutboxStatusProcessing}
	entry.MarkSent()
	assert.Equal(t, OutboxStatusSent, entry.Status)
	assert.NotNil(t, entry.ProcessedAt)
}

func TestRetryBackoff(t *testing.T) {
	assert.Equal(t, time.Duration(0), RetryBackoff(0))
	assert.Equal(t, time.Second, RetryBackoff(1))
	assert.Equal(t, 8*time.Second, RetryBackoff(4))
	assert.Equal(t, MaxBackoff, RetryBackoff(12))
	assert.Equal(t, MaxBackoff, RetryBackoff(64))
}

func TestOutboxEntry_ResetForRetry_InvalidState(t *testing.T) {
	err := (&OutboxEntry{Status: OutboxStatusSent}).ResetForRetry()
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestOutboxEntry_MarkFailed_TruncatesError(t *testing.T) {
	entry := &OutboxEntry{MaxRetries: 3}
	entry.MarkFailed(strings.Repeat("x", 5000))
	assert.Len(t, entry.LastError, maxLastErrorLen)
}
