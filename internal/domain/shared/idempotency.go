package shared

import (
	"context"
	"time"
)

// IdempotencyStore holds short-lived claims on string keys. Outbox handlers
// claim "event:<handler>:<event id>" and reconciliation claims the feed
// digest, so a redelivered event or a resubmitted feed does no double work.
type IdempotencyStore interface {
	// MarkProcessed claims key for ttl and reports whether this call won it
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)
	IsProcessed(ctx context.Context, key string) (bool, error)
	// Release drops a claim after a failed attempt
	Release(ctx context.Context, key string) error
	Close() error
}

type IdempotencyConfig struct {
	TTL     time.Duration
	Enabled bool
}

// DefaultIdempotencyConfig keeps claims for a day
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{TTL: 24 * time.Hour, Enabled: true}
}
