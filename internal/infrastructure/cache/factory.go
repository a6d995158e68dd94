package cache

import (
	"context"
	"fmt"

	"github.com/erp/stockledger/internal/application/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/auth"
	"github.com/erp/stockledger/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Backends bundles the Redis-backed infrastructure, or its in-memory fallbacks
type Backends struct {
	Idempotency shared.IdempotencyStore
	Notifier    inventory.ChangeNotifier
	Revocations auth.RevocationList
	client      *redis.Client
}

// Close releases the Redis connection if one was opened
func (b *Backends) Close() error {
	if err := b.Idempotency.Close(); err != nil {
		return err
	}
	if b.client != nil {
		return b.client.Close()
	}
	return nil
}

// FactoryOption configures NewBackends
type FactoryOption func(*factory)

type factory struct {
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(f *factory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable Redis degrades to
// in-memory stores instead of failing. Default true.
func WithInMemoryFallback(allow bool) FactoryOption {
	return func(f *factory) {
		f.allowInMemoryFallback = allow
	}
}

// NewBackends connects to Redis when enabled and builds the idempotency store,
// change notifier and token revocation list on top of it
func NewBackends(ctx context.Context, cfg config.RedisConfig, opts ...FactoryOption) (*Backends, error) {
	f := &factory{logger: zap.NewNop(), allowInMemoryFallback: true}
	for _, opt := range opts {
		opt(f)
	}

	if cfg.Enabled {
		client, err := NewRedisClient(ctx, cfg)
		if err == nil {
			f.logger.Info("using Redis for idempotency and live notifications", zap.String("addr", cfg.Addr()))
			return &Backends{
				Idempotency: NewRedisIdempotencyStore(client, DefaultKeyPrefix),
				Notifier:    NewRedisChangeNotifier(client, f.logger),
				Revocations: auth.NewRedisRevocationList(client, ""),
				client:      client,
			}, nil
		}
		if !f.allowInMemoryFallback {
			return nil, fmt.Errorf("redis required but unavailable: %w", err)
		}
		f.logger.Warn("Redis unavailable, falling back to in-memory stores; "+
			"concurrent replicas will not share reconciliation claims",
			zap.Error(err),
		)
	}

	return &Backends{
		Idempotency: NewInMemoryIdempotencyStore(),
		Notifier:    NewInMemoryChangeNotifier(),
		Revocations: auth.NewInMemoryRevocationList(),
	}, nil
}
