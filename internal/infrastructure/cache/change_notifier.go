package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/erp/stockledger/internal/application/inventory"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisChangeNotifier publishes post-commit changes on the location's channel
// (inventory:<location_id>) for live subscribers such as dashboards
type RedisChangeNotifier struct {
	client publisher
	logger *zap.Logger
}

// NewRedisChangeNotifier creates a notifier on an existing client
func NewRedisChangeNotifier(client publisher, logger *zap.Logger) *RedisChangeNotifier {
	return &RedisChangeNotifier{client: client, logger: logger}
}

// Notify publishes n as JSON
func (r *RedisChangeNotifier) Notify(ctx context.Context, n inventory.ChangeNotification) error {
	channel := inventory.ChannelForLocation(n.LocationID)
	if n.Scope == "" {
		n.Scope = channel
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal change notification: %w", err)
	}

	receivers, err := r.client.Publish(ctx, channel, payload).Result()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	r.logger.Debug("change notification published",
		zap.String("channel", channel),
		zap.String("movement_id", n.MovementID.String()),
		zap.Int64("receivers", receivers),
	)
	return nil
}

// InMemoryChangeNotifier fans notifications out to in-process subscribers.
// Slow subscribers miss notifications rather than block the ledger.
type InMemoryChangeNotifier struct {
	mu   sync.RWMutex
	subs map[string][]chan inventory.ChangeNotification
}

// NewInMemoryChangeNotifier creates a notifier with no subscribers
func NewInMemoryChangeNotifier() *InMemoryChangeNotifier {
	return &InMemoryChangeNotifier{subs: make(map[string][]chan inventory.ChangeNotification)}
}

// Subscribe returns a buffered channel receiving notifications for channel.
// The returned func unsubscribes and closes it.
func (m *InMemoryChangeNotifier) Subscribe(channel string, buffer int) (<-chan inventory.ChangeNotification, func()) {
	ch := make(chan inventory.ChangeNotification, buffer)
	m.mu.Lock()
	m.subs[channel] = append(m.subs[channel], ch)
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			subs := m.subs[channel]
			for i, c := range subs {
				if c == ch {
					m.subs[channel] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
			close(ch)
		})
	}
}

// Notify delivers n to every subscriber of the location channel without blocking
func (m *InMemoryChangeNotifier) Notify(_ context.Context, n inventory.ChangeNotification) error {
	channel := inventory.ChannelForLocation(n.LocationID)
	if n.Scope == "" {
		n.Scope = channel
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ch := range m.subs[channel] {
		select {
		case ch <- n:
		default:
		}
	}
	return nil
}

var (
	_ inventory.ChangeNotifier = (*RedisChangeNotifier)(nil)
	_ inventory.ChangeNotifier = (*InMemoryChangeNotifier)(nil)
)
