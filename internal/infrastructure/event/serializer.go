package event

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
)

// EventSerializer encodes events as JSON for the outbox and decodes payloads
// back into the concrete type registered for their event type.
type EventSerializer struct {
	mu        sync.RWMutex
	factories map[string]func() shared.DomainEvent
}

func NewEventSerializer() *EventSerializer {
	return &EventSerializer{factories: make(map[string]func() shared.DomainEvent)}
}

// NewRegisteredSerializer knows every inventory event. The outbox processor
// dead-letters entries whose type is missing here.
func NewRegisteredSerializer() *EventSerializer {
	s := NewEventSerializer()
	Register[inventory.StockChangedEvent](s, inventory.EventTypeStockChanged)
	Register[inventory.StockMovementReversedEvent](s, inventory.EventTypeStockMovementReversed)
	Register[inventory.CountClosedEvent](s, inventory.EventTypeCountClosed)
	Register[inventory.AlertEvent](s, inventory.EventTypeAlertOpened)
	Register[inventory.AlertEvent](s, inventory.EventTypeAlertResolved)
	Register[inventory.ReconcileCompletedEvent](s, inventory.EventTypeReconcileCompleted)
	return s
}

// Register maps eventType to E, decoded through *E
func Register[E any, P interface {
	*E
	shared.DomainEvent
}](s *EventSerializer, eventType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.factories[eventType] = func() shared.DomainEvent { return P(new(E)) }
}

func (s *EventSerializer) Serialize(event shared.DomainEvent) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", event.EventType(), err)
	}
	return data, nil
}

// Deserialize decodes data into the type registered for eventType. A payload
// carrying a different event_type is rejected.
func (s *EventSerializer) Deserialize(eventType string, data []byte) (shared.DomainEvent, error) {
	s.mu.RLock()
	factory, ok := s.factories[eventType]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}

	event := factory()
	if err := json.Unmarshal(data, event); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", eventType, err)
	}
	if got := event.EventType(); got != "" && got != eventType {
		return nil, fmt.Errorf("payload is %s, entry says %s", got, eventType)
	}
	return event, nil
}

func (s *EventSerializer) IsRegistered(eventType string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.factories[eventType]
	return ok
}

// RegisteredTypes returns the registered type names, sorted
func (s *EventSerializer) RegisteredTypes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.factories))
}
