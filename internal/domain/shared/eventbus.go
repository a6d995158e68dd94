package shared

import "context"

// EventHandler reacts to delivered events. An empty EventTypes subscribes the
// handler to every type.
type EventHandler interface {
	Handle(ctx context.Context, event DomainEvent) error
	EventTypes() []string
}

// EventPublisher hands events to in-process subscribers. The outbox processor
// retries an entry when Publish returns an error.
type EventPublisher interface {
	Publish(ctx context.Context, events ...DomainEvent) error
}
