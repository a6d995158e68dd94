package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ChannelPrefix prefixes the live channel of a location
const ChannelPrefix = "inventory:"

// ChannelForLocation returns the live channel name for a location
func ChannelForLocation(locationID uuid.UUID) string {
	return ChannelPrefix + locationID.String()
}

// ChangeNotification is pushed to live subscribers after a ledger commit
type ChangeNotification struct {
	Scope      string    `json:"scope"`
	CompanyID  uuid.UUID `json:"company_id"`
	LocationID uuid.UUID `json:"location_id"`
	VariantID  uuid.UUID `json:"variant_id"`
	MovementID uuid.UUID `json:"movement_id"`
}

// ChangeNotifier delivers post-commit notifications to live subscribers.
// Delivery is best effort; failures never roll back a committed movement.
type ChangeNotifier interface {
	Notify(ctx context.Context, n ChangeNotification) error
}

// AuditEvent describes one state change made on behalf of an actor
type AuditEvent struct {
	CompanyID  uuid.UUID
	ActorID    uuid.UUID
	EntityType string
	EntityID   uuid.UUID
	Action     string
	Before     any
	After      any
	OccurredAt time.Time
}

// AuditSink receives audit events. The persistence format belongs to the sink.
type AuditSink interface {
	Record(ctx context.Context, e AuditEvent)
}

// Metrics receives counters from the inventory services
type Metrics interface {
	MovementAppended(ctx context.Context, companyID uuid.UUID, movementType string)
	NegativeBalance(ctx context.Context, companyID uuid.UUID)
	InsufficientLayers(ctx context.Context, companyID uuid.UUID)
	ReconcileOutcome(ctx context.Context, companyID uuid.UUID, outcome string, n int)
	AlertTransition(ctx context.Context, companyID uuid.UUID, decision string)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, ChangeNotification) error { return nil }

type nopAudit struct{}

func (nopAudit) Record(context.Context, AuditEvent) {}

type nopMetrics struct{}

func (nopMetrics) MovementAppended(context.Context, uuid.UUID, string)      {}
func (nopMetrics) NegativeBalance(context.Context, uuid.UUID)               {}
func (nopMetrics) InsufficientLayers(context.Context, uuid.UUID)            {}
func (nopMetrics) ReconcileOutcome(context.Context, uuid.UUID, string, int) {}
func (nopMetrics) AlertTransition(context.Context, uuid.UUID, string)       {}
