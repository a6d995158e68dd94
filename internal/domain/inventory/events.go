package inventory

import (
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Aggregate type constants
const (
	AggregateTypeStockMovement = "StockMovement"
	AggregateTypeCountSession  = "CountSession"
	AggregateTypeStockAlert    = "StockAlert"
	AggregateTypeReconcileRun  = "ReconcileRun"
)

// Event type constants
const (
	EventTypeStockChanged          = "stock.changed"
	EventTypeStockMovementReversed = "stock.movement_reversed"
	EventTypeCountClosed           = "count.closed"
	EventTypeAlertOpened           = "alert.opened"
	EventTypeAlertResolved         = "alert.resolved"
	EventTypeReconcileCompleted    = "reconcile.completed"
)

// BalanceChange is one balance scope touched by a movement
type BalanceChange struct {
	LocationID  uuid.UUID       `json:"location_id"`
	LotID       uuid.UUID       `json:"lot_id"`
	ContainerID uuid.UUID       `json:"container_id"`
	Delta       decimal.Decimal `json:"delta"`
	OnHandQty   decimal.Decimal `json:"on_hand_qty"`
}

// StockChangedEvent is raised for every appended movement that changed a balance
type StockChangedEvent struct {
	shared.EventHeader
	MovementID   uuid.UUID       `json:"movement_id"`
	MovementType MovementType    `json:"movement_type"`
	VariantID    uuid.UUID       `json:"variant_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	ReasonCode   string          `json:"reason_code,omitempty"`
	Changes      []BalanceChange `json:"changes"`
}

// NewStockChangedEvent creates a new StockChangedEvent
func NewStockChangedEvent(m *StockMovement, changes []BalanceChange) *StockChangedEvent {
	return &StockChangedEvent{
		EventHeader:  shared.NewEventHeader(EventTypeStockChanged, AggregateTypeStockMovement, m.ID, m.CompanyID),
		MovementID:   m.ID,
		MovementType: m.MovementType,
		VariantID:    m.VariantID,
		Quantity:     m.Quantity,
		ReasonCode:   m.ReasonCode,
		Changes:      changes,
	}
}

// LocationIDs returns the distinct locations in the event
func (e *StockChangedEvent) LocationIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(e.Changes))
	ids := make([]uuid.UUID, 0, len(e.Changes))
	for _, c := range e.Changes {
		if !seen[c.LocationID] {
			seen[c.LocationID] = true
			ids = append(ids, c.LocationID)
		}
	}
	return ids
}

// StockMovementReversedEvent is raised when a correction entry reverses a movement
type StockMovementReversedEvent struct {
	shared.EventHeader
	OriginalMovementID uuid.UUID `json:"original_movement_id"`
	ReversalMovementID uuid.UUID `json:"reversal_movement_id"`
	ActorID            uuid.UUID `json:"actor_id"`
}

// NewStockMovementReversedEvent creates a new StockMovementReversedEvent
func NewStockMovementReversedEvent(original, reversal *StockMovement) *StockMovementReversedEvent {
	return &StockMovementReversedEvent{
		EventHeader:        shared.NewEventHeader(EventTypeStockMovementReversed, AggregateTypeStockMovement, original.ID, original.CompanyID),
		OriginalMovementID: original.ID,
		ReversalMovementID: reversal.ID,
		ActorID:            reversal.ActorID,
	}
}

// CountClosedEvent is raised when a count session is closed
type CountClosedEvent struct {
	shared.EventHeader
	SessionID       uuid.UUID   `json:"session_id"`
	LocationID      uuid.UUID   `json:"location_id"`
	LineCount       int         `json:"line_count"`
	AdjustmentCount int         `json:"adjustment_count"`
	MovementIDs     []uuid.UUID `json:"movement_ids"`
}

// NewCountClosedEvent creates a new CountClosedEvent
func NewCountClosedEvent(s *CountSession, movementIDs []uuid.UUID) *CountClosedEvent {
	return &CountClosedEvent{
		EventHeader:     shared.NewEventHeader(EventTypeCountClosed, AggregateTypeCountSession, s.ID, s.CompanyID),
		SessionID:       s.ID,
		LocationID:      s.LocationID,
		LineCount:       len(s.Lines),
		AdjustmentCount: len(movementIDs),
		MovementIDs:     movementIDs,
	}
}

// AlertEvent is raised when a stock alert opens or resolves
type AlertEvent struct {
	shared.EventHeader
	AlertID        uuid.UUID       `json:"alert_id"`
	LocationID     uuid.UUID       `json:"location_id"`
	VariantID      uuid.UUID       `json:"variant_id"`
	AlertType      AlertType       `json:"alert_type"`
	ThresholdValue decimal.Decimal `json:"threshold_value"`
	CurrentValue   decimal.Decimal `json:"current_value"`
}

// NewAlertOpenedEvent creates an alert.opened event
func NewAlertOpenedEvent(a *StockAlert) *AlertEvent {
	return newAlertEvent(EventTypeAlertOpened, a)
}

// NewAlertResolvedEvent creates an alert.resolved event
func NewAlertResolvedEvent(a *StockAlert) *AlertEvent {
	return newAlertEvent(EventTypeAlertResolved, a)
}

func newAlertEvent(eventType string, a *StockAlert) *AlertEvent {
	return &AlertEvent{
		EventHeader:    shared.NewEventHeader(eventType, AggregateTypeStockAlert, a.ID, a.CompanyID),
		AlertID:        a.ID,
		LocationID:     a.LocationID,
		VariantID:      a.VariantID,
		AlertType:      a.AlertType,
		ThresholdValue: a.ThresholdValue,
		CurrentValue:   a.CurrentValue,
	}
}

// ReconcileCompletedEvent is raised when a non-dry-run reconciliation finishes
type ReconcileCompletedEvent struct {
	shared.EventHeader
	RunID          uuid.UUID `json:"run_id"`
	Writes         int       `json:"writes"`
	Creates        int       `json:"creates"`
	NegativeGuards int       `json:"negative_guards"`
	Errors         int       `json:"errors"`
}

// NewReconcileCompletedEvent creates a new ReconcileCompletedEvent
func NewReconcileCompletedEvent(run *ReconcileRun) *ReconcileCompletedEvent {
	return &ReconcileCompletedEvent{
		EventHeader:    shared.NewEventHeader(EventTypeReconcileCompleted, AggregateTypeReconcileRun, run.ID, run.CompanyID),
		RunID:          run.ID,
		Writes:         run.Writes,
		Creates:        run.Creates,
		NegativeGuards: run.NegativeGuards,
		Errors:         run.Errors,
	}
}
