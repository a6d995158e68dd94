package router

import (
	"github.com/erp/stockledger/internal/infrastructure/auth"
	"github.com/erp/stockledger/internal/interfaces/http/handler"
	"github.com/erp/stockledger/internal/interfaces/http/middleware"
)

// NewEventRoutes mounts the outbox administration endpoints. Operators need
// the reconcile permission since a retry re-publishes stock events.
func NewEventRoutes(h *handler.OutboxHandler) *DomainGroup {
	events := NewDomainGroup("events", "/events")
	events.Use(middleware.RequirePermission(auth.PermissionInventoryReconcile))

	events.GET("/stats", h.Stats)
	events.GET("/entries/:id", h.GetEntry)
	events.GET("/dead-letters", h.ListDeadLetters)
	events.POST("/dead-letters/retry", h.RetryAll)
	events.POST("/dead-letters/:id/retry", h.Retry)
	return events
}
