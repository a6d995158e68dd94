package router

import (
	"github.com/erp/stockledger/internal/infrastructure/auth"
	"github.com/erp/stockledger/internal/interfaces/http/handler"
	"github.com/erp/stockledger/internal/interfaces/http/middleware"
)

// InventoryHandlers bundles the handlers mounted under /inventory
type InventoryHandlers struct {
	Movements *handler.MovementHandler
	Balances  *handler.BalanceHandler
	Valuation *handler.ValuationHandler
	Counts    *handler.CountHandler
	Alerts    *handler.AlertHandler
	Reconcile *handler.ReconcileHandler
}

// NewInventoryRoutes builds the inventory domain group. Every route is gated
// on one of the inventory permissions carried by the access token.
func NewInventoryRoutes(h InventoryHandlers) *DomainGroup {
	read := middleware.RequirePermission(auth.PermissionInventoryRead)
	write := middleware.RequirePermission(auth.PermissionInventoryWrite)
	reconcile := middleware.RequirePermission(auth.PermissionInventoryReconcile)

	inv := NewDomainGroup("inventory", "/inventory")

	inv.POST("/movements", write, h.Movements.Append)
	inv.GET("/movements", read, h.Movements.List)
	inv.GET("/movements/:id", read, h.Movements.Get)
	inv.POST("/movements/:id/reverse", write, h.Movements.Reverse)

	inv.GET("/balances", read, h.Balances.Query)
	inv.GET("/variants/:id/balances", read, h.Balances.ListByVariant)
	inv.GET("/variants/:id/replay", read, h.Balances.VerifyReplay)
	inv.POST("/variants/:id/rebuild", write, h.Balances.Rebuild)
	inv.GET("/variants/:id/valuation-replay", read, h.Valuation.Replay)

	inv.GET("/valuation", read, h.Valuation.Valuation)
	inv.GET("/valuation/layers", read, h.Valuation.Layers)

	counts := inv.Group("counts", "/count-sessions")
	counts.POST("", write, h.Counts.Open)
	counts.GET("", read, h.Counts.List)
	counts.POST("/close", write, h.Counts.CloseMany)
	counts.GET("/:id", read, h.Counts.Get)
	counts.PUT("/:id/lines", write, h.Counts.RecordLines)
	counts.POST("/:id/close", write, h.Counts.Close)

	inv.PUT("/replenishment-rules", write, h.Alerts.UpsertRule)
	inv.GET("/replenishment-rules", read, h.Alerts.ListRules)
	inv.GET("/alerts", read, h.Alerts.ListAlerts)
	inv.POST("/alerts/evaluate", write, h.Alerts.Evaluate)
	inv.POST("/alerts/sweep", write, h.Alerts.Sweep)

	rec := inv.Group("reconcile", "/reconcile")
	rec.POST("", reconcile, h.Reconcile.Reconcile)
	rec.GET("/runs", read, h.Reconcile.ListRuns)
	rec.GET("/runs/:id/report", read, h.Reconcile.ReportURL)

	return inv
}
