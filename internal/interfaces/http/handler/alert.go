package handler

import (
	"context"

	inventoryapp "github.com/erp/stockledger/internal/application/inventory"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AlertRules is the replenishment surface used by AlertHandler
type AlertRules interface {
	EvaluateScope(ctx context.Context, companyID, locationID, variantID uuid.UUID) (*inventoryapp.ScopeEvaluation, error)
	Sweep(ctx context.Context, companyID uuid.UUID) (*inventoryapp.SweepSummary, error)
	ListAlerts(ctx context.Context, companyID uuid.UUID, filter inventoryapp.AlertListFilter) ([]inventoryapp.AlertResponse, int64, error)
	UpsertRule(ctx context.Context, companyID, actorID uuid.UUID, req inventoryapp.UpsertRuleRequest) (*inventoryapp.RuleResponse, error)
	ListRules(ctx context.Context, companyID uuid.UUID, page, pageSize int) ([]inventoryapp.RuleResponse, int64, error)
}

// AlertHandler handles replenishment rules and low-stock alerts
type AlertHandler struct {
	BaseHandler
	alerts AlertRules
}

// NewAlertHandler creates a new AlertHandler
func NewAlertHandler(alerts AlertRules) *AlertHandler {
	return &AlertHandler{alerts: alerts}
}

// UpsertRule godoc
// @ID           upsertReplenishmentRule
// @Summary      Create or replace the replenishment rule of a scope
// @Description  The scope is re-evaluated immediately, so an alert may open or resolve as a result.
// @Tags         inventory-alerts
// @Accept       json
// @Produce      json
// @Param        request body UpsertRuleRequest true "Rule"
// @Success      200 {object} APIResponse[inventoryapp.RuleResponse]
// @Failure      400 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /inventory/replenishment-rules [put]
func (h *AlertHandler) UpsertRule(c *gin.Context) {
	companyID, actorID, ok := h.principal(c)
	if !ok {
		return
	}

	var req UpsertRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	appReq, err := req.toApp()
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	rule, err := h.alerts.UpsertRule(c.Request.Context(), companyID, actorID, appReq)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, rule)
}

// ListRules godoc
// @ID           listReplenishmentRules
// @Summary      List replenishment rules
// @Tags         inventory-alerts
// @Produce      json
// @Success      200 {object} APIResponse[[]inventoryapp.RuleResponse]
// @Security     BearerAuth
// @Router       /inventory/replenishment-rules [get]
func (h *AlertHandler) ListRules(c *gin.Context) {
	companyID, _, ok := h.principal(c)
	if !ok {
		return
	}

	var q PageRequest
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return
	}
	q.Normalize()

	rules, total, err := h.alerts.ListRules(c.Request.Context(), companyID, q.Page, q.PageSize)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, rules, total, q.Page, q.PageSize)
}

// ListAlerts godoc
// @ID           listStockAlerts
// @Summary      List stock alerts
// @Tags         inventory-alerts
// @Produce      json
// @Param        status query string false "Status" Enums(open, resolved)
// @Success      200 {object} APIResponse[[]inventoryapp.AlertResponse]
// @Security     BearerAuth
// @Router       /inventory/alerts [get]
func (h *AlertHandler) ListAlerts(c *gin.Context) {
	companyID, _, ok := h.principal(c)
	if !ok {
		return
	}

	var q AlertListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return
	}
	q.Normalize()

	alerts, total, err := h.alerts.ListAlerts(c.Request.Context(), companyID, inventoryapp.AlertListFilter{
		Status:   q.Status,
		Page:     q.Page,
		PageSize: q.PageSize,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, alerts, total, q.Page, q.PageSize)
}

// Evaluate re-evaluates one scope against its rule
func (h *AlertHandler) Evaluate(c *gin.Context) {
	companyID, _, ok := h.principal(c)
	if !ok {
		return
	}

	var req EvaluateScopeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	eval, err := h.alerts.EvaluateScope(c.Request.Context(), companyID, uuid.MustParse(req.LocationID), uuid.MustParse(req.VariantID))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, eval)
}

// Sweep godoc
// @ID           sweepStockAlerts
// @Summary      Evaluate every active rule of the company
// @Tags         inventory-alerts
// @Produce      json
// @Success      200 {object} APIResponse[inventoryapp.SweepSummary]
// @Security     BearerAuth
// @Router       /inventory/alerts/sweep [post]
func (h *AlertHandler) Sweep(c *gin.Context) {
	companyID, _, ok := h.principal(c)
	if !ok {
		return
	}

	summary, err := h.alerts.Sweep(c.Request.Context(), companyID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, summary)
}
