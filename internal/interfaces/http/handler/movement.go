package handler

import (
	"context"

	inventoryapp "github.com/erp/stockledger/internal/application/inventory"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// MovementService is the ledger surface used by MovementHandler
type MovementService interface {
	Append(ctx context.Context, companyID, actorID uuid.UUID, req inventoryapp.AppendMovementRequest) (*inventoryapp.AppendResult, error)
	Reverse(ctx context.Context, companyID, actorID, movementID uuid.UUID, reason, note string) (*inventoryapp.AppendResult, error)
	Get(ctx context.Context, companyID, movementID uuid.UUID) (*inventoryapp.MovementResponse, error)
	List(ctx context.Context, companyID uuid.UUID, filter inventoryapp.MovementListFilter) ([]inventoryapp.MovementResponse, int64, error)
}

// MovementHandler handles stock ledger endpoints
type MovementHandler struct {
	BaseHandler
	ledger MovementService
}

// NewMovementHandler creates a new MovementHandler
func NewMovementHandler(ledger MovementService) *MovementHandler {
	return &MovementHandler{ledger: ledger}
}

// Append godoc
// @ID           appendMovement
// @Summary      Append a stock movement
// @Description  Appends an immutable ledger entry and updates balances and valuation layers atomically.
// @Description  Warnings such as negative_balance are returned alongside the committed movement.
// @Tags         inventory-movements
// @Accept       json
// @Produce      json
// @Param        request body AppendMovementRequest true "Movement"
// @Success      201 {object} APIResponse[inventoryapp.AppendResult]
// @Failure      400 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /inventory/movements [post]
func (h *MovementHandler) Append(c *gin.Context) {
	companyID, actorID, ok := h.principal(c)
	if !ok {
		return
	}

	var req AppendMovementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	appReq, err := req.toApp()
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.ledger.Append(c.Request.Context(), companyID, actorID, appReq)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// Reverse godoc
// @ID           reverseMovement
// @Summary      Reverse a stock movement
// @Description  Appends a correcting movement with the opposite effect. The original entry is never modified.
// @Tags         inventory-movements
// @Accept       json
// @Produce      json
// @Param        id path string true "Movement ID" format(uuid)
// @Param        request body ReverseMovementRequest true "Reason"
// @Success      201 {object} APIResponse[inventoryapp.AppendResult]
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /inventory/movements/{id}/reverse [post]
func (h *MovementHandler) Reverse(c *gin.Context) {
	companyID, actorID, ok := h.principal(c)
	if !ok {
		return
	}
	movementID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}

	var req ReverseMovementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	result, err := h.ledger.Reverse(c.Request.Context(), companyID, actorID, movementID, req.ReasonCode, req.Note)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// Get godoc
// @ID           getMovement
// @Summary      Get a stock movement
// @Tags         inventory-movements
// @Produce      json
// @Param        id path string true "Movement ID" format(uuid)
// @Success      200 {object} APIResponse[inventoryapp.MovementResponse]
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /inventory/movements/{id} [get]
func (h *MovementHandler) Get(c *gin.Context) {
	companyID, _, ok := h.principal(c)
	if !ok {
		return
	}
	movementID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}

	movement, err := h.ledger.Get(c.Request.Context(), companyID, movementID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, movement)
}

// List godoc
// @ID           listMovements
// @Summary      List stock movements
// @Tags         inventory-movements
// @Produce      json
// @Param        variant_id query string false "Variant ID" format(uuid)
// @Param        location_id query string false "Source or destination location" format(uuid)
// @Param        movement_type query string false "Movement type" Enums(inbound, outbound, transfer, adjustment, count_adjustment)
// @Param        from query string false "Occurred at or after (RFC3339 or date)"
// @Param        to query string false "Occurred before (RFC3339 or date)"
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(50) maximum(500)
// @Success      200 {object} APIResponse[[]inventoryapp.MovementResponse]
// @Security     BearerAuth
// @Router       /inventory/movements [get]
func (h *MovementHandler) List(c *gin.Context) {
	companyID, _, ok := h.principal(c)
	if !ok {
		return
	}

	var q MovementListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return
	}
	filter, err := q.toFilter()
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	movements, total, err := h.ledger.List(c.Request.Context(), companyID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, movements, total, filter.Page, filter.PageSize)
}
