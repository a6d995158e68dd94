package handler

import (
	"context"

	inventoryapp "github.com/erp/stockledger/internal/application/inventory"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ValuationReader is the valuation surface used by ValuationHandler
type ValuationReader interface {
	Valuation(ctx context.Context, companyID uuid.UUID, method string) (*inventoryapp.ValuationResponse, error)
	ValuationByVariant(ctx context.Context, companyID uuid.UUID, method string) (*inventoryapp.ValuationResponse, error)
	Layers(ctx context.Context, companyID uuid.UUID, q inventoryapp.LayerQuery) ([]inventoryapp.LayerResponse, error)
	Replay(ctx context.Context, companyID, variantID uuid.UUID) (*inventoryapp.ValuationReplayResponse, error)
}

// ValuationHandler serves inventory valuation
type ValuationHandler struct {
	BaseHandler
	valuation ValuationReader
}

// NewValuationHandler creates a new ValuationHandler
func NewValuationHandler(valuation ValuationReader) *ValuationHandler {
	return &ValuationHandler{valuation: valuation}
}

// ValuationQuery holds valuation query parameters
type ValuationQuery struct {
	Method    string `form:"method" binding:"omitempty,oneof=fifo wac"`
	ByVariant bool   `form:"by_variant"`
}

// Valuation godoc
// @ID           getValuation
// @Summary      Get inventory value
// @Description  Sums the remaining cost of open layers. Omitting method uses the company default.
// @Tags         inventory-valuation
// @Produce      json
// @Param        method query string false "Cost method" Enums(fifo, wac)
// @Param        by_variant query bool false "Include the per-variant breakdown"
// @Success      200 {object} APIResponse[inventoryapp.ValuationResponse]
// @Security     BearerAuth
// @Router       /inventory/valuation [get]
func (h *ValuationHandler) Valuation(c *gin.Context) {
	companyID, _, ok := h.principal(c)
	if !ok {
		return
	}

	var q ValuationQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return
	}

	valuate := h.valuation.Valuation
	if q.ByVariant {
		valuate = h.valuation.ValuationByVariant
	}
	resp, err := valuate(c.Request.Context(), companyID, q.Method)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Layers godoc
// @ID           listValuationLayers
// @Summary      List valuation layers
// @Tags         inventory-valuation
// @Produce      json
// @Param        variant_id query string false "Variant ID" format(uuid)
// @Param        location_id query string false "Location ID" format(uuid)
// @Param        method query string false "Cost method" Enums(fifo, wac)
// @Param        only_open query bool false "Only layers with remaining quantity"
// @Success      200 {object} APIResponse[[]inventoryapp.LayerResponse]
// @Security     BearerAuth
// @Router       /inventory/valuation/layers [get]
func (h *ValuationHandler) Layers(c *gin.Context) {
	companyID, _, ok := h.principal(c)
	if !ok {
		return
	}

	var q LayerListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return
	}
	variantID, _ := parseOptionalUUID(q.VariantID)
	locationID, _ := parseOptionalUUID(q.LocationID)

	layers, err := h.valuation.Layers(c.Request.Context(), companyID, inventoryapp.LayerQuery{
		VariantID:  variantID,
		LocationID: locationID,
		Method:     q.Method,
		OnlyOpen:   q.OnlyOpen,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, layers)
}

// Replay re-folds a variant's ledger through the cost engine and compares
// the result with the stored layers
// @ID           replayVariantValuation
// @Tags         inventory-valuation
// @Produce      json
// @Param        id path string true "Variant ID" format(uuid)
// @Success      200 {object} APIResponse[inventoryapp.ValuationReplayResponse]
// @Security     BearerAuth
// @Router       /inventory/variants/{id}/valuation-replay [get]
func (h *ValuationHandler) Replay(c *gin.Context) {
	companyID, _, ok := h.principal(c)
	if !ok {
		return
	}
	variantID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}

	resp, err := h.valuation.Replay(c.Request.Context(), companyID, variantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}
