package handler

import (
	"context"

	inventoryapp "github.com/erp/stockledger/internal/application/inventory"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// BalanceReader is the balance surface used by BalanceHandler
type BalanceReader interface {
	Get(ctx context.Context, companyID uuid.UUID, q inventoryapp.BalanceQuery) (*inventoryapp.BalanceResponse, error)
	ListByVariant(ctx context.Context, companyID, variantID uuid.UUID) ([]inventoryapp.BalanceResponse, error)
	ListByLocation(ctx context.Context, companyID, locationID uuid.UUID, page, pageSize int) ([]inventoryapp.BalanceResponse, int64, error)
	VerifyReplay(ctx context.Context, companyID, variantID uuid.UUID) (*inventoryapp.ReplayReport, error)
	RebuildFromLedger(ctx context.Context, companyID, actorID, variantID uuid.UUID) (*inventoryapp.ReplayReport, error)
}

// BalanceHandler serves the materialised balances and their replay checks
type BalanceHandler struct {
	BaseHandler
	balances BalanceReader
}

// NewBalanceHandler creates a new BalanceHandler
func NewBalanceHandler(balances BalanceReader) *BalanceHandler {
	return &BalanceHandler{balances: balances}
}

// Query godoc
// @ID           queryBalances
// @Summary      Query stock balances
// @Description  With location_id and variant_id returns one scope. With only one of them returns every scope it matches.
// @Tags         inventory-balances
// @Produce      json
// @Param        location_id query string false "Location ID" format(uuid)
// @Param        variant_id query string false "Variant ID" format(uuid)
// @Param        lot_id query string false "Lot ID" format(uuid)
// @Param        container_id query string false "Container ID" format(uuid)
// @Success      200 {object} APIResponse[[]inventoryapp.BalanceResponse]
// @Failure      400 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /inventory/balances [get]
func (h *BalanceHandler) Query(c *gin.Context) {
	companyID, _, ok := h.principal(c)
	if !ok {
		return
	}

	var q BalanceScopeQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return
	}
	q.Normalize()
	ctx := c.Request.Context()

	switch {
	case q.LocationID != "" && q.VariantID != "":
		lotID, _ := parseOptionalUUID(q.LotID)
		containerID, _ := parseOptionalUUID(q.ContainerID)
		balance, err := h.balances.Get(ctx, companyID, inventoryapp.BalanceQuery{
			LocationID:  uuid.MustParse(q.LocationID),
			VariantID:   uuid.MustParse(q.VariantID),
			LotID:       lotID,
			ContainerID: containerID,
		})
		if err != nil {
			h.HandleError(c, err)
			return
		}
		h.Success(c, balance)

	case q.LocationID != "":
		balances, total, err := h.balances.ListByLocation(ctx, companyID, uuid.MustParse(q.LocationID), q.Page, q.PageSize)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		h.SuccessWithMeta(c, balances, total, q.Page, q.PageSize)

	case q.VariantID != "":
		balances, err := h.balances.ListByVariant(ctx, companyID, uuid.MustParse(q.VariantID))
		if err != nil {
			h.HandleError(c, err)
			return
		}
		h.Success(c, balances)

	default:
		h.BadRequest(c, "location_id or variant_id is required")
	}
}

// ListByVariant godoc
// @ID           listVariantBalances
// @Summary      List balances of a variant across locations
// @Tags         inventory-balances
// @Produce      json
// @Param        id path string true "Variant ID" format(uuid)
// @Success      200 {object} APIResponse[[]inventoryapp.BalanceResponse]
// @Security     BearerAuth
// @Router       /inventory/variants/{id}/balances [get]
func (h *BalanceHandler) ListByVariant(c *gin.Context) {
	companyID, _, ok := h.principal(c)
	if !ok {
		return
	}
	variantID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}

	balances, err := h.balances.ListByVariant(c.Request.Context(), companyID, variantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, balances)
}

// VerifyReplay godoc
// @ID           verifyVariantReplay
// @Summary      Compare stored balances against a ledger replay
// @Tags         inventory-balances
// @Produce      json
// @Param        id path string true "Variant ID" format(uuid)
// @Success      200 {object} APIResponse[inventoryapp.ReplayReport]
// @Security     BearerAuth
// @Router       /inventory/variants/{id}/replay [get]
func (h *BalanceHandler) VerifyReplay(c *gin.Context) {
	companyID, _, ok := h.principal(c)
	if !ok {
		return
	}
	variantID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}

	report, err := h.balances.VerifyReplay(c.Request.Context(), companyID, variantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}

// Rebuild rewrites a variant's balances from the ledger
// @ID           rebuildVariantBalances
// @Tags         inventory-balances
// @Produce      json
// @Param        id path string true "Variant ID" format(uuid)
// @Success      200 {object} APIResponse[inventoryapp.ReplayReport]
// @Security     BearerAuth
// @Router       /inventory/variants/{id}/rebuild [post]
func (h *BalanceHandler) Rebuild(c *gin.Context) {
	companyID, actorID, ok := h.principal(c)
	if !ok {
		return
	}
	variantID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}

	report, err := h.balances.RebuildFromLedger(c.Request.Context(), companyID, actorID, variantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}
