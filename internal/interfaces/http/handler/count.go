package handler

import (
	"context"

	inventoryapp "github.com/erp/stockledger/internal/application/inventory"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CountSessions is the count surface used by CountHandler
type CountSessions interface {
	Open(ctx context.Context, companyID, actorID, locationID uuid.UUID, note string) (*inventoryapp.CountSessionResponse, error)
	RecordLines(ctx context.Context, companyID, sessionID uuid.UUID, lines []inventoryapp.CountLineRequest) (*inventoryapp.CountSessionResponse, error)
	Close(ctx context.Context, companyID, actorID, sessionID uuid.UUID) (*inventoryapp.CloseCountResult, error)
	CloseMany(ctx context.Context, companyID, actorID uuid.UUID, sessionIDs []uuid.UUID) *inventoryapp.CloseManySummary
	Get(ctx context.Context, companyID, sessionID uuid.UUID) (*inventoryapp.CountSessionResponse, error)
	List(ctx context.Context, companyID uuid.UUID, filter inventoryapp.CountSessionListFilter) ([]inventoryapp.CountSessionResponse, int64, error)
}

// CountHandler handles physical count sessions
type CountHandler struct {
	BaseHandler
	counts CountSessions
}

// NewCountHandler creates a new CountHandler
func NewCountHandler(counts CountSessions) *CountHandler {
	return &CountHandler{counts: counts}
}

// Open godoc
// @ID           openCountSession
// @Summary      Open a count session for a location
// @Tags         inventory-counts
// @Accept       json
// @Produce      json
// @Param        request body OpenCountSessionRequest true "Session"
// @Success      201 {object} APIResponse[inventoryapp.CountSessionResponse]
// @Security     BearerAuth
// @Router       /inventory/count-sessions [post]
func (h *CountHandler) Open(c *gin.Context) {
	companyID, actorID, ok := h.principal(c)
	if !ok {
		return
	}

	var req OpenCountSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	session, err := h.counts.Open(c.Request.Context(), companyID, actorID, uuid.MustParse(req.LocationID), req.Note)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, session)
}

// Get godoc
// @ID           getCountSession
// @Summary      Get a count session with its lines
// @Tags         inventory-counts
// @Produce      json
// @Param        id path string true "Session ID" format(uuid)
// @Success      200 {object} APIResponse[inventoryapp.CountSessionResponse]
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /inventory/count-sessions/{id} [get]
func (h *CountHandler) Get(c *gin.Context) {
	companyID, _, ok := h.principal(c)
	if !ok {
		return
	}
	sessionID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}

	session, err := h.counts.Get(c.Request.Context(), companyID, sessionID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, session)
}

// List godoc
// @ID           listCountSessions
// @Summary      List count sessions
// @Tags         inventory-counts
// @Produce      json
// @Param        status query string false "Status" Enums(draft, in_progress, closed)
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(50)
// @Success      200 {object} APIResponse[[]inventoryapp.CountSessionResponse]
// @Security     BearerAuth
// @Router       /inventory/count-sessions [get]
func (h *CountHandler) List(c *gin.Context) {
	companyID, _, ok := h.principal(c)
	if !ok {
		return
	}

	var q CountSessionListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return
	}
	q.Normalize()

	sessions, total, err := h.counts.List(c.Request.Context(), companyID, inventoryapp.CountSessionListFilter{
		Status:   q.Status,
		Page:     q.Page,
		PageSize: q.PageSize,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, sessions, total, q.Page, q.PageSize)
}

// RecordLines godoc
// @ID           recordCountLines
// @Summary      Record counted quantities
// @Description  Lines replace earlier lines for the same variant and lot. Expected quantity defaults to the current balance.
// @Tags         inventory-counts
// @Accept       json
// @Produce      json
// @Param        id path string true "Session ID" format(uuid)
// @Param        request body RecordCountLinesRequest true "Lines"
// @Success      200 {object} APIResponse[inventoryapp.CountSessionResponse]
// @Failure      409 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /inventory/count-sessions/{id}/lines [put]
func (h *CountHandler) RecordLines(c *gin.Context) {
	companyID, _, ok := h.principal(c)
	if !ok {
		return
	}
	sessionID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}

	var req RecordCountLinesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	lines, err := req.toApp()
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	session, err := h.counts.RecordLines(c.Request.Context(), companyID, sessionID, lines)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, session)
}

// Close godoc
// @ID           closeCountSession
// @Summary      Close a count session
// @Description  Emits one count_adjustment movement per line whose counted quantity differs from the expected one.
// @Tags         inventory-counts
// @Produce      json
// @Param        id path string true "Session ID" format(uuid)
// @Success      200 {object} APIResponse[inventoryapp.CloseCountResult]
// @Failure      409 {object} ErrorResponse "Session already closed"
// @Security     BearerAuth
// @Router       /inventory/count-sessions/{id}/close [post]
func (h *CountHandler) Close(c *gin.Context) {
	companyID, actorID, ok := h.principal(c)
	if !ok {
		return
	}
	sessionID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}

	result, err := h.counts.Close(c.Request.Context(), companyID, actorID, sessionID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// CloseMany closes several sessions independently. A partial failure
// answers 202 with per-session outcomes.
func (h *CountHandler) CloseMany(c *gin.Context) {
	companyID, actorID, ok := h.principal(c)
	if !ok {
		return
	}

	var req CloseCountSessionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	ids := make([]uuid.UUID, len(req.SessionIDs))
	for i, s := range req.SessionIDs {
		ids[i] = uuid.MustParse(s)
	}

	summary := h.counts.CloseMany(c.Request.Context(), companyID, actorID, ids)
	if summary.Failed > 0 {
		h.Accepted(c, summary)
		return
	}
	h.Success(c, summary)
}
