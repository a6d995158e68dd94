package handler

import (
	"context"

	eventapp "github.com/erp/stockledger/internal/application/event"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DeadLetters is the outbox administration surface used by OutboxHandler
type DeadLetters interface {
	List(ctx context.Context, companyID uuid.UUID, page, pageSize int) ([]eventapp.OutboxEntryResponse, int64, error)
	Get(ctx context.Context, companyID, id uuid.UUID) (*eventapp.OutboxEntryResponse, error)
	Retry(ctx context.Context, companyID, id uuid.UUID) (*eventapp.OutboxEntryResponse, error)
	RetryAll(ctx context.Context, companyID uuid.UUID) (int, error)
	Stats(ctx context.Context) (*eventapp.OutboxStats, error)
}

// OutboxHandler exposes outbox dead letters to operators
type OutboxHandler struct {
	BaseHandler
	deadLetters DeadLetters
}

// NewOutboxHandler creates a new OutboxHandler
func NewOutboxHandler(deadLetters DeadLetters) *OutboxHandler {
	return &OutboxHandler{deadLetters: deadLetters}
}

// RetryAllResponse reports how many dead letters were reset
type RetryAllResponse struct {
	Reset int `json:"reset"`
}

// ListDeadLetters godoc
// @ID           listDeadLetters
// @Summary      List outbox entries that exhausted their retries
// @Tags         events
// @Produce      json
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(50)
// @Success      200 {object} APIResponse[[]eventapp.OutboxEntryResponse]
// @Security     BearerAuth
// @Router       /events/dead-letters [get]
func (h *OutboxHandler) ListDeadLetters(c *gin.Context) {
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

	entries, total, err := h.deadLetters.List(c.Request.Context(), companyID, q.Page, q.PageSize)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, entries, total, q.Page, q.PageSize)
}

// GetEntry godoc
// @ID           getOutboxEntry
// @Summary      Get one outbox entry
// @Tags         events
// @Produce      json
// @Param        id path string true "Entry ID" format(uuid)
// @Success      200 {object} APIResponse[eventapp.OutboxEntryResponse]
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /events/entries/{id} [get]
func (h *OutboxHandler) GetEntry(c *gin.Context) {
	companyID, _, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	entry, err := h.deadLetters.Get(c.Request.Context(), companyID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entry)
}

// Retry godoc
// @ID           retryDeadLetter
// @Summary      Reset a dead letter to pending
// @Tags         events
// @Produce      json
// @Param        id path string true "Entry ID" format(uuid)
// @Success      200 {object} APIResponse[eventapp.OutboxEntryResponse]
// @Failure      409 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /events/dead-letters/{id}/retry [post]
func (h *OutboxHandler) Retry(c *gin.Context) {
	companyID, _, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	entry, err := h.deadLetters.Retry(c.Request.Context(), companyID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entry)
}

// RetryAll godoc
// @ID           retryAllDeadLetters
// @Summary      Reset every dead letter of the company
// @Tags         events
// @Produce      json
// @Success      200 {object} APIResponse[RetryAllResponse]
// @Security     BearerAuth
// @Router       /events/dead-letters/retry [post]
func (h *OutboxHandler) RetryAll(c *gin.Context) {
	companyID, _, ok := h.principal(c)
	if !ok {
		return
	}
	n, err := h.deadLetters.RetryAll(c.Request.Context(), companyID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, RetryAllResponse{Reset: n})
}

// Stats godoc
// @ID           outboxStats
// @Summary      Count outbox entries per delivery status
// @Tags         events
// @Produce      json
// @Success      200 {object} APIResponse[eventapp.OutboxStats]
// @Security     BearerAuth
// @Router       /events/stats [get]
func (h *OutboxHandler) Stats(c *gin.Context) {
	stats, err := h.deadLetters.Stats(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, stats)
}
