package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	inventoryapp "github.com/erp/stockledger/internal/application/inventory"
	"github.com/erp/stockledger/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Reconciler is the reconciliation surface used by ReconcileHandler
type Reconciler interface {
	Reconcile(ctx context.Context, companyID, actorID uuid.UUID, req inventoryapp.ReconcileRequest) (*inventoryapp.ReconcileSummary, error)
	ListRuns(ctx context.Context, companyID uuid.UUID, page, pageSize int) ([]inventoryapp.ReconcileRunResponse, int64, error)
	GetRun(ctx context.Context, companyID, runID uuid.UUID) (*inventoryapp.ReconcileRunResponse, error)
}

// ReportLinker issues download links for archived reports
type ReportLinker interface {
	DownloadURL(ctx context.Context, key string) (string, time.Time, error)
}

// ReconcileHandler handles marketplace stock reconciliation
type ReconcileHandler struct {
	BaseHandler
	reconciler Reconciler
	reports    ReportLinker
}

// NewReconcileHandler creates a new ReconcileHandler. reports may be nil
// when archiving is disabled.
func NewReconcileHandler(reconciler Reconciler, reports ReportLinker) *ReconcileHandler {
	return &ReconcileHandler{reconciler: reconciler, reports: reports}
}

// Reconcile godoc
// @ID           reconcileMarketplaceStock
// @Summary      Reconcile stock against a marketplace feed
// @Description  Reconciles the given feed, or fetches the configured marketplace when feed is omitted.
// @Description  Dry runs report planned corrections without writing. A concurrent run of the same feed answers 409.
// @Tags         inventory-reconcile
// @Accept       json
// @Produce      json
// @Param        request body ReconcileRequest false "Feed and options"
// @Success      200 {object} APIResponse[inventoryapp.ReconcileSummary]
// @Failure      409 {object} ErrorResponse
// @Failure      502 {object} ErrorResponse "Marketplace unavailable"
// @Security     BearerAuth
// @Router       /inventory/reconcile [post]
func (h *ReconcileHandler) Reconcile(c *gin.Context) {
	companyID, actorID, ok := h.principal(c)
	if !ok {
		return
	}

	var req ReconcileRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.BindError(c, err)
			return
		}
	}
	appReq, err := req.toApp()
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	summary, err := h.reconciler.Reconcile(c.Request.Context(), companyID, actorID, appReq)
	if err != nil {
		if errors.Is(err, inventoryapp.ErrFeedUnavailable) {
			_ = c.Error(err)
			h.Error(c, http.StatusBadGateway, dto.ErrCodeUpstreamUnavailable, "Marketplace feed could not be loaded")
			return
		}
		h.HandleError(c, err)
		return
	}
	h.Success(c, summary)
}

// ListRuns godoc
// @ID           listReconcileRuns
// @Summary      List past reconciliation runs
// @Tags         inventory-reconcile
// @Produce      json
// @Success      200 {object} APIResponse[[]inventoryapp.ReconcileRunResponse]
// @Security     BearerAuth
// @Router       /inventory/reconcile/runs [get]
func (h *ReconcileHandler) ListRuns(c *gin.Context) {
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

	runs, total, err := h.reconciler.ListRuns(c.Request.Context(), companyID, q.Page, q.PageSize)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, runs, total, q.Page, q.PageSize)
}

// ReportURL returns a presigned link to the archived report of a run
func (h *ReconcileHandler) ReportURL(c *gin.Context) {
	companyID, _, ok := h.principal(c)
	if !ok {
		return
	}
	runID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}

	run, err := h.reconciler.GetRun(c.Request.Context(), companyID, runID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if h.reports == nil || run.ArchiveKey == "" {
		h.NotFound(c, "No archived report for this run")
		return
	}

	url, expiresAt, err := h.reports.DownloadURL(c.Request.Context(), run.ArchiveKey)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, ReportURLResponse{
		Key:       run.ArchiveKey,
		URL:       url,
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
	})
}
