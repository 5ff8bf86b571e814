package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/tutor-schedule-api/internal/dto"
	"github.com/noah-isme/tutor-schedule-api/internal/middleware"
	"github.com/noah-isme/tutor-schedule-api/internal/models"
	"github.com/noah-isme/tutor-schedule-api/internal/service"
	appErrors "github.com/noah-isme/tutor-schedule-api/pkg/errors"
	"github.com/noah-isme/tutor-schedule-api/pkg/response"
)

type batchScheduler interface {
	PreviewBatch(ctx context.Context, scope models.Scope, spec models.BatchSpec) (*models.BatchPreview, error)
	CommitBatch(ctx context.Context, scope models.Scope, spec models.BatchSpec, mode models.BatchMode) (*models.BatchCommitResult, error)
	UpdateByIDs(ctx context.Context, scope models.Scope, ids []string, patch models.SessionPatch) (int, error)
	DeleteByIDs(ctx context.Context, scope models.Scope, ids []string) (int, error)
	DeleteByBatchNo(ctx context.Context, scope models.Scope, batchNo string) (int, error)
}

// BatchHandler exposes recurring-series endpoints.
type BatchHandler struct {
	batches   batchScheduler
	validator *validator.Validate
}

// NewBatchHandler constructs BatchHandler.
func NewBatchHandler(batches batchScheduler, validate *validator.Validate) *BatchHandler {
	if validate == nil {
		validate = service.NewValidator()
	}
	return &BatchHandler{batches: batches, validator: validate}
}

// Preview godoc
// @Summary Preview a recurring series
// @Description Expands the pattern and reports every conflicting instance without writing anything.
// @Tags Batches
// @Accept json
// @Produce json
// @Param payload body dto.BatchScheduleRequest true "Series definition"
// @Success 200 {object} response.Envelope
// @Router /sessions/batch/preview [post]
func (h *BatchHandler) Preview(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var req dto.BatchScheduleRequest
	if !bindJSON(c, h.validator, &req) {
		return
	}
	spec, err := req.ToSpec()
	if err != nil {
		response.Error(c, service.ValidationError(err))
		return
	}
	preview, err := h.batches.PreviewBatch(c.Request.Context(), scope, spec)
	if err != nil {
		response.Error(c, err)
		return
	}
	if preview.RosterWarning != "" {
		middleware.SetMeta(c, "roster_warning", preview.RosterWarning)
	}
	response.JSON(c, http.StatusOK, preview, nil, middleware.ExtractMeta(c))
}

// Commit godoc
// @Summary Create a recurring series
// @Description skip_conflicts stores every conflict-free instance; abort_on_conflict stores nothing when any instance conflicts.
// @Tags Batches
// @Accept json
// @Produce json
// @Param payload body dto.CommitBatchRequest true "Series definition and mode"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/batch [post]
func (h *BatchHandler) Commit(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var req dto.CommitBatchRequest
	if !bindJSON(c, h.validator, &req) {
		return
	}
	spec, err := req.ToSpec()
	if err != nil {
		response.Error(c, service.ValidationError(err))
		return
	}
	result, err := h.batches.CommitBatch(c.Request.Context(), scope, spec, models.BatchMode(req.Mode))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// UpdateMany godoc
// @Summary Edit many sessions
// @Description All-or-nothing. Completed sessions are skipped; any conflict aborts the whole update.
// @Tags Batches
// @Accept json
// @Produce json
// @Param payload body dto.BatchUpdateRequest true "Session IDs and fields to change"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/batch [patch]
func (h *BatchHandler) UpdateMany(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var req dto.BatchUpdateRequest
	if !bindJSON(c, h.validator, &req) {
		return
	}
	patch, err := req.Patch.ToPatch()
	if err != nil {
		response.Error(c, service.ValidationError(err))
		return
	}
	count, err := h.batches.UpdateByIDs(c.Request.Context(), scope, req.IDs, patch)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.CountResponse{Count: count}, nil)
}

// DeleteMany godoc
// @Summary Delete many sessions
// @Description Completed sessions are kept.
// @Tags Batches
// @Accept json
// @Produce json
// @Param payload body dto.BatchDeleteRequest true "Session IDs"
// @Success 200 {object} response.Envelope
// @Router /sessions/batch/delete [post]
func (h *BatchHandler) DeleteMany(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var req dto.BatchDeleteRequest
	if !bindJSON(c, h.validator, &req) {
		return
	}
	count, err := h.batches.DeleteByIDs(c.Request.Context(), scope, req.IDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.CountResponse{Count: count}, nil)
}

// DeleteBatch godoc
// @Summary Delete a series by batch number
// @Description Completed sessions of the series are kept.
// @Tags Batches
// @Produce json
// @Param batch_no path string true "Batch number"
// @Success 200 {object} response.Envelope
// @Router /sessions/batch/{batch_no} [delete]
func (h *BatchHandler) DeleteBatch(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	batchNo := strings.TrimSpace(c.Param("batch_no"))
	if batchNo == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "batch_no is required"))
		return
	}
	count, err := h.batches.DeleteByBatchNo(c.Request.Context(), scope, batchNo)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.CountResponse{Count: count}, nil)
}
