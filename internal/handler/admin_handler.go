package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutor-schedule-api/internal/dto"
	"github.com/noah-isme/tutor-schedule-api/internal/middleware"
	"github.com/noah-isme/tutor-schedule-api/internal/models"
	"github.com/noah-isme/tutor-schedule-api/internal/service"
	appErrors "github.com/noah-isme/tutor-schedule-api/pkg/errors"
	"github.com/noah-isme/tutor-schedule-api/pkg/jobs"
	"github.com/noah-isme/tutor-schedule-api/pkg/middleware/requestid"
	"github.com/noah-isme/tutor-schedule-api/pkg/response"
)

type sweepRunner interface {
	Run(ctx context.Context) (*models.SweepResult, error)
}

type jobEnqueuer interface {
	TryEnqueue(job jobs.Job) (string, error)
}

type scopeInvalidator interface {
	Invalidate(ctx context.Context, userID string) error
	InvalidateAll(ctx context.Context) error
}

// AdminHandler exposes operator endpoints.
type AdminHandler struct {
	sweep  sweepRunner
	queue  jobEnqueuer
	scopes scopeInvalidator
}

// NewAdminHandler constructs AdminHandler. A nil queue makes every sweep trigger synchronous.
func NewAdminHandler(sweep sweepRunner, queue jobEnqueuer, scopes scopeInvalidator) *AdminHandler {
	return &AdminHandler{sweep: sweep, queue: queue, scopes: scopes}
}

// TriggerSweep godoc
// @Summary Complete past-due sessions now
// @Description With async=true the sweep is queued and 202 is returned.
// @Tags Admin
// @Produce json
// @Param async query bool false "Queue instead of waiting"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/sweep [post]
func (h *AdminHandler) TriggerSweep(c *gin.Context) {
	if h.queue != nil && strings.EqualFold(c.Query("async"), "true") {
		trigger := service.SweepTrigger{RequestID: requestid.Value(c)}
		if claims, ok := middleware.ClaimsFromContext(c); ok {
			trigger.RequestedBy = claims.UserID
		}
		id, err := h.queue.TryEnqueue(jobs.Job{Type: service.SweepJobType, Payload: trigger})
		if err != nil {
			if errors.Is(err, jobs.ErrQueueFull) {
				response.Error(c, appErrors.Clone(appErrors.ErrConflict, "sweep queue is full"))
				return
			}
			response.Error(c, err)
			return
		}
		response.Accepted(c, dto.SweepTriggerResponse{JobID: id, Status: "queued"})
		return
	}

	result, err := h.sweep.Run(c.Request.Context())
	if err != nil {
		if errors.Is(err, service.ErrSweepRunning) {
			response.Error(c, appErrors.Clone(appErrors.ErrConflict, "sweep already running"))
			return
		}
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// InvalidateScope godoc
// @Summary Drop the cached scope of one user
// @Tags Admin
// @Param user_id path string true "User ID"
// @Success 204
// @Router /admin/scope-cache/{user_id} [delete]
func (h *AdminHandler) InvalidateScope(c *gin.Context) {
	userID, ok := uuidParam(c, "user_id")
	if !ok {
		return
	}
	if err := h.scopes.Invalidate(c.Request.Context(), userID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// InvalidateAllScopes godoc
// @Summary Drop every cached scope
// @Tags Admin
// @Success 204
// @Router /admin/scope-cache [delete]
func (h *AdminHandler) InvalidateAllScopes(c *gin.Context) {
	if err := h.scopes.InvalidateAll(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
