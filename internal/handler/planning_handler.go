package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/tutor-schedule-api/internal/dto"
	"github.com/noah-isme/tutor-schedule-api/internal/models"
	"github.com/noah-isme/tutor-schedule-api/internal/service"
	appErrors "github.com/noah-isme/tutor-schedule-api/pkg/errors"
	"github.com/noah-isme/tutor-schedule-api/pkg/response"
)

type conflictChecker interface {
	CheckConflicts(ctx context.Context, scope models.Scope, candidate models.ConflictCandidate) (*models.ConflictReport, error)
}

type hoursSummarizer interface {
	Summary(ctx context.Context, scope models.Scope, classSectionID string) (*models.HoursSummary, error)
}

type hoursSummaryResponse struct {
	*models.HoursSummary
	LessonHours *float64 `json:"lesson_hours,omitempty"`
	MaxSessions *int     `json:"max_sessions,omitempty"`
}

// PlanningHandler exposes the read-only planning checks.
type PlanningHandler struct {
	conflicts conflictChecker
	hours     hoursSummarizer
	validator *validator.Validate
}

// NewPlanningHandler constructs PlanningHandler.
func NewPlanningHandler(conflicts conflictChecker, hours hoursSummarizer, validate *validator.Validate) *PlanningHandler {
	if validate == nil {
		validate = service.NewValidator()
	}
	return &PlanningHandler{conflicts: conflicts, hours: hours, validator: validate}
}

// CheckConflicts godoc
// @Summary Check one candidate session for conflicts
// @Tags Planning
// @Accept json
// @Produce json
// @Param payload body dto.ConflictCheckRequest true "Candidate session"
// @Success 200 {object} response.Envelope
// @Router /sessions/conflicts [post]
func (h *PlanningHandler) CheckConflicts(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var req dto.ConflictCheckRequest
	if !bindJSON(c, h.validator, &req) {
		return
	}
	candidate, err := req.ToCandidate()
	if err != nil {
		response.Error(c, service.ValidationError(err))
		return
	}
	report, err := h.conflicts.CheckConflicts(c.Request.Context(), scope, candidate)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// HoursSummary godoc
// @Summary Hours rollup of a class section
// @Description With lesson_hours, also reports how many more sessions every active student can afford.
// @Tags Planning
// @Produce json
// @Param id path string true "Class section ID"
// @Param lesson_hours query number false "Hours per planned session"
// @Success 200 {object} response.Envelope
// @Router /class-sections/{id}/hours-summary [get]
func (h *PlanningHandler) HoursSummary(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	resp := hoursSummaryResponse{}
	if raw := c.Query("lesson_hours"); raw != "" {
		lessonHours, err := strconv.ParseFloat(raw, 64)
		if err != nil || lessonHours <= 0 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "lesson_hours must be a positive number"))
			return
		}
		resp.LessonHours = &lessonHours
	}
	summary, err := h.hours.Summary(c.Request.Context(), scope, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	resp.HoursSummary = summary
	if resp.LessonHours != nil {
		maxSessions := service.MaxSessions(summary, *resp.LessonHours)
		resp.MaxSessions = &maxSessions
	}
	response.JSON(c, http.StatusOK, resp, nil)
}
