package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutor-schedule-api/internal/dto"
	"github.com/noah-isme/tutor-schedule-api/internal/middleware"
	"github.com/noah-isme/tutor-schedule-api/internal/models"
	"github.com/noah-isme/tutor-schedule-api/internal/service"
	appErrors "github.com/noah-isme/tutor-schedule-api/pkg/errors"
	"github.com/noah-isme/tutor-schedule-api/pkg/response"
)

type sessionManager interface {
	Create(ctx context.Context, scope models.Scope, req dto.CreateSessionRequest) (*models.SessionDetail, error)
	Get(ctx context.Context, scope models.Scope, id string) (*models.SessionDetail, error)
	List(ctx context.Context, scope models.Scope, query dto.SessionListQuery) ([]models.SessionDetail, *models.Pagination, error)
	Update(ctx context.Context, scope models.Scope, id string, req dto.UpdateSessionRequest) (*models.SessionDetail, error)
	Delete(ctx context.Context, scope models.Scope, id string) error
}

type sessionStatusChanger interface {
	TransitionStatus(ctx context.Context, scope models.Scope, sessionID string, next models.SessionStatus) (*models.SessionDetail, error)
}

type timetableExporter interface {
	Export(ctx context.Context, scope models.Scope, query dto.SessionListQuery, format string) (*service.ExportFile, error)
}

// SessionHandler exposes single-session endpoints.
type SessionHandler struct {
	sessions  sessionManager
	lifecycle sessionStatusChanger
	exporter  timetableExporter
}

// NewSessionHandler constructs SessionHandler.
func NewSessionHandler(sessions sessionManager, lifecycle sessionStatusChanger, exporter timetableExporter) *SessionHandler {
	return &SessionHandler{sessions: sessions, lifecycle: lifecycle, exporter: exporter}
}

// Create godoc
// @Summary Create a session
// @Description Conflict-checks and stores one session. A section with no active enrollment is rejected unless ignore_roster is set.
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body dto.CreateSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions [post]
func (h *SessionHandler) Create(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var req dto.CreateSessionRequest
	if !bindJSON(c, nil, &req) {
		return
	}
	session, err := h.sessions.Create(c.Request.Context(), scope, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// List godoc
// @Summary List sessions
// @Tags Sessions
// @Produce json
// @Param class_section_id query string false "Class section ID"
// @Param teacher_id query string false "Effective teacher ID"
// @Param classroom_id query string false "Effective classroom ID"
// @Param batch_no query string false "Batch number"
// @Param status query string false "scheduled, completed or cancelled"
// @Param date_from query string false "YYYY-MM-DD"
// @Param date_to query string false "YYYY-MM-DD"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Param sort_order query string false "asc or desc"
// @Success 200 {object} response.Envelope
// @Router /sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var query dto.SessionListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid query parameters"))
		return
	}
	sessions, pagination, err := h.sessions.List(c.Request.Context(), scope, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, pagination, middleware.ExtractMeta(c))
}

// Export godoc
// @Summary Export the timetable
// @Description Renders every session matching the list filters as a CSV or PDF download, oldest first.
// @Tags Sessions
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv (default) or pdf"
// @Param class_section_id query string false "Class section ID"
// @Param teacher_id query string false "Effective teacher ID"
// @Param classroom_id query string false "Effective classroom ID"
// @Param status query string false "scheduled, completed or cancelled"
// @Param date_from query string false "YYYY-MM-DD"
// @Param date_to query string false "YYYY-MM-DD"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /sessions/export [get]
func (h *SessionHandler) Export(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var query dto.SessionListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid query parameters"))
		return
	}
	file, err := h.exporter.Export(c.Request.Context(), scope, query, c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}

// Get godoc
// @Summary Get a session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sessions/{id} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	session, err := h.sessions.Get(c.Request.Context(), scope, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Update godoc
// @Summary Edit a session
// @Description Omitted fields are unchanged. A status value runs the same transition as PATCH /sessions/{id}/status.
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.UpdateSessionRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id} [put]
func (h *SessionHandler) Update(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateSessionRequest
	if !bindJSON(c, nil, &req) {
		return
	}
	session, err := h.sessions.Update(c.Request.Context(), scope, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Delete godoc
// @Summary Delete a session
// @Tags Sessions
// @Param id path string true "Session ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id} [delete]
func (h *SessionHandler) Delete(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.sessions.Delete(c.Request.Context(), scope, id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// TransitionStatus godoc
// @Summary Change a session's status
// @Description Completing a session charges lesson hours to every active enrollment; leaving completed reverses the charge.
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.TransitionStatusRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id}/status [patch]
func (h *SessionHandler) TransitionStatus(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req dto.TransitionStatusRequest
	if !bindJSON(c, nil, &req) {
		return
	}
	session, err := h.lifecycle.TransitionStatus(c.Request.Context(), scope, id, models.SessionStatus(req.Status))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}
