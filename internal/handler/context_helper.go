package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/noah-isme/tutor-schedule-api/internal/middleware"
	"github.com/noah-isme/tutor-schedule-api/internal/models"
	"github.com/noah-isme/tutor-schedule-api/internal/service"
	appErrors "github.com/noah-isme/tutor-schedule-api/pkg/errors"
	"github.com/noah-isme/tutor-schedule-api/pkg/response"
)

// scopeFromContext returns the caller scope or writes a 401 and reports false.
func scopeFromContext(c *gin.Context) (models.Scope, bool) {
	scope, ok := middleware.ScopeFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return models.Scope{}, false
	}
	return scope, true
}

// uuidParam reads a path parameter that must be a UUID.
func uuidParam(c *gin.Context, name string) (string, bool) {
	raw := c.Param(name)
	if _, err := uuid.Parse(raw); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, name+" must be a valid UUID"))
		return "", false
	}
	return raw, true
}

// bindJSON decodes and validates a request body.
func bindJSON(c *gin.Context, validate *validator.Validate, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid JSON payload"))
		return false
	}
	if validate == nil {
		return true
	}
	if err := validate.Struct(dest); err != nil {
		response.Error(c, service.ValidationError(err))
		return false
	}
	return true
}
