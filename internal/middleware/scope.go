package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutor-schedule-api/internal/models"
	appErrors "github.com/noah-isme/tutor-schedule-api/pkg/errors"
	"github.com/noah-isme/tutor-schedule-api/pkg/response"
)

// ContextScopeKey is the gin context key storing the caller's resolved scope.
const ContextScopeKey = "callerScope"

// ScopeResolver loads a user's stored campus and teacher binding.
type ScopeResolver interface {
	Get(ctx context.Context, userID string) (*models.UserScope, error)
}

// Scope resolves the caller's campus restriction after JWT has run.
// Super admins are never restricted; only the TEACHER role is bound to its teacher id.
func Scope(resolver ScopeResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFromContext(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if claims.Role == models.RoleSuperAdmin {
			c.Set(ContextScopeKey, models.Unrestricted(claims.UserID))
			c.Next()
			return
		}

		stored, err := resolver.Get(c.Request.Context(), claims.UserID)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		scope := stored.Scope()
		scope.UserID = claims.UserID
		if claims.Role != models.RoleTeacher {
			scope.IsTeacher = false
			scope.TeacherID = ""
		} else if !scope.IsTeacher {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "teacher account is not linked to a teacher"))
			c.Abort()
			return
		}
		c.Set(ContextScopeKey, scope)
		c.Next()
	}
}

// ScopeFromContext returns the scope stored by Scope.
func ScopeFromContext(c *gin.Context) (models.Scope, bool) {
	value, exists := c.Get(ContextScopeKey)
	if !exists {
		return models.Scope{}, false
	}
	scope, ok := value.(models.Scope)
	return scope, ok
}
