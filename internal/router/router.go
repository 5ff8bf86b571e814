package router

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutor-schedule-api/internal/handler"
	"github.com/noah-isme/tutor-schedule-api/internal/middleware"
	"github.com/noah-isme/tutor-schedule-api/internal/models"
)

// Handlers bundles the HTTP handlers mounted under the API prefix.
type Handlers struct {
	Sessions *handler.SessionHandler
	Batches  *handler.BatchHandler
	Planning *handler.PlanningHandler
	Admin    *handler.AdminHandler
	Metrics  *handler.MetricsHandler
}

// Auth holds the authentication collaborators of protected routes.
type Auth struct {
	Tokens middleware.TokenValidator
	Scopes middleware.ScopeResolver
}

var (
	anyRole  = []models.UserRole{models.RoleSuperAdmin, models.RoleAdmin, models.RoleStaff, models.RoleTeacher}
	planners = []models.UserRole{models.RoleSuperAdmin, models.RoleAdmin, models.RoleStaff}
	admins   = []models.UserRole{models.RoleSuperAdmin, models.RoleAdmin}
)

// Register mounts health, metrics and the protected API routes on r.
func Register(r *gin.Engine, prefix string, auth Auth, h Handlers) {
	r.GET("/health", h.Metrics.Health)
	r.GET("/metrics", h.Metrics.Prometheus)

	api := r.Group(prefix)
	api.Use(middleware.JWT(auth.Tokens), middleware.Scope(auth.Scopes), middleware.WithResponseMeta())

	sessions := api.Group("/sessions")
	{
		sessions.GET("", middleware.RequireRoles(anyRole...), h.Sessions.List)
		sessions.POST("", middleware.RequireRoles(anyRole...), h.Sessions.Create)
		sessions.GET("/export", middleware.RequireRoles(anyRole...), h.Sessions.Export)
		sessions.POST("/conflicts", middleware.RequireRoles(anyRole...), h.Planning.CheckConflicts)

		sessions.POST("/batch/preview", middleware.RequireRoles(planners...), h.Batches.Preview)
		sessions.POST("/batch", middleware.RequireRoles(planners...), h.Batches.Commit)
		sessions.PATCH("/batch", middleware.RequireRoles(planners...), h.Batches.UpdateMany)
		sessions.POST("/batch/delete", middleware.RequireRoles(planners...), h.Batches.DeleteMany)
		sessions.DELETE("/batch/:batch_no", middleware.RequireRoles(planners...), h.Batches.DeleteBatch)

		sessions.GET("/:id", middleware.RequireRoles(anyRole...), h.Sessions.Get)
		sessions.PUT("/:id", middleware.RequireRoles(anyRole...), h.Sessions.Update)
		sessions.DELETE("/:id", middleware.RequireRoles(planners...), h.Sessions.Delete)
		sessions.PATCH("/:id/status", middleware.RequireRoles(anyRole...), h.Sessions.TransitionStatus)
	}

	api.GET("/class-sections/:id/hours-summary", middleware.RequireRoles(anyRole...), h.Planning.HoursSummary)

	admin := api.Group("/admin", middleware.RequireRoles(admins...))
	{
		admin.POST("/sweep", h.Admin.TriggerSweep)
		admin.DELETE("/scope-cache", h.Admin.InvalidateAllScopes)
		admin.DELETE("/scope-cache/:user_id", h.Admin.InvalidateScope)
	}
}
