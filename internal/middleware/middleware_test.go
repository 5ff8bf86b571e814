package middleware

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutor-schedule-api/internal/models"
	"github.com/noah-isme/tutor-schedule-api/internal/service"
)

type scopeRepoStub map[string]models.UserScope

func (s scopeRepoStub) FindByUserID(_ context.Context, userID string) (*models.UserScope, error) {
	scope, ok := s[userID]
	if !ok {
		return nil, fmt.Errorf("find user scope: %w", sql.ErrNoRows)
	}
	return &scope, nil
}

func strPtr(v string) *string { return &v }

func newAuthRouter(t *testing.T, tokens *service.TokenService, scopes scopeRepoStub, guards ...gin.HandlerFunc) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(JWT(tokens), Scope(service.NewScopeCache(scopes, nil, time.Minute, nil)))
	handlers := append(guards, func(c *gin.Context) {
		scope, ok := ScopeFromContext(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, scope)
	})
	r.GET("/whoami", handlers...)
	return r
}

func bearer(t *testing.T, tokens *service.TokenService, userID string, role models.UserRole) string {
	token, _, err := tokens.IssueToken(userID, role, "", "")
	require.NoError(t, err)
	return "Bearer " + token
}

func serve(r *gin.Engine, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestJWTRejectsMissingAndMalformedTokens(t *testing.T) {
	tokens := service.NewTokenService(service.TokenConfig{Secret: "secret"})
	r := newAuthRouter(t, tokens, scopeRepoStub{})

	assert.Equal(t, http.StatusUnauthorized, serve(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "Basic abc").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "Bearer nonsense").Code)
}

func TestScopeResolution(t *testing.T) {
	tokens := service.NewTokenService(service.TokenConfig{Secret: "secret"})
	scopes := scopeRepoStub{
		"staff-1":   {UserID: "staff-1", CampusID: strPtr("campus-a"), TeacherID: strPtr("teacher-9")},
		"teacher-u": {UserID: "teacher-u", CampusID: strPtr("campus-a"), TeacherID: strPtr("teacher-1")},
		"unlinked":  {UserID: "unlinked"},
	}
	r := newAuthRouter(t, tokens, scopes)

	rec := serve(r, bearer(t, tokens, "root", models.RoleSuperAdmin))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":"root","is_teacher":false}`, rec.Body.String())

	rec = serve(r, bearer(t, tokens, "staff-1", models.RoleStaff))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":"staff-1","campus_id":"campus-a","is_teacher":false}`, rec.Body.String())

	rec = serve(r, bearer(t, tokens, "teacher-u", models.RoleTeacher))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":"teacher-u","campus_id":"campus-a","is_teacher":true,"teacher_id":"teacher-1"}`, rec.Body.String())

	assert.Equal(t, http.StatusForbidden, serve(r, bearer(t, tokens, "unlinked", models.RoleTeacher)).Code)
	assert.Equal(t, http.StatusForbidden, serve(r, bearer(t, tokens, "ghost", models.RoleAdmin)).Code)
}

func TestRequireRoles(t *testing.T) {
	tokens := service.NewTokenService(service.TokenConfig{Secret: "secret"})
	scopes := scopeRepoStub{
		"admin-1":   {UserID: "admin-1"},
		"teacher-u": {UserID: "teacher-u", TeacherID: strPtr("teacher-1")},
	}
	r := newAuthRouter(t, tokens, scopes, RequireRoles(models.RoleSuperAdmin, models.RoleAdmin))

	assert.Equal(t, http.StatusOK, serve(r, bearer(t, tokens, "admin-1", models.RoleAdmin)).Code)
	assert.Equal(t, http.StatusForbidden, serve(r, bearer(t, tokens, "teacher-u", models.RoleTeacher)).Code)
}

func TestMetricsRecordsRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	r := gin.New()
	r.Use(Metrics(metrics), WithResponseMeta())
	r.GET("/sessions/:id", func(c *gin.Context) {
		SetMeta(c, "source", "test")
		assert.Equal(t, "test", ExtractMeta(c)["source"])
		c.Status(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/abc", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	scrape := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, scrape.Body.String(), `http_requests_total{method="GET",path="/sessions/:id",status="204"} 1`)
}

type observerStub struct{ paths []string }

func (o *observerStub) ObserveHTTPRequest(_, path string, _ int, _ time.Duration) {
	o.paths = append(o.paths, path)
}

func TestMetricsSkipsScrapesAndBucketsUnmatched(t *testing.T) {
	gin.SetMode(gin.TestMode)
	observer := &observerStub{}
	r := gin.New()
	r.Use(Metrics(observer, "/metrics"))
	r.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/sessions/unknown/path", nil))

	assert.Equal(t, []string{"unmatched"}, observer.paths)
}
