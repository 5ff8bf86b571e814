package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tutor-schedule-api/internal/models"
	appErrors "github.com/noah-isme/tutor-schedule-api/pkg/errors"
)

const scopeCacheKeyPrefix = "user:"

type scopeLoader interface {
	FindByUserID(ctx context.Context, userID string) (*models.UserScope, error)
}

type scopeCacheStore interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Invalidate(ctx context.Context, pattern string) error
}

// ScopeCache memoises users' campus and teacher bindings. Entries expire after ttl and
// can be dropped explicitly when a binding changes.
type ScopeCache struct {
	repo   scopeLoader
	cache  scopeCacheStore
	ttl    time.Duration
	logger *zap.Logger
}

// NewScopeCache constructs ScopeCache. A nil cache always reads through to repo.
func NewScopeCache(repo scopeLoader, cache *CacheService, ttl time.Duration, logger *zap.Logger) *ScopeCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	sc := &ScopeCache{repo: repo, ttl: ttl, logger: logger}
	if cache != nil {
		sc.cache = cache
	}
	return sc
}

func scopeCacheKey(userID string) string {
	return scopeCacheKeyPrefix + userID
}

// Get returns the stored binding of userID.
func (c *ScopeCache) Get(ctx context.Context, userID string) (*models.UserScope, error) {
	key := scopeCacheKey(userID)
	if c.cache != nil {
		var cached models.UserScope
		hit, err := c.cache.Get(ctx, key, &cached)
		if err == nil && hit {
			return &cached, nil
		}
	}

	scope, err := c.repo.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "user is not active")
		}
		return nil, internalError(err, "failed to load user scope")
	}
	if c.cache != nil {
		if err := c.cache.Set(ctx, key, scope, c.ttl); err != nil {
			c.logger.Debug("scope cache write skipped", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return scope, nil
}

// Invalidate drops the cached binding of userID.
func (c *ScopeCache) Invalidate(ctx context.Context, userID string) error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Delete(ctx, scopeCacheKey(userID))
}

// InvalidateAll drops every cached binding.
func (c *ScopeCache) InvalidateAll(ctx context.Context) error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Invalidate(ctx, scopeCacheKeyPrefix+"*")
}
