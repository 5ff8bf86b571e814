package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutor-schedule-api/internal/models"
)

// ScopeRepository resolves the campus and teacher binding of a user.
type ScopeRepository struct {
	db *sqlx.DB
}

// NewScopeRepository builds repository.
func NewScopeRepository(db *sqlx.DB) *ScopeRepository {
	return &ScopeRepository{db: db}
}

// FindByUserID returns the stored scope of an active user.
func (r *ScopeRepository) FindByUserID(ctx context.Context, userID string) (*models.UserScope, error) {
	const query = `SELECT u.id AS user_id, u.campus_id, t.id AS teacher_id FROM users u LEFT JOIN teachers t ON t.user_id = u.id WHERE u.id = $1 AND u.active = TRUE`
	var scope models.UserScope
	if err := r.db.GetContext(ctx, &scope, query, userID); err != nil {
		return nil, fmt.Errorf("find user scope: %w", err)
	}
	return &scope, nil
}
