package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutor-schedule-api/internal/models"
)

// ClassSectionRepository reads class sections.
type ClassSectionRepository struct {
	db *sqlx.DB
}

// NewClassSectionRepository builds repository.
func NewClassSectionRepository(db *sqlx.DB) *ClassSectionRepository {
	return &ClassSectionRepository{db: db}
}

func (r *ClassSectionRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID returns a class section by id.
func (r *ClassSectionRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClassSection, error) {
	const query = `SELECT id, campus_id, course_id, name, teacher_id, classroom_id, status, capacity, created_at, updated_at FROM class_sections WHERE id = $1`
	var section models.ClassSection
	if err := sqlx.GetContext(ctx, r.exec(exec), &section, query, id); err != nil {
		return nil, fmt.Errorf("find class section: %w", err)
	}
	return &section, nil
}
