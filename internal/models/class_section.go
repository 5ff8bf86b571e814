package models

import "time"

// ClassSectionStatus represents the lifecycle of a class section.
type ClassSectionStatus string

const (
	ClassSectionStatusPending   ClassSectionStatus = "pending"
	ClassSectionStatusOngoing   ClassSectionStatus = "ongoing"
	ClassSectionStatusCompleted ClassSectionStatus = "completed"
	ClassSectionStatusCancelled ClassSectionStatus = "cancelled"
)

// ClassSection is one offering of a course product at a campus.
type ClassSection struct {
	ID          string             `db:"id" json:"id"`
	CampusID    string             `db:"campus_id" json:"campus_id"`
	CourseID    string             `db:"course_id" json:"course_id"`
	Name        string             `db:"name" json:"name"`
	TeacherID   *string            `db:"teacher_id" json:"teacher_id,omitempty"`
	ClassroomID *string            `db:"classroom_id" json:"classroom_id,omitempty"`
	Status      ClassSectionStatus `db:"status" json:"status"`
	Capacity    int                `db:"capacity" json:"capacity"`
	CreatedAt   time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `db:"updated_at" json:"updated_at"`
}
