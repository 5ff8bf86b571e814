package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusActive    EnrollmentStatus = "active"
	EnrollmentStatusCompleted EnrollmentStatus = "completed"
	EnrollmentStatusRefunded  EnrollmentStatus = "refunded"
	EnrollmentStatusCancelled EnrollmentStatus = "cancelled"
)

// Enrollment captures a student's membership and hour balance in a class section.
type Enrollment struct {
	ID             string           `db:"id" json:"id"`
	StudentID      string           `db:"student_id" json:"student_id"`
	ClassSectionID string           `db:"class_section_id" json:"class_section_id"`
	CampusID       string           `db:"campus_id" json:"campus_id"`
	PurchasedHours float64          `db:"purchased_hours" json:"purchased_hours"`
	UsedHours      float64          `db:"used_hours" json:"used_hours"`
	Status         EnrollmentStatus `db:"status" json:"status"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentDetail enriches Enrollment with the student's display name.
type EnrollmentDetail struct {
	Enrollment
	StudentName string `db:"student_name" json:"student_name"`
}
