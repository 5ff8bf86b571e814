package models

import "time"

// LessonRecordType tags the origin of a ledger entry.
type LessonRecordType string

const (
	LessonRecordTypeSchedule LessonRecordType = "schedule"
	LessonRecordTypeManual   LessonRecordType = "manual"
	LessonRecordTypeRefund   LessonRecordType = "refund"
)

// LessonRecord is an immutable ledger fact: an enrollment consumed hours because of a session.
// RemainingDeducted is what the student's remaining_hours actually lost. It is below Hours when
// the balance ran out, and reversal restores exactly that amount.
type LessonRecord struct {
	ID                string           `db:"id" json:"id"`
	EnrollmentID      string           `db:"enrollment_id" json:"enrollment_id"`
	SessionID         string           `db:"session_id" json:"session_id"`
	StudentID         string           `db:"student_id" json:"student_id"`
	ClassSectionID    string           `db:"class_section_id" json:"class_section_id"`
	Hours             float64          `db:"hours" json:"hours"`
	RemainingDeducted float64          `db:"remaining_deducted" json:"remaining_deducted"`
	Type              LessonRecordType `db:"type" json:"type"`
	LessonDate        time.Time        `db:"lesson_date" json:"lesson_date"`
	CreatedBy         string           `db:"created_by" json:"created_by"`
	CreatedAt         time.Time        `db:"created_at" json:"created_at"`
}
