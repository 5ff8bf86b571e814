package models

import "time"

// AttendanceStatus represents the outcome recorded for a student in a session.
type AttendanceStatus string

const (
	AttendanceStatusNormal AttendanceStatus = "normal"
	AttendanceStatusLeave  AttendanceStatus = "leave"
	AttendanceStatusAbsent AttendanceStatus = "absent"
)

// StudentAttendance is the per-(enrollment, session) attendance outcome.
type StudentAttendance struct {
	ID           string           `db:"id" json:"id"`
	EnrollmentID string           `db:"enrollment_id" json:"enrollment_id"`
	SessionID    string           `db:"session_id" json:"session_id"`
	Status       AttendanceStatus `db:"status" json:"status"`
	DeductHours  bool             `db:"deduct_hours" json:"deduct_hours"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
}

// ExcludesLedger reports whether this attendance keeps the enrollment out of the
// ledger run for its session.
func (a StudentAttendance) ExcludesLedger() bool {
	switch a.Status {
	case AttendanceStatusLeave:
		return true
	case AttendanceStatusAbsent:
		return !a.DeductHours
	default:
		return false
	}
}
