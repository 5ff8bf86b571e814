package models

import "time"

// SessionStatus represents the lifecycle of a scheduled session.
type SessionStatus string

const (
	SessionStatusScheduled SessionStatus = "scheduled"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusCancelled SessionStatus = "cancelled"
)

// Valid returns true when the status is a supported value.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusScheduled, SessionStatusCompleted, SessionStatusCancelled:
		return true
	default:
		return false
	}
}

// Session is one concrete meeting of a class section.
type Session struct {
	ID             string        `db:"id" json:"id"`
	ClassSectionID string        `db:"class_section_id" json:"class_section_id"`
	CampusID       string        `db:"campus_id" json:"campus_id"`
	TeacherID      *string       `db:"teacher_id" json:"teacher_id,omitempty"`
	ClassroomID    *string       `db:"classroom_id" json:"classroom_id,omitempty"`
	Date           time.Time     `db:"date" json:"date"`
	StartTime      TimeOfDay     `db:"start_time" json:"start_time"`
	EndTime        TimeOfDay     `db:"end_time" json:"end_time"`
	LessonHours    float64       `db:"lesson_hours" json:"lesson_hours"`
	Status         SessionStatus `db:"status" json:"status"`
	BatchNo        *string       `db:"batch_no" json:"batch_no,omitempty"`
	Title          *string       `db:"title" json:"title,omitempty"`
	Notes          *string       `db:"notes" json:"notes,omitempty"`
	CreatedBy      *string       `db:"created_by" json:"created_by,omitempty"`
	UpdatedBy      *string       `db:"updated_by" json:"updated_by,omitempty"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

// Interval returns the session's time window.
func (s Session) Interval() Interval {
	return Interval{Date: s.Date, Start: s.StartTime, End: s.EndTime}
}

// SessionDetail enriches a session with the effective resources and their display names.
type SessionDetail struct {
	Session
	EffectiveTeacherID   *string `db:"effective_teacher_id" json:"effective_teacher_id,omitempty"`
	EffectiveClassroomID *string `db:"effective_classroom_id" json:"effective_classroom_id,omitempty"`
	TeacherName          *string `db:"teacher_name" json:"teacher_name,omitempty"`
	ClassroomName        *string `db:"classroom_name" json:"classroom_name,omitempty"`
	ClassSectionName     *string `db:"class_section_name" json:"class_section_name,omitempty"`
}

// SessionFilter describes query params for listing sessions.
type SessionFilter struct {
	ClassSectionID string
	TeacherID      string
	ClassroomID    string
	BatchNo        string
	Status         SessionStatus
	DateFrom       *time.Time
	DateTo         *time.Time
	Page           int
	PageSize       int
	SortOrder      string
}

// SessionPatch lists the editable fields of a session; nil fields are left untouched.
type SessionPatch struct {
	TeacherID   *string
	ClassroomID *string
	Date        *time.Time
	StartTime   *TimeOfDay
	EndTime     *TimeOfDay
	LessonHours *float64
	Title       *string
	Notes       *string
}

// Empty reports whether the patch changes nothing.
func (p SessionPatch) Empty() bool {
	return p.TeacherID == nil && p.ClassroomID == nil && p.Date == nil && p.StartTime == nil &&
		p.EndTime == nil && p.LessonHours == nil && p.Title == nil && p.Notes == nil
}

// TouchesResources reports whether the patch can introduce a double booking.
func (p SessionPatch) TouchesResources() bool {
	return p.TeacherID != nil || p.ClassroomID != nil || p.Date != nil || p.StartTime != nil || p.EndTime != nil
}

// Apply copies the patch onto s.
func (p SessionPatch) Apply(s *Session) {
	if p.TeacherID != nil {
		s.TeacherID = nullableString(*p.TeacherID)
	}
	if p.ClassroomID != nil {
		s.ClassroomID = nullableString(*p.ClassroomID)
	}
	if p.Date != nil {
		s.Date = DateOnly(*p.Date)
	}
	if p.StartTime != nil {
		s.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		s.EndTime = *p.EndTime
	}
	if p.LessonHours != nil {
		s.LessonHours = *p.LessonHours
	}
	if p.Title != nil {
		s.Title = nullableString(*p.Title)
	}
	if p.Notes != nil {
		s.Notes = nullableString(*p.Notes)
	}
}

func nullableString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
