package models

import "time"

// ConflictType names the resource dimension of a scheduling conflict.
type ConflictType string

const (
	ConflictTypeTeacher   ConflictType = "teacher"
	ConflictTypeClassroom ConflictType = "classroom"
	ConflictTypeNoRoster  ConflictType = "no_roster"
)

// ConflictCandidate is a prospective session to be checked against existing bookings.
type ConflictCandidate struct {
	ClassSectionID   string    `json:"class_section_id"`
	TeacherID        *string   `json:"teacher_id,omitempty"`
	ClassroomID      *string   `json:"classroom_id,omitempty"`
	Date             time.Time `json:"date"`
	StartTime        TimeOfDay `json:"start_time"`
	EndTime          TimeOfDay `json:"end_time"`
	ExcludeSessionID string    `json:"exclude_session_id,omitempty"`
	SkipRosterCheck  bool      `json:"-"`
	SectionName      string    `json:"-"`
}

// Interval returns the candidate's time window.
func (c ConflictCandidate) Interval() Interval {
	return Interval{Date: c.Date, Start: c.StartTime, End: c.EndTime}
}

// Conflict describes one colliding resource. SessionID is empty for roster conflicts.
type Conflict struct {
	Type         ConflictType `json:"type"`
	SessionID    string       `json:"session_id"`
	Message      string       `json:"message"`
	ResourceName string       `json:"resource_name"`
	Date         time.Time    `json:"date"`
	StartTime    TimeOfDay    `json:"start_time"`
	EndTime      TimeOfDay    `json:"end_time"`
}

// ConflictReport lists every conflict found for a candidate.
type ConflictReport struct {
	HasConflict bool       `json:"has_conflict"`
	Conflicts   []Conflict `json:"conflicts"`
}

// Add appends a conflict and flags the report.
func (r *ConflictReport) Add(c Conflict) {
	r.Conflicts = append(r.Conflicts, c)
	r.HasConflict = true
}
