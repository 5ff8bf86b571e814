package models

import "time"

// BatchMode selects how a commit reacts to a conflicting candidate.
type BatchMode string

const (
	BatchModeSkipConflicts   BatchMode = "skip_conflicts"
	BatchModeAbortOnConflict BatchMode = "abort_on_conflict"
)

// Valid returns true when the mode is supported.
func (m BatchMode) Valid() bool {
	return m == BatchModeSkipConflicts || m == BatchModeAbortOnConflict
}

// BatchSpec describes a recurring series of sessions for one class section.
type BatchSpec struct {
	ClassSectionID string      `json:"class_section_id"`
	TeacherID      *string     `json:"teacher_id,omitempty"`
	ClassroomID    *string     `json:"classroom_id,omitempty"`
	DateRanges     []DateRange `json:"date_ranges"`
	TimeSlots      []TimeSlot  `json:"time_slots"`
	LessonHours    float64     `json:"lesson_hours"`
	Title          *string     `json:"title,omitempty"`
	Notes          *string     `json:"notes,omitempty"`
	MaxCount       *int        `json:"max_count,omitempty"`
}

// BatchPreview summarises a dry-run of a batch.
type BatchPreview struct {
	TotalCount    int             `json:"total_count"`
	ConflictCount int             `json:"conflict_count"`
	Conflicts     []BatchConflict `json:"conflicts"`
	RosterWarning string          `json:"roster_warning,omitempty"`
	Instances     []Interval      `json:"instances"`
}

// BatchConflict ties the conflicts of one candidate to its window.
type BatchConflict struct {
	Interval  Interval   `json:"interval"`
	Conflicts []Conflict `json:"conflicts"`
}

// BatchCommitResult reports the outcome of a committed batch.
type BatchCommitResult struct {
	BatchNo       string          `json:"batch_no"`
	CreatedCount  int             `json:"created_count"`
	SkippedCount  int             `json:"skipped_count"`
	Sessions      []Session       `json:"sessions"`
	Conflicts     []BatchConflict `json:"conflicts,omitempty"`
	RosterWarning string          `json:"roster_warning,omitempty"`
}

// HoursSummary is the capacity rollup of a class section.
type HoursSummary struct {
	ClassSectionID      string                `json:"class_section_id"`
	ClassScheduledHours float64               `json:"class_scheduled_hours"`
	Students            []StudentHoursSummary `json:"students"`
	MinAvailableHours   float64               `json:"min_available_hours"`
}

// StudentHoursSummary is the per-enrollment slice of HoursSummary.
type StudentHoursSummary struct {
	EnrollmentID   string  `json:"enrollment_id"`
	StudentID      string  `json:"student_id"`
	StudentName    string  `json:"student_name"`
	PurchasedHours float64 `json:"purchased_hours"`
	UsedHours      float64 `json:"used_hours"`
	ScheduledHours float64 `json:"scheduled_hours"`
	AvailableHours float64 `json:"available_hours"`
}

// DueSession is a sweep candidate together with its position in sweep order.
type DueSession struct {
	ID        string    `db:"id"`
	Date      time.Time `db:"date"`
	StartTime TimeOfDay `db:"start_time"`
}

// After reports whether d sorts strictly after c by (date, start_time, id).
func (d DueSession) After(c DueSession) bool {
	if !SameDate(d.Date, c.Date) {
		return d.Date.After(c.Date)
	}
	if d.StartTime != c.StartTime {
		return d.StartTime > c.StartTime
	}
	return d.ID > c.ID
}

// SweepResult reports one run of the past-due sweep.
type SweepResult struct {
	CompletedCount int       `json:"completed_count"`
	ErrorCount     int       `json:"error_count"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}
