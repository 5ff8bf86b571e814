package dto

// DateRangeRequest is an inclusive YYYY-MM-DD range.
type DateRangeRequest struct {
	Start string `json:"start" validate:"required,datetime=2006-01-02"`
	End   string `json:"end" validate:"required,datetime=2006-01-02"`
}

// TimeSlotRequest applies a window to weekdays (0 = Monday … 6 = Sunday).
type TimeSlotRequest struct {
	Weekdays  []int  `json:"weekdays" validate:"required,min=1,dive,min=0,max=6"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
}

// BatchScheduleRequest describes a recurring series for preview or commit.
type BatchScheduleRequest struct {
	ClassSectionID string             `json:"class_section_id" validate:"required,uuid"`
	TeacherID      *string            `json:"teacher_id" validate:"omitempty,uuid"`
	ClassroomID    *string            `json:"classroom_id" validate:"omitempty,uuid"`
	DateRanges     []DateRangeRequest `json:"date_ranges" validate:"required,min=1,dive"`
	TimeSlots      []TimeSlotRequest  `json:"time_slots" validate:"required,min=1,dive"`
	LessonHours    float64            `json:"lesson_hours" validate:"required,gt=0,lte=24"`
	Title          *string            `json:"title" validate:"omitempty,max=200"`
	Notes          *string            `json:"notes" validate:"omitempty,max=2000"`
	MaxCount       *int               `json:"max_count" validate:"omitempty,min=0"`
}

// CommitBatchRequest adds the conflict handling mode to a batch request.
type CommitBatchRequest struct {
	BatchScheduleRequest
	Mode string `json:"mode" validate:"omitempty,oneof=skip_conflicts abort_on_conflict"`
}

// ConflictCheckRequest is a single candidate for the pre-flight check.
type ConflictCheckRequest struct {
	ClassSectionID   string  `json:"class_section_id" validate:"required,uuid"`
	TeacherID        *string `json:"teacher_id" validate:"omitempty,uuid"`
	ClassroomID      *string `json:"classroom_id" validate:"omitempty,uuid"`
	Date             string  `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime        string  `json:"start_time" validate:"required"`
	EndTime          string  `json:"end_time" validate:"required"`
	ExcludeSessionID string  `json:"exclude_session_id" validate:"omitempty,uuid"`
	SkipRosterCheck  bool    `json:"skip_roster_check"`
}

// SessionPatchRequest lists editable session fields; omitted fields are unchanged.
type SessionPatchRequest struct {
	TeacherID   *string  `json:"teacher_id" validate:"omitempty,uuid"`
	ClassroomID *string  `json:"classroom_id" validate:"omitempty,uuid"`
	Date        *string  `json:"date" validate:"omitempty,datetime=2006-01-02"`
	StartTime   *string  `json:"start_time"`
	EndTime     *string  `json:"end_time"`
	LessonHours *float64 `json:"lesson_hours" validate:"omitempty,gt=0,lte=24"`
	Title       *string  `json:"title" validate:"omitempty,max=200"`
	Notes       *string  `json:"notes" validate:"omitempty,max=2000"`
}

// BatchUpdateRequest edits many sessions at once.
type BatchUpdateRequest struct {
	IDs   []string            `json:"ids" validate:"required,min=1,max=500,dive,uuid"`
	Patch SessionPatchRequest `json:"patch"`
}

// BatchDeleteRequest removes many sessions at once.
type BatchDeleteRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,max=500,dive,uuid"`
}

// CreateSessionRequest creates one session outside a batch.
type CreateSessionRequest struct {
	ClassSectionID string  `json:"class_section_id" validate:"required,uuid"`
	TeacherID      *string `json:"teacher_id" validate:"omitempty,uuid"`
	ClassroomID    *string `json:"classroom_id" validate:"omitempty,uuid"`
	Date           string  `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime      string  `json:"start_time" validate:"required"`
	EndTime        string  `json:"end_time" validate:"required"`
	LessonHours    float64 `json:"lesson_hours" validate:"required,gt=0,lte=24"`
	Title          *string `json:"title" validate:"omitempty,max=200"`
	Notes          *string `json:"notes" validate:"omitempty,max=2000"`
	IgnoreRoster   bool    `json:"ignore_roster"`
}

// UpdateSessionRequest edits one session; a status value is routed through the lifecycle.
type UpdateSessionRequest struct {
	SessionPatchRequest
	Status *string `json:"status" validate:"omitempty,oneof=scheduled completed cancelled"`
}

// TransitionStatusRequest moves a session to a new status.
type TransitionStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=scheduled completed cancelled"`
}

// SessionListQuery binds GET /sessions query parameters.
type SessionListQuery struct {
	ClassSectionID string `form:"class_section_id" validate:"omitempty,uuid"`
	TeacherID      string `form:"teacher_id" validate:"omitempty,uuid"`
	ClassroomID    string `form:"classroom_id" validate:"omitempty,uuid"`
	BatchNo        string `form:"batch_no"`
	Status         string `form:"status" validate:"omitempty,oneof=scheduled completed cancelled"`
	DateFrom       string `form:"date_from" validate:"omitempty,datetime=2006-01-02"`
	DateTo         string `form:"date_to" validate:"omitempty,datetime=2006-01-02"`
	Page           int    `form:"page" validate:"omitempty,min=1"`
	PageSize       int    `form:"page_size" validate:"omitempty,min=1,max=100"`
	SortOrder      string `form:"sort_order" validate:"omitempty,oneof=asc desc ASC DESC"`
}

// CountResponse reports how many rows a batch mutation affected.
type CountResponse struct {
	Count int `json:"count"`
}

// SweepTriggerResponse acknowledges an asynchronous sweep.
type SweepTriggerResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}
