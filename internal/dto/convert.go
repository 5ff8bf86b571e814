package dto

import (
	"fmt"
	"time"

	"github.com/noah-isme/tutor-schedule-api/internal/models"
)

// FieldError names the request field that failed to parse.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

func parseDate(field, raw string) (time.Time, error) {
	d, err := models.ParseDate(raw)
	if err != nil {
		return time.Time{}, &FieldError{Field: field, Err: err}
	}
	return d, nil
}

func parseTime(field, raw string) (models.TimeOfDay, error) {
	t, err := models.ParseTimeOfDay(raw)
	if err != nil {
		return 0, &FieldError{Field: field, Err: err}
	}
	return t, nil
}

// ToSpec converts the request into a domain batch spec.
func (r BatchScheduleRequest) ToSpec() (models.BatchSpec, error) {
	spec := models.BatchSpec{
		ClassSectionID: r.ClassSectionID,
		TeacherID:      r.TeacherID,
		ClassroomID:    r.ClassroomID,
		LessonHours:    r.LessonHours,
		Title:          r.Title,
		Notes:          r.Notes,
		MaxCount:       r.MaxCount,
	}
	for i, dr := range r.DateRanges {
		start, err := parseDate(fmt.Sprintf("date_ranges[%d].start", i), dr.Start)
		if err != nil {
			return spec, err
		}
		end, err := parseDate(fmt.Sprintf("date_ranges[%d].end", i), dr.End)
		if err != nil {
			return spec, err
		}
		spec.DateRanges = append(spec.DateRanges, models.DateRange{Start: start, End: end})
	}
	for i, slot := range r.TimeSlots {
		start, err := parseTime(fmt.Sprintf("time_slots[%d].start_time", i), slot.StartTime)
		if err != nil {
			return spec, err
		}
		end, err := parseTime(fmt.Sprintf("time_slots[%d].end_time", i), slot.EndTime)
		if err != nil {
			return spec, err
		}
		spec.TimeSlots = append(spec.TimeSlots, models.TimeSlot{Weekdays: slot.Weekdays, Start: start, End: end})
	}
	return spec, nil
}

// ToCandidate converts the request into a conflict candidate.
func (r ConflictCheckRequest) ToCandidate() (models.ConflictCandidate, error) {
	date, err := parseDate("date", r.Date)
	if err != nil {
		return models.ConflictCandidate{}, err
	}
	start, err := parseTime("start_time", r.StartTime)
	if err != nil {
		return models.ConflictCandidate{}, err
	}
	end, err := parseTime("end_time", r.EndTime)
	if err != nil {
		return models.ConflictCandidate{}, err
	}
	return models.ConflictCandidate{
		ClassSectionID:   r.ClassSectionID,
		TeacherID:        r.TeacherID,
		ClassroomID:      r.ClassroomID,
		Date:             date,
		StartTime:        start,
		EndTime:          end,
		ExcludeSessionID: r.ExcludeSessionID,
		SkipRosterCheck:  r.SkipRosterCheck,
	}, nil
}

// ToPatch converts the request into a session patch.
func (r SessionPatchRequest) ToPatch() (models.SessionPatch, error) {
	patch := models.SessionPatch{
		TeacherID:   r.TeacherID,
		ClassroomID: r.ClassroomID,
		LessonHours: r.LessonHours,
		Title:       r.Title,
		Notes:       r.Notes,
	}
	if r.Date != nil {
		d, err := parseDate("date", *r.Date)
		if err != nil {
			return patch, err
		}
		patch.Date = &d
	}
	if r.StartTime != nil {
		t, err := parseTime("start_time", *r.StartTime)
		if err != nil {
			return patch, err
		}
		patch.StartTime = &t
	}
	if r.EndTime != nil {
		t, err := parseTime("end_time", *r.EndTime)
		if err != nil {
			return patch, err
		}
		patch.EndTime = &t
	}
	return patch, nil
}

// ToSession converts the request into an unsaved session.
func (r CreateSessionRequest) ToSession() (models.Session, error) {
	date, err := parseDate("date", r.Date)
	if err != nil {
		return models.Session{}, err
	}
	start, err := parseTime("start_time", r.StartTime)
	if err != nil {
		return models.Session{}, err
	}
	end, err := parseTime("end_time", r.EndTime)
	if err != nil {
		return models.Session{}, err
	}
	return models.Session{
		ClassSectionID: r.ClassSectionID,
		TeacherID:      r.TeacherID,
		ClassroomID:    r.ClassroomID,
		Date:           date,
		StartTime:      start,
		EndTime:        end,
		LessonHours:    r.LessonHours,
		Status:         models.SessionStatusScheduled,
		Title:          r.Title,
		Notes:          r.Notes,
	}, nil
}

// ToFilter converts list query parameters into a repository filter.
func (q SessionListQuery) ToFilter() (models.SessionFilter, error) {
	filter := models.SessionFilter{
		ClassSectionID: q.ClassSectionID,
		TeacherID:      q.TeacherID,
		ClassroomID:    q.ClassroomID,
		BatchNo:        q.BatchNo,
		Status:         models.SessionStatus(q.Status),
		Page:           q.Page,
		PageSize:       q.PageSize,
		SortOrder:      q.SortOrder,
	}
	if q.DateFrom != "" {
		d, err := parseDate("date_from", q.DateFrom)
		if err != nil {
			return filter, err
		}
		filter.DateFrom = &d
	}
	if q.DateTo != "" {
		d, err := parseDate("date_to", q.DateTo)
		if err != nil {
			return filter, err
		}
		filter.DateTo = &d
	}
	return filter, nil
}
