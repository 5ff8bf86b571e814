package service

import (
	"fmt"
	"sort"

	"github.com/noah-isme/tutor-schedule-api/internal/models"
	appErrors "github.com/noah-isme/tutor-schedule-api/pkg/errors"
)

type instanceKey struct {
	date       string
	start, end models.TimeOfDay
}

// ExpandPattern turns date ranges and weekday slots into concrete session windows,
// deduplicated and ordered by date, start and end.
func ExpandPattern(ranges []models.DateRange, slots []models.TimeSlot) ([]models.Interval, error) {
	if len(ranges) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date_ranges must not be empty")
	}
	if len(slots) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "time_slots must not be empty")
	}

	byWeekday := make(map[int][]models.TimeSlot, 7)
	for i, slot := range slots {
		if slot.End <= slot.Start {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("time_slots[%d].end_time must be after start_time", i))
		}
		if len(slot.Weekdays) == 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("time_slots[%d].weekdays must not be empty", i))
		}
		for _, day := range slot.Weekdays {
			if day < 0 || day > 6 {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("time_slots[%d].weekdays contains %d, expected 0-6", i, day))
			}
			byWeekday[day] = append(byWeekday[day], slot)
		}
	}

	seen := make(map[instanceKey]struct{})
	var out []models.Interval
	for i, r := range ranges {
		start := models.DateOnly(r.Start)
		end := models.DateOnly(r.End)
		if end.Before(start) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("date_ranges[%d].end must not be before start", i))
		}
		for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
			for _, slot := range byWeekday[models.Weekday(day)] {
				key := instanceKey{date: day.Format(models.DateLayout), start: slot.Start, end: slot.End}
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				out = append(out, models.Interval{Date: day, Start: slot.Start, End: slot.End})
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].End < out[j].End
	})
	return out, nil
}
