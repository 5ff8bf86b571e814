package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tutor-schedule-api/internal/dto"
	"github.com/noah-isme/tutor-schedule-api/internal/models"
	appErrors "github.com/noah-isme/tutor-schedule-api/pkg/errors"
	"github.com/noah-isme/tutor-schedule-api/pkg/export"
)

const (
	exportPageSize       = 100
	defaultExportMaxRows = 5000
)

var timetableHeaders = []string{"date", "start_time", "end_time", "class_section", "teacher", "classroom", "lesson_hours", "status", "batch_no"}

type sessionPager interface {
	List(ctx context.Context, filter models.SessionFilter, scope models.Scope) ([]models.SessionDetail, int, error)
}

// ExportFile is a rendered download.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// TimetableExportService renders filtered sessions as CSV or PDF.
type TimetableExportService struct {
	sessions sessionPager
	maxRows  int
	logger   *zap.Logger
	now      func() time.Time
}

// NewTimetableExportService constructs TimetableExportService.
func NewTimetableExportService(sessions sessionPager, maxRows int, logger *zap.Logger) *TimetableExportService {
	if maxRows <= 0 {
		maxRows = defaultExportMaxRows
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimetableExportService{sessions: sessions, maxRows: maxRows, logger: logger, now: time.Now}
}

// Export renders every session matching query inside scope, oldest first.
func (s *TimetableExportService) Export(ctx context.Context, scope models.Scope, query dto.SessionListQuery, format string) (*ExportFile, error) {
	f, err := export.ParseFormat(format)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	filter, err := query.ToFilter()
	if err != nil {
		return nil, ValidationError(err)
	}
	filter.PageSize = exportPageSize
	if filter.SortOrder == "" {
		filter.SortOrder = "asc"
	}

	data := export.Dataset{Title: "Timetable", Headers: timetableHeaders}
	for page := 1; ; page++ {
		filter.Page = page
		rows, total, err := s.sessions.List(ctx, filter, scope)
		if err != nil {
			return nil, internalError(err, "failed to list sessions")
		}
		if total > s.maxRows {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("export matches %d sessions, narrow the filter to at most %d", total, s.maxRows))
		}
		for _, row := range rows {
			data.Rows = append(data.Rows, timetableRow(row))
		}
		if len(rows) < filter.PageSize || len(data.Rows) >= total {
			break
		}
	}

	body, err := export.Render(f, data)
	if err != nil {
		return nil, internalError(err, "failed to render export")
	}
	s.logger.Debug("timetable exported", zap.String("format", string(f)), zap.Int("rows", len(data.Rows)), zap.String("actor", scope.Actor()))
	return &ExportFile{
		Filename:    fmt.Sprintf("timetable-%s.%s", s.now().UTC().Format("20060102-150405"), f),
		ContentType: f.ContentType(),
		Body:        body,
	}, nil
}

func timetableRow(row models.SessionDetail) map[string]string {
	section := row.ClassSectionID
	if row.ClassSectionName != nil {
		section = *row.ClassSectionName
	}
	teacher := derefString(row.EffectiveTeacherID)
	if row.TeacherName != nil {
		teacher = *row.TeacherName
	}
	classroom := derefString(row.EffectiveClassroomID)
	if row.ClassroomName != nil {
		classroom = *row.ClassroomName
	}
	return map[string]string{
		"date":          row.Date.Format(models.DateLayout),
		"start_time":    row.StartTime.String(),
		"end_time":      row.EndTime.String(),
		"class_section": section,
		"teacher":       teacher,
		"classroom":     classroom,
		"lesson_hours":  strconv.FormatFloat(row.LessonHours, 'f', -1, 64),
		"status":        string(row.Status),
		"batch_no":      derefString(row.BatchNo),
	}
}
