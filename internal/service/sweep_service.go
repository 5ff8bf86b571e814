package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-schedule-api/internal/models"
	"github.com/noah-isme/tutor-schedule-api/pkg/jobs"
)

// SweepJobType tags sweep jobs on the background queue.
const SweepJobType = "session_sweep"

// SweepTrigger is the payload of a queued sweep job.
type SweepTrigger struct {
	RequestedBy string
	RequestID   string
}

const defaultSweepPageSize = 500

// ErrSweepRunning is returned when a sweep is requested while another is in progress.
var ErrSweepRunning = errors.New("sweep already running")

type dueSessionLister interface {
	ListDueForSweep(ctx context.Context, cutoff time.Time, after *models.DueSession, limit int) ([]models.DueSession, error)
}

type dueSessionCompleter interface {
	CompleteDue(ctx context.Context, sessionID string) (bool, error)
}

// SweepConfig tunes the past-due sweep.
type SweepConfig struct {
	PageSize int
	Timeout  time.Duration
}

// SweepService completes scheduled sessions whose date has passed.
type SweepService struct {
	sessions  dueSessionLister
	lifecycle dueSessionCompleter
	metrics   *MetricsService
	logger    *zap.Logger
	pageSize  int
	timeout   time.Duration
	now       func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

// NewSweepService constructs SweepService. lifecycle should run on the sweep's own pool.
func NewSweepService(sessions dueSessionLister, lifecycle dueSessionCompleter, metrics *MetricsService, logger *zap.Logger, cfg SweepConfig) *SweepService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultSweepPageSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	return &SweepService{
		sessions:  sessions,
		lifecycle: lifecycle,
		metrics:   metrics,
		logger:    logger,
		pageSize:  cfg.PageSize,
		timeout:   cfg.Timeout,
		now:       time.Now,
	}
}

// Run completes every scheduled session dated before yesterday. Per-session failures
// are logged and counted; they never stop the run.
func (s *SweepService) Run(ctx context.Context) (*models.SweepResult, error) {
	if !s.mu.TryLock() {
		return nil, ErrSweepRunning
	}
	defer s.mu.Unlock()

	result := &models.SweepResult{StartedAt: s.now().UTC()}
	cutoff := models.DateOnly(s.now()).AddDate(0, 0, -1)
	log := s.logger.Sugar()

	// Failed sessions stay scheduled, so paging resumes past the last row seen.
	var cursor *models.DueSession
	for {
		page, err := s.sessions.ListDueForSweep(ctx, cutoff, cursor, s.pageSize)
		if err != nil {
			result.FinishedAt = s.now().UTC()
			s.metrics.RecordSweep("error", result.FinishedAt.Sub(result.StartedAt))
			log.Errorw("sweep listing failed", "cutoff", cutoff.Format(models.DateLayout), "error", err)
			return result, err
		}
		for _, due := range page {
			completed, err := s.lifecycle.CompleteDue(ctx, due.ID)
			if err != nil {
				result.ErrorCount++
				log.Errorw("sweep failed to complete session", "session_id", due.ID, "error", err)
				continue
			}
			if completed {
				result.CompletedCount++
			}
		}
		if len(page) < s.pageSize || ctx.Err() != nil {
			break
		}
		last := page[len(page)-1]
		cursor = &last
	}

	result.FinishedAt = s.now().UTC()
	outcome := "success"
	if result.ErrorCount > 0 {
		outcome = "partial"
	}
	s.metrics.RecordSweep(outcome, result.FinishedAt.Sub(result.StartedAt))
	log.Infow("sweep finished",
		"cutoff", cutoff.Format(models.DateLayout),
		"completed", result.CompletedCount,
		"errors", result.ErrorCount,
		"duration", result.FinishedAt.Sub(result.StartedAt),
	)
	return result, nil
}

// HandleJob runs the sweep for a queued trigger.
func (s *SweepService) HandleJob(ctx context.Context, job jobs.Job) error {
	fields := []zap.Field{zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt)}
	if trigger, ok := job.Payload.(SweepTrigger); ok {
		fields = append(fields, zap.String("requested_by", trigger.RequestedBy), zap.String("request_id", trigger.RequestID))
	}
	result, err := s.Run(ctx)
	if errors.Is(err, ErrSweepRunning) {
		s.logger.Info("sweep job skipped, run in progress", fields...)
		return nil
	}
	if err != nil {
		return err
	}
	s.logger.Info("sweep job finished", append(fields, zap.Int("completed", result.CompletedCount))...)
	return nil
}

// Start schedules the sweep on spec using cron syntax.
func (s *SweepService) Start(spec string) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if _, err := s.Run(ctx); err != nil && !errors.Is(err, ErrSweepRunning) {
			s.logger.Error("scheduled sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	c.Start()
	s.cron = c
	s.logger.Info("sweep scheduled", zap.String("cron", spec))
	return nil
}

// Stop halts the schedule and waits for a running sweep to return.
func (s *SweepService) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}
