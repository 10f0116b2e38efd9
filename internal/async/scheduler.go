package async

import (
	"context"
	"log/slog"
	"sync"
	"time"

	cron "github.com/robfig/cron"

	ierrors "github.com/Aman-CERP/iiifstore/internal/errors"
	"github.com/Aman-CERP/iiifstore/internal/index"
)

// ReconcileFunc checks the text index against stored indexables and
// repairs drift.
type ReconcileFunc func(ctx context.Context) (*index.CheckResult, error)

// Scheduler runs reconciliation on a cron schedule. Overlapping runs are
// skipped.
type Scheduler struct {
	schedule string
	fn       ReconcileFunc
	progress *IndexProgress
	logger   *slog.Logger

	cron    *cron.Cron
	running sync.Mutex
}

// NewScheduler validates schedule and creates a Scheduler. progress may be
// nil.
func NewScheduler(schedule string, fn ReconcileFunc, progress *IndexProgress, logger *slog.Logger) (*Scheduler, error) {
	if _, err := cron.Parse(schedule); err != nil {
		return nil, ierrors.New(ierrors.ErrCodeConfigInvalid, "invalid reconcile schedule", err).
			WithDetail("schedule", schedule).
			WithSuggestion("Use a cron expression with seconds or a descriptor such as @every 1h")
	}
	if progress == nil {
		progress = NewIndexProgress()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		schedule: schedule,
		fn:       fn,
		progress: progress,
		logger:   logger,
	}, nil
}

// Start begins running on the schedule until Stop. ctx is passed to each
// run.
func (s *Scheduler) Start(ctx context.Context) error {
	c := cron.New()
	if err := c.AddFunc(s.schedule, func() {
		if _, err := s.RunNow(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("scheduled_reconcile_failed", slog.String("error", err.Error()))
		}
	}); err != nil {
		return ierrors.Wrap(ierrors.ErrCodeConfigInvalid, err)
	}
	c.Start()
	s.cron = c
	s.logger.Info("reconcile_scheduled", slog.String("schedule", s.schedule))
	return nil
}

// RunNow runs reconciliation once. It returns nil without running when
// another run is in progress.
func (s *Scheduler) RunNow(ctx context.Context) (*index.CheckResult, error) {
	if !s.running.TryLock() {
		s.logger.Debug("reconcile_skipped", slog.String("reason", "already running"))
		return nil, nil
	}
	defer s.running.Unlock()

	result, err := s.fn(ctx)
	var orphans, missing int
	if result != nil {
		orphans, missing = result.Counts()
	}
	s.progress.RecordReconcile(time.Now(), orphans, missing, err)
	return result, err
}

// Stop stops the schedule. A run already in progress is not interrupted.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
		s.cron = nil
	}
}
