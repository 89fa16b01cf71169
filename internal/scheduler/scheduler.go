package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/ganot/taskdeck/internal/domain/sync"
	"github.com/ganot/taskdeck/internal/domain/task"
	"github.com/ganot/taskdeck/internal/upstream"
)

// SyncService runs a full cache refresh.
type SyncService interface {
	Run(ctx context.Context, progress upstream.ProgressFunc) (task.Summary, error)
}

// Scheduler triggers periodic cache refreshes until its context is
// cancelled.
type Scheduler struct {
	sync       SyncService
	interval   time.Duration
	syncOnBoot bool
	logger     *slog.Logger
}

// Options configures a Scheduler.
type Options struct {
	Sync       SyncService
	Interval   time.Duration
	SyncOnBoot bool
	Logger     *slog.Logger
}

// New creates a scheduler. A zero interval disables the periodic loop;
// Run then only performs the boot sync, if enabled.
func New(opts Options) *Scheduler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Scheduler{
		sync:       opts.Sync,
		interval:   opts.Interval,
		syncOnBoot: opts.SyncOnBoot,
		logger:     logger,
	}
}

// Run blocks until ctx is cancelled, refreshing the cache at the
// configured interval. Refresh failures are logged and the loop keeps
// going; a refresh already in flight is skipped.
func (s *Scheduler) Run(ctx context.Context) {
	if s.syncOnBoot {
		s.refresh(ctx)
	}

	if s.interval <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

func (s *Scheduler) refresh(ctx context.Context) {
	summary, err := s.sync.Run(ctx, nil)
	switch {
	case errors.Is(err, sync.ErrSyncInProgress):
		s.logger.Info("scheduled refresh skipped, sync already running")
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		s.logger.Error("scheduled refresh failed", "error", err)
	default:
		s.logger.Info("scheduled refresh complete",
			"tasks", summary.TaskCount,
			"changed", summary.ChangedCount)
	}
}
