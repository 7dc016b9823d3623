package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"gamedex/internal/domain"
)

// Refresher is the reconciliation entry point the scheduler drives.
type Refresher interface {
	UpdateAllGames(ctx context.Context) (*domain.SyncStats, error)
}

// Scheduler triggers a full refresh on startup and then on a fixed interval.
// A tick that arrives while a refresh is still running is skipped, so sweeps
// never overlap.
type Scheduler struct {
	refresher  Refresher
	interval   time.Duration
	runTimeout time.Duration
	running    sync.Mutex
	logger     *slog.Logger
}

func NewScheduler(refresher Refresher, interval, runTimeout time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		refresher:  refresher,
		interval:   interval,
		runTimeout: runTimeout,
		logger:     logger.With("component", "scheduler"),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval)

	// Startup refresh runs in the background so the process is ready to
	// serve reads immediately.
	go s.runRefresh(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runRefresh(ctx)
		}
	}
}

func (s *Scheduler) runRefresh(ctx context.Context) {
	if !s.running.TryLock() {
		s.logger.Warn("previous refresh still running, skipping this tick")
		return
	}
	defer s.running.Unlock()

	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	stats, err := s.refresher.UpdateAllGames(runCtx)
	if err != nil {
		// Whole-run failures are logged only; the next tick retries.
		s.logger.Error("refresh failed", "error", err)
		return
	}

	s.logger.Info("refresh finished",
		"processed", stats.Processed,
		"added", stats.Added,
		"updated", stats.Updated,
		"blacklisted", stats.Blacklisted,
		"errors", stats.Errors,
	)
}
