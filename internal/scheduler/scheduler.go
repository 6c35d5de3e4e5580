package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"ecolisting_ingest/internal/domain"
)

// Runner performs one ingest run.
type Runner interface {
	Run(ctx context.Context) (*domain.RunStats, error)
}

// Scheduler runs the ingest once, or repeatedly on an interval. Runs never
// overlap: the next tick is only read after the current run returns.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	logger   *slog.Logger
}

func NewScheduler(runner Runner, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		interval: interval,
		logger:   logger,
	}
}

// Start blocks until the work is done. With no interval it performs a single
// run and returns its error, including a cancellation. Otherwise failed runs
// are logged and Start returns nil once ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		_, err := s.runner.Run(ctx)
		return err
	}

	s.logger.Info("scheduler started", "interval", s.interval)

	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if _, err := s.runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("ingest run failed", "error", err)
	}
}
