package sync

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Scheduler runs Runner at startup and then every Interval until ctx ends.
type Scheduler struct {
	Name     string
	Runner   Runner
	Interval time.Duration
	Logger   *slog.Logger
}

func (s *Scheduler) Run(ctx context.Context) {
	if s.Runner == nil || s.Interval <= 0 {
		return
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("job", s.Name)

	s.runOnce(ctx, logger, "initial run failed")

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, logger, "scheduled run failed")
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, logger *slog.Logger, msg string) {
	err := s.Runner.RunOnce(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrSyncAlreadyRunning):
		logger.Debug("previous run still in progress, skipping")
	case ctx.Err() != nil:
	default:
		logger.Error(msg, "err", err)
	}
}
