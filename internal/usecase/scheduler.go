package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"FRBScanner/internal/domain"
	"FRBScanner/internal/ports"
)

// Scheduler wires the weekly driver with the pipeline use case.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	logger   *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring runs.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{driver: driver, pipeline: pipeline, logger: logger}
}

// Start registers the pipeline with the provided scheduler. Each slot runs
// with the sources' default windows.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	job := func(fired time.Time) {
		s.logger.Info("scheduled run due", "at", fired)
		_, err := s.pipeline.Run(ctx, RunOptions{Trigger: domain.TriggerSchedule})
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrRunInProgress):
			s.logger.Warn("scheduled run skipped, another run is in progress")
		default:
			s.logger.Error("scheduled run failed", "error", err)
		}
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
