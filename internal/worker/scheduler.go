package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/cuongbtq/palantiri/internal/jobs"
)

// ParseSchedule returns the cron schedule for expr. An empty expr falls back
// to a fixed interval.
func ParseSchedule(expr string, interval time.Duration) (cron.Schedule, error) {
	if expr == "" {
		if interval <= 0 {
			return nil, fmt.Errorf("schedule interval must be greater than 0")
		}
		return cron.Every(interval), nil
	}

	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return schedule, nil
}

// Scheduler publishes the fleet health-check on a cron schedule
type Scheduler struct {
	publisher Publisher
	schedule  cron.Schedule
	logger    *slog.Logger
	now       func() time.Time
}

// NewScheduler creates a scheduler that fires on schedule
func NewScheduler(publisher Publisher, schedule cron.Schedule, logger *slog.Logger) *Scheduler {
	return &Scheduler{publisher: publisher, schedule: schedule, logger: logger, now: time.Now}
}

// Run publishes one health-check immediately and then one per activation until ctx is done
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("Health check scheduler started", slog.Time("next", s.schedule.Next(s.now())))

	s.tick(ctx)

	for {
		timer := time.NewTimer(s.schedule.Next(s.now()).Sub(s.now()))

		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("Health check scheduler stopped")
			return
		case <-timer.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if err := s.publisher.Publish(ctx, "", jobs.New(jobs.HealthCheck, &jobs.Empty{})); err != nil {
		s.logger.Error("Failed to publish health check", slog.Any("error", err))
		return
	}
	s.logger.Debug("Published health check")
}
