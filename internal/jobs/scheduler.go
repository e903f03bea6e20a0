// Package jobs runs periodic maintenance such as completing finished reservations and backups.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"residia/internal/metrics"
)

// Completer marks approved reservations that have ended as completed.
type Completer interface {
	CompleteFinished(ctx context.Context, now time.Time) (int64, error)
}

// Backuper snapshots the database.
type Backuper interface {
	Run(ctx context.Context) error
}

// Scheduler wraps a cron runner bound to the community timezone.
type Scheduler struct {
	cron    *cron.Cron
	loc     *time.Location
	logger  zerolog.Logger
	timeout time.Duration
	now     func() time.Time
}

// NewScheduler creates a scheduler evaluating schedules in loc.
func NewScheduler(loc *time.Location, logger zerolog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		loc:     loc,
		logger:  logger.With().Str("component", "jobs").Logger(),
		timeout: 5 * time.Minute,
		now:     time.Now,
	}
}

// AddCompletion schedules the completion sweep.
func (s *Scheduler) AddCompletion(spec string, c Completer) error {
	if _, err := s.cron.AddFunc(spec, func() { _, _ = s.RunCompletion(context.Background(), c) }); err != nil {
		return fmt.Errorf("schedule completion %q: %w", spec, err)
	}
	s.logger.Info().Str("schedule", spec).Msg("completion job scheduled")
	return nil
}

// AddBackup schedules database backups.
func (s *Scheduler) AddBackup(spec string, b Backuper) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := b.Run(ctx); err != nil {
			s.logger.Error().Err(err).Msg("backup job failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule backup %q: %w", spec, err)
	}
	s.logger.Info().Str("schedule", spec).Msg("backup job scheduled")
	return nil
}

// RunCompletion completes reservations whose end lies before the current wall time in the scheduler timezone.
func (s *Scheduler) RunCompletion(ctx context.Context, c Completer) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// Reservation dates and times are wall clock values; compare in the same frame.
	local := s.now().In(s.loc)
	wall := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), local.Minute(), local.Second(), 0, time.UTC)

	n, err := c.CompleteFinished(ctx, wall)
	if err != nil {
		s.logger.Error().Err(err).Msg("completion job failed")
		return 0, err
	}
	if n > 0 {
		metrics.AddReservationsCompleted(n)
		s.logger.Info().Int64("count", n).Msg("reservations completed")
	}
	return n, nil
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs or ctx expiry.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn().Msg("jobs still running at shutdown")
	}
}
