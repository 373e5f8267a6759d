// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/repository"
)

// StaleBatchLister finds batches still processing after olderThan.
type StaleBatchLister interface {
	StaleBatches(ctx context.Context, olderThan time.Duration) ([]*repository.UploadBatch, error)
}

// Scheduler manages background scheduled jobs using robfig/cron.
type Scheduler struct {
	cron       *cron.Cron
	batches    StaleBatchLister
	schedule   string
	staleAfter time.Duration
	logger     *slog.Logger
}

// NewScheduler creates a new job scheduler. schedule is a standard 5-field
// cron expression.
func NewScheduler(batches StaleBatchLister, schedule string, staleAfter time.Duration, logger *slog.Logger) *Scheduler {
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))

	return &Scheduler{
		cron:       c,
		batches:    batches,
		schedule:   schedule,
		staleAfter: staleAfter,
		logger:     logger,
	}
}

// Start begins scheduled jobs.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, func() { s.checkStaleBatches() }); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.Int("jobs", len(s.cron.Entries())),
		slog.String("stale_schedule", s.schedule),
	)
	return nil
}

// Stop gracefully stops all scheduled jobs.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// RunNow triggers the stale batch check outside the schedule.
func (s *Scheduler) RunNow() int {
	return s.checkStaleBatches()
}

// checkStaleBatches reports batches left in processing by a storage failure
// or a crash. It never changes them.
func (s *Scheduler) checkStaleBatches() int {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	stale, err := s.batches.StaleBatches(ctx, s.staleAfter)
	if err != nil {
		s.logger.Error("failed to list stale batches", slog.Any("error", err))
		return 0
	}

	for _, b := range stale {
		s.logger.Warn("batch still processing",
			slog.String("batch_id", b.ID.String()),
			slog.String("kind", string(b.Kind)),
			slog.String("source", b.SourceName),
			slog.Time("created_at", b.CreatedAt),
		)
	}
	s.logger.Info("stale batch check completed", slog.Int("stale", len(stale)))
	return len(stale)
}
