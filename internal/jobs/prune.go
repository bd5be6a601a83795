// Package jobs runs background maintenance for the takeaway cache.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"safesight/internal/logger"
	"safesight/internal/metrics"
)

// Pruner deletes cache rows that expired before cutoff.
type Pruner interface {
	PruneExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// PruneJob removes expired takeaways once they are older than the retention period.
// Rows between expiry and retention are kept as a history of past generations.
type PruneJob struct {
	pruner    Pruner
	retention time.Duration
	timeout   time.Duration
	now       func() time.Time
	metrics   *metrics.Metrics
	log       *slog.Logger
}

// NewPruneJob creates a prune job.
func NewPruneJob(pruner Pruner, retention time.Duration, m *metrics.Metrics) *PruneJob {
	return &PruneJob{
		pruner:    pruner,
		retention: retention,
		timeout:   time.Minute,
		now:       time.Now,
		metrics:   m,
		log:       logger.Get(),
	}
}

// Run prunes once and returns the number of deleted rows.
func (j *PruneJob) Run(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	cutoff := j.now().UTC().Add(-j.retention)
	start := time.Now()

	deleted, err := j.pruner.PruneExpired(ctx, cutoff)
	if err != nil {
		j.log.Error("Takeaway prune failed", "error", err, "cutoff", cutoff)
		return deleted, err
	}

	j.metrics.RecordPruned(deleted)
	j.log.Info("Pruned expired takeaways", "deleted", deleted, "cutoff", cutoff, "duration", time.Since(start))
	return deleted, nil
}

// PruneScheduler runs a PruneJob on a fixed interval.
type PruneScheduler struct {
	scheduler gocron.Scheduler
	job       *PruneJob
	interval  time.Duration
	log       *slog.Logger
}

// NewPruneScheduler creates a scheduler for job. Call Start to begin running it.
func NewPruneScheduler(job *PruneJob, interval time.Duration) (*PruneScheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("prune interval must be positive, got %v", interval)
	}

	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &PruneScheduler{
		scheduler: scheduler,
		job:       job,
		interval:  interval,
		log:       logger.Get(),
	}, nil
}

// Start registers the prune job, runs it once immediately, and starts the scheduler.
func (s *PruneScheduler) Start() error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			_, _ = s.job.Run(context.Background())
		}),
		gocron.WithName("prune_expired_takeaways"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("failed to create prune job: %w", err)
	}

	s.scheduler.Start()
	s.log.Info("Prune scheduler started", "interval", s.interval, "retention", s.job.retention)
	return nil
}

// Stop shuts the scheduler down, waiting for a running prune to finish.
func (s *PruneScheduler) Stop() error {
	s.log.Info("Stopping prune scheduler")
	return s.scheduler.Shutdown()
}
