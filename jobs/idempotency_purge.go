package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-approvals/internal/jobs"
)

// KeyPurger deletes idempotency keys older than the retention window.
type KeyPurger interface {
	Purge(ctx context.Context, retention time.Duration) (int64, error)
}

// IdempotencyPurgeJob keeps the idempotency key table bounded.
type IdempotencyPurgeJob struct {
	Purger    KeyPurger
	Retention time.Duration
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewIdempotencyPurgeJob wires the purge handler. Retention defaults to 24h.
func NewIdempotencyPurgeJob(purger KeyPurger, retention time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyPurgeJob {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &IdempotencyPurgeJob{Purger: purger, Retention: retention, Logger: logger, Metrics: metrics}
}

// Handle runs one purge.
func (j *IdempotencyPurgeJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Purger == nil {
		return errors.New("idempotency purge: purger not configured")
	}
	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskIdempotencyPurge)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	removed, err := j.Purger.Purge(ctx, j.Retention)
	if err != nil {
		logger.Error("purge idempotency keys", slog.String("job", TaskIdempotencyPurge), slog.Any("error", err))
		return err
	}
	logger.Info("purged idempotency keys", slog.String("job", TaskIdempotencyPurge), slog.Int64("removed", removed), slog.Duration("retention", j.Retention))
	return nil
}

// Cron returns the scheduler registration for this job.
func (j *IdempotencyPurgeJob) Cron(spec string) CronRegistration {
	return CronRegistration{Spec: spec, Task: NewIdempotencyPurgeTask(), Options: []asynq.Option{asynq.Queue(QueueDefault)}}
}
