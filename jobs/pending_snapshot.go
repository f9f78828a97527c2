package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-approvals/internal/approval"
	jobmetrics "github.com/odyssey-erp/odyssey-approvals/internal/jobs"
)

// PendingSource counts SUBMITTED documents per tenant, type and level.
type PendingSource interface {
	CountPending(ctx context.Context) ([]approval.PendingCount, error)
}

// PendingGauge receives pending snapshots.
type PendingGauge interface {
	SetPending(counts []approval.PendingCount)
}

// PendingSnapshotJob refreshes the pending documents gauge.
type PendingSnapshotJob struct {
	Source  PendingSource
	Gauge   PendingGauge
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewPendingSnapshotJob wires dependencies for the snapshot handler.
func NewPendingSnapshotJob(source PendingSource, gauge PendingGauge, logger *slog.Logger, metrics *jobmetrics.Metrics) *PendingSnapshotJob {
	return &PendingSnapshotJob{
		Source:  source,
		Gauge:   gauge,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle runs one snapshot.
func (j *PendingSnapshotJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Source == nil || j.Gauge == nil {
		return errors.New("pending snapshot: dependencies not configured")
	}
	tracker := j.metrics().Track(TaskPendingSnapshot)
	defer func() {
		err = tracker.End(err)
	}()

	start := j.now()
	counts, err := j.Source.CountPending(ctx)
	if err != nil {
		j.log().Error("count pending documents", slog.Any("error", err))
		return err
	}
	j.Gauge.SetPending(counts)

	total := 0
	for _, c := range counts {
		total += c.Count
	}
	j.log().Info("refreshed pending snapshot", slog.Int("series", len(counts)), slog.Int("documents", total), slog.Duration("duration", j.now().Sub(start)))
	return nil
}

// Cron returns the scheduler registration for this job.
func (j *PendingSnapshotJob) Cron(spec string) CronRegistration {
	return CronRegistration{Spec: spec, Task: NewPendingSnapshotTask(), Options: []asynq.Option{asynq.Queue(QueueDefault)}}
}

func (j *PendingSnapshotJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *PendingSnapshotJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPendingSnapshot))
	}
	return slog.Default().With(slog.String("job", TaskPendingSnapshot))
}

func (j *PendingSnapshotJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *PendingSnapshotJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
