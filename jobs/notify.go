package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-approvals/internal/approval"
	jobmetrics "github.com/odyssey-erp/odyssey-approvals/internal/jobs"
)

// Delivery hands an approval event to an outbound channel.
type Delivery interface {
	Deliver(ctx context.Context, evt approval.Event) error
}

// LogDelivery writes events to the structured log. It is the default channel
// until an outbound integration is configured.
type LogDelivery struct {
	Logger *slog.Logger
}

// Deliver implements Delivery.
func (d LogDelivery) Deliver(_ context.Context, evt approval.Event) error {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("approval notification",
		slog.Int64("tenant_id", evt.TenantID),
		slog.Int64("document_id", evt.DocumentID),
		slog.String("number", evt.Number),
		slog.String("action", string(evt.Action)),
		slog.String("status", string(evt.Status)),
		slog.Int("current_level", evt.CurrentLevel),
		slog.Any("next_role_ids", evt.NextRoleIDs),
	)
	return nil
}

// NotifyJob consumes approval:notify tasks.
type NotifyJob struct {
	Delivery Delivery
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewNotifyJob wires dependencies for the notification handler.
func NewNotifyJob(delivery Delivery, logger *slog.Logger, metrics *jobmetrics.Metrics) *NotifyJob {
	if delivery == nil {
		delivery = LogDelivery{Logger: logger}
	}
	return &NotifyJob{Delivery: delivery, Logger: logger, Metrics: metrics}
}

// Handle processes a single notification task.
func (j *NotifyJob) Handle(ctx context.Context, task *asynq.Task) (err error) {
	if j == nil || j.Delivery == nil {
		return errors.New("approval notify: delivery not configured")
	}
	var payload NotifyPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		j.log().Warn("discard malformed notification", slog.Any("error", err))
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.TenantID <= 0 || payload.DocumentID <= 0 || payload.Action == "" {
		j.log().Warn("discard incomplete notification", slog.Int64("document_id", payload.DocumentID))
		return fmt.Errorf("incomplete payload: %w", asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskApprovalNotify)
	defer func() {
		err = tracker.End(err)
	}()

	if err = j.Delivery.Deliver(ctx, payload.Event()); err != nil {
		j.metrics().AddNotification(payload.TenantID, payload.Action, "failed")
		j.log().Error("deliver notification", slog.Int64("document_id", payload.DocumentID), slog.String("action", payload.Action), slog.Any("error", err))
		return err
	}
	j.metrics().AddNotification(payload.TenantID, payload.Action, "delivered")
	return nil
}

func (j *NotifyJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *NotifyJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskApprovalNotify))
	}
	return slog.Default().With(slog.String("job", TaskApprovalNotify))
}
