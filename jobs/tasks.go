package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-approvals/internal/approval"
	jobmetrics "github.com/odyssey-erp/odyssey-approvals/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskApprovalNotify delivers a committed approval action to interested parties.
	TaskApprovalNotify = "approval:notify"
	// TaskPendingSnapshot refreshes the pending documents gauge.
	TaskPendingSnapshot = "approval:pending_snapshot"
	// TaskIdempotencyPurge drops expired Idempotency-Key claims.
	TaskIdempotencyPurge = "approval:idempotency_purge"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// NotifyPayload is the wire form of approval.Event.
type NotifyPayload struct {
	TenantID     int64     `json:"tenant_id"`
	DocumentID   int64     `json:"document_id"`
	DocumentType string    `json:"document_type"`
	Number       string    `json:"number"`
	Action       string    `json:"action"`
	ActorID      int64     `json:"actor_id"`
	Status       string    `json:"status"`
	CurrentLevel int       `json:"current_level"`
	NextRoleIDs  []int64   `json:"next_role_ids,omitempty"`
	At           time.Time `json:"at"`
}

// PayloadFromEvent converts an engine event into a task payload.
func PayloadFromEvent(evt approval.Event) NotifyPayload {
	return NotifyPayload{
		TenantID:     evt.TenantID,
		DocumentID:   evt.DocumentID,
		DocumentType: string(evt.DocumentType),
		Number:       evt.Number,
		Action:       string(evt.Action),
		ActorID:      evt.ActorID,
		Status:       string(evt.Status),
		CurrentLevel: evt.CurrentLevel,
		NextRoleIDs:  evt.NextRoleIDs,
		At:           evt.At,
	}
}

// Event converts the payload back into an engine event.
func (p NotifyPayload) Event() approval.Event {
	return approval.Event{
		TenantID:     p.TenantID,
		DocumentID:   p.DocumentID,
		DocumentType: approval.DocumentType(p.DocumentType),
		Number:       p.Number,
		Action:       approval.Action(p.Action),
		ActorID:      p.ActorID,
		Status:       approval.Status(p.Status),
		CurrentLevel: p.CurrentLevel,
		NextRoleIDs:  p.NextRoleIDs,
		At:           p.At,
	}
}

// NewApprovalNotifyTask constructs an Asynq task for the event.
func NewApprovalNotifyTask(evt approval.Event) (*asynq.Task, error) {
	data, err := json.Marshal(PayloadFromEvent(evt))
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskApprovalNotify, data, asynq.MaxRetry(5), asynq.Timeout(30*time.Second)), nil
}

// NewPendingSnapshotTask constructs the pending gauge refresh task.
func NewPendingSnapshotTask() *asynq.Task {
	return asynq.NewTask(TaskPendingSnapshot, nil, asynq.MaxRetry(1), asynq.Unique(time.Minute))
}

// NewIdempotencyPurgeTask constructs the key retention task.
func NewIdempotencyPurgeTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyPurge, nil, asynq.MaxRetry(3), asynq.Unique(time.Hour))
}
