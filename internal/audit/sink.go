package audit

import (
	"context"
	"strconv"

	"github.com/odyssey-erp/odyssey-approvals/internal/approval"
	"github.com/odyssey-erp/odyssey-approvals/internal/shared"
)

// Recorder persists generic audit entries.
type Recorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Sink forwards committed approval actions to audit_logs.
type Sink struct {
	recorder Recorder
}

// NewSink constructs the sink.
func NewSink(recorder Recorder) *Sink {
	return &Sink{recorder: recorder}
}

// RecordApproval implements approval.AuditSink.
func (s *Sink) RecordApproval(ctx context.Context, doc approval.SalesDocument, record approval.ActionRecord) error {
	return s.recorder.Record(ctx, EntryFor(doc, record))
}

// EntryFor maps an action record onto an audit log entry.
func EntryFor(doc approval.SalesDocument, record approval.ActionRecord) shared.AuditLog {
	meta := map[string]any{
		"record_id":     record.ID.String(),
		"document_type": string(doc.DocumentType),
		"number":        doc.Number,
		"level":         record.LevelIndex,
		"from_status":   string(record.FromStatus),
		"to_status":     string(record.ToStatus),
	}
	if record.SuperAdmin {
		meta["super_admin"] = true
	}
	if record.Notes != "" {
		meta["notes"] = record.Notes
	}
	return shared.AuditLog{
		TenantID: record.TenantID,
		ActorID:  record.ActorID,
		Action:   "APPROVAL_" + string(record.Action),
		Entity:   EntitySalesDocument,
		EntityID: strconv.FormatInt(record.DocumentID, 10),
		Meta:     meta,
		At:       record.At,
	}
}
