package audit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-approvals/internal/approval"
	"github.com/odyssey-erp/odyssey-approvals/internal/shared"
)

type stubTimelineRepo struct {
	windowRows     []TimelineRow
	allRows        []TimelineRow
	lastWindowCall WindowParams
	lastAllCall    WindowParams
}

func (s *stubTimelineRepo) TimelineWindow(ctx context.Context, params WindowParams) ([]TimelineRow, error) {
	s.lastWindowCall = params
	return s.windowRows, nil
}

func (s *stubTimelineRepo) TimelineAll(ctx context.Context, params WindowParams) ([]TimelineRow, error) {
	s.lastAllCall = params
	return s.allRows, nil
}

func TestServiceTimelinePaging(t *testing.T) {
	repo := &stubTimelineRepo{
		windowRows: []TimelineRow{
			mockRow("2024-03-10T10:00:00Z", 7, "APPROVAL_APPROVE", "1"),
			mockRow("2024-03-09T09:00:00Z", 7, "APPROVAL_SUBMIT", "1"),
			mockRow("2024-03-08T08:00:00Z", 8, "APPROVAL_SUBMIT", "2"),
		},
	}
	svc := NewService(repo)
	result, err := svc.Timeline(context.Background(), TimelineFilters{
		TenantID: 1,
		From:     time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		To:       time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		Action:   " approval_submit ",
		Page:     1,
		PageSize: 2,
	})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(result.Rows))
	}
	if !result.Paging.HasNext || result.Paging.NextPage != 2 {
		t.Fatalf("expected next page 2, got %+v", result.Paging)
	}
	if repo.lastWindowCall.Limit != 3 {
		t.Fatalf("expected limit 3, got %d", repo.lastWindowCall.Limit)
	}
	if repo.lastWindowCall.Offset != 0 {
		t.Fatalf("expected offset 0, got %d", repo.lastWindowCall.Offset)
	}
	if repo.lastWindowCall.Action != "APPROVAL_SUBMIT" {
		t.Fatalf("expected normalized action, got %q", repo.lastWindowCall.Action)
	}
}

func TestServiceTimelineRequiresTenant(t *testing.T) {
	svc := NewService(&stubTimelineRepo{})
	if _, err := svc.Timeline(context.Background(), TimelineFilters{}); err == nil {
		t.Fatalf("expected tenant error")
	}
}

func TestServiceExportReturnsAllRows(t *testing.T) {
	repo := &stubTimelineRepo{
		allRows: []TimelineRow{
			mockRow("2024-03-10T10:00:00Z", 7, "APPROVAL_APPROVE", "1"),
			mockRow("2024-03-09T09:00:00Z", 7, "APPROVAL_SUBMIT", "1"),
		},
	}
	svc := NewService(repo)
	rows, err := svc.Export(context.Background(), TimelineFilters{TenantID: 1, EntityID: " 1 "})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if repo.lastAllCall.EntityID != "1" {
		t.Fatalf("expected trimmed entity id, got %q", repo.lastAllCall.EntityID)
	}

	csvBytes, err := WriteCSV(rows)
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(csvBytes)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and 2 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[1], "2024-03-10T10:00:00Z,7,APPROVAL_APPROVE,1") {
		t.Fatalf("unexpected csv row %q", lines[1])
	}
}

type captureRecorder struct {
	logs []shared.AuditLog
}

func (c *captureRecorder) Record(ctx context.Context, log shared.AuditLog) error {
	if err := log.Validate(); err != nil {
		return err
	}
	c.logs = append(c.logs, log)
	return nil
}

func TestSinkRecordsApproval(t *testing.T) {
	rec := &captureRecorder{}
	sink := NewSink(rec)
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	doc := approval.SalesDocument{ID: 42, TenantID: 3, DocumentType: approval.DocumentTypeSalesInvoice, Number: "INV-9"}
	record := approval.ActionRecord{
		ID:         uuid.New(),
		DocumentID: 42,
		TenantID:   3,
		LevelIndex: 2,
		ActorID:    11,
		Action:     approval.ActionReject,
		FromStatus: approval.StatusSubmitted,
		ToStatus:   approval.StatusRejected,
		SuperAdmin: true,
		Notes:      "duplicate",
		At:         at,
	}
	if err := sink.RecordApproval(context.Background(), doc, record); err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(rec.logs) != 1 {
		t.Fatalf("expected 1 log, got %d", len(rec.logs))
	}
	got := rec.logs[0]
	if got.Action != "APPROVAL_REJECT" || got.Entity != EntitySalesDocument || got.EntityID != "42" {
		t.Fatalf("unexpected entry %+v", got)
	}
	if got.Meta["level"] != 2 || got.Meta["super_admin"] != true || got.Meta["notes"] != "duplicate" {
		t.Fatalf("unexpected meta %+v", got.Meta)
	}
	if !got.At.Equal(at) || got.TenantID != 3 {
		t.Fatalf("unexpected header %+v", got)
	}
}

func mockRow(ts string, actor int64, action, entityID string) TimelineRow {
	tval, _ := time.Parse(time.RFC3339, ts)
	return TimelineRow{
		At:       tval,
		ActorID:  actor,
		Action:   action,
		Entity:   EntitySalesDocument,
		EntityID: entityID,
	}
}
