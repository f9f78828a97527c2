package audithttp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-approvals/internal/audit"
	"github.com/odyssey-erp/odyssey-approvals/internal/rbac"
	"github.com/odyssey-erp/odyssey-approvals/internal/shared"
)

type stubTimelineService struct {
	result      audit.Result
	exportRows  []audit.TimelineRow
	lastFilters audit.TimelineFilters
}

func (s *stubTimelineService) Timeline(_ context.Context, filters audit.TimelineFilters) (audit.Result, error) {
	s.lastFilters = filters
	return s.result, nil
}

func (s *stubTimelineService) Export(_ context.Context, filters audit.TimelineFilters) ([]audit.TimelineRow, error) {
	s.lastFilters = filters
	return s.exportRows, nil
}

type stubAuditRBAC []string

func (s stubAuditRBAC) EffectivePermissions(context.Context, int64, int64) ([]string, error) {
	return s, nil
}

func newAuditRouter(t *testing.T, service *stubTimelineService, perms []string) chi.Router {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(logger, service, rbac.Middleware{Service: stubAuditRBAC(perms), Logger: logger})
	h.now = func() time.Time { return time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), shared.Principal{TenantID: 4, UserID: 9})))
		})
	})
	h.MountRoutes(r)
	return r
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestTimelineRequiresAuditPermission(t *testing.T) {
	r := newAuditRouter(t, &stubTimelineService{}, nil)
	require.Equal(t, http.StatusForbidden, get(r, "/audit/approvals").Code)
}

func TestTimelineDefaultsAndTenantScope(t *testing.T) {
	svc := &stubTimelineService{result: audit.Result{
		Rows:   []audit.TimelineRow{{ActorID: 9, Action: "APPROVAL_APPROVE", Entity: audit.EntitySalesDocument, EntityID: "5", Level: 1}},
		Paging: audit.PagingInfo{Page: 1, PageSize: 20},
	}}
	r := newAuditRouter(t, svc, []string{shared.PermAuditView})

	rr := get(r, "/audit/approvals?actor_id=9&document_id=5&action=approval_approve&page_size=500")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	f := svc.lastFilters
	require.Equal(t, int64(4), f.TenantID)
	require.Equal(t, int64(9), f.ActorID)
	require.Equal(t, "5", f.EntityID)
	require.Equal(t, maxPageSize, f.PageSize)
	require.Equal(t, time.Date(2024, 6, 23, 0, 0, 0, 0, time.UTC), f.From)
	require.Equal(t, 30, f.To.Day())
	require.Equal(t, 23, f.To.Hour())

	var body audit.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Rows, 1)
	require.Equal(t, "APPROVAL_APPROVE", body.Rows[0].Action)
}

func TestTimelineRejectsBadFilters(t *testing.T) {
	r := newAuditRouter(t, &stubTimelineService{}, []string{shared.PermAuditView})
	for _, path := range []string{
		"/audit/approvals?from=2024-07-01&to=2024-06-01",
		"/audit/approvals?from=2023-01-01&to=2024-06-01",
		"/audit/approvals?to=yesterday",
		"/audit/approvals?page=0",
		"/audit/approvals?actor_id=x",
	} {
		require.Equal(t, http.StatusBadRequest, get(r, path).Code, path)
	}
}

func TestExportWritesCSV(t *testing.T) {
	svc := &stubTimelineService{exportRows: []audit.TimelineRow{{
		At:         time.Date(2024, 6, 29, 8, 0, 0, 0, time.UTC),
		ActorID:    9,
		Action:     "APPROVAL_REJECT",
		EntityID:   "5",
		Number:     "SO-5",
		Level:      2,
		FromStatus: "SUBMITTED",
		ToStatus:   "REJECTED",
		Notes:      "price too low, see thread",
	}}}
	r := newAuditRouter(t, svc, []string{shared.PermAuditView})

	rr := get(r, "/audit/approvals/export.csv")
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, strings.HasPrefix(rr.Header().Get("Content-Type"), "text/csv"))
	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	require.Len(t, lines, 2)
	require.Equal(t, `2024-06-29T08:00:00Z,9,APPROVAL_REJECT,5,SO-5,2,SUBMITTED,REJECTED,"price too low, see thread"`, lines[1])
}

func TestExportIsRateLimited(t *testing.T) {
	r := newAuditRouter(t, &stubTimelineService{}, []string{shared.PermAuditView})
	for i := 0; i < rateLimit; i++ {
		require.Equal(t, http.StatusOK, get(r, "/audit/approvals/export.csv").Code)
	}
	require.Equal(t, http.StatusTooManyRequests, get(r, "/audit/approvals/export.csv").Code)
}
