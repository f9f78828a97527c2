package app

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-approvals/internal/observability"
	"github.com/odyssey-erp/odyssey-approvals/internal/shared"
)

func TestPrincipalMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var got shared.Principal
	var present bool
	h := PrincipalMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, present = shared.PrincipalFromContext(r.Context())
	}))

	cases := []struct {
		name    string
		tenant  string
		user    string
		present bool
	}{
		{"both headers", "3", "8", true},
		{"missing", "", "", false},
		{"malformed user", "3", "abc", false},
		{"zero tenant", "0", "8", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.tenant != "" {
				req.Header.Set(headerTenantID, tc.tenant)
			}
			if tc.user != "" {
				req.Header.Set(headerUserID, tc.user)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			require.Equal(t, tc.present, present)
			if tc.present {
				require.Equal(t, shared.Principal{TenantID: 3, UserID: 8}, got)
			}
		})
	}
}

func TestRouterServesOpsEndpoints(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := NewRouter(RouterParams{
		Logger:  logger,
		Config:  &Config{AppRequestTimeout: 0},
		Metrics: observability.NewMetrics(),
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "odyssey_http_requests_total")

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}
