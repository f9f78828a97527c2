package audithttp

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/odyssey-approvals/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-approvals/internal/shared"
)

const rateLimit = 10
const rateWindow = time.Minute

// MountRoutes registers the approval audit timeline and its CSV export.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(rateLimit, rateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.WriteProblem(w, httpx.ProblemDetail{Status: http.StatusTooManyRequests, Title: "Too Many Requests", Code: "rate_limited", Retryable: true})
		}),
	)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermAuditView))
		r.Get("/audit/approvals", h.handleTimeline)
		r.With(limiter).Get("/audit/approvals/export.csv", h.handleExport)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if principal, ok := shared.PrincipalFromContext(r.Context()); ok {
		return "user:" + strconv.FormatInt(principal.TenantID, 10) + ":" + strconv.FormatInt(principal.UserID, 10), nil
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr, nil
	}
	return "ip:" + host, nil
}
