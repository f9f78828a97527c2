package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odyssey-erp/odyssey-approvals/internal/approval"
)

// Metrics collects the Prometheus metrics of the service.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	actionsTotal    *prometheus.CounterVec
	pending         *prometheus.GaugeVec

	mu          sync.Mutex
	pendingKeys map[[3]string]struct{}
}

// NewMetrics initialises the registry with HTTP and approval metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	actions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_approval_actions_total",
		Help: "Approval actions by document type, action and outcome.",
	}, []string{"document_type", "action", "outcome"})
	pending := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "odyssey_approval_pending_documents",
		Help: "Documents waiting for approval by tenant, document type and level.",
	}, []string{"tenant", "document_type", "level"})
	registry.MustRegister(requests, duration, actions, pending)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		actionsTotal:    actions,
		pending:         pending,
		pendingKeys:     make(map[[3]string]struct{}),
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveAction implements approval.Observer.
func (m *Metrics) ObserveAction(docType approval.DocumentType, action approval.Action, outcome string) {
	if m == nil {
		return
	}
	m.actionsTotal.WithLabelValues(string(docType), string(action), outcome).Inc()
}

// SetPending replaces the pending gauge with a fresh snapshot. Series absent
// from the snapshot drop to zero.
func (m *Metrics) SetPending(counts []approval.PendingCount) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[[3]string]struct{}, len(counts))
	for _, c := range counts {
		key := [3]string{strconv.FormatInt(c.TenantID, 10), string(c.DocumentType), strconv.Itoa(c.LevelIndex)}
		m.pending.WithLabelValues(key[0], key[1], key[2]).Set(float64(c.Count))
		seen[key] = struct{}{}
	}
	for key := range m.pendingKeys {
		if _, ok := seen[key]; !ok {
			m.pending.WithLabelValues(key[0], key[1], key[2]).Set(0)
		}
	}
	m.pendingKeys = seen
}

// Registerer exposes the registry for custom metrics.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
