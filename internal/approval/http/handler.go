// Package approvalhttp exposes the approval engine over JSON HTTP.
package approvalhttp

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-approvals/internal/approval"
	"github.com/odyssey-erp/odyssey-approvals/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-approvals/internal/rbac"
	"github.com/odyssey-erp/odyssey-approvals/internal/shared"
)

// DocumentService is the document side of the engine.
type DocumentService interface {
	CreateDraft(ctx context.Context, input approval.DraftInput) (approval.SalesDocument, error)
	Get(ctx context.Context, tenantID, id int64) (approval.SalesDocument, error)
	History(ctx context.Context, tenantID, id int64) ([]approval.ActionRecord, error)
	Apply(ctx context.Context, req approval.ActionRequest) (approval.SalesDocument, error)
	ListPending(ctx context.Context, q approval.PendingQuery) (approval.PendingPage, error)
}

// ConfigService manages level configuration.
type ConfigService interface {
	GetConfig(ctx context.Context, tenantID int64, docType approval.DocumentType) ([]approval.LevelConfig, error)
	ReplaceConfig(ctx context.Context, tenantID int64, docType approval.DocumentType, inputs []approval.LevelInput, actorID int64) ([]approval.LevelConfig, error)
}

// IdempotencyStore claims Idempotency-Key values so retried actions run once.
type IdempotencyStore interface {
	Claim(ctx context.Context, tenantID int64, scope, key string) error
	Release(ctx context.Context, tenantID int64, scope, key string) error
}

const (
	idempotencyHeader    = "Idempotency-Key"
	maxIdempotencyKeyLen = 128
)

// Handler wires approval endpoints.
type Handler struct {
	logger      *slog.Logger
	documents   DocumentService
	configs     ConfigService
	identity    approval.IdentityPort
	rbac        rbac.Middleware
	validator   *validator.Validate
	rateLimit   func(http.Handler) http.Handler
	idempotency IdempotencyStore
}

// NewHandler constructs the approval handler. actionLimit caps the actions a
// principal may apply per minute; zero disables the limiter.
func NewHandler(logger *slog.Logger, documents DocumentService, configs ConfigService, identity approval.IdentityPort, rbac rbac.Middleware, actionLimit int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	limiter := func(next http.Handler) http.Handler { return next }
	if actionLimit > 0 {
		limiter = httprate.Limit(actionLimit, time.Minute,
			httprate.WithKeyFuncs(rateLimitKey),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				httpx.WriteProblem(w, httpx.ProblemDetail{
					Status:    http.StatusTooManyRequests,
					Title:     "Too Many Requests",
					Code:      "rate_limited",
					Retryable: true,
				})
			}),
		)
	}
	return &Handler{
		logger:    logger,
		documents: documents,
		configs:   configs,
		identity:  identity,
		rbac:      rbac,
		validator: validator.New(),
		rateLimit: limiter,
	}
}

// WithIdempotency enables Idempotency-Key handling on document actions.
func (h *Handler) WithIdempotency(store IdempotencyStore) *Handler {
	h.idempotency = store
	return h
}

// MountRoutes registers approval routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermApprovalConfigView, shared.PermApprovalConfigManage))
		r.Get("/approvals/config/{documentType}", h.handleGetConfig)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermApprovalConfigManage))
		r.Put("/approvals/config/{documentType}", h.handleReplaceConfig)
	})
	r.Get("/approvals/pending", h.handleListPending)

	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermDocumentCreate))
		r.Post("/documents", h.handleCreateDraft)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermDocumentView))
		r.Get("/documents/{id}", h.handleGetDocument)
		r.Get("/documents/{id}/history", h.handleHistory)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rateLimit)
		r.With(h.rbac.RequireAny(shared.PermDocumentSubmit)).Post("/documents/{id}/submit", h.action(approval.ActionSubmit))
		r.Post("/documents/{id}/approve", h.action(approval.ActionApprove))
		r.Post("/documents/{id}/reject", h.action(approval.ActionReject))
		r.Post("/documents/{id}/request-revision", h.action(approval.ActionRequestRevision))
		r.With(h.rbac.RequireAny(shared.PermDocumentCancel)).Post("/documents/{id}/cancel", h.action(approval.ActionCancel))
		r.With(h.rbac.RequireAny(shared.PermDocumentPost)).Post("/documents/{id}/post", h.action(approval.ActionPost))
	})
}

func (h *Handler) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	docType := approval.DocumentType(chi.URLParam(r, "documentType"))
	levels, err := h.configs.GetConfig(r.Context(), principal.TenantID, docType)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newConfigResponse(docType, levels))
}

func (h *Handler) handleReplaceConfig(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req replaceConfigRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if req.Levels == nil {
		h.respondError(w, r, validationErr("levels is required; send [] to disable approval"))
		return
	}
	if err := h.validate(req); err != nil {
		h.respondError(w, r, err)
		return
	}
	docType := approval.DocumentType(chi.URLParam(r, "documentType"))
	levels, err := h.configs.ReplaceConfig(r.Context(), principal.TenantID, docType, req.inputs(), principal.UserID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newConfigResponse(docType, levels))
}

func (h *Handler) handleListPending(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	page, err := optionalInt(query.Get("page"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if page > approval.MaxPendingPage {
		h.respondError(w, r, validationErr("page must not exceed "+strconv.Itoa(approval.MaxPendingPage)))
		return
	}
	limit, err := optionalInt(query.Get("limit"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	actor, err := approval.ResolveActor(r.Context(), h.identity, principal.TenantID, principal.UserID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	result, err := h.documents.ListPending(r.Context(), approval.PendingQuery{
		TenantID:     principal.TenantID,
		DocumentType: approval.DocumentType(query.Get("document_type")),
		Actor:        actor,
		Page:         page,
		Limit:        limit,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	items := make([]documentResponse, 0, len(result.Items))
	for _, doc := range result.Items {
		items = append(items, newDocumentResponse(doc))
	}
	httpx.JSON(w, http.StatusOK, pendingResponse{Items: items, Pagination: result.Pagination})
}

func (h *Handler) handleCreateDraft(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req createDraftRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := h.validate(req); err != nil {
		h.respondError(w, r, err)
		return
	}
	input, err := req.input(principal.TenantID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	doc, err := h.documents.CreateDraft(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	w.Header().Set("Location", "/documents/"+strconv.FormatInt(doc.ID, 10))
	httpx.JSON(w, http.StatusCreated, newDocumentResponse(doc))
}

func (h *Handler) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, err := documentID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	doc, err := h.documents.Get(r.Context(), principal.TenantID, id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newDocumentResponse(doc))
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, err := documentID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	records, err := h.documents.History(r.Context(), principal.TenantID, id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if records == nil {
		records = []approval.ActionRecord{}
	}
	httpx.JSON(w, http.StatusOK, historyResponse{DocumentID: id, Actions: records})
}

func (h *Handler) action(action approval.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := h.principal(w, r)
		if !ok {
			return
		}
		id, err := documentID(r)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		var req actionRequest
		if r.Body != nil && r.Body != http.NoBody && r.ContentLength != 0 {
			if err := httpx.DecodeJSON(r, &req); err != nil {
				h.respondError(w, r, err)
				return
			}
		}
		if err := h.validate(req); err != nil {
			h.respondError(w, r, err)
			return
		}
		actor, err := approval.ResolveActor(r.Context(), h.identity, principal.TenantID, principal.UserID)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		release, err := h.claim(r, principal.TenantID, id, action)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		doc, err := h.documents.Apply(r.Context(), approval.ActionRequest{
			TenantID:   principal.TenantID,
			DocumentID: id,
			Action:     action,
			Actor:      actor,
			Notes:      req.Notes,
		})
		if err != nil {
			release()
			h.respondError(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, newDocumentResponse(doc))
	}
}

// claim reserves the request's Idempotency-Key. The returned func gives the
// key back when the action fails so the client may retry with it.
func (h *Handler) claim(r *http.Request, tenantID, documentID int64, action approval.Action) (func(), error) {
	key := r.Header.Get(idempotencyHeader)
	if h.idempotency == nil || key == "" {
		return func() {}, nil
	}
	if len(key) > maxIdempotencyKeyLen {
		return nil, validationErr("Idempotency-Key must be at most 128 characters")
	}
	scope := "document:" + strconv.FormatInt(documentID, 10) + ":" + string(action)
	if err := h.idempotency.Claim(r.Context(), tenantID, scope, key); err != nil {
		return nil, err
	}
	return func() {
		if err := h.idempotency.Release(context.WithoutCancel(r.Context()), tenantID, scope, key); err != nil {
			h.logger.Warn("release idempotency key",
				slog.Int64("tenant_id", tenantID),
				slog.String("scope", scope),
				slog.Any("error", err))
		}
	}, nil
}

func (h *Handler) principal(w http.ResponseWriter, r *http.Request) (shared.Principal, bool) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return shared.Principal{}, false
	}
	return principal, true
}

func documentID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, validationErr("document id must be a positive integer")
	}
	return id, nil
}

func optionalInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, validationErr("page and limit must be non-negative integers")
	}
	return v, nil
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
