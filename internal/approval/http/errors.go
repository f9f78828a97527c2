package approvalhttp

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/odyssey-approvals/internal/approval"
	"github.com/odyssey-erp/odyssey-approvals/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-approvals/internal/shared"
)

// respondError renders engine failures with a specific reason so clients can
// explain why an action was refused.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		invalid  *approval.InvalidTransitionError
		terminal *approval.DocumentTerminalError
		eligible *approval.NotEligibleError
		missing  *approval.ConfigMissingError
	)
	switch {
	case errors.As(err, &invalid):
		httpx.WriteProblem(w, httpx.ProblemDetail{
			Status: http.StatusConflict,
			Title:  "Invalid Transition",
			Detail: err.Error(),
			Code:   "invalid_transition",
			Meta: map[string]any{
				"status":          invalid.From,
				"action":          invalid.Action,
				"allowed_actions": nonNilActions(invalid.Allowed),
			},
		})
	case errors.As(err, &terminal):
		httpx.WriteProblem(w, httpx.ProblemDetail{
			Status: http.StatusConflict,
			Title:  "Document Closed",
			Detail: err.Error(),
			Code:   "document_terminal",
			Meta:   map[string]any{"status": terminal.Status},
		})
	case errors.As(err, &eligible):
		httpx.WriteProblem(w, httpx.ProblemDetail{
			Status: http.StatusForbidden,
			Title:  "Not Eligible",
			Detail: err.Error(),
			Code:   "not_eligible",
			Meta: map[string]any{
				"level_index":    eligible.LevelIndex,
				"required_roles": eligible.RequiredRoles,
			},
		})
	case errors.As(err, &missing):
		h.logger.Error("approval configuration missing",
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.Int64("tenant_id", missing.TenantID),
			slog.String("document_type", string(missing.DocumentType)),
			slog.Int("level", missing.LevelIndex))
		httpx.WriteProblem(w, httpx.ProblemDetail{
			Status: http.StatusUnprocessableEntity,
			Title:  "Approval Configuration Missing",
			Detail: err.Error(),
			Code:   "config_missing",
			Meta: map[string]any{
				"document_type": missing.DocumentType,
				"level_index":   missing.LevelIndex,
			},
		})
	case errors.Is(err, approval.ErrConcurrentModification):
		httpx.WriteProblem(w, httpx.ProblemDetail{
			Status:    http.StatusConflict,
			Title:     "Concurrent Modification",
			Detail:    "the document changed since it was read; reload and retry",
			Code:      "concurrent_modification",
			Retryable: true,
		})
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.WriteProblem(w, httpx.ProblemDetail{
			Status: http.StatusConflict,
			Title:  "Duplicate Request",
			Detail: "a request with this Idempotency-Key was already processed",
			Code:   "duplicate_request",
		})
	case errors.Is(err, approval.ErrDuplicateNumber):
		httpx.WriteProblem(w, httpx.ProblemDetail{Status: http.StatusConflict, Title: "Duplicate", Detail: err.Error(), Code: "duplicate"})
	case errors.Is(err, approval.ErrNotFound):
		httpx.WriteProblem(w, httpx.ProblemDetail{Status: http.StatusNotFound, Title: "Not Found", Detail: "document not found", Code: "not_found"})
	case errors.Is(err, approval.ErrValidation):
		httpx.WriteProblem(w, httpx.ProblemDetail{Status: http.StatusBadRequest, Title: "Validation Failed", Detail: err.Error(), Code: "validation"})
	case errors.Is(err, httpx.ErrValidation):
		httpx.RespondError(w, err)
	default:
		h.logger.Error("approval request failed",
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func nonNilActions(actions []approval.Action) []approval.Action {
	if actions == nil {
		return []approval.Action{}
	}
	return actions
}
