package rbac

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-approvals/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-approvals/internal/shared"
)

// RoleLister lists the roles of a tenant.
type RoleLister interface {
	ListRoles(ctx context.Context, tenantID int64) ([]Role, error)
}

// PermissionsHandler exposes the caller's permissions and the tenant roles,
// used by clients for UX hints only.
type PermissionsHandler struct {
	logger *slog.Logger
	perms  PermissionSource
	roles  RoleLister
	rbac   Middleware
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, perms PermissionSource, roles RoleLister, rbac Middleware) *PermissionsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PermissionsHandler{logger: logger, perms: perms, roles: roles, rbac: rbac}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Get("/me/permissions", h.myPermissions)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermApprovalConfigView, shared.PermApprovalConfigManage))
		r.Get("/roles", h.listRoles)
	})
}

func (h *PermissionsHandler) myPermissions(w http.ResponseWriter, r *http.Request) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	perms, err := h.perms.EffectivePermissions(r.Context(), principal.TenantID, principal.UserID)
	if err != nil {
		h.logger.Error("load permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

func (h *PermissionsHandler) listRoles(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	roles, err := h.roles.ListRoles(r.Context(), principal.TenantID)
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles})
}
