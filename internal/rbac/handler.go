package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-admin/meridian-admin/internal/permissions"
	"github.com/meridian-admin/meridian-admin/internal/platform/httpx"
	"github.com/meridian-admin/meridian-admin/internal/shared"
)

// Handler exposes the authenticated principal's own access view: their
// roles, effective permissions and scoped trees.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers access routes. All routes assume the
// authentication middleware already ran.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/roles", h.roles)
	r.Get("/permissions", h.permissions)
	r.Get("/permission-tree", h.permissionTree)
	r.Get("/menu-tree", h.menuTree)
}

func (h *Handler) roles(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOr401(w, r)
	if !ok {
		return
	}
	roles, err := h.service.UserRoles(r.Context(), principal.ID)
	if err != nil {
		h.fail(w, "list principal roles", err)
		return
	}
	if roles == nil {
		roles = []RoleRef{}
	}
	httpx.JSON(w, http.StatusOK, roles)
}

func (h *Handler) permissions(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOr401(w, r)
	if !ok {
		return
	}
	summaries, err := h.service.PermissionSummaries(r.Context(), principal.ID)
	if err != nil {
		h.fail(w, "list effective permissions", err)
		return
	}
	if summaries == nil {
		summaries = []permissions.Summary{}
	}
	httpx.JSON(w, http.StatusOK, summaries)
}

func (h *Handler) permissionTree(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOr401(w, r)
	if !ok {
		return
	}
	forest, err := h.service.ScopedPermissionTree(r.Context(), principal.ID)
	if err != nil {
		h.fail(w, "scoped permission tree", err)
		return
	}
	if forest == nil {
		forest = []*permissions.Node{}
	}
	httpx.JSON(w, http.StatusOK, forest)
}

func (h *Handler) menuTree(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOr401(w, r)
	if !ok {
		return
	}
	forest, err := h.service.ScopedMenuTree(r.Context(), principal.ID)
	if err != nil {
		h.fail(w, "scoped menu tree", err)
		return
	}
	if forest == nil {
		forest = []*permissions.Node{}
	}
	httpx.JSON(w, http.StatusOK, forest)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if h.logger != nil {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.Error(w, err)
}

func principalOr401(w http.ResponseWriter, r *http.Request) (*shared.Principal, bool) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Error(w, shared.ErrUnauthorized)
		return nil, false
	}
	return principal, true
}
