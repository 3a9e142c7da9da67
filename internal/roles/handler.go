package roles

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-admin/meridian-admin/internal/platform/httpx"
	"github.com/meridian-admin/meridian-admin/internal/rbac"
	"github.com/meridian-admin/meridian-admin/internal/shared"
)

// Handler manages role management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     rbac.Guard
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard rbac.Guard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, guard: guard, validator: validator.New()}
}

// MountRoutes registers role routes. Reads require authentication only;
// writes require the superuser role and the preview-mode write gate.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/page", h.listPage)
	r.Get("/stats", h.stats)
	r.Get("/{id}", h.get)
	r.Get("/{id}/permissions", h.listPermissions)
	r.Get("/{id}/users", h.listMembers)

	r.Group(func(r chi.Router) {
		r.Use(h.guard.PreviewGate)
		r.Use(h.guard.RequireRoles(shared.RoleSuperAdmin))
		r.Post("/", h.create)
		r.Patch("/{id}", h.update)
		r.Delete("/{id}", h.delete)
		r.Post("/{id}/permissions", h.addPermissions)
		r.Put("/{id}/permissions", h.replacePermissions)
	})
}

type createRequest struct {
	Code   string `json:"code" validate:"required,max=50"`
	Name   string `json:"name" validate:"required,max=50"`
	Enable bool   `json:"enable"`
}

type updateRequest struct {
	Code   *string `json:"code" validate:"omitempty,max=50"`
	Name   *string `json:"name" validate:"omitempty,max=50"`
	Enable *bool   `json:"enable"`
}

type permissionIDsRequest struct {
	PermissionIDs []int64 `json:"permissionIds" validate:"required"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, perPage := shared.PageFromRequest(r)
	roles, pagination, err := h.service.List(r.Context(), filtersFromRequest(r), page, perPage)
	if err != nil {
		h.fail(w, "list roles", err)
		return
	}
	if roles == nil {
		roles = []Role{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": roles, "total": pagination.Total, "page": pagination.Page, "pageSize": pagination.PerPage})
}

func (h *Handler) listPage(w http.ResponseWriter, r *http.Request) {
	page, perPage := shared.PageFromRequest(r)
	roles, pagination, err := h.service.ListWithPermissionIDs(r.Context(), filtersFromRequest(r), page, perPage)
	if err != nil {
		h.fail(w, "list roles with permissions", err)
		return
	}
	if roles == nil {
		roles = []RoleWithPermissionIDs{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"pageData": roles, "total": pagination.Total})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.fail(w, "role stats", err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	role, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get role", err)
		return
	}
	perms, err := h.service.Permissions(r.Context(), id)
	if err != nil {
		h.fail(w, "get role permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"id": role.ID, "code": role.Code, "name": role.Name, "enable": role.Enable,
		"permissions": perms,
	})
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	perms, err := h.service.Permissions(r.Context(), id)
	if err != nil {
		h.fail(w, "list role permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, perms)
}

func (h *Handler) listMembers(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	members, err := h.service.Members(r.Context(), id)
	if err != nil {
		h.fail(w, "list role users", err)
		return
	}
	if members == nil {
		members = []Member{}
	}
	httpx.JSON(w, http.StatusOK, members)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, shared.ErrInvalidInput)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Error(w, shared.ErrInvalidInput)
		return
	}
	role, err := h.service.Create(r.Context(), CreateInput{Code: req.Code, Name: req.Name, Enable: req.Enable})
	if err != nil {
		h.fail(w, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, shared.ErrInvalidInput)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Error(w, shared.ErrInvalidInput)
		return
	}
	role, err := h.service.Update(r.Context(), id, UpdateInput{Code: req.Code, Name: req.Name, Enable: req.Enable})
	if err != nil {
		h.fail(w, "update role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, "delete role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (h *Handler) addPermissions(w http.ResponseWriter, r *http.Request) {
	h.mutatePermissions(w, r, h.service.AddPermissions)
}

func (h *Handler) replacePermissions(w http.ResponseWriter, r *http.Request) {
	h.mutatePermissions(w, r, h.service.ReplacePermissions)
}

func (h *Handler) mutatePermissions(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, roleID int64, ids []int64) error) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req permissionIDsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, shared.ErrInvalidInput)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Error(w, shared.ErrInvalidInput)
		return
	}
	if err := op(r.Context(), id, req.PermissionIDs); err != nil {
		h.fail(w, "set role permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id, "permissionIds": req.PermissionIDs})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if h.logger != nil {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.Error(w, err)
}

func filtersFromRequest(r *http.Request) ListFilters {
	q := r.URL.Query()
	filters := ListFilters{Code: q.Get("code"), Name: q.Get("name")}
	if raw := q.Get("enable"); raw != "" {
		enable := raw == "true" || raw == "1"
		filters.Enable = &enable
	}
	return filters
}

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Error(w, shared.ErrInvalidInput)
		return 0, false
	}
	return id, true
}
