package users

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-admin/meridian-admin/internal/platform/httpx"
	"github.com/meridian-admin/meridian-admin/internal/rbac"
	"github.com/meridian-admin/meridian-admin/internal/shared"
)

// Handler manages user management endpoints.
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

// MountRoutes registers user routes. Reads require authentication only;
// writes require the superuser role and the preview-mode write gate.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/page", h.listPage)
	r.Get("/me", h.me)
	r.Get("/{id}", h.detail)
	r.Get("/{id}/roles", h.listRoles)
	r.Get("/{id}/profile", h.getProfile)

	r.Group(func(r chi.Router) {
		r.Use(h.guard.PreviewGate)
		r.Use(h.guard.RequireRoles(shared.RoleSuperAdmin))
		r.Post("/", h.create)
		r.Patch("/{id}", h.update)
		r.Delete("/{id}", h.delete)
		r.Put("/{id}/roles", h.replaceRoles)
		r.Post("/{id}/password", h.resetPassword)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.guard.PreviewGate)
		r.Patch("/{id}/profile", h.updateProfile)
	})
}

type createRequest struct {
	Username string  `json:"username" validate:"required,min=3,max=50"`
	Password string  `json:"password" validate:"required,min=6"`
	Enable   bool    `json:"enable"`
	RoleIDs  []int64 `json:"roleIds"`
}

type updateRequest struct {
	Username *string `json:"username" validate:"omitempty,min=3,max=50"`
	Enable   *bool   `json:"enable"`
}

type profileRequest struct {
	Gender   *int    `json:"gender"`
	Avatar   *string `json:"avatar"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Phone    *string `json:"phone"`
	NickName *string `json:"nickName" validate:"omitempty,max=10"`
}

type roleIDsRequest struct {
	RoleIDs []int64 `json:"roleIds" validate:"required"`
}

type resetPasswordRequest struct {
	Password string `json:"password" validate:"required,min=6"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, perPage := shared.PageFromRequest(r)
	users, pagination, err := h.service.List(r.Context(), filtersFromRequest(r), page, perPage)
	if err != nil {
		h.fail(w, "list users", err)
		return
	}
	if users == nil {
		users = []User{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": users, "total": pagination.Total, "page": pagination.Page, "pageSize": pagination.PerPage})
}

func (h *Handler) listPage(w http.ResponseWriter, r *http.Request) {
	page, perPage := shared.PageFromRequest(r)
	users, pagination, err := h.service.ListDetailed(r.Context(), filtersFromRequest(r), page, perPage)
	if err != nil {
		h.fail(w, "list users detailed", err)
		return
	}
	if users == nil {
		users = []DetailedUser{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"pageData": users, "total": pagination.Total})
}

// me returns the authenticated principal's own detail view.
func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Error(w, shared.ErrUnauthorized)
		return
	}
	detail, err := h.service.Detail(r.Context(), principal.ID)
	if err != nil {
		h.fail(w, "current user detail", err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *Handler) detail(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	detail, err := h.service.Detail(r.Context(), id)
	if err != nil {
		h.fail(w, "user detail", err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	roles, err := h.service.Roles(r.Context(), id)
	if err != nil {
		h.fail(w, "list user roles", err)
		return
	}
	if roles == nil {
		roles = []RoleSummary{}
	}
	httpx.JSON(w, http.StatusOK, roles)
}

func (h *Handler) getProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	profile, err := h.service.Profile(r.Context(), id)
	if err != nil {
		h.fail(w, "get profile", err)
		return
	}
	httpx.JSON(w, http.StatusOK, profile)
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
	user, err := h.service.Create(r.Context(), CreateInput{
		Username: req.Username,
		Password: req.Password,
		Enable:   req.Enable,
		RoleIDs:  req.RoleIDs,
	})
	if err != nil {
		h.fail(w, "create user", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"id": user.ID, "username": user.Username})
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
	user, err := h.service.Update(r.Context(), id, UpdateInput{Username: req.Username, Enable: req.Enable})
	if err != nil {
		h.fail(w, "update user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, "delete user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// updateProfile lets a principal edit their own profile; editing someone
// else's requires the superuser role.
func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Error(w, shared.ErrUnauthorized)
		return
	}
	if principal.ID != id {
		if err := h.guard.Service.Authorize(r.Context(), principal.ID, []string{shared.RoleSuperAdmin}); err != nil {
			httpx.Error(w, shared.ErrForbidden)
			return
		}
	}

	var req profileRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, shared.ErrInvalidInput)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Error(w, shared.ErrInvalidInput)
		return
	}
	profile, err := h.service.UpdateProfile(r.Context(), id, ProfileInput{
		Gender:   req.Gender,
		Avatar:   req.Avatar,
		Email:    req.Email,
		Phone:    req.Phone,
		NickName: req.NickName,
	})
	if err != nil {
		h.fail(w, "update profile", err)
		return
	}
	httpx.JSON(w, http.StatusOK, profile)
}

func (h *Handler) replaceRoles(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req roleIDsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, shared.ErrInvalidInput)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Error(w, shared.ErrInvalidInput)
		return
	}
	if err := h.service.ReplaceRoles(r.Context(), id, req.RoleIDs); err != nil {
		h.fail(w, "replace user roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id, "roleIds": req.RoleIDs})
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req resetPasswordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, shared.ErrInvalidInput)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Error(w, shared.ErrInvalidInput)
		return
	}
	if err := h.service.ResetPassword(r.Context(), id, req.Password); err != nil {
		h.fail(w, "reset password", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"reset": true})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if h.logger != nil {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.Error(w, err)
}

func filtersFromRequest(r *http.Request) ListFilters {
	q := r.URL.Query()
	filters := ListFilters{Username: q.Get("username")}
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
