package permissions

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-admin/meridian-admin/internal/platform/httpx"
	"github.com/meridian-admin/meridian-admin/internal/shared"
)

// GuardChain is the slice of the access guard this handler needs for its
// write routes. Declared here rather than importing the guard package,
// which depends on the tree builder in this one.
type GuardChain interface {
	PreviewGate(next http.Handler) http.Handler
	RequireRoles(codes ...string) func(http.Handler) http.Handler
}

// Handler manages permission catalogue endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     GuardChain
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard GuardChain) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, guard: guard, validator: validator.New()}
}

// MountRoutes registers permission routes. The full-catalogue trees are
// read endpoints for the admin console; per-principal scoped trees live
// under the rbac routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/tree", h.fullTree)
	r.Get("/menu-tree", h.menuTree)
	r.Get("/resource-menu-tree", h.resourceMenuTree)
	r.Get("/buttons/{menuId}", h.buttons)
	r.Get("/stats", h.stats)
	r.Get("/{id}", h.get)

	r.Group(func(r chi.Router) {
		r.Use(h.guard.PreviewGate)
		r.Use(h.guard.RequireRoles(shared.RoleSuperAdmin))
		r.Post("/", h.create)
		r.Patch("/{id}", h.update)
		r.Delete("/{id}", h.delete)
	})
}

type createRequest struct {
	Name        string  `json:"name" validate:"required,max=50"`
	Code        string  `json:"code" validate:"required,max=50"`
	Kind        string  `json:"type" validate:"required,oneof=MENU BUTTON"`
	ParentID    *int64  `json:"parentId"`
	Path        *string `json:"path"`
	Redirect    *string `json:"redirect"`
	Icon        *string `json:"icon"`
	Component   *string `json:"component"`
	Layout      *string `json:"layout"`
	KeepAlive   *int    `json:"keepAlive"`
	Method      *string `json:"method"`
	Description *string `json:"description"`
	Show        *bool   `json:"show"`
	Enable      *bool   `json:"enable"`
	Order       *int    `json:"order"`
}

type updateRequest struct {
	Name        *string        `json:"name" validate:"omitempty,max=50"`
	Code        *string        `json:"code" validate:"omitempty,max=50"`
	Kind        *string        `json:"type" validate:"omitempty,oneof=MENU BUTTON"`
	ParentID    optionalParent `json:"parentId"`
	Path        *string        `json:"path"`
	Redirect    *string        `json:"redirect"`
	Icon        *string        `json:"icon"`
	Component   *string        `json:"component"`
	Layout      *string        `json:"layout"`
	KeepAlive   *int           `json:"keepAlive"`
	Method      *string        `json:"method"`
	Description *string        `json:"description"`
	Show        *bool          `json:"show"`
	Enable      *bool          `json:"enable"`
	Order       *int           `json:"order"`
}

// optionalParent distinguishes parentId absent from the payload (no change)
// from parentId explicitly null (re-root the node).
type optionalParent struct {
	Set   bool
	Value *int64
}

func (p *optionalParent) UnmarshalJSON(data []byte) error {
	p.Set = true
	if string(data) == "null" {
		p.Value = nil
		return nil
	}
	id, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return err
	}
	p.Value = &id
	return nil
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, perPage := shared.PageFromRequest(r)
	perms, pagination, err := h.service.List(r.Context(), filtersFromRequest(r), page, perPage)
	if err != nil {
		h.fail(w, "list permissions", err)
		return
	}
	if perms == nil {
		perms = []Permission{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": perms, "total": pagination.Total, "page": pagination.Page, "pageSize": pagination.PerPage})
}

func (h *Handler) fullTree(w http.ResponseWriter, r *http.Request) {
	h.respondTree(w, r, h.service.FullTree, "full permission tree")
}

func (h *Handler) menuTree(w http.ResponseWriter, r *http.Request) {
	h.respondTree(w, r, h.service.MenuTree, "menu tree")
}

func (h *Handler) resourceMenuTree(w http.ResponseWriter, r *http.Request) {
	h.respondTree(w, r, h.service.ResourceMenuTree, "resource menu tree")
}

func (h *Handler) buttons(w http.ResponseWriter, r *http.Request) {
	menuID, err := strconv.ParseInt(chi.URLParam(r, "menuId"), 10, 64)
	if err != nil || menuID <= 0 {
		httpx.Error(w, shared.ErrInvalidInput)
		return
	}
	buttons, err := h.service.Buttons(r.Context(), menuID)
	if err != nil {
		h.fail(w, "list menu buttons", err)
		return
	}
	if buttons == nil {
		buttons = []Permission{}
	}
	httpx.JSON(w, http.StatusOK, buttons)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.fail(w, "permission stats", err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	perm, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, perm)
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

	input := CreateInput{
		Name:        req.Name,
		Code:        req.Code,
		Kind:        Kind(req.Kind),
		ParentID:    req.ParentID,
		Path:        req.Path,
		Redirect:    req.Redirect,
		Icon:        req.Icon,
		Component:   req.Component,
		Layout:      req.Layout,
		KeepAlive:   req.KeepAlive,
		Method:      req.Method,
		Description: req.Description,
		Show:        true,
		Enable:      true,
		Order:       req.Order,
	}
	if req.Show != nil {
		input.Show = *req.Show
	}
	if req.Enable != nil {
		input.Enable = *req.Enable
	}

	perm, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.fail(w, "create permission", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, perm)
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

	input := UpdateInput{
		Name:        req.Name,
		Code:        req.Code,
		SetParent:   req.ParentID.Set,
		ParentID:    req.ParentID.Value,
		Path:        req.Path,
		Redirect:    req.Redirect,
		Icon:        req.Icon,
		Component:   req.Component,
		Layout:      req.Layout,
		KeepAlive:   req.KeepAlive,
		Method:      req.Method,
		Description: req.Description,
		Show:        req.Show,
		Enable:      req.Enable,
		Order:       req.Order,
	}
	if req.Kind != nil {
		kind := Kind(*req.Kind)
		input.Kind = &kind
	}

	perm, err := h.service.Update(r.Context(), id, input)
	if err != nil {
		h.fail(w, "update permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, perm)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, "delete permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (h *Handler) respondTree(w http.ResponseWriter, r *http.Request, load func(ctx context.Context) ([]*Node, error), op string) {
	forest, err := load(r.Context())
	if err != nil {
		h.fail(w, op, err)
		return
	}
	if forest == nil {
		forest = []*Node{}
	}
	httpx.JSON(w, http.StatusOK, forest)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if h.logger != nil {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.Error(w, err)
}

func filtersFromRequest(r *http.Request) ListFilters {
	q := r.URL.Query()
	filters := ListFilters{Name: q.Get("name"), Code: q.Get("code")}
	if kind := q.Get("type"); kind != "" {
		filters.Kind = Kind(kind)
	}
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
