package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-admin/meridian-admin/internal/observability"
	"github.com/meridian-admin/meridian-admin/internal/platform/httpx"
	"github.com/meridian-admin/meridian-admin/internal/shared"
	"github.com/meridian-admin/meridian-admin/internal/token"
)

// TokenVerifier re-parses the presented bearer token when a flow needs
// the raw claims (logout, password change) rather than the principal.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (token.Claims, error)
}

// CaptchaIssuer creates new captcha challenges.
type CaptchaIssuer interface {
	Issue(ctx context.Context) (Challenge, error)
}

// Handler manages authentication endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	verifier  TokenVerifier
	captchas  CaptchaIssuer
	metrics   *observability.Metrics
	preview   bool
	validator *validator.Validate
}

// NewHandler builds Handler instance. captchas may be nil when the
// captcha requirement is disabled; metrics may be nil.
func NewHandler(logger *slog.Logger, service *Service, verifier TokenVerifier, captchas CaptchaIssuer, metrics *observability.Metrics, preview bool) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		verifier:  verifier,
		captchas:  captchas,
		metrics:   metrics,
		preview:   preview,
		validator: validator.New(),
	}
}

// MountPublic registers the unauthenticated routes.
func (h *Handler) MountPublic(r chi.Router) {
	r.Post("/login", h.login)
	r.Get("/captcha", h.captcha)
	r.Post("/register", h.register)
}

// MountProtected registers routes that assume the authentication
// middleware already ran.
func (h *Handler) MountProtected(r chi.Router) {
	r.Get("/refresh-token", h.refresh)
	r.Post("/logout", h.logout)
	r.Post("/password", h.changePassword)
}

type loginRequest struct {
	Username  string `json:"username" validate:"required"`
	Password  string `json:"password" validate:"required"`
	CaptchaID string `json:"captchaId"`
	Captcha   string `json:"captcha"`
}

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Password string `json:"password" validate:"required,min=6"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=6"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, shared.ErrInvalidInput)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Error(w, shared.ErrInvalidInput)
		return
	}

	result, err := h.service.Login(r.Context(), LoginInput{
		Username:  req.Username,
		Password:  req.Password,
		CaptchaID: req.CaptchaID,
		Captcha:   req.Captcha,
	})
	if err != nil {
		h.metrics.ObserveLogin("failure")
		if h.logger != nil {
			h.logger.Info("login rejected", slog.String("username", req.Username))
		}
		httpx.Error(w, err)
		return
	}
	h.metrics.ObserveLogin("success")
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) captcha(w http.ResponseWriter, r *http.Request) {
	if h.captchas == nil {
		httpx.JSON(w, http.StatusOK, map[string]any{"required": false})
		return
	}
	challenge, err := h.captchas.Issue(r.Context())
	if err != nil {
		h.fail(w, "issue captcha", err)
		return
	}
	// The answer is returned inline in place of an image pipeline; a
	// rendering frontend would swap this for the drawn challenge.
	httpx.JSON(w, http.StatusOK, map[string]any{"id": challenge.ID, "code": challenge.Code, "required": true})
}

// register is open only on preview deployments.
func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	if !h.preview {
		httpx.Error(w, shared.ErrForbidden)
		return
	}
	var req registerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, shared.ErrInvalidInput)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Error(w, shared.ErrInvalidInput)
		return
	}
	user, err := h.service.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		h.fail(w, "register user", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"id": user.ID, "username": user.Username})
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Error(w, shared.ErrUnauthorized)
		return
	}
	result, err := h.service.Refresh(r.Context(), principal.ID)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.presentedClaims(r)
	if !ok {
		httpx.Error(w, shared.ErrUnauthorized)
		return
	}
	if err := h.service.Logout(r.Context(), claims); err != nil && h.logger != nil {
		// Best-effort: the caller's session is over either way.
		h.logger.Warn("token revocation failed", slog.Any("error", err))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"loggedOut": true})
}

// changePassword is a guarded write; the preview lock applies to it the
// same as to every other mutation, regardless of the caller's roles.
func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	if !h.preview {
		httpx.Error(w, shared.ErrForbidden)
		return
	}
	claims, ok := h.presentedClaims(r)
	if !ok {
		httpx.Error(w, shared.ErrUnauthorized)
		return
	}
	var req changePasswordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, shared.ErrInvalidInput)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Error(w, shared.ErrInvalidInput)
		return
	}
	if err := h.service.ChangePassword(r.Context(), claims, req.OldPassword, req.NewPassword); err != nil {
		h.fail(w, "change password", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"changed": true})
}

func (h *Handler) presentedClaims(r *http.Request) (token.Claims, bool) {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return token.Claims{}, false
	}
	claims, err := h.verifier.Verify(r.Context(), strings.TrimSpace(parts[1]))
	if err != nil {
		return token.Claims{}, false
	}
	return claims, true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if h.logger != nil {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.Error(w, err)
}
