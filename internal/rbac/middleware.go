package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/meridian-admin/meridian-admin/internal/platform/httpx"
	"github.com/meridian-admin/meridian-admin/internal/shared"
	"github.com/meridian-admin/meridian-admin/internal/token"
)

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (token.Claims, error)
}

// PrincipalLoader resolves token subjects to principals.
type PrincipalLoader interface {
	FindPrincipal(ctx context.Context, id int64) (*shared.Principal, error)
}

// Guard wires the request-time authentication and authorization chain:
// Unauthenticated -> Authenticated -> Authorized | Forbidden.
type Guard struct {
	Tokens     TokenVerifier
	Principals PrincipalLoader
	Service    *Service
	Logger     *slog.Logger
	// Preview must be true for mutating administrative operations to
	// proceed at all; false locks the deployment read-only.
	Preview bool
}

// Authenticate requires a valid bearer token whose subject resolves to an
// enabled principal. A missing or malformed header, a failed verification
// and a missing or disabled principal all collapse to the same 401.
func (g Guard) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			httpx.Error(w, shared.ErrUnauthorized)
			return
		}

		claims, err := g.Tokens.Verify(r.Context(), raw)
		if err != nil {
			httpx.Error(w, shared.ErrUnauthorized)
			return
		}

		principal, err := g.Principals.FindPrincipal(r.Context(), claims.Subject)
		if err != nil || principal == nil || !principal.Enabled {
			httpx.Error(w, shared.ErrUnauthorized)
			return
		}

		ctx := shared.ContextWithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRoles allows the request through when the principal holds the
// superuser capability or any of the given role codes. An empty code list
// passes any authenticated principal.
func (g Guard) RequireRoles(codes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := shared.PrincipalFromContext(r.Context())
			if principal == nil {
				httpx.Error(w, shared.ErrUnauthorized)
				return
			}
			if err := g.Service.Authorize(r.Context(), principal.ID, codes); err != nil {
				// A denial stays a bare 403; anything outside the error
				// taxonomy is an infrastructure failure, not a verdict.
				if !errors.Is(err, shared.ErrForbidden) && !errors.Is(err, shared.ErrNotFound) {
					httpx.Error(w, err)
					return
				}
				if g.Logger != nil {
					g.Logger.Warn("authorization denied",
						slog.Int64("user_id", principal.ID),
						slog.String("path", r.URL.Path))
				}
				httpx.Error(w, shared.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PreviewGate rejects guarded writes while preview mode is off,
// independent of the caller's roles.
func (g Guard) PreviewGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Preview {
			httpx.Error(w, shared.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	raw := strings.TrimSpace(parts[1])
	if raw == "" {
		return "", false
	}
	return raw, true
}
