package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-admin/meridian-admin/internal/observability"
	"github.com/meridian-admin/meridian-admin/internal/token"
	"github.com/meridian-admin/meridian-admin/internal/users"
)

func testRouter(t *testing.T, svc *Service, verifier TokenVerifier, preview bool) *chi.Mux {
	t.Helper()
	handler := NewHandler(nil, svc, verifier, nil, nil, preview)
	r := chi.NewRouter()
	r.Route("/auth", func(r chi.Router) {
		handler.MountPublic(r)
		handler.MountProtected(r)
	})
	return r
}

func postJSON(t *testing.T, router http.Handler, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestLoginEndpoint(t *testing.T) {
	repo := newStubUsers(users.User{ID: 1, Username: "alice", PasswordHash: hash(t, "s3cret"), Enable: true})
	tokens := token.NewService("test-secret", time.Hour, nil)
	svc := NewService(repo, tokens, nil, false)
	router := testRouter(t, svc, tokens, false)

	rec := postJSON(t, router, "/auth/login", map[string]string{"username": "alice", "password": "s3cret"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result LoginResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, int64(1), result.UserID)

	claims, err := tokens.Verify(context.Background(), result.Token)
	require.NoError(t, err)
	assert.Equal(t, int64(1), claims.Subject)
}

func TestLoginEndpointRejectsBadCredentials(t *testing.T) {
	repo := newStubUsers(users.User{ID: 1, Username: "alice", PasswordHash: hash(t, "s3cret"), Enable: true})
	tokens := token.NewService("test-secret", time.Hour, nil)
	svc := NewService(repo, tokens, nil, false)
	router := testRouter(t, svc, tokens, false)

	rec := postJSON(t, router, "/auth/login", map[string]string{"username": "alice", "password": "wrong"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postJSON(t, router, "/auth/login", map[string]string{"username": "alice"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterEndpointGatedByPreview(t *testing.T) {
	repo := newStubUsers()
	tokens := token.NewService("test-secret", time.Hour, nil)

	locked := testRouter(t, NewService(repo, tokens, nil, false), tokens, false)
	rec := postJSON(t, locked, "/auth/register", map[string]string{"username": "carol", "password": "s3cret"}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	open := testRouter(t, NewService(repo, tokens, nil, true), tokens, true)
	rec = postJSON(t, open, "/auth/register", map[string]string{"username": "carol", "password": "s3cret"}, nil)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestLogoutEndpointRequiresToken(t *testing.T) {
	repo := newStubUsers()
	tokens := token.NewService("test-secret", time.Hour, nil)
	svc := NewService(repo, tokens, nil, false)
	router := testRouter(t, svc, tokens, false)

	rec := postJSON(t, router, "/auth/logout", map[string]string{}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	signed, err := tokens.Issue(1)
	require.NoError(t, err)
	rec = postJSON(t, router, "/auth/logout", map[string]string{}, map[string]string{"Authorization": "Bearer " + signed})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChangePasswordEndpoint(t *testing.T) {
	repo := newStubUsers(users.User{ID: 1, Username: "alice", PasswordHash: hash(t, "old-pass"), Enable: true})
	tokens := token.NewService("test-secret", time.Hour, nil)
	svc := NewService(repo, tokens, nil, true)
	router := testRouter(t, svc, tokens, true)

	signed, err := tokens.Issue(1)
	require.NoError(t, err)
	auth := map[string]string{"Authorization": "Bearer " + signed}

	rec := postJSON(t, router, "/auth/password", map[string]string{"oldPassword": "wrong", "newPassword": "new-pass"}, auth)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postJSON(t, router, "/auth/password", map[string]string{"oldPassword": "old-pass", "newPassword": "new-pass"}, auth)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "new-pass", repo.passwords[1])
}

func TestChangePasswordLockedOutsidePreview(t *testing.T) {
	repo := newStubUsers(users.User{ID: 1, Username: "alice", PasswordHash: hash(t, "old-pass"), Enable: true})
	tokens := token.NewService("test-secret", time.Hour, nil)
	svc := NewService(repo, tokens, nil, false)
	router := testRouter(t, svc, tokens, false)

	signed, err := tokens.Issue(1)
	require.NoError(t, err)
	auth := map[string]string{"Authorization": "Bearer " + signed}

	// Correct credentials do not matter: the write lock wins.
	rec := postJSON(t, router, "/auth/password", map[string]string{"oldPassword": "old-pass", "newPassword": "new-pass"}, auth)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, repo.passwords[1])
}

func TestLoginEndpointRecordsMetrics(t *testing.T) {
	repo := newStubUsers(users.User{ID: 1, Username: "alice", PasswordHash: hash(t, "s3cret"), Enable: true})
	tokens := token.NewService("test-secret", time.Hour, nil)
	svc := NewService(repo, tokens, nil, false)
	metrics := observability.NewMetrics()

	handler := NewHandler(nil, svc, tokens, nil, metrics, false)
	r := chi.NewRouter()
	r.Route("/auth", func(r chi.Router) {
		handler.MountPublic(r)
	})

	rec := postJSON(t, r, "/auth/login", map[string]string{"username": "alice", "password": "s3cret"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = postJSON(t, r, "/auth/login", map[string]string{"username": "alice", "password": "wrong"}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	scrape := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := scrape.Body.String()
	assert.Contains(t, body, `meridian_logins_total{outcome="success"} 1`)
	assert.Contains(t, body, `meridian_logins_total{outcome="failure"} 1`)
}
