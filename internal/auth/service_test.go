package auth

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-admin/meridian-admin/internal/shared"
	"github.com/meridian-admin/meridian-admin/internal/token"
	"github.com/meridian-admin/meridian-admin/internal/users"
)

type stubUsers struct {
	byName    map[string]users.User
	byID      map[int64]users.User
	passwords map[int64]string
}

func newStubUsers(list ...users.User) *stubUsers {
	s := &stubUsers{
		byName:    make(map[string]users.User),
		byID:      make(map[int64]users.User),
		passwords: make(map[int64]string),
	}
	for _, u := range list {
		s.byName[u.Username] = u
		s.byID[u.ID] = u
	}
	return s
}

func (s *stubUsers) GetByUsername(_ context.Context, username string) (users.User, error) {
	u, ok := s.byName[username]
	if !ok {
		return users.User{}, fmt.Errorf("%w: user %q", shared.ErrNotFound, username)
	}
	return u, nil
}

func (s *stubUsers) Get(_ context.Context, id int64) (users.User, error) {
	u, ok := s.byID[id]
	if !ok {
		return users.User{}, fmt.Errorf("%w: user %d", shared.ErrNotFound, id)
	}
	return u, nil
}

func (s *stubUsers) Create(_ context.Context, input users.CreateInput) (users.User, error) {
	if _, ok := s.byName[input.Username]; ok {
		return users.User{}, fmt.Errorf("%w: username taken", shared.ErrConflict)
	}
	u := users.User{ID: int64(len(s.byID) + 1), Username: input.Username, Enable: input.Enable}
	s.byName[u.Username] = u
	s.byID[u.ID] = u
	return u, nil
}

func (s *stubUsers) ResetPassword(_ context.Context, userID int64, newPassword string) error {
	if _, ok := s.byID[userID]; !ok {
		return fmt.Errorf("%w: user %d", shared.ErrNotFound, userID)
	}
	s.passwords[userID] = newPassword
	return nil
}

type stubTokens struct {
	issued  []int64
	revoked []string
	err     error
}

func (s *stubTokens) Issue(subject int64) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.issued = append(s.issued, subject)
	return fmt.Sprintf("tok-%d", subject), nil
}

func (s *stubTokens) Revoke(_ context.Context, claims token.Claims) error {
	s.revoked = append(s.revoked, claims.TokenID)
	return nil
}

type stubCaptchas struct {
	ok  bool
	err error
}

func (s stubCaptchas) Verify(context.Context, string, string) (bool, error) {
	return s.ok, s.err
}

func hash(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func TestLoginIssuesTokenForValidCredentials(t *testing.T) {
	repo := newStubUsers(users.User{ID: 1, Username: "alice", PasswordHash: hash(t, "s3cret"), Enable: true})
	tokens := &stubTokens{}
	svc := NewService(repo, tokens, stubCaptchas{ok: true}, false)

	result, err := svc.Login(context.Background(), LoginInput{Username: "alice", Password: "s3cret", CaptchaID: "c", Captcha: "abcd"})
	require.NoError(t, err)
	assert.Equal(t, "tok-1", result.Token)
	assert.Equal(t, int64(1), result.UserID)
	assert.Equal(t, []int64{1}, tokens.issued)
}

func TestLoginCollapsesUnknownUserAndWrongPassword(t *testing.T) {
	repo := newStubUsers(users.User{ID: 1, Username: "alice", PasswordHash: hash(t, "s3cret"), Enable: true})
	svc := NewService(repo, &stubTokens{}, stubCaptchas{ok: true}, false)
	ctx := context.Background()

	_, errUnknown := svc.Login(ctx, LoginInput{Username: "nobody", Password: "s3cret"})
	_, errWrongPass := svc.Login(ctx, LoginInput{Username: "alice", Password: "wrong"})

	assert.ErrorIs(t, errUnknown, shared.ErrInvalidCredentials)
	assert.ErrorIs(t, errWrongPass, shared.ErrInvalidCredentials)
}

func TestLoginRejectsDisabledUser(t *testing.T) {
	repo := newStubUsers(users.User{ID: 1, Username: "alice", PasswordHash: hash(t, "s3cret"), Enable: false})
	svc := NewService(repo, &stubTokens{}, stubCaptchas{ok: true}, false)

	_, err := svc.Login(context.Background(), LoginInput{Username: "alice", Password: "s3cret"})
	assert.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestLoginRequiresCaptchaOutsidePreview(t *testing.T) {
	repo := newStubUsers(users.User{ID: 1, Username: "alice", PasswordHash: hash(t, "s3cret"), Enable: true})
	svc := NewService(repo, &stubTokens{}, stubCaptchas{ok: false}, false)

	_, err := svc.Login(context.Background(), LoginInput{Username: "alice", Password: "s3cret", CaptchaID: "c", Captcha: "nope"})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestLoginSkipsCaptchaInPreview(t *testing.T) {
	repo := newStubUsers(users.User{ID: 1, Username: "alice", PasswordHash: hash(t, "s3cret"), Enable: true})
	svc := NewService(repo, &stubTokens{}, stubCaptchas{ok: false}, true)

	_, err := svc.Login(context.Background(), LoginInput{Username: "alice", Password: "s3cret"})
	assert.NoError(t, err)
}

func TestRefreshRequiresEnabledUser(t *testing.T) {
	repo := newStubUsers(
		users.User{ID: 1, Username: "alice", Enable: true},
		users.User{ID: 2, Username: "bob", Enable: false},
	)
	svc := NewService(repo, &stubTokens{}, nil, false)
	ctx := context.Background()

	result, err := svc.Refresh(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", result.Token)

	_, err = svc.Refresh(ctx, 2)
	assert.ErrorIs(t, err, shared.ErrUnauthorized)

	_, err = svc.Refresh(ctx, 99)
	assert.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestChangePasswordVerifiesOldCredential(t *testing.T) {
	repo := newStubUsers(users.User{ID: 1, Username: "alice", PasswordHash: hash(t, "old-pass"), Enable: true})
	tokens := &stubTokens{}
	svc := NewService(repo, tokens, nil, false)
	claims := token.Claims{Subject: 1, TokenID: "jti-1"}
	ctx := context.Background()

	err := svc.ChangePassword(ctx, claims, "wrong", "new-pass")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
	assert.Empty(t, tokens.revoked)

	require.NoError(t, svc.ChangePassword(ctx, claims, "old-pass", "new-pass"))
	assert.Equal(t, "new-pass", repo.passwords[1])
	// The presented session is revoked after the change.
	assert.Equal(t, []string{"jti-1"}, tokens.revoked)
}

func TestLogoutRevokesPresentedToken(t *testing.T) {
	tokens := &stubTokens{}
	svc := NewService(newStubUsers(), tokens, nil, false)

	require.NoError(t, svc.Logout(context.Background(), token.Claims{Subject: 1, TokenID: "jti-9"}))
	assert.Equal(t, []string{"jti-9"}, tokens.revoked)
}

func TestRegisterDelegatesToUserService(t *testing.T) {
	repo := newStubUsers()
	svc := NewService(repo, &stubTokens{}, nil, true)

	user, err := svc.Register(context.Background(), "carol", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "carol", user.Username)
	assert.True(t, user.Enable)

	_, err = svc.Register(context.Background(), "carol", "s3cret")
	assert.ErrorIs(t, err, shared.ErrConflict)
}
