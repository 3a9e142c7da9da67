// Package auth implements the authentication flows in front of the access
// guard: login with captcha challenge, registration, token refresh,
// logout and password change.
package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-admin/meridian-admin/internal/shared"
	"github.com/meridian-admin/meridian-admin/internal/token"
	"github.com/meridian-admin/meridian-admin/internal/users"
)

// UserPort is the slice of the user service the auth flows need.
type UserPort interface {
	GetByUsername(ctx context.Context, username string) (users.User, error)
	Get(ctx context.Context, id int64) (users.User, error)
	Create(ctx context.Context, input users.CreateInput) (users.User, error)
	ResetPassword(ctx context.Context, userID int64, newPassword string) error
}

// TokenPort issues, verifies and revokes bearer tokens.
type TokenPort interface {
	Issue(subject int64) (string, error)
	Revoke(ctx context.Context, claims token.Claims) error
}

// CaptchaPort verifies a pending captcha challenge.
type CaptchaPort interface {
	Verify(ctx context.Context, id, answer string) (bool, error)
}

// Service orchestrates the authentication flows.
type Service struct {
	users    UserPort
	tokens   TokenPort
	captchas CaptchaPort
	// preview disables the captcha requirement so demo deployments can
	// log in without an image pipeline.
	preview bool
}

// NewService builds Service instance. captchas may be nil, which disables
// the captcha requirement entirely.
func NewService(users UserPort, tokens TokenPort, captchas CaptchaPort, preview bool) *Service {
	return &Service{users: users, tokens: tokens, captchas: captchas, preview: preview}
}

// LoginInput carries the credentials and captcha answer.
type LoginInput struct {
	Username  string
	Password  string
	CaptchaID string
	Captcha   string
}

// LoginResult is the issued session.
type LoginResult struct {
	Token    string `json:"accessToken"`
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
}

// Login verifies the captcha and the credentials, then issues a token.
// An unknown username and a wrong password collapse to the same failure.
func (s *Service) Login(ctx context.Context, input LoginInput) (LoginResult, error) {
	if err := s.checkCaptcha(ctx, input.CaptchaID, input.Captcha); err != nil {
		return LoginResult{}, err
	}

	user, err := s.authenticate(ctx, input.Username, input.Password)
	if err != nil {
		return LoginResult{}, err
	}

	signed, err := s.tokens.Issue(user.ID)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue token: %w", err)
	}
	return LoginResult{Token: signed, UserID: user.ID, Username: user.Username}, nil
}

// Register creates an account. The handler keeps this behind the preview
// gate; open registration is a demo-deployment convenience, not a
// production surface.
func (s *Service) Register(ctx context.Context, username, password string) (users.User, error) {
	return s.users.Create(ctx, users.CreateInput{Username: username, Password: password, Enable: true})
}

// Refresh issues a fresh token for an already-authenticated principal.
func (s *Service) Refresh(ctx context.Context, userID int64) (LoginResult, error) {
	user, err := s.users.Get(ctx, userID)
	if err != nil || !user.Enable {
		return LoginResult{}, shared.ErrUnauthorized
	}
	signed, err := s.tokens.Issue(user.ID)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue token: %w", err)
	}
	return LoginResult{Token: signed, UserID: user.ID, Username: user.Username}, nil
}

// Logout revokes the presented token when a deny-list is configured.
// Best-effort: without one the token stays valid until natural expiry.
func (s *Service) Logout(ctx context.Context, claims token.Claims) error {
	return s.tokens.Revoke(ctx, claims)
}

// ChangePassword verifies the old credential, installs the new one and
// revokes the presented token so the session has to be re-established.
func (s *Service) ChangePassword(ctx context.Context, claims token.Claims, oldPassword, newPassword string) error {
	user, err := s.users.Get(ctx, claims.Subject)
	if err != nil {
		return shared.ErrUnauthorized
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)) != nil {
		return fmt.Errorf("%w: old password mismatch", shared.ErrInvalidCredentials)
	}
	if err := s.users.ResetPassword(ctx, user.ID, newPassword); err != nil {
		return err
	}
	return s.tokens.Revoke(ctx, claims)
}

func (s *Service) authenticate(ctx context.Context, username, password string) (users.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			// Equalize the work done for unknown users so response
			// timing does not reveal whether the username exists.
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return users.User{}, shared.ErrInvalidCredentials
		}
		return users.User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return users.User{}, shared.ErrInvalidCredentials
	}
	if !user.Enable {
		return users.User{}, shared.ErrUnauthorized
	}
	return user, nil
}

func (s *Service) checkCaptcha(ctx context.Context, id, answer string) error {
	if s.preview || s.captchas == nil {
		return nil
	}
	ok, err := s.captchas.Verify(ctx, id, answer)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: captcha mismatch", shared.ErrInvalidInput)
	}
	return nil
}

// Fixed bcrypt hash of an unguessable value, used only to burn time on
// unknown-user logins.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")
