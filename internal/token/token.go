// Package token issues and verifies the signed bearer tokens that carry
// identity between requests. Tokens are self-contained; without a
// configured deny-list there is no server-side revocation and logout is
// advisory only.
package token

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrTokenInvalid indicates a malformed token or signature mismatch.
	ErrTokenInvalid = errors.New("token: invalid")
	// ErrTokenExpired indicates the token is past its expiry.
	ErrTokenExpired = errors.New("token: expired")
)

// Claims are the verified contents of a token.
type Claims struct {
	Subject   int64
	TokenID   string
	ExpiresAt time.Time
}

// Denylist records revoked token IDs until their natural expiry.
type Denylist interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Service signs and verifies HS256 tokens. The signing secret is read-only
// after construction, so a single Service is safe for concurrent use.
type Service struct {
	secret   []byte
	ttl      time.Duration
	denylist Denylist
	now      func() time.Time
}

// NewService constructs a Service. denylist may be nil.
func NewService(secret string, ttl time.Duration, denylist Denylist) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		secret:   []byte(secret),
		ttl:      ttl,
		denylist: denylist,
		now:      time.Now,
	}
}

// TTL exposes the configured token lifetime.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Issue produces a signed token for the given subject, valid for the
// service TTL from now.
func (s *Service) Issue(subject int64) (string, error) {
	return s.IssueWithTTL(subject, s.ttl)
}

// IssueWithTTL produces a signed token with an explicit lifetime.
func (s *Service) IssueWithTTL(subject int64, ttl time.Duration) (string, error) {
	now := s.now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(subject, 10),
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(s.secret)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// Verify checks signature and expiry and returns the decoded claims.
// Signature and structural failures map to ErrTokenInvalid, as does a
// token carrying no expiry at all; expiry maps to ErrTokenExpired.
// Callers surface both as plain unauthorized.
func (s *Service) Verify(ctx context.Context, raw string) (Claims, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrTokenInvalid
	}
	if !parsed.Valid {
		return Claims{}, ErrTokenInvalid
	}

	subject, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return Claims{}, ErrTokenInvalid
	}

	if s.denylist != nil && claims.ID != "" {
		revoked, err := s.denylist.IsRevoked(ctx, claims.ID)
		if err != nil {
			return Claims{}, err
		}
		if revoked {
			return Claims{}, ErrTokenInvalid
		}
	}

	out := Claims{Subject: subject, TokenID: claims.ID}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// Revoke marks a token ID as unusable until its expiry. Best-effort: a
// nil deny-list makes this a no-op.
func (s *Service) Revoke(ctx context.Context, claims Claims) error {
	if s.denylist == nil || claims.TokenID == "" {
		return nil
	}
	until := claims.ExpiresAt
	if until.IsZero() {
		until = s.now().Add(s.ttl)
	}
	return s.denylist.Revoke(ctx, claims.TokenID, until)
}
