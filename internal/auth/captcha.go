package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	captchaLength = 4
	captchaTTL    = 5 * time.Minute
	// No ambiguous characters (0/O, 1/I/l).
	captchaAlphabet = "23456789abcdefghjkmnpqrstuvwxyz"
)

// Challenge is a pending captcha: the caller gets the ID and the answer
// rendered out-of-band; the answer itself never leaves the server on the
// issue path.
type Challenge struct {
	ID   string
	Code string
}

// CaptchaStore keeps pending challenges in Redis until they are answered
// or expire.
type CaptchaStore struct {
	client *redis.Client
}

// NewCaptchaStore constructs a CaptchaStore.
func NewCaptchaStore(client *redis.Client) *CaptchaStore {
	return &CaptchaStore{client: client}
}

func captchaKey(id string) string {
	return "captcha:" + id
}

// Issue generates a new challenge valid for five minutes.
func (s *CaptchaStore) Issue(ctx context.Context) (Challenge, error) {
	code, err := randomCode(captchaLength)
	if err != nil {
		return Challenge{}, err
	}
	challenge := Challenge{ID: uuid.NewString(), Code: code}
	if err := s.client.Set(ctx, captchaKey(challenge.ID), challenge.Code, captchaTTL).Err(); err != nil {
		return Challenge{}, fmt.Errorf("store captcha: %w", err)
	}
	return challenge, nil
}

// Verify consumes the challenge. Comparison is case-insensitive and the
// challenge is deleted whether or not the answer matched, so each one
// allows a single attempt.
func (s *CaptchaStore) Verify(ctx context.Context, id, answer string) (bool, error) {
	if id == "" || answer == "" {
		return false, nil
	}
	stored, err := s.client.GetDel(ctx, captchaKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("load captcha: %w", err)
	}
	return strings.EqualFold(stored, strings.TrimSpace(answer)), nil
}

func randomCode(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, length)
	for i, b := range buf {
		out[i] = captchaAlphabet[int(b)%len(captchaAlphabet)]
	}
	return string(out), nil
}
