package token

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDenylist stores revoked token IDs in Redis. Each entry expires
// together with the token it revokes, so the set never outgrows the set
// of live tokens.
type RedisDenylist struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisDenylist constructs a deny-list backed by the given client.
func NewRedisDenylist(client *redis.Client) *RedisDenylist {
	return &RedisDenylist{client: client, now: time.Now}
}

func (d *RedisDenylist) key(tokenID string) string {
	return "token:revoked:" + tokenID
}

// Revoke records the token ID until the token's natural expiry.
func (d *RedisDenylist) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	ttl := until.Sub(d.now())
	if ttl <= 0 {
		return nil
	}
	return d.client.Set(ctx, d.key(tokenID), "1", ttl).Err()
}

// IsRevoked reports whether the token ID has been revoked.
func (d *RedisDenylist) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	err := d.client.Get(ctx, d.key(tokenID)).Err()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

var _ Denylist = (*RedisDenylist)(nil)
