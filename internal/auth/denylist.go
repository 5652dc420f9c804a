package auth

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/helpdesk/internal/domain"
)

const denylistPrefix = "session:revoked:"

// Denylist records tokens revoked before their natural expiry.
type Denylist interface {
	Revoke(ctx context.Context, claims *domain.SessionClaims) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// RedisDenylist keeps revoked token ids in Redis until the token would have expired.
type RedisDenylist struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisDenylist wraps a go-redis client.
func NewRedisDenylist(client *redis.Client) *RedisDenylist {
	return &RedisDenylist{client: client, now: time.Now}
}

// Revoke marks the token as unusable for the rest of its lifetime.
func (d *RedisDenylist) Revoke(ctx context.Context, claims *domain.SessionClaims) error {
	if claims == nil || claims.TokenID == "" {
		return errors.New("token has no id")
	}
	ttl := claims.ExpiresAt.Sub(d.now())
	if ttl <= 0 {
		return nil
	}
	return d.client.Set(ctx, denylistPrefix+claims.TokenID, claims.UserID, ttl).Err()
}

// IsRevoked reports whether tokenID was revoked.
func (d *RedisDenylist) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if tokenID == "" {
		return false, nil
	}
	n, err := d.client.Exists(ctx, denylistPrefix+tokenID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
