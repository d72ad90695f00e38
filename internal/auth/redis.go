package auth

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "vyhan:revoked:"

// RedisRegistry is the shared-store Registry for multi-process deployments.
// Entries expire with the token's natural lifetime via the key TTL.
type RedisRegistry struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisRegistry wraps an existing client.
func NewRedisRegistry(client *redis.Client) *RedisRegistry {
	return &RedisRegistry{client: client, now: time.Now}
}

func (r *RedisRegistry) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	n, err := r.client.Exists(ctx, redisKeyPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisRegistry) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	if jti == "" {
		return nil
	}
	ttl := defaultRetention
	if !expiresAt.IsZero() {
		if until := time.Until(expiresAt); until > 0 {
			ttl = until
		} else {
			// Already past natural expiry; keep a short tombstone so
			// concurrent refreshes still observe the revocation.
			ttl = time.Minute
		}
	}
	return r.client.Set(ctx, redisKeyPrefix+jti, "1", ttl).Err()
}
