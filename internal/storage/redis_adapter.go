// Package storage holds the short-lived shared state of the storefront:
// checkout locks and admin sessions.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	lockKeyPrefix    = "lock:"
	sessionKeyPrefix = "session:"
)

// releaseLockScript deletes a lock only while it still belongs to owner, so
// an attempt that outlived its TTL cannot free a newer holder's lock.
var releaseLockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

// SetIdempotency claims key for owner. It reports false when the key is
// already held.
func (r *RedisAdapter) SetIdempotency(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, lockKeyPrefix+key, owner, ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key, owner string) error {
	return releaseLockScript.Run(ctx, r.client, []string{lockKeyPrefix + key}, owner).Err()
}

func (r *RedisAdapter) SaveSession(ctx context.Context, token, subject string, ttl time.Duration) error {
	return r.client.Set(ctx, sessionKeyPrefix+token, subject, ttl).Err()
}

// LoadSession returns the session subject. Unknown or expired tokens report false.
func (r *RedisAdapter) LoadSession(ctx context.Context, token string) (string, bool, error) {
	subject, err := r.client.Get(ctx, sessionKeyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return subject, true, nil
}

func (r *RedisAdapter) DeleteSession(ctx context.Context, token string) error {
	return r.client.Del(ctx, sessionKeyPrefix+token).Err()
}

func (r *RedisAdapter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
