// internal/pkg/lock/redis.go
package lock

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker hands out short-lived exclusive claims. The renewal batch claims each
// subscription before processing so overlapping batch invocations never touch
// the same row.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type RedisLocker struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisLocker(client redis.UniversalClient, prefix string) *RedisLocker {
	return &RedisLocker{client: client, prefix: prefix}
}

// Acquire takes the claim with SET NX EX. The TTL bounds how long a crashed
// worker can hold a claim.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, l.prefix+key, 1, ttl).Result()
}

func (l *RedisLocker) Release(ctx context.Context, key string) error {
	return l.client.Del(ctx, l.prefix+key).Err()
}
