package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// DispatchLatch is a Redis-backed one-shot guard for agent dispatch.
// Notes:
//   - SETNX makes the guard hold across processes sharing the Redis instance, so a
//     restarted server attached to the same room session does not dispatch twice.
//   - Keys expire after ttl so an abandoned session cannot block a room forever.
type DispatchLatch struct {
	client *redis.Client
	ttl    time.Duration
}

func NewDispatchLatch(client *redis.Client, ttl time.Duration) *DispatchLatch {
	return &DispatchLatch{client: client, ttl: ttl}
}

func (l *DispatchLatch) TryAcquire(ctx context.Context, key string) (bool, error) {
	return l.client.SetNX(ctx, l.key(key), "1", l.ttl).Result()
}

func (l *DispatchLatch) Release(ctx context.Context, key string) error {
	return l.client.Del(ctx, l.key(key)).Err()
}

func (l *DispatchLatch) key(sessionKey string) string {
	return "quiz:dispatch:" + sessionKey
}
