// Package persistence holds the Redis-backed adapters.
package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"calsync_server/core/port/out"
)

// RunLockKey is the Redis key prefix for run locks.
const RunLockKey = "calsync:lock:"

// releaseScript deletes the key only while it still holds our token, so an
// expired lease taken over by another process is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisRunLock implements out.RunLock with SET NX PX.
type RedisRunLock struct {
	client redis.UniversalClient
}

func NewRedisRunLock(client redis.UniversalClient) *RedisRunLock {
	return &RedisRunLock{client: client}
}

var _ out.RunLock = (*RedisRunLock)(nil)

func (l *RedisRunLock) Acquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, bool, error) {
	key := RunLockKey + name
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
			return fmt.Errorf("failed to release lock %s: %w", name, err)
		}
		return nil
	}
	return release, true, nil
}
