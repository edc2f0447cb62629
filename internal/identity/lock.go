package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ProvisionLockKey is the redis key guarding provisioning passes.
const ProvisionLockKey = "identity:provision:lock"

// ErrLockTimeout indicates the lock was still held when the wait expired.
var ErrLockTimeout = errors.New("identity: provisioning lock wait expired")

// releaseScript deletes the key only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLock is a Locker backed by a single redis key.
type RedisLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	wait   time.Duration
	poll   time.Duration
}

// NewRedisLock constructs a RedisLock. ttl bounds how long a crashed holder
// keeps the lock; wait bounds how long Acquire polls for it.
func NewRedisLock(client *redis.Client, ttl, wait time.Duration) *RedisLock {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if wait <= 0 {
		wait = 30 * time.Second
	}
	return &RedisLock{client: client, key: ProvisionLockKey, ttl: ttl, wait: wait, poll: 200 * time.Millisecond}
}

// Acquire blocks until the lock is obtained, the wait expires or ctx ends.
func (l *RedisLock) Acquire(ctx context.Context) (func(), error) {
	if l == nil || l.client == nil {
		return nil, errors.New("identity: redis lock not configured")
	}
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("identity: lock %s: %w", l.key, err)
		}
		if ok {
			return func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = releaseScript.Run(ctx, l.client, []string{l.key}, token).Err()
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.poll):
		}
	}
}

var _ Locker = (*RedisLock)(nil)
