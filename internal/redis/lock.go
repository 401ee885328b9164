package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("worker roster lock not acquired")
)

// Locker serializes roster write sections per support worker, so two clients
// confirming overlapping drafts for the same worker cannot interleave.
// Conflict findings stay advisory either way; the lock only orders writes.
type Locker interface {
	WithWorkerLock(ctx context.Context, workerID uuid.UUID, fn func(ctx context.Context) error) error
}

type redisWorkerLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisWorkerLocker creates a locker that uses a per worker Redis key
func NewRedisWorkerLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisWorkerLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisWorkerLocker) WithWorkerLock(ctx context.Context, workerID uuid.UUID, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:worker:%s", workerID.String())
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire worker lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		_ = l.release(ctx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisWorkerLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release worker lock: %w", err)
	}
	return nil
}
