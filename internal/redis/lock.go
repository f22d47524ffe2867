package redisclient

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("lock not acquired")
)

const retryInterval = 25 * time.Millisecond

// Locker is used by the booking service to guard check-then-commit sections.
type Locker interface {
	// WithLock runs fn while holding every key. It waits at most the locker's
	// wait budget and fails with ErrLockNotAcquired otherwise.
	WithLock(ctx context.Context, keys []string, fn func(ctx context.Context) error) error
}

type redisLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
}

// NewRedisLocker creates a locker that sets one Redis key per locked resource.
// ttl bounds how long a crashed holder can block others; wait bounds acquisition.
func NewRedisLocker(client *redis.Client, ttl, wait time.Duration) Locker {
	return &redisLocker{
		client: client,
		ttl:    ttl,
		wait:   wait,
	}
}

func (l *redisLocker) WithLock(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	keys = slices.Clone(keys)
	slices.Sort(keys)
	keys = slices.Compact(keys)
	token := uuid.NewString()

	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.acquireAll(ctx, keys, token)
		if err != nil {
			return err
		}
		if ok {
			break
		}
		if time.Now().Add(retryInterval).After(deadline) {
			return ErrLockNotAcquired
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}

	defer func() {
		// release with a fresh context so a cancelled request still frees its keys
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		for _, key := range keys {
			_ = l.release(releaseCtx, key, token)
		}
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

// acquireAll takes every key or none of them.
func (l *redisLocker) acquireAll(ctx context.Context, keys []string, token string) (bool, error) {
	for i, key := range keys {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil || !ok {
			for _, held := range keys[:i] {
				_ = l.release(ctx, held, token)
			}
			if err != nil {
				return false, fmt.Errorf("acquire lock %s: %w", key, err)
			}
			return false, nil
		}
	}
	return true, nil
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}
