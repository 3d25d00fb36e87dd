package redis

import (
	"context"
	"time"

	"github.com/bsm/redislock"

	"github.com/wms-platform/opname-service/internal/application"
)

const lockPrefix = "opname:session:"

// SessionLocker serializes scan batches per session with a Redis lock. A
// waiter retries with linear backoff until its context or the wait budget
// runs out.
type SessionLocker struct {
	locker *redislock.Client
	ttl    time.Duration
	wait   time.Duration
}

func NewSessionLocker(client redislock.RedisClient, ttl time.Duration) *SessionLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &SessionLocker{
		locker: redislock.New(client),
		ttl:    ttl,
		wait:   ttl,
	}
}

func lockKey(sessionID string) string {
	return lockPrefix + sessionID
}

func (l *SessionLocker) Lock(ctx context.Context, sessionID string) (func(context.Context), error) {
	lockCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	lock, err := l.locker.Obtain(lockCtx, lockKey(sessionID), l.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(100 * time.Millisecond),
	})
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) {
		_ = lock.Release(ctx)
	}, nil
}

var _ application.SessionLocker = (*SessionLocker)(nil)
