package runlock

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/stockrecon/internal/shared"
)

// RedisLocker takes locks with a single SET NX PX through redislock.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
}

// NewRedisLocker builds a locker on top of client.
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: redislock.New(client), ttl: ttl}
}

// Acquire obtains the lock for kind without retrying.
func (l *RedisLocker) Acquire(ctx context.Context, kind string) (Lease, error) {
	lock, err := l.client.Obtain(ctx, shared.RunLockKey(kind), l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrConcurrentRun
	}
	if err != nil {
		return nil, err
	}
	return redisLease{lock: lock}, nil
}

type redisLease struct {
	lock *redislock.Lock
}

func (l redisLease) Release(ctx context.Context) error {
	err := l.lock.Release(ctx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		return nil
	}
	return err
}
