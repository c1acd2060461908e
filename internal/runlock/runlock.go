// Package runlock guarantees that at most one run of a given report type is
// in flight across every process sharing the backend.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/stockrecon/internal/shared"
)

// ErrConcurrentRun is returned when another run holds the lock.
var ErrConcurrentRun = errors.New("runlock: already running")

// Lease is a held lock. Release is safe to call once the run finished, even
// after the TTL expired.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker acquires run-scoped exclusive locks keyed by run kind.
type Locker interface {
	Acquire(ctx context.Context, kind string) (Lease, error)
}

// WithLock runs fn while holding the lock for kind. The lock is released
// whatever fn returns.
func WithLock(ctx context.Context, locker Locker, kind string, logger *slog.Logger, fn func(ctx context.Context) error) error {
	if locker == nil {
		return fn(ctx)
	}
	lease, err := locker.Acquire(ctx, kind)
	if err != nil {
		if errors.Is(err, ErrConcurrentRun) {
			return fmt.Errorf("%s: %w", kind, err)
		}
		return fmt.Errorf("runlock: acquire %s: %w", kind, err)
	}
	defer func() {
		// The run context may already be cancelled; release on a fresh one.
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil && logger != nil {
			logger.Warn("release run lock", slog.String("key", shared.RunLockKey(kind)), slog.Any("error", err))
		}
	}()
	return fn(ctx)
}
