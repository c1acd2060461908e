package runlock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/stockrecon/internal/shared"
)

// Execer is the subset of pgxpool.Pool the PostgreSQL locker needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresLocker takes locks with one conditional upsert on run_locks. An
// expired holder is replaced; a live one makes the statement a no-op.
type PostgresLocker struct {
	db  Execer
	ttl time.Duration
	now func() time.Time
}

// NewPostgresLocker builds a locker storing leases in run_locks.
func NewPostgresLocker(db Execer, ttl time.Duration) *PostgresLocker {
	return &PostgresLocker{db: db, ttl: ttl, now: time.Now}
}

const acquireSQL = `
INSERT INTO run_locks (lock_key, token, acquired_at, expires_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (lock_key) DO UPDATE
SET token = EXCLUDED.token, acquired_at = EXCLUDED.acquired_at, expires_at = EXCLUDED.expires_at
WHERE run_locks.expires_at <= EXCLUDED.acquired_at`

const releaseSQL = `DELETE FROM run_locks WHERE lock_key = $1 AND token = $2`

// Acquire inserts the lease row or reports ErrConcurrentRun.
func (l *PostgresLocker) Acquire(ctx context.Context, kind string) (Lease, error) {
	key := shared.RunLockKey(kind)
	token := uuid.NewString()
	now := l.now().UTC()
	tag, err := l.db.Exec(ctx, acquireSQL, key, token, now, now.Add(l.ttl))
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrConcurrentRun
	}
	return pgLease{db: l.db, key: key, token: token}, nil
}

type pgLease struct {
	db    Execer
	key   string
	token string
}

func (l pgLease) Release(ctx context.Context) error {
	_, err := l.db.Exec(ctx, releaseSQL, l.key, l.token)
	return err
}
