package locker

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// PostgresLocker coordinates across processes with session scoped advisory
// locks. Each acquisition pins a pooled connection until release; if the
// holding process dies, the lock dies with its connection.
type PostgresLocker struct {
	pool      *pgxpool.Pool
	wait      time.Duration
	pollEvery time.Duration
}

// NewPostgresLocker creates an advisory-lock locker with the given wait
// bound.
func NewPostgresLocker(pool *pgxpool.Pool, wait time.Duration) *PostgresLocker {
	return &PostgresLocker{
		pool:      pool,
		wait:      wait,
		pollEvery: 100 * time.Millisecond,
	}
}

var _ Locker = (*PostgresLocker)(nil)

func (l *PostgresLocker) Acquire(ctx context.Context, key string) (ReleaseFunc, error) {
	if key == "" {
		return nil, errors.New("[PostgresLocker.Acquire] key cannot be empty")
	}

	id := LockID(key)
	deadline := time.Now().Add(l.wait)

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "[PostgresLocker.Acquire] acquire connection")
	}

	for {
		var acquired bool
		if err := conn.QueryRow(ctx, `select pg_try_advisory_lock($1)`, id).Scan(&acquired); err != nil {
			conn.Release()
			return nil, errors.Wrap(err, "[PostgresLocker.Acquire] pg_try_advisory_lock")
		}
		if acquired {
			var once sync.Once
			return func() {
				once.Do(func() {
					// Unlock on a fresh context so release still works when
					// the request context is already cancelled.
					_, _ = conn.Exec(context.Background(), `select pg_advisory_unlock($1)`, id)
					conn.Release()
				})
			}, nil
		}

		if time.Now().After(deadline) {
			conn.Release()
			return nil, ErrLockBusy
		}
		select {
		case <-ctx.Done():
			conn.Release()
			return nil, errors.Wrap(ctx.Err(), "[PostgresLocker.Acquire] context done")
		case <-time.After(l.pollEvery):
		}
	}
}

// LockID maps a lock key onto the 64 bit advisory lock space.
func LockID(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}
