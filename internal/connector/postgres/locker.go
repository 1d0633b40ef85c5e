package postgres

import (
	"context"
	"fmt"

	"github.com/dfryer1193/schemad/internal/utils"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AdvisoryLocker holds a session level advisory lock per migration name on
// a connection taken out of the pool until the lock is released.
type AdvisoryLocker struct {
	pool *pgxpool.Pool
}

func NewAdvisoryLocker(pool *pgxpool.Pool) *AdvisoryLocker {
	return &AdvisoryLocker{pool: pool}
}

func (l *AdvisoryLocker) Lock(ctx context.Context, name string) (func(context.Context) error, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock connection: %w", err)
	}

	key := utils.LockKey(name)
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, key); err != nil {
		// The lock may still be granted after a cancelled wait.
		conn.Conn().Close(context.WithoutCancel(ctx))
		conn.Release()
		return nil, fmt.Errorf("advisory lock: %w", err)
	}

	return func(ctx context.Context) error {
		defer conn.Release()
		var released bool
		if err := conn.QueryRow(ctx, `SELECT pg_advisory_unlock($1)`, key).Scan(&released); err != nil {
			conn.Conn().Close(ctx)
			return fmt.Errorf("advisory unlock: %w", err)
		}
		if !released {
			return fmt.Errorf("advisory lock %d for %s was not held", key, name)
		}
		return nil
	}, nil
}
