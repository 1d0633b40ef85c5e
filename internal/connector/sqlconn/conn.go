// Package sqlconn adapts database/sql handles to the migration connection
// interfaces.
package sqlconn

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/dfryer1193/schemad/internal/migration"
)

type Connection struct {
	db            *sql.DB
	transactional bool
}

// NewConnection wraps db. transactional reports whether the database rolls
// back DDL together with the surrounding transaction.
func NewConnection(db *sql.DB, transactional bool) *Connection {
	return &Connection{db: db, transactional: transactional}
}

func (c *Connection) Exec(ctx context.Context, statement string) error {
	_, err := c.db.ExecContext(ctx, statement)
	return err
}

func (c *Connection) Begin(ctx context.Context) (migration.Tx, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &sqlTx{tx: tx}, nil
}

func (c *Connection) SupportsTransactionalDDL() bool {
	return c.transactional
}

type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) Exec(ctx context.Context, statement string) error {
	_, err := t.tx.ExecContext(ctx, statement)
	return err
}

func (t *sqlTx) Commit(context.Context) error {
	return t.tx.Commit()
}

func (t *sqlTx) Rollback(context.Context) error {
	return t.tx.Rollback()
}

// LocalLocker serializes migrations by name inside one process, for
// databases without server side named locks. A name is forgotten once its
// holder unlocks and nobody else waits for it.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*localLock
}

type localLock struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*localLock)}
}

func (l *LocalLocker) Lock(ctx context.Context, name string) (func(context.Context) error, error) {
	l.mu.Lock()
	lock, ok := l.locks[name]
	if !ok {
		lock = &localLock{ch: make(chan struct{}, 1)}
		l.locks[name] = lock
	}
	lock.refs++
	l.mu.Unlock()

	select {
	case lock.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(name, lock)
		return nil, fmt.Errorf("failed to lock migration %s: %w", name, ctx.Err())
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			<-lock.ch
			l.release(name, lock)
		})
		return nil
	}, nil
}

func (l *LocalLocker) release(name string, lock *localLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, name)
	}
}
