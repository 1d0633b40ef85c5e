// Package postgres connects the migration engine to PostgreSQL through pgx.
package postgres

import (
	"context"
	"fmt"

	"github.com/dfryer1193/schemad/internal/data/repository"
	pgrepo "github.com/dfryer1193/schemad/internal/data/repository/postgres"
	"github.com/dfryer1193/schemad/internal/ddl"
	"github.com/dfryer1193/schemad/internal/migration"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

type Connector struct {
	pool     *pgxpool.Pool
	renderer *ddl.Renderer
	ledger   *pgrepo.MigrationRepository
	locker   *AdvisoryLocker
}

// Options controls how the target database is reached.
type Options struct {
	// AdminConnString reaches the maintenance database, used to create
	// Database when it does not exist. Empty disables provisioning.
	AdminConnString string
	Database        string
	Owner           string
}

func Open(ctx context.Context, connString string, opts Options) (*Connector, error) {
	if opts.AdminConnString != "" {
		if err := provision(ctx, opts); err != nil {
			return nil, err
		}
	}

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Str("dialect", ddl.Postgres.String()).Str("database", pool.Config().ConnConfig.Database).Msg("Connected to database")
	return &Connector{
		pool:     pool,
		renderer: ddl.NewRenderer(ddl.Postgres),
		ledger:   pgrepo.NewMigrationRepository(pool),
		locker:   NewAdvisoryLocker(pool),
	}, nil
}

// provision creates the target database through the maintenance database.
func provision(ctx context.Context, opts Options) error {
	admin, err := pgxpool.New(ctx, opts.AdminConnString)
	if err != nil {
		return fmt.Errorf("failed to create connection pool for database management: %w", err)
	}
	databases := pgrepo.NewDatabaseRepository(admin)
	defer databases.Close()

	return ensureDatabase(ctx, databases, opts.Database, opts.Owner)
}

func ensureDatabase(ctx context.Context, databases repository.DatabaseRepository, name, owner string) error {
	exists, err := databases.DatabaseExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if err := databases.CreateDatabase(ctx, name, owner); err != nil {
		return err
	}
	log.Info().Str("database", name).Msg("Created database")
	return nil
}

func (c *Connector) Dialect() ddl.Dialect                   { return ddl.Postgres }
func (c *Connector) Renderer() *ddl.Renderer                { return c.renderer }
func (c *Connector) Connection() migration.Connection       { return &poolConn{pool: c.pool} }
func (c *Connector) Ledger() repository.MigrationRepository { return c.ledger }
func (c *Connector) Locker() migration.Locker               { return c.locker }

func (c *Connector) Initialize(ctx context.Context) error {
	return c.ledger.EnsureTable(ctx)
}

func (c *Connector) Close() {
	c.ledger.Close()
}

type poolConn struct {
	pool *pgxpool.Pool
}

func (c *poolConn) Exec(ctx context.Context, statement string) error {
	_, err := c.pool.Exec(ctx, statement)
	return err
}

func (c *poolConn) Begin(ctx context.Context) (migration.Tx, error) {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &pgxTx{tx: tx}, nil
}

// PostgreSQL rolls back DDL with the enclosing transaction.
func (c *poolConn) SupportsTransactionalDDL() bool { return true }

type pgxTx struct {
	tx pgx.Tx
}

func (t *pgxTx) Exec(ctx context.Context, statement string) error {
	_, err := t.tx.Exec(ctx, statement)
	return err
}

func (t *pgxTx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *pgxTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }
