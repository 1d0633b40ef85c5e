// Package mysql connects the migration engine to MySQL.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/dfryer1193/schemad/internal/connector/sqlconn"
	"github.com/dfryer1193/schemad/internal/data/repository"
	"github.com/dfryer1193/schemad/internal/data/repository/sqlstore"
	"github.com/dfryer1193/schemad/internal/ddl"
	"github.com/dfryer1193/schemad/internal/migration"
	"github.com/dfryer1193/schemad/internal/utils"
	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
)

type Connector struct {
	db       *sql.DB
	renderer *ddl.Renderer
	conn     *sqlconn.Connection
	ledger   *sqlstore.MigrationRepository
}

func Open(ctx context.Context, dsn string) (*Connector, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Str("dialect", ddl.MySQL.String()).Msg("Connected to database")
	return &Connector{
		db:       db,
		renderer: ddl.NewRenderer(ddl.MySQL),
		// MySQL commits implicitly around every DDL statement.
		conn:   sqlconn.NewConnection(db, false),
		ledger: sqlstore.NewMigrationRepository(db, sqlstore.MySQL),
	}, nil
}

func (c *Connector) Dialect() ddl.Dialect                   { return ddl.MySQL }
func (c *Connector) Renderer() *ddl.Renderer                { return c.renderer }
func (c *Connector) Connection() migration.Connection       { return c.conn }
func (c *Connector) Ledger() repository.MigrationRepository { return c.ledger }
func (c *Connector) Locker() migration.Locker               { return c }

func (c *Connector) Initialize(ctx context.Context) error {
	return c.ledger.EnsureTable(ctx)
}

func (c *Connector) Close() {
	c.ledger.Close()
}

// lockName keeps GET_LOCK names under the 64 character limit.
func lockName(name string) string {
	return "schemad:" + strconv.FormatInt(utils.LockKey(name), 16)
}

// Lock takes a named server lock on a dedicated connection. It waits for
// the lock until ctx is done.
func (c *Connector) Lock(ctx context.Context, name string) (func(context.Context) error, error) {
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock connection: %w", err)
	}

	key := lockName(name)
	var acquired sql.NullInt64
	// A negative timeout waits forever; the context bounds the wait instead.
	if err := conn.QueryRowContext(ctx, `SELECT GET_LOCK(?, -1)`, key).Scan(&acquired); err != nil {
		conn.Close()
		return nil, fmt.Errorf("named lock: %w", err)
	}
	if !acquired.Valid || acquired.Int64 != 1 {
		conn.Close()
		return nil, fmt.Errorf("named lock %s for %s was not granted", key, name)
	}

	return func(ctx context.Context) error {
		defer conn.Close()
		var released sql.NullInt64
		if err := conn.QueryRowContext(ctx, `SELECT RELEASE_LOCK(?)`, key).Scan(&released); err != nil {
			return fmt.Errorf("named unlock: %w", err)
		}
		if !released.Valid || released.Int64 != 1 {
			return fmt.Errorf("named lock %s for %s was not held", key, name)
		}
		return nil
	}, nil
}
