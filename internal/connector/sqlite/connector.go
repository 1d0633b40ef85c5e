// Package sqlite connects the migration engine to a SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dfryer1193/schemad/internal/connector/sqlconn"
	"github.com/dfryer1193/schemad/internal/data/repository"
	"github.com/dfryer1193/schemad/internal/data/repository/sqlstore"
	"github.com/dfryer1193/schemad/internal/ddl"
	"github.com/dfryer1193/schemad/internal/migration"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

type Connector struct {
	db       *sql.DB
	renderer *ddl.Renderer
	conn     *sqlconn.Connection
	ledger   *sqlstore.MigrationRepository
	locker   *sqlconn.LocalLocker
}

func Open(ctx context.Context, dsn string) (*Connector, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; this also keeps an in-memory database on a
	// single connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Str("dialect", ddl.SQLite.String()).Msg("Connected to database")
	return New(db), nil
}

// New wraps an open database handle.
func New(db *sql.DB) *Connector {
	return &Connector{
		db:       db,
		renderer: ddl.NewRenderer(ddl.SQLite),
		conn:     sqlconn.NewConnection(db, true),
		ledger:   sqlstore.NewMigrationRepository(db, sqlstore.SQLite),
		locker:   sqlconn.NewLocalLocker(),
	}
}

func (c *Connector) Dialect() ddl.Dialect                   { return ddl.SQLite }
func (c *Connector) Renderer() *ddl.Renderer                { return c.renderer }
func (c *Connector) Connection() migration.Connection       { return c.conn }
func (c *Connector) Ledger() repository.MigrationRepository { return c.ledger }
func (c *Connector) Locker() migration.Locker               { return c.locker }

func (c *Connector) Initialize(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return c.ledger.EnsureTable(ctx)
}

func (c *Connector) Close() {
	c.ledger.Close()
}
