// Package connector opens the database a migration is planned against and
// applied to.
package connector

import (
	"context"
	"fmt"

	"github.com/dfryer1193/schemad/internal/config"
	"github.com/dfryer1193/schemad/internal/connector/mysql"
	"github.com/dfryer1193/schemad/internal/connector/postgres"
	"github.com/dfryer1193/schemad/internal/connector/sqlite"
	"github.com/dfryer1193/schemad/internal/data/repository"
	"github.com/dfryer1193/schemad/internal/data/utils"
	"github.com/dfryer1193/schemad/internal/ddl"
	"github.com/dfryer1193/schemad/internal/migration"
	"github.com/dfryer1193/schemad/internal/schema"
	"github.com/rs/zerolog/log"
)

// Connector is everything the migration engine needs from one database.
type Connector interface {
	Dialect() ddl.Dialect
	Renderer() *ddl.Renderer
	Connection() migration.Connection
	Ledger() repository.MigrationRepository
	Locker() migration.Locker
	// Namespaces lists the namespaces migrations can target.
	Namespaces(ctx context.Context) ([]string, error)
	// Describe introspects the current schema of namespace.
	Describe(ctx context.Context, namespace string) (*schema.SqlSchema, error)
	// Initialize prepares the database for migrations, creating the ledger.
	Initialize(ctx context.Context) error
	Close()
}

var (
	_ Connector = (*postgres.Connector)(nil)
	_ Connector = (*mysql.Connector)(nil)
	_ Connector = (*sqlite.Connector)(nil)
)

// Open connects to the database described by cfg.
func Open(ctx context.Context, cfg config.Database) (Connector, error) {
	dialect, err := ddl.ParseDialect(cfg.Dialect)
	if err != nil {
		return nil, err
	}

	dsn, err := utils.BuildConnectionString(cfg, "")
	if err != nil {
		return nil, fmt.Errorf("failed to build connection string: %w", err)
	}

	switch dialect {
	case ddl.MySQL:
		return mysql.Open(ctx, dsn)
	case ddl.SQLite:
		return sqlite.Open(ctx, dsn)
	default:
		opts := postgres.Options{Database: cfg.Name, Owner: cfg.User}
		if cfg.Create && cfg.URL == "" {
			if opts.AdminConnString, err = utils.BuildConnectionString(cfg, "postgres"); err != nil {
				return nil, fmt.Errorf("failed to build connection string for database management: %w", err)
			}
		}
		return postgres.Open(ctx, dsn, opts)
	}
}

// Reset drops every table of namespace and then the ledger. It runs
// through the regular planner so that foreign keys are dropped before the
// tables they point at.
func Reset(ctx context.Context, c Connector, namespace string) error {
	current, err := c.Describe(ctx, namespace)
	if err != nil {
		return fmt.Errorf("failed to describe database: %w", err)
	}
	empty, err := schema.NewBuilder().Build()
	if err != nil {
		return err
	}

	m, err := migration.Infer(current, empty, migration.RenameHints{})
	if err != nil {
		return err
	}
	log.Warn().Str("namespace", namespace).Int("tables", current.TableCount()).Msg("Resetting database")

	steps := migration.NewStepApplier(c.Renderer(), 0)
	if _, err := steps.Apply(ctx, "reset", m, c.Connection()); err != nil {
		return err
	}
	if err := c.Ledger().Reset(ctx); err != nil {
		return fmt.Errorf("failed to drop ledger: %w", err)
	}
	return c.Ledger().EnsureTable(ctx)
}
