package repository

import (
	"context"
	"errors"

	"github.com/dfryer1193/schemad/api"
)

var (
	ErrMigrationExists   = errors.New("migration already recorded")
	ErrMigrationNotFound = errors.New("migration not found")
)

// LedgerTable is the table every ledger implementation keeps its records in.
const LedgerTable = "_schemad_migrations"

// MigrationRepository is the migration ledger. Records are keyed by name and
// are never deleted.
type MigrationRepository interface {
	// EnsureTable creates the ledger table when it does not exist yet.
	EnsureTable(ctx context.Context) error
	// Save inserts a new record, or returns ErrMigrationExists.
	Save(ctx context.Context, migration *api.Migration) error
	// Update applies mutate to the stored record under a row lock, so that
	// concurrent writers to the same name are serialized. A mutate error
	// aborts the update and is returned unchanged.
	Update(ctx context.Context, name string, mutate func(*api.Migration) error) error
	// List returns every record ordered by start time, then name.
	List(ctx context.Context) ([]*api.Migration, error)
	// ByName returns nil without error when no record exists.
	ByName(ctx context.Context, name string) (*api.Migration, error)
	// Reset drops the ledger table.
	Reset(ctx context.Context) error
	Close()
}

// DatabaseRepository manages whole databases on a server, used to provision
// the migration target before the first apply.
type DatabaseRepository interface {
	CreateDatabase(ctx context.Context, dbName string, owner string) error
	DatabaseExists(ctx context.Context, dbName string) (bool, error)
	Close()
}
