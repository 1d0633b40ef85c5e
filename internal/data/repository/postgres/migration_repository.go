// repository/postgres/migration_repository.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/dfryer1193/schemad/api"
	"github.com/dfryer1193/schemad/internal/data/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

const migrationColumns = `name, namespace, checksum, started_at, finished_at, applied_steps_count, logs, status`

type MigrationRepository struct {
	pool *pgxpool.Pool
}

func NewMigrationRepository(pool *pgxpool.Pool) *MigrationRepository {
	return &MigrationRepository{pool: pool}
}

func (r *MigrationRepository) EnsureTable(ctx context.Context) error {
	query := `
        CREATE TABLE IF NOT EXISTS ` + repository.LedgerTable + ` (
            name                VARCHAR(255) PRIMARY KEY,
            namespace           TEXT NOT NULL DEFAULT '',
            checksum            CHAR(64) NOT NULL,
            started_at          TIMESTAMPTZ NOT NULL,
            finished_at         TIMESTAMPTZ,
            applied_steps_count INTEGER NOT NULL DEFAULT 0,
            logs                TEXT NOT NULL DEFAULT '',
            status              TEXT NOT NULL
        )`

	if _, err := r.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create ledger table: %w", err)
	}
	return nil
}

func (r *MigrationRepository) Save(ctx context.Context, m *api.Migration) error {
	query := `
        INSERT INTO ` + repository.LedgerTable + ` (` + migrationColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		m.Name,
		m.Namespace,
		m.Checksum,
		m.StartedAt,
		m.FinishedAt,
		m.AppliedStepsCount,
		m.Logs,
		m.Status,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", repository.ErrMigrationExists, m.Name)
	}
	if err != nil {
		return fmt.Errorf("failed to save migration %s: %w", m.Name, err)
	}
	return nil
}

// Update locks the row with SELECT ... FOR UPDATE for the length of the
// transaction, so concurrent updates to one name run one after the other.
func (r *MigrationRepository) Update(ctx context.Context, name string, mutate func(*api.Migration) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin ledger transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `SELECT `+migrationColumns+` FROM `+repository.LedgerTable+` WHERE name = $1 FOR UPDATE`, name)
	if err != nil {
		return fmt.Errorf("failed to lock migration %s: %w", name, err)
	}
	m, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[api.Migration])
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", repository.ErrMigrationNotFound, name)
	}
	if err != nil {
		return fmt.Errorf("failed to read migration %s: %w", name, err)
	}

	if err := mutate(m); err != nil {
		return err
	}

	query := `
        UPDATE ` + repository.LedgerTable + `
        SET namespace = $2, checksum = $3, started_at = $4, finished_at = $5,
            applied_steps_count = $6, logs = $7, status = $8
        WHERE name = $1`
	_, err = tx.Exec(ctx, query,
		name,
		m.Namespace,
		m.Checksum,
		m.StartedAt,
		m.FinishedAt,
		m.AppliedStepsCount,
		m.Logs,
		m.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to update migration %s: %w", name, err)
	}

	return tx.Commit(ctx)
}

func (r *MigrationRepository) List(ctx context.Context) ([]*api.Migration, error) {
	query := `
        SELECT ` + migrationColumns + `
        FROM ` + repository.LedgerTable + `
        ORDER BY started_at, name`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[api.Migration])
}

func (r *MigrationRepository) ByName(ctx context.Context, name string) (*api.Migration, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+migrationColumns+` FROM `+repository.LedgerTable+` WHERE name = $1`, name)
	if err != nil {
		return nil, err
	}
	m, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[api.Migration])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

func (r *MigrationRepository) Reset(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `DROP TABLE IF EXISTS `+repository.LedgerTable)
	return err
}

func (r *MigrationRepository) Close() {
	r.pool.Close()
}
