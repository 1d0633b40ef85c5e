// Package sqlstore keeps the migration ledger through database/sql, for the
// databases that are not reached through pgx.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dfryer1193/schemad/api"
	"github.com/dfryer1193/schemad/internal/data/repository"
	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type Flavor int

const (
	SQLite Flavor = iota
	MySQL
)

// Timestamps are stored as fixed width UTC text so that ORDER BY on the
// column matches chronological order in both databases.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const mysqlDuplicateEntry = 1062

const migrationColumns = `name, namespace, checksum, started_at, finished_at, applied_steps_count, logs, status`

type MigrationRepository struct {
	db     *sql.DB
	flavor Flavor
}

func NewMigrationRepository(db *sql.DB, flavor Flavor) *MigrationRepository {
	return &MigrationRepository{db: db, flavor: flavor}
}

func (r *MigrationRepository) EnsureTable(ctx context.Context) error {
	logs := "TEXT"
	if r.flavor == MySQL {
		logs = "LONGTEXT"
	}
	query := `
        CREATE TABLE IF NOT EXISTS ` + repository.LedgerTable + ` (
            name                VARCHAR(255) NOT NULL PRIMARY KEY,
            namespace           VARCHAR(255) NOT NULL DEFAULT '',
            checksum            CHAR(64) NOT NULL,
            started_at          VARCHAR(40) NOT NULL,
            finished_at         VARCHAR(40) NULL,
            applied_steps_count INTEGER NOT NULL DEFAULT 0,
            logs                ` + logs + ` NOT NULL,
            status              VARCHAR(32) NOT NULL
        )`

	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create ledger table: %w", err)
	}
	return nil
}

func (r *MigrationRepository) Save(ctx context.Context, m *api.Migration) error {
	query := `INSERT INTO ` + repository.LedgerTable + ` (` + migrationColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		m.Name,
		m.Namespace,
		m.Checksum,
		formatTime(m.StartedAt),
		formatOptionalTime(m.FinishedAt),
		m.AppliedStepsCount,
		m.Logs,
		string(m.Status),
	)
	if isDuplicate(err) {
		return fmt.Errorf("%w: %s", repository.ErrMigrationExists, m.Name)
	}
	if err != nil {
		return fmt.Errorf("failed to save migration %s: %w", m.Name, err)
	}
	return nil
}

func isDuplicate(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlDuplicateEntry
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}

func (r *MigrationRepository) Update(ctx context.Context, name string, mutate func(*api.Migration) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin ledger transaction: %w", err)
	}
	defer tx.Rollback()

	query := `SELECT ` + migrationColumns + ` FROM ` + repository.LedgerTable + ` WHERE name = ?`
	if r.flavor == MySQL {
		query += ` FOR UPDATE`
	}
	m, err := scanMigration(tx.QueryRowContext(ctx, query, name))
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", repository.ErrMigrationNotFound, name)
	}
	if err != nil {
		return fmt.Errorf("failed to read migration %s: %w", name, err)
	}

	if err := mutate(m); err != nil {
		return err
	}

	update := `
        UPDATE ` + repository.LedgerTable + `
        SET namespace = ?, checksum = ?, started_at = ?, finished_at = ?,
            applied_steps_count = ?, logs = ?, status = ?
        WHERE name = ?`
	_, err = tx.ExecContext(ctx, update,
		m.Namespace,
		m.Checksum,
		formatTime(m.StartedAt),
		formatOptionalTime(m.FinishedAt),
		m.AppliedStepsCount,
		m.Logs,
		string(m.Status),
		name,
	)
	if err != nil {
		return fmt.Errorf("failed to update migration %s: %w", name, err)
	}

	return tx.Commit()
}

func (r *MigrationRepository) List(ctx context.Context) ([]*api.Migration, error) {
	query := `SELECT ` + migrationColumns + ` FROM ` + repository.LedgerTable + ` ORDER BY started_at, name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	var migrations []*api.Migration
	for rows.Next() {
		m, err := scanMigration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan migration: %w", err)
		}
		migrations = append(migrations, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating migration rows: %w", err)
	}

	return migrations, nil
}

func (r *MigrationRepository) ByName(ctx context.Context, name string) (*api.Migration, error) {
	query := `SELECT ` + migrationColumns + ` FROM ` + repository.LedgerTable + ` WHERE name = ?`
	m, err := scanMigration(r.db.QueryRowContext(ctx, query, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get migration %s: %w", name, err)
	}
	return m, nil
}

func (r *MigrationRepository) Reset(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DROP TABLE IF EXISTS `+repository.LedgerTable)
	return err
}

func (r *MigrationRepository) Close() {
	r.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMigration(row scanner) (*api.Migration, error) {
	var (
		m          api.Migration
		startedAt  string
		finishedAt sql.NullString
		status     string
	)
	err := row.Scan(
		&m.Name,
		&m.Namespace,
		&m.Checksum,
		&startedAt,
		&finishedAt,
		&m.AppliedStepsCount,
		&m.Logs,
		&status,
	)
	if err != nil {
		return nil, err
	}

	if m.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
		return nil, fmt.Errorf("invalid started_at %q: %w", startedAt, err)
	}
	if finishedAt.Valid {
		t, err := time.Parse(timeLayout, finishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("invalid finished_at %q: %w", finishedAt.String, err)
		}
		m.FinishedAt = &t
	}
	m.Status = api.MigrationStatus(status)
	if !m.Status.Valid() {
		return nil, fmt.Errorf("invalid status %q", status)
	}
	return &m, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatOptionalTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}
