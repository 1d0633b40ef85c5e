package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DatabaseRepository talks to the maintenance database of a server.
type DatabaseRepository struct {
	pool *pgxpool.Pool
}

func NewDatabaseRepository(pool *pgxpool.Pool) *DatabaseRepository {
	return &DatabaseRepository{pool: pool}
}

func (r *DatabaseRepository) CreateDatabase(ctx context.Context, dbName string, owner string) error {
	exists, err := r.DatabaseExists(ctx, dbName)
	if err != nil {
		return fmt.Errorf("failed to check database existence: %w", err)
	}

	if exists {
		return fmt.Errorf("database %s already exists", dbName)
	}

	query := "CREATE DATABASE " + pgx.Identifier{dbName}.Sanitize()
	if owner != "" {
		query += " OWNER " + pgx.Identifier{owner}.Sanitize()
	}

	if _, err = r.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}

	return nil
}

func (r *DatabaseRepository) DatabaseExists(ctx context.Context, dbName string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)`

	if err := r.pool.QueryRow(ctx, query, dbName).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check database existence: %w", err)
	}

	return exists, nil
}

func (r *DatabaseRepository) Close() {
	r.pool.Close()
}
