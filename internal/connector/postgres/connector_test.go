package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/dfryer1193/schemad/internal/data/repository"
	pgrepo "github.com/dfryer1193/schemad/internal/data/repository/postgres"
	"github.com/dfryer1193/schemad/internal/migration"
)

var (
	_ repository.MigrationRepository = (*pgrepo.MigrationRepository)(nil)
	_ repository.DatabaseRepository  = (*pgrepo.DatabaseRepository)(nil)
	_ migration.Connection           = (*poolConn)(nil)
	_ migration.Locker               = (*AdvisoryLocker)(nil)
)

type mockDatabaseRepository struct {
	existing  map[string]bool
	created   []string
	existsErr error
}

func (m *mockDatabaseRepository) CreateDatabase(_ context.Context, dbName string, _ string) error {
	m.created = append(m.created, dbName)
	return nil
}

func (m *mockDatabaseRepository) DatabaseExists(_ context.Context, dbName string) (bool, error) {
	if m.existsErr != nil {
		return false, m.existsErr
	}
	return m.existing[dbName], nil
}

func (m *mockDatabaseRepository) Close() {}

func TestEnsureDatabase(t *testing.T) {
	testCases := []struct {
		name        string
		repo        *mockDatabaseRepository
		wantCreated int
		wantErr     bool
	}{
		{
			name:        "missing database is created",
			repo:        &mockDatabaseRepository{existing: map[string]bool{}},
			wantCreated: 1,
		},
		{
			name: "existing database is kept",
			repo: &mockDatabaseRepository{existing: map[string]bool{"orders": true}},
		},
		{
			name:    "lookup failure",
			repo:    &mockDatabaseRepository{existsErr: errors.New("connection refused")},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ensureDatabase(context.Background(), tc.repo, "orders", "app")
			if (err != nil) != tc.wantErr {
				t.Fatalf("ensureDatabase() error = %v, wantErr %v", err, tc.wantErr)
			}
			if len(tc.repo.created) != tc.wantCreated {
				t.Errorf("created = %v, want %d databases", tc.repo.created, tc.wantCreated)
			}
		})
	}
}
