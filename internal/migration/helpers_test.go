package migration

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/dfryer1193/schemad/api"
	"github.com/dfryer1193/schemad/internal/data/repository"
	"github.com/dfryer1193/schemad/internal/schema"
)

func mustSchema(t *testing.T, description string) *schema.SqlSchema {
	t.Helper()
	s, err := schema.DecodeDescription(strings.NewReader(description))
	if err != nil {
		t.Fatalf("failed to build schema: %v", err)
	}
	return s
}

func mustInfer(t *testing.T, previous, next string) *DatabaseMigration {
	t.Helper()
	m, err := Infer(mustSchema(t, previous), mustSchema(t, next), RenameHints{})
	if err != nil {
		t.Fatalf("Infer() error = %v", err)
	}
	return m
}

func describeSteps(m *DatabaseMigration) []string {
	out := make([]string, m.Len())
	for i := range m.Steps {
		out[i] = m.Describe(i)
	}
	return out
}

const (
	emptySchema = `{"tables": []}`

	usersSchema = `{"tables": [
		{"name": "users", "columns": [{"name": "id", "type": "int"}], "primaryKey": {"columns": ["id"]}}
	]}`

	usersWithEmailSchema = `{"tables": [
		{"name": "users", "columns": [
			{"name": "id", "type": "int"},
			{"name": "email", "type": "string", "nativeType": "text"}
		], "primaryKey": {"columns": ["id"]}}
	]}`

	blogSchema = `{"tables": [
		{"name": "users", "columns": [{"name": "id", "type": "int"}], "primaryKey": {"columns": ["id"]}},
		{"name": "posts", "columns": [
			{"name": "id", "type": "int"},
			{"name": "author_id", "type": "int"}
		], "primaryKey": {"columns": ["id"]},
		"indexes": [{"name": "posts_author_idx", "columns": ["author_id"]}],
		"foreignKeys": [{"name": "posts_author_fkey", "columns": ["author_id"], "referencedTable": "users", "referencedColumns": ["id"]}]}
	]}`

	postsOnlySchema = `{"tables": [
		{"name": "posts", "columns": [
			{"name": "id", "type": "int"},
			{"name": "author_id", "type": "int"}
		], "primaryKey": {"columns": ["id"]},
		"indexes": [{"name": "posts_author_idx", "columns": ["author_id"]}]}
	]}`
)

// fakeRenderer renders every step as "<Kind> <description>".
type fakeRenderer struct {
	failOn StepKind
	fail   bool
}

func (r fakeRenderer) Render(m *DatabaseMigration, step MigrationStep) ([]string, error) {
	if r.fail && step.Kind() == r.failOn {
		return nil, errors.New("unsupported step")
	}
	return []string{step.record(m).describe()}, nil
}

type mockTx struct {
	conn       *mockConnection
	committed  bool
	rolledBack bool
}

func (tx *mockTx) Exec(ctx context.Context, statement string) error {
	return tx.conn.Exec(ctx, statement)
}

func (tx *mockTx) Commit(ctx context.Context) error {
	tx.committed = true
	return tx.conn.commitErr
}

func (tx *mockTx) Rollback(ctx context.Context) error {
	tx.rolledBack = true
	return nil
}

type mockConnection struct {
	transactional bool
	failOn        string
	failErr       error
	block         bool
	commitErr     error
	executed      []string
	tx            *mockTx
}

func (c *mockConnection) Exec(ctx context.Context, statement string) error {
	if c.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if c.failOn != "" && statement == c.failOn {
		if c.failErr != nil {
			return c.failErr
		}
		return errors.New("syntax error")
	}
	c.executed = append(c.executed, statement)
	return nil
}

func (c *mockConnection) Begin(ctx context.Context) (Tx, error) {
	c.tx = &mockTx{conn: c}
	return c.tx, nil
}

func (c *mockConnection) SupportsTransactionalDDL() bool { return c.transactional }

// memoryLedger is an in-memory MigrationRepository.
type memoryLedger struct {
	mu        sync.Mutex
	records   map[string]api.Migration
	updateErr error
	saves     int
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{records: make(map[string]api.Migration)}
}

func (l *memoryLedger) EnsureTable(ctx context.Context) error { return nil }

func (l *memoryLedger) Save(ctx context.Context, m *api.Migration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.records[m.Name]; ok {
		return repository.ErrMigrationExists
	}
	l.saves++
	l.records[m.Name] = *m
	return nil
}

func (l *memoryLedger) Update(ctx context.Context, name string, mutate func(*api.Migration) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.updateErr != nil {
		return l.updateErr
	}
	r, ok := l.records[name]
	if !ok {
		return repository.ErrMigrationNotFound
	}
	if err := mutate(&r); err != nil {
		return err
	}
	l.records[name] = r
	return nil
}

func (l *memoryLedger) List(ctx context.Context) ([]*api.Migration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*api.Migration, 0, len(l.records))
	for _, r := range l.records {
		r := r
		out = append(out, &r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (l *memoryLedger) ByName(ctx context.Context, name string) (*api.Migration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.records[name]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (l *memoryLedger) Reset(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = make(map[string]api.Migration)
	return nil
}

func (l *memoryLedger) Close() {}
