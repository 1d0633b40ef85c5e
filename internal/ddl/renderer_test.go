package ddl

import (
	"strings"
	"testing"

	"github.com/dfryer1193/schemad/internal/migration"
	"github.com/dfryer1193/schemad/internal/schema"
	"github.com/google/go-cmp/cmp"
)

const blog = `{"tables": [
	{"name": "users", "columns": [
		{"name": "id", "type": "int", "autoIncrement": true},
		{"name": "email", "type": "string", "nullable": true}
	], "primaryKey": {"columns": ["id"]},
	"indexes": [{"name": "users_email_key", "unique": true, "columns": ["email"]}]},
	{"name": "posts", "columns": [
		{"name": "id", "type": "bigint"},
		{"name": "author_id", "type": "int"},
		{"name": "published", "type": "boolean", "default": "false"}
	], "primaryKey": {"columns": ["id"]},
	"foreignKeys": [{"name": "posts_author_fkey", "columns": ["author_id"], "referencedTable": "users", "referencedColumns": ["id"], "onDelete": "cascade"}]}
]}`

func infer(t *testing.T, previous, next string) *migration.DatabaseMigration {
	t.Helper()
	prev, err := schema.DecodeDescription(strings.NewReader(previous))
	if err != nil {
		t.Fatalf("previous schema: %v", err)
	}
	nxt, err := schema.DecodeDescription(strings.NewReader(next))
	if err != nil {
		t.Fatalf("next schema: %v", err)
	}
	m, err := migration.Infer(prev, nxt, migration.RenameHints{})
	if err != nil {
		t.Fatalf("Infer() error = %v", err)
	}
	return m
}

func renderAll(t *testing.T, r *Renderer, m *migration.DatabaseMigration) []string {
	t.Helper()
	var out []string
	for i, step := range m.Steps {
		stmts, err := r.Render(m, step)
		if err != nil {
			t.Fatalf("Render(%s) error = %v", m.Describe(i), err)
		}
		out = append(out, stmts...)
	}
	return out
}

func TestRenderCreateSchema(t *testing.T) {
	testCases := []struct {
		dialect Dialect
		want    []string
	}{
		{
			dialect: Postgres,
			want: []string{
				`CREATE TABLE "users" ("id" integer NOT NULL GENERATED BY DEFAULT AS IDENTITY, "email" text, CONSTRAINT "users_pkey" PRIMARY KEY ("id"))`,
				`CREATE TABLE "posts" ("id" bigint NOT NULL, "author_id" integer NOT NULL, "published" boolean NOT NULL DEFAULT false, CONSTRAINT "posts_pkey" PRIMARY KEY ("id"))`,
				`CREATE UNIQUE INDEX "users_email_key" ON "users" ("email")`,
				`ALTER TABLE "posts" ADD CONSTRAINT "posts_author_fkey" FOREIGN KEY ("author_id") REFERENCES "users" ("id") ON DELETE CASCADE ON UPDATE NO ACTION`,
			},
		},
		{
			dialect: MySQL,
			want: []string{
				"CREATE TABLE `users` (`id` int NOT NULL AUTO_INCREMENT, `email` varchar(191), PRIMARY KEY (`id`))",
				"CREATE TABLE `posts` (`id` bigint NOT NULL, `author_id` int NOT NULL, `published` boolean NOT NULL DEFAULT false, PRIMARY KEY (`id`))",
				"CREATE UNIQUE INDEX `users_email_key` ON `users` (`email`)",
				"ALTER TABLE `posts` ADD CONSTRAINT `posts_author_fkey` FOREIGN KEY (`author_id`) REFERENCES `users` (`id`) ON DELETE CASCADE ON UPDATE NO ACTION",
			},
		},
		{
			dialect: SQLite,
			want: []string{
				`CREATE TABLE "users" ("id" INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT, "email" TEXT)`,
				`CREATE TABLE "posts" ("id" BIGINT NOT NULL, "author_id" INTEGER NOT NULL, "published" BOOLEAN NOT NULL DEFAULT false, CONSTRAINT "posts_pkey" PRIMARY KEY ("id"), CONSTRAINT "posts_author_fkey" FOREIGN KEY ("author_id") REFERENCES "users" ("id") ON DELETE CASCADE ON UPDATE NO ACTION)`,
				`CREATE UNIQUE INDEX "users_email_key" ON "users" ("email")`,
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.dialect.String(), func(t *testing.T) {
			m := infer(t, `{"tables": []}`, blog)
			got := renderAll(t, NewRenderer(tc.dialect), m)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("rendered statements mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRenderDropSchema(t *testing.T) {
	testCases := []struct {
		dialect Dialect
		want    []string
	}{
		{
			dialect: Postgres,
			want: []string{
				`ALTER TABLE "posts" DROP CONSTRAINT "posts_author_fkey"`,
				`DROP TABLE "posts"`,
				`DROP TABLE "users"`,
			},
		},
		{
			dialect: SQLite,
			want:    []string{`DROP TABLE "posts"`, `DROP TABLE "users"`},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.dialect.String(), func(t *testing.T) {
			m := infer(t, blog, `{"tables": []}`)
			if diff := cmp.Diff(tc.want, renderAll(t, NewRenderer(tc.dialect), m)); diff != "" {
				t.Errorf("rendered statements mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRenderAlterColumn(t *testing.T) {
	previous := `{"tables": [{"name": "t", "columns": [{"name": "n", "type": "int", "nullable": true, "default": "1"}]}]}`
	next := `{"tables": [{"name": "t", "columns": [{"name": "n", "type": "bigint"}]}]}`
	m := infer(t, previous, next)

	testCases := []struct {
		dialect Dialect
		want    []string
		wantErr string
	}{
		{
			dialect: Postgres,
			want: []string{`ALTER TABLE "t" ALTER COLUMN "n" TYPE bigint USING "n"::bigint, ALTER COLUMN "n" SET NOT NULL, ALTER COLUMN "n" DROP DEFAULT`},
		},
		{
			dialect: MySQL,
			want:    []string{"ALTER TABLE `t` MODIFY COLUMN `n` bigint NOT NULL"},
		},
		{
			dialect: SQLite,
			wantErr: "sqlite cannot alter column n",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.dialect.String(), func(t *testing.T) {
			got, err := NewRenderer(tc.dialect).Render(m, m.Steps[0])
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Errorf("Render() error = %v, want %q", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Render() error = %v", err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Render() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRenderRenames(t *testing.T) {
	prev, _ := schema.DecodeDescription(strings.NewReader(`{"tables": [{"namespace": "app", "name": "accounts", "columns": [{"name": "mail", "type": "string"}]}]}`))
	next, _ := schema.DecodeDescription(strings.NewReader(`{"tables": [{"namespace": "app", "name": "users", "columns": [{"name": "email", "type": "string"}]}]}`))
	m, err := migration.Infer(prev, next, migration.RenameHints{
		Tables:  map[string]string{"app.accounts": "app.users"},
		Columns: map[migration.ColumnRef]string{{Table: "app.accounts", Column: "mail"}: "email"},
	})
	if err != nil {
		t.Fatalf("Infer() error = %v", err)
	}

	want := []string{
		`ALTER TABLE "app"."accounts" RENAME TO "users"`,
		`ALTER TABLE "app"."users" RENAME COLUMN "mail" TO "email"`,
	}
	if diff := cmp.Diff(want, renderAll(t, NewRenderer(Postgres), m)); diff != "" {
		t.Errorf("rendered statements mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderSQLiteForeignKeyOnExistingTable(t *testing.T) {
	previous := `{"tables": [{"name": "a", "columns": [{"name": "id", "type": "int"}]}, {"name": "b", "columns": [{"name": "a_id", "type": "int"}]}]}`
	next := `{"tables": [{"name": "a", "columns": [{"name": "id", "type": "int"}]}, {"name": "b", "columns": [{"name": "a_id", "type": "int"}],
		"foreignKeys": [{"name": "b_a_fkey", "columns": ["a_id"], "referencedTable": "a", "referencedColumns": ["id"]}]}]}`
	m := infer(t, previous, next)

	if _, err := NewRenderer(SQLite).Render(m, m.Steps[0]); err == nil {
		t.Errorf("Render() should refuse to add a foreign key to an existing sqlite table")
	}
	got, err := NewRenderer(Postgres).Render(m, m.Steps[0])
	if err != nil || len(got) != 1 {
		t.Errorf("postgres Render() = %v, %v", got, err)
	}
}

func TestQuote(t *testing.T) {
	testCases := []struct {
		dialect Dialect
		parts   []string
		want    string
	}{
		{dialect: Postgres, parts: []string{"public", "users"}, want: `"public"."users"`},
		{dialect: Postgres, parts: []string{"", `we"ird`}, want: `"we""ird"`},
		{dialect: MySQL, parts: []string{"app", "us`ers"}, want: "`app`.`us``ers`"},
		{dialect: SQLite, parts: []string{"users"}, want: `"users"`},
	}
	for _, tc := range testCases {
		if got := tc.dialect.Quote(tc.parts...); got != tc.want {
			t.Errorf("%s.Quote(%v) = %s, want %s", tc.dialect, tc.parts, got, tc.want)
		}
	}
}

func TestSQLiteFamilyRoundTrip(t *testing.T) {
	for family, declared := range sqliteTypes {
		if family == schema.FamilyEnum {
			continue
		}
		if got := SQLiteFamily(declared); got != family {
			t.Errorf("SQLiteFamily(%s) = %s, want %s", declared, got, family)
		}
	}
}
