package schema

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// blogSchema declares columns out of table order so Build has to re-sort them.
func blogSchema(t *testing.T) *SqlSchema {
	t.Helper()
	b := NewBuilder()
	users := b.AddTable(Table{Name: "users"})
	posts := b.AddTable(Table{Name: "posts"})

	postID := b.AddColumn(posts, Column{Name: "id", Type: ColumnType{Family: FamilyInt}})
	userID := b.AddColumn(users, Column{Name: "id", Type: ColumnType{Family: FamilyInt}})
	authorID := b.AddColumn(posts, Column{Name: "author_id", Type: ColumnType{Family: FamilyInt}})
	email := b.AddColumn(users, Column{Name: "email", Type: ColumnType{Family: FamilyString, Arity: Nullable}})
	title := b.AddColumn(posts, Column{Name: "title", Type: ColumnType{Family: FamilyString}})

	b.AddIndex(posts, "posts_pkey", IndexPrimaryKey, postID)
	b.AddIndex(users, "users_email_key", IndexUnique, email)
	b.AddIndex(users, "users_pkey", IndexPrimaryKey, userID)
	b.AddIndex(posts, "posts_author_title_idx", IndexNormal, title, authorID)

	b.AddForeignKey(ForeignKey{
		ConstrainedTable: posts,
		ReferencedTable:  users,
		Name:             "posts_author_id_fkey",
		OnDelete:         Cascade,
	}, [2]ColumnID{authorID, userID})

	s, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return s
}

func TestBuildSortsChildrenByParent(t *testing.T) {
	s := blogSchema(t)

	for i := 1; i < len(s.columns); i++ {
		if s.columns[i-1].TableID > s.columns[i].TableID {
			t.Fatalf("columns not sorted by table: %v", s.columns)
		}
	}
	for i := 1; i < len(s.indexes); i++ {
		if s.indexes[i-1].TableID > s.indexes[i].TableID {
			t.Fatalf("indexes not sorted by table: %v", s.indexes)
		}
	}
	for i := 1; i < len(s.indexColumns); i++ {
		if s.indexColumns[i-1].IndexID > s.indexColumns[i].IndexID {
			t.Fatalf("index columns not sorted by index: %v", s.indexColumns)
		}
	}

	users, _ := s.FindTable("users")
	posts, _ := s.FindTable("posts")

	if diff := cmp.Diff([]string{"id", "email"}, columnNames(users)); diff != "" {
		t.Errorf("users columns mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"id", "author_id", "title"}, columnNames(posts)); diff != "" {
		t.Errorf("posts columns mismatch (-want +got):\n%s", diff)
	}

	idx, ok := posts.Index("posts_author_title_idx")
	if !ok {
		t.Fatal("posts_author_title_idx not found")
	}
	if diff := cmp.Diff([]string{"title", "author_id"}, idx.ColumnNames()); diff != "" {
		t.Errorf("index key order changed (-want +got):\n%s", diff)
	}
}

func TestTableWalker(t *testing.T) {
	s := blogSchema(t)
	users, _ := s.FindTable("users")
	posts, _ := s.FindTable("posts")

	pk, ok := users.PrimaryKey()
	if !ok || pk.Name() != "users_pkey" {
		t.Errorf("users primary key = %v, %v; want users_pkey", pk.Name(), ok)
	}
	if got := users.PrimaryKeyColumnsCount(); got != 1 {
		t.Errorf("PrimaryKeyColumnsCount() = %d, want 1", got)
	}
	if users.ForeignKeyCount() != 0 || posts.ForeignKeyCount() != 1 {
		t.Errorf("ForeignKeyCount() users=%d posts=%d, want 0 and 1", users.ForeignKeyCount(), posts.ForeignKeyCount())
	}

	refs := users.ReferencingForeignKeys()
	if len(refs) != 1 || refs[0].Name() != "posts_author_id_fkey" {
		t.Fatalf("ReferencingForeignKeys() = %v, want posts_author_id_fkey", refs)
	}
	if refs[0].ConstrainedTable().Name() != "posts" || refs[0].ReferencedTable().Name() != "users" {
		t.Errorf("foreign key tables = %s -> %s", refs[0].ConstrainedTable().Name(), refs[0].ReferencedTable().Name())
	}
	if refs[0].OnDelete() != Cascade {
		t.Errorf("OnDelete() = %v, want CASCADE", refs[0].OnDelete())
	}
	if len(posts.ReferencingForeignKeys()) != 0 {
		t.Errorf("posts should not be referenced")
	}

	authorID, ok := posts.Column("author_id")
	if !ok {
		t.Fatal("author_id not found")
	}
	if _, ok := posts.ForeignKeyForColumn(authorID.ID()); !ok {
		t.Errorf("ForeignKeyForColumn(author_id) not found")
	}
	if !authorID.IsPartOfForeignKey() || authorID.IsPartOfPrimaryKey() {
		t.Errorf("author_id fk=%v pk=%v, want fk only", authorID.IsPartOfForeignKey(), authorID.IsPartOfPrimaryKey())
	}

	if _, ok := posts.Column("AUTHOR_ID"); ok {
		t.Errorf("Column() should be case sensitive")
	}
	if c, ok := posts.ColumnCaseInsensitive("AUTHOR_ID"); !ok || c.ID() != authorID.ID() {
		t.Errorf("ColumnCaseInsensitive() did not find author_id")
	}
	if _, ok := s.FindTable("comments"); ok {
		t.Errorf("FindTable(comments) should be absent")
	}
}

func TestNamespaces(t *testing.T) {
	b := NewBuilder()
	public := b.AddNamespace("public")
	audit := b.AddNamespace("audit")
	if again := b.AddNamespace("public"); again != public {
		t.Errorf("AddNamespace() should reuse existing namespace ids")
	}
	b.AddTable(Table{Namespace: public, Name: "events"})
	b.AddTable(Table{Namespace: audit, Name: "events"})
	b.AddTable(Table{Name: "settings"})

	s, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	tbl, ok := s.FindTableInNamespace("audit", "events")
	if !ok {
		t.Fatal("audit.events not found")
	}
	if tbl.QualifiedName() != "audit.events" || tbl.NamespaceID() != audit {
		t.Errorf("got %s in namespace %d", tbl.QualifiedName(), tbl.NamespaceID())
	}
	if got, _ := s.FindTable("public.events"); got.Namespace() != "public" {
		t.Errorf("FindTable(public.events) namespace = %q", got.Namespace())
	}
	settings, ok := s.FindTable("settings")
	if !ok || settings.Namespace() != "" || settings.NamespaceID() != NoNamespace {
		t.Errorf("table without a namespace = %q (id %d), want no namespace", settings.Namespace(), settings.NamespaceID())
	}
	if id, ok := s.FindNamespace("missing"); ok || id != NoNamespace {
		t.Errorf("FindNamespace(missing) = %d, %v", id, ok)
	}
}

func TestBuildValidation(t *testing.T) {
	testCases := []struct {
		name    string
		build   func(b *Builder)
		wantErr string
	}{
		{
			name: "two primary keys",
			build: func(b *Builder) {
				tbl := b.AddTable(Table{Name: "t"})
				a := b.AddColumn(tbl, Column{Name: "a"})
				c := b.AddColumn(tbl, Column{Name: "b"})
				b.AddIndex(tbl, "pk1", IndexPrimaryKey, a)
				b.AddIndex(tbl, "pk2", IndexPrimaryKey, c)
			},
			wantErr: "2 primary keys",
		},
		{
			name: "index over another table's column",
			build: func(b *Builder) {
				t1 := b.AddTable(Table{Name: "t1"})
				t2 := b.AddTable(Table{Name: "t2"})
				col := b.AddColumn(t2, Column{Name: "a"})
				b.AddIndex(t1, "idx", IndexNormal, col)
			},
			wantErr: "another table",
		},
		{
			name: "table in unknown namespace",
			build: func(b *Builder) {
				b.AddNamespace("public")
				b.AddTable(Table{Namespace: NamespaceID(2), Name: "t"})
			},
			wantErr: "unknown namespace",
		},
		{
			name: "column on unknown table",
			build: func(b *Builder) {
				b.AddColumn(TableID(3), Column{Name: "a"})
			},
			wantErr: "unknown table",
		},
		{
			name: "duplicate column",
			build: func(b *Builder) {
				tbl := b.AddTable(Table{Name: "t"})
				b.AddColumn(tbl, Column{Name: "a"})
				b.AddColumn(tbl, Column{Name: "a"})
			},
			wantErr: "duplicate column",
		},
		{
			name: "duplicate table",
			build: func(b *Builder) {
				b.AddTable(Table{Name: "t"})
				b.AddTable(Table{Name: "t"})
			},
			wantErr: "duplicate table",
		},
		{
			name: "foreign key column on wrong table",
			build: func(b *Builder) {
				t1 := b.AddTable(Table{Name: "t1"})
				t2 := b.AddTable(Table{Name: "t2"})
				a := b.AddColumn(t1, Column{Name: "a"})
				c := b.AddColumn(t2, Column{Name: "c"})
				b.AddForeignKey(ForeignKey{ConstrainedTable: t1, ReferencedTable: t2, Name: "fk"}, [2]ColumnID{c, a})
			},
			wantErr: "constrained column",
		},
		{
			name: "empty index",
			build: func(b *Builder) {
				tbl := b.AddTable(Table{Name: "t"})
				b.AddIndex(tbl, "idx", IndexNormal)
			},
			wantErr: "no columns",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b := NewBuilder()
			tc.build(b)
			_, err := b.Build()
			if err == nil {
				t.Fatalf("Build() expected error containing %q", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("Build() error = %v, want it to contain %q", err, tc.wantErr)
			}
		})
	}
}

func TestRangeForKey(t *testing.T) {
	keys := []int{0, 0, 1, 3, 3, 3}
	testCases := []struct {
		key    int
		lo, hi int
	}{
		{key: 0, lo: 0, hi: 2},
		{key: 1, lo: 2, hi: 3},
		{key: 2, lo: 3, hi: 3},
		{key: 3, lo: 3, hi: 6},
		{key: 4, lo: 6, hi: 6},
	}
	for _, tc := range testCases {
		lo, hi := rangeForKey(len(keys), func(i int) int { return keys[i] }, tc.key)
		if lo != tc.lo || hi != tc.hi {
			t.Errorf("rangeForKey(%d) = [%d, %d), want [%d, %d)", tc.key, lo, hi, tc.lo, tc.hi)
		}
	}
}

func columnNames(t TableWalker) []string {
	var out []string
	for _, c := range t.Columns() {
		out = append(out, c.Name())
	}
	return out
}
