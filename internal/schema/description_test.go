package schema

import (
	"strings"
	"testing"
)

const blogDescription = `{
  "tables": [
    {
      "name": "posts",
      "columns": [
        {"name": "id", "type": "int", "autoIncrement": true},
        {"name": "author_id", "type": "int"},
        {"name": "body", "type": "string", "nativeType": "text", "nullable": true}
      ],
      "primaryKey": {"columns": ["id"]},
      "indexes": [{"name": "posts_author_idx", "columns": ["author_id"]}],
      "foreignKeys": [
        {"name": "posts_author_fkey", "columns": ["author_id"], "referencedTable": "users",
         "referencedColumns": ["id"], "onDelete": "set_null"}
      ]
    },
    {
      "name": "users",
      "columns": [{"name": "id", "type": "bigint"}],
      "primaryKey": {"name": "users_pk", "columns": ["id"]}
    }
  ]
}`

func TestDecodeDescription(t *testing.T) {
	s, err := DecodeDescription(strings.NewReader(blogDescription))
	if err != nil {
		t.Fatalf("DecodeDescription() error = %v", err)
	}

	posts, ok := s.FindTable("posts")
	if !ok {
		t.Fatal("posts not found")
	}
	if pk, ok := posts.PrimaryKey(); !ok || pk.Name() != "posts_pkey" {
		t.Errorf("posts primary key = %q, want generated posts_pkey", pk.Name())
	}
	body, _ := posts.Column("body")
	if !body.IsNullable() || body.Type().FullDataType != "text" || body.Family() != FamilyString {
		t.Errorf("body column = %+v", body.Type())
	}
	id, _ := posts.Column("id")
	if !id.IsAutoIncrement() || !id.IsRequired() {
		t.Errorf("id should be a required autoincrement column")
	}

	fks := posts.ForeignKeys()
	if len(fks) != 1 {
		t.Fatalf("posts has %d foreign keys, want 1", len(fks))
	}
	if fks[0].ReferencedTable().Name() != "users" || fks[0].OnDelete() != SetNull {
		t.Errorf("foreign key = %s on delete %v", fks[0].ReferencedTable().Name(), fks[0].OnDelete())
	}

	users, _ := s.FindTable("users")
	if pk, _ := users.PrimaryKey(); pk.Name() != "users_pk" {
		t.Errorf("users primary key = %q", pk.Name())
	}
}

func TestDecodeDescriptionErrors(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "unknown type family",
			content: `{"tables": [{"name": "t", "columns": [{"name": "a", "type": "geometry"}]}]}`,
			wantErr: "unknown type family",
		},
		{
			name:    "unknown column in index",
			content: `{"tables": [{"name": "t", "columns": [{"name": "a", "type": "int"}], "indexes": [{"name": "i", "columns": ["b"]}]}]}`,
			wantErr: "has no column b",
		},
		{
			name:    "unknown referenced table",
			content: `{"tables": [{"name": "t", "columns": [{"name": "a", "type": "int"}], "foreignKeys": [{"name": "f", "columns": ["a"], "referencedTable": "u", "referencedColumns": ["id"]}]}]}`,
			wantErr: "unknown table u",
		},
		{
			name:    "unknown field",
			content: `{"tables": [], "views": []}`,
			wantErr: "unknown field",
		},
		{
			name:    "bad action",
			content: `{"tables": [{"name": "t", "columns": [{"name": "a", "type": "int"}], "foreignKeys": [{"name": "f", "columns": ["a"], "referencedTable": "t", "referencedColumns": ["a"], "onDelete": "explode"}]}]}`,
			wantErr: "unknown onDelete action",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeDescription(strings.NewReader(tc.content))
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("DecodeDescription() error = %v, want %q", err, tc.wantErr)
			}
		})
	}
}

func TestDescriptionInNamespace(t *testing.T) {
	d, err := ReadDescription(strings.NewReader(blogDescription))
	if err != nil {
		t.Fatalf("ReadDescription() error = %v", err)
	}

	s, err := d.InNamespace("app").Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if _, ok := s.FindTableInNamespace("app", "posts"); !ok {
		t.Errorf("posts not placed in namespace app")
	}
	posts, _ := s.FindTableInNamespace("app", "posts")
	fks := posts.ForeignKeys()
	if len(fks) != 1 || fks[0].ReferencedTable().Namespace() != "app" {
		t.Errorf("foreign key does not reference app.users")
	}
	if d.Tables[0].Namespace != "" {
		t.Errorf("InNamespace() modified its receiver")
	}
}
