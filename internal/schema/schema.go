// Package schema describes the structure of a relational database as flat,
// parent-sorted slices addressed by integer ids. Related entities are reached
// through walkers, small (schema, id) values that never copy entity data.
package schema

import (
	"sort"
	"strings"
)

type (
	NamespaceID        int
	TableID            int
	ColumnID           int
	IndexID            int
	IndexColumnID      int
	ForeignKeyID       int
	ForeignKeyColumnID int
)

// NoNamespace marks a table that does not live in a named namespace. It is
// the zero value, so a Table without a namespace set has none. Namespace ids
// handed out by Builder.AddNamespace start at 1.
const NoNamespace NamespaceID = 0

type Table struct {
	Namespace   NamespaceID
	Name        string
	IsPartition bool
}

type Column struct {
	TableID       TableID
	Name          string
	Type          ColumnType
	Default       *string
	AutoIncrement bool
}

type IndexKind int

const (
	IndexNormal IndexKind = iota
	IndexUnique
	IndexPrimaryKey
)

func (k IndexKind) String() string {
	switch k {
	case IndexUnique:
		return "unique"
	case IndexPrimaryKey:
		return "primary key"
	default:
		return "normal"
	}
}

type Index struct {
	TableID TableID
	Name    string
	Kind    IndexKind
}

type SortOrder int

const (
	Ascending SortOrder = iota
	Descending
)

type IndexColumn struct {
	IndexID   IndexID
	ColumnID  ColumnID
	SortOrder SortOrder
}

type ForeignKeyAction int

const (
	NoAction ForeignKeyAction = iota
	Restrict
	Cascade
	SetNull
	SetDefault
)

var foreignKeyActionNames = map[ForeignKeyAction]string{
	NoAction:   "NO ACTION",
	Restrict:   "RESTRICT",
	Cascade:    "CASCADE",
	SetNull:    "SET NULL",
	SetDefault: "SET DEFAULT",
}

func (a ForeignKeyAction) String() string {
	return foreignKeyActionNames[a]
}

// ParseForeignKeyAction accepts the SQL spelling of a referential action,
// case-insensitively and with either spaces or underscores. Empty means NO ACTION.
func ParseForeignKeyAction(s string) (ForeignKeyAction, bool) {
	normalized := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "_", " "))
	if normalized == "" {
		return NoAction, true
	}
	for action, name := range foreignKeyActionNames {
		if name == normalized {
			return action, true
		}
	}
	return NoAction, false
}

type ForeignKey struct {
	ConstrainedTable TableID
	ReferencedTable  TableID
	Name             string
	OnDelete         ForeignKeyAction
	OnUpdate         ForeignKeyAction
}

type ForeignKeyColumn struct {
	ForeignKeyID ForeignKeyID
	Constrained  ColumnID
	Referenced   ColumnID
}

// SqlSchema is an immutable description of a database. Child slices are
// sorted by their parent id so that children of one parent form a
// contiguous range.
type SqlSchema struct {
	namespaces        []string
	tables            []Table
	columns           []Column
	indexes           []Index
	indexColumns      []IndexColumn
	foreignKeys       []ForeignKey
	foreignKeyColumns []ForeignKeyColumn
}

func (s *SqlSchema) TableCount() int { return len(s.tables) }

func (s *SqlSchema) ColumnCount() int { return len(s.columns) }

func (s *SqlSchema) IndexCount() int { return len(s.indexes) }

func (s *SqlSchema) ForeignKeyCount() int { return len(s.foreignKeys) }

func (s *SqlSchema) Namespaces() []string {
	out := make([]string, len(s.namespaces))
	copy(out, s.namespaces)
	return out
}

// Namespace returns the namespace name for id, or "" when it is undefined.
func (s *SqlSchema) Namespace(id NamespaceID) string {
	if id <= NoNamespace || int(id) > len(s.namespaces) {
		return ""
	}
	return s.namespaces[id-1]
}

func (s *SqlSchema) FindNamespace(name string) (NamespaceID, bool) {
	for i, ns := range s.namespaces {
		if ns == name {
			return NamespaceID(i + 1), true
		}
	}
	return NoNamespace, false
}

func (s *SqlSchema) Table(id TableID) TableWalker {
	return TableWalker{schema: s, id: id}
}

func (s *SqlSchema) Column(id ColumnID) ColumnWalker {
	return ColumnWalker{schema: s, id: id}
}

func (s *SqlSchema) Index(id IndexID) IndexWalker {
	return IndexWalker{schema: s, id: id}
}

func (s *SqlSchema) ForeignKey(id ForeignKeyID) ForeignKeyWalker {
	return ForeignKeyWalker{schema: s, id: id}
}

// Tables walks every table in declaration order.
func (s *SqlSchema) Tables() []TableWalker {
	out := make([]TableWalker, len(s.tables))
	for i := range s.tables {
		out[i] = s.Table(TableID(i))
	}
	return out
}

// FindTable looks a table up by name in any namespace. A name of the form
// "namespace.table" is matched against the qualified name first.
func (s *SqlSchema) FindTable(name string) (TableWalker, bool) {
	for i := range s.tables {
		t := s.Table(TableID(i))
		if t.QualifiedName() == name {
			return t, true
		}
	}
	for i := range s.tables {
		if s.tables[i].Name == name {
			return s.Table(TableID(i)), true
		}
	}
	return TableWalker{}, false
}

func (s *SqlSchema) FindTableInNamespace(namespace, name string) (TableWalker, bool) {
	for i := range s.tables {
		t := s.Table(TableID(i))
		if t.Name() == name && t.Namespace() == namespace {
			return t, true
		}
	}
	return TableWalker{}, false
}

// ContainsTable reports whether id addresses a table of this schema.
func (s *SqlSchema) ContainsTable(id TableID) bool { return id >= 0 && int(id) < len(s.tables) }

func (s *SqlSchema) ContainsColumn(id ColumnID) bool { return id >= 0 && int(id) < len(s.columns) }

func (s *SqlSchema) ContainsIndex(id IndexID) bool { return id >= 0 && int(id) < len(s.indexes) }

func (s *SqlSchema) ContainsForeignKey(id ForeignKeyID) bool {
	return id >= 0 && int(id) < len(s.foreignKeys)
}

// rangeForKey returns the half-open range of positions in a slice of length n,
// sorted by key, whose key equals k.
func rangeForKey(n int, key func(i int) int, k int) (int, int) {
	lo := sort.Search(n, func(i int) bool { return key(i) >= k })
	hi := sort.Search(n, func(i int) bool { return key(i) > k })
	return lo, hi
}
