package schema

import "strings"

// TableWalker traverses a table.
type TableWalker struct {
	schema *SqlSchema
	id     TableID
}

func (t TableWalker) ID() TableID { return t.id }

func (t TableWalker) Schema() *SqlSchema { return t.schema }

func (t TableWalker) table() *Table { return &t.schema.tables[t.id] }

func (t TableWalker) Name() string { return t.table().Name }

// QualifiedName is "namespace.name", or just the name outside a namespace.
func (t TableWalker) QualifiedName() string {
	if ns := t.Namespace(); ns != "" {
		return ns + "." + t.Name()
	}
	return t.Name()
}

func (t TableWalker) NamespaceID() NamespaceID { return t.table().Namespace }

// Namespace returns the name of the table's namespace, or "" when undefined.
func (t TableWalker) Namespace() string {
	return t.schema.Namespace(t.table().Namespace)
}

func (t TableWalker) IsPartition() bool { return t.table().IsPartition }

func (t TableWalker) columnsRange() (int, int) {
	return rangeForKey(len(t.schema.columns), func(i int) int { return int(t.schema.columns[i].TableID) }, int(t.id))
}

// Columns traverses the table's columns in declaration order.
func (t TableWalker) Columns() []ColumnWalker {
	lo, hi := t.columnsRange()
	out := make([]ColumnWalker, 0, hi-lo)
	for i := lo; i < hi; i++ {
		out = append(out, ColumnWalker{schema: t.schema, id: ColumnID(i)})
	}
	return out
}

func (t TableWalker) ColumnCount() int {
	lo, hi := t.columnsRange()
	return hi - lo
}

// Column gets a column in the table, by name.
func (t TableWalker) Column(name string) (ColumnWalker, bool) {
	for _, c := range t.Columns() {
		if c.Name() == name {
			return c, true
		}
	}
	return ColumnWalker{}, false
}

func (t TableWalker) ColumnCaseInsensitive(name string) (ColumnWalker, bool) {
	for _, c := range t.Columns() {
		if strings.EqualFold(c.Name(), name) {
			return c, true
		}
	}
	return ColumnWalker{}, false
}

func (t TableWalker) Indexes() []IndexWalker {
	lo, hi := rangeForKey(len(t.schema.indexes), func(i int) int { return int(t.schema.indexes[i].TableID) }, int(t.id))
	out := make([]IndexWalker, 0, hi-lo)
	for i := lo; i < hi; i++ {
		out = append(out, IndexWalker{schema: t.schema, id: IndexID(i)})
	}
	return out
}

func (t TableWalker) Index(name string) (IndexWalker, bool) {
	for _, idx := range t.Indexes() {
		if idx.Name() == name {
			return idx, true
		}
	}
	return IndexWalker{}, false
}

func (t TableWalker) PrimaryKey() (IndexWalker, bool) {
	for _, idx := range t.Indexes() {
		if idx.IsPrimaryKey() {
			return idx, true
		}
	}
	return IndexWalker{}, false
}

// PrimaryKeyColumns returns nil when the table has no primary key.
func (t TableWalker) PrimaryKeyColumns() []IndexColumnWalker {
	pk, ok := t.PrimaryKey()
	if !ok {
		return nil
	}
	return pk.Columns()
}

func (t TableWalker) PrimaryKeyColumnsCount() int {
	return len(t.PrimaryKeyColumns())
}

func (t TableWalker) foreignKeysRange() (int, int) {
	return rangeForKey(len(t.schema.foreignKeys), func(i int) int { return int(t.schema.foreignKeys[i].ConstrainedTable) }, int(t.id))
}

// ForeignKeys traverses the foreign keys constraining this table.
func (t TableWalker) ForeignKeys() []ForeignKeyWalker {
	lo, hi := t.foreignKeysRange()
	out := make([]ForeignKeyWalker, 0, hi-lo)
	for i := lo; i < hi; i++ {
		out = append(out, ForeignKeyWalker{schema: t.schema, id: ForeignKeyID(i)})
	}
	return out
}

func (t TableWalker) ForeignKeyCount() int {
	lo, hi := t.foreignKeysRange()
	return hi - lo
}

// ForeignKeyForColumn finds a single-column foreign key on column.
func (t TableWalker) ForeignKeyForColumn(column ColumnID) (ForeignKeyWalker, bool) {
	for _, fk := range t.ForeignKeys() {
		cols := fk.Columns()
		if len(cols) == 1 && cols[0].ConstrainedColumn().ID() == column {
			return fk, true
		}
	}
	return ForeignKeyWalker{}, false
}

// ReferencingForeignKeys traverses foreign keys of other tables that
// reference this one. There is no index for incoming references, so every
// call scans all foreign keys of the schema.
func (t TableWalker) ReferencingForeignKeys() []ForeignKeyWalker {
	var out []ForeignKeyWalker
	for i, fk := range t.schema.foreignKeys {
		if fk.ReferencedTable == t.id && fk.ConstrainedTable != t.id {
			out = append(out, ForeignKeyWalker{schema: t.schema, id: ForeignKeyID(i)})
		}
	}
	return out
}
