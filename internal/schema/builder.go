package schema

import (
	"fmt"
	"sort"
)

// Builder accumulates entities in any order. The ids it hands out are only
// meaningful for linking entities inside the same Builder: Build re-sorts the
// child slices by parent and renumbers them.
type Builder struct {
	s SqlSchema
}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) AddNamespace(name string) NamespaceID {
	if id, ok := b.s.FindNamespace(name); ok {
		return id
	}
	b.s.namespaces = append(b.s.namespaces, name)
	return NamespaceID(len(b.s.namespaces))
}

func (b *Builder) AddTable(table Table) TableID {
	b.s.tables = append(b.s.tables, table)
	return TableID(len(b.s.tables) - 1)
}

func (b *Builder) AddColumn(table TableID, column Column) ColumnID {
	column.TableID = table
	b.s.columns = append(b.s.columns, column)
	return ColumnID(len(b.s.columns) - 1)
}

// AddIndex adds an index over columns, in key order, all ascending.
func (b *Builder) AddIndex(table TableID, name string, kind IndexKind, columns ...ColumnID) IndexID {
	b.s.indexes = append(b.s.indexes, Index{TableID: table, Name: name, Kind: kind})
	id := IndexID(len(b.s.indexes) - 1)
	for _, c := range columns {
		b.AddIndexColumn(id, c, Ascending)
	}
	return id
}

func (b *Builder) AddIndexColumn(index IndexID, column ColumnID, order SortOrder) {
	b.s.indexColumns = append(b.s.indexColumns, IndexColumn{IndexID: index, ColumnID: column, SortOrder: order})
}

func (b *Builder) AddForeignKey(fk ForeignKey, pairs ...[2]ColumnID) ForeignKeyID {
	b.s.foreignKeys = append(b.s.foreignKeys, fk)
	id := ForeignKeyID(len(b.s.foreignKeys) - 1)
	for _, p := range pairs {
		b.AddForeignKeyColumn(id, p[0], p[1])
	}
	return id
}

func (b *Builder) AddForeignKeyColumn(fk ForeignKeyID, constrained, referenced ColumnID) {
	b.s.foreignKeyColumns = append(b.s.foreignKeyColumns, ForeignKeyColumn{
		ForeignKeyID: fk,
		Constrained:  constrained,
		Referenced:   referenced,
	})
}

// Build validates the accumulated entities and returns the immutable schema.
// The Builder must not be reused afterwards.
func (b *Builder) Build() (*SqlSchema, error) {
	s := b.s
	b.s = SqlSchema{}

	if err := validateReferences(&s); err != nil {
		return nil, err
	}

	columnRemap := stableSortByParent(len(s.columns), func(i int) int { return int(s.columns[i].TableID) }, func(perm []int) {
		s.columns = permute(s.columns, perm)
	})
	for i := range s.indexColumns {
		s.indexColumns[i].ColumnID = ColumnID(columnRemap[s.indexColumns[i].ColumnID])
	}
	for i := range s.foreignKeyColumns {
		s.foreignKeyColumns[i].Constrained = ColumnID(columnRemap[s.foreignKeyColumns[i].Constrained])
		s.foreignKeyColumns[i].Referenced = ColumnID(columnRemap[s.foreignKeyColumns[i].Referenced])
	}

	indexRemap := stableSortByParent(len(s.indexes), func(i int) int { return int(s.indexes[i].TableID) }, func(perm []int) {
		s.indexes = permute(s.indexes, perm)
	})
	for i := range s.indexColumns {
		s.indexColumns[i].IndexID = IndexID(indexRemap[s.indexColumns[i].IndexID])
	}
	stableSortByParent(len(s.indexColumns), func(i int) int { return int(s.indexColumns[i].IndexID) }, func(perm []int) {
		s.indexColumns = permute(s.indexColumns, perm)
	})

	fkRemap := stableSortByParent(len(s.foreignKeys), func(i int) int { return int(s.foreignKeys[i].ConstrainedTable) }, func(perm []int) {
		s.foreignKeys = permute(s.foreignKeys, perm)
	})
	for i := range s.foreignKeyColumns {
		s.foreignKeyColumns[i].ForeignKeyID = ForeignKeyID(fkRemap[s.foreignKeyColumns[i].ForeignKeyID])
	}
	stableSortByParent(len(s.foreignKeyColumns), func(i int) int { return int(s.foreignKeyColumns[i].ForeignKeyID) }, func(perm []int) {
		s.foreignKeyColumns = permute(s.foreignKeyColumns, perm)
	})

	if err := validateStructure(&s); err != nil {
		return nil, err
	}

	return &s, nil
}

// stableSortByParent computes the permutation that stably sorts n elements by
// key, hands it to apply and returns the old-position to new-position map.
func stableSortByParent(n int, key func(i int) int, apply func(perm []int)) []int {
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(a, b int) bool { return key(perm[a]) < key(perm[b]) })
	apply(perm)

	remap := make([]int, n)
	for newPos, oldPos := range perm {
		remap[oldPos] = newPos
	}
	return remap
}

func permute[T any](in []T, perm []int) []T {
	out := make([]T, len(in))
	for newPos, oldPos := range perm {
		out[newPos] = in[oldPos]
	}
	return out
}

func validateReferences(s *SqlSchema) error {
	for i, t := range s.tables {
		if t.Name == "" {
			return fmt.Errorf("table %d has no name", i)
		}
		if t.Namespace < NoNamespace || int(t.Namespace) > len(s.namespaces) {
			return fmt.Errorf("table %s references unknown namespace %d", t.Name, t.Namespace)
		}
	}
	for i, c := range s.columns {
		if !s.ContainsTable(c.TableID) {
			return fmt.Errorf("column %d (%s) references unknown table %d", i, c.Name, c.TableID)
		}
		if c.Name == "" {
			return fmt.Errorf("column %d of table %s has no name", i, s.tables[c.TableID].Name)
		}
	}
	for i, idx := range s.indexes {
		if !s.ContainsTable(idx.TableID) {
			return fmt.Errorf("index %d (%s) references unknown table %d", i, idx.Name, idx.TableID)
		}
	}
	for _, ic := range s.indexColumns {
		if !s.ContainsIndex(ic.IndexID) {
			return fmt.Errorf("index column references unknown index %d", ic.IndexID)
		}
		if !s.ContainsColumn(ic.ColumnID) {
			return fmt.Errorf("index %s references unknown column %d", s.indexes[ic.IndexID].Name, ic.ColumnID)
		}
		if s.columns[ic.ColumnID].TableID != s.indexes[ic.IndexID].TableID {
			return fmt.Errorf("index %s covers column %s of another table", s.indexes[ic.IndexID].Name, s.columns[ic.ColumnID].Name)
		}
	}
	for i, fk := range s.foreignKeys {
		if !s.ContainsTable(fk.ConstrainedTable) || !s.ContainsTable(fk.ReferencedTable) {
			return fmt.Errorf("foreign key %d (%s) references an unknown table", i, fk.Name)
		}
	}
	for _, fkc := range s.foreignKeyColumns {
		if !s.ContainsForeignKey(fkc.ForeignKeyID) {
			return fmt.Errorf("foreign key column references unknown foreign key %d", fkc.ForeignKeyID)
		}
		fk := s.foreignKeys[fkc.ForeignKeyID]
		if !s.ContainsColumn(fkc.Constrained) || s.columns[fkc.Constrained].TableID != fk.ConstrainedTable {
			return fmt.Errorf("foreign key %s: constrained column %d is not on table %s", fk.Name, fkc.Constrained, s.tables[fk.ConstrainedTable].Name)
		}
		if !s.ContainsColumn(fkc.Referenced) || s.columns[fkc.Referenced].TableID != fk.ReferencedTable {
			return fmt.Errorf("foreign key %s: referenced column %d is not on table %s", fk.Name, fkc.Referenced, s.tables[fk.ReferencedTable].Name)
		}
	}
	return nil
}

// validateStructure runs the checks that are easier on sorted data.
func validateStructure(s *SqlSchema) error {
	seenTables := make(map[string]struct{}, len(s.tables))
	for i := range s.tables {
		key := s.Table(TableID(i)).QualifiedName()
		if _, dup := seenTables[key]; dup {
			return fmt.Errorf("duplicate table %s", s.Table(TableID(i)).QualifiedName())
		}
		seenTables[key] = struct{}{}
	}

	for _, t := range s.Tables() {
		seenColumns := make(map[string]struct{})
		for _, c := range t.Columns() {
			if _, dup := seenColumns[c.Name()]; dup {
				return fmt.Errorf("duplicate column %s on table %s", c.Name(), t.Name())
			}
			seenColumns[c.Name()] = struct{}{}
		}

		primaryKeys := 0
		for _, idx := range t.Indexes() {
			if idx.IsPrimaryKey() {
				primaryKeys++
			}
			if len(idx.Columns()) == 0 {
				return fmt.Errorf("index %s on table %s has no columns", idx.Name(), t.Name())
			}
		}
		if primaryKeys > 1 {
			return fmt.Errorf("table %s has %d primary keys", t.Name(), primaryKeys)
		}

		for _, fk := range t.ForeignKeys() {
			if len(fk.Columns()) == 0 {
				return fmt.Errorf("foreign key %s on table %s has no columns", fk.Name(), t.Name())
			}
		}
	}
	return nil
}
