package schema

type ForeignKeyWalker struct {
	schema *SqlSchema
	id     ForeignKeyID
}

func (f ForeignKeyWalker) ID() ForeignKeyID { return f.id }

func (f ForeignKeyWalker) foreignKey() *ForeignKey { return &f.schema.foreignKeys[f.id] }

// Name is the constraint name. Introspected foreign keys may be unnamed.
func (f ForeignKeyWalker) Name() string { return f.foreignKey().Name }

func (f ForeignKeyWalker) ConstrainedTable() TableWalker {
	return TableWalker{schema: f.schema, id: f.foreignKey().ConstrainedTable}
}

func (f ForeignKeyWalker) ReferencedTable() TableWalker {
	return TableWalker{schema: f.schema, id: f.foreignKey().ReferencedTable}
}

func (f ForeignKeyWalker) OnDelete() ForeignKeyAction { return f.foreignKey().OnDelete }

func (f ForeignKeyWalker) OnUpdate() ForeignKeyAction { return f.foreignKey().OnUpdate }

func (f ForeignKeyWalker) Columns() []ForeignKeyColumnWalker {
	lo, hi := rangeForKey(len(f.schema.foreignKeyColumns), func(i int) int { return int(f.schema.foreignKeyColumns[i].ForeignKeyID) }, int(f.id))
	out := make([]ForeignKeyColumnWalker, 0, hi-lo)
	for i := lo; i < hi; i++ {
		out = append(out, ForeignKeyColumnWalker{schema: f.schema, id: ForeignKeyColumnID(i)})
	}
	return out
}

func (f ForeignKeyWalker) ConstrainedColumnNames() []string {
	cols := f.Columns()
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.ConstrainedColumn().Name()
	}
	return out
}

func (f ForeignKeyWalker) ReferencedColumnNames() []string {
	cols := f.Columns()
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.ReferencedColumn().Name()
	}
	return out
}

type ForeignKeyColumnWalker struct {
	schema *SqlSchema
	id     ForeignKeyColumnID
}

func (c ForeignKeyColumnWalker) ConstrainedColumn() ColumnWalker {
	return ColumnWalker{schema: c.schema, id: c.schema.foreignKeyColumns[c.id].Constrained}
}

func (c ForeignKeyColumnWalker) ReferencedColumn() ColumnWalker {
	return ColumnWalker{schema: c.schema, id: c.schema.foreignKeyColumns[c.id].Referenced}
}
