package schema

type ColumnWalker struct {
	schema *SqlSchema
	id     ColumnID
}

func (c ColumnWalker) ID() ColumnID { return c.id }

func (c ColumnWalker) column() *Column { return &c.schema.columns[c.id] }

func (c ColumnWalker) Name() string { return c.column().Name }

func (c ColumnWalker) Table() TableWalker {
	return TableWalker{schema: c.schema, id: c.column().TableID}
}

func (c ColumnWalker) Type() ColumnType { return c.column().Type }

func (c ColumnWalker) Family() TypeFamily { return c.column().Type.Family }

func (c ColumnWalker) Arity() ColumnArity { return c.column().Type.Arity }

func (c ColumnWalker) IsNullable() bool { return c.column().Type.Arity == Nullable }

func (c ColumnWalker) IsRequired() bool { return c.column().Type.Arity == Required }

// Default returns the default expression as written in DDL.
func (c ColumnWalker) Default() (string, bool) {
	if d := c.column().Default; d != nil {
		return *d, true
	}
	return "", false
}

func (c ColumnWalker) IsAutoIncrement() bool { return c.column().AutoIncrement }

func (c ColumnWalker) IsPartOfPrimaryKey() bool {
	for _, ic := range c.Table().PrimaryKeyColumns() {
		if ic.Column().ID() == c.id {
			return true
		}
	}
	return false
}

func (c ColumnWalker) IsPartOfForeignKey() bool {
	for _, fk := range c.Table().ForeignKeys() {
		for _, fkc := range fk.Columns() {
			if fkc.ConstrainedColumn().ID() == c.id {
				return true
			}
		}
	}
	return false
}
