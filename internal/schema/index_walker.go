package schema

type IndexWalker struct {
	schema *SqlSchema
	id     IndexID
}

func (i IndexWalker) ID() IndexID { return i.id }

func (i IndexWalker) index() *Index { return &i.schema.indexes[i.id] }

func (i IndexWalker) Name() string { return i.index().Name }

func (i IndexWalker) Kind() IndexKind { return i.index().Kind }

func (i IndexWalker) IsPrimaryKey() bool { return i.index().Kind == IndexPrimaryKey }

// IsUnique is true for unique indexes and primary keys.
func (i IndexWalker) IsUnique() bool { return i.index().Kind != IndexNormal }

func (i IndexWalker) Table() TableWalker {
	return TableWalker{schema: i.schema, id: i.index().TableID}
}

// Columns traverses the indexed columns in key order.
func (i IndexWalker) Columns() []IndexColumnWalker {
	lo, hi := rangeForKey(len(i.schema.indexColumns), func(n int) int { return int(i.schema.indexColumns[n].IndexID) }, int(i.id))
	out := make([]IndexColumnWalker, 0, hi-lo)
	for n := lo; n < hi; n++ {
		out = append(out, IndexColumnWalker{schema: i.schema, id: IndexColumnID(n)})
	}
	return out
}

func (i IndexWalker) ColumnNames() []string {
	cols := i.Columns()
	out := make([]string, len(cols))
	for n, c := range cols {
		out[n] = c.Column().Name()
	}
	return out
}

type IndexColumnWalker struct {
	schema *SqlSchema
	id     IndexColumnID
}

func (ic IndexColumnWalker) ID() IndexColumnID { return ic.id }

func (ic IndexColumnWalker) Column() ColumnWalker {
	return ColumnWalker{schema: ic.schema, id: ic.schema.indexColumns[ic.id].ColumnID}
}

func (ic IndexColumnWalker) Index() IndexWalker {
	return IndexWalker{schema: ic.schema, id: ic.schema.indexColumns[ic.id].IndexID}
}

func (ic IndexColumnWalker) SortOrder() SortOrder { return ic.schema.indexColumns[ic.id].SortOrder }
