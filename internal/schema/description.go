package schema

import (
	"encoding/json"
	"fmt"
	"io"
)

// Description is the JSON form of a schema accepted from callers. It is a
// plain nested document; Build lowers it into the arena representation.
type Description struct {
	Tables []TableDescription `json:"tables"`
}

type TableDescription struct {
	Namespace   string                  `json:"namespace,omitempty"`
	Name        string                  `json:"name"`
	Partition   bool                    `json:"partition,omitempty"`
	Columns     []ColumnDescription     `json:"columns"`
	PrimaryKey  *PrimaryKeyDescription  `json:"primaryKey,omitempty"`
	Indexes     []IndexDescription      `json:"indexes,omitempty"`
	ForeignKeys []ForeignKeyDescription `json:"foreignKeys,omitempty"`
}

type ColumnDescription struct {
	Name          string     `json:"name"`
	Type          TypeFamily `json:"type"`
	NativeType    string     `json:"nativeType,omitempty"`
	Nullable      bool       `json:"nullable,omitempty"`
	List          bool       `json:"list,omitempty"`
	Default       *string    `json:"default,omitempty"`
	AutoIncrement bool       `json:"autoIncrement,omitempty"`
}

type PrimaryKeyDescription struct {
	Name    string   `json:"name,omitempty"`
	Columns []string `json:"columns"`
}

type IndexDescription struct {
	Name    string   `json:"name"`
	Unique  bool     `json:"unique,omitempty"`
	Columns []string `json:"columns"`
}

type ForeignKeyDescription struct {
	Name                string   `json:"name,omitempty"`
	Columns             []string `json:"columns"`
	ReferencedNamespace string   `json:"referencedNamespace,omitempty"`
	ReferencedTable     string   `json:"referencedTable"`
	ReferencedColumns   []string `json:"referencedColumns"`
	OnDelete            string   `json:"onDelete,omitempty"`
	OnUpdate            string   `json:"onUpdate,omitempty"`
}

// DecodeDescription reads a JSON description and builds the schema.
func DecodeDescription(r io.Reader) (*SqlSchema, error) {
	d, err := ReadDescription(r)
	if err != nil {
		return nil, err
	}
	return d.Build()
}

// ReadDescription reads a JSON description without building it.
func ReadDescription(r io.Reader) (Description, error) {
	var d Description
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&d); err != nil {
		return Description{}, fmt.Errorf("failed to decode schema description: %w", err)
	}
	return d, nil
}

// InNamespace returns a copy of d with every table and reference that has
// no namespace placed in ns.
func (d Description) InNamespace(ns string) Description {
	out := Description{Tables: make([]TableDescription, len(d.Tables))}
	for i, td := range d.Tables {
		if td.Namespace == "" {
			td.Namespace = ns
		}
		fks := make([]ForeignKeyDescription, len(td.ForeignKeys))
		for j, fk := range td.ForeignKeys {
			if fk.ReferencedNamespace == "" {
				fk.ReferencedNamespace = ns
			}
			fks[j] = fk
		}
		if td.ForeignKeys != nil {
			td.ForeignKeys = fks
		}
		out.Tables[i] = td
	}
	return out
}

func (d Description) Build() (*SqlSchema, error) {
	b := NewBuilder()

	type builtTable struct {
		id      TableID
		columns map[string]ColumnID
	}
	tables := make(map[string]builtTable, len(d.Tables))
	tableKey := func(namespace, name string) string { return namespace + "\x00" + name }

	for _, td := range d.Tables {
		ns := NoNamespace
		if td.Namespace != "" {
			ns = b.AddNamespace(td.Namespace)
		}
		id := b.AddTable(Table{Namespace: ns, Name: td.Name, IsPartition: td.Partition})
		bt := builtTable{id: id, columns: make(map[string]ColumnID, len(td.Columns))}
		for _, cd := range td.Columns {
			arity := Required
			switch {
			case cd.List:
				arity = List
			case cd.Nullable:
				arity = Nullable
			}
			bt.columns[cd.Name] = b.AddColumn(id, Column{
				Name:          cd.Name,
				Type:          ColumnType{Family: cd.Type, FullDataType: cd.NativeType, Arity: arity},
				Default:       cd.Default,
				AutoIncrement: cd.AutoIncrement,
			})
		}
		tables[tableKey(td.Namespace, td.Name)] = bt
	}

	resolveColumns := func(table string, cols map[string]ColumnID, names []string) ([]ColumnID, error) {
		out := make([]ColumnID, len(names))
		for i, n := range names {
			id, ok := cols[n]
			if !ok {
				return nil, fmt.Errorf("table %s has no column %s", table, n)
			}
			out[i] = id
		}
		return out, nil
	}

	for _, td := range d.Tables {
		bt := tables[tableKey(td.Namespace, td.Name)]

		if td.PrimaryKey != nil {
			cols, err := resolveColumns(td.Name, bt.columns, td.PrimaryKey.Columns)
			if err != nil {
				return nil, fmt.Errorf("primary key: %w", err)
			}
			name := td.PrimaryKey.Name
			if name == "" {
				name = td.Name + "_pkey"
			}
			b.AddIndex(bt.id, name, IndexPrimaryKey, cols...)
		}

		for _, id := range td.Indexes {
			cols, err := resolveColumns(td.Name, bt.columns, id.Columns)
			if err != nil {
				return nil, fmt.Errorf("index %s: %w", id.Name, err)
			}
			kind := IndexNormal
			if id.Unique {
				kind = IndexUnique
			}
			b.AddIndex(bt.id, id.Name, kind, cols...)
		}

		for _, fd := range td.ForeignKeys {
			ref, ok := tables[tableKey(fd.ReferencedNamespace, fd.ReferencedTable)]
			if !ok {
				return nil, fmt.Errorf("foreign key %s references unknown table %s", fd.Name, fd.ReferencedTable)
			}
			if len(fd.Columns) != len(fd.ReferencedColumns) {
				return nil, fmt.Errorf("foreign key %s has %d columns but references %d", fd.Name, len(fd.Columns), len(fd.ReferencedColumns))
			}
			constrained, err := resolveColumns(td.Name, bt.columns, fd.Columns)
			if err != nil {
				return nil, fmt.Errorf("foreign key %s: %w", fd.Name, err)
			}
			referenced, err := resolveColumns(fd.ReferencedTable, ref.columns, fd.ReferencedColumns)
			if err != nil {
				return nil, fmt.Errorf("foreign key %s: %w", fd.Name, err)
			}
			onDelete, ok := ParseForeignKeyAction(fd.OnDelete)
			if !ok {
				return nil, fmt.Errorf("foreign key %s: unknown onDelete action %q", fd.Name, fd.OnDelete)
			}
			onUpdate, ok := ParseForeignKeyAction(fd.OnUpdate)
			if !ok {
				return nil, fmt.Errorf("foreign key %s: unknown onUpdate action %q", fd.Name, fd.OnUpdate)
			}
			fk := b.AddForeignKey(ForeignKey{
				ConstrainedTable: bt.id,
				ReferencedTable:  ref.id,
				Name:             fd.Name,
				OnDelete:         onDelete,
				OnUpdate:         onUpdate,
			})
			for i := range constrained {
				b.AddForeignKeyColumn(fk, constrained[i], referenced[i])
			}
		}
	}

	return b.Build()
}
