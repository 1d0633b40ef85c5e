package migration

import (
	"strings"

	"github.com/dfryer1193/schemad/internal/schema"
)

type StepKind int

const (
	StepCreateTable StepKind = iota
	StepDropTable
	StepRenameTable
	StepAddColumn
	StepDropColumn
	StepAlterColumn
	StepRenameColumn
	StepCreateIndex
	StepDropIndex
	StepAddForeignKey
	StepDropForeignKey
)

var stepKindNames = []string{
	StepCreateTable:    "CreateTable",
	StepDropTable:      "DropTable",
	StepRenameTable:    "RenameTable",
	StepAddColumn:      "AddColumn",
	StepDropColumn:     "DropColumn",
	StepAlterColumn:    "AlterColumn",
	StepRenameColumn:   "RenameColumn",
	StepCreateIndex:    "CreateIndex",
	StepDropIndex:      "DropIndex",
	StepAddForeignKey:  "AddForeignKey",
	StepDropForeignKey: "DropForeignKey",
}

func (k StepKind) String() string {
	if k < 0 || int(k) >= len(stepKindNames) {
		return "Unknown"
	}
	return stepKindNames[k]
}

// MigrationStep is one abstract DDL intent. Ids in a step are only valid
// against the schema pair of the DatabaseMigration that holds it: Drop*
// steps address the previous schema, Create*/Add* steps the next one.
type MigrationStep interface {
	Kind() StepKind
	record(m *DatabaseMigration) stepRecord
}

type CreateTable struct {
	Table schema.TableID
}

type DropTable struct {
	Table schema.TableID
}

type RenameTable struct {
	Previous schema.TableID
	Next     schema.TableID
}

type AddColumn struct {
	Column schema.ColumnID
}

type DropColumn struct {
	Column schema.ColumnID
}

// ColumnChanges is the set of attributes that differ between the two sides
// of an AlterColumn.
type ColumnChanges uint8

const (
	ChangeType ColumnChanges = 1 << iota
	ChangeArity
	ChangeDefault
	ChangeAutoIncrement
)

func (c ColumnChanges) Has(other ColumnChanges) bool { return c&other != 0 }

func (c ColumnChanges) String() string {
	var parts []string
	if c.Has(ChangeType) {
		parts = append(parts, "type")
	}
	if c.Has(ChangeArity) {
		parts = append(parts, "arity")
	}
	if c.Has(ChangeDefault) {
		parts = append(parts, "default")
	}
	if c.Has(ChangeAutoIncrement) {
		parts = append(parts, "autoincrement")
	}
	return strings.Join(parts, ",")
}

type AlterColumn struct {
	Previous schema.ColumnID
	Next     schema.ColumnID
	Changes  ColumnChanges
}

type RenameColumn struct {
	Previous schema.ColumnID
	Next     schema.ColumnID
}

type CreateIndex struct {
	Index schema.IndexID
}

type DropIndex struct {
	Index schema.IndexID
}

type AddForeignKey struct {
	ForeignKey schema.ForeignKeyID
}

type DropForeignKey struct {
	ForeignKey schema.ForeignKeyID
}

func (CreateTable) Kind() StepKind    { return StepCreateTable }
func (DropTable) Kind() StepKind      { return StepDropTable }
func (RenameTable) Kind() StepKind    { return StepRenameTable }
func (AddColumn) Kind() StepKind      { return StepAddColumn }
func (DropColumn) Kind() StepKind     { return StepDropColumn }
func (AlterColumn) Kind() StepKind    { return StepAlterColumn }
func (RenameColumn) Kind() StepKind   { return StepRenameColumn }
func (CreateIndex) Kind() StepKind    { return StepCreateIndex }
func (DropIndex) Kind() StepKind      { return StepDropIndex }
func (AddForeignKey) Kind() StepKind  { return StepAddForeignKey }
func (DropForeignKey) Kind() StepKind { return StepDropForeignKey }

// stepRecord is the id-free form of a step used for serialization and
// descriptions. Two migrations with equal records are interchangeable.
type stepRecord struct {
	Kind       string            `json:"kind"`
	Table      string            `json:"table"`
	RenamedTo  string            `json:"renamedTo,omitempty"`
	Column     *columnRecord     `json:"column,omitempty"`
	Columns    []columnRecord    `json:"columns,omitempty"`
	Changes    string            `json:"changes,omitempty"`
	Index      *indexRecord      `json:"index,omitempty"`
	ForeignKey *foreignKeyRecord `json:"foreignKey,omitempty"`
}

type columnRecord struct {
	Name          string  `json:"name"`
	Family        string  `json:"family"`
	NativeType    string  `json:"nativeType,omitempty"`
	Arity         string  `json:"arity"`
	Default       *string `json:"default,omitempty"`
	AutoIncrement bool    `json:"autoIncrement,omitempty"`
}

type indexRecord struct {
	Name    string   `json:"name"`
	Kind    string   `json:"kind"`
	Columns []string `json:"columns"`
}

type foreignKeyRecord struct {
	Name              string   `json:"name,omitempty"`
	Columns           []string `json:"columns"`
	ReferencedTable   string   `json:"referencedTable"`
	ReferencedColumns []string `json:"referencedColumns"`
	OnDelete          string   `json:"onDelete"`
	OnUpdate          string   `json:"onUpdate"`
}

func newColumnRecord(c schema.ColumnWalker) columnRecord {
	t := c.Type()
	rec := columnRecord{
		Name:          c.Name(),
		Family:        t.Family.String(),
		NativeType:    t.FullDataType,
		Arity:         t.Arity.String(),
		AutoIncrement: c.IsAutoIncrement(),
	}
	if d, ok := c.Default(); ok {
		rec.Default = &d
	}
	return rec
}

func newIndexRecord(idx schema.IndexWalker) *indexRecord {
	rec := &indexRecord{Name: idx.Name(), Kind: idx.Kind().String()}
	for _, ic := range idx.Columns() {
		name := ic.Column().Name()
		if ic.SortOrder() == schema.Descending {
			name += " DESC"
		}
		rec.Columns = append(rec.Columns, name)
	}
	return rec
}

func newForeignKeyRecord(fk schema.ForeignKeyWalker) *foreignKeyRecord {
	return &foreignKeyRecord{
		Name:              fk.Name(),
		Columns:           fk.ConstrainedColumnNames(),
		ReferencedTable:   fk.ReferencedTable().QualifiedName(),
		ReferencedColumns: fk.ReferencedColumnNames(),
		OnDelete:          fk.OnDelete().String(),
		OnUpdate:          fk.OnUpdate().String(),
	}
}

func (s CreateTable) record(m *DatabaseMigration) stepRecord {
	t := m.Next.Table(s.Table)
	rec := stepRecord{Kind: s.Kind().String(), Table: t.QualifiedName()}
	for _, c := range t.Columns() {
		rec.Columns = append(rec.Columns, newColumnRecord(c))
	}
	if pk, ok := t.PrimaryKey(); ok {
		rec.Index = newIndexRecord(pk)
	}
	return rec
}

func (s DropTable) record(m *DatabaseMigration) stepRecord {
	return stepRecord{Kind: s.Kind().String(), Table: m.Previous.Table(s.Table).QualifiedName()}
}

func (s RenameTable) record(m *DatabaseMigration) stepRecord {
	return stepRecord{
		Kind:      s.Kind().String(),
		Table:     m.Previous.Table(s.Previous).QualifiedName(),
		RenamedTo: m.Next.Table(s.Next).Name(),
	}
}

func (s AddColumn) record(m *DatabaseMigration) stepRecord {
	c := m.Next.Column(s.Column)
	col := newColumnRecord(c)
	return stepRecord{Kind: s.Kind().String(), Table: c.Table().QualifiedName(), Column: &col}
}

func (s DropColumn) record(m *DatabaseMigration) stepRecord {
	c := m.Previous.Column(s.Column)
	return stepRecord{Kind: s.Kind().String(), Table: c.Table().QualifiedName(), Column: &columnRecord{Name: c.Name()}}
}

func (s AlterColumn) record(m *DatabaseMigration) stepRecord {
	c := m.Next.Column(s.Next)
	col := newColumnRecord(c)
	return stepRecord{Kind: s.Kind().String(), Table: c.Table().QualifiedName(), Column: &col, Changes: s.Changes.String()}
}

func (s RenameColumn) record(m *DatabaseMigration) stepRecord {
	prev := m.Previous.Column(s.Previous)
	next := m.Next.Column(s.Next)
	return stepRecord{
		Kind:      s.Kind().String(),
		Table:     next.Table().QualifiedName(),
		Column:    &columnRecord{Name: prev.Name()},
		RenamedTo: next.Name(),
	}
}

func (s CreateIndex) record(m *DatabaseMigration) stepRecord {
	idx := m.Next.Index(s.Index)
	return stepRecord{Kind: s.Kind().String(), Table: idx.Table().QualifiedName(), Index: newIndexRecord(idx)}
}

func (s DropIndex) record(m *DatabaseMigration) stepRecord {
	idx := m.Previous.Index(s.Index)
	return stepRecord{
		Kind:  s.Kind().String(),
		Table: idx.Table().QualifiedName(),
		Index: &indexRecord{Name: idx.Name(), Kind: idx.Kind().String()},
	}
}

func (s AddForeignKey) record(m *DatabaseMigration) stepRecord {
	fk := m.Next.ForeignKey(s.ForeignKey)
	return stepRecord{Kind: s.Kind().String(), Table: fk.ConstrainedTable().QualifiedName(), ForeignKey: newForeignKeyRecord(fk)}
}

func (s DropForeignKey) record(m *DatabaseMigration) stepRecord {
	fk := m.Previous.ForeignKey(s.ForeignKey)
	return stepRecord{Kind: s.Kind().String(), Table: fk.ConstrainedTable().QualifiedName(), ForeignKey: newForeignKeyRecord(fk)}
}

// describe renders a one-line human summary of a record, used in logs and
// error messages.
func (r stepRecord) describe() string {
	var b strings.Builder
	b.WriteString(r.Kind)
	b.WriteString(" ")
	b.WriteString(r.Table)
	switch {
	case r.Column != nil:
		b.WriteString(".")
		b.WriteString(r.Column.Name)
	case r.Index != nil && r.Kind != stepKindNames[StepCreateTable]:
		b.WriteString(" index ")
		b.WriteString(r.Index.Name)
	case r.ForeignKey != nil:
		b.WriteString(" foreign key ")
		if r.ForeignKey.Name != "" {
			b.WriteString(r.ForeignKey.Name)
		} else {
			b.WriteString("(" + strings.Join(r.ForeignKey.Columns, ", ") + ") -> " + r.ForeignKey.ReferencedTable)
		}
	}
	if r.RenamedTo != "" {
		b.WriteString(" to ")
		b.WriteString(r.RenamedTo)
	}
	if r.Changes != "" {
		b.WriteString(" (" + r.Changes + ")")
	}
	return b.String()
}
