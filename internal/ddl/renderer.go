package ddl

import (
	"fmt"
	"strings"

	"github.com/dfryer1193/schemad/internal/migration"
	"github.com/dfryer1193/schemad/internal/schema"
)

// Renderer implements migration.Renderer for one dialect.
type Renderer struct {
	dialect Dialect
}

func NewRenderer(dialect Dialect) *Renderer {
	return &Renderer{dialect: dialect}
}

func (r *Renderer) Dialect() Dialect { return r.dialect }

func (r *Renderer) Render(m *migration.DatabaseMigration, step migration.MigrationStep) ([]string, error) {
	d := r.dialect
	switch s := step.(type) {
	case migration.CreateTable:
		stmt, err := r.createTable(m, m.Next.Table(s.Table))
		if err != nil {
			return nil, err
		}
		return []string{stmt}, nil

	case migration.DropTable:
		return []string{"DROP TABLE " + d.table(m.Previous.Table(s.Table))}, nil

	case migration.RenameTable:
		prev, next := m.Previous.Table(s.Previous), m.Next.Table(s.Next)
		return []string{fmt.Sprintf("ALTER TABLE %s RENAME TO %s", d.table(prev), d.Quote(next.Name()))}, nil

	case migration.AddColumn:
		c := m.Next.Column(s.Column)
		def, err := d.columnDefinition(c)
		if err != nil {
			return nil, err
		}
		return []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", d.table(c.Table()), def)}, nil

	case migration.DropColumn:
		c := m.Previous.Column(s.Column)
		return []string{fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", d.table(c.Table()), d.Quote(c.Name()))}, nil

	case migration.AlterColumn:
		return r.alterColumn(m, s)

	case migration.RenameColumn:
		prev, next := m.Previous.Column(s.Previous), m.Next.Column(s.Next)
		return []string{fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s",
			d.table(next.Table()), d.Quote(prev.Name()), d.Quote(next.Name()))}, nil

	case migration.CreateIndex:
		return r.createIndex(m.Next.Index(s.Index))

	case migration.DropIndex:
		return r.dropIndex(m.Previous.Index(s.Index))

	case migration.AddForeignKey:
		fk := m.Next.ForeignKey(s.ForeignKey)
		if d == SQLite {
			if createdIn(m, fk.ConstrainedTable().ID()) {
				// Rendered inline by CREATE TABLE.
				return nil, nil
			}
			return nil, fmt.Errorf("sqlite cannot add a foreign key to existing table %s", fk.ConstrainedTable().Name())
		}
		return []string{fmt.Sprintf("ALTER TABLE %s ADD %s", d.table(fk.ConstrainedTable()), r.foreignKeyClause(fk))}, nil

	case migration.DropForeignKey:
		return r.dropForeignKey(m, m.Previous.ForeignKey(s.ForeignKey))
	}
	return nil, fmt.Errorf("unsupported step %s", step.Kind())
}

func createdIn(m *migration.DatabaseMigration, table schema.TableID) bool {
	for _, step := range m.Steps {
		if ct, ok := step.(migration.CreateTable); ok && ct.Table == table {
			return true
		}
	}
	return false
}

func droppedIn(m *migration.DatabaseMigration, table schema.TableID) bool {
	for _, step := range m.Steps {
		if dt, ok := step.(migration.DropTable); ok && dt.Table == table {
			return true
		}
	}
	return false
}

func (r *Renderer) createTable(m *migration.DatabaseMigration, t schema.TableWalker) (string, error) {
	d := r.dialect
	var parts []string
	inlinePrimaryKey := false
	for _, c := range t.Columns() {
		def, err := d.columnDefinition(c)
		if err != nil {
			return "", fmt.Errorf("table %s: %w", t.Name(), err)
		}
		if d == SQLite && c.IsAutoIncrement() {
			inlinePrimaryKey = true
		}
		parts = append(parts, def)
	}

	if pk, ok := t.PrimaryKey(); ok && !inlinePrimaryKey {
		if d == MySQL {
			parts = append(parts, "PRIMARY KEY ("+d.columnList(pk.ColumnNames())+")")
		} else {
			parts = append(parts, fmt.Sprintf("CONSTRAINT %s PRIMARY KEY (%s)", d.Quote(pk.Name()), d.columnList(pk.ColumnNames())))
		}
	}

	if d == SQLite {
		for _, fk := range t.ForeignKeys() {
			parts = append(parts, r.foreignKeyClause(fk))
		}
	}

	return fmt.Sprintf("CREATE TABLE %s (%s)", d.table(t), strings.Join(parts, ", ")), nil
}

func (r *Renderer) foreignKeyClause(fk schema.ForeignKeyWalker) string {
	d := r.dialect
	var b strings.Builder
	if fk.Name() != "" {
		b.WriteString("CONSTRAINT ")
		b.WriteString(d.Quote(fk.Name()))
		b.WriteString(" ")
	}
	referenced := d.table(fk.ReferencedTable())
	if d == SQLite {
		// SQLite resolves the parent table within the schema of the child.
		referenced = d.Quote(fk.ReferencedTable().Name())
	}
	fmt.Fprintf(&b, "FOREIGN KEY (%s) REFERENCES %s (%s) ON DELETE %s ON UPDATE %s",
		d.columnList(fk.ConstrainedColumnNames()),
		referenced,
		d.columnList(fk.ReferencedColumnNames()),
		fk.OnDelete(), fk.OnUpdate())
	return b.String()
}

func (r *Renderer) dropForeignKey(m *migration.DatabaseMigration, fk schema.ForeignKeyWalker) ([]string, error) {
	d := r.dialect
	table := fk.ConstrainedTable()
	switch d {
	case SQLite:
		if droppedIn(m, table.ID()) {
			// Goes away with DROP TABLE.
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite cannot drop a foreign key from table %s", table.Name())
	case MySQL:
		if fk.Name() == "" {
			return nil, fmt.Errorf("cannot drop unnamed foreign key on table %s", table.Name())
		}
		return []string{fmt.Sprintf("ALTER TABLE %s DROP FOREIGN KEY %s", d.table(table), d.Quote(fk.Name()))}, nil
	default:
		if fk.Name() == "" {
			return nil, fmt.Errorf("cannot drop unnamed foreign key on table %s", table.Name())
		}
		return []string{fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", d.table(table), d.Quote(fk.Name()))}, nil
	}
}

func (r *Renderer) indexColumns(idx schema.IndexWalker) string {
	cols := idx.Columns()
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = r.dialect.Quote(c.Column().Name())
		if c.SortOrder() == schema.Descending {
			parts[i] += " DESC"
		}
	}
	return strings.Join(parts, ", ")
}

func (r *Renderer) createIndex(idx schema.IndexWalker) ([]string, error) {
	d := r.dialect
	table := idx.Table()
	if idx.IsPrimaryKey() {
		switch d {
		case SQLite:
			return nil, fmt.Errorf("sqlite cannot add a primary key to existing table %s", table.Name())
		case MySQL:
			return []string{fmt.Sprintf("ALTER TABLE %s ADD PRIMARY KEY (%s)", d.table(table), r.indexColumns(idx))}, nil
		default:
			return []string{fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s PRIMARY KEY (%s)", d.table(table), d.Quote(idx.Name()), r.indexColumns(idx))}, nil
		}
	}

	unique := ""
	if idx.IsUnique() {
		unique = "UNIQUE "
	}
	name := d.Quote(idx.Name())
	if d == SQLite && table.Namespace() != "" {
		// SQLite qualifies the index name, not the table.
		return []string{fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)", unique, d.Quote(table.Namespace(), idx.Name()), d.Quote(table.Name()), r.indexColumns(idx))}, nil
	}
	return []string{fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)", unique, name, d.table(table), r.indexColumns(idx))}, nil
}

func (r *Renderer) dropIndex(idx schema.IndexWalker) ([]string, error) {
	d := r.dialect
	table := idx.Table()
	if idx.IsPrimaryKey() {
		switch d {
		case SQLite:
			return nil, fmt.Errorf("sqlite cannot drop the primary key of table %s", table.Name())
		case MySQL:
			return []string{fmt.Sprintf("ALTER TABLE %s DROP PRIMARY KEY", d.table(table))}, nil
		default:
			return []string{fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", d.table(table), d.Quote(idx.Name()))}, nil
		}
	}
	if d == MySQL {
		return []string{fmt.Sprintf("DROP INDEX %s ON %s", d.Quote(idx.Name()), d.table(table))}, nil
	}
	return []string{"DROP INDEX " + d.Quote(table.Namespace(), idx.Name())}, nil
}

func (r *Renderer) alterColumn(m *migration.DatabaseMigration, s migration.AlterColumn) ([]string, error) {
	d := r.dialect
	prev, next := m.Previous.Column(s.Previous), m.Next.Column(s.Next)
	table := d.table(next.Table())

	switch d {
	case SQLite:
		return nil, fmt.Errorf("sqlite cannot alter column %s of table %s (%s)", next.Name(), next.Table().Name(), s.Changes)
	case MySQL:
		def, err := d.columnDefinition(next)
		if err != nil {
			return nil, err
		}
		return []string{fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s", table, def)}, nil
	}

	col := d.Quote(next.Name())
	var clauses []string
	listChanged := s.Changes.Has(migration.ChangeArity) && (prev.Arity() == schema.List) != (next.Arity() == schema.List)
	if s.Changes.Has(migration.ChangeType) || listChanged {
		typ, err := d.columnType(next.Type())
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, fmt.Sprintf("ALTER COLUMN %s TYPE %s USING %s::%s", col, typ, col, typ))
	}
	if s.Changes.Has(migration.ChangeArity) {
		if next.IsRequired() {
			clauses = append(clauses, fmt.Sprintf("ALTER COLUMN %s SET NOT NULL", col))
		} else if prev.IsRequired() {
			clauses = append(clauses, fmt.Sprintf("ALTER COLUMN %s DROP NOT NULL", col))
		}
	}
	if s.Changes.Has(migration.ChangeDefault) {
		if def, ok := next.Default(); ok {
			clauses = append(clauses, fmt.Sprintf("ALTER COLUMN %s SET DEFAULT %s", col, def))
		} else {
			clauses = append(clauses, fmt.Sprintf("ALTER COLUMN %s DROP DEFAULT", col))
		}
	}
	if s.Changes.Has(migration.ChangeAutoIncrement) {
		if next.IsAutoIncrement() {
			clauses = append(clauses, fmt.Sprintf("ALTER COLUMN %s ADD GENERATED BY DEFAULT AS IDENTITY", col))
		} else {
			clauses = append(clauses, fmt.Sprintf("ALTER COLUMN %s DROP IDENTITY IF EXISTS", col))
		}
	}
	if len(clauses) == 0 {
		return nil, nil
	}
	return []string{fmt.Sprintf("ALTER TABLE %s %s", table, strings.Join(clauses, ", "))}, nil
}
