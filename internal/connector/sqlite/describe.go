package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"

	"github.com/dfryer1193/schemad/internal/data/repository"
	"github.com/dfryer1193/schemad/internal/ddl"
	"github.com/dfryer1193/schemad/internal/schema"
)

var autoincrementPattern = regexp.MustCompile(`(?i)\bAUTOINCREMENT\b`)

// Describe introspects the tables of the attached database namespace, or of
// "main" when namespace is empty.
func (c *Connector) Describe(ctx context.Context, namespace string) (*schema.SqlSchema, error) {
	attached := namespace
	if attached == "" {
		attached = "main"
	}

	tables, err := c.tableNames(ctx, attached)
	if err != nil {
		return nil, fmt.Errorf("failed to get table names: %w", err)
	}

	d := schema.Description{Tables: make([]schema.TableDescription, 0, len(tables))}
	for _, t := range tables {
		td, err := c.describeTable(ctx, attached, t.name, t.sql)
		if err != nil {
			return nil, fmt.Errorf("failed to describe table %s: %w", t.name, err)
		}
		td.Namespace = namespace
		for i := range td.ForeignKeys {
			td.ForeignKeys[i].ReferencedNamespace = namespace
		}
		d.Tables = append(d.Tables, *td)
	}
	return d.Build()
}

type tableSQL struct {
	name string
	sql  string
}

func (c *Connector) tableNames(ctx context.Context, attached string) ([]tableSQL, error) {
	query := fmt.Sprintf(`
		SELECT name, sql
		FROM %s.sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%%' AND name <> ?
		ORDER BY name`, ddl.SQLite.Quote(attached))

	rows, err := c.db.QueryContext(ctx, query, repository.LedgerTable)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []tableSQL
	for rows.Next() {
		var t tableSQL
		var createSQL sql.NullString
		if err := rows.Scan(&t.name, &createSQL); err != nil {
			return nil, err
		}
		t.sql = createSQL.String
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

func (c *Connector) describeTable(ctx context.Context, attached, table, createSQL string) (*schema.TableDescription, error) {
	td := &schema.TableDescription{Name: table}

	pk, err := c.describeColumns(ctx, attached, td)
	if err != nil {
		return nil, fmt.Errorf("failed to extract columns: %w", err)
	}

	if len(pk) > 0 {
		td.PrimaryKey = &schema.PrimaryKeyDescription{Columns: pk}
		// Only a sole INTEGER primary key can be declared AUTOINCREMENT.
		if len(pk) == 1 && autoincrementPattern.MatchString(createSQL) {
			for i := range td.Columns {
				if td.Columns[i].Name == pk[0] && td.Columns[i].Type == schema.FamilyInt {
					td.Columns[i].AutoIncrement = true
				}
			}
		}
	}

	if td.Indexes, err = c.describeIndexes(ctx, attached, table); err != nil {
		return nil, fmt.Errorf("failed to extract indexes: %w", err)
	}

	if td.ForeignKeys, err = c.describeForeignKeys(ctx, attached, table); err != nil {
		return nil, fmt.Errorf("failed to extract foreign keys: %w", err)
	}

	return td, nil
}

// describeColumns fills the columns of td and returns the primary key
// columns in key order.
func (c *Connector) describeColumns(ctx context.Context, attached string, td *schema.TableDescription) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT cid, name, type, "notnull", dflt_value, pk FROM pragma_table_info(?, ?)`, td.Name, attached)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type pkColumn struct {
		name  string
		order int
	}
	var pk []pkColumn

	for rows.Next() {
		var cid, notNull, pkOrder int
		var name, colType string
		var defaultValue sql.NullString

		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultValue, &pkOrder); err != nil {
			return nil, err
		}

		col := schema.ColumnDescription{
			Name:       name,
			Type:       ddl.SQLiteFamily(colType),
			NativeType: colType,
			Nullable:   notNull == 0,
		}
		if defaultValue.Valid {
			col.Default = &defaultValue.String
		}
		if pkOrder > 0 {
			pk = append(pk, pkColumn{name: name, order: pkOrder})
		}
		td.Columns = append(td.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(pk, func(i, j int) bool { return pk[i].order < pk[j].order })
	names := make([]string, len(pk))
	for i, p := range pk {
		names[i] = p.name
	}
	return names, nil
}

func (c *Connector) describeIndexes(ctx context.Context, attached, table string) ([]schema.IndexDescription, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT name, "unique", origin FROM pragma_index_list(?, ?) ORDER BY name`, table, attached)
	if err != nil {
		return nil, err
	}

	type indexRow struct {
		name   string
		unique bool
		origin string
	}
	var list []indexRow
	for rows.Next() {
		var r indexRow
		if err := rows.Scan(&r.name, &r.unique, &r.origin); err != nil {
			rows.Close()
			return nil, err
		}
		list = append(list, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var indexes []schema.IndexDescription
	for _, r := range list {
		// The primary key is described from table_info.
		if r.origin == "pk" {
			continue
		}
		columns, err := c.indexColumns(ctx, attached, r.name)
		if err != nil {
			return nil, err
		}
		// Expression indexes have no named columns.
		if len(columns) == 0 {
			continue
		}
		indexes = append(indexes, schema.IndexDescription{Name: r.name, Unique: r.unique, Columns: columns})
	}
	return indexes, nil
}

func (c *Connector) indexColumns(ctx context.Context, attached, index string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT name FROM pragma_index_info(?, ?) ORDER BY seqno`, index, attached)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name sql.NullString
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if !name.Valid {
			return nil, nil
		}
		columns = append(columns, name.String)
	}
	return columns, rows.Err()
}

// describeForeignKeys groups the rows of foreign_key_list by constraint.
// SQLite does not keep constraint names, so the keys come back unnamed.
func (c *Connector) describeForeignKeys(ctx context.Context, attached, table string) ([]schema.ForeignKeyDescription, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id, "table", "from", "to", on_update, on_delete FROM pragma_foreign_key_list(?, ?) ORDER BY id, seq`, table, attached)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []schema.ForeignKeyDescription
	lastID := -1
	for rows.Next() {
		var id int
		var targetTable, fromCol, onUpdate, onDelete string
		var toCol sql.NullString

		if err := rows.Scan(&id, &targetTable, &fromCol, &toCol, &onUpdate, &onDelete); err != nil {
			return nil, err
		}
		if !toCol.Valid {
			return nil, fmt.Errorf("foreign key on %s references the implicit primary key of %s", fromCol, targetTable)
		}

		if id != lastID {
			fks = append(fks, schema.ForeignKeyDescription{
				ReferencedTable: targetTable,
				OnDelete:        onDelete,
				OnUpdate:        onUpdate,
			})
			lastID = id
		}
		fk := &fks[len(fks)-1]
		fk.Columns = append(fk.Columns, fromCol)
		fk.ReferencedColumns = append(fk.ReferencedColumns, toCol.String)
	}
	return fks, rows.Err()
}

// Namespaces lists the attached databases.
func (c *Connector) Namespaces(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT name FROM pragma_database_list ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query namespaces: %w", err)
	}
	defer rows.Close()

	var namespaces []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		namespaces = append(namespaces, name)
	}
	return namespaces, rows.Err()
}
