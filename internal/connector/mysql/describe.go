package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dfryer1193/schemad/internal/data/repository"
	"github.com/dfryer1193/schemad/internal/schema"
	"github.com/rs/zerolog/log"
)

// Describe introspects the tables of one database. An empty namespace
// describes the connection's default database as tables without a namespace.
func (c *Connector) Describe(ctx context.Context, namespace string) (*schema.SqlSchema, error) {
	database := namespace
	if database == "" {
		var current sql.NullString
		if err := c.db.QueryRowContext(ctx, `SELECT DATABASE()`).Scan(&current); err != nil {
			return nil, fmt.Errorf("failed to get current database: %w", err)
		}
		if !current.Valid {
			return nil, fmt.Errorf("no database selected")
		}
		database = current.String
	}

	tables, err := c.tableNames(ctx, database)
	if err != nil {
		return nil, fmt.Errorf("failed to get table names: %w", err)
	}

	d := schema.Description{Tables: make([]schema.TableDescription, 0, len(tables))}
	for _, name := range tables {
		td := schema.TableDescription{Namespace: namespace, Name: name}
		if td.Columns, err = c.describeColumns(ctx, database, name); err != nil {
			return nil, fmt.Errorf("failed to describe columns of %s: %w", name, err)
		}
		if td.ForeignKeys, err = c.describeForeignKeys(ctx, database, namespace, name); err != nil {
			return nil, fmt.Errorf("failed to describe foreign keys of %s: %w", name, err)
		}
		if td.PrimaryKey, td.Indexes, err = c.describeIndexes(ctx, database, name, td.ForeignKeys); err != nil {
			return nil, fmt.Errorf("failed to describe indexes of %s: %w", name, err)
		}
		d.Tables = append(d.Tables, td)
	}
	return d.Build()
}

func (c *Connector) tableNames(ctx context.Context, database string) ([]string, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = ? AND table_type = 'BASE TABLE' AND table_name <> ?
		ORDER BY table_name
	`

	rows, err := c.db.QueryContext(ctx, query, database, repository.LedgerTable)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return nil, err
		}
		tables = append(tables, tableName)
	}

	return tables, rows.Err()
}

func (c *Connector) describeColumns(ctx context.Context, database, table string) ([]schema.ColumnDescription, error) {
	query := `
		SELECT column_name, data_type, column_type, is_nullable, column_default, extra
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position
	`

	rows, err := c.db.QueryContext(ctx, query, database, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []schema.ColumnDescription
	for rows.Next() {
		var name, dataType, columnType, nullable, extra string
		var defaultVal sql.NullString

		if err := rows.Scan(&name, &dataType, &columnType, &nullable, &defaultVal, &extra); err != nil {
			return nil, err
		}

		col := schema.ColumnDescription{
			Name:          name,
			Type:          mysqlFamily(dataType, columnType),
			NativeType:    columnType,
			Nullable:      nullable == "YES",
			AutoIncrement: strings.Contains(strings.ToLower(extra), "auto_increment"),
		}
		if defaultVal.Valid {
			col.Default = &defaultVal.String
		}
		columns = append(columns, col)
	}

	return columns, rows.Err()
}

func mysqlFamily(dataType, columnType string) schema.TypeFamily {
	switch strings.ToLower(columnType) {
	case "tinyint(1)":
		return schema.FamilyBoolean
	case "char(36)":
		return schema.FamilyUUID
	}
	switch strings.ToLower(dataType) {
	case "tinyint", "smallint", "mediumint", "int", "integer":
		return schema.FamilyInt
	case "bigint":
		return schema.FamilyBigInt
	case "float", "double", "real":
		return schema.FamilyFloat
	case "decimal", "numeric":
		return schema.FamilyDecimal
	case "bit", "bool", "boolean":
		return schema.FamilyBoolean
	case "char", "varchar", "tinytext", "text", "mediumtext", "longtext":
		return schema.FamilyString
	case "date", "datetime", "timestamp", "time", "year":
		return schema.FamilyDateTime
	case "binary", "varbinary", "tinyblob", "blob", "mediumblob", "longblob":
		return schema.FamilyBinary
	case "json":
		return schema.FamilyJSON
	case "enum":
		return schema.FamilyEnum
	}
	return schema.FamilyUnsupported
}

// describeIndexes splits information_schema.statistics into the primary
// key and the other indexes. Indexes MySQL created to back a foreign key
// carry the constraint name and are left out.
func (c *Connector) describeIndexes(ctx context.Context, database, table string, fks []schema.ForeignKeyDescription) (*schema.PrimaryKeyDescription, []schema.IndexDescription, error) {
	query := `
		SELECT index_name, non_unique, column_name
		FROM information_schema.statistics
		WHERE table_schema = ? AND table_name = ? AND column_name IS NOT NULL
		ORDER BY index_name, seq_in_index
	`

	rows, err := c.db.QueryContext(ctx, query, database, table)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	fkNames := make(map[string]bool, len(fks))
	for _, fk := range fks {
		fkNames[fk.Name] = true
	}

	var pk *schema.PrimaryKeyDescription
	var indexes []schema.IndexDescription
	for rows.Next() {
		var name, column string
		var nonUnique int
		if err := rows.Scan(&name, &nonUnique, &column); err != nil {
			return nil, nil, err
		}

		if name == "PRIMARY" {
			if pk == nil {
				pk = &schema.PrimaryKeyDescription{}
			}
			pk.Columns = append(pk.Columns, column)
			continue
		}
		if fkNames[name] {
			continue
		}
		if n := len(indexes); n > 0 && indexes[n-1].Name == name {
			indexes[n-1].Columns = append(indexes[n-1].Columns, column)
			continue
		}
		indexes = append(indexes, schema.IndexDescription{Name: name, Unique: nonUnique == 0, Columns: []string{column}})
	}

	return pk, indexes, rows.Err()
}

func (c *Connector) describeForeignKeys(ctx context.Context, database, namespace, table string) ([]schema.ForeignKeyDescription, error) {
	query := `
		SELECT
			kcu.constraint_name,
			kcu.referenced_table_schema,
			kcu.referenced_table_name,
			kcu.column_name,
			kcu.referenced_column_name,
			rc.delete_rule,
			rc.update_rule
		FROM information_schema.key_column_usage kcu
		JOIN information_schema.referential_constraints rc
			ON rc.constraint_schema = kcu.constraint_schema
			AND rc.constraint_name = kcu.constraint_name
			AND rc.table_name = kcu.table_name
		WHERE kcu.table_schema = ? AND kcu.table_name = ? AND kcu.referenced_table_name IS NOT NULL
		ORDER BY kcu.constraint_name, kcu.ordinal_position
	`

	rows, err := c.db.QueryContext(ctx, query, database, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []schema.ForeignKeyDescription
	for rows.Next() {
		var name, refDatabase, refTable, column, refColumn, onDelete, onUpdate string
		if err := rows.Scan(&name, &refDatabase, &refTable, &column, &refColumn, &onDelete, &onUpdate); err != nil {
			return nil, err
		}
		if refDatabase != database {
			log.Warn().Str("table", table).Str("foreignKey", name).Str("references", refDatabase+"."+refTable).
				Msg("Ignoring foreign key into another database")
			continue
		}

		if n := len(fks); n > 0 && fks[n-1].Name == name {
			fks[n-1].Columns = append(fks[n-1].Columns, column)
			fks[n-1].ReferencedColumns = append(fks[n-1].ReferencedColumns, refColumn)
			continue
		}
		fks = append(fks, schema.ForeignKeyDescription{
			Name:                name,
			Columns:             []string{column},
			ReferencedNamespace: namespace,
			ReferencedTable:     refTable,
			ReferencedColumns:   []string{refColumn},
			OnDelete:            onDelete,
			OnUpdate:            onUpdate,
		})
	}

	return fks, rows.Err()
}

func (c *Connector) Namespaces(ctx context.Context) ([]string, error) {
	query := `
		SELECT schema_name
		FROM information_schema.schemata
		WHERE schema_name NOT IN ('mysql', 'information_schema', 'performance_schema', 'sys')
		ORDER BY schema_name
	`
	return c.queryStrings(ctx, query)
}

func (c *Connector) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query namespaces: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
