package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dfryer1193/schemad/internal/data/repository"
	"github.com/dfryer1193/schemad/internal/schema"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

const defaultNamespace = "public"

// Describe introspects the tables of one PostgreSQL schema. An empty
// namespace describes "public" as tables without a namespace.
func (c *Connector) Describe(ctx context.Context, namespace string) (*schema.SqlSchema, error) {
	pgSchema := namespace
	if pgSchema == "" {
		pgSchema = defaultNamespace
	}

	tables, err := c.tables(ctx, pgSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to get table names: %w", err)
	}

	d := schema.Description{Tables: make([]schema.TableDescription, 0, len(tables))}
	for _, t := range tables {
		td := schema.TableDescription{Namespace: namespace, Name: t.Name, Partition: t.IsPartition}

		if td.Columns, err = c.describeColumns(ctx, pgSchema, t.Name); err != nil {
			return nil, fmt.Errorf("failed to describe columns of %s: %w", t.Name, err)
		}
		if td.PrimaryKey, err = c.describePrimaryKey(ctx, pgSchema, t.Name); err != nil {
			return nil, fmt.Errorf("failed to describe primary key of %s: %w", t.Name, err)
		}
		if td.Indexes, err = c.describeIndexes(ctx, pgSchema, t.Name); err != nil {
			return nil, fmt.Errorf("failed to describe indexes of %s: %w", t.Name, err)
		}
		if td.ForeignKeys, err = c.describeForeignKeys(ctx, pgSchema, namespace, t.Name); err != nil {
			return nil, fmt.Errorf("failed to describe foreign keys of %s: %w", t.Name, err)
		}
		d.Tables = append(d.Tables, td)
	}
	return d.Build()
}

type tableRow struct {
	Name        string `db:"relname"`
	IsPartition bool   `db:"relispartition"`
}

func (c *Connector) tables(ctx context.Context, pgSchema string) ([]tableRow, error) {
	query := `
		SELECT c.relname, c.relispartition
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1 AND c.relkind IN ('r', 'p') AND c.relname <> $2
		ORDER BY c.relname
	`
	rows, err := c.pool.Query(ctx, query, pgSchema, repository.LedgerTable)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[tableRow])
}

func (c *Connector) describeColumns(ctx context.Context, pgSchema, table string) ([]schema.ColumnDescription, error) {
	query := `
		SELECT
			c.column_name,
			c.data_type,
			c.udt_name,
			c.is_nullable,
			c.column_default,
			c.is_identity,
			c.character_maximum_length
		FROM information_schema.columns c
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position
	`

	rows, err := c.pool.Query(ctx, query, pgSchema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []schema.ColumnDescription
	for rows.Next() {
		var name, dataType, udtName, nullable, identity string
		var defaultVal *string
		var charMaxLength *int

		if err := rows.Scan(&name, &dataType, &udtName, &nullable, &defaultVal, &identity, &charMaxLength); err != nil {
			return nil, err
		}

		col := schema.ColumnDescription{
			Name:       name,
			Type:       postgresFamily(dataType, udtName),
			NativeType: normalizePostgresType(dataType, udtName, charMaxLength),
			Nullable:   nullable == "YES",
			List:       dataType == "ARRAY",
		}
		if col.List {
			// List columns carry no separate nullability.
			col.Nullable = false
		}

		switch {
		case identity == "YES":
			col.AutoIncrement = true
		case defaultVal != nil && strings.HasPrefix(*defaultVal, "nextval("):
			// serial columns
			col.AutoIncrement = true
		case defaultVal != nil:
			col.Default = defaultVal
		}
		columns = append(columns, col)
	}

	return columns, rows.Err()
}

// normalizePostgresType maps verbose SQL type names to the names used in DDL.
func normalizePostgresType(dataType, udtName string, charMaxLength *int) string {
	switch dataType {
	case "timestamp with time zone":
		return "timestamptz"
	case "timestamp without time zone":
		return "timestamp"
	case "character varying":
		if charMaxLength != nil {
			return fmt.Sprintf("varchar(%d)", *charMaxLength)
		}
		return "varchar"
	case "character":
		if charMaxLength != nil {
			return fmt.Sprintf("char(%d)", *charMaxLength)
		}
		return "char"
	case "ARRAY":
		// udt_name of an array is the element type with an underscore prefix.
		return normalizeUdtName(strings.TrimPrefix(udtName, "_"))
	case "USER-DEFINED":
		return udtName
	default:
		return dataType
	}
}

func normalizeUdtName(udtName string) string {
	switch udtName {
	case "int4":
		return "integer"
	case "int8":
		return "bigint"
	case "int2":
		return "smallint"
	case "float4":
		return "real"
	case "float8":
		return "double precision"
	case "bool":
		return "boolean"
	default:
		return udtName
	}
}

func postgresFamily(dataType, udtName string) schema.TypeFamily {
	if dataType == "USER-DEFINED" {
		return schema.FamilyEnum
	}
	switch strings.TrimPrefix(udtName, "_") {
	case "int2", "int4":
		return schema.FamilyInt
	case "int8":
		return schema.FamilyBigInt
	case "float4", "float8":
		return schema.FamilyFloat
	case "numeric":
		return schema.FamilyDecimal
	case "bool":
		return schema.FamilyBoolean
	case "text", "varchar", "bpchar", "citext":
		return schema.FamilyString
	case "timestamp", "timestamptz", "date", "time", "timetz":
		return schema.FamilyDateTime
	case "bytea":
		return schema.FamilyBinary
	case "json", "jsonb":
		return schema.FamilyJSON
	case "uuid":
		return schema.FamilyUUID
	}
	return schema.FamilyUnsupported
}

func (c *Connector) describePrimaryKey(ctx context.Context, pgSchema, table string) (*schema.PrimaryKeyDescription, error) {
	query := `
		SELECT con.conname,
			array(
				SELECT a.attname
				FROM unnest(con.conkey) WITH ORDINALITY AS k(attnum, ord)
				JOIN pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = k.attnum
				ORDER BY k.ord
			) AS columns
		FROM pg_constraint con
		JOIN pg_class t ON t.oid = con.conrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		WHERE con.contype = 'p' AND n.nspname = $1 AND t.relname = $2
	`

	var pk schema.PrimaryKeyDescription
	err := c.pool.QueryRow(ctx, query, pgSchema, table).Scan(&pk.Name, &pk.Columns)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pk, nil
}

func (c *Connector) describeIndexes(ctx context.Context, pgSchema, table string) ([]schema.IndexDescription, error) {
	query := `
		SELECT
			i.relname AS index_name,
			ix.indisunique AS is_unique,
			array_agg(a.attname ORDER BY array_position(ix.indkey, a.attnum)) AS column_names
		FROM pg_class t
		JOIN pg_index ix ON t.oid = ix.indrelid
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
		JOIN pg_namespace n ON n.oid = t.relnamespace
		WHERE n.nspname = $1
			AND t.relname = $2
			AND NOT ix.indisprimary
			AND ix.indexprs IS NULL
		GROUP BY i.relname, ix.indisunique
		ORDER BY i.relname
	`

	rows, err := c.pool.Query(ctx, query, pgSchema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var indexes []schema.IndexDescription
	for rows.Next() {
		var idx schema.IndexDescription
		if err := rows.Scan(&idx.Name, &idx.Unique, &idx.Columns); err != nil {
			return nil, err
		}
		indexes = append(indexes, idx)
	}

	return indexes, rows.Err()
}

func (c *Connector) describeForeignKeys(ctx context.Context, pgSchema, namespace, table string) ([]schema.ForeignKeyDescription, error) {
	query := `
		SELECT
			con.conname,
			rn.nspname,
			rt.relname,
			array(
				SELECT a.attname
				FROM unnest(con.conkey) WITH ORDINALITY AS k(attnum, ord)
				JOIN pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = k.attnum
				ORDER BY k.ord
			) AS columns,
			array(
				SELECT a.attname
				FROM unnest(con.confkey) WITH ORDINALITY AS k(attnum, ord)
				JOIN pg_attribute a ON a.attrelid = con.confrelid AND a.attnum = k.attnum
				ORDER BY k.ord
			) AS referenced_columns,
			con.confdeltype::text,
			con.confupdtype::text
		FROM pg_constraint con
		JOIN pg_class t ON t.oid = con.conrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		JOIN pg_class rt ON rt.oid = con.confrelid
		JOIN pg_namespace rn ON rn.oid = rt.relnamespace
		WHERE con.contype = 'f' AND n.nspname = $1 AND t.relname = $2
		ORDER BY con.conname
	`

	rows, err := c.pool.Query(ctx, query, pgSchema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []schema.ForeignKeyDescription
	for rows.Next() {
		var fk schema.ForeignKeyDescription
		var refSchema, onDelete, onUpdate string
		if err := rows.Scan(&fk.Name, &refSchema, &fk.ReferencedTable, &fk.Columns, &fk.ReferencedColumns, &onDelete, &onUpdate); err != nil {
			return nil, err
		}
		if refSchema != pgSchema {
			log.Warn().Str("table", table).Str("foreignKey", fk.Name).Str("references", refSchema+"."+fk.ReferencedTable).
				Msg("Ignoring foreign key into another schema")
			continue
		}
		fk.ReferencedNamespace = namespace
		fk.OnDelete = foreignKeyAction(onDelete)
		fk.OnUpdate = foreignKeyAction(onUpdate)
		fks = append(fks, fk)
	}

	return fks, rows.Err()
}

// foreignKeyAction maps the pg_constraint action codes.
func foreignKeyAction(code string) string {
	switch code {
	case "r":
		return "restrict"
	case "c":
		return "cascade"
	case "n":
		return "set null"
	case "d":
		return "set default"
	default:
		return "no action"
	}
}

func (c *Connector) Namespaces(ctx context.Context) ([]string, error) {
	query := `
		SELECT nspname
		FROM pg_namespace
		WHERE nspname NOT LIKE 'pg\_%' AND nspname <> 'information_schema'
		ORDER BY nspname
	`
	rows, err := c.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query namespaces: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
