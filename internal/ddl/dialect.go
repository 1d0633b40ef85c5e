// Package ddl renders migration steps as SQL for the supported databases.
package ddl

import (
	"fmt"
	"strings"

	"github.com/dfryer1193/schemad/internal/schema"
	"github.com/jackc/pgx/v5"
)

type Dialect int

const (
	Postgres Dialect = iota
	MySQL
	SQLite
)

func (d Dialect) String() string {
	switch d {
	case MySQL:
		return "mysql"
	case SQLite:
		return "sqlite"
	default:
		return "postgres"
	}
}

func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(s) {
	case "postgres", "postgresql":
		return Postgres, nil
	case "mysql":
		return MySQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return Postgres, fmt.Errorf("unknown dialect %q", s)
}

// Quote quotes a possibly namespace-qualified identifier.
func (d Dialect) Quote(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	if d == MySQL {
		quoted := make([]string, len(nonEmpty))
		for i, p := range nonEmpty {
			quoted[i] = "`" + strings.ReplaceAll(p, "`", "``") + "`"
		}
		return strings.Join(quoted, ".")
	}
	// SQLite shares the ANSI double-quote rules with Postgres.
	return pgx.Identifier(nonEmpty).Sanitize()
}

func (d Dialect) table(t schema.TableWalker) string {
	return d.Quote(t.Namespace(), t.Name())
}

func (d Dialect) columnList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = d.Quote(n)
	}
	return strings.Join(quoted, ", ")
}

var postgresTypes = map[schema.TypeFamily]string{
	schema.FamilyInt:      "integer",
	schema.FamilyBigInt:   "bigint",
	schema.FamilyFloat:    "double precision",
	schema.FamilyDecimal:  "numeric(65,30)",
	schema.FamilyBoolean:  "boolean",
	schema.FamilyString:   "text",
	schema.FamilyDateTime: "timestamp(3)",
	schema.FamilyBinary:   "bytea",
	schema.FamilyJSON:     "jsonb",
	schema.FamilyUUID:     "uuid",
	schema.FamilyEnum:     "text",
}

var mysqlTypes = map[schema.TypeFamily]string{
	schema.FamilyInt:      "int",
	schema.FamilyBigInt:   "bigint",
	schema.FamilyFloat:    "double",
	schema.FamilyDecimal:  "decimal(65,30)",
	schema.FamilyBoolean:  "boolean",
	schema.FamilyString:   "varchar(191)",
	schema.FamilyDateTime: "datetime(3)",
	schema.FamilyBinary:   "longblob",
	schema.FamilyJSON:     "json",
	schema.FamilyUUID:     "char(36)",
	schema.FamilyEnum:     "varchar(191)",
}

// sqliteTypes keep one declared name per family so that introspection can
// map a declared type back to its family.
var sqliteTypes = map[schema.TypeFamily]string{
	schema.FamilyInt:      "INTEGER",
	schema.FamilyBigInt:   "BIGINT",
	schema.FamilyFloat:    "REAL",
	schema.FamilyDecimal:  "DECIMAL",
	schema.FamilyBoolean:  "BOOLEAN",
	schema.FamilyString:   "TEXT",
	schema.FamilyDateTime: "DATETIME",
	schema.FamilyBinary:   "BLOB",
	schema.FamilyJSON:     "JSON",
	schema.FamilyUUID:     "UUID",
	schema.FamilyEnum:     "TEXT",
}

// SQLiteFamily maps a declared SQLite column type back to its family.
func SQLiteFamily(declared string) schema.TypeFamily {
	upper := strings.ToUpper(strings.TrimSpace(declared))
	if i := strings.IndexByte(upper, '('); i >= 0 {
		upper = strings.TrimSpace(upper[:i])
	}
	switch upper {
	case "INTEGER", "INT", "SMALLINT", "TINYINT", "MEDIUMINT":
		return schema.FamilyInt
	case "BIGINT":
		return schema.FamilyBigInt
	case "REAL", "DOUBLE", "FLOAT":
		return schema.FamilyFloat
	case "DECIMAL", "NUMERIC":
		return schema.FamilyDecimal
	case "BOOLEAN", "BOOL":
		return schema.FamilyBoolean
	case "TEXT", "VARCHAR", "CHAR", "CLOB":
		return schema.FamilyString
	case "DATETIME", "DATE", "TIMESTAMP":
		return schema.FamilyDateTime
	case "BLOB":
		return schema.FamilyBinary
	case "JSON":
		return schema.FamilyJSON
	case "UUID":
		return schema.FamilyUUID
	}
	return schema.FamilyUnsupported
}

func (d Dialect) columnType(t schema.ColumnType) (string, error) {
	native := t.FullDataType
	if native == "" {
		var types map[schema.TypeFamily]string
		switch d {
		case MySQL:
			types = mysqlTypes
		case SQLite:
			types = sqliteTypes
		default:
			types = postgresTypes
		}
		var ok bool
		if native, ok = types[t.Family]; !ok {
			return "", fmt.Errorf("%s has no type for family %s", d, t.Family)
		}
	}
	if t.Arity == schema.List {
		if d != Postgres {
			return "", fmt.Errorf("%s does not support list columns", d)
		}
		native += "[]"
	}
	return native, nil
}

// columnDefinition renders "name type [NOT NULL] [DEFAULT x] [identity]".
func (d Dialect) columnDefinition(c schema.ColumnWalker) (string, error) {
	typ, err := d.columnType(c.Type())
	if err != nil {
		return "", fmt.Errorf("column %s: %w", c.Name(), err)
	}
	var b strings.Builder
	b.WriteString(d.Quote(c.Name()))
	b.WriteString(" ")
	b.WriteString(typ)
	if c.IsRequired() {
		b.WriteString(" NOT NULL")
	}
	if def, ok := c.Default(); ok {
		b.WriteString(" DEFAULT ")
		b.WriteString(def)
	}
	if c.IsAutoIncrement() {
		switch d {
		case Postgres:
			b.WriteString(" GENERATED BY DEFAULT AS IDENTITY")
		case MySQL:
			b.WriteString(" AUTO_INCREMENT")
		case SQLite:
			if !sqliteRowidAlias(c) {
				return "", fmt.Errorf("column %s: sqlite only auto-increments a single INTEGER primary key", c.Name())
			}
			b.WriteString(" PRIMARY KEY AUTOINCREMENT")
		}
	}
	return b.String(), nil
}

// sqliteRowidAlias reports whether c is the sole primary key column of an
// INTEGER type, the only shape SQLite can auto-increment.
func sqliteRowidAlias(c schema.ColumnWalker) bool {
	pk := c.Table().PrimaryKeyColumns()
	if len(pk) != 1 || pk[0].Column().ID() != c.ID() {
		return false
	}
	typ := c.Type().FullDataType
	return c.Family() == schema.FamilyInt && (typ == "" || strings.EqualFold(typ, "INTEGER"))
}
