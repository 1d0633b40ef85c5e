package migration

import (
	"fmt"

	"github.com/dfryer1193/schemad/api"
	"github.com/dfryer1193/schemad/internal/schema"
)

type classification struct {
	severity api.Severity
	code     string
	message  string
}

var safe = classification{severity: api.SeveritySafe}

var severityRank = map[api.Severity]int{
	api.SeveritySafe:         0,
	api.SeverityWarning:      1,
	api.SeverityUnexecutable: 2,
	api.SeverityDestructive:  3,
}

// Check classifies every step of m and returns one warning per step that is
// not safe, in step order. Step indexes in the warnings are zero-based.
// Classification only looks at the steps and the previous schema; it never
// samples data.
func Check(m *DatabaseMigration) []api.DestructiveChangeWarning {
	created := createdTables(m)
	warnings := make([]api.DestructiveChangeWarning, 0)
	for i, step := range m.Steps {
		c := classify(m, step, created)
		if c.severity == api.SeveritySafe {
			continue
		}
		warnings = append(warnings, api.DestructiveChangeWarning{
			Code:     c.code,
			Message:  c.message,
			Severity: c.severity,
			Steps:    []int{i},
		})
	}
	return warnings
}

// Classify returns the severity of step i of m.
func Classify(m *DatabaseMigration, i int) api.Severity {
	return classify(m, m.Steps[i], createdTables(m)).severity
}

func createdTables(m *DatabaseMigration) map[schema.TableID]bool {
	created := make(map[schema.TableID]bool)
	for _, step := range m.Steps {
		if ct, ok := step.(CreateTable); ok {
			created[ct.Table] = true
		}
	}
	return created
}

// classify rates one step. Drops are destructive whatever the table; any
// other change to a partition table is unexecutable.
func classify(m *DatabaseMigration, step MigrationStep, created map[schema.TableID]bool) classification {
	switch step.(type) {
	case DropTable, DropColumn:
	default:
		if t, ok := partitionTable(m, step); ok {
			return classification{
				severity: api.SeverityUnexecutable,
				code:     "partition_table",
				message:  fmt.Sprintf("Table %s is a partition; changing partitions is not supported.", t),
			}
		}
	}

	switch s := step.(type) {
	case DropTable:
		t := m.Previous.Table(s.Table)
		return classification{
			severity: api.SeverityDestructive,
			code:     "drop_table",
			message:  fmt.Sprintf("Dropping table %s and all of its %d columns. All data in the table will be lost.", t.QualifiedName(), t.ColumnCount()),
		}
	case DropColumn:
		c := m.Previous.Column(s.Column)
		return classification{
			severity: api.SeverityDestructive,
			code:     "drop_column",
			message:  fmt.Sprintf("Dropping column %s of table %s. All data in the column will be lost.", c.Name(), c.Table().QualifiedName()),
		}
	case AddColumn:
		c := m.Next.Column(s.Column)
		if _, hasDefault := c.Default(); c.IsRequired() && !hasDefault && !c.IsAutoIncrement() {
			return classification{
				severity: api.SeverityWarning,
				code:     "add_required_column",
				message:  fmt.Sprintf("Adding required column %s to table %s without a default value. This fails if the table is not empty.", c.Name(), c.Table().QualifiedName()),
			}
		}
	case AlterColumn:
		return classifyAlter(m, s)
	case CreateIndex:
		idx := m.Next.Index(s.Index)
		if idx.IsUnique() && !created[idx.Table().ID()] {
			return classification{
				severity: api.SeverityWarning,
				code:     "unique_index_on_existing_table",
				message:  fmt.Sprintf("Adding %s index %s on table %s. This fails if existing rows contain duplicates.", idx.Kind(), idx.Name(), idx.Table().QualifiedName()),
			}
		}
	}
	return safe
}

func partitionTable(m *DatabaseMigration, step MigrationStep) (string, bool) {
	var t schema.TableWalker
	switch s := step.(type) {
	case CreateTable:
		t = m.Next.Table(s.Table)
	case RenameTable:
		t = m.Previous.Table(s.Previous)
	case AddColumn:
		t = m.Next.Column(s.Column).Table()
	case AlterColumn:
		t = m.Next.Column(s.Next).Table()
	case RenameColumn:
		t = m.Next.Column(s.Next).Table()
	case CreateIndex:
		t = m.Next.Index(s.Index).Table()
	case DropIndex:
		t = m.Previous.Index(s.Index).Table()
	case AddForeignKey:
		t = m.Next.ForeignKey(s.ForeignKey).ConstrainedTable()
	case DropForeignKey:
		t = m.Previous.ForeignKey(s.ForeignKey).ConstrainedTable()
	default:
		return "", false
	}
	return t.QualifiedName(), t.IsPartition()
}

func classifyAlter(m *DatabaseMigration, s AlterColumn) classification {
	prev, next := m.Previous.Column(s.Previous), m.Next.Column(s.Next)
	where := fmt.Sprintf("column %s of table %s", next.Name(), next.Table().QualifiedName())
	result := safe
	worse := func(c classification) {
		if severityRank[c.severity] > severityRank[result.severity] {
			result = c
		}
	}

	if s.Changes.Has(ChangeArity) {
		switch {
		case (prev.Arity() == schema.List) != (next.Arity() == schema.List):
			worse(classification{
				severity: api.SeverityUnexecutable,
				code:     "list_scalar_change",
				message:  fmt.Sprintf("Changing %s between a list and a scalar cannot be done without a data migration.", where),
			})
		case prev.IsNullable() && next.IsRequired():
			worse(classification{
				severity: api.SeverityWarning,
				code:     "make_column_required",
				message:  fmt.Sprintf("Making %s required. This fails if the column contains NULL values.", where),
			})
		}
	}

	if s.Changes.Has(ChangeType) {
		switch castBetween(prev.Type(), next.Type()) {
		case castNarrowing:
			worse(classification{
				severity: api.SeverityWarning,
				code:     "narrowing_cast",
				message:  fmt.Sprintf("Changing the type of %s from %s to %s may lose data.", where, typeName(prev.Type()), typeName(next.Type())),
			})
		case castNone:
			worse(classification{
				severity: api.SeverityUnexecutable,
				code:     "no_implicit_cast",
				message:  fmt.Sprintf("There is no implicit cast for %s from %s to %s.", where, typeName(prev.Type()), typeName(next.Type())),
			})
		}
	}
	return result
}

func typeName(t schema.ColumnType) string {
	if t.FullDataType != "" {
		return t.FullDataType
	}
	return t.Family.String()
}

type cast int

const (
	castSafe cast = iota
	castNarrowing
	castNone
)

// widening lists, per source family, the families it converts to without loss.
var widening = map[schema.TypeFamily][]schema.TypeFamily{
	schema.FamilyInt:      {schema.FamilyBigInt, schema.FamilyFloat, schema.FamilyDecimal, schema.FamilyString},
	schema.FamilyBigInt:   {schema.FamilyDecimal, schema.FamilyString},
	schema.FamilyFloat:    {schema.FamilyString},
	schema.FamilyDecimal:  {schema.FamilyString},
	schema.FamilyBoolean:  {schema.FamilyString},
	schema.FamilyDateTime: {schema.FamilyString},
	schema.FamilyUUID:     {schema.FamilyString},
	schema.FamilyEnum:     {schema.FamilyString},
	schema.FamilyJSON:     {schema.FamilyString},
}

// narrowing lists conversions the database performs but that can round,
// truncate or overflow.
var narrowing = map[schema.TypeFamily][]schema.TypeFamily{
	schema.FamilyBigInt:  {schema.FamilyInt, schema.FamilyFloat},
	schema.FamilyFloat:   {schema.FamilyInt, schema.FamilyBigInt, schema.FamilyDecimal},
	schema.FamilyDecimal: {schema.FamilyInt, schema.FamilyBigInt, schema.FamilyFloat},
}

func castBetween(from, to schema.ColumnType) cast {
	if from.Family == to.Family {
		// Same family, different native spelling: precision or length may shrink.
		return castNarrowing
	}
	for _, f := range widening[from.Family] {
		if f == to.Family {
			return castSafe
		}
	}
	for _, f := range narrowing[from.Family] {
		if f == to.Family {
			return castNarrowing
		}
	}
	return castNone
}

// Policy decides which warnings block a migration.
type Policy struct {
	// AcceptDataLoss acknowledges warning and destructive steps.
	AcceptDataLoss bool
	// Force additionally lets unexecutable steps through to the database.
	Force bool
}

// Enforce returns a *DestructiveChangeError listing the warnings the policy
// does not acknowledge, or nil.
func (p Policy) Enforce(name string, warnings []api.DestructiveChangeWarning) error {
	if p.Force {
		return nil
	}
	var rejected []api.DestructiveChangeWarning
	for _, w := range warnings {
		switch w.Severity {
		case api.SeverityUnexecutable:
			rejected = append(rejected, w)
		case api.SeverityWarning, api.SeverityDestructive:
			if !p.AcceptDataLoss {
				rejected = append(rejected, w)
			}
		}
	}
	if len(rejected) == 0 {
		return nil
	}
	return &DestructiveChangeError{Migration: name, Warnings: rejected}
}
