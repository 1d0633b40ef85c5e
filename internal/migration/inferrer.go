package migration

import (
	"cmp"
	"maps"
	"slices"
	"strings"

	"github.com/dfryer1193/schemad/internal/schema"
	"github.com/rs/zerolog/log"
)

// ColumnRef names a column of the previous schema by qualified table name.
type ColumnRef struct {
	Table  string
	Column string
}

// RenameHints declares which entities were renamed rather than dropped and
// recreated. Keys are previous names, values next names. Renames are never
// guessed: without a hint, a different name is a different entity.
type RenameHints struct {
	Tables  map[string]string
	Columns map[ColumnRef]string
}

type differ struct {
	prev, next *schema.SqlSchema

	tables      map[schema.TableID]schema.TableID
	nextTables  map[schema.TableID]schema.TableID
	columns     map[schema.ColumnID]schema.ColumnID
	nextColumns map[schema.ColumnID]schema.ColumnID
	alters      map[schema.ColumnID]ColumnChanges

	indexes         map[schema.IndexID]schema.IndexID
	nextIndexes     map[schema.IndexID]schema.IndexID
	foreignKeys     map[schema.ForeignKeyID]schema.ForeignKeyID
	nextForeignKeys map[schema.ForeignKeyID]schema.ForeignKeyID

	steps []MigrationStep
}

// Infer diffs previous against next and returns the steps that turn the one
// into the other, in an order the database can execute: drops of foreign
// keys, indexes, columns and tables first, then renames, then creates and
// alters. Creates follow next's declaration order and drops previous's.
func Infer(previous, next *schema.SqlSchema, hints RenameHints) (*DatabaseMigration, error) {
	if previous == nil || next == nil {
		return nil, planningErrorf("both the previous and the next schema are required")
	}

	d := &differ{
		prev:            previous,
		next:            next,
		tables:          make(map[schema.TableID]schema.TableID),
		nextTables:      make(map[schema.TableID]schema.TableID),
		columns:         make(map[schema.ColumnID]schema.ColumnID),
		nextColumns:     make(map[schema.ColumnID]schema.ColumnID),
		alters:          make(map[schema.ColumnID]ColumnChanges),
		indexes:         make(map[schema.IndexID]schema.IndexID),
		nextIndexes:     make(map[schema.IndexID]schema.IndexID),
		foreignKeys:     make(map[schema.ForeignKeyID]schema.ForeignKeyID),
		nextForeignKeys: make(map[schema.ForeignKeyID]schema.ForeignKeyID),
	}

	if err := d.matchTables(hints.Tables); err != nil {
		return nil, err
	}
	if err := d.matchColumns(hints.Columns); err != nil {
		return nil, err
	}
	d.matchIndexes()
	d.matchForeignKeys()

	d.dropForeignKeys()
	d.dropIndexes()
	d.dropColumns()
	d.dropTables()
	if err := d.renameTables(); err != nil {
		return nil, err
	}
	if err := d.renameColumns(); err != nil {
		return nil, err
	}
	d.createTables()
	d.addColumns()
	d.alterColumns()
	d.createIndexes()
	d.addForeignKeys()

	log.Debug().Int("steps", len(d.steps)).Msg("Inferred migration")
	return &DatabaseMigration{Previous: previous, Next: next, Steps: d.steps}, nil
}

func findQualified(s *schema.SqlSchema, name string) (schema.TableWalker, bool) {
	for _, t := range s.Tables() {
		if t.QualifiedName() == name {
			return t, true
		}
	}
	return schema.TableWalker{}, false
}

func (d *differ) matchTables(hints map[string]string) error {
	for _, from := range slices.Sorted(maps.Keys(hints)) {
		to := hints[from]
		pt, ok := findQualified(d.prev, from)
		if !ok {
			return planningErrorf("rename hint references unknown table %s", from)
		}
		nt, ok := findQualified(d.next, to)
		if !ok {
			return planningErrorf("rename hint for table %s targets unknown table %s", from, to)
		}
		if _, taken := d.nextTables[nt.ID()]; taken {
			return planningErrorf("table %s is the target of more than one rename", to)
		}
		if pt.Namespace() != nt.Namespace() {
			return planningErrorf("cannot rename table %s across namespaces to %s", from, to)
		}
		d.tables[pt.ID()] = nt.ID()
		d.nextTables[nt.ID()] = pt.ID()
	}

	for _, pt := range d.prev.Tables() {
		if _, hinted := hints[pt.QualifiedName()]; hinted {
			continue
		}
		nt, ok := findQualified(d.next, pt.QualifiedName())
		if !ok {
			continue
		}
		if _, taken := d.nextTables[nt.ID()]; taken {
			continue
		}
		d.tables[pt.ID()] = nt.ID()
		d.nextTables[nt.ID()] = pt.ID()
	}
	return nil
}

func (d *differ) linkColumns(prev, next schema.ColumnID) {
	d.columns[prev] = next
	d.nextColumns[next] = prev
}

func (d *differ) matchColumns(hints map[ColumnRef]string) error {
	refs := slices.SortedFunc(maps.Keys(hints), func(a, b ColumnRef) int {
		if c := cmp.Compare(a.Table, b.Table); c != 0 {
			return c
		}
		return cmp.Compare(a.Column, b.Column)
	})
	for _, ref := range refs {
		to := hints[ref]
		pt, ok := findQualified(d.prev, ref.Table)
		if !ok {
			return planningErrorf("rename hint references unknown table %s", ref.Table)
		}
		nid, kept := d.tables[pt.ID()]
		if !kept {
			return planningErrorf("rename hint for column %s.%s: table is dropped", ref.Table, ref.Column)
		}
		pc, ok := pt.Column(ref.Column)
		if !ok {
			return planningErrorf("rename hint references unknown column %s.%s", ref.Table, ref.Column)
		}
		nc, ok := d.next.Table(nid).Column(to)
		if !ok {
			return planningErrorf("rename hint for column %s.%s targets unknown column %s", ref.Table, ref.Column, to)
		}
		if _, taken := d.nextColumns[nc.ID()]; taken {
			return planningErrorf("column %s is the target of more than one rename", to)
		}
		d.linkColumns(pc.ID(), nc.ID())
	}

	for _, pt := range d.prev.Tables() {
		nid, kept := d.tables[pt.ID()]
		if !kept {
			continue
		}
		nt := d.next.Table(nid)
		for _, pc := range pt.Columns() {
			if _, hinted := hints[ColumnRef{Table: pt.QualifiedName(), Column: pc.Name()}]; hinted {
				continue
			}
			nc, ok := nt.Column(pc.Name())
			if !ok {
				continue
			}
			if _, taken := d.nextColumns[nc.ID()]; taken {
				continue
			}
			d.linkColumns(pc.ID(), nc.ID())
		}
		for _, pc := range pt.Columns() {
			if nc, ok := d.columns[pc.ID()]; ok {
				if changes := columnChanges(pc, d.next.Column(nc)); changes != 0 {
					d.alters[pc.ID()] = changes
				}
			}
		}
	}
	return nil
}

func columnChanges(prev, next schema.ColumnWalker) ColumnChanges {
	var changes ColumnChanges
	pt, nt := prev.Type(), next.Type()
	if !pt.SameNativeType(nt) {
		changes |= ChangeType
	}
	if pt.Arity != nt.Arity {
		changes |= ChangeArity
	}
	pd, pok := prev.Default()
	nd, nok := next.Default()
	if pok != nok || pd != nd {
		changes |= ChangeDefault
	}
	if prev.IsAutoIncrement() != next.IsAutoIncrement() {
		changes |= ChangeAutoIncrement
	}
	return changes
}

// matchIndexes pairs indexes of kept tables. Primary keys pair with primary
// keys regardless of name, other indexes by name.
func (d *differ) matchIndexes() {
	for _, pt := range d.prev.Tables() {
		nid, kept := d.tables[pt.ID()]
		if !kept {
			continue
		}
		nt := d.next.Table(nid)
		for _, pi := range pt.Indexes() {
			var (
				ni schema.IndexWalker
				ok bool
			)
			if pi.IsPrimaryKey() {
				ni, ok = nt.PrimaryKey()
			} else {
				ni, ok = nt.Index(pi.Name())
				ok = ok && !ni.IsPrimaryKey()
			}
			if !ok {
				continue
			}
			if _, taken := d.nextIndexes[ni.ID()]; taken {
				continue
			}
			d.indexes[pi.ID()] = ni.ID()
			d.nextIndexes[ni.ID()] = pi.ID()
		}
	}
}

func (d *differ) indexUnchanged(prev schema.IndexID) bool {
	nid, ok := d.indexes[prev]
	if !ok {
		return false
	}
	pi, ni := d.prev.Index(prev), d.next.Index(nid)
	if pi.Kind() != ni.Kind() {
		return false
	}
	pcs, ncs := pi.Columns(), ni.Columns()
	if len(pcs) != len(ncs) {
		return false
	}
	for i := range pcs {
		mapped, ok := d.columns[pcs[i].Column().ID()]
		if !ok || mapped != ncs[i].Column().ID() || pcs[i].SortOrder() != ncs[i].SortOrder() {
			return false
		}
	}
	return true
}

// matchForeignKeys pairs foreign keys of kept tables: by name when both
// sides are named, otherwise by the columns they connect.
func (d *differ) matchForeignKeys() {
	for _, pt := range d.prev.Tables() {
		nid, kept := d.tables[pt.ID()]
		if !kept {
			continue
		}
		for _, pfk := range pt.ForeignKeys() {
			for _, nfk := range d.next.Table(nid).ForeignKeys() {
				if _, taken := d.nextForeignKeys[nfk.ID()]; taken {
					continue
				}
				named := pfk.Name() != "" && nfk.Name() != ""
				if (named && pfk.Name() == nfk.Name()) || (!named && d.sameForeignKeyShape(pfk, nfk)) {
					d.foreignKeys[pfk.ID()] = nfk.ID()
					d.nextForeignKeys[nfk.ID()] = pfk.ID()
					break
				}
			}
		}
	}
}

func (d *differ) sameForeignKeyShape(prev, next schema.ForeignKeyWalker) bool {
	if ref, ok := d.tables[prev.ReferencedTable().ID()]; !ok || ref != next.ReferencedTable().ID() {
		return false
	}
	pcs, ncs := prev.Columns(), next.Columns()
	if len(pcs) != len(ncs) {
		return false
	}
	for i := range pcs {
		constrained, ok := d.columns[pcs[i].ConstrainedColumn().ID()]
		if !ok || constrained != ncs[i].ConstrainedColumn().ID() {
			return false
		}
		referenced, ok := d.columns[pcs[i].ReferencedColumn().ID()]
		if !ok || referenced != ncs[i].ReferencedColumn().ID() {
			return false
		}
	}
	return true
}

// foreignKeyUnchanged is false when the key must be dropped and re-added:
// it moved, its actions changed, or one of its columns changes type.
func (d *differ) foreignKeyUnchanged(prev schema.ForeignKeyID) bool {
	nid, ok := d.foreignKeys[prev]
	if !ok {
		return false
	}
	pfk, nfk := d.prev.ForeignKey(prev), d.next.ForeignKey(nid)
	if !d.sameForeignKeyShape(pfk, nfk) {
		return false
	}
	if pfk.OnDelete() != nfk.OnDelete() || pfk.OnUpdate() != nfk.OnUpdate() {
		return false
	}
	for _, c := range pfk.Columns() {
		if d.alters[c.ConstrainedColumn().ID()].Has(ChangeType) || d.alters[c.ReferencedColumn().ID()].Has(ChangeType) {
			return false
		}
	}
	return true
}

func (d *differ) push(step MigrationStep) {
	d.steps = append(d.steps, step)
}

func (d *differ) dropForeignKeys() {
	for _, pt := range d.prev.Tables() {
		_, kept := d.tables[pt.ID()]
		for _, fk := range pt.ForeignKeys() {
			if !kept || !d.foreignKeyUnchanged(fk.ID()) {
				d.push(DropForeignKey{ForeignKey: fk.ID()})
			}
		}
	}
}

func (d *differ) dropIndexes() {
	for _, pt := range d.prev.Tables() {
		if _, kept := d.tables[pt.ID()]; !kept {
			continue
		}
		for _, idx := range pt.Indexes() {
			if !d.indexUnchanged(idx.ID()) {
				d.push(DropIndex{Index: idx.ID()})
			}
		}
	}
}

func (d *differ) dropColumns() {
	for _, pt := range d.prev.Tables() {
		if _, kept := d.tables[pt.ID()]; !kept {
			continue
		}
		for _, c := range pt.Columns() {
			if _, ok := d.columns[c.ID()]; !ok {
				d.push(DropColumn{Column: c.ID()})
			}
		}
	}
}

// dropTables drops a table only once no other dropped table references it.
// Foreign keys that stay inline with their table (sqlite) then never block a
// drop. Reference cycles fall back to previous declaration order.
func (d *differ) dropTables() {
	var pending []schema.TableWalker
	for _, pt := range d.prev.Tables() {
		if _, kept := d.tables[pt.ID()]; !kept {
			pending = append(pending, pt)
		}
	}

	for len(pending) > 0 {
		dropping := make(map[schema.TableID]bool, len(pending))
		for _, pt := range pending {
			dropping[pt.ID()] = true
		}
		pick := slices.IndexFunc(pending, func(pt schema.TableWalker) bool {
			return !slices.ContainsFunc(pt.ReferencingForeignKeys(), func(fk schema.ForeignKeyWalker) bool {
				child := fk.ConstrainedTable().ID()
				return child != pt.ID() && dropping[child]
			})
		})
		if pick < 0 {
			pick = 0
		}
		d.push(DropTable{Table: pending[pick].ID()})
		pending = slices.Delete(pending, pick, pick+1)
	}
}

type rename struct {
	from, to string
	step     MigrationStep
}

// orderRenames orders renames so that none runs while another pending rename
// still holds its target name: {a->b, b->c} becomes b->c, a->b. Renames that
// only wait on each other form a cycle, whose sources are returned instead.
func orderRenames(pending []rename) ([]MigrationStep, []string) {
	var out []MigrationStep
	for len(pending) > 0 {
		held := make(map[string]bool, len(pending))
		for _, r := range pending {
			held[r.from] = true
		}
		var waiting []rename
		for _, r := range pending {
			if held[r.to] {
				waiting = append(waiting, r)
				continue
			}
			out = append(out, r.step)
		}
		if len(waiting) == len(pending) {
			cycle := make([]string, len(waiting))
			for i, r := range waiting {
				cycle[i] = r.from
			}
			return nil, cycle
		}
		pending = waiting
	}
	return out, nil
}

func (d *differ) renameTables() error {
	var pending []rename
	for _, pt := range d.prev.Tables() {
		nid, kept := d.tables[pt.ID()]
		if !kept {
			continue
		}
		if nt := d.next.Table(nid); nt.Name() != pt.Name() {
			pending = append(pending, rename{
				from: pt.QualifiedName(),
				to:   nt.QualifiedName(),
				step: RenameTable{Previous: pt.ID(), Next: nid},
			})
		}
	}

	steps, cycle := orderRenames(pending)
	if cycle != nil {
		return planningErrorf("renames of tables %s form a cycle", strings.Join(cycle, ", "))
	}
	for _, step := range steps {
		d.push(step)
	}
	return nil
}

func (d *differ) renameColumns() error {
	for _, pt := range d.prev.Tables() {
		if _, kept := d.tables[pt.ID()]; !kept {
			continue
		}
		var pending []rename
		for _, pc := range pt.Columns() {
			nid, ok := d.columns[pc.ID()]
			if !ok {
				continue
			}
			if nc := d.next.Column(nid); nc.Name() != pc.Name() {
				pending = append(pending, rename{
					from: pc.Name(),
					to:   nc.Name(),
					step: RenameColumn{Previous: pc.ID(), Next: nid},
				})
			}
		}

		steps, cycle := orderRenames(pending)
		if cycle != nil {
			return planningErrorf("renames of columns %s on table %s form a cycle", strings.Join(cycle, ", "), pt.QualifiedName())
		}
		for _, step := range steps {
			d.push(step)
		}
	}
	return nil
}

// createTables creates every new table with its columns and primary key.
// Secondary indexes and foreign keys follow in later phases.
func (d *differ) createTables() {
	for _, nt := range d.next.Tables() {
		if _, kept := d.nextTables[nt.ID()]; !kept {
			d.push(CreateTable{Table: nt.ID()})
		}
	}
}

func (d *differ) addColumns() {
	for _, nt := range d.next.Tables() {
		if _, kept := d.nextTables[nt.ID()]; !kept {
			continue
		}
		for _, c := range nt.Columns() {
			if _, ok := d.nextColumns[c.ID()]; !ok {
				d.push(AddColumn{Column: c.ID()})
			}
		}
	}
}

func (d *differ) alterColumns() {
	for _, nt := range d.next.Tables() {
		if _, kept := d.nextTables[nt.ID()]; !kept {
			continue
		}
		for _, nc := range nt.Columns() {
			prev, ok := d.nextColumns[nc.ID()]
			if !ok {
				continue
			}
			if changes := d.alters[prev]; changes != 0 {
				d.push(AlterColumn{Previous: prev, Next: nc.ID(), Changes: changes})
			}
		}
	}
}

func (d *differ) createIndexes() {
	for _, nt := range d.next.Tables() {
		_, kept := d.nextTables[nt.ID()]
		for _, idx := range nt.Indexes() {
			if !kept {
				if !idx.IsPrimaryKey() {
					d.push(CreateIndex{Index: idx.ID()})
				}
				continue
			}
			prev, ok := d.nextIndexes[idx.ID()]
			if !ok || !d.indexUnchanged(prev) {
				d.push(CreateIndex{Index: idx.ID()})
			}
		}
	}
}

func (d *differ) addForeignKeys() {
	for _, nt := range d.next.Tables() {
		_, kept := d.nextTables[nt.ID()]
		for _, fk := range nt.ForeignKeys() {
			if !kept {
				d.push(AddForeignKey{ForeignKey: fk.ID()})
				continue
			}
			prev, ok := d.nextForeignKeys[fk.ID()]
			if !ok || !d.foreignKeyUnchanged(prev) {
				d.push(AddForeignKey{ForeignKey: fk.ID()})
			}
		}
	}
}
