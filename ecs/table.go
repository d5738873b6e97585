package ecs

import (
	"github.com/RoyAwesome/flecs/internal/assert"
)

// tableID is a stable index into the world's table arena. Tables reference
// each other through ids and pointers interchangeably; tables are never
// freed during a run, so both stay valid.
type tableID = int

type tableFlags uint8

const (
	// tableStaged marks a table created inside a worker stage and not yet
	// grafted into the main table set.
	tableStaged tableFlags = 1 << iota
	// tableIsPrefab marks a table whose type contains the Prefab tag.
	tableIsPrefab
	// tableHasPrefab marks a table whose type references a prefab entity,
	// making Shared component lookups meaningful.
	tableHasPrefab
	// tableHasBuiltins marks a table whose type contains builtin ids.
	tableHasBuiltins
)

// edge caches the single-component add/remove transitions out of a table.
// A nil pointer means "not yet computed", never "does not exist".
type edge struct {
	add    *Table
	remove *Table
}

// tableData is one stage's view of a table's rows: the entity column, the
// per-component data columns, and the parallel record back-pointer column
// used to repair the moved entity's record in O(1) on swap-remove. Only
// the main stage's view is canonical; other stages hold additions pending
// merge.
type tableData struct {
	entities   []EntityID
	recordPtrs []EntityID
	columns    []abstractColumn
}

func (d *tableData) len() int { return len(d.entities) }

// Table stores, column-major, the component data of every entity whose
// type is exactly typ.
type Table struct {
	id    tableID
	typ   TypeHandle
	flags tableFlags

	// loEdges is indexed directly by component id for ids below
	// HiComponentID; hiEdges holds the rest. Both are populated lazily.
	loEdges []edge
	hiEdges map[EntityID]*edge

	// depth and parent order Cascade iteration: depth counts container
	// hops from a root table, parent is the container entity found in typ.
	depth  int
	parent EntityID
	// prefab is the prefab entity referenced by typ, if any. Shared
	// component lookups resolve against its row.
	prefab EntityID

	data      tableData
	stageData map[int]*tableData
}

// newTable creates an empty table for typ, with one column per registered
// non-tag component in the type. Unregistered ids (prefab and container
// references) and tag components appear in the type but own no column.
func newTable(id tableID, typ TypeHandle, components *componentRegistry) *Table {
	var columns []abstractColumn
	for _, c := range typ.IDs() {
		rec, ok := components.get(c)
		if !ok || rec.isTag() {
			continue
		}
		columns = append(columns, rec.factory())
	}
	return &Table{
		id:   id,
		typ:  typ,
		data: tableData{columns: columns},
	}
}

// Type returns the interned type handle identifying this table.
func (t *Table) Type() TypeHandle { return t.typ }

// Len returns the number of rows in the main-stage view.
func (t *Table) Len() int { return t.data.len() }

// Entities returns the main-stage entity column. Callers must not mutate
// the returned slice.
func (t *Table) Entities() []EntityID { return t.data.entities }

// IsPrefab reports whether this table stores prefab template entities.
func (t *Table) IsPrefab() bool { return t.flags&tableIsPrefab != 0 }

// Depth returns this table's container depth, used for Cascade ordering.
func (t *Table) Depth() int { return t.depth }

// view returns the tableData for stageID, creating the staged view on
// first use. Stage 0 is the main stage and always resolves to the
// canonical data.
func (t *Table) view(stageID int) *tableData {
	if stageID == mainStageID {
		return &t.data
	}
	if t.stageData == nil {
		t.stageData = make(map[int]*tableData)
	}
	d, ok := t.stageData[stageID]
	if !ok {
		// Staged views need their own columns, cloned empty from the
		// main layout.
		cols := make([]abstractColumn, len(t.data.columns))
		for i, c := range t.data.columns {
			cols[i] = emptyCloneOf(c)
		}
		d = &tableData{columns: cols}
		t.stageData[stageID] = d
	}
	return d
}

// emptyCloneOf builds a zero-length column with the same component id,
// layout, and hooks as c.
func emptyCloneOf(c abstractColumn) abstractColumn {
	type cloneable interface{ emptyClone() abstractColumn }
	cl, ok := c.(cloneable)
	assert.That(ok, "column is not cloneable")
	return cl.emptyClone()
}

// columnIndex returns the position of component c's column within a view's
// columns slice, or -1 if c owns no column here (absent, tag, or
// unregistered reference id).
func (t *Table) columnIndex(c EntityID) int {
	for i, col := range t.data.columns {
		if col.componentID() == c {
			return i
		}
	}
	return -1
}

// edgeFor returns the edge slot for component c, allocating the lazy
// structures on first touch.
func (t *Table) edgeFor(c EntityID, hiComponentID uint64) *edge {
	if uint64(c) < hiComponentID {
		if t.loEdges == nil {
			t.loEdges = make([]edge, hiComponentID)
		}
		return &t.loEdges[c]
	}
	if t.hiEdges == nil {
		t.hiEdges = make(map[EntityID]*edge)
	}
	e, ok := t.hiEdges[c]
	if !ok {
		e = &edge{}
		t.hiEdges[c] = e
	}
	return e
}

// appendRow reserves a new row in view d for entity e: the entity and
// record-pointer columns grow by one and every data column is extended
// with a zero/init-initialised slot. Returns the new row index.
func (t *Table) appendRow(d *tableData, e EntityID) int {
	d.entities = append(d.entities, e)
	d.recordPtrs = append(d.recordPtrs, e)
	for _, col := range d.columns {
		col.extend()
		assert.That(col.len() == len(d.entities), "column length diverged from entity column")
	}
	return len(d.entities) - 1
}

// swapRemoveRow removes row from view d by moving the last row into its
// place. The moved entity's record is repaired through the record-pointer
// column; its watched flag is preserved. Component data at the removed row
// is finalized.
func (t *Table) swapRemoveRow(d *tableData, row int, idx *EntityIndex) {
	last := d.len() - 1
	assert.That(row >= 0 && row <= last, "row out of range in swap remove")

	for _, col := range d.columns {
		col.swapRemove(row)
	}
	t.repairAfterSwap(d, row, idx)
}

// repairAfterSwap shortens the entity and record-pointer columns after the
// data columns have been swap-removed, and rewrites the moved entity's
// record row.
func (t *Table) repairAfterSwap(d *tableData, row int, idx *EntityIndex) {
	last := d.len() - 1
	if row != last {
		d.entities[row] = d.entities[last]
		d.recordPtrs[row] = d.recordPtrs[last]
	}
	d.entities = d.entities[:last]
	d.recordPtrs = d.recordPtrs[:last]

	if row != last {
		movedID := d.recordPtrs[row]
		rec, ok := idx.Get(movedID)
		assert.That(ok, "moved entity has no record")
		assert.That(rec.Table == t, "moved entity's record points at another table")
		idx.Set(movedID, rec.WithRow(int32(row)))
	}
}

// moveRowTo transfers the entity at src view row into dst's view. Columns
// present in both types are copied by component id (honouring Merge
// hooks); destination-only columns are zero/init-initialised by the
// append; source-only columns are finalized. Returns the destination row.
func (t *Table) moveRowTo(d *tableData, row int, dst *Table, dstData *tableData, idx *EntityIndex) int {
	e := d.entities[row]
	newRow := dst.appendRow(dstData, e)

	for _, srcCol := range d.columns {
		moved := false
		for _, dstCol := range dstData.columns {
			if dstCol.componentID() == srcCol.componentID() {
				srcCol.copyRowTo(row, dstCol, newRow)
				moved = true
				break
			}
		}
		if moved {
			srcCol.swapRemoveRaw(row)
		} else {
			srcCol.swapRemove(row)
		}
	}
	t.repairAfterSwap(d, row, idx)
	return newRow
}
