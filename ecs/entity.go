package ecs

import (
	"cmp"
	"slices"
)

// EntityID is a 64-bit opaque identifier. Id 0 is reserved ("none"). Ids
// below Config.HiComponentID additionally name component types.
type EntityID uint64

const noneEntity EntityID = 0

const (
	watchedBit uint32 = 1 << 31
	rowMask    uint32 = watchedBit - 1
)

// packRow encodes a signed row index (including the -1 "no row" sentinel
// used by empty-type entities) and the watched flag into a single uint32,
// with the flag occupying the high bit.
func packRow(row int32, watched bool) uint32 {
	code := uint32(row+1) & rowMask
	if watched {
		code |= watchedBit
	}
	return code
}

func unpackRow(packed uint32) int32    { return int32(packed&rowMask) - 1 } //nolint:gosec // masked to 31 bits
func unpackWatched(packed uint32) bool { return packed&watchedBit != 0 }

// Record locates a live entity's data: the table holding its components,
// the row within that table (-1 for an entity of the empty type), and the
// watched flag used by observers that care about a specific entity.
type Record struct {
	Table  *Table
	packed uint32
}

func newRecord(table *Table, row int32) Record {
	return Record{Table: table, packed: packRow(row, false)}
}

// Row returns the row index, or -1 if this entity occupies no column data.
func (r Record) Row() int32 { return unpackRow(r.packed) }

// Watched reports whether this record is flagged as watched.
func (r Record) Watched() bool { return unpackWatched(r.packed) }

// WithRow returns a copy of r with a new row, preserving the watched flag.
func (r Record) WithRow(row int32) Record {
	r.packed = packRow(row, r.Watched())
	return r
}

// WithWatched returns a copy of r with the watched flag set to watched,
// preserving the row.
func (r Record) WithWatched(watched bool) Record {
	r.packed = packRow(r.Row(), watched)
	return r
}

// entitySlot is one entry of the entity index's dense "lo" array. Removal
// clears the record and bumps the generation counter, so a reused id starts
// from a fresh record instead of resurrecting the stale one. EntityID itself
// carries no generation: once an id is set again, every holder of it sees
// the new record.
type entitySlot struct {
	alive      bool
	tombstone  bool
	generation uint32
	record     Record
}

// EntityIndex is the bidirectional map between entity id and Record. It is
// a hybrid: a dense, directly-indexed "lo" slot array (grow-by-doubling)
// for ids below hiWatermark, and a map for ids at or above it. Lookups
// check lo first, then hi.
//
// If keepDeletes is set, remove inserts a tombstone slot instead of
// clearing it, so merge can observe deletes applied within a stage.
type EntityIndex struct {
	hiWatermark EntityID
	keepDeletes bool

	lo []entitySlot

	hi map[EntityID]entitySlot
}

// NewEntityIndex creates an index whose lo/hi split happens at
// hiWatermark (typically Config.HiEntityID).
func NewEntityIndex(hiWatermark EntityID, keepDeletes bool) *EntityIndex {
	return &EntityIndex{
		hiWatermark: hiWatermark,
		keepDeletes: keepDeletes,
		lo:          make([]entitySlot, minInt(int(hiWatermark), 1024)),
		hi:          make(map[EntityID]entitySlot),
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func (idx *EntityIndex) growLo(n int) {
	if n < len(idx.lo) {
		return
	}
	newCap := len(idx.lo) * 2
	if newCap == 0 {
		newCap = 16
	}
	for newCap <= n {
		newCap *= 2
	}
	grown := make([]entitySlot, newCap)
	copy(grown, idx.lo)
	idx.lo = grown
}

// Get returns the current record for id, and whether id is alive.
func (idx *EntityIndex) Get(id EntityID) (Record, bool) {
	if id == noneEntity {
		return Record{}, false
	}
	if id < idx.hiWatermark {
		i := int(id)
		if i >= len(idx.lo) || !idx.lo[i].alive {
			return Record{}, false
		}
		return idx.lo[i].record, true
	}
	slot, ok := idx.hi[id]
	if !ok || !slot.alive {
		return Record{}, false
	}
	return slot.record, true
}

// GetOrCreate returns the record for id, inserting an empty one (table nil,
// row -1) if id has no record yet.
func (idx *EntityIndex) GetOrCreate(id EntityID) Record {
	if id < idx.hiWatermark {
		idx.growLo(int(id) + 1)
		slot := &idx.lo[id]
		if !slot.alive {
			slot.alive = true
			slot.tombstone = false
			slot.record = newRecord(nil, -1)
		}
		return slot.record
	}
	slot, ok := idx.hi[id]
	if !ok || !slot.alive {
		slot = entitySlot{alive: true, record: newRecord(nil, -1), generation: slot.generation}
		idx.hi[id] = slot
	}
	return slot.record
}

// Set overwrites the record for id, marking it alive.
func (idx *EntityIndex) Set(id EntityID, record Record) {
	if id < idx.hiWatermark {
		idx.growLo(int(id) + 1)
		slot := &idx.lo[id]
		slot.alive = true
		slot.tombstone = false
		slot.record = record
		return
	}
	slot := idx.hi[id]
	slot.alive = true
	slot.tombstone = false
	slot.record = record
	idx.hi[id] = slot
}

// Remove removes id from the index. If keepDeletes is set a tombstone is
// kept instead, observable via IsTombstone, and the generation counter is
// bumped so a reused id never resurrects the old record.
func (idx *EntityIndex) Remove(id EntityID) {
	if id < idx.hiWatermark {
		i := int(id)
		if i >= len(idx.lo) {
			if !idx.keepDeletes {
				return
			}
			idx.growLo(i + 1)
		}
		gen := idx.lo[i].generation + 1
		if idx.keepDeletes {
			idx.lo[i] = entitySlot{alive: false, tombstone: true, generation: gen}
			return
		}
		idx.lo[i] = entitySlot{generation: gen}
		return
	}
	gen := idx.hi[id].generation + 1
	if idx.keepDeletes {
		idx.hi[id] = entitySlot{alive: false, tombstone: true, generation: gen}
		return
	}
	delete(idx.hi, id)
}

// IsTombstone reports whether id was removed with keepDeletes set and has
// not since been reused.
func (idx *EntityIndex) IsTombstone(id EntityID) bool {
	if id < idx.hiWatermark {
		i := int(id)
		return i < len(idx.lo) && idx.lo[i].tombstone
	}
	return idx.hi[id].tombstone
}

// indexEntry is one materialized slot of the index, including tombstones.
type indexEntry struct {
	id        EntityID
	record    Record
	tombstone bool
}

// entries returns every live and tombstoned slot in deterministic order:
// lo ids ascending, then hi ids ascending. Merge relies on this order for
// reproducibility.
func (idx *EntityIndex) entries() []indexEntry {
	var out []indexEntry
	for i, slot := range idx.lo {
		if slot.alive || slot.tombstone {
			out = append(out, indexEntry{id: EntityID(i), record: slot.record, tombstone: slot.tombstone}) //nolint:gosec // i bounded by lo length
		}
	}
	hiStart := len(out)
	for id, slot := range idx.hi {
		if slot.alive || slot.tombstone {
			out = append(out, indexEntry{id: id, record: slot.record, tombstone: slot.tombstone})
		}
	}
	hiPart := out[hiStart:]
	slices.SortFunc(hiPart, func(a, b indexEntry) int {
		return cmp.Compare(a.id, b.id)
	})
	return out
}

// Iterate calls fn for every live (id, record) pair. Order is unspecified
// but stable within a single call.
func (idx *EntityIndex) Iterate(fn func(EntityID, Record) bool) {
	for i, slot := range idx.lo {
		if slot.alive {
			if !fn(EntityID(i), slot.record) { //nolint:gosec // i bounded by lo length
				return
			}
		}
	}
	for id, slot := range idx.hi {
		if slot.alive {
			if !fn(id, slot.record) {
				return
			}
		}
	}
}
