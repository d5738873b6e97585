package ecs

import (
	"slices"

	gojson "github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"github.com/shamaton/msgpack/v3"
)

// SnapshotFilter restricts a snapshot to tables whose type contains every
// listed component. An empty filter captures everything.
type SnapshotFilter struct {
	With []EntityID
}

func (f SnapshotFilter) admits(t *Table) bool {
	for _, c := range f.With {
		if !t.typ.Contains(c) {
			return false
		}
	}
	return true
}

// snapshotTable is the wire form of one table: its type, its entity
// column, and per-column serialized rows (Columns[col][row]).
type snapshotTable struct {
	TypeIDs  []uint64
	Entities []uint64
	Columns  [][][]byte
}

// worldSnapshot is the deep byte image of the main stage.
type worldSnapshot struct {
	LastHandle uint64
	Tables     []snapshotTable
	Empty      []uint64
	Watched    []uint64
	Prefabs    []uint64
	Containers []uint64
}

// Snapshot serializes the main stage: every filtered table's rows, the
// empty-type entities, watched flags, and the handle counter. Stages are
// not captured; snapshot after merge for a complete image.
func (w *World) Snapshot(filter SnapshotFilter) ([]byte, error) {
	snap := worldSnapshot{LastHandle: w.lastHandle.Load()}

	for _, t := range w.tables {
		if t == w.rootTable || !filter.admits(t) {
			continue
		}
		st := snapshotTable{
			TypeIDs:  idsToU64(t.typ.IDs()),
			Entities: idsToU64(t.data.entities),
			Columns:  make([][][]byte, len(t.data.columns)),
		}
		for ci, col := range t.data.columns {
			rows := make([][]byte, col.len())
			for r := range rows {
				data, err := col.serializeRow(r)
				if err != nil {
					return nil, eris.Wrapf(err, "failed to serialize table %d column %d", t.id, ci)
				}
				rows[r] = data
			}
			st.Columns[ci] = rows
		}
		snap.Tables = append(snap.Tables, st)
	}

	for _, en := range w.main.index.entries() {
		if en.tombstone {
			continue
		}
		if en.record.Row() < 0 {
			snap.Empty = append(snap.Empty, uint64(en.id))
		}
		if en.record.Watched() {
			snap.Watched = append(snap.Watched, uint64(en.id))
		}
	}
	snap.Prefabs = sortedSetToU64(w.prefabs)
	snap.Containers = sortedSetToU64(w.containers)

	data, err := msgpack.Marshal(snap)
	if err != nil {
		return nil, eris.Wrap(err, "failed to serialize world snapshot")
	}
	return data, nil
}

// Restore populates a fresh world from a snapshot produced by a world
// with the same component registrations. Iterating (entity, type) pairs
// from the restored world reproduces the original.
func (w *World) Restore(data []byte) error {
	var snap worldSnapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return eris.Wrap(err, "failed to deserialize world snapshot")
	}

	for _, id := range snap.Prefabs {
		w.prefabs[EntityID(id)] = struct{}{}
	}
	for _, id := range snap.Containers {
		w.containers[EntityID(id)] = struct{}{}
	}

	for _, st := range snap.Tables {
		t, err := w.tableFor(w.main, u64ToIDs(st.TypeIDs))
		if err != nil {
			return eris.Wrap(err, "failed to recreate table")
		}
		for i, raw := range st.Entities {
			e := EntityID(raw)
			t.data.entities = append(t.data.entities, e)
			t.data.recordPtrs = append(t.data.recordPtrs, e)
			for ci, col := range t.data.columns {
				if err := col.deserializeAppend(st.Columns[ci][i]); err != nil {
					return eris.Wrapf(err, "failed to restore table %d column %d", t.id, ci)
				}
			}
			w.main.index.Set(e, newRecord(t, int32(i))) //nolint:gosec // row bounded by entity count
		}
		w.notifyTableEmptiness(t)
	}

	for _, raw := range snap.Empty {
		w.main.index.Set(EntityID(raw), newRecord(w.rootTable, -1))
	}
	for _, raw := range snap.Watched {
		e := EntityID(raw)
		if rec, ok := w.main.index.Get(e); ok {
			w.main.index.Set(e, rec.WithWatched(true))
		}
	}

	w.lastHandle.Store(snap.LastHandle)
	w.logger.Debug().Int("tables", len(snap.Tables)).Msg("world restored from snapshot")
	return nil
}

// debugTable is the human-inspectable rendering of one table.
type debugTable struct {
	ID       int      `json:"id"`
	Type     []uint64 `json:"type"`
	Entities []uint64 `json:"entities"`
	Depth    int      `json:"depth,omitempty"`
	Prefab   bool     `json:"prefab,omitempty"`
}

// DebugJSON renders the main stage's table layout as indented JSON for
// inspection and debugging. The snapshot format stays msgpack; this is
// for eyes, not wires.
func (w *World) DebugJSON() ([]byte, error) {
	out := make([]debugTable, 0, len(w.tables))
	for _, t := range w.tables {
		out = append(out, debugTable{
			ID:       t.id,
			Type:     idsToU64(t.typ.IDs()),
			Entities: idsToU64(t.data.entities),
			Depth:    t.depth,
			Prefab:   t.IsPrefab(),
		})
	}
	data, err := gojson.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "failed to render debug JSON")
	}
	return data, nil
}

func idsToU64(ids []EntityID) []uint64 {
	out := make([]uint64, len(ids))
	for i, id := range ids {
		out[i] = uint64(id)
	}
	return out
}

func u64ToIDs(raw []uint64) []EntityID {
	out := make([]EntityID, len(raw))
	for i, v := range raw {
		out[i] = EntityID(v)
	}
	return out
}

func sortedSetToU64(set map[EntityID]struct{}) []uint64 {
	ids := make([]EntityID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	out := idsToU64(ids)
	// deterministic output keeps snapshots byte-comparable
	slices.Sort(out)
	return out
}
