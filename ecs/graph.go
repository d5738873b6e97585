package ecs

import (
	"slices"

	"github.com/RoyAwesome/flecs/internal/assert"
)

// The type graph connects tables through single-component add/remove
// edges, so that repeating a structural transition is a pointer chase and
// only structural novelty pays for trie traversal and table creation.

// findOrCreateAddTable returns the table whose type is src.typ with c
// inserted. Adding a component the type already holds is idempotent: the
// edge points back at src. Edges are cached on both endpoints once
// computed, except on shared tables while resolving under a worker stage,
// where caching is deferred to merge.
func (w *World) findOrCreateAddTable(s *Stage, src *Table, c EntityID) (*Table, error) {
	if src.typ.Contains(c) {
		e := w.edgeSlot(s, src, c)
		if e != nil && e.add == nil {
			e.add = src
		}
		return src, nil
	}

	if e := w.edgeSlot(s, src, c); e != nil && e.add != nil {
		return e.add, nil
	}

	ids := insertSorted(src.typ.IDs(), c)
	dst, err := w.tableFor(s, ids)
	if err != nil {
		return nil, err
	}

	if e := w.edgeSlot(s, src, c); e != nil {
		e.add = dst
	}
	if e := w.edgeSlot(s, dst, c); e != nil {
		e.remove = src
	}
	return dst, nil
}

// findOrCreateRemoveTable returns the table whose type is src.typ with c
// removed. Removing an absent component is idempotent: the edge points
// back at src.
func (w *World) findOrCreateRemoveTable(s *Stage, src *Table, c EntityID) (*Table, error) {
	if !src.typ.Contains(c) {
		e := w.edgeSlot(s, src, c)
		if e != nil && e.remove == nil {
			e.remove = src
		}
		return src, nil
	}

	if e := w.edgeSlot(s, src, c); e != nil && e.remove != nil {
		return e.remove, nil
	}

	ids := removeSorted(src.typ.IDs(), c)
	dst, err := w.tableFor(s, ids)
	if err != nil {
		return nil, err
	}

	if e := w.edgeSlot(s, src, c); e != nil {
		e.remove = dst
	}
	if e := w.edgeSlot(s, dst, c); e != nil {
		e.add = src
	}
	return dst, nil
}

// edgeSlot returns t's edge slot for c, or nil when writing it would race:
// a worker stage must not mutate edge arrays of tables it does not own.
func (w *World) edgeSlot(s *Stage, t *Table, c EntityID) *edge {
	if s != nil && !s.isMain() && s.id != tempStageID && t.flags&tableStaged == 0 {
		return nil
	}
	return t.edgeFor(c, w.cfg.HiComponentID)
}

// tableFor looks up or creates the table for the exact sorted id sequence.
// Under a worker stage, creation lands in the stage's table set; the world
// mutex guards the shared trie on that cold path.
func (w *World) tableFor(s *Stage, sortedIDs []EntityID) (*Table, error) {
	worker := s != nil && !s.isMain() && s.id != tempStageID

	if worker {
		w.mu.Lock()
		defer w.mu.Unlock()
	}

	handle, err := w.trie.Intern(sortedIDs)
	if err != nil {
		return nil, err
	}
	if t, ok := w.tableIndex[handle]; ok {
		return t, nil
	}
	if worker {
		if t, ok := s.tableIndex[handle]; ok {
			return t, nil
		}
		t := newTable(-1, handle, w.components)
		t.flags |= tableStaged
		w.computeTableMeta(t)
		s.tables = append(s.tables, t)
		s.tableIndex[handle] = t
		return t, nil
	}
	return w.createTable(handle), nil
}

// createTable allocates a table for handle in the main table arena,
// computes its metadata, and notifies every registered query. Tables are
// created once and never destroyed during a run.
func (w *World) createTable(handle TypeHandle) *Table {
	assert.That(w.tableIndex[handle] == nil, "table created twice for one type")
	t := newTable(len(w.tables), handle, w.components)
	w.computeTableMeta(t)
	w.tables = append(w.tables, t)
	w.tableIndex[handle] = t

	for _, q := range w.queries {
		q.maybeInsert(t)
	}

	w.logger.Debug().Int("table_id", t.id).Int("type_len", handle.Len()).
		Msg("table created")
	return t
}

// computeTableMeta derives the flag bits, prefab reference, container
// parent, and cascade depth from the ids in the table's type.
func (w *World) computeTableMeta(t *Table) {
	for _, id := range t.typ.IDs() {
		if id == ComponentPrefab {
			t.flags |= tableIsPrefab | tableHasBuiltins
			continue
		}
		if uint64(id) < w.cfg.HiComponentID {
			continue
		}
		if _, ok := w.prefabs[id]; ok {
			t.flags |= tableHasPrefab
			t.prefab = id
		}
		if _, ok := w.containers[id]; ok {
			t.parent = id
		}
	}
	t.depth = 0
	if t.parent != 0 {
		if rec, ok := w.main.index.Get(t.parent); ok && rec.Table != nil {
			t.depth = rec.Table.depth + 1
		} else {
			t.depth = 1
		}
	}
}

// insertSorted returns a copy of ids with c inserted in sort order.
// Callers guarantee c is absent.
func insertSorted(ids []EntityID, c EntityID) []EntityID {
	at, _ := slices.BinarySearch(ids, c)
	out := make([]EntityID, 0, len(ids)+1)
	out = append(out, ids[:at]...)
	out = append(out, c)
	out = append(out, ids[at:]...)
	return out
}

// removeSorted returns a copy of ids without c. Callers guarantee c is
// present.
func removeSorted(ids []EntityID, c EntityID) []EntityID {
	at, found := slices.BinarySearch(ids, c)
	assert.That(found, "removing component id absent from type")
	out := make([]EntityID, 0, len(ids)-1)
	out = append(out, ids[:at]...)
	out = append(out, ids[at+1:]...)
	return out
}
