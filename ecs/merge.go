package ecs

import (
	"github.com/RoyAwesome/flecs/internal/assert"
)

// Merge folds every non-main stage back into the main stage: the temp
// stage first, then worker stages in ascending id order, so the final
// state is reproducible given the same per-stage deltas. Merge is serial
// and holds the world mutex.
func (w *World) Merge() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.inProgress {
		return newErr(KindStageViolation, "cannot merge while iteration is in progress")
	}
	w.isMerging = true
	defer func() { w.isMerging = false }()

	merged := w.mergeStage(w.temp)
	for _, s := range w.workers {
		merged += w.mergeStage(s)
	}
	if merged > 0 {
		w.logger.Debug().Int("entities", merged).Msg("stages merged")
	}
	return nil
}

// mergeStage applies one stage's deltas: shadow records move entities to
// their intended final tables, tombstones delete, stage-created tables
// are grafted into the main table set, and dirty tables are re-tested
// against every query cache. Returns the number of entities touched.
func (w *World) mergeStage(s *Stage) int {
	entries := s.index.entries()
	if len(entries) == 0 && len(s.tables) == 0 {
		return 0
	}

	dirty := make(map[*Table]struct{}, len(s.dirty))
	for t := range s.dirty {
		dirty[t] = struct{}{}
	}

	for _, en := range entries {
		if en.tombstone {
			if mainRec, ok := w.main.index.Get(en.id); ok {
				if mainRec.Row() >= 0 {
					mainRec.Table.swapRemoveRow(&mainRec.Table.data, int(mainRec.Row()), w.main.index)
					dirty[mainRec.Table] = struct{}{}
				}
				w.main.index.Remove(en.id)
			}
			continue
		}
		w.mergeShadow(s, en.id, en.record, dirty)
	}

	// Tables created under this stage but never given a merged entity
	// still join the main table set.
	for _, t := range s.tables {
		w.graftTable(t)
	}

	for t := range dirty {
		delete(t.stageData, s.id)
		if t == w.rootTable || t.flags&tableStaged != 0 {
			continue
		}
		for _, q := range w.queries {
			if q.cache.has(t) {
				q.cache.setEmpty(t, t.Len() == 0)
			} else {
				q.maybeInsert(t)
			}
		}
	}

	s.reset()
	return len(entries)
}

// mergeShadow lands one entity at the location its shadow record names.
// The shadow's (table, row) points at the stage's view; the entity is
// moved within the main stage using the regular transition machinery,
// then the staged column values are overlaid.
func (w *World) mergeShadow(s *Stage, e EntityID, shadow Record, dirty map[*Table]struct{}) {
	target := shadow.Table
	stagedTable := target
	if target.flags&tableStaged != 0 {
		target = w.graftTable(target)
	}

	mainRec, ok := w.main.index.Get(e)

	newRow := int32(-1)
	entered := false
	switch {
	case shadow.Row() < 0 || target == w.rootTable:
		if ok && mainRec.Row() >= 0 {
			mainRec.Table.swapRemoveRow(&mainRec.Table.data, int(mainRec.Row()), w.main.index)
			dirty[mainRec.Table] = struct{}{}
		}
		target = w.rootTable
	case ok && mainRec.Table == target && mainRec.Row() >= 0:
		newRow = mainRec.Row()
	case ok && mainRec.Row() >= 0:
		newRow = int32(mainRec.Table.moveRowTo(&mainRec.Table.data, int(mainRec.Row()), target, &target.data, w.main.index))
		dirty[mainRec.Table] = struct{}{}
		entered = true
	default:
		newRow = int32(target.appendRow(&target.data, e))
		entered = true
	}

	if newRow >= 0 && shadow.Row() >= 0 {
		stagedView := stagedTable.stageData[s.id]
		assert.That(stagedView != nil, "shadow record points at a table with no staged view")
		for i, col := range stagedView.columns {
			dstCol := target.data.columns[i]
			assert.That(dstCol.componentID() == col.componentID(),
				"staged and main column order diverged")
			col.copyRowTo(int(shadow.Row()), dstCol, int(newRow))
		}
	}
	if newRow >= 0 {
		dirty[target] = struct{}{}
	}

	w.main.index.Set(e, Record{Table: target, packed: packRow(newRow, shadow.Watched())})
	if entered {
		w.fireOnNew(target, e)
	}
}

// graftTable registers a stage-created table in the main table set and
// re-links its edges to pre-existing tables. When another stage already
// grafted a table of the same type, the existing one is returned and the
// duplicate is dropped.
func (w *World) graftTable(t *Table) *Table {
	if existing, ok := w.tableIndex[t.typ]; ok {
		return existing
	}
	t.flags &^= tableStaged
	t.id = len(w.tables)
	w.tables = append(w.tables, t)
	w.tableIndex[t.typ] = t

	for _, c := range t.typ.IDs() {
		sub, ok := w.trie.HandleOf(removeSorted(t.typ.IDs(), c))
		if !ok {
			continue
		}
		if src, srcOK := w.tableIndex[sub]; srcOK {
			src.edgeFor(c, w.cfg.HiComponentID).add = t
			t.edgeFor(c, w.cfg.HiComponentID).remove = src
		}
	}

	for _, q := range w.queries {
		q.maybeInsert(t)
	}
	w.logger.Debug().Int("table_id", t.id).Int("type_len", t.typ.Len()).
		Msg("staged table grafted")
	return t
}
