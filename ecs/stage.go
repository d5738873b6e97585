package ecs

// Stage ids: the main stage is 0, the temp stage (used during
// single-threaded iteration) is -1, worker stages count up from 1. Staged
// table views are keyed by these ids.
const (
	mainStageID = 0
	tempStageID = -1
)

// Stage is a mutation buffer. The main stage holds the authoritative
// entity index; every other stage shadows it, recording mutations applied
// while iteration is in progress so they can be folded back at merge time.
// A shadow record's (table, row) names the intended final location, with
// row indexing the stage's view of that table. Tombstones record deletes.
type Stage struct {
	id    int
	world *World

	index *EntityIndex

	// tables and tableIndex track tables created while operating under
	// this stage; they are grafted into the main table set at merge time.
	tables     []*Table
	tableIndex map[TypeHandle]*Table

	// dirty collects tables whose row counts this stage will change, so
	// merge can re-test them against every query cache.
	dirty map[*Table]struct{}
}

func newStage(id int, w *World) *Stage {
	keepDeletes := id != mainStageID
	return &Stage{
		id:         id,
		world:      w,
		index:      NewEntityIndex(EntityID(w.cfg.HiEntityID), keepDeletes),
		tableIndex: make(map[TypeHandle]*Table),
		dirty:      make(map[*Table]struct{}),
	}
}

// ID returns this stage's id.
func (s *Stage) ID() int { return s.id }

func (s *Stage) isMain() bool { return s.id == mainStageID }

// markDirty records that this stage changed (or will change) t's rows.
func (s *Stage) markDirty(t *Table) {
	if t != nil {
		s.dirty[t] = struct{}{}
	}
}

// lookup consults this stage's shadow index first and falls back to the
// main index. tombstone is set when this stage deleted the entity.
func (s *Stage) lookup(e EntityID) (rec Record, ok, shadowed, tombstone bool) {
	if !s.isMain() {
		if s.index.IsTombstone(e) {
			return Record{}, false, false, true
		}
		if rec, ok = s.index.Get(e); ok {
			return rec, true, true, false
		}
	}
	rec, ok = s.world.main.index.Get(e)
	return rec, ok, false, false
}

// reset drops every shadow record and staged table, returning the stage to
// a clean slate after its mutations were merged.
func (s *Stage) reset() {
	s.index = NewEntityIndex(EntityID(s.world.cfg.HiEntityID), !s.isMain())
	s.tables = nil
	s.tableIndex = make(map[TypeHandle]*Table)
	s.dirty = make(map[*Table]struct{})
}
