package ecs

import (
	"github.com/RoyAwesome/flecs/internal/assert"
)

// -------------------------------------------------------------------------------------------------
// Entity lifecycle
// -------------------------------------------------------------------------------------------------

// NewEntity creates a live entity of the empty type: it exists, occupies
// no column data, and its record points at the root table with no row.
func (c Context) NewEntity() (EntityID, error) {
	s, err := c.resolve()
	if err != nil {
		return 0, err
	}
	w := c.world

	id, err := w.nextHandle()
	if err != nil {
		return 0, err
	}
	if s.isMain() {
		w.lock()
		defer w.unlock()
	}
	s.index.Set(id, newRecord(w.rootTable, -1))
	return id, nil
}

// Delete destroys the entity. On the main stage the row is swap-removed
// immediately; under a stage a tombstone is recorded and the removal is
// applied at merge.
func (c Context) Delete(e EntityID) error {
	s, err := c.resolve()
	if err != nil {
		return err
	}
	w := c.world
	if err := w.validEntity(e); err != nil {
		return err
	}

	if s.isMain() {
		w.lock()
		defer w.unlock()
		rec, ok := w.main.index.Get(e)
		if !ok {
			return ErrNotAlive
		}
		if rec.Row() >= 0 {
			t := rec.Table
			t.swapRemoveRow(&t.data, int(rec.Row()), w.main.index)
			w.notifyTableEmptiness(t)
		}
		w.main.index.Remove(e)
		return nil
	}

	rec, ok, shadowed, tombstone := s.lookup(e)
	if tombstone || !ok {
		return ErrNotAlive
	}
	if shadowed && rec.Row() >= 0 {
		rec.Table.swapRemoveRow(rec.Table.view(s.id), int(rec.Row()), s.index)
		s.markDirty(rec.Table)
	}
	if mainRec, mainOK := w.main.index.Get(e); mainOK {
		s.markDirty(mainRec.Table)
	}
	s.index.Remove(e)
	return nil
}

// IsAlive reports whether e is live, consulting the context's active
// stage first and falling back to the main stage.
func (c Context) IsAlive(e EntityID) bool {
	if e == noneEntity {
		return false
	}
	s := c.readStage()
	_, ok, _, tombstone := s.lookup(e)
	return ok && !tombstone
}

// readStage resolves which stage lookups should consult first. Unlike
// resolve it never fails: reads of the main stage are always legal.
func (c Context) readStage() *Stage {
	if c.stage != nil {
		return c.stage
	}
	if c.world.inProgress && !c.world.parallel {
		return c.world.temp
	}
	return c.world.main
}

// Watch sets or clears the watched flag on e's main-stage record. The
// flag survives every structural transition until toggled again here.
func (c Context) Watch(e EntityID, watched bool) error {
	w := c.world
	w.mu.Lock()
	defer w.mu.Unlock()
	rec, ok := w.main.index.Get(e)
	if !ok {
		return ErrNotAlive
	}
	w.main.index.Set(e, rec.WithWatched(watched))
	return nil
}

// -------------------------------------------------------------------------------------------------
// Structural mutation
// -------------------------------------------------------------------------------------------------

// validComponent checks that comp may appear in a type: component ids must
// be registered; higher ids must name a live entity (a prefab or container
// reference).
func (c Context) validComponent(comp EntityID) error {
	w := c.world
	if comp == noneEntity {
		return ErrEntityZero
	}
	if uint64(comp) < w.cfg.HiComponentID {
		if _, ok := w.components.get(comp); !ok {
			return newErr(KindUnknownComponent, "component id %d is not registered", comp)
		}
		return nil
	}
	if !c.IsAlive(comp) {
		return newErr(KindInvalidEntity, "entity id %d used as component is not alive", comp)
	}
	return nil
}

// Add adds component comp to e. Adding a component the entity already has
// is a no-op.
func (c Context) Add(e, comp EntityID) error {
	s, err := c.resolve()
	if err != nil {
		return err
	}
	if err := c.world.validEntity(e); err != nil {
		return err
	}
	if err := c.validComponent(comp); err != nil {
		return err
	}
	if s.isMain() {
		return c.world.addComponentMain(e, comp)
	}
	return c.world.stageAdd(s, e, comp)
}

// Remove removes component comp from e. Removing an absent component is a
// no-op.
func (c Context) Remove(e, comp EntityID) error {
	s, err := c.resolve()
	if err != nil {
		return err
	}
	if err := c.world.validEntity(e); err != nil {
		return err
	}
	if err := c.validComponent(comp); err != nil {
		return err
	}
	if s.isMain() {
		return c.world.removeComponentMain(e, comp)
	}
	return c.world.stageRemove(s, e, comp)
}

// Has reports whether e currently has comp, through the context's active
// stage view.
func (c Context) Has(e, comp EntityID) bool {
	rec, ok, _, tombstone := c.readStage().lookup(e)
	if !ok || tombstone || rec.Table == nil {
		return false
	}
	return rec.Table.typ.Contains(comp)
}

func (w *World) addComponentMain(e, comp EntityID) error {
	w.lock()
	defer w.unlock()
	rec, ok := w.main.index.Get(e)
	if !ok {
		return ErrNotAlive
	}
	dst, err := w.findOrCreateAddTable(w.main, rec.Table, comp)
	if err != nil {
		return err
	}
	if dst == rec.Table {
		return nil
	}
	w.moveEntityMain(e, rec, dst)
	return nil
}

func (w *World) removeComponentMain(e, comp EntityID) error {
	w.lock()
	defer w.unlock()
	rec, ok := w.main.index.Get(e)
	if !ok {
		return ErrNotAlive
	}
	dst, err := w.findOrCreateRemoveTable(w.main, rec.Table, comp)
	if err != nil {
		return err
	}
	if dst == rec.Table {
		return nil
	}
	w.moveEntityMain(e, rec, dst)
	return nil
}

// moveEntityMain transfers e from its current main-stage location into
// dst, preserving overlapping component data and the record's watched
// flag, and keeps every query cache's partition in sync.
func (w *World) moveEntityMain(e EntityID, rec Record, dst *Table) {
	src := rec.Table
	dstWasEmpty := dst.Len() == 0

	newRow := int32(-1)
	switch {
	case rec.Row() < 0 && dst == w.rootTable:
		// Empty type to empty type; nothing moves.
	case rec.Row() < 0:
		newRow = int32(dst.appendRow(&dst.data, e))
	case dst == w.rootTable:
		src.swapRemoveRow(&src.data, int(rec.Row()), w.main.index)
	default:
		newRow = int32(src.moveRowTo(&src.data, int(rec.Row()), dst, &dst.data, w.main.index))
	}

	w.main.index.Set(e, Record{Table: dst, packed: packRow(newRow, rec.Watched())})
	assert.That(newRow < 0 || dst.data.entities[newRow] == e, "record row does not round-trip after move")

	if src != w.rootTable && rec.Row() >= 0 {
		w.notifyTableEmptiness(src)
	}
	if dst != w.rootTable && dstWasEmpty && dst.Len() > 0 {
		w.notifyTableEmptiness(dst)
	}
	if newRow >= 0 {
		w.fireOnNew(dst, e)
	}
}

// notifyTableEmptiness re-partitions t in every query cache tracking it.
func (w *World) notifyTableEmptiness(t *Table) {
	empty := t.Len() == 0
	for _, q := range w.queries {
		q.cache.setEmpty(t, empty)
	}
}

// fireOnNew invokes the on-insert callback of every query whose cache
// tracks the table e just entered.
func (w *World) fireOnNew(t *Table, e EntityID) {
	for _, q := range w.queries {
		if q.onNew != nil && q.cache.has(t) {
			q.onNew(e)
		}
	}
}

// -------------------------------------------------------------------------------------------------
// Staged structural mutation
// -------------------------------------------------------------------------------------------------

func (w *World) stageAdd(s *Stage, e, comp EntityID) error {
	rec, ok, shadowed, tombstone := s.lookup(e)
	if tombstone || !ok {
		return ErrNotAlive
	}
	dst, err := w.findOrCreateAddTable(s, rec.Table, comp)
	if err != nil {
		return err
	}
	if dst == rec.Table {
		return nil
	}
	w.stageMove(s, e, rec, shadowed, dst)
	return nil
}

func (w *World) stageRemove(s *Stage, e, comp EntityID) error {
	rec, ok, shadowed, tombstone := s.lookup(e)
	if tombstone || !ok {
		return ErrNotAlive
	}
	dst, err := w.findOrCreateRemoveTable(s, rec.Table, comp)
	if err != nil {
		return err
	}
	if dst == rec.Table {
		return nil
	}
	w.stageMove(s, e, rec, shadowed, dst)
	return nil
}

// stageMove records that e's final location is dst: a row is reserved in
// dst's staged view, seeded with the entity's current values (from its
// previous staged row, or read-only from the main stage), and the shadow
// record is updated. The main stage is untouched until merge.
func (w *World) stageMove(s *Stage, e EntityID, rec Record, shadowed bool, dst *Table) {
	newRow := int32(-1)

	switch {
	case dst == w.rootTable:
		if shadowed && rec.Row() >= 0 {
			rec.Table.swapRemoveRow(rec.Table.view(s.id), int(rec.Row()), s.index)
		}
	case shadowed && rec.Row() >= 0:
		srcView := rec.Table.view(s.id)
		newRow = int32(rec.Table.moveRowTo(srcView, int(rec.Row()), dst, dst.view(s.id), s.index))
	default:
		dstView := dst.view(s.id)
		row := dst.appendRow(dstView, e)
		if !shadowed && rec.Row() >= 0 {
			copyOverlap(&rec.Table.data, int(rec.Row()), dstView, row)
		}
		newRow = int32(row)
	}

	s.index.Set(e, Record{Table: dst, packed: packRow(newRow, rec.Watched())})
	s.markDirty(dst)
	if mainRec, mainOK := w.main.index.Get(e); mainOK {
		s.markDirty(mainRec.Table)
	}
}

// copyOverlap copies every column present in both views, matched by
// component id, from src row to dst row.
func copyOverlap(src *tableData, srcRow int, dst *tableData, dstRow int) {
	for _, srcCol := range src.columns {
		for _, dstCol := range dst.columns {
			if dstCol.componentID() == srcCol.componentID() {
				srcCol.copyRowTo(srcRow, dstCol, dstRow)
				break
			}
		}
	}
}

// -------------------------------------------------------------------------------------------------
// Component data access
// -------------------------------------------------------------------------------------------------

// SetComponent writes raw component bytes onto e, adding comp first if
// absent. The byte length must match the registered component size.
func SetComponent(c Context, e, comp EntityID, data []byte) error {
	rec, ok := c.world.components.get(comp)
	if !ok {
		return newErr(KindUnknownComponent, "component id %d is not registered", comp)
	}
	if uintptr(len(data)) != rec.size {
		return newErr(KindUnknownComponent,
			"component %d expects %d bytes, got %d", comp, rec.size, len(data))
	}
	if err := c.Add(e, comp); err != nil {
		return err
	}
	if rec.isTag() {
		return nil
	}

	entityRec, view := c.world.ensureStagedRow(c.readStage(), e)
	col := viewColumn(view, comp)
	assert.That(col != nil, "component has no column after add")
	col.setBytes(int(entityRec.Row()), data)
	return nil
}

// ensureStagedRow returns the record and view an in-place write should
// target. Under a non-main stage an unshadowed entity first gets a shadow
// row seeded from its main-stage values, keeping the write isolated until
// merge.
func (w *World) ensureStagedRow(s *Stage, e EntityID) (Record, *tableData) {
	rec, ok, shadowed, _ := s.lookup(e)
	assert.That(ok && rec.Row() >= 0, "entity has no row after add")
	if s.isMain() {
		return rec, &rec.Table.data
	}
	if !shadowed {
		w.stageMove(s, e, rec, false, rec.Table)
		rec, ok, _, _ = s.lookup(e)
		assert.That(ok && rec.Row() >= 0, "entity lost its shadow row")
	}
	return rec, rec.Table.view(s.id)
}

// Set writes v onto e, registering T on first use and adding the
// component if absent.
func Set[T Component](c Context, e EntityID, v T) error {
	cid, err := RegisterComponentType[T](c.world)
	if err != nil {
		return err
	}
	if err := c.Add(e, cid); err != nil {
		return err
	}
	if reg, ok := c.world.components.get(cid); ok && reg.isTag() {
		return nil
	}

	rec, view := c.world.ensureStagedRow(c.readStage(), e)
	col, colOK := viewColumn(view, cid).(*column[T])
	assert.That(colOK, "column type does not match component registration")
	col.set(int(rec.Row()), v)
	return nil
}

// Get reads e's T through the context's active stage view. Reads through
// the main stage keep returning pre-mutation values while a staged write
// is pending; reads through the stage see it immediately.
func Get[T Component](c Context, e EntityID) (T, bool) {
	var zero T
	cid, ok := ComponentIDFor[T](c.world)
	if !ok {
		return zero, false
	}

	s := c.readStage()
	rec, ok, shadowed, tombstone := s.lookup(e)
	if !ok || tombstone || rec.Row() < 0 {
		return zero, false
	}
	view := &rec.Table.data
	if shadowed {
		view = rec.Table.view(s.id)
	}
	col, colOK := viewColumn(view, cid).(*column[T])
	if !colOK {
		return zero, false
	}
	return col.get(int(rec.Row())), true
}

// viewColumn finds the column storing comp in a view, or nil.
func viewColumn(d *tableData, comp EntityID) abstractColumn {
	for _, col := range d.columns {
		if col.componentID() == comp {
			return col
		}
	}
	return nil
}

// -------------------------------------------------------------------------------------------------
// Prefabs and containers
// -------------------------------------------------------------------------------------------------

// NewPrefab creates an entity carrying the Prefab tag. Instances that
// reference it inherit its components through Shared lookups.
func (c Context) NewPrefab() (EntityID, error) {
	e, err := c.NewEntity()
	if err != nil {
		return 0, err
	}
	if err := c.Add(e, ComponentPrefab); err != nil {
		return 0, err
	}
	c.world.mu.Lock()
	c.world.prefabs[e] = struct{}{}
	c.world.mu.Unlock()
	return e, nil
}

// AddInstanceOf makes e an instance of prefab: the prefab's id joins e's
// type, and Shared column lookups on e's table resolve against the
// prefab's row.
func (c Context) AddInstanceOf(e, prefab EntityID) error {
	rec, ok, _, tombstone := c.readStage().lookup(prefab)
	if !ok || tombstone {
		return ErrNotAlive
	}
	if rec.Table == nil || !rec.Table.typ.Contains(ComponentPrefab) {
		return newErr(KindInvalidEntity, "entity %d is not a prefab", prefab)
	}
	return c.Add(e, prefab)
}

// AddChildOf parents child under parent: the parent's id joins the
// child's type, and Container/Cascade columns traverse the relationship.
func (c Context) AddChildOf(child, parent EntityID) error {
	if !c.IsAlive(parent) {
		return ErrNotAlive
	}
	c.world.mu.Lock()
	c.world.containers[parent] = struct{}{}
	c.world.mu.Unlock()
	return c.Add(child, parent)
}
