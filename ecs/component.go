package ecs

import (
	"reflect"
	"unsafe"
)

// Component is implemented by every user-defined component type used with
// the generic registration helpers (RegisterComponentType, Get, Set).
// Components registered only through the raw RegisterComponent entry point
// need not implement it.
type Component interface {
	Name() string
}

// ComponentHooks is the optional capability set for a registered
// component, stored in a side table keyed by component id. Absence of a
// hook implies raw-byte semantics (zero-init, no finalization, plain
// copy).
type ComponentHooks struct {
	// Init zero-initializes a freshly reserved column slot. If nil, the
	// slot is left zeroed by Go's normal allocation semantics.
	Init func(dst []byte)
	// Fini finalizes a slot about to be overwritten or dropped (e.g. by
	// swap_remove, or when a component is removed by move_row_to).
	Fini func(data []byte)
	// Replace is invoked when Set overwrites a live slot in place.
	Replace func(dst, src []byte)
	// Merge is invoked by move_row_to for components present in both the
	// source and destination type, in place of a raw byte copy.
	Merge func(dst, src []byte)
}

// componentRecord is the side-table entry for one registered component id.
// factory builds an empty column for this component; tables call it once
// per component when they are created. Tag components (size 0) have no
// factory and occupy no column.
type componentRecord struct {
	id      EntityID
	size    uintptr
	align   uintptr
	hooks   ComponentHooks
	factory func() abstractColumn
}

// isTag reports whether this component occupies no column bytes.
func (r *componentRecord) isTag() bool { return r.size == 0 }

// componentRegistry owns every registered component's metadata plus the
// Go-type -> id mapping used by the generic convenience helpers. Component
// ids are full EntityIDs: components are themselves entities whose ids
// fall below Config.HiComponentID.
type componentRegistry struct {
	records map[EntityID]*componentRecord
	byType  map[reflect.Type]EntityID
}

func newComponentRegistry() *componentRegistry {
	return &componentRegistry{
		records: make(map[EntityID]*componentRecord),
		byType:  make(map[reflect.Type]EntityID),
	}
}

func (r *componentRegistry) register(id EntityID, size, align uintptr, hooks ComponentHooks, factory func() abstractColumn) {
	r.records[id] = &componentRecord{id: id, size: size, align: align, hooks: hooks, factory: factory}
}

func (r *componentRegistry) get(id EntityID) (*componentRecord, bool) {
	rec, ok := r.records[id]
	return rec, ok
}

// RegisterComponent registers a raw component id with an explicit size,
// alignment, and hook set. id must already be a valid entity (typically
// one created expressly to name a component).
func RegisterComponent(w *World, id EntityID, size, align uintptr, hooks ComponentHooks) error {
	if id == noneEntity {
		return ErrEntityZero
	}
	var factory func() abstractColumn
	if size > 0 {
		factory = func() abstractColumn { return newRawColumn(id, size, hooks) }
	}
	w.components.register(id, size, align, hooks, factory)
	w.logger.Debug().Uint64("component_id", uint64(id)).Uint64("size", uint64(size)).
		Msg("component registered")
	return nil
}

// RegisterComponentType registers T using its Go memory layout for size
// and alignment, deriving raw-byte hooks, and returns the EntityID that
// now names T. Calling it twice for the same T returns the same id.
func RegisterComponentType[T Component](w *World) (EntityID, error) {
	rt := reflect.TypeFor[T]()
	if id, ok := w.components.byType[rt]; ok {
		return id, nil
	}

	id, err := w.newComponentID()
	if err != nil {
		return 0, err
	}
	var zero T
	size := unsafe.Sizeof(zero)
	align := unsafe.Alignof(zero)

	var factory func() abstractColumn
	if size > 0 {
		factory = func() abstractColumn { return newColumn[T](id, ComponentHooks{}) }
	}
	w.components.register(id, size, align, ComponentHooks{}, factory)
	w.logger.Debug().Uint64("component_id", uint64(id)).Str("component_name", zero.Name()).
		Msg("component type registered")
	w.components.byType[rt] = id
	return id, nil
}

// ComponentIDFor returns the EntityID previously assigned to T by
// RegisterComponentType.
func ComponentIDFor[T Component](w *World) (EntityID, bool) {
	rt := reflect.TypeFor[T]()
	id, ok := w.components.byType[rt]
	return id, ok
}
