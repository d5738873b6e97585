package ecs

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Builtin component ids, allocated below every user component.
const (
	// ComponentPrefab tags an entity as a shared-component template.
	// Instances reference the prefab entity in their own type.
	ComponentPrefab EntityID = 1

	firstUserComponentID EntityID = 2
)

// World owns the main stage: the authoritative entity index, the table
// arena, the type trie, the component registry, and every registered
// query. Each World is self-contained; nothing is process-global.
type World struct {
	cfg    Config
	logger zerolog.Logger

	mu             sync.Mutex
	lockingEnabled bool

	components *componentRegistry
	trie       *TypeTrie

	tables     []*Table
	tableIndex map[TypeHandle]*Table
	rootTable  *Table

	main    *Stage
	temp    *Stage
	workers []*Stage

	queries []*Query

	lastHandle      atomic.Uint64
	lastComponentID EntityID

	inProgress bool
	parallel   bool
	isMerging  bool
	autoMerge  bool

	shouldQuit  atomic.Bool
	quitWorkers atomic.Bool

	prefabs    map[EntityID]struct{}
	containers map[EntityID]struct{}
}

// WorldOption configures a World at construction time.
type WorldOption func(*World)

// WithLogger routes the world's structural-event log through logger.
func WithLogger(logger zerolog.Logger) WorldOption {
	return func(w *World) { w.logger = logger }
}

// WithLocking takes the world mutex around externally-initiated mutations
// that are not already scoped to a stage.
func WithLocking(enabled bool) WorldOption {
	return func(w *World) { w.lockingEnabled = enabled }
}

// WithAutoMerge controls whether iteration entry points merge stages on
// completion. It defaults to on.
func WithAutoMerge(enabled bool) WorldOption {
	return func(w *World) { w.autoMerge = enabled }
}

// NewWorld creates a world with cfg's thresholds, a root table for the
// empty type, the builtin components registered, and one worker stage per
// configured worker.
func NewWorld(cfg Config, opts ...WorldOption) *World {
	w := &World{
		cfg:             cfg,
		logger:          zerolog.Nop(),
		components:      newComponentRegistry(),
		trie:            NewTypeTrie(cfg),
		tableIndex:      make(map[TypeHandle]*Table),
		lastComponentID: firstUserComponentID - 1,
		autoMerge:       true,
		prefabs:         make(map[EntityID]struct{}),
		containers:      make(map[EntityID]struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.lastHandle.Store(cfg.MinHandle - 1)

	w.main = newStage(mainStageID, w)
	w.temp = newStage(tempStageID, w)

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	w.workers = make([]*Stage, workers)
	for i := range w.workers {
		w.workers[i] = newStage(i+1, w)
	}

	w.rootTable = w.createTable(w.trie.Root())

	// The prefab tag occupies no column bytes.
	w.components.register(ComponentPrefab, 0, 0, ComponentHooks{}, nil)

	w.logger.Debug().Int("workers", workers).Msg("world created")
	return w
}

// Logger returns the world's logger for callers that want to attach
// context of their own.
func (w *World) Logger() *zerolog.Logger { return &w.logger }

// Config returns the thresholds this world was built with.
func (w *World) Config() Config { return w.cfg }

// RootTable returns the table for the empty type. Entities whose type is
// empty have a record pointing here with no row.
func (w *World) RootTable() *Table { return w.rootTable }

// Tables returns the main-stage table arena in creation order.
func (w *World) Tables() []*Table { return w.tables }

// newComponentID hands out the next id below HiComponentID.
func (w *World) newComponentID() (EntityID, error) {
	next := w.lastComponentID + 1
	if uint64(next) >= w.cfg.HiComponentID {
		return 0, newErr(KindInvalidEntity, "component id space exhausted at %d", next)
	}
	w.lastComponentID = next
	return next, nil
}

// nextHandle hands out the next entity id from the configured window. The
// counter is atomic so worker stages can create entities concurrently.
func (w *World) nextHandle() (EntityID, error) {
	next := w.lastHandle.Add(1)
	if next > w.cfg.MaxHandle || next < w.cfg.MinHandle {
		return 0, ErrEntityRange
	}
	return EntityID(next), nil
}

// validEntity rejects the reserved none id and ids outside the handle
// window. Component ids are always acceptable as entities.
func (w *World) validEntity(e EntityID) error {
	if e == noneEntity {
		return ErrEntityZero
	}
	if uint64(e) < w.cfg.HiComponentID {
		return nil
	}
	if uint64(e) < w.cfg.MinHandle || uint64(e) > w.cfg.MaxHandle {
		return ErrEntityRange
	}
	return nil
}

// SignalQuit requests a cooperative shutdown; callers honour it between
// frames, never mid-merge.
func (w *World) SignalQuit() { w.shouldQuit.Store(true) }

// ShouldQuit reports whether a cooperative shutdown was requested.
func (w *World) ShouldQuit() bool { return w.shouldQuit.Load() }

// QuitWorkers makes parallel iteration workers return at the next
// schedule fence.
func (w *World) QuitWorkers() { w.quitWorkers.Store(true) }

// lock takes the world mutex when locking is enabled.
func (w *World) lock() {
	if w.lockingEnabled {
		w.mu.Lock()
	}
}

func (w *World) unlock() {
	if w.lockingEnabled {
		w.mu.Unlock()
	}
}

// -------------------------------------------------------------------------------------------------
// Context
// -------------------------------------------------------------------------------------------------

// Context disambiguates the two kinds of handles a mutation can be issued
// through: the world itself, or a worker's stage during parallel
// iteration. Systems receive the correct Context from the runner and need
// not care which they hold.
type Context struct {
	world *World
	stage *Stage
}

// Context returns a main-stage context for direct use of the world.
func (w *World) Context() Context { return Context{world: w} }

// World returns the world this context operates on.
func (c Context) World() *World { return c.world }

// Stage returns the worker stage bound to this context, or nil for a
// world context.
func (c Context) Stage() *Stage { return c.stage }

// resolve returns the stage mutations should land in. A world context
// resolves to the temp stage while single-threaded iteration is in
// progress; during parallel iteration a world context may not mutate at
// all.
func (c Context) resolve() (*Stage, error) {
	if c.stage != nil {
		return c.stage, nil
	}
	w := c.world
	if w.inProgress {
		if w.parallel {
			return nil, ErrStaged
		}
		return w.temp, nil
	}
	return w.main, nil
}
