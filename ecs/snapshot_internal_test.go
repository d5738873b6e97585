package ecs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPopulatedWorld spreads 1000 entities across ten distinct types.
func buildPopulatedWorld(t *testing.T) *World {
	t.Helper()
	w, _, _, _ := newTestWorld(t)
	ctx := w.Context()

	for i := 0; i < 1000; i++ {
		e, err := ctx.NewEntity()
		require.NoError(t, err)
		// Vary the component combination so ten tables exist, root
		// included, with real data in each sized column.
		switch i % 10 {
		case 0:
			// empty type
		case 1:
			require.NoError(t, Set(ctx, e, Position{X: float64(i)}))
		case 2:
			require.NoError(t, Set(ctx, e, Velocity{DX: float64(i)}))
		case 3:
			require.NoError(t, Set(ctx, e, Health{HP: int32(i)}))
		case 4:
			require.NoError(t, Set(ctx, e, Position{X: float64(i)}))
			require.NoError(t, Set(ctx, e, Velocity{DY: float64(i)}))
		case 5:
			require.NoError(t, Set(ctx, e, Position{Y: float64(i)}))
			require.NoError(t, Set(ctx, e, Health{HP: int32(i)}))
		case 6:
			require.NoError(t, Set(ctx, e, Velocity{DX: 1}))
			require.NoError(t, Set(ctx, e, Health{HP: 2}))
		case 7:
			require.NoError(t, Set(ctx, e, Position{}))
			require.NoError(t, Set(ctx, e, Velocity{}))
			require.NoError(t, Set(ctx, e, Health{HP: int32(i)}))
		case 8:
			require.NoError(t, Set(ctx, e, Frozen{}))
		case 9:
			require.NoError(t, Set(ctx, e, Frozen{}))
			require.NoError(t, Set(ctx, e, Health{HP: int32(i)}))
		}
	}
	return w
}

// freshRegisteredWorld builds an empty world with the identical component
// registration order, the precondition for restoring a snapshot.
func freshRegisteredWorld(t *testing.T) *World {
	t.Helper()
	w, _, _, _ := newTestWorld(t)
	_, err := RegisterComponentType[Frozen](w)
	require.NoError(t, err)
	return w
}

func TestSnapshot_RoundTripByteEqual(t *testing.T) {
	t.Parallel()

	original := buildPopulatedWorld(t)
	// Frozen registers lazily through Set; make the fixture order explicit
	// for the fresh world by registering it here too.
	_, err := RegisterComponentType[Frozen](original)
	require.NoError(t, err)

	snap1, err := original.Snapshot(SnapshotFilter{})
	require.NoError(t, err)

	restored := freshRegisteredWorld(t)
	require.NoError(t, restored.Restore(snap1))

	snap2, err := restored.Snapshot(SnapshotFilter{})
	require.NoError(t, err)
	assert.Equal(t, snap1, snap2, "snapshot, restore, snapshot must be byte-equal")
}

func TestSnapshot_RestoredIterationMatches(t *testing.T) {
	t.Parallel()

	original := buildPopulatedWorld(t)
	snap, err := original.Snapshot(SnapshotFilter{})
	require.NoError(t, err)

	restored := freshRegisteredWorld(t)
	require.NoError(t, restored.Restore(snap))

	collect := func(w *World) map[EntityID]string {
		out := make(map[EntityID]string)
		w.main.index.Iterate(func(id EntityID, rec Record) bool {
			key := ""
			if rec.Table != nil {
				for _, c := range rec.Table.typ.IDs() {
					key += string(rune(c)) + ","
				}
			}
			out[id] = key
			return true
		})
		return out
	}
	assert.Equal(t, collect(original), collect(restored),
		"every (entity, type) pair survives the round trip")
}

func TestSnapshot_RestorePreservesComponentValues(t *testing.T) {
	t.Parallel()

	w, _, _, _ := newTestWorld(t)
	ctx := w.Context()
	e, err := ctx.NewEntity()
	require.NoError(t, err)
	require.NoError(t, Set(ctx, e, Position{X: 3.5, Y: -1}))
	require.NoError(t, Set(ctx, e, Health{HP: 77}))
	require.NoError(t, ctx.Watch(e, true))

	snap, err := w.Snapshot(SnapshotFilter{})
	require.NoError(t, err)

	restored, _, _, _ := newTestWorld(t)
	require.NoError(t, restored.Restore(snap))

	rctx := restored.Context()
	p, ok := Get[Position](rctx, e)
	require.True(t, ok)
	assert.Equal(t, Position{X: 3.5, Y: -1}, p)
	h, ok := Get[Health](rctx, e)
	require.True(t, ok)
	assert.Equal(t, int32(77), h.HP)

	rec, ok := restored.main.index.Get(e)
	require.True(t, ok)
	assert.True(t, rec.Watched(), "watched flag survives the round trip")

	// Handle counter restored: the next entity does not collide.
	e2, err := rctx.NewEntity()
	require.NoError(t, err)
	assert.NotEqual(t, e, e2)
}

func TestSnapshot_FilterRestrictsTables(t *testing.T) {
	t.Parallel()

	w, a, b, _ := newTestWorld(t)
	ctx := w.Context()

	e1, err := ctx.NewEntity()
	require.NoError(t, err)
	require.NoError(t, ctx.Add(e1, a))
	e2, err := ctx.NewEntity()
	require.NoError(t, err)
	require.NoError(t, ctx.Add(e2, b))

	snap, err := w.Snapshot(SnapshotFilter{With: []EntityID{a}})
	require.NoError(t, err)

	restored, _, _, _ := newTestWorld(t)
	require.NoError(t, restored.Restore(snap))

	rctx := restored.Context()
	assert.True(t, rctx.Has(e1, a))
	assert.False(t, rctx.Has(e2, b), "filtered-out table is not captured")
}

func TestSnapshot_DebugJSONRenders(t *testing.T) {
	t.Parallel()

	w, a, _, _ := newTestWorld(t)
	ctx := w.Context()
	e, err := ctx.NewEntity()
	require.NoError(t, err)
	require.NoError(t, ctx.Add(e, a))

	data, err := w.DebugJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), "\"entities\"")
}
