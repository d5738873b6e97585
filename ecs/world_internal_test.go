package ecs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorld_TableCreationChain(t *testing.T) {
	t.Parallel()

	w, a, b, c := newTestWorld(t)
	ctx := w.Context()

	e, err := ctx.NewEntity()
	require.NoError(t, err)

	require.NoError(t, ctx.Add(e, a))
	rec, _ := w.main.index.Get(e)
	assert.Equal(t, []EntityID{a}, rec.Table.typ.IDs())

	require.NoError(t, ctx.Add(e, b))
	rec, _ = w.main.index.Get(e)
	assert.Equal(t, []EntityID{a, b}, rec.Table.typ.IDs())

	require.NoError(t, ctx.Add(e, c))
	rec, _ = w.main.index.Get(e)
	assert.Equal(t, []EntityID{a, b, c}, rec.Table.typ.IDs())

	// Root plus the three new tables.
	assert.Len(t, w.tables, 4)
}

func TestWorld_AddIsIdempotent(t *testing.T) {
	t.Parallel()

	w, a, _, _ := newTestWorld(t)
	ctx := w.Context()

	e, err := ctx.NewEntity()
	require.NoError(t, err)
	require.NoError(t, ctx.Add(e, a))
	rec1, _ := w.main.index.Get(e)

	require.NoError(t, ctx.Add(e, a))
	rec2, _ := w.main.index.Get(e)
	assert.Equal(t, rec1.Table, rec2.Table)
	assert.Equal(t, rec1.Row(), rec2.Row())
	assert.Equal(t, 1, rec1.Table.Len())
}

func TestWorld_AddRemoveRestoresType(t *testing.T) {
	t.Parallel()

	w, a, b, _ := newTestWorld(t)
	ctx := w.Context()

	e, err := ctx.NewEntity()
	require.NoError(t, err)
	require.NoError(t, ctx.Add(e, a))
	rec, _ := w.main.index.Get(e)
	before := rec.Table

	require.NoError(t, ctx.Add(e, b))
	require.NoError(t, ctx.Remove(e, b))

	rec, _ = w.main.index.Get(e)
	assert.Same(t, before, rec.Table, "interning makes the round trip land on the same table")
	assert.Equal(t, []EntityID{a}, rec.Table.typ.IDs())
}

func TestWorld_RemoveLastComponentReturnsToEmptyType(t *testing.T) {
	t.Parallel()

	w, a, _, _ := newTestWorld(t)
	ctx := w.Context()

	e, err := ctx.NewEntity()
	require.NoError(t, err)
	require.NoError(t, ctx.Add(e, a))
	require.NoError(t, ctx.Remove(e, a))

	rec, ok := w.main.index.Get(e)
	require.True(t, ok)
	assert.Same(t, w.rootTable, rec.Table)
	assert.Equal(t, int32(-1), rec.Row(), "empty-type entity occupies no row")
	assert.True(t, ctx.IsAlive(e))
}

func TestWorld_EdgesCachedAndSymmetric(t *testing.T) {
	t.Parallel()

	w, a, b, _ := newTestWorld(t)
	ctx := w.Context()

	e1, err := ctx.NewEntity()
	require.NoError(t, err)
	e2, err := ctx.NewEntity()
	require.NoError(t, err)
	require.NoError(t, ctx.Add(e1, a))
	rec, _ := w.main.index.Get(e1)
	src := rec.Table

	require.NoError(t, ctx.Add(e1, b))
	rec, _ = w.main.index.Get(e1)
	dst := rec.Table

	// Edge cached on the source, reverse edge on the destination.
	require.NotNil(t, src.loEdges)
	assert.Same(t, dst, src.loEdges[b].add)
	assert.Same(t, src, dst.loEdges[b].remove)

	// The second transition through the same edge reuses the cache.
	require.NoError(t, ctx.Add(e2, a))
	require.NoError(t, ctx.Add(e2, b))
	rec2, _ := w.main.index.Get(e2)
	assert.Same(t, dst, rec2.Table)
	assert.Len(t, w.tables, 3, "no extra table created on the cached path")
}

func TestWorld_WatchSurvivesTransitions(t *testing.T) {
	t.Parallel()

	w, a, b, _ := newTestWorld(t)
	ctx := w.Context()

	e, err := ctx.NewEntity()
	require.NoError(t, err)
	require.NoError(t, ctx.Watch(e, true))

	require.NoError(t, ctx.Add(e, a))
	require.NoError(t, ctx.Add(e, b))
	require.NoError(t, ctx.Remove(e, a))

	rec, ok := w.main.index.Get(e)
	require.True(t, ok)
	assert.True(t, rec.Watched(), "watched flag survives every structural transition")
}

func TestWorld_ErrorKinds(t *testing.T) {
	t.Parallel()

	w, a, _, _ := newTestWorld(t)
	ctx := w.Context()

	t.Run("zero entity", func(t *testing.T) {
		err := ctx.Add(0, a)
		require.Error(t, err)
		kind, ok := KindOf(err)
		require.True(t, ok)
		assert.Equal(t, KindInvalidEntity, kind)
	})

	t.Run("dead entity", func(t *testing.T) {
		e, err := ctx.NewEntity()
		require.NoError(t, err)
		require.NoError(t, ctx.Delete(e))
		err = ctx.Add(e, a)
		require.Error(t, err)
		kind, ok := KindOf(err)
		require.True(t, ok)
		assert.Equal(t, KindInvalidEntity, kind)
	})

	t.Run("unregistered component", func(t *testing.T) {
		e, err := ctx.NewEntity()
		require.NoError(t, err)
		err = ctx.Add(e, 200)
		require.Error(t, err)
		kind, ok := KindOf(err)
		require.True(t, ok)
		assert.Equal(t, KindUnknownComponent, kind)
	})

	t.Run("component size mismatch", func(t *testing.T) {
		e, err := ctx.NewEntity()
		require.NoError(t, err)
		err = SetComponent(ctx, e, a, []byte{1})
		require.Error(t, err)
		kind, ok := KindOf(err)
		require.True(t, ok)
		assert.Equal(t, KindUnknownComponent, kind)
	})

	t.Run("exhausted handle window", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.MinHandle = 300
		cfg.MaxHandle = 301
		small := NewWorld(cfg)
		sctx := small.Context()
		_, err := sctx.NewEntity()
		require.NoError(t, err)
		_, err = sctx.NewEntity()
		require.NoError(t, err)
		_, err = sctx.NewEntity()
		require.Error(t, err)
		kind, ok := KindOf(err)
		require.True(t, ok)
		assert.Equal(t, KindInvalidEntity, kind)
	})
}

func TestWorld_RawComponentSetBytes(t *testing.T) {
	t.Parallel()

	w := NewWorld(DefaultConfig())
	ctx := w.Context()

	const rawID EntityID = 42
	require.NoError(t, RegisterComponent(w, rawID, 4, 4, ComponentHooks{}))

	e, err := ctx.NewEntity()
	require.NoError(t, err)
	require.NoError(t, SetComponent(ctx, e, rawID, []byte{9, 8, 7, 6}))

	rec, ok := w.main.index.Get(e)
	require.True(t, ok)
	col := viewColumn(&rec.Table.data, rawID)
	require.NotNil(t, col)
	raw, isRaw := col.(*rawColumn)
	require.True(t, isRaw)
	assert.Equal(t, []byte{9, 8, 7, 6}, raw.bytesAt(int(rec.Row())))
}

func TestWorld_PrefabAndInstanceFlags(t *testing.T) {
	t.Parallel()

	w, a, _, _ := newTestWorld(t)
	ctx := w.Context()

	prefab, err := ctx.NewPrefab()
	require.NoError(t, err)
	require.NoError(t, Set(ctx, prefab, Position{X: 9}))

	prec, _ := w.main.index.Get(prefab)
	assert.True(t, prec.Table.IsPrefab())

	inst, err := ctx.NewEntity()
	require.NoError(t, err)
	require.NoError(t, ctx.Add(inst, a))
	require.NoError(t, ctx.AddInstanceOf(inst, prefab))

	irec, _ := w.main.index.Get(inst)
	assert.True(t, irec.Table.flags&tableHasPrefab != 0)
	assert.Equal(t, prefab, irec.Table.prefab)

	// A non-prefab entity cannot be instanced.
	plain, err := ctx.NewEntity()
	require.NoError(t, err)
	err = ctx.AddInstanceOf(inst, plain)
	require.Error(t, err)
}

func TestWorld_ChildOfComputesDepth(t *testing.T) {
	t.Parallel()

	w, a, _, _ := newTestWorld(t)
	ctx := w.Context()

	root, err := ctx.NewEntity()
	require.NoError(t, err)
	require.NoError(t, ctx.Add(root, a))

	child, err := ctx.NewEntity()
	require.NoError(t, err)
	require.NoError(t, ctx.Add(child, a))
	require.NoError(t, ctx.AddChildOf(child, root))

	grandchild, err := ctx.NewEntity()
	require.NoError(t, err)
	require.NoError(t, ctx.Add(grandchild, a))
	require.NoError(t, ctx.AddChildOf(grandchild, child))

	crec, _ := w.main.index.Get(child)
	grec, _ := w.main.index.Get(grandchild)
	assert.Equal(t, 1, crec.Table.depth)
	assert.Equal(t, 2, grec.Table.depth)
	assert.Equal(t, root, crec.Table.parent)
	assert.Equal(t, child, grec.Table.parent)
}
