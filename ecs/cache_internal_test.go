package ecs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cacheTable builds a bare table with n rows for partition tests; the
// cache only inspects Len().
func cacheTable(trie *TypeTrie, ids []EntityID, rows int) *Table {
	h, err := trie.Intern(ids)
	if err != nil {
		panic(err)
	}
	t := newTable(0, h, newComponentRegistry())
	for i := 0; i < rows; i++ {
		t.data.entities = append(t.data.entities, EntityID(1000+i))
		t.data.recordPtrs = append(t.data.recordPtrs, EntityID(1000+i))
	}
	return t
}

func TestTableCache_InsertPartitionsByEmptiness(t *testing.T) {
	t.Parallel()

	trie := NewTypeTrie(DefaultConfig())
	empty := cacheTable(trie, []EntityID{1}, 0)
	full := cacheTable(trie, []EntityID{2}, 3)

	c := newTableCache()
	c.insert(cachePayload{table: empty})
	c.insert(cachePayload{table: full})

	assert.Len(t, c.emptyTables, 1)
	assert.Len(t, c.tables, 1)
	assert.Equal(t, -1, c.index[empty], "first empty slot encodes as -1")
	assert.Equal(t, 0, c.index[full])
	c.checkInvariants()
}

func TestTableCache_SetEmptyRoundTrip(t *testing.T) {
	t.Parallel()

	trie := NewTypeTrie(DefaultConfig())
	tbl := cacheTable(trie, []EntityID{1}, 0)

	c := newTableCache()
	c.insert(cachePayload{table: tbl, depth: 7})
	require.Len(t, c.emptyTables, 1)

	// Simulate the table gaining a row, then losing it again.
	tbl.data.entities = append(tbl.data.entities, 42)
	c.setEmpty(tbl, false)
	assert.Len(t, c.emptyTables, 0)
	require.Len(t, c.tables, 1)
	assert.Equal(t, 0, c.index[tbl])
	assert.Equal(t, 7, c.tables[0].depth, "payload travels across partitions")

	tbl.data.entities = tbl.data.entities[:0]
	c.setEmpty(tbl, true)
	require.Len(t, c.emptyTables, 1)
	assert.Len(t, c.tables, 0)
	assert.Equal(t, 7, c.emptyTables[0].depth)
	c.checkInvariants()
}

func TestTableCache_SetEmptyNoOpWhenAlreadyThere(t *testing.T) {
	t.Parallel()

	trie := NewTypeTrie(DefaultConfig())
	tbl := cacheTable(trie, []EntityID{1}, 0)

	c := newTableCache()
	c.insert(cachePayload{table: tbl})
	before := c.index[tbl]
	c.setEmpty(tbl, true)
	assert.Equal(t, before, c.index[tbl])
	c.checkInvariants()
}

func TestTableCache_SwapRemoveRepairsMovedIndex(t *testing.T) {
	t.Parallel()

	trie := NewTypeTrie(DefaultConfig())
	a := cacheTable(trie, []EntityID{1}, 1)
	b := cacheTable(trie, []EntityID{2}, 1)
	d := cacheTable(trie, []EntityID{3}, 1)

	c := newTableCache()
	c.insert(cachePayload{table: a})
	c.insert(cachePayload{table: b})
	c.insert(cachePayload{table: d})

	// Removing the first element moves the last into its slot; the moved
	// element's index entry must be rewritten.
	c.remove(a)
	assert.False(t, c.has(a))
	assert.Equal(t, 0, c.index[d], "last element moved into the vacated slot")
	assert.Equal(t, 1, c.index[b])
	c.checkInvariants()
}

func TestTableCache_RemoveOnlyElement(t *testing.T) {
	t.Parallel()

	trie := NewTypeTrie(DefaultConfig())
	tbl := cacheTable(trie, []EntityID{1}, 0)

	c := newTableCache()
	c.insert(cachePayload{table: tbl})
	c.remove(tbl)
	assert.False(t, c.has(tbl))
	assert.Len(t, c.emptyTables, 0)
	assert.Len(t, c.index, 0)
	c.checkInvariants()
}

func TestTableCache_EmptyPartitionSwapRepairUsesNegativeEncoding(t *testing.T) {
	t.Parallel()

	trie := NewTypeTrie(DefaultConfig())
	a := cacheTable(trie, []EntityID{1}, 0)
	b := cacheTable(trie, []EntityID{2}, 0)
	d := cacheTable(trie, []EntityID{3}, 0)

	c := newTableCache()
	c.insert(cachePayload{table: a})
	c.insert(cachePayload{table: b})
	c.insert(cachePayload{table: d})

	// a sits at empty slot 0 (stored -1). Moving it out swaps d into its
	// place, whose entry must become -1 again.
	a.data.entities = append(a.data.entities, 42)
	c.setEmpty(a, false)
	assert.Equal(t, 0, c.index[a])
	assert.Equal(t, -1, c.index[d])
	assert.Equal(t, -2, c.index[b])
	c.checkInvariants()
}

func TestTableCache_PayloadLookup(t *testing.T) {
	t.Parallel()

	trie := NewTypeTrie(DefaultConfig())
	tbl := cacheTable(trie, []EntityID{1}, 2)

	c := newTableCache()
	c.insert(cachePayload{table: tbl, depth: 3})
	p := c.payload(tbl)
	require.NotNil(t, p)
	assert.Equal(t, 3, p.depth)

	other := cacheTable(trie, []EntityID{2}, 0)
	assert.Nil(t, c.payload(other))
}
