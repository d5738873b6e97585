package ecs

import (
	"github.com/RoyAwesome/flecs/internal/assert"
)

// cachePayload is one matched table plus the query-local data computed for
// it at match time. The payload travels with the table when it moves
// between the empty and non-empty partitions.
type cachePayload struct {
	table *Table
	// columns maps signature column index to table column position,
	// 1-based; 0 means no data (tag, Not, or absent Optional); negative
	// values index (1-based, negated) into references.
	columns []int
	// references holds the source entities for columns resolved outside
	// the table's own rows (Shared, Container, Entity, System).
	references []EntityID
	// components records the resolved component id per signature column.
	components []EntityID
	// depth is the table's container depth, used for Cascade ordering.
	depth int
}

// tableCache is a query-local list of matched tables partitioned into
// non-empty (tables) and empty (emptyTables) arrays. A signed per-table
// index makes partition transitions O(1): values >= 0 index into tables,
// negative values v index into emptyTables at -v-1.
type tableCache struct {
	tables      []cachePayload
	emptyTables []cachePayload
	index       map[*Table]int
}

func newTableCache() *tableCache {
	return &tableCache{index: make(map[*Table]int)}
}

// insert appends the table to the partition matching its current row
// count and records its signed index. Returns the stored payload slot.
func (c *tableCache) insert(p cachePayload) *cachePayload {
	t := p.table
	_, exists := c.index[t]
	assert.That(!exists, "table inserted into cache twice")

	if t.Len() == 0 {
		c.emptyTables = append(c.emptyTables, p)
		c.index[t] = -len(c.emptyTables)
		return &c.emptyTables[len(c.emptyTables)-1]
	}
	c.tables = append(c.tables, p)
	c.index[t] = len(c.tables) - 1
	return &c.tables[len(c.tables)-1]
}

// remove drops the table from whichever partition holds it, repairing the
// index entry of the element swapped into the vacated slot.
func (c *tableCache) remove(t *Table) {
	stored, ok := c.index[t]
	if !ok {
		return
	}
	if stored >= 0 {
		c.swapRemoveAt(&c.tables, stored, false)
	} else {
		c.swapRemoveAt(&c.emptyTables, -stored-1, true)
	}
	delete(c.index, t)
}

// setEmpty moves the table into the partition matching empty. If it is
// already there this is a no-op, preserving its payload and position.
func (c *tableCache) setEmpty(t *Table, empty bool) {
	stored, ok := c.index[t]
	if !ok {
		return
	}
	inEmpty := stored < 0
	if inEmpty == empty {
		return
	}

	var payload cachePayload
	if inEmpty {
		at := -stored - 1
		payload = c.emptyTables[at]
		c.swapRemoveAt(&c.emptyTables, at, true)
		c.tables = append(c.tables, payload)
		c.index[t] = len(c.tables) - 1
		return
	}
	payload = c.tables[stored]
	c.swapRemoveAt(&c.tables, stored, false)
	c.emptyTables = append(c.emptyTables, payload)
	c.index[t] = -len(c.emptyTables)
}

// swapRemoveAt removes slot at from *arr by moving the last element into
// it. When the removed slot was not the last, the moved element's index
// entry is rewritten with the correct sign for its partition.
func (c *tableCache) swapRemoveAt(arr *[]cachePayload, at int, emptyPartition bool) {
	a := *arr
	last := len(a) - 1
	if at != last {
		a[at] = a[last]
		if emptyPartition {
			c.index[a[at].table] = -(at + 1)
		} else {
			c.index[a[at].table] = at
		}
	}
	*arr = a[:last]
}

// payload returns the payload slot currently holding t, or nil.
func (c *tableCache) payload(t *Table) *cachePayload {
	stored, ok := c.index[t]
	if !ok {
		return nil
	}
	if stored >= 0 {
		return &c.tables[stored]
	}
	return &c.emptyTables[-stored-1]
}

// has reports whether t is tracked by this cache in either partition.
func (c *tableCache) has(t *Table) bool {
	_, ok := c.index[t]
	return ok
}

// checkInvariants verifies that every index entry round-trips to its
// payload and that the partitions account for every tracked table.
func (c *tableCache) checkInvariants() {
	for t, stored := range c.index {
		if stored >= 0 {
			assert.That(c.tables[stored].table == t, "non-empty index entry does not round-trip")
		} else {
			assert.That(c.emptyTables[-stored-1].table == t, "empty index entry does not round-trip")
		}
	}
	assert.That(len(c.tables)+len(c.emptyTables) == len(c.index),
		"cache partitions out of sync with index")
}
