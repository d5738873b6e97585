package ecs

import (
	"unsafe"

	"github.com/rotisserie/eris"
	"github.com/shamaton/msgpack/v3"
)

// abstractColumn is the type-erased view of a table's per-component
// storage: a typed column[T] (or a size-known rawColumn) underneath, a
// uniform interface for the table to drive row-level operations without
// knowing T. Cross-table moves match columns by componentID(), never by
// slice position.
type abstractColumn interface {
	componentID() EntityID
	len() int
	extend()
	swapRemove(row int)
	swapRemoveRaw(row int)
	copyRowTo(srcRow int, dst abstractColumn, dstRow int)
	zeroInitAt(row int)
	finiAt(row int)
	setBytes(row int, src []byte)
	serializeRow(row int) ([]byte, error)
	deserializeAppend(data []byte) error
}

// column is the generic storage for one component type across every row of
// a table. Hooks operate on the raw bytes of a slot via unsafe
// reinterpretation, since the hook contract itself (func(dst []byte)) is
// byte-level.
type column[T any] struct {
	id    EntityID
	data  []T
	hooks ComponentHooks
}

func newColumn[T any](id EntityID, hooks ComponentHooks) *column[T] {
	return &column[T]{id: id, hooks: hooks}
}

func (c *column[T]) componentID() EntityID { return c.id }
func (c *column[T]) len() int              { return len(c.data) }

func (c *column[T]) emptyClone() abstractColumn { return newColumn[T](c.id, c.hooks) }

func (c *column[T]) bytesAt(row int) []byte {
	var zero T
	size := unsafe.Sizeof(zero)
	if size == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&c.data[row])), size)
}

func (c *column[T]) extend() {
	var zero T
	c.data = append(c.data, zero)
	if c.hooks.Init != nil {
		c.hooks.Init(c.bytesAt(len(c.data) - 1))
	}
}

func (c *column[T]) swapRemove(row int) {
	if c.hooks.Fini != nil {
		c.hooks.Fini(c.bytesAt(row))
	}
	c.swapRemoveRaw(row)
}

// swapRemoveRaw removes a row without finalizing it, used when the row's
// data has already been moved to another table.
func (c *column[T]) swapRemoveRaw(row int) {
	last := len(c.data) - 1
	if row != last {
		c.data[row] = c.data[last]
	}
	c.data = c.data[:last]
}

func (c *column[T]) copyRowTo(srcRow int, dst abstractColumn, dstRow int) {
	other, ok := dst.(*column[T])
	if !ok {
		panic("column: mismatched component type in copyRowTo")
	}
	if c.hooks.Merge != nil {
		other.hooks.Merge(other.bytesAt(dstRow), c.bytesAt(srcRow))
		return
	}
	other.data[dstRow] = c.data[srcRow]
}

func (c *column[T]) zeroInitAt(row int) {
	var zero T
	c.data[row] = zero
	if c.hooks.Init != nil {
		c.hooks.Init(c.bytesAt(row))
	}
}

func (c *column[T]) finiAt(row int) {
	if c.hooks.Fini != nil {
		c.hooks.Fini(c.bytesAt(row))
	}
}

func (c *column[T]) get(row int) T { return c.data[row] }
func (c *column[T]) set(row int, v T) {
	if c.hooks.Replace != nil {
		old := c.data[row]
		c.data[row] = v
		c.hooks.Replace(c.bytesAt(row), c.bytesAtOf(&old))
		return
	}
	c.data[row] = v
}

// setBytes overwrites a live slot from raw bytes, honouring the Replace
// hook. Callers have validated len(src) against the registered size.
func (c *column[T]) setBytes(row int, src []byte) {
	if c.hooks.Replace != nil {
		old := c.data[row]
		copy(c.bytesAt(row), src)
		c.hooks.Replace(c.bytesAt(row), c.bytesAtOf(&old))
		return
	}
	copy(c.bytesAt(row), src)
}

func (c *column[T]) bytesAtOf(v *T) []byte {
	size := unsafe.Sizeof(*v)
	if size == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), size)
}

// serializeRow and deserializeAppend back the world snapshot. Every row is
// msgpack-encoded; component hooks are not consulted.
func (c *column[T]) serializeRow(row int) ([]byte, error) {
	data, err := msgpack.Marshal(c.data[row])
	if err != nil {
		return nil, eris.Wrap(err, "failed to serialize component row")
	}
	return data, nil
}

func (c *column[T]) deserializeAppend(data []byte) error {
	var v T
	if len(data) > 0 {
		if err := msgpack.Unmarshal(data, &v); err != nil {
			return eris.Wrap(err, "failed to deserialize component row")
		}
	}
	c.data = append(c.data, v)
	return nil
}

// rawColumn stores rows of a component registered without a Go type: a
// flat byte slice carved into size-byte slots. It backs RegisterComponent,
// where only size, alignment, and hooks are known.
type rawColumn struct {
	id    EntityID
	size  uintptr
	data  []byte
	count int
	hooks ComponentHooks
}

func newRawColumn(id EntityID, size uintptr, hooks ComponentHooks) *rawColumn {
	return &rawColumn{id: id, size: size, hooks: hooks}
}

func (c *rawColumn) componentID() EntityID { return c.id }
func (c *rawColumn) len() int              { return c.count }

func (c *rawColumn) emptyClone() abstractColumn { return newRawColumn(c.id, c.size, c.hooks) }

func (c *rawColumn) bytesAt(row int) []byte {
	off := uintptr(row) * c.size
	return c.data[off : off+c.size]
}

func (c *rawColumn) extend() {
	c.data = append(c.data, make([]byte, c.size)...)
	c.count++
	if c.hooks.Init != nil {
		c.hooks.Init(c.bytesAt(c.count - 1))
	}
}

func (c *rawColumn) swapRemove(row int) {
	if c.hooks.Fini != nil {
		c.hooks.Fini(c.bytesAt(row))
	}
	c.swapRemoveRaw(row)
}

func (c *rawColumn) swapRemoveRaw(row int) {
	last := c.count - 1
	if row != last {
		copy(c.bytesAt(row), c.bytesAt(last))
	}
	c.data = c.data[:uintptr(last)*c.size]
	c.count = last
}

func (c *rawColumn) copyRowTo(srcRow int, dst abstractColumn, dstRow int) {
	other, ok := dst.(*rawColumn)
	if !ok || other.size != c.size {
		panic("column: mismatched component layout in copyRowTo")
	}
	if c.hooks.Merge != nil {
		other.hooks.Merge(other.bytesAt(dstRow), c.bytesAt(srcRow))
		return
	}
	copy(other.bytesAt(dstRow), c.bytesAt(srcRow))
}

func (c *rawColumn) zeroInitAt(row int) {
	clear(c.bytesAt(row))
	if c.hooks.Init != nil {
		c.hooks.Init(c.bytesAt(row))
	}
}

func (c *rawColumn) finiAt(row int) {
	if c.hooks.Fini != nil {
		c.hooks.Fini(c.bytesAt(row))
	}
}

func (c *rawColumn) setBytes(row int, src []byte) {
	if c.hooks.Replace != nil {
		old := make([]byte, c.size)
		copy(old, c.bytesAt(row))
		copy(c.bytesAt(row), src)
		c.hooks.Replace(c.bytesAt(row), old)
		return
	}
	copy(c.bytesAt(row), src)
}

func (c *rawColumn) serializeRow(row int) ([]byte, error) {
	data, err := msgpack.Marshal(c.bytesAt(row))
	if err != nil {
		return nil, eris.Wrap(err, "failed to serialize component row")
	}
	return data, nil
}

func (c *rawColumn) deserializeAppend(data []byte) error {
	var raw []byte
	if len(data) > 0 {
		if err := msgpack.Unmarshal(data, &raw); err != nil {
			return eris.Wrap(err, "failed to deserialize component row")
		}
	}
	if uintptr(len(raw)) != c.size {
		return eris.Errorf("component row has %d bytes, column expects %d", len(raw), c.size)
	}
	c.data = append(c.data, raw...)
	c.count++
	return nil
}
