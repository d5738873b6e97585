package ecs

import (
	"sort"
)

// FromKind selects where a signature column's data is looked up.
type FromKind uint8

const (
	// FromSelf resolves on the entity's own row, falling back to an
	// inherited prefab row.
	FromSelf FromKind = iota
	// FromOwned resolves on the entity's own row only.
	FromOwned
	// FromShared resolves on an inherited prefab row only.
	FromShared
	// FromContainer walks up the parent relationship one hop.
	FromContainer
	// FromSystem resolves on the system entity named by Source.
	FromSystem
	// FromEmpty carries the component id as a handle with no data source.
	FromEmpty
	// FromEntity resolves on the fixed entity named by Source.
	FromEntity
	// FromCascade behaves like an optional container lookup and orders
	// matched tables by ascending container depth.
	FromCascade
)

// OperKind combines a column into the signature's predicate.
type OperKind uint8

const (
	// OperAnd requires the component.
	OperAnd OperKind = iota
	// OperOr admits any one of the listed components.
	OperOr
	// OperNot excludes tables holding the component.
	OperNot
	// OperOptional matches either way and exposes nullability.
	OperOptional
)

// InOutKind declares how a system accesses a column's data.
type InOutKind uint8

const (
	InOut InOutKind = iota
	In
	Out
)

// Column is one parsed signature column. The expression parser that
// produces these is an external collaborator; the core consumes them.
type Column struct {
	From  FromKind
	Oper  OperKind
	InOut InOutKind
	// Component is the component id for And/Not/Optional columns.
	Component EntityID
	// OneOf lists the admissible component ids for an Or column.
	OneOf []EntityID
	// Source names the fixed entity for FromEntity/FromSystem columns.
	Source EntityID
}

// Signature is a compiled predicate over component sets describing which
// tables a query matches.
type Signature struct {
	Columns []Column
}

// NewSignature builds the common case: every component required on the
// entity's own row with read-write access.
func NewSignature(components ...EntityID) Signature {
	cols := make([]Column, len(components))
	for i, comp := range components {
		cols[i] = Column{From: FromSelf, Oper: OperAnd, InOut: InOut, Component: comp}
	}
	return Signature{Columns: cols}
}

// MatchedTable is one table matched by a query, with the query-local
// column resolution. Columns maps signature column index to a 1-based
// table column; 0 means no data (tag, Not, or absent Optional); negative
// values index (negated, 1-based) into References.
type MatchedTable struct {
	Table      *Table
	Columns    []int
	References []EntityID
	Components []EntityID
	Depth      int
}

// Query owns a table cache over the signature's matched tables and keeps
// it current as tables are created and change emptiness.
type Query struct {
	world       *World
	sig         Signature
	cache       *tableCache
	cascade     int
	matchPrefab bool
	onNew       func(EntityID)
}

// RegisterQuery compiles sig into a query: every existing table is tested
// once, and the query subscribes to table creation and dirty-table
// notifications from then on.
func (w *World) RegisterQuery(sig Signature) (*Query, error) {
	q := &Query{world: w, sig: sig, cache: newTableCache(), cascade: -1}
	for i, col := range sig.Columns {
		if col.From == FromCascade {
			q.cascade = i
		}
		for _, comp := range append([]EntityID{col.Component}, col.OneOf...) {
			if comp == ComponentPrefab {
				q.matchPrefab = true
			}
		}
	}

	for _, t := range w.tables {
		q.maybeInsert(t)
	}
	w.queries = append(w.queries, q)
	w.logger.Debug().Int("columns", len(sig.Columns)).Msg("query registered")
	return q, nil
}

// OnNew registers fn to run whenever an entity is inserted into a table
// this query matches.
func (q *Query) OnNew(fn func(EntityID)) { q.onNew = fn }

// maybeInsert adds t to the cache if the signature matches it.
func (q *Query) maybeInsert(t *Table) {
	if q.cache.has(t) || !q.matches(t) {
		return
	}
	q.cache.insert(q.payloadFor(t))
}

// matches evaluates the signature predicate against t's type. The root
// table never matches; prefab tables match only signatures that name the
// Prefab tag.
func (q *Query) matches(t *Table) bool {
	if t == q.world.rootTable {
		return false
	}
	if t.flags&tableIsPrefab != 0 && !q.matchPrefab {
		return false
	}
	for _, col := range q.sig.Columns {
		if !q.columnMatches(t, col) {
			return false
		}
	}
	return len(q.sig.Columns) > 0
}

func (q *Query) columnMatches(t *Table, col Column) bool {
	switch col.Oper {
	case OperOptional:
		return true
	case OperOr:
		for _, comp := range col.OneOf {
			if q.resolves(t, col.From, comp) {
				return true
			}
		}
		return false
	case OperNot:
		return !q.resolves(t, col.From, col.Component)
	default:
		return q.resolves(t, col.From, col.Component)
	}
}

// resolves reports whether comp is reachable from t through the column's
// source kind.
func (q *Query) resolves(t *Table, from FromKind, comp EntityID) bool {
	switch from {
	case FromEmpty, FromEntity, FromSystem, FromCascade:
		return true
	case FromOwned:
		return t.typ.Contains(comp)
	case FromShared:
		return q.prefabHas(t, comp)
	case FromContainer:
		return q.parentHas(t, comp)
	default: // FromSelf
		return t.typ.Contains(comp) || q.prefabHas(t, comp)
	}
}

func (q *Query) prefabHas(t *Table, comp EntityID) bool {
	if t.prefab == 0 {
		return false
	}
	rec, ok := q.world.main.index.Get(t.prefab)
	return ok && rec.Table != nil && rec.Table.typ.Contains(comp)
}

func (q *Query) parentHas(t *Table, comp EntityID) bool {
	if t.parent == 0 {
		return false
	}
	rec, ok := q.world.main.index.Get(t.parent)
	return ok && rec.Table != nil && rec.Table.typ.Contains(comp)
}

// payloadFor resolves each signature column against t: own columns map to
// table column positions, non-self sources land in the references list.
func (q *Query) payloadFor(t *Table) cachePayload {
	p := cachePayload{
		table:      t,
		columns:    make([]int, len(q.sig.Columns)),
		components: make([]EntityID, len(q.sig.Columns)),
		depth:      t.depth,
	}
	for i, col := range q.sig.Columns {
		comp := col.Component
		if col.Oper == OperOr {
			for _, candidate := range col.OneOf {
				if q.resolves(t, col.From, candidate) {
					comp = candidate
					break
				}
			}
		}
		p.components[i] = comp

		switch col.From {
		case FromEmpty:
			p.columns[i] = 0
		case FromEntity, FromSystem:
			p.columns[i] = q.addReference(&p, col.Source)
		case FromContainer, FromCascade:
			if q.parentHas(t, comp) {
				p.columns[i] = q.addReference(&p, t.parent)
			}
		case FromShared:
			p.columns[i] = q.addReference(&p, t.prefab)
		default: // FromSelf, FromOwned
			if ci := t.columnIndex(comp); ci >= 0 {
				p.columns[i] = ci + 1
			} else if col.From == FromSelf && q.prefabHas(t, comp) {
				p.columns[i] = q.addReference(&p, t.prefab)
			}
		}
		if col.Oper == OperNot {
			p.columns[i] = 0
		}
	}
	return p
}

func (q *Query) addReference(p *cachePayload, source EntityID) int {
	p.references = append(p.references, source)
	return -len(p.references)
}

// Iterate returns the non-empty matched tables as they exist right now.
// Tables created during iteration become visible only after merge. When
// the signature has a Cascade column, tables are ordered by ascending
// container depth.
func (q *Query) Iterate() []MatchedTable {
	out := make([]MatchedTable, 0, len(q.cache.tables))
	for i := range q.cache.tables {
		p := &q.cache.tables[i]
		out = append(out, MatchedTable{
			Table:      p.table,
			Columns:    p.columns,
			References: p.references,
			Components: p.components,
			Depth:      p.table.depth,
		})
	}
	if q.cascade >= 0 {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Depth < out[j].Depth })
	}
	return out
}

// ColumnSlice returns the main-stage data slice behind a signature
// column, or nil when the column carries no row data for this table.
func ColumnSlice[T any](mt MatchedTable, sigCol int) []T {
	mapping := mt.Columns[sigCol]
	if mapping <= 0 {
		return nil
	}
	col, ok := mt.Table.data.columns[mapping-1].(*column[T])
	if !ok {
		return nil
	}
	return col.data
}

// RefValue reads a column resolved against a reference entity (a prefab,
// container, or fixed source) rather than the table's own rows.
func RefValue[T any](c Context, mt MatchedTable, sigCol int) (*T, bool) {
	mapping := mt.Columns[sigCol]
	if mapping >= 0 {
		return nil, false
	}
	ref := mt.References[-mapping-1]
	rec, ok := c.world.main.index.Get(ref)
	if !ok || rec.Row() < 0 {
		return nil, false
	}
	col, colOK := viewColumn(&rec.Table.data, mt.Components[sigCol]).(*column[T])
	if !colOK {
		return nil, false
	}
	return &col.data[rec.Row()], true
}
