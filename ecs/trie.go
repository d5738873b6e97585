package ecs

import "github.com/kelindar/bitmap"

// TypeHandle identifies an interned Type. Two handles compare equal (as Go
// pointers) iff their underlying id sequences are equal — the type trie
// guarantees the mapping from sequence to handle is injective.
type TypeHandle = *typeNode

// typeNode is one node of the type trie (C2): it represents the type
// formed by the path of component ids from the trie root down to itself.
type typeNode struct {
	parent *typeNode
	ids    []EntityID
	set    bitmap.Bitmap

	// childrenDense is indexed by c - maxOf(ids), populated only while
	// that offset is below the trie's MaxChildNodes threshold.
	childrenDense []*typeNode
	// childrenSparse buckets children whose offset from maxOf(ids) is at
	// or beyond MaxChildNodes, keyed by c % BucketCount.
	childrenSparse map[uint64][]sparseChild

	// next threads every interned node in creation order, for linear
	// scans used by merge and debugging.
	next *typeNode
}

type sparseChild struct {
	id   EntityID
	node *typeNode
}

// IDs returns the sorted component ids this type handle represents. The
// returned slice must not be mutated.
func (n *typeNode) IDs() []EntityID { return n.ids }

// Bitmap returns the component-membership bitmap for this type. The
// returned bitmap must not be mutated.
func (n *typeNode) Bitmap() bitmap.Bitmap { return n.set }

// Len returns the number of component ids in this type.
func (n *typeNode) Len() int { return len(n.ids) }

// Contains reports whether this type includes component id c.
func (n *typeNode) Contains(c EntityID) bool { return n.set.Contains(uint32(c)) }

func maxOf(ids []EntityID) EntityID {
	if len(ids) == 0 {
		return 0
	}
	return ids[len(ids)-1]
}

// TypeTrie interns sorted component-id sequences into shared TypeHandles.
// Each node's children use a two-tier strategy: a dense window for ids
// close to the node's largest id, and a bucketed sparse map for the rest.
type TypeTrie struct {
	cfg  Config
	root *typeNode
	tail *typeNode
}

// NewTypeTrie creates a trie whose root represents the empty type.
func NewTypeTrie(cfg Config) *TypeTrie {
	root := &typeNode{}
	t := &TypeTrie{cfg: cfg, root: root, tail: root}
	return t
}

// Root returns the handle for the empty type (∅), shared by every table
// with no components.
func (t *TypeTrie) Root() TypeHandle { return t.root }

// Intern canonicalises sortedIDs (ascending, deduplicated) into a
// TypeHandle, creating trie nodes as needed. Equal sequences always yield
// the same handle.
func (t *TypeTrie) Intern(sortedIDs []EntityID) (TypeHandle, error) {
	if len(sortedIDs) > t.cfg.MaxEntitiesInType {
		return nil, newErr(KindTypeTooLarge, "type has %d components, exceeds max %d",
			len(sortedIDs), t.cfg.MaxEntitiesInType)
	}
	node := t.root
	for _, c := range sortedIDs {
		node = t.childOf(node, c, true)
	}
	return node, nil
}

// HandleOf is a non-inserting lookup; it returns (nil, false) if
// sortedIDs has not been interned.
func (t *TypeTrie) HandleOf(sortedIDs []EntityID) (TypeHandle, bool) {
	node := t.root
	for _, c := range sortedIDs {
		node = t.childOf(node, c, false)
		if node == nil {
			return nil, false
		}
	}
	return node, true
}

// childOf returns the child of parent representing parent.ids ∪ {c},
// creating it (and linking it into the trie's enumeration list) if create
// is set and it does not yet exist.
func (t *TypeTrie) childOf(parent *typeNode, c EntityID, create bool) *typeNode {
	offset := uint64(c) - uint64(maxOf(parent.ids))

	if offset < t.cfg.MaxChildNodes {
		if parent.childrenDense == nil {
			if !create {
				return nil
			}
			parent.childrenDense = make([]*typeNode, t.cfg.MaxChildNodes)
		}
		if child := parent.childrenDense[offset]; child != nil {
			return child
		}
		if !create {
			return nil
		}
		child := t.newChild(parent, c)
		parent.childrenDense[offset] = child
		return child
	}

	bucket := uint64(c) % t.cfg.BucketCount
	for _, entry := range parent.childrenSparse[bucket] {
		if entry.id == c {
			return entry.node
		}
	}
	if !create {
		return nil
	}
	child := t.newChild(parent, c)
	if parent.childrenSparse == nil {
		parent.childrenSparse = make(map[uint64][]sparseChild)
	}
	parent.childrenSparse[bucket] = append(parent.childrenSparse[bucket], sparseChild{id: c, node: child})
	return child
}

func (t *TypeTrie) newChild(parent *typeNode, c EntityID) *typeNode {
	ids := make([]EntityID, len(parent.ids)+1)
	copy(ids, parent.ids)
	ids[len(parent.ids)] = c

	set := parent.set.Clone(nil)
	set.Set(uint32(c))

	node := &typeNode{parent: parent, ids: ids, set: set}
	t.tail.next = node
	t.tail = node
	return node
}

// All returns every interned type handle in creation order, including the
// root. Intended for debugging and merge bookkeeping, not hot paths.
func (t *TypeTrie) All() []TypeHandle {
	var out []TypeHandle
	for n := t.root; n != nil; n = n.next {
		out = append(out, n)
	}
	return out
}
