// ABOUTME: Forward iteration over the B+Tree
// ABOUTME: SeekLE/SeekGE positioning plus range and prefix scans

package btree

import "bytes"

// Iterator walks leaf cells in key order. It keeps the path from the root so
// moving to the next leaf never needs sibling pointers.
type Iterator struct {
	tree *Tree
	path []Node
	pos  []uint16
}

// NewIterator returns an unpositioned iterator.
func (t *Tree) NewIterator() *Iterator {
	return &Iterator{
		tree: t,
		path: make([]Node, 0, 8),
		pos:  make([]uint16, 0, 8),
	}
}

// SeekLE positions the iterator at the last key <= key. The empty sentinel
// guarantees such a key exists in a non-empty tree.
func (it *Iterator) SeekLE(key []byte) bool {
	it.path = it.path[:0]
	it.pos = it.pos[:0]
	if it.tree.root == 0 {
		return false
	}
	n := it.tree.node(it.tree.root)
	for {
		idx := lookupLE(n, key)
		it.path = append(it.path, n)
		it.pos = append(it.pos, idx)
		if n.kind() == nodeLeaf {
			return true
		}
		n = it.tree.node(n.child(idx))
	}
}

// SeekGE positions the iterator at the first key >= key, skipping the
// sentinel. It reports whether such a key exists.
func (it *Iterator) SeekGE(key []byte) bool {
	if !it.SeekLE(key) {
		return false
	}
	for {
		if it.Valid() {
			k := it.Key()
			if len(k) > 0 && bytes.Compare(k, key) >= 0 {
				return true
			}
		}
		if !it.Next() {
			return false
		}
	}
}

// Valid reports whether the iterator points at a cell.
func (it *Iterator) Valid() bool {
	if len(it.path) == 0 {
		return false
	}
	leaf := it.path[len(it.path)-1]
	return it.pos[len(it.pos)-1] < leaf.nkeys()
}

// Key returns the current key, or nil when the iterator is exhausted.
func (it *Iterator) Key() []byte {
	if !it.Valid() {
		return nil
	}
	return it.path[len(it.path)-1].key(it.pos[len(it.pos)-1])
}

// Val returns the current value, or nil when the iterator is exhausted.
func (it *Iterator) Val() []byte {
	if !it.Valid() {
		return nil
	}
	return it.path[len(it.path)-1].val(it.pos[len(it.pos)-1])
}

// Next advances to the following key.
func (it *Iterator) Next() bool {
	if len(it.path) == 0 {
		return false
	}
	level := len(it.pos) - 1
	it.pos[level]++
	if it.pos[level] < it.path[level].nkeys() {
		return true
	}

	// climb until a level still has unvisited children
	for level > 0 {
		it.path = it.path[:level]
		it.pos = it.pos[:level]
		level--
		it.pos[level]++
		if it.pos[level] < it.path[level].nkeys() {
			return it.descendLeftmost()
		}
	}
	it.path = it.path[:0]
	it.pos = it.pos[:0]
	return false
}

func (it *Iterator) descendLeftmost() bool {
	for {
		level := len(it.path) - 1
		parent := it.path[level]
		if parent.kind() == nodeLeaf {
			if parent.nkeys() == 0 {
				return it.Next()
			}
			return true
		}
		child := it.tree.node(parent.child(it.pos[level]))
		it.path = append(it.path, child)
		it.pos = append(it.pos, 0)
	}
}

// Scan calls fn for every key >= start in order until fn returns false.
func (t *Tree) Scan(start []byte, fn func(key, val []byte) bool) {
	it := t.NewIterator()
	if !it.SeekGE(start) {
		return
	}
	for it.Valid() {
		if !fn(it.Key(), it.Val()) {
			return
		}
		if !it.Next() {
			return
		}
	}
}

// ScanPrefix calls fn for every key starting with prefix until fn returns
// false.
func (t *Tree) ScanPrefix(prefix []byte, fn func(key, val []byte) bool) {
	t.Scan(prefix, func(key, val []byte) bool {
		if !bytes.HasPrefix(key, prefix) {
			return false
		}
		return fn(key, val)
	})
}
