// ABOUTME: Copy-on-write B+Tree over fixed-size pages
// ABOUTME: Get, Insert and Delete never modify a page in place

package btree

import (
	"bytes"
)

// Pager resolves, allocates and releases pages for a Tree.
type Pager interface {
	// Page returns the page stored at ptr.
	Page(ptr uint64) []byte
	// Alloc stores a new page and returns its pointer.
	Alloc(page []byte) uint64
	// Free releases the page at ptr.
	Free(ptr uint64)
}

// Tree is a B+Tree whose nodes live in pages handed out by a Pager.
// A zero root means the tree is empty.
type Tree struct {
	root  uint64
	pager Pager
}

// New returns a tree rooted at root.
func New(pager Pager, root uint64) *Tree {
	return &Tree{root: root, pager: pager}
}

// Root returns the current root pointer.
func (t *Tree) Root() uint64 {
	return t.root
}

// SetRoot replaces the root pointer, used when a transaction is rolled back.
func (t *Tree) SetRoot(root uint64) {
	t.root = root
}

func (t *Tree) node(ptr uint64) Node {
	return Node(t.pager.Page(ptr))
}

// Get returns the value stored under key. The returned slice aliases page
// memory and must be copied if kept past the enclosing transaction.
func (t *Tree) Get(key []byte) ([]byte, bool) {
	if t.root == 0 {
		return nil, false
	}
	n := t.node(t.root)
	for {
		idx := lookupLE(n, key)
		switch n.kind() {
		case nodeLeaf:
			if bytes.Equal(key, n.key(idx)) {
				return n.val(idx), true
			}
			return nil, false
		case nodeInternal:
			n = t.node(n.child(idx))
		default:
			panic("btree: bad node kind")
		}
	}
}

// Insert adds or replaces key.
func (t *Tree) Insert(key, val []byte) error {
	if err := checkLimits(key, val); err != nil {
		return err
	}

	if t.root == 0 {
		root := Node(make([]byte, PageSize))
		root.setHeader(nodeLeaf, 2)
		appendCell(root, 0, 0, nil, nil)
		appendCell(root, 1, 0, key, val)
		t.root = t.pager.Alloc(root)
		return nil
	}

	grown := t.insert(t.node(t.root), key, val)
	count, parts := split3(grown)
	t.pager.Free(t.root)
	if count == 1 {
		t.root = t.pager.Alloc(parts[0])
		return nil
	}

	root := Node(make([]byte, PageSize))
	root.setHeader(nodeInternal, count)
	for i, part := range parts[:count] {
		appendCell(root, uint16(i), t.pager.Alloc(part), part.key(0), nil)
	}
	t.root = t.pager.Alloc(root)
	return nil
}

// insert returns a copy of n with key inserted. The copy may exceed one page.
func (t *Tree) insert(n Node, key, val []byte) Node {
	out := Node(make([]byte, 2*PageSize))
	idx := lookupLE(n, key)

	switch n.kind() {
	case nodeLeaf:
		if bytes.Equal(key, n.key(idx)) {
			leafReplace(out, n, idx, key, val)
		} else {
			leafInsert(out, n, idx+1, key, val)
		}
	case nodeInternal:
		kidPtr := n.child(idx)
		kid := t.insert(t.node(kidPtr), key, val)
		count, parts := split3(kid)
		t.pager.Free(kidPtr)
		t.replaceKids(out, n, idx, parts[:count]...)
	default:
		panic("btree: bad node kind")
	}
	return out
}

func leafInsert(out, old Node, idx uint16, key, val []byte) {
	out.setHeader(nodeLeaf, old.nkeys()+1)
	appendRange(out, old, 0, 0, idx)
	appendCell(out, idx, 0, key, val)
	appendRange(out, old, idx+1, idx, old.nkeys()-idx)
}

func leafReplace(out, old Node, idx uint16, key, val []byte) {
	out.setHeader(nodeLeaf, old.nkeys())
	appendRange(out, old, 0, 0, idx)
	appendCell(out, idx, 0, key, val)
	appendRange(out, old, idx+1, idx+1, old.nkeys()-(idx+1))
}

// replaceKids swaps the link at idx for one link per kid.
func (t *Tree) replaceKids(out, old Node, idx uint16, kids ...Node) {
	inc := uint16(len(kids))
	out.setHeader(nodeInternal, old.nkeys()+inc-1)
	appendRange(out, old, 0, 0, idx)
	for i, kid := range kids {
		appendCell(out, idx+uint16(i), t.pager.Alloc(kid), kid.key(0), nil)
	}
	appendRange(out, old, idx+inc, idx+1, old.nkeys()-(idx+1))
}

// split3 cuts an oversized node into at most three page-sized nodes.
func split3(old Node) (uint16, [3]Node) {
	if old.size() <= PageSize {
		return 1, [3]Node{old[:PageSize]}
	}

	left := Node(make([]byte, 2*PageSize))
	right := Node(make([]byte, PageSize))
	split2(left, right, old)
	if left.size() <= PageSize {
		return 2, [3]Node{left[:PageSize], right}
	}

	leftLeft := Node(make([]byte, PageSize))
	middle := Node(make([]byte, PageSize))
	split2(leftLeft, middle, left)
	return 3, [3]Node{leftLeft, middle, right}
}

// split2 moves cells from the tail of old into right until right is as full
// as it can be without overflowing.
func split2(left, right, old Node) {
	nkeys := old.nkeys()
	nright := uint16(0)
	rightSize := func(n uint16) int {
		// header + pointers + offsets + cells of the last n keys
		cells := int(old.size()) - int(old.cellPos(nkeys-n))
		return nodeHeader + 10*int(n) + cells
	}
	for nright < nkeys-1 && rightSize(nright+1) <= PageSize {
		nright++
	}
	if nright == 0 {
		nright = 1
	}
	nleft := nkeys - nright

	left.setHeader(old.kind(), nleft)
	appendRange(left, old, 0, 0, nleft)
	right.setHeader(old.kind(), nright)
	appendRange(right, old, 0, nleft, nright)
}

// Delete removes key and reports whether it was present.
func (t *Tree) Delete(key []byte) (bool, error) {
	if len(key) == 0 {
		return false, ErrEmptyKey
	}
	if len(key) > MaxKeySize {
		return false, ErrKeyTooLarge
	}
	if t.root == 0 {
		return false, nil
	}

	updated := t.delete(t.node(t.root), key)
	if len(updated) == 0 {
		return false, nil
	}
	t.pager.Free(t.root)
	if updated.kind() == nodeInternal && updated.nkeys() == 1 {
		// collapse a root with a single child
		t.root = updated.child(0)
	} else {
		t.root = t.pager.Alloc(updated)
	}
	return true, nil
}

// delete returns a copy of n without key, or nil when key is absent.
func (t *Tree) delete(n Node, key []byte) Node {
	idx := lookupLE(n, key)
	switch n.kind() {
	case nodeLeaf:
		if !bytes.Equal(key, n.key(idx)) {
			return nil
		}
		out := Node(make([]byte, PageSize))
		out.setHeader(nodeLeaf, n.nkeys()-1)
		appendRange(out, n, 0, 0, idx)
		appendRange(out, n, idx, idx+1, n.nkeys()-(idx+1))
		return out
	case nodeInternal:
		return t.deleteFromInternal(n, idx, key)
	default:
		panic("btree: bad node kind")
	}
}

func (t *Tree) deleteFromInternal(n Node, idx uint16, key []byte) Node {
	kidPtr := n.child(idx)
	updated := t.delete(t.node(kidPtr), key)
	if len(updated) == 0 {
		return nil
	}
	t.pager.Free(kidPtr)

	out := Node(make([]byte, PageSize))
	dir, sibling := t.mergeTarget(n, idx, updated)
	switch {
	case dir < 0:
		merged := Node(make([]byte, PageSize))
		merge(merged, sibling, updated)
		t.pager.Free(n.child(idx - 1))
		replace2Kids(out, n, idx-1, t.pager.Alloc(merged), merged.key(0))
	case dir > 0:
		merged := Node(make([]byte, PageSize))
		merge(merged, updated, sibling)
		t.pager.Free(n.child(idx + 1))
		replace2Kids(out, n, idx, t.pager.Alloc(merged), merged.key(0))
	case updated.nkeys() == 0:
		// only child emptied out
		out.setHeader(nodeInternal, 0)
	default:
		t.replaceKids(out, n, idx, updated)
	}
	return out
}

// mergeTarget picks a sibling to absorb a node that fell below a quarter page.
func (t *Tree) mergeTarget(n Node, idx uint16, updated Node) (int, Node) {
	if updated.size() > PageSize/4 {
		return 0, nil
	}
	if idx > 0 {
		sibling := t.node(n.child(idx - 1))
		if int(sibling.size())+int(updated.size())-nodeHeader <= PageSize {
			return -1, sibling
		}
	}
	if idx+1 < n.nkeys() {
		sibling := t.node(n.child(idx + 1))
		if int(sibling.size())+int(updated.size())-nodeHeader <= PageSize {
			return +1, sibling
		}
	}
	return 0, nil
}

func merge(out, left, right Node) {
	out.setHeader(left.kind(), left.nkeys()+right.nkeys())
	appendRange(out, left, 0, 0, left.nkeys())
	appendRange(out, right, left.nkeys(), 0, right.nkeys())
}

func replace2Kids(out, old Node, idx uint16, ptr uint64, key []byte) {
	out.setHeader(nodeInternal, old.nkeys()-1)
	appendRange(out, old, 0, 0, idx)
	appendCell(out, idx, ptr, key, nil)
	appendRange(out, old, idx+1, idx+2, old.nkeys()-(idx+2))
}
