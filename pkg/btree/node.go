// ABOUTME: On-page layout of B+Tree nodes
// ABOUTME: Header, child pointers, offset table and packed key/value cells

package btree

import (
	"bytes"
	"encoding/binary"
	"sort"
)

const (
	nodeInternal = 1 // internal node, cells carry child pointers only
	nodeLeaf     = 2 // leaf node, cells carry values
)

const (
	nodeHeader = 4

	// PageSize is the fixed size of every tree page.
	PageSize = 4096
	// MaxKeySize is the largest key a single cell can hold.
	MaxKeySize = 1000
	// MaxValSize is the largest value a single cell can hold.
	MaxValSize = 3000
)

// Node is a tree page interpreted in place.
//
// Layout:
//
//	| kind | nkeys | pointers  | offsets   | cells |
//	|  2B  |  2B   | nkeys*8B  | nkeys*2B  | ...   |
//
// Each cell is | klen 2B | vlen 2B | key | val |.
type Node []byte

func (n Node) kind() uint16 {
	return binary.LittleEndian.Uint16(n[0:2])
}

func (n Node) nkeys() uint16 {
	return binary.LittleEndian.Uint16(n[2:4])
}

func (n Node) setHeader(kind, nkeys uint16) {
	binary.LittleEndian.PutUint16(n[0:2], kind)
	binary.LittleEndian.PutUint16(n[2:4], nkeys)
}

func (n Node) child(idx uint16) uint64 {
	if idx >= n.nkeys() {
		panic("btree: child index out of range")
	}
	return binary.LittleEndian.Uint64(n[nodeHeader+8*idx:])
}

func (n Node) setChild(idx uint16, ptr uint64) {
	if idx >= n.nkeys() {
		panic("btree: child index out of range")
	}
	binary.LittleEndian.PutUint64(n[nodeHeader+8*idx:], ptr)
}

func (n Node) offsetAt(idx uint16) uint16 {
	if idx < 1 || idx > n.nkeys() {
		panic("btree: offset index out of range")
	}
	return nodeHeader + 8*n.nkeys() + 2*(idx-1)
}

// offset is the byte distance of cell idx from the first cell. Cell 0 is
// always at distance 0 so it is not stored.
func (n Node) offset(idx uint16) uint16 {
	if idx == 0 {
		return 0
	}
	return binary.LittleEndian.Uint16(n[n.offsetAt(idx):])
}

func (n Node) setOffset(idx, off uint16) {
	binary.LittleEndian.PutUint16(n[n.offsetAt(idx):], off)
}

func (n Node) cellPos(idx uint16) uint16 {
	if idx > n.nkeys() {
		panic("btree: cell index out of range")
	}
	return nodeHeader + 10*n.nkeys() + n.offset(idx)
}

func (n Node) key(idx uint16) []byte {
	if idx >= n.nkeys() {
		panic("btree: key index out of range")
	}
	pos := n.cellPos(idx)
	klen := binary.LittleEndian.Uint16(n[pos:])
	return n[pos+4:][:klen]
}

func (n Node) val(idx uint16) []byte {
	if idx >= n.nkeys() {
		panic("btree: value index out of range")
	}
	pos := n.cellPos(idx)
	klen := binary.LittleEndian.Uint16(n[pos:])
	vlen := binary.LittleEndian.Uint16(n[pos+2:])
	return n[pos+4+klen:][:vlen]
}

// size is the number of bytes the node occupies.
func (n Node) size() uint16 {
	return n.cellPos(n.nkeys())
}

// lookupLE returns the index of the last key <= key. The first key of every
// node is either the empty sentinel or a copy of the parent's separator, so
// index 0 always qualifies.
func lookupLE(n Node, key []byte) uint16 {
	count := int(n.nkeys())
	// first index in [1, count) whose key is greater than the search key
	i := sort.Search(count-1, func(i int) bool {
		return bytes.Compare(n.key(uint16(i+1)), key) > 0
	})
	return uint16(i)
}

// appendRange copies cells [src, src+count) of old into new starting at dst.
func appendRange(new, old Node, dst, src, count uint16) {
	if src+count > old.nkeys() || dst+count > new.nkeys() {
		panic("btree: append range out of bounds")
	}
	if count == 0 {
		return
	}
	if old.kind() == nodeInternal {
		for i := uint16(0); i < count; i++ {
			new.setChild(dst+i, old.child(src+i))
		}
	}
	dstBegin := new.offset(dst)
	srcBegin := old.offset(src)
	for i := uint16(1); i <= count; i++ {
		new.setOffset(dst+i, dstBegin+old.offset(src+i)-srcBegin)
	}
	begin := old.cellPos(src)
	end := old.cellPos(src + count)
	copy(new[new.cellPos(dst):], old[begin:end])
}

// appendCell writes a single cell at idx.
func appendCell(new Node, idx uint16, ptr uint64, key, val []byte) {
	new.setChild(idx, ptr)
	pos := new.cellPos(idx)
	binary.LittleEndian.PutUint16(new[pos:], uint16(len(key)))
	binary.LittleEndian.PutUint16(new[pos+2:], uint16(len(val)))
	copy(new[pos+4:], key)
	copy(new[pos+4+uint16(len(key)):], val)
	new.setOffset(idx+1, new.offset(idx)+4+uint16(len(key)+len(val)))
}

func init() {
	largest := nodeHeader + 8 + 2 + 4 + MaxKeySize + MaxValSize
	if largest > PageSize {
		panic("btree: a single cell must fit in one page")
	}
}
