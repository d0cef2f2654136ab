// ABOUTME: Free list recycling pages released by earlier transactions
// ABOUTME: Unrolled linked list of page pointers stored in pages of its own

package storage

import (
	"encoding/binary"
)

const (
	freeNodeHeader = 8
	freeNodeCap    = (pageSize - freeNodeHeader) / 8
)

// freeNode is one page of the list: | next 8B | pointers... |
type freeNode []byte

func (n freeNode) next() uint64 {
	return binary.LittleEndian.Uint64(n[0:8])
}

func (n freeNode) setNext(next uint64) {
	binary.LittleEndian.PutUint64(n[0:8], next)
}

func (n freeNode) ptr(idx int) uint64 {
	return binary.LittleEndian.Uint64(n[freeNodeHeader+idx*8:])
}

func (n freeNode) setPtr(idx int, ptr uint64) {
	binary.LittleEndian.PutUint64(n[freeNodeHeader+idx*8:], ptr)
}

// FreeList is a FIFO of reusable page pointers. Items are addressed by a
// monotonically increasing sequence number; item s lives in slot s%cap of the
// (s/cap)-th node after the head.
type FreeList struct {
	pages kvPager

	headPage uint64
	headSeq  uint64
	tailPage uint64
	tailSeq  uint64

	// limit is the tail sequence at the start of the running transaction.
	// Pages freed after it are still referenced by the last committed tree
	// and must not be handed out until the transaction commits.
	limit uint64
}

// Total returns the number of pointers currently queued.
func (fl *FreeList) Total() int {
	if fl.headSeq >= fl.tailSeq {
		return 0
	}
	return int(fl.tailSeq - fl.headSeq)
}

// PopHead returns a reusable page pointer, or 0 when none is available.
func (fl *FreeList) PopHead() uint64 {
	if fl.headSeq >= fl.limit || fl.headSeq >= fl.tailSeq || fl.headPage == 0 {
		return 0
	}
	node := freeNode(fl.pages.Page(fl.headPage))
	ptr := node.ptr(int(fl.headSeq % freeNodeCap))
	fl.headSeq++

	if fl.headSeq%freeNodeCap == 0 {
		// node drained; its successor was linked when the tail filled it
		exhausted := fl.headPage
		fl.headPage = node.next()
		fl.PushTail(exhausted)
	}
	return ptr
}

// PushTail queues ptr for reuse by a later transaction.
func (fl *FreeList) PushTail(ptr uint64) {
	if fl.tailPage == 0 {
		fl.tailPage = fl.pages.append(make([]byte, pageSize))
		fl.headPage = fl.tailPage
	}

	page := make([]byte, pageSize)
	copy(page, fl.pages.Page(fl.tailPage))
	freeNode(page).setPtr(int(fl.tailSeq%freeNodeCap), ptr)
	fl.tailSeq++

	if fl.tailSeq%freeNodeCap == 0 {
		// link a fresh tail as soon as this one is full
		next := fl.pages.append(make([]byte, pageSize))
		freeNode(page).setNext(next)
		fl.pages.write(fl.tailPage, page)
		fl.tailPage = next
		return
	}
	fl.pages.write(fl.tailPage, page)
}

func (fl *FreeList) marshal() []byte {
	data := make([]byte, freeMetaSize)
	binary.LittleEndian.PutUint64(data[0:], fl.headPage)
	binary.LittleEndian.PutUint64(data[8:], fl.headSeq)
	binary.LittleEndian.PutUint64(data[16:], fl.tailPage)
	binary.LittleEndian.PutUint64(data[24:], fl.tailSeq)
	return data
}

func (fl *FreeList) unmarshal(data []byte) {
	fl.headPage = binary.LittleEndian.Uint64(data[0:])
	fl.headSeq = binary.LittleEndian.Uint64(data[8:])
	fl.tailPage = binary.LittleEndian.Uint64(data[16:])
	fl.tailSeq = binary.LittleEndian.Uint64(data[24:])
}
