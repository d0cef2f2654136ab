// ABOUTME: Single-file KV store persisting a copy-on-write B+Tree
// ABOUTME: Pages are mmap'd for reads, written with pwrite, and committed by a meta page flip

package storage

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/nainya/pagefinder/pkg/btree"
)

const (
	dbSignature  = "PageFinderKV\x00\x00\x00\x01" // 16 bytes
	pageSize     = btree.PageSize
	metaSize     = 72
	initialMmap  = 64 << 20
	freeMetaSize = 32
)

// KV is a persistent ordered key-value store. Any number of read
// transactions may run together; write transactions are exclusive.
type KV struct {
	Path string

	mu   sync.RWMutex
	fd   int
	tree *btree.Tree
	free FreeList

	mmap struct {
		total  int
		chunks [][]byte
	}

	page struct {
		flushed uint64            // pages already on disk, including the meta page
		temp    [][]byte          // appended pages not yet written
		updates map[uint64][]byte // recycled pages not yet written
	}

	// failed is set when a commit errored after touching the file; the next
	// commit rewrites the last good meta page first.
	failed bool
	closed bool
}

// Open opens or creates the database file at Path.
func (db *KV) Open() error {
	if err := os.MkdirAll(filepath.Dir(db.Path), 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	fd, err := createFileSync(db.Path)
	if err != nil {
		return err
	}
	db.fd = fd

	var stat syscall.Stat_t
	if err := syscall.Fstat(db.fd, &stat); err != nil {
		_ = syscall.Close(fd)
		return fmt.Errorf("fstat: %w", err)
	}

	db.tree = btree.New(kvPager{db}, 0)
	db.page.updates = make(map[uint64][]byte)
	db.free.pages = kvPager{db}

	if stat.Size == 0 {
		// page 0 is reserved for the meta page
		db.page.flushed = 1
	} else {
		size := initialMmap
		if int(stat.Size) > size {
			size = int(stat.Size)
		}
		chunk, err := syscall.Mmap(db.fd, 0, size, syscall.PROT_READ, syscall.MAP_SHARED)
		if err != nil {
			_ = syscall.Close(fd)
			return fmt.Errorf("mmap: %w", err)
		}
		db.mmap.total = size
		db.mmap.chunks = append(db.mmap.chunks, chunk)

		if err := db.readMeta(); err != nil {
			_ = db.unmap()
			_ = syscall.Close(fd)
			return err
		}
	}
	db.free.limit = db.free.tailSeq
	return nil
}

// Close releases the mapping and the file descriptor.
func (db *KV) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true
	if err := db.unmap(); err != nil {
		return err
	}
	return syscall.Close(db.fd)
}

func (db *KV) unmap() error {
	for _, chunk := range db.mmap.chunks {
		if err := syscall.Munmap(chunk); err != nil {
			return fmt.Errorf("munmap: %w", err)
		}
	}
	db.mmap.chunks = nil
	db.mmap.total = 0
	return nil
}

// Get returns a copy of the value stored under key.
func (db *KV) Get(key []byte) ([]byte, bool, error) {
	var (
		val []byte
		ok  bool
	)
	err := db.View(func(tx *Tx) error {
		val, ok = tx.Get(key)
		return nil
	})
	return val, ok, err
}

// Set stores a single key in its own transaction.
func (db *KV) Set(key, val []byte) error {
	return db.Update(func(tx *Tx) error {
		return tx.Set(key, val)
	})
}

// Del removes a single key in its own transaction.
func (db *KV) Del(key []byte) (bool, error) {
	var deleted bool
	err := db.Update(func(tx *Tx) error {
		var err error
		deleted, err = tx.Del(key)
		return err
	})
	return deleted, err
}

// Stats reports file level counters.
type Stats struct {
	Pages     uint64
	FreePages int
}

// Stats returns the current page counters.
func (db *KV) Stats() Stats {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return Stats{Pages: db.page.flushed, FreePages: db.free.Total()}
}

// kvPager exposes page management to the tree and the free list.
type kvPager struct {
	db *KV
}

func (p kvPager) Page(ptr uint64) []byte {
	return p.db.pageRead(ptr)
}

func (p kvPager) Alloc(page []byte) uint64 {
	return p.db.pageAlloc(page)
}

func (p kvPager) Free(ptr uint64) {
	p.db.pageFree(ptr)
}

func (p kvPager) append(page []byte) uint64 {
	return p.db.pageAppend(page)
}

func (p kvPager) write(ptr uint64, page []byte) {
	p.db.pageWrite(ptr, page)
}

func (db *KV) pageRead(ptr uint64) []byte {
	if page, ok := db.page.updates[ptr]; ok {
		return page
	}
	if ptr >= db.page.flushed {
		idx := ptr - db.page.flushed
		if idx < uint64(len(db.page.temp)) {
			return db.page.temp[idx]
		}
	}
	start := uint64(0)
	for _, chunk := range db.mmap.chunks {
		end := start + uint64(len(chunk))/pageSize
		if ptr < end {
			offset := pageSize * (ptr - start)
			return chunk[offset : offset+pageSize]
		}
		start = end
	}
	panic(fmt.Sprintf("storage: bad page pointer %d (flushed %d, temp %d)", ptr, db.page.flushed, len(db.page.temp)))
}

// pageAlloc prefers a recycled page over growing the file.
func (db *KV) pageAlloc(page []byte) uint64 {
	if len(page) != pageSize {
		panic("storage: page size mismatch")
	}
	if ptr := db.free.PopHead(); ptr != 0 {
		db.page.updates[ptr] = page
		return ptr
	}
	return db.pageAppend(page)
}

func (db *KV) pageAppend(page []byte) uint64 {
	if len(page) != pageSize {
		panic("storage: page size mismatch")
	}
	ptr := db.page.flushed + uint64(len(db.page.temp))
	db.page.temp = append(db.page.temp, page)
	return ptr
}

func (db *KV) pageWrite(ptr uint64, page []byte) {
	if len(page) != pageSize {
		panic("storage: page size mismatch")
	}
	if ptr >= db.page.flushed {
		db.page.temp[ptr-db.page.flushed] = page
		return
	}
	db.page.updates[ptr] = page
}

// pageFree recycles flushed pages only; pages appended in the current
// transaction simply disappear when it ends.
func (db *KV) pageFree(ptr uint64) {
	if ptr < db.page.flushed {
		db.free.PushTail(ptr)
	}
}

func (db *KV) saveMeta() []byte {
	data := make([]byte, metaSize)
	copy(data[:16], dbSignature)
	binary.LittleEndian.PutUint64(data[16:], db.tree.Root())
	binary.LittleEndian.PutUint64(data[24:], db.page.flushed)
	copy(data[32:], db.free.marshal())
	return data
}

func (db *KV) loadMeta(data []byte) {
	db.tree.SetRoot(binary.LittleEndian.Uint64(data[16:]))
	db.page.flushed = binary.LittleEndian.Uint64(data[24:])
	db.free.unmarshal(data[32 : 32+freeMetaSize])
}

func (db *KV) readMeta() error {
	data := db.mmap.chunks[0][:metaSize]
	if sig := string(data[:16]); sig != dbSignature {
		return fmt.Errorf("%w: %q", ErrBadSignature, sig)
	}
	db.loadMeta(data)
	return nil
}

// commit makes the pending pages durable, then flips the meta page.
func (db *KV) commit(meta []byte) error {
	if db.failed {
		if err := db.writeMeta(meta); err != nil {
			return err
		}
		if err := syscall.Fsync(db.fd); err != nil {
			return fmt.Errorf("fsync: %w", err)
		}
		db.failed = false
	}

	if err := db.updateFile(); err != nil {
		db.rollback(meta)
		db.failed = true
		return err
	}
	db.free.limit = db.free.tailSeq
	return nil
}

func (db *KV) rollback(meta []byte) {
	db.loadMeta(meta)
	db.page.temp = db.page.temp[:0]
	db.page.updates = make(map[uint64][]byte)
	db.free.limit = db.free.tailSeq
}

func (db *KV) updateFile() error {
	if err := db.writePages(); err != nil {
		return err
	}
	if err := syscall.Fsync(db.fd); err != nil {
		return fmt.Errorf("fsync: %w", err)
	}
	if err := db.writeMeta(db.saveMeta()); err != nil {
		return err
	}
	if err := syscall.Fsync(db.fd); err != nil {
		return fmt.Errorf("fsync: %w", err)
	}
	return nil
}

func (db *KV) writePages() error {
	for ptr, page := range db.page.updates {
		if _, err := syscall.Pwrite(db.fd, page, int64(ptr*pageSize)); err != nil {
			return fmt.Errorf("write page %d: %w", ptr, err)
		}
	}
	db.page.updates = make(map[uint64][]byte)

	if len(db.page.temp) == 0 {
		return nil
	}
	size := int(db.page.flushed+uint64(len(db.page.temp))) * pageSize
	if err := db.extendMmap(size); err != nil {
		return err
	}
	offset := int64(db.page.flushed * pageSize)
	for _, page := range db.page.temp {
		if _, err := syscall.Pwrite(db.fd, page, offset); err != nil {
			return fmt.Errorf("append page: %w", err)
		}
		offset += pageSize
	}
	db.page.flushed += uint64(len(db.page.temp))
	db.page.temp = db.page.temp[:0]
	return nil
}

func (db *KV) writeMeta(data []byte) error {
	if _, err := syscall.Pwrite(db.fd, data, 0); err != nil {
		return fmt.Errorf("write meta page: %w", err)
	}
	return nil
}

func (db *KV) extendMmap(size int) error {
	if size <= db.mmap.total {
		return nil
	}
	alloc := max(db.mmap.total, initialMmap)
	for db.mmap.total+alloc < size {
		alloc *= 2
	}
	chunk, err := syscall.Mmap(db.fd, int64(db.mmap.total), alloc, syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("mmap: %w", err)
	}
	db.mmap.total += alloc
	db.mmap.chunks = append(db.mmap.chunks, chunk)
	return nil
}

// createFileSync opens the file and fsyncs its directory so a newly created
// file survives a crash.
func createFileSync(file string) (int, error) {
	fd, err := syscall.Open(file, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return -1, fmt.Errorf("open file: %w", err)
	}
	dirfd, err := syscall.Open(filepath.Dir(file), os.O_RDONLY, 0)
	if err != nil {
		_ = syscall.Close(fd)
		return -1, fmt.Errorf("open directory: %w", err)
	}
	defer syscall.Close(dirfd)
	if err := syscall.Fsync(dirfd); err != nil {
		_ = syscall.Close(fd)
		return -1, fmt.Errorf("fsync directory: %w", err)
	}
	return fd, nil
}
