// ABOUTME: Append-only journal with torn-tail recovery and compaction
// ABOUTME: Replay folds PUT/DELETE records into the latest key state

package journal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// maxRecordSize bounds a record's key and value so a damaged length field
// cannot trigger a huge allocation.
const maxRecordSize = 64 << 20

// Journal is a single-file record log. Records are appended under a mutex;
// a torn final record left by a crash is cut off on Open.
type Journal struct {
	// Path is the journal file.
	Path string

	// SyncWrites fsyncs after every append.
	SyncWrites bool

	mu     sync.Mutex
	f      *os.File
	seq    uint64
	size   int64
	closed bool
}

// Open opens or creates the journal file.
func (j *Journal) Open() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(j.Path), 0o755); err != nil {
		return fmt.Errorf("create journal directory: %w", err)
	}
	f, err := os.OpenFile(j.Path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}

	var lastSeq uint64
	valid, err := scan(f, func(rec *Record) error {
		lastSeq = rec.Seq
		return nil
	})
	if err != nil {
		f.Close()
		return err
	}
	if err := f.Truncate(valid); err != nil {
		f.Close()
		return fmt.Errorf("truncate torn tail: %w", err)
	}
	if _, err := f.Seek(valid, io.SeekStart); err != nil {
		f.Close()
		return fmt.Errorf("seek journal: %w", err)
	}

	j.f = f
	j.seq = lastSeq
	j.size = valid
	j.closed = false
	return nil
}

// scan reads records from the start of f and returns the offset just past
// the last intact one. Damage stops the scan rather than failing it.
func scan(f *os.File, fn func(*Record) error) (int64, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("seek journal: %w", err)
	}
	r := bufio.NewReader(f)
	var offset int64
	header := make([]byte, headerSize)
	for {
		if _, err := io.ReadFull(r, header); err != nil {
			return offset, nil
		}
		body := bodyLen(header)
		if body > maxRecordSize {
			return offset, nil
		}
		data := make([]byte, headerSize+body)
		copy(data, header)
		if _, err := io.ReadFull(r, data[headerSize:]); err != nil {
			return offset, nil
		}
		rec, err := decodeRecord(data)
		if err != nil {
			return offset, nil
		}
		if err := fn(rec); err != nil {
			return offset, err
		}
		offset += int64(len(data))
	}
}

// Put appends a record setting key to value.
func (j *Journal) Put(key, value []byte) (uint64, error) {
	return j.append(OpPut, key, value)
}

// Delete appends a record removing key.
func (j *Journal) Delete(key []byte) (uint64, error) {
	return j.append(OpDelete, key, nil)
}

func (j *Journal) append(op Op, key, value []byte) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed || j.f == nil {
		return 0, ErrClosed
	}

	j.seq++
	rec := Record{Seq: j.seq, Op: op, Key: key, Value: value, Time: time.Now()}
	data := rec.encode()
	n, err := j.f.Write(data)
	j.size += int64(n)
	if err != nil {
		return 0, fmt.Errorf("append journal record: %w", err)
	}
	if j.SyncWrites {
		if err := j.f.Sync(); err != nil {
			return 0, fmt.Errorf("sync journal: %w", err)
		}
	}
	return rec.Seq, nil
}

// Replay calls fn for every intact record in order.
func (j *Journal) Replay(fn func(*Record) error) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed || j.f == nil {
		return ErrClosed
	}
	defer j.f.Seek(0, io.SeekEnd)
	_, err := scan(j.f, fn)
	return err
}

// State folds the journal into the current value of every live key.
func (j *Journal) State() (map[string][]byte, error) {
	state := make(map[string][]byte)
	err := j.Replay(func(rec *Record) error {
		switch rec.Op {
		case OpPut:
			state[string(rec.Key)] = rec.Value
		case OpDelete:
			delete(state, string(rec.Key))
		}
		return nil
	})
	return state, err
}

// Compact rewrites the journal so it holds exactly one PUT per live key.
// The replacement is written beside the journal and renamed over it.
func (j *Journal) Compact() error {
	state, err := j.State()
	if err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed || j.f == nil {
		return ErrClosed
	}

	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tmpPath := j.Path + ".compact"
	tmp, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create compacted journal: %w", err)
	}
	w := bufio.NewWriter(tmp)
	var size int64
	now := time.Now()
	for i, k := range keys {
		rec := Record{Seq: uint64(i + 1), Op: OpPut, Key: []byte(k), Value: state[k], Time: now}
		n, err := w.Write(rec.encode())
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("write compacted journal: %w", err)
		}
		size += int64(n)
	}
	if err := errors.Join(w.Flush(), tmp.Sync()); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("flush compacted journal: %w", err)
	}
	if err := os.Rename(tmpPath, j.Path); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("replace journal: %w", err)
	}

	j.f.Close()
	if _, err := tmp.Seek(0, io.SeekEnd); err != nil {
		tmp.Close()
		j.closed = true
		return fmt.Errorf("seek journal: %w", err)
	}
	j.f = tmp
	j.seq = uint64(len(keys))
	j.size = size
	return nil
}

// Size returns the journal length in bytes.
func (j *Journal) Size() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.size
}

// Sync flushes the journal to stable storage.
func (j *Journal) Sync() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed || j.f == nil {
		return ErrClosed
	}
	return j.f.Sync()
}

// Close syncs and closes the journal.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed || j.f == nil {
		return nil
	}
	j.closed = true
	return errors.Join(j.f.Sync(), j.f.Close())
}
