// ABOUTME: Tests for the append-only journal
// ABOUTME: Replay, state folding, torn-tail recovery and compaction

package journal

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func openTestJournal(t *testing.T, path string) *Journal {
	t.Helper()
	j := &Journal{Path: path}
	if err := j.Open(); err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}
	return j
}

func TestJournalReplayOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.journal")
	j := openTestJournal(t, path)
	defer j.Close()

	for _, k := range []string{"a", "b", "c"} {
		if _, err := j.Put([]byte(k), []byte("v-"+k)); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	var keys []string
	var seqs []uint64
	err := j.Replay(func(rec *Record) error {
		keys = append(keys, string(rec.Key))
		seqs = append(seqs, rec.Seq)
		return nil
	})
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if len(keys) != 3 || keys[0] != "a" || keys[2] != "c" {
		t.Errorf("Unexpected replay order %v", keys)
	}
	if seqs[0] != 1 || seqs[2] != 3 {
		t.Errorf("Expected sequences 1..3, got %v", seqs)
	}

	// appends after a replay still land at the end
	if _, err := j.Put([]byte("d"), nil); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	state, err := j.State()
	if err != nil {
		t.Fatalf("State failed: %v", err)
	}
	if len(state) != 4 {
		t.Errorf("Expected 4 keys, got %d", len(state))
	}
}

func TestJournalStateFoldsDeletes(t *testing.T) {
	j := openTestJournal(t, filepath.Join(t.TempDir(), "state.journal"))
	defer j.Close()

	j.Put([]byte("file1"), []byte("completed"))
	j.Put([]byte("file2"), []byte("failed"))
	j.Put([]byte("file2"), []byte("completed"))
	j.Delete([]byte("file1"))

	state, err := j.State()
	if err != nil {
		t.Fatalf("State failed: %v", err)
	}
	if _, ok := state["file1"]; ok {
		t.Error("file1 should have been deleted")
	}
	if string(state["file2"]) != "completed" {
		t.Errorf("Expected file2=completed, got %q", state["file2"])
	}
}

func TestJournalReopenContinuesSequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.journal")
	j := openTestJournal(t, path)
	j.Put([]byte("a"), []byte("1"))
	j.Put([]byte("b"), []byte("2"))
	j.Close()

	j = openTestJournal(t, path)
	defer j.Close()
	seq, err := j.Put([]byte("c"), []byte("3"))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if seq != 3 {
		t.Errorf("Expected sequence 3 after reopen, got %d", seq)
	}
}

func TestJournalTornTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.journal")
	j := openTestJournal(t, path)
	j.Put([]byte("good"), []byte("value"))
	j.Close()

	good, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}

	// simulate a crash halfway through a record
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("Failed to open journal file: %v", err)
	}
	f.Write([]byte{1, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0})
	f.Close()

	j = openTestJournal(t, path)
	defer j.Close()
	if j.Size() != good.Size() {
		t.Errorf("Expected torn tail to be cut to %d bytes, got %d", good.Size(), j.Size())
	}
	state, err := j.State()
	if err != nil {
		t.Fatalf("State failed: %v", err)
	}
	if string(state["good"]) != "value" || len(state) != 1 {
		t.Errorf("Unexpected state after recovery: %v", state)
	}
}

func TestJournalCorruptRecord(t *testing.T) {
	rec := Record{Seq: 1, Op: OpPut, Key: []byte("k"), Value: []byte("v")}
	data := rec.encode()
	data[headerSize] ^= 0xFF
	if _, err := decodeRecord(data); !errors.Is(err, ErrCorrupted) {
		t.Errorf("Expected ErrCorrupted, got %v", err)
	}
	if _, err := decodeRecord(data[:10]); !errors.Is(err, ErrTruncated) {
		t.Errorf("Expected ErrTruncated, got %v", err)
	}
}

func TestJournalCompact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.journal")
	j := openTestJournal(t, path)
	defer j.Close()

	for i := 0; i < 100; i++ {
		j.Put([]byte("hot"), []byte{byte(i)})
	}
	j.Put([]byte("cold"), []byte("x"))
	before := j.Size()

	if err := j.Compact(); err != nil {
		t.Fatalf("Compact failed: %v", err)
	}
	if j.Size() >= before {
		t.Errorf("Expected compaction to shrink the journal, %d -> %d", before, j.Size())
	}

	if _, err := j.Put([]byte("after"), []byte("y")); err != nil {
		t.Fatalf("Put after compaction failed: %v", err)
	}
	state, err := j.State()
	if err != nil {
		t.Fatalf("State failed: %v", err)
	}
	if len(state) != 3 || state["hot"][0] != 99 {
		t.Errorf("Unexpected state after compaction: %v", state)
	}
}

func TestJournalClosed(t *testing.T) {
	j := openTestJournal(t, filepath.Join(t.TempDir(), "state.journal"))
	j.Close()
	if _, err := j.Put([]byte("k"), nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}
