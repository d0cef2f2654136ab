// ABOUTME: Tests for read and write transactions
// ABOUTME: Atomic commit, abort, read-only enforcement and prefix operations

package storage

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestUpdateCommitsAtomically(t *testing.T) {
	db := openTestKV(t)

	err := db.Update(func(tx *Tx) error {
		if err := tx.Set([]byte("key1"), []byte("value1")); err != nil {
			return err
		}
		if err := tx.Set([]byte("key2"), []byte("value2")); err != nil {
			return err
		}
		val, ok := tx.Get([]byte("key1"))
		if !ok || string(val) != "value1" {
			t.Error("Expected key1 to be visible inside the transaction")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	for _, k := range []string{"key1", "key2"} {
		if _, ok, _ := db.Get([]byte(k)); !ok {
			t.Errorf("%s not persisted after commit", k)
		}
	}
}

func TestUpdateAbortsOnError(t *testing.T) {
	db := openTestKV(t)
	if err := db.Set([]byte("existing"), []byte("value")); err != nil {
		t.Fatalf("Failed to set: %v", err)
	}

	boom := errors.New("boom")
	err := db.Update(func(tx *Tx) error {
		if err := tx.Set([]byte("existing"), []byte("modified")); err != nil {
			return err
		}
		if err := tx.Set([]byte("new_key"), []byte("new_value")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}

	val, ok, _ := db.Get([]byte("existing"))
	if !ok || string(val) != "value" {
		t.Errorf("Expected rollback to value, got %q", val)
	}
	if _, ok, _ := db.Get([]byte("new_key")); ok {
		t.Error("new_key should not exist after abort")
	}
}

func TestViewIsReadOnly(t *testing.T) {
	db := openTestKV(t)
	err := db.View(func(tx *Tx) error {
		return tx.Set([]byte("k"), []byte("v"))
	})
	if !errors.Is(err, ErrReadOnly) {
		t.Errorf("Expected ErrReadOnly, got %v", err)
	}
}

func TestCommitTwice(t *testing.T) {
	db := openTestKV(t)
	tx, err := db.Begin(true)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if err := tx.Commit(); !errors.Is(err, ErrTxDone) {
		t.Errorf("Expected ErrTxDone, got %v", err)
	}
}

func TestPartitionPrefixScanAndDelete(t *testing.T) {
	db := openTestKV(t)
	docs := Partition(1)
	pages := Partition(2)

	err := db.Update(func(tx *Tx) error {
		for i := 1; i <= 5; i++ {
			if err := tx.Set(pages.StringKey(fmt.Sprintf("a_page_%04d", i)), []byte("x")); err != nil {
				return err
			}
			if err := tx.Set(pages.StringKey(fmt.Sprintf("b_page_%04d", i)), []byte("y")); err != nil {
				return err
			}
		}
		return tx.Set(docs.StringKey("a"), []byte("{}"))
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	var seen []string
	db.View(func(tx *Tx) error {
		tx.ScanPrefix(pages.StringKey("a_page_"), func(key, _ []byte) bool {
			local, err := pages.Local(key)
			if err != nil {
				t.Errorf("Local failed: %v", err)
			}
			seen = append(seen, string(local))
			return true
		})
		return nil
	})
	if len(seen) != 5 || seen[0] != "a_page_0001" {
		t.Fatalf("Unexpected scan result %v", seen)
	}

	var removed int
	err = db.Update(func(tx *Tx) error {
		var err error
		removed, err = tx.DeletePrefix(pages.StringKey("a_page_"))
		return err
	})
	if err != nil || removed != 5 {
		t.Fatalf("Expected 5 keys removed, got %d (%v)", removed, err)
	}
	if _, ok, _ := db.Get(pages.StringKey("b_page_0003")); !ok {
		t.Error("DeletePrefix removed keys of another document")
	}
	if _, ok, _ := db.Get(docs.StringKey("a")); !ok {
		t.Error("DeletePrefix crossed partitions")
	}
}

func TestConcurrentReaders(t *testing.T) {
	db := openTestKV(t)
	for i := 0; i < 50; i++ {
		if err := db.Set([]byte(fmt.Sprintf("k%02d", i)), []byte("v")); err != nil {
			t.Fatalf("Failed to set: %v", err)
		}
	}

	var wg sync.WaitGroup
	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			db.View(func(tx *Tx) error {
				count := 0
				tx.ScanPrefix([]byte("k"), func(_, _ []byte) bool {
					count++
					return true
				})
				if count != 50 {
					t.Errorf("Expected 50 keys, got %d", count)
				}
				return nil
			})
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := db.Set([]byte("other"), []byte("v")); err != nil {
			t.Errorf("Concurrent write failed: %v", err)
		}
	}()
	wg.Wait()
}

func TestUint64KeysSortNumerically(t *testing.T) {
	p := Partition(7)
	a := p.Uint64Key(9)
	b := p.Uint64Key(10)
	if string(a) >= string(b) {
		t.Error("Expected 9 to sort before 10")
	}
	local, err := p.Local(b)
	if err != nil {
		t.Fatalf("Local failed: %v", err)
	}
	n, err := DecodeUint64(local)
	if err != nil || n != 10 {
		t.Errorf("Expected 10, got %d (%v)", n, err)
	}
	if _, err := Partition(8).Local(b); err == nil {
		t.Error("Expected error for key of another partition")
	}
}
