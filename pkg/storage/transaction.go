// ABOUTME: Read and write transactions over the KV store
// ABOUTME: Writes are invisible until Commit; Abort restores the last committed root

package storage

import (
	"fmt"
)

// Tx is a transaction. Read transactions share the store; a write
// transaction holds it exclusively from Begin until Commit or Abort.
type Tx struct {
	db       *KV
	writable bool
	meta     []byte
	done     bool
}

// Begin starts a transaction.
func (db *KV) Begin(writable bool) (*Tx, error) {
	if writable {
		db.mu.Lock()
	} else {
		db.mu.RLock()
	}
	if db.closed {
		db.unlock(writable)
		return nil, ErrClosed
	}
	tx := &Tx{db: db, writable: writable}
	if writable {
		tx.meta = db.saveMeta()
	}
	return tx, nil
}

func (db *KV) unlock(writable bool) {
	if writable {
		db.mu.Unlock()
	} else {
		db.mu.RUnlock()
	}
}

// Commit makes the writes of the transaction durable. On a read
// transaction it only releases the lock.
func (tx *Tx) Commit() error {
	if tx.done {
		return ErrTxDone
	}
	tx.done = true
	defer tx.db.unlock(tx.writable)
	if !tx.writable {
		return nil
	}
	return tx.db.commit(tx.meta)
}

// Abort discards the writes of the transaction.
func (tx *Tx) Abort() {
	if tx.done {
		return
	}
	tx.done = true
	defer tx.db.unlock(tx.writable)
	if tx.writable {
		tx.db.rollback(tx.meta)
	}
}

// View runs fn in a read transaction.
func (db *KV) View(fn func(tx *Tx) error) error {
	tx, err := db.Begin(false)
	if err != nil {
		return err
	}
	defer tx.Abort()
	return fn(tx)
}

// Update runs fn in a write transaction, committing when fn returns nil and
// aborting otherwise.
func (db *KV) Update(fn func(tx *Tx) error) error {
	tx, err := db.Begin(true)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Abort()
		return err
	}
	return tx.Commit()
}

// Get returns a copy of the value stored under key.
func (tx *Tx) Get(key []byte) ([]byte, bool) {
	val, ok := tx.db.tree.Get(key)
	if !ok {
		return nil, false
	}
	return append([]byte(nil), val...), true
}

// Set stores key.
func (tx *Tx) Set(key, val []byte) error {
	if !tx.writable {
		return ErrReadOnly
	}
	if err := tx.db.tree.Insert(key, val); err != nil {
		return fmt.Errorf("set %q: %w", truncateKey(key), err)
	}
	return nil
}

// Del removes key and reports whether it was present.
func (tx *Tx) Del(key []byte) (bool, error) {
	if !tx.writable {
		return false, ErrReadOnly
	}
	return tx.db.tree.Delete(key)
}

// Scan visits keys >= start in order until fn returns false. The slices
// passed to fn are only valid during the call.
func (tx *Tx) Scan(start []byte, fn func(key, val []byte) bool) {
	tx.db.tree.Scan(start, fn)
}

// ScanPrefix visits every key beginning with prefix.
func (tx *Tx) ScanPrefix(prefix []byte, fn func(key, val []byte) bool) {
	tx.db.tree.ScanPrefix(prefix, fn)
}

// DeletePrefix removes every key beginning with prefix and returns how many
// were removed.
func (tx *Tx) DeletePrefix(prefix []byte) (int, error) {
	if !tx.writable {
		return 0, ErrReadOnly
	}
	var keys [][]byte
	tx.ScanPrefix(prefix, func(key, _ []byte) bool {
		keys = append(keys, append([]byte(nil), key...))
		return true
	})
	for _, key := range keys {
		if _, err := tx.db.tree.Delete(key); err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}

func truncateKey(key []byte) []byte {
	if len(key) > 64 {
		return key[:64]
	}
	return key
}
