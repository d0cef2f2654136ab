// ABOUTME: Persistent cache of file content fingerprints
// ABOUTME: Entries are keyed by location and invalidated by size or modification time

package ingest

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/minio/highwayhash"
)

var fingerprintKey = []byte("0123456789ABCDEF0123456789ABCDEF")

// Fingerprint returns the hex 128-bit HighwayHash of data.
func Fingerprint(data []byte) (string, error) {
	h, err := highwayhash.New128(fingerprintKey)
	if err != nil {
		return "", err
	}
	if _, err := h.Write(data); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

type cacheEntry struct {
	Hash    string    `json:"hash"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// HashCache remembers the fingerprint of every file seen, so unchanged
// files need not be read again to be recognized. It is safe for
// concurrent use.
type HashCache struct {
	path string

	mu      sync.Mutex
	entries map[string]cacheEntry
	dirty   bool
}

// NewHashCache returns an empty cache persisted at path.
func NewHashCache(path string) *HashCache {
	return &HashCache{path: path, entries: make(map[string]cacheEntry)}
}

// Load reads the cache file. A missing or unreadable file leaves the cache
// empty; only I/O errors other than absence are returned.
func (c *HashCache) Load() error {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read hash cache: %w", err)
	}

	entries := make(map[string]cacheEntry)
	if err := json.Unmarshal(data, &entries); err != nil {
		entries = make(map[string]cacheEntry)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = entries
	c.dirty = false
	return nil
}

// Lookup returns the cached fingerprint of key when size and modTime
// still match.
func (c *HashCache) Lookup(key string, size int64, modTime time.Time) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || e.Size != size || !e.ModTime.Equal(modTime) {
		return "", false
	}
	return e.Hash, true
}

// Put records the fingerprint of key.
func (c *HashCache) Put(key string, size int64, modTime time.Time, hash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{Hash: hash, Size: size, ModTime: modTime.UTC()}
	c.dirty = true
}

// Len returns the number of cached entries.
func (c *HashCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Persist writes the cache when it changed since the last Load or Persist.
// The file is replaced atomically.
func (c *HashCache) Persist() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty {
		return nil
	}

	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode hash cache: %w", err)
	}
	if dir := filepath.Dir(c.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create hash cache directory: %w", err)
		}
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write hash cache: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace hash cache: %w", err)
	}
	c.dirty = false
	return nil
}
