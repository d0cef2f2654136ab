// ABOUTME: Resumable record of which files an ingestion has handled
// ABOUTME: Completed and failed files are journaled so an interrupted run can pick up where it stopped

package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nainya/pagefinder/pkg/journal"
)

const (
	completedPrefix = "c:"
	failedPrefix    = "f:"
	startKey        = "m:start"
)

// Failure is the last recorded error for a file.
type Failure struct {
	Error string    `json:"error"`
	Time  time.Time `json:"time"`
}

// CheckpointStats summarizes a checkpoint.
type CheckpointStats struct {
	Completed  int
	Failed     int
	StartTime  time.Time
	LastUpdate time.Time
}

// Checkpoint tracks completed and failed files across runs. A file that
// completes after failing is no longer counted as failed. It is safe for
// concurrent use.
type Checkpoint struct {
	j *journal.Journal

	mu         sync.RWMutex
	completed  map[string]string
	failed     map[string]Failure
	start      time.Time
	lastUpdate time.Time
	records    int
}

// OpenCheckpoint opens or creates the checkpoint journal at path and loads
// its state.
func OpenCheckpoint(path string) (*Checkpoint, error) {
	c := &Checkpoint{
		j:         &journal.Journal{Path: path},
		completed: make(map[string]string),
		failed:    make(map[string]Failure),
	}
	if err := c.j.Open(); err != nil {
		return nil, err
	}
	if err := c.load(); err != nil {
		c.j.Close()
		return nil, err
	}
	if c.start.IsZero() {
		c.start = time.Now().UTC()
		if _, err := c.j.Put([]byte(startKey), []byte(c.start.Format(time.RFC3339Nano))); err != nil {
			c.j.Close()
			return nil, err
		}
		c.records++
	}
	return c, nil
}

func (c *Checkpoint) load() error {
	return c.j.Replay(func(rec *journal.Record) error {
		c.records++
		if rec.Time.After(c.lastUpdate) {
			c.lastUpdate = rec.Time
		}
		key := string(rec.Key)
		switch {
		case key == startKey:
			if rec.Op == journal.OpPut {
				t, err := time.Parse(time.RFC3339Nano, string(rec.Value))
				if err != nil {
					return fmt.Errorf("checkpoint start time: %w", err)
				}
				c.start = t
			}
		case strings.HasPrefix(key, completedPrefix):
			name := key[len(completedPrefix):]
			if rec.Op == journal.OpPut {
				c.completed[name] = string(rec.Value)
			} else {
				delete(c.completed, name)
			}
		case strings.HasPrefix(key, failedPrefix):
			name := key[len(failedPrefix):]
			if rec.Op == journal.OpDelete {
				delete(c.failed, name)
				return nil
			}
			var f Failure
			if err := json.Unmarshal(rec.Value, &f); err != nil {
				return fmt.Errorf("checkpoint failure record %q: %w", name, err)
			}
			c.failed[name] = f
		}
		return nil
	})
}

// MarkCompleted records name as done with the given content fingerprint.
func (c *Checkpoint) MarkCompleted(name, hash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.j.Put([]byte(completedPrefix+name), []byte(hash)); err != nil {
		return err
	}
	c.records++
	c.completed[name] = hash
	if _, ok := c.failed[name]; ok {
		if _, err := c.j.Delete([]byte(failedPrefix + name)); err != nil {
			return err
		}
		c.records++
		delete(c.failed, name)
	}
	c.lastUpdate = time.Now()
	return nil
}

// MarkFailed records the latest error for name.
func (c *Checkpoint) MarkFailed(name string, cause error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	f := Failure{Error: cause.Error(), Time: time.Now().UTC()}
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	if _, err := c.j.Put([]byte(failedPrefix+name), data); err != nil {
		return err
	}
	c.records++
	c.failed[name] = f
	c.lastUpdate = f.Time
	return nil
}

// IsCompleted reports whether name has completed.
func (c *Checkpoint) IsCompleted(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.completed[name]
	return ok
}

// Failures returns a copy of the recorded failures.
func (c *Checkpoint) Failures() map[string]Failure {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]Failure, len(c.failed))
	for k, v := range c.failed {
		out[k] = v
	}
	return out
}

// Stats returns counts and timestamps.
func (c *Checkpoint) Stats() CheckpointStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CheckpointStats{
		Completed:  len(c.completed),
		Failed:     len(c.failed),
		StartTime:  c.start,
		LastUpdate: c.lastUpdate,
	}
}

// Sync flushes recorded progress to disk.
func (c *Checkpoint) Sync() error {
	return c.j.Sync()
}

// Close compacts the journal when most of it is superseded records, then
// closes it.
func (c *Checkpoint) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	live := len(c.completed) + len(c.failed) + 1
	var compactErr error
	if c.records > 2*live+64 {
		compactErr = c.j.Compact()
	}
	return errors.Join(compactErr, c.j.Close())
}
