package ingest

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
)

func openTestCheckpoint(t *testing.T, path string) *Checkpoint {
	t.Helper()
	c, err := OpenCheckpoint(path)
	if err != nil {
		t.Fatalf("OpenCheckpoint failed: %v", err)
	}
	return c
}

func TestCheckpointMarks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.journal")
	c := openTestCheckpoint(t, path)

	if err := c.MarkCompleted("a.pdf", "h1"); err != nil {
		t.Fatal(err)
	}
	if err := c.MarkFailed("b.pdf", errors.New("corrupt xref")); err != nil {
		t.Fatal(err)
	}
	if !c.IsCompleted("a.pdf") || c.IsCompleted("b.pdf") {
		t.Error("Unexpected completion state")
	}
	stats := c.Stats()
	if stats.Completed != 1 || stats.Failed != 1 {
		t.Errorf("Unexpected stats %+v", stats)
	}
	if stats.StartTime.IsZero() || stats.LastUpdate.Before(stats.StartTime) {
		t.Errorf("Unexpected timestamps %+v", stats)
	}
	if f := c.Failures()["b.pdf"]; f.Error != "corrupt xref" {
		t.Errorf("Unexpected failure %+v", f)
	}

	if err := c.MarkCompleted("b.pdf", "h2"); err != nil {
		t.Fatal(err)
	}
	if stats := c.Stats(); stats.Completed != 2 || stats.Failed != 0 {
		t.Errorf("Completing a failed file must clear the failure, got %+v", stats)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestCheckpointSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.journal")
	c := openTestCheckpoint(t, path)
	c.MarkCompleted("a.pdf", "h1")
	c.MarkFailed("b.pdf", errors.New("timeout"))
	start := c.Stats().StartTime
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	c = openTestCheckpoint(t, path)
	defer c.Close()
	if !c.IsCompleted("a.pdf") {
		t.Error("Expected a.pdf to stay completed")
	}
	stats := c.Stats()
	if stats.Failed != 1 || !stats.StartTime.Equal(start) {
		t.Errorf("Unexpected stats after reopen %+v (start %v)", stats, start)
	}
}

func TestCheckpointCompactsOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.journal")
	c := openTestCheckpoint(t, path)
	for i := 0; i < 100; i++ {
		c.MarkFailed("flaky.pdf", fmt.Errorf("attempt %d", i))
	}
	c.MarkCompleted("flaky.pdf", "h")
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	c = openTestCheckpoint(t, path)
	defer c.Close()
	if !c.IsCompleted("flaky.pdf") || c.Stats().Failed != 0 {
		t.Errorf("Unexpected state after compaction %+v", c.Stats())
	}
	if c.records > 3 {
		t.Errorf("Expected compacted journal, replayed %d records", c.records)
	}
}
