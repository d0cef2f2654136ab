package main

import (
	"context"
	"flag"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/nainya/pagefinder/pkg/ingest"
)

func runIngest(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	dbPath := fs.String("db", a.cfg.DBPath, "Database file path")
	workers := fs.Int("workers", a.cfg.Workers, "Files processed concurrently")
	ocr := fs.Bool("ocr", a.cfg.EnableOCR, "Run OCR on rendered page images")
	force := fs.Bool("force", false, "Reprocess files already completed by a previous run")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("ingest takes exactly one location, got %d", fs.NArg())
	}
	a.cfg.DBPath = *dbPath
	a.cfg.Workers = *workers
	a.cfg.EnableOCR = *ocr
	if *force {
		a.cfg.SkipExisting = false
	}

	ing, done, err := a.newIngester()
	if err != nil {
		return err
	}
	defer done()

	report, err := ing.Run(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	printIngestReport(report)
	if report.Failed > 0 {
		return fmt.Errorf("%d of %d files failed", report.Failed, len(report.Files))
	}
	return nil
}

// newIngester wires an Ingester from the configuration. done persists and
// closes what the ingester opened.
func (a *app) newIngester() (*ingest.Ingester, func(), error) {
	store, err := a.openStore()
	if err != nil {
		return nil, nil, err
	}
	opts := []ingest.Option{
		ingest.WithLogger(a.log.Zerolog()),
		ingest.WithObserver(a.metrics),
		ingest.WithWorkers(a.cfg.Workers),
		ingest.WithFileTimeout(a.cfg.FileTimeout),
	}
	if !a.cfg.EnableDigital {
		opts = append(opts, ingest.WithDigital(nil))
	}
	if a.cfg.EnableOCR {
		tess, err := ingest.NewTesseract()
		if err != nil {
			return nil, nil, err
		}
		recognizer := ingest.NewGuardedRecognizer(tess, a.cfg.OCRRequestsPerSec, a.log.Zerolog())
		opts = append(opts, ingest.WithOCR(ingest.OCRExtractor{
			Images:     ingest.SidecarImager{FS: a.fs},
			Recognizer: recognizer,
		}))
	}

	stateDir := filepath.Dir(a.cfg.DBPath)
	if a.cfg.EnableCaching {
		cache := ingest.NewHashCache(statePath(stateDir, a.cfg.HashCacheFile))
		if err := cache.Load(); err != nil {
			a.log.Warn("Hash cache unreadable, starting empty").Err(err).Send()
		}
		opts = append(opts, ingest.WithHashCache(cache))
	}

	var checkpoint *ingest.Checkpoint
	if a.cfg.EnableCheckpointing {
		checkpoint, err = ingest.OpenCheckpoint(statePath(stateDir, a.cfg.CheckpointFile))
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, ingest.WithCheckpoint(checkpoint, a.cfg.SkipExisting))
	}

	done := func() {
		if checkpoint == nil {
			return
		}
		st := checkpoint.Stats()
		a.log.Info("Checkpoint state").
			Int("completed", st.Completed).
			Int("failed", st.Failed).
			Send()
		if err := checkpoint.Close(); err != nil {
			a.log.Error("Failed to close checkpoint").Err(err).Send()
		}
	}
	return ingest.New(store, a.fs, opts...), done, nil
}

// statePath places relative state files next to the database.
func statePath(dir, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}

func printIngestReport(r *ingest.Report) {
	fmt.Printf("Run %s: %d processed, %d unchanged, %d skipped, %d failed, %d pages\n",
		r.RunID, r.Processed, r.Unchanged, r.Skipped, r.Failed, r.Pages)
	for _, f := range r.Files {
		if f.Err != nil {
			fmt.Printf("  FAILED %s: %v\n", f.Name, f.Err)
		}
	}
	if len(r.Orphaned) > 0 {
		fmt.Printf("Stored documents with no source file: %s\n", strings.Join(r.Orphaned, ", "))
	}
}
