// ABOUTME: Ingestion of a folder of PDFs into the text store
// ABOUTME: Skips completed and unchanged files, extracts the rest with a bounded worker pool

package ingest

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nainya/pagefinder/pkg/location"
	"github.com/nainya/pagefinder/pkg/textstore"
	"github.com/rs/zerolog"
	"github.com/viant/afs"
	"github.com/viant/afs/storage"
	"github.com/viant/afs/url"
	"golang.org/x/sync/errgroup"
)

// File statuses reported by Run.
const (
	StatusCompleted = "completed"
	StatusUnchanged = "unchanged"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

// Sink is the part of the text store ingestion writes to.
type Sink interface {
	GetDocumentMetadata(docID string) (*textstore.Document, error)
	PutDocumentMetadata(docID, filePath, fileName string, fields textstore.Fields) error
	PutPagesBatch(docID string, pages []textstore.PageText) error
	ListDocumentIDs() ([]string, error)
}

// Observer receives per-file outcomes.
type Observer interface {
	RecordIngestFile(status string, digitalPages, ocrPages int)
}

// FileResult is the outcome for one file.
type FileResult struct {
	Name     string
	DocID    string
	Status   string
	Pages    int
	Err      error
	Duration time.Duration
}

// Report summarizes one run.
type Report struct {
	RunID     string
	Files     []FileResult
	Processed int
	Unchanged int
	Skipped   int
	Failed    int
	Pages     int
	// Orphaned lists stored documents with no file in the location.
	Orphaned []string
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithLogger sets the ingestion logger.
func WithLogger(log zerolog.Logger) Option {
	return func(i *Ingester) { i.log = log }
}

// WithObserver reports per-file outcomes to o.
func WithObserver(o Observer) Option {
	return func(i *Ingester) { i.obs = o }
}

// WithWorkers bounds how many files are processed at once.
func WithWorkers(n int) Option {
	return func(i *Ingester) {
		if n > 0 {
			i.workers = n
		}
	}
}

// WithFileTimeout bounds the time spent on one file.
func WithFileTimeout(d time.Duration) Option {
	return func(i *Ingester) { i.timeout = d }
}

// WithDigital sets the extractor for the text layer; nil disables it.
func WithDigital(e Extractor) Option {
	return func(i *Ingester) { i.digital = e }
}

// WithOCR sets the OCR extractor; nil disables it.
func WithOCR(e Extractor) Option {
	return func(i *Ingester) { i.ocr = e }
}

// WithHashCache reuses fingerprints of files whose size and modification
// time have not changed.
func WithHashCache(c *HashCache) Option {
	return func(i *Ingester) { i.cache = c }
}

// WithCheckpoint records progress in c. With skipCompleted, files the
// checkpoint already lists as completed are not looked at again.
func WithCheckpoint(c *Checkpoint, skipCompleted bool) Option {
	return func(i *Ingester) {
		i.checkpoint = c
		i.skipCompleted = skipCompleted
	}
}

// Ingester loads PDFs from an afs location into a text store.
type Ingester struct {
	sink          Sink
	fs            afs.Service
	log           zerolog.Logger
	obs           Observer
	workers       int
	timeout       time.Duration
	digital       Extractor
	ocr           Extractor
	cache         *HashCache
	checkpoint    *Checkpoint
	skipCompleted bool
	now           func() time.Time
}

// New returns an Ingester writing to sink. The digital extractor is on and
// OCR is off unless options say otherwise.
func New(sink Sink, fs afs.Service, opts ...Option) *Ingester {
	i := &Ingester{
		sink:    sink,
		fs:      fs,
		log:     zerolog.Nop(),
		workers: 4,
		timeout: 30 * time.Second,
		digital: DigitalExtractor{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Run ingests every PDF directly under loc. Failures of single files are
// reported, not returned; Run fails only when the location cannot be
// listed or ctx ends.
func (i *Ingester) Run(ctx context.Context, loc string) (*Report, error) {
	report := &Report{RunID: uuid.New().String()}
	log := i.log.With().Str("run_id", report.RunID).Logger()

	URL, err := location.Normalize(loc)
	if err != nil {
		return nil, err
	}
	objects, err := i.fs.List(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", loc, err)
	}

	var files []storage.Object
	for _, obj := range objects {
		if obj.IsDir() || !strings.EqualFold(path.Ext(obj.Name()), ".pdf") {
			continue
		}
		files = append(files, obj)
	}
	sort.Slice(files, func(a, b int) bool { return files[a].Name() < files[b].Name() })
	log.Info().Int("files", len(files)).Str("location", URL).Msg("Ingestion started")

	results := make([]FileResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.workers)
	for n, obj := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results[n] = i.processFile(gctx, report.RunID, obj)
			return nil
		})
	}
	g.Wait()

	i.flush(log)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	present := make(map[string]bool, len(files))
	for _, r := range results {
		present[r.DocID] = true
		switch r.Status {
		case StatusCompleted:
			report.Processed++
			report.Pages += r.Pages
		case StatusUnchanged:
			report.Unchanged++
		case StatusSkipped:
			report.Skipped++
		case StatusFailed:
			report.Failed++
		}
	}
	report.Files = results

	ids, err := i.sink.ListDocumentIDs()
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if !present[id] {
			report.Orphaned = append(report.Orphaned, id)
		}
	}

	log.Info().
		Int("processed", report.Processed).
		Int("unchanged", report.Unchanged).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Int("pages", report.Pages).
		Int("orphaned", len(report.Orphaned)).
		Msg("Ingestion finished")
	return report, nil
}

func (i *Ingester) flush(log zerolog.Logger) {
	if i.cache != nil {
		if err := i.cache.Persist(); err != nil {
			log.Warn().Err(err).Msg("Could not save hash cache")
		}
	}
	if i.checkpoint != nil {
		if err := i.checkpoint.Sync(); err != nil {
			log.Warn().Err(err).Msg("Could not sync checkpoint")
		}
	}
}

func (i *Ingester) processFile(ctx context.Context, runID string, obj storage.Object) FileResult {
	start := time.Now()
	name := obj.Name()
	res := FileResult{Name: name, DocID: strings.TrimSuffix(name, path.Ext(name))}

	var digitalPages, ocrPages int
	defer func() {
		res.Duration = time.Since(start)
		i.log.Info().
			Str("run_id", runID).
			Str("file", name).
			Str("status", res.Status).
			Int("pages", res.Pages).
			Dur("duration_ms", res.Duration).
			AnErr("error", res.Err).
			Msg("File processed")
		if i.obs != nil {
			i.obs.RecordIngestFile(res.Status, digitalPages, ocrPages)
		}
	}()

	if i.skipCompleted && i.checkpoint != nil && i.checkpoint.IsCompleted(name) {
		res.Status = StatusSkipped
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	hash, pages, digital, ocr, err := i.ingest(ctx, runID, obj, res.DocID)
	digitalPages, ocrPages = digital, ocr
	switch {
	case err != nil:
		res.Status = StatusFailed
		res.Err = err
		if i.checkpoint != nil {
			if cerr := i.checkpoint.MarkFailed(name, err); cerr != nil {
				res.Err = errors.Join(err, cerr)
			}
		}
		return res
	case pages < 0:
		res.Status = StatusUnchanged
	default:
		res.Status = StatusCompleted
		res.Pages = pages
	}
	if i.checkpoint != nil {
		if err := i.checkpoint.MarkCompleted(name, hash); err != nil {
			res.Status = StatusFailed
			res.Err = err
		}
	}
	return res
}

// ingest returns pages < 0 when the stored copy is already current.
func (i *Ingester) ingest(ctx context.Context, runID string, obj storage.Object, docID string) (hash string, pages, digitalPages, ocrPages int, err error) {
	existing, err := i.sink.GetDocumentMetadata(docID)
	if err != nil {
		return "", 0, 0, 0, err
	}

	URL := obj.URL()
	if i.cache != nil {
		if cached, ok := i.cache.Lookup(URL, obj.Size(), obj.ModTime()); ok {
			if existing != nil && existing.ContentHash == cached {
				return cached, -1, 0, 0, nil
			}
		}
	}

	data, err := i.fs.Download(ctx, obj)
	if err != nil {
		return "", 0, 0, 0, fmt.Errorf("download: %w", err)
	}
	if hash, err = Fingerprint(data); err != nil {
		return "", 0, 0, 0, err
	}
	if i.cache != nil {
		i.cache.Put(URL, obj.Size(), obj.ModTime(), hash)
	}
	if existing != nil && existing.ContentHash == hash {
		return hash, -1, 0, 0, nil
	}

	count, err := CountPages(data)
	if err != nil {
		return "", 0, 0, 0, err
	}
	src := Source{URL: URL, Name: obj.Name(), Data: data, PageCount: count}

	var digital, ocr []string
	if i.digital != nil || i.ocr != nil {
		g, gctx := errgroup.WithContext(ctx)
		run := func(e Extractor, out *[]string) {
			if e == nil {
				return
			}
			g.Go(func() error {
				texts, err := e.Extract(gctx, src)
				if err != nil {
					return fmt.Errorf("%s extraction: %w", e.Name(), err)
				}
				*out = texts
				return nil
			})
		}
		run(i.digital, &digital)
		run(i.ocr, &ocr)
		if err := g.Wait(); err != nil {
			return "", 0, 0, 0, err
		}
	}

	n := max(count, len(digital), len(ocr))
	batch := make([]textstore.PageText, n)
	for p := range batch {
		if i.digital != nil {
			batch[p].Digital = textstore.Text(pageAt(digital, p))
			digitalPages++
		}
		if i.ocr != nil {
			batch[p].OCR = textstore.Text(pageAt(ocr, p))
			ocrPages++
		}
	}
	if err := i.sink.PutPagesBatch(docID, batch); err != nil {
		return "", 0, 0, 0, err
	}

	filePath := URL
	if url.Scheme(URL, "") == "file" {
		filePath = url.Path(URL)
	}
	fields := textstore.Fields{
		"page_count":        n,
		"file_size_bytes":   obj.Size(),
		"content_hash":      hash,
		"last_modified":     obj.ModTime().UTC().Format(time.RFC3339Nano),
		"processing_date":   i.now().UTC().Format(time.RFC3339Nano),
		"processing_method": method(i.digital != nil, i.ocr != nil),
		"run_id":            runID,
	}
	if err := i.sink.PutDocumentMetadata(docID, filePath, obj.Name(), fields); err != nil {
		return "", 0, 0, 0, err
	}
	return hash, n, digitalPages, ocrPages, nil
}

func pageAt(texts []string, i int) string {
	if i < len(texts) {
		return texts[i]
	}
	return ""
}

func method(digital, ocr bool) string {
	switch {
	case digital && ocr:
		return "digital+ocr"
	case ocr:
		return "ocr"
	case digital:
		return "digital"
	}
	return "none"
}
