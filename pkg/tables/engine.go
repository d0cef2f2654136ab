// ABOUTME: Table detection engine over a page store
// ABOUTME: Aggregates qualifying pages per document and searches corpora in parallel

package tables

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/nainya/pagefinder/pkg/fuzzy"
	"github.com/nainya/pagefinder/pkg/textstore"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const tracerName = "github.com/nainya/pagefinder/pkg/tables"

// PageSource is the read side of the text store the engine needs.
type PageSource interface {
	GetDocumentPages(docID string, opts ...textstore.PagesOption) (map[int]string, error)
	GetDocumentMetadata(docID string) (*textstore.Document, error)
	ListDocumentIDs() ([]string, error)
}

// SearchObserver receives per-document search statistics.
type SearchObserver interface {
	RecordDocumentSearch(pageEvaluations int, tablesFound []string, duration time.Duration)
}

// TableSearchResult aggregates one definition over one document.
// ConfidenceScore is the document_confidence_score: the mean page strategy
// score over qualifying pages only.
type TableSearchResult struct {
	TableName       string
	DocumentName    string
	FilePath        string
	Found           bool
	PagesFound      []int
	ConfidenceScore float64
	ElementResults  []SearchResult
	MatchDetails    []string
}

// Details joins MatchDetails the way exports present them.
func (r TableSearchResult) Details() string {
	return strings.Join(r.MatchDetails, "; ")
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(log zerolog.Logger) EngineOption {
	return func(e *Engine) { e.log = log }
}

// WithParallelism bounds how many documents are searched at once.
func WithParallelism(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.parallelism = n
		}
	}
}

// WithStrictErrors makes a storage error on one document fail a corpus
// search instead of skipping the document.
func WithStrictErrors(strict bool) EngineOption {
	return func(e *Engine) { e.strict = strict }
}

// WithMatcherOptions passes options to every fuzzy search.
func WithMatcherOptions(opts ...fuzzy.Option) EngineOption {
	return func(e *Engine) { e.matcher = append(e.matcher, opts...) }
}

// WithSearchObserver reports per-document statistics to o.
func WithSearchObserver(o SearchObserver) EngineOption {
	return func(e *Engine) { e.obs = o }
}

// WithTracerProvider sets where spans go; the global provider otherwise.
func WithTracerProvider(tp trace.TracerProvider) EngineOption {
	return func(e *Engine) { e.tracer = tp.Tracer(tracerName) }
}

// Engine searches documents for a fixed set of table definitions. It holds
// no mutable state and is safe for concurrent use.
type Engine struct {
	store       PageSource
	defs        []*TableDefinition
	log         zerolog.Logger
	parallelism int
	strict      bool
	matcher     []fuzzy.Option
	obs         SearchObserver
	tracer      trace.Tracer
}

// NewEngine builds an engine over store.
func NewEngine(store PageSource, defs []*TableDefinition, opts ...EngineOption) *Engine {
	e := &Engine{
		store:       store,
		defs:        append([]*TableDefinition(nil), defs...),
		log:         zerolog.Nop(),
		parallelism: runtime.GOMAXPROCS(0),
		tracer:      otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Definitions returns the engine's table definitions.
func (e *Engine) Definitions() []*TableDefinition {
	return append([]*TableDefinition(nil), e.defs...)
}

// SearchDocument evaluates every definition on every page of docID. A
// page qualifies when the strategy accepts it and its strategy score is at
// least minConfidence. Definitions with no qualifying page produce no
// result. A document with no pages yields no results and no error.
func (e *Engine) SearchDocument(ctx context.Context, docID string, minConfidence float64) ([]TableSearchResult, error) {
	ctx, span := e.tracer.Start(ctx, "tables.SearchDocument",
		trace.WithAttributes(attribute.String("doc_id", docID)))
	defer span.End()
	start := time.Now()

	results, evals, err := e.searchDocument(ctx, docID, minConfidence)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.log.Warn().Err(err).Str("doc_id", docID).Msg("Document search failed")
		return nil, err
	}

	found := make([]string, len(results))
	for i, r := range results {
		found[i] = r.TableName
	}
	span.SetAttributes(
		attribute.Int("page_evaluations", evals),
		attribute.Int("tables_found", len(results)),
	)
	if e.obs != nil {
		e.obs.RecordDocumentSearch(evals, found, time.Since(start))
	}
	e.log.Debug().
		Str("doc_id", docID).
		Int("tables_found", len(results)).
		Dur("duration_ms", time.Since(start)).
		Msg("Document searched")
	return results, nil
}

func (e *Engine) searchDocument(ctx context.Context, docID string, minConfidence float64) ([]TableSearchResult, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	pages, err := e.store.GetDocumentPages(docID)
	if err != nil {
		return nil, 0, err
	}
	doc, err := e.store.GetDocumentMetadata(docID)
	if err != nil {
		return nil, 0, err
	}
	filePath := ""
	if doc != nil {
		filePath = NormalizePath(doc.FilePath)
	}

	numbers := textstore.SortedPages(pages)
	var results []TableSearchResult
	evals := 0
	for _, def := range e.defs {
		var (
			res    TableSearchResult
			scores float64
		)
		for _, n := range numbers {
			eval := EvaluatePage(def, n, pages[n], e.matcher...)
			evals++
			if !eval.Found || eval.StrategyScore < minConfidence {
				continue
			}
			res.PagesFound = append(res.PagesFound, n)
			res.ElementResults = append(res.ElementResults, eval.Results...)
			res.MatchDetails = append(res.MatchDetails, fmt.Sprintf("Page %d: %s", n, eval.Details))
			scores += eval.StrategyScore
		}
		if len(res.PagesFound) == 0 {
			continue
		}
		res.TableName = def.Name()
		res.DocumentName = docID
		res.FilePath = filePath
		res.Found = true
		res.ConfidenceScore = scores / float64(len(res.PagesFound))
		results = append(results, res)
	}
	return results, evals, nil
}

// SearchAllDocuments searches docIDs, or every stored document when docIDs
// is nil, and concatenates the results in document order. Cancellation is
// checked between documents. A document failing with a StorageError is
// skipped unless the engine is strict.
func (e *Engine) SearchAllDocuments(ctx context.Context, docIDs []string, minConfidence float64) ([]TableSearchResult, error) {
	ctx, span := e.tracer.Start(ctx, "tables.SearchAllDocuments")
	defer span.End()

	if docIDs == nil {
		ids, err := e.store.ListDocumentIDs()
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		docIDs = ids
	}
	span.SetAttributes(attribute.Int("documents", len(docIDs)))

	perDoc := make([][]TableSearchResult, len(docIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)
	for i, id := range docIDs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := e.SearchDocument(gctx, id, minConfidence)
			if err != nil {
				var se *textstore.StorageError
				if errors.As(err, &se) && !e.strict {
					e.log.Warn().Err(err).Str("doc_id", id).Msg("Skipping unreadable document")
					return nil
				}
				return err
			}
			perDoc[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var all []TableSearchResult
	for _, res := range perDoc {
		all = append(all, res...)
	}
	span.SetAttributes(attribute.Int("tables_found", len(all)))
	return all, nil
}

// GetSummaryReport summarizes results; see Summarize.
func (e *Engine) GetSummaryReport(results []TableSearchResult) Summary {
	return Summarize(results)
}

// NormalizePath makes p absolute and uses forward slashes.
func NormalizePath(p string) string {
	if p == "" {
		return ""
	}
	p = strings.ReplaceAll(p, "\\", "/")
	if abs, err := filepath.Abs(filepath.FromSlash(p)); err == nil {
		p = abs
	}
	return filepath.ToSlash(p)
}
