package tables

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/nainya/pagefinder/pkg/textstore"
)

type fakeSource struct {
	pages map[string]map[int]string
	paths map[string]string
	order []string
	fail  map[string]error
}

func (f *fakeSource) GetDocumentPages(docID string, _ ...textstore.PagesOption) (map[int]string, error) {
	if err := f.fail[docID]; err != nil {
		return nil, err
	}
	out := make(map[int]string, len(f.pages[docID]))
	for n, text := range f.pages[docID] {
		out[n] = text
	}
	return out, nil
}

func (f *fakeSource) GetDocumentMetadata(docID string) (*textstore.Document, error) {
	p, ok := f.paths[docID]
	if !ok {
		return nil, nil
	}
	return &textstore.Document{DocID: docID, FilePath: p}, nil
}

func (f *fakeSource) ListDocumentIDs() ([]string, error) {
	return append([]string(nil), f.order...), nil
}

type recordingObserver struct {
	mu     sync.Mutex
	docs   int
	evals  int
	tables []string
}

func (o *recordingObserver) RecordDocumentSearch(evals int, found []string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.docs++
	o.evals += evals
	o.tables = append(o.tables, found...)
}

const (
	fullPage    = "Consolidated statement. Total assets 1,200. Total liabilities 800. Shareholders equity 400."
	partialPage = "Notes to the accounts. Total assets 1,200 and total liabilities 800 as reported."
	fillerPage  = "The quick brown fox jumps over the lazy dog near the riverbank at dawn."
)

func balanceSheet(t *testing.T) *TableDefinition {
	t.Helper()
	def, err := NewTableDefinition("Balance Sheet", []TextElement{
		elem("total assets"),
		elem("total liabilities"),
		elem("shareholders equity"),
	}, MinCount, WithMinElements(2))
	if err != nil {
		t.Fatalf("NewTableDefinition failed: %v", err)
	}
	return def
}

func TestSearchDocumentAggregatesQualifyingPages(t *testing.T) {
	src := &fakeSource{
		pages: map[string]map[int]string{
			"report": {1: fullPage, 2: "", 3: partialPage},
		},
		paths: map[string]string{"report": "/data/report.pdf"},
	}
	engine := NewEngine(src, []*TableDefinition{balanceSheet(t)})

	results, err := engine.SearchDocument(context.Background(), "report", 0)
	if err != nil {
		t.Fatalf("SearchDocument failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected one result, got %d", len(results))
	}
	r := results[0]
	if !reflect.DeepEqual(r.PagesFound, []int{1, 3}) {
		t.Errorf("Expected pages [1 3], got %v", r.PagesFound)
	}
	if want := (1.0 + 2.0/3.0) / 2; math.Abs(r.ConfidenceScore-want) > 1e-9 {
		t.Errorf("Expected confidence %v, got %v", want, r.ConfidenceScore)
	}
	if !r.Found || r.TableName != "Balance Sheet" || r.DocumentName != "report" {
		t.Errorf("Unexpected result header: %+v", r)
	}
	if r.FilePath != "/data/report.pdf" {
		t.Errorf("Expected normalized file path, got %q", r.FilePath)
	}
	if len(r.ElementResults) != 6 {
		t.Errorf("Expected element results from both pages, got %d", len(r.ElementResults))
	}
	if len(r.MatchDetails) != 2 || r.MatchDetails[0] != "Page 1: Found 3/3 elements (min: 2)" {
		t.Errorf("Unexpected details %v", r.MatchDetails)
	}
}

func TestSearchDocumentMinConfidence(t *testing.T) {
	src := &fakeSource{pages: map[string]map[int]string{
		"report": {1: fullPage, 2: partialPage},
	}}
	engine := NewEngine(src, []*TableDefinition{balanceSheet(t)})

	results, err := engine.SearchDocument(context.Background(), "report", 0.9)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || !reflect.DeepEqual(results[0].PagesFound, []int{1}) {
		t.Fatalf("Expected only page 1 above 0.9, got %+v", results)
	}
	if results[0].ConfidenceScore != 1 {
		t.Errorf("Expected confidence 1, got %v", results[0].ConfidenceScore)
	}

	results, err = engine.SearchDocument(context.Background(), "report", 1.01)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("Expected no results above the best score, got %d", len(results))
	}
}

func TestSearchDocumentWithoutPages(t *testing.T) {
	engine := NewEngine(&fakeSource{}, []*TableDefinition{balanceSheet(t)})
	results, err := engine.SearchDocument(context.Background(), "missing", 0)
	if err != nil || len(results) != 0 {
		t.Errorf("Expected no results and no error, got %v %v", results, err)
	}
}

func TestSearchDocumentIsIdempotent(t *testing.T) {
	src := &fakeSource{pages: map[string]map[int]string{
		"report": {1: fullPage, 2: fillerPage, 3: partialPage},
	}}
	engine := NewEngine(src, []*TableDefinition{balanceSheet(t)})

	first, err := engine.SearchDocument(context.Background(), "report", 0)
	if err != nil {
		t.Fatal(err)
	}
	second, err := engine.SearchDocument(context.Background(), "report", 0)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("Repeated searches over unchanged pages must agree")
	}
}

func TestSearchDocumentObserver(t *testing.T) {
	obs := &recordingObserver{}
	src := &fakeSource{pages: map[string]map[int]string{
		"report": {1: fullPage, 2: "", 3: fillerPage},
	}}
	engine := NewEngine(src, []*TableDefinition{balanceSheet(t)}, WithSearchObserver(obs))

	if _, err := engine.SearchDocument(context.Background(), "report", 0); err != nil {
		t.Fatal(err)
	}
	if obs.docs != 1 || obs.evals != 3 {
		t.Errorf("Expected 1 document and 3 evaluations, got %d and %d", obs.docs, obs.evals)
	}
	if !reflect.DeepEqual(obs.tables, []string{"Balance Sheet"}) {
		t.Errorf("Unexpected tables %v", obs.tables)
	}
}

func corpus() *fakeSource {
	src := &fakeSource{pages: map[string]map[int]string{}}
	for i, id := range []string{"d0", "d1", "d2", "d3", "d4", "d5", "d6", "d7"} {
		src.order = append(src.order, id)
		text := fillerPage
		if i%2 == 0 {
			text = fullPage
		}
		src.pages[id] = map[int]string{1: text}
	}
	return src
}

func TestSearchAllDocumentsKeepsDocumentOrder(t *testing.T) {
	engine := NewEngine(corpus(), []*TableDefinition{balanceSheet(t)}, WithParallelism(4))

	results, err := engine.SearchAllDocuments(context.Background(), nil, 0)
	if err != nil {
		t.Fatalf("SearchAllDocuments failed: %v", err)
	}
	var docs []string
	for _, r := range results {
		docs = append(docs, r.DocumentName)
	}
	if !reflect.DeepEqual(docs, []string{"d0", "d2", "d4", "d6"}) {
		t.Errorf("Expected results in listing order, got %v", docs)
	}

	subset, err := engine.SearchAllDocuments(context.Background(), []string{"d6", "d0"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(subset) != 2 || subset[0].DocumentName != "d6" || subset[1].DocumentName != "d0" {
		t.Errorf("Expected results in the given order, got %+v", subset)
	}
}

func TestSearchAllDocumentsSkipsStorageErrors(t *testing.T) {
	src := corpus()
	src.fail = map[string]error{
		"d2": &textstore.StorageError{Op: "get_pages", Key: "d2", Err: textstore.ErrCorrupt},
	}

	results, err := NewEngine(src, []*TableDefinition{balanceSheet(t)}).SearchAllDocuments(context.Background(), nil, 0)
	if err != nil {
		t.Fatalf("Expected unreadable document to be skipped, got %v", err)
	}
	if len(results) != 3 {
		t.Errorf("Expected 3 results without d2, got %d", len(results))
	}

	strict := NewEngine(src, []*TableDefinition{balanceSheet(t)}, WithStrictErrors(true))
	if _, err := strict.SearchAllDocuments(context.Background(), nil, 0); !errors.Is(err, textstore.ErrCorrupt) {
		t.Errorf("Expected strict engine to fail with ErrCorrupt, got %v", err)
	}
}

func TestSearchAllDocumentsFailsOnOtherErrors(t *testing.T) {
	src := corpus()
	boom := errors.New("boom")
	src.fail = map[string]error{"d3": boom}

	_, err := NewEngine(src, []*TableDefinition{balanceSheet(t)}).SearchAllDocuments(context.Background(), nil, 0)
	if !errors.Is(err, boom) {
		t.Errorf("Expected boom, got %v", err)
	}
}

func TestSearchAllDocumentsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEngine(corpus(), []*TableDefinition{balanceSheet(t)}).SearchAllDocuments(ctx, nil, 0)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestEngineOverTextStore(t *testing.T) {
	store, err := textstore.Open(filepath.Join(t.TempDir(), "pages.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	if err := store.PutDocumentMetadata("annual", "/reports/annual.pdf", "annual.pdf", textstore.Fields{"page_count": 3}); err != nil {
		t.Fatal(err)
	}
	err = store.PutPagesBatch("annual", []textstore.PageText{
		{Digital: textstore.Text(fillerPage)},
		{Digital: textstore.Text("Total assets 1,200."), OCR: textstore.Text("Total liabilities 800.")},
		{OCR: textstore.Text(fullPage)},
	})
	if err != nil {
		t.Fatal(err)
	}

	results, err := NewEngine(store, []*TableDefinition{balanceSheet(t)}).SearchAllDocuments(context.Background(), nil, 0)
	if err != nil {
		t.Fatalf("SearchAllDocuments failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected one result, got %d", len(results))
	}
	// page 2 only qualifies through the merged digital and OCR text
	if !reflect.DeepEqual(results[0].PagesFound, []int{2, 3}) {
		t.Errorf("Expected pages [2 3], got %v", results[0].PagesFound)
	}
	if results[0].FilePath != "/reports/annual.pdf" {
		t.Errorf("Unexpected file path %q", results[0].FilePath)
	}
}

func TestNormalizePath(t *testing.T) {
	if got := NormalizePath(`C:\docs\a.pdf`); !filepath.IsAbs(filepath.FromSlash(got)) {
		t.Errorf("Expected absolute path, got %q", got)
	}
	if got := NormalizePath(""); got != "" {
		t.Errorf("Expected empty path to stay empty, got %q", got)
	}
	if got := NormalizePath("/data/x.pdf"); got != "/data/x.pdf" {
		t.Errorf("Expected absolute path unchanged, got %q", got)
	}
}

func TestAddingQualifyingPageIsMonotonic(t *testing.T) {
	def := balanceSheet(t)
	src := &fakeSource{pages: map[string]map[int]string{
		"report": {1: partialPage},
	}}
	engine := NewEngine(src, []*TableDefinition{def})

	search := func() TableSearchResult {
		t.Helper()
		results, err := engine.SearchDocument(context.Background(), "report", 0)
		if err != nil {
			t.Fatalf("SearchDocument failed: %v", err)
		}
		if len(results) != 1 {
			t.Fatalf("Expected one result, got %d", len(results))
		}
		return results[0]
	}

	prev := search()
	for i, text := range []string{fullPage, partialPage, fullPage, partialPage} {
		page := i + 2
		eval := EvaluatePage(def, page, text)
		if !eval.Found {
			t.Fatalf("Page %d expected to qualify", page)
		}
		src.pages["report"][page] = text

		next := search()
		n := float64(len(prev.PagesFound))
		if len(next.PagesFound) != len(prev.PagesFound)+1 {
			t.Fatalf("Page %d: expected %d pages, got %v", page, len(prev.PagesFound)+1, next.PagesFound)
		}
		want := (prev.ConfidenceScore*n + eval.StrategyScore) / (n + 1)
		if math.Abs(next.ConfidenceScore-want) > 1e-9 {
			t.Errorf("Page %d: expected confidence %v, got %v", page, want, next.ConfidenceScore)
		}
		if next.ConfidenceScore < 0 || next.ConfidenceScore > 1 {
			t.Errorf("Page %d: confidence %v outside [0, 1]", page, next.ConfidenceScore)
		}
		prev = next
	}

	// a page that does not qualify changes nothing
	src.pages["report"][99] = fillerPage
	if got := search(); !reflect.DeepEqual(got.PagesFound, prev.PagesFound) || got.ConfidenceScore != prev.ConfidenceScore {
		t.Errorf("Non-qualifying page changed the result: %+v", got)
	}
}
