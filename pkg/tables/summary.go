// ABOUTME: Reporting views over search results
// ABOUTME: Summarize groups by document and table; Consolidate merges repeated detections

package tables

import (
	"sort"
)

// Summary is the grouped report of a search run.
type Summary struct {
	TotalDocumentsSearched int                          `json:"total_documents_searched"`
	TotalTablesFound       int                          `json:"total_tables_found"`
	TablesByDocument       map[string][]DocumentTable   `json:"tables_by_document"`
	TablesByType           map[string]*TableOccurrences `json:"tables_by_type"`
}

// DocumentTable is one table found in a document.
type DocumentTable struct {
	TableName  string  `json:"table_name"`
	Pages      []int   `json:"pages"`
	Confidence float64 `json:"confidence"`
}

// TableOccurrences lists the documents a table was found in.
type TableOccurrences struct {
	FoundInDocuments []DocumentOccurrence `json:"found_in_documents"`
	TotalOccurrences int                  `json:"total_occurrences"`
}

// DocumentOccurrence is one document a table was found in.
type DocumentOccurrence struct {
	Document   string  `json:"document"`
	Pages      []int   `json:"pages"`
	Confidence float64 `json:"confidence"`
}

// Summarize groups results by document and by table name. Documents are
// counted once however many tables they contain.
func Summarize(results []TableSearchResult) Summary {
	s := Summary{
		TablesByDocument: make(map[string][]DocumentTable),
		TablesByType:     make(map[string]*TableOccurrences),
	}
	for _, r := range results {
		if _, seen := s.TablesByDocument[r.DocumentName]; !seen {
			s.TablesByDocument[r.DocumentName] = []DocumentTable{}
		}
		occ := s.TablesByType[r.TableName]
		if occ == nil {
			occ = &TableOccurrences{FoundInDocuments: []DocumentOccurrence{}}
			s.TablesByType[r.TableName] = occ
		}
		if !r.Found {
			continue
		}
		s.TotalTablesFound++
		pages := nonNil(r.PagesFound)
		s.TablesByDocument[r.DocumentName] = append(s.TablesByDocument[r.DocumentName], DocumentTable{
			TableName:  r.TableName,
			Pages:      pages,
			Confidence: r.ConfidenceScore,
		})
		occ.FoundInDocuments = append(occ.FoundInDocuments, DocumentOccurrence{
			Document:   r.DocumentName,
			Pages:      pages,
			Confidence: r.ConfidenceScore,
		})
		occ.TotalOccurrences++
	}
	s.TotalDocumentsSearched = len(s.TablesByDocument)
	return s
}

// Detection is every detection of one table in one document, merged.
type Detection struct {
	Document    string  `json:"document"`
	Table       string  `json:"table"`
	FilePath    string  `json:"file_path"`
	Pages       []int   `json:"pages"`
	Confidence  float64 `json:"confidence"`
	Occurrences int     `json:"occurrences"`
}

// Analysis is the consolidated view of exported results.
type Analysis struct {
	TotalDetections       int                    `json:"total_detections"`
	UniqueDocuments       int                    `json:"unique_documents"`
	UniqueTables          int                    `json:"unique_tables"`
	AvgDetectionsPerDoc   float64                `json:"average_detections_per_document"`
	AvgDetectionsPerTable float64                `json:"average_detections_per_table"`
	ByDocument            map[string][]Detection `json:"tables_by_document"`
	ByTable               map[string][]Detection `json:"documents_by_table"`
	ConfidenceByTable     map[string][]float64   `json:"confidence_stats"`
	FilePathsByTable      map[string][]string    `json:"file_paths"`
}

// Consolidate merges records sharing a (document, table) pair: pages are
// unioned and sorted, confidences averaged, and the first non-empty file
// path kept. Output slices follow first appearance.
func Consolidate(records []ExportRecord) Analysis {
	type key struct{ doc, table string }
	var order []key
	merged := make(map[key]*Detection)
	sums := make(map[key]float64)
	pageSets := make(map[key]map[int]struct{})

	for _, r := range records {
		k := key{r.DocumentName, r.TableName}
		d := merged[k]
		if d == nil {
			d = &Detection{Document: r.DocumentName, Table: r.TableName}
			merged[k] = d
			pageSets[k] = make(map[int]struct{})
			order = append(order, k)
		}
		d.Occurrences++
		sums[k] += r.ConfidenceScore
		if d.FilePath == "" {
			d.FilePath = r.FilePath
		}
		for _, p := range r.PagesFound {
			pageSets[k][p] = struct{}{}
		}
	}

	a := Analysis{
		TotalDetections:   len(records),
		ByDocument:        make(map[string][]Detection),
		ByTable:           make(map[string][]Detection),
		ConfidenceByTable: make(map[string][]float64),
		FilePathsByTable:  make(map[string][]string),
	}
	seenPath := make(map[string]map[string]bool)
	for _, k := range order {
		d := merged[k]
		d.Pages = make([]int, 0, len(pageSets[k]))
		for p := range pageSets[k] {
			d.Pages = append(d.Pages, p)
		}
		sort.Ints(d.Pages)
		d.Confidence = sums[k] / float64(d.Occurrences)

		a.ByDocument[k.doc] = append(a.ByDocument[k.doc], *d)
		a.ByTable[k.table] = append(a.ByTable[k.table], *d)
		a.ConfidenceByTable[k.table] = append(a.ConfidenceByTable[k.table], d.Confidence)
		if d.FilePath != "" {
			if seenPath[k.table] == nil {
				seenPath[k.table] = make(map[string]bool)
			}
			if !seenPath[k.table][d.FilePath] {
				seenPath[k.table][d.FilePath] = true
				a.FilePathsByTable[k.table] = append(a.FilePathsByTable[k.table], d.FilePath)
			}
		}
	}

	a.UniqueDocuments = len(a.ByDocument)
	a.UniqueTables = len(a.ByTable)
	if a.UniqueDocuments > 0 {
		a.AvgDetectionsPerDoc = float64(a.TotalDetections) / float64(a.UniqueDocuments)
	}
	if a.UniqueTables > 0 {
		a.AvgDetectionsPerTable = float64(a.TotalDetections) / float64(a.UniqueTables)
	}
	return a
}

func nonNil(pages []int) []int {
	out := make([]int, len(pages))
	copy(out, pages)
	return out
}
