// ABOUTME: Result export as JSON records and as an XLSX workbook
// ABOUTME: JSON records are the interchange format read back by Consolidate

package tables

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/nainya/pagefinder/pkg/location"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/xuri/excelize/v2"
)

// ExportRecord is the exported form of a TableSearchResult.
type ExportRecord struct {
	TableName       string  `json:"table_name"`
	DocumentName    string  `json:"document_name"`
	FilePath        string  `json:"file_path"`
	Found           bool    `json:"found"`
	PagesFound      []int   `json:"pages_found"`
	ConfidenceScore float64 `json:"confidence_score"`
	MatchDetails    string  `json:"match_details"`
}

// ToExportRecords flattens results for export. File paths are made
// absolute with forward slashes.
func ToExportRecords(results []TableSearchResult) []ExportRecord {
	out := make([]ExportRecord, len(results))
	for i, r := range results {
		out[i] = ExportRecord{
			TableName:       r.TableName,
			DocumentName:    r.DocumentName,
			FilePath:        NormalizePath(r.FilePath),
			Found:           r.Found,
			PagesFound:      nonNil(r.PagesFound),
			ConfidenceScore: r.ConfidenceScore,
			MatchDetails:    r.Details(),
		}
	}
	return out
}

// ExportJSON writes results as an indented JSON array of records.
func ExportJSON(w io.Writer, results []TableSearchResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(ToExportRecords(results)); err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	return nil
}

// WriteJSON uploads the JSON export to loc through afs.
func WriteJSON(ctx context.Context, fs afs.Service, loc string, results []TableSearchResult) error {
	var buf bytes.Buffer
	if err := ExportJSON(&buf, results); err != nil {
		return err
	}
	URL, err := location.Normalize(loc)
	if err != nil {
		return err
	}
	if err := fs.Upload(ctx, URL, file.DefaultFileOsMode, &buf); err != nil {
		return fmt.Errorf("write results %s: %w", loc, err)
	}
	return nil
}

// WriteXLSX uploads the workbook export to loc through afs.
func WriteXLSX(ctx context.Context, fs afs.Service, loc string, results []TableSearchResult) error {
	var buf bytes.Buffer
	if err := ExportXLSX(&buf, results, Summarize(results)); err != nil {
		return err
	}
	URL, err := location.Normalize(loc)
	if err != nil {
		return err
	}
	if err := fs.Upload(ctx, URL, file.DefaultFileOsMode, &buf); err != nil {
		return fmt.Errorf("write workbook %s: %w", loc, err)
	}
	return nil
}

// ReadJSON parses records written by ExportJSON.
func ReadJSON(r io.Reader) ([]ExportRecord, error) {
	var records []ExportRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}
	return records, nil
}

// LoadJSON reads an export from loc through afs.
func LoadJSON(ctx context.Context, fs afs.Service, loc string) ([]ExportRecord, error) {
	URL, err := location.Normalize(loc)
	if err != nil {
		return nil, err
	}
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("read results %s: %w", loc, err)
	}
	return ReadJSON(bytes.NewReader(data))
}

const (
	resultsSheet = "Results"
	summarySheet = "Summary"
)

// ExportXLSX writes a workbook with one row per result and a per-table
// summary sheet.
func ExportXLSX(w io.Writer, results []TableSearchResult, summary Summary) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), resultsSheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	headers := []interface{}{"Table", "Document", "File Path", "Found", "Pages", "Confidence", "Details"}
	if err := f.SetSheetRow(resultsSheet, "A1", &headers); err != nil {
		return err
	}
	for i, rec := range ToExportRecords(results) {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []interface{}{
			rec.TableName,
			rec.DocumentName,
			rec.FilePath,
			rec.Found,
			joinPages(rec.PagesFound),
			rec.ConfidenceScore,
			rec.MatchDetails,
		}
		if err := f.SetSheetRow(resultsSheet, cell, &row); err != nil {
			return err
		}
	}
	f.SetColWidth(resultsSheet, "A", "B", 28)
	f.SetColWidth(resultsSheet, "C", "C", 50)
	f.SetColWidth(resultsSheet, "G", "G", 80)

	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("failed to create summary sheet: %w", err)
	}
	rows := [][]interface{}{
		{"Documents with results", summary.TotalDocumentsSearched},
		{"Tables found", summary.TotalTablesFound},
		{},
		{"Table", "Occurrences", "Documents"},
	}
	names := make([]string, 0, len(summary.TablesByType))
	for name := range summary.TablesByType {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		occ := summary.TablesByType[name]
		docs := make([]string, len(occ.FoundInDocuments))
		for i, d := range occ.FoundInDocuments {
			docs[i] = d.Document
		}
		rows = append(rows, []interface{}{name, occ.TotalOccurrences, strings.Join(docs, ", ")})
	}
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return err
		}
	}
	f.SetColWidth(summarySheet, "A", "A", 30)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func joinPages(pages []int) string {
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = fmt.Sprint(p)
	}
	return strings.Join(parts, ", ")
}
