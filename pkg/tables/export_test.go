package tables

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/viant/afs"
	"github.com/xuri/excelize/v2"
)

func TestExportJSONFields(t *testing.T) {
	var buf bytes.Buffer
	if err := ExportJSON(&buf, sampleResults()); err != nil {
		t.Fatalf("ExportJSON failed: %v", err)
	}

	var raw []map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &raw); err != nil {
		t.Fatalf("Export is not a JSON array: %v", err)
	}
	if len(raw) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(raw))
	}
	for _, key := range []string{"table_name", "document_name", "file_path", "found", "pages_found", "confidence_score", "match_details"} {
		if _, ok := raw[0][key]; !ok {
			t.Errorf("Expected key %q in export", key)
		}
	}
	if raw[0]["match_details"] != "Page 1: x; Page 3: y" {
		t.Errorf("Unexpected details %v", raw[0]["match_details"])
	}
	if raw[1]["match_details"] != "" {
		t.Errorf("Expected empty details, got %v", raw[1]["match_details"])
	}
}

func TestWriteAndLoadJSON(t *testing.T) {
	fs := afs.New()
	path := filepath.Join(t.TempDir(), "results.json")

	if err := WriteJSON(context.Background(), fs, path, sampleResults()); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	records, err := LoadJSON(context.Background(), fs, path)
	if err != nil {
		t.Fatalf("LoadJSON failed: %v", err)
	}
	if !reflect.DeepEqual(records, ToExportRecords(sampleResults())) {
		t.Errorf("Loaded records differ: %+v", records)
	}

	a := Consolidate(records)
	if a.UniqueDocuments != 2 || a.UniqueTables != 2 {
		t.Errorf("Unexpected analysis of loaded records: %+v", a)
	}
}

func TestExportXLSX(t *testing.T) {
	results := sampleResults()
	var buf bytes.Buffer
	if err := ExportXLSX(&buf, results, Summarize(results)); err != nil {
		t.Fatalf("ExportXLSX failed: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("Workbook unreadable: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(resultsSheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 {
		t.Fatalf("Expected header and 3 rows, got %d", len(rows))
	}
	if rows[0][0] != "Table" || rows[1][0] != "Balance Sheet" || rows[1][4] != "1, 3" {
		t.Errorf("Unexpected results rows %v", rows[:2])
	}

	summary, err := f.GetRows(summarySheet)
	if err != nil {
		t.Fatal(err)
	}
	if summary[0][1] != "2" || summary[1][1] != "3" {
		t.Errorf("Unexpected summary totals %v", summary[:2])
	}
	if summary[4][0] != "Balance Sheet" || summary[4][2] != "a, b" {
		t.Errorf("Unexpected table row %v", summary[4])
	}
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.xlsx")
	if err := WriteXLSX(context.Background(), afs.New(), path, sampleResults()); err != nil {
		t.Fatalf("WriteXLSX failed: %v", err)
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("Workbook unreadable: %v", err)
	}
	defer f.Close()
	if got := f.GetSheetList(); len(got) < 2 {
		t.Errorf("Expected results and summary sheets, got %v", got)
	}
}
