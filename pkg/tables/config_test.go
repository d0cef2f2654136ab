package tables

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/viant/afs"
)

const definitionsJSON = `{
  "tables": [
    {
      "name": "Balance Sheet",
      "match_strategy": "weighted_score",
      "min_score": 0.8,
      "description": "Statement of financial position",
      "text_elements": [
        {"search_text": "Total Assets", "max_errors": 1, "weight": 2},
        {"search_text": "Total Liabilities", "max_error_rate": 0.1},
        {"search_text": "Equity"}
      ]
    },
    {
      "name": "Income Statement",
      "match_strategy": "ALL_ELEMENTS",
      "text_elements": [
        {"search_text": "Revenue", "match_case": true, "max_errors": 0}
      ]
    }
  ]
}`

func TestParseDefinitions(t *testing.T) {
	defs, err := ParseDefinitions([]byte(definitionsJSON))
	if err != nil {
		t.Fatalf("ParseDefinitions failed: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("Expected 2 definitions, got %d", len(defs))
	}

	bs := defs[0]
	if bs.Strategy() != WeightedScore || bs.MinScore() != 0.8 || bs.Description() != "Statement of financial position" {
		t.Errorf("Unexpected balance sheet definition: %s %v %q", bs.Strategy(), bs.MinScore(), bs.Description())
	}
	elements := bs.Elements()
	if elements[0].Weight != 2 || *elements[0].MaxErrors != 1 || elements[0].MaxErrorRate != nil {
		t.Errorf("Unexpected first element %+v", elements[0])
	}
	if elements[1].MaxErrors != nil || *elements[1].MaxErrorRate != 0.1 || elements[1].Weight != 1 {
		t.Errorf("Unexpected second element %+v", elements[1])
	}
	if *elements[2].MaxErrors != DefaultMaxErrors || *elements[2].MaxErrorRate != DefaultMaxErrorRate {
		t.Errorf("Expected default bounds on third element, got %+v", elements[2])
	}

	is := defs[1]
	if is.Strategy() != AllElements || !is.Elements()[0].MatchCase {
		t.Errorf("Unexpected income statement definition")
	}
}

func TestParseDefinitionsErrors(t *testing.T) {
	cases := map[string]string{
		"invalid json":       `{"tables": [`,
		"duplicate name":     `{"tables": [{"name": "A", "match_strategy": "all_elements", "text_elements": [{"search_text": "x"}]}, {"name": "A", "match_strategy": "all_elements", "text_elements": [{"search_text": "y"}]}]}`,
		"unknown strategy":   `{"tables": [{"name": "A", "match_strategy": "most", "text_elements": [{"search_text": "x"}]}]}`,
		"zero weight":        `{"tables": [{"name": "A", "match_strategy": "all_elements", "text_elements": [{"search_text": "x", "weight": 0}]}]}`,
		"too few elements":   `{"tables": [{"name": "A", "text_elements": [{"search_text": "x"}]}]}`,
		"empty search text":  `{"tables": [{"name": "A", "match_strategy": "all_elements", "text_elements": [{"search_text": ""}]}]}`,
		"no elements at all": `{"tables": [{"name": "A", "match_strategy": "all_elements"}]}`,
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseDefinitions([]byte(data))
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Errorf("Expected ConfigError, got %v", err)
			}
		})
	}
}

func TestLoadDefinitions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table_config.json")
	if err := os.WriteFile(path, []byte(definitionsJSON), 0o644); err != nil {
		t.Fatal(err)
	}

	defs, err := LoadDefinitions(context.Background(), afs.New(), path)
	if err != nil {
		t.Fatalf("LoadDefinitions failed: %v", err)
	}
	if len(defs) != 2 || defs[0].Name() != "Balance Sheet" {
		t.Errorf("Unexpected definitions %v", defs)
	}

	if _, err := LoadDefinitions(context.Background(), afs.New(), filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}
}
