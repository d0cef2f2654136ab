package tables

import (
	"errors"
	"math"
	"testing"
)

func intPtr(n int) *int           { return &n }
func floatPtr(f float64) *float64 { return &f }

func elem(text string) TextElement {
	return TextElement{SearchText: text, MaxErrors: intPtr(1)}
}

func TestNewTableDefinitionDefaults(t *testing.T) {
	def, err := NewTableDefinition("Balance Sheet", []TextElement{
		elem("total assets"), elem("total liabilities"), elem("equity"),
	}, "")
	if err != nil {
		t.Fatalf("NewTableDefinition failed: %v", err)
	}
	if def.Strategy() != MinCount {
		t.Errorf("Expected default strategy min_count, got %s", def.Strategy())
	}
	if def.MinElements() != 3 || def.MinPercentage() != 0.6 || def.MinScore() != 0.7 {
		t.Errorf("Unexpected default thresholds: %d %v %v", def.MinElements(), def.MinPercentage(), def.MinScore())
	}
	for _, e := range def.Elements() {
		if e.Weight != 1.0 {
			t.Errorf("Expected default weight 1.0, got %v", e.Weight)
		}
	}
}

func TestTableDefinitionIsImmutable(t *testing.T) {
	elements := []TextElement{elem("revenue")}
	def, err := NewTableDefinition("Income", elements, AllElements)
	if err != nil {
		t.Fatalf("NewTableDefinition failed: %v", err)
	}

	elements[0].SearchText = "changed"
	*elements[0].MaxErrors = 9
	got := def.Elements()
	if got[0].SearchText != "revenue" || *got[0].MaxErrors != 1 {
		t.Errorf("Definition changed through caller's slice: %+v", got[0])
	}

	got[0].SearchText = "changed again"
	if def.Elements()[0].SearchText != "revenue" {
		t.Error("Definition changed through Elements() copy")
	}
}

func TestNewTableDefinitionErrors(t *testing.T) {
	cases := []struct {
		name     string
		table    string
		elements []TextElement
		strategy Strategy
		opts     []DefinitionOption
		field    string
	}{
		{"empty name", "", []TextElement{elem("x")}, MinCount, []DefinitionOption{WithMinElements(1)}, "name"},
		{"no elements", "T", nil, AllElements, nil, "text_elements"},
		{"min elements above count", "T", []TextElement{elem("a"), elem("b")}, MinCount, nil, "min_elements"},
		{"min elements zero", "T", []TextElement{elem("a")}, AllElements, []DefinitionOption{WithMinElements(0)}, "min_elements"},
		{"blank search text", "T", []TextElement{{SearchText: "  ", MaxErrors: intPtr(1)}}, AllElements, nil, "text_elements[0].search_text"},
		{"no bounds", "T", []TextElement{elem("a"), {SearchText: "b"}}, AllElements, nil, "text_elements[1].max_errors"},
		{"negative max errors", "T", []TextElement{{SearchText: "a", MaxErrors: intPtr(-1)}}, AllElements, nil, "text_elements[0].max_errors"},
		{"rate above one", "T", []TextElement{{SearchText: "a", MaxErrorRate: floatPtr(1.5)}}, AllElements, nil, "text_elements[0].max_error_rate"},
		{"negative weight", "T", []TextElement{{SearchText: "a", MaxErrors: intPtr(1), Weight: -2}}, AllElements, nil, "text_elements[0].weight"},
		{"unknown strategy", "T", []TextElement{elem("a")}, Strategy("majority"), nil, "match_strategy"},
		{"percentage out of range", "T", []TextElement{elem("a")}, MinPercentage, []DefinitionOption{WithMinPercentage(1.2)}, "min_percentage"},
		{"score out of range", "T", []TextElement{elem("a")}, WeightedScore, []DefinitionOption{WithMinScore(-0.1)}, "min_score"},
		{"rate NaN", "T", []TextElement{{SearchText: "a", MaxErrorRate: floatPtr(math.NaN())}}, AllElements, nil, "text_elements[0].max_error_rate"},
		{"weight NaN", "T", []TextElement{{SearchText: "a", MaxErrors: intPtr(1), Weight: math.NaN()}}, AllElements, nil, "text_elements[0].weight"},
		{"weight infinite", "T", []TextElement{{SearchText: "a", MaxErrors: intPtr(1), Weight: math.Inf(1)}}, AllElements, nil, "text_elements[0].weight"},
		{"percentage NaN", "T", []TextElement{elem("a")}, MinPercentage, []DefinitionOption{WithMinPercentage(math.NaN())}, "min_percentage"},
		{"score NaN", "T", []TextElement{elem("a")}, WeightedScore, []DefinitionOption{WithMinScore(math.NaN())}, "min_score"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewTableDefinition(tc.table, tc.elements, tc.strategy, tc.opts...)
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("Expected ConfigError, got %v", err)
			}
			if ce.Field != tc.field {
				t.Errorf("Expected field %q, got %q (%v)", tc.field, ce.Field, err)
			}
		})
	}
}

func TestMinElementsOnlyBindsMinCount(t *testing.T) {
	// the default of 3 exceeds one element but only min_count checks it
	if _, err := NewTableDefinition("T", []TextElement{elem("a")}, AllElements); err != nil {
		t.Errorf("Expected all_elements to accept default min_elements, got %v", err)
	}
}

func TestParseStrategy(t *testing.T) {
	for _, s := range []string{"all_elements", "MIN_COUNT", " min_percentage ", "weighted_score"} {
		if _, ok := ParseStrategy(s); !ok {
			t.Errorf("Expected %q to parse", s)
		}
	}
	if _, ok := ParseStrategy("majority"); ok {
		t.Error("Expected unknown strategy to fail")
	}
}
