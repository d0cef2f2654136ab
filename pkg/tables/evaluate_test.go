package tables

import (
	"math"
	"strings"
	"testing"
)

func mustDefinition(t *testing.T, strategy Strategy, n int, opts ...DefinitionOption) *TableDefinition {
	t.Helper()
	elements := make([]TextElement, n)
	for i := range elements {
		elements[i] = elem(strings.Repeat(string(rune('a'+i)), 5))
	}
	def, err := NewTableDefinition("T", elements, strategy, opts...)
	if err != nil {
		t.Fatalf("NewTableDefinition failed: %v", err)
	}
	return def
}

func resultsWith(def *TableDefinition, found []bool, rate float64) []SearchResult {
	out := make([]SearchResult, len(found))
	for i, f := range found {
		e := def.Elements()[i]
		out[i] = SearchResult{
			Element:   e,
			Found:     f,
			ErrorRate: rate,
			Score:     math.Max(0, 1-rate) * e.Weight,
		}
	}
	return out
}

func TestMinCountThreeOfFour(t *testing.T) {
	def := mustDefinition(t, MinCount, 4, WithMinElements(3))
	found, score, details := IsTableFound(def, resultsWith(def, []bool{true, true, false, true}, 0))
	if !found {
		t.Error("Expected page to qualify with 3 of 4 elements")
	}
	if score != 0.75 {
		t.Errorf("Expected score 0.75, got %v", score)
	}
	if details != "Found 3/4 elements (min: 3)" {
		t.Errorf("Unexpected details %q", details)
	}
}

func TestWeightedScoreBelowMinimum(t *testing.T) {
	def := mustDefinition(t, WeightedScore, 4, WithMinScore(0.8))
	// every element found, each scoring 0.7
	found, score, details := IsTableFound(def, resultsWith(def, []bool{true, true, true, true}, 0.3))
	if found {
		t.Error("Expected weighted score 0.7 to fall short of 0.8")
	}
	if math.Abs(score-0.7) > 1e-9 {
		t.Errorf("Expected score 0.7, got %v", score)
	}
	if details != "Weighted score: 0.700 (min: 0.800)" {
		t.Errorf("Unexpected details %q", details)
	}
}

func TestWeightedScoreUsesWeights(t *testing.T) {
	def, err := NewTableDefinition("T", []TextElement{
		{SearchText: "heavy", MaxErrors: intPtr(0), Weight: 3},
		{SearchText: "light", MaxErrors: intPtr(0), Weight: 1},
	}, WeightedScore, WithMinScore(0.7))
	if err != nil {
		t.Fatal(err)
	}
	results := []SearchResult{
		{Element: def.Elements()[0], Found: true, Score: 3},
		{Element: def.Elements()[1], Found: false, Score: 0},
	}
	found, score, _ := IsTableFound(def, results)
	if !found || score != 0.75 {
		t.Errorf("Expected 0.75 qualifying, got %v %v", found, score)
	}
}

func TestMinCountEqualsAllElementsAtFullCount(t *testing.T) {
	all := mustDefinition(t, AllElements, 4)
	minAll := mustDefinition(t, MinCount, 4, WithMinElements(4))
	for mask := 0; mask < 16; mask++ {
		flags := make([]bool, 4)
		for i := range flags {
			flags[i] = mask&(1<<i) != 0
		}
		f1, s1, _ := IsTableFound(all, resultsWith(all, flags, 0))
		f2, s2, _ := IsTableFound(minAll, resultsWith(minAll, flags, 0))
		if f1 != f2 || s1 != s2 {
			t.Errorf("mask %04b: all_elements %v/%v, min_count %v/%v", mask, f1, s1, f2, s2)
		}
	}
}

func TestMinPercentage(t *testing.T) {
	def := mustDefinition(t, MinPercentage, 5, WithMinPercentage(0.6))
	found, score, details := IsTableFound(def, resultsWith(def, []bool{true, true, true, false, false}, 0))
	if !found || score != 0.6 {
		t.Errorf("Expected 3/5 to meet 60%%, got %v %v", found, score)
	}
	if details != "Found 3/5 elements (60.0%, min: 60.0%)" {
		t.Errorf("Unexpected details %q", details)
	}
	found, _, _ = IsTableFound(def, resultsWith(def, []bool{true, true, false, false, false}, 0))
	if found {
		t.Error("Expected 2/5 to fall short of 60%")
	}
}

func TestNoResultsNeverQualify(t *testing.T) {
	def := mustDefinition(t, MinPercentage, 2, WithMinPercentage(0))
	found, score, details := IsTableFound(def, nil)
	if found || score != 0 {
		t.Errorf("Expected no qualification, got %v %v", found, score)
	}
	if details != "Found 0/2 elements" {
		t.Errorf("Unexpected details %q", details)
	}
}

func TestEvaluatePage(t *testing.T) {
	def, err := NewTableDefinition("Cash Flow", []TextElement{
		{SearchText: "cash flows", MaxErrors: intPtr(2), Weight: 2},
		{SearchText: "operating activities", MaxErrors: intPtr(0)},
	}, AllElements)
	if err != nil {
		t.Fatal(err)
	}

	text := "Statement of cahs flows: net cash from operating activities for the year"
	eval := EvaluatePage(def, 4, text)
	if len(eval.Results) != 2 {
		t.Fatalf("Expected 2 element results, got %d", len(eval.Results))
	}
	first := eval.Results[0]
	if !first.Found || first.PageNumber != 4 {
		t.Errorf("Expected fuzzy hit on page 4, got %+v", first)
	}
	want := math.Max(0, 1-first.ErrorRate) * 2
	if first.Score != want {
		t.Errorf("Expected score %v, got %v", want, first.Score)
	}
	if !eval.Found || eval.StrategyScore != 1 {
		t.Errorf("Expected page to qualify with score 1, got %v %v", eval.Found, eval.StrategyScore)
	}

	blank := EvaluatePage(def, 5, "  \n\t ")
	if len(blank.Results) != 0 || blank.Found || blank.StrategyScore != 0 {
		t.Errorf("Blank page must not be evaluated, got %+v", blank)
	}
}
