// ABOUTME: Per-page table decision
// ABOUTME: Runs every element of a definition on a page and applies the strategy

package tables

import (
	"fmt"
	"strings"

	"github.com/nainya/pagefinder/pkg/fuzzy"
)

// SearchResult is the outcome of one element on one page. Score is
// max(0, 1-ErrorRate) * Weight whether or not the element was found.
type SearchResult struct {
	Element     TextElement
	PageNumber  int
	Found       bool
	MatchedText string
	Errors      int
	ErrorRate   float64
	Score       float64
	Position    int
}

// PageEvaluation is a definition's verdict on one page. StrategyScore is
// the page_strategy_score; it is not the document confidence.
type PageEvaluation struct {
	PageNumber    int
	Results       []SearchResult
	Found         bool
	StrategyScore float64
	Details       string
}

// EvaluatePage matches every element of def against text. A blank page
// evaluates no elements and never qualifies.
func EvaluatePage(def *TableDefinition, page int, text string, opts ...fuzzy.Option) PageEvaluation {
	eval := PageEvaluation{PageNumber: page}
	if strings.TrimSpace(text) != "" {
		elems := make([]fuzzy.Element, len(def.elements))
		for i, e := range def.elements {
			elems[i] = e.matcher()
		}
		matches := fuzzy.SearchAll(elems, text, opts...)
		eval.Results = make([]SearchResult, len(matches))
		for i, m := range matches {
			eval.Results[i] = newSearchResult(def.elements[i], page, m)
		}
	}
	eval.Found, eval.StrategyScore, eval.Details = IsTableFound(def, eval.Results)
	return eval
}

func newSearchResult(e TextElement, page int, m fuzzy.Match) SearchResult {
	return SearchResult{
		Element:     e.clone(),
		PageNumber:  page,
		Found:       m.Found,
		MatchedText: m.Matched,
		Errors:      m.Errors,
		ErrorRate:   m.ErrorRate,
		Score:       max(0, 1-m.ErrorRate) * e.Weight,
		Position:    m.Position,
	}
}

// IsTableFound applies def's strategy to one page's element results and
// returns the verdict, the page strategy score and a readable trace.
func IsTableFound(def *TableDefinition, results []SearchResult) (bool, float64, string) {
	total := def.NumElements()
	if len(results) == 0 {
		return false, 0, fmt.Sprintf("Found 0/%d elements", total)
	}

	found := 0
	for _, r := range results {
		if r.Found {
			found++
		}
	}
	n := len(results)
	fraction := float64(found) / float64(n)

	switch def.strategy {
	case AllElements:
		return found == n, fraction, fmt.Sprintf("Found %d/%d elements", found, n)

	case MinCount:
		return found >= def.minElements, fraction,
			fmt.Sprintf("Found %d/%d elements (min: %d)", found, n, def.minElements)

	case MinPercentage:
		return fraction >= def.minPercentage, fraction,
			fmt.Sprintf("Found %d/%d elements (%.1f%%, min: %.1f%%)", found, n, fraction*100, def.minPercentage*100)

	case WeightedScore:
		var sum, weights float64
		for _, r := range results {
			sum += r.Score
			weights += r.Element.Weight
		}
		score := 0.0
		if weights > 0 {
			score = sum / weights
		}
		return score >= def.minScore, score,
			fmt.Sprintf("Weighted score: %.3f (min: %.3f)", score, def.minScore)
	}
	return false, 0, fmt.Sprintf("unknown strategy %q", def.strategy)
}
