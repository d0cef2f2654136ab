// Package fuzzy finds the closest approximate occurrence of a short pattern
// in noisy text.
//
// A window of len(pattern)+margin runes slides over the text. In each
// window the substring most similar to the pattern (lengths len-2..len+3)
// becomes a candidate, scored by its edit distance to the pattern and by how
// well the pattern aligns inside the window. The best few candidates are
// retained and the top one is reported.
package fuzzy

import (
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
)

const (
	// DefaultWindowMargin is the number of runes a window adds to the
	// pattern length.
	DefaultWindowMargin = 11
	// DefaultMaxHypotheses bounds the candidates retained per search.
	DefaultMaxHypotheses = 3

	minOffset = -2
	maxOffset = 3
)

// Element is a pattern with its error tolerance. A nil bound is not
// checked; when both are set both must hold.
type Element struct {
	Text         string
	MatchCase    bool
	MaxErrors    *int
	MaxErrorRate *float64
}

// Match is the outcome of searching one element in one text.
type Match struct {
	Matched     string  // best candidate, case-folded unless MatchCase
	Errors      int     // edit distance to the pattern, -1 when no candidate
	ErrorRate   float64 // Errors / len(Matched) capped at 1, 1.0 when no candidate
	Found       bool    // every configured bound holds
	Position    int     // rune offset of the exact hit or candidate window, -1 when none
	WindowScore float64 // partial ratio of the pattern in the candidate's window
	MatchCase   bool
}

type options struct {
	margin        int
	maxHypotheses int
	log           zerolog.Logger
}

// Option tunes a search.
type Option func(*options)

// WithWindowMargin sets how many runes a window adds to the pattern length.
func WithWindowMargin(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.margin = n
		}
	}
}

// WithMaxHypotheses sets how many candidates are retained while scanning.
func WithMaxHypotheses(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxHypotheses = n
		}
	}
}

// WithLogger traces admitted hypotheses at trace level.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}

func buildOptions(opts []Option) options {
	o := options{
		margin:        DefaultWindowMargin,
		maxHypotheses: DefaultMaxHypotheses,
		log:           zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// SearchAll searches every element in text.
func SearchAll(elems []Element, text string, opts ...Option) []Match {
	o := buildOptions(opts)
	fold := cases.Fold()
	folded := ""
	if len(elems) > 0 {
		folded = fold.String(text)
	}

	out := make([]Match, len(elems))
	for i, e := range elems {
		haystack := folded
		if e.MatchCase {
			haystack = text
		}
		out[i] = search(e, haystack, fold, o)
	}
	return out
}

// Search finds the best approximate occurrence of elem in text.
func Search(elem Element, text string, opts ...Option) Match {
	return SearchAll([]Element{elem}, text, opts...)[0]
}

func search(e Element, haystack string, fold cases.Caser, o options) Match {
	pattern := e.Text
	if !e.MatchCase {
		pattern = fold.String(pattern)
	}

	if idx := strings.Index(haystack, pattern); idx >= 0 {
		return Match{
			Matched:     pattern,
			Errors:      0,
			ErrorRate:   0,
			Found:       true,
			Position:    len([]rune(haystack[:idx])),
			WindowScore: 100,
			MatchCase:   e.MatchCase,
		}
	}

	p := []rune(pattern)
	h := []rune(haystack)
	set := scan(p, h, o)

	best, ok := set.best()
	if !ok {
		return Match{Errors: -1, ErrorRate: 1.0, Position: -1, MatchCase: e.MatchCase}
	}

	// a candidate shorter than the pattern can need more edits than it has
	// runes; the rate saturates at 1
	rate := min(1, float64(best.errors)/float64(max(1, len(best.candidate))))
	found := true
	if e.MaxErrors != nil && best.errors > *e.MaxErrors {
		found = false
	}
	if e.MaxErrorRate != nil && rate > *e.MaxErrorRate {
		found = false
	}
	return Match{
		Matched:     string(best.candidate),
		Errors:      best.errors,
		ErrorRate:   rate,
		Found:       found,
		Position:    best.position,
		WindowScore: best.score,
		MatchCase:   e.MatchCase,
	}
}

// scan slides the window over h and collects the retained hypotheses.
func scan(p, h []rune, o options) *hypothesisSet {
	set := newHypothesisSet(o.maxHypotheses)
	w := len(p) + o.margin
	if len(p) == 0 || len(h) < w {
		return set
	}

	table := newRatioTable(p, h, w)
	for i := 0; i+w <= len(h); i++ {
		start, length := table.bestCandidate(i)
		if length == 0 {
			continue
		}
		candidate := h[start : start+length]
		hyp := hypothesis{
			candidate: candidate,
			errors:    levenshtein.ComputeDistance(string(p), string(candidate)),
			score:     table.windowScore(i),
			position:  i,
		}
		if set.offer(hyp) {
			o.log.Trace().
				Int("position", i).
				Int("errors", hyp.errors).
				Float64("score", hyp.score).
				Str("candidate", string(candidate)).
				Int("retained", set.len()).
				Msg("hypothesis admitted")
		}
	}
	return set
}

// ratioTable caches Ratio(pattern, h[j:j+len]) for every start j and
// every candidate length, since neighbouring windows share candidates.
type ratioTable struct {
	pattern int
	window  int
	lengths []int
	ratios  [][]float64 // [length index][start]
}

func newRatioTable(p, h []rune, window int) *ratioTable {
	t := &ratioTable{pattern: len(p), window: window}
	lcs := newLCS(p)
	for off := minOffset; off <= maxOffset; off++ {
		n := len(p) + off
		if n <= 0 || n > window {
			continue
		}
		row := make([]float64, len(h)-n+1)
		for j := range row {
			row[j] = lcs.ratio(h[j : j+n])
		}
		t.lengths = append(t.lengths, n)
		t.ratios = append(t.ratios, row)
	}
	return t
}

// bestCandidate returns the most similar substring inside the window at i.
// Shorter lengths and earlier starts win ties.
func (t *ratioTable) bestCandidate(i int) (start, length int) {
	best := -1.0
	for k, n := range t.lengths {
		row := t.ratios[k]
		for j := i; j+n <= i+t.window; j++ {
			if row[j] > best {
				best = row[j]
				start, length = j, n
			}
		}
	}
	return start, length
}

// windowScore is PartialRatio(pattern, window at i).
func (t *ratioTable) windowScore(i int) float64 {
	for k, n := range t.lengths {
		if n != t.pattern {
			continue
		}
		best := 0.0
		for _, r := range t.ratios[k][i : i+t.window-n+1] {
			if r > best {
				best = r
			}
		}
		return best
	}
	return 0
}
