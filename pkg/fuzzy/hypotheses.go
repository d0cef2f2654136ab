// ABOUTME: Fixed-capacity ranked set of match hypotheses
// ABOUTME: Ordered by errors ascending, window score descending, then arrival

package fuzzy

import "sort"

type hypothesis struct {
	candidate []rune
	errors    int
	score     float64
	position  int
}

// before reports whether h ranks ahead of o. Equal hypotheses keep arrival
// order, so the earliest window wins ties.
func (h hypothesis) before(o hypothesis) bool {
	if h.errors != o.errors {
		return h.errors < o.errors
	}
	return h.score > o.score
}

// hypothesisSet keeps the best hypotheses seen so far, sorted.
type hypothesisSet struct {
	items []hypothesis
	limit int
}

func newHypothesisSet(limit int) *hypothesisSet {
	return &hypothesisSet{items: make([]hypothesis, 0, limit+1), limit: limit}
}

// offer admits h when there is room or when it ranks strictly ahead of the
// current worst entry.
func (s *hypothesisSet) offer(h hypothesis) bool {
	if len(s.items) >= s.limit && !h.before(s.items[len(s.items)-1]) {
		return false
	}
	// after every entry that h does not rank ahead of
	i := sort.Search(len(s.items), func(i int) bool { return h.before(s.items[i]) })
	s.items = append(s.items, hypothesis{})
	copy(s.items[i+1:], s.items[i:])
	s.items[i] = h
	if len(s.items) > s.limit {
		s.items = s.items[:s.limit]
	}
	return true
}

func (s *hypothesisSet) best() (hypothesis, bool) {
	if len(s.items) == 0 {
		return hypothesis{}, false
	}
	return s.items[0], true
}

func (s *hypothesisSet) len() int {
	return len(s.items)
}
