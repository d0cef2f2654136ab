// ABOUTME: Similarity ratios on rune slices
// ABOUTME: Ratio is indel-normalized similarity; PartialRatio aligns the shorter string inside the longer

package fuzzy

import "math/bits"

// Ratio returns the indel-normalized similarity of a and b in [0, 100]:
// 100 * 2*LCS(a, b) / (len(a) + len(b)).
func Ratio(a, b string) float64 {
	return ratioRunes([]rune(a), []rune(b))
}

// PartialRatio returns the best Ratio between the shorter string and every
// equally long substring of the longer one.
func PartialRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) > len(rb) {
		ra, rb = rb, ra
	}
	if len(ra) == 0 {
		if len(rb) == 0 {
			return 100
		}
		return 0
	}
	lcs := newLCS(ra)
	best := 0.0
	for i := 0; i+len(ra) <= len(rb); i++ {
		if r := lcs.ratio(rb[i : i+len(ra)]); r > best {
			best = r
			if best == 100 {
				break
			}
		}
	}
	return best
}

func ratioRunes(a, b []rune) float64 {
	if len(a)+len(b) == 0 {
		return 100
	}
	return newLCS(a).ratio(b)
}

// lcsScorer computes longest common subsequence lengths against a fixed
// pattern. Patterns of up to 64 runes use the bit-parallel algorithm.
type lcsScorer struct {
	pattern []rune
	masks   map[rune]uint64
}

func newLCS(pattern []rune) *lcsScorer {
	s := &lcsScorer{pattern: pattern}
	if len(pattern) <= 64 {
		s.masks = make(map[rune]uint64, len(pattern))
		for i, r := range pattern {
			s.masks[r] |= 1 << uint(i)
		}
	}
	return s
}

func (s *lcsScorer) ratio(b []rune) float64 {
	total := len(s.pattern) + len(b)
	if total == 0 {
		return 100
	}
	return 200 * float64(s.length(b)) / float64(total)
}

func (s *lcsScorer) length(b []rune) int {
	m := len(s.pattern)
	if m == 0 || len(b) == 0 {
		return 0
	}
	if s.masks == nil {
		return lcsDP(s.pattern, b)
	}
	full := ^uint64(0)
	if m < 64 {
		full = 1<<uint(m) - 1
	}
	v := full
	for _, r := range b {
		u := v & s.masks[r]
		v = ((v + u) | (v - u)) & full
	}
	return m - bits.OnesCount64(v)
}

func lcsDP(a, b []rune) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
