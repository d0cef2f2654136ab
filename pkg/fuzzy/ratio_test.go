package fuzzy

import (
	"math"
	"math/rand"
	"testing"
)

func TestRatio(t *testing.T) {
	cases := []struct {
		a, b string
		want float64
	}{
		{"book", "boak", 75},
		{"book", "book", 100},
		{"", "", 100},
		{"abc", "", 0},
		{"abcd", "wxyz", 0},
		{"balance", "balancesheet", 200 * 7.0 / 19.0},
	}
	for _, tc := range cases {
		if got := Ratio(tc.a, tc.b); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("Ratio(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestPartialRatio(t *testing.T) {
	if got := PartialRatio("abc", "xxabcxx"); got != 100 {
		t.Errorf("Expected 100 for contained string, got %v", got)
	}
	if got := PartialRatio("xxabcxx", "abc"); got != 100 {
		t.Errorf("Expected argument order not to matter, got %v", got)
	}
	if got := PartialRatio("book", "the boak was"); got != 75 {
		t.Errorf("Expected 75, got %v", got)
	}
	if got := PartialRatio("", "abc"); got != 0 {
		t.Errorf("Expected 0 for empty pattern, got %v", got)
	}
}

func TestBitParallelLCSMatchesDP(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	alphabet := []rune("abcde ")
	randomRunes := func(n int) []rune {
		out := make([]rune, n)
		for i := range out {
			out[i] = alphabet[rng.Intn(len(alphabet))]
		}
		return out
	}
	for i := 0; i < 500; i++ {
		a := randomRunes(1 + rng.Intn(64))
		b := randomRunes(rng.Intn(80))
		got := newLCS(a).length(b)
		want := lcsDP(a, b)
		if got != want {
			t.Fatalf("LCS(%q, %q): bit-parallel %d, DP %d", string(a), string(b), got, want)
		}
	}
}

func TestLongPatternUsesDP(t *testing.T) {
	long := []rune("consolidated statement of changes in shareholders equity for the year")
	if len(long) <= 64 {
		t.Fatalf("Pattern must exceed 64 runes, got %d", len(long))
	}
	s := newLCS(long)
	if s.masks != nil {
		t.Error("Expected DP fallback for long pattern")
	}
	if got := s.length(long); got != len(long) {
		t.Errorf("Expected LCS with itself to be %d, got %d", len(long), got)
	}
}
