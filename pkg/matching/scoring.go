package matching

import (
	"strings"
)

// Scorer provides the string comparison primitives used by the matchers.
// All methods are pure and CPU-only.
type Scorer struct{}

// NewScorer creates a new Scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Levenshtein returns a similarity score between 0.0 and 1.0 based on edit
// distance normalized by the longer string's length.
func (s *Scorer) Levenshtein(a, b string) float64 {
	if a == b {
		return 1.0
	}
	maxLen := max(len(a), len(b))
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(s.LevenshteinDistance(a, b))/float64(maxLen)
}

// LevenshteinDistance calculates the edit distance between two strings
func (s *Scorer) LevenshteinDistance(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	row := make([]int, len(b)+1)
	prevRow := make([]int, len(b)+1)

	for j := 0; j <= len(b); j++ {
		prevRow[j] = j
	}

	for i := 1; i <= len(a); i++ {
		row[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			row[j] = min(min(row[j-1]+1, prevRow[j]+1), prevRow[j-1]+cost)
		}
		row, prevRow = prevRow, row
	}

	return prevRow[len(b)]
}

// PartSimilarity scores two canonical part numbers. When one contains the
// other the score short-circuits to the length ratio; otherwise it falls back
// to normalized edit distance. The second return reports the substring case.
func (s *Scorer) PartSimilarity(a, b string) (float64, bool) {
	if a == "" || b == "" {
		return 0.0, false
	}
	if a == b {
		return 1.0, false
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		shorter, longer := len(a), len(b)
		if shorter > longer {
			shorter, longer = longer, shorter
		}
		return float64(shorter) / float64(longer), true
	}
	return s.Levenshtein(a, b), false
}

// TrigramSimilarity computes Jaccard similarity over padded character
// trigrams. Close enough to pg_trgm's similarity() to serve as the
// in-process fallback for the description guard.
func (s *Scorer) TrigramSimilarity(a, b string) float64 {
	ta := trigramSet(a)
	tb := trigramSet(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 1.0
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0.0
	}

	intersection := 0
	for g := range ta {
		if _, ok := tb[g]; ok {
			intersection++
		}
	}
	union := len(ta) + len(tb) - intersection
	return float64(intersection) / float64(union)
}

func trigramSet(s string) map[string]struct{} {
	m := make(map[string]struct{})
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return m
	}
	padded := "  " + s + " "
	r := []rune(padded)
	for i := 0; i+3 <= len(r); i++ {
		m[string(r[i:i+3])] = struct{}{}
	}
	return m
}

// TokenSetSimilarity computes Jaccard similarity over whitespace tokens
func (s *Scorer) TokenSetSimilarity(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 1.0
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0.0
	}

	intersection := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			intersection++
		}
	}
	union := len(ta) + len(tb) - intersection
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	m := make(map[string]struct{})
	for _, t := range strings.Fields(strings.ToLower(s)) {
		m[t] = struct{}{}
	}
	return m
}

// DescriptionSimilarity is the score used by the exact matcher's false
// positive guard: the best of trigram and token-set similarity, so short
// descriptions with reordered words still score well.
func (s *Scorer) DescriptionSimilarity(a, b string) float64 {
	tri := s.TrigramSimilarity(a, b)
	tok := s.TokenSetSimilarity(a, b)
	if tok > tri {
		return tok
	}
	return tri
}

// SharedSignificantWords counts tokens longer than minLen that appear in both
// strings
func (s *Scorer) SharedSignificantWords(a, b string, minLen int) int {
	ta := tokenSet(a)
	tb := tokenSet(b)
	shared := 0
	for t := range ta {
		if len(t) <= minLen {
			continue
		}
		if _, ok := tb[t]; ok {
			shared++
		}
	}
	return shared
}

// DescriptionBonus awards up to maxBonus for shared significant words with
// diminishing returns per extra word.
func (s *Scorer) DescriptionBonus(shared int, maxBonus float64) float64 {
	if shared <= 0 {
		return 0.0
	}
	bonus := 0.0
	increment := maxBonus / 2
	for i := 0; i < shared; i++ {
		bonus += increment
		increment /= 2
	}
	if bonus > maxBonus {
		bonus = maxBonus
	}
	return bonus
}
