package matching

import "strings"

// trigramSet returns the set of overlapping 3-character shingles of s, the
// same primitive Postgres's pg_trgm extension is built on. Hand-implemented
// because the retrieved corpus has no string-similarity library — DESIGN.md
// records the exhaustive search that justified this.
func trigramSet(s string) map[string]bool {
	padded := "  " + strings.ToLower(s) + " "
	set := make(map[string]bool)
	for i := 0; i+3 <= len(padded); i++ {
		set[padded[i:i+3]] = true
	}
	return set
}

// TrigramSimilarity is the Jaccard index over two strings' trigram sets,
// in [0,1]. An empty or all-blank string compares as dissimilar (0) to
// anything, including another empty string; it never divides by zero.
func TrigramSimilarity(a, b string) float64 {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return 0
	}
	setA, setB := trigramSet(a), trigramSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	intersection := 0
	for tri := range setA {
		if setB[tri] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
