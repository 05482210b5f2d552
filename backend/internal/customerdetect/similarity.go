package customerdetect

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// NameSimilarity scores how close two company names are, normalized to
// [0,1]. Lowercased and stripped of the same legal-form tokens S5 extraction
// looks for, so "Acme GmbH" and "ACME" compare cleanly.
func NameSimilarity(a, b string) float64 {
	na, nb := normalizeCompanyName(a), normalizeCompanyName(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	dist := levenshtein.ComputeDistance(na, nb)
	maxLen := len(na)
	if len(nb) > maxLen {
		maxLen = len(nb)
	}
	if maxLen == 0 {
		return 0
	}
	sim := 1 - float64(dist)/float64(maxLen)
	if sim < 0 {
		sim = 0
	}
	return sim
}

func normalizeCompanyName(name string) string {
	lower := strings.ToLower(name)
	for _, form := range legalForms {
		lower = strings.ReplaceAll(lower, strings.ToLower(form), "")
	}
	lower = strings.Join(strings.Fields(lower), " ")
	return strings.TrimSpace(lower)
}
