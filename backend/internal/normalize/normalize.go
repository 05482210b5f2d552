// Package normalize holds the small set of pure, idempotent normalization
// functions shared by extraction, matching, and validation: customer SKU
// normalization and canonical unit-of-measure mapping (spec.md §3, §8).
package normalize

import (
	"strings"
)

// CanonicalUoMSet is the closed vocabulary every extractor must map into.
var CanonicalUoMSet = map[string]bool{
	"ST": true, "M": true, "CM": true, "MM": true, "KG": true, "G": true,
	"L": true, "ML": true, "KAR": true, "PAL": true, "SET": true,
}

// defaultUoMSynonyms is the built-in fallback CanonicalUoM consults after a
// tenant's own synonyms (DESIGN.md Open Question #2): the obvious
// German/English tokens a purchase order is likely to carry.
var defaultUoMSynonyms = map[string]string{
	"STK": "ST", "STÜCK": "ST", "STUECK": "ST", "PCS": "ST", "PIECE": "ST", "PIECES": "ST", "EA": "ST",
	"METER": "M", "METERS": "M", "MTR": "M",
	"KILOGRAM": "KG", "KILOGRAMM": "KG", "KGS": "KG",
	"GRAM": "G", "GRAMM": "G",
	"LITER": "L", "LITRE": "L", "LTR": "L",
	"MILLILITER": "ML",
	"KARTON": "KAR", "CARTON": "KAR", "BOX": "KAR",
	"PALETTE": "PAL", "PALLET": "PAL",
	"SATZ": "SET",
}

// CanonicalUoM maps a free-text UoM token to the canonical set, consulting
// tenant-specific synonyms first, then the defaults, then the canonical set
// itself (a document that already writes "KG" needs no mapping). Returns
// ("", false) when nothing matches — callers store null + a WARNING issue.
func CanonicalUoM(raw string, tenantSynonyms map[string]string) (string, bool) {
	token := strings.ToUpper(strings.TrimSpace(raw))
	if token == "" {
		return "", false
	}
	if canon, ok := tenantSynonyms[token]; ok {
		return canon, true
	}
	if canon, ok := defaultUoMSynonyms[token]; ok {
		return canon, true
	}
	if CanonicalUoMSet[token] {
		return token, true
	}
	return "", false
}

// CustomerSKU implements normalize_customer_sku: upper(strip([^A-Z0-9]))
// applied after trimming and collapsing whitespace. Idempotent by
// construction — re-applying it to its own output is a no-op, since the
// output already contains only [A-Z0-9].
func CustomerSKU(raw string) string {
	trimmed := strings.Join(strings.Fields(raw), " ")
	upper := strings.ToUpper(trimmed)
	var b strings.Builder
	for _, r := range upper {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
