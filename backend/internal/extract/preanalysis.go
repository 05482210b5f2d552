package extract

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/ledongthuc/pdf"
)

// expectedCharsPerPage is the baseline a fully text-native page is assumed to
// carry; text_coverage_ratio compares actual extracted characters against
// this baseline times page count. A scanned page yields far fewer.
const expectedCharsPerPage = 1800

// PreAnalysis is the C4 sub-operation the router's trigger rule (§4.4) reads
// from: page/char counts and a layout fingerprint computed once per
// Document, before any extractor runs.
type PreAnalysis struct {
	PageCount         int
	TextCharsTotal    int
	TextCoverageRatio float64
	RawText           string
	LayoutFingerprint string
}

// PreAnalyzePDF opens a PDF's raw bytes, extracts the text layer page by
// page via ledongthuc/pdf, and computes the coverage ratio the router's
// trigger rule consults (spec.md §4.4: "text_coverage_ratio < 0.15 OR
// text_chars_total < 500" routes to vision).
func PreAnalyzePDF(raw []byte) (PreAnalysis, error) {
	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return PreAnalysis{}, err
	}

	pageCount := reader.NumPage()
	var sb strings.Builder
	for i := 1; i <= pageCount; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	rawText := sb.String()
	charsTotal := len([]rune(rawText))
	expected := expectedCharsPerPage * pageCount
	ratio := 0.0
	if expected > 0 {
		ratio = float64(charsTotal) / float64(expected)
		if ratio > 1 {
			ratio = 1
		}
	}

	return PreAnalysis{
		PageCount:         pageCount,
		TextCharsTotal:    charsTotal,
		TextCoverageRatio: ratio,
		RawText:           rawText,
		LayoutFingerprint: LayoutFingerprint(rawText),
	}, nil
}

// LayoutFingerprint computes the stable grouping id used for few-shot
// selection (§4.6: "same tenant AND same layout fingerprint"): SHA-256 over
// normalized (whitespace-collapsed) text, per the Glossary's first option.
func LayoutFingerprint(text string) string {
	normalized := strings.Join(strings.Fields(text), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
