package rules

import (
	"bytes"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/orderflow/orderflow/internal/extract"
	"github.com/orderflow/orderflow/internal/normalize"
)

// PDFExtractorVersion is the versioned identifier stored on every record
// this extractor produces (spec.md §6.1).
const PDFExtractorVersion = "pdf_rule_v1"

// rowGapThreshold is the minimum vertical gap (in PDF user-space points)
// between two text rows that marks a new line region; smaller gaps are
// treated as wrapped continuations of the same line.
const rowGapThreshold = 3.0

// columnGapThreshold is the minimum horizontal gap between two glyph runs
// on the same row that marks a new column.
const columnGapThreshold = 8.0

var qtyLineRe = regexp.MustCompile(`^\s*([A-Za-z0-9\-\.\/]{2,30})\s+(.{3,80}?)\s+([0-9]+(?:[.,][0-9]+)?)\s+([A-Za-z]{1,6})\s+([0-9]+(?:[.,][0-9]+)?)\s*$`)

// ExtractPDF clusters a text-PDF's glyphs into rows by vertical gap, then
// rows into columns by horizontal gap, and finally matches each
// multi-column row against the canonical order-line shape
// (sku, description, qty, uom, unit_price).
func ExtractPDF(raw []byte) (extract.Record, error) {
	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return extract.Record{}, err
	}

	rec := extract.Record{ExtractorVersion: PDFExtractorVersion}
	var lineConfidences []extract.LineConfidence
	lineNo := 0

	for p := 1; p <= reader.NumPage(); p++ {
		page := reader.Page(p)
		if page.V.IsNull() {
			continue
		}
		rows, err := clusterRows(page)
		if err != nil {
			continue
		}
		for _, row := range rows {
			text := joinRowText(row)
			m := qtyLineRe.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			lineNo++
			lf := extract.LineFields{LineNo: lineNo}
			lc := extract.LineConfidence{LineNo: lineNo}

			sku := strings.TrimSpace(m[1])
			lf.CustomerSKURaw = &sku
			lc.CustomerSKU = 0.7

			desc := strings.TrimSpace(m[2])
			lf.ProductDescription = &desc

			if q, ok := parseDecimalToken(m[3], strings.Contains(m[3], ",")); ok {
				lf.Qty = &q
				lc.Qty = 0.75
			}
			if canon, ok := normalize.CanonicalUoM(m[4], nil); ok {
				lf.UoM = &canon
				lc.UoM = 0.75
			} else {
				rec.Warnings = append(rec.Warnings, extract.Warning{
					Code:    "UNKNOWN_UOM",
					Message: "line " + strconv.Itoa(lineNo) + ": unrecognized unit",
				})
			}
			if price, ok := parseDecimalToken(m[5], strings.Contains(m[5], ",")); ok {
				lf.UnitPrice = &price
				lc.UnitPrice = 0.7
			}

			rec.Lines = append(rec.Lines, lf)
			lineConfidences = append(lineConfidences, lc)
		}
	}

	rec.Confidence.Lines = lineConfidences
	overall := 0.0
	if len(lineConfidences) > 0 {
		sum := 0.0
		for _, lc := range lineConfidences {
			sum += lc.LineScore()
		}
		overall = sum / float64(len(lineConfidences))
	}
	rec.Confidence.Overall = overall
	return rec, nil
}

type glyphRun struct {
	x, y float64
	text string
}

// clusterRows groups a page's text glyphs into rows using vertical-gap
// clustering: consecutive glyphs whose baseline Y differs by less than
// rowGapThreshold belong to the same row.
func clusterRows(page pdf.Page) ([][]glyphRun, error) {
	texts := page.Content().Text
	if len(texts) == 0 {
		return nil, nil
	}
	sort.SliceStable(texts, func(i, j int) bool {
		if texts[i].Y != texts[j].Y {
			return texts[i].Y > texts[j].Y // top of page first (PDF Y grows upward)
		}
		return texts[i].X < texts[j].X
	})

	var rows [][]glyphRun
	var current []glyphRun
	lastY := texts[0].Y

	for _, t := range texts {
		if len(current) > 0 && lastY-t.Y > rowGapThreshold {
			rows = append(rows, current)
			current = nil
		}
		current = append(current, glyphRun{x: t.X, y: t.Y, text: t.S})
		lastY = t.Y
	}
	if len(current) > 0 {
		rows = append(rows, current)
	}
	return rows, nil
}

// joinRowText applies the column-alignment heuristic: glyph runs on the
// same row separated by more than columnGapThreshold are distinct columns
// and get a single space between them; tighter runs are the same column's
// wrapped characters and are concatenated directly.
func joinRowText(row []glyphRun) string {
	sort.Slice(row, func(i, j int) bool { return row[i].x < row[j].x })
	var sb strings.Builder
	lastEndX := -1.0
	for _, g := range row {
		if lastEndX >= 0 && g.x-lastEndX > columnGapThreshold {
			sb.WriteString(" ")
		}
		sb.WriteString(g.text)
		lastEndX = g.x + float64(len(g.text))*4 // approximate glyph width advance
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}
