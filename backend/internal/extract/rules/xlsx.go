package rules

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/orderflow/orderflow/internal/extract"
	"github.com/orderflow/orderflow/internal/normalize"
)

// XLSXExtractorVersion is the versioned identifier stored on every record
// this extractor produces (spec.md §6.1).
const XLSXExtractorVersion = "xlsx_rule_v1"

// ExtractXLSX parses the first sheet of a workbook into a canonical Record.
// Header detection per spec.md §4.5: the first row with at least 3
// non-empty string cells, where the following row carries no embedded
// formula results (i.e. the next row is plain data, not another heading).
func ExtractXLSX(raw []byte, tenantSynonyms map[string]string) (extract.Record, error) {
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return extract.Record{}, fmt.Errorf("xlsx: open: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return extract.Record{}, fmt.Errorf("xlsx: no sheets")
	}
	sheet := sheets[0]

	rows, err := f.GetRows(sheet)
	if err != nil {
		return extract.Record{}, fmt.Errorf("xlsx: read rows: %w", err)
	}

	headerRowIdx, header := detectXLSXHeader(f, sheet, rows)
	if header == nil {
		return extract.Record{}, fmt.Errorf("xlsx: no header row found")
	}

	fieldIdx := map[string]int{}
	for i, col := range header {
		token := strings.ToUpper(strings.TrimSpace(col))
		if field, ok := tenantSynonyms[token]; ok {
			fieldIdx[field] = i
			continue
		}
		if field, ok := csvColumnSynonyms[token]; ok {
			fieldIdx[field] = i
		}
	}

	rec := extract.Record{ExtractorVersion: XLSXExtractorVersion}
	var lineConfidences []extract.LineConfidence

	lineNo := 0
	for _, row := range rows[headerRowIdx+1:] {
		if isBlankRow(row) {
			continue
		}
		lineNo++
		lf := extract.LineFields{LineNo: lineNo}
		lc := extract.LineConfidence{LineNo: lineNo}

		get := func(field string) (string, bool) {
			idx, ok := fieldIdx[field]
			if !ok || idx >= len(row) {
				return "", false
			}
			v := strings.TrimSpace(row[idx])
			return v, v != ""
		}

		if v, ok := get("sku"); ok {
			lf.CustomerSKURaw = &v
			lc.CustomerSKU = 0.9
		}
		if v, ok := get("description"); ok {
			lf.ProductDescription = &v
		}
		if v, ok := get("qty"); ok {
			if q, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", "."), 64); err == nil {
				lf.Qty = &q
				lc.Qty = 0.9
			}
		}
		if v, ok := get("uom"); ok {
			if canon, ok := normalize.CanonicalUoM(v, nil); ok {
				lf.UoM = &canon
				lc.UoM = 0.9
			} else {
				rec.Warnings = append(rec.Warnings, extract.Warning{
					Code:    "UNKNOWN_UOM",
					Message: fmt.Sprintf("line %d: unrecognized unit %q", lineNo, v),
				})
			}
		}
		if v, ok := get("unit_price"); ok {
			if p, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", "."), 64); err == nil {
				lf.UnitPrice = &p
				lc.UnitPrice = 0.9
			}
		}
		if v, ok := get("currency"); ok {
			v = strings.ToUpper(v)
			lf.Currency = &v
		}
		if v, ok := get("requested_delivery_date"); ok {
			lf.RequestedDeliveryDate = &v
		}

		rec.Lines = append(rec.Lines, lf)
		lineConfidences = append(lineConfidences, lc)
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

// detectXLSXHeader scans from the top for the first row with >= 3
// non-empty string cells whose following row contains no formula (i.e. the
// row beneath looks like data, not a continuation of the heading block).
func detectXLSXHeader(f *excelize.File, sheet string, rows [][]string) (int, []string) {
	for i, row := range rows {
		if countNonEmpty(row) < 3 {
			continue
		}
		if i+1 < len(rows) && rowHasFormula(f, sheet, i+1, len(rows[i+1])) {
			continue
		}
		return i, row
	}
	return -1, nil
}

func countNonEmpty(row []string) int {
	n := 0
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			n++
		}
	}
	return n
}

func rowHasFormula(f *excelize.File, sheet string, rowIdx, cols int) bool {
	for col := 0; col < cols; col++ {
		cellName, err := excelize.CoordinatesToCellName(col+1, rowIdx+1)
		if err != nil {
			continue
		}
		if formula, _ := f.GetCellFormula(sheet, cellName); formula != "" {
			return true
		}
	}
	return false
}

func isBlankRow(row []string) bool {
	return countNonEmpty(row) == 0
}
