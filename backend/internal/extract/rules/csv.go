// Package rules implements C5: the deterministic CSV/XLSX/text-PDF
// extractors that produce a canonical extract.Record without ever calling
// an LLM.
package rules

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/orderflow/orderflow/internal/extract"
	"github.com/orderflow/orderflow/internal/normalize"
)

// CSVExtractorVersion is the versioned identifier stored on every record
// this extractor produces (spec.md §6.1).
const CSVExtractorVersion = "csv_rule_v1"

var csvDelimiters = []rune{',', ';', '\t'}

// csvColumnSynonyms maps closed-domain header tokens to canonical field
// names. A per-tenant synonym table is consulted first by ExtractCSV's
// caller-supplied tenantSynonyms; this is the fallback.
var csvColumnSynonyms = map[string]string{
	"ARTIKELNUMMER": "sku", "ARTIKEL-NR": "sku", "SKU": "sku", "ARTIKEL": "sku", "ITEMNO": "sku", "ITEM NO": "sku",
	"BESCHREIBUNG": "description", "DESCRIPTION": "description", "ARTIKELBEZEICHNUNG": "description", "BEZEICHNUNG": "description",
	"MENGE": "qty", "QTY": "qty", "QUANTITY": "qty", "ANZAHL": "qty",
	"EINHEIT": "uom", "UOM": "uom", "UNIT": "uom", "ME": "uom",
	"PREIS": "unit_price", "PRICE": "unit_price", "UNIT PRICE": "unit_price", "EINZELPREIS": "unit_price", "STUECKPREIS": "unit_price",
	"WAEHRUNG": "currency", "CURRENCY": "currency", "WÄHRUNG": "currency",
	"LIEFERDATUM": "requested_delivery_date", "DELIVERY DATE": "requested_delivery_date", "LIEFERTERMIN": "requested_delivery_date",
}

// ExtractCSV parses raw CSV bytes into a canonical Record. tenantSynonyms
// maps uppercased header tokens to the same canonical field names as
// csvColumnSynonyms and is consulted first.
func ExtractCSV(raw []byte, tenantSynonyms map[string]string) (extract.Record, error) {
	lines, err := splitCSVLines(raw)
	if err != nil {
		return extract.Record{}, err
	}
	if len(lines) == 0 {
		return extract.Record{}, fmt.Errorf("csv: empty input")
	}

	delim := detectDelimiter(lines[0])
	header := splitCSVRow(lines[0], delim)
	if len(header) == 0 {
		return extract.Record{}, fmt.Errorf("csv: missing header row")
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

	decimalComma := detectDecimalComma(lines[1:], delim, fieldIdx["qty"], fieldIdx["unit_price"])

	rec := extract.Record{ExtractorVersion: CSVExtractorVersion}
	var lineConfidences []extract.LineConfidence

	lineNo := 0
	for _, row := range lines[1:] {
		if strings.TrimSpace(row) == "" {
			continue
		}
		cols := splitCSVRow(row, delim)
		lineNo++

		lf := extract.LineFields{LineNo: lineNo}
		lc := extract.LineConfidence{LineNo: lineNo}

		if idx, ok := fieldIdx["sku"]; ok && idx < len(cols) {
			v := strings.TrimSpace(cols[idx])
			if v != "" {
				lf.CustomerSKURaw = &v
				lc.CustomerSKU = 0.9
			}
		}
		if idx, ok := fieldIdx["description"]; ok && idx < len(cols) {
			v := strings.TrimSpace(cols[idx])
			if v != "" {
				lf.ProductDescription = &v
			}
		}
		if idx, ok := fieldIdx["qty"]; ok && idx < len(cols) {
			if q, ok := parseDecimalToken(cols[idx], decimalComma); ok {
				lf.Qty = &q
				lc.Qty = 0.9
			}
		}
		if idx, ok := fieldIdx["uom"]; ok && idx < len(cols) {
			raw := strings.TrimSpace(cols[idx])
			if canon, ok := normalize.CanonicalUoM(raw, nil); ok {
				lf.UoM = &canon
				lc.UoM = 0.9
			} else if raw != "" {
				rec.Warnings = append(rec.Warnings, extract.Warning{
					Code:    "UNKNOWN_UOM",
					Message: fmt.Sprintf("line %d: unrecognized unit %q", lineNo, raw),
				})
			}
		}
		if idx, ok := fieldIdx["unit_price"]; ok && idx < len(cols) {
			if p, ok := parseDecimalToken(cols[idx], decimalComma); ok {
				lf.UnitPrice = &p
				lc.UnitPrice = 0.9
			}
		}
		if idx, ok := fieldIdx["currency"]; ok && idx < len(cols) {
			v := strings.ToUpper(strings.TrimSpace(cols[idx]))
			if v != "" {
				lf.Currency = &v
			}
		}
		if idx, ok := fieldIdx["requested_delivery_date"]; ok && idx < len(cols) {
			v := strings.TrimSpace(cols[idx])
			if v != "" {
				lf.RequestedDeliveryDate = &v
			}
		}

		rec.Lines = append(rec.Lines, lf)
		lineConfidences = append(lineConfidences, lc)
	}

	rec.Confidence.Lines = lineConfidences
	rec.Confidence.Order = extract.OrderConfidence{}
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

// splitCSVLines splits on \n, tolerating \r\n, and drops a trailing blank.
func splitCSVLines(raw []byte) ([]string, error) {
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// detectDelimiter picks whichever of {,;\t} splits the header row into the
// most columns — a stand-in for header-row entropy: the delimiter that
// actually present in the document carries the most information (highest
// column count), ties broken by fixed preference order.
func detectDelimiter(header string) rune {
	best := ','
	bestCount := -1
	for _, d := range csvDelimiters {
		count := strings.Count(header, string(d))
		if count > bestCount {
			bestCount = count
			best = d
		}
	}
	return best
}

func splitCSVRow(row string, delim rune) []string {
	cols := strings.Split(row, string(delim))
	for i, c := range cols {
		c = strings.TrimSpace(c)
		if len(c) >= 2 && c[0] == '"' && c[len(c)-1] == '"' {
			c = strings.TrimSuffix(strings.TrimPrefix(c, "\""), "\"")
		}
		cols[i] = c
	}
	return cols
}

// detectDecimalComma decides whether numeric columns use a comma decimal
// separator by sampling the qty/unit_price columns: a comma followed by
// exactly 1-2 digits at the end of the token, with no other comma, reads as
// a decimal mark rather than a thousands separator.
func detectDecimalComma(dataRows []string, delim rune, qtyIdx, priceIdx int) bool {
	commaVotes, dotVotes := 0, 0
	sample := func(token string) {
		token = strings.TrimSpace(token)
		if token == "" {
			return
		}
		if looksLikeDecimalComma(token) {
			commaVotes++
		} else if strings.Contains(token, ".") {
			dotVotes++
		}
	}
	for i, row := range dataRows {
		if i > 50 {
			break
		}
		cols := splitCSVRow(row, delim)
		if qtyIdx >= 0 && qtyIdx < len(cols) {
			sample(cols[qtyIdx])
		}
		if priceIdx >= 0 && priceIdx < len(cols) {
			sample(cols[priceIdx])
		}
	}
	return commaVotes > dotVotes
}

func looksLikeDecimalComma(token string) bool {
	idx := strings.LastIndex(token, ",")
	if idx == -1 {
		return false
	}
	frac := token[idx+1:]
	if len(frac) == 0 || len(frac) > 2 {
		return false
	}
	for _, r := range frac {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return strings.Count(token, ",") == 1
}

// parseDecimalToken parses a numeric token under the detected decimal
// convention: when decimalComma is true, '.' is a thousands separator and
// ',' is decimal; otherwise the reverse.
func parseDecimalToken(token string, decimalComma bool) (float64, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, false
	}
	if decimalComma {
		token = strings.ReplaceAll(token, ".", "")
		token = strings.ReplaceAll(token, ",", ".")
	} else {
		token = strings.ReplaceAll(token, ",", "")
	}
	v, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
