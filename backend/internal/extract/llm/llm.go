// Package llm implements C6: versioned prompt templates and the
// parse-and-guard pipeline that turns a raw LLM completion into a trusted
// canonical extract.Record, or rejects it.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/orderflow/orderflow/internal/aicache"
	"github.com/orderflow/orderflow/internal/coreerr"
	"github.com/orderflow/orderflow/internal/extract"
	"github.com/orderflow/orderflow/internal/normalize"
	"github.com/orderflow/orderflow/internal/providers"
)

// Prompt template identifiers, immutable and versioned per spec.md §4.6.
const (
	TemplatePDFExtractText   = "pdf_extract_text_v1"
	TemplatePDFExtractVision = "pdf_extract_vision_v1"
	TemplateJSONRepair       = "json_repair_v1"
)

// DefaultMaxLineCount caps the number of lines normalization keeps; the
// configured value is threaded in by the caller (router).
const DefaultMaxLineCount = 500

// DefaultMaxQty is the range guard's default upper bound (spec.md §4.6).
const DefaultMaxQty = 1_000_000.0

// Extractor drives the LLM provider through the cache/budget gate and the
// six-step parse-and-guard pipeline.
type Extractor struct {
	provider     providers.LLMProviderPort
	cache        *aicache.Cache
	maxLineCount int
	maxQty       float64
}

func New(provider providers.LLMProviderPort, cache *aicache.Cache) *Extractor {
	return &Extractor{provider: provider, cache: cache, maxLineCount: DefaultMaxLineCount, maxQty: DefaultMaxQty}
}

// Input bundles what both ExtractText and ExtractVision need beyond the
// page content itself.
type Input struct {
	TenantID    string
	DocumentID  string
	SourceText  string // raw text layer, used by the anchor guard even in vision mode when available
	PageCount   int
	FewShot     []providers.FewShotExample
}

// Result is what either extraction path returns: the guarded canonical
// record plus whether the anchor, range or density guard tripped. A JSON
// repair alone does not set GuardTripped, and a failed call returns an error
// rather than a Result.
type Result struct {
	Record       extract.Record
	GuardTripped bool
}

// ExtractText runs the text-mode template over already-extracted text.
func (e *Extractor) ExtractText(ctx context.Context, in Input) (Result, error) {
	ectx := providers.ExtractContext{TenantID: in.TenantID, DocumentID: in.DocumentID, MediaType: "text/plain", FewShotExamples: in.FewShot}
	hash := aicache.CanonicalHash(TemplatePDFExtractText, in.SourceText)

	raw, _, err := e.cache.Call(ctx, in.TenantID, TemplatePDFExtractText, hash, func(ctx context.Context) (aicache.ProviderOutput, error) {
		res, err := e.provider.ExtractText(ctx, in.SourceText, ectx)
		if err != nil {
			return aicache.ProviderOutput{}, err
		}
		return toProviderOutput(res), nil
	})
	if err != nil {
		return Result{}, err
	}
	return e.parseAndGuard(ctx, in, raw, ectx)
}

// ExtractVision runs the vision-mode template over rendered page images.
func (e *Extractor) ExtractVision(ctx context.Context, in Input, pageImages [][]byte) (Result, error) {
	ectx := providers.ExtractContext{TenantID: in.TenantID, DocumentID: in.DocumentID, MediaType: "application/pdf", FewShotExamples: in.FewShot}
	// Vision calls canonicalize on page count + document id, not pixel
	// content, since the rendered bytes are not stable hash input.
	hash := aicache.CanonicalHash(TemplatePDFExtractVision, fmt.Sprintf("%s:%d", in.DocumentID, len(pageImages)))

	raw, _, err := e.cache.Call(ctx, in.TenantID, TemplatePDFExtractVision, hash, func(ctx context.Context) (aicache.ProviderOutput, error) {
		res, err := e.provider.ExtractVision(ctx, pageImages, ectx)
		if err != nil {
			return aicache.ProviderOutput{}, err
		}
		return toProviderOutput(res), nil
	})
	if err != nil {
		return Result{}, err
	}
	return e.parseAndGuard(ctx, in, raw, ectx)
}

func toProviderOutput(r providers.LLMResult) aicache.ProviderOutput {
	return aicache.ProviderOutput{
		RawOutput:    r.RawOutput,
		Provider:     r.Provider,
		Model:        r.Model,
		PromptTokens: r.PromptTokens,
		OutputTokens: r.OutputTokens,
		Latency:      r.Latency,
		CostMicros:   r.CostMicros,
	}
}

// wireRecord is the closed schema a completion must match exactly (step 3):
// unknown keys and wrong types are both rejected by the strict decoder.
type wireRecord struct {
	Order      wireOrder       `json:"order"`
	Lines      []wireLine      `json:"lines"`
	Confidence wireConfidence  `json:"confidence"`
}

type wireOrder struct {
	ExternalOrderNumber   *string      `json:"external_order_number"`
	OrderDate             *string      `json:"order_date"`
	Currency              *string      `json:"currency"`
	RequestedDeliveryDate *string      `json:"requested_delivery_date"`
	CustomerHint          wireHint     `json:"customer_hint"`
	Notes                 *string      `json:"notes"`
	ShipTo                wireShipTo   `json:"ship_to"`
}

type wireHint struct {
	Name              *string `json:"name"`
	Email             *string `json:"email"`
	ERPCustomerNumber *string `json:"erp_customer_number"`
}

type wireShipTo struct {
	Company *string `json:"company"`
	Street  *string `json:"street"`
	Zip     *string `json:"zip"`
	City    *string `json:"city"`
	Country *string `json:"country"`
}

type wireLine struct {
	LineNo                int      `json:"line_no"`
	CustomerSKURaw        *string  `json:"customer_sku_raw"`
	ProductDescription    *string  `json:"product_description"`
	Qty                   *float64 `json:"qty"`
	UoM                   *string  `json:"uom"`
	UnitPrice             *float64 `json:"unit_price"`
	Currency              *string  `json:"currency"`
	RequestedDeliveryDate *string  `json:"requested_delivery_date"`
}

type wireConfidence struct {
	Order   extract.OrderConfidence  `json:"order"`
	Lines   []extract.LineConfidence `json:"lines"`
	Overall float64                  `json:"overall"`
}

// parseAndGuard implements the fixed six-step pipeline of spec.md §4.6.
func (e *Extractor) parseAndGuard(ctx context.Context, in Input, raw string, ectx providers.ExtractContext) (Result, error) {
	// Step 1: strip leading whitespace; reject non-object output.
	trimmed := strings.TrimLeft(raw, " \t\r\n")
	if trimmed == "" || trimmed[0] != '{' {
		return Result{}, coreerr.New(coreerr.LLMOutputInvalid, "output does not start with '{'")
	}

	// Step 2: decode; one repair attempt via json_repair_v1 on failure.
	var wr wireRecord
	if err := strictDecode(trimmed, &wr); err != nil {
		repaired, repairErr := e.provider.RepairJSON(ctx, trimmed, err.Error(), ectx)
		if repairErr != nil {
			return Result{}, coreerr.Wrap(coreerr.LLMOutputInvalid, "repair call failed", repairErr)
		}
		repaired = strings.TrimLeft(repaired, " \t\r\n")
		if repaired == "" || repaired[0] != '{' {
			return Result{}, coreerr.New(coreerr.LLMOutputInvalid, "repaired output does not start with '{'")
		}
		// Step 3 (repaired path): strict decode again; second failure terminal.
		if err := strictDecode(repaired, &wr); err != nil {
			return Result{}, coreerr.Wrap(coreerr.LLMOutputInvalid, "unrepairable JSON", err)
		}
	}

	rec := extract.Record{
		Order: extract.OrderFields{
			ExternalOrderNumber:   wr.Order.ExternalOrderNumber,
			OrderDate:             wr.Order.OrderDate,
			Currency:              upperOrNil(wr.Order.Currency),
			RequestedDeliveryDate: wr.Order.RequestedDeliveryDate,
			CustomerHint: extract.CustomerHint{
				Name:              wr.Order.CustomerHint.Name,
				Email:             wr.Order.CustomerHint.Email,
				ERPCustomerNumber: wr.Order.CustomerHint.ERPCustomerNumber,
			},
			Notes: wr.Order.Notes,
			ShipTo: extract.ShipTo{
				Company: wr.Order.ShipTo.Company,
				Street:  wr.Order.ShipTo.Street,
				Zip:     wr.Order.ShipTo.Zip,
				City:    wr.Order.ShipTo.City,
				Country: wr.Order.ShipTo.Country,
			},
		},
		Confidence: extract.Confidence{Order: wr.Confidence.Order, Lines: wr.Confidence.Lines, Overall: wr.Confidence.Overall},
	}

	// Step 4: normalize — UoM to canonical, currency upper, dense
	// renumbering, cap line count.
	var warnings []extract.Warning
	lines := wr.Lines
	if len(lines) > e.maxLineCount {
		warnings = append(warnings, extract.Warning{Code: "LINE_COUNT_CAPPED", Message: fmt.Sprintf("truncated from %d to %d lines", len(lines), e.maxLineCount)})
		lines = lines[:e.maxLineCount]
	}

	normSourceText := strings.Join(strings.Fields(strings.ToLower(in.SourceText)), " ")
	guardTripped := false

	for i := range lines {
		lines[i].LineNo = i + 1 // dense renumbering
		if lines[i].UoM != nil {
			if canon, ok := normalize.CanonicalUoM(*lines[i].UoM, nil); ok {
				lines[i].UoM = &canon
			} else {
				warnings = append(warnings, extract.Warning{Code: "UNKNOWN_UOM", Message: fmt.Sprintf("line %d: unrecognized unit %q", lines[i].LineNo, *lines[i].UoM)})
				lines[i].UoM = nil
			}
		}
		lines[i].Currency = upperOrNil(lines[i].Currency)
	}

	// Step 5a: anchor guard.
	for i := range lines {
		if normSourceText == "" {
			break // vision calls with no text layer skip the anchor guard
		}
		if anchorPresent(lines[i], normSourceText) {
			continue
		}
		guardTripped = true
		if i < len(rec.Confidence.Lines) {
			rec.Confidence.Lines[i].CustomerSKU /= 2
			rec.Confidence.Lines[i].Qty /= 2
			rec.Confidence.Lines[i].UoM /= 2
			rec.Confidence.Lines[i].UnitPrice /= 2
		}
		warnings = append(warnings, extract.Warning{Code: "ANCHOR_GUARD", Message: fmt.Sprintf("line %d: no anchor token found in source", lines[i].LineNo)})
	}

	// Step 5b: range guard.
	for i := range lines {
		if lines[i].Qty == nil {
			continue
		}
		q := *lines[i].Qty
		if q <= 0 || q > e.maxQty {
			guardTripped = true
			lines[i].Qty = nil
			warnings = append(warnings, extract.Warning{Code: "RANGE_GUARD", Message: fmt.Sprintf("line %d: quantity %v out of range", lines[i].LineNo, q)})
		}
	}

	// Step 5c: density guard.
	if len(lines) > 200 && in.PageCount <= 2 {
		guardTripped = true
		rec.Confidence.Overall *= 0.7
		warnings = append(warnings, extract.Warning{Code: "DENSITY_GUARD", Message: "line count implausible for page count"})
	}

	rec.Lines = make([]extract.LineFields, len(lines))
	for i, l := range lines {
		rec.Lines[i] = extract.LineFields{
			LineNo:                l.LineNo,
			CustomerSKURaw:        l.CustomerSKURaw,
			ProductDescription:    l.ProductDescription,
			Qty:                   l.Qty,
			UoM:                   l.UoM,
			UnitPrice:             l.UnitPrice,
			Currency:              l.Currency,
			RequestedDeliveryDate: l.RequestedDeliveryDate,
		}
	}
	rec.Warnings = warnings

	// Step 6: cap overall confidence when any guard tripped.
	if guardTripped && rec.Confidence.Overall > 0.55 {
		rec.Confidence.Overall = 0.55
	}

	return Result{Record: rec, GuardTripped: guardTripped}, nil
}

// strictDecode rejects unknown keys and wrong-typed values (spec.md §4.6
// step 3's closed schema) and requires the entire input be one JSON value.
func strictDecode(s string, v *wireRecord) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("schema decode: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("schema decode: trailing data after JSON value")
	}
	return nil
}

func upperOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.ToUpper(*s)
	return &v
}

var eightCharTokenRe = regexp.MustCompile(`[A-Za-z0-9]{8,}`)

// anchorPresent implements the anchor guard: at least one of {normalized raw
// SKU, any 8+ char description token, quantity as a string} must appear in
// the whitespace-collapsed, lower-cased source text.
func anchorPresent(l wireLine, normSourceText string) bool {
	if l.CustomerSKURaw != nil && strings.Contains(normSourceText, strings.ToLower(*l.CustomerSKURaw)) {
		return true
	}
	if l.ProductDescription != nil {
		for _, tok := range eightCharTokenRe.FindAllString(*l.ProductDescription, -1) {
			if strings.Contains(normSourceText, strings.ToLower(tok)) {
				return true
			}
		}
	}
	if l.Qty != nil {
		asStr := strconv.FormatFloat(*l.Qty, 'f', -1, 64)
		if strings.Contains(normSourceText, asStr) {
			return true
		}
	}
	return false
}

// EstimateTextTokens implements the §4.4 budget-gate estimate for text
// calls: ceil(len(text)/4).
func EstimateTextTokens(text string) int {
	return (len(text) + 3) / 4
}

// EstimateVisionTokens implements the §4.4 budget-gate estimate for vision
// calls: 1500 * pages.
func EstimateVisionTokens(pages int) int {
	return 1500 * pages
}
