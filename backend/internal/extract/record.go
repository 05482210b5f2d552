// Package extract implements C4 (Extractor Router) and the shared canonical
// extraction record (§6.1) every extractor — rule or LLM — produces. Rule
// extractors live in internal/extract/rules; the LLM extractor lives in
// internal/extract/llm. This package owns the contract between them and the
// Draft Engine.
package extract

// Record is the canonical extraction record every extractor emits (§6.1).
// Missing values are nil/zero, never invented. Dates are ISO-8601 strings,
// currency ISO-4217, UoM from the canonical set — extractors normalize into
// this shape before returning it.
type Record struct {
	Order          OrderFields    `json:"order"`
	Lines          []LineFields   `json:"lines"`
	Confidence     Confidence     `json:"confidence"`
	Warnings       []Warning      `json:"warnings"`
	ExtractorVersion string       `json:"extractor_version"`
}

// OrderFields is the header half of the canonical record.
type OrderFields struct {
	ExternalOrderNumber  *string      `json:"external_order_number"`
	OrderDate            *string      `json:"order_date"`
	Currency             *string      `json:"currency"`
	RequestedDeliveryDate *string     `json:"requested_delivery_date"`
	CustomerHint         CustomerHint `json:"customer_hint"`
	Notes                *string      `json:"notes"`
	ShipTo               ShipTo       `json:"ship_to"`
}

// CustomerHint carries whatever identifying fields the extractor found in
// the document body or (for the LLM path) inferred — consumed by the
// Customer Detector's S6 signal.
type CustomerHint struct {
	Name            *string `json:"name"`
	Email           *string `json:"email"`
	ERPCustomerNumber *string `json:"erp_customer_number"`
}

// ShipTo is the delivery address block, when present.
type ShipTo struct {
	Company *string `json:"company"`
	Street  *string `json:"street"`
	Zip     *string `json:"zip"`
	City    *string `json:"city"`
	Country *string `json:"country"`
}

// LineFields is one order line in the canonical record.
type LineFields struct {
	LineNo                int      `json:"line_no"`
	CustomerSKURaw        *string  `json:"customer_sku_raw"`
	ProductDescription    *string  `json:"product_description"`
	Qty                   *float64 `json:"qty"`
	UoM                   *string  `json:"uom"`
	UnitPrice             *float64 `json:"unit_price"`
	Currency              *string  `json:"currency"`
	RequestedDeliveryDate *string  `json:"requested_delivery_date"`
}

// Confidence carries per-field header confidences, per-line-field
// confidences, and the overall score — an intrinsic part of the record, not
// a decoration (spec.md §9).
type Confidence struct {
	Order   OrderConfidence    `json:"order"`
	Lines   []LineConfidence   `json:"lines"`
	Overall float64            `json:"overall"`
}

// OrderConfidence holds the per-field header confidences used by the
// extraction_confidence weighted average (spec.md §4.11).
type OrderConfidence struct {
	ExternalOrderNumber   float64 `json:"external_order_number"`
	OrderDate             float64 `json:"order_date"`
	Currency              float64 `json:"currency"`
	CustomerHint          float64 `json:"customer_hint"`
	RequestedDeliveryDate float64 `json:"requested_delivery_date"`
	ShipTo                float64 `json:"ship_to"`
}

// LineConfidence holds the per-line per-field confidences.
type LineConfidence struct {
	LineNo     int     `json:"line_no"`
	CustomerSKU float64 `json:"customer_sku"`
	Qty        float64 `json:"qty"`
	UoM        float64 `json:"uom"`
	UnitPrice  float64 `json:"unit_price"`
}

// Warning is one non-fatal finding attached to the record (distinct from a
// stored ValidationIssue — these are extractor-local and get folded into
// issues by the caller where relevant).
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HeaderFieldWeights implements the weighted average in spec.md §4.11.
var HeaderFieldWeights = struct {
	ExternalOrderNumber   float64
	OrderDate             float64
	Currency              float64
	CustomerHint          float64
	RequestedDeliveryDate float64
	ShipTo                float64
}{
	ExternalOrderNumber:   0.20,
	OrderDate:             0.15,
	Currency:              0.20,
	CustomerHint:          0.25,
	RequestedDeliveryDate: 0.10,
	ShipTo:                0.10,
}

// LineFieldWeights implements the per-line weighted average in spec.md §4.11.
var LineFieldWeights = struct {
	CustomerSKU float64
	Qty         float64
	UoM         float64
	UnitPrice   float64
}{
	CustomerSKU: 0.30,
	Qty:         0.30,
	UoM:         0.20,
	UnitPrice:   0.20,
}

// HeaderScore computes the weighted average of OrderConfidence (spec.md §4.11).
func (c OrderConfidence) HeaderScore() float64 {
	w := HeaderFieldWeights
	return w.ExternalOrderNumber*c.ExternalOrderNumber +
		w.OrderDate*c.OrderDate +
		w.Currency*c.Currency +
		w.CustomerHint*c.CustomerHint +
		w.RequestedDeliveryDate*c.RequestedDeliveryDate +
		w.ShipTo*c.ShipTo
}

// LineScore computes one line's weighted average (spec.md §4.11).
func (c LineConfidence) LineScore() float64 {
	w := LineFieldWeights
	return w.CustomerSKU*c.CustomerSKU + w.Qty*c.Qty + w.UoM*c.UoM + w.UnitPrice*c.UnitPrice
}
