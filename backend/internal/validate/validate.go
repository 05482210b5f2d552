// Package validate implements C10: the closed issue-type vocabulary and the
// deterministic, idempotent validation pass run after extraction, customer
// detection, and matching on a DraftOrder.
package validate

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/orderflow/orderflow/internal/db"
)

// Issue types (spec.md §4.10). Severity is fixed per type except
// PRICE_MISMATCH and LLM_OUTPUT_INVALID, which carry policy-selected
// severity.
const (
	MissingCustomer         = "MISSING_CUSTOMER"
	MissingCurrency         = "MISSING_CURRENCY"
	CustomerAmbiguous       = "CUSTOMER_AMBIGUOUS"
	MissingSKU              = "MISSING_SKU"
	UnknownProduct           = "UNKNOWN_PRODUCT"
	MissingQty              = "MISSING_QTY"
	InvalidQty              = "INVALID_QTY"
	MissingUoM              = "MISSING_UOM"
	UnknownUoM              = "UNKNOWN_UOM"
	UoMIncompatible         = "UOM_INCOMPATIBLE"
	MissingPrice            = "MISSING_PRICE"
	PriceMismatch           = "PRICE_MISMATCH"
	DuplicateLine           = "DUPLICATE_LINE"
	LowConfidenceExtraction = "LOW_CONFIDENCE_EXTRACTION"
	LowConfidenceMatch      = "LOW_CONFIDENCE_MATCH"
	LLMOutputInvalid        = "LLM_OUTPUT_INVALID"

	severityError   = "ERROR"
	severityWarning = "WARNING"
)

// Store is the subset of *db.Queries the validator needs.
type Store interface {
	UpsertOpenIssue(ctx context.Context, tenantID, draftOrderID string, lineID sql.NullString, issueType, severity, message string, details json.RawMessage) error
	CloseIssuesNotIn(ctx context.Context, tenantID, draftOrderID string, stillOpenIssueIDs []string) error
	ListIssues(ctx context.Context, tenantID, draftOrderID string) ([]db.ValidationIssue, error)
	GetProductBySKU(ctx context.Context, tenantID, internalSKU string) (*db.Product, error)
	FindApplicablePrice(ctx context.Context, tenantID, customerID, internalSKU string, qty float64, at time.Time) (*db.CustomerPrice, error)
}

// PriceMismatchSeverity is an Open Question the spec leaves to
// implementation policy (DESIGN.md): a price deviating more than this
// fraction from the applicable CustomerPrice is an ERROR, not just a
// WARNING.
const PriceMismatchSeverity = 0.20

// Validator runs the full C10 pass for one DraftOrder.
type Validator struct {
	store Store
}

func New(store Store) *Validator {
	return &Validator{store: store}
}

// Input is everything the validator needs about one draft and its lines,
// already loaded by the caller (draftengine).
type Input struct {
	DraftOrder db.DraftOrder
	Lines      []db.DraftOrderLine
}

// Run evaluates every rule against Input and leaves the store's
// validation_issues in the idempotent state described by spec.md §4.10:
// OPEN issues whose condition still holds are refreshed in place,
// ACKNOWLEDGED/OVERRIDDEN issues are preserved untouched, and issues whose
// condition no longer reproduces are resolved.
func (v *Validator) Run(ctx context.Context, tenantID string, in Input) error {
	var stillOpen []string
	noted := map[string]bool{}

	note := func(lineID sql.NullString, issueType, severity, message string, details map[string]any) error {
		noted[lineID.String+"|"+issueType] = true
		var raw json.RawMessage
		if details != nil {
			b, err := json.Marshal(details)
			if err != nil {
				return err
			}
			raw = b
		}
		return v.store.UpsertOpenIssue(ctx, tenantID, in.DraftOrder.ID, lineID, issueType, severity, message, raw)
	}

	if !in.DraftOrder.CustomerID.Valid {
		if err := note(sql.NullString{}, MissingCustomer, severityError, "no customer selected", nil); err != nil {
			return err
		}
	}
	if !in.DraftOrder.Currency.Valid || in.DraftOrder.Currency.String == "" {
		if err := note(sql.NullString{}, MissingCurrency, severityError, "no currency on order header", nil); err != nil {
			return err
		}
	}

	seen := map[string]int{}
	for _, l := range in.Lines {
		lineID := sql.NullString{String: l.ID, Valid: true}
		seen[dupKey(l)]++

		if l.CustomerSKUNormalized == "" {
			if err := note(lineID, MissingSKU, severityError, "line has no customer SKU", nil); err != nil {
				return err
			}
		} else if !l.InternalSKU.Valid {
			if err := note(lineID, UnknownProduct, severityError, "no internal product matched for this SKU", nil); err != nil {
				return err
			}
		}

		if err := v.validateQty(ctx, note, lineID, l); err != nil {
			return err
		}
		if err := v.validateUoM(ctx, note, lineID, l); err != nil {
			return err
		}
		if err := v.validatePrice(ctx, note, lineID, in.DraftOrder, l); err != nil {
			return err
		}

		if l.MatchStatus != "UNMATCHED" && l.MatchConfidence < 0.75 {
			if err := note(lineID, LowConfidenceMatch, severityWarning, fmt.Sprintf("match confidence %.2f below threshold", l.MatchConfidence), nil); err != nil {
				return err
			}
		}
	}

	for _, l := range in.Lines {
		if seen[dupKey(l)] > 1 {
			lineID := sql.NullString{String: l.ID, Valid: true}
			if err := note(lineID, DuplicateLine, severityWarning, "duplicate SKU+qty combination on this order", nil); err != nil {
				return err
			}
		}
	}

	if in.DraftOrder.ExtractionConfidence < 0.60 {
		if err := note(sql.NullString{}, LowConfidenceExtraction, severityWarning, fmt.Sprintf("extraction confidence %.2f below threshold", in.DraftOrder.ExtractionConfidence), nil); err != nil {
			return err
		}
	}

	existing, err := v.store.ListIssues(ctx, tenantID, in.DraftOrder.ID)
	if err != nil {
		return err
	}
	for _, iss := range existing {
		if iss.Status == "OPEN" && noted[iss.LineID.String+"|"+iss.Type] {
			stillOpen = append(stillOpen, iss.ID)
		}
	}
	return v.store.CloseIssuesNotIn(ctx, tenantID, in.DraftOrder.ID, stillOpen)
}

func dupKey(l db.DraftOrderLine) string {
	qty := "nil"
	if l.Qty.Valid {
		qty = l.Qty.Decimal.String()
	}
	return l.CustomerSKUNormalized + "|" + qty
}

func (v *Validator) validateQty(ctx context.Context, note func(sql.NullString, string, string, string, map[string]any) error, lineID sql.NullString, l db.DraftOrderLine) error {
	if !l.Qty.Valid {
		return note(lineID, MissingQty, severityError, "line has no quantity", nil)
	}
	if l.Qty.Decimal.LessThanOrEqual(decimal.Zero) {
		return note(lineID, InvalidQty, severityError, "quantity must be positive", nil)
	}
	return nil
}

func (v *Validator) validateUoM(ctx context.Context, note func(sql.NullString, string, string, string, map[string]any) error, lineID sql.NullString, l db.DraftOrderLine) error {
	if !l.UoM.Valid || l.UoM.String == "" {
		return note(lineID, MissingUoM, severityError, "line has no unit of measure", nil)
	}
	if !l.InternalSKU.Valid {
		return nil // UnknownProduct already raised; UoM compatibility needs a product to compare against
	}
	product, err := v.store.GetProductBySKU(ctx, l.TenantID, l.InternalSKU.String)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		return err
	}
	if product.BaseUoM == l.UoM.String {
		return nil
	}
	var conv map[string]float64
	if len(product.UoMConversion) > 0 {
		_ = json.Unmarshal(product.UoMConversion, &conv)
	}
	if _, ok := conv[l.UoM.String]; ok {
		return nil
	}
	return note(lineID, UoMIncompatible, severityError, fmt.Sprintf("unit %q not compatible with product base unit %q", l.UoM.String, product.BaseUoM), nil)
}

func (v *Validator) validatePrice(ctx context.Context, note func(sql.NullString, string, string, string, map[string]any) error, lineID sql.NullString, order db.DraftOrder, l db.DraftOrderLine) error {
	if !l.UnitPrice.Valid {
		return note(lineID, MissingPrice, severityWarning, "line has no unit price", nil)
	}
	if !l.InternalSKU.Valid || !order.CustomerID.Valid {
		return nil
	}
	qty := 0.0
	if l.Qty.Valid {
		qty, _ = l.Qty.Decimal.Float64()
	}
	price, err := v.store.FindApplicablePrice(ctx, l.TenantID, order.CustomerID.String, l.InternalSKU.String, qty, time.Now())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		return err
	}
	if price == nil || price.UnitPrice.IsZero() {
		return nil
	}
	diff := l.UnitPrice.Decimal.Sub(price.UnitPrice).Abs().Div(price.UnitPrice)
	tolerance := decimal.NewFromFloat(PriceMismatchSeverity)
	if diff.LessThanOrEqual(decimal.NewFromFloat(0.05)) {
		return nil
	}
	severity := severityWarning
	if diff.GreaterThan(tolerance) {
		severity = severityError
	}
	return note(lineID, PriceMismatch, severity, fmt.Sprintf("unit price deviates %.0f%% from catalog price", diff.Mul(decimal.NewFromInt(100)).InexactFloat64()), map[string]any{
		"catalog_price": price.UnitPrice.String(),
		"line_price":    l.UnitPrice.Decimal.String(),
	})
}
