package draftengine

import (
	"time"

	"github.com/orderflow/orderflow/internal/db"
)

// ReadyCheckResult is the `{is_ready, blocking_reasons[], checked_at}`
// snapshot stored on the draft (spec.md §4.11).
type ReadyCheckResult struct {
	IsReady         bool      `json:"is_ready"`
	BlockingReasons []string  `json:"blocking_reasons"`
	CheckedAt       time.Time `json:"checked_at"`
}

// CheckReady implements the four-part ready-check gate. now is injected so
// callers can keep this pure and deterministic in tests.
func CheckReady(d db.DraftOrder, lines []db.DraftOrderLine, openErrorIssueCount int, now time.Time) ReadyCheckResult {
	var reasons []string

	if !d.CustomerID.Valid {
		reasons = append(reasons, "customer not selected")
	}
	if !d.Currency.Valid || d.Currency.String == "" {
		reasons = append(reasons, "currency not set")
	}
	if len(lines) == 0 {
		reasons = append(reasons, "no lines")
	}
	for _, l := range lines {
		if !l.Qty.Valid || l.Qty.Decimal.Sign() <= 0 {
			reasons = append(reasons, "line "+l.ID+": missing or non-positive quantity")
		}
		if !l.UoM.Valid || l.UoM.String == "" {
			reasons = append(reasons, "line "+l.ID+": missing unit of measure")
		}
		if !l.InternalSKU.Valid {
			reasons = append(reasons, "line "+l.ID+": no internal SKU matched")
		}
	}
	if openErrorIssueCount > 0 {
		reasons = append(reasons, "open ERROR-severity issue present")
	}

	return ReadyCheckResult{
		IsReady:         len(reasons) == 0,
		BlockingReasons: reasons,
		CheckedAt:       now,
	}
}

// NextStatus applies the auto-flip rule: ready-check only ever moves a
// draft between NEEDS_REVIEW and READY (or settles it there from
// EXTRACTED); it never overrides APPROVED/PUSHING/PUSHED/REJECTED.
func NextStatus(currentStatus string, result ReadyCheckResult) (string, bool) {
	switch currentStatus {
	case StatusExtracted, StatusNeedsReview, StatusReady:
		if result.IsReady {
			return StatusReady, currentStatus != StatusReady
		}
		return StatusNeedsReview, currentStatus != StatusNeedsReview
	default:
		return currentStatus, false
	}
}
