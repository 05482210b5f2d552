package draftengine

import (
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/orderflow/orderflow/internal/db"
)

func readyLine() db.DraftOrderLine {
	return db.DraftOrderLine{
		ID:          "line-1",
		Qty:         decimal.NullDecimal{Decimal: decimal.NewFromInt(10), Valid: true},
		UoM:         sql.NullString{String: "EA", Valid: true},
		InternalSKU: sql.NullString{String: "SKU-1", Valid: true},
	}
}

func TestCheckReady_AllConditionsSatisfied(t *testing.T) {
	d := db.DraftOrder{
		CustomerID: sql.NullString{String: "cust-1", Valid: true},
		Currency:   sql.NullString{String: "USD", Valid: true},
	}
	now := time.Unix(0, 0)
	res := CheckReady(d, []db.DraftOrderLine{readyLine()}, 0, now)
	assert.True(t, res.IsReady)
	assert.Empty(t, res.BlockingReasons)
	assert.Equal(t, now, res.CheckedAt)
}

func TestCheckReady_MissingCustomerAndCurrencyAndLines(t *testing.T) {
	res := CheckReady(db.DraftOrder{}, nil, 0, time.Now())
	assert.False(t, res.IsReady)
	assert.Contains(t, res.BlockingReasons, "customer not selected")
	assert.Contains(t, res.BlockingReasons, "currency not set")
	assert.Contains(t, res.BlockingReasons, "no lines")
}

func TestCheckReady_LineMissingQtyUoMAndSKU(t *testing.T) {
	d := db.DraftOrder{
		CustomerID: sql.NullString{String: "cust-1", Valid: true},
		Currency:   sql.NullString{String: "USD", Valid: true},
	}
	line := db.DraftOrderLine{ID: "line-1"}
	res := CheckReady(d, []db.DraftOrderLine{line}, 0, time.Now())
	assert.False(t, res.IsReady)
	assert.Contains(t, res.BlockingReasons, "line line-1: missing or non-positive quantity")
	assert.Contains(t, res.BlockingReasons, "line line-1: missing unit of measure")
	assert.Contains(t, res.BlockingReasons, "line line-1: no internal SKU matched")
}

func TestCheckReady_OpenErrorIssueBlocks(t *testing.T) {
	d := db.DraftOrder{
		CustomerID: sql.NullString{String: "cust-1", Valid: true},
		Currency:   sql.NullString{String: "USD", Valid: true},
	}
	res := CheckReady(d, []db.DraftOrderLine{readyLine()}, 2, time.Now())
	assert.False(t, res.IsReady)
	assert.Contains(t, res.BlockingReasons, "open ERROR-severity issue present")
}

func TestNextStatus_ExtractedToReady(t *testing.T) {
	status, changed := NextStatus(StatusExtracted, ReadyCheckResult{IsReady: true})
	assert.Equal(t, StatusReady, status)
	assert.True(t, changed)
}

func TestNextStatus_ReadyToNeedsReviewWhenBlocked(t *testing.T) {
	status, changed := NextStatus(StatusReady, ReadyCheckResult{IsReady: false, BlockingReasons: []string{"x"}})
	assert.Equal(t, StatusNeedsReview, status)
	assert.True(t, changed)
}

func TestNextStatus_NoChangeWhenAlreadyReady(t *testing.T) {
	status, changed := NextStatus(StatusReady, ReadyCheckResult{IsReady: true})
	assert.Equal(t, StatusReady, status)
	assert.False(t, changed)
}

func TestNextStatus_TerminalStatusesNeverFlip(t *testing.T) {
	status, changed := NextStatus(StatusApproved, ReadyCheckResult{IsReady: false})
	assert.Equal(t, StatusApproved, status)
	assert.False(t, changed)

	status, changed = NextStatus(StatusPushed, ReadyCheckResult{IsReady: true})
	assert.Equal(t, StatusPushed, status)
	assert.False(t, changed)
}
