package matching

import (
	"database/sql"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/orderflow/orderflow/internal/db"
)

func TestBuildCandidates_ConfirmedMappingWins(t *testing.T) {
	line := Line{CustomerSKURaw: "ACME-100", CustomerSKUNormalized: "ACME100", UoM: "EA"}
	mapping := &db.SkuMapping{InternalSKU: "SKU-1", Status: "CONFIRMED"}
	products := []db.Product{{InternalSKU: "SKU-1", DisplayName: "Widget", BaseUoM: "EA"}}

	candidates := BuildCandidates(line, mapping, products, nil, nil, nil)

	assert.Len(t, candidates, 1)
	assert.Equal(t, "SKU-1", candidates[0].InternalSKU)
	assert.Equal(t, "sku_mapping", candidates[0].Method)
	assert.InDelta(t, 0.99, candidates[0].Confidence, 0.001)
}

func TestBuildCandidates_UoMMismatchPenalizesScore(t *testing.T) {
	line := Line{CustomerSKURaw: "SKU-1", CustomerSKUNormalized: "SKU-1", UoM: "CASE"}
	products := []db.Product{{InternalSKU: "SKU-1", DisplayName: "Widget", BaseUoM: "EA"}}

	candidates := BuildCandidates(line, nil, products, nil, nil, nil)

	assert.Len(t, candidates, 1)
	assert.Less(t, candidates[0].Confidence, 0.3)
}

func TestBuildCandidates_TrimsToTopN(t *testing.T) {
	line := Line{CustomerSKURaw: "ABC", CustomerSKUNormalized: "ABC", UoM: "EA"}
	var products []db.Product
	for i := 0; i < 10; i++ {
		products = append(products, db.Product{InternalSKU: "SKU-" + string(rune('A'+i)), DisplayName: "ABC widget", BaseUoM: "EA"})
	}

	candidates := BuildCandidates(line, nil, products, nil, nil, nil)

	assert.LessOrEqual(t, len(candidates), topNRetained)
}

func TestBuildCandidates_PricePenaltyAppliedWithinTolerance(t *testing.T) {
	line := Line{
		CustomerSKURaw:        "SKU-1",
		CustomerSKUNormalized: "SKU-1",
		UoM:                   "EA",
		UnitPrice:             decimal.NullDecimal{Decimal: decimal.NewFromFloat(10.40), Valid: true},
	}
	products := []db.Product{{InternalSKU: "SKU-1", DisplayName: "Widget", BaseUoM: "EA"}}
	lookup := func(sku string) (*db.CustomerPrice, bool) {
		return &db.CustomerPrice{UnitPrice: decimal.NewFromFloat(10.00)}, true
	}

	within := BuildCandidates(line, nil, products, nil, nil, lookup)
	assert.Len(t, within, 1)
	assert.Greater(t, within[0].Confidence, 0.0)

	line.UnitPrice = decimal.NullDecimal{Decimal: decimal.NewFromFloat(15.00), Valid: true}
	severe := BuildCandidates(line, nil, products, nil, nil, lookup)
	assert.Less(t, severe[0].Confidence, within[0].Confidence)
}

func TestDecideAutoApply_EmptyCandidates(t *testing.T) {
	res := DecideAutoApply(nil)
	assert.False(t, res.AutoApply)
	assert.False(t, res.LowConfidence)
}

func TestDecideAutoApply_SingleCandidateAboveThreshold(t *testing.T) {
	res := DecideAutoApply([]CandidateScore{{InternalSKU: "SKU-1", Confidence: 0.95}})
	assert.True(t, res.AutoApply)
}

func TestDecideAutoApply_SingleCandidateBelowFloorFlagsLowConfidence(t *testing.T) {
	res := DecideAutoApply([]CandidateScore{{InternalSKU: "SKU-1", Confidence: 0.5}})
	assert.False(t, res.AutoApply)
	assert.True(t, res.LowConfidence)
}

func TestDecideAutoApply_CloseRunnerUpBlocksAutoApply(t *testing.T) {
	res := DecideAutoApply([]CandidateScore{
		{InternalSKU: "SKU-1", Confidence: 0.95},
		{InternalSKU: "SKU-2", Confidence: 0.90},
	})
	assert.False(t, res.AutoApply)
}

func TestDecideAutoApply_ClearWinnerAutoApplies(t *testing.T) {
	res := DecideAutoApply([]CandidateScore{
		{InternalSKU: "SKU-1", Confidence: 0.95},
		{InternalSKU: "SKU-2", Confidence: 0.70},
	})
	assert.True(t, res.AutoApply)
}

func TestQueryEmbeddingText(t *testing.T) {
	line := Line{CustomerSKURaw: "ACME-100", ProductDescription: "Blue Widget", UoM: "EA"}
	got := QueryEmbeddingText(line)
	assert.Equal(t, "CUSTOMER_SKU: ACME-100\nDESC: Blue Widget\nUOM: EA\n", got)
}

func TestProductEmbeddingText_WithoutDescription(t *testing.T) {
	p := db.Product{InternalSKU: "SKU-1", DisplayName: "Widget", BaseUoM: "EA", Description: sql.NullString{}}
	got := ProductEmbeddingText(p)
	assert.Equal(t, "SKU: SKU-1\nNAME: Widget\nDESC: \nBASE_UOM: EA\n", got)
}
