package draftengine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/orderflow/orderflow/internal/extract"
)

func TestExtractionConfidence_NoPenalty(t *testing.T) {
	got := ExtractionConfidence(1.0, 1.0, ExtractionPenaltyInputs{})
	assert.InDelta(t, 1.0, got, 0.001)
}

func TestExtractionConfidence_ZeroLinesPenaltyDominates(t *testing.T) {
	got := ExtractionConfidence(1.0, 1.0, ExtractionPenaltyInputs{
		ZeroLines:        true,
		TextCoverageRatio: 0.05,
		AnchorFailureRate: 0.5,
	})
	assert.InDelta(t, 0.60, got, 0.001)
}

func TestExtractionConfidence_LowCoverageWithoutVision(t *testing.T) {
	got := ExtractionConfidence(1.0, 1.0, ExtractionPenaltyInputs{TextCoverageRatio: 0.10, UsedVision: false})
	assert.InDelta(t, 0.50, got, 0.001)
}

func TestExtractionConfidence_LowCoverageWithVisionNoPenalty(t *testing.T) {
	got := ExtractionConfidence(1.0, 1.0, ExtractionPenaltyInputs{TextCoverageRatio: 0.10, UsedVision: true})
	assert.InDelta(t, 1.0, got, 0.001)
}

func TestCustomerConfidence_UserSelectedFloorsAt90(t *testing.T) {
	assert.InDelta(t, 0.90, CustomerConfidence(false, true, 0.40), 0.001)
	assert.InDelta(t, 0.95, CustomerConfidence(false, true, 0.95), 0.001)
}

func TestCustomerConfidence_AutoSelectedUsesDetectionScore(t *testing.T) {
	assert.InDelta(t, 0.80, CustomerConfidence(true, false, 0.80), 0.001)
}

func TestCustomerConfidence_NeitherSelectedIsZero(t *testing.T) {
	assert.Equal(t, 0.0, CustomerConfidence(false, false, 0.80))
}

func TestMatchingConfidence_UnmatchedLinesCountAsZero(t *testing.T) {
	got := MatchingConfidence([]float64{0.9, 0.8}, []bool{true, false})
	assert.InDelta(t, 0.45, got, 0.001)
}

func TestMatchingConfidence_NoLines(t *testing.T) {
	assert.Equal(t, 0.0, MatchingConfidence(nil, nil))
}

func TestOverallConfidence_WeightedSum(t *testing.T) {
	got := OverallConfidence(1.0, 1.0, 1.0)
	assert.InDelta(t, 1.0, got, 0.001)

	got = OverallConfidence(0, 0, 0)
	assert.Equal(t, 0.0, got)
}

func TestHeaderLineScores_EmptyLines(t *testing.T) {
	rec := extract.Record{
		Confidence: extract.Confidence{
			Order: extract.OrderConfidence{ExternalOrderNumber: 1, OrderDate: 1, Currency: 1, CustomerHint: 1, RequestedDeliveryDate: 1, ShipTo: 1},
		},
	}
	header, line := HeaderLineScores(rec)
	assert.InDelta(t, 1.0, header, 0.001)
	assert.Equal(t, 0.0, line)
}

func TestHeaderLineScores_AveragesLines(t *testing.T) {
	rec := extract.Record{
		Confidence: extract.Confidence{
			Lines: []extract.LineConfidence{
				{CustomerSKU: 1, Qty: 1, UoM: 1, UnitPrice: 1},
				{CustomerSKU: 0, Qty: 0, UoM: 0, UnitPrice: 0},
			},
		},
	}
	_, line := HeaderLineScores(rec)
	assert.InDelta(t, 0.5, line, 0.001)
}
