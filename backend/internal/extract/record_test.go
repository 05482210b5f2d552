package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderConfidence_HeaderScoreWeightedSum(t *testing.T) {
	c := OrderConfidence{
		ExternalOrderNumber:   1.0,
		OrderDate:             1.0,
		Currency:              1.0,
		CustomerHint:          1.0,
		RequestedDeliveryDate: 1.0,
		ShipTo:                1.0,
	}
	assert.InDelta(t, 1.0, c.HeaderScore(), 0.0001)
}

func TestOrderConfidence_HeaderScorePartialFields(t *testing.T) {
	c := OrderConfidence{CustomerHint: 1.0}
	assert.InDelta(t, HeaderFieldWeights.CustomerHint, c.HeaderScore(), 0.0001)
}

func TestLineConfidence_LineScoreWeightedSum(t *testing.T) {
	c := LineConfidence{CustomerSKU: 1.0, Qty: 1.0, UoM: 1.0, UnitPrice: 1.0}
	assert.InDelta(t, 1.0, c.LineScore(), 0.0001)
}

func TestLineConfidence_LineScoreZeroWhenAllFieldsMissing(t *testing.T) {
	c := LineConfidence{}
	assert.Equal(t, 0.0, c.LineScore())
}
