package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJoinRowText_MergesTightRunsSplitsWideGaps(t *testing.T) {
	row := []glyphRun{
		{x: 0, y: 100, text: "A1"},
		{x: 8, y: 100, text: "00"}, // tight, same column as "A1"
		{x: 40, y: 100, text: "Widget"},
	}
	got := joinRowText(row)
	assert.Equal(t, "A100 Widget", got)
}

func TestQtyLineRe_MatchesOrderLineShape(t *testing.T) {
	m := qtyLineRe.FindStringSubmatch("ACME-1 Steel Widget 10 EA 2.50")
	if assert.NotNil(t, m) {
		assert.Equal(t, "ACME-1", m[1])
		assert.Equal(t, "Steel Widget", m[2])
		assert.Equal(t, "10", m[3])
		assert.Equal(t, "EA", m[4])
		assert.Equal(t, "2.50", m[5])
	}
}

func TestQtyLineRe_RejectsNonOrderLineText(t *testing.T) {
	m := qtyLineRe.FindStringSubmatch("Purchase Order Confirmation")
	assert.Nil(t, m)
}
