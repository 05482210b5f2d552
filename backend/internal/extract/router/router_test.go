package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/orderflow/internal/extract"
)

type fakeBudget struct {
	remaining float64
	err       error
}

func (f *fakeBudget) RemainingDailyBudgetUSD(ctx context.Context, tenantID string) (float64, error) {
	return f.remaining, f.err
}

func TestClassifyFormat_ByMediaType(t *testing.T) {
	assert.Equal(t, formatCSV, classifyFormat("text/csv", "order.dat"))
	assert.Equal(t, formatXLSX, classifyFormat("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "order.dat"))
	assert.Equal(t, formatPDF, classifyFormat("application/pdf", "order.dat"))
	assert.Equal(t, formatUnknown, classifyFormat("application/octet-stream", "order.dat"))
}

func TestClassifyFormat_ByFilenameFallback(t *testing.T) {
	assert.Equal(t, formatCSV, classifyFormat("application/octet-stream", "order.CSV"))
	assert.Equal(t, formatXLSX, classifyFormat("application/octet-stream", "order.xlsx"))
	assert.Equal(t, formatPDF, classifyFormat("application/octet-stream", "order.pdf"))
}

func TestTriggerRule_LowTextCoverageEscalates(t *testing.T) {
	pre := extract.PreAnalysis{TextCoverageRatio: 0.05, TextCharsTotal: 1000}
	assert.True(t, triggerRule(pre, nil, &extract.Record{Lines: []extract.LineFields{{}}, Confidence: extract.Confidence{Overall: 0.9}}))
}

func TestTriggerRule_RuleExtractorErrorEscalates(t *testing.T) {
	pre := extract.PreAnalysis{TextCoverageRatio: 0.9, TextCharsTotal: 2000}
	assert.True(t, triggerRule(pre, assert.AnError, nil))
}

func TestTriggerRule_LowConfidenceOrNoLinesEscalates(t *testing.T) {
	pre := extract.PreAnalysis{TextCoverageRatio: 0.9, TextCharsTotal: 2000}
	assert.True(t, triggerRule(pre, nil, &extract.Record{Confidence: extract.Confidence{Overall: 0.9}})) // zero lines
	lowConf := &extract.Record{Lines: []extract.LineFields{{}}, Confidence: extract.Confidence{Overall: 0.3}}
	assert.True(t, triggerRule(pre, nil, lowConf))
}

func TestTriggerRule_MostlyMissingFieldsEscalates(t *testing.T) {
	pre := extract.PreAnalysis{TextCoverageRatio: 0.9, TextCharsTotal: 2000}
	rec := &extract.Record{
		Lines: []extract.LineFields{
			{}, {}, {}, // all three lines have neither SKU nor description
		},
		Confidence: extract.Confidence{Overall: 0.9},
	}
	assert.True(t, triggerRule(pre, nil, rec))
}

func TestTriggerRule_GoodRuleExtractionStaysOnRulePath(t *testing.T) {
	pre := extract.PreAnalysis{TextCoverageRatio: 0.9, TextCharsTotal: 2000}
	sku := "A1"
	rec := &extract.Record{
		Lines:      []extract.LineFields{{CustomerSKURaw: &sku}},
		Confidence: extract.Confidence{Overall: 0.9},
	}
	assert.False(t, triggerRule(pre, nil, rec))
}

func TestRoute_CSVNeverInvokesLLM(t *testing.T) {
	r := New(nil, &fakeBudget{remaining: 100}, Limits{MaxPageCount: 10, MaxTokensPerCall: 10000, DailyBudgetUSD: 25})
	raw := []byte("SKU,Qty,UoM\nA1,1,KG\n")

	out, err := r.Route(context.Background(), Request{MediaType: "text/csv", Filename: "order.csv", Raw: raw})
	require.NoError(t, err)
	assert.False(t, out.UsedLLM)
	assert.Len(t, out.Record.Lines, 1)
}

func TestRoute_UnsupportedMediaTypeRejected(t *testing.T) {
	r := New(nil, &fakeBudget{remaining: 100}, Limits{})
	_, err := r.Route(context.Background(), Request{MediaType: "application/zip", Filename: "order.zip"})
	require.Error(t, err)
}
