package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/orderflow/internal/providers"
)

func newTestExtractor() *Extractor {
	return &Extractor{maxLineCount: DefaultMaxLineCount, maxQty: DefaultMaxQty}
}

// fakeProvider stubs providers.LLMProviderPort for parseAndGuard's repair
// path, which is only reached when strictDecode rejects the first attempt.
type fakeProvider struct {
	repairOutput string
	repairErr    error
}

func (f *fakeProvider) ExtractText(ctx context.Context, text string, ectx providers.ExtractContext) (providers.LLMResult, error) {
	return providers.LLMResult{}, errors.New("not used in this test")
}

func (f *fakeProvider) ExtractVision(ctx context.Context, pageImages [][]byte, ectx providers.ExtractContext) (providers.LLMResult, error) {
	return providers.LLMResult{}, errors.New("not used in this test")
}

func (f *fakeProvider) RepairJSON(ctx context.Context, previousOutput, validationError string, ectx providers.ExtractContext) (string, error) {
	return f.repairOutput, f.repairErr
}

func TestParseAndGuard_RejectsNonObjectOutput(t *testing.T) {
	e := newTestExtractor()
	_, err := e.parseAndGuard(context.Background(), Input{}, "not json", providers.ExtractContext{})
	require.Error(t, err)
}

func TestParseAndGuard_AcceptsWellFormedRecord(t *testing.T) {
	e := newTestExtractor()
	raw := `{"order":{"external_order_number":"PO-1"},"lines":[{"line_no":1,"customer_sku_raw":"ACME12345","qty":10,"uom":"KG"}],"confidence":{"order":{},"lines":[{"line_no":1,"customer_sku":0.9,"qty":0.9,"uom":0.9,"unit_price":0}],"overall":0.8}}`

	result, err := e.parseAndGuard(context.Background(), Input{SourceText: "order line ACME12345 quantity 10 KG"}, raw, providers.ExtractContext{})
	require.NoError(t, err)
	assert.False(t, result.GuardTripped)
	require.Len(t, result.Record.Lines, 1)
	assert.Equal(t, "ACME12345", *result.Record.Lines[0].CustomerSKURaw)
	assert.Equal(t, "KG", *result.Record.Lines[0].UoM)
}

func TestParseAndGuard_AnchorGuardTripsWhenLineNotInSourceText(t *testing.T) {
	e := newTestExtractor()
	raw := `{"order":{},"lines":[{"line_no":1,"customer_sku_raw":"GHOSTLINE99","qty":10,"uom":"KG"}],"confidence":{"order":{},"lines":[{"line_no":1,"customer_sku":0.9,"qty":0.9,"uom":0.9,"unit_price":0.9}],"overall":0.9}}`

	result, err := e.parseAndGuard(context.Background(), Input{SourceText: "totally unrelated text with no matching tokens"}, raw, providers.ExtractContext{})
	require.NoError(t, err)
	assert.True(t, result.GuardTripped)
	assert.LessOrEqual(t, result.Record.Confidence.Overall, 0.55)
	var found bool
	for _, w := range result.Record.Warnings {
		if w.Code == "ANCHOR_GUARD" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestParseAndGuard_RangeGuardRejectsOutOfRangeQty(t *testing.T) {
	e := newTestExtractor()
	raw := `{"order":{},"lines":[{"line_no":1,"customer_sku_raw":"A1","qty":-5,"uom":"KG"}],"confidence":{"order":{},"lines":[{"line_no":1,"customer_sku":0.9,"qty":0.9,"uom":0.9,"unit_price":0}],"overall":0.9}}`

	result, err := e.parseAndGuard(context.Background(), Input{SourceText: "A1 KG"}, raw, providers.ExtractContext{})
	require.NoError(t, err)
	assert.True(t, result.GuardTripped)
	assert.Nil(t, result.Record.Lines[0].Qty)
}

func TestParseAndGuard_UnknownUoMClearedWithWarning(t *testing.T) {
	e := newTestExtractor()
	raw := `{"order":{},"lines":[{"line_no":1,"customer_sku_raw":"A1","qty":1,"uom":"FROBNICATE"}],"confidence":{"order":{},"lines":[{"line_no":1,"customer_sku":0.9,"qty":0.9,"uom":0.9,"unit_price":0}],"overall":0.9}}`

	result, err := e.parseAndGuard(context.Background(), Input{SourceText: "A1 quantity 1"}, raw, providers.ExtractContext{})
	require.NoError(t, err)
	assert.Nil(t, result.Record.Lines[0].UoM)
	var found bool
	for _, w := range result.Record.Warnings {
		if w.Code == "UNKNOWN_UOM" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestParseAndGuard_RejectsUnknownFieldsEvenAfterFailedRepair(t *testing.T) {
	e := newTestExtractor()
	e.provider = &fakeProvider{repairErr: errors.New("repair unavailable")}
	raw := `{"order":{},"lines":[],"confidence":{"order":{},"lines":[],"overall":0},"unexpected_field":true}`
	_, err := e.parseAndGuard(context.Background(), Input{}, raw, providers.ExtractContext{})
	require.Error(t, err)
}

func TestParseAndGuard_RepairedOutputAcceptedOnSecondAttempt(t *testing.T) {
	e := newTestExtractor()
	repaired := `{"order":{},"lines":[{"line_no":1,"customer_sku_raw":"A1","qty":1,"uom":"KG"}],"confidence":{"order":{},"lines":[{"line_no":1,"customer_sku":0.9,"qty":0.9,"uom":0.9,"unit_price":0}],"overall":0.8}}`
	e.provider = &fakeProvider{repairOutput: repaired}

	malformed := `{"order":{},"lines":[{"line_no":1,"customer_sku_raw":"A1","qty":1,"uom":"KG"}],"confidence":{"order":{},"lines":[],"overall":0.8},"unexpected_field":true}`
	result, err := e.parseAndGuard(context.Background(), Input{SourceText: "A1 quantity 1 KG"}, malformed, providers.ExtractContext{})
	require.NoError(t, err)
	require.Len(t, result.Record.Lines, 1)
	assert.Equal(t, "A1", *result.Record.Lines[0].CustomerSKURaw)
}

func TestEstimateTextTokens_CeilsQuotient(t *testing.T) {
	assert.Equal(t, 0, EstimateTextTokens(""))
	assert.Equal(t, 1, EstimateTextTokens("abc"))
	assert.Equal(t, 3, EstimateTextTokens("abcdefghij")) // 10 chars -> ceil(10/4) = 3
}

func TestEstimateVisionTokens_LinearInPageCount(t *testing.T) {
	assert.Equal(t, 1500, EstimateVisionTokens(1))
	assert.Equal(t, 4500, EstimateVisionTokens(3))
}
