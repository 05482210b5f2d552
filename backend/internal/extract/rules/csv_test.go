package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractCSV_ParsesHeaderSynonymsAndLines(t *testing.T) {
	raw := []byte("SKU,Description,Qty,UoM,Unit Price,Currency\n" +
		"ACME-1,Widget,10,EA,2.50,USD\n" +
		"ACME-2,Gadget,5,KG,9.99,USD\n")

	rec, err := ExtractCSV(raw, nil)
	require.NoError(t, err)
	require.Len(t, rec.Lines, 2)

	assert.Equal(t, CSVExtractorVersion, rec.ExtractorVersion)
	assert.Equal(t, "ACME-1", *rec.Lines[0].CustomerSKURaw)
	assert.Equal(t, "Widget", *rec.Lines[0].ProductDescription)
	assert.Equal(t, 10.0, *rec.Lines[0].Qty)
	assert.Equal(t, "ST", *rec.Lines[0].UoM) // EA is a synonym for canonical ST
	assert.Equal(t, 2.50, *rec.Lines[0].UnitPrice)
	assert.Equal(t, "USD", *rec.Lines[0].Currency)
	assert.Equal(t, "KG", *rec.Lines[1].UoM) // already canonical
	assert.Greater(t, rec.Confidence.Overall, 0.0)
}

func TestExtractCSV_TenantSynonymTakesPriorityOverDefault(t *testing.T) {
	raw := []byte("ItemCode,Qty,UoM\nX1,3,EA\n")
	tenantSynonyms := map[string]string{"ITEMCODE": "sku"}

	rec, err := ExtractCSV(raw, tenantSynonyms)
	require.NoError(t, err)
	require.Len(t, rec.Lines, 1)
	assert.Equal(t, "X1", *rec.Lines[0].CustomerSKURaw)
}

func TestExtractCSV_DetectsSemicolonDelimiter(t *testing.T) {
	raw := []byte("SKU;Qty;UoM\nA1;7;KG\n")

	rec, err := ExtractCSV(raw, nil)
	require.NoError(t, err)
	require.Len(t, rec.Lines, 1)
	assert.Equal(t, "A1", *rec.Lines[0].CustomerSKURaw)
	assert.Equal(t, 7.0, *rec.Lines[0].Qty)
}

func TestExtractCSV_DecimalCommaConvention(t *testing.T) {
	raw := []byte("SKU;Menge;Einheit;Preis\nA1;1,5;KG;10,99\n")

	rec, err := ExtractCSV(raw, nil)
	require.NoError(t, err)
	require.Len(t, rec.Lines, 1)
	assert.InDelta(t, 1.5, *rec.Lines[0].Qty, 0.0001)
	assert.InDelta(t, 10.99, *rec.Lines[0].UnitPrice, 0.0001)
}

func TestExtractCSV_UnrecognizedUoMWarns(t *testing.T) {
	raw := []byte("SKU,Qty,UoM\nA1,1,ZZZ\n")

	rec, err := ExtractCSV(raw, nil)
	require.NoError(t, err)
	require.Len(t, rec.Lines, 1)
	assert.Nil(t, rec.Lines[0].UoM)
	var found bool
	for _, w := range rec.Warnings {
		if w.Code == "UNKNOWN_UOM" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestExtractCSV_EmptyInputErrors(t *testing.T) {
	_, err := ExtractCSV([]byte(""), nil)
	require.Error(t, err)
}

func TestExtractCSV_BlankLinesSkipped(t *testing.T) {
	raw := []byte("SKU,Qty,UoM\nA1,1,EA\n\nA2,2,EA\n")

	rec, err := ExtractCSV(raw, nil)
	require.NoError(t, err)
	assert.Len(t, rec.Lines, 2)
	assert.Equal(t, 1, rec.Lines[0].LineNo)
	assert.Equal(t, 2, rec.Lines[1].LineNo)
}
