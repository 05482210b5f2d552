package rules

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func buildXLSX(t *testing.T, rows [][]string) []byte {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for r, row := range rows {
		for c, val := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue(sheet, cell, val))
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func TestExtractXLSX_ParsesHeaderAndLines(t *testing.T) {
	raw := buildXLSX(t, [][]string{
		{"SKU", "Description", "Qty", "UoM", "Unit Price"},
		{"A1", "Widget", "10", "KG", "2.5"},
		{"A2", "Gadget", "3", "L", "9.99"},
	})

	rec, err := ExtractXLSX(raw, nil)
	require.NoError(t, err)
	require.Len(t, rec.Lines, 2)
	assert.Equal(t, XLSXExtractorVersion, rec.ExtractorVersion)
	assert.Equal(t, "A1", *rec.Lines[0].CustomerSKURaw)
	assert.Equal(t, 10.0, *rec.Lines[0].Qty)
	assert.Equal(t, "KG", *rec.Lines[0].UoM)
}

func TestExtractXLSX_SkipsLeadingTitleRowsBeforeHeader(t *testing.T) {
	raw := buildXLSX(t, [][]string{
		{"Purchase Order"},
		{"SKU", "Qty", "UoM"},
		{"A1", "1", "ST"},
	})

	rec, err := ExtractXLSX(raw, nil)
	require.NoError(t, err)
	require.Len(t, rec.Lines, 1)
	assert.Equal(t, "A1", *rec.Lines[0].CustomerSKURaw)
}

func TestExtractXLSX_BlankRowsSkipped(t *testing.T) {
	raw := buildXLSX(t, [][]string{
		{"SKU", "Qty", "UoM"},
		{"A1", "1", "ST"},
		{},
		{"A2", "2", "ST"},
	})

	rec, err := ExtractXLSX(raw, nil)
	require.NoError(t, err)
	require.Len(t, rec.Lines, 2)
	assert.Equal(t, 1, rec.Lines[0].LineNo)
	assert.Equal(t, 2, rec.Lines[1].LineNo)
}

func TestExtractXLSX_NoHeaderRowErrors(t *testing.T) {
	raw := buildXLSX(t, [][]string{
		{"only one"},
	})

	_, err := ExtractXLSX(raw, nil)
	require.Error(t, err)
}
