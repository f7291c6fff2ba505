package dax

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbi/kbic/pkg/kbi"
	"github.com/openbi/kbic/pkg/resolve"
)

func TestRewriteCaseWhen(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "single branch with else",
			input:    "CASE WHEN a != 1 THEN b ELSE c END",
			expected: "IF(a <> 1, b, c)",
		},
		{
			name:     "multiple branches",
			input:    "CASE WHEN x = 1 THEN 2 WHEN x = 2 THEN 3 ELSE 0 END",
			expected: "IF(x = 1, 2, IF(x = 2, 3, 0))",
		},
		{
			name:     "missing else falls back to blank",
			input:    "CASE WHEN x = 1 THEN 2 END",
			expected: "IF(x = 1, 2, BLANK())",
		},
		{
			name:     "logical operators in condition",
			input:    "CASE WHEN a = 1 AND b = 2 THEN x ELSE y END",
			expected: "IF(a = 1 && b = 2, x, y)",
		},
		{
			name:     "string literals requoted",
			input:    "CASE WHEN region = 'EU' THEN amount ELSE 0 END",
			expected: `IF(region = "EU", amount, 0)`,
		},
		{
			name:     "no case block passes through",
			input:    "revenue - cost",
			expected: "revenue - cost",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, RewriteCaseWhen(tt.input))
		})
	}
}

func TestSmartGenerate(t *testing.T) {
	g, err := NewSmartGenerator(testLogger(), resolve.Options{})
	require.NoError(t, err)

	def := &kbi.Definition{}
	k := &kbi.KPI{
		Description:     "Net Amount",
		Formula:         "CASE WHEN bic_type = 'NET' THEN bic_kamount ELSE 0 END",
		SourceTable:     "Sales",
		DisplaySign:     1,
		AggregationType: "SUM",
	}

	m, err := g.Generate(def, k)
	require.NoError(t, err)
	assert.Equal(t, "Net Amount", m.Name)
	assert.Equal(t, string(StrategySmart), m.FormatHint)
	assert.Contains(t, m.Formula, `IF(bic_type = "NET", bic_kamount, 0)`)
	assert.NotContains(t, m.Formula, "CASE")
}

func TestSmartGenerateSimpleFormulaMatchesBasic(t *testing.T) {
	def := &kbi.Definition{}
	k := &kbi.KPI{
		Description: "Revenue",
		Formula:     "bic_kamount",
		SourceTable: "Sales",
		DisplaySign: 1,
	}

	smart, err := NewSmartGenerator(testLogger(), resolve.Options{})
	require.NoError(t, err)
	basic := newBasic(t)

	sm, err := smart.Generate(def, k)
	require.NoError(t, err)
	bm, err := basic.Generate(def, k)
	require.NoError(t, err)

	assert.Equal(t, bm.Formula, sm.Formula)
	assert.Equal(t, bm.Name, sm.Name)
}
