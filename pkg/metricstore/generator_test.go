package metricstore

import (
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbi/kbic/pkg/kbi"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newGenerator(t *testing.T, opts Options) *Generator {
	t.Helper()

	g, err := NewGenerator(testLogger(), opts)
	require.NoError(t, err)

	return g
}

func TestGenerateSingleMeasure(t *testing.T) {
	def := &kbi.Definition{}
	k := &kbi.KPI{
		Description:   "Total Revenue",
		TechnicalName: "total_revenue",
		Formula:       "kamount",
		SourceTable:   "fact_sales",
		DisplaySign:   1,
		Filters: []kbi.FilterItem{
			kbi.StringFilter("region = 'EU'"),
		},
	}

	m, err := newGenerator(t, Options{}).Generate(def, k)
	require.NoError(t, err)

	assert.Equal(t, "total_revenue", m.Name)
	assert.Equal(t, "sum", m.MetricType)
	assert.Equal(t, "currency", m.Unit)
	assert.Empty(t, m.Warnings)

	assert.Contains(t, m.Definition, "version: 0.1")
	assert.Contains(t, m.Definition, `# --- Metrics store definition for "Total Revenue" ---`)
	assert.Contains(t, m.Definition, "source: catalog.schema.fact_sales")
	assert.Contains(t, m.Definition, "filter: region = 'EU'")
	assert.Contains(t, m.Definition, "  - name: total_revenue")
	assert.Contains(t, m.Definition, "    expr: SUM(bic_kamount)")
}

func TestGenerateSourceQualification(t *testing.T) {
	tests := []struct {
		name     string
		opts     Options
		table    string
		expected string
	}{
		{
			name:     "default catalog and schema",
			table:    "fact_sales",
			expected: "source: catalog.schema.fact_sales",
		},
		{
			name:     "custom catalog and schema",
			opts:     Options{Catalog: "prod", Schema: "finance"},
			table:    "fact_sales",
			expected: "source: prod.finance.fact_sales",
		},
		{
			name:     "already qualified stays untouched",
			opts:     Options{Catalog: "prod", Schema: "finance"},
			table:    "legacy.dbo.fact_sales",
			expected: "source: legacy.dbo.fact_sales",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			def := &kbi.Definition{}
			k := &kbi.KPI{
				Description: "Total Revenue",
				Formula:     "kamount",
				SourceTable: test.table,
				DisplaySign: 1,
			}

			m, err := newGenerator(t, test.opts).Generate(def, k)
			require.NoError(t, err)

			assert.Contains(t, m.Definition, test.expected)
		})
	}
}

func TestGenerateDisplaySign(t *testing.T) {
	def := &kbi.Definition{}
	k := &kbi.KPI{
		Description: "Cost of Goods",
		Formula:     "kamount_cogs",
		SourceTable: "fact_sales",
		DisplaySign: -1,
	}

	m, err := newGenerator(t, Options{}).Generate(def, k)
	require.NoError(t, err)

	assert.Contains(t, m.Definition, "expr: (-1) * SUM(bic_kamount_cogs)")
}

func TestGenerateWindowConfig(t *testing.T) {
	t.Run("exception aggregation fields", func(t *testing.T) {
		def := &kbi.Definition{}
		k := &kbi.KPI{
			Description:                   "Stock Level",
			Formula:                       "kquantity_stock",
			SourceTable:                   "fact_inventory",
			ExceptionAggregation:          "max",
			FieldsForExceptionAggregation: []string{"calmonth"},
			DisplaySign:                   1,
		}

		m, err := newGenerator(t, Options{}).Generate(def, k)
		require.NoError(t, err)

		assert.Contains(t, m.Definition, "    window:")
		assert.Contains(t, m.Definition, "      - order: calmonth")
		assert.Contains(t, m.Definition, "        range: current")
		assert.Contains(t, m.Definition, "        semiadditive: last")
	})

	t.Run("constant selection fields", func(t *testing.T) {
		def := &kbi.Definition{}
		k := &kbi.KPI{
			Description:                "Exchange Rate",
			Formula:                    "krate",
			SourceTable:                "fact_rates",
			FieldsForConstantSelection: []string{"currency"},
			DisplaySign:                1,
		}

		m, err := newGenerator(t, Options{}).Generate(def, k)
		require.NoError(t, err)

		assert.Contains(t, m.Definition, "      - order: currency")
	})
}

func TestGenerateDocument(t *testing.T) {
	def := &kbi.Definition{
		Description:      "Sales reporting measures",
		DefaultVariables: map[string]any{"year": 2024},
		QueryFilters: []kbi.QueryFilter{
			{Name: "current_year", Expression: "fiscal_year = $var_year"},
		},
		KBIs: []*kbi.KPI{
			{
				Description:   "Total Revenue",
				TechnicalName: "total_revenue",
				Formula:       "kamount",
				SourceTable:   "fact_sales",
				DisplaySign:   1,
				Filters: []kbi.FilterItem{
					kbi.StringFilter("$query_filter"),
				},
			},
			{
				Description:   "EU Revenue",
				TechnicalName: "eu_revenue",
				Formula:       "kamount",
				SourceTable:   "fact_sales",
				DisplaySign:   1,
				Filters: []kbi.FilterItem{
					kbi.StringFilter("$query_filter"),
					kbi.StringFilter("region = 'EU'"),
				},
			},
		},
	}

	text, warnings, err := newGenerator(t, Options{}).GenerateDocument(def)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.Contains(t, text, `# --- Metrics store definition for "Sales reporting measures" ---`)
	assert.Contains(t, text, "source: catalog.schema.fact_sales")
	assert.Contains(t, text, "filter: (fiscal_year = 2024)")
	assert.Contains(t, text, "  - name: total_revenue\n    expr: SUM(bic_kamount)")
	assert.Contains(t, text, "  - name: eu_revenue\n    expr: SUM(bic_kamount) FILTER (WHERE region = 'EU')")

	// the shared query filter must not leak into measure-specific clauses
	assert.Equal(t, 1, strings.Count(text, "fiscal_year = 2024"))
}

func TestGenerateDocumentEmpty(t *testing.T) {
	_, _, err := newGenerator(t, Options{}).GenerateDocument(&kbi.Definition{})
	require.ErrorIs(t, err, ErrNoMeasures)
}

func TestUnitHint(t *testing.T) {
	tests := []struct {
		formula  string
		expected string
	}{
		{formula: "kamount", expected: "currency"},
		{formula: "kquantity_sold", expected: "units"},
		{formula: "kvolume_c", expected: "units"},
		{formula: "order_count", expected: "count"},
		{formula: "krate", expected: ""},
	}

	for _, test := range tests {
		t.Run(test.formula, func(t *testing.T) {
			assert.Equal(t, test.expected, unitHint(test.formula))
		})
	}
}

func TestMeasureName(t *testing.T) {
	tests := []struct {
		name     string
		k        *kbi.KPI
		expected string
	}{
		{
			name:     "technical name wins",
			k:        &kbi.KPI{TechnicalName: "total_revenue", Description: "Total Revenue"},
			expected: "total_revenue",
		},
		{
			name:     "description slugged",
			k:        &kbi.KPI{Description: "Total Revenue"},
			expected: "total_revenue",
		},
		{
			name:     "empty falls back",
			k:        &kbi.KPI{},
			expected: "unnamed_measure",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, measureName(test.k))
		})
	}
}
