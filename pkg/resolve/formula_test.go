package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openbi/kbic/pkg/kbi"
)

func TestTranslateFormula(t *testing.T) {
	tests := []struct {
		name     string
		kpi      kbi.KPI
		expected Translation
	}{
		{
			name: "key figure with inferred table",
			kpi:  kbi.KPI{Formula: "kvolume_c"},
			expected: Translation{
				Aggregation:   AggregationSum,
				Table:         "VolumeData",
				Column:        "bic_kvolume_c",
				TableInferred: true,
			},
		},
		{
			name: "declared source table wins",
			kpi:  kbi.KPI{Formula: "bic_kamount", SourceTable: "fact_sales"},
			expected: Translation{
				Aggregation: AggregationSum,
				Table:       "fact_sales",
				Column:      "bic_kamount",
			},
		},
		{
			name: "count keyword",
			kpi:  kbi.KPI{Formula: "order_count", SourceTable: "fact_orders"},
			expected: Translation{
				Aggregation: AggregationCount,
				Table:       "fact_orders",
				Column:      "bic_order_count",
			},
		},
		{
			name: "explicit aggregation type wins over keywords",
			kpi:  kbi.KPI{Formula: "kvolume_c", AggregationType: "average", SourceTable: "fact_sales"},
			expected: Translation{
				Aggregation: AggregationAverage,
				Table:       "fact_sales",
				Column:      "bic_kvolume_c",
			},
		},
		{
			name: "no keyword defaults to sum",
			kpi:  kbi.KPI{Formula: "price", SourceTable: "fact_sales"},
			expected: Translation{
				Aggregation: AggregationSum,
				Table:       "fact_sales",
				Column:      "bic_price",
			},
		},
		{
			name: "calculated expression passes through",
			kpi:  kbi.KPI{Formula: "revenue - cost", SourceTable: "fact_sales"},
			expected: Translation{
				Aggregation: AggregationCalculated,
				Table:       "fact_sales",
				Column:      "revenue - cost",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, TranslateFormula(&tt.kpi))
		})
	}
}

func TestSynthesizeTableName(t *testing.T) {
	tests := []struct {
		field    string
		expected string
	}{
		{"bic_kvolume_c", "VolumeData"},
		{"bic_amount", "AmountData"},
		{"bic_kamount", "AmountData"},
		{"quantity_sold", "QuantityData"},
		{"bic_", "FactTable"},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			assert.Equal(t, tt.expected, SynthesizeTableName(tt.field))
		})
	}
}

func TestTableLabel(t *testing.T) {
	assert.Equal(t, "Sales Amount", TableLabel("bic_sales_amount"))
	assert.Equal(t, "Country", TableLabel("country"))
	assert.Equal(t, "Kvolume C", TableLabel("bic_kvolume_c"))
}

func TestMeasureName(t *testing.T) {
	tests := []struct {
		name     string
		kpi      kbi.KPI
		expected string
	}{
		{
			name:     "description cleaned of punctuation",
			kpi:      kbi.KPI{Description: "Total Revenue (EUR)!"},
			expected: "Total Revenue EUR",
		},
		{
			name:     "technical name title cased",
			kpi:      kbi.KPI{TechnicalName: "total_revenue"},
			expected: "Total Revenue",
		},
		{
			name:     "formula as last resort",
			kpi:      kbi.KPI{Formula: "bic_kvolume_c"},
			expected: "Kvolume C",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MeasureName(&tt.kpi))
		})
	}
}

func TestIsSimpleColumn(t *testing.T) {
	assert.True(t, IsSimpleColumn("bic_kvolume_c"))
	assert.True(t, IsSimpleColumn("  amount  "))
	assert.False(t, IsSimpleColumn("revenue - cost"))
	assert.False(t, IsSimpleColumn("SUM(amount)"))
	assert.False(t, IsSimpleColumn(""))
}
