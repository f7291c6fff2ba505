package convert

import (
	"context"
	"io"
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

const salesDocument = `
description: Sales measures
technical_name: sales_measures
default_variables:
  region: EMEA
filters:
  query_filter:
    active_only: status = 'active'
structures:
  act:
    description: Act
    filter:
      - version = '000'
kbi:
  - description: Total Revenue
    technical_name: total_revenue
    formula: kamount
    source_table: fact_sales
    filter:
      - $query_filter
    apply_structures:
      - act
  - description: Order Count
    technical_name: order_count
    formula: korder_count
    source_table: fact_sales
`

func boolPtr(b bool) *bool { return &b }

func TestYAMLToDAXConvert(t *testing.T) {
	c := NewYAMLToDAX(testLogger())

	resp, err := c.Convert(context.Background(), &Request{
		SourceFormat: FormatYAML,
		TargetFormat: FormatDAX,
		InputData:    []byte(salesDocument),
	})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, FormatYAML, resp.SourceFormat)
	assert.Equal(t, FormatDAX, resp.TargetFormat)
	assert.NotEmpty(t, resp.Metadata.ConversionID)
	assert.False(t, resp.Metadata.ConvertedAt.IsZero())

	// the act structure replaces the base measure with its variant
	require.Len(t, resp.OutputData.Artifacts, 2)
	assert.Equal(t, "Total Revenue Act", resp.OutputData.Artifacts[0].Name)
	assert.Equal(t, "Order Count", resp.OutputData.Artifacts[1].Name)
	assert.Equal(t, 2, resp.Metadata.Measures)

	assert.Contains(t, resp.OutputData.Formatted, "Total Revenue Act = ")
	assert.Contains(t, resp.OutputData.Formatted, "SUM(fact_sales[bic_kamount])")
	assert.Contains(t, resp.OutputData.Formatted, "Order Count = ")
}

func TestYAMLToDAXSkipStructures(t *testing.T) {
	c := NewYAMLToDAX(testLogger())

	resp, err := c.Convert(context.Background(), &Request{
		SourceFormat: FormatYAML,
		TargetFormat: FormatDAX,
		InputData:    []byte(salesDocument),
		Config:       Config{ProcessStructures: boolPtr(false)},
	})
	require.NoError(t, err)

	require.Len(t, resp.OutputData.Artifacts, 2)
	assert.Equal(t, "Total Revenue", resp.OutputData.Artifacts[0].Name)
}

func TestYAMLToDAXInvalidStrategy(t *testing.T) {
	c := NewYAMLToDAX(testLogger())

	_, err := c.Convert(context.Background(), &Request{
		SourceFormat: FormatYAML,
		TargetFormat: FormatDAX,
		InputData:    []byte(salesDocument),
		Config:       Config{Strategy: "aggressive"},
	})
	require.Error(t, err)
}

func TestYAMLToSQLConvert(t *testing.T) {
	c := NewYAMLToSQL(testLogger())

	resp, err := c.Convert(context.Background(), &Request{
		SourceFormat: FormatYAML,
		TargetFormat: FormatSQL,
		InputData:    []byte(salesDocument),
		Config:       Config{Dialect: "postgresql"},
	})
	require.NoError(t, err)

	require.Len(t, resp.OutputData.Artifacts, 2)
	assert.Contains(t, resp.OutputData.Artifacts[0].Content, `SUM("bic_kamount")`)
	assert.Contains(t, resp.OutputData.Artifacts[0].Content, `FROM "fact_sales"`)
	assert.Contains(t, resp.OutputData.Formatted, "-- Total Revenue Act\n")
	assert.Contains(t, resp.OutputData.Formatted, ";")
	assert.Empty(t, resp.Metadata.Skipped)
}

const percentileDocument = `
description: Delivery measures
kbi:
  - description: Total Revenue
    technical_name: total_revenue
    formula: kamount
    source_table: fact_sales
  - description: Delivery Time P90
    technical_name: delivery_p90
    formula: kdelivery_days
    source_table: fact_deliveries
    percentile: 0.9
`

func TestYAMLToSQLPartialFailure(t *testing.T) {
	c := NewYAMLToSQL(testLogger())

	resp, err := c.Convert(context.Background(), &Request{
		SourceFormat: FormatYAML,
		TargetFormat: FormatSQL,
		InputData:    []byte(percentileDocument),
		Config:       Config{Dialect: "mysql"},
	})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	require.Len(t, resp.OutputData.Artifacts, 1)
	assert.Equal(t, "Total Revenue", resp.OutputData.Artifacts[0].Name)
	assert.Equal(t, []string{"Delivery Time P90"}, resp.Metadata.Skipped)
	require.NotEmpty(t, resp.Warnings)
	assert.Contains(t, resp.Warnings[len(resp.Warnings)-1], "does not support")
}

func TestYAMLToSQLStrictFailure(t *testing.T) {
	c := NewYAMLToSQL(testLogger())

	_, err := c.Convert(context.Background(), &Request{
		SourceFormat: FormatYAML,
		TargetFormat: FormatSQL,
		InputData:    []byte(percentileDocument),
		Config:       Config{Dialect: "mysql", Strict: true},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not support")
}

func TestYAMLToMetricsConvert(t *testing.T) {
	c := NewYAMLToMetrics(testLogger())

	resp, err := c.Convert(context.Background(), &Request{
		SourceFormat: FormatYAML,
		TargetFormat: FormatMetrics,
		InputData:    []byte(salesDocument),
		Config:       Config{Catalog: "prod", Schema: "finance"},
	})
	require.NoError(t, err)

	require.Len(t, resp.OutputData.Artifacts, 2)
	assert.Contains(t, resp.OutputData.Artifacts[0].Content, "source: prod.finance.fact_sales")
	assert.Contains(t, resp.OutputData.Formatted, "measures:")
	assert.Contains(t, resp.OutputData.Formatted, "- name: total_revenue_act")
}

func TestValidateInput(t *testing.T) {
	c := NewYAMLToDAX(testLogger())

	tests := []struct {
		name  string
		input string
		err   bool
	}{
		{name: "valid document", input: salesDocument},
		{name: "empty input", input: "   \n", err: true},
		{name: "malformed yaml", input: "kbi: [", err: true},
		{name: "no kbis", input: "description: empty", err: true},
		{name: "missing formula", input: "kbi:\n  - description: broken", err: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := c.ValidateInput([]byte(test.input))
			if test.err {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestRegistry(t *testing.T) {
	r := NewDefaultRegistry(testLogger())

	c, err := r.Create(FormatYAML, FormatSQL)
	require.NoError(t, err)
	assert.Equal(t, FormatSQL, c.TargetFormat())

	_, err = r.Create(FormatDAX, FormatSQL)
	require.Error(t, err)

	var unsupported *UnsupportedConversionError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, FormatDAX, unsupported.Source)
	assert.Equal(t, []string{
		"yaml -> dax",
		"yaml -> metrics",
		"yaml -> sql",
	}, unsupported.Available)
}

func TestRegistryLastRegistrationWins(t *testing.T) {
	r := NewRegistry(testLogger())

	first := NewYAMLToDAX(testLogger())
	second := NewYAMLToDAX(testLogger())

	r.Register(first)
	r.Register(second)

	c, err := r.Create(FormatYAML, FormatDAX)
	require.NoError(t, err)
	assert.Same(t, second, c)
}

func TestConvertBatch(t *testing.T) {
	registry := NewDefaultRegistry(testLogger())

	requests := []*Request{
		{SourceFormat: FormatYAML, TargetFormat: FormatDAX, InputData: []byte(salesDocument)},
		{SourceFormat: FormatYAML, TargetFormat: FormatSQL, InputData: []byte(salesDocument)},
		{SourceFormat: FormatDAX, TargetFormat: FormatSQL, InputData: []byte(salesDocument)},
	}

	responses, failures := ConvertBatch(context.Background(), registry, requests, 2)

	require.Len(t, responses, 3)
	assert.NotNil(t, responses[0])
	assert.NotNil(t, responses[1])
	assert.Nil(t, responses[2])

	require.Len(t, failures, 1)
	assert.Equal(t, 2, failures[0].Index)

	var unsupported *UnsupportedConversionError
	assert.ErrorAs(t, failures[0], &unsupported)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("dax")
	require.NoError(t, err)
	assert.Equal(t, FormatDAX, f)

	_, err = ParseFormat("xml")
	require.ErrorIs(t, err, ErrUnknownFormat)
}

func TestValidateDefinition(t *testing.T) {
	t.Run("valid definition", func(t *testing.T) {
		def, err := kbi.Parse([]byte(salesDocument))
		require.NoError(t, err)

		result := ValidateDefinition(def)
		assert.True(t, result.Valid)
		assert.Empty(t, result.Errors)
		assert.Empty(t, result.Warnings)
	})

	t.Run("empty definition", func(t *testing.T) {
		result := ValidateDefinition(&kbi.Definition{})
		assert.False(t, result.Valid)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "kbis", result.Errors[0].Field)
	})

	t.Run("bad display sign", func(t *testing.T) {
		def := &kbi.Definition{
			KBIs: []*kbi.KPI{{Formula: "kamount", DisplaySign: 2}},
		}

		result := ValidateDefinition(def)
		assert.False(t, result.Valid)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "kbis[0].display_sign", result.Errors[0].Field)
	})

	t.Run("unresolved variable is a warning", func(t *testing.T) {
		def := &kbi.Definition{
			KBIs: []*kbi.KPI{{
				Formula:     "kamount",
				DisplaySign: 1,
				Filters:     []kbi.FilterItem{kbi.StringFilter("plant = $var_plant")},
			}},
		}

		result := ValidateDefinition(def)
		assert.True(t, result.Valid)
		require.Len(t, result.Warnings, 1)
		assert.Contains(t, result.Warnings[0].Message, "$var_plant")
	})

	t.Run("undefined structure is a warning", func(t *testing.T) {
		def := &kbi.Definition{
			KBIs: []*kbi.KPI{{
				Formula:         "kamount",
				DisplaySign:     1,
				ApplyStructures: []string{"missing"},
			}},
		}

		result := ValidateDefinition(def)
		assert.True(t, result.Valid)
		require.Len(t, result.Warnings, 1)
		assert.Equal(t, "structures", result.Warnings[0].Field)
	})

	t.Run("structure cycle is an error", func(t *testing.T) {
		def := &kbi.Definition{
			Structures: map[string]*kbi.Structure{
				"a": {Description: "A", Formula: "( b )"},
				"b": {Description: "B", Formula: "( a )"},
			},
			KBIs: []*kbi.KPI{{Formula: "kamount", DisplaySign: 1}},
		}

		result := ValidateDefinition(def)
		assert.False(t, result.Valid)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "structures", result.Errors[0].Field)
	})
}
