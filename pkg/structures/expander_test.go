package structures

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbi/kbic/pkg/kbi"
	"github.com/openbi/kbic/pkg/resolve"
)

func newTestExpander(t *testing.T) *Expander {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	return NewExpander(log)
}

func testDefinition() *kbi.Definition {
	return &kbi.Definition{
		Description:   "Excise Tax",
		TechnicalName: "excise_tax",
		Structures: map[string]*kbi.Structure{
			"act_ytd": {
				Description: "Actuals YTD",
				Filters: []kbi.FilterItem{
					kbi.StringFilter("fiscper3 < $var_current_period"),
				},
				Variables: map[string]any{"version": "0000"},
			},
			"re_ytg": {
				Description: "Forecast YTG",
				DisplaySign: -1,
				Filters: []kbi.FilterItem{
					kbi.StringFilter("fiscper3 >= $var_current_period"),
				},
			},
			"full_year": {
				Description: "Full Year",
				Formula:     "( act_ytd ) + ( re_ytg )",
			},
		},
		KBIs: []*kbi.KPI{
			{
				Description:     "Excise Tax Actual",
				TechnicalName:   "excise_tax_actual",
				Formula:         "kvolume_c",
				DisplaySign:     1,
				Filters:         []kbi.FilterItem{kbi.StringFilter("$query_filter")},
				ApplyStructures: []string{"act_ytd", "re_ytg", "full_year"},
			},
			{
				Description:   "Order Count",
				TechnicalName: "order_count",
				Formula:       "order_count",
				DisplaySign:   1,
			},
		},
	}
}

func TestExpand(t *testing.T) {
	def := testDefinition()

	expanded, err := newTestExpander(t).Expand(def)
	require.NoError(t, err)
	require.Len(t, expanded.KBIs, 4)

	// filter structure: base filters plus structure filters, variables merged
	actYTD := expanded.KBIs[0]
	assert.Equal(t, "excise_tax_actual_act_ytd", actYTD.TechnicalName)
	assert.Equal(t, "Excise Tax Actual - Actuals YTD", actYTD.Description)
	assert.Equal(t, "kvolume_c", actYTD.Formula)
	assert.Equal(t, 1, actYTD.DisplaySign)
	require.Len(t, actYTD.Filters, 2)
	assert.Equal(t, "$query_filter", actYTD.Filters[0].Raw)
	assert.Equal(t, "fiscper3 < $var_current_period", actYTD.Filters[1].Raw)
	assert.Equal(t, "0000", actYTD.Variables["version"])

	// structure display sign multiplies the base sign
	reYTG := expanded.KBIs[1]
	assert.Equal(t, "excise_tax_actual_re_ytg", reYTG.TechnicalName)
	assert.Equal(t, -1, reYTG.DisplaySign)

	// formula structure: calculated measure referencing the combined names
	fullYear := expanded.KBIs[2]
	assert.Equal(t, "excise_tax_actual_full_year", fullYear.TechnicalName)
	assert.Equal(t, "excise_tax_actual_act_ytd + excise_tax_actual_re_ytg", fullYear.Formula)
	assert.Equal(t, resolve.AggregationCalculated, fullYear.AggregationType)
	assert.Empty(t, fullYear.Filters)
	assert.Empty(t, fullYear.SourceTable)

	// KPI without structures passes through untouched
	assert.Same(t, def.KBIs[1], expanded.KBIs[3])
}

func TestExpandDoesNotMutateInput(t *testing.T) {
	def := testDefinition()

	_, err := newTestExpander(t).Expand(def)
	require.NoError(t, err)

	assert.Len(t, def.KBIs, 2)
	assert.Len(t, def.KBIs[0].Filters, 1)
	assert.Equal(t, []string{"act_ytd", "re_ytg", "full_year"}, def.KBIs[0].ApplyStructures)
}

func TestExpandIdempotent(t *testing.T) {
	def := testDefinition()
	e := newTestExpander(t)

	once, err := e.Expand(def)
	require.NoError(t, err)

	twice, err := e.Expand(once)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestExpandNoStructures(t *testing.T) {
	def := &kbi.Definition{
		KBIs: []*kbi.KPI{{Formula: "kvolume_c", DisplaySign: 1}},
	}

	expanded, err := newTestExpander(t).Expand(def)
	require.NoError(t, err)
	assert.Same(t, def, expanded)
}

func TestExpandUnknownStructureSkipped(t *testing.T) {
	def := &kbi.Definition{
		Structures: map[string]*kbi.Structure{
			"act_ytd": {Description: "Actuals YTD"},
		},
		KBIs: []*kbi.KPI{
			{
				TechnicalName:   "revenue",
				Formula:         "kvolume_c",
				DisplaySign:     1,
				ApplyStructures: []string{"act_ytd", "missing"},
			},
		},
	}

	expanded, err := newTestExpander(t).Expand(def)
	require.NoError(t, err)
	require.Len(t, expanded.KBIs, 1)
	assert.Equal(t, "revenue_act_ytd", expanded.KBIs[0].TechnicalName)
}

func TestExpandCycleFails(t *testing.T) {
	def := &kbi.Definition{
		Structures: map[string]*kbi.Structure{
			"a": {Formula: "( b )"},
			"b": {Formula: "( a )"},
		},
		KBIs: []*kbi.KPI{{Formula: "kvolume_c", DisplaySign: 1}},
	}

	_, err := newTestExpander(t).Expand(def)
	require.Error(t, err)

	var cycleErr *CycleError
	assert.ErrorAs(t, err, &cycleErr)
}

func TestExpandGeneratedTechnicalName(t *testing.T) {
	def := &kbi.Definition{
		Structures: map[string]*kbi.Structure{
			"act_ytd": {Description: "Actuals YTD"},
		},
		KBIs: []*kbi.KPI{
			{
				Description:     "Total Revenue (EUR)",
				Formula:         "kvolume_c",
				DisplaySign:     1,
				ApplyStructures: []string{"act_ytd"},
			},
		},
	}

	expanded, err := newTestExpander(t).Expand(def)
	require.NoError(t, err)
	require.Len(t, expanded.KBIs, 1)
	assert.Equal(t, "total_revenue_eur_act_ytd", expanded.KBIs[0].TechnicalName)
}

func TestGenerateTechnicalName(t *testing.T) {
	assert.Equal(t, "total_revenue_eur", GenerateTechnicalName("Total Revenue (EUR)!"))
	assert.Equal(t, "excise_tax", GenerateTechnicalName("  Excise   Tax  "))
}

func TestValidateReferences(t *testing.T) {
	def := &kbi.Definition{
		Structures: map[string]*kbi.Structure{
			"a": {Formula: "( b )"},
			"b": {Formula: "( a )"},
		},
		KBIs: []*kbi.KPI{
			{TechnicalName: "revenue", Formula: "kvolume_c", DisplaySign: 1, ApplyStructures: []string{"missing"}},
		},
	}

	problems := ValidateReferences(def)
	require.Len(t, problems, 2)
	assert.Contains(t, problems[0], "circular structure dependency")
	assert.Contains(t, problems[1], "undefined structure: missing")
}
