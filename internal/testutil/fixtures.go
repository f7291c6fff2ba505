package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// SalesDocument is a representative definition exercising variables, query
// filters, structured filters and structure composition.
const SalesDocument = `
description: Sales measures
technical_name: sales_measures
default_variables:
  region: EMEA
  year: 2024
filters:
  query_filter:
    active_only: status = 'active'
    current_year: fiscal_year = $var_year
structures:
  act_ytd:
    description: Act YTD
    filter:
      - version = '000'
  full_year:
    description: Full Year
    formula: ( act_ytd )
kbi:
  - description: Total Revenue
    technical_name: total_revenue
    formula: kamount
    source_table: fact_sales
    filter:
      - $query_filter
      - field: country
        operator: "="
        value: DE
    apply_structures:
      - act_ytd
      - full_year
  - description: Order Count
    technical_name: order_count
    formula: korder_count
    source_table: fact_sales
`

// InventoryDocument exercises exception aggregation and display signs.
const InventoryDocument = `
description: Inventory measures
technical_name: inventory_measures
kbi:
  - description: Month End Stock
    technical_name: month_end_stock
    formula: kquantity_stock
    source_table: fact_inventory
    exception_aggregation: max
    fields_for_exception_aggregation:
      - calmonth
  - description: Write-offs
    technical_name: write_offs
    formula: kamount_writeoff
    source_table: fact_inventory
    display_sign: -1
`

// BrokenDocument fails validation: the measure has no formula.
const BrokenDocument = `
description: Broken measures
kbi:
  - description: No formula here
`

// WriteDocuments lays the named fixtures out as .yaml files in a fresh
// temporary directory and returns its path.
func WriteDocuments(t *testing.T, docs map[string]string) string {
	t.Helper()

	dir := t.TempDir()

	for name, content := range docs {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}

	return dir
}
