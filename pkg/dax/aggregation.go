package dax

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/openbi/kbic/pkg/kbi"
	"github.com/openbi/kbic/pkg/resolve"
)

// fallbackTable anchors filter expressions when no table can be resolved.
const fallbackTable = "Table"

// iterator aggregations used for exception aggregation over grouped rows.
var exceptionIterators = map[string]string{
	"sum":     "SUMX",
	"avg":     "AVERAGEX",
	"average": "AVERAGEX",
	"max":     "MAXX",
	"min":     "MINX",
	"count":   "COUNTX",
}

// baseExpression renders the unfiltered aggregation body for a KPI.
func baseExpression(k *kbi.KPI, t resolve.Translation, table string) string {
	columnRef := fmt.Sprintf("%s[%s]", table, t.Column)

	switch {
	case k.ExceptionAggregation != "" && len(k.FieldsForExceptionAggregation) > 0:
		return exceptionExpression(k, t, table, columnRef)
	case k.WeightColumn != "":
		weightRef := fmt.Sprintf("%s[%s]", table, k.WeightColumn)
		return fmt.Sprintf("DIVIDE(\n    SUMX(%s, %s * %s),\n    SUM(%s),\n    0\n)",
			table, columnRef, weightRef, weightRef)
	case k.Percentile > 0:
		return fmt.Sprintf("PERCENTILEX.INC(%s, %s, %g)", table, columnRef, k.Percentile)
	}

	switch t.Aggregation {
	case resolve.AggregationCalculated:
		return t.Column
	case resolve.AggregationDistinctCount:
		return fmt.Sprintf("DISTINCTCOUNT(%s)", columnRef)
	case "COUNTROWS":
		return fmt.Sprintf("COUNTROWS(%s)", table)
	default:
		return fmt.Sprintf("%s(%s)", t.Aggregation, columnRef)
	}
}

// exceptionExpression renders the two-level aggregation: the formula is
// aggregated per group of the exception fields, then the per-group values
// are re-aggregated by the exception aggregation. Flattening this into one
// aggregate would change the semantics.
func exceptionExpression(k *kbi.KPI, t resolve.Translation, table, columnRef string) string {
	outer, ok := exceptionIterators[strings.ToLower(k.ExceptionAggregation)]
	if !ok {
		outer = "SUMX"
	}

	inner := t.Aggregation
	if inner == "" || inner == resolve.AggregationCalculated {
		inner = resolve.AggregationSum
	}

	groupRefs := make([]string, len(k.FieldsForExceptionAggregation))
	for i, field := range k.FieldsForExceptionAggregation {
		groupRefs[i] = fmt.Sprintf("%s[%s]", table, field)
	}

	return fmt.Sprintf("%s(\n    SUMMARIZE(\n        %s,\n        %s,\n        \"GroupValue\", %s(%s)\n    ),\n    [GroupValue]\n)",
		outer, table, strings.Join(groupRefs, ",\n        "), inner, columnRef)
}

var (
	notInPattern     = regexp.MustCompile(`(\w+)\s+NOT\s+IN\s*\(([^)]+)\)`)
	inPattern        = regexp.MustCompile(`(\w+)\s+IN\s*\(([^)]+)\)`)
	betweenPattern   = regexp.MustCompile(`(\w+)\s+BETWEEN\s+'?([^'\s]+)'?\s+AND\s+'?([^'\s]+)'?`)
	eqSinglePattern  = regexp.MustCompile(`(\w+)\s*=\s*'([^']+)'`)
	eqDoublePattern  = regexp.MustCompile(`(\w+)\s*=\s*"([^"]+)"`)
	eqNumberPattern  = regexp.MustCompile(`(\w+)\s*=\s*([0-9]+(?:\.[0-9]+)?)`)
	nullTokenPattern = regexp.MustCompile(`\bNULL\b`)
)

// convertFilterCondition rewrites an SQL-style predicate into a tabular
// expression anchored on the given table: column tokens become Table[column]
// references, IN lists become set literals, logical operators become the
// symbolic forms and NULL becomes BLANK().
func convertFilterCondition(condition, table string) string {
	result := strings.TrimSpace(condition)
	if result == "" {
		return result
	}

	result = notInPattern.ReplaceAllStringFunc(result, func(match string) string {
		groups := notInPattern.FindStringSubmatch(match)
		values := strings.ReplaceAll(groups[2], "'", `"`)
		return fmt.Sprintf("NOT %s[%s] IN {%s}", table, groups[1], values)
	})
	result = inPattern.ReplaceAllStringFunc(result, func(match string) string {
		groups := inPattern.FindStringSubmatch(match)
		values := strings.ReplaceAll(groups[2], "'", `"`)
		return fmt.Sprintf("%s[%s] IN {%s}", table, groups[1], values)
	})
	result = betweenPattern.ReplaceAllStringFunc(result, func(match string) string {
		groups := betweenPattern.FindStringSubmatch(match)
		return fmt.Sprintf("(%s[%s] >= \"%s\" && %s[%s] <= \"%s\")",
			table, groups[1], groups[2], table, groups[1], groups[3])
	})
	result = eqSinglePattern.ReplaceAllString(result, table+`[$1] = "$2"`)
	result = eqDoublePattern.ReplaceAllString(result, table+`[$1] = "$2"`)
	result = eqNumberPattern.ReplaceAllString(result, table+`[$1] = $2`)

	result = strings.ReplaceAll(result, " AND ", " && ")
	result = strings.ReplaceAll(result, " OR ", " || ")
	result = strings.ReplaceAll(result, "!=", "<>")
	result = nullTokenPattern.ReplaceAllString(result, "BLANK()")

	return result
}

// wrapFilters builds the CALCULATE wrapper: every resolved filter becomes a
// FILTER argument and every constant-selection field a REMOVEFILTERS. With
// nothing to wrap the base formula passes through unchanged.
func wrapFilters(base string, filters []string, table string, k *kbi.KPI) string {
	var args []string

	for _, condition := range filters {
		converted := convertFilterCondition(condition, table)
		args = append(args, fmt.Sprintf("FILTER(\n        %s,\n        %s\n    )", table, converted))
	}
	for _, field := range k.FieldsForConstantSelection {
		args = append(args, fmt.Sprintf("REMOVEFILTERS(%s[%s])", table, field))
	}

	if len(args) == 0 {
		return base
	}

	return fmt.Sprintf("CALCULATE(\n    %s,\n\n    %s\n)", base, strings.Join(args, ",\n\n    "))
}

// applySign multiplies the formula by the display sign when it is not 1.
func applySign(formula string, sign int) string {
	if sign == 1 || sign == 0 {
		return formula
	}
	return fmt.Sprintf("%d * (%s)", sign, formula)
}
