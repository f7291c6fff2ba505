package resolve

import (
	"regexp"
	"strings"

	"github.com/openbi/kbic/pkg/kbi"
)

// Aggregation function names shared by the generators.
const (
	AggregationSum           = "SUM"
	AggregationCount         = "COUNT"
	AggregationAverage       = "AVERAGE"
	AggregationMin           = "MIN"
	AggregationMax           = "MAX"
	AggregationDistinctCount = "DISTINCTCOUNT"
	AggregationCalculated    = "CALCULATED"
)

// aggregationKeywords maps warehouse field naming conventions to the
// aggregation they imply. Order matters: earlier keywords win, and the
// k-prefixed key figure forms are matched through their embedded keyword.
var aggregationKeywords = []struct {
	keyword     string
	aggregation string
}{
	{"volume", AggregationSum},
	{"amount", AggregationSum},
	{"quantity", AggregationSum},
	{"count", AggregationCount},
	{"avg", AggregationAverage},
	{"max", AggregationMax},
	{"min", AggregationMin},
}

var (
	simpleColumnPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
	nonWordPattern      = regexp.MustCompile(`[^\w\s]`)
	spacePattern        = regexp.MustCompile(`\s+`)
)

// Translation is the decomposition of a KPI formula into the parts the
// target generators assemble from: an aggregation function, a source table
// and a column. TableInferred marks a table name synthesized from field
// naming conventions rather than declared in the source.
type Translation struct {
	Aggregation   string
	Table         string
	Column        string
	TableInferred bool
}

// TranslateFormula decomposes a KPI formula. An explicit aggregation_type
// always wins; otherwise the aggregation is inferred from naming keywords in
// the formula, defaulting to SUM. Formulas that are not simple column
// references are passed through as calculated expressions.
func TranslateFormula(k *kbi.KPI) Translation {
	formula := strings.TrimSpace(k.Formula)

	if !IsSimpleColumn(formula) {
		return Translation{
			Aggregation: AggregationCalculated,
			Table:       k.SourceTable,
			Column:      formula,
		}
	}

	column := formula
	if !strings.HasPrefix(column, "bic_") {
		column = "bic_" + column
	}

	translation := Translation{
		Aggregation: inferAggregation(k),
		Column:      column,
	}

	if k.SourceTable != "" {
		translation.Table = k.SourceTable
	} else {
		translation.Table = SynthesizeTableName(column)
		translation.TableInferred = true
	}

	return translation
}

// IsSimpleColumn reports whether a formula is a bare column reference.
func IsSimpleColumn(formula string) bool {
	return simpleColumnPattern.MatchString(strings.TrimSpace(formula))
}

func inferAggregation(k *kbi.KPI) string {
	if k.AggregationType != "" {
		return strings.ToUpper(k.AggregationType)
	}

	formula := strings.ToLower(k.Formula)
	for _, entry := range aggregationKeywords {
		if strings.Contains(formula, entry.keyword) {
			return entry.aggregation
		}
	}

	return AggregationSum
}

// SynthesizeTableName derives a table name from a warehouse field name when
// no source table is declared: kvolume_c becomes VolumeData. The result is
// a guess and callers surface it as low confidence.
func SynthesizeTableName(field string) string {
	base := strings.TrimPrefix(field, "bic_")

	parts := strings.Split(base, "_")
	if len(parts) == 0 || parts[0] == "" {
		return "FactTable"
	}

	main := parts[0]
	// key figures conventionally carry a leading k
	if strings.HasPrefix(main, "k") && len(main) > 1 {
		main = main[1:]
	}

	return capitalize(main) + "Data"
}

// TableLabel renders a field name as a human-readable table label: the
// warehouse prefix is stripped and underscores become title-cased words.
func TableLabel(field string) string {
	base := strings.ReplaceAll(field, "bic_", "")
	return titleWords(strings.ReplaceAll(base, "_", " "))
}

// MeasureName derives the display name for a measure: the description with
// punctuation stripped, falling back to the title-cased technical name and
// finally to the formula itself.
func MeasureName(k *kbi.KPI) string {
	if k.Description != "" {
		name := nonWordPattern.ReplaceAllString(k.Description, "")
		return strings.TrimSpace(spacePattern.ReplaceAllString(name, " "))
	}
	if k.TechnicalName != "" {
		return titleWords(strings.ReplaceAll(k.TechnicalName, "_", " "))
	}
	return titleWords(strings.ReplaceAll(strings.ReplaceAll(k.Formula, "bic_", ""), "_", " "))
}

func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = capitalize(strings.ToLower(w))
	}
	return strings.Join(words, " ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
