package resolve

import (
	"fmt"
	"strings"

	"github.com/openbi/kbic/pkg/kbi"
)

// PredicateFormatter renders a structured predicate for a target language.
type PredicateFormatter interface {
	FormatPredicate(p kbi.Predicate) string
}

// DAXFormatter renders predicates as 'Table'[column] comparisons. The table
// label is derived from the field name with warehouse prefixes stripped.
type DAXFormatter struct{}

var _ PredicateFormatter = (*DAXFormatter)(nil)

// FormatPredicate implements PredicateFormatter
func (f *DAXFormatter) FormatPredicate(p kbi.Predicate) string {
	table := TableLabel(p.Field)
	ref := fmt.Sprintf("'%s'[%s]", table, p.Field)

	switch strings.ToUpper(p.Operator) {
	case "IN":
		return fmt.Sprintf("%s IN {%s}", ref, daxValueList(p.Value))
	case "=":
		return fmt.Sprintf("%s = %s", ref, daxValue(p.Value))
	case "!=", "<>":
		return fmt.Sprintf("%s <> %s", ref, daxValue(p.Value))
	default:
		return fmt.Sprintf("%s %s %s", ref, p.Operator, rawValue(p.Value))
	}
}

// SQLFormatter renders predicates as plain column comparisons, quoting the
// column through the optional QuoteIdentifier hook so dialects can supply
// their own quoting.
type SQLFormatter struct {
	QuoteIdentifier func(string) string
}

var _ PredicateFormatter = (*SQLFormatter)(nil)

// FormatPredicate implements PredicateFormatter
func (f *SQLFormatter) FormatPredicate(p kbi.Predicate) string {
	column := p.Field
	if f.QuoteIdentifier != nil {
		column = f.QuoteIdentifier(p.Field)
	}

	switch strings.ToUpper(p.Operator) {
	case "IN":
		return fmt.Sprintf("%s IN (%s)", column, sqlValueList(p.Value))
	case "!=", "<>":
		return fmt.Sprintf("%s <> %s", column, sqlValue(p.Value))
	default:
		return fmt.Sprintf("%s %s %s", column, p.Operator, sqlValue(p.Value))
	}
}

func daxValue(value any) string {
	if s, ok := value.(string); ok {
		return `"` + s + `"`
	}
	return renderScalar(value)
}

func daxValueList(value any) string {
	items, ok := value.([]any)
	if !ok {
		return rawValue(value)
	}
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = daxValue(item)
	}
	return strings.Join(parts, ", ")
}

func sqlValue(value any) string {
	if s, ok := value.(string); ok {
		return "'" + s + "'"
	}
	return renderScalar(value)
}

func sqlValueList(value any) string {
	items, ok := value.([]any)
	if !ok {
		return rawValue(value)
	}
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = sqlValue(item)
	}
	return strings.Join(parts, ", ")
}

func rawValue(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	return renderScalar(value)
}
