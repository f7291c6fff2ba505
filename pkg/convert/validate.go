package convert

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/openbi/kbic/pkg/kbi"
	"github.com/openbi/kbic/pkg/observability"
	"github.com/openbi/kbic/pkg/resolve"
	"github.com/openbi/kbic/pkg/structures"
)

// Severity grades a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding.
type Issue struct {
	Field    string
	Message  string
	Severity Severity
}

// ValidationResult is the outcome of validating a definition. Warnings do
// not affect Valid.
type ValidationResult struct {
	Valid    bool
	Errors   []Issue
	Warnings []Issue
}

func (r *ValidationResult) addError(field, message string) {
	r.Errors = append(r.Errors, Issue{Field: field, Message: message, Severity: SeverityError})
}

func (r *ValidationResult) addWarning(field, message string) {
	r.Warnings = append(r.Warnings, Issue{Field: field, Message: message, Severity: SeverityWarning})
}

var variableRefPattern = regexp.MustCompile(`\$var_(\w+)`)

// ValidateDefinition checks a parsed definition for problems that would
// fail or degrade conversion: missing formulas and bad display signs are
// errors, unresolved variable references and undefined structure names are
// warnings.
func ValidateDefinition(def *kbi.Definition) *ValidationResult {
	result := &ValidationResult{}

	if len(def.KBIs) == 0 {
		result.addError("kbis", "definition has no kbis")
	}

	for _, q := range def.QueryFilters {
		field := fmt.Sprintf("filters.query_filter.%s", q.Name)

		checkVariableRefs(result, field, q.Expression, def.DefaultVariables)
	}

	for i, k := range def.KBIs {
		field := fmt.Sprintf("kbis[%d]", i)

		if strings.TrimSpace(k.Formula) == "" {
			result.addError(field+".formula", "formula is required")
		}

		if k.DisplaySign != 0 && k.DisplaySign != 1 && k.DisplaySign != -1 {
			result.addError(field+".display_sign", fmt.Sprintf("display_sign must be 1 or -1, got %d", k.DisplaySign))
		}

		scope := resolve.Scope(def, k)

		for j, item := range k.Filters {
			if item.Kind != kbi.FilterKindString {
				continue
			}

			checkVariableRefs(result, fmt.Sprintf("%s.filter[%d]", field, j), item.Raw, scope)
		}
	}

	for _, problem := range structures.ValidateReferences(def) {
		if strings.Contains(problem, "circular") {
			result.addError("structures", problem)
		} else {
			result.addWarning("structures", problem)
		}
	}

	result.Valid = len(result.Errors) == 0

	observability.RecordValidation(result.Valid)

	return result
}

func checkVariableRefs(result *ValidationResult, field, text string, scope map[string]any) {
	for _, match := range variableRefPattern.FindAllStringSubmatch(text, -1) {
		if _, ok := scope[match[1]]; !ok {
			result.addWarning(field, fmt.Sprintf("unresolved variable reference %s", match[0]))
		}
	}
}
