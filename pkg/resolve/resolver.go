// Package resolve turns the raw filter and formula text of a definition
// into target-ready expressions: macro substitution, variable scoping and
// structured predicate rendering.
package resolve

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/creasty/defaults"
	"github.com/sirupsen/logrus"

	"github.com/openbi/kbic/pkg/kbi"
)

var variablePattern = regexp.MustCompile(`\$var_(\w+)`)

// Warning is a non-fatal resolution finding, surfaced to callers so a
// conversion can succeed while still reporting suspect output.
type Warning struct {
	Code    string
	Subject string
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Code, w.Message)
}

const (
	// WarnUnresolvedVariable flags a $var_ reference with no binding in scope
	WarnUnresolvedVariable = "unresolved_variable"
)

// Options configures a Resolver.
type Options struct {
	// Strict promotes unresolved variable references from warnings to errors
	Strict bool `default:"false"`
	// LogicalOperator joins combined filter expressions
	LogicalOperator string `default:"AND"`
}

// Validate checks the options
func (o *Options) Validate() error {
	switch strings.ToUpper(o.LogicalOperator) {
	case "AND", "OR":
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogicalOperator, o.LogicalOperator)
	}
}

// Resolver substitutes $var_ and $query_filter macros and renders
// structured predicates through a target-specific formatter.
type Resolver struct {
	log       logrus.FieldLogger
	opts      Options
	formatter PredicateFormatter
}

// NewResolver creates a resolver for the given target formatter.
func NewResolver(log logrus.FieldLogger, formatter PredicateFormatter, opts Options) (*Resolver, error) {
	if err := defaults.Set(&opts); err != nil {
		return nil, fmt.Errorf("failed to set default options: %w", err)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if formatter == nil {
		formatter = &SQLFormatter{}
	}

	return &Resolver{
		log:       log.WithField("component", "resolver"),
		opts:      opts,
		formatter: formatter,
	}, nil
}

// Scope merges the definition's default variables with the KPI's own;
// KPI-level bindings win. Structure expansion stores its per-structure
// variables on the KPI, so later structures already shadow earlier ones.
func Scope(def *kbi.Definition, k *kbi.KPI) map[string]any {
	scope := make(map[string]any, len(def.DefaultVariables)+len(k.Variables))
	for name, value := range def.DefaultVariables {
		scope[name] = value
	}
	for name, value := range k.Variables {
		scope[name] = value
	}
	return scope
}

// ResolveVariables replaces every $var_<name> reference in text with its
// bound value. String values are single-quoted unless the reference already
// sits inside quotes in the source text; list values render as an IN-style
// tuple. Unknown references are left verbatim and reported as warnings.
func (r *Resolver) ResolveVariables(text string, vars map[string]any) (string, []Warning) {
	var warnings []Warning

	resolved := variablePattern.ReplaceAllStringFunc(text, func(ref string) string {
		name := strings.TrimPrefix(ref, "$var_")
		value, ok := vars[name]
		if !ok {
			warnings = append(warnings, Warning{
				Code:    WarnUnresolvedVariable,
				Subject: ref,
				Message: fmt.Sprintf("no binding for %s", ref),
			})
			return ref
		}
		return renderValue(value, strings.Contains(text, "'"+ref+"'"))
	})

	return resolved, warnings
}

// ResolveQueryFilter replaces $query_filter with the conjunction of all
// definition-level query filter expressions, themselves variable-resolved.
// With no query filters defined the macro collapses to the 1=1 tautology so
// surrounding predicates stay well formed.
func (r *Resolver) ResolveQueryFilter(text string, def *kbi.Definition, vars map[string]any) (string, []Warning) {
	if !strings.Contains(text, "$query_filter") {
		return text, nil
	}
	if len(def.QueryFilters) == 0 {
		return strings.ReplaceAll(text, "$query_filter", "1=1"), nil
	}

	var warnings []Warning
	expressions := make([]string, 0, len(def.QueryFilters))
	for _, qf := range def.QueryFilters {
		expr, w := r.ResolveVariables(qf.Expression, vars)
		warnings = append(warnings, w...)
		expressions = append(expressions, expr)
	}

	combined := "(" + strings.Join(expressions, " AND ") + ")"

	return strings.ReplaceAll(text, "$query_filter", combined), warnings
}

// ResolveFilters resolves every filter on the KPI into a target expression.
// In strict mode an unresolved variable reference fails the whole KPI.
func (r *Resolver) ResolveFilters(def *kbi.Definition, k *kbi.KPI) ([]string, []Warning, error) {
	scope := Scope(def, k)

	var (
		resolved []string
		warnings []Warning
	)
	for _, item := range k.Filters {
		switch item.Kind {
		case kbi.FilterKindString:
			text, w := r.ResolveVariables(item.Raw, scope)
			warnings = append(warnings, w...)
			text, w = r.ResolveQueryFilter(text, def, scope)
			warnings = append(warnings, w...)
			resolved = append(resolved, text)
		case kbi.FilterKindStructured:
			pred := *item.Predicate
			if s, ok := pred.Value.(string); ok {
				value, w := r.ResolveVariables(s, scope)
				warnings = append(warnings, w...)
				pred.Value = strings.Trim(value, "'")
			}
			resolved = append(resolved, r.formatter.FormatPredicate(pred))
		default:
			return nil, nil, fmt.Errorf("%w: %q", kbi.ErrInvalidFilterType, item.Kind)
		}
	}

	if r.opts.Strict {
		for _, w := range warnings {
			if w.Code == WarnUnresolvedVariable {
				return nil, warnings, fmt.Errorf("%w: %s in kbi %q", ErrUnresolvedVariable, w.Subject, k.Name())
			}
		}
	}

	if len(warnings) > 0 {
		r.log.WithFields(logrus.Fields{
			"kbi":      k.Name(),
			"warnings": len(warnings),
		}).Debug("filter resolution produced warnings")
	}

	return resolved, warnings, nil
}

// Combine joins resolved filter expressions with the configured logical
// operator, parenthesizing each member.
func (r *Resolver) Combine(filters []string) string {
	switch len(filters) {
	case 0:
		return ""
	case 1:
		return filters[0]
	}

	wrapped := make([]string, len(filters))
	for i, f := range filters {
		wrapped[i] = "(" + f + ")"
	}

	return strings.Join(wrapped, " "+strings.ToUpper(r.opts.LogicalOperator)+" ")
}

// renderValue formats a variable binding for inline substitution. Quoted
// references keep the source's own quoting; everything else gets quotes
// added for strings and tuple syntax for lists.
func renderValue(value any, alreadyQuoted bool) string {
	switch v := value.(type) {
	case string:
		if alreadyQuoted {
			return v
		}
		return "'" + v + "'"
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			if s, ok := item.(string); ok {
				parts[i] = "'" + s + "'"
			} else {
				parts[i] = renderScalar(item)
			}
		}
		return "(" + strings.Join(parts, ", ") + ")"
	default:
		return renderScalar(v)
	}
}

func renderScalar(value any) string {
	switch v := value.(type) {
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
