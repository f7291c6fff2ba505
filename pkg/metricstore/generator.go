// Package metricstore renders definitions as declarative metrics-store
// documents: a versioned YAML block with a source table, an optional shared
// filter and one measure entry per KBI.
package metricstore

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/creasty/defaults"
	"github.com/sirupsen/logrus"

	"github.com/openbi/kbic/pkg/kbi"
	"github.com/openbi/kbic/pkg/resolve"
)

// Options configures metrics-store generation.
type Options struct {
	// Resolve configures variable and filter resolution
	Resolve resolve.Options
	// Catalog and Schema qualify unqualified source tables
	Catalog string `default:"catalog"`
	Schema  string `default:"schema"`
	// Version is the metrics-store format version
	Version string `default:"0.1"`
}

// Metric is one rendered metrics-store entry.
type Metric struct {
	// Name is the measure's technical name
	Name string
	// Description is the source description
	Description string
	// Definition is the rendered document text
	Definition string
	// MetricType is derived from the aggregation
	MetricType string
	// Unit is guessed from formula naming keywords
	Unit string
	// Warnings collected while resolving variables and filters
	Warnings []resolve.Warning
}

// measureEntry is the template model for one measure.
type measureEntry struct {
	Name   string
	Expr   string
	Window []windowEntry
}

// windowEntry configures semi-additive evaluation for grouped measures.
type windowEntry struct {
	Order        string
	Range        string
	Semiadditive string
}

// document is the template model for a rendered metrics-store block.
type document struct {
	Version     string
	Description string
	Source      string
	Filter      string
	Measures    []measureEntry
}

const documentTemplate = `version: {{ .Version | default "0.1" }}

# --- Metrics store definition for {{ .Description | trim | quote }} ---
{{- if .Source }}

source: {{ .Source }}
{{- end }}
{{- if .Filter }}

filter: {{ .Filter }}
{{- end }}

measures:
{{- range .Measures }}
  - name: {{ .Name }}
    expr: {{ .Expr }}
{{- if .Window }}
    window:
{{- range .Window }}
      - order: {{ .Order }}
        range: {{ .Range }}
        semiadditive: {{ .Semiadditive }}
{{- end }}
{{- end }}
{{- end }}
`

// Generator renders metrics-store documents. Instances are safe for
// concurrent use.
type Generator struct {
	log      logrus.FieldLogger
	resolver *resolve.Resolver
	options  Options
	tmpl     *template.Template
}

// NewGenerator creates a metrics-store generator.
func NewGenerator(log logrus.FieldLogger, opts Options) (*Generator, error) {
	if err := defaults.Set(&opts); err != nil {
		return nil, fmt.Errorf("failed to set defaults: %w", err)
	}

	resolver, err := resolve.NewResolver(log, &resolve.SQLFormatter{}, opts.Resolve)
	if err != nil {
		return nil, err
	}

	tmpl, err := template.New("metricstore").Funcs(sprig.TxtFuncMap()).Parse(documentTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	return &Generator{
		log:      log.WithField("component", "metricstore"),
		resolver: resolver,
		options:  opts,
		tmpl:     tmpl,
	}, nil
}

// Generate renders a single-measure document for one KBI.
func (g *Generator) Generate(def *kbi.Definition, k *kbi.KPI) (*Metric, error) {
	translation := resolve.TranslateFormula(k)

	filters, warnings, err := g.resolver.ResolveFilters(def, k)
	if err != nil {
		return nil, err
	}

	entry := measureEntry{
		Name:   measureName(k),
		Expr:   applySign(k, measureExpression(translation)),
		Window: windowConfig(k),
	}

	doc := document{
		Version:     g.options.Version,
		Description: k.Description,
		Source:      g.sourceReference(translation.Table),
		Filter:      strings.Join(filters, " AND "),
		Measures:    []measureEntry{entry},
	}

	text, err := g.render(doc)
	if err != nil {
		return nil, err
	}

	return &Metric{
		Name:        entry.Name,
		Description: k.Description,
		Definition:  text,
		MetricType:  metricType(translation.Aggregation),
		Unit:        unitHint(k.Formula),
		Warnings:    warnings,
	}, nil
}

// GenerateDocument renders one consolidated document for the whole
// definition: query filters become the shared filter, measure-specific
// filters become FILTER (WHERE ...) clauses on the measure expression.
func (g *Generator) GenerateDocument(def *kbi.Definition) (string, []resolve.Warning, error) {
	if len(def.KBIs) == 0 {
		return "", nil, ErrNoMeasures
	}

	shared, warnings := g.resolver.ResolveQueryFilter("$query_filter", def, def.DefaultVariables)
	if shared == "1=1" {
		shared = ""
	}

	var (
		measures []measureEntry
		source   string
	)

	for _, k := range def.KBIs {
		translation := resolve.TranslateFormula(k)
		if source == "" && translation.Table != "" {
			source = g.sourceReference(translation.Table)
		}

		specific, w, err := g.specificFilters(def, k)
		if err != nil {
			return "", nil, fmt.Errorf("measure %s: %w", measureName(k), err)
		}

		warnings = append(warnings, w...)

		expr := measureExpression(translation)
		if specific != "" {
			expr = fmt.Sprintf("%s FILTER (WHERE %s)", expr, specific)
		}

		measures = append(measures, measureEntry{
			Name:   measureName(k),
			Expr:   applySign(k, expr),
			Window: windowConfig(k),
		})
	}

	doc := document{
		Version:     g.options.Version,
		Description: def.Description,
		Source:      source,
		Filter:      shared,
		Measures:    measures,
	}

	text, err := g.render(doc)
	if err != nil {
		return "", nil, err
	}

	return text, warnings, nil
}

// specificFilters resolves a measure's own filters, excluding the shared
// query filter reference.
func (g *Generator) specificFilters(def *kbi.Definition, k *kbi.KPI) (string, []resolve.Warning, error) {
	specific := k.Clone()
	specific.Filters = nil

	for _, f := range k.Filters {
		if f.Kind == kbi.FilterKindString && strings.TrimSpace(f.Raw) == "$query_filter" {
			continue
		}

		specific.Filters = append(specific.Filters, f)
	}

	filters, warnings, err := g.resolver.ResolveFilters(def, specific)
	if err != nil {
		return "", nil, err
	}

	return strings.Join(filters, " AND "), warnings, nil
}

func (g *Generator) render(doc document) (string, error) {
	var b strings.Builder
	if err := g.tmpl.Execute(&b, doc); err != nil {
		return "", fmt.Errorf("failed to render document: %w", err)
	}

	return b.String(), nil
}

// sourceReference qualifies a table as catalog.schema.table, keeping
// already-qualified names untouched.
func (g *Generator) sourceReference(table string) string {
	if table == "" {
		return ""
	}

	if strings.Contains(table, ".") {
		return table
	}

	return fmt.Sprintf("%s.%s.%s", g.options.Catalog, g.options.Schema, table)
}

var nameCleaner = strings.NewReplacer(" ", "_", "-", "_", "/", "_")

func measureName(k *kbi.KPI) string {
	if k.TechnicalName != "" {
		return k.TechnicalName
	}

	if k.Description != "" {
		return strings.ToLower(nameCleaner.Replace(strings.TrimSpace(k.Description)))
	}

	return "unnamed_measure"
}

// metricAggregations maps shared aggregation names onto metrics-store
// expression functions.
var metricAggregations = map[string]string{
	resolve.AggregationSum:     "SUM",
	resolve.AggregationCount:   "COUNT",
	resolve.AggregationAverage: "AVG",
	resolve.AggregationMin:     "MIN",
	resolve.AggregationMax:     "MAX",
}

func measureExpression(t resolve.Translation) string {
	switch t.Aggregation {
	case resolve.AggregationCalculated:
		return fmt.Sprintf("SUM(%s)", t.Column)
	case resolve.AggregationDistinctCount:
		return fmt.Sprintf("COUNT(DISTINCT %s)", t.Column)
	default:
		fn, ok := metricAggregations[t.Aggregation]
		if !ok {
			fn = "SUM"
		}

		return fmt.Sprintf("%s(%s)", fn, t.Column)
	}
}

func applySign(k *kbi.KPI, expr string) string {
	if k.DisplaySign == -1 {
		return fmt.Sprintf("(-1) * %s", expr)
	}

	return expr
}

// windowConfig emits semi-additive window entries for grouped measures:
// exception aggregation fields and constant selection fields both pin the
// evaluation to the last value per group.
func windowConfig(k *kbi.KPI) []windowEntry {
	fields := k.FieldsForExceptionAggregation
	if len(fields) == 0 {
		fields = k.FieldsForConstantSelection
	}

	entries := make([]windowEntry, 0, len(fields))
	for _, field := range fields {
		entries = append(entries, windowEntry{
			Order:        field,
			Range:        "current",
			Semiadditive: "last",
		})
	}

	return entries
}

func metricType(aggregation string) string {
	return strings.ToLower(aggregation)
}

// unitHint guesses the measure's unit from formula naming keywords.
func unitHint(formula string) string {
	lower := strings.ToLower(formula)

	switch {
	case strings.Contains(lower, "amount"):
		return "currency"
	case strings.Contains(lower, "quantity"), strings.Contains(lower, "volume"):
		return "units"
	case strings.Contains(lower, "count"):
		return "count"
	default:
		return ""
	}
}
