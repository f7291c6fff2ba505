package sqlgen

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/creasty/defaults"
	"github.com/sirupsen/logrus"

	"github.com/openbi/kbic/pkg/kbi"
	"github.com/openbi/kbic/pkg/resolve"
)

// fallbackTable is used when a formula names no table and none can be
// synthesized from the field name.
const fallbackTable = "fact_table"

// Options configures SQL generation.
type Options struct {
	// Resolve configures variable and filter resolution
	Resolve resolve.Options
	// Limit caps result rows, 0 means no limit clause
	Limit int `default:"0"`
	// InlineInListThreshold overrides the dialect's inline IN-list size,
	// 0 keeps the dialect default
	InlineInListThreshold int `default:"0"`
}

// Validate checks the options are valid
func (o *Options) Validate() error {
	if o.Limit < 0 {
		return fmt.Errorf("limit must not be negative: %d", o.Limit)
	}
	return o.Resolve.Validate()
}

// Query is a generated SQL query for one measure.
type Query struct {
	// Name is the display name of the measure
	Name string
	// Description is the source description
	Description string
	// SQL is the rendered query text
	SQL string
	// Dialect the query was rendered for
	Dialect Dialect
	// AggregationLevel lists group-by fields for grouped aggregations
	AggregationLevel []string
	// TableInferred marks a source table guessed from field naming
	TableInferred bool
	// Warnings collected while resolving variables and filters
	Warnings []resolve.Warning
}

// Generator renders measures as SQL for a single dialect. Instances are
// safe for concurrent use.
type Generator struct {
	log      logrus.FieldLogger
	dialect  Dialect
	profile  Profile
	resolver *resolve.Resolver
	options  Options
}

// NewGenerator creates a generator for the dialect. Predicate filters are
// quoted in the dialect's identifier style.
func NewGenerator(log logrus.FieldLogger, dialect Dialect, opts Options) (*Generator, error) {
	if err := defaults.Set(&opts); err != nil {
		return nil, fmt.Errorf("failed to set defaults: %w", err)
	}

	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	profile := dialect.Profile()

	formatter := &resolve.SQLFormatter{QuoteIdentifier: profile.QuoteIdentifier}

	resolver, err := resolve.NewResolver(log, formatter, opts.Resolve)
	if err != nil {
		return nil, err
	}

	return &Generator{
		log:      log.WithField("component", "sqlgen").WithField("dialect", dialect),
		dialect:  dialect,
		profile:  profile,
		resolver: resolver,
		options:  opts,
	}, nil
}

// Dialect returns the generator's target dialect.
func (g *Generator) Dialect() Dialect {
	return g.dialect
}

// Generate renders a single measure as SQL.
func (g *Generator) Generate(def *kbi.Definition, k *kbi.KPI) (*Query, error) {
	if strings.TrimSpace(k.Formula) == "" {
		return nil, ErrEmptyFormula
	}

	name := resolve.MeasureName(k)

	translation := resolve.TranslateFormula(k)

	table := translation.Table
	if table == "" {
		table = fallbackTable
	}

	filters, warnings, err := g.resolver.ResolveFilters(def, k)
	if err != nil {
		return nil, err
	}

	where, joins := g.promoteInLists(filters)

	var sql string

	if len(k.FieldsForExceptionAggregation) > 0 {
		sql, err = g.exceptionQuery(k, translation, name, table, where, joins)
	} else {
		var expr string

		expr, err = g.expression(k, translation, name)
		if err == nil {
			sql = g.assemble(g.selectClause(expr, name), table, joins, where, true)
		}
	}

	if err != nil {
		return nil, err
	}

	return &Query{
		Name:             name,
		Description:      k.Description,
		SQL:              sql,
		Dialect:          g.dialect,
		AggregationLevel: k.FieldsForExceptionAggregation,
		TableInferred:    translation.TableInferred,
		Warnings:         warnings,
	}, nil
}

// GenerateAll renders every measure in the definition. Per-measure failures
// are collected instead of aborting the batch.
func (g *Generator) GenerateAll(def *kbi.Definition) ([]*Query, []*MeasureError) {
	queries := make([]*Query, 0, len(def.KBIs))

	var failures []*MeasureError

	for _, k := range def.KBIs {
		query, err := g.Generate(def, k)
		if err != nil {
			g.log.WithError(err).WithField("measure", resolve.MeasureName(k)).Warn("Failed to generate query")
			failures = append(failures, &MeasureError{Measure: resolve.MeasureName(k), Err: err})

			continue
		}

		queries = append(queries, query)
	}

	return queries, failures
}

// sqlAggregations maps shared aggregation names onto SQL function names.
var sqlAggregations = map[string]string{
	resolve.AggregationSum:     "SUM",
	resolve.AggregationCount:   "COUNT",
	resolve.AggregationAverage: "AVG",
	resolve.AggregationMin:     "MIN",
	resolve.AggregationMax:     "MAX",
}

func (g *Generator) expression(k *kbi.KPI, t resolve.Translation, name string) (string, error) {
	if k.WeightColumn != "" {
		value := g.profile.QuoteIdentifier(t.Column)
		weight := g.profile.QuoteIdentifier(k.WeightColumn)

		return fmt.Sprintf("SUM(%s * %s) / NULLIF(SUM(%s), 0)", value, weight, weight), nil
	}

	if k.Percentile > 0 {
		if !g.profile.SupportsPercentile {
			return "", &FeatureError{Dialect: g.dialect, Feature: "percentile aggregation", Measure: name}
		}

		column := t.Column
		if k.TargetColumn != "" {
			column = k.TargetColumn
		}

		return fmt.Sprintf("PERCENTILE_CONT(%g) WITHIN GROUP (ORDER BY %s)", k.Percentile, g.profile.QuoteIdentifier(column)), nil
	}

	switch t.Aggregation {
	case resolve.AggregationCalculated:
		return fmt.Sprintf("SUM(%s)", t.Column), nil
	case resolve.AggregationDistinctCount:
		return fmt.Sprintf("COUNT(DISTINCT %s)", g.profile.QuoteIdentifier(t.Column)), nil
	default:
		fn, ok := sqlAggregations[t.Aggregation]
		if !ok {
			fn = t.Aggregation
		}

		return fmt.Sprintf("%s(%s)", fn, g.profile.QuoteIdentifier(t.Column)), nil
	}
}

// exceptionQuery renders a two-level grouped query: the inner query
// aggregates per exception group, the outer query re-aggregates the
// per-group values. The grouping is never flattened into a single level.
func (g *Generator) exceptionQuery(k *kbi.KPI, t resolve.Translation, name, table string, where, joins []string) (string, error) {
	inner := "SUM"
	if fn, ok := sqlAggregations[t.Aggregation]; ok {
		inner = fn
	}

	outer := "SUM"
	if fn, ok := sqlAggregations[strings.ToUpper(k.ExceptionAggregation)]; ok {
		outer = fn
	}

	groupFields := make([]string, len(k.FieldsForExceptionAggregation))
	for i, field := range k.FieldsForExceptionAggregation {
		groupFields[i] = g.profile.QuoteIdentifier(field)
	}

	groupList := strings.Join(groupFields, ", ")
	column := g.profile.QuoteIdentifier(t.Column)

	innerSelect := fmt.Sprintf("%s, %s(%s) AS group_value", groupList, inner, column)
	innerSQL := g.assemble(innerSelect, table, joins, where, false)
	innerSQL += "\nGROUP BY " + groupList

	alias := g.profile.QuoteIdentifier(name)

	sql := fmt.Sprintf("SELECT %s(grouped.group_value) AS %s\nFROM (\n%s\n) AS grouped", outer, alias, indent(innerSQL, "    "))

	if g.options.Limit > 0 && g.profile.LimitSyntax == "LIMIT" {
		sql += fmt.Sprintf("\nLIMIT %d", g.options.Limit)
	}

	return sql, nil
}

func (g *Generator) selectClause(expr, name string) string {
	return fmt.Sprintf("%s AS %s", expr, g.profile.QuoteIdentifier(name))
}

// assemble builds the query text. applyLimit is false for subqueries, where
// a row limit would change the aggregate.
func (g *Generator) assemble(selectList, table string, joins, where []string, applyLimit bool) string {
	var b strings.Builder

	b.WriteString("SELECT ")

	if applyLimit && g.options.Limit > 0 && g.profile.LimitSyntax == "TOP" {
		fmt.Fprintf(&b, "TOP %d ", g.options.Limit)
	}

	b.WriteString(selectList)
	b.WriteString("\nFROM ")
	b.WriteString(g.profile.QuoteIdentifier(table))

	for _, join := range joins {
		b.WriteString("\n")
		b.WriteString(join)
	}

	if len(where) > 0 {
		b.WriteString("\nWHERE ")
		b.WriteString(strings.Join(where, "\n  AND "))
	}

	if applyLimit && g.options.Limit > 0 && g.profile.LimitSyntax == "LIMIT" {
		fmt.Fprintf(&b, "\nLIMIT %d", g.options.Limit)
	}

	return b.String()
}

var inListPattern = regexp.MustCompile(`(?i)^\s*(.+?)\s+IN\s+\((.+)\)\s*$`)

// promoteInLists splits resolved filters into WHERE conditions and join
// clauses. IN lists longer than the dialect threshold become a values-table
// join because engines reject or degrade on oversized literal lists.
func (g *Generator) promoteInLists(filters []string) (where, joins []string) {
	threshold := g.options.InlineInListThreshold
	if threshold <= 0 {
		threshold = g.profile.MaxInlineInList
	}

	for _, filter := range filters {
		match := inListPattern.FindStringSubmatch(filter)
		if match == nil {
			where = append(where, filter)

			continue
		}

		column := match[1]
		values := splitValueList(match[2])

		if len(values) <= threshold {
			where = append(where, filter)

			continue
		}

		alias := fmt.Sprintf("in_list_%d", len(joins)+1)

		rows := make([]string, len(values))
		for i, v := range values {
			rows[i] = "(" + v + ")"
		}

		joins = append(joins, fmt.Sprintf(
			"INNER JOIN (VALUES %s) AS %s (value) ON %s = %s.value",
			strings.Join(rows, ", "), alias, column, alias,
		))
	}

	return where, joins
}

// splitValueList splits a comma-separated SQL value list, respecting
// single-quoted strings.
func splitValueList(list string) []string {
	var (
		values  []string
		current strings.Builder
		quoted  bool
	)

	for _, r := range list {
		switch {
		case r == '\'':
			quoted = !quoted
			current.WriteRune(r)
		case r == ',' && !quoted:
			values = append(values, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}

	if s := strings.TrimSpace(current.String()); s != "" {
		values = append(values, s)
	}

	return values
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}

	return strings.Join(lines, "\n")
}
