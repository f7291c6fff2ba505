package dax

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/openbi/kbic/pkg/kbi"
	"github.com/openbi/kbic/pkg/resolve"
)

// function names excluded when scanning formulas for measure references
var daxFunctionNames = map[string]struct{}{
	"SUM": {}, "COUNT": {}, "AVERAGE": {}, "MIN": {}, "MAX": {},
	"CALCULATE": {}, "FILTER": {}, "IF": {}, "DIVIDE": {},
	"DISTINCTCOUNT": {}, "COUNTROWS": {}, "SUMX": {}, "AVERAGEX": {},
	"MINX": {}, "MAXX": {}, "COUNTX": {}, "SELECTEDVALUE": {},
	"ISBLANK": {}, "REMOVEFILTERS": {}, "ALL": {}, "ALLEXCEPT": {},
	"VALUES": {}, "SUMMARIZE": {}, "AND": {}, "OR": {}, "NOT": {},
	"TRUE": {}, "FALSE": {}, "BLANK": {},
}

var identifierPattern = regexp.MustCompile(`\b([a-zA-Z_][a-zA-Z0-9_]*)\b`)

// TreeGenerator resolves dependencies between measures and emits calculated
// measures through the expression tree, referencing their dependencies as
// separate named measures.
type TreeGenerator struct {
	log      logrus.FieldLogger
	basic    *BasicGenerator
	resolver *resolve.Resolver
}

var _ Generator = (*TreeGenerator)(nil)

// NewTreeGenerator creates the tree-parsing strategy.
func NewTreeGenerator(log logrus.FieldLogger, opts resolve.Options) (*TreeGenerator, error) {
	basic, err := NewBasicGenerator(log, opts)
	if err != nil {
		return nil, err
	}

	return &TreeGenerator{
		log:      log.WithField("generator", StrategyTree),
		basic:    basic,
		resolver: basic.resolver,
	}, nil
}

// measureIndex maps technical names to their KPIs.
func measureIndex(def *kbi.Definition) map[string]*kbi.KPI {
	index := make(map[string]*kbi.KPI, len(def.KBIs))
	for _, k := range def.KBIs {
		if k.TechnicalName != "" {
			index[k.TechnicalName] = k
		}
	}
	return index
}

// MeasureReferences scans a formula for identifiers naming other measures.
// Function names, warehouse-prefixed column tokens and numbers are skipped.
func MeasureReferences(formula string, index map[string]*kbi.KPI) []string {
	var refs []string
	seen := make(map[string]struct{})

	for _, match := range identifierPattern.FindAllStringSubmatch(formula, -1) {
		ident := match[1]
		if _, fn := daxFunctionNames[strings.ToUpper(ident)]; fn {
			continue
		}
		if strings.HasPrefix(ident, "bic_") || strings.HasPrefix(ident, "dim_") || strings.HasPrefix(ident, "fact_") {
			continue
		}
		if _, ok := index[ident]; !ok {
			continue
		}
		if _, dup := seen[ident]; dup {
			continue
		}
		seen[ident] = struct{}{}
		refs = append(refs, ident)
	}

	return refs
}

// dependencyOrder returns the technical names in topological order. Ties
// follow declaration order so independent measures keep their document
// position in the output.
func dependencyOrder(def *kbi.Definition, index map[string]*kbi.KPI) ([]string, error) {
	deps := make(map[string][]string, len(index))
	for name, k := range index {
		deps[name] = MeasureReferences(k.Formula, index)
	}

	done := make(map[string]struct{}, len(index))
	order := make([]string, 0, len(index))

	for len(order) < len(index) {
		progressed := false
		for _, k := range def.KBIs {
			name := k.TechnicalName
			if name == "" {
				continue
			}
			if _, emitted := done[name]; emitted {
				continue
			}
			ready := true
			for _, dep := range deps[name] {
				if _, emitted := done[dep]; !emitted {
					ready = false
					break
				}
			}
			if !ready {
				continue
			}
			done[name] = struct{}{}
			order = append(order, name)
			progressed = true
		}
		if !progressed {
			var remaining []string
			for _, k := range def.KBIs {
				if k.TechnicalName == "" {
					continue
				}
				if _, emitted := done[k.TechnicalName]; !emitted {
					remaining = append(remaining, k.TechnicalName)
				}
			}
			return nil, fmt.Errorf("%w: %s", ErrCircularMeasures, strings.Join(remaining, ", "))
		}
	}

	return order, nil
}

// Generate implements Generator
func (g *TreeGenerator) Generate(def *kbi.Definition, k *kbi.KPI) (*Measure, error) {
	index := measureIndex(def)

	if !g.isCalculated(k, index) {
		m, err := g.basic.generate(def, k, k.Formula)
		if err != nil {
			return nil, err
		}
		m.FormatHint = string(StrategyTree)
		return m, nil
	}

	return g.generateCalculated(def, k, index)
}

// GenerateAll implements Generator. Measures come back in dependency order
// so a calculated measure always follows the measures it references;
// unnamed KPIs keep their declaration order at the end.
func (g *TreeGenerator) GenerateAll(def *kbi.Definition) ([]*Measure, error) {
	index := measureIndex(def)

	order, err := dependencyOrder(def, index)
	if err != nil {
		return nil, err
	}

	measures := make([]*Measure, 0, len(def.KBIs))
	for _, name := range order {
		m, err := g.Generate(def, index[name])
		if err != nil {
			return nil, err
		}
		measures = append(measures, m)
	}
	for _, k := range def.KBIs {
		if k.TechnicalName != "" {
			continue
		}
		m, err := g.Generate(def, k)
		if err != nil {
			return nil, err
		}
		measures = append(measures, m)
	}

	return measures, nil
}

func (g *TreeGenerator) isCalculated(k *kbi.KPI, index map[string]*kbi.KPI) bool {
	if strings.EqualFold(k.AggregationType, resolve.AggregationCalculated) {
		return true
	}
	return len(MeasureReferences(k.Formula, index)) > 0
}

// generateCalculated parses the formula into an expression tree and emits
// it with measure references rewritten to their display names.
func (g *TreeGenerator) generateCalculated(def *kbi.Definition, k *kbi.KPI, index map[string]*kbi.KPI) (*Measure, error) {
	expr, err := ParseExpression(RewriteCaseWhen(k.Formula))
	if err != nil {
		return nil, fmt.Errorf("failed to parse formula for %s: %w", k.Name(), err)
	}

	body := expr.Render(func(ident string) string {
		if dep, ok := index[ident]; ok {
			return "[" + resolve.MeasureName(dep) + "]"
		}
		return ident
	})

	filters, warnings, err := g.resolver.ResolveFilters(def, k)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve filters for %s: %w", k.Name(), err)
	}

	table := k.SourceTable
	if table == "" {
		table = fallbackTable
	}

	text := wrapFilters(body, filters, table, k)
	text = applySign(text, k.DisplaySign)

	return &Measure{
		Name:        resolve.MeasureName(k),
		Description: k.Description,
		Formula:     text,
		FormatHint:  string(StrategyTree),
		Warnings:    warnings,
	}, nil
}
