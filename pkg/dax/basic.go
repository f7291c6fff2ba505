package dax

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/openbi/kbic/pkg/kbi"
	"github.com/openbi/kbic/pkg/resolve"
)

// BasicGenerator renders measures by direct template substitution: the
// translated aggregation wrapped in CALCULATE when filters are present.
type BasicGenerator struct {
	log      logrus.FieldLogger
	resolver *resolve.Resolver
}

var _ Generator = (*BasicGenerator)(nil)

// NewBasicGenerator creates the basic strategy.
func NewBasicGenerator(log logrus.FieldLogger, opts resolve.Options) (*BasicGenerator, error) {
	resolver, err := resolve.NewResolver(log, &resolve.DAXFormatter{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolver: %w", err)
	}

	return &BasicGenerator{
		log:      log.WithField("generator", StrategyBasic),
		resolver: resolver,
	}, nil
}

// Generate implements Generator
func (g *BasicGenerator) Generate(def *kbi.Definition, k *kbi.KPI) (*Measure, error) {
	return g.generate(def, k, k.Formula)
}

func (g *BasicGenerator) generate(def *kbi.Definition, k *kbi.KPI, formula string) (*Measure, error) {
	body := k.Clone()
	body.Formula = formula

	t := resolve.TranslateFormula(body)
	table := t.Table
	if table == "" {
		table = fallbackTable
	}

	filters, warnings, err := g.resolver.ResolveFilters(def, k)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve filters for %s: %w", k.Name(), err)
	}

	text := baseExpression(body, t, table)
	text = wrapFilters(text, filters, table, k)
	text = applySign(text, k.DisplaySign)

	return &Measure{
		Name:          resolve.MeasureName(k),
		Description:   k.Description,
		Formula:       text,
		FormatHint:    string(StrategyBasic),
		TableInferred: t.TableInferred,
		Warnings:      warnings,
	}, nil
}

// GenerateAll implements Generator
func (g *BasicGenerator) GenerateAll(def *kbi.Definition) ([]*Measure, error) {
	measures := make([]*Measure, 0, len(def.KBIs))
	for _, k := range def.KBIs {
		m, err := g.Generate(def, k)
		if err != nil {
			return nil, err
		}
		measures = append(measures, m)
	}

	return measures, nil
}
