// Package dax generates tabular-model measures from expanded definitions.
// Three strategies share one contract: a basic template generator, a smart
// generator that rewrites SQL-style conditionals, and a tree-parsing
// generator that builds an expression tree before emitting.
package dax

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/openbi/kbic/pkg/kbi"
	"github.com/openbi/kbic/pkg/resolve"
)

// Strategy selects a generation approach.
type Strategy string

const (
	// StrategyBasic is direct template substitution, fastest and least robust
	StrategyBasic Strategy = "basic"
	// StrategySmart additionally rewrites CASE WHEN conditionals into IF calls
	StrategySmart Strategy = "smart"
	// StrategyTree parses formulas into an expression tree before emitting;
	// the only strategy correct for mixed boolean and arithmetic formulas
	StrategyTree Strategy = "tree"
)

// Validate checks the strategy
func (s Strategy) Validate() error {
	switch s {
	case StrategyBasic, StrategySmart, StrategyTree:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

// Measure is one generated tabular-model measure.
type Measure struct {
	Name        string
	Description string
	Formula     string
	// FormatHint names the strategy that produced the formula
	FormatHint string
	// TableInferred marks a measure whose source table was synthesized from
	// field naming conventions; treat the table name as best effort
	TableInferred bool
	Warnings      []resolve.Warning
}

// Generator produces measures from a definition. All strategies derive
// measure names the same way, only formula bodies differ.
type Generator interface {
	Generate(def *kbi.Definition, k *kbi.KPI) (*Measure, error)
	GenerateAll(def *kbi.Definition) ([]*Measure, error)
}

// New creates a generator for the given strategy. An empty strategy
// selects the tree strategy, the only one correct for every formula shape.
func New(log logrus.FieldLogger, strategy Strategy, opts resolve.Options) (Generator, error) {
	if strategy == "" {
		strategy = StrategyTree
	}

	if err := strategy.Validate(); err != nil {
		return nil, err
	}

	switch strategy {
	case StrategyBasic:
		return NewBasicGenerator(log, opts)
	case StrategySmart:
		return NewSmartGenerator(log, opts)
	default:
		return NewTreeGenerator(log, opts)
	}
}
