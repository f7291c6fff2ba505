package kbi

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// FilterKind discriminates the two source forms a KPI filter can take
type FilterKind string

const (
	// FilterKindString is a raw predicate string, possibly containing macros
	FilterKindString FilterKind = "string"
	// FilterKindStructured is a field/operator/value predicate object
	FilterKindStructured FilterKind = "structured"
)

// Predicate is the structured filter form: one atomic comparison joined to
// its siblings by a logical operator.
type Predicate struct {
	Field           string `yaml:"field"`
	Operator        string `yaml:"operator"`
	Value           any    `yaml:"value"`
	LogicalOperator string `yaml:"logical_operator,omitempty"`
}

// FilterItem is a tagged union over the two filter source forms. Source
// documents may declare a filter as either a raw string (macro references,
// free-form predicates) or a structured mapping.
type FilterItem struct {
	Kind      FilterKind
	Raw       string
	Predicate *Predicate
}

// StringFilter builds a raw string filter item
func StringFilter(raw string) FilterItem {
	return FilterItem{Kind: FilterKindString, Raw: raw}
}

// PredicateFilter builds a structured filter item
func PredicateFilter(p Predicate) FilterItem {
	if p.LogicalOperator == "" {
		p.LogicalOperator = "AND"
	}
	return FilterItem{Kind: FilterKindStructured, Predicate: &p}
}

// UnmarshalYAML implements custom YAML unmarshaling for the mixed filter forms
func (f *FilterItem) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		f.Kind = FilterKindString
		f.Raw = node.Value
		return nil
	case yaml.MappingNode:
		var p Predicate
		if err := node.Decode(&p); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidFilterType, err)
		}
		if p.LogicalOperator == "" {
			p.LogicalOperator = "AND"
		}
		f.Kind = FilterKindStructured
		f.Predicate = &p
		return nil
	case yaml.DocumentNode, yaml.SequenceNode, yaml.AliasNode:
		return fmt.Errorf("%w: got %v", ErrInvalidFilterType, node.Kind)
	default:
		return fmt.Errorf("%w: got %v", ErrInvalidFilterType, node.Kind)
	}
}

// MarshalYAML implements custom YAML marshaling for the mixed filter forms
func (f FilterItem) MarshalYAML() (interface{}, error) {
	if f.Kind == FilterKindStructured && f.Predicate != nil {
		return f.Predicate, nil
	}
	return f.Raw, nil
}

// String returns the raw text for string filters and a rendered
// field-operator-value triple for structured ones; diagnostics only.
func (f FilterItem) String() string {
	if f.Kind == FilterKindStructured && f.Predicate != nil {
		return fmt.Sprintf("%s %s %v", f.Predicate.Field, f.Predicate.Operator, f.Predicate.Value)
	}
	return f.Raw
}
