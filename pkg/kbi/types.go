// Package kbi defines the intermediate representation for Key Business
// Indicator definitions and the parser that builds it from YAML documents.
package kbi

import (
	"fmt"
	"strings"
)

// QueryFilter is a named, reusable filter expression referenced from KPI
// filters via the $query_filter macro.
type QueryFilter struct {
	Name       string
	Expression string
}

// Structure is a reusable calculation pattern (time intelligence, sign
// flips, composed formulas) that can be applied onto one or more KPIs.
type Structure struct {
	Description     string         `yaml:"description"`
	Formula         string         `yaml:"formula,omitempty"`
	Filters         []FilterItem   `yaml:"filter,omitempty"`
	DisplaySign     int            `yaml:"display_sign,omitempty"`
	TechnicalName   string         `yaml:"technical_name,omitempty"`
	AggregationType string         `yaml:"aggregation_type,omitempty"`
	Variables       map[string]any `yaml:"variables,omitempty"`
}

// SetDefaults applies default values to the structure
func (s *Structure) SetDefaults() {
	if s.DisplaySign == 0 {
		s.DisplaySign = 1
	}
}

// Validate checks if the structure is valid
func (s *Structure) Validate() error {
	if s.DisplaySign != 1 && s.DisplaySign != -1 {
		return fmt.Errorf("%w: got %d", ErrInvalidDisplaySign, s.DisplaySign)
	}
	return nil
}

// KPI is a single business measure: a formula, its filters, aggregation
// rules and measure-specific extensions.
type KPI struct {
	Description     string       `yaml:"description"`
	Formula         string       `yaml:"formula"`
	Filters         []FilterItem `yaml:"filter,omitempty"`
	DisplaySign     int          `yaml:"display_sign,omitempty"`
	TechnicalName   string       `yaml:"technical_name,omitempty"`
	SourceTable     string       `yaml:"source_table,omitempty"`
	AggregationType string       `yaml:"aggregation_type,omitempty"`

	// Weighted / percentile aggregations
	WeightColumn string  `yaml:"weight_column,omitempty"`
	TargetColumn string  `yaml:"target_column,omitempty"`
	Percentile   float64 `yaml:"percentile,omitempty"`

	// Exception aggregation: aggregate per group, then re-aggregate the
	// per-group values
	Exceptions                    []map[string]any `yaml:"exceptions,omitempty"`
	ExceptionAggregation          string           `yaml:"exception_aggregation,omitempty"`
	FieldsForExceptionAggregation []string         `yaml:"fields_for_exception_aggregation,omitempty"`

	// Single-value lookups
	FieldsForConstantSelection []string `yaml:"fields_for_constant_selection,omitempty"`

	// Ordered list of structure names to compose onto this KPI
	ApplyStructures []string `yaml:"apply_structures,omitempty"`

	// Variables merged in by the structure expander; scoped lookups prefer
	// these over the definition's default variables
	Variables map[string]any `yaml:"-"`
}

// SetDefaults applies default values to the KPI
func (k *KPI) SetDefaults() {
	if k.DisplaySign == 0 {
		k.DisplaySign = 1
	}
}

// Validate checks if the KPI is valid
func (k *KPI) Validate() error {
	if strings.TrimSpace(k.Formula) == "" {
		return fmt.Errorf("%w: kbi %q", ErrMissingFormula, k.Name())
	}
	if k.DisplaySign != 1 && k.DisplaySign != -1 {
		return fmt.Errorf("%w: kbi %q has %d", ErrInvalidDisplaySign, k.Name(), k.DisplaySign)
	}
	return nil
}

// Name returns the best available identifier for diagnostics.
func (k *KPI) Name() string {
	if k.TechnicalName != "" {
		return k.TechnicalName
	}
	if k.Description != "" {
		return k.Description
	}
	return k.Formula
}

// Clone returns a deep copy of the KPI. The structure expander derives
// combined measures from copies so the source KPI is never mutated.
func (k *KPI) Clone() *KPI {
	out := *k
	out.Filters = make([]FilterItem, len(k.Filters))
	copy(out.Filters, k.Filters)
	out.Exceptions = cloneMapSlice(k.Exceptions)
	out.FieldsForExceptionAggregation = cloneStrings(k.FieldsForExceptionAggregation)
	out.FieldsForConstantSelection = cloneStrings(k.FieldsForConstantSelection)
	out.ApplyStructures = cloneStrings(k.ApplyStructures)
	out.Variables = cloneVariables(k.Variables)
	return &out
}

// Definition is the root document: metadata, default variables, reusable
// query filters and structures, and the ordered list of KPIs.
type Definition struct {
	Description      string
	TechnicalName    string
	DefaultVariables map[string]any
	QueryFilters     []QueryFilter
	// Filters holds the raw filters block for nested filter-group lookups
	Filters    map[string]map[string]string
	Structures map[string]*Structure
	KBIs       []*KPI
}

// Validate checks the definition-level invariants: unique KPI and
// structure names and per-entry validity.
func (d *Definition) Validate() error {
	seen := make(map[string]struct{}, len(d.KBIs))
	for _, k := range d.KBIs {
		if err := k.Validate(); err != nil {
			return err
		}
		if k.TechnicalName == "" {
			continue
		}
		if _, dup := seen[k.TechnicalName]; dup {
			return fmt.Errorf("%w: kbi %q", ErrDuplicateName, k.TechnicalName)
		}
		seen[k.TechnicalName] = struct{}{}
	}
	for name, s := range d.Structures {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("structure %q: %w", name, err)
		}
	}
	return nil
}

// ExpandedFilters flattens the raw filters block into a single name to
// expression map, used for nested filter-group lookups.
func (d *Definition) ExpandedFilters() map[string]string {
	expanded := make(map[string]string)
	for _, group := range d.Filters {
		for name, expr := range group {
			expanded[name] = expr
		}
	}
	return expanded
}

// Structure returns the named structure, or nil when undefined.
func (d *Definition) Structure(name string) *Structure {
	if d.Structures == nil {
		return nil
	}
	return d.Structures[name]
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneVariables(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneMapSlice(in []map[string]any) []map[string]any {
	if in == nil {
		return nil
	}
	out := make([]map[string]any, len(in))
	for i, m := range in {
		c := make(map[string]any, len(m))
		for k, v := range m {
			c[k] = v
		}
		out[i] = c
	}
	return out
}
