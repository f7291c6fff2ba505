package structures

import (
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/openbi/kbic/pkg/kbi"
	"github.com/openbi/kbic/pkg/resolve"
)

var (
	technicalNamePattern = regexp.MustCompile(`[^a-zA-Z0-9\s]`)
	whitespacePattern    = regexp.MustCompile(`\s+`)
)

// Expander turns KPIs carrying apply_structures into combined measures, one
// per applied structure. KPIs without structures pass through untouched, so
// expansion of an already expanded definition is a no-op.
type Expander struct {
	log logrus.FieldLogger
}

// NewExpander creates a structure expander.
func NewExpander(log logrus.FieldLogger) *Expander {
	return &Expander{
		log: log.WithField("component", "structure_expander"),
	}
}

// Expand returns a new definition in which every KPI with applied
// structures is replaced by its combined measures. The input definition is
// never mutated. A circular structure reference fails the whole expansion.
func (e *Expander) Expand(def *kbi.Definition) (*kbi.Definition, error) {
	if len(def.Structures) == 0 {
		return def, nil
	}

	if _, err := BuildGraph(def.Structures); err != nil {
		return nil, err
	}

	expanded := &kbi.Definition{
		Description:      def.Description,
		TechnicalName:    def.TechnicalName,
		DefaultVariables: def.DefaultVariables,
		QueryFilters:     def.QueryFilters,
		Filters:          def.Filters,
		Structures:       def.Structures,
		KBIs:             make([]*kbi.KPI, 0, len(def.KBIs)),
	}

	for _, k := range def.KBIs {
		if len(k.ApplyStructures) == 0 {
			expanded.KBIs = append(expanded.KBIs, k)
			continue
		}
		expanded.KBIs = append(expanded.KBIs, e.combine(def, k)...)
	}

	return expanded, nil
}

// combine derives one measure per applied structure. Unknown structure
// names are skipped with a warning so one bad reference never sinks the
// rest of the measure.
func (e *Expander) combine(def *kbi.Definition, base *kbi.KPI) []*kbi.KPI {
	baseName := base.TechnicalName
	if baseName == "" {
		baseName = GenerateTechnicalName(base.Description)
	}

	combined := make([]*kbi.KPI, 0, len(base.ApplyStructures))
	for _, structName := range base.ApplyStructures {
		s := def.Structure(structName)
		if s == nil {
			e.log.WithFields(logrus.Fields{
				"kbi":       base.Name(),
				"structure": structName,
			}).Warn("referenced structure not defined, skipping")

			continue
		}

		m := base.Clone()
		m.ApplyStructures = nil
		m.TechnicalName = baseName + "_" + structName
		m.Description = base.Description + " - " + s.Description

		if s.Formula != "" {
			// formula structures become calculated measures composed from
			// other combined measures; base data filters do not apply
			m.Formula = resolveReferences(s.Formula, baseName, def.Structures)
			m.AggregationType = resolve.AggregationCalculated
			m.Filters = append([]kbi.FilterItem(nil), s.Filters...)
			m.SourceTable = ""
		} else {
			m.Filters = append(m.Filters, s.Filters...)
			if s.AggregationType != "" {
				m.AggregationType = s.AggregationType
			}
		}

		sign := s.DisplaySign
		if sign == 0 {
			sign = 1
		}
		m.DisplaySign = base.DisplaySign * sign

		if len(s.Variables) > 0 {
			if m.Variables == nil {
				m.Variables = make(map[string]any, len(s.Variables))
			}
			for name, value := range s.Variables {
				m.Variables[name] = value
			}
		}

		combined = append(combined, m)
	}

	return combined
}

// resolveReferences rewrites parenthesized structure references inside a
// structure formula to the combined measure names they expand to:
// "( act_ytd ) + ( re_ytg )" becomes "revenue_act_ytd + revenue_re_ytg".
func resolveReferences(formula, baseName string, structs map[string]*kbi.Structure) string {
	return referencePattern.ReplaceAllStringFunc(formula, func(match string) string {
		name := strings.TrimSpace(strings.Trim(strings.TrimSpace(match), "()"))
		if _, ok := structs[name]; ok {
			return baseName + "_" + name
		}
		return match
	})
}

// GenerateTechnicalName derives a technical name from free text: lowered,
// punctuation stripped, whitespace collapsed to underscores.
func GenerateTechnicalName(description string) string {
	name := technicalNamePattern.ReplaceAllString(strings.ToLower(description), "")
	name = strings.TrimSpace(name)
	return whitespacePattern.ReplaceAllString(name, "_")
}

// ValidateReferences reports every reference problem in the definition:
// cycles between structure formulas and KPIs applying undefined structures.
func ValidateReferences(def *kbi.Definition) []string {
	var problems []string

	if len(def.Structures) > 0 {
		if _, err := BuildGraph(def.Structures); err != nil {
			problems = append(problems, err.Error())
		}
	}

	for _, k := range def.KBIs {
		for _, name := range k.ApplyStructures {
			if def.Structure(name) == nil {
				problems = append(problems, "kbi "+k.Name()+" references undefined structure: "+name)
			}
		}
	}

	return problems
}
