package dax

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/openbi/kbic/pkg/kbi"
	"github.com/openbi/kbic/pkg/resolve"
)

var (
	casePattern = regexp.MustCompile(`(?is)CASE\s+(.*?)\s+END`)
	whenSplit   = regexp.MustCompile(`(?i)\bWHEN\b`)
	thenSplit   = regexp.MustCompile(`(?i)\bTHEN\b`)
	elseSplit   = regexp.MustCompile(`(?i)\bELSE\b`)
)

// SmartGenerator extends the basic strategy by rewriting SQL-style
// CASE WHEN conditionals into nested IF calls before generation.
type SmartGenerator struct {
	log   logrus.FieldLogger
	basic *BasicGenerator
}

var _ Generator = (*SmartGenerator)(nil)

// NewSmartGenerator creates the smart strategy.
func NewSmartGenerator(log logrus.FieldLogger, opts resolve.Options) (*SmartGenerator, error) {
	basic, err := NewBasicGenerator(log, opts)
	if err != nil {
		return nil, err
	}

	return &SmartGenerator{
		log:   log.WithField("generator", StrategySmart),
		basic: basic,
	}, nil
}

// Generate implements Generator
func (g *SmartGenerator) Generate(def *kbi.Definition, k *kbi.KPI) (*Measure, error) {
	m, err := g.basic.generate(def, k, RewriteCaseWhen(k.Formula))
	if err != nil {
		return nil, err
	}
	m.FormatHint = string(StrategySmart)

	return m, nil
}

// GenerateAll implements Generator
func (g *SmartGenerator) GenerateAll(def *kbi.Definition) ([]*Measure, error) {
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

// RewriteCaseWhen converts every CASE WHEN ... THEN ... ELSE ... END block
// into nested IF(condition, then, else) calls, translating the comparison
// and logical operators to their tabular spellings. A CASE without ELSE
// falls back to BLANK().
func RewriteCaseWhen(formula string) string {
	if !strings.Contains(strings.ToUpper(formula), "CASE") {
		return formula
	}

	return casePattern.ReplaceAllStringFunc(formula, func(block string) string {
		body := casePattern.FindStringSubmatch(block)[1]

		elseValue := "BLANK()"
		if parts := elseSplit.Split(body, 2); len(parts) == 2 {
			elseValue = strings.TrimSpace(parts[1])
			body = parts[0]
		}

		type branch struct {
			condition string
			then      string
		}
		var branches []branch
		for _, segment := range whenSplit.Split(body, -1) {
			segment = strings.TrimSpace(segment)
			if segment == "" {
				continue
			}
			parts := thenSplit.Split(segment, 2)
			if len(parts) != 2 {
				// malformed branch, leave the whole block untouched
				return block
			}
			branches = append(branches, branch{
				condition: strings.TrimSpace(parts[0]),
				then:      strings.TrimSpace(parts[1]),
			})
		}
		if len(branches) == 0 {
			return block
		}

		result := elseValue
		for i := len(branches) - 1; i >= 0; i-- {
			result = fmt.Sprintf("IF(%s, %s, %s)", translateCondition(branches[i].condition), branches[i].then, result)
		}

		return result
	})
}

// translateCondition rewrites SQL comparison and logical operators to the
// tabular forms.
func translateCondition(condition string) string {
	out := strings.ReplaceAll(condition, "!=", "<>")
	out = strings.ReplaceAll(out, " AND ", " && ")
	out = strings.ReplaceAll(out, " OR ", " || ")
	out = strings.ReplaceAll(out, "'", `"`)

	return out
}
