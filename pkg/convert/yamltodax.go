package convert

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openbi/kbic/pkg/dax"
	"github.com/openbi/kbic/pkg/observability"
	"github.com/openbi/kbic/pkg/resolve"
)

// YAMLToDAX converts definition documents into tabular-model measures.
type YAMLToDAX struct {
	log logrus.FieldLogger
}

var _ Converter = (*YAMLToDAX)(nil)

// NewYAMLToDAX creates the converter.
func NewYAMLToDAX(log logrus.FieldLogger) *YAMLToDAX {
	return &YAMLToDAX{log: log.WithField("converter", "yaml_to_dax")}
}

// SourceFormat implements Converter
func (c *YAMLToDAX) SourceFormat() Format { return FormatYAML }

// TargetFormat implements Converter
func (c *YAMLToDAX) TargetFormat() Format { return FormatDAX }

// ValidateInput implements Converter
func (c *YAMLToDAX) ValidateInput(data []byte) error {
	return validateInput(data)
}

// Convert implements Converter
func (c *YAMLToDAX) Convert(ctx context.Context, req *Request) (resp *Response, err error) {
	start := time.Now()
	defer func() { recordConversion(req, start, err) }()

	if err = ctx.Err(); err != nil {
		return nil, err
	}

	cfg := req.Config

	def, err := prepare(c.log, req.InputData, &cfg)
	if err != nil {
		return nil, err
	}

	generator, err := dax.New(c.log, dax.Strategy(cfg.Strategy), resolve.Options{Strict: cfg.Strict})
	if err != nil {
		return nil, err
	}

	measures, err := generator.GenerateAll(def)
	if err != nil {
		return nil, err
	}

	artifacts := make([]Artifact, 0, len(measures))
	blocks := make([]string, 0, len(measures))

	var warnings []string

	for _, m := range measures {
		block := fmt.Sprintf("%s = %s", m.Name, m.Formula)

		artifacts = append(artifacts, Artifact{
			Name:        m.Name,
			Description: m.Description,
			Content:     block,
		})
		blocks = append(blocks, block)

		if m.TableInferred {
			warnings = append(warnings, fmt.Sprintf("%s: source table was inferred from the formula, verify it", m.Name))
		}

		warnings = append(warnings, warningStrings(m.Warnings)...)
	}

	observability.RecordMeasures(string(FormatDAX), len(artifacts))

	out := &Output{
		Artifacts: artifacts,
		Formatted: strings.Join(blocks, "\n\n"),
	}

	return newResponse(req, out, warnings, nil), nil
}
