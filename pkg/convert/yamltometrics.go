package convert

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openbi/kbic/pkg/metricstore"
	"github.com/openbi/kbic/pkg/observability"
	"github.com/openbi/kbic/pkg/resolve"
)

// YAMLToMetrics converts definition documents into metrics-store
// definitions: one document per measure as artifacts plus a consolidated
// document as the formatted output.
type YAMLToMetrics struct {
	log logrus.FieldLogger
}

var _ Converter = (*YAMLToMetrics)(nil)

// NewYAMLToMetrics creates the converter.
func NewYAMLToMetrics(log logrus.FieldLogger) *YAMLToMetrics {
	return &YAMLToMetrics{log: log.WithField("converter", "yaml_to_metrics")}
}

// SourceFormat implements Converter
func (c *YAMLToMetrics) SourceFormat() Format { return FormatYAML }

// TargetFormat implements Converter
func (c *YAMLToMetrics) TargetFormat() Format { return FormatMetrics }

// ValidateInput implements Converter
func (c *YAMLToMetrics) ValidateInput(data []byte) error {
	return validateInput(data)
}

// Convert implements Converter
func (c *YAMLToMetrics) Convert(ctx context.Context, req *Request) (resp *Response, err error) {
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

	generator, err := metricstore.NewGenerator(c.log, metricstore.Options{
		Resolve: resolve.Options{Strict: cfg.Strict},
		Catalog: cfg.Catalog,
		Schema:  cfg.Schema,
	})
	if err != nil {
		return nil, err
	}

	artifacts := make([]Artifact, 0, len(def.KBIs))

	var (
		warnings []string
		skipped  []string
	)

	for _, k := range def.KBIs {
		metric, genErr := generator.Generate(def, k)
		if genErr != nil {
			if cfg.Strict {
				err = fmt.Errorf("measure %s: %w", k.Name(), genErr)

				return nil, err
			}

			skipped = append(skipped, k.Name())
			warnings = append(warnings, fmt.Sprintf("%s: %v", k.Name(), genErr))
			observability.RecordMeasureFailure(string(FormatMetrics), "other")

			continue
		}

		artifacts = append(artifacts, Artifact{
			Name:        metric.Name,
			Description: metric.Description,
			Content:     metric.Definition,
		})
		warnings = append(warnings, warningStrings(metric.Warnings)...)
	}

	formatted, docWarnings, err := generator.GenerateDocument(def)
	if err != nil {
		return nil, err
	}

	warnings = append(warnings, warningStrings(docWarnings)...)

	observability.RecordMeasures(string(FormatMetrics), len(artifacts))

	out := &Output{
		Artifacts: artifacts,
		Formatted: formatted,
	}

	return newResponse(req, out, warnings, skipped), nil
}
