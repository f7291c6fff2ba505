package convert

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openbi/kbic/pkg/observability"
	"github.com/openbi/kbic/pkg/resolve"
	"github.com/openbi/kbic/pkg/sqlgen"
)

// YAMLToSQL converts definition documents into dialect-specific SQL
// queries. Per-measure failures are reported as warnings and the batch
// continues unless strict mode is on.
type YAMLToSQL struct {
	log logrus.FieldLogger
}

var _ Converter = (*YAMLToSQL)(nil)

// NewYAMLToSQL creates the converter.
func NewYAMLToSQL(log logrus.FieldLogger) *YAMLToSQL {
	return &YAMLToSQL{log: log.WithField("converter", "yaml_to_sql")}
}

// SourceFormat implements Converter
func (c *YAMLToSQL) SourceFormat() Format { return FormatYAML }

// TargetFormat implements Converter
func (c *YAMLToSQL) TargetFormat() Format { return FormatSQL }

// ValidateInput implements Converter
func (c *YAMLToSQL) ValidateInput(data []byte) error {
	return validateInput(data)
}

// Convert implements Converter
func (c *YAMLToSQL) Convert(ctx context.Context, req *Request) (resp *Response, err error) {
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

	dialect, err := sqlgen.ParseDialect(cfg.Dialect)
	if err != nil {
		return nil, err
	}

	generator, err := sqlgen.NewGenerator(c.log, dialect, sqlgen.Options{
		Resolve: resolve.Options{Strict: cfg.Strict},
	})
	if err != nil {
		return nil, err
	}

	queries, failures := generator.GenerateAll(def)

	if cfg.Strict && len(failures) > 0 {
		err = failures[0]

		return nil, err
	}

	artifacts := make([]Artifact, 0, len(queries))
	blocks := make([]string, 0, len(queries))

	var warnings []string

	for _, q := range queries {
		artifacts = append(artifacts, Artifact{
			Name:        q.Name,
			Description: q.Description,
			Content:     q.SQL,
		})
		blocks = append(blocks, fmt.Sprintf("-- %s\n%s;", q.Name, q.SQL))

		if q.TableInferred {
			warnings = append(warnings, fmt.Sprintf("%s: source table was inferred from the formula, verify it", q.Name))
		}

		warnings = append(warnings, warningStrings(q.Warnings)...)
	}

	skipped := make([]string, 0, len(failures))
	for _, failure := range failures {
		skipped = append(skipped, failure.Measure)
		warnings = append(warnings, failure.Error())
		observability.RecordMeasureFailure(string(FormatSQL), failureReason(failure))
	}

	observability.RecordMeasures(string(FormatSQL), len(artifacts))

	out := &Output{
		Artifacts: artifacts,
		Formatted: strings.Join(blocks, "\n\n"),
	}

	return newResponse(req, out, warnings, skipped), nil
}

func failureReason(err error) string {
	var featureErr *sqlgen.FeatureError
	if errors.As(err, &featureErr) {
		return "dialect_unsupported"
	}

	if errors.Is(err, resolve.ErrUnresolvedVariable) {
		return "unresolved_variable"
	}

	return "other"
}
