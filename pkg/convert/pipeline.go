package convert

import (
	"bytes"
	"fmt"
	"time"

	"github.com/creasty/defaults"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/openbi/kbic/pkg/kbi"
	"github.com/openbi/kbic/pkg/observability"
	"github.com/openbi/kbic/pkg/resolve"
	"github.com/openbi/kbic/pkg/structures"
)

// prepare parses and validates the source document and, unless disabled,
// expands structure compositions. cfg is normalized in place.
func prepare(log logrus.FieldLogger, data []byte, cfg *Config) (*kbi.Definition, error) {
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to set defaults: %w", err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyInput
	}

	def, err := kbi.Parse(data)
	if err != nil {
		observability.RecordDocumentParsed("failed")

		return nil, err
	}

	observability.RecordDocumentParsed("success")

	if err := def.Validate(); err != nil {
		return nil, err
	}

	if len(def.KBIs) == 0 {
		return nil, ErrEmptyDefinition
	}

	if cfg.processStructures() {
		def, err = structures.NewExpander(log).Expand(def)
		if err != nil {
			return nil, err
		}
	}

	return def, nil
}

// validateInput is the shared ValidateInput implementation: the sanity
// checks of prepare without structure expansion.
func validateInput(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return ErrEmptyInput
	}

	def, err := kbi.Parse(data)
	if err != nil {
		return err
	}

	if err := def.Validate(); err != nil {
		return err
	}

	if len(def.KBIs) == 0 {
		return ErrEmptyDefinition
	}

	return nil
}

func newResponse(req *Request, out *Output, warnings, skipped []string) *Response {
	return &Response{
		Success:      true,
		SourceFormat: req.SourceFormat,
		TargetFormat: req.TargetFormat,
		OutputData:   out,
		Metadata: Metadata{
			ConversionID: uuid.NewString(),
			ConvertedAt:  time.Now().UTC(),
			Measures:     len(out.Artifacts),
			Skipped:      skipped,
		},
		Warnings: warnings,
	}
}

func warningStrings(warnings []resolve.Warning) []string {
	if len(warnings) == 0 {
		return nil
	}

	out := make([]string, len(warnings))
	for i, w := range warnings {
		observability.RecordResolutionWarning(string(w.Code))
		out[i] = fmt.Sprintf("%s: %s", w.Subject, w.Message)
	}

	return out
}

func recordConversion(req *Request, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "failed"
	}

	observability.RecordConversion(
		string(req.SourceFormat),
		string(req.TargetFormat),
		status,
		time.Since(start).Seconds(),
	)
}
