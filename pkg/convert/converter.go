// Package convert wires the target generators behind a format-pair
// registry: a converter takes raw source bytes and produces the rendered
// artifacts for one target format.
package convert

import (
	"context"
	"fmt"
	"time"
)

// Format identifies a source or target representation.
type Format string

const (
	FormatYAML    Format = "yaml"
	FormatDAX     Format = "dax"
	FormatSQL     Format = "sql"
	FormatMetrics Format = "metrics"
)

// Config controls a conversion. Zero values fall back to defaults.
type Config struct {
	// ProcessStructures expands structure compositions before generation;
	// nil means true
	ProcessStructures *bool `default:"true"`
	// Dialect selects the SQL dialect for SQL targets
	Dialect string `default:"standard"`
	// Strategy selects the generation strategy for DAX targets
	Strategy string `default:"tree"`
	// Catalog and Schema qualify metrics-store source tables
	Catalog string `default:"catalog"`
	Schema  string `default:"schema"`
	// Strict fails the conversion on unresolved variables or per-measure
	// generation errors instead of collecting warnings
	Strict bool
	// Concurrency limits parallel batch conversions
	Concurrency int `default:"4"`
}

func (c *Config) processStructures() bool {
	return c.ProcessStructures == nil || *c.ProcessStructures
}

// Request describes one conversion.
type Request struct {
	SourceFormat Format
	TargetFormat Format
	InputData    []byte
	Config       Config
}

// Artifact is one generated output item: a measure, a query or a document.
type Artifact struct {
	Name        string
	Description string
	Content     string
}

// Output carries the generated artifacts plus a paste-ready rendering of
// all of them.
type Output struct {
	Artifacts []Artifact
	Formatted string
}

// Metadata describes a completed conversion.
type Metadata struct {
	// ConversionID uniquely identifies this conversion
	ConversionID string
	ConvertedAt  time.Time
	// Measures is the number of artifacts generated
	Measures int
	// Skipped names measures that failed and were left out of the output
	Skipped []string
}

// Response is the result of a conversion.
type Response struct {
	Success      bool
	SourceFormat Format
	TargetFormat Format
	OutputData   *Output
	Metadata     Metadata
	Warnings     []string
}

// Converter transforms source bytes into target artifacts. Implementations
// are stateless and safe for concurrent use.
type Converter interface {
	Convert(ctx context.Context, req *Request) (*Response, error)
	ValidateInput(data []byte) error
	SourceFormat() Format
	TargetFormat() Format
}

// ParseFormat resolves a format name.
func ParseFormat(name string) (Format, error) {
	switch Format(name) {
	case FormatYAML, FormatDAX, FormatSQL, FormatMetrics:
		return Format(name), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
}
