package sqlgen

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownDialect is returned when a dialect name cannot be resolved.
	ErrUnknownDialect = errors.New("unknown sql dialect")
	// ErrEmptyFormula is returned when a measure has no formula to render.
	ErrEmptyFormula = errors.New("empty formula")
)

// FeatureError reports a measure that requires a capability the target
// dialect lacks. It fails the single measure, not the batch.
type FeatureError struct {
	Dialect Dialect
	Feature string
	Measure string
}

func (e *FeatureError) Error() string {
	return fmt.Sprintf("dialect %s does not support %s (measure %s)", e.Dialect, e.Feature, e.Measure)
}

// MeasureError wraps a per-measure generation failure so batch callers can
// keep the partial results.
type MeasureError struct {
	Measure string
	Err     error
}

func (e *MeasureError) Error() string {
	return fmt.Sprintf("measure %s: %v", e.Measure, e.Err)
}

func (e *MeasureError) Unwrap() error {
	return e.Err
}
