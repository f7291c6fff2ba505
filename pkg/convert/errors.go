package convert

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownFormat is returned when a format name cannot be resolved.
	ErrUnknownFormat = errors.New("unknown format")
	// ErrEmptyDefinition is returned when a document defines no measures.
	ErrEmptyDefinition = errors.New("definition has no kbis")
	// ErrEmptyInput is returned when a request carries no input data.
	ErrEmptyInput = errors.New("empty input data")
)

// UnsupportedConversionError reports a format pair with no registered
// converter, listing the paths that are registered.
type UnsupportedConversionError struct {
	Source    Format
	Target    Format
	Available []string
}

func (e *UnsupportedConversionError) Error() string {
	return fmt.Sprintf("no converter registered for %s -> %s (available: %s)",
		e.Source, e.Target, strings.Join(e.Available, ", "))
}

// BatchError wraps a failed request inside a batch so callers keep the
// partial results.
type BatchError struct {
	Index int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("request %d: %v", e.Index, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}
