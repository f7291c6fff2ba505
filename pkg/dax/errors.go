package dax

import "errors"

var (
	// ErrUnknownStrategy is returned when the requested strategy does not exist
	ErrUnknownStrategy = errors.New("unknown generation strategy")
	// ErrMeasureNotFound is returned when a named measure is not in the definition
	ErrMeasureNotFound = errors.New("measure not found")
	// ErrCircularMeasures is returned when calculated measures reference each other cyclically
	ErrCircularMeasures = errors.New("circular measure dependencies")
	// ErrUnbalancedExpression is returned when a formula cannot be parsed into a tree
	ErrUnbalancedExpression = errors.New("unbalanced expression")
)
