package resolve

import "errors"

var (
	// ErrUnresolvedVariable is returned in strict mode when a $var_ reference has no binding
	ErrUnresolvedVariable = errors.New("unresolved variable reference")
	// ErrInvalidLogicalOperator is returned when the combining operator is not AND or OR
	ErrInvalidLogicalOperator = errors.New("logical operator must be AND or OR")
)
