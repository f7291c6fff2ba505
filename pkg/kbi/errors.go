package kbi

import "errors"

var (
	// ErrMalformedDocument is returned when the top-level document is not a mapping
	ErrMalformedDocument = errors.New("malformed document: top level must be a mapping")
	// ErrMissingFormula is returned when a KPI entry lacks a formula
	ErrMissingFormula = errors.New("kbi entry is missing a formula")
	// ErrInvalidDisplaySign is returned when display_sign is not 1 or -1
	ErrInvalidDisplaySign = errors.New("display_sign must be 1 or -1")
	// ErrDuplicateName is returned when two KPIs share a technical name
	ErrDuplicateName = errors.New("duplicate technical name")
	// ErrInvalidFilterType is returned when a filter entry is neither a string nor a mapping
	ErrInvalidFilterType = errors.New("filter must be a string or a mapping")
	// ErrNotADirectory is returned when a directory parse target is not a directory
	ErrNotADirectory = errors.New("not a directory")
)
