// Package testutil provides shared test fixtures: representative KBI
// documents and helpers for laying them out on disk (fixtures.go).
package testutil
