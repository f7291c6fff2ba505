package metricstore

import "errors"

// ErrNoMeasures is returned when a definition carries no KBIs to render.
var ErrNoMeasures = errors.New("definition has no measures")
