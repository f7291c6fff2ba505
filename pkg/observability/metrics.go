package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics must be global for registration
var (
	// ConversionsTotal tracks the total number of conversions performed
	ConversionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kbic_conversions_total",
			Help: "Total number of conversions performed",
		},
		[]string{"source_format", "target_format", "status"}, // status: success, failed
	)

	// ConversionDuration measures conversion duration in seconds
	ConversionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kbic_conversion_duration_seconds",
			Help:    "Conversion execution duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"source_format", "target_format"},
	)

	// MeasuresGenerated counts generated output artifacts per target
	MeasuresGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kbic_measures_generated_total",
			Help: "Total number of measures generated",
		},
		[]string{"target_format"},
	)

	// MeasureFailures counts per-measure generation failures within batches
	MeasureFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kbic_measure_failures_total",
			Help: "Total number of per-measure generation failures",
		},
		[]string{"target_format", "reason"}, // reason: dialect_unsupported, unresolved_variable, other
	)

	// ValidationsTotal counts definition validations by outcome
	ValidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kbic_validations_total",
			Help: "Total number of definition validations",
		},
		[]string{"result"}, // result: valid, invalid
	)

	// ResolutionWarnings counts variable resolution warnings
	ResolutionWarnings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kbic_resolution_warnings_total",
			Help: "Total number of variable resolution warnings",
		},
		[]string{"code"},
	)

	// DocumentsParsed counts parsed source documents by outcome
	DocumentsParsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kbic_documents_parsed_total",
			Help: "Total number of source documents parsed",
		},
		[]string{"status"}, // status: success, failed
	)

	// StructuresExpanded counts KBI variants produced by structure expansion
	StructuresExpanded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kbic_structures_expanded_total",
			Help: "Total number of measure variants produced by structure expansion",
		},
		[]string{"structure"},
	)

	// ErrorsTotal counts total number of errors
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kbic_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)

// RecordConversion records a completed conversion
func RecordConversion(source, target, status string, duration float64) {
	ConversionsTotal.WithLabelValues(source, target, status).Inc()
	ConversionDuration.WithLabelValues(source, target).Observe(duration)
}

// RecordMeasures records generated output artifacts
func RecordMeasures(target string, count int) {
	MeasuresGenerated.WithLabelValues(target).Add(float64(count))
}

// RecordMeasureFailure records a per-measure generation failure
func RecordMeasureFailure(target, reason string) {
	MeasureFailures.WithLabelValues(target, reason).Inc()
}

// RecordValidation records a definition validation outcome
func RecordValidation(valid bool) {
	result := "valid"
	if !valid {
		result = "invalid"
	}

	ValidationsTotal.WithLabelValues(result).Inc()
}

// RecordResolutionWarning records a variable resolution warning
func RecordResolutionWarning(code string) {
	ResolutionWarnings.WithLabelValues(code).Inc()
}

// RecordDocumentParsed records a parsed source document
func RecordDocumentParsed(status string) {
	DocumentsParsed.WithLabelValues(status).Inc()
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
