package convert

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
)

type pathKey struct {
	source Format
	target Format
}

// Registry maps format pairs to converters. Registration happens at
// process start; the registry is read-only afterwards, so lookups need no
// locking.
type Registry struct {
	log        logrus.FieldLogger
	converters map[pathKey]Converter
}

// NewRegistry creates an empty registry.
func NewRegistry(log logrus.FieldLogger) *Registry {
	return &Registry{
		log:        log.WithField("component", "convert"),
		converters: make(map[pathKey]Converter),
	}
}

// Register adds a converter for its format pair. Registering the same pair
// again replaces the earlier converter.
func (r *Registry) Register(c Converter) {
	key := pathKey{source: c.SourceFormat(), target: c.TargetFormat()}

	if _, exists := r.converters[key]; exists {
		r.log.WithFields(logrus.Fields{
			"source": key.source,
			"target": key.target,
		}).Warn("Replacing registered converter")
	}

	r.converters[key] = c
}

// Create returns the converter for a format pair.
func (r *Registry) Create(source, target Format) (Converter, error) {
	c, ok := r.converters[pathKey{source: source, target: target}]
	if !ok {
		return nil, &UnsupportedConversionError{
			Source:    source,
			Target:    target,
			Available: r.Paths(),
		}
	}

	return c, nil
}

// Paths lists the registered format pairs, sorted.
func (r *Registry) Paths() []string {
	paths := make([]string, 0, len(r.converters))
	for key := range r.converters {
		paths = append(paths, fmt.Sprintf("%s -> %s", key.source, key.target))
	}

	sort.Strings(paths)

	return paths
}

// NewDefaultRegistry creates a registry with every built-in converter
// registered.
func NewDefaultRegistry(log logrus.FieldLogger) *Registry {
	r := NewRegistry(log)
	r.Register(NewYAMLToDAX(log))
	r.Register(NewYAMLToSQL(log))
	r.Register(NewYAMLToMetrics(log))

	return r
}
