package kbi

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// filtersSection decodes the top-level filters block. The query_filter
// group is additionally captured as an ordered slice: resolution and
// emission must follow declaration order, which a plain map would lose.
type filtersSection struct {
	groups       map[string]map[string]string
	queryFilters []QueryFilter
}

func (s *filtersSection) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: filters block must be a mapping", ErrMalformedDocument)
	}
	s.groups = make(map[string]map[string]string)
	for i := 0; i+1 < len(node.Content); i += 2 {
		groupName := node.Content[i].Value
		groupNode := node.Content[i+1]
		if groupNode.Kind != yaml.MappingNode {
			continue
		}
		group := make(map[string]string, len(groupNode.Content)/2)
		for j := 0; j+1 < len(groupNode.Content); j += 2 {
			name := groupNode.Content[j].Value
			expr := groupNode.Content[j+1].Value
			group[name] = expr
			if groupName == "query_filter" {
				s.queryFilters = append(s.queryFilters, QueryFilter{Name: name, Expression: expr})
			}
		}
		s.groups[groupName] = group
	}
	return nil
}

// document mirrors the source layout; Parse maps it onto the Definition IR.
type document struct {
	Description      string                `yaml:"description"`
	TechnicalName    string                `yaml:"technical_name"`
	DefaultVariables map[string]any        `yaml:"default_variables"`
	Filters          *filtersSection       `yaml:"filters"`
	Structures       map[string]*Structure `yaml:"structures"`
	KBIs             []*KPI                `yaml:"kbi"`
}

// Parse converts a YAML document into a Definition. Parsing is purely
// structural: macros and structure references are left untouched so the IR
// always reflects the literal source.
func Parse(data []byte) (*Definition, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if len(root.Content) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrMalformedDocument)
	}
	if root.Content[0].Kind != yaml.MappingNode {
		return nil, ErrMalformedDocument
	}

	var doc document
	if err := root.Content[0].Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	def := &Definition{
		Description:      doc.Description,
		TechnicalName:    doc.TechnicalName,
		DefaultVariables: doc.DefaultVariables,
		Structures:       doc.Structures,
		KBIs:             doc.KBIs,
	}
	if doc.Filters != nil {
		def.Filters = doc.Filters.groups
		def.QueryFilters = doc.Filters.queryFilters
	}

	for i, k := range def.KBIs {
		if k == nil {
			return nil, fmt.Errorf("%w: kbi entry %d is empty", ErrMalformedDocument, i)
		}
		k.SetDefaults()
		if strings.TrimSpace(k.Formula) == "" {
			return nil, fmt.Errorf("%w: kbi entry %d (%s)", ErrMissingFormula, i, k.Name())
		}
	}
	for _, s := range def.Structures {
		s.SetDefaults()
	}

	return def, nil
}

// ParseFile parses a single YAML file containing a KBI definition.
func ParseFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// FileError records a per-file parse failure during directory parsing.
type FileError struct {
	Path string
	Err  error
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e FileError) Unwrap() error { return e.Err }

// ParseDirectory parses every YAML document under dir. A corrupt file never
// aborts the batch: failures are collected as FileError values and returned
// alongside the successfully parsed definitions.
func ParseDirectory(dir string) ([]*Definition, []FileError, error) {
	files, err := discoverDocuments(dir)
	if err != nil {
		return nil, nil, err
	}

	var (
		defs     []*Definition
		failures []FileError
	)
	for _, path := range files {
		def, parseErr := ParseFile(path)
		if parseErr != nil {
			failures = append(failures, FileError{Path: path, Err: parseErr})
			continue
		}
		defs = append(defs, def)
	}

	return defs, failures, nil
}

// ParseDirectoryConcurrent parses every document under dir with at most
// limit files in flight. Output order matches the sorted file order
// regardless of completion order; per-file failures are isolated exactly as
// in ParseDirectory.
func ParseDirectoryConcurrent(ctx context.Context, dir string, limit int) ([]*Definition, []FileError, error) {
	files, err := discoverDocuments(dir)
	if err != nil {
		return nil, nil, err
	}
	if limit <= 0 {
		limit = 1
	}

	results := make([]*Definition, len(files))
	var (
		mu       sync.Mutex
		failures []FileError
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			def, parseErr := ParseFile(path)
			if parseErr != nil {
				mu.Lock()
				failures = append(failures, FileError{Path: path, Err: parseErr})
				mu.Unlock()
				return nil
			}
			results[i] = def
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	defs := make([]*Definition, 0, len(results))
	for _, def := range results {
		if def != nil {
			defs = append(defs, def)
		}
	}
	sort.Slice(failures, func(i, j int) bool { return failures[i].Path < failures[j].Path })

	return defs, failures, nil
}

func discoverDocuments(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotADirectory, dir)
	}

	var files []string
	walkErr := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, path)
		}
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("failed to discover documents in %s: %w", dir, walkErr)
	}
	sort.Strings(files)
	return files, nil
}
