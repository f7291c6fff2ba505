// Package structures expands KPIs with applied structures into combined
// measures, ordering and validating structure formula references through a
// dependency graph.
package structures

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/heimdalr/dag"

	"github.com/openbi/kbic/pkg/kbi"
)

// referencePattern matches parenthesized identifiers inside structure
// formulas; identifiers naming another structure are treated as references.
var referencePattern = regexp.MustCompile(`\(\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*\)`)

// CycleError reports a circular structure reference, naming the members of
// the cycle in traversal order.
type CycleError struct {
	Members []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("circular structure dependency: %s", strings.Join(e.Members, " -> "))
}

// References returns the structures referenced by a formula, in order of
// appearance. Identifiers that do not name a known structure are ignored.
func References(formula string, available map[string]*kbi.Structure) []string {
	var refs []string
	seen := make(map[string]struct{})

	for _, match := range referencePattern.FindAllStringSubmatch(formula, -1) {
		name := match[1]
		if _, ok := available[name]; !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		refs = append(refs, name)
	}

	return refs
}

// Graph is the dependency graph over a definition's structures.
type Graph struct {
	dag  *dag.DAG
	deps map[string][]string
}

// BuildGraph constructs the structure dependency graph. A circular
// reference is rejected with a CycleError naming the cycle members.
func BuildGraph(structs map[string]*kbi.Structure) (*Graph, error) {
	g := &Graph{
		dag:  dag.NewDAG(),
		deps: make(map[string][]string, len(structs)),
	}

	names := make([]string, 0, len(structs))
	for name := range structs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := g.dag.AddVertexByID(name, name); err != nil {
			return nil, fmt.Errorf("failed to add structure %s: %w", name, err)
		}
	}

	for _, name := range names {
		s := structs[name]
		for _, dep := range References(s.Formula, structs) {
			if dep == name {
				return nil, &CycleError{Members: []string{name, name}}
			}
			g.deps[name] = append(g.deps[name], dep)
			if err := g.dag.AddEdge(dep, name); err != nil {
				if cycle := findCycle(g.deps); cycle != nil {
					return nil, &CycleError{Members: cycle}
				}
				return nil, fmt.Errorf("failed to add dependency %s -> %s: %w", dep, name, err)
			}
		}
	}

	return g, nil
}

// Dependencies returns the structures the named structure's formula refers to.
func (g *Graph) Dependencies(name string) []string {
	return g.deps[name]
}

// Order returns every structure in dependency order: a structure always
// follows the structures its formula references. Ties break alphabetically
// so the order is stable across runs.
func (g *Graph) Order() []string {
	vertices := g.dag.GetVertices()

	names := make([]string, 0, len(vertices))
	for id := range vertices {
		names = append(names, id)
	}
	sort.Strings(names)

	var (
		order   []string
		visited = make(map[string]struct{}, len(names))
		visit   func(string)
	)
	visit = func(name string) {
		if _, done := visited[name]; done {
			return
		}
		visited[name] = struct{}{}
		deps := append([]string(nil), g.deps[name]...)
		sort.Strings(deps)
		for _, dep := range deps {
			visit(dep)
		}
		order = append(order, name)
	}
	for _, name := range names {
		visit(name)
	}

	return order
}

// findCycle walks the raw dependency map looking for a back edge; it
// returns the cycle members closed on the repeated element, or nil.
func findCycle(deps map[string][]string) []string {
	const (
		unvisited = iota
		inStack
		done
	)

	state := make(map[string]int, len(deps))
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		stack []string
		walk  func(string) []string
	)
	walk = func(name string) []string {
		state[name] = inStack
		stack = append(stack, name)

		sorted := append([]string(nil), deps[name]...)
		sort.Strings(sorted)
		for _, dep := range sorted {
			switch state[dep] {
			case inStack:
				for i, member := range stack {
					if member == dep {
						return append(append([]string(nil), stack[i:]...), dep)
					}
				}
			case unvisited:
				if cycle := walk(dep); cycle != nil {
					return cycle
				}
			}
		}

		stack = stack[:len(stack)-1]
		state[name] = done

		return nil
	}

	for _, name := range names {
		if state[name] == unvisited {
			if cycle := walk(name); cycle != nil {
				return cycle
			}
		}
	}

	return nil
}
