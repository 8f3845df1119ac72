// Procwarden - Dependency-aware process supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/procwarden

package graph

import (
	"fmt"
	"strings"

	"github.com/tomtom215/procwarden/internal/config"
)

// CycleError reports a dependency cycle. Cycle lists the services along one
// concrete cycle, starting and ending with the same service:
// [a b a] means a depends on b and b depends on a.
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return "dependency cycle: " + strings.Join(e.Cycle, " -> ")
}

// Graph is the dependency graph of a service list. Nodes are identified by
// their declaration index. A Graph is immutable after New.
type Graph struct {
	names      []string
	index      map[string]int
	deps       [][]int
	dependents [][]int
}

// New builds the graph. Duplicate names and references to undeclared
// services are returned as *config.ConfigError; cycles are not detected
// until Order.
func New(specs []config.ServiceSpec) (*Graph, error) {
	g := &Graph{
		names:      make([]string, len(specs)),
		index:      make(map[string]int, len(specs)),
		deps:       make([][]int, len(specs)),
		dependents: make([][]int, len(specs)),
	}

	for i := range specs {
		name := specs[i].Name
		if _, dup := g.index[name]; dup {
			return nil, &config.ConfigError{Err: fmt.Errorf("%w %q", config.ErrDuplicateService, name)}
		}
		g.names[i] = name
		g.index[name] = i
	}

	for i := range specs {
		seen := make(map[int]bool, len(specs[i].DependsOn))
		for _, dep := range specs[i].DependsOn {
			j, ok := g.index[dep]
			if !ok {
				return nil, &config.ConfigError{
					Err: fmt.Errorf("service %q: %w %q", specs[i].Name, config.ErrUnknownDependency, dep),
				}
			}
			if seen[j] {
				continue
			}
			seen[j] = true
			g.deps[i] = append(g.deps[i], j)
			g.dependents[j] = append(g.dependents[j], i)
		}
	}

	return g, nil
}

// Len returns the number of services.
func (g *Graph) Len() int { return len(g.names) }

// Name returns the name of service i.
func (g *Graph) Name(i int) string { return g.names[i] }

// Index returns the declaration index of the named service.
func (g *Graph) Index(name string) (int, bool) {
	i, ok := g.index[name]
	return i, ok
}

// Dependencies returns the services i depends on, in declaration order of
// its depends_on list. The slice must not be modified.
func (g *Graph) Dependencies(i int) []int { return g.deps[i] }

// Dependents returns the services that depend on i. The slice must not be
// modified.
func (g *Graph) Dependents(i int) []int { return g.dependents[i] }

// Order returns a start order as declaration indexes. Among services whose
// dependencies are all placed, the earliest declared goes first, so the
// result is a deterministic function of the input. A cycle yields
// *CycleError.
func (g *Graph) Order() ([]int, error) {
	n := len(g.names)
	pending := make([]int, n)
	for i := range g.deps {
		pending[i] = len(g.deps[i])
	}

	placed := make([]bool, n)
	order := make([]int, 0, n)
	for len(order) < n {
		next := -1
		for i := 0; i < n; i++ {
			if !placed[i] && pending[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			return nil, &CycleError{Cycle: g.findCycle(placed)}
		}
		placed[next] = true
		order = append(order, next)
		for _, d := range g.dependents[next] {
			pending[d]--
		}
	}
	return order, nil
}

// findCycle walks dependency edges among the unplaced services, starting
// from the earliest declared one. Every unplaced service has at least one
// unplaced dependency, so the walk must revisit a node.
func (g *Graph) findCycle(placed []bool) []string {
	start := -1
	for i := range placed {
		if !placed[i] {
			start = i
			break
		}
	}

	pos := make(map[int]int)
	var path []int
	for cur := start; ; {
		if at, ok := pos[cur]; ok {
			cycle := make([]string, 0, len(path)-at+1)
			for _, i := range path[at:] {
				cycle = append(cycle, g.names[i])
			}
			return append(cycle, g.names[cur])
		}
		pos[cur] = len(path)
		path = append(path, cur)
		for _, d := range g.deps[cur] {
			if !placed[d] {
				cur = d
				break
			}
		}
	}
}

// TopologicalOrder returns specs reordered so that every service comes after
// all of its dependencies. Ties are broken by declaration order.
func TopologicalOrder(specs []config.ServiceSpec) ([]config.ServiceSpec, error) {
	g, err := New(specs)
	if err != nil {
		return nil, err
	}
	order, err := g.Order()
	if err != nil {
		return nil, err
	}
	out := make([]config.ServiceSpec, len(order))
	for k, i := range order {
		out[k] = specs[i]
	}
	return out, nil
}

// ReverseOrder returns a reversed copy of a start order, which is the order
// services are stopped in.
func ReverseOrder[T any](order []T) []T {
	out := make([]T, len(order))
	for k, v := range order {
		out[len(order)-1-k] = v
	}
	return out
}
