// Package graph tracks declared depends-on relationships between component
// names and detects cycles before any construction side effect occurs.
package graph

import "sync"

// DependsOnGraph records directed depends-on edges between component names.
// Unlike construction-time tracking, these edges come from declared
// configuration and are validated eagerly: adding an edge that closes a
// cycle fails with the full cycle path.
type DependsOnGraph struct {
	mu    sync.RWMutex
	edges map[string]map[string]struct{} // name -> names it depends on
}

// New creates an empty depends-on graph.
func New() *DependsOnGraph {
	return &DependsOnGraph{edges: make(map[string]map[string]struct{})}
}

// AddDependency records that name depends on dependsOn. If the edge would
// close a cycle it is not recorded and a CycleError carrying the cycle path
// is returned.
func (g *DependsOnGraph) AddDependency(name, dependsOn string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if name == dependsOn {
		return &CycleError{Name: name, Path: []string{name, name}}
	}

	// Walk from dependsOn; reaching name means the new edge closes a loop.
	if path := g.pathBetween(dependsOn, name); path != nil {
		return &CycleError{Name: name, Path: append([]string{name}, path...)}
	}

	deps, ok := g.edges[name]
	if !ok {
		deps = make(map[string]struct{})
		g.edges[name] = deps
	}
	deps[dependsOn] = struct{}{}
	return nil
}

// DependsOn reports whether name transitively depends on target.
func (g *DependsOnGraph) DependsOn(name, target string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.pathBetween(name, target) != nil
}

// Dependencies returns the direct declared dependencies of name.
func (g *DependsOnGraph) Dependencies(name string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	deps, ok := g.edges[name]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(deps))
	for dep := range deps {
		out = append(out, dep)
	}
	return out
}

// Remove drops a name and all edges that reference it.
func (g *DependsOnGraph) Remove(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.edges, name)
	for _, deps := range g.edges {
		delete(deps, name)
	}
}

// Clear removes all recorded edges.
func (g *DependsOnGraph) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.edges = make(map[string]map[string]struct{})
}

// Size returns the number of names with outgoing edges.
func (g *DependsOnGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}

// pathBetween returns the node path from start to target following recorded
// edges, or nil when target is unreachable. Caller holds the lock. The walk
// is iterative DFS with an explicit stack to avoid deep recursion.
func (g *DependsOnGraph) pathBetween(start, target string) []string {
	if start == target {
		return []string{start}
	}

	type frame struct {
		name string
		path []string
	}

	visited := make(map[string]struct{})
	stack := []frame{{name: start, path: []string{start}}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, seen := visited[top.name]; seen {
			continue
		}
		visited[top.name] = struct{}{}

		for dep := range g.edges[top.name] {
			path := append(append([]string(nil), top.path...), dep)
			if dep == target {
				return path
			}
			stack = append(stack, frame{name: dep, path: path})
		}
	}

	return nil
}
