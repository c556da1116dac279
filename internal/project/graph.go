package project

import "sort"

// Graph is the include dependency graph of a project. Edges point from the
// including file to the included file, so a topological order lists every
// file after all of its includers.
type Graph struct {
	nodes map[string]bool
	edges map[string][]string // includer -> includees
	rev   map[string][]string // includee -> includers
}

// NewGraph creates an empty dependency graph.
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[string]bool),
		edges: make(map[string][]string),
		rev:   make(map[string][]string),
	}
}

// AddNode registers a file in the graph.
func (g *Graph) AddNode(path string) {
	g.nodes[path] = true
}

// AddEdge records that from includes to. Both endpoints are registered.
// Duplicate edges collapse to one.
func (g *Graph) AddEdge(from, to string) {
	g.AddNode(from)
	g.AddNode(to)
	for _, existing := range g.edges[from] {
		if existing == to {
			return
		}
	}
	g.edges[from] = append(g.edges[from], to)
	g.rev[to] = append(g.rev[to], from)
}

// Nodes returns all registered files in lexical order.
func (g *Graph) Nodes() []string {
	out := make([]string, 0, len(g.nodes))
	for n := range g.nodes {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Includes returns the files directly included by path, in lexical order.
func (g *Graph) Includes(path string) []string {
	out := append([]string(nil), g.edges[path]...)
	sort.Strings(out)
	return out
}

// Includers returns the files that directly include path, in lexical order.
func (g *Graph) Includers(path string) []string {
	out := append([]string(nil), g.rev[path]...)
	sort.Strings(out)
	return out
}

// TopologicalOrder runs Kahn's algorithm over the include edges. Ties are
// broken lexically so the order is deterministic for a given project. The
// second result lists the files left unordered because they sit on an include
// cycle or are reachable only through one, in lexical order.
func (g *Graph) TopologicalOrder() (order []string, blocked []string) {
	indegree := make(map[string]int, len(g.nodes))
	for n := range g.nodes {
		indegree[n] = 0
	}
	for _, targets := range g.edges {
		for _, to := range targets {
			indegree[to]++
		}
	}

	var ready []string
	for n, d := range indegree {
		if d == 0 {
			ready = append(ready, n)
		}
	}
	sort.Strings(ready)

	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)

		var unlocked []string
		for _, to := range g.edges[n] {
			indegree[to]--
			if indegree[to] == 0 {
				unlocked = append(unlocked, to)
			}
		}
		if len(unlocked) > 0 {
			ready = append(ready, unlocked...)
			sort.Strings(ready)
		}
	}

	if len(order) < len(g.nodes) {
		ordered := make(map[string]bool, len(order))
		for _, n := range order {
			ordered[n] = true
		}
		for n := range g.nodes {
			if !ordered[n] {
				blocked = append(blocked, n)
			}
		}
		sort.Strings(blocked)
	}
	return order, blocked
}

// IsAncestor reports whether anc transitively includes desc. A file is not
// its own ancestor.
func (g *Graph) IsAncestor(anc, desc string) bool {
	if anc == desc {
		return false
	}
	seen := map[string]bool{anc: true}
	stack := []string{anc}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, to := range g.edges[n] {
			if to == desc {
				return true
			}
			if !seen[to] {
				seen[to] = true
				stack = append(stack, to)
			}
		}
	}
	return false
}

// Ancestors returns every file that transitively includes path, lexically
// sorted.
func (g *Graph) Ancestors(path string) []string {
	seen := make(map[string]bool)
	stack := []string{path}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, from := range g.rev[n] {
			if !seen[from] {
				seen[from] = true
				stack = append(stack, from)
			}
		}
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
