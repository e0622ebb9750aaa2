package deps

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrInvalidNodeID is returned by [Graph.AddNode] when the id is empty.
	ErrInvalidNodeID = errors.New("node ID must not be empty")

	// ErrUnknownNode is returned by [Graph.AddEdge] when an endpoint has not
	// been added.
	ErrUnknownNode = errors.New("unknown node")
)

// NodeState records what the plan does with a package.
type NodeState int

const (
	// StateInstall marks a package the plan downloads and promotes.
	StateInstall NodeState = iota
	// StateSatisfied marks a dependency already present locally.
	StateSatisfied
	// StateRoot marks the requested package.
	StateRoot
)

func (s NodeState) String() string {
	switch s {
	case StateSatisfied:
		return "satisfied"
	case StateRoot:
		return "root"
	default:
		return "install"
	}
}

// Node is one package in a dependency graph. Nodes are keyed by
// case-insensitive id: the builder resolves each id once.
type Node struct {
	ID      string
	Version string
	State   NodeState
}

// Edge is a declared dependency from one package id to another.
type Edge struct {
	From  string
	To    string
	Range string
}

// Graph is the dependency graph discovered by [Builder.Expand]. Unlike the
// plan, it may contain cycles. Graph is not safe for concurrent use.
type Graph struct {
	nodes    map[string]*Node
	order    []string
	edges    []Edge
	outgoing map[string][]string
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:    make(map[string]*Node),
		outgoing: make(map[string][]string),
	}
}

func key(id string) string { return strings.ToLower(id) }

// AddNode adds n or, when a node with the same id exists, updates it.
func (g *Graph) AddNode(n Node) error {
	if n.ID == "" {
		return ErrInvalidNodeID
	}
	k := key(n.ID)
	if existing, ok := g.nodes[k]; ok {
		*existing = n
		return nil
	}
	g.nodes[k] = &n
	g.order = append(g.order, k)
	return nil
}

// AddEdge records a dependency. Both endpoints must exist; duplicate edges
// are ignored.
func (g *Graph) AddEdge(e Edge) error {
	from, to := key(e.From), key(e.To)
	if _, ok := g.nodes[from]; !ok {
		return ErrUnknownNode
	}
	if _, ok := g.nodes[to]; !ok {
		return ErrUnknownNode
	}
	for _, c := range g.outgoing[from] {
		if c == to {
			return nil
		}
	}
	g.outgoing[from] = append(g.outgoing[from], to)
	g.edges = append(g.edges, e)
	return nil
}

// Merge adds every node and edge of other to g. A node present in both keeps
// g's version and state unless other marks it as a root.
func (g *Graph) Merge(other *Graph) {
	for _, n := range other.Nodes() {
		if _, ok := g.Node(n.ID); ok && n.State != StateRoot {
			continue
		}
		_ = g.AddNode(*n)
	}
	for _, e := range other.edges {
		_ = g.AddEdge(e)
	}
}

// Node returns the node for id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[key(id)]
	return n, ok
}

// Nodes returns every node in insertion order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, k := range g.order {
		out = append(out, g.nodes[k])
	}
	return out
}

// Edges returns every edge in insertion order.
func (g *Graph) Edges() []Edge {
	return append([]Edge(nil), g.edges...)
}

// Children returns the ids id depends on, sorted.
func (g *Graph) Children(id string) []string {
	var out []string
	for _, k := range g.outgoing[key(id)] {
		out = append(out, g.nodes[k].ID)
	}
	sort.Strings(out)
	return out
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// HasCycle reports whether the graph contains a dependency cycle, using a
// depth-first search with white/gray/black coloring.
func (g *Graph) HasCycle() bool {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(g.nodes))
	var visit func(string) bool
	visit = func(k string) bool {
		color[k] = gray
		for _, c := range g.outgoing[k] {
			switch color[c] {
			case gray:
				return true
			case white:
				if visit(c) {
					return true
				}
			}
		}
		color[k] = black
		return false
	}
	for _, k := range g.order {
		if color[k] == white && visit(k) {
			return true
		}
	}
	return false
}

// InstallOrder returns node ids with dependencies before their dependents.
// Edges that close a cycle are ignored.
func (g *Graph) InstallOrder() []string {
	seen := make(map[string]bool, len(g.nodes))
	var out []string
	var visit func(string)
	visit = func(k string) {
		if seen[k] {
			return
		}
		seen[k] = true
		for _, c := range g.outgoing[k] {
			visit(c)
		}
		out = append(out, g.nodes[k].ID)
	}
	for _, k := range g.order {
		visit(k)
	}
	return out
}
