package graph

import (
	"fmt"
	"sort"
	"strings"
)

// Edge is a named dependency link: From depends on To.
type Edge struct {
	From string
	To   string
	Name string
}

// String renders the edge as "from -name-> to" for logs and error messages.
func (e Edge) String() string {
	return fmt.Sprintf("%s -%s-> %s", e.From, e.Name, e.To)
}

// Graph is an immutable set of nodes and named edges between them.
type Graph struct {
	// nodes is the node set.
	nodes map[string]struct{}
	// edges is the edge set.
	edges map[Edge]struct{}
}

// New builds a Graph from the given nodes and edges. Duplicates are
// collapsed. An edge whose endpoints are not both in nodes makes the graph
// malformed.
func New(nodes []string, edges []Edge) (*Graph, error) {
	g := &Graph{
		nodes: make(map[string]struct{}, len(nodes)),
		edges: make(map[Edge]struct{}, len(edges)),
	}
	for _, n := range nodes {
		g.nodes[n] = struct{}{}
	}
	for _, e := range edges {
		if _, ok := g.nodes[e.From]; !ok {
			return nil, fmt.Errorf("%w: edge %s starts at unknown node %q", ErrMalformedGraph, e, e.From)
		}
		if _, ok := g.nodes[e.To]; !ok {
			return nil, fmt.Errorf("%w: edge %s ends at unknown node %q", ErrMalformedGraph, e, e.To)
		}
		g.edges[e] = struct{}{}
	}
	return g, nil
}

// Empty returns a graph with no nodes.
func Empty() *Graph {
	return &Graph{nodes: map[string]struct{}{}, edges: map[Edge]struct{}{}}
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Has reports whether id is a node of the graph.
func (g *Graph) Has(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Nodes returns the node set in sorted order.
func (g *Graph) Nodes() []string {
	out := make([]string, 0, len(g.nodes))
	for n := range g.nodes {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Edges returns the edge set sorted by (From, To, Name).
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, len(g.edges))
	for e := range g.edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.From != b.From {
			return a.From < b.From
		}
		if a.To != b.To {
			return a.To < b.To
		}
		return a.Name < b.Name
	})
	return out
}

// Equal reports structural equality: same node set and same edge set.
func (g *Graph) Equal(other *Graph) bool {
	if g == nil || other == nil {
		return g == other
	}
	if len(g.nodes) != len(other.nodes) || len(g.edges) != len(other.edges) {
		return false
	}
	for n := range g.nodes {
		if _, ok := other.nodes[n]; !ok {
			return false
		}
	}
	for e := range g.edges {
		if _, ok := other.edges[e]; !ok {
			return false
		}
	}
	return true
}

// String renders the graph compactly, mostly for test failure output.
func (g *Graph) String() string {
	var sb strings.Builder
	sb.WriteString("Graph{nodes: [")
	sb.WriteString(strings.Join(g.Nodes(), ", "))
	sb.WriteString("], edges: [")
	for i, e := range g.Edges() {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(e.String())
	}
	sb.WriteString("]}")
	return sb.String()
}

// Subgraph restricts the graph to the given nodes and to the edges whose
// endpoints are both kept. Nodes not in the graph are ignored.
func (g *Graph) Subgraph(nodes []string) *Graph {
	sub := &Graph{
		nodes: make(map[string]struct{}, len(nodes)),
		edges: make(map[Edge]struct{}),
	}
	for _, n := range nodes {
		if _, ok := g.nodes[n]; ok {
			sub.nodes[n] = struct{}{}
		}
	}
	for e := range g.edges {
		_, okFrom := sub.nodes[e.From]
		_, okTo := sub.nodes[e.To]
		if okFrom && okTo {
			sub.edges[e] = struct{}{}
		}
	}
	return sub
}

// TransitiveClosure returns the subgraph of every node reachable from seeds,
// seeds included. With reverse false the walk follows edges from dependent
// to dependency, which yields everything the seeds need. With reverse true
// it follows edges backwards and yields everything that needs the seeds.
func (g *Graph) TransitiveClosure(seeds []string, reverse bool) (*Graph, error) {
	links := g.Links()
	if reverse {
		links = g.ReverseLinks()
	}

	reached := make(map[string]struct{}, len(seeds))
	queue := make([]string, 0, len(seeds))
	for _, s := range seeds {
		if _, ok := g.nodes[s]; !ok {
			return nil, fmt.Errorf("%w: closure seed %q is not a node", ErrMalformedGraph, s)
		}
		if _, seen := reached[s]; !seen {
			reached[s] = struct{}{}
			queue = append(queue, s)
		}
	}

	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, next := range links[n] {
			if _, seen := reached[next]; seen {
				continue
			}
			reached[next] = struct{}{}
			queue = append(queue, next)
		}
	}

	keep := make([]string, 0, len(reached))
	for n := range reached {
		keep = append(keep, n)
	}
	return g.Subgraph(keep), nil
}

// Links maps every node to the sorted, de-duplicated nodes it depends on.
func (g *Graph) Links() map[string][]string {
	return g.adjacency(false)
}

// ReverseLinks maps every node to the sorted, de-duplicated nodes that
// depend on it.
func (g *Graph) ReverseLinks() map[string][]string {
	return g.adjacency(true)
}

// NamedLinks maps every node to its dependencies keyed by edge name.
// Nodes without dependencies are absent.
func (g *Graph) NamedLinks() map[string]map[string]string {
	out := make(map[string]map[string]string)
	for e := range g.edges {
		m, ok := out[e.From]
		if !ok {
			m = make(map[string]string)
			out[e.From] = m
		}
		m[e.Name] = e.To
	}
	return out
}

func (g *Graph) adjacency(reverse bool) map[string][]string {
	sets := make(map[string]map[string]struct{}, len(g.nodes))
	for n := range g.nodes {
		sets[n] = make(map[string]struct{})
	}
	for e := range g.edges {
		from, to := e.From, e.To
		if reverse {
			from, to = to, from
		}
		sets[from][to] = struct{}{}
	}

	out := make(map[string][]string, len(sets))
	for n, set := range sets {
		list := make([]string, 0, len(set))
		for m := range set {
			list = append(list, m)
		}
		sort.Strings(list)
		out[n] = list
	}
	return out
}

// DetectCycles checks the graph for any cycle. It returns an error wrapping
// ErrCyclicGraph naming the first node found on a cycle.
func (g *Graph) DetectCycles() error {
	links := g.Links()

	// permanent: fully visited and not part of a cycle.
	// temporary: on the current DFS stack.
	permanent := make(map[string]bool, len(g.nodes))
	temporary := make(map[string]bool)

	var visit func(n string) error
	visit = func(n string) error {
		if permanent[n] {
			return nil
		}
		if temporary[n] {
			return fmt.Errorf("%w: cycle detected involving node %q", ErrCyclicGraph, n)
		}
		temporary[n] = true
		for _, dep := range links[n] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		delete(temporary, n)
		permanent[n] = true
		return nil
	}

	for _, n := range g.Nodes() {
		if err := visit(n); err != nil {
			return err
		}
	}
	return nil
}
