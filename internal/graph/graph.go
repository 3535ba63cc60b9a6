// Package graph provides the in-memory directed multigraph of ontology terms.
package graph

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the build-time mutation API.
var (
	// ErrGraphFrozen is returned when a mutation is attempted after Freeze.
	ErrGraphFrozen = errors.New("ontology graph is frozen")

	// ErrEmptyTermID is returned when a term or edge names an empty id.
	ErrEmptyTermID = errors.New("empty term id")

	// ErrDuplicateTerm is returned when a term id is added twice.
	ErrDuplicateTerm = errors.New("duplicate term id")

	// ErrDanglingEdge is returned when an edge endpoint is not a known term.
	ErrDanglingEdge = errors.New("edge references unknown term")
)

// OntologyGraph is a map-backed directed multigraph of ontology terms.
//
// Terms are keyed by id with O(1) lookup; parent edges are indexed per
// term in both directions so adjacency queries are O(result). Edge slices
// preserve insertion order, which keeps traversal output deterministic.
//
// The graph has two states: building and frozen. AddTerm and AddEdge are
// only legal while building; Freeze makes the graph permanently read-only,
// after which it is safe for concurrent readers without locking. There is
// no unfreeze and no mutation API beyond the two add calls.
type OntologyGraph struct {
	terms    map[string]*Term
	outgoing map[string][]*Edge // child id -> edges to parents
	incoming map[string][]*Edge // parent id -> edges from children
	order    []string           // term ids in insertion order

	edgeCount int
	frozen    bool
}

// NewOntologyGraph creates a new empty graph in the building state.
func NewOntologyGraph() *OntologyGraph {
	return &OntologyGraph{
		terms:    make(map[string]*Term),
		outgoing: make(map[string][]*Edge),
		incoming: make(map[string][]*Edge),
	}
}

// AddTerm adds a term to a building graph. The term id must be non-empty
// and not already present.
func (g *OntologyGraph) AddTerm(t *Term) error {
	if g.frozen {
		return ErrGraphFrozen
	}
	if t == nil || t.ID == "" {
		return ErrEmptyTermID
	}
	if _, ok := g.terms[t.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTerm, t.ID)
	}

	g.terms[t.ID] = t
	g.order = append(g.order, t.ID)
	return nil
}

// AddEdge adds a child-to-parent edge to a building graph. Both endpoints
// must already exist as terms; the edge kind is not constrained. Parallel
// edges of distinct kinds between the same pair are kept separate.
func (g *OntologyGraph) AddEdge(child, parent string, kind RelKind) error {
	if g.frozen {
		return ErrGraphFrozen
	}
	if child == "" || parent == "" {
		return ErrEmptyTermID
	}
	if _, ok := g.terms[child]; !ok {
		return fmt.Errorf("%w: child %s", ErrDanglingEdge, child)
	}
	if _, ok := g.terms[parent]; !ok {
		return fmt.Errorf("%w: parent %s", ErrDanglingEdge, parent)
	}

	e := &Edge{Child: child, Parent: parent, Kind: kind}
	g.outgoing[child] = append(g.outgoing[child], e)
	g.incoming[parent] = append(g.incoming[parent], e)
	g.edgeCount++
	return nil
}

// Freeze transitions the graph to its permanent read-only state.
// Freezing an already frozen graph is a no-op.
func (g *OntologyGraph) Freeze() {
	g.frozen = true
}

// Frozen reports whether the graph has been frozen.
func (g *OntologyGraph) Frozen() bool {
	return g.frozen
}

// TermCount returns the number of terms in the graph.
func (g *OntologyGraph) TermCount() int {
	return len(g.terms)
}

// EdgeCount returns the number of edges in the graph.
func (g *OntologyGraph) EdgeCount() int {
	return g.edgeCount
}

// Term returns the term with the given id, or nil if not present.
func (g *OntologyGraph) Term(id string) *Term {
	return g.terms[id]
}

// HasTerm reports whether the given id names a term in the graph.
func (g *OntologyGraph) HasTerm(id string) bool {
	_, ok := g.terms[id]
	return ok
}

// TermIDs returns every term id in insertion order.
func (g *OntologyGraph) TermIDs() []string {
	ids := make([]string, len(g.order))
	copy(ids, g.order)
	return ids
}

// Roots returns the ids of all terms with no outgoing parent edges,
// in insertion order.
func (g *OntologyGraph) Roots() []string {
	var roots []string
	for _, id := range g.order {
		if len(g.outgoing[id]) == 0 {
			roots = append(roots, id)
		}
	}
	return roots
}

// OutEdges returns the parent edges of the given term in insertion order.
// The result is empty for unknown ids and for roots.
func (g *OntologyGraph) OutEdges(id string) []Edge {
	return copyEdges(g.outgoing[id])
}

// Edges returns every edge in the graph, grouped by child term in insertion
// order. Feeding the result back through AddEdge reproduces the graph.
func (g *OntologyGraph) Edges() []Edge {
	out := make([]Edge, 0, g.edgeCount)
	for _, id := range g.order {
		for _, e := range g.outgoing[id] {
			out = append(out, *e)
		}
	}
	return out
}

// InEdges returns the child edges pointing at the given term in insertion
// order. The result is empty for unknown ids and for leaves.
func (g *OntologyGraph) InEdges(id string) []Edge {
	return copyEdges(g.incoming[id])
}

// Parents returns the ids of the terms the given term directly points to.
// Each parent appears once even when linked by parallel edges.
func (g *OntologyGraph) Parents(id string) []string {
	return uniqueEndpoints(g.outgoing[id], func(e *Edge) string { return e.Parent })
}

// Children returns the ids of the terms that directly point at the given
// term. Each child appears once even when linked by parallel edges.
func (g *OntologyGraph) Children(id string) []string {
	return uniqueEndpoints(g.incoming[id], func(e *Edge) string { return e.Child })
}

// Descendants returns every term reachable from id by walking edges against
// their direction (toward more specific terms), excluding id itself, in BFS
// order. The visited set guarantees termination even on cyclic data. The
// result is nil for unknown ids.
func (g *OntologyGraph) Descendants(id string) []string {
	if !g.HasTerm(id) {
		return nil
	}

	visited := map[string]bool{id: true}
	var out []string
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range g.incoming[cur] {
			if visited[e.Child] {
				continue
			}
			visited[e.Child] = true
			out = append(out, e.Child)
			queue = append(queue, e.Child)
		}
	}
	return out
}

// DescendantsInto walks the descendants of id as Descendants does, but
// shares the caller's visited set and appends first-visited ids to order.
// Nodes already in visited are neither emitted nor expanded, so repeated
// calls over overlapping subtrees never re-traverse covered ground.
func (g *OntologyGraph) DescendantsInto(id string, visited map[string]bool, order *[]string) {
	if !g.HasTerm(id) || visited[id] {
		return
	}

	visited[id] = true
	*order = append(*order, id)
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range g.incoming[cur] {
			if visited[e.Child] {
				continue
			}
			visited[e.Child] = true
			*order = append(*order, e.Child)
			queue = append(queue, e.Child)
		}
	}
}

// IsAcyclic reports whether the graph contains no directed cycle under the
// child-to-parent edge direction. Runs an iterative three-color DFS so deep
// hierarchies cannot exhaust the goroutine stack.
func (g *OntologyGraph) IsAcyclic() bool {
	const (
		white uint8 = iota // unvisited
		gray               // on the current DFS path
		black              // fully explored
	)

	color := make(map[string]uint8, len(g.terms))
	type frame struct {
		id   string
		next int
	}

	for _, start := range g.order {
		if color[start] != white {
			continue
		}
		color[start] = gray
		stack := []frame{{id: start}}

		for len(stack) > 0 {
			top := len(stack) - 1
			edges := g.outgoing[stack[top].id]
			if stack[top].next >= len(edges) {
				color[stack[top].id] = black
				stack = stack[:top]
				continue
			}

			parent := edges[stack[top].next].Parent
			stack[top].next++
			switch color[parent] {
			case white:
				color[parent] = gray
				stack = append(stack, frame{id: parent})
			case gray:
				return false
			}
		}
	}
	return true
}

func copyEdges(edges []*Edge) []Edge {
	if len(edges) == 0 {
		return nil
	}
	out := make([]Edge, len(edges))
	for i, e := range edges {
		out[i] = *e
	}
	return out
}

func uniqueEndpoints(edges []*Edge, pick func(*Edge) string) []string {
	if len(edges) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(edges))
	var out []string
	for _, e := range edges {
		id := pick(e)
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
