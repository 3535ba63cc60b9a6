// Package ontology provides read-only lineage and ancestry queries over a
// loaded ontology graph.
//
// A Provider wraps one immutable graph for the lifetime of the process.
// Every query is a total function: unknown ids yield empty or absent
// results, never errors. A Provider is safe for concurrent use.
package ontology

import (
	"log/slog"
	"sort"

	"github.com/rcsb/ontograph/internal/graph"
)

// DefaultMinTermCount is the health floor on the loaded term count. Gene
// Ontology releases carry well over this many non-obsolete terms, so a
// smaller graph indicates a truncated download or format drift.
const DefaultMinTermCount = 40000

// NamedTerm pairs a term id with its display name.
type NamedTerm struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TreeNode is one record of the flattened tree export. Parents lists the
// direct parent ids in edge order and is omitted from the JSON encoding
// when the term is a root of the global graph.
type TreeNode struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Parents []string `json:"parents,omitempty"`
}

// Stats summarizes a loaded ontology.
type Stats struct {
	Terms   int  `json:"terms"`
	Edges   int  `json:"edges"`
	Roots   int  `json:"roots"`
	Healthy bool `json:"healthy"`
}

// Provider answers queries over one immutable ontology graph.
type Provider struct {
	g        *graph.OntologyGraph
	minTerms int
	log      *slog.Logger
	header   map[string][]string
}

// New wraps an already built graph in a Provider. The graph is frozen if
// the caller has not done so already; it must not be mutated afterwards.
func New(g *graph.OntologyGraph, opts ...Option) *Provider {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	g.Freeze()
	return &Provider{g: g, minTerms: o.minTerms, log: o.log}
}

// Graph exposes the underlying frozen graph, e.g. for snapshotting.
func (p *Provider) Graph() *graph.OntologyGraph {
	return p.g
}

// Header returns the source document header (format-version, data-version,
// ...) when the Provider was produced by Open, nil otherwise.
func (p *Provider) Header() map[string][]string {
	return p.header
}

// Exists reports whether id names a term in the ontology.
func (p *Provider) Exists(id string) bool {
	return p.g.HasTerm(id)
}

// Term returns the term record for id, or nil when absent.
func (p *Provider) Term(id string) *graph.Term {
	return p.g.Term(id)
}

// Name returns the display name of id. The second result is false when the
// term is absent or carries no name.
func (p *Provider) Name(id string) (string, bool) {
	t := p.g.Term(id)
	if t == nil || t.Name == "" {
		return "", false
	}
	return t.Name, true
}

// Roots returns the ids of all terms with no parent edges.
func (p *Provider) Roots() []string {
	return p.g.Roots()
}

// ParentEdges returns the direct parent edges of id as (child, parent, kind)
// triples in edge order. Empty for unknown ids and for roots.
func (p *Provider) ParentEdges(id string) []graph.Edge {
	return p.g.OutEdges(id)
}

// Children returns the ids of the directly more specific terms, i.e. the
// terms that name id as a parent.
func (p *Provider) Children(id string) []string {
	return p.g.Children(id)
}

// Parents returns the ids of the direct parents of id.
func (p *Provider) Parents(id string) []string {
	return p.g.Parents(id)
}

// Descendants returns every term transitively more specific than id, each
// paired with its name, in BFS order. With includeSelf the seed appears
// exactly once, first. Unknown seeds yield nil. Traversal tracks visited
// terms and terminates even on cyclic data.
func (p *Provider) Descendants(id string, includeSelf bool) []NamedTerm {
	if !p.g.HasTerm(id) {
		p.log.Debug("descendants of unknown term", "id", id)
		return nil
	}

	ids := p.g.Descendants(id)
	out := make([]NamedTerm, 0, len(ids)+1)
	if includeSelf {
		out = append(out, p.namedTerm(id))
	}
	for _, did := range ids {
		out = append(out, p.namedTerm(did))
	}
	return out
}

// UniqueDescendants returns the deduplicated union of Descendants over all
// seeds, sorted ascending by id. The ordering is a contract: callers diff
// successive exports and rely on determinism. Unknown seeds are skipped.
func (p *Provider) UniqueDescendants(ids []string, includeSelf bool) []NamedTerm {
	set := make(map[string]bool)
	for _, id := range ids {
		if !p.g.HasTerm(id) {
			p.log.Debug("skipping unknown seed", "id", id)
			continue
		}
		if includeSelf {
			set[id] = true
		}
		for _, did := range p.g.Descendants(id) {
			set[did] = true
		}
	}

	sorted := make([]string, 0, len(set))
	for id := range set {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	out := make([]NamedTerm, len(sorted))
	for i, id := range sorted {
		out[i] = p.namedTerm(id)
	}
	return out
}

// TermIDs returns every term id in the graph's internal iteration order.
func (p *Provider) TermIDs() []string {
	return p.g.TermIDs()
}

// ExportTreeNodes materializes the closure of the seed set (the full node
// list, or filter intersected with it) and emits one record per covered
// term with its direct parent ids. The closure is built against a single
// shared visited set, so descendants of already covered terms are never
// re-traversed. Ids in filter that are not in the graph are logged and
// skipped. A nil filter exports the whole graph.
func (p *Provider) ExportTreeNodes(filter []string) []TreeNode {
	seeds := p.g.TermIDs()
	if filter != nil {
		keep := make(map[string]bool, len(filter))
		for _, id := range filter {
			if !p.g.HasTerm(id) {
				p.log.Warn("filter id not in current ontology", "id", id)
				continue
			}
			keep[id] = true
		}
		filtered := seeds[:0:0]
		for _, id := range seeds {
			if keep[id] {
				filtered = append(filtered, id)
			}
		}
		seeds = filtered
	}

	visited := make(map[string]bool)
	var order []string
	for _, seed := range seeds {
		p.g.DescendantsInto(seed, visited, &order)
	}

	out := make([]TreeNode, 0, len(order))
	for _, id := range order {
		node := TreeNode{ID: id}
		node.Name, _ = p.Name(id)
		for _, e := range p.g.OutEdges(id) {
			node.Parents = append(node.Parents, e.Parent)
		}
		out = append(out, node)
	}
	return out
}

// IsHealthy reports whether the graph is acyclic and larger than the
// configured minimum term count. Advisory: an unhealthy Provider still
// answers every query safely, just possibly incompletely.
func (p *Provider) IsHealthy() bool {
	return p.g.TermCount() > p.minTerms && p.g.IsAcyclic()
}

// Stats summarizes the loaded graph.
func (p *Provider) Stats() Stats {
	return Stats{
		Terms:   p.g.TermCount(),
		Edges:   p.g.EdgeCount(),
		Roots:   len(p.g.Roots()),
		Healthy: p.IsHealthy(),
	}
}

func (p *Provider) namedTerm(id string) NamedTerm {
	nt := NamedTerm{ID: id}
	nt.Name, _ = p.Name(id)
	return nt
}
