package graph

import (
	"fmt"
	"log/slog"

	"github.com/rcsb/ontograph/internal/obo"
)

// ReferencePolicy controls what the builder does with a relationship whose
// endpoint never appears in the term list.
type ReferencePolicy int

const (
	// DropDanglingEdges keeps the load best-effort: the edge is logged and
	// discarded. Reference data sets carry a handful of relationship targets
	// outside the term universe, so this is the default.
	DropDanglingEdges ReferencePolicy = iota

	// FailOnDanglingEdges aborts the build on the first dangling edge.
	FailOnDanglingEdges
)

// BuildOption configures a Build call.
type BuildOption func(*builder)

// WithReferencePolicy sets the dangling-edge policy.
func WithReferencePolicy(p ReferencePolicy) BuildOption {
	return func(b *builder) {
		b.policy = p
	}
}

// WithBuildLogger sets the logger used for build diagnostics.
func WithBuildLogger(log *slog.Logger) BuildOption {
	return func(b *builder) {
		if log != nil {
			b.log = log
		}
	}
}

type builder struct {
	policy ReferencePolicy
	log    *slog.Logger
}

// BuildStats summarizes what a Build call kept and discarded.
type BuildStats struct {
	Terms          int
	Edges          int
	DroppedEdges   int
	DuplicateTerms int
}

// Build constructs a frozen ontology graph from parsed records.
//
// Duplicate term ids keep the first occurrence and log the rest. Dangling
// edges are handled per the configured ReferencePolicy; with
// FailOnDanglingEdges the returned error wraps ErrDanglingEdge and no graph
// is produced.
func Build(res *obo.ParseResult, opts ...BuildOption) (*OntologyGraph, BuildStats, error) {
	b := &builder{policy: DropDanglingEdges, log: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}

	g := NewOntologyGraph()
	var stats BuildStats

	for i := range res.Terms {
		rec := &res.Terms[i]
		term := &Term{ID: rec.ID, Name: rec.Name, Attributes: rec.Attributes}
		if err := g.AddTerm(term); err != nil {
			stats.DuplicateTerms++
			b.log.Warn("skipping term", "id", rec.ID, "reason", err)
		}
	}

	for _, rel := range res.Relationships {
		if !g.HasTerm(rel.ChildID) || !g.HasTerm(rel.ParentID) {
			if b.policy == FailOnDanglingEdges {
				return nil, BuildStats{}, fmt.Errorf("%w: %s -[%s]-> %s",
					ErrDanglingEdge, rel.ChildID, rel.Kind, rel.ParentID)
			}
			stats.DroppedEdges++
			b.log.Warn("dropping dangling edge",
				"child", rel.ChildID, "parent", rel.ParentID, "kind", rel.Kind)
			continue
		}
		if err := g.AddEdge(rel.ChildID, rel.ParentID, RelKind(rel.Kind)); err != nil {
			return nil, BuildStats{}, fmt.Errorf("adding edge %s -> %s: %w", rel.ChildID, rel.ParentID, err)
		}
	}

	g.Freeze()
	stats.Terms = g.TermCount()
	stats.Edges = g.EdgeCount()
	return g, stats, nil
}
