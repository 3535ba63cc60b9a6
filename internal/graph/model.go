// Package graph provides the in-memory directed multigraph of ontology terms.
//
// It defines the node and edge types for a child-to-parent term hierarchy
// and the graph structure that holds them. A graph is assembled once from
// parsed records, frozen, and read concurrently for the rest of the process.
package graph

// RelKind represents the kind of a parent relationship edge.
type RelKind string

// Relationship kinds present in every Gene Ontology release. The graph
// accepts arbitrary kinds; these two cover the bulk of the edges.
const (
	RelIsA    RelKind = "is_a"
	RelPartOf RelKind = "part_of"
)

// Term represents a node in the ontology graph.
type Term struct {
	// ID is the unique, stable identifier (e.g., "GO:0008150").
	ID string `json:"id"`

	// Name is the human-readable label. Absent for malformed entries.
	Name string `json:"name,omitempty"`

	// Attributes carries the open tag set from the source file (namespace,
	// def, synonym, ...). Only Name is promoted to a field.
	Attributes map[string][]string `json:"attributes,omitempty"`
}

// Edge represents a directed link from a more specific term (Child) to a
// more general one (Parent). Distinct kinds between the same pair of terms
// are independent parallel edges, never merged.
type Edge struct {
	// Child is the ID of the more specific term the edge starts at.
	Child string `json:"child"`

	// Parent is the ID of the more general term the edge points to.
	Parent string `json:"parent"`

	// Kind is the relationship label (e.g., "is_a", "part_of").
	Kind RelKind `json:"kind"`
}
