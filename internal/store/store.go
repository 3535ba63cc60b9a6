// Package store persists ontology graph snapshots.
//
// A snapshot holds the primary records only: terms and their parent edges.
// Derived state (roots, descendant closures, search indexes) is never
// persisted; it is recomputed from the rebuilt in-memory graph. The load
// command writes a snapshot once, query commands and the MCP server reopen
// it read-only instead of re-parsing the multi-megabyte OBO file.
package store

import (
	"context"

	"github.com/rcsb/ontograph/internal/graph"
)

// Store defines the snapshot persistence interface.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// BulkLoad replaces the entire snapshot with the contents of the graph.
	BulkLoad(ctx context.Context, g *graph.OntologyGraph) error

	// LoadGraph rebuilds a frozen in-memory graph from the snapshot. Terms
	// come back in id order; per-term edge order is preserved exactly.
	LoadGraph(ctx context.Context) (*graph.OntologyGraph, error)

	// TermCount returns the number of terms in the snapshot.
	TermCount() int

	// EdgeCount returns the number of edges in the snapshot.
	EdgeCount() int

	// Close releases all resources held by the store.
	Close() error
}
