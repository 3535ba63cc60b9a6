package store

import (
	"context"
	"sort"
	"sync"

	"github.com/rcsb/ontograph/internal/graph"
)

// MemoryStore is an in-memory Store used in tests and as a reference for
// the snapshot contract: primary records only, id-ordered terms on reload.
type MemoryStore struct {
	mu    sync.RWMutex
	terms map[string]*graph.Term
	edges []graph.Edge
}

// NewMemoryStore creates an empty in-memory snapshot store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{terms: make(map[string]*graph.Term)}
}

// BulkLoad implements Store.
func (m *MemoryStore) BulkLoad(ctx context.Context, g *graph.OntologyGraph) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.terms = make(map[string]*graph.Term, g.TermCount())
	for _, id := range g.TermIDs() {
		t := *g.Term(id)
		m.terms[id] = &t
	}
	m.edges = g.Edges()
	return nil
}

// LoadGraph implements Store.
func (m *MemoryStore) LoadGraph(ctx context.Context) (*graph.OntologyGraph, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.terms))
	for id := range m.terms {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	g := graph.NewOntologyGraph()
	for _, id := range ids {
		t := *m.terms[id]
		if err := g.AddTerm(&t); err != nil {
			return nil, err
		}
	}
	for _, e := range m.edges {
		if err := g.AddEdge(e.Child, e.Parent, e.Kind); err != nil {
			return nil, err
		}
	}
	g.Freeze()
	return g, nil
}

// TermCount implements Store.
func (m *MemoryStore) TermCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.terms)
}

// EdgeCount implements Store.
func (m *MemoryStore) EdgeCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.edges)
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terms = nil
	m.edges = nil
	return nil
}
