package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/rcsb/ontograph/internal/graph"
)

// Key prefixes for the two record kinds.
const (
	prefixTerm = "t:" // t:<term id> -> term JSON; id order == key order
	prefixEdge = "e:" // e:<sequence> -> edge JSON; sequence preserves insertion order
)

// edgeKeyWidth is the zero-padded width of edge sequence numbers. Nine
// digits comfortably covers Gene Ontology releases (~150k edges) while
// keeping keys lexically ordered.
const edgeKeyWidth = 9

// BadgerStore is a BadgerDB-backed snapshot store.
type BadgerStore struct {
	db        *badger.DB
	mu        sync.RWMutex
	termCount int
	edgeCount int
}

// NewBadgerStore creates a BadgerDB snapshot store. Call Initialize before
// use.
func NewBadgerStore() *BadgerStore {
	return &BadgerStore{}
}

// Initialize opens or creates the BadgerDB database at the given path.
// If readOnly is true the database is opened read-only under a shared
// directory lock, so any number of query processes can share a snapshot.
func (s *BadgerStore) Initialize(path string, readOnly bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	opts := badger.DefaultOptions(path).
		WithNumCompactors(2).
		WithNumMemtables(5).
		WithLoggingLevel(badger.ERROR)

	if readOnly {
		opts = opts.WithReadOnly(true)
	}

	var err error
	s.db, err = badger.Open(opts)
	if err != nil {
		return fmt.Errorf("opening snapshot store: %w", err)
	}

	s.recount()
	return nil
}

// recount rebuilds the term and edge counters from the database.
// Caller must hold the write lock.
func (s *BadgerStore) recount() {
	s.termCount = 0
	s.edgeCount = 0

	txn := s.db.NewTransaction(false)
	defer txn.Discard()

	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false

	opts.Prefix = []byte(prefixTerm)
	it := txn.NewIterator(opts)
	for it.Rewind(); it.Valid(); it.Next() {
		s.termCount++
	}
	it.Close()

	opts.Prefix = []byte(prefixEdge)
	it = txn.NewIterator(opts)
	for it.Rewind(); it.Valid(); it.Next() {
		s.edgeCount++
	}
	it.Close()
}

// Close releases all resources held by the store.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}

	err := s.db.Close()
	s.db = nil
	return err
}

// BulkLoad replaces the entire snapshot with the contents of the graph.
// Any previous snapshot content is dropped first, so a shrinking ontology
// never leaves stale records behind.
func (s *BadgerStore) BulkLoad(ctx context.Context, g *graph.OntologyGraph) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.DropAll(); err != nil {
		return fmt.Errorf("clearing previous snapshot: %w", err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	s.termCount = 0
	s.edgeCount = 0

	for _, id := range g.TermIDs() {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := json.Marshal(g.Term(id))
		if err != nil {
			return fmt.Errorf("marshaling term %s: %w", id, err)
		}
		if err := wb.Set(termKey(id), data); err != nil {
			return fmt.Errorf("writing term %s: %w", id, err)
		}
		s.termCount++
	}

	for _, e := range g.Edges() {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshaling edge %s -> %s: %w", e.Child, e.Parent, err)
		}
		if err := wb.Set(edgeKey(s.edgeCount), data); err != nil {
			return fmt.Errorf("writing edge %s -> %s: %w", e.Child, e.Parent, err)
		}
		s.edgeCount++
	}

	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flushing snapshot: %w", err)
	}
	return nil
}

// LoadGraph rebuilds a frozen in-memory graph from the snapshot. Badger
// iterates keys lexically, so terms come back in id order; edges come back
// in the sequence they were written.
func (s *BadgerStore) LoadGraph(ctx context.Context) (*graph.OntologyGraph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g := graph.NewOntologyGraph()

	txn := s.db.NewTransaction(false)
	defer txn.Discard()

	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefixTerm)
	it := txn.NewIterator(opts)
	for it.Rewind(); it.Valid(); it.Next() {
		if err := ctx.Err(); err != nil {
			it.Close()
			return nil, err
		}
		var term graph.Term
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &term)
		}); err != nil {
			it.Close()
			return nil, fmt.Errorf("decoding term record: %w", err)
		}
		if err := g.AddTerm(&term); err != nil {
			it.Close()
			return nil, fmt.Errorf("restoring term %s: %w", term.ID, err)
		}
	}
	it.Close()

	opts.Prefix = []byte(prefixEdge)
	it = txn.NewIterator(opts)
	for it.Rewind(); it.Valid(); it.Next() {
		var edge graph.Edge
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &edge)
		}); err != nil {
			it.Close()
			return nil, fmt.Errorf("decoding edge record: %w", err)
		}
		if err := g.AddEdge(edge.Child, edge.Parent, edge.Kind); err != nil {
			it.Close()
			return nil, fmt.Errorf("restoring edge %s -> %s: %w", edge.Child, edge.Parent, err)
		}
	}
	it.Close()

	g.Freeze()
	return g, nil
}

// TermCount returns the number of terms in the snapshot.
func (s *BadgerStore) TermCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.termCount
}

// EdgeCount returns the number of edges in the snapshot.
func (s *BadgerStore) EdgeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.edgeCount
}

func termKey(id string) []byte {
	return []byte(prefixTerm + id)
}

func edgeKey(seq int) []byte {
	return []byte(fmt.Sprintf("%s%0*d", prefixEdge, edgeKeyWidth, seq))
}
