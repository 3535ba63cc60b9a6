// Package search ranks ontology terms against free-text queries.
//
// It builds a TF-IDF weighted index over term names and scores queries by
// cosine similarity. The index holds sparse vectors only, so memory stays
// proportional to the name text rather than to a fixed vocabulary size.
package search

import (
	"math"
	"sort"
	"strings"

	"github.com/rcsb/ontograph/internal/graph"
)

// Result is a single ranked hit for a query.
type Result struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

type document struct {
	id     string
	name   string
	vector map[string]float64 // token -> tf-idf weight, L2-normalized
}

// Index is an immutable TF-IDF index over the names of an ontology's terms.
// Build it once per loaded graph; it is safe for concurrent use afterwards.
type Index struct {
	docs     []document
	idf      map[string]float64
	postings map[string][]int // token -> indexes into docs
}

// NewIndex builds the index from every named term in the graph. Terms whose
// names yield no tokens are skipped; they can never match a query.
func NewIndex(g *graph.OntologyGraph) *Index {
	idx := &Index{
		idf:      make(map[string]float64),
		postings: make(map[string][]int),
	}

	// First pass: document frequency per token.
	type tokenized struct {
		id     string
		name   string
		tokens []string
	}
	var corpus []tokenized
	docFreq := make(map[string]int)
	for _, id := range g.TermIDs() {
		term := g.Term(id)
		tokens := tokenize(term.Name)
		if len(tokens) == 0 {
			continue
		}
		corpus = append(corpus, tokenized{id: id, name: term.Name, tokens: tokens})
		seen := make(map[string]bool, len(tokens))
		for _, tok := range tokens {
			if !seen[tok] {
				docFreq[tok]++
				seen[tok] = true
			}
		}
	}

	n := float64(len(corpus))
	for tok, df := range docFreq {
		idx.idf[tok] = math.Log(n / float64(df))
	}

	// Second pass: one normalized sparse vector per document, plus the
	// inverted postings that let Search touch candidate documents only.
	for _, doc := range corpus {
		vec := idx.vectorize(doc.tokens)
		docIdx := len(idx.docs)
		idx.docs = append(idx.docs, document{id: doc.id, name: doc.name, vector: vec})
		for tok := range vec {
			idx.postings[tok] = append(idx.postings[tok], docIdx)
		}
	}

	return idx
}

// Len returns the number of indexed terms.
func (idx *Index) Len() int {
	return len(idx.docs)
}

// Search returns up to limit terms ranked by cosine similarity to the
// query, best first. Ties break toward the lexically smaller id so results
// are deterministic. A limit <= 0 means no limit. Queries that share no
// token with any name return an empty slice.
func (idx *Index) Search(query string, limit int) []Result {
	qvec := idx.vectorize(tokenize(query))
	if len(qvec) == 0 {
		return nil
	}

	// Accumulate cosine scores over the postings of the query's tokens.
	// Both vectors are unit length, so the dot product is the similarity.
	scores := make(map[int]float64)
	for tok, qw := range qvec {
		for _, docIdx := range idx.postings[tok] {
			scores[docIdx] += qw * idx.docs[docIdx].vector[tok]
		}
	}

	results := make([]Result, 0, len(scores))
	for docIdx, score := range scores {
		doc := idx.docs[docIdx]
		results = append(results, Result{ID: doc.id, Name: doc.name, Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// vectorize turns a token list into an L2-normalized sparse TF-IDF vector.
// Tokens with no discriminative weight, because they are either absent from
// the corpus or present in all of it, fall back to an IDF of 1 so they still
// contribute instead of zeroing the vector out.
func (idx *Index) vectorize(tokens []string) map[string]float64 {
	if len(tokens) == 0 {
		return nil
	}

	tf := make(map[string]float64)
	maxTF := 0.0
	for _, tok := range tokens {
		tf[tok]++
		if tf[tok] > maxTF {
			maxTF = tf[tok]
		}
	}

	vec := make(map[string]float64, len(tf))
	norm := 0.0
	for tok, count := range tf {
		idf := idx.idf[tok]
		if idf == 0 {
			idf = 1.0
		}
		w := (count / maxTF) * idf
		vec[tok] = w
		norm += w * w
	}

	norm = math.Sqrt(norm)
	for tok := range vec {
		vec[tok] /= norm
	}
	return vec
}

// tokenize lowercases text and splits it on non-alphanumeric runes,
// dropping single-character fragments.
func tokenize(text string) []string {
	text = strings.ToLower(text)

	terms := strings.FieldsFunc(text, func(r rune) bool {
		return !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'))
	})

	filtered := make([]string, 0, len(terms))
	for _, term := range terms {
		if len(term) >= 2 {
			filtered = append(filtered, term)
		}
	}
	return filtered
}
