package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcsb/ontograph/internal/graph"
)

// indexFixture builds a frozen graph whose names exercise exact, partial
// and no-overlap matches, plus one unnamed term and one duplicate name.
func indexFixture(t *testing.T) *graph.OntologyGraph {
	t.Helper()

	g := graph.NewOntologyGraph()
	terms := []graph.Term{
		{ID: "GO:0008150", Name: "biological_process"},
		{ID: "GO:0008152", Name: "metabolic process"},
		{ID: "GO:0016301", Name: "kinase activity"},
		{ID: "GO:0004672", Name: "protein kinase activity"},
		{ID: "GO:2001317", Name: "kojic acid biosynthetic process"},
		{ID: "GO:0000002", Name: "mitochondrial genome maintenance"},
		{ID: "GO:0099999"}, // nameless, never indexed
		{ID: "GO:0000011", Name: "vacuole inheritance"},
		{ID: "GO:0000022", Name: "vacuole inheritance"},
	}
	for i := range terms {
		require.NoError(t, g.AddTerm(&terms[i]))
	}
	g.Freeze()
	return g
}

func TestNewIndex(t *testing.T) {
	t.Parallel()

	idx := NewIndex(indexFixture(t))

	// Every named term is indexed, the nameless one is not.
	assert.Equal(t, 8, idx.Len())
}

func TestIndex_Search(t *testing.T) {
	t.Parallel()

	idx := NewIndex(indexFixture(t))

	t.Run("ExactNameRanksFirst", func(t *testing.T) {
		results := idx.Search("kinase activity", 10)

		require.NotEmpty(t, results)
		assert.Equal(t, "GO:0016301", results[0].ID)
		assert.Equal(t, "kinase activity", results[0].Name)
		assert.InDelta(t, 1.0, results[0].Score, 1e-9)

		// The longer name shares both tokens but scores below the exact hit.
		require.Len(t, results, 2)
		assert.Equal(t, "GO:0004672", results[1].ID)
		assert.Less(t, results[1].Score, results[0].Score)
	})

	t.Run("PartialQuery", func(t *testing.T) {
		results := idx.Search("kojic", 10)

		require.Len(t, results, 1)
		assert.Equal(t, "GO:2001317", results[0].ID)
		assert.Equal(t, "kojic acid biosynthetic process", results[0].Name)
	})

	t.Run("CaseAndPunctuationInsensitive", func(t *testing.T) {
		results := idx.Search("BIOLOGICAL-PROCESS", 10)

		require.NotEmpty(t, results)
		assert.Equal(t, "GO:0008150", results[0].ID)
	})

	t.Run("LimitApplies", func(t *testing.T) {
		// "process" occurs in three names.
		require.Len(t, idx.Search("process", 0), 3)
		assert.Len(t, idx.Search("process", 2), 2)
	})

	t.Run("TieBreaksOnID", func(t *testing.T) {
		results := idx.Search("vacuole inheritance", 10)

		require.Len(t, results, 2)
		assert.Equal(t, results[0].Score, results[1].Score)
		assert.Equal(t, "GO:0000011", results[0].ID)
		assert.Equal(t, "GO:0000022", results[1].ID)
	})

	t.Run("NoOverlap", func(t *testing.T) {
		assert.Empty(t, idx.Search("ribosome", 10))
	})

	t.Run("EmptyQuery", func(t *testing.T) {
		assert.Empty(t, idx.Search("", 10))
		assert.Empty(t, idx.Search("!!! ???", 10))
	})
}

func TestTokenize(t *testing.T) {
	t.Parallel()

	t.Run("LowercasesAndSplits", func(t *testing.T) {
		assert.Equal(t,
			[]string{"kojic", "acid", "biosynthetic", "process"},
			tokenize("Kojic acid, biosynthetic-process"))
	})

	t.Run("UnderscoreSeparates", func(t *testing.T) {
		assert.Equal(t, []string{"biological", "process"}, tokenize("biological_process"))
	})

	t.Run("DropsSingleRuneFragments", func(t *testing.T) {
		assert.Equal(t, []string{"vitamin", "b6", "cofactor"}, tokenize("vitamin B6 (a cofactor)"))
	})

	t.Run("Empty", func(t *testing.T) {
		assert.Empty(t, tokenize(""))
		assert.Empty(t, tokenize("  .  "))
	})
}
