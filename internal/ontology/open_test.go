package ontology

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcsb/ontograph/internal/graph"
)

func writeFixtureFile(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "go-basic.obo")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("LocalSource", func(t *testing.T) {
		t.Parallel()

		source := writeFixtureFile(t, fixtureDoc)
		dir := t.TempDir()

		p, err := Open(context.Background(), source, dir, true, WithMinTermCount(10))
		require.NoError(t, err)

		assert.True(t, p.IsHealthy())
		assert.Len(t, p.Roots(), 3)
		name, ok := p.Name("GO:2001317")
		require.True(t, ok)
		assert.Equal(t, "kojic acid biosynthetic process", name)

		// The source file lands in the working directory under its own name.
		_, err = os.Stat(filepath.Join(dir, "go-basic.obo"))
		assert.NoError(t, err)
	})

	t.Run("RemoteSource", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(fixtureDoc))
		}))
		defer srv.Close()

		p, err := Open(context.Background(), srv.URL+"/obo/go/go-basic.obo", t.TempDir(), true,
			WithMinTermCount(10))
		require.NoError(t, err)

		assert.Equal(t, fixtureTermCount, p.Stats().Terms)
	})

	t.Run("HeaderCaptured", func(t *testing.T) {
		t.Parallel()

		source := writeFixtureFile(t, fixtureDoc)

		p, err := Open(context.Background(), source, t.TempDir(), true, WithMinTermCount(10))
		require.NoError(t, err)

		header := p.Header()
		assert.Equal(t, []string{"1.2"}, header["format-version"])
		assert.Equal(t, []string{"releases/2024-01-17"}, header["data-version"])
	})

	t.Run("MissingSource", func(t *testing.T) {
		t.Parallel()

		_, err := Open(context.Background(), filepath.Join(t.TempDir(), "absent.obo"), t.TempDir(), true)
		require.Error(t, err)
	})

	t.Run("NoTerms", func(t *testing.T) {
		t.Parallel()

		source := writeFixtureFile(t, "format-version: 1.2\n")

		_, err := Open(context.Background(), source, t.TempDir(), true)
		assert.ErrorIs(t, err, ErrNoTerms)
	})

	t.Run("DanglingEdgeToleratedByDefault", func(t *testing.T) {
		t.Parallel()

		doc := fixtureDoc + `
[Term]
id: GO:0042802
name: identical protein binding
is_a: GO:0005515 ! protein binding
`
		source := writeFixtureFile(t, doc)

		p, err := Open(context.Background(), source, t.TempDir(), true, WithMinTermCount(10))
		require.NoError(t, err)

		assert.True(t, p.Exists("GO:0042802"))
		assert.Empty(t, p.Parents("GO:0042802"))
	})

	t.Run("FailFastOnDanglingEdge", func(t *testing.T) {
		t.Parallel()

		doc := fixtureDoc + `
[Term]
id: GO:0042802
name: identical protein binding
is_a: GO:0005515 ! protein binding
`
		source := writeFixtureFile(t, doc)

		_, err := Open(context.Background(), source, t.TempDir(), true,
			WithReferencePolicy(graph.FailOnDanglingEdges))
		assert.ErrorIs(t, err, graph.ErrDanglingEdge)
	})

	t.Run("ProgressPhases", func(t *testing.T) {
		t.Parallel()

		source := writeFixtureFile(t, fixtureDoc)

		var phases []string
		_, err := Open(context.Background(), source, t.TempDir(), true,
			WithMinTermCount(10),
			WithProgress(func(phase, detail string) {
				phases = append(phases, phase)
			}))
		require.NoError(t, err)

		assert.Equal(t, []string{PhaseFetch, PhaseParse, PhaseBuild, PhaseValidate}, phases)
	})

	t.Run("CustomFetcher", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		staged := filepath.Join(dir, "staged.obo")
		require.NoError(t, os.WriteFile(staged, []byte(fixtureDoc), 0o644))

		f := &stubFetcher{path: staged}
		p, err := Open(context.Background(), "ignored", dir, false,
			WithFetcher(f), WithMinTermCount(10))
		require.NoError(t, err)

		assert.Equal(t, 1, f.calls)
		assert.False(t, f.lastUseCache)
		assert.Equal(t, fixtureTermCount, p.Stats().Terms)
	})
}

type stubFetcher struct {
	path         string
	calls        int
	lastUseCache bool
}

func (f *stubFetcher) LocalPath(string) string { return filepath.Base(f.path) }

func (f *stubFetcher) EnsureAvailable(_ context.Context, _, _ string, useCache bool) (string, error) {
	f.calls++
	f.lastUseCache = useCache
	return f.path, nil
}
