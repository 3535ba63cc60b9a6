package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcsb/ontograph/internal/graph"
	"github.com/rcsb/ontograph/internal/ontology"
	"github.com/rcsb/ontograph/internal/search"
)

// fixtureServer builds a server over a small three-branch ontology:
//
//	biological_process <- metabolic process <- biosynthetic process <- kojic acid biosynthetic process
//	molecular_function <- kinase activity
//	cellular_component
func fixtureServer(t *testing.T) *Server {
	t.Helper()

	g := graph.NewOntologyGraph()
	terms := []graph.Term{
		{ID: "GO:0008150", Name: "biological_process"},
		{ID: "GO:0003674", Name: "molecular_function"},
		{ID: "GO:0005575", Name: "cellular_component"},
		{ID: "GO:0008152", Name: "metabolic process", Attributes: map[string][]string{
			"namespace": {"biological_process"},
			"def":       {`"The chemical reactions and pathways." [GOC:go_curators]`},
			"synonym":   {`"metabolism" EXACT []`},
		}},
		{ID: "GO:1901576", Name: "organic substance biosynthetic process"},
		{ID: "GO:2001317", Name: "kojic acid biosynthetic process"},
		{ID: "GO:0016301", Name: "kinase activity"},
	}
	for i := range terms {
		require.NoError(t, g.AddTerm(&terms[i]))
	}
	require.NoError(t, g.AddEdge("GO:0008152", "GO:0008150", graph.RelIsA))
	require.NoError(t, g.AddEdge("GO:1901576", "GO:0008152", graph.RelIsA))
	require.NoError(t, g.AddEdge("GO:2001317", "GO:1901576", graph.RelIsA))
	require.NoError(t, g.AddEdge("GO:0016301", "GO:0003674", graph.RelIsA))

	p := ontology.New(g, ontology.WithMinTermCount(3))
	return NewServer(p, search.NewIndex(p.Graph()))
}

func TestNewServer(t *testing.T) {
	t.Parallel()

	server := fixtureServer(t)

	assert.NotNil(t, server)
	assert.NotNil(t, server.ont)
	assert.NotNil(t, server.idx)
}

func TestServer_Tools(t *testing.T) {
	t.Parallel()

	server := fixtureServer(t)

	t.Run("ListTools", func(t *testing.T) {
		tools := server.ListTools()

		toolNames := make(map[string]bool)
		for _, tool := range tools {
			toolNames[tool.Name] = true
		}

		expectedTools := []string{
			"ontology_stats",
			"term_info",
			"term_parents",
			"term_children",
			"term_descendants",
			"term_search",
			"export_tree",
		}

		assert.Len(t, tools, len(expectedTools))
		for _, expected := range expectedTools {
			assert.True(t, toolNames[expected], "Should have tool: %s", expected)
		}
	})

	t.Run("ToolDescriptions", func(t *testing.T) {
		for _, tool := range server.ListTools() {
			assert.NotEmpty(t, tool.Description)
			assert.NotNil(t, tool.InputSchema)
		}
	})
}

func TestServer_HandleToolCalls(t *testing.T) {
	t.Parallel()

	server := fixtureServer(t)
	ctx := context.Background()

	t.Run("OntologyStats", func(t *testing.T) {
		result, err := server.CallTool(ctx, "ontology_stats", map[string]any{})

		assert.NoError(t, err)
		assert.Contains(t, result, "**Terms:** 7")
		assert.Contains(t, result, "**Edges:** 4")
		assert.Contains(t, result, "**Roots:** 3")
		assert.Contains(t, result, "**Healthy:** true")
		assert.Contains(t, result, "GO:0005575 (cellular_component)")
	})

	t.Run("TermInfo", func(t *testing.T) {
		result, err := server.CallTool(ctx, "term_info", map[string]any{"id": "GO:0008152"})

		assert.NoError(t, err)
		assert.Contains(t, result, "GO:0008152: metabolic process")
		assert.Contains(t, result, "**namespace:** biological_process")
		assert.Contains(t, result, `"metabolism" EXACT []`)
		assert.Contains(t, result, "is_a GO:0008150 (biological_process)")
		assert.Contains(t, result, "GO:1901576 (organic substance biosynthetic process)")
	})

	t.Run("TermInfoUnknown", func(t *testing.T) {
		result, err := server.CallTool(ctx, "term_info", map[string]any{"id": "GO:9999999"})

		assert.NoError(t, err)
		assert.Contains(t, result, "not found")
	})

	t.Run("TermInfoMissingID", func(t *testing.T) {
		result, err := server.CallTool(ctx, "term_info", map[string]any{})

		assert.NoError(t, err)
		assert.Contains(t, result, "No term id provided")
	})

	t.Run("TermParents", func(t *testing.T) {
		result, err := server.CallTool(ctx, "term_parents", map[string]any{"id": "GO:2001317"})

		assert.NoError(t, err)
		assert.Contains(t, result, "is_a GO:1901576")
	})

	t.Run("TermParentsOfRoot", func(t *testing.T) {
		result, err := server.CallTool(ctx, "term_parents", map[string]any{"id": "GO:0008150"})

		assert.NoError(t, err)
		assert.Contains(t, result, "root term")
	})

	t.Run("TermChildren", func(t *testing.T) {
		result, err := server.CallTool(ctx, "term_children", map[string]any{"id": "GO:0008150"})

		assert.NoError(t, err)
		assert.Contains(t, result, "GO:0008152 (metabolic process)")
	})

	t.Run("TermChildrenOfLeaf", func(t *testing.T) {
		result, err := server.CallTool(ctx, "term_children", map[string]any{"id": "GO:2001317"})

		assert.NoError(t, err)
		assert.Contains(t, result, "leaf term")
	})

	t.Run("TermDescendantsSingleSeed", func(t *testing.T) {
		result, err := server.CallTool(ctx, "term_descendants", map[string]any{
			"ids": []any{"GO:0008150"},
		})

		assert.NoError(t, err)
		assert.Contains(t, result, "(3)")
		assert.Contains(t, result, "GO:0008152")
		assert.Contains(t, result, "GO:1901576")
		assert.Contains(t, result, "GO:2001317")
		assert.NotContains(t, result, "GO:0016301")
	})

	t.Run("TermDescendantsIncludeSelf", func(t *testing.T) {
		result, err := server.CallTool(ctx, "term_descendants", map[string]any{
			"ids":          []any{"GO:0008150"},
			"include_self": true,
		})

		assert.NoError(t, err)
		assert.Contains(t, result, "(4)")
		assert.Contains(t, result, "GO:0008150 (biological_process)")
	})

	t.Run("TermDescendantsMultipleSeeds", func(t *testing.T) {
		result, err := server.CallTool(ctx, "term_descendants", map[string]any{
			"ids": []any{"GO:0008150", "GO:0003674"},
		})

		assert.NoError(t, err)
		assert.Contains(t, result, "(4)")
		assert.Contains(t, result, "GO:0016301")
	})

	t.Run("TermDescendantsLimit", func(t *testing.T) {
		result, err := server.CallTool(ctx, "term_descendants", map[string]any{
			"ids":   []any{"GO:0008150"},
			"limit": float64(1),
		})

		assert.NoError(t, err)
		assert.Contains(t, result, "and 2 more")
	})

	t.Run("TermDescendantsMissingIDs", func(t *testing.T) {
		result, err := server.CallTool(ctx, "term_descendants", map[string]any{})

		assert.NoError(t, err)
		assert.Contains(t, result, "No term ids provided")
	})

	t.Run("TermSearch", func(t *testing.T) {
		result, err := server.CallTool(ctx, "term_search", map[string]any{
			"query": "kojic acid",
		})

		assert.NoError(t, err)
		assert.Contains(t, result, "GO:2001317")
		assert.Contains(t, result, "kojic acid biosynthetic process")
	})

	t.Run("TermSearchNoHits", func(t *testing.T) {
		result, err := server.CallTool(ctx, "term_search", map[string]any{
			"query": "ribosome",
		})

		assert.NoError(t, err)
		assert.Contains(t, result, "No results found")
	})

	t.Run("TermSearchMissingQuery", func(t *testing.T) {
		result, err := server.CallTool(ctx, "term_search", map[string]any{})

		assert.NoError(t, err)
		assert.Contains(t, result, "No query provided")
	})

	t.Run("ExportTree", func(t *testing.T) {
		result, err := server.CallTool(ctx, "export_tree", map[string]any{
			"filter": []any{"GO:0008152"},
		})

		assert.NoError(t, err)

		var nodes []ontology.TreeNode
		require.NoError(t, json.Unmarshal([]byte(result), &nodes))
		require.Len(t, nodes, 3)
		assert.Equal(t, "GO:0008152", nodes[0].ID)
		assert.Equal(t, []string{"GO:0008150"}, nodes[0].Parents)
	})

	t.Run("ExportTreeWholeGraph", func(t *testing.T) {
		result, err := server.CallTool(ctx, "export_tree", map[string]any{})

		assert.NoError(t, err)

		var nodes []ontology.TreeNode
		require.NoError(t, json.Unmarshal([]byte(result), &nodes))
		assert.Len(t, nodes, 7)
	})

	t.Run("UnknownTool", func(t *testing.T) {
		result, err := server.CallTool(ctx, "unknown_tool", map[string]any{})

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unknown tool")
		assert.Empty(t, result)
	})
}

func TestServer_Resources(t *testing.T) {
	t.Parallel()

	server := fixtureServer(t)

	t.Run("ListResources", func(t *testing.T) {
		resources := server.ListResources()

		resourceURIs := make(map[string]bool)
		for _, res := range resources {
			resourceURIs[res.URI] = true
		}

		expectedResources := []string{
			"ontograph://overview",
			"ontograph://roots",
			"ontograph://header",
		}

		assert.Len(t, resources, len(expectedResources))
		for _, expected := range expectedResources {
			assert.True(t, resourceURIs[expected], "Should have resource: %s", expected)
		}
	})

	t.Run("ResourceMetadata", func(t *testing.T) {
		for _, res := range server.ListResources() {
			assert.NotEmpty(t, res.Name)
			assert.NotEmpty(t, res.Description)
			assert.NotEmpty(t, res.MimeType)
		}
	})
}

func TestServer_HandleResourceReads(t *testing.T) {
	t.Parallel()

	server := fixtureServer(t)
	ctx := context.Background()

	t.Run("ReadOverview", func(t *testing.T) {
		content, err := server.ReadResource(ctx, "ontograph://overview")

		assert.NoError(t, err)
		assert.Contains(t, content, "**Terms:** 7")
		assert.Contains(t, content, "is_a")
		assert.Contains(t, content, "part_of")
	})

	t.Run("ReadRoots", func(t *testing.T) {
		content, err := server.ReadResource(ctx, "ontograph://roots")

		assert.NoError(t, err)
		assert.Contains(t, content, "GO:0008150 (biological_process)")
		assert.Contains(t, content, "GO:0003674 (molecular_function)")
		assert.Contains(t, content, "GO:0005575 (cellular_component)")
	})

	t.Run("ReadHeader", func(t *testing.T) {
		// A provider built straight from a graph carries no source header.
		content, err := server.ReadResource(ctx, "ontograph://header")

		assert.NoError(t, err)
		assert.Contains(t, content, "No header captured")
	})

	t.Run("ReadUnknownResource", func(t *testing.T) {
		content, err := server.ReadResource(ctx, "ontograph://unknown")

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unknown resource")
		assert.Empty(t, content)
	})
}

func TestServer_Run(t *testing.T) {
	t.Parallel()

	t.Run("RunWithNilStreams", func(t *testing.T) {
		server := fixtureServer(t)

		err := server.Run(context.Background(), nil, nil)

		assert.Error(t, err)
	})

	t.Run("InitializeRoundTrip", func(t *testing.T) {
		server := fixtureServer(t)

		stdin := strings.NewReader(
			`{"jsonrpc":"2.0","id":1,"method":"initialize"}` + "\n" +
				`{"jsonrpc":"2.0","id":2,"method":"tools/list"}` + "\n")
		var stdout bytes.Buffer

		err := server.Run(context.Background(), stdin, &stdout)
		require.NoError(t, err)

		lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
		require.Len(t, lines, 2)

		var initResp map[string]any
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &initResp))
		result := initResp["result"].(map[string]any)
		assert.Equal(t, "2024-11-05", result["protocolVersion"])

		var toolsResp map[string]any
		require.NoError(t, json.Unmarshal([]byte(lines[1]), &toolsResp))
		tools := toolsResp["result"].(map[string]any)["tools"].([]any)
		assert.Len(t, tools, 7)
	})

	t.Run("UnknownMethod", func(t *testing.T) {
		server := fixtureServer(t)

		stdin := strings.NewReader(`{"jsonrpc":"2.0","id":7,"method":"bogus"}` + "\n")
		var stdout bytes.Buffer

		err := server.Run(context.Background(), stdin, &stdout)
		require.NoError(t, err)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &resp))
		errObj := resp["error"].(map[string]any)
		assert.Equal(t, float64(-32601), errObj["code"])
	})
}

func TestHelpers(t *testing.T) {
	t.Parallel()

	t.Run("FormatHeaderSortsTags", func(t *testing.T) {
		out := formatHeader(map[string][]string{
			"ontology":       {"go"},
			"format-version": {"1.2"},
			"data-version":   {"releases/2024-01-17"},
		})

		assert.Equal(t,
			"- data-version: releases/2024-01-17\n- format-version: 1.2\n- ontology: go\n",
			out)
	})

	t.Run("StringSlice", func(t *testing.T) {
		assert.Equal(t, []string{"a", "b"}, stringSlice([]any{"a", 1, "b", nil}))
		assert.Empty(t, stringSlice(nil))
		assert.Empty(t, stringSlice("not an array"))
	})
}
