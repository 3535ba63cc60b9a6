// Package mcp provides the MCP (Model Context Protocol) server for Ontograph.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rcsb/ontograph/internal/graph"
	"github.com/rcsb/ontograph/internal/ontology"
	"github.com/rcsb/ontograph/internal/search"
)

// Default result caps for tools whose output would otherwise scale with the
// size of the ontology.
const (
	defaultSearchLimit      = 20
	defaultDescendantsLimit = 50
)

// Server represents the MCP server.
type Server struct {
	ont    Ontology
	idx    Searcher
	server *mcp.Server
}

// Ontology defines the query surface the server exposes over a loaded
// ontology. Every method is total: unknown ids yield empty results.
type Ontology interface {
	Exists(id string) bool
	Term(id string) *graph.Term
	Name(id string) (string, bool)
	Roots() []string
	ParentEdges(id string) []graph.Edge
	Children(id string) []string
	Descendants(id string, includeSelf bool) []ontology.NamedTerm
	UniqueDescendants(ids []string, includeSelf bool) []ontology.NamedTerm
	ExportTreeNodes(filter []string) []ontology.TreeNode
	Stats() ontology.Stats
	Header() map[string][]string
}

// Searcher ranks ontology terms against free-text queries.
type Searcher interface {
	Search(query string, limit int) []search.Result
	Len() int
}

// Tool represents an MCP tool.
type Tool struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
}

// Resource represents an MCP resource.
type Resource struct {
	URI         string
	Name        string
	Description string
	MimeType    string
}

// NewServer creates a new MCP server answering from the given ontology and
// search index.
func NewServer(ont Ontology, idx Searcher) *Server {
	s := &Server{
		ont: ont,
		idx: idx,
	}

	// Create MCP server
	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    "ontograph",
		Version: "0.1.0",
	}, nil)

	return s
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []Tool {
	return []Tool{
		{
			Name:        "ontology_stats",
			Description: "Get statistics about the loaded ontology: term, edge and root counts, health, and the source document header.",
			InputSchema: &jsonschema.Schema{
				Type:       "object",
				Properties: map[string]*jsonschema.Schema{},
			},
		},
		{
			Name:        "term_info",
			Description: "Get the full record of one term: name, namespace, definition, synonyms, parent edges and direct children.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"id": {Type: "string", Description: "Term id, e.g. GO:0008150"},
				},
				Required: []string{"id"},
			},
		},
		{
			Name:        "term_parents",
			Description: "List the direct parents of a term with the relationship kind of each edge.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"id": {Type: "string", Description: "Term id, e.g. GO:0008150"},
				},
				Required: []string{"id"},
			},
		},
		{
			Name:        "term_children",
			Description: "List the direct children of a term (the terms that name it as a parent).",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"id": {Type: "string", Description: "Term id, e.g. GO:0008150"},
				},
				Required: []string{"id"},
			},
		},
		{
			Name:        "term_descendants",
			Description: "List every term transitively more specific than the given seeds. One seed returns breadth-first order; several return the deduplicated union sorted by id.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"ids": {
						Type:        "array",
						Items:       &jsonschema.Schema{Type: "string"},
						Description: "Seed term ids",
					},
					"include_self": {Type: "boolean", Description: "Include the seeds themselves"},
					"limit":        {Type: "integer", Description: "Maximum number of terms to list (default 50)"},
				},
				Required: []string{"ids"},
			},
		},
		{
			Name:        "term_search",
			Description: "Search term names by free text. Returns terms ranked by TF-IDF cosine similarity.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"query": {Type: "string", Description: "Search query text"},
					"limit": {Type: "integer", Description: "Maximum number of results (default 20)"},
				},
				Required: []string{"query"},
			},
		},
		{
			Name:        "export_tree",
			Description: "Export the ontology as flat JSON records (id, name, parents), covering the subtrees of the filter ids or the whole graph. Prefer a filter; a full export of a Gene Ontology release is tens of megabytes.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"filter": {
						Type:        "array",
						Items:       &jsonschema.Schema{Type: "string"},
						Description: "Term ids whose subtrees to export; omit for the whole graph",
					},
				},
			},
		},
	}
}

// ListResources returns all registered resources.
func (s *Server) ListResources() []Resource {
	return []Resource{
		{
			URI:         "ontograph://overview",
			Name:        "Ontology Overview",
			Description: "High-level statistics about the loaded ontology",
			MimeType:    "text/plain",
		},
		{
			URI:         "ontograph://roots",
			Name:        "Root Terms",
			Description: "The terms with no parents, one per branch of the ontology",
			MimeType:    "text/plain",
		},
		{
			URI:         "ontograph://header",
			Name:        "Source Header",
			Description: "The header tags of the source document (format-version, data-version, ...)",
			MimeType:    "text/plain",
		},
	}
}

// CallTool executes a tool with the given arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	switch name {
	case "ontology_stats":
		return handleStats(s.ont, s.idx)
	case "term_info":
		id, _ := args["id"].(string)
		return handleTermInfo(s.ont, id)
	case "term_parents":
		id, _ := args["id"].(string)
		return handleParents(s.ont, id)
	case "term_children":
		id, _ := args["id"].(string)
		return handleChildren(s.ont, id)
	case "term_descendants":
		ids := stringSlice(args["ids"])
		includeSelf, _ := args["include_self"].(bool)
		limit, _ := args["limit"].(float64)
		if limit == 0 {
			limit = defaultDescendantsLimit
		}
		return handleDescendants(s.ont, ids, includeSelf, int(limit))
	case "term_search":
		query, _ := args["query"].(string)
		limit, _ := args["limit"].(float64)
		if limit == 0 {
			limit = defaultSearchLimit
		}
		return handleSearch(s.idx, query, int(limit))
	case "export_tree":
		return handleExportTree(s.ont, stringSlice(args["filter"]))
	default:
		return "", fmt.Errorf("unknown tool: %s", name)
	}
}

// ReadResource reads a resource by URI.
func (s *Server) ReadResource(ctx context.Context, uri string) (string, error) {
	switch uri {
	case "ontograph://overview":
		return getOverview(s.ont, s.idx), nil
	case "ontograph://roots":
		return getRootsList(s.ont), nil
	case "ontograph://header":
		return getHeader(s.ont), nil
	default:
		return "", fmt.Errorf("unknown resource: %s", uri)
	}
}

// Run starts the MCP server with stdio transport.
func (s *Server) Run(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	if stdin == nil || stdout == nil {
		return fmt.Errorf("stdin and stdout must not be nil")
	}

	reader := bufio.NewReader(stdin)
	encoder := json.NewEncoder(stdout)
	// Note: Do NOT use SetIndent - MCP protocol requires compact JSON (one line per message)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := reader.ReadBytes('\n')
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		// Parse JSON-RPC request
		var req map[string]any
		if err := json.Unmarshal(line, &req); err != nil {
			continue
		}

		// Handle request
		resp := s.handleRequest(ctx, req)
		if err := encoder.Encode(resp); err != nil {
			return err
		}
	}
}

func (s *Server) handleRequest(ctx context.Context, req map[string]any) map[string]any {
	method, _ := req["method"].(string)
	id := req["id"]

	switch method {
	case "initialize":
		return s.handleInitialize(id)
	case "tools/list":
		return s.handleToolsList(id)
	case "tools/call":
		return s.handleToolsCall(ctx, id, req)
	case "resources/list":
		return s.handleResourcesList(id)
	case "resources/read":
		return s.handleResourcesRead(ctx, id, req)
	default:
		return errorResponse(id, -32601, "Method not found: "+method)
	}
}

func (s *Server) handleInitialize(id any) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result": map[string]any{
			"protocolVersion": "2024-11-05",
			"serverInfo": map[string]any{
				"name":    "ontograph",
				"version": "0.1.0",
			},
			"capabilities": map[string]any{
				"tools": map[string]any{
					"listChanged": false,
				},
				"resources": map[string]any{
					"listChanged": false,
				},
			},
		},
	}
}

func (s *Server) handleToolsList(id any) map[string]any {
	tools := s.ListTools()
	toolList := make([]map[string]any, len(tools))
	for i, tool := range tools {
		schema, _ := json.Marshal(tool.InputSchema)
		var schemaMap map[string]any
		json.Unmarshal(schema, &schemaMap)

		toolList[i] = map[string]any{
			"name":        tool.Name,
			"description": tool.Description,
			"inputSchema": schemaMap,
		}
	}

	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result": map[string]any{
			"tools": toolList,
		},
	}
}

func (s *Server) handleToolsCall(ctx context.Context, id any, req map[string]any) map[string]any {
	params, _ := req["params"].(map[string]any)
	if params == nil {
		return errorResponse(id, -32602, "Invalid params")
	}

	name, _ := params["name"].(string)
	args, _ := params["arguments"].(map[string]any)

	result, err := s.CallTool(ctx, name, args)
	if err != nil {
		return errorResponse(id, -32000, err.Error())
	}

	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result": map[string]any{
			"content": []map[string]any{
				{
					"type": "text",
					"text": result,
				},
			},
		},
	}
}

func (s *Server) handleResourcesList(id any) map[string]any {
	resources := s.ListResources()
	resourceList := make([]map[string]any, len(resources))
	for i, res := range resources {
		resourceList[i] = map[string]any{
			"uri":         res.URI,
			"name":        res.Name,
			"description": res.Description,
			"mimeType":    res.MimeType,
		}
	}

	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result": map[string]any{
			"resources": resourceList,
		},
	}
}

func (s *Server) handleResourcesRead(ctx context.Context, id any, req map[string]any) map[string]any {
	params, _ := req["params"].(map[string]any)
	if params == nil {
		return errorResponse(id, -32602, "Invalid params")
	}

	uri, _ := params["uri"].(string)

	content, err := s.ReadResource(ctx, uri)
	if err != nil {
		return errorResponse(id, -32000, err.Error())
	}

	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result": map[string]any{
			"contents": []map[string]any{
				{
					"uri":      uri,
					"mimeType": "text/plain",
					"text":     content,
				},
			},
		},
	}
}

// Tool Handlers

func handleStats(ont Ontology, idx Searcher) (string, error) {
	stats := ont.Stats()

	var sb strings.Builder
	sb.WriteString("# Ontology Statistics\n\n")
	sb.WriteString(fmt.Sprintf("**Terms:** %d\n", stats.Terms))
	sb.WriteString(fmt.Sprintf("**Edges:** %d\n", stats.Edges))
	sb.WriteString(fmt.Sprintf("**Roots:** %d\n", stats.Roots))
	sb.WriteString(fmt.Sprintf("**Healthy:** %t\n", stats.Healthy))
	sb.WriteString(fmt.Sprintf("**Searchable names:** %d\n", idx.Len()))

	if roots := ont.Roots(); len(roots) > 0 {
		sb.WriteString("\n## Roots\n\n")
		for _, id := range roots {
			sb.WriteString("- " + labelTerm(ont, id) + "\n")
		}
	}

	if header := ont.Header(); len(header) > 0 {
		sb.WriteString("\n## Source Header\n\n")
		sb.WriteString(formatHeader(header))
	}

	return sb.String(), nil
}

func handleTermInfo(ont Ontology, id string) (string, error) {
	if id == "" {
		return "No term id provided", nil
	}
	term := ont.Term(id)
	if term == nil {
		return fmt.Sprintf("Term '%s' not found in the loaded ontology", id), nil
	}

	var sb strings.Builder
	if term.Name != "" {
		sb.WriteString(fmt.Sprintf("# %s: %s\n\n", term.ID, term.Name))
	} else {
		sb.WriteString(fmt.Sprintf("# %s (unnamed)\n\n", term.ID))
	}

	for _, tag := range []string{"namespace", "def"} {
		for _, v := range term.Attributes[tag] {
			sb.WriteString(fmt.Sprintf("**%s:** %s\n", tag, v))
		}
	}
	if synonyms := term.Attributes["synonym"]; len(synonyms) > 0 {
		sb.WriteString("\n## Synonyms\n\n")
		for _, syn := range synonyms {
			sb.WriteString("- " + syn + "\n")
		}
	}

	if parents := ont.ParentEdges(id); len(parents) > 0 {
		sb.WriteString(fmt.Sprintf("\n## Parents (%d)\n\n", len(parents)))
		for _, e := range parents {
			sb.WriteString(fmt.Sprintf("- %s %s\n", e.Kind, labelTerm(ont, e.Parent)))
		}
	} else {
		sb.WriteString("\nThis term is a root; it has no parents.\n")
	}

	if children := ont.Children(id); len(children) > 0 {
		sb.WriteString(fmt.Sprintf("\n## Children (%d)\n\n", len(children)))
		for _, cid := range children {
			sb.WriteString("- " + labelTerm(ont, cid) + "\n")
		}
	}

	sb.WriteString("\nNext: Use `term_descendants` to enumerate the whole subtree.")

	return sb.String(), nil
}

func handleParents(ont Ontology, id string) (string, error) {
	if id == "" {
		return "No term id provided", nil
	}
	if !ont.Exists(id) {
		return fmt.Sprintf("Term '%s' not found in the loaded ontology", id), nil
	}

	edges := ont.ParentEdges(id)
	if len(edges) == 0 {
		return fmt.Sprintf("%s is a root term; it has no parents.", labelTerm(ont, id)), nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Parents of %s (%d)\n\n", labelTerm(ont, id), len(edges)))
	for _, e := range edges {
		sb.WriteString(fmt.Sprintf("- %s %s\n", e.Kind, labelTerm(ont, e.Parent)))
	}

	return sb.String(), nil
}

func handleChildren(ont Ontology, id string) (string, error) {
	if id == "" {
		return "No term id provided", nil
	}
	if !ont.Exists(id) {
		return fmt.Sprintf("Term '%s' not found in the loaded ontology", id), nil
	}

	children := ont.Children(id)
	if len(children) == 0 {
		return fmt.Sprintf("%s is a leaf term; no term names it as a parent.", labelTerm(ont, id)), nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Children of %s (%d)\n\n", labelTerm(ont, id), len(children)))
	for _, cid := range children {
		sb.WriteString("- " + labelTerm(ont, cid) + "\n")
	}

	return sb.String(), nil
}

func handleDescendants(ont Ontology, ids []string, includeSelf bool, limit int) (string, error) {
	if len(ids) == 0 {
		return "No term ids provided", nil
	}

	// One seed keeps the breadth-first order of the walk; several seeds
	// return the deduplicated union sorted by id.
	var terms []ontology.NamedTerm
	if len(ids) == 1 {
		terms = ont.Descendants(ids[0], includeSelf)
	} else {
		terms = ont.UniqueDescendants(ids, includeSelf)
	}

	if len(terms) == 0 {
		return fmt.Sprintf("No descendants found for %s. The ids may be unknown or name leaf terms.",
			strings.Join(ids, ", ")), nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Descendants of %s (%d)\n\n", strings.Join(ids, ", "), len(terms)))
	shown := terms
	if len(shown) > limit {
		shown = shown[:limit]
	}
	for _, t := range shown {
		if t.Name != "" {
			sb.WriteString(fmt.Sprintf("- %s (%s)\n", t.ID, t.Name))
		} else {
			sb.WriteString(fmt.Sprintf("- %s\n", t.ID))
		}
	}
	if rest := len(terms) - len(shown); rest > 0 {
		sb.WriteString(fmt.Sprintf("\n... and %d more. Raise `limit` or use `export_tree` for the full set.\n", rest))
	}

	return sb.String(), nil
}

func handleSearch(idx Searcher, query string, limit int) (string, error) {
	if query == "" {
		return "No query provided", nil
	}

	results := idx.Search(query, limit)
	if len(results) == 0 {
		return "No results found", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d results for '%s':\n\n", len(results), query))
	for i, r := range results {
		sb.WriteString(fmt.Sprintf("%d. **%s** (%s)\n", i+1, r.Name, r.ID))
		sb.WriteString(fmt.Sprintf("   Score: %.3f\n\n", r.Score))
	}
	sb.WriteString("Next: Use `term_info` on an id for the full record.")

	return sb.String(), nil
}

func handleExportTree(ont Ontology, filter []string) (string, error) {
	if len(filter) == 0 {
		filter = nil
	}
	nodes := ont.ExportTreeNodes(filter)

	data, err := json.Marshal(nodes)
	if err != nil {
		return "", fmt.Errorf("encoding tree nodes: %w", err)
	}
	return string(data), nil
}

// Resource Handlers

func getOverview(ont Ontology, idx Searcher) string {
	stats := ont.Stats()

	var sb strings.Builder
	sb.WriteString("# Ontograph Overview\n\n")
	sb.WriteString(fmt.Sprintf("**Terms:** %d\n", stats.Terms))
	sb.WriteString(fmt.Sprintf("**Edges:** %d\n", stats.Edges))
	sb.WriteString(fmt.Sprintf("**Roots:** %d\n", stats.Roots))
	sb.WriteString(fmt.Sprintf("**Healthy:** %t\n", stats.Healthy))
	sb.WriteString(fmt.Sprintf("**Searchable names:** %d\n", idx.Len()))
	sb.WriteString("\n## Relationship Kinds\n\n")
	sb.WriteString("- is_a: subtype, the backbone of the hierarchy\n")
	sb.WriteString("- part_of: component of a whole\n")
	sb.WriteString("\nOther kinds from the source (regulates, occurs_in, ...) are carried through unchanged.\n")
	sb.WriteString("\nEdges point from the more specific term to the more general one; descendants are reached by walking edges in reverse.\n")

	return sb.String()
}

func getRootsList(ont Ontology) string {
	var sb strings.Builder
	sb.WriteString("# Root Terms\n\n")

	roots := ont.Roots()
	if len(roots) == 0 {
		sb.WriteString("No ontology loaded, or every term has a parent.\n")
		return sb.String()
	}

	for _, id := range roots {
		sb.WriteString("- " + labelTerm(ont, id) + "\n")
	}
	sb.WriteString("\nEach root is the most general term of one branch of the ontology.\n")

	return sb.String()
}

func getHeader(ont Ontology) string {
	var sb strings.Builder
	sb.WriteString("# Source Document Header\n\n")

	header := ont.Header()
	if len(header) == 0 {
		sb.WriteString("No header captured. The ontology was restored from a snapshot or built in memory.\n")
		return sb.String()
	}

	sb.WriteString(formatHeader(header))
	return sb.String()
}

// Helper functions

// labelTerm renders a term as "id (name)", or just the id when unnamed.
func labelTerm(ont Ontology, id string) string {
	if name, ok := ont.Name(id); ok {
		return fmt.Sprintf("%s (%s)", id, name)
	}
	return id
}

// formatHeader renders header tags as "- tag: value" lines, sorted by tag.
func formatHeader(header map[string][]string) string {
	tags := make([]string, 0, len(header))
	for tag := range header {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	var sb strings.Builder
	for _, tag := range tags {
		for _, v := range header[tag] {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", tag, v))
		}
	}
	return sb.String()
}

// stringSlice coerces a JSON array argument into a string slice.
func stringSlice(arg any) []string {
	items, _ := arg.([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func errorResponse(id any, code int, message string) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	}
}
