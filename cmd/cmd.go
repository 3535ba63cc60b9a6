// Package cmd provides CLI command implementations for Ontograph.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"
	"github.com/fsnotify/fsnotify"

	"github.com/rcsb/ontograph/internal/fetch"
	"github.com/rcsb/ontograph/internal/graph"
	"github.com/rcsb/ontograph/internal/ontology"
	"github.com/rcsb/ontograph/internal/search"
	"github.com/rcsb/ontograph/internal/store"
	"github.com/rcsb/ontograph/mcp"
)

// Version is set at build time via ldflags.
var Version = "dev"

// watchHeartbeat is how often watch mode logs a liveness line.
const watchHeartbeat = 30 * time.Second

// Globals holds the flags shared by every command.
type Globals struct {
	Dir     string           `short:"d" default:"." env:"ONTOGRAPH_DIR" help:"Directory holding the ontology cache and snapshot"`
	Verbose bool             `short:"v" help:"Enable verbose (debug) logging"`
	Version kong.VersionFlag `help:"Show version information"`
}

// logger builds the process logger: text handler on stderr so stdout stays
// free for command output and the MCP protocol.
func (g *Globals) logger() *slog.Logger {
	level := slog.LevelInfo
	if g.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// dataDir resolves the directory flag to an absolute path.
func (g *Globals) dataDir() (string, error) {
	dir, err := filepath.Abs(g.Dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}
	return dir, nil
}

// LoadCmd fetches an ontology, builds the graph and persists a snapshot.
type LoadCmd struct {
	Source         string `arg:"" optional:"" default:"${default_source}" help:"OBO source URL or local file"`
	NoCache        bool   `help:"Ignore a cached ontology file and fetch fresh"`
	FailOnDangling bool   `help:"Abort when a relationship names an unknown term"`
	MinTerms       int    `default:"${default_min_terms}" help:"Health floor on the term count"`
}

// Run executes the load command.
func (c *LoadCmd) Run(g *Globals) error {
	ctx := context.Background()
	dir, err := g.dataDir()
	if err != nil {
		return err
	}

	color.Green("Loading %s", c.Source)

	if err := os.MkdirAll(ontographDir(dir), 0o755); err != nil {
		return fmt.Errorf("creating .ontograph directory: %w", err)
	}

	policy := graph.DropDanglingEdges
	if c.FailOnDangling {
		policy = graph.FailOnDanglingEdges
	}

	progress := func(phase, detail string) {
		fmt.Printf("\r\033[K%s: %s", phase, detail)
	}

	started := time.Now()
	provider, err := ontology.Open(ctx, c.Source, dir, !c.NoCache,
		ontology.WithLogger(g.logger()),
		ontology.WithMinTermCount(c.MinTerms),
		ontology.WithReferencePolicy(policy),
		ontology.WithProgress(progress),
	)
	if err != nil {
		return fmt.Errorf("loading ontology: %w", err)
	}

	fmt.Println() // Newline after progress

	st := store.NewBadgerStore()
	if err := st.Initialize(snapshotPath(dir), false); err != nil {
		return fmt.Errorf("initializing snapshot store: %w", err)
	}
	defer func() { _ = st.Close() }()

	if err := st.BulkLoad(ctx, provider.Graph()); err != nil {
		return fmt.Errorf("persisting snapshot: %w", err)
	}

	meta := newSnapshotMeta(c.Source, c.MinTerms, provider)
	if err := writeMeta(dir, meta); err != nil {
		return err
	}

	// Print summary
	stats := provider.Stats()
	color.Green("\n✓ Ontology loaded")
	fmt.Printf("  Terms:     %d\n", stats.Terms)
	fmt.Printf("  Edges:     %d\n", stats.Edges)
	fmt.Printf("  Roots:     %d\n", stats.Roots)
	fmt.Printf("  Duration:  %.2fs\n", time.Since(started).Seconds())
	if !stats.Healthy {
		color.Yellow("  Health:    degraded. Run 'ontograph health' for details")
	}

	return nil
}

// StatsCmd shows snapshot statistics for the ontology directory.
type StatsCmd struct{}

// Run executes the stats command.
func (c *StatsCmd) Run(g *Globals) error {
	p, meta, err := openProvider(context.Background(), g)
	if err != nil {
		return err
	}

	dir, err := g.dataDir()
	if err != nil {
		return err
	}

	stats := p.Stats()
	fmt.Printf("Ontology snapshot at %s\n", dir)
	if meta.Source != "" {
		fmt.Printf("  Source:    %s\n", meta.Source)
	}
	if meta.DataVersion != "" {
		fmt.Printf("  Release:   %s\n", meta.DataVersion)
	}
	if meta.LoadedAt != "" {
		fmt.Printf("  Loaded:    %s\n", meta.LoadedAt)
	}
	fmt.Printf("  Terms:     %d\n", stats.Terms)
	fmt.Printf("  Edges:     %d\n", stats.Edges)
	fmt.Printf("  Roots:     %d\n", stats.Roots)
	if stats.Healthy {
		color.Green("  Health:    ok")
	} else {
		color.Yellow("  Health:    degraded. Run 'ontograph health' for details")
	}

	fmt.Println("\nRoot terms:")
	for _, id := range p.Roots() {
		name, _ := p.Name(id)
		fmt.Printf("  %s  %s\n", id, name)
	}

	return nil
}

// TermCmd shows one term with its attributes and neighbors.
type TermCmd struct {
	ID string `arg:"" help:"Term identifier (e.g., GO:0008150)"`
}

// Run executes the term command.
func (c *TermCmd) Run(g *Globals) error {
	p, _, err := openProvider(context.Background(), g)
	if err != nil {
		return err
	}

	term := p.Term(c.ID)
	if term == nil {
		fmt.Printf("Term '%s' not found\n", c.ID)
		return nil
	}

	fmt.Printf("%s  %s\n", term.ID, term.Name)
	for _, tag := range []string{"namespace", "def"} {
		for _, v := range term.Attributes[tag] {
			fmt.Printf("  %s: %s\n", tag, v)
		}
	}
	if syns := term.Attributes["synonym"]; len(syns) > 0 {
		fmt.Println("  Synonyms:")
		for _, s := range syns {
			fmt.Printf("    %s\n", s)
		}
	}

	parents := p.ParentEdges(c.ID)
	if len(parents) == 0 {
		fmt.Println("  Parents:   none (root term)")
	} else {
		fmt.Println("  Parents:")
		for _, e := range parents {
			name, _ := p.Name(e.Parent)
			fmt.Printf("    %s  %s  (%s)\n", e.Parent, name, e.Kind)
		}
	}

	children := p.Children(c.ID)
	fmt.Printf("  Children:  %d\n", len(children))
	for _, id := range children {
		name, _ := p.Name(id)
		fmt.Printf("    %s  %s\n", id, name)
	}

	return nil
}

// RootsCmd lists the terms that have no parents.
type RootsCmd struct{}

// Run executes the roots command.
func (c *RootsCmd) Run(g *Globals) error {
	p, _, err := openProvider(context.Background(), g)
	if err != nil {
		return err
	}

	for _, id := range p.Roots() {
		name, _ := p.Name(id)
		fmt.Printf("%s  %s\n", id, name)
	}

	return nil
}

// ParentsCmd lists the direct parents of a term with relationship kinds.
type ParentsCmd struct {
	ID string `arg:"" help:"Term identifier"`
}

// Run executes the parents command.
func (c *ParentsCmd) Run(g *Globals) error {
	p, _, err := openProvider(context.Background(), g)
	if err != nil {
		return err
	}

	if !p.Exists(c.ID) {
		fmt.Printf("Term '%s' not found\n", c.ID)
		return nil
	}

	for _, e := range p.ParentEdges(c.ID) {
		name, _ := p.Name(e.Parent)
		fmt.Printf("%s  %s  (%s)\n", e.Parent, name, e.Kind)
	}

	return nil
}

// ChildrenCmd lists the direct children of a term.
type ChildrenCmd struct {
	ID string `arg:"" help:"Term identifier"`
}

// Run executes the children command.
func (c *ChildrenCmd) Run(g *Globals) error {
	p, _, err := openProvider(context.Background(), g)
	if err != nil {
		return err
	}

	if !p.Exists(c.ID) {
		fmt.Printf("Term '%s' not found\n", c.ID)
		return nil
	}

	for _, id := range p.Children(c.ID) {
		name, _ := p.Name(id)
		fmt.Printf("%s  %s\n", id, name)
	}

	return nil
}

// DescendantsCmd lists every term reachable downward from the seeds.
type DescendantsCmd struct {
	IDs         []string `arg:"" name:"id" help:"Seed term identifiers"`
	IncludeSelf bool     `help:"Include the seed terms in the output"`
}

// Run executes the descendants command.
func (c *DescendantsCmd) Run(g *Globals) error {
	p, _, err := openProvider(context.Background(), g)
	if err != nil {
		return err
	}

	if len(c.IDs) == 1 && !p.Exists(c.IDs[0]) {
		fmt.Printf("Term '%s' not found\n", c.IDs[0])
		return nil
	}

	var terms []ontology.NamedTerm
	if len(c.IDs) == 1 {
		terms = p.Descendants(c.IDs[0], c.IncludeSelf)
	} else {
		terms = p.UniqueDescendants(c.IDs, c.IncludeSelf)
	}

	for _, t := range terms {
		fmt.Printf("%s  %s\n", t.ID, t.Name)
	}

	return nil
}

// ExportCmd writes the term hierarchy as JSON tree nodes.
type ExportCmd struct {
	Filter []string `short:"f" help:"Restrict the export to these subtree roots"`
	Output string   `short:"o" help:"Write to a file instead of stdout" type:"path"`
}

// Run executes the export command.
func (c *ExportCmd) Run(g *Globals) error {
	p, _, err := openProvider(context.Background(), g)
	if err != nil {
		return err
	}

	// A nil filter exports the whole graph.
	filter := c.Filter
	if len(filter) == 0 {
		filter = nil
	}

	nodes := p.ExportTreeNodes(filter)
	data, err := json.Marshal(nodes)
	if err != nil {
		return fmt.Errorf("encoding tree nodes: %w", err)
	}

	if c.Output == "" {
		fmt.Println(string(data))
		return nil
	}

	if err := os.WriteFile(c.Output, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", c.Output, err)
	}
	color.Green("✓ Exported %d terms to %s", len(nodes), c.Output)

	return nil
}

// SearchCmd ranks terms against a free-text query.
type SearchCmd struct {
	Query string `arg:"" help:"Search query"`
	Limit int    `short:"n" default:"20" help:"Maximum results"`
}

// Run executes the search command.
func (c *SearchCmd) Run(g *Globals) error {
	p, _, err := openProvider(context.Background(), g)
	if err != nil {
		return err
	}

	results := search.NewIndex(p.Graph()).Search(c.Query, c.Limit)
	if len(results) == 0 {
		fmt.Println("No results found")
		return nil
	}

	for i, r := range results {
		fmt.Printf("\n%d. %s (%s)\n", i+1, r.Name, r.ID)
		fmt.Printf("   Score: %.3f\n", r.Score)
	}

	return nil
}

// HealthCmd verifies the snapshot against the integrity checks and exits
// non-zero when one fails.
type HealthCmd struct{}

// Run executes the health command.
func (c *HealthCmd) Run(g *Globals) error {
	p, meta, err := openProvider(context.Background(), g)
	if err != nil {
		return err
	}

	stats := p.Stats()
	acyclic := p.Graph().IsAcyclic()
	fmt.Printf("  Terms:    %d (floor %d)\n", stats.Terms, meta.MinTerms)
	fmt.Printf("  Edges:    %d\n", stats.Edges)
	fmt.Printf("  Acyclic:  %t\n", acyclic)

	if stats.Healthy {
		color.Green("✓ Ontology healthy")
		return nil
	}

	if stats.Terms <= meta.MinTerms {
		color.Red("✗ Term count %d at or below floor %d", stats.Terms, meta.MinTerms)
	}
	if !acyclic {
		color.Red("✗ Cycle detected among term relationships")
	}

	return fmt.Errorf("ontology failed integrity check")
}

// WatchCmd rebuilds the snapshot whenever the cached ontology file changes.
type WatchCmd struct {
	Debounce time.Duration `default:"2s" help:"Quiet period after a change before rebuilding"`
}

// Run executes the watch command.
func (c *WatchCmd) Run(g *Globals) error {
	dir, err := g.dataDir()
	if err != nil {
		return err
	}

	meta, err := readMeta(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no snapshot found at %s. Run 'ontograph load' first", dir)
		}
		return err
	}

	watched := filepath.Join(dir, fetch.NewClient().LocalPath(meta.Source))
	if _, err := os.Stat(watched); err != nil {
		return fmt.Errorf("accessing %s: %w", watched, err)
	}

	fmt.Println("## Watch Mode")
	fmt.Printf("Watching %s for changes (Ctrl+C to stop)\n\n", watched)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle Ctrl+C
	go func() {
		<-osSignalChannel()
		fmt.Println("\nStopping watch mode...")
		cancel()
	}()

	err = c.watch(ctx, g.logger(), dir, watched, meta)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("watch error: %w", err)
	}

	fmt.Println("Watch mode stopped.")
	return nil
}

// watch runs the fsnotify loop. The parent directory is watched rather than
// the file itself so replace-by-rename does not kill the watch.
func (c *WatchCmd) watch(ctx context.Context, log *slog.Logger, dir, watched string, meta snapshotMeta) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(watched)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(watched), err)
	}

	debounce := time.NewTimer(c.Debounce)
	debounce.Stop()

	heartbeat := time.NewTicker(watchHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != watched {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			log.Debug("change detected", "file", event.Name, "op", event.Op.String())
			debounce.Reset(c.Debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("watcher error", "error", err)

		case <-debounce.C:
			// A failed rebuild leaves the previous snapshot in place.
			if err := rebuildSnapshot(ctx, log, dir, watched, &meta); err != nil {
				log.Error("rebuild failed", "error", err)
			}

		case <-heartbeat.C:
			log.Debug("watching", "file", watched, "terms", meta.Terms, "healthy", meta.Healthy)
		}
	}
}

// rebuildSnapshot re-parses the watched file and replaces the snapshot and
// meta.json, keeping the recorded source and health floor.
func rebuildSnapshot(ctx context.Context, log *slog.Logger, dir, watched string, meta *snapshotMeta) error {
	started := time.Now()

	provider, err := ontology.Open(ctx, watched, dir, true,
		ontology.WithLogger(log),
		ontology.WithMinTermCount(meta.MinTerms))
	if err != nil {
		return err
	}

	st := store.NewBadgerStore()
	if err := st.Initialize(snapshotPath(dir), false); err != nil {
		return fmt.Errorf("initializing snapshot store: %w", err)
	}
	defer func() { _ = st.Close() }()

	if err := st.BulkLoad(ctx, provider.Graph()); err != nil {
		return fmt.Errorf("persisting snapshot: %w", err)
	}

	next := newSnapshotMeta(meta.Source, meta.MinTerms, provider)
	if err := writeMeta(dir, next); err != nil {
		return err
	}
	*meta = next

	stats := provider.Stats()
	color.Green("✓ Rebuilt snapshot in %.2fs (%d terms, %d edges)",
		time.Since(started).Seconds(), stats.Terms, stats.Edges)
	return nil
}

// MCPCmd starts the MCP server.
type MCPCmd struct{}

// Run executes the mcp command.
func (c *MCPCmd) Run(g *Globals) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, _, err := openProvider(ctx, g)
	if err != nil {
		return err
	}

	go func() {
		<-osSignalChannel()
		cancel()
	}()

	server := mcp.NewServer(p, search.NewIndex(p.Graph()))

	// Note: No output to stderr - MCP server uses stdio for JSON-RPC only
	err = server.Run(ctx, os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp server error: %w", err)
	}
	return nil
}

// Helper functions

// osSignalChannel returns a channel that receives OS signals for graceful shutdown.
func osSignalChannel() <-chan os.Signal {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	return sigChan
}

func ontographDir(dir string) string {
	return filepath.Join(dir, ".ontograph")
}

func snapshotPath(dir string) string {
	return filepath.Join(ontographDir(dir), "badger")
}

func metaPath(dir string) string {
	return filepath.Join(ontographDir(dir), "meta.json")
}

// snapshotMeta is the meta.json sidecar written next to the snapshot.
type snapshotMeta struct {
	Version       string `json:"version"`
	Source        string `json:"source"`
	LoadedAt      string `json:"loaded_at"`
	FormatVersion string `json:"format_version,omitempty"`
	DataVersion   string `json:"data_version,omitempty"`
	Terms         int    `json:"terms"`
	Edges         int    `json:"edges"`
	Roots         int    `json:"roots"`
	Healthy       bool   `json:"healthy"`
	MinTerms      int    `json:"min_terms"`
}

func newSnapshotMeta(source string, minTerms int, p *ontology.Provider) snapshotMeta {
	stats := p.Stats()
	return snapshotMeta{
		Version:       Version,
		Source:        source,
		LoadedAt:      time.Now().UTC().Format(time.RFC3339),
		FormatVersion: headerValue(p.Header(), "format-version"),
		DataVersion:   headerValue(p.Header(), "data-version"),
		Terms:         stats.Terms,
		Edges:         stats.Edges,
		Roots:         stats.Roots,
		Healthy:       stats.Healthy,
		MinTerms:      minTerms,
	}
}

// headerValue returns the first value of an OBO header tag, or "".
func headerValue(header map[string][]string, tag string) string {
	if vs := header[tag]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func writeMeta(dir string, meta snapshotMeta) error {
	metaJSON, _ := json.MarshalIndent(meta, "", "  ")
	if err := os.WriteFile(metaPath(dir), metaJSON, 0o644); err != nil {
		return fmt.Errorf("writing meta.json: %w", err)
	}
	return nil
}

func readMeta(dir string) (snapshotMeta, error) {
	metaBytes, err := os.ReadFile(metaPath(dir))
	if err != nil {
		return snapshotMeta{}, err
	}
	var meta snapshotMeta
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return snapshotMeta{}, fmt.Errorf("parsing meta.json: %w", err)
	}
	return meta, nil
}

// openProvider restores the provider from the on-disk snapshot. The badger
// handle is closed before returning; queries run purely in memory.
func openProvider(ctx context.Context, g *Globals) (*ontology.Provider, snapshotMeta, error) {
	dir, err := g.dataDir()
	if err != nil {
		return nil, snapshotMeta{}, err
	}

	dbPath := snapshotPath(dir)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, snapshotMeta{}, fmt.Errorf("no snapshot found at %s. Run 'ontograph load' first", dir)
	}

	meta, err := readMeta(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, snapshotMeta{}, err
		}
		meta = snapshotMeta{MinTerms: ontology.DefaultMinTermCount}
	}
	if meta.MinTerms <= 0 {
		meta.MinTerms = ontology.DefaultMinTermCount
	}

	st := store.NewBadgerStore()
	if err := st.Initialize(dbPath, true); err != nil {
		return nil, snapshotMeta{}, fmt.Errorf("opening snapshot: %w", err)
	}
	defer func() { _ = st.Close() }()

	grph, err := st.LoadGraph(ctx)
	if err != nil {
		return nil, snapshotMeta{}, fmt.Errorf("restoring graph: %w", err)
	}

	p := ontology.New(grph,
		ontology.WithMinTermCount(meta.MinTerms),
		ontology.WithLogger(g.logger()))
	return p, meta, nil
}

// CLI is the root Kong command structure.
type CLI struct {
	Globals

	// Commands
	Load        LoadCmd        `cmd:"" help:"Fetch an ontology and build the local snapshot"`
	Stats       StatsCmd       `cmd:"" help:"Show snapshot statistics"`
	Term        TermCmd        `cmd:"" help:"Show one term with attributes and neighbors"`
	Roots       RootsCmd       `cmd:"" help:"List terms that have no parents"`
	Parents     ParentsCmd     `cmd:"" help:"List direct parents of a term"`
	Children    ChildrenCmd    `cmd:"" help:"List direct children of a term"`
	Descendants DescendantsCmd `cmd:"" help:"List all terms reachable downward from seeds"`
	Search      SearchCmd      `cmd:"" help:"Search terms by name"`
	Export      ExportCmd      `cmd:"" help:"Export the hierarchy as JSON tree nodes"`
	Health      HealthCmd      `cmd:"" help:"Verify snapshot integrity"`
	Watch       WatchCmd       `cmd:"" help:"Rebuild the snapshot when the ontology file changes"`
	MCP         MCPCmd         `cmd:"" help:"Start MCP server (stdio transport)"`
}

// NewCLI creates a new CLI instance.
func NewCLI() *CLI {
	return &CLI{}
}

// Execute parses command-line arguments and executes the selected command.
func (c *CLI) Execute(args []string) error {
	kongCtx := kong.Parse(c,
		kong.Name("ontograph"),
		kong.Description("Read-only Gene Ontology graph engine with CLI and MCP access"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version":           Version,
			"default_source":    ontology.DefaultSource,
			"default_min_terms": strconv.Itoa(ontology.DefaultMinTermCount),
		},
	)

	return kongCtx.Run(&c.Globals)
}
