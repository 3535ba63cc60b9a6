package ontology

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rcsb/ontograph/internal/fetch"
	"github.com/rcsb/ontograph/internal/graph"
	"github.com/rcsb/ontograph/internal/obo"
)

// DefaultSource is the canonical go-basic release, which is guaranteed to
// be acyclic. The full go.obo is the documented alternate.
const DefaultSource = "http://purl.obolibrary.org/obo/go/go-basic.obo"

// ErrNoTerms is returned by Open when parsing yields zero terms; such a
// load is catastrophic rather than degradable.
var ErrNoTerms = errors.New("ontology contains no terms")

// Load phases reported to progress callbacks, in order.
const (
	PhaseFetch    = "fetch"
	PhaseParse    = "parse"
	PhaseBuild    = "build"
	PhaseValidate = "validate"
)

// ProgressFunc receives load-phase notifications from Open.
type ProgressFunc func(phase, detail string)

type options struct {
	minTerms int
	log      *slog.Logger
	fetcher  fetch.Fetcher
	policy   graph.ReferencePolicy
	progress ProgressFunc
}

func defaultOptions() *options {
	return &options{
		minTerms: DefaultMinTermCount,
		log:      slog.Default(),
		policy:   graph.DropDanglingEdges,
	}
}

// Option configures New and Open.
type Option func(*options)

// WithMinTermCount overrides the health floor on the term count.
func WithMinTermCount(n int) Option {
	return func(o *options) {
		o.minTerms = n
	}
}

// WithLogger sets the logger for load and query diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithFetcher replaces the source fetcher used by Open.
func WithFetcher(f fetch.Fetcher) Option {
	return func(o *options) {
		if f != nil {
			o.fetcher = f
		}
	}
}

// WithReferencePolicy sets the dangling-edge policy used by Open.
func WithReferencePolicy(p graph.ReferencePolicy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithProgress registers a callback invoked as each load phase starts.
func WithProgress(fn ProgressFunc) Option {
	return func(o *options) {
		o.progress = fn
	}
}

// Open runs the full load sequence, fetch then parse then build then
// validate, and returns a Provider over the resulting frozen graph. The
// sequence runs to completion before any query is possible; no partial
// graph is ever observable. Fetch failures and zero-term parses abort with
// an error and no Provider. An unhealthy but non-empty graph does not
// abort; IsHealthy reports it.
func Open(ctx context.Context, source, dir string, useCache bool, opts ...Option) (*Provider, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	fetcher := o.fetcher
	if fetcher == nil {
		fetcher = fetch.NewClient(fetch.WithLogger(o.log))
	}
	progress := o.progress
	if progress == nil {
		progress = func(string, string) {}
	}

	progress(PhaseFetch, source)
	path, err := fetcher.EnsureAvailable(ctx, source, dir, useCache)
	if err != nil {
		return nil, fmt.Errorf("ensuring ontology file: %w", err)
	}

	progress(PhaseParse, path)
	res, err := obo.NewParser(obo.WithLogger(o.log)).ParseFile(path)
	if err != nil {
		return nil, err
	}
	if len(res.Terms) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoTerms, path)
	}
	if n := len(res.Warnings); n > 0 {
		o.log.Warn("ontology parsed with warnings", "warnings", n)
	}

	progress(PhaseBuild, fmt.Sprintf("%d terms, %d relationships", len(res.Terms), len(res.Relationships)))
	g, stats, err := graph.Build(res,
		graph.WithReferencePolicy(o.policy),
		graph.WithBuildLogger(o.log))
	if err != nil {
		return nil, fmt.Errorf("building ontology graph: %w", err)
	}

	progress(PhaseValidate, fmt.Sprintf("%d terms, %d edges", stats.Terms, stats.Edges))
	p := &Provider{g: g, minTerms: o.minTerms, log: o.log, header: res.Header}
	if !p.IsHealthy() {
		o.log.Warn("ontology failed integrity check",
			"terms", stats.Terms, "minTerms", o.minTerms, "acyclic", g.IsAcyclic())
	}

	o.log.Info("ontology loaded",
		"source", source,
		"terms", stats.Terms,
		"edges", stats.Edges,
		"droppedEdges", stats.DroppedEdges,
		"obsolete", res.ObsoleteCount)
	return p, nil
}
