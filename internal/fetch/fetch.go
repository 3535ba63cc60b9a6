// Package fetch resolves ontology sources to readable local files.
//
// A source is either an HTTP(S) URL or a local file path. Fetched copies
// live in a caller-supplied cache directory and are reused or refreshed
// according to the useCache flag; nothing is cached at process scope.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"
)

// Errors distinguishing a missing source from a failed transfer.
var (
	// ErrSourceNotFound means the source does not exist (local path absent,
	// or the server answered 404).
	ErrSourceNotFound = errors.New("ontology source not found")

	// ErrFetchFailed means the transfer itself failed (network, disk, or a
	// non-success HTTP status).
	ErrFetchFailed = errors.New("fetching ontology source failed")
)

// fallbackFileName is used when a URL path has no usable basename.
const fallbackFileName = "ontology.obo"

// Fetcher yields a readable local copy of an ontology source.
type Fetcher interface {
	// LocalPath derives the cache file name for a source.
	LocalPath(source string) string

	// EnsureAvailable guarantees a readable local file for source under dir,
	// reusing a cached copy when useCache is true and one exists, otherwise
	// fetching fresh content. A false useCache discards any cached copy
	// first. The returned path points at the local file.
	EnsureAvailable(ctx context.Context, source, dir string, useCache bool) (string, error)
}

// Client is the default Fetcher: plain HTTP downloads plus local-file copies.
type Client struct {
	httpClient *http.Client
	log        *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger used for fetch diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// NewClient creates a fetcher. Ontology releases run to hundreds of
// megabytes, so the default HTTP timeout is generous.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 10 * time.Minute},
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LocalPath derives the cache file name for a source: the basename of the
// URL path for remote sources, the basename of the path otherwise.
func (c *Client) LocalPath(source string) string {
	if u, ok := parseURL(source); ok {
		name := path.Base(u.Path)
		if name == "" || name == "/" || name == "." {
			return fallbackFileName
		}
		return name
	}
	return filepath.Base(source)
}

// EnsureAvailable implements Fetcher.
func (c *Client) EnsureAvailable(ctx context.Context, source, dir string, useCache bool) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating cache directory: %w", err)
	}
	dest := filepath.Join(dir, c.LocalPath(source))

	if useCache {
		if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
			c.log.Debug("reusing cached ontology file", "path", dest)
			return dest, nil
		}
	} else if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("discarding cached copy: %w", err)
	}

	if _, ok := parseURL(source); ok {
		c.log.Info("fetching ontology", "source", source, "dest", dest)
		if err := c.download(ctx, source, dest); err != nil {
			return "", err
		}
		return dest, nil
	}
	if err := c.copyLocal(source, dest); err != nil {
		return "", err
	}
	return dest, nil
}

func (c *Client) download(ctx context.Context, source, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrSourceNotFound, source)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: %s returned %s", ErrFetchFailed, source, resp.Status)
	}

	if err := writeAtomic(dest, resp.Body); err != nil {
		return fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	return nil
}

func (c *Client) copyLocal(source, dest string) error {
	srcAbs, err1 := filepath.Abs(source)
	destAbs, err2 := filepath.Abs(dest)
	if err1 == nil && err2 == nil && srcAbs == destAbs {
		if _, err := os.Stat(dest); err != nil {
			return fmt.Errorf("%w: %s", ErrSourceNotFound, source)
		}
		return nil
	}

	f, err := os.Open(source)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrSourceNotFound, source)
		}
		return fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer f.Close()

	c.log.Debug("copying local ontology file", "source", source, "dest", dest)
	if err := writeAtomic(dest, f); err != nil {
		return fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	return nil
}

// writeAtomic streams r into dest via a temp file and rename, so a failed
// transfer never leaves a truncated file behind for a later cache hit.
func writeAtomic(dest string, r io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".fetch-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}

func parseURL(source string) (*url.URL, bool) {
	u, err := url.Parse(source)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, false
	}
	return u, true
}
