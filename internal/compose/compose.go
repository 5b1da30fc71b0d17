// Package compose turns source roots into URL templates that point at the raw
// content of each root at its revision.
//
// Each hosting provider lays out raw-content URLs differently, so
// composition is a named Strategy chosen by the repository host. Unknown
// hosts fail with an UnsupportedProviderError unless a fallback strategy is
// configured. Composition never re-escapes the repository URL: the template
// carries the URL's path bytes exactly as they were given.
package compose

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/agentic-research/srcmap/internal/repourl"
	"github.com/agentic-research/srcmap/internal/sourceroot"
	"golang.org/x/sync/errgroup"
)

// Wildcard stands for the path of a file relative to its source root.
const Wildcard = "*"

var (
	// ErrUnsupportedProvider is wrapped by UnsupportedProviderError.
	ErrUnsupportedProvider = errors.New("unsupported repository provider")
	// ErrInvalidRevision marks an empty or malformed revision.
	ErrInvalidRevision = errors.New("invalid revision")
	// ErrWildcardInURL marks a repository URL that already contains the wildcard.
	ErrWildcardInURL = errors.New("repository url contains the wildcard")
)

// UnsupportedProviderError reports a repository URL no strategy can handle.
type UnsupportedProviderError struct {
	URL    string
	Reason string
}

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("unsupported repository url %q: %s", e.URL, e.Reason)
}

func (e *UnsupportedProviderError) Unwrap() error {
	return ErrUnsupportedProvider
}

// Template maps a local path prefix to a URL pattern ending in Wildcard.
type Template struct {
	PathPrefix string
	URLPattern string
}

// Expand substitutes relPath for the wildcard. relPath is converted to
// forward slashes and escaped with repourl.EscapePath.
func (t Template) Expand(relPath string) string {
	rel := strings.TrimLeft(filepath.ToSlash(relPath), "/")
	return strings.TrimSuffix(t.URLPattern, Wildcard) + repourl.EscapePath(rel)
}

// Composer selects a strategy per repository host.
type Composer struct {
	hosts    map[string]string
	fallback string
}

// Option configures a Composer.
type Option func(*Composer) error

// WithHost routes host (or "*.domain" for subdomains) to a named provider.
func WithHost(host, provider string) Option {
	return func(c *Composer) error {
		if _, ok := strategies[provider]; !ok {
			return fmt.Errorf("host %s: unknown provider %q (known: %s)", host, provider, strings.Join(ProviderNames(), ", "))
		}
		c.hosts[strings.ToLower(host)] = provider
		return nil
	}
}

// WithFallback uses provider for hosts that have no mapping. An empty name
// disables the fallback.
func WithFallback(provider string) Option {
	return func(c *Composer) error {
		if provider == "" {
			c.fallback = ""
			return nil
		}
		if _, ok := strategies[provider]; !ok {
			return fmt.Errorf("unknown fallback provider %q (known: %s)", provider, strings.Join(ProviderNames(), ", "))
		}
		c.fallback = provider
		return nil
	}
}

// NewComposer returns a composer with the built-in host table plus opts.
func NewComposer(opts ...Option) (*Composer, error) {
	c := &Composer{hosts: make(map[string]string, len(defaultHosts))}
	for h, p := range defaultHosts {
		c.hosts[h] = p
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ProviderFor returns the provider name used for host.
func (c *Composer) ProviderFor(host string) (string, bool) {
	host = strings.ToLower(host)
	if p, ok := c.hosts[host]; ok {
		return p, true
	}
	// Longest wildcard suffix wins.
	best, bestLen := "", 0
	for h, p := range c.hosts {
		if !strings.HasPrefix(h, "*.") {
			continue
		}
		suffix := h[1:]
		if strings.HasSuffix(host, suffix) && len(suffix) > bestLen {
			best, bestLen = p, len(suffix)
		}
	}
	if best != "" {
		return best, true
	}
	if c.fallback != "" {
		return c.fallback, true
	}
	return "", false
}

// Compose builds the template for root.
func (c *Composer) Compose(root sourceroot.SourceRoot) (Template, error) {
	raw := root.RepositoryURL
	if strings.Contains(raw, Wildcard) {
		return Template{}, fmt.Errorf("%w: %q", ErrWildcardInURL, raw)
	}
	if err := validRevision(root.Revision); err != nil {
		return Template{}, err
	}

	u, err := repourl.Parse(raw)
	if err != nil {
		return Template{}, &UnsupportedProviderError{URL: raw, Reason: err.Error()}
	}
	if !u.IsHTTP() {
		return Template{}, &UnsupportedProviderError{URL: raw, Reason: "scheme must be http or https"}
	}
	if u.User != "" || u.RawQuery != "" || u.Fragment != "" {
		return Template{}, &UnsupportedProviderError{URL: raw, Reason: "credentials, query and fragment are not allowed"}
	}

	name, ok := c.ProviderFor(u.Host)
	if !ok {
		return Template{}, &UnsupportedProviderError{URL: raw, Reason: fmt.Sprintf("no provider for host %q", u.Host)}
	}
	pattern, err := strategies[name](u, root.Revision)
	if err != nil {
		return Template{}, &UnsupportedProviderError{URL: raw, Reason: name + ": " + err.Error()}
	}

	if !strings.HasSuffix(pattern, Wildcard) || strings.Count(pattern, Wildcard) != 1 {
		return Template{}, fmt.Errorf("provider %s produced %q without a single trailing wildcard", name, pattern)
	}
	if pu, err := url.Parse(pattern); err != nil || !pu.IsAbs() {
		return Template{}, &UnsupportedProviderError{URL: raw, Reason: fmt.Sprintf("composed url %q is not a valid absolute url", pattern)}
	}

	return Template{PathPrefix: root.LocalPath, URLPattern: pattern}, nil
}

// ComposeAll composes every root using up to workers goroutines. The result
// is in the order of roots regardless of completion order. A failing root
// does not stop its siblings, so the error reported is always the first
// failing root in input order. Cancelling ctx stops roots not yet started.
func (c *Composer) ComposeAll(ctx context.Context, roots []sourceroot.SourceRoot, workers int) ([]Template, error) {
	if workers < 1 {
		workers = 1
	}
	out := make([]Template, len(roots))
	errs := make([]error, len(roots))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, root := range roots {
		i, root := i, root
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return err
			}
			t, err := c.Compose(root)
			if err != nil {
				errs[i] = fmt.Errorf("compose %s: %w", root.LocalPath, err)
				return errs[i]
			}
			out[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, e := range errs {
			if e != nil {
				return nil, e
			}
		}
		return nil, err
	}
	return out, nil
}

func validRevision(rev string) error {
	if rev == "" {
		return fmt.Errorf("%w: empty", ErrInvalidRevision)
	}
	if i := strings.IndexFunc(rev, func(r rune) bool {
		return r <= ' ' || r == 0x7f || r > 0x7e || strings.ContainsRune("/?#*%\\", r)
	}); i >= 0 {
		return fmt.Errorf("%w: %q", ErrInvalidRevision, rev)
	}
	return nil
}
