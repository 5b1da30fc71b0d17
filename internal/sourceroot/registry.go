package sourceroot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOverlap is returned when a root is added inside another root of the same
// repository instance.
var ErrOverlap = errors.New("overlapping source roots")

// SourceRoot is a local directory under version control.
type SourceRoot struct {
	// LocalPath is absolute, cleaned and ends with exactly one separator.
	LocalPath string
	// RepositoryURL is the canonical (or already translated) remote URL.
	RepositoryURL string
	// Revision pins the root to a commit.
	Revision string
	// TopLevel is false for nested sub-repositories.
	TopLevel bool
}

// NormalizePath returns p as an absolute, cleaned directory prefix that ends
// with a single platform separator.
func NormalizePath(p string) (string, error) {
	if p == "" {
		return "", errors.New("empty source root path")
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", p, err)
	}
	abs = filepath.Clean(abs)
	if !strings.HasSuffix(abs, string(os.PathSeparator)) {
		abs += string(os.PathSeparator)
	}
	return abs, nil
}

// Registry holds the source roots of one build in insertion order.
type Registry struct {
	roots []SourceRoot
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Add normalizes and validates root before appending it.
func (r *Registry) Add(root SourceRoot) error {
	p, err := NormalizePath(root.LocalPath)
	if err != nil {
		return err
	}
	root.LocalPath = p

	if strings.TrimSpace(root.RepositoryURL) == "" {
		return fmt.Errorf("source root %s: missing repository url", p)
	}
	if strings.TrimSpace(root.Revision) == "" {
		return fmt.Errorf("source root %s: missing revision", p)
	}

	for _, existing := range r.roots {
		if existing.LocalPath == p {
			return fmt.Errorf("source root %s: registered twice", p)
		}
		if !sameRepository(existing, root) {
			continue
		}
		if strings.HasPrefix(p, existing.LocalPath) || strings.HasPrefix(existing.LocalPath, p) {
			return fmt.Errorf("%w: %s and %s belong to %s@%s", ErrOverlap, existing.LocalPath, p, root.RepositoryURL, root.Revision)
		}
	}

	r.roots = append(r.roots, root)
	return nil
}

func sameRepository(a, b SourceRoot) bool {
	return a.RepositoryURL == b.RepositoryURL && a.Revision == b.Revision
}

// Roots returns a copy of the registered roots in insertion order.
func (r *Registry) Roots() []SourceRoot {
	out := make([]SourceRoot, len(r.roots))
	copy(out, r.roots)
	return out
}

// Len returns the number of registered roots.
func (r *Registry) Len() int {
	return len(r.roots)
}

// TopLevel returns the first top-level root.
func (r *Registry) TopLevel() (SourceRoot, bool) {
	for _, root := range r.roots {
		if root.TopLevel {
			return root, true
		}
	}
	return SourceRoot{}, false
}

// Translate returns a new registry whose repository URLs were passed through
// fn. The receiver is left untouched.
func (r *Registry) Translate(fn func(string) string) *Registry {
	out := &Registry{roots: make([]SourceRoot, len(r.roots))}
	for i, root := range r.roots {
		root.RepositoryURL = fn(root.RepositoryURL)
		out.roots[i] = root
	}
	return out
}
