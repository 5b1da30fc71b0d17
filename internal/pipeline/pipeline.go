// Package pipeline runs the source mapping stages for one project:
// source root registry, URL translation, URL composition, mapping document,
// version stamping and manifest stamping.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/agentic-research/srcmap/api"
	"github.com/agentic-research/srcmap/internal/compose"
	"github.com/agentic-research/srcmap/internal/mapping"
	"github.com/agentic-research/srcmap/internal/repourl"
	"github.com/agentic-research/srcmap/internal/sourceroot"
	"github.com/agentic-research/srcmap/internal/stamp"
	"github.com/agentic-research/srcmap/internal/translate"
	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
)

// ErrNoSourceRoots is returned when neither configuration nor discovery
// produced a source root.
var ErrNoSourceRoots = errors.New("no source roots")

// Options configures a run. Config paths must already be resolved (see
// config.Load).
type Options struct {
	// Dir is the project directory used for discovery.
	Dir    string
	Config *api.Config
	// FS receives the generated files. Defaults to the host filesystem.
	FS billy.Filesystem
}

// Result describes what a run produced.
type Result struct {
	// Roots carry translated repository URLs.
	Roots                []sourceroot.SourceRoot
	Templates            []compose.Template
	Document             *mapping.Document
	DocumentPath         string
	VersionPath          string
	InformationalVersion string
	Revision             string
	// PrivateRepositoryURL is the translated top-level URL. It is always
	// set; only RepositoryURL depends on publication.
	PrivateRepositoryURL string
	// RepositoryURL is the translated top-level URL, empty unless
	// publishing is enabled.
	RepositoryURL string
}

// Run executes every stage. Errors name the stage that failed.
func Run(ctx context.Context, opts Options) (*Result, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("pipeline: nil config")
	}
	fsys := opts.FS
	if fsys == nil {
		fsys = osfs.New("/")
	}

	reg, err := registry(opts.Dir, cfg)
	if err != nil {
		return nil, err
	}
	if reg.Len() == 0 {
		return nil, ErrNoSourceRoots
	}

	tr, err := translate.Compile(rules(cfg.Rules))
	if err != nil {
		return nil, fmt.Errorf("translate rules: %w", err)
	}
	translated := reg.Translate(tr.Translate)

	composer, err := newComposer(cfg)
	if err != nil {
		return nil, fmt.Errorf("compose: %w", err)
	}
	templates, err := composer.ComposeAll(ctx, translated.Roots(), cfg.Workers)
	if err != nil {
		return nil, err
	}

	doc, err := mapping.Build(templates)
	if err != nil {
		return nil, fmt.Errorf("mapping: %w", err)
	}
	docPath := mapping.DocumentPath(cfg.IntermediateDir, cfg.Project)
	if err := mapping.Write(fsys, docPath, doc); err != nil {
		return nil, err
	}

	res := &Result{
		Roots:        translated.Roots(),
		Templates:    templates,
		Document:     doc,
		DocumentPath: docPath,
	}

	top, ok := translated.TopLevel()
	if !ok {
		// No top-level root: stamp with the first root's revision.
		top = translated.Roots()[0]
	}
	res.Revision = top.Revision
	res.PrivateRepositoryURL = top.RepositoryURL
	if cfg.PublishRepositoryURL {
		res.RepositoryURL = top.RepositoryURL
	}

	res.InformationalVersion, err = stamp.InformationalVersion(cfg.Version, res.Revision)
	if err != nil {
		return nil, fmt.Errorf("stamp: %w", err)
	}
	res.VersionPath = stamp.VersionPath(cfg.IntermediateDir, cfg.Project)
	info := stamp.VersionInfo{
		InformationalVersion: res.InformationalVersion,
		Revision:             res.Revision,
		RepositoryURL:        res.RepositoryURL,
	}
	if err := stamp.WriteVersionInfo(fsys, res.VersionPath, info); err != nil {
		return nil, err
	}

	if cfg.Manifest != "" {
		repo := stamp.Repository{Type: "git", URL: res.RepositoryURL, Commit: res.Revision}
		if err := stamp.WriteRepositoryMetadata(fsys, cfg.Manifest, repo); err != nil {
			return nil, err
		}
	}

	log.Printf("srcmap: %s: %d source roots mapped to %s", cfg.Project, len(res.Roots), docPath)
	return res, nil
}

// registry builds the source roots from configuration, or discovers them
// from git when none are configured.
func registry(dir string, cfg *api.Config) (*sourceroot.Registry, error) {
	if len(cfg.SourceRoots) == 0 {
		reg, err := sourceroot.Discover(dir, cfg.Remote)
		if err != nil {
			return nil, fmt.Errorf("discover source roots: %w", err)
		}
		return reg, nil
	}

	reg := sourceroot.NewRegistry()
	for _, sr := range cfg.SourceRoots {
		u, err := repourl.Canonicalize(sr.RepositoryURL)
		if err != nil {
			return nil, fmt.Errorf("source root %s: %w", sr.Path, err)
		}
		root := sourceroot.SourceRoot{
			LocalPath:     sr.Path,
			RepositoryURL: u,
			Revision:      sr.Revision,
			TopLevel:      sr.TopLevel,
		}
		if err := reg.Add(root); err != nil {
			return nil, fmt.Errorf("source root %s: %w", sr.Path, err)
		}
	}
	return reg, nil
}

func rules(in []api.Rule) []translate.Rule {
	out := make([]translate.Rule, len(in))
	for i, r := range in {
		out[i] = translate.Rule{Name: r.Name, Pattern: r.Pattern, Replacement: r.Replacement, Partial: r.Partial}
	}
	return out
}

func newComposer(cfg *api.Config) (*compose.Composer, error) {
	opts := make([]compose.Option, 0, len(cfg.Hosts)+1)
	for _, h := range cfg.Hosts {
		opts = append(opts, compose.WithHost(h.Name, h.Provider))
	}
	if cfg.FallbackProvider != "" {
		opts = append(opts, compose.WithFallback(cfg.FallbackProvider))
	}
	return compose.NewComposer(opts...)
}
