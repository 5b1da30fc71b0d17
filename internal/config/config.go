// Package config loads the srcmap build file (srcmap.hcl) for a project
// directory and layers .env and environment overrides on top of it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/agentic-research/srcmap/api"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/joho/godotenv"
)

// FileName is the build file looked up in the project directory.
const FileName = "srcmap.hcl"

const (
	DefaultVersion         = "1.0.0"
	DefaultIntermediateDir = "obj"
	DefaultRemote          = "origin"
	DefaultWorkers         = 1
)

// Environment overrides. Process environment wins over .env.
const (
	EnvVersion              = "SRCMAP_VERSION"
	EnvPublishRepositoryURL = "SRCMAP_PUBLISH_REPOSITORY_URL"
	EnvIntermediateDir      = "SRCMAP_INTERMEDIATE_DIR"
)

// Load reads the build file for the project in dir. An empty path means
// dir/srcmap.hcl, which may be absent; an explicit path must exist.
// Relative paths in the result are resolved against dir.
func Load(dir, path string) (*api.Config, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve project dir: %w", err)
	}

	cfg := &api.Config{}
	explicit := path != ""
	if !explicit {
		path = filepath.Join(dir, FileName)
	}
	if err := hclsimple.DecodeFile(path, nil, cfg); err != nil {
		if explicit || !isNotExist(path) {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	env, err := readDotenv(filepath.Join(dir, ".env"))
	if err != nil {
		return nil, err
	}
	if err := applyEnv(cfg, env); err != nil {
		return nil, err
	}

	applyDefaults(cfg, dir)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func isNotExist(path string) bool {
	_, err := os.Stat(path)
	return errors.Is(err, fs.ErrNotExist)
}

type lookupFunc func(key string) (string, bool)

// readDotenv returns a lookup over the process environment backed by the
// .env file. The process environment is not modified.
func readDotenv(path string) (lookupFunc, error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		vars = nil
	}
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := vars[key]
		return v, ok
	}, nil
}

func applyEnv(cfg *api.Config, lookup lookupFunc) error {
	if v, ok := lookup(EnvVersion); ok && strings.TrimSpace(v) != "" {
		cfg.Version = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvIntermediateDir); ok && strings.TrimSpace(v) != "" {
		cfg.IntermediateDir = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvPublishRepositoryURL); ok && strings.TrimSpace(v) != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPublishRepositoryURL, err)
		}
		cfg.PublishRepositoryURL = b
	}
	return nil
}

func applyDefaults(cfg *api.Config, dir string) {
	if cfg.Project == "" {
		cfg.Project = filepath.Base(dir)
	}
	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	if cfg.IntermediateDir == "" {
		cfg.IntermediateDir = DefaultIntermediateDir
	}
	if cfg.Remote == "" {
		cfg.Remote = DefaultRemote
	}
	if cfg.Workers == 0 {
		cfg.Workers = DefaultWorkers
	}

	cfg.IntermediateDir = resolve(dir, cfg.IntermediateDir)
	if cfg.Manifest != "" {
		cfg.Manifest = resolve(dir, cfg.Manifest)
	}
	for i := range cfg.SourceRoots {
		cfg.SourceRoots[i].Path = resolve(dir, cfg.SourceRoots[i].Path)
	}
}

func resolve(dir, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(dir, p)
}

func validate(cfg *api.Config) error {
	if cfg.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", cfg.Workers)
	}
	seen := make(map[string]bool, len(cfg.Rules))
	for _, r := range cfg.Rules {
		if seen[r.Name] {
			return fmt.Errorf("rule %q declared twice", r.Name)
		}
		seen[r.Name] = true
	}
	top := 0
	for _, sr := range cfg.SourceRoots {
		if sr.TopLevel {
			top++
		}
	}
	if top > 1 {
		return fmt.Errorf("%d source roots are marked top_level", top)
	}
	return nil
}
