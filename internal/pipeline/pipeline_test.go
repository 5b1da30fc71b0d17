package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/agentic-research/srcmap/api"
	"github.com/agentic-research/srcmap/internal/compose"
	"github.com/agentic-research/srcmap/internal/stamp"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const vstsRule = `https://([^.]+)[.]visualstudio.com/([^/]+)/_git/([^/]+)`

const nuspec = `<?xml version="1.0" encoding="utf-8"?>
<package>
  <metadata>
    <id>test</id>
    <version>1.0.0</version>
  </metadata>
</package>
`

func baseConfig(dir string) *api.Config {
	return &api.Config{
		Project:         "test",
		Version:         "1.0.0",
		IntermediateDir: filepath.Join(dir, "obj"),
		Remote:          "origin",
		Workers:         1,
	}
}

func TestRun_CustomTranslation(t *testing.T) {
	dir := newRepo(t, "ssh://test@vs-ssh.visualstudio.com:22/test-org/_ssh/test-%72epoሴ%24%2572%2F")
	sha := gitOutput(t, dir, "rev-parse", "HEAD")

	fsys := memfs.New()
	cfg := baseConfig(dir)
	cfg.PublishRepositoryURL = true
	cfg.Manifest = filepath.Join(dir, "test.nuspec")
	cfg.Rules = []api.Rule{{Name: "vsts-to-github", Pattern: vstsRule, Replacement: "https://github.com/$2/$3"}}
	require.NoError(t, util.WriteFile(fsys, cfg.Manifest, []byte(nuspec), 0o644))

	res, err := Run(context.Background(), Options{Dir: dir, Config: cfg, FS: fsys})
	require.NoError(t, err)

	require.Len(t, res.Roots, 1)
	prefix := res.Roots[0].LocalPath
	assert.True(t, strings.HasSuffix(prefix, string(filepath.Separator)))

	assert.Equal(t, "https://github.com/test-org/test-repoሴ%24%2572%2F", res.PrivateRepositoryURL)
	assert.Equal(t, "https://github.com/test-org/test-repoሴ%24%2572%2F", res.RepositoryURL)
	assert.Equal(t, "1.0.0+"+sha, res.InformationalVersion)

	// Mapping document, byte for byte.
	assert.Equal(t, filepath.Join(dir, "obj", "test.sourcelink.json"), res.DocumentPath)
	raw, err := util.ReadFile(fsys, res.DocumentPath)
	require.NoError(t, err)
	key, err := json.Marshal(prefix + "*")
	require.NoError(t, err)
	assert.Equal(t,
		`{"documents":{`+string(key)+`:"https://raw.githubusercontent.com/test-org/test-repoሴ%24%2572%2F/`+sha+`/*"}}`,
		string(raw))

	// Version file.
	raw, err = util.ReadFile(fsys, res.VersionPath)
	require.NoError(t, err)
	var info stamp.VersionInfo
	require.NoError(t, json.Unmarshal(raw, &info))
	assert.Equal(t, res.InformationalVersion, info.InformationalVersion)
	assert.Equal(t, sha, info.Revision)
	assert.Equal(t, res.RepositoryURL, info.RepositoryURL)

	// Manifest.
	raw, err = util.ReadFile(fsys, cfg.Manifest)
	require.NoError(t, err)
	assert.Contains(t, string(raw),
		`<repository type="git" url="https://github.com/test-org/test-repoሴ%24%2572%2F" commit="`+sha+`" />`)

	url, ok := res.Document.Resolve(prefix + "src/a b.cs")
	require.True(t, ok)
	assert.Equal(t, "https://raw.githubusercontent.com/test-org/test-repoሴ%24%2572%2F/"+sha+"/src/a%20b.cs", url)
}

func TestRun_UnpublishedRepositoryURL(t *testing.T) {
	dir := newRepo(t, "https://github.com/org/app.git")
	fsys := memfs.New()
	cfg := baseConfig(dir)
	cfg.Manifest = filepath.Join(dir, "test.nuspec")
	cfg.Rules = []api.Rule{{Name: "strip-git", Pattern: `[.]git$`, Replacement: "", Partial: true}}
	require.NoError(t, util.WriteFile(fsys, cfg.Manifest, []byte(nuspec), 0o644))

	res, err := Run(context.Background(), Options{Dir: dir, Config: cfg, FS: fsys})
	require.NoError(t, err)
	assert.Empty(t, res.RepositoryURL)
	assert.Equal(t, "https://github.com/org/app", res.PrivateRepositoryURL, "private url is translated even when unpublished")

	raw, err := util.ReadFile(fsys, res.VersionPath)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "repositoryUrl")

	raw, err = util.ReadFile(fsys, cfg.Manifest)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "url=")
	assert.NotContains(t, string(raw), "github.com")
}

func TestRun_ConfiguredRoots(t *testing.T) {
	dir := t.TempDir()
	fsys := memfs.New()
	cfg := baseConfig(dir)
	cfg.Workers = 4
	cfg.FallbackProvider = compose.Generic
	cfg.Hosts = []api.Host{{Name: "git.corp.example", Provider: compose.GitLab}}
	cfg.SourceRoots = []api.SourceRoot{
		{Path: filepath.Join(dir, "src"), RepositoryURL: "git@git.corp.example:team/app.git", Revision: "aaa", TopLevel: true},
		{Path: filepath.Join(dir, "src", "vendor", "lib"), RepositoryURL: "https://code.example/o/lib", Revision: "bbb"},
	}

	res, err := Run(context.Background(), Options{Dir: dir, Config: cfg, FS: fsys})
	require.NoError(t, err)

	entries := res.Document.Entries()
	require.Len(t, entries, 2)
	sep := string(filepath.Separator)
	assert.Equal(t, filepath.Join(dir, "src")+sep+"*", entries[0].Key)
	assert.Equal(t, "https://git.corp.example/team/app/-/raw/aaa/*", entries[0].URL)
	assert.Equal(t, filepath.Join(dir, "src", "vendor", "lib")+sep+"*", entries[1].Key)
	assert.Equal(t, "https://code.example/o/lib/raw/bbb/*", entries[1].URL)

	assert.Equal(t, "1.0.0+aaa", res.InformationalVersion)
	assert.Equal(t, "https://git.corp.example/team/app.git", res.PrivateRepositoryURL)
}

func TestRun_StageErrors(t *testing.T) {
	dir := t.TempDir()
	root := api.SourceRoot{Path: dir, RepositoryURL: "https://github.com/o/r", Revision: "abc", TopLevel: true}

	tests := []struct {
		name   string
		mutate func(cfg *api.Config)
		want   string
	}{
		{"bad rule", func(cfg *api.Config) {
			cfg.Rules = []api.Rule{{Name: "broken", Pattern: "(", Replacement: "x"}}
		}, "translate rules"},
		{"bad group reference", func(cfg *api.Config) {
			cfg.Rules = []api.Rule{{Name: "ref", Pattern: "https://(.*)", Replacement: "$2"}}
		}, "translate rules"},
		{"unknown host provider", func(cfg *api.Config) {
			cfg.Hosts = []api.Host{{Name: "x.example", Provider: "svn"}}
		}, "compose"},
		{"unsupported host", func(cfg *api.Config) {
			cfg.SourceRoots[0].RepositoryURL = "https://unknown.example/o/r"
		}, "compose"},
		{"unsupported url", func(cfg *api.Config) {
			cfg.SourceRoots[0].RepositoryURL = "file:///srv/repo"
		}, "source root"},
		{"missing manifest", func(cfg *api.Config) {
			cfg.Manifest = filepath.Join(dir, "missing.nuspec")
		}, "stamp manifest"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig(dir)
			cfg.SourceRoots = []api.SourceRoot{root}
			tt.mutate(cfg)
			_, err := Run(context.Background(), Options{Dir: dir, Config: cfg, FS: memfs.New()})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRun_DiscoveryFailure(t *testing.T) {
	dir := t.TempDir()
	_, err := Run(context.Background(), Options{Dir: dir, Config: baseConfig(dir), FS: memfs.New()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discover source roots")
}

func newRepo(t *testing.T, url string) string {
	t.Helper()
	dir := t.TempDir()
	runGit(t, dir, "init")
	runGit(t, dir, "config", "user.name", "Tester")
	runGit(t, dir, "config", "user.email", "test@example.com")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Program.cs"), []byte("class Program {}\n"), 0o644))
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-m", "Initial commit")
	runGit(t, dir, "remote", "add", "origin", url)
	return dir
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v failed: %s", args, out)
}

func gitOutput(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	require.NoError(t, err, "git %v failed", args)
	return strings.TrimSpace(string(out))
}
