package sourceroot

import (
	"bufio"
	"bytes"
	"fmt"
	"log"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/agentic-research/srcmap/internal/repourl"
)

// DefaultRemote is the remote whose URL is published when none is configured.
const DefaultRemote = "origin"

// Discover builds a registry from the git working copy containing dir: the
// repository root first, followed by initialized submodules sorted by path.
// Remote URLs are canonicalized; an unusable top-level remote is an error,
// while a submodule without a usable remote is skipped with a warning.
func Discover(dir, remote string) (*Registry, error) {
	if remote == "" {
		remote = DefaultRemote
	}

	top, err := git(dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, fmt.Errorf("%s is not in a git working copy: %w", dir, err)
	}
	top = filepath.FromSlash(top)

	head, err := git(top, "rev-parse", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD of %s: %w", top, err)
	}

	rawURL, err := git(top, "remote", "get-url", remote)
	if err != nil {
		return nil, fmt.Errorf("repository %s has no remote %q: %w", top, remote, err)
	}
	url, err := repourl.Canonicalize(rawURL)
	if err != nil {
		return nil, fmt.Errorf("remote %q of %s: %w", remote, top, err)
	}

	reg := NewRegistry()
	if err := reg.Add(SourceRoot{LocalPath: top, RepositoryURL: url, Revision: head, TopLevel: true}); err != nil {
		return nil, err
	}

	subs, err := submodules(top)
	if err != nil {
		return nil, err
	}
	for _, sub := range subs {
		subDir := filepath.Join(top, filepath.FromSlash(sub.path))
		rawURL, err := git(subDir, "remote", "get-url", remote)
		if err != nil {
			log.Printf("sourceroot: submodule %s has no remote %q, skipping: %v", sub.path, remote, err)
			continue
		}
		url, err := repourl.Canonicalize(rawURL)
		if err != nil {
			log.Printf("sourceroot: submodule %s: %v, skipping", sub.path, err)
			continue
		}
		if err := reg.Add(SourceRoot{LocalPath: subDir, RepositoryURL: url, Revision: sub.sha}); err != nil {
			return nil, err
		}
	}

	return reg, nil
}

type submodule struct {
	sha  string
	path string
}

// submodules parses `git submodule status --recursive`. Lines look like
// "[ +-U]<sha> <path>[ (<describe>)]"; uninitialized ('-') entries are
// skipped since they have no working copy to map.
func submodules(top string) ([]submodule, error) {
	out, err := git(top, "submodule", "status", "--recursive")
	if err != nil {
		return nil, fmt.Errorf("list submodules of %s: %w", top, err)
	}

	var subs []submodule
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) < 2 || line[0] == '-' {
			continue
		}
		if strings.IndexByte(" +U", line[0]) >= 0 {
			line = line[1:]
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue // malformed
		}
		path := fields[1]
		// Paths with spaces: everything up to the describe suffix.
		if i := strings.LastIndex(line, " ("); i > 0 {
			rest := strings.TrimSpace(line[:i])
			path = strings.TrimSpace(strings.TrimPrefix(rest, fields[0]))
		}
		subs = append(subs, submodule{sha: fields[0], path: path})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanner error: %w", err)
	}

	sort.Slice(subs, func(i, j int) bool { return subs[i].path < subs[j].path })
	return subs, nil
}

func git(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return "", fmt.Errorf("git %s failed: %w", strings.Join(args, " "), err)
		}
		return "", fmt.Errorf("git %s failed: %w: %s", strings.Join(args, " "), err, msg)
	}
	return strings.TrimRight(stdout.String(), "\r\n"), nil
}
