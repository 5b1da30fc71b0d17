package compose

import (
	"fmt"
	"strings"

	"github.com/agentic-research/srcmap/internal/repourl"
)

// Strategy builds the raw-content URL template for a repository URL at a
// revision. The result must end with Wildcard.
type Strategy func(u *repourl.URL, revision string) (string, error)

// Provider names.
const (
	GitHub      = "github"
	GitLab      = "gitlab"
	Bitbucket   = "bitbucket"
	AzureDevOps = "azuredevops"
	Gitea       = "gitea"
	Generic     = "generic"
)

var strategies = map[string]Strategy{
	GitHub:      githubURL,
	GitLab:      gitlabURL,
	Bitbucket:   bitbucketURL,
	AzureDevOps: azureDevOpsURL,
	Gitea:       giteaURL,
	Generic:     genericURL,
}

// defaultHosts maps well-known hosts to providers. Keys starting with "*."
// match any subdomain.
var defaultHosts = map[string]string{
	"github.com":         GitHub,
	"gitlab.com":         GitLab,
	"bitbucket.org":      Bitbucket,
	"dev.azure.com":      AzureDevOps,
	"*.visualstudio.com": AzureDevOps,
	"gitea.com":          Gitea,
	"codeberg.org":       Gitea,
}

// ProviderNames returns the names of the built-in strategies.
func ProviderNames() []string {
	return []string{GitHub, GitLab, Bitbucket, AzureDevOps, Gitea, Generic}
}

// https://github.com/<owner>/<repo> ->
// https://raw.githubusercontent.com/<owner>/<repo>/<rev>/*
// Enterprise hosts serve raw content under /raw on the same host.
func githubURL(u *repourl.URL, rev string) (string, error) {
	segs := u.Segments()
	if len(segs) != 2 {
		return "", fmt.Errorf("expected /<owner>/<repo>, got %q", u.Path)
	}
	owner, repo := segs[0], trimGitSuffix(segs[1])
	if u.Host == "github.com" || u.Host == "www.github.com" {
		return "https://raw.githubusercontent.com/" + owner + "/" + repo + "/" + rev + "/" + Wildcard, nil
	}
	return origin(u) + "/raw/" + owner + "/" + repo + "/" + rev + "/" + Wildcard, nil
}

// <url>/-/raw/<rev>/*; subgroups are allowed.
func gitlabURL(u *repourl.URL, rev string) (string, error) {
	segs := u.Segments()
	if len(segs) < 2 {
		return "", fmt.Errorf("expected /<group>/<project>, got %q", u.Path)
	}
	segs[len(segs)-1] = trimGitSuffix(segs[len(segs)-1])
	return origin(u) + "/" + strings.Join(segs, "/") + "/-/raw/" + rev + "/" + Wildcard, nil
}

// https://bitbucket.org/<owner>/<repo> ->
// https://api.bitbucket.org/2.0/repositories/<owner>/<repo>/src/<rev>/*
func bitbucketURL(u *repourl.URL, rev string) (string, error) {
	segs := u.Segments()
	if len(segs) != 2 {
		return "", fmt.Errorf("expected /<owner>/<repo>, got %q", u.Path)
	}
	if u.Host != "bitbucket.org" {
		return "", fmt.Errorf("only bitbucket.org is supported, got host %q", u.Host)
	}
	return "https://api.bitbucket.org/2.0/repositories/" + segs[0] + "/" + trimGitSuffix(segs[1]) + "/src/" + rev + "/" + Wildcard, nil
}

// <base>/_git/<repo> ->
// <base>/_apis/git/repositories/<repo>/items?api-version=1.0&versionType=commit&version=<rev>&path=/*
func azureDevOpsURL(u *repourl.URL, rev string) (string, error) {
	segs := u.Segments()
	i := len(segs) - 2
	if i < 0 || segs[i] != "_git" {
		return "", fmt.Errorf("expected .../_git/<repo>, got %q", u.Path)
	}
	base := origin(u)
	if i > 0 {
		base += "/" + strings.Join(segs[:i], "/")
	}
	return base + "/_apis/git/repositories/" + segs[i+1] +
		"/items?api-version=1.0&versionType=commit&version=" + rev + "&path=/" + Wildcard, nil
}

// <url>/raw/commit/<rev>/*
func giteaURL(u *repourl.URL, rev string) (string, error) {
	segs := u.Segments()
	if len(segs) != 2 {
		return "", fmt.Errorf("expected /<owner>/<repo>, got %q", u.Path)
	}
	return origin(u) + "/" + segs[0] + "/" + trimGitSuffix(segs[1]) + "/raw/commit/" + rev + "/" + Wildcard, nil
}

// <url>/raw/<rev>/*
func genericURL(u *repourl.URL, rev string) (string, error) {
	segs := u.Segments()
	if len(segs) == 0 {
		return "", fmt.Errorf("repository url has no path")
	}
	segs[len(segs)-1] = trimGitSuffix(segs[len(segs)-1])
	return origin(u) + "/" + strings.Join(segs, "/") + "/raw/" + rev + "/" + Wildcard, nil
}

func origin(u *repourl.URL) string {
	s := u.Scheme + "://" + u.Host
	if u.Port != "" {
		s += ":" + u.Port
	}
	return s
}

func trimGitSuffix(s string) string {
	if t := strings.TrimSuffix(s, ".git"); t != "" {
		return t
	}
	return s
}
