package repourl

import (
	"fmt"
	"strings"
)

// Canonicalize turns a configured remote into the public https URL of the
// repository. Credentials are dropped, ssh and scp-like remotes are mapped to
// their https equivalent and escapes of unreserved characters are decoded.
func Canonicalize(raw string) (string, error) {
	u, err := Parse(raw)
	if err != nil {
		return "", err
	}

	switch u.Scheme {
	case "http", "https":
		u.User = ""
	case "ssh", "git", "git+ssh", "ssh+git":
		if u, err = sshToHTTPS(u); err != nil {
			return "", fmt.Errorf("%w: %q: %v", ErrUnsupportedURL, raw, err)
		}
	default:
		return "", fmt.Errorf("%w: %q: scheme %q", ErrUnsupportedURL, raw, u.Scheme)
	}

	u.Path = UnescapeUnreserved(u.Path)
	return u.String(), nil
}

func sshToHTTPS(u *URL) (*URL, error) {
	out := &URL{Scheme: "https", Host: u.Host, Path: u.Path}
	segs := u.Segments()

	switch {
	case u.Host == "vs-ssh.visualstudio.com" || strings.HasSuffix(u.Host, ".vs-ssh.visualstudio.com"):
		// /<account>/[<project>/]_ssh/<repo>
		i := indexOf(segs, "_ssh")
		if i < 1 || i > 2 || i != len(segs)-2 {
			return nil, fmt.Errorf("unexpected Azure DevOps ssh path %q", u.Path)
		}
		account, repo := segs[0], segs[i+1]
		project := account
		if i == 2 {
			project = segs[1]
		}
		out.Host = strings.ToLower(account) + ".visualstudio.com"
		out.Path = "/" + project + "/_git/" + repo

	case u.Host == "ssh.dev.azure.com":
		// v3/<org>/<project>/<repo>
		if len(segs) != 4 || segs[0] != "v3" {
			return nil, fmt.Errorf("unexpected Azure DevOps ssh path %q", u.Path)
		}
		out.Host = "dev.azure.com"
		out.Path = "/" + segs[1] + "/" + segs[2] + "/_git/" + segs[3]
	}

	return out, nil
}

func indexOf(segs []string, s string) int {
	for i, v := range segs {
		if v == s {
			return i
		}
	}
	return -1
}
