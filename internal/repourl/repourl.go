// Package repourl parses and canonicalizes version-control remote URLs.
//
// Nothing in this package re-encodes a URL: paths are carried as the raw
// bytes the remote was configured with, so percent-escapes and non-ASCII
// characters survive exactly.
package repourl

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedURL is returned for inputs that are not remote repository URLs
// (local paths, file:// URLs, empty strings).
var ErrUnsupportedURL = errors.New("unsupported repository url")

// URL is a remote repository URL split into raw components.
type URL struct {
	Scheme   string // lower-cased; "ssh" for scp-like remotes
	User     string // userinfo without the trailing '@'
	Host     string // lower-cased host name (IPv6 literals keep their brackets)
	Port     string
	Path     string // raw escaped path, starting with '/' unless empty
	RawQuery string
	Fragment string

	scp bool
}

// Parse splits raw into its components. Both scheme URLs
// (scheme://[user@]host[:port]/path) and scp-like remotes ([user@]host:path)
// are accepted.
func Parse(raw string) (*URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty url", ErrUnsupportedURL)
	}

	if i := strings.Index(raw, "://"); i > 0 && validScheme(raw[:i]) {
		return parseSchemeURL(strings.ToLower(raw[:i]), raw[i+3:], raw)
	}
	return parseSCP(raw)
}

// MustParse is like Parse but panics on error. Intended for tests and
// package-level tables.
func MustParse(raw string) *URL {
	u, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}

func parseSchemeURL(scheme, rest, raw string) (*URL, error) {
	u := &URL{Scheme: scheme}

	if i := strings.IndexByte(rest, '#'); i >= 0 {
		u.Fragment = rest[i+1:]
		rest = rest[:i]
	}
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		u.RawQuery = rest[i+1:]
		rest = rest[:i]
	}

	authority := rest
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		authority = rest[:i]
		u.Path = rest[i:]
	}

	if i := strings.LastIndexByte(authority, '@'); i >= 0 {
		u.User = authority[:i]
		authority = authority[i+1:]
	}

	host, port, err := splitHostPort(authority)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrUnsupportedURL, raw, err)
	}
	if host == "" && scheme != "file" {
		return nil, fmt.Errorf("%w: %q: missing host", ErrUnsupportedURL, raw)
	}
	u.Host = strings.ToLower(host)
	u.Port = port
	return u, nil
}

func parseSCP(raw string) (*URL, error) {
	colon := strings.IndexByte(raw, ':')
	slash := strings.IndexByte(raw, '/')
	if colon <= 0 || (slash >= 0 && slash < colon) || strings.ContainsRune(raw[:colon], '\\') {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedURL, raw)
	}

	u := &URL{Scheme: "ssh", scp: true}
	authority := raw[:colon]
	if i := strings.LastIndexByte(authority, '@'); i >= 0 {
		u.User = authority[:i]
		authority = authority[i+1:]
	}
	// A single letter before the colon is a Windows drive, not a host.
	if len(authority) <= 1 {
		return nil, fmt.Errorf("%w: %q looks like a local path", ErrUnsupportedURL, raw)
	}
	u.Host = strings.ToLower(authority)

	p := raw[colon+1:]
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	u.Path = p
	return u, nil
}

func splitHostPort(authority string) (host, port string, err error) {
	if strings.HasPrefix(authority, "[") {
		end := strings.IndexByte(authority, ']')
		if end < 0 {
			return "", "", errors.New("unterminated IPv6 literal")
		}
		host = authority[:end+1]
		rest := authority[end+1:]
		if rest == "" {
			return host, "", nil
		}
		if rest[0] != ':' {
			return "", "", fmt.Errorf("unexpected %q after host", rest)
		}
		port = rest[1:]
	} else if i := strings.LastIndexByte(authority, ':'); i >= 0 {
		host, port = authority[:i], authority[i+1:]
	} else {
		host = authority
	}
	for _, r := range port {
		if r < '0' || r > '9' {
			return "", "", fmt.Errorf("invalid port %q", port)
		}
	}
	return host, port, nil
}

func validScheme(s string) bool {
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.'):
		default:
			return false
		}
	}
	return s != ""
}

// String recomposes the URL from its raw components.
func (u *URL) String() string {
	var b strings.Builder
	if u.scp {
		if u.User != "" {
			b.WriteString(u.User)
			b.WriteByte('@')
		}
		b.WriteString(u.Host)
		b.WriteByte(':')
		b.WriteString(strings.TrimPrefix(u.Path, "/"))
		return b.String()
	}

	b.WriteString(u.Scheme)
	b.WriteString("://")
	if u.User != "" {
		b.WriteString(u.User)
		b.WriteByte('@')
	}
	b.WriteString(u.Host)
	if u.Port != "" {
		b.WriteByte(':')
		b.WriteString(u.Port)
	}
	b.WriteString(u.Path)
	if u.RawQuery != "" {
		b.WriteByte('?')
		b.WriteString(u.RawQuery)
	}
	if u.Fragment != "" {
		b.WriteByte('#')
		b.WriteString(u.Fragment)
	}
	return b.String()
}

// Segments returns the non-empty '/'-separated segments of the raw path.
// Escaped slashes (%2F) do not split a segment.
func (u *URL) Segments() []string {
	var segs []string
	for _, s := range strings.Split(u.Path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// IsHTTP reports whether the URL uses the http or https scheme.
func (u *URL) IsHTTP() bool {
	return u.Scheme == "http" || u.Scheme == "https"
}
