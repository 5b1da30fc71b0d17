// Package stamp records the repository revision in build outputs: the
// informational version string embedded in a binary and the repository
// fields of a package manifest.
package stamp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/agentic-research/srcmap/internal/atomicfile"
	billy "github.com/go-git/go-billy/v5"
	"golang.org/x/mod/semver"
)

// VersionFileSuffix is appended to the project name for the version file.
const VersionFileSuffix = ".version.json"

// InformationalVersion appends revision to base as semver build metadata:
// "1.0.0" + "abc" = "1.0.0+abc". A base that already carries build metadata
// gets the revision appended with a dot ("1.0.0+ci.7" -> "1.0.0+ci.7.abc").
// For a semantic version base the result must still be a valid semantic
// version, so the revision has to be made of build identifier characters.
func InformationalVersion(base, revision string) (string, error) {
	base = strings.TrimSpace(base)
	revision = strings.TrimSpace(revision)
	if base == "" {
		return "", errors.New("informational version: empty base version")
	}
	if revision == "" {
		return "", errors.New("informational version: empty revision")
	}

	sv := "v" + strings.TrimPrefix(base, "v")
	if !semver.IsValid(sv) {
		log.Printf("stamp: version %q is not a semantic version", base)
		if strings.Contains(base, "+") {
			return base + "." + revision, nil
		}
		return base + "+" + revision, nil
	}

	sep := "+"
	if semver.Build(sv) != "" {
		sep = "."
	}
	v := base + sep + revision
	if !semver.IsValid(sv + sep + revision) {
		return "", fmt.Errorf("informational version: revision %q is not valid build metadata for %s", revision, base)
	}
	return v, nil
}

// Ldflags returns the linker flag that sets the string variable symbol
// (e.g. "main.version") to value. The flag is single-quoted, so neither
// argument may contain a quote.
func Ldflags(symbol, value string) (string, error) {
	if symbol == "" || strings.ContainsAny(symbol, "'= \t") {
		return "", fmt.Errorf("ldflags: invalid symbol %q", symbol)
	}
	if strings.Contains(value, "'") {
		return "", fmt.Errorf("ldflags: value %q contains a single quote", value)
	}
	return fmt.Sprintf("-X '%s=%s'", symbol, value), nil
}

// VersionInfo is the version metadata handed to the packaging step.
type VersionInfo struct {
	InformationalVersion string `json:"informationalVersion"`
	Revision             string `json:"revision"`
	RepositoryURL        string `json:"repositoryUrl,omitempty"`
}

// VersionPath is the location of the version file for project.
func VersionPath(intermediateDir, project string) string {
	return filepath.Join(intermediateDir, project+VersionFileSuffix)
}

// WriteVersionInfo atomically writes info as indented JSON.
func WriteVersionInfo(fsys billy.Filesystem, path string, info VersionInfo) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(info); err != nil {
		return fmt.Errorf("encode version info: %w", err)
	}
	if err := atomicfile.Write(fsys, path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write version info %s: %w", path, err)
	}
	return nil
}
