package stamp

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"github.com/agentic-research/srcmap/internal/atomicfile"
	billy "github.com/go-git/go-billy/v5"
)

// Repository holds the manifest's repository fields. Empty fields are
// omitted from the element; an empty URL means publication is disabled.
type Repository struct {
	Type   string
	URL    string
	Commit string
}

// Element renders the repository element with escaped attribute values.
// Non-ASCII characters are written as-is.
func (r Repository) Element() string {
	var b bytes.Buffer
	b.WriteString("<repository")
	for _, attr := range [][2]string{{"type", r.Type}, {"url", r.URL}, {"commit", r.Commit}} {
		if attr[1] == "" {
			continue
		}
		b.WriteString(" " + attr[0] + `="`)
		_ = xml.EscapeText(&b, []byte(attr[1])) // bytes.Buffer writes do not fail
		b.WriteByte('"')
	}
	b.WriteString(" />")
	return b.String()
}

// SetRepository returns manifest with its <package><metadata><repository>
// element replaced by (or extended with) repo. All other bytes are kept.
func SetRepository(manifest []byte, repo Repository) ([]byte, error) {
	loc, err := locate(manifest)
	if err != nil {
		return nil, err
	}
	elem := []byte(repo.Element())

	var out bytes.Buffer
	out.Grow(len(manifest) + len(elem) + 8)

	if loc.repoStart >= 0 {
		out.Write(manifest[:loc.repoStart])
		out.Write(elem)
		out.Write(manifest[loc.repoEnd:])
		return out.Bytes(), nil
	}

	// Insert as the last child, on its own line when </metadata> is.
	lineStart := bytes.LastIndexByte(manifest[:loc.metaEnd], '\n') + 1
	indent := manifest[lineStart:loc.metaEnd]
	if lineStart == 0 || len(bytes.TrimSpace(indent)) > 0 {
		out.Write(manifest[:loc.metaEnd])
		out.Write(elem)
		out.Write(manifest[loc.metaEnd:])
		return out.Bytes(), nil
	}

	childIndent := loc.childIndent
	if childIndent == nil {
		childIndent = append(append([]byte{}, indent...), "  "...)
	}
	out.Write(manifest[:lineStart])
	out.Write(childIndent)
	out.Write(elem)
	out.WriteByte('\n')
	out.Write(manifest[lineStart:])
	return out.Bytes(), nil
}

type location struct {
	repoStart, repoEnd int
	metaEnd            int
	childIndent        []byte
}

func locate(manifest []byte) (location, error) {
	loc := location{repoStart: -1, repoEnd: -1, metaEnd: -1}
	dec := xml.NewDecoder(bytes.NewReader(manifest))

	depth, metaDepth := 0, -1
	metaOpenEnd := -1
	for {
		off := int(dec.InputOffset())
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return loc, fmt.Errorf("parse manifest: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch {
			case depth == 2 && t.Name.Local == "metadata" && metaDepth < 0:
				metaDepth = depth
				metaOpenEnd = int(dec.InputOffset())
			case metaDepth > 0 && depth == metaDepth+1:
				if ind := lineIndent(manifest, off); ind != nil {
					loc.childIndent = ind
				}
				if t.Name.Local == "repository" && loc.repoStart < 0 {
					loc.repoStart = off
				}
			}
		case xml.EndElement:
			switch {
			case depth == metaDepth+1 && t.Name.Local == "repository" && loc.repoStart >= 0 && loc.repoEnd < 0:
				loc.repoEnd = int(dec.InputOffset())
			case depth == metaDepth && t.Name.Local == "metadata" && loc.metaEnd < 0:
				if off == metaOpenEnd && bytes.HasSuffix(manifest[:off], []byte("/>")) {
					return loc, errors.New("manifest <metadata/> element is empty")
				}
				loc.metaEnd = off
				metaDepth = -2 // stop tracking children of later elements
			}
			depth--
		}
	}

	if loc.metaEnd < 0 {
		return loc, errors.New("manifest has no <package><metadata> element")
	}
	return loc, nil
}

// lineIndent returns the whitespace between the start of the line and off,
// or nil if anything else precedes off on that line.
func lineIndent(b []byte, off int) []byte {
	lineStart := bytes.LastIndexByte(b[:off], '\n') + 1
	if lineStart == 0 {
		return nil
	}
	ind := b[lineStart:off]
	if len(bytes.TrimSpace(ind)) > 0 {
		return nil
	}
	return ind
}

// WriteRepositoryMetadata sets the repository fields of the manifest at path
// and atomically replaces it.
func WriteRepositoryMetadata(fsys billy.Filesystem, path string, repo Repository) error {
	err := atomicfile.Replace(fsys, path, func(src []byte) ([]byte, error) {
		return SetRepository(src, repo)
	})
	if err != nil {
		return fmt.Errorf("stamp manifest %s: %w", path, err)
	}
	return nil
}
