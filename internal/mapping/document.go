// Package mapping builds and persists the source mapping document consumed by
// debuggers and package tooling:
//
//	{"documents":{"<local path prefix>*":"<url template>*"}}
//
// The serialized form is byte-for-byte deterministic for a given input
// order: no whitespace, keys in insertion order, JSON string escaping
// without HTML escaping, non-ASCII written as UTF-8.
package mapping

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agentic-research/srcmap/internal/atomicfile"
	"github.com/agentic-research/srcmap/internal/compose"
	billy "github.com/go-git/go-billy/v5"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// FileSuffix is appended to the project name to form the document file name.
const FileSuffix = ".sourcelink.json"

var (
	// ErrDuplicateKey is returned when two templates share a path prefix.
	ErrDuplicateKey = errors.New("duplicate mapping key")
	// ErrInvalidUTF8 is returned for entries the document cannot encode
	// without replacing bytes.
	ErrInvalidUTF8 = errors.New("mapping entry is not valid UTF-8")
)

var documentsPath = jp.MustParseString("$.documents")

// Document is an insertion-ordered mapping from "<prefix>*" to URL pattern.
type Document struct {
	entries *orderedmap.OrderedMap[string, string]
}

// Entry is one document line.
type Entry struct {
	Key string
	URL string
}

func New() *Document {
	return &Document{entries: orderedmap.New[string, string]()}
}

// Build collects templates in order. Two templates with the same prefix are a
// configuration error; they are never merged.
func Build(templates []compose.Template) (*Document, error) {
	d := New()
	for _, t := range templates {
		if err := d.Add(t.PathPrefix, t.URLPattern); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Add appends prefix+"*" -> urlPattern.
func (d *Document) Add(prefix, urlPattern string) error {
	if prefix == "" {
		return errors.New("mapping entry with empty path prefix")
	}
	if !utf8.ValidString(prefix) {
		return fmt.Errorf("%w: path prefix %q", ErrInvalidUTF8, prefix)
	}
	if !utf8.ValidString(urlPattern) {
		return fmt.Errorf("%w: url pattern %q for %s", ErrInvalidUTF8, urlPattern, prefix)
	}
	if !strings.HasSuffix(urlPattern, compose.Wildcard) {
		return fmt.Errorf("url pattern %q for %s does not end with %q", urlPattern, prefix, compose.Wildcard)
	}
	key := prefix + compose.Wildcard
	if prev, present := d.entries.Get(key); present {
		return fmt.Errorf("%w: %q maps to both %q and %q", ErrDuplicateKey, key, prev, urlPattern)
	}
	d.entries.Set(key, urlPattern)
	return nil
}

// Len returns the number of entries.
func (d *Document) Len() int {
	return d.entries.Len()
}

// Entries returns the entries in document order.
func (d *Document) Entries() []Entry {
	out := make([]Entry, 0, d.entries.Len())
	for p := d.entries.Oldest(); p != nil; p = p.Next() {
		out = append(out, Entry{Key: p.Key, URL: p.Value})
	}
	return out
}

// MarshalJSON implements json.Marshaler with the canonical document layout.
func (d *Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"documents":{`)
	first := true
	for p := d.entries.Oldest(); p != nil; p = p.Next() {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		if err := writeString(&buf, p.Key); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := writeString(&buf, p.Value); err != nil {
			return nil, err
		}
	}
	buf.WriteString(`}}`)
	return buf.Bytes(), nil
}

// writeString appends s as a JSON string. Backslashes (Windows separators)
// come out doubled; '<', '>' and '&' are left alone.
func writeString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte("\n")))
	return nil
}

// Load parses a serialized document. Entry order is not semantic for
// resolution, so loaded entries are ordered by key.
func Load(data []byte) (*Document, error) {
	v, err := oj.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse mapping document: %w", err)
	}
	docs, ok := documentsPath.First(v).(map[string]any)
	if !ok {
		return nil, errors.New(`mapping document has no "documents" object`)
	}

	keys := make([]string, 0, len(docs))
	for k := range docs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	d := New()
	for _, k := range keys {
		s, ok := docs[k].(string)
		if !ok {
			return nil, fmt.Errorf("mapping entry %q is not a string", k)
		}
		if !strings.HasSuffix(k, compose.Wildcard) {
			return nil, fmt.Errorf("mapping key %q does not end with %q", k, compose.Wildcard)
		}
		if err := d.Add(strings.TrimSuffix(k, compose.Wildcard), s); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Resolve returns the download URL for the local file at path using the
// entry with the longest matching prefix.
func (d *Document) Resolve(path string) (string, bool) {
	var best compose.Template
	for p := d.entries.Oldest(); p != nil; p = p.Next() {
		prefix := strings.TrimSuffix(p.Key, compose.Wildcard)
		if strings.HasPrefix(path, prefix) && len(prefix) > len(best.PathPrefix) {
			best = compose.Template{PathPrefix: prefix, URLPattern: p.Value}
		}
	}
	if best.PathPrefix == "" {
		return "", false
	}
	return best.Expand(path[len(best.PathPrefix):]), true
}

// DocumentPath is the fixed location of the document for project under the
// intermediate output directory.
func DocumentPath(intermediateDir, project string) string {
	return filepath.Join(intermediateDir, project+FileSuffix)
}

// Write serializes d and atomically replaces path in fsys.
func Write(fsys billy.Filesystem, path string, d *Document) error {
	data, err := d.MarshalJSON()
	if err != nil {
		return fmt.Errorf("serialize mapping document: %w", err)
	}
	if err := atomicfile.Write(fsys, path, data, 0o644); err != nil {
		return fmt.Errorf("write mapping document %s: %w", path, err)
	}
	return nil
}
