// Package atomicfile replaces files so that readers never observe a partial
// write: content goes to a temp file in the target directory, which is then
// renamed over the target.
package atomicfile

import (
	"fmt"
	"os"
	"path/filepath"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// Write atomically replaces path in fsys with data. On failure the previous
// content of path (if any) is left in place and the temp file is removed.
func Write(fsys billy.Filesystem, path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}

	tmp, err := fsys.TempFile(dir, ".srcmap-"+filepath.Base(path)+"-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = fsys.Remove(tmpName) // best-effort cleanup
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = fsys.Remove(tmpName) // best-effort cleanup
		return fmt.Errorf("close temp: %w", err)
	}

	if ch, ok := fsys.(billy.Change); ok {
		_ = ch.Chmod(tmpName, perm) // best-effort permission sync
	}

	if err := fsys.Rename(tmpName, path); err != nil {
		_ = fsys.Remove(tmpName) // best-effort cleanup
		return fmt.Errorf("rename temp to %s: %w", path, err)
	}
	return nil
}

// Replace reads path from fsys, passes its content to edit and atomically
// writes the result back, keeping the original permissions where the
// filesystem exposes them.
func Replace(fsys billy.Filesystem, path string, edit func([]byte) ([]byte, error)) error {
	src, err := util.ReadFile(fsys, path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	info, statErr := fsys.Stat(path)

	out, err := edit(src)
	if err != nil {
		return err
	}

	perm := os.FileMode(0o644)
	if statErr == nil {
		perm = info.Mode().Perm()
	}
	return Write(fsys, path, out, perm)
}
