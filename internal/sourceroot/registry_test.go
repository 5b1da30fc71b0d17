package sourceroot

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sep = string(os.PathSeparator)

func TestNormalizePath(t *testing.T) {
	dir := t.TempDir()

	got, err := NormalizePath(dir)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(got, sep))
	assert.False(t, strings.HasSuffix(got, sep+sep))
	assert.True(t, filepath.IsAbs(got))

	again, err := NormalizePath(dir + sep + sep)
	require.NoError(t, err)
	assert.Equal(t, got, again)

	dotted, err := NormalizePath(filepath.Join(dir, "a", ".."))
	require.NoError(t, err)
	assert.Equal(t, got, dotted)

	_, err = NormalizePath("")
	assert.Error(t, err)
}

func TestRegistry_Add(t *testing.T) {
	dir := t.TempDir()
	top := SourceRoot{LocalPath: dir, RepositoryURL: "https://github.com/org/repo", Revision: "abc", TopLevel: true}

	t.Run("keeps insertion order", func(t *testing.T) {
		reg := NewRegistry()
		require.NoError(t, reg.Add(top))
		require.NoError(t, reg.Add(SourceRoot{
			LocalPath:     filepath.Join(dir, "vendor", "lib"),
			RepositoryURL: "https://github.com/org/lib",
			Revision:      "def",
		}))

		roots := reg.Roots()
		require.Len(t, roots, 2)
		assert.Equal(t, dir+sep, roots[0].LocalPath)
		assert.Equal(t, filepath.Join(dir, "vendor", "lib")+sep, roots[1].LocalPath)

		tl, ok := reg.TopLevel()
		require.True(t, ok)
		assert.Equal(t, "abc", tl.Revision)
	})

	t.Run("rejects duplicate path", func(t *testing.T) {
		reg := NewRegistry()
		require.NoError(t, reg.Add(top))
		dup := top
		dup.RepositoryURL = "https://github.com/other/repo"
		dup.LocalPath = dir + sep
		err := reg.Add(dup)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "registered twice")
	})

	t.Run("rejects nested root of same repository", func(t *testing.T) {
		reg := NewRegistry()
		require.NoError(t, reg.Add(top))
		nested := top
		nested.LocalPath = filepath.Join(dir, "src")
		nested.TopLevel = false
		assert.ErrorIs(t, reg.Add(nested), ErrOverlap)
	})

	t.Run("sibling prefix is not nesting", func(t *testing.T) {
		reg := NewRegistry()
		a := top
		a.LocalPath = filepath.Join(dir, "app")
		b := top
		b.LocalPath = filepath.Join(dir, "app2")
		require.NoError(t, reg.Add(a))
		require.NoError(t, reg.Add(b))
	})

	t.Run("requires url and revision", func(t *testing.T) {
		reg := NewRegistry()
		noURL := top
		noURL.RepositoryURL = " "
		assert.Error(t, reg.Add(noURL))
		noRev := top
		noRev.Revision = ""
		assert.Error(t, reg.Add(noRev))
		assert.Equal(t, 0, reg.Len())
	})
}

func TestRegistry_Translate(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Add(SourceRoot{LocalPath: t.TempDir(), RepositoryURL: "https://a.example/r", Revision: "1", TopLevel: true}))

	out := reg.Translate(func(u string) string { return strings.Replace(u, "a.example", "b.example", 1) })

	assert.Equal(t, "https://b.example/r", out.Roots()[0].RepositoryURL)
	assert.Equal(t, "https://a.example/r", reg.Roots()[0].RepositoryURL, "source registry must not change")
}
