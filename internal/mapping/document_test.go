package mapping

import (
	"testing"

	"github.com/agentic-research/srcmap/internal/compose"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sha = "8f9a2c51d2c1b7e4a0f3e6d5c4b3a2918f7e6d5c"

func TestSerialize_Exact(t *testing.T) {
	doc, err := Build([]compose.Template{{
		PathPrefix: "/src/proj/",
		URLPattern: "https://raw.githubusercontent.com/test-org/test-repoሴ%24%2572%2F/" + sha + "/*",
	}})
	require.NoError(t, err)

	got, err := doc.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t,
		`{"documents":{"/src/proj/*":"https://raw.githubusercontent.com/test-org/test-repoሴ%24%2572%2F/`+sha+`/*"}}`,
		string(got))
}

func TestSerialize_WindowsSeparatorsAndSpecials(t *testing.T) {
	doc := New()
	require.NoError(t, doc.Add(`C:\src\proj\`, "https://dev.azure.com/o/p/_apis/git/repositories/r/items?api-version=1.0&versionType=commit&version=abc&path=/*"))
	require.NoError(t, doc.Add(`C:\src\proj\"quoted"\`, "https://x.example/<y>/*"))

	got, err := doc.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t,
		`{"documents":{"C:\\src\\proj\\*":"https://dev.azure.com/o/p/_apis/git/repositories/r/items?api-version=1.0&versionType=commit&version=abc&path=/*",`+
			`"C:\\src\\proj\\\"quoted\"\\*":"https://x.example/<y>/*"}}`,
		string(got))
}

func TestSerialize_Deterministic(t *testing.T) {
	templates := []compose.Template{
		{PathPrefix: "/src/proj/", URLPattern: "https://raw.githubusercontent.com/o/app/" + sha + "/*"},
		{PathPrefix: "/src/proj/deps/lib/", URLPattern: "https://raw.githubusercontent.com/o/lib/" + sha + "/*"},
		{PathPrefix: "/src/proj/deps/aaa/", URLPattern: "https://gitlab.com/o/aaa/-/raw/" + sha + "/*"},
	}
	a, err := Build(templates)
	require.NoError(t, err)
	b, err := Build(templates)
	require.NoError(t, err)

	ab, _ := a.MarshalJSON()
	bb, _ := b.MarshalJSON()
	assert.Equal(t, ab, bb)

	entries := a.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "/src/proj/*", entries[0].Key)
	assert.Equal(t, "/src/proj/deps/lib/*", entries[1].Key, "input order is kept")
}

func TestBuild_DuplicateKey(t *testing.T) {
	_, err := Build([]compose.Template{
		{PathPrefix: "/src/proj/", URLPattern: "https://a.example/*"},
		{PathPrefix: "/src/proj/", URLPattern: "https://b.example/*"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateKey)
	assert.Contains(t, err.Error(), "https://a.example/*")
	assert.Contains(t, err.Error(), "https://b.example/*")
}

func TestAdd_RejectsBadEntries(t *testing.T) {
	doc := New()
	assert.Error(t, doc.Add("", "https://a.example/*"))
	assert.Error(t, doc.Add("/src/", "https://a.example/"))
	assert.Equal(t, 0, doc.Len())
}

func TestAdd_RejectsInvalidUTF8(t *testing.T) {
	doc := New()
	err := doc.Add("/src/caf\xe9/", "https://raw.githubusercontent.com/o/r/"+sha+"/*")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidUTF8)
	assert.Contains(t, err.Error(), `/src/caf\xe9/`)

	err = doc.Add("/src/proj/", "https://x.example/\xff/*")
	assert.ErrorIs(t, err, ErrInvalidUTF8)
	assert.Equal(t, 0, doc.Len())

	_, err = Build([]compose.Template{{PathPrefix: "/src/caf\xe9/", URLPattern: "https://a.example/*"}})
	assert.ErrorIs(t, err, ErrInvalidUTF8)
}

func TestLoadAndResolve(t *testing.T) {
	data := []byte(`{"documents":{
		"/src/proj/*":"https://raw.githubusercontent.com/o/app/` + sha + `/*",
		"/src/proj/deps/lib/*":"https://gitlab.com/o/lib/-/raw/` + sha + `/*"
	}}`)
	doc, err := Load(data)
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Len())

	u, ok := doc.Resolve("/src/proj/cmd/main.go")
	require.True(t, ok)
	assert.Equal(t, "https://raw.githubusercontent.com/o/app/"+sha+"/cmd/main.go", u)

	u, ok = doc.Resolve("/src/proj/deps/lib/x y.go")
	require.True(t, ok)
	assert.Equal(t, "https://gitlab.com/o/lib/-/raw/"+sha+"/x%20y.go", u, "longest prefix wins")

	_, ok = doc.Resolve("/elsewhere/main.go")
	assert.False(t, ok)
}

func TestLoad_Errors(t *testing.T) {
	for name, data := range map[string]string{
		"not json":          `{"documents":`,
		"missing documents": `{"files":{}}`,
		"non-string value":  `{"documents":{"/a/*":1}}`,
		"key without star":  `{"documents":{"/a/":"https://x/*"}}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestWrite_RoundTrip(t *testing.T) {
	fsys := memfs.New()
	doc, err := Build([]compose.Template{{PathPrefix: "/src/proj/", URLPattern: "https://raw.githubusercontent.com/o/ü/" + sha + "/*"}})
	require.NoError(t, err)

	path := DocumentPath("obj", "proj")
	assert.Equal(t, "obj/proj.sourcelink.json", path)
	require.NoError(t, Write(fsys, path, doc))

	raw, err := util.ReadFile(fsys, path)
	require.NoError(t, err)
	want, _ := doc.MarshalJSON()
	assert.Equal(t, want, raw)

	loaded, err := Load(raw)
	require.NoError(t, err)
	assert.Equal(t, doc.Entries(), loaded.Entries())
}
