package glob

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func siteFS() fstest.MapFS {
	return fstest.MapFS{
		"src/templates/index.tmpl":         {Data: []byte("index")},
		"src/templates/about.tmpl":         {Data: []byte("about")},
		"src/templates/blog/post.tmpl":     {Data: []byte("post")},
		"src/templates/views/layout.tmpl":  {Data: []byte("layout")},
		"src/templates/views/nav/top.tmpl": {Data: []byte("nav")},
		"src/assets/jpg/a.jpg":             {Data: []byte{0xff}},
		"src/assets/jpg/b.jpeg":            {Data: []byte{0xff}},
		"src/styles/style.css":             {Data: []byte("body{}")},
	}
}

func paths(files []File) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Path
	}
	return out
}

func TestResolveExclusion(t *testing.T) {
	set := New("./src/templates/**/*.tmpl", "!./src/templates/views/**/*.tmpl")

	files, err := set.ResolveFS(siteFS())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"src/templates/about.tmpl",
		"src/templates/blog/post.tmpl",
		"src/templates/index.tmpl",
	}, paths(files))

	for _, f := range files {
		assert.Equal(t, "src/templates", f.Base)
	}
	assert.Equal(t, "blog/post.tmpl", files[1].Rel)
}

func TestResolveOrderIsSignificant(t *testing.T) {
	// The exclusion precedes the inclusion, so it cannot remove anything.
	set := New("!src/templates/views/**/*.tmpl", "src/templates/**/*.tmpl")

	files, err := set.ResolveFS(siteFS())
	require.NoError(t, err)
	assert.Len(t, files, 5)

	// An inclusion after the exclusion adds the files back.
	set = New("src/templates/**/*.tmpl", "!src/templates/views/**", "src/templates/views/layout.tmpl")
	files, err = set.ResolveFS(siteFS())
	require.NoError(t, err)
	assert.Contains(t, paths(files), "src/templates/views/layout.tmpl")
	assert.NotContains(t, paths(files), "src/templates/views/nav/top.tmpl")
}

func TestResolveMultipleIncludesDeduplicates(t *testing.T) {
	set := New("src/assets/jpg/**/*.jpg", "src/assets/jpg/**/*.jpeg", "src/assets/jpg/*")

	files, err := set.ResolveFS(siteFS())
	require.NoError(t, err)
	assert.Equal(t, []string{"src/assets/jpg/a.jpg", "src/assets/jpg/b.jpeg"}, paths(files))
}

func TestResolveLiteralPath(t *testing.T) {
	files, err := New("src/styles/style.css").ResolveFS(siteFS())
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "src/styles", files[0].Base)
	assert.Equal(t, "style.css", files[0].Rel)
}

func TestResolveNoMatchesIsNotAnError(t *testing.T) {
	files, err := New("src/js/*.js").ResolveFS(siteFS())
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestResolveOnDisk(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src", "js"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "js", "app.js"), []byte("x"), 0o644))

	files, err := New("./src/js/*.js").Resolve(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"src/js/app.js"}, paths(files))
}

func TestMatch(t *testing.T) {
	set := New("src/templates/**/*.tmpl", "!src/templates/views/**/*.tmpl")

	assert.True(t, set.Match("src/templates/index.tmpl"))
	assert.True(t, set.Match("./src/templates/blog/post.tmpl"))
	assert.False(t, set.Match("src/templates/views/layout.tmpl"))
	assert.False(t, set.Match("src/styles/style.css"))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, New("src/**/*.css", "!src/vendor/**").Validate())
	assert.Error(t, New("src/[a-.css").Validate())
	assert.Error(t, New("../outside/*.css").Validate())
}

func TestBasesAndPatterns(t *testing.T) {
	set := New("src/templates/**/*.tmpl", "!src/templates/views/**", "src/styles/style.css")

	assert.Equal(t, []string{"src/templates", "src/styles"}, set.Bases())
	assert.Equal(t, []string{"src/templates/**/*.tmpl", "!src/templates/views/**", "src/styles/style.css"}, set.Patterns())
	assert.False(t, set.Empty())
	assert.True(t, New("!x/**").Empty())
}
