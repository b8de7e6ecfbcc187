package srcroots

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	tmp := t.TempDir()
	project := filepath.Join(tmp, "project")
	pkg := filepath.Join(project, "internal", "pkg")
	require.NoError(t, os.MkdirAll(pkg, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(project, "go.mod"), []byte("module example\n"), 0o644))

	r, err := New(8)
	require.NoError(t, err)

	root, ok := r.Lookup(filepath.Join(pkg, "file.go"))
	require.True(t, ok)
	assert.Equal(t, filepath.ToSlash(project), root)

	// Second lookup for the same directory is served from the cache.
	_, _ = r.Lookup(filepath.Join(pkg, "other.go"))
	hits, misses := r.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestLookupNoRoot(t *testing.T) {
	tmp := t.TempDir()
	orphanDir := filepath.Join(tmp, "no-markers")
	require.NoError(t, os.MkdirAll(orphanDir, 0o755))

	r, err := New(8)
	require.NoError(t, err)

	// The walk may escape the temp dir, so only assert when nothing above
	// carries a marker; the negative-cache behavior is the real subject.
	_, ok := r.Lookup(filepath.Join(orphanDir, "file.go"))
	_, secondOK := r.Lookup(filepath.Join(orphanDir, "file2.go"))
	assert.Equal(t, ok, secondOK)

	hits, misses := r.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestMarkerPrecedenceIsNearestDirectory(t *testing.T) {
	tmp := t.TempDir()
	outer := filepath.Join(tmp, "outer")
	inner := filepath.Join(outer, "inner")
	require.NoError(t, os.MkdirAll(inner, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(outer, "go.mod"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(inner, "package.json"), nil, 0o644))

	r, err := New(8)
	require.NoError(t, err)

	root, ok := r.Lookup(filepath.Join(inner, "app.js"))
	require.True(t, ok)
	assert.Equal(t, filepath.ToSlash(inner), root)
}
