// Package srcroots resolves the source root a file belongs to.
//
// The source root is the nearest ancestor directory carrying a project
// marker file. Diagnostics for the same package arrive in bursts, so
// directory lookups are cached in an LRU.
package srcroots

import (
	"os"
	"path/filepath"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// defaultMarkers are checked in order within each directory.
var defaultMarkers = []string{"go.mod", ".git", "pom.xml", "build.gradle", "build.gradle.kts", "package.json"}

// Resolver finds source roots by walking up from a file's directory.
type Resolver struct {
	cache   *lru.Cache[string, string]
	markers []string

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a resolver with an LRU of the given size. Size <= 0 falls back
// to 512 entries.
func New(size int) (*Resolver, error) {
	if size <= 0 {
		size = 512
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	return &Resolver{cache: cache, markers: defaultMarkers}, nil
}

// Lookup returns the source root containing filePath, if one exists. The
// result is cached per directory.
func (r *Resolver) Lookup(filePath string) (string, bool) {
	dir := filepath.Dir(filepath.Clean(filePath))

	if root, ok := r.cache.Get(dir); ok {
		r.hits.Add(1)
		return root, root != ""
	}
	r.misses.Add(1)

	root := r.walkUp(dir)
	// Negative results are cached too; the empty string marks "no root".
	r.cache.Add(dir, root)
	return root, root != ""
}

// Stats returns the cache hit/miss counters.
func (r *Resolver) Stats() (hits, misses int64) {
	return r.hits.Load(), r.misses.Load()
}

func (r *Resolver) walkUp(dir string) string {
	for {
		for _, marker := range r.markers {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return filepath.ToSlash(dir)
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
