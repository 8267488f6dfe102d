package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func populateCache(t *testing.T) string {
	t.Helper()
	cache := filepath.Join(t.TempDir(), "cache.db")
	for _, q := range []string{"User.email", "Post.title", "Org"} {
		_, err := execute(t, "", "--cache", cache, "compile", "--schema", fixtureSchema, "-e", q)
		require.NoError(t, err, q)
	}
	return cache
}

func TestCacheListAndStats(t *testing.T) {
	cache := populateCache(t)

	out, err := execute(t, "", "--cache", cache, "cache", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "   1  ")
	assert.Contains(t, out, "User.email")
	assert.Contains(t, out, "Org")

	out, err = execute(t, "", "--format", "json", "--cache", cache, "cache", "list")
	require.NoError(t, err)
	var entries []CacheEntry
	decodeResponse(t, out, &entries)
	require.Len(t, entries, 3)
	assert.Equal(t, "User.email", entries[0].Source)
	assert.Equal(t, int64(1), entries[0].Seq)
	assert.Equal(t, "std::str", entries[1].ResultType)
	assert.Contains(t, entries[1].Refs, "default::Post")

	out, err = execute(t, "", "--cache", cache, "cache", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "statements: 3\n")
}

func TestCacheInvalidate(t *testing.T) {
	cache := populateCache(t)

	out, err := execute(t, "", "--cache", cache, "cache", "invalidate", "default::Post")
	require.NoError(t, err)
	assert.Equal(t, "Invalidated 1 statement(s)\n", out)

	out, err = execute(t, "", "--format", "json", "--cache", cache, "cache", "list")
	require.NoError(t, err)
	var entries []CacheEntry
	decodeResponse(t, out, &entries)
	var sources []string
	for _, e := range entries {
		sources = append(sources, e.Source)
	}
	assert.Equal(t, []string{"User.email", "Org"}, sources)
}

func TestCachePruneKeepsCurrentSchema(t *testing.T) {
	cache := populateCache(t)

	other := writeFile(t, t.TempDir(), "schema.cue", `schema: types: Other: {}`)
	out, err := execute(t, "", "--cache", cache, "cache", "prune", "--schema", fixtureSchema)
	require.NoError(t, err)
	assert.Equal(t, "Pruned 0 statement(s)\n", out)

	out, err = execute(t, "", "--format", "json", "--cache", cache, "cache", "prune", "--schema", other)
	require.NoError(t, err)
	var count CacheCount
	decodeResponse(t, out, &count)
	assert.Equal(t, int64(3), count.Removed)
}

func TestCachePurge(t *testing.T) {
	cache := populateCache(t)

	out, err := execute(t, "", "--cache", cache, "cache", "purge")
	require.NoError(t, err)
	assert.Equal(t, "Purged 3 statement(s)\n", out)

	out, err = execute(t, "", "--cache", cache, "cache", "list")
	require.NoError(t, err)
	assert.Equal(t, "Cache is empty.\n", out)
}

func TestCacheRequiresPath(t *testing.T) {
	_, err := execute(t, "", "cache", "stats")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "--cache")
}
