package store

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pathql/internal/compiler"
	"github.com/roach88/pathql/internal/ir"
	"github.com/roach88/pathql/internal/qlast"
	"github.com/roach88/pathql/internal/testutil"
)

func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testEntry(key string, refs ...string) Entry {
	return Entry{
		Key:           key,
		Fingerprint:   "fp-" + key,
		CompileID:     "id-" + key,
		Source:        "User",
		SchemaVersion: "v1",
		ResultType:    "default::User",
		Cardinality:   "MANY",
		IR:            []byte(`{"expr":{}}`),
		Refs:          refs,
	}
}

func TestOpenCreatesDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)

	for _, table := range []string{"statements", "statement_refs"} {
		var name string
		err := s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, "table %s", table)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	for range 3 {
		s, err := Open(path)
		require.NoError(t, err)
		require.NoError(t, s.Close())
	}
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)
}

func TestOpenAppliesPragmas(t *testing.T) {
	s := createTestStore(t)
	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("foreign_keys", "1"))
	assert.NoError(t, s.verifyPragma("busy_timeout", "5000"))
}

func TestPutGet(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	seq, err := s.Put(ctx, testEntry("k1", "default::User", "std::str"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)

	got, ok, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	want := testEntry("k1", "default::User", "std::str")
	want.Seq = 1
	assert.Equal(t, want, got)

	_, ok, err = s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPutReplacesEntryAndRefs(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Put(ctx, testEntry("k1", "default::User"))
	require.NoError(t, err)
	replacement := testEntry("k1", "default::Post")
	replacement.Fingerprint = "fp-new"
	seq, err := s.Put(ctx, replacement)
	require.NoError(t, err)
	assert.Equal(t, int64(2), seq)

	got, ok, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "fp-new", got.Fingerprint)
	assert.Equal(t, []string{"default::Post"}, got.Refs)

	deps, err := s.Dependents(ctx, "default::User")
	require.NoError(t, err)
	assert.Empty(t, deps)
}

func TestPutRejectsEmptyKey(t *testing.T) {
	s := createTestStore(t)
	_, err := s.Put(context.Background(), testEntry(""))
	assert.ErrorContains(t, err, "empty key")
}

func TestInvalidateByRef(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, e := range []Entry{
		testEntry("a", "default::User"),
		testEntry("b", "default::User", "default::Post"),
		testEntry("c", "default::Org"),
	} {
		_, err := s.Put(ctx, e)
		require.NoError(t, err)
	}

	deps, err := s.Dependents(ctx, "default::User")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, deps)

	n, err := s.Invalidate(ctx, "default::Post")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	entries, err := s.List(ctx)
	require.NoError(t, err)
	var keys []string
	for _, e := range entries {
		keys = append(keys, e.Key)
	}
	assert.Equal(t, []string{"a", "c"}, keys)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Statements: 2, Refs: 2}, stats)

	n, err = s.Invalidate(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPruneAndPurge(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	old := testEntry("old")
	old.SchemaVersion = "v0"
	for _, e := range []Entry{old, testEntry("new")} {
		_, err := s.Put(ctx, e)
		require.NoError(t, err)
	}

	n, err := s.Prune(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	entries, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestNewEntryFromCompiledStatement(t *testing.T) {
	q, err := qlast.DecodeStatement([]byte(`User.friend_names`))
	require.NoError(t, err)
	stmt, err := compiler.Compile(testutil.Schema(), q,
		compiler.WithLogger(slog.New(slog.DiscardHandler)),
		compiler.WithIDGenerator(ir.NewFixedGenerator("compile-1")))
	require.NoError(t, err)

	key, err := ir.QueryKey("User.friend_names", "v1", ir.Obj())
	require.NoError(t, err)
	e, err := NewEntry(key, "User.friend_names", "v1", stmt)
	require.NoError(t, err)
	assert.Equal(t, stmt.Fingerprint, e.Fingerprint)
	assert.Equal(t, "compile-1", e.CompileID)
	assert.Equal(t, "std::str", e.ResultType)
	assert.Equal(t, "MANY", e.Cardinality)
	assert.Contains(t, e.Refs, "default::User")

	s := createTestStore(t)
	ctx := context.Background()
	_, err = s.Put(ctx, e)
	require.NoError(t, err)

	got, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, string(e.IR), string(got.IR))
	assert.Equal(t, e.Refs, got.Refs)

	n, err := s.Invalidate(ctx, "default::User")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
