package cli

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompilePlanText(t *testing.T) {
	out, err := execute(t, "", "compile", "--schema", fixtureSchema, "-e", "User")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "result: default::User MANY\n"), out)
	assert.Contains(t, out, "scan default::User")
}

func TestCompilePlanJSON(t *testing.T) {
	out, err := execute(t, "", "--format", "json", "compile", "--schema", fixtureSchema, "-e", "User.friend_names")
	require.NoError(t, err)

	var data struct {
		Fingerprint string         `json:"fingerprint"`
		ResultType  string         `json:"result_type"`
		Cardinality string         `json:"cardinality"`
		Refs        []string       `json:"refs"`
		Plan        map[string]any `json:"plan"`
		IR          any            `json:"ir"`
	}
	resp := decodeResponse(t, out, &data)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "std::str", data.ResultType)
	assert.Equal(t, "MANY", data.Cardinality)
	assert.Contains(t, data.Refs, "default::User")
	assert.NotEmpty(t, data.Fingerprint)
	assert.NotEmpty(t, data.Plan)
	assert.Nil(t, data.IR)
}

func TestCompileEmitIR(t *testing.T) {
	out, err := execute(t, "", "compile", "--schema", fixtureSchema, "--emit", "ir", "-e", "User")
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(out)), out)
	assert.True(t, strings.HasSuffix(out, "}\n"))
}

func TestCompileRejectsBadEmit(t *testing.T) {
	_, err := execute(t, "", "compile", "--schema", fixtureSchema, "--emit", "sql", "-e", "User")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCompileReadsFileAndStdin(t *testing.T) {
	path := writeFile(t, t.TempDir(), "q.yaml", "User.email\n")

	fromFile, err := execute(t, "", "compile", "--schema", fixtureSchema, path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(fromFile, "result: std::str"), fromFile)

	fromStdin, err := execute(t, "User.email\n", "compile", "--schema", fixtureSchema, "-")
	require.NoError(t, err)
	assert.Equal(t, fromFile, fromStdin)
}

func TestCompileQuerySourceErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no query", []string{"compile", "--schema", fixtureSchema}},
		{"file and expr", []string{"compile", "--schema", fixtureSchema, "-e", "User", "q.yaml"}},
		{"missing file", []string{"compile", "--schema", fixtureSchema, filepath.Join(t.TempDir(), "missing.yaml")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, "", tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

func TestCompileQueryErrorText(t *testing.T) {
	out, err := execute(t, "", "compile", "--schema", fixtureSchema, "-e", "User.emal")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "E201")
	assert.Contains(t, out, "ReferenceError [E201]: object type 'default::User' has no link or property 'emal'")
	assert.Contains(t, out, "= hint: did you mean 'email'?")
	assert.NotContains(t, out, "\x1b[", "colors are for terminals only")
}

func TestCompileQueryErrorJSON(t *testing.T) {
	out, err := execute(t, "", "--format", "json", "compile", "--schema", fixtureSchema, "-e", "User.emal")
	require.Error(t, err)

	resp := decodeResponse(t, out, nil)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E201", resp.Error.Code)

	details, ok := resp.Error.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ReferenceError", details["kind"])
	assert.Equal(t, "did you mean 'email'?", details["hint"])
}

func TestCompileSchemaErrors(t *testing.T) {
	_, err := execute(t, "", "compile", "--schema", filepath.Join(t.TempDir(), "missing"), "-e", "User")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "L002")

	bad := writeFile(t, t.TempDir(), "schema.cue", `schema: types: A: links: b: target: "Missing"`)
	out, err := execute(t, "", "compile", "--schema", bad, "-e", "A")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Schema invalid: 1 error(s)")
	assert.Contains(t, out, "L101")
}

func TestCompileWithCache(t *testing.T) {
	cache := filepath.Join(t.TempDir(), "cache.db")
	args := []string{"--format", "json", "--cache", cache, "compile", "--schema", fixtureSchema, "--emit", "ir", "-e", "User.friend_names"}

	type output struct {
		Key         string          `json:"key"`
		Fingerprint string          `json:"fingerprint"`
		ResultType  string          `json:"result_type"`
		Cached      bool            `json:"cached"`
		IR          json.RawMessage `json:"ir"`
	}

	out, err := execute(t, "", args...)
	require.NoError(t, err)
	var first output
	decodeResponse(t, out, &first)
	assert.False(t, first.Cached)
	assert.NotEmpty(t, first.Key)

	out, err = execute(t, "", args...)
	require.NoError(t, err)
	var second output
	decodeResponse(t, out, &second)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Key, second.Key)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.Equal(t, "std::str", second.ResultType)
	assert.JSONEq(t, string(first.IR), string(second.IR))

	// Options are part of the key.
	_, err = execute(t, "", "--cache", cache, "compile", "--schema", fixtureSchema, "--implicit-id", "-e", "User.friend_names")
	require.NoError(t, err)

	out, err = execute(t, "", "--format", "json", "--cache", cache, "cache", "stats")
	require.NoError(t, err)
	var stats struct {
		Statements int `json:"statements"`
	}
	decodeResponse(t, out, &stats)
	assert.Equal(t, 2, stats.Statements)
}
