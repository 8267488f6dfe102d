package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckValidSchema(t *testing.T) {
	out, err := execute(t, "", "check", "--schema", fixtureSchema)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Schema valid: module default,")
	assert.Contains(t, out, "1 file(s)")
}

func TestCheckValidSchemaJSON(t *testing.T) {
	out, err := execute(t, "", "--format", "json", "check", "--schema", fixtureSchema)
	require.NoError(t, err)

	var result CheckResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "default", result.Module)
	assert.Equal(t, 1, result.Files)
	assert.Len(t, result.Digest, 64)
	assert.Contains(t, result.Types, "User")
	assert.Empty(t, result.Queries)
}

func TestCheckReportsEverySchemaError(t *testing.T) {
	bad := writeFile(t, t.TempDir(), "schema.cue", `schema: types: A: links: {
	b: target: "Missing1"
	c: target: "Missing2"
}`)
	out, err := execute(t, "", "check", "--schema", bad)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Schema invalid: 2 error(s)")
	assert.Contains(t, out, "Missing1")
	assert.Contains(t, out, "Missing2")
}

func TestCheckCompilesQueryFiles(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.yaml", "User.friend_names\n")
	bad := writeFile(t, dir, "bad.yaml", "User.emal\n")

	out, err := execute(t, "", "check", "--schema", fixtureSchema, good, bad)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "1 query file(s) failed")
	assert.Contains(t, out, "✓ "+good+": std::str MANY")
	assert.Contains(t, out, "✗ "+bad)
	assert.Contains(t, out, "  ReferenceError [E201]")
	assert.Contains(t, out, "✓ Schema valid")
}

func TestCheckQueryFilesJSON(t *testing.T) {
	dir := t.TempDir()
	bad := writeFile(t, dir, "bad.yaml", "User.emal\n")

	out, err := execute(t, "", "--format", "json", "check", "--schema", fixtureSchema, bad)
	require.Error(t, err)

	var result CheckResult
	decodeResponse(t, out, &result)
	require.Len(t, result.Queries, 1)
	assert.False(t, result.Queries[0].Pass)
	assert.Equal(t, "E201", result.Queries[0].Code)
}

func TestCheckInheritanceCycle(t *testing.T) {
	bad := writeFile(t, t.TempDir(), "schema.cue", `schema: types: {
	A: extending: ["B"]
	B: extending: ["A"]
}`)
	out, err := execute(t, "", "--format", "json", "check", "--schema", bad)
	require.Error(t, err)

	resp := decodeResponse(t, out, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "L102", resp.Error.Code)
	details, ok := resp.Error.Details.([]any)
	require.True(t, ok)
	require.Len(t, details, 1)
	assert.Contains(t, details[0], "inheritance cycle: A -> B -> A")
}
