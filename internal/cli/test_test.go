package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scenarioDir(t *testing.T) string {
	t.Helper()
	schemaPath, err := filepath.Abs(fixtureSchema)
	require.NoError(t, err)

	dir := t.TempDir()
	writeFile(t, dir, "users.yaml", `name: users
description: Scanning a type.
schema: `+schemaPath+`
query: User
expect:
  result_type: default::User
  cardinality: MANY
`)
	writeFile(t, dir, "typo.yaml", `name: typo
description: A misspelled pointer.
schema: `+schemaPath+`
query: User.emal
expect:
  error:
    code: E201
    hint: did you mean 'email'?
`)
	return dir
}

func TestTestCommandPasses(t *testing.T) {
	dir := scenarioDir(t)
	out, err := execute(t, "", "test", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ users")
	assert.Contains(t, out, "✓ typo")
	assert.Contains(t, out, "Test Summary: 2 passed, 0 failed, 2 total")
}

func TestTestCommandFilter(t *testing.T) {
	dir := scenarioDir(t)
	out, err := execute(t, "", "--format", "json", "test", dir, "--filter", "ty*")
	require.NoError(t, err)

	var result TestResult
	decodeResponse(t, out, &result)
	assert.Equal(t, 1, result.Total)
	require.Len(t, result.Scenarios, 1)
	assert.Equal(t, "typo", result.Scenarios[0].Name)
}

func TestTestCommandGoldenFiles(t *testing.T) {
	dir := scenarioDir(t)

	out, err := execute(t, "", "test", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ typo (golden updated)")

	golden, err := os.ReadFile(filepath.Join(dir, "golden", "typo.golden"))
	require.NoError(t, err)
	assert.Equal(t, "scenario: typo\n"+
		"error: ReferenceError [E201]: object type 'default::User' has no link or property 'emal'\n"+
		"hint: did you mean 'email'?\n", string(golden))

	_, err = execute(t, "", "test", dir)
	require.NoError(t, err)

	writeFile(t, filepath.Join(dir, "golden"), "users.golden", "scenario: users\nstale\n")
	out, err = execute(t, "", "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ users")
	assert.Contains(t, out, "golden file mismatch")
}

func TestTestCommandFailures(t *testing.T) {
	dir := scenarioDir(t)
	schemaPath, err := filepath.Abs(fixtureSchema)
	require.NoError(t, err)
	writeFile(t, dir, "wrong.yaml", `name: wrong
description: Expects the wrong type.
schema: `+schemaPath+`
query: User
expect:
  result_type: default::Post
`)
	writeFile(t, dir, "broken.yaml", "name: broken\nunknown_field: 1\n")

	out, err := execute(t, "", "--format", "json", "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var result TestResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 4, result.Total)
	assert.Equal(t, 2, result.Passed)
	assert.Equal(t, 2, result.Failed)
}

func TestTestCommandMissingDir(t *testing.T) {
	_, err := execute(t, "", "test", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
