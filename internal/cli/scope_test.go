package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeText(t *testing.T) {
	out, err := execute(t, "", "scope", "--schema", fixtureSchema, "-e", "User.friends")
	require.NoError(t, err)
	assert.Contains(t, out, "User")
	assert.Contains(t, out, "friends")
}

func TestScopeJSON(t *testing.T) {
	out, err := execute(t, "", "--format", "json", "scope", "--schema", fixtureSchema, "-e", "User.friends")
	require.NoError(t, err)

	var data ScopeOutput
	resp := decodeResponse(t, out, &data)
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, data.Fingerprint)
	assert.Contains(t, data.Scope, "friends")
}

func TestScopeQueryError(t *testing.T) {
	_, err := execute(t, "", "scope", "--schema", fixtureSchema, "-e", "Nope")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}
