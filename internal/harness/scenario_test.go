package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenarioResolvesSchemaPath(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "select_users.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "select_users", s.Name)
	assert.Equal(t, filepath.Clean(filepath.Join("..", "sdl", "testdata", "schema")), s.Schema)
	assert.Equal(t, "default::User", s.Expect.ResultType)
	require.Len(t, s.Assertions, 2)
	assert.Equal(t, AssertRefsContain, s.Assertions[0].Type)
}

func TestLoadScenarioMissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join("testdata", "scenarios", "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read scenario file")
}

func TestParseScenarioRejectsUnknownFields(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: typo
description: d
schema: s
query: User
expect: {result_type: default::User}
assertion: []
`))
	assert.ErrorContains(t, err, "failed to parse YAML")
}

func TestParseScenarioValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing name",
			yaml: `{description: d, schema: s, query: q, expect: {result_type: t}}`,
			want: "name is required",
		},
		{
			name: "missing description",
			yaml: `{name: n, schema: s, query: q, expect: {result_type: t}}`,
			want: "description is required",
		},
		{
			name: "missing schema",
			yaml: `{name: n, description: d, query: q, expect: {result_type: t}}`,
			want: "schema is required",
		},
		{
			name: "missing query",
			yaml: `{name: n, description: d, schema: s, expect: {result_type: t}}`,
			want: "query is required",
		},
		{
			name: "empty expect",
			yaml: `{name: n, description: d, schema: s, query: q}`,
			want: "either result_type or error",
		},
		{
			name: "error and result type",
			yaml: `{name: n, description: d, schema: s, query: q, expect: {result_type: t, error: {code: E201}}}`,
			want: "excludes result_type",
		},
		{
			name: "error without code",
			yaml: `{name: n, description: d, schema: s, query: q, expect: {error: {kind: ReferenceError}}}`,
			want: "code is required",
		},
		{
			name: "unknown kind",
			yaml: `{name: n, description: d, schema: s, query: q, expect: {error: {code: E201, kind: Oops}}}`,
			want: "unknown error kind",
		},
		{
			name: "unknown cardinality",
			yaml: `{name: n, description: d, schema: s, query: q, expect: {result_type: t, cardinality: SOME}}`,
			want: "unknown cardinality",
		},
		{
			name: "unknown assertion",
			yaml: `{name: n, description: d, schema: s, query: q, expect: {result_type: t}, assertions: [{type: nope}]}`,
			want: "unknown assertion type",
		},
		{
			name: "plan assertion without text",
			yaml: `{name: n, description: d, schema: s, query: q, expect: {result_type: t}, assertions: [{type: plan_contains}]}`,
			want: "needs text",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
