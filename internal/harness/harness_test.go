package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixtureSchema = filepath.Join("..", "sdl", "testdata", "schema")

func TestScenarios(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	h := New()
	for _, path := range paths {
		s, err := LoadScenario(path)
		require.NoError(t, err, path)
		t.Run(s.Name, func(t *testing.T) {
			result, err := h.Run(s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestRunReportsMismatches(t *testing.T) {
	result, err := Run(&Scenario{
		Name:   "wrong",
		Schema: fixtureSchema,
		Query:  "User.friend_names",
		Expect: Expect{ResultType: "std::int64", Cardinality: "ONE"},
		Assertions: []Assertion{
			{Type: AssertRefsContain, Ref: "default::Post"},
			{Type: AssertPlanContains, Text: "no such node"},
		},
	})
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	assert.Equal(t, "result type: expected std::int64, got std::str", result.Errors[0])
	assert.Equal(t, "cardinality: expected ONE, got MANY", result.Errors[1])
	assert.Contains(t, result.Errors[2], "do not contain default::Post")
	assert.Contains(t, result.Errors[3], "plan does not contain")
}

func TestRunUnexpectedCompileError(t *testing.T) {
	result, err := Run(&Scenario{
		Name:   "unexpected",
		Schema: fixtureSchema,
		Query:  "User.emal",
		Expect: Expect{ResultType: "std::str"},
	})
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.NotNil(t, result.CompileError)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "unexpected compile error: ReferenceError [E201]")
}

func TestRunMissingExpectedError(t *testing.T) {
	result, err := Run(&Scenario{
		Name:   "missing",
		Schema: fixtureSchema,
		Query:  "User",
		Expect: Expect{Error: &ErrorExpect{Code: "E201"}},
	})
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Equal(t, []string{"expected error E201, compilation succeeded with default::User"}, result.Errors)
}

func TestRunWrongErrorCode(t *testing.T) {
	result, err := Run(&Scenario{
		Name:   "code",
		Schema: fixtureSchema,
		Query:  "User.emal",
		Expect: Expect{Error: &ErrorExpect{Code: "E205", Hint: "nope"}},
	})
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "error code: expected E205, got E201")
	assert.Equal(t, `error hint: expected "nope", got "did you mean 'email'?"`, result.Errors[1])
}

func TestRunFailsOnBadSchema(t *testing.T) {
	_, err := Run(&Scenario{
		Name:   "bad",
		Schema: filepath.Join("testdata", "missing"),
		Query:  "User",
		Expect: Expect{ResultType: "default::User"},
	})
	assert.ErrorContains(t, err, "load schema")
}

func TestHarnessCachesSchemas(t *testing.T) {
	h := New()
	for range 2 {
		_, err := h.Run(&Scenario{
			Name:   "cached",
			Schema: fixtureSchema,
			Query:  "User",
			Expect: Expect{ResultType: "default::User"},
		})
		require.NoError(t, err)
	}
	assert.Len(t, h.schemas, 1)
}

func TestRunIsDeterministic(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "sibling_inserts.yaml"))
	require.NoError(t, err)

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)
	assert.Equal(t, first.Plan, second.Plan)
	assert.Equal(t, first.Statement.Fingerprint, second.Statement.Fingerprint)
}
