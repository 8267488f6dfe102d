package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGoldenCompileError(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "unknown_pointer.yaml"))
	require.NoError(t, err)

	result, err := RunWithGolden(t, s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestSnapshotOfPlan(t *testing.T) {
	got := Snapshot("p", &Result{Plan: "result: std::str ONE\n"})
	assert.Equal(t, "scenario: p\nresult: std::str ONE\n", string(got))
}
