package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot renders the outcome of a run for golden comparison: the plan
// text, or the code, message and hint of a compile error.
func Snapshot(name string, r *Result) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n", name)
	if de := r.CompileError; de != nil {
		fmt.Fprintf(&b, "error: %s [%s]: %s\n", de.Kind, de.Code, de.Message)
		if de.Hint != "" {
			fmt.Fprintf(&b, "hint: %s\n", de.Hint)
		}
		return []byte(b.String())
	}
	b.WriteString(r.Plan)
	return []byte(b.String())
}

// RunWithGolden runs a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// The returned error covers failures to run the scenario. Expectation
// failures are in the Result.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, Snapshot(scenario.Name, result))
	return result, nil
}
