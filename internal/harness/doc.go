// Package harness runs compile scenarios.
//
// A scenario is a YAML file naming a CUE schema, a query in the YAML query
// syntax, compiler options, and the outcome the compilation must have:
// either a result type and cardinality, or a structured error. Scenarios
// can also assert on the explain plan, the schema references, and the
// conflict checks of an INSERT.
//
// Runs are deterministic. Statement ids come from a fixed generator and
// compiler logging is discarded, so the plan text of a scenario can be
// compared against a golden file:
//
//	go test ./internal/harness -update
//
// regenerates the golden files under testdata/golden.
package harness
