package harness

import (
	"github.com/roach88/pathql/internal/diag"
	"github.com/roach88/pathql/internal/ir"
)

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true if the compilation matched Expect and every assertion.
	Pass bool `json:"pass"`

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	ResultType  string   `json:"result_type,omitempty"`
	Cardinality string   `json:"cardinality,omitempty"`
	Refs        []string `json:"refs,omitempty"`

	// Plan is the text rendering of the explain plan.
	Plan string `json:"plan,omitempty"`

	// CompileError is set when compilation failed with a structured
	// error.
	CompileError *diag.Error `json:"-"`

	Statement *ir.Statement `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
