package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/pathql/internal/diag"
	"github.com/roach88/pathql/internal/ir"
)

func checkError(r *Result, expect Expect, de *diag.Error) {
	want := expect.Error
	if want == nil {
		r.AddError(fmt.Sprintf("unexpected compile error: %s [%s]: %s", de.Kind, de.Code, de.Message))
		return
	}
	if string(de.Code) != want.Code {
		r.AddError(fmt.Sprintf("error code: expected %s, got %s (%s)", want.Code, de.Code, de.Message))
	}
	if want.Kind != "" && string(de.Kind) != want.Kind {
		r.AddError(fmt.Sprintf("error kind: expected %s, got %s", want.Kind, de.Kind))
	}
	if want.MessageContains != "" && !strings.Contains(de.Message, want.MessageContains) {
		r.AddError(fmt.Sprintf("error message %q does not contain %q", de.Message, want.MessageContains))
	}
	if want.Hint != "" && de.Hint != want.Hint {
		r.AddError(fmt.Sprintf("error hint: expected %q, got %q", want.Hint, de.Hint))
	}
}

func checkStatement(r *Result, expect Expect) {
	if expect.Error != nil {
		r.AddError(fmt.Sprintf("expected error %s, compilation succeeded with %s", expect.Error.Code, r.ResultType))
		return
	}
	if r.ResultType != expect.ResultType {
		r.AddError(fmt.Sprintf("result type: expected %s, got %s", expect.ResultType, r.ResultType))
	}
	if expect.Cardinality != "" && r.Cardinality != expect.Cardinality {
		r.AddError(fmt.Sprintf("cardinality: expected %s, got %s", expect.Cardinality, r.Cardinality))
	}
}

func checkAssertion(r *Result, a Assertion) {
	switch a.Type {
	case AssertPlanContains:
		if !strings.Contains(r.Plan, a.Text) {
			r.AddError(fmt.Sprintf("plan does not contain %q", a.Text))
		}
	case AssertPlanExcludes:
		if strings.Contains(r.Plan, a.Text) {
			r.AddError(fmt.Sprintf("plan contains %q", a.Text))
		}
	case AssertRefsContain:
		if !slices.Contains(r.Refs, a.Ref) {
			r.AddError(fmt.Sprintf("refs %v do not contain %s", r.Refs, a.Ref))
		}
	case AssertConflictChecks:
		if got := conflictChecks(r.Statement); got != a.Count {
			r.AddError(fmt.Sprintf("conflict checks: expected %d, got %d", a.Count, got))
		}
	default:
		r.AddError(fmt.Sprintf("unknown assertion type %q", a.Type))
	}
}

// conflictChecks counts the conflict checks of a top-level INSERT.
func conflictChecks(stmt *ir.Statement) int {
	if stmt == nil || stmt.Expr == nil {
		return 0
	}
	ins, ok := stmt.Expr.Expr.(*ir.InsertStmt)
	if !ok {
		return 0
	}
	return len(ins.ConflictChecks)
}
