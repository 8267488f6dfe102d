// Package compiler turns query ASTs into IR statements.
//
// Compile walks the statement top-down. Every path becomes an ir.Set with
// a PathID attached to the scope tree; calls and casts are resolved
// against the schema lattice; cardinalities of computed pointers are
// settled once the statement is complete. A compilation is
// single-threaded and owns its Environment; the schema it is given is
// never mutated.
package compiler

import (
	"slices"
	"strings"

	"github.com/roach88/pathql/internal/diag"
	"github.com/roach88/pathql/internal/inference"
	"github.com/roach88/pathql/internal/ir"
	"github.com/roach88/pathql/internal/qlast"
	"github.com/roach88/pathql/internal/schema"
)

// Compile compiles stmt against s.
//
// The returned statement carries the schema extended with the views the
// query derived. Errors are *diag.Error values.
func Compile(s *schema.Schema, stmt qlast.Statement, opts ...Option) (*ir.Statement, error) {
	o := newOptions(opts)
	env := newEnvironment(s, o)
	ctx := newContext(env)

	env.logger.Debug("compiling statement", "stmt", stmtKind(stmt), "module", o.Module)

	set, err := ctx.compileStatement(stmt)
	if err != nil {
		return nil, err
	}

	n, err := env.queue.drain()
	if err != nil {
		return nil, err
	}
	env.logger.Debug("completion work drained", "count", n, "pending", ctx.pending.Len())
	if ctx.pending.Len() > 0 {
		return nil, diag.NewInternalError("%d computed pointers left without cardinality", ctx.pending.Len())
	}

	card, err := inference.New(env.inferenceEnv()).Infer(set, env.PathScope)
	if err != nil {
		return nil, err
	}

	if !o.AllowGenericTypeOutput && schema.IsPolymorphic(set.Type) {
		return nil, diag.NewQueryError(diag.ErrCodeIndeterminateType, set.Span,
			"expression returns value of indeterminate type").
			WithHint("Consider using an explicit type cast.")
	}

	if err := env.PathScope.ValidateUniqueIDs(); err != nil {
		return nil, diag.NewInternalError("scope tree: %v", err)
	}

	refs := make([]schema.Name, 0, len(env.SchemaRefs))
	for n := range env.SchemaRefs {
		refs = append(refs, n)
	}
	slices.SortFunc(refs, func(a, b schema.Name) int { return strings.Compare(a.String(), b.String()) })

	out := &ir.Statement{
		Expr:               set,
		Scope:              env.PathScope,
		Cardinality:        card,
		Views:              env.ViewShapes,
		SchemaRefs:         refs,
		PointerCardinality: env.InferredCardinality,
		Warnings:           env.Warnings,
		Schema:             env.Schema,
	}
	fp, err := ir.Fingerprint(out)
	if err != nil {
		return nil, diag.NewInternalError("fingerprint: %v", err)
	}
	out.Fingerprint = fp
	out.ID = o.IDGenerator.Generate()

	env.logger.Debug("statement compiled", "fingerprint", fp, "cardinality", card.String(), "refs", len(refs))
	return out, nil
}

func stmtKind(st qlast.Statement) string {
	switch st.(type) {
	case *qlast.SelectQuery:
		return "select"
	case *qlast.ForQuery:
		return "for"
	case *qlast.InsertQuery:
		return "insert"
	case *qlast.UpdateQuery:
		return "update"
	case *qlast.DeleteQuery:
		return "delete"
	default:
		return "unknown"
	}
}
