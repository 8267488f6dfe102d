package compiler

import (
	"log/slog"

	"github.com/roach88/pathql/internal/diag"
	"github.com/roach88/pathql/internal/inference"
	"github.com/roach88/pathql/internal/ir"
	"github.com/roach88/pathql/internal/qltypes"
	"github.com/roach88/pathql/internal/schema"
	"github.com/roach88/pathql/internal/scopetree"
)

// PointerSpec is what a query declared about a computed pointer.
type PointerSpec struct {
	Cardinality qltypes.SchemaCardinality
	Required    bool
	Span        diag.Span
}

// Environment is the state shared by every context frame of one
// compilation. It is the only state that outlives a frame.
//
// The schema is never mutated: deriving a view or settling a computed
// pointer's cardinality produces a new *schema.Schema that replaces
// Schema. OrigSchema keeps the schema the compilation started from.
type Environment struct {
	Schema     *schema.Schema
	OrigSchema *schema.Schema
	Options    Options

	// SetTypes records the type of every set created by the compiler.
	SetTypes map[*ir.Set]schema.Type

	// InferredCardinality holds the settled cardinality of computed
	// pointers, by pointer key.
	InferredCardinality map[string]qltypes.Cardinality

	// PointerSpecifiedInfo holds declared cardinalities of computed
	// pointers, by pointer key.
	PointerSpecifiedInfo map[string]PointerSpec

	// PointerDerivationMap maps a computed pointer key to the keys of the
	// view pointers derived from it.
	PointerDerivationMap map[string][]string

	SchemaRefs map[schema.Name]struct{}
	ViewShapes map[schema.Name]*schema.ObjectType

	// DMLStmts lists the INSERT, UPDATE and DELETE sets compiled so far,
	// in order.
	DMLStmts []*ir.Set

	Warnings []*diag.Error

	PathScope  *scopetree.Node
	ScopeNodes map[int]*scopetree.Node

	queue       *completionQueue
	nextScopeID int
	logger      *slog.Logger
}

func newEnvironment(s *schema.Schema, opts Options) *Environment {
	root := scopetree.New()
	env := &Environment{
		Schema:               s,
		OrigSchema:           s,
		Options:              opts,
		SetTypes:             make(map[*ir.Set]schema.Type),
		InferredCardinality:  make(map[string]qltypes.Cardinality),
		PointerSpecifiedInfo: make(map[string]PointerSpec),
		PointerDerivationMap: make(map[string][]string),
		SchemaRefs:           make(map[schema.Name]struct{}),
		ViewShapes:           make(map[schema.Name]*schema.ObjectType),
		PathScope:            root,
		ScopeNodes:           make(map[int]*scopetree.Node),
		queue:                newCompletionQueue(),
		logger:               opts.Logger,
	}
	env.registerScope(root)
	return env
}

// Warn records a non-fatal diagnostic. It implements scopetree.Warner.
func (e *Environment) Warn(err *diag.Error) {
	e.Warnings = append(e.Warnings, err)
	e.logger.Warn("compiler warning", "code", string(err.Code), "message", err.Message, "span", err.Span.String())
}

// registerScope gives n a unique id and makes it reachable from sets
// through PathScopeID.
func (e *Environment) registerScope(n *scopetree.Node) *scopetree.Node {
	e.nextScopeID++
	n.UniqueID = e.nextScopeID
	e.ScopeNodes[n.UniqueID] = n
	return n
}

// updateSchema installs a schema derived from the current one.
func (e *Environment) updateSchema(s *schema.Schema) {
	e.Schema = s
}

// addSchemaRef records a dependency on a schema type. Views are recorded
// as the type they project and collections by their element types.
func (e *Environment) addSchemaRef(t schema.Type) {
	switch t := t.(type) {
	case *schema.ObjectType:
		if t.View {
			if !t.ViewOf.IsZero() {
				e.SchemaRefs[t.ViewOf] = struct{}{}
			}
			return
		}
		e.SchemaRefs[t.Name] = struct{}{}
	case *schema.ScalarType:
		e.SchemaRefs[t.Name] = struct{}{}
	case *schema.ArrayType, *schema.TupleType, *schema.RangeType, *schema.MultirangeType:
		for _, st := range schema.Subtypes(t) {
			e.addSchemaRef(st)
		}
	}
}

// addNameRef records a dependency on a named schema object such as a
// function or constraint.
func (e *Environment) addNameRef(n schema.Name) {
	if !n.IsZero() {
		e.SchemaRefs[n] = struct{}{}
	}
}

// inferenceEnv exposes the environment to cardinality inference.
func (e *Environment) inferenceEnv() inference.Env {
	return inference.Env{
		Schema: e.Schema,
		Scopes: e.ScopeNodes,
		PointerCardinality: func(key string) (qltypes.Cardinality, bool) {
			c, ok := e.InferredCardinality[key]
			return c, ok
		},
		Warn: e.Warn,
	}
}
