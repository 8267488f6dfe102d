package ir

import (
	"github.com/roach88/pathql/internal/diag"
	"github.com/roach88/pathql/internal/qltypes"
	"github.com/roach88/pathql/internal/schema"
	"github.com/roach88/pathql/internal/scopetree"
)

// Statement is the result of compiling one query.
type Statement struct {
	Expr  *Set
	Scope *scopetree.Node

	// Cardinality of the result set.
	Cardinality qltypes.Cardinality

	// Views are the shape views derived while compiling, keyed by view
	// name.
	Views map[schema.Name]*schema.ObjectType

	// SchemaRefs lists every schema object the statement depends on,
	// sorted. Cache entries are invalidated through them.
	SchemaRefs []schema.Name

	// PointerCardinality records the inferred cardinality of computed
	// pointers, keyed by pointer key.
	PointerCardinality map[string]qltypes.Cardinality

	Warnings []*diag.Error

	// Schema is the schema the statement was compiled against,
	// including derived views.
	Schema *schema.Schema

	// Fingerprint is the content hash of the encoded statement.
	Fingerprint string

	// ID identifies this compilation.
	ID string
}

// ResultType is the type of the statement's result set.
func (s *Statement) ResultType() schema.Type {
	if s.Expr == nil {
		return nil
	}
	return s.Expr.Type
}
