// Package qlast defines the query AST consumed by the compiler and a YAML
// decoder for it.
//
// Every syntactic category is a closed sum type: the implementations of
// Expr, PathStep and Statement are the types in this file, sealed by
// unexported marker methods. Consumers switch over the concrete types and
// treat anything else as an internal error.
package qlast

import (
	"github.com/roach88/pathql/internal/diag"
	"github.com/roach88/pathql/internal/qltypes"
)

// Base carries the source span of a node.
type Base struct {
	Loc diag.Span
}

// Pos returns the node's source span.
func (b Base) Pos() diag.Span { return b.Loc }

// Expr is any expression node.
type Expr interface {
	Pos() diag.Span
	exprNode()
}

// Statement is a query statement. Statements are also expressions, since
// they nest as subqueries.
type Statement interface {
	Expr
	stmtNode()
}

// PathStep is one step of a Path.
type PathStep interface {
	Pos() diag.Span
	stepNode()
}

// ObjectRef names a type, a WITH alias or a FOR iterator at the start of
// a path.
type ObjectRef struct {
	Base
	Module string
	Name   string
}

func (*ObjectRef) stepNode() {}

// QualifiedName renders the reference as written.
func (r *ObjectRef) QualifiedName() string {
	if r.Module == "" {
		return r.Name
	}
	return r.Module + "::" + r.Name
}

// Ptr is a pointer step: .name, .<name (backward) or @name (link
// property).
type Ptr struct {
	Base
	Name      string
	Direction qltypes.PointerDirection
	LinkProp  bool
}

func (*Ptr) stepNode() {}

// TypeIntersection is a [is Type] step.
type TypeIntersection struct {
	Base
	Type *TypeName
}

func (*TypeIntersection) stepNode() {}

// Anchor is a special path root such as __subject__ or __source__.
type Anchor struct {
	Base
	Name string
}

func (*Anchor) stepNode() {}

// Path is a chain of steps. A partial path (".name") starts at the
// innermost partial path prefix.
type Path struct {
	Base
	Steps   []PathStep
	Partial bool
}

func (*Path) exprNode() {}

// StringConstant is a string literal.
type StringConstant struct {
	Base
	Value string
}

func (*StringConstant) exprNode() {}

// IntegerConstant is an integer literal. Value keeps the source text.
type IntegerConstant struct {
	Base
	Value string
}

func (*IntegerConstant) exprNode() {}

// FloatConstant is a floating point literal.
type FloatConstant struct {
	Base
	Value string
}

func (*FloatConstant) exprNode() {}

// BooleanConstant is true or false.
type BooleanConstant struct {
	Base
	Value bool
}

func (*BooleanConstant) exprNode() {}

// Set is a set literal. An empty Set is the empty set {}.
type Set struct {
	Base
	Elements []Expr
}

func (*Set) exprNode() {}

// Array is an array literal.
type Array struct {
	Base
	Elements []Expr
}

func (*Array) exprNode() {}

// Tuple is an unnamed tuple literal.
type Tuple struct {
	Base
	Elements []Expr
}

func (*Tuple) exprNode() {}

// TupleElement is one element of a NamedTuple.
type TupleElement struct {
	Name string
	Val  Expr
}

// NamedTuple is a tuple literal with named elements.
type NamedTuple struct {
	Base
	Elements []TupleElement
}

func (*NamedTuple) exprNode() {}

// TypeCast is <Type>Expr, optionally <required Type> or <optional Type>.
type TypeCast struct {
	Base
	Type        *TypeName
	Expr        Expr
	Cardinality qltypes.CardinalityModifier
}

func (*TypeCast) exprNode() {}

// KeywordArg is a named argument of a function call.
type KeywordArg struct {
	Name string
	Val  Expr
}

// FunctionCall is func(args..., name := val...).
type FunctionCall struct {
	Base
	Func   string
	Args   []Expr
	Kwargs []KeywordArg
}

func (*FunctionCall) exprNode() {}

// BinOp is an infix operator application.
type BinOp struct {
	Base
	Op    string
	Left  Expr
	Right Expr
}

func (*BinOp) exprNode() {}

// UnaryOp is a prefix operator application.
type UnaryOp struct {
	Base
	Op      string
	Operand Expr
}

func (*UnaryOp) exprNode() {}

// IfElse is "IfExpr IF Condition ELSE ElseExpr".
type IfElse struct {
	Base
	Condition Expr
	IfExpr    Expr
	ElseExpr  Expr
}

func (*IfElse) exprNode() {}

// ShapeElement is one element of a shape. Compexpr is set for computed
// elements and for values written by INSERT and UPDATE.
type ShapeElement struct {
	Base
	Name     string
	LinkProp bool
	Compexpr Expr
	Elements []*ShapeElement

	// Cardinality is the declared cardinality of a computed element, or
	// zero when undeclared.
	Cardinality qltypes.SchemaCardinality
	Required    bool
}

// Shape is Expr { elements }.
type Shape struct {
	Base
	Expr     Expr
	Elements []*ShapeElement
}

func (*Shape) exprNode() {}

// DetachedExpr is DETACHED Expr.
type DetachedExpr struct {
	Base
	Expr Expr
}

func (*DetachedExpr) exprNode() {}

// Alias is a WITH binding.
type Alias struct {
	Name string
	Expr Expr
}

// SortExpr is an ORDER BY item.
type SortExpr struct {
	Path       Expr
	Descending bool
}

// SelectQuery is SELECT Result [FILTER Where] [ORDER BY ...] [OFFSET]
// [LIMIT].
type SelectQuery struct {
	Base
	Aliases     []*Alias
	Result      Expr
	ResultAlias string
	Where       Expr
	OrderBy     []*SortExpr
	Offset      Expr
	Limit       Expr

	// Implicit marks a SELECT wrapped around a bare expression.
	Implicit bool
}

func (*SelectQuery) exprNode() {}
func (*SelectQuery) stmtNode() {}

// ForQuery is FOR IteratorAlias IN Iterator UNION Result.
type ForQuery struct {
	Base
	Aliases       []*Alias
	IteratorAlias string
	Iterator      Expr
	Result        Expr
	Optional      bool
}

func (*ForQuery) exprNode() {}
func (*ForQuery) stmtNode() {}

// UnlessConflict is the UNLESS CONFLICT [ON On] [ELSE Else] clause.
type UnlessConflict struct {
	Base
	On   Expr
	Else Expr
}

// InsertQuery is INSERT Subject { Shape } [UNLESS CONFLICT ...].
type InsertQuery struct {
	Base
	Aliases        []*Alias
	Subject        *ObjectRef
	Shape          []*ShapeElement
	UnlessConflict *UnlessConflict
}

func (*InsertQuery) exprNode() {}
func (*InsertQuery) stmtNode() {}

// UpdateQuery is UPDATE Subject [FILTER Where] SET { Shape }.
type UpdateQuery struct {
	Base
	Aliases []*Alias
	Subject Expr
	Where   Expr
	Shape   []*ShapeElement
}

func (*UpdateQuery) exprNode() {}
func (*UpdateQuery) stmtNode() {}

// DeleteQuery is DELETE Subject [FILTER Where].
type DeleteQuery struct {
	Base
	Aliases []*Alias
	Subject Expr
	Where   Expr
}

func (*DeleteQuery) exprNode() {}
func (*DeleteQuery) stmtNode() {}

// StatementAliases returns the WITH bindings of a statement.
func StatementAliases(s Statement) []*Alias {
	switch s := s.(type) {
	case *SelectQuery:
		return s.Aliases
	case *ForQuery:
		return s.Aliases
	case *InsertQuery:
		return s.Aliases
	case *UpdateQuery:
		return s.Aliases
	case *DeleteQuery:
		return s.Aliases
	default:
		return nil
	}
}
