package ir

import (
	"github.com/roach88/pathql/internal/diag"
	"github.com/roach88/pathql/internal/pathid"
	"github.com/roach88/pathql/internal/qltypes"
	"github.com/roach88/pathql/internal/schema"
)

// Expr is the closed set of IR expressions. Every expression is wrapped
// in a *Set, which carries the path identity and scope of its value.
type Expr interface {
	exprNode()
}

// Set is a compiled set-valued expression.
type Set struct {
	PathID *pathid.PathID
	Type   schema.Type
	Expr   Expr

	// PathScopeID is the unique id of the scope node the set was
	// compiled in, or 0 when it is bound wherever it is referenced.
	PathScopeID int

	// Shape lists the elements projected from an object set.
	Shape []*ShapeElement

	// Anchor names the set when it was bound to an anchor such as
	// __subject__.
	Anchor string

	// Optional is set on sets that are referenced as OPTIONAL arguments.
	Optional bool

	Span diag.Span
}

// Step returns the path step that produced the set, if any.
func (s *Set) Step() *PathStep {
	step, _ := s.Expr.(*PathStep)
	return step
}

// Source is the set a path step or type intersection starts from.
func (s *Set) Source() *Set {
	switch e := s.Expr.(type) {
	case *PathStep:
		return e.Source
	case *TypeIntersection:
		return e.Source
	case *TupleIndirection:
		return e.Source
	default:
		return nil
	}
}

// ShapeOp says how a shape element was produced.
type ShapeOp int

const (
	ShapeMaterialize ShapeOp = iota
	ShapeAssign
	ShapeAppend
	ShapeSubtract
)

func (op ShapeOp) String() string {
	switch op {
	case ShapeAssign:
		return ":="
	case ShapeAppend:
		return "+="
	case ShapeSubtract:
		return "-="
	default:
		return ""
	}
}

// ShapeElement is one projected pointer of a shape.
type ShapeElement struct {
	Name        string
	Set         *Set
	Op          ShapeOp
	Cardinality qltypes.Cardinality
	Computed    bool
	Implicit    bool
}

// TypeRoot scans every object of a type, or stands for a free scalar
// root.
type TypeRoot struct {
	Type schema.Type
}

// PathStep follows a pointer from Source.
type PathStep struct {
	Source    *Set
	Ptr       *pathid.PtrRef
	Direction qltypes.PointerDirection

	// Computed steps evaluate the pointer's expression in place. Body is
	// the compiled expression, with Source as its partial path prefix.
	Computed bool
	Body     *Set
}

// TypeIntersection narrows Source to objects of Type.
type TypeIntersection struct {
	Source *Set
	Type   schema.Type
}

// ConstKind distinguishes literal constants.
type ConstKind int

const (
	StringConst ConstKind = iota
	IntegerConst
	FloatConst
	BooleanConst
	BytesConst
)

func (k ConstKind) String() string {
	switch k {
	case IntegerConst:
		return "int"
	case FloatConst:
		return "float"
	case BooleanConst:
		return "bool"
	case BytesConst:
		return "bytes"
	default:
		return "str"
	}
}

// Constant is a literal. Value keeps the literal text; bytes are hex.
type Constant struct {
	Kind  ConstKind
	Value string
	Type  schema.Type
}

// EmptySet is {} of the enclosing set's type.
type EmptySet struct{}

// TupleElement is one element of a tuple constructor.
type TupleElement struct {
	Name string
	Val  *Set
}

// Tuple constructs a tuple.
type Tuple struct {
	Elements []TupleElement
	Named    bool
}

// Array constructs an array.
type Array struct {
	Elements []*Set
}

// TupleIndirection reads one element of a tuple.
type TupleIndirection struct {
	Source *Set
	Name   string
}

// CallArg is one argument of a function or operator call.
type CallArg struct {
	Set       *Set
	Param     string
	Typemod   qltypes.TypeModifier
	IsDefault bool
}

// FunctionCall calls a schema function.
type FunctionCall struct {
	Func         schema.Name
	Impl         string
	Args         []CallArg
	ReturnType   schema.Type
	Typemod      qltypes.TypeModifier
	Volatility   qltypes.Volatility
	NullArgs     []string
	DefaultsMask []byte

	// VariadicArgID is -1 for non-variadic functions.
	VariadicArgID    int
	VariadicArgCount int

	PreservesOptionality bool
}

// OperatorCall applies a schema operator.
type OperatorCall struct {
	Op         schema.Name
	Impl       string
	Kind       qltypes.OperatorKind
	Args       []CallArg
	ReturnType schema.Type
	Typemod    qltypes.TypeModifier
}

// TypeCast converts Expr from one type to another.
type TypeCast struct {
	Expr *Set
	From schema.Type
	To   schema.Type

	// Cast is the schema cast used, nil for inheritance casts.
	Cast *schema.Cast

	// InheritanceCast marks casts between a type and its ancestor or
	// between scalars sharing a concrete base; they need no conversion.
	InheritanceCast bool

	// Cardinality is the REQUIRED/OPTIONAL modifier of the cast.
	Cardinality qltypes.CardinalityModifier

	// SourceCardinality is the inferred cardinality of Expr, filled in
	// for REQUIRED casts once the statement is complete.
	SourceCardinality qltypes.Cardinality

	// ErrorMessageContext locates the cast inside a larger conversion,
	// for example "in array elements, at tuple element 'x', ".
	ErrorMessageContext string
}

// Required reports whether the cast demands a non-empty input.
func (c *TypeCast) Required() bool {
	return c.Cardinality == qltypes.CardModRequired
}

// AssertsExistence reports whether a REQUIRED cast must check for an
// empty input at run time, that is unless its input is known non-empty.
func (c *TypeCast) AssertsExistence() bool {
	return c.Required() && (c.SourceCardinality == qltypes.CardinalityUnknown || c.SourceCardinality.CanBeZero())
}

// IfElse is a conditional expression.
type IfElse struct {
	Cond *Set
	Then *Set
	Else *Set
}

// SortExpr is one ORDER BY key.
type SortExpr struct {
	Expr      *Set
	Desc      bool
	NullsLast bool
}

// SelectStmt is SELECT ... FILTER ... ORDER BY ... OFFSET ... LIMIT.
type SelectStmt struct {
	Result   *Set
	Where    *Set
	OrderBy  []SortExpr
	Offset   *Set
	Limit    *Set
	Implicit bool

	// Bindings are the WITH aliases bound by the statement.
	Bindings []*Set
}

// ForStmt is FOR x IN iterator UNION result.
type ForStmt struct {
	Iterator *Set
	Result   *Set
	Optional bool
}

// OnConflictClause is a conflict check synthesized from an exclusive
// constraint.
type OnConflictClause struct {
	Constraint schema.Name

	// Subject is the type whose objects the check scans.
	Subject schema.Name

	SelectIR *Set
	ElseIR   *Set

	// AlwaysCheck forces the check at run time even when the statement
	// cannot conflict with itself, because the constraint is inherited
	// or the subject has subtypes.
	AlwaysCheck bool
}

// InsertStmt is INSERT T { ... } [UNLESS CONFLICT ...].
type InsertStmt struct {
	Subject        *Set
	OnConflict     *OnConflictClause
	ConflictChecks []*OnConflictClause
}

// UpdateStmt is UPDATE T FILTER ... SET { ... }.
type UpdateStmt struct {
	Subject        *Set
	Where          *Set
	ConflictChecks []*OnConflictClause
}

// DeleteStmt is DELETE T FILTER ....
type DeleteStmt struct {
	Subject *Set
	Where   *Set
}

func (*TypeRoot) exprNode()         {}
func (*PathStep) exprNode()         {}
func (*TypeIntersection) exprNode() {}
func (*Constant) exprNode()         {}
func (*EmptySet) exprNode()         {}
func (*Tuple) exprNode()            {}
func (*Array) exprNode()            {}
func (*TupleIndirection) exprNode() {}
func (*FunctionCall) exprNode()     {}
func (*OperatorCall) exprNode()     {}
func (*TypeCast) exprNode()         {}
func (*IfElse) exprNode()           {}
func (*SelectStmt) exprNode()       {}
func (*ForStmt) exprNode()          {}
func (*InsertStmt) exprNode()       {}
func (*UpdateStmt) exprNode()       {}
func (*DeleteStmt) exprNode()       {}

// IsEmpty reports whether s is the empty set, possibly behind casts.
func IsEmpty(s *Set) bool {
	switch e := s.Expr.(type) {
	case *EmptySet:
		return true
	case *TypeCast:
		return IsEmpty(e.Expr)
	default:
		return false
	}
}

// IsDML reports whether e modifies data.
func IsDML(e Expr) bool {
	switch e.(type) {
	case *InsertStmt, *UpdateStmt, *DeleteStmt:
		return true
	default:
		return false
	}
}
