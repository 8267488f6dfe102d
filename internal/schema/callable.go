package schema

import (
	"fmt"
	"strings"

	"github.com/roach88/pathql/internal/qlast"
	"github.com/roach88/pathql/internal/qltypes"
)

// Parameter of a function, operator or cast.
type Parameter struct {
	Name    string
	Type    Type
	Typemod qltypes.TypeModifier
	Kind    qltypes.ParameterKind
	Default qlast.Expr
}

// HasDefault reports whether the parameter may be omitted.
func (p Parameter) HasDefault() bool {
	return p.Default != nil
}

func (p Parameter) String() string {
	var b strings.Builder
	switch p.Kind {
	case qltypes.NamedOnlyParam:
		b.WriteString("NAMED ONLY ")
	case qltypes.VariadicParam:
		b.WriteString("VARIADIC ")
	}
	b.WriteString(p.Name)
	b.WriteString(": ")
	switch p.Typemod {
	case qltypes.OptionalType:
		b.WriteString("OPTIONAL ")
	case qltypes.SetOfType:
		b.WriteString("SET OF ")
	}
	b.WriteString(p.Type.DisplayName())
	if p.Default != nil {
		b.WriteString(" = <default>")
	}
	return b.String()
}

// Callable is anything overload resolution can pick: *Function, *Operator
// or *CastCallable.
type Callable interface {
	QualifiedName() Name
	Params() []Parameter
	ReturnType() Type
	ReturnTypemod() qltypes.TypeModifier
	IsAbstract() bool

	// HasInlinedDefaults reports whether omitted defaults are passed as
	// empty sets together with a bitmask argument.
	HasInlinedDefaults() bool

	// Signature renders the callable for diagnostics. It also serves as
	// a stable ordering key for candidates.
	Signature() string

	callableNode()
}

// Function is a schema function.
type Function struct {
	Name            Name
	Parameters      []Parameter
	Return          Type
	ReturnMod       qltypes.TypeModifier
	Abstract        bool
	Volatility      qltypes.Volatility
	InlinedDefaults bool

	// PreservesOptionality marks functions that return an empty set when
	// an OPTIONAL argument is empty.
	PreservesOptionality bool

	// Impl names the backend implementation.
	Impl string
}

func (f *Function) QualifiedName() Name                 { return f.Name }
func (f *Function) Params() []Parameter                 { return f.Parameters }
func (f *Function) ReturnType() Type                    { return f.Return }
func (f *Function) ReturnTypemod() qltypes.TypeModifier { return f.ReturnMod }
func (f *Function) IsAbstract() bool                    { return f.Abstract }
func (f *Function) HasInlinedDefaults() bool            { return f.InlinedDefaults }
func (*Function) callableNode()                         {}

func (f *Function) Signature() string {
	return fmt.Sprintf("function '%s(%s) -> %s'",
		f.Name, joinParams(f.Parameters), returnString(f.ReturnMod, f.Return))
}

// Operator is a schema operator such as std::= or std::+.
type Operator struct {
	Name       Name
	Kind       qltypes.OperatorKind
	Parameters []Parameter
	Return     Type
	ReturnMod  qltypes.TypeModifier
	Abstract   bool
	Volatility qltypes.Volatility

	// Impl names the backend operator or function.
	Impl string
}

func (o *Operator) QualifiedName() Name                 { return o.Name }
func (o *Operator) Params() []Parameter                 { return o.Parameters }
func (o *Operator) ReturnType() Type                    { return o.Return }
func (o *Operator) ReturnTypemod() qltypes.TypeModifier { return o.ReturnMod }
func (o *Operator) IsAbstract() bool                    { return o.Abstract }
func (*Operator) HasInlinedDefaults() bool              { return false }
func (*Operator) callableNode()                         {}

func (o *Operator) Signature() string {
	kind := "infix"
	if o.Kind == qltypes.Prefix {
		kind = "prefix"
	}
	return fmt.Sprintf("%s operator '%s(%s) -> %s'",
		kind, o.Name, joinParams(o.Parameters), returnString(o.ReturnMod, o.Return))
}

// CastCallable presents a cast as a one-parameter callable so casts can
// be ranked with the same resolver as functions.
type CastCallable struct {
	Cast *Cast
}

func (c *CastCallable) QualifiedName() Name { return c.Cast.Name() }

func (c *CastCallable) Params() []Parameter {
	return []Parameter{{Name: "val", Type: c.Cast.From}}
}

func (c *CastCallable) ReturnType() Type                  { return c.Cast.To }
func (*CastCallable) ReturnTypemod() qltypes.TypeModifier { return qltypes.SingletonType }
func (*CastCallable) IsAbstract() bool                    { return false }
func (*CastCallable) HasInlinedDefaults() bool            { return false }
func (*CastCallable) callableNode()                       {}

func (c *CastCallable) Signature() string {
	return fmt.Sprintf("cast from '%s' to '%s'", c.Cast.From.DisplayName(), c.Cast.To.DisplayName())
}

func joinParams(params []Parameter) string {
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = p.String()
	}
	return strings.Join(parts, ", ")
}

func returnString(mod qltypes.TypeModifier, t Type) string {
	switch mod {
	case qltypes.OptionalType:
		return "OPTIONAL " + t.DisplayName()
	case qltypes.SetOfType:
		return "SET OF " + t.DisplayName()
	default:
		return t.DisplayName()
	}
}
