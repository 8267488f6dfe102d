package compiler

import (
	"strconv"

	"github.com/roach88/pathql/internal/diag"
	"github.com/roach88/pathql/internal/ir"
	"github.com/roach88/pathql/internal/qlast"
	"github.com/roach88/pathql/internal/qltypes"
	"github.com/roach88/pathql/internal/schema"
)

// compileExpr compiles one expression in the current frame.
func (c *Context) compileExpr(e qlast.Expr) (*ir.Set, error) {
	switch e := e.(type) {
	case *qlast.Path:
		return c.compilePath(e)

	case *qlast.StringConstant:
		return c.constant(ir.StringConst, e.Value, "str", e.Pos()), nil

	case *qlast.IntegerConstant:
		if _, err := strconv.ParseInt(e.Value, 10, 64); err != nil {
			return nil, diag.NewQueryError(diag.ErrCodeInvalidArgument, e.Pos(),
				"integer literal %s is out of range for std::int64", e.Value)
		}
		return c.constant(ir.IntegerConst, e.Value, "int64", e.Pos()), nil

	case *qlast.FloatConstant:
		if _, err := strconv.ParseFloat(e.Value, 64); err != nil {
			return nil, diag.NewQueryError(diag.ErrCodeInvalidArgument, e.Pos(),
				"invalid float literal %s", e.Value)
		}
		return c.constant(ir.FloatConst, e.Value, "float64", e.Pos()), nil

	case *qlast.BooleanConstant:
		return c.constant(ir.BooleanConst, strconv.FormatBool(e.Value), "bool", e.Pos()), nil

	case *qlast.Set:
		return c.compileSetLiteral(e)

	case *qlast.Array:
		return c.compileArray(e)

	case *qlast.Tuple:
		els := make([]ir.TupleElement, len(e.Elements))
		types := make([]schema.Type, len(e.Elements))
		for i, x := range e.Elements {
			v, err := c.Enter(ModeNewScope).compileExpr(x)
			if err != nil {
				return nil, err
			}
			els[i] = ir.TupleElement{Name: strconv.Itoa(i), Val: v}
			types[i] = v.Type
		}
		return c.exprSet(schema.NewTuple(types...), &ir.Tuple{Elements: els}, e.Pos()), nil

	case *qlast.NamedTuple:
		els := make([]ir.TupleElement, len(e.Elements))
		tels := make([]schema.TupleElement, len(e.Elements))
		seen := make(map[string]bool, len(e.Elements))
		for i, x := range e.Elements {
			if seen[x.Name] {
				return nil, diag.NewQueryError(diag.ErrCodeQuery, e.Pos(),
					"named tuple has duplicate field '%s'", x.Name)
			}
			seen[x.Name] = true
			v, err := c.Enter(ModeNewScope).compileExpr(x.Val)
			if err != nil {
				return nil, err
			}
			els[i] = ir.TupleElement{Name: x.Name, Val: v}
			tels[i] = schema.TupleElement{Name: x.Name, Type: v.Type}
		}
		return c.exprSet(schema.NewNamedTuple(tels...), &ir.Tuple{Elements: els, Named: true}, e.Pos()), nil

	case *qlast.TypeCast:
		return c.compileTypeCast(e)

	case *qlast.FunctionCall:
		return c.compileFunctionCall(e)

	case *qlast.BinOp:
		return c.compileOperator(e.Op, qltypes.Infix, []qlast.Expr{e.Left, e.Right}, e.Pos())

	case *qlast.UnaryOp:
		return c.compileOperator(e.Op, qltypes.Prefix, []qlast.Expr{e.Operand}, e.Pos())

	case *qlast.IfElse:
		return c.compileIfElse(e)

	case *qlast.Shape:
		src, err := c.compileExpr(e.Expr)
		if err != nil {
			return nil, err
		}
		return c.applyShape(src, e.Elements, e.Pos())

	case *qlast.DetachedExpr:
		return c.Enter(ModeDetached).compileExpr(e.Expr)

	case qlast.Statement:
		return c.compileStatement(e)

	default:
		return nil, diag.NewInternalError("unexpected expression %T", e)
	}
}

func (c *Context) stdType(name string) schema.Type {
	return c.env.Schema.MustType(schema.StdName(name))
}

func (c *Context) constant(kind ir.ConstKind, value, typ string, span diag.Span) *ir.Set {
	t := c.stdType(typ)
	c.env.addSchemaRef(t)
	return c.exprSet(t, &ir.Constant{Kind: kind, Value: value, Type: t}, span)
}

// compileSetLiteral turns {a, b, c} into a UNION chain.
func (c *Context) compileSetLiteral(e *qlast.Set) (*ir.Set, error) {
	switch len(e.Elements) {
	case 0:
		return c.emptySet(schema.AnyType, e.Pos()), nil
	case 1:
		return c.compileExpr(e.Elements[0])
	}
	var acc qlast.Expr = e.Elements[0]
	for _, el := range e.Elements[1:] {
		acc = &qlast.BinOp{Base: qlast.Base{Loc: e.Pos()}, Op: "UNION", Left: acc, Right: el}
	}
	return c.compileExpr(acc)
}

func (c *Context) compileArray(e *qlast.Array) (*ir.Set, error) {
	if len(e.Elements) == 0 {
		t := &schema.ArrayType{Element: schema.AnyType}
		return c.exprSet(t, &ir.Array{}, e.Pos()), nil
	}
	els := make([]*ir.Set, len(e.Elements))
	var common schema.Type
	for i, x := range e.Elements {
		v, err := c.Enter(ModeNewScope).compileExpr(x)
		if err != nil {
			return nil, err
		}
		if _, nested := v.Type.(*schema.ArrayType); nested {
			return nil, diag.NewUnsupportedError(x.Pos(), "nested arrays are not supported")
		}
		els[i] = v
		if common == nil {
			common = v.Type
			continue
		}
		ct := c.env.Schema.FindCommonImplicitlyCastableType(common, v.Type)
		if ct == nil {
			return nil, diag.NewTypeError(diag.ErrCodeTypeMismatch, x.Pos(),
				"array elements must have a common type, got %s and %s", common.DisplayName(), v.Type.DisplayName())
		}
		common = ct
	}
	for i, v := range els {
		if schema.Same(v.Type, common) {
			continue
		}
		cast, err := c.castSet(v, common, 0, v.Span, "")
		if err != nil {
			return nil, err
		}
		els[i] = cast
	}
	return c.exprSet(&schema.ArrayType{Element: common}, &ir.Array{Elements: els}, e.Pos()), nil
}

func (c *Context) compileIfElse(e *qlast.IfElse) (*ir.Set, error) {
	cond, err := c.Enter(ModeNewScope).compileExpr(e.Condition)
	if err != nil {
		return nil, err
	}
	if !schema.Same(cond.Type, c.stdType("bool")) {
		return nil, diag.NewTypeError(diag.ErrCodeTypeMismatch, e.Condition.Pos(),
			"if/else condition must be of type 'std::bool', got '%s'", cond.Type.DisplayName())
	}

	branch := func(x qlast.Expr) (*ir.Set, error) {
		bctx := c.Enter(ModeNewFence)
		s, err := bctx.compileExpr(x)
		if err != nil {
			return nil, err
		}
		return fenced(s, bctx.PathScope), nil
	}
	then, err := branch(e.IfExpr)
	if err != nil {
		return nil, err
	}
	els, err := branch(e.ElseExpr)
	if err != nil {
		return nil, err
	}

	var rtype schema.Type
	switch {
	case schema.IsAny(then.Type):
		rtype = els.Type
	case schema.IsAny(els.Type):
		rtype = then.Type
	default:
		rtype = c.env.Schema.FindCommonImplicitlyCastableType(then.Type, els.Type)
	}
	if rtype == nil {
		return nil, diag.NewTypeError(diag.ErrCodeTypeMismatch, e.Pos(),
			"if/else expression branches have incompatible types '%s' and '%s'",
			then.Type.DisplayName(), els.Type.DisplayName())
	}
	if then, err = c.castIfNeeded(then, rtype); err != nil {
		return nil, err
	}
	if els, err = c.castIfNeeded(els, rtype); err != nil {
		return nil, err
	}
	return c.exprSet(rtype, &ir.IfElse{Cond: cond, Then: then, Else: els}, e.Pos()), nil
}

// castIfNeeded casts scalar and collection values to t. Object sets of a
// subtype are left alone.
func (c *Context) castIfNeeded(s *ir.Set, t schema.Type) (*ir.Set, error) {
	if schema.Same(s.Type, t) || schema.IsAny(t) {
		return s, nil
	}
	if schema.IsObject(s.Type) && schema.IsObject(t) {
		return s, nil
	}
	return c.castSet(s, t, 0, s.Span, "")
}
