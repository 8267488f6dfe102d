package compiler

import (
	"encoding/hex"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/pathql/internal/diag"
	"github.com/roach88/pathql/internal/ir"
	"github.com/roach88/pathql/internal/polyres"
	"github.com/roach88/pathql/internal/qlast"
	"github.com/roach88/pathql/internal/qltypes"
	"github.com/roach88/pathql/internal/schema"
)

type callArgs struct {
	args   []polyres.Arg[*ir.Set]
	kwargs map[string]polyres.Arg[*ir.Set]
}

func (a callArgs) types() string {
	parts := make([]string, 0, len(a.args)+len(a.kwargs))
	for _, x := range a.args {
		parts = append(parts, "'"+x.Type.DisplayName()+"'")
	}
	names := make([]string, 0, len(a.kwargs))
	for n := range a.kwargs {
		names = append(names, n)
	}
	slices.Sort(names)
	for _, n := range names {
		parts = append(parts, n+" := '"+a.kwargs[n].Type.DisplayName()+"'")
	}
	return strings.Join(parts, ", ")
}

// compileCallArg compiles an argument according to the parameter's type
// modifier: SET OF arguments are fenced, OPTIONAL ones get an optional
// branch.
func (c *Context) compileCallArg(e qlast.Expr, mod qltypes.TypeModifier) (*ir.Set, error) {
	switch mod {
	case qltypes.SetOfType:
		fctx := c.Enter(ModeNewFence)
		s, err := fctx.compileExpr(e)
		if err != nil {
			return nil, err
		}
		return fenced(s, fctx.PathScope), nil

	case qltypes.OptionalType:
		octx := c.Enter(ModeNewScope)
		octx.PathScope.MarkAsOptional()
		s, err := octx.compileExpr(e)
		if err != nil {
			return nil, err
		}
		n := *s
		n.Optional = true
		return &n, nil

	default:
		return c.Enter(ModeNewScope).compileExpr(e)
	}
}

func (c *Context) compileCallArgs(cands []schema.Callable, args []qlast.Expr, kwargs []qlast.KeywordArg) (callArgs, error) {
	names := make([]string, len(kwargs))
	for i, kw := range kwargs {
		names[i] = kw.Name
	}
	mods, err := polyres.FindCallableTypemods(c.env.Schema, cands, len(args), names)
	if err != nil {
		return callArgs{}, err
	}

	out := callArgs{kwargs: make(map[string]polyres.Arg[*ir.Set], len(kwargs))}
	for i, a := range args {
		v, err := c.compileCallArg(a, mods[polyres.ArgKey{Index: i}])
		if err != nil {
			return callArgs{}, err
		}
		out.args = append(out.args, polyres.Arg[*ir.Set]{Value: v, Type: v.Type})
	}
	for _, kw := range kwargs {
		if _, dup := out.kwargs[kw.Name]; dup {
			return callArgs{}, diag.NewQueryError(diag.ErrCodeInvalidArgument, kw.Val.Pos(),
				"duplicate keyword argument '%s'", kw.Name)
		}
		v, err := c.compileCallArg(kw.Val, mods[polyres.ArgKey{Index: -1, Name: kw.Name}])
		if err != nil {
			return callArgs{}, err
		}
		out.kwargs[kw.Name] = polyres.Arg[*ir.Set]{Value: v, Type: v.Type}
	}
	return out, nil
}

// pickCall chooses among resolved overloads. Inside abstract constraint
// expressions an ambiguous call resolves to the first candidate.
func (c *Context) pickCall(matches []polyres.BoundCall[*ir.Set], ambiguous func() *diag.Error) (polyres.BoundCall[*ir.Set], error) {
	if len(matches) > 1 && !c.InAbstractConstraint {
		return polyres.BoundCall[*ir.Set]{}, ambiguous()
	}
	return matches[0], nil
}

func (c *Context) compileFunctionCall(e *qlast.FunctionCall) (*ir.Set, error) {
	s := c.env.Schema
	fname, funcs := s.LookupFunctions(e.Func, c.Module)
	if len(funcs) == 0 {
		err := diag.NewReferenceError(diag.ErrCodeUnknownName, e.Pos(), "function '%s' does not exist", e.Func)
		cands := append(s.FunctionNames(c.Module), s.FunctionNames(schema.StdModule)...)
		if hint := diag.DidYouMean(schema.ParseName(e.Func).Name, cands); hint != "" {
			err = err.WithHint(hint)
		}
		return nil, err
	}

	cands := polyres.Candidates(funcs)
	args, err := c.compileCallArgs(cands, e.Args, e.Kwargs)
	if err != nil {
		return nil, err
	}
	matches, err := polyres.FindCallable(s, cands, args.args, args.kwargs, polyres.Options{})
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		sigs := make([]string, len(funcs))
		for i, f := range funcs {
			sigs[i] = f.Signature()
		}
		return nil, diag.NewQueryError(diag.ErrCodeNoCandidate, e.Pos(),
			"function \"%s(%s)\" does not exist", fname, args.types()).
			WithHint("Did you want one of the following functions instead:\n" + strings.Join(sigs, "\n"))
	}
	call, err := c.pickCall(matches, func() *diag.Error {
		return diag.NewQueryError(diag.ErrCodeAmbiguousCall, e.Pos(),
			"function \"%s(%s)\" is not unique", fname, args.types())
	})
	if err != nil {
		return nil, err
	}

	fn, ok := call.Func.(*schema.Function)
	if !ok {
		return nil, diag.NewInternalError("function call resolved to %T", call.Func)
	}
	irArgs, err := c.finishCallArgs(call, e.Pos())
	if err != nil {
		return nil, err
	}
	c.env.addNameRef(fn.Name)
	c.env.addSchemaRef(call.ReturnType)

	return c.exprSet(call.ReturnType, &ir.FunctionCall{
		Func:                 fn.Name,
		Impl:                 fn.Impl,
		Args:                 irArgs,
		ReturnType:           call.ReturnType,
		Typemod:              fn.ReturnMod,
		Volatility:           fn.Volatility,
		NullArgs:             call.NullArgs,
		DefaultsMask:         call.DefaultsMask,
		VariadicArgID:        call.VariadicArgID,
		VariadicArgCount:     call.VariadicArgCount,
		PreservesOptionality: fn.PreservesOptionality,
	}, e.Pos()), nil
}

// finishCallArgs turns bound arguments into IR call arguments: defaults
// are compiled, values cast to their parameter types and the defaults
// mask encoded.
func (c *Context) finishCallArgs(call polyres.BoundCall[*ir.Set], span diag.Span) ([]ir.CallArg, error) {
	out := make([]ir.CallArg, 0, len(call.Args))
	for _, a := range call.Args {
		if a.IsBitmask() {
			bytes := c.stdType("bytes")
			mask := c.exprSet(bytes, &ir.Constant{Kind: ir.BytesConst, Value: hex.EncodeToString(call.DefaultsMask), Type: bytes}, span)
			out = append(out, ir.CallArg{Set: mask, Param: "__defaults_mask__", Typemod: qltypes.SingletonType})
			continue
		}

		if a.IsDefault {
			v, err := c.compileDefault(call.Func, a)
			if err != nil {
				return nil, err
			}
			out = append(out, ir.CallArg{Set: v, Param: a.Param.Name, Typemod: a.Param.Typemod, IsDefault: true})
			continue
		}

		v := a.Value
		switch {
		case schema.IsPolymorphic(a.ParamType):
		case schema.IsAny(v.Type):
			v = c.retype(v, a.ParamType)
		case !schema.Same(v.Type, a.ParamType):
			cast, err := c.castIfNeeded(v, a.ParamType)
			if err != nil {
				return nil, err
			}
			v = cast
		}
		out = append(out, ir.CallArg{Set: v, Param: a.Param.Name, Typemod: a.Param.Typemod})
	}
	return out, nil
}

func (c *Context) compileDefault(fn schema.Callable, a polyres.BoundArg[*ir.Set]) (*ir.Set, error) {
	if fn.HasInlinedDefaults() || isEmptyExpr(a.Param.Default) {
		return c.emptySet(a.ParamType, diag.Span{}), nil
	}
	dctx := c.Enter(ModeNewFence)
	v, err := dctx.compileExpr(a.Param.Default)
	if err != nil {
		return nil, err
	}
	v = fenced(v, dctx.PathScope)
	if schema.IsPolymorphic(a.ParamType) {
		return v, nil
	}
	return c.castIfNeeded(v, a.ParamType)
}

func isEmptyExpr(e qlast.Expr) bool {
	switch e := e.(type) {
	case *qlast.Set:
		return len(e.Elements) == 0
	case *qlast.TypeCast:
		return isEmptyExpr(e.Expr)
	default:
		return false
	}
}

var tupleComparisons = map[string]bool{"=": false, "?=": false, "!=": true, "?!=": true}

func (c *Context) compileOperator(op string, kind qltypes.OperatorKind, operands []qlast.Expr, span diag.Span) (*ir.Set, error) {
	s := c.env.Schema
	name := schema.StdName(op)
	ops := s.Operators(name, kind)
	if len(ops) == 0 {
		return nil, diag.NewReferenceError(diag.ErrCodeUnknownName, span, "operator '%s' does not exist", op)
	}

	cands := polyres.Candidates(ops)
	args, err := c.compileCallArgs(cands, operands, nil)
	if err != nil {
		return nil, err
	}

	// Tuples of different arity never compare equal; there is no operator
	// overload to bind them to.
	if res, ok := tupleComparisons[op]; ok && kind == qltypes.Infix {
		lt, lok := args.args[0].Type.(*schema.TupleType)
		rt, rok := args.args[1].Type.(*schema.TupleType)
		if lok && rok && len(lt.Elements) != len(rt.Elements) {
			return c.constant(ir.BooleanConst, fmt.Sprint(res), "bool", span), nil
		}
	}

	matches, err := polyres.FindCallable(s, cands, args.args, nil, polyres.Options{})
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, diag.NewQueryError(diag.ErrCodeNoCandidate, span,
			"operator '%s' cannot be applied to operands of type %s", op, operandTypes(args)).
			WithHint("Consider using an explicit type cast or a conversion function.")
	}
	call, err := c.pickCall(matches, func() *diag.Error {
		return diag.NewQueryError(diag.ErrCodeAmbiguousCall, span,
			"operator '%s' is ambiguous for operands of type %s", op, operandTypes(args)).
			WithHint("Consider using an explicit type cast to resolve the ambiguity.")
	})
	if err != nil {
		return nil, err
	}

	o, ok := call.Func.(*schema.Operator)
	if !ok {
		return nil, diag.NewInternalError("operator call resolved to %T", call.Func)
	}
	irArgs, err := c.finishCallArgs(call, span)
	if err != nil {
		return nil, err
	}
	c.env.addNameRef(o.Name)

	return c.exprSet(call.ReturnType, &ir.OperatorCall{
		Op:         o.Name,
		Impl:       o.Impl,
		Kind:       kind,
		Args:       irArgs,
		ReturnType: call.ReturnType,
		Typemod:    o.ReturnMod,
	}, span), nil
}

func operandTypes(a callArgs) string {
	parts := make([]string, len(a.args))
	for i, x := range a.args {
		parts[i] = "'" + x.Type.DisplayName() + "'"
	}
	return strings.Join(parts, " and ")
}
