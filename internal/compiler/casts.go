package compiler

import (
	"fmt"

	"github.com/roach88/pathql/internal/diag"
	"github.com/roach88/pathql/internal/inference"
	"github.com/roach88/pathql/internal/ir"
	"github.com/roach88/pathql/internal/polyres"
	"github.com/roach88/pathql/internal/qlast"
	"github.com/roach88/pathql/internal/qltypes"
	"github.com/roach88/pathql/internal/schema"
)

func (c *Context) compileTypeCast(e *qlast.TypeCast) (*ir.Set, error) {
	s := c.env.Schema
	to, err := s.ResolveTypeName(e.Type, c.Module)
	if err != nil {
		return nil, err
	}
	if schema.IsPolymorphic(to) && !c.env.Options.AllowGenericTypeOutput {
		return nil, diag.NewQueryError(diag.ErrCodeCannotCast, e.Pos(),
			"cannot cast into generic type '%s'", to.DisplayName()).
			WithHint("Please ensure you don't use generic \"any\" types or abstract scalars.")
	}
	c.env.addSchemaRef(to)

	if lit, ok := e.Expr.(*qlast.Set); ok && len(lit.Elements) == 0 {
		return c.emptySet(to, e.Pos()), nil
	}
	val, err := c.compileExpr(e.Expr)
	if err != nil {
		return nil, err
	}
	out, err := c.castSet(val, to, e.Cardinality, e.Pos(), "")
	if err != nil {
		return nil, err
	}
	out.Span = e.Pos()
	return out, nil
}

// castSet converts val to type to. errCtx locates the value inside an
// enclosing structural cast.
func (c *Context) castSet(val *ir.Set, to schema.Type, card qltypes.CardinalityModifier, span diag.Span, errCtx string) (*ir.Set, error) {
	s := c.env.Schema

	if _, ok := val.Expr.(*ir.EmptySet); ok {
		return c.emptySet(to, val.Span), nil
	}
	if arr, ok := val.Expr.(*ir.Array); ok && len(arr.Elements) == 0 {
		if _, toArray := to.(*schema.ArrayType); toArray {
			return c.exprSet(to, &ir.Array{}, val.Span), nil
		}
	}

	from := val.Type
	if schema.Same(from, to) && card != qltypes.CardModRequired {
		return val, nil
	}
	if schema.IsObject(from) && schema.IsObject(to) {
		return nil, diag.NewQueryError(diag.ErrCodeCannotCast, span,
			"cannot cast object type '%s' to '%s', use `...[IS %s]` instead",
			from.DisplayName(), to.DisplayName(), to.DisplayName())
	}

	uuid, json := c.stdType("uuid"), c.stdType("json")
	if obj, ok := to.(*schema.ObjectType); ok && s.IsSubclass(from, uuid) {
		return c.findObjectByID(val, obj, span)
	}

	if _, ok := val.Expr.(*ir.Array); ok {
		return c.castArrayLiteral(val, to, card, span, errCtx)
	}
	switch ft := from.(type) {
	case *schema.TupleType:
		return c.castTuple(val, ft, to, card, span, errCtx)
	case *schema.ArrayType:
		if !s.IsSubclass(from, to) {
			return c.castCollection(val, ft.Element, to, card, span, errCtx+"in array elements, ")
		}
	case *schema.RangeType:
		if !s.IsSubclass(from, to) {
			return c.castCollection(val, ft.Element, to, card, span, errCtx)
		}
	}

	if s.IsSubclass(from, to) || s.IsSubclass(to, from) || c.commonConcreteScalar(from, to) {
		return c.inheritanceCast(val, from, to, card, errCtx), nil
	}

	switch {
	case schema.IsObject(from) && s.IsSubclass(to, json):
		shaped, err := c.materializeForJSON(val)
		if err != nil {
			return nil, err
		}
		cast := &schema.Cast{From: from, To: to, Function: "to_jsonb"}
		return c.typeCastSet(shaped, from, to, cast, card, errCtx), nil

	case s.IsSubclass(from, json):
		switch tt := to.(type) {
		case *schema.ScalarType:
			str := c.stdType("str")
			if tt.IsEnum() {
				return c.viaType(val, str, to, card, span, errCtx)
			}
			direct, err := c.findCast(from, to, span)
			if err != nil {
				return nil, err
			}
			if direct == nil && !schema.Same(to, str) {
				return c.viaType(val, str, to, card, span, errCtx)
			}
		case *schema.ArrayType:
			if !s.IsSubclass(tt.Element, json) {
				return c.viaType(val, &schema.ArrayType{Element: json}, to, card, span, errCtx)
			}
		case *schema.TupleType:
			return c.castJSONToTuple(val, tt, card, span, errCtx)
		case *schema.RangeType:
			return c.castJSONToRange(val, tt, card, span, errCtx)
		}
	}

	return c.registeredCast(val, from, to, card, span, errCtx)
}

// viaType casts val to mid and then to to.
func (c *Context) viaType(val *ir.Set, mid, to schema.Type, card qltypes.CardinalityModifier, span diag.Span, errCtx string) (*ir.Set, error) {
	step, err := c.castSet(val, mid, card, span, errCtx)
	if err != nil {
		return nil, err
	}
	return c.castSet(step, to, card, span, errCtx)
}

func (c *Context) commonConcreteScalar(a, b schema.Type) bool {
	as, ok := a.(*schema.ScalarType)
	if !ok {
		return false
	}
	bs, ok := b.(*schema.ScalarType)
	if !ok {
		return false
	}
	return schema.Same(c.env.Schema.TopmostConcreteBase(as), c.env.Schema.TopmostConcreteBase(bs))
}

func (c *Context) typeCastSet(val *ir.Set, from, to schema.Type, cast *schema.Cast, card qltypes.CardinalityModifier, errCtx string) *ir.Set {
	if cast != nil {
		c.env.addNameRef(cast.Name())
	}
	tc := &ir.TypeCast{
		Expr:                val,
		From:                from,
		To:                  to,
		Cast:                cast,
		Cardinality:         card,
		ErrorMessageContext: errCtx,
	}
	c.checkRequiredCast(tc)
	return c.exprSet(to, tc, val.Span)
}

func (c *Context) inheritanceCast(val *ir.Set, from, to schema.Type, card qltypes.CardinalityModifier, errCtx string) *ir.Set {
	tc := &ir.TypeCast{
		Expr:                val,
		From:                from,
		To:                  to,
		InheritanceCast:     true,
		Cardinality:         card,
		ErrorMessageContext: errCtx,
	}
	c.checkRequiredCast(tc)
	return c.exprSet(to, tc, val.Span)
}

// checkRequiredCast queues inference of the input of a REQUIRED cast for
// when the scope tree is final. Pointers the input references were
// registered before the cast, so they settle first.
func (c *Context) checkRequiredCast(tc *ir.TypeCast) {
	if !tc.Required() {
		return
	}
	env, scope := c.env, c.PathScope
	env.queue.Enqueue(func() error {
		// The statement-level pass reports FILTER warnings.
		ienv := env.inferenceEnv()
		ienv.Warn = nil
		card, err := inference.New(ienv).Infer(tc.Expr, scope)
		if err != nil {
			return err
		}
		tc.SourceCardinality = card
		env.logger.Debug("required cast checked",
			"to", tc.To.DisplayName(),
			"source", card.String(),
			"assert_exists", tc.AssertsExistence())
		return nil
	})
}

func (c *Context) registeredCast(val *ir.Set, from, to schema.Type, card qltypes.CardinalityModifier, span diag.Span, errCtx string) (*ir.Set, error) {
	cast, err := c.findCast(from, to, span)
	if err != nil {
		return nil, err
	}
	if cast == nil {
		return nil, diag.NewQueryError(diag.ErrCodeCannotCast, span,
			"cannot cast '%s' to '%s'", from.DisplayName(), to.DisplayName())
	}
	return c.typeCastSet(val, from, to, cast, card, errCtx), nil
}

// findCast picks the registered cast from -> to. Casts registered against
// an ancestor of to apply when to has none of its own; enums cast through
// std::anyenum that way. It returns nil when there is no cast or the
// types are related by inheritance.
func (c *Context) findCast(from, to schema.Type, span diag.Span) (*schema.Cast, error) {
	s := c.env.Schema
	if s.IsSubclass(from, to) || s.IsSubclass(to, from) || c.commonConcreteScalar(from, to) {
		return nil, nil
	}

	base := s.BaseForCast(to)
	casts := s.CastsTo(base)
	if len(casts) == 0 {
		for _, anc := range s.Ancestors(base) {
			if casts = s.CastsTo(anc); len(casts) > 0 {
				break
			}
		}
	}
	if len(casts) == 0 {
		return nil, nil
	}

	cands := make([]schema.Callable, len(casts))
	for i, cast := range casts {
		cands[i] = &schema.CastCallable{Cast: cast}
	}
	args := []polyres.Arg[struct{}]{{Type: from}}
	matched, err := polyres.FindCallable(s, cands, args, nil, polyres.Options{})
	if err != nil {
		return nil, err
	}
	switch len(matched) {
	case 0:
		return nil, nil
	case 1:
		cc, ok := matched[0].Func.(*schema.CastCallable)
		if !ok {
			return nil, diag.NewInternalError("cast resolved to %T", matched[0].Func)
		}
		return cc.Cast, nil
	default:
		return nil, diag.NewQueryError(diag.ErrCodeCannotCast, span,
			"cannot unambiguously cast '%s' to '%s'", from.DisplayName(), to.DisplayName())
	}
}

// findObjectByID compiles <T>uuid as a lookup that fails unless exactly
// one object has the id.
func (c *Context) findObjectByID(val *ir.Set, obj *schema.ObjectType, span diag.Span) (*ir.Set, error) {
	anchor := c.aliases.get("id")
	actx := c.withAnchor(anchor, val)
	base := qlast.Base{Loc: span}
	lookup := &qlast.SelectQuery{
		Base:   base,
		Result: &qlast.Path{Base: base, Steps: []qlast.PathStep{&qlast.ObjectRef{Base: base, Module: obj.Name.Module, Name: obj.Name.Name}}},
		Where: &qlast.BinOp{
			Base:  base,
			Op:    "=",
			Left:  &qlast.Path{Base: base, Partial: true, Steps: []qlast.PathStep{&qlast.Ptr{Base: base, Name: "id", Direction: qltypes.Outbound}}},
			Right: anchorPath(anchor, span),
		},
	}
	message := &qlast.StringConstant{Base: base, Value: fmt.Sprintf("object id does not exist on type '%s'", obj.DisplayName())}
	expr := &qlast.FunctionCall{
		Base: base,
		Func: "std::assert_exists",
		Args: []qlast.Expr{&qlast.FunctionCall{
			Base: base,
			Func: "std::assert_single",
			Args: []qlast.Expr{lookup},
		}},
		Kwargs: []qlast.KeywordArg{{Name: "message", Val: message}},
	}
	return actx.compileExpr(expr)
}

func anchorPath(name string, span diag.Span) *qlast.Path {
	return &qlast.Path{Base: qlast.Base{Loc: span}, Steps: []qlast.PathStep{&qlast.Anchor{Base: qlast.Base{Loc: span}, Name: name}}}
}

func (c *Context) castArrayLiteral(val *ir.Set, to schema.Type, card qltypes.CardinalityModifier, span diag.Span, errCtx string) (*ir.Set, error) {
	arr := val.Expr.(*ir.Array)
	tt, ok := to.(*schema.ArrayType)
	if !ok {
		return c.registeredCast(val, val.Type, to, card, span, errCtx)
	}
	els := make([]*ir.Set, len(arr.Elements))
	for i, el := range arr.Elements {
		v, err := c.castSet(el, tt.Element, 0, span, errCtx+"in array elements, ")
		if err != nil {
			return nil, err
		}
		els[i] = v
	}
	out := c.exprSet(to, &ir.Array{Elements: els}, val.Span)
	if card == qltypes.CardModRequired {
		return c.inheritanceCast(out, to, to, card, errCtx), nil
	}
	return out, nil
}

// castCollection casts arrays and ranges: through a cast registered for
// the whole collection, or element-wise between collections of the same
// kind.
func (c *Context) castCollection(val *ir.Set, fromEl, to schema.Type, card qltypes.CardinalityModifier, span diag.Span, errCtx string) (*ir.Set, error) {
	s := c.env.Schema
	from := val.Type
	direct, err := c.findCast(from, to, span)
	if err != nil {
		return nil, err
	}
	if direct != nil {
		return c.typeCastSet(val, from, to, direct, card, errCtx), nil
	}

	var toEl schema.Type
	switch tt := to.(type) {
	case *schema.ArrayType:
		if _, ok := from.(*schema.ArrayType); ok {
			toEl = tt.Element
		}
	case *schema.RangeType:
		if _, ok := from.(*schema.RangeType); ok {
			toEl = tt.Element
		}
	}
	if toEl == nil {
		return nil, diag.NewQueryError(diag.ErrCodeCannotCast, span,
			"cannot cast '%s' to '%s'", from.DisplayName(), to.DisplayName())
	}
	if s.IsSubclass(fromEl, toEl) || s.IsSubclass(toEl, fromEl) || c.commonConcreteScalar(fromEl, toEl) {
		return c.inheritanceCast(val, from, to, card, errCtx), nil
	}
	elCast, err := c.findCast(fromEl, toEl, span)
	if err != nil {
		return nil, err
	}
	if elCast != nil && elCast.Function == "" {
		return c.typeCastSet(val, from, to, elCast, card, errCtx), nil
	}
	if tt, ok := to.(*schema.ArrayType); ok {
		return c.castArrayElements(val, tt, card, span)
	}
	if elCast == nil {
		return nil, diag.NewQueryError(diag.ErrCodeCannotCast, span,
			"cannot cast '%s' to '%s'", from.DisplayName(), to.DisplayName())
	}
	return c.typeCastSet(val, from, to, elCast, card, errCtx), nil
}

// castArrayElements casts an array element by element:
//
//	(a, array_agg((SELECT <required T>e.1 ORDER BY e.0))).1
//
// with e bound to enumerate(array_unpack(a)). Every element goes through
// the full cast dispatch, and pairing the result with a keeps it empty
// when a is.
func (c *Context) castArrayElements(val *ir.Set, to *schema.ArrayType, card qltypes.CardinalityModifier, span diag.Span) (*ir.Set, error) {
	elType, err := qlast.ParseTypeName(to.Element.DisplayName())
	if err != nil {
		return nil, diag.NewInternalError("element type %s: %v", to.Element.DisplayName(), err)
	}
	base := qlast.Base{Loc: span}
	src := c.aliases.get("a")
	actx := c.withAnchor(src, val)

	enumerated, err := actx.compileExpr(&qlast.FunctionCall{
		Base: base,
		Func: "std::enumerate",
		Args: []qlast.Expr{&qlast.FunctionCall{Base: base, Func: "std::array_unpack", Args: []qlast.Expr{anchorPath(src, span)}}},
	})
	if err != nil {
		return nil, err
	}
	e := c.aliases.get("e")
	actx = actx.withAnchor(e, enumerated)

	elements := &qlast.FunctionCall{
		Base: base,
		Func: "std::array_agg",
		Args: []qlast.Expr{&qlast.SelectQuery{
			Base: base,
			Result: &qlast.TypeCast{
				Base:        base,
				Type:        elType,
				Expr:        tupleElementPath(e, "1", span),
				Cardinality: qltypes.CardModRequired,
			},
			OrderBy: []*qlast.SortExpr{{Path: tupleElementPath(e, "0", span)}},
		}},
	}
	pair, err := actx.compileExpr(&qlast.Tuple{Base: base, Elements: []qlast.Expr{anchorPath(src, span), elements}})
	if err != nil {
		return nil, err
	}
	t := c.aliases.get("t")
	out, err := actx.withAnchor(t, pair).compileExpr(tupleElementPath(t, "1", span))
	if err != nil {
		return nil, err
	}
	out = c.retype(out, to)
	if card == qltypes.CardModRequired {
		return c.inheritanceCast(out, to, to, card, ""), nil
	}
	return out, nil
}

func tupleElementPath(anchor, name string, span diag.Span) *qlast.Path {
	base := qlast.Base{Loc: span}
	return &qlast.Path{Base: base, Steps: []qlast.PathStep{
		&qlast.Anchor{Base: base, Name: anchor},
		&qlast.Ptr{Base: base, Name: name, Direction: qltypes.Outbound},
	}}
}

func (c *Context) castTuple(val *ir.Set, from *schema.TupleType, to schema.Type, card qltypes.CardinalityModifier, span diag.Span, errCtx string) (*ir.Set, error) {
	// Pin the tuple so its indirections do not multiply it.
	if err := c.PathScope.AttachPath(val.PathID, false, span, c.env); err != nil {
		return nil, err
	}

	direct, err := c.findCast(from, to, span)
	if err != nil {
		return nil, err
	}
	if direct != nil {
		els := make([]ir.TupleElement, len(from.Elements))
		types := make([]schema.TupleElement, len(from.Elements))
		for i, el := range from.Elements {
			v, err := c.tupleElement(val, from, el.Name, span)
			if err != nil {
				return nil, err
			}
			if v, err = c.castSet(v, to, 0, span, errCtx+fmt.Sprintf("at tuple element '%s', ", el.Name)); err != nil {
				return nil, err
			}
			els[i] = ir.TupleElement{Name: el.Name, Val: v}
			types[i] = schema.TupleElement{Name: el.Name, Type: v.Type}
		}
		tup := c.exprSet(&schema.TupleType{Elements: types, Named: from.Named}, &ir.Tuple{Elements: els, Named: from.Named}, val.Span)
		return c.typeCastSet(tup, from, to, direct, card, errCtx), nil
	}

	tt, ok := to.(*schema.TupleType)
	if !ok {
		return nil, diag.NewQueryError(diag.ErrCodeCannotCast, span,
			"cannot cast '%s' to '%s'", from.DisplayName(), to.DisplayName())
	}
	if len(tt.Elements) != len(from.Elements) {
		return nil, diag.NewQueryError(diag.ErrCodeCannotCast, span,
			"cannot cast '%s' to '%s': the number of elements is not the same",
			from.DisplayName(), to.DisplayName())
	}

	els := make([]ir.TupleElement, len(from.Elements))
	for i, el := range from.Elements {
		v, err := c.tupleElement(val, from, el.Name, span)
		if err != nil {
			return nil, err
		}
		target := tt.Elements[i]
		if !schema.Same(v.Type, target.Type) {
			v, err = c.castSet(v, target.Type, 0, span, errCtx+fmt.Sprintf("at tuple element '%s', ", target.Name))
			if err != nil {
				return nil, err
			}
		}
		els[i] = ir.TupleElement{Name: target.Name, Val: v}
	}
	out := c.exprSet(to, &ir.Tuple{Elements: els, Named: tt.Named}, val.Span)
	if card == qltypes.CardModRequired {
		return c.inheritanceCast(out, to, to, card, errCtx), nil
	}
	return out, nil
}

func (c *Context) tupleElement(src *ir.Set, tup *schema.TupleType, name string, span diag.Span) (*ir.Set, error) {
	return c.compileTupleStep(src, tup, &qlast.Ptr{Base: qlast.Base{Loc: span}, Name: name, Direction: qltypes.Outbound})
}

// castJSONToTuple extracts each element with json_get and casts it to
// the element type. Top-level json nulls give an empty set; missing or
// null elements fail the required element casts.
func (c *Context) castJSONToTuple(val *ir.Set, to *schema.TupleType, card qltypes.CardinalityModifier, span diag.Span, errCtx string) (*ir.Set, error) {
	base := qlast.Base{Loc: span}
	anchor := c.aliases.get("a")
	actx := c.withAnchor(anchor, val)

	if card != qltypes.CardModRequired {
		if err := c.PathScope.AttachPath(val.PathID, false, span, c.env); err != nil {
			return nil, err
		}
		filtered, err := actx.compileExpr(&qlast.SelectQuery{
			Base:   base,
			Result: anchorPath(anchor, span),
			Where: &qlast.BinOp{
				Base:  base,
				Op:    "!=",
				Left:  &qlast.FunctionCall{Base: base, Func: "std::json_typeof", Args: []qlast.Expr{anchorPath(anchor, span)}},
				Right: &qlast.StringConstant{Base: base, Value: "null"},
			},
		})
		if err != nil {
			return nil, err
		}
		anchor = c.aliases.get("a")
		actx = actx.withAnchor(anchor, filtered)
	}

	els := make([]ir.TupleElement, len(to.Elements))
	for i, el := range to.Elements {
		v, err := actx.compileExpr(&qlast.FunctionCall{
			Base: base,
			Func: "std::json_get",
			Args: []qlast.Expr{anchorPath(anchor, span), &qlast.StringConstant{Base: base, Value: el.Name}},
		})
		if err != nil {
			return nil, err
		}
		v, err = actx.castSet(v, el.Type, qltypes.CardModRequired, span, errCtx+fmt.Sprintf("at tuple element '%s', ", el.Name))
		if err != nil {
			return nil, err
		}
		els[i] = ir.TupleElement{Name: el.Name, Val: v}
	}
	return c.exprSet(to, &ir.Tuple{Elements: els, Named: to.Named}, val.Span), nil
}

// castJSONToRange rebuilds the range from its json fields.
func (c *Context) castJSONToRange(val *ir.Set, to *schema.RangeType, card qltypes.CardinalityModifier, span diag.Span, errCtx string) (*ir.Set, error) {
	base := qlast.Base{Loc: span}
	anchor := c.aliases.get("a")
	actx := c.withAnchor(anchor, val)
	boolean := c.stdType("bool")

	field := func(name string, t schema.Type) (qlast.Expr, error) {
		v, err := actx.compileExpr(&qlast.FunctionCall{
			Base: base,
			Func: "std::json_get",
			Args: []qlast.Expr{anchorPath(anchor, span), &qlast.StringConstant{Base: base, Value: name}},
		})
		if err != nil {
			return nil, err
		}
		v, err = actx.castSet(v, t, 0, span, errCtx+fmt.Sprintf("in range %s, ", name))
		if err != nil {
			return nil, err
		}
		fa := c.aliases.get(name)
		actx = actx.withAnchor(fa, v)
		return anchorPath(fa, span), nil
	}

	lower, err := field("lower", to.Element)
	if err != nil {
		return nil, err
	}
	upper, err := field("upper", to.Element)
	if err != nil {
		return nil, err
	}
	kwargs := make([]qlast.KeywordArg, 0, 3)
	for _, name := range []string{"inc_lower", "inc_upper", "empty"} {
		v, err := field(name, boolean)
		if err != nil {
			return nil, err
		}
		kwargs = append(kwargs, qlast.KeywordArg{Name: name, Val: v})
	}
	out, err := actx.compileExpr(&qlast.FunctionCall{Base: base, Func: "std::range", Args: []qlast.Expr{lower, upper}, Kwargs: kwargs})
	if err != nil {
		return nil, err
	}
	if !schema.Same(out.Type, to) || card == qltypes.CardModRequired {
		return c.inheritanceCast(out, out.Type, to, card, errCtx), nil
	}
	return out, nil
}
