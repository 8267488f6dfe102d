package compiler

import (
	"github.com/roach88/pathql/internal/diag"
	"github.com/roach88/pathql/internal/ir"
	"github.com/roach88/pathql/internal/pathid"
	"github.com/roach88/pathql/internal/qlast"
	"github.com/roach88/pathql/internal/qltypes"
	"github.com/roach88/pathql/internal/schema"
)

// applyShape derives a view of src's object type carrying the shape
// elements. Computed elements become pointers of the view; their
// cardinality is settled when the statement completes.
func (c *Context) applyShape(src *ir.Set, elements []*qlast.ShapeElement, span diag.Span) (*ir.Set, error) {
	obj, ok := src.Type.(*schema.ObjectType)
	if !ok {
		return nil, diag.NewQueryError(diag.ErrCodeQuery, span,
			"shapes cannot be applied to expressions of type '%s'", src.Type.DisplayName())
	}

	s, view := c.env.Schema.DeriveView(obj, schema.NewName(obj.Name.Module, c.aliases.get(obj.Name.Name)))
	c.env.updateSchema(s)

	viewSet := *src
	viewSet.Type = view
	c.env.SetTypes[&viewSet] = view

	var (
		shape []*ir.ShapeElement
		seen  = make(map[string]bool, len(elements))
	)
	for _, el := range elements {
		if seen[el.Name] {
			return nil, diag.NewQueryError(diag.ErrCodeQuery, el.Pos(),
				"duplicate shape element '%s'", el.Name)
		}
		seen[el.Name] = true
	}

	if c.ImplicitIDInShapes && !seen["id"] {
		id, err := c.Enter(ModeNewFence).withPrefix(&viewSet).compileExpr(ptrPath("id", false, span))
		if err != nil {
			return nil, err
		}
		shape = append(shape, &ir.ShapeElement{Name: "id", Set: id, Cardinality: qltypes.One, Implicit: true})
	}
	if c.ImplicitTidInShapes {
		uuid := c.stdType("uuid")
		tid := c.exprSet(uuid, &ir.Constant{Kind: ir.StringConst, Value: c.typeID(obj), Type: uuid}, span)
		shape = append(shape, &ir.ShapeElement{Name: "__tid__", Set: tid, Cardinality: qltypes.One, Implicit: true})
	}

	for _, el := range elements {
		var (
			se  *ir.ShapeElement
			err error
		)
		if el.Compexpr == nil {
			se, err = c.shapePointer(&viewSet, el)
		} else {
			se, err = c.shapeComputed(&viewSet, view, el)
		}
		if err != nil {
			return nil, err
		}
		shape = append(shape, se)
	}

	if v, ok := c.env.Schema.ObjectType(view.Name); ok {
		view = v
	}
	viewSet.Type = view
	viewSet.Shape = shape
	c.env.SetTypes[&viewSet] = view
	c.env.ViewShapes[view.Name] = view
	c.env.addSchemaRef(view)
	return &viewSet, nil
}

func ptrPath(name string, linkProp bool, span diag.Span) *qlast.Path {
	base := qlast.Base{Loc: span}
	return &qlast.Path{
		Base:    base,
		Partial: true,
		Steps:   []qlast.PathStep{&qlast.Ptr{Base: base, Name: name, Direction: qltypes.Outbound, LinkProp: linkProp}},
	}
}

func (c *Context) typeID(obj *schema.ObjectType) string {
	if m, ok := c.env.Schema.MaterialType(obj).(*schema.ObjectType); ok {
		return m.ID().String()
	}
	return obj.ID().String()
}

// shapePointer compiles a shape element naming an existing pointer,
// with its own nested shape if it has one.
func (c *Context) shapePointer(viewSet *ir.Set, el *qlast.ShapeElement) (*ir.ShapeElement, error) {
	ectx := c.Enter(ModeNewFence).withPrefix(viewSet)
	v, err := ectx.compileExpr(ptrPath(el.Name, el.LinkProp, el.Pos()))
	if err != nil {
		return nil, err
	}
	if len(el.Elements) > 0 {
		if v, err = ectx.applyShape(v, el.Elements, el.Pos()); err != nil {
			return nil, err
		}
	}
	fenced(v, ectx.PathScope)

	se := &ir.ShapeElement{Name: el.Name, Set: v}
	step := v.Step()
	if step == nil {
		return nil, diag.NewInternalError("shape element '%s' is not a pointer", el.Name)
	}
	se.Computed = step.Computed

	p, ok := c.env.Schema.PointerByKey(step.Ptr.Key)
	switch {
	case !ok:
		se.Cardinality = qltypes.FromBounds(step.Ptr.Required, step.Ptr.Cardinality == qltypes.SchemaMany)
	case p.HasCardinality():
		se.Cardinality = qltypes.FromBounds(p.Required, p.IsMulti())
	default:
		err = c.onPointerCardinality(p.Key(), func(card qltypes.Cardinality) error {
			se.Cardinality = card
			return nil
		})
	}
	return se, err
}

// shapeComputed compiles name := expr into a computed pointer of view.
func (c *Context) shapeComputed(viewSet *ir.Set, view *schema.ObjectType, el *qlast.ShapeElement) (*ir.ShapeElement, error) {
	if el.LinkProp {
		return nil, diag.NewUnsupportedError(el.Pos(), "computed link properties are not supported")
	}

	ectx := c.Enter(ModeNewFence).withPrefix(viewSet)
	body, err := ectx.compileExpr(el.Compexpr)
	if err != nil {
		return nil, err
	}
	if len(el.Elements) > 0 {
		if body, err = ectx.applyShape(body, el.Elements, el.Pos()); err != nil {
			return nil, err
		}
	}
	fenced(body, ectx.PathScope)

	p := &schema.Pointer{
		ShortName:   el.Name,
		Source:      view.Name,
		Target:      body.Type,
		Cardinality: el.Cardinality,
		Required:    el.Required,
		Computed:    true,
		Expr:        el.Compexpr,
		Owned:       true,
	}
	if base, ok := c.env.Schema.Pointer(view.Name, el.Name); ok {
		if base.Readonly && base.IsID() {
			return nil, diag.NewQueryError(diag.ErrCodeQuery, el.Pos(),
				"cannot redefine %s of object type '%s'", base.VerboseName(), view.DisplayName())
		}
		p.Bases = []string{base.Key()}
		if base.Computed {
			c.env.PointerDerivationMap[base.Key()] = append(c.env.PointerDerivationMap[base.Key()], p.Key())
		}
	}
	if el.Cardinality != 0 || el.Required {
		c.env.PointerSpecifiedInfo[p.Key()] = PointerSpec{Cardinality: el.Cardinality, Required: el.Required, Span: el.Pos()}
	}
	c.env.updateSchema(c.env.Schema.WithPointer(p))
	c.env.addSchemaRef(body.Type)

	ref := &pathid.PtrRef{
		Name:        p.ShortName,
		Key:         p.Key(),
		Source:      view,
		Target:      p.Target,
		Cardinality: p.Cardinality,
		Required:    p.Required,
	}
	id, err := viewSet.PathID.Extend(ref, qltypes.Outbound, p.Target, c.Namespace...)
	if err != nil {
		return nil, diag.NewInternalError("extending %s with %s: %v", viewSet.PathID.Pformat(), p.ShortName, err)
	}
	set := c.newSet(id, p.Target, &ir.PathStep{
		Source:    viewSet,
		Ptr:       ref,
		Direction: qltypes.Outbound,
		Computed:  true,
		Body:      body,
	}, el.Pos())
	c.SourceMap[p.Key()] = el.Compexpr

	se := &ir.ShapeElement{Name: el.Name, Set: set, Op: ir.ShapeMaterialize, Computed: true}
	c.registerPending(p, viewSet, body, ectx.PathScope, el.Pos())
	if el.Required {
		if err := c.onPointerCardinality(p.Key(), requireNonEmpty(p, el.Pos())); err != nil {
			return nil, err
		}
	}
	err = c.onPointerCardinality(p.Key(), func(card qltypes.Cardinality) error {
		se.Cardinality = card
		return nil
	})
	return se, err
}

// materializeForJSON gives an object set without a shape the default
// json shape: its stored properties.
func (c *Context) materializeForJSON(val *ir.Set) (*ir.Set, error) {
	if len(val.Shape) > 0 {
		return val, nil
	}
	obj, ok := val.Type.(*schema.ObjectType)
	if !ok {
		return val, nil
	}
	var elements []*qlast.ShapeElement
	for _, p := range c.env.Schema.Pointers(obj) {
		if p.IsLink() || p.Computed {
			continue
		}
		elements = append(elements, &qlast.ShapeElement{Base: qlast.Base{Loc: val.Span}, Name: p.ShortName})
	}
	jctx := c.Enter(ModeNew)
	jctx.ImplicitIDInShapes = false
	jctx.ImplicitTidInShapes = false
	return jctx.applyShape(val, elements, val.Span)
}
