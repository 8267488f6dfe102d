package compiler

import (
	"github.com/roach88/pathql/internal/diag"
	"github.com/roach88/pathql/internal/ir"
	"github.com/roach88/pathql/internal/pathid"
	"github.com/roach88/pathql/internal/qlast"
	"github.com/roach88/pathql/internal/qltypes"
	"github.com/roach88/pathql/internal/schema"
	"github.com/roach88/pathql/internal/scopetree"
)

func (c *Context) newSet(id *pathid.PathID, t schema.Type, expr ir.Expr, span diag.Span) *ir.Set {
	s := &ir.Set{PathID: id, Type: t, Expr: expr, Span: span}
	c.env.SetTypes[s] = t
	return s
}

// exprSet wraps a non-path expression. Each gets a PathID of its own.
func (c *Context) exprSet(t schema.Type, expr ir.Expr, span diag.Span) *ir.Set {
	id := pathid.FromTypeNamed(t, schema.NewName("__derived__", c.aliases.get("expr")), c.Namespace...)
	return c.newSet(id, t, expr, span)
}

func (c *Context) emptySet(t schema.Type, span diag.Span) *ir.Set {
	return c.exprSet(t, &ir.EmptySet{}, span)
}

func (c *Context) classSet(obj *schema.ObjectType, span diag.Span) *ir.Set {
	c.env.addSchemaRef(obj)
	return c.newSet(pathid.FromType(obj, c.Namespace...), obj, &ir.TypeRoot{Type: obj}, span)
}

// fenced binds s to the scope node it was compiled in, unless it is
// already bound.
func fenced(s *ir.Set, node *scopetree.Node) *ir.Set {
	if s.PathScopeID == 0 {
		s.PathScopeID = node.UniqueID
	}
	return s
}

// retype returns a copy of s with another type.
func (c *Context) retype(s *ir.Set, t schema.Type) *ir.Set {
	n := *s
	n.Type = t
	c.env.SetTypes[&n] = t
	return &n
}

func isPathSet(s *ir.Set) bool {
	switch s.Expr.(type) {
	case *ir.TypeRoot, *ir.PathStep, *ir.TypeIntersection, *ir.TupleIndirection:
		return true
	default:
		return false
	}
}

func (c *Context) compilePath(p *qlast.Path) (*ir.Set, error) {
	var (
		cur      *ir.Set
		attached bool
	)
	if p.Partial {
		if c.PartialPathPrefix == nil {
			return nil, diag.NewReferenceError(diag.ErrCodeUnresolvedPath, p.Pos(),
				"could not resolve partial path")
		}
		cur = c.PartialPathPrefix
	}

	for i, step := range p.Steps {
		var err error
		switch st := step.(type) {
		case *qlast.ObjectRef:
			if i != 0 || cur != nil {
				return nil, diag.NewInternalError("object reference '%s' inside a path", st.QualifiedName())
			}
			cur, attached, err = c.compileRoot(st)

		case *qlast.Anchor:
			if i != 0 || cur != nil {
				return nil, diag.NewInternalError("anchor '%s' inside a path", st.Name)
			}
			a, ok := c.Anchors[st.Name]
			if !ok {
				return nil, diag.NewReferenceError(diag.ErrCodeUnknownName, st.Pos(),
					"anchor '%s' is not defined", st.Name)
			}
			n := *a
			cur = &n
			attached = isPathSet(a)

		case *qlast.Ptr:
			if cur == nil {
				return nil, diag.NewInternalError("pointer step '%s' without a source", st.Name)
			}
			cur, err = c.compileStep(cur, st)
			attached = true

		case *qlast.TypeIntersection:
			if cur == nil {
				return nil, diag.NewInternalError("type intersection without a source")
			}
			cur, err = c.compileIntersection(cur, st)
			attached = true

		default:
			return nil, diag.NewInternalError("unexpected path step %T", step)
		}
		if err != nil {
			return nil, err
		}
	}
	if cur == nil {
		return nil, diag.NewInternalError("empty path")
	}
	cur.Span = p.Pos()

	if attached {
		if err := c.PathScope.AttachPath(cur.PathID, false, p.Pos(), c.env); err != nil {
			return nil, err
		}
	}
	return cur, nil
}

// compileRoot resolves the first step of a path: an alias bound by WITH
// or FOR, or an object type.
func (c *Context) compileRoot(ref *qlast.ObjectRef) (*ir.Set, bool, error) {
	if ref.Module == "" {
		if b, ok := c.AliasedViews[ref.Name]; ok {
			s := c.newSet(b.PathID, b.Type, b.Expr, ref.Pos())
			s.PathScopeID = b.PathScopeID
			s.Shape = b.Shape
			return s, true, nil
		}
	}

	t, ok := c.env.Schema.LookupType(ref.QualifiedName(), c.Module)
	if !ok {
		cands := c.env.Schema.TypeNamesInModule(c.Module)
		for name := range c.AliasedViews {
			cands = append(cands, name)
		}
		err := diag.NewReferenceError(diag.ErrCodeUnknownName, ref.Pos(),
			"object type or alias '%s' does not exist", ref.QualifiedName())
		if hint := diag.DidYouMean(ref.Name, cands); hint != "" {
			err = err.WithHint(hint)
		}
		return nil, false, err
	}
	obj, ok := t.(*schema.ObjectType)
	if !ok {
		return nil, false, diag.NewQueryError(diag.ErrCodeQuery, ref.Pos(),
			"'%s' is not an object type and cannot start a path", t.DisplayName())
	}
	return c.classSet(obj, ref.Pos()), true, nil
}

func (c *Context) compileStep(src *ir.Set, st *qlast.Ptr) (*ir.Set, error) {
	switch {
	case st.LinkProp:
		return c.compileLinkPropStep(src, st)
	case st.Direction == qltypes.Inbound:
		return c.compileBacklinkStep(src, st)
	}

	if tup, ok := src.Type.(*schema.TupleType); ok {
		return c.compileTupleStep(src, tup, st)
	}

	s := c.env.Schema
	obj, ok := src.Type.(*schema.ObjectType)
	if !ok {
		return nil, diag.NewQueryError(diag.ErrCodeQuery, st.Pos(),
			"invalid property reference on a primitive type expression")
	}
	p, ok := s.Pointer(obj.Name, st.Name)
	if !ok {
		err := diag.NewReferenceError(diag.ErrCodeUnknownPointer, st.Pos(),
			"object type '%s' has no link or property '%s'", obj.DisplayName(), st.Name)
		if hint := diag.DidYouMean(st.Name, s.PointerNames(obj)); hint != "" {
			err = err.WithHint(hint)
		}
		return nil, err
	}
	c.env.addSchemaRef(s.MaterialType(obj))
	c.env.addSchemaRef(p.Target)

	ref := &pathid.PtrRef{
		Name:        p.ShortName,
		Key:         p.Key(),
		Source:      obj,
		Target:      p.Target,
		Cardinality: p.Cardinality,
		Required:    p.Required,
	}
	id, err := src.PathID.Extend(ref, qltypes.Outbound, p.Target, c.Namespace...)
	if err != nil {
		return nil, diag.NewInternalError("extending %s with %s: %v", src.PathID.Pformat(), p.ShortName, err)
	}
	step := &ir.PathStep{Source: src, Ptr: ref, Direction: qltypes.Outbound}

	if p.Computed && p.Expr != nil {
		fctx := c.Enter(ModeNewFence).withPrefix(src)
		body, err := fctx.compileExpr(p.Expr)
		if err != nil {
			return nil, err
		}
		fenced(body, fctx.PathScope)
		step.Computed = true
		step.Body = body
		c.SourceMap[p.Key()] = p.Expr

		if _, settled := c.env.InferredCardinality[p.Key()]; !settled {
			c.registerPending(p, src, body, fctx.PathScope, st.Pos())
		}
	}
	return c.newSet(id, p.Target, step, st.Pos()), nil
}

func (c *Context) compileLinkPropStep(src *ir.Set, st *qlast.Ptr) (*ir.Set, error) {
	s := c.env.Schema
	step := src.Step()
	if step == nil || !schema.IsObject(src.Type) || step.Direction != qltypes.Outbound {
		return nil, diag.NewQueryError(diag.ErrCodeQuery, st.Pos(),
			"link property '%s' referenced outside of a link path", st.Name)
	}
	link, ok := s.PointerByKey(step.Ptr.Key)
	if !ok {
		return nil, diag.NewInternalError("link %s is not in the schema", step.Ptr.Key)
	}
	p, ok := s.LinkProperty(link, st.Name)
	if !ok {
		err := diag.NewReferenceError(diag.ErrCodeUnknownPointer, st.Pos(),
			"%s has no property '%s'", link.VerboseName(), st.Name)
		if hint := diag.DidYouMean(st.Name, link.LinkProps); hint != "" {
			err = err.WithHint(hint)
		}
		return nil, err
	}
	ref := &pathid.PtrRef{
		Name:        p.ShortName,
		Key:         p.Key(),
		Source:      src.Type,
		Target:      p.Target,
		Cardinality: p.Cardinality,
		Required:    p.Required,
		LinkProp:    true,
	}
	id, err := src.PathID.PtrPath().Extend(ref, qltypes.Outbound, p.Target, c.Namespace...)
	if err != nil {
		return nil, diag.NewInternalError("extending %s with @%s: %v", src.PathID.Pformat(), p.ShortName, err)
	}
	c.env.addSchemaRef(p.Target)
	return c.newSet(id, p.Target, &ir.PathStep{Source: src, Ptr: ref, Direction: qltypes.Outbound}, st.Pos()), nil
}

func (c *Context) compileBacklinkStep(src *ir.Set, st *qlast.Ptr) (*ir.Set, error) {
	s := c.env.Schema
	target := s.MaterialType(src.Type)
	if !schema.IsObject(target) {
		return nil, diag.NewQueryError(diag.ErrCodeQuery, st.Pos(),
			"backlink '%s' on a primitive type expression", st.Name)
	}
	links := s.Backlinks(target, st.Name)
	if len(links) == 0 {
		return nil, diag.NewReferenceError(diag.ErrCodeUnknownPointer, st.Pos(),
			"no link '%s' points to object type '%s'", st.Name, target.DisplayName())
	}
	sources := make([]schema.Type, 0, len(links))
	for _, l := range links {
		if t, ok := s.Type(l.Source); ok {
			sources = append(sources, t)
		}
	}
	rtype := s.NearestCommonAncestor(sources)
	if rtype == nil {
		return nil, diag.NewInternalError("backlink '%s' sources have no common ancestor", st.Name)
	}
	for _, t := range sources {
		c.env.addSchemaRef(t)
	}
	ref := &pathid.PtrRef{
		Name:        links[0].ShortName,
		Key:         links[0].Key(),
		Source:      target,
		Target:      rtype,
		Cardinality: links[0].Cardinality,
	}
	id, err := src.PathID.Extend(ref, qltypes.Inbound, rtype, c.Namespace...)
	if err != nil {
		return nil, diag.NewInternalError("extending %s with .<%s: %v", src.PathID.Pformat(), st.Name, err)
	}
	return c.newSet(id, rtype, &ir.PathStep{Source: src, Ptr: ref, Direction: qltypes.Inbound}, st.Pos()), nil
}

func (c *Context) compileTupleStep(src *ir.Set, tup *schema.TupleType, st *qlast.Ptr) (*ir.Set, error) {
	el, _, ok := tup.Element(st.Name)
	if !ok {
		return nil, diag.NewReferenceError(diag.ErrCodeUnknownPointer, st.Pos(),
			"%s has no element or property '%s'", tup.DisplayName(), st.Name)
	}
	ref := &pathid.PtrRef{
		Name:        st.Name,
		Source:      tup,
		Target:      el.Type,
		Cardinality: qltypes.SchemaOne,
		Required:    true,
		Kind:        pathid.PtrTupleIndirection,
	}
	id, err := src.PathID.Extend(ref, qltypes.Outbound, el.Type, c.Namespace...)
	if err != nil {
		return nil, diag.NewInternalError("extending %s with tuple element %s: %v", src.PathID.Pformat(), st.Name, err)
	}
	return c.newSet(id, el.Type, &ir.TupleIndirection{Source: src, Name: st.Name}, st.Pos()), nil
}

func (c *Context) compileIntersection(src *ir.Set, st *qlast.TypeIntersection) (*ir.Set, error) {
	s := c.env.Schema
	t, err := s.ResolveTypeName(st.Type, c.Module)
	if err != nil {
		return nil, err
	}
	obj, ok := t.(*schema.ObjectType)
	if !ok || !schema.IsObject(src.Type) {
		return nil, diag.NewQueryError(diag.ErrCodeQuery, st.Pos(),
			"cannot apply type intersection operator to %s", src.Type.DisplayName())
	}
	c.env.addSchemaRef(obj)
	if s.IsSubclass(src.Type, obj) {
		return src, nil
	}
	ref := &pathid.PtrRef{
		Name:        "[is " + obj.Name.String() + "]",
		Source:      src.Type,
		Target:      obj,
		Cardinality: qltypes.SchemaOne,
		Kind:        pathid.PtrTypeIntersection,
	}
	id, err := src.PathID.Extend(ref, qltypes.Outbound, obj, c.Namespace...)
	if err != nil {
		return nil, diag.NewInternalError("extending %s with %s: %v", src.PathID.Pformat(), ref.Name, err)
	}
	return c.newSet(id, obj, &ir.TypeIntersection{Source: src, Type: obj}, st.Pos()), nil
}
