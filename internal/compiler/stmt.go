package compiler

import (
	"github.com/roach88/pathql/internal/diag"
	"github.com/roach88/pathql/internal/inference"
	"github.com/roach88/pathql/internal/ir"
	"github.com/roach88/pathql/internal/pathid"
	"github.com/roach88/pathql/internal/qlast"
	"github.com/roach88/pathql/internal/qltypes"
	"github.com/roach88/pathql/internal/schema"
	"github.com/roach88/pathql/internal/scopetree"
)

func (c *Context) compileStatement(st qlast.Statement) (*ir.Set, error) {
	switch st := st.(type) {
	case *qlast.SelectQuery:
		return c.compileSelect(st)
	case *qlast.ForQuery:
		return c.compileFor(st)
	case *qlast.InsertQuery:
		return c.compileInsert(st)
	case *qlast.UpdateQuery:
		return c.compileUpdate(st)
	case *qlast.DeleteQuery:
		return c.compileDelete(st)
	default:
		return nil, diag.NewInternalError("unexpected statement %T", st)
	}
}

// compileAliases binds WITH aliases in c. Each alias is compiled in its
// own fence and referenced through the binding set.
func (c *Context) compileAliases(aliases []*qlast.Alias) ([]*ir.Set, error) {
	out := make([]*ir.Set, 0, len(aliases))
	for _, a := range aliases {
		fctx := c.Enter(ModeNewFence)
		v, err := fctx.compileExpr(a.Expr)
		if err != nil {
			return nil, err
		}
		fenced(v, fctx.PathScope)
		b := c.bindingSet(a.Name, v, fctx.PathScope, a.Expr.Pos())
		c.AliasedViews[a.Name] = b
		out = append(out, b)
	}
	return out, nil
}

func (c *Context) bindingSet(name string, v *ir.Set, scope *scopetree.Node, span diag.Span) *ir.Set {
	id := pathid.FromTypeNamed(v.Type, schema.NewName("__derived__", c.aliases.get(name)), c.Namespace...)
	b := c.newSet(id, v.Type, &ir.SelectStmt{Result: v, Implicit: true}, span)
	b.PathScopeID = scope.UniqueID
	b.Shape = v.Shape
	return b
}

func (c *Context) compileSelect(q *qlast.SelectQuery) (*ir.Set, error) {
	sctx := c.Enter(ModeSubquery)
	bindings, err := sctx.compileAliases(q.Aliases)
	if err != nil {
		return nil, err
	}

	result, err := sctx.compileExpr(q.Result)
	if err != nil {
		return nil, err
	}
	if q.ResultAlias != "" {
		sctx.AliasedViews[q.ResultAlias] = result
	}
	stmt := &ir.SelectStmt{Result: result, Implicit: q.Implicit, Bindings: bindings}

	if q.Where != nil {
		if stmt.Where, err = sctx.compileFilter(q.Where, result); err != nil {
			return nil, err
		}
	}

	for _, o := range q.OrderBy {
		octx := sctx.Enter(ModeNewFence).withPrefix(result)
		v, err := octx.compileExpr(o.Path)
		if err != nil {
			return nil, err
		}
		stmt.OrderBy = append(stmt.OrderBy, ir.SortExpr{
			Expr:      fenced(v, octx.PathScope),
			Desc:      o.Descending,
			NullsLast: o.Descending,
		})
	}

	if q.Offset != nil {
		if stmt.Offset, err = sctx.compileLimitClause(q.Offset, "OFFSET"); err != nil {
			return nil, err
		}
	}
	if q.Limit != nil {
		if stmt.Limit, err = sctx.compileLimitClause(q.Limit, "LIMIT"); err != nil {
			return nil, err
		}
	}

	return fenced(sctx.exprSet(result.Type, stmt, q.Pos()), sctx.PathScope), nil
}

// compileFilter compiles a FILTER clause against subject. The clause may
// not widen the subject, so its fence is an unnest fence.
func (c *Context) compileFilter(e qlast.Expr, subject *ir.Set) (*ir.Set, error) {
	wctx := c.Enter(ModeNewFence).withPrefix(subject)
	wctx.PathScope.UnnestFence = true
	w, err := wctx.compileExpr(e)
	if err != nil {
		return nil, err
	}
	if !schema.Same(w.Type, c.stdType("bool")) {
		return nil, diag.NewTypeError(diag.ErrCodeTypeMismatch, e.Pos(),
			"filter expression must be of type 'std::bool', got '%s'", w.Type.DisplayName())
	}
	return fenced(w, wctx.PathScope), nil
}

func (c *Context) compileLimitClause(e qlast.Expr, clause string) (*ir.Set, error) {
	lctx := c.Enter(ModeNewFence)
	v, err := lctx.compileExpr(e)
	if err != nil {
		return nil, err
	}
	i64 := c.stdType("int64")
	if !schema.IsAny(v.Type) && c.env.Schema.ImplicitCastDistance(v.Type, i64) < 0 {
		return nil, diag.NewTypeError(diag.ErrCodeTypeMismatch, e.Pos(),
			"%s clause must be of type 'std::int64', got '%s'", clause, v.Type.DisplayName())
	}
	if v, err = lctx.castSet(v, i64, 0, e.Pos(), ""); err != nil {
		return nil, err
	}
	return fenced(v, lctx.PathScope), nil
}

func (c *Context) compileFor(q *qlast.ForQuery) (*ir.Set, error) {
	fctx := c.Enter(ModeSubquery)
	if _, err := fctx.compileAliases(q.Aliases); err != nil {
		return nil, err
	}

	ictx := fctx.Enter(ModeNewFence)
	iter, err := ictx.compileExpr(q.Iterator)
	if err != nil {
		return nil, err
	}
	fenced(iter, ictx.PathScope)

	binding := fctx.bindingSet(q.IteratorAlias, iter, ictx.PathScope, q.Iterator.Pos())
	binding.Optional = q.Optional
	if err := fctx.PathScope.AttachPath(binding.PathID, q.Optional, q.Iterator.Pos(), c.env); err != nil {
		return nil, err
	}
	fctx.AliasedViews[q.IteratorAlias] = binding

	// DML in the body sees the iterator through its factoring fence.
	rctx := fctx
	if !c.env.Options.noIteratorAllowlist {
		rctx = fctx.withIterator(binding.PathID)
	}
	bctx := rctx.Enter(ModeNewFence)
	body, err := bctx.compileExpr(q.Result)
	if err != nil {
		return nil, err
	}
	fenced(body, bctx.PathScope)

	stmt := &ir.ForStmt{Iterator: binding, Result: body, Optional: q.Optional}
	return fenced(fctx.exprSet(body.Type, stmt, q.Pos()), fctx.PathScope), nil
}

// enterDML opens the frame of an INSERT or UPDATE: a subquery whose
// factoring fence only lets FOR iterators through.
func (c *Context) enterDML(span diag.Span) (*Context, error) {
	if c.InConflictSelect {
		return nil, diag.NewQueryError(diag.ErrCodeInvalidConflict, span,
			"data-modifying statements are not allowed in a conflict check")
	}
	dctx := c.Enter(ModeSubquery)
	dctx.PathScope.FactoringFence = true
	dctx.PathScope.FactoringAllowlist = append(dctx.PathScope.FactoringAllowlist, c.IteratorPathIDs...)
	return dctx, nil
}

// dmlValue compiles the value written to pointer p and schedules the
// check of its cardinality against p.
func (c *Context) dmlValue(p *schema.Pointer, obj *schema.ObjectType, el *qlast.ShapeElement, prefix *ir.Set) (*ir.Set, error) {
	s := c.env.Schema
	vctx := c.Enter(ModeNewFence)
	if prefix != nil {
		vctx = vctx.withPrefix(prefix)
	}
	v, err := vctx.compileExpr(el.Compexpr)
	if err != nil {
		return nil, err
	}
	if len(el.Elements) > 0 {
		if v, err = vctx.applyShape(v, el.Elements, el.Pos()); err != nil {
			return nil, err
		}
	}

	target := p.Target
	badTarget := func() error {
		return diag.NewTypeError(diag.ErrCodeTypeMismatch, el.Compexpr.Pos(),
			"invalid target for %s of object type '%s': '%s' (expecting '%s')",
			p.VerboseName(), obj.DisplayName(), s.MaterialType(v.Type).DisplayName(), target.DisplayName())
	}
	switch {
	case schema.IsObject(target):
		if ir.IsEmpty(v) {
			v = vctx.emptySet(target, v.Span)
		} else if !s.IsSubclass(v.Type, target) {
			return nil, badTarget()
		}
	case schema.Same(v.Type, target):
	case ir.IsEmpty(v) || c.assignable(v.Type, target):
		if v, err = vctx.castSet(v, target, 0, el.Compexpr.Pos(), ""); err != nil {
			return nil, err
		}
	default:
		return nil, badTarget()
	}
	fenced(v, vctx.PathScope)

	env, fence, span := c.env, vctx.PathScope, el.Compexpr.Pos()
	c.env.queue.Enqueue(func() error {
		from := fence.Parent()
		if from == nil {
			from = fence
		}
		card, err := inference.New(env.inferenceEnv()).Infer(v, from)
		if err != nil {
			return err
		}
		if !p.IsMulti() && card.IsMulti() {
			return diag.NewQueryError(diag.ErrCodeCardinalityMismatch, span,
				"possibly more than one element returned by an expression for %s of object type '%s' declared as 'single'",
				p.VerboseName(), obj.DisplayName())
		}
		if p.Required && card.CanBeZero() {
			return diag.NewQueryError(diag.ErrCodeCardinalityMismatch, span,
				"possibly an empty set returned by an expression for a required %s of object type '%s'",
				p.VerboseName(), obj.DisplayName())
		}
		return nil
	})
	return v, nil
}

// assignable reports whether a value of type from can be written to a
// pointer of type to: implicitly castable or with an assignment cast.
func (c *Context) assignable(from, to schema.Type) bool {
	s := c.env.Schema
	if s.ImplicitCastDistance(from, to) >= 0 || s.IsSubclass(from, to) {
		return true
	}
	if cast, ok := s.FindCast(from, to); ok && (cast.Implicit || cast.Assignment) {
		return true
	}
	fa, fok := from.(*schema.ArrayType)
	ta, tok := to.(*schema.ArrayType)
	return fok && tok && c.assignable(fa.Element, ta.Element)
}

// dmlPointer resolves a pointer written by a DML shape.
func (c *Context) dmlPointer(obj *schema.ObjectType, el *qlast.ShapeElement, verb string) (*schema.Pointer, error) {
	s := c.env.Schema
	if el.LinkProp {
		return nil, diag.NewUnsupportedError(el.Pos(), "link properties cannot be %s directly", verb)
	}
	if el.Compexpr == nil {
		return nil, diag.NewQueryError(diag.ErrCodeQuery, el.Pos(),
			"mutation queries must specify values with ':='")
	}
	p, ok := s.Pointer(obj.Name, el.Name)
	if !ok {
		err := diag.NewReferenceError(diag.ErrCodeUnknownPointer, el.Pos(),
			"object type '%s' has no link or property '%s'", obj.DisplayName(), el.Name)
		if hint := diag.DidYouMean(el.Name, s.PointerNames(obj)); hint != "" {
			err = err.WithHint(hint)
		}
		return nil, err
	}
	if p.Computed {
		return nil, diag.NewQueryError(diag.ErrCodeQuery, el.Pos(),
			"modification of computed %s of object type '%s' is prohibited", p.VerboseName(), obj.DisplayName())
	}
	return p, nil
}

func (c *Context) compileInsert(q *qlast.InsertQuery) (*ir.Set, error) {
	s := c.env.Schema
	ictx, err := c.enterDML(q.Pos())
	if err != nil {
		return nil, err
	}
	if _, err := ictx.compileAliases(q.Aliases); err != nil {
		return nil, err
	}

	t, ok := s.LookupType(q.Subject.QualifiedName(), c.Module)
	if !ok {
		err := diag.NewReferenceError(diag.ErrCodeUnknownName, q.Subject.Pos(),
			"object type '%s' does not exist", q.Subject.QualifiedName())
		if hint := diag.DidYouMean(q.Subject.Name, s.TypeNamesInModule(c.Module)); hint != "" {
			err = err.WithHint(hint)
		}
		return nil, err
	}
	obj, ok := t.(*schema.ObjectType)
	if !ok {
		return nil, diag.NewQueryError(diag.ErrCodeQuery, q.Subject.Pos(),
			"cannot insert into expression of type '%s'", t.DisplayName())
	}
	if obj.Abstract {
		return nil, diag.NewQueryError(diag.ErrCodeQuery, q.Subject.Pos(),
			"cannot insert into abstract object type '%s'", obj.DisplayName())
	}
	if obj.View {
		return nil, diag.NewQueryError(diag.ErrCodeQuery, q.Subject.Pos(),
			"cannot insert into expression alias '%s'", obj.DisplayName())
	}
	c.env.addSchemaRef(obj)

	subject := ictx.newSet(
		pathid.FromTypeNamed(obj, schema.NewName(obj.Name.Module, c.aliases.get(obj.Name.Name)), ictx.Namespace...),
		obj, &ir.TypeRoot{Type: obj}, q.Subject.Pos())
	if err := ictx.PathScope.AttachPath(subject.PathID, false, q.Subject.Pos(), c.env); err != nil {
		return nil, err
	}

	subj := &dmlSubject{set: subject, typ: obj, values: make(map[string]*ir.Set), span: q.Pos()}
	for _, el := range q.Shape {
		if _, dup := subj.values[el.Name]; dup {
			return nil, diag.NewQueryError(diag.ErrCodeQuery, el.Pos(),
				"duplicate assignment to '%s' of object type '%s'", el.Name, obj.DisplayName())
		}
		p, err := ictx.dmlPointer(obj, el, "inserted")
		if err != nil {
			return nil, err
		}
		v, err := ictx.dmlValue(p, obj, el, nil)
		if err != nil {
			return nil, err
		}
		if p.IsID() {
			subj.explicitID = true
		}
		subj.values[el.Name] = v
		subject.Shape = append(subject.Shape, &ir.ShapeElement{
			Name:        el.Name,
			Set:         v,
			Op:          ir.ShapeAssign,
			Cardinality: qltypes.FromBounds(p.Required, p.IsMulti()),
		})
	}

	for _, p := range s.Pointers(obj) {
		if !p.Required || p.Computed || p.IsID() {
			continue
		}
		if _, ok := subj.values[p.ShortName]; !ok {
			return nil, diag.NewQueryError(diag.ErrCodeQuery, q.Pos(),
				"missing value for required %s of object type '%s'", p.VerboseName(), obj.DisplayName())
		}
	}

	stmt := &ir.InsertStmt{Subject: subject}
	set := ictx.newSet(subject.PathID, obj, stmt, q.Pos())
	if q.UnlessConflict != nil {
		if stmt.OnConflict, err = ictx.compileUnlessConflict(subj, q.UnlessConflict); err != nil {
			return nil, err
		}
	}
	if stmt.ConflictChecks, err = ictx.inheritanceConflictChecks(subj, set); err != nil {
		return nil, err
	}

	c.env.DMLStmts = append(c.env.DMLStmts, set)
	return fenced(set, ictx.PathScope), nil
}

// compileDMLSubject compiles the subject of UPDATE or DELETE, which must
// be a set of objects.
func (c *Context) compileDMLSubject(e qlast.Expr, verb string) (*ir.Set, *schema.ObjectType, error) {
	subject, err := c.compileExpr(e)
	if err != nil {
		return nil, nil, err
	}
	obj, ok := subject.Type.(*schema.ObjectType)
	if !ok {
		return nil, nil, diag.NewQueryError(diag.ErrCodeQuery, e.Pos(),
			"cannot %s non-object type '%s'", verb, subject.Type.DisplayName())
	}
	material, _ := c.env.Schema.MaterialType(obj).(*schema.ObjectType)
	if material == nil {
		material = obj
	}
	return subject, material, nil
}

func (c *Context) compileUpdate(q *qlast.UpdateQuery) (*ir.Set, error) {
	uctx, err := c.enterDML(q.Pos())
	if err != nil {
		return nil, err
	}
	if _, err := uctx.compileAliases(q.Aliases); err != nil {
		return nil, err
	}
	subject, obj, err := uctx.compileDMLSubject(q.Subject, "update")
	if err != nil {
		return nil, err
	}

	stmt := &ir.UpdateStmt{}
	if q.Where != nil {
		if stmt.Where, err = uctx.compileFilter(q.Where, subject); err != nil {
			return nil, err
		}
	}

	target := *subject
	target.Shape = nil
	subj := &dmlSubject{set: &target, typ: obj, update: true, values: make(map[string]*ir.Set), span: q.Pos()}
	for _, el := range q.Shape {
		if _, dup := subj.values[el.Name]; dup {
			return nil, diag.NewQueryError(diag.ErrCodeQuery, el.Pos(),
				"duplicate assignment to '%s' of object type '%s'", el.Name, obj.DisplayName())
		}
		p, err := uctx.dmlPointer(obj, el, "updated")
		if err != nil {
			return nil, err
		}
		if p.Readonly {
			return nil, diag.NewQueryError(diag.ErrCodeQuery, el.Pos(),
				"cannot update %s of object type '%s': it is declared as read-only", p.VerboseName(), obj.DisplayName())
		}
		v, err := uctx.dmlValue(p, obj, el, subject)
		if err != nil {
			return nil, err
		}
		subj.values[el.Name] = v
		target.Shape = append(target.Shape, &ir.ShapeElement{
			Name:        el.Name,
			Set:         v,
			Op:          ir.ShapeAssign,
			Cardinality: qltypes.FromBounds(p.Required, p.IsMulti()),
		})
	}
	c.env.SetTypes[&target] = target.Type
	stmt.Subject = &target

	set := uctx.newSet(subject.PathID, subject.Type, stmt, q.Pos())
	if stmt.ConflictChecks, err = uctx.inheritanceConflictChecks(subj, set); err != nil {
		return nil, err
	}
	c.env.DMLStmts = append(c.env.DMLStmts, set)
	return fenced(set, uctx.PathScope), nil
}

func (c *Context) compileDelete(q *qlast.DeleteQuery) (*ir.Set, error) {
	if c.InConflictSelect {
		return nil, diag.NewQueryError(diag.ErrCodeInvalidConflict, q.Pos(),
			"data-modifying statements are not allowed in a conflict check")
	}
	dctx := c.Enter(ModeSubquery)
	if _, err := dctx.compileAliases(q.Aliases); err != nil {
		return nil, err
	}
	subject, _, err := dctx.compileDMLSubject(q.Subject, "delete")
	if err != nil {
		return nil, err
	}

	stmt := &ir.DeleteStmt{Subject: subject}
	if q.Where != nil {
		if stmt.Where, err = dctx.compileFilter(q.Where, subject); err != nil {
			return nil, err
		}
	}
	set := dctx.newSet(subject.PathID, subject.Type, stmt, q.Pos())
	c.env.DMLStmts = append(c.env.DMLStmts, set)
	return fenced(set, dctx.PathScope), nil
}
