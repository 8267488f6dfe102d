package compiler

import (
	"maps"
	"slices"

	"github.com/roach88/pathql/internal/diag"
	"github.com/roach88/pathql/internal/ir"
	"github.com/roach88/pathql/internal/pathid"
	"github.com/roach88/pathql/internal/qlast"
	"github.com/roach88/pathql/internal/qltypes"
	"github.com/roach88/pathql/internal/schema"
)

// ptrConstraints are exclusive pointer constraints by pointer name.
type ptrConstraints map[string]ptrEntry

type ptrEntry struct {
	ptr     *schema.Pointer
	constrs []*schema.Constraint
}

// typeConstraints are the constraints one object type contributes to a
// conflict check.
type typeConstraints struct {
	typ  *schema.ObjectType
	ptrs ptrConstraints
	obj  []*schema.Constraint
}

// dmlSubject is what conflict compilation needs from the statement
// being compiled.
type dmlSubject struct {
	set    *ir.Set
	typ    *schema.ObjectType
	update bool

	// values are the written pointer values by name.
	values map[string]*ir.Set
	// explicitID is set when the statement writes id itself.
	explicitID bool
	span       diag.Span
}

// constrMatters reports whether c is enforced. With onlyLocal it must
// also be where the constraint starts applying: owned, or inherited only
// from delegated or abstract ancestors.
func (c *Context) constrMatters(cn *schema.Constraint, onlyLocal bool) bool {
	if cn.Abstract || cn.Delegated {
		return false
	}
	if !onlyLocal || cn.Owned {
		return true
	}
	for _, an := range cn.Ancestors {
		anc, ok := c.env.Schema.Constraint(an)
		if ok && !anc.Delegated && !anc.Abstract {
			return false
		}
	}
	return true
}

func (c *Context) exclusivePtrConstraints(obj *schema.ObjectType, includeID bool) ptrConstraints {
	s := c.env.Schema
	out := make(ptrConstraints)
	for _, p := range s.Pointers(obj) {
		if p.IsID() && !includeID {
			continue
		}
		var ex []*schema.Constraint
		for _, cn := range s.PointerConstraints(p) {
			if cn.IsExclusive() {
				ex = append(ex, cn)
			}
		}
		if len(ex) > 0 {
			out[p.ShortName] = ptrEntry{ptr: p, constrs: ex}
		}
	}
	return out
}

func (c *Context) exclusiveObjectConstraints(obj *schema.ObjectType) []*schema.Constraint {
	var out []*schema.Constraint
	for _, cn := range c.env.Schema.ConstraintsOf(obj.Name) {
		if cn.IsObjectLevel() && cn.IsExclusive() {
			out = append(out, cn)
		}
	}
	return out
}

// splitConstraints groups constraints by the ancestor type each one
// starts applying on, so an inherited constraint is checked once against
// its owner.
func (c *Context) splitConstraints(obj []*schema.Constraint, ptrs ptrConstraints) []*typeConstraints {
	s := c.env.Schema
	var (
		order []*typeConstraints
		byTyp = make(map[schema.Name]*typeConstraints)
	)
	entry := func(n schema.Name) *typeConstraints {
		if tc, ok := byTyp[n]; ok {
			return tc
		}
		ot, _ := s.ObjectType(n)
		tc := &typeConstraints{typ: ot, ptrs: make(ptrConstraints)}
		byTyp[n] = tc
		order = append(order, tc)
		return tc
	}
	chain := func(cn *schema.Constraint) []*schema.Constraint {
		out := []*schema.Constraint{cn}
		for _, an := range cn.Ancestors {
			if anc, ok := s.Constraint(an); ok {
				out = append(out, anc)
			}
		}
		return out
	}

	for _, name := range sortedKeys(ptrs) {
		for _, pc := range ptrs[name].constrs {
			for _, anc := range chain(pc) {
				if !c.constrMatters(anc, true) {
					continue
				}
				p, ok := s.Pointer(anc.Subject, anc.SubjectPointer)
				if !ok {
					continue
				}
				tc := entry(anc.Subject)
				e := tc.ptrs[name]
				e.ptr = p
				e.constrs = append(e.constrs, anc)
				tc.ptrs[name] = e
			}
		}
	}
	for _, oc := range obj {
		for _, anc := range chain(oc) {
			if !c.constrMatters(anc, true) {
				continue
			}
			tc := entry(anc.Subject)
			tc.obj = append(tc.obj, anc)
		}
	}
	return order
}

func sortedKeys(m ptrConstraints) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// conflictSelect synthesizes a query for the existing objects that
// would collide with the values the statement writes, one fragment per
// type contributing constraints.
func (c *Context) conflictSelect(subj *dmlSubject, typ *schema.ObjectType, ptrs ptrConstraints, obj []*schema.Constraint, forInheritance bool, fake *ir.Set) (sel *ir.Set, alwaysCheck, fromParent bool, err error) {
	var groups []*typeConstraints
	if forInheritance {
		groups = []*typeConstraints{{typ: typ, ptrs: ptrs, obj: obj}}
	} else {
		groups = c.splitConstraints(obj, ptrs)
	}

	sctx := c.Enter(ModeNewFence)
	sctx.InConflictSelect = true

	var frags []qlast.Expr
	for _, g := range groups {
		if g.typ == nil {
			continue
		}
		frag, multi, err := sctx.conflictFragment(subj, g, forInheritance, fake)
		if err != nil {
			return nil, false, false, err
		}
		alwaysCheck = alwaysCheck || multi
		if frag != nil {
			if !schema.Same(g.typ, typ) {
				fromParent = true
			}
			frags = append(frags, frag)
		}
	}
	alwaysCheck = alwaysCheck || fromParent || c.env.Schema.HasNonViewChildren(typ)

	if len(frags) == 0 {
		return c.emptySet(typ, subj.span), alwaysCheck, fromParent, nil
	}
	sel, err = sctx.compileExpr(&qlast.Set{Base: qlast.Base{Loc: subj.span}, Elements: frags})
	if err != nil {
		return nil, false, false, err
	}
	fenced(sel, sctx.PathScope)

	c.env.logger.Debug("conflict select synthesized",
		"subject", subj.typ.Name.String(),
		"type", typ.Name.String(),
		"fragments", len(frags),
		"always_check", alwaysCheck)
	return sel, alwaysCheck, fromParent, nil
}

// conflictFragment builds the DETACHED SELECT for one contributing type.
// Values are bound as anchors on c, so the fragment must be compiled in
// c. It returns nil when nothing is checked.
func (c *Context) conflictFragment(subj *dmlSubject, g *typeConstraints, forInheritance bool, fake *ir.Set) (qlast.Expr, bool, error) {
	s := c.env.Schema
	span := subj.span
	base := qlast.Base{Loc: span}

	needed := make(map[string]bool)
	for name := range g.ptrs {
		needed[name] = true
	}
	for _, oc := range g.obj {
		for _, p := range oc.Pointers() {
			needed[p] = true
		}
		if oc.Except != nil {
			for _, p := range subjectPtrs(oc.Except) {
				needed[p] = true
			}
		}
	}

	anchors := make(map[string]string)
	bind := func(name string, v *ir.Set) {
		a := c.aliases.get("__val__")
		c.Anchors[a] = v
		anchors[name] = a
	}
	c.Anchors = maps.Clone(c.Anchors)

	if fake != nil {
		for _, name := range append(sortedNames(needed), "id") {
			v, err := c.compileStep(fake, &qlast.Ptr{Base: base, Name: name, Direction: qltypes.Outbound})
			if err != nil {
				return nil, false, err
			}
			bind(name, v)
		}
	}

	inShape := len(subj.values) > 0
	for _, name := range sortedNames(needed) {
		if v, ok := subj.values[name]; ok {
			if _, bound := anchors[name]; !bound {
				bind(name, v)
			}
		}
	}
	if forInheritance && !inShape {
		return nil, false, nil
	}

	for _, name := range sortedNames(needed) {
		if _, ok := anchors[name]; ok {
			continue
		}
		p, ok := s.Pointer(g.typ.Name, name)
		if !ok {
			return nil, false, diag.NewInternalError("constraint pointer '%s' missing on %s", name, g.typ.Name)
		}
		bind(name, c.emptySet(p.Target, span))
	}
	if len(anchors) == 0 {
		return nil, false, diag.NewQueryError(diag.ErrCodeInvalidConflict, span,
			"INSERT UNLESS CONFLICT property requires matching shape")
	}

	var conds []qlast.Expr
	for _, name := range sortedKeys(g.ptrs) {
		a, ok := anchors[name]
		if !ok {
			continue
		}
		op := "="
		if g.ptrs[name].ptr.IsMulti() {
			op = "IN"
		}
		for range g.ptrs[name].constrs {
			conds = append(conds, &qlast.BinOp{Base: base, Op: op, Left: anchorPath(a, span), Right: ptrPath(name, false, span)})
		}
	}
	for _, oc := range g.obj {
		var lhs, rhs qlast.Expr
		if ps := oc.Pointers(); len(ps) == 1 {
			lhs, rhs = anchorPath(anchors[ps[0]], span), ptrPath(ps[0], false, span)
		} else {
			l := &qlast.Tuple{Base: base}
			r := &qlast.Tuple{Base: base}
			for _, p := range ps {
				l.Elements = append(l.Elements, anchorPath(anchors[p], span))
				r.Elements = append(r.Elements, ptrPath(p, false, span))
			}
			lhs, rhs = l, r
		}
		var cond qlast.Expr = &qlast.BinOp{Base: base, Op: "=", Left: lhs, Right: rhs}

		if oc.Except != nil {
			truth := &qlast.BooleanConstant{Base: base, Value: true}
			cond = &qlast.BinOp{Base: base, Op: "AND", Left: cond, Right: &qlast.BinOp{
				Base:  base,
				Op:    "AND",
				Left:  &qlast.BinOp{Base: base, Op: "?!=", Left: substituteSubjectPaths(oc.Except, anchors), Right: truth},
				Right: &qlast.BinOp{Base: base, Op: "?!=", Left: oc.Except, Right: truth},
			}}
		}
		conds = append(conds, cond)
	}
	if len(conds) == 0 {
		return nil, false, nil
	}

	var cond qlast.Expr
	if len(conds) == 1 {
		cond = conds[0]
	} else {
		// any() rather than OR: a side may be empty.
		cond = &qlast.FunctionCall{Base: base, Func: "std::any", Args: []qlast.Expr{&qlast.Set{Base: base, Elements: conds}}}
	}
	if fake != nil {
		cond = &qlast.BinOp{Base: base, Op: "AND", Left: cond, Right: &qlast.BinOp{
			Base:  base,
			Op:    "!=",
			Left:  anchorPath(anchors["id"], span),
			Right: ptrPath("id", false, span),
		}}
	}

	hasMulti := false
	for name := range needed {
		if p, ok := s.Pointer(g.typ.Name, name); ok && p.IsMulti() {
			hasMulti = true
		}
	}

	sel := &qlast.DetachedExpr{Base: base, Expr: &qlast.SelectQuery{
		Base: base,
		Result: &qlast.Path{Base: base, Steps: []qlast.PathStep{
			&qlast.ObjectRef{Base: base, Module: g.typ.Name.Module, Name: g.typ.Name.Name},
		}},
		Where: cond,
	}}
	return sel, hasMulti, nil
}

func sortedNames(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// compileUnlessConflict compiles INSERT ... UNLESS CONFLICT [ON ...]
// [ELSE ...].
func (c *Context) compileUnlessConflict(subj *dmlSubject, uc *qlast.UnlessConflict) (*ir.OnConflictClause, error) {
	if uc.On == nil {
		if uc.Else != nil {
			return nil, diag.NewQueryError(diag.ErrCodeInvalidConflict, uc.Pos(),
				"UNLESS CONFLICT without ON cannot have an ELSE clause")
		}
		sel, always, _, err := c.conflictSelect(subj, subj.typ,
			c.exclusivePtrConstraints(subj.typ, subj.explicitID),
			c.exclusiveObjectConstraints(subj.typ), false, nil)
		if err != nil {
			return nil, err
		}
		return &ir.OnConflictClause{Subject: subj.typ.Name, SelectIR: sel, AlwaysCheck: always}, nil
	}

	s := c.env.Schema
	octx := c.Enter(ModeNewFence).withPrefix(c.classSet(subj.typ, uc.On.Pos()))
	spec, err := octx.compileExpr(uc.On)
	if err != nil {
		return nil, err
	}
	args := []*ir.Set{spec}
	if tup, ok := spec.Expr.(*ir.Tuple); ok {
		args = args[:0]
		for _, el := range tup.Elements {
			args = append(args, el.Val)
		}
	}

	var ptrs []*schema.Pointer
	for _, a := range args {
		step, ok := a.Expr.(*ir.PathStep)
		if !ok || step.Direction != qltypes.Outbound || step.Ptr.Kind != pathid.PtrRegular {
			return nil, diag.NewQueryError(diag.ErrCodeInvalidConflict, uc.On.Pos(),
				"UNLESS CONFLICT argument must be a property, link, or tuple of properties and links")
		}
		if step.Source.Step() != nil || !schema.Same(s.MaterialType(step.Source.Type), subj.typ) {
			return nil, diag.NewQueryError(diag.ErrCodeInvalidConflict, uc.On.Pos(),
				"UNLESS CONFLICT argument must be a property of the type being inserted")
		}
		p, ok := s.PointerByKey(step.Ptr.Key)
		if !ok || p.IsLinkProperty() {
			return nil, diag.NewQueryError(diag.ErrCodeInvalidConflict, uc.On.Pos(),
				"UNLESS CONFLICT argument must be a property, link, or tuple of properties and links")
		}
		ptrs = append(ptrs, p)
	}

	names := make([]string, len(ptrs))
	for i, p := range ptrs {
		names[i] = p.ShortName
	}
	var objConstrs []*schema.Constraint
	for _, oc := range c.exclusiveObjectConstraints(subj.typ) {
		if sameNames(oc.Pointers(), names) {
			objConstrs = append(objConstrs, oc)
		}
	}
	var fieldConstrs []*schema.Constraint
	if len(ptrs) == 1 {
		for _, cn := range s.PointerConstraints(ptrs[0]) {
			if cn.IsExclusive() {
				fieldConstrs = append(fieldConstrs, cn)
			}
		}
	}
	all := append(slices.Clone(objConstrs), fieldConstrs...)
	if len(all) != 1 {
		return nil, diag.NewQueryError(diag.ErrCodeInvalidConflict, uc.On.Pos(),
			"UNLESS CONFLICT property must have a single exclusive constraint")
	}

	ds := make(ptrConstraints, len(ptrs))
	for _, p := range ptrs {
		ds[p.ShortName] = ptrEntry{ptr: p, constrs: fieldConstrs}
	}
	sel, always, fromParent, err := c.conflictSelect(subj, subj.typ, ds, objConstrs, false, nil)
	if err != nil {
		return nil, err
	}

	clause := &ir.OnConflictClause{
		Constraint:  all[0].Name,
		Subject:     subj.typ.Name,
		SelectIR:    sel,
		AlwaysCheck: always,
	}
	c.env.addNameRef(all[0].Name)

	if uc.Else != nil {
		if fromParent {
			return nil, diag.NewUnsupportedError(uc.On.Pos(),
				"UNLESS CONFLICT can not use ELSE when constraint is from a parent type").
				WithDetail("reason", "The existing object can't be exposed in the ELSE clause because it may not have type "+subj.typ.Name.String())
		}
		// ELSE may reference the subject, e.g. to UPDATE it.
		ectx := c.Enter(ModeNewFence).withIterator(subj.set.PathID)
		els, err := ectx.compileExpr(ensureQuery(uc.Else))
		if err != nil {
			return nil, err
		}
		clause.ElseIR = fenced(els, ectx.PathScope)
	}
	return clause, nil
}

func ensureQuery(e qlast.Expr) qlast.Expr {
	if _, ok := e.(qlast.Statement); ok {
		return e
	}
	return &qlast.SelectQuery{Base: qlast.Base{Loc: e.Pos()}, Result: e, Implicit: true}
}

func sameNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x, y := slices.Clone(a), slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(x, y)
}

// inheritanceConflictChecks compiles the checks between this statement
// and earlier DML in the same query on related types. Their nearest
// common ancestors other than std::BaseObject share constraints that
// per-type enforcement would miss. An explicit id write is checked
// against std::BaseObject.
func (c *Context) inheritanceConflictChecks(subj *dmlSubject, self *ir.Set) ([]*ir.OnConflictClause, error) {
	s := c.env.Schema
	var relevant []*ir.Set
	for _, d := range c.env.DMLStmts {
		if _, del := d.Expr.(*ir.DeleteStmt); !del {
			relevant = append(relevant, d)
		}
	}
	if subj.update {
		relevant = append(relevant, self)
	}
	if len(relevant) == 0 && !subj.explicitID {
		return nil, nil
	}

	baseObject, _ := s.ObjectType(schema.StdName("BaseObject"))
	subject, _ := s.MaterialType(subj.typ).(*schema.ObjectType)
	if subject == nil {
		return nil, diag.NewInternalError("DML subject %s is not an object type", subj.typ.DisplayName())
	}
	subjects := []*schema.ObjectType{subject}
	if subj.update {
		subjects = c.concreteTypes(subject)
	}

	type check struct {
		subject, anc *schema.ObjectType
		stmt         *ir.Set
	}
	var (
		checks []check
		seen   = make(map[[3]any]bool)
	)
	add := func(st, anc *schema.ObjectType, stmt *ir.Set) {
		k := [3]any{st.Name, anc.Name, stmt}
		if !seen[k] {
			seen[k] = true
			checks = append(checks, check{st, anc, stmt})
		}
	}

	for _, d := range relevant {
		if d == self && len(subjects) == 1 {
			continue
		}
		dt, _ := s.MaterialType(dmlSubjectType(d)).(*schema.ObjectType)
		if dt == nil {
			continue
		}
		typs := []*schema.ObjectType{dt}
		if _, upd := d.Expr.(*ir.UpdateStmt); upd {
			typs = c.concreteTypes(dt)
		}
		for _, t := range typs {
			for _, st := range subjects {
				if schema.Same(st, t) {
					continue
				}
				for _, anc := range s.NearestCommonAncestors([]schema.Type{st, t}) {
					ao, ok := anc.(*schema.ObjectType)
					if ok && (baseObject == nil || !schema.Same(ao, baseObject)) {
						add(st, ao, d)
					}
				}
			}
		}
	}
	if subj.explicitID && baseObject != nil {
		add(subject, baseObject, self)
	}

	var out []*ir.OnConflictClause
	for _, ch := range checks {
		if ch.subject.Abstract {
			continue
		}
		clauses, err := c.inheritanceConflictSelects(subj, ch.anc, ch.subject)
		if err != nil {
			return nil, err
		}
		out = append(out, clauses...)
	}
	return out, nil
}

func dmlSubjectType(d *ir.Set) schema.Type {
	switch e := d.Expr.(type) {
	case *ir.InsertStmt:
		return e.Subject.Type
	case *ir.UpdateStmt:
		return e.Subject.Type
	case *ir.DeleteStmt:
		return e.Subject.Type
	default:
		return d.Type
	}
}

// concreteTypes returns t and its descendants that are not abstract or
// views.
func (c *Context) concreteTypes(t *schema.ObjectType) []*schema.ObjectType {
	var out []*schema.ObjectType
	for _, d := range append([]schema.Type{t}, c.env.Schema.Descendants(t)...) {
		if o, ok := d.(*schema.ObjectType); ok && !o.Abstract && !o.View {
			out = append(out, o)
		}
	}
	return out
}

// inheritanceConflictSelects emits one check per constraint of typ the
// statement can violate, so a failure names its constraint.
func (c *Context) inheritanceConflictSelects(subj *dmlSubject, typ, subjectType *schema.ObjectType) ([]*ir.OnConflictClause, error) {
	s := c.env.Schema
	for _, p := range s.Pointers(typ) {
		if !p.IsLink() {
			continue
		}
		for _, lp := range p.LinkProps {
			prop, ok := s.LinkProperty(p, lp)
			if !ok {
				continue
			}
			for _, cn := range s.PointerConstraints(prop) {
				if cn.IsExclusive() {
					return nil, diag.NewUnsupportedError(subj.span,
						"INSERT/UPDATE do not support exclusive constraints on link properties when another statement in the same query modifies a related type")
				}
			}
		}
	}

	ptrs := c.exclusivePtrConstraints(typ, subj.explicitID)
	type entry struct {
		cn   *schema.Constraint
		ptrs ptrConstraints
		obj  []*schema.Constraint
	}
	var entries []entry
	for _, name := range sortedKeys(ptrs) {
		pe := ptrs[name]
		for _, pc := range pe.constrs {
			_, written := subj.values[name]
			if c.constrMatters(pc, false) && (!subj.update || written) {
				entries = append(entries, entry{cn: pc, ptrs: ptrConstraints{name: {ptr: pe.ptr, constrs: []*schema.Constraint{pc}}}})
			}
		}
	}
	for _, oc := range c.exclusiveObjectConstraints(typ) {
		if !c.constrMatters(oc, false) {
			continue
		}
		written := !subj.update
		for _, p := range oc.Pointers() {
			if _, ok := subj.values[p]; ok {
				written = true
			}
		}
		if written {
			entries = append(entries, entry{cn: oc, obj: []*schema.Constraint{oc}})
		}
	}

	var fake *ir.Set
	if subj.update {
		base := qlast.Base{Loc: subj.span}
		f, err := c.compileExpr(&qlast.DetachedExpr{Base: base, Expr: &qlast.Path{Base: base, Steps: []qlast.PathStep{
			&qlast.ObjectRef{Base: base, Module: subjectType.Name.Module, Name: subjectType.Name.Name},
		}}})
		if err != nil {
			return nil, err
		}
		fake = f
	}

	var out []*ir.OnConflictClause
	for _, e := range entries {
		sel, always, _, err := c.conflictSelect(subj, typ, e.ptrs, e.obj, true, fake)
		if err != nil {
			return nil, err
		}
		if ir.IsEmpty(sel) {
			continue
		}
		c.env.addNameRef(e.cn.Name)
		out = append(out, &ir.OnConflictClause{
			Constraint:  e.cn.Name,
			Subject:     typ.Name,
			SelectIR:    sel,
			AlwaysCheck: always,
		})
	}
	return out, nil
}

// subjectPtrs lists the pointers an expression reads from its subject
// through partial paths.
func subjectPtrs(e qlast.Expr) []string {
	seen := make(map[string]bool)
	mapPartialPaths(e, func(p *qlast.Path) qlast.Expr {
		if ptr, ok := p.Steps[0].(*qlast.Ptr); ok && !ptr.LinkProp {
			seen[ptr.Name] = true
		}
		return p
	})
	return sortedNames(seen)
}

// substituteSubjectPaths replaces partial paths .p with the anchor bound
// for p.
func substituteSubjectPaths(e qlast.Expr, anchors map[string]string) qlast.Expr {
	return mapPartialPaths(e, func(p *qlast.Path) qlast.Expr {
		ptr, ok := p.Steps[0].(*qlast.Ptr)
		if !ok {
			return p
		}
		a, ok := anchors[ptr.Name]
		if !ok {
			return p
		}
		out := anchorPath(a, p.Pos())
		out.Steps = append(out.Steps, p.Steps[1:]...)
		return out
	})
}

func mapPartialPaths(e qlast.Expr, fn func(*qlast.Path) qlast.Expr) qlast.Expr {
	rec := func(x qlast.Expr) qlast.Expr {
		if x == nil {
			return nil
		}
		return mapPartialPaths(x, fn)
	}
	recAll := func(xs []qlast.Expr) []qlast.Expr {
		out := make([]qlast.Expr, len(xs))
		for i, x := range xs {
			out[i] = rec(x)
		}
		return out
	}

	switch e := e.(type) {
	case *qlast.Path:
		if e.Partial && len(e.Steps) > 0 {
			return fn(e)
		}
		return e
	case *qlast.BinOp:
		n := *e
		n.Left, n.Right = rec(e.Left), rec(e.Right)
		return &n
	case *qlast.UnaryOp:
		n := *e
		n.Operand = rec(e.Operand)
		return &n
	case *qlast.FunctionCall:
		n := *e
		n.Args = recAll(e.Args)
		n.Kwargs = make([]qlast.KeywordArg, len(e.Kwargs))
		for i, kw := range e.Kwargs {
			n.Kwargs[i] = qlast.KeywordArg{Name: kw.Name, Val: rec(kw.Val)}
		}
		return &n
	case *qlast.TypeCast:
		n := *e
		n.Expr = rec(e.Expr)
		return &n
	case *qlast.IfElse:
		n := *e
		n.Condition, n.IfExpr, n.ElseExpr = rec(e.Condition), rec(e.IfExpr), rec(e.ElseExpr)
		return &n
	case *qlast.Tuple:
		n := *e
		n.Elements = recAll(e.Elements)
		return &n
	case *qlast.Set:
		n := *e
		n.Elements = recAll(e.Elements)
		return &n
	case *qlast.Array:
		n := *e
		n.Elements = recAll(e.Elements)
		return &n
	case *qlast.NamedTuple:
		n := *e
		n.Elements = make([]qlast.TupleElement, len(e.Elements))
		for i, el := range e.Elements {
			n.Elements[i] = qlast.TupleElement{Name: el.Name, Val: rec(el.Val)}
		}
		return &n
	default:
		return e
	}
}
