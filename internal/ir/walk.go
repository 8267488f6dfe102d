package ir

// Children returns the sets an expression reads, in evaluation order.
// Shape elements are not included; Walk visits them separately.
func Children(e Expr) []*Set {
	var out []*Set
	add := func(ss ...*Set) {
		for _, s := range ss {
			if s != nil {
				out = append(out, s)
			}
		}
	}
	switch e := e.(type) {
	case *PathStep:
		add(e.Source, e.Body)
	case *TypeIntersection:
		add(e.Source)
	case *TupleIndirection:
		add(e.Source)
	case *Tuple:
		for _, el := range e.Elements {
			add(el.Val)
		}
	case *Array:
		add(e.Elements...)
	case *FunctionCall:
		for _, a := range e.Args {
			add(a.Set)
		}
	case *OperatorCall:
		for _, a := range e.Args {
			add(a.Set)
		}
	case *TypeCast:
		add(e.Expr)
	case *IfElse:
		add(e.Cond, e.Then, e.Else)
	case *SelectStmt:
		add(e.Bindings...)
		add(e.Result, e.Where)
		for _, o := range e.OrderBy {
			add(o.Expr)
		}
		add(e.Offset, e.Limit)
	case *ForStmt:
		add(e.Iterator, e.Result)
	case *InsertStmt:
		add(e.Subject)
		if e.OnConflict != nil {
			add(e.OnConflict.SelectIR, e.OnConflict.ElseIR)
		}
		for _, c := range e.ConflictChecks {
			add(c.SelectIR)
		}
	case *UpdateStmt:
		add(e.Subject, e.Where)
		for _, c := range e.ConflictChecks {
			add(c.SelectIR)
		}
	case *DeleteStmt:
		add(e.Subject, e.Where)
	}
	return out
}

// Walk visits s and every set reachable from it depth-first, including
// shape elements. Returning false from fn skips the set's children. A set
// shared by several parents is visited once.
func Walk(s *Set, fn func(*Set) bool) {
	seen := make(map[*Set]bool)
	var visit func(*Set)
	visit = func(s *Set) {
		if s == nil || seen[s] {
			return
		}
		seen[s] = true
		if !fn(s) {
			return
		}
		for _, c := range Children(s.Expr) {
			visit(c)
		}
		for _, el := range s.Shape {
			visit(el.Set)
		}
	}
	visit(s)
}
