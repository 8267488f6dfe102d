// Package inference computes the cardinality of compiled IR sets.
//
// Cardinality belongs to a reference, not to a set: the same set is ONE
// where its path is visible in the scope tree and may be MANY elsewhere.
// Every query therefore names the scope node the reference is evaluated
// from.
package inference

import (
	"github.com/roach88/pathql/internal/diag"
	"github.com/roach88/pathql/internal/ir"
	"github.com/roach88/pathql/internal/pathid"
	"github.com/roach88/pathql/internal/qltypes"
	"github.com/roach88/pathql/internal/schema"
	"github.com/roach88/pathql/internal/scopetree"
)

// Env is what inference reads besides the IR.
type Env struct {
	Schema *schema.Schema

	// Scopes maps scope node unique ids to nodes.
	Scopes map[int]*scopetree.Node

	// PointerCardinality returns the settled cardinality of a computed
	// pointer, by pointer key.
	PointerCardinality func(key string) (qltypes.Cardinality, bool)

	// Warn receives non-fatal diagnostics. May be nil.
	Warn func(*diag.Error)
}

// Inferrer infers and memoizes cardinalities for one statement.
type Inferrer struct {
	env        Env
	singletons []*pathid.PathID
	memo       map[memoKey]qltypes.Cardinality
}

type memoKey struct {
	set   *ir.Set
	scope *scopetree.Node
}

// New returns an Inferrer over env.
func New(env Env) *Inferrer {
	return &Inferrer{env: env, memo: make(map[memoKey]qltypes.Cardinality)}
}

// WithSingletons returns an Inferrer that treats ids as bound to a single
// value, as the source of a shape is while its elements are inferred.
func (in *Inferrer) WithSingletons(ids ...*pathid.PathID) *Inferrer {
	s := make([]*pathid.PathID, 0, len(in.singletons)+len(ids))
	s = append(s, in.singletons...)
	s = append(s, ids...)
	return &Inferrer{env: in.env, singletons: s, memo: make(map[memoKey]qltypes.Cardinality)}
}

// Infer returns the cardinality of a reference to s evaluated from scope.
func Infer(env Env, s *ir.Set, scope *scopetree.Node) (qltypes.Cardinality, error) {
	return New(env).Infer(s, scope)
}

// Infer returns the cardinality of a reference to s evaluated from scope.
func (in *Inferrer) Infer(s *ir.Set, scope *scopetree.Node) (qltypes.Cardinality, error) {
	if s == nil {
		return qltypes.CardinalityUnknown, diag.NewInternalError("cardinality of a nil set")
	}
	key := memoKey{set: s, scope: scope}
	if c, ok := in.memo[key]; ok {
		return c, nil
	}
	// A bound singleton is ONE without looking inside: shape elements step
	// from the very set that carries the shape.
	if s.PathID != nil && in.isSingleton(s.PathID) {
		in.memo[key] = qltypes.One
		return qltypes.One, nil
	}

	card, err := in.inferInner(s, scope)
	if err != nil {
		return qltypes.CardinalityUnknown, err
	}

	if s.PathID != nil && scope != nil {
		if node := scope.FindVisible(s.PathID); node != nil {
			if node.Optional {
				// Visible but optional: at most one, keep the lower bound.
				card = qltypes.FromBounds(!card.CanBeZero(), false)
			} else {
				card = qltypes.One
			}
		}
	}

	in.memo[key] = card
	return card, nil
}

func (in *Inferrer) isSingleton(id *pathid.PathID) bool {
	for _, s := range in.singletons {
		if s.Equal(id) {
			return true
		}
	}
	return false
}

// scopeOf is the node a set's own expression is evaluated in.
func (in *Inferrer) scopeOf(s *ir.Set, scope *scopetree.Node) *scopetree.Node {
	if s.PathScopeID != 0 {
		if n, ok := in.env.Scopes[s.PathScopeID]; ok {
			return n
		}
	}
	return scope
}

func (in *Inferrer) inferInner(s *ir.Set, scope *scopetree.Node) (qltypes.Cardinality, error) {
	inner := in.scopeOf(s, scope)
	card, err := in.inferExpr(s, scope, inner)
	if err != nil {
		return qltypes.CardinalityUnknown, err
	}
	if len(s.Shape) > 0 {
		if err := in.inferShape(s, inner); err != nil {
			return qltypes.CardinalityUnknown, err
		}
	}
	return card, nil
}

func (in *Inferrer) inferShape(s *ir.Set, scope *scopetree.Node) error {
	elems := in.WithSingletons(s.PathID)
	for _, el := range s.Shape {
		c, err := elems.Infer(el.Set, scope)
		if err != nil {
			return err
		}
		if el.Cardinality == qltypes.CardinalityUnknown {
			el.Cardinality = c
		}
	}
	return nil
}

func (in *Inferrer) inferExpr(s *ir.Set, scope, inner *scopetree.Node) (qltypes.Cardinality, error) {
	switch x := s.Expr.(type) {
	case *ir.TypeRoot:
		return qltypes.Many, nil

	case *ir.PathStep:
		return in.inferStep(s, x, scope, inner)

	case *ir.TypeIntersection:
		src, err := in.Infer(x.Source, scope)
		if err != nil {
			return 0, err
		}
		return qltypes.Product(src, qltypes.AtMostOne), nil

	case *ir.TupleIndirection:
		return in.Infer(x.Source, scope)

	case *ir.Constant:
		return qltypes.One, nil

	case *ir.EmptySet:
		return qltypes.AtMostOne, nil

	case *ir.Tuple:
		sets := make([]*ir.Set, len(x.Elements))
		for i, el := range x.Elements {
			sets[i] = el.Val
		}
		return in.product(sets, inner)

	case *ir.Array:
		return in.product(x.Elements, inner)

	case *ir.FunctionCall:
		return in.inferFunctionCall(x, inner)

	case *ir.OperatorCall:
		return in.inferOperatorCall(x, inner)

	case *ir.TypeCast:
		card, err := in.Infer(x.Expr, inner)
		if err != nil {
			return 0, err
		}
		if x.Required() {
			return qltypes.FromBounds(true, card.IsMulti()), nil
		}
		// json null casts to the empty set.
		if t, ok := x.From.(*schema.ScalarType); ok && t.Name == schema.StdName("json") {
			return qltypes.FromBounds(false, card.IsMulti()), nil
		}
		return card, nil

	case *ir.IfElse:
		cond, err := in.Infer(x.Cond, inner)
		if err != nil {
			return 0, err
		}
		then, err := in.Infer(x.Then, inner)
		if err != nil {
			return 0, err
		}
		els, err := in.Infer(x.Else, inner)
		if err != nil {
			return 0, err
		}
		return qltypes.Product(cond, qltypes.Either(then, els)), nil

	case *ir.SelectStmt:
		return in.inferSelect(x, scope, inner)

	case *ir.ForStmt:
		iter, err := in.Infer(x.Iterator, scope)
		if err != nil {
			return 0, err
		}
		body, err := in.Infer(x.Result, inner)
		if err != nil {
			return 0, err
		}
		return qltypes.Product(iter, body), nil

	case *ir.InsertStmt:
		if _, err := in.Infer(x.Subject, inner); err != nil {
			return 0, err
		}
		if err := in.inferConflicts(x.ConflictChecks, inner); err != nil {
			return 0, err
		}
		if x.OnConflict == nil {
			return qltypes.One, nil
		}
		if _, err := in.Infer(x.OnConflict.SelectIR, inner); err != nil {
			return 0, err
		}
		card := qltypes.AtMostOne
		if x.OnConflict.ElseIR != nil {
			els, err := in.Infer(x.OnConflict.ElseIR, inner)
			if err != nil {
				return 0, err
			}
			card = Max(card, els)
		}
		return card, nil

	case *ir.UpdateStmt:
		card, err := in.inferFiltered(x.Subject, x.Where, scope, inner)
		if err != nil {
			return 0, err
		}
		return card, in.inferConflicts(x.ConflictChecks, inner)

	case *ir.DeleteStmt:
		return in.inferFiltered(x.Subject, x.Where, scope, inner)

	default:
		return qltypes.CardinalityUnknown, diag.NewInternalError("cannot infer cardinality of %T", x)
	}
}

func (in *Inferrer) inferStep(s *ir.Set, x *ir.PathStep, scope, inner *scopetree.Node) (qltypes.Cardinality, error) {
	src, err := in.Infer(x.Source, scope)
	if err != nil {
		return 0, err
	}
	ptr := x.Ptr.DirCardinality(x.Direction)
	if x.Ptr.Kind == pathid.PtrTypeIntersection {
		ptr = qltypes.AtMostOne
	}
	if ptr == qltypes.CardinalityUnknown && x.Computed {
		if in.env.PointerCardinality != nil {
			if c, ok := in.env.PointerCardinality(x.Ptr.Key); ok {
				ptr = c
			}
		}
		if ptr == qltypes.CardinalityUnknown && x.Body != nil {
			ptr, err = in.WithSingletons(x.Source.PathID).Infer(x.Body, inner)
			if err != nil {
				return 0, err
			}
		}
	}
	if ptr == qltypes.CardinalityUnknown {
		return 0, diag.NewInternalError("cardinality of pointer %s is not known", s.PathID.Pformat())
	}
	return qltypes.Product(src, ptr), nil
}

func (in *Inferrer) product(sets []*ir.Set, scope *scopetree.Node) (qltypes.Cardinality, error) {
	card := qltypes.One
	for _, s := range sets {
		c, err := in.Infer(s, scope)
		if err != nil {
			return 0, err
		}
		card = qltypes.Product(card, c)
	}
	return card, nil
}

func (in *Inferrer) argCards(args []ir.CallArg, scope *scopetree.Node) ([]qltypes.Cardinality, error) {
	cards := make([]qltypes.Cardinality, len(args))
	for i, a := range args {
		c, err := in.Infer(a.Set, scope)
		if err != nil {
			return nil, err
		}
		cards[i] = c
	}
	return cards, nil
}

// TypemodCardinality is the cardinality a return type modifier implies.
func TypemodCardinality(m qltypes.TypeModifier) qltypes.Cardinality {
	switch m {
	case qltypes.SetOfType:
		return qltypes.Many
	case qltypes.OptionalType:
		return qltypes.AtMostOne
	default:
		return qltypes.One
	}
}

// standardCall is the cross product of the non-aggregate arguments and
// the declared return. OPTIONAL arguments do not make the result empty.
func standardCall(args []ir.CallArg, cards []qltypes.Cardinality, ret qltypes.TypeModifier) qltypes.Cardinality {
	card := TypemodCardinality(ret)
	for i, a := range args {
		switch a.Typemod {
		case qltypes.SingletonType:
			card = qltypes.Product(card, cards[i])
		case qltypes.OptionalType:
			card = qltypes.Product(card, qltypes.FromBounds(true, cards[i].IsMulti()))
		}
	}
	return card
}

func (in *Inferrer) inferFunctionCall(x *ir.FunctionCall, scope *scopetree.Node) (qltypes.Cardinality, error) {
	cards, err := in.argCards(x.Args, scope)
	if err != nil {
		return 0, err
	}

	switch x.Func {
	case schema.StdName("assert_exists"):
		return qltypes.FromBounds(true, cards[0].IsMulti()), nil
	case schema.StdName("assert_single"):
		return qltypes.FromBounds(!cards[0].CanBeZero(), false), nil
	case schema.StdName("assert_distinct"), schema.StdName("enumerate"):
		return cards[0], nil
	}

	if x.PreservesOptionality {
		required, multi := true, TypemodCardinality(x.Typemod).IsMulti()
		for i, a := range x.Args {
			if a.Typemod == qltypes.OptionalType {
				multi = multi || cards[i].IsMulti()
				continue
			}
			required = required && !cards[i].CanBeZero()
		}
		return qltypes.FromBounds(required, multi), nil
	}
	return standardCall(x.Args, cards, x.Typemod), nil
}

func (in *Inferrer) inferOperatorCall(x *ir.OperatorCall, scope *scopetree.Node) (qltypes.Cardinality, error) {
	cards, err := in.argCards(x.Args, scope)
	if err != nil {
		return 0, err
	}
	switch x.Op {
	case schema.StdName("UNION"):
		return qltypes.Union(cards[0], cards[1]), nil
	case schema.StdName("EXCEPT"):
		return qltypes.FromBounds(false, cards[0].IsMulti()), nil
	case schema.StdName("INTERSECT"):
		return qltypes.FromBounds(false, cards[0].IsMulti() && cards[1].IsMulti()), nil
	case schema.StdName("??"):
		return Max(cards[0], cards[1]), nil
	case schema.StdName("DISTINCT"):
		return cards[0], nil
	}
	return standardCall(x.Args, cards, x.Typemod), nil
}

// Max takes the larger of both bounds.
func Max(a, b qltypes.Cardinality) qltypes.Cardinality {
	if a == qltypes.CardinalityUnknown || b == qltypes.CardinalityUnknown {
		return qltypes.CardinalityUnknown
	}
	return qltypes.FromBounds(!a.CanBeZero() || !b.CanBeZero(), a.IsMulti() || b.IsMulti())
}

func (in *Inferrer) inferSelect(x *ir.SelectStmt, scope, inner *scopetree.Node) (qltypes.Cardinality, error) {
	for _, b := range x.Bindings {
		if _, err := in.Infer(b, inner); err != nil {
			return 0, err
		}
	}
	card, err := in.inferFiltered(x.Result, x.Where, scope, inner)
	if err != nil {
		return 0, err
	}

	for _, o := range x.OrderBy {
		if err := in.singletonOnly(o.Expr, inner); err != nil {
			return 0, err
		}
	}
	for _, part := range []*ir.Set{x.Offset, x.Limit} {
		if part == nil {
			continue
		}
		if err := in.singletonOnly(part, inner); err != nil {
			return 0, err
		}
	}

	if x.Limit != nil {
		c, ok := x.Limit.Expr.(*ir.Constant)
		switch {
		case ok && c.Kind == ir.IntegerConst && c.Value == "1":
			card = qltypes.FromBounds(!card.CanBeZero(), false)
		case !ok || c.Kind != ir.IntegerConst || c.Value == "0":
			// LIMIT 0, or a LIMIT that could be 0.
			card = qltypes.FromBounds(false, card.IsMulti())
		}
	}
	if x.Offset != nil {
		card = qltypes.FromBounds(false, card.IsMulti())
	}
	return card, nil
}

// inferFiltered infers the result of a statement restricted by an
// optional FILTER clause.
func (in *Inferrer) inferFiltered(result, where *ir.Set, scope, inner *scopetree.Node) (qltypes.Cardinality, error) {
	card, err := in.Infer(result, scope)
	if err != nil {
		return 0, err
	}
	if where == nil {
		return card, nil
	}

	wc, err := in.Infer(where, inner)
	if err != nil {
		return 0, err
	}
	if wc.IsMulti() && where.Span.IsValid() && in.env.Warn != nil {
		in.env.Warn(diag.NewQueryError(diag.ErrCodeCardinalityMismatch, where.Span,
			"possibly more than one element returned by an expression in a FILTER clause").
			WithHint("If this is intended, try using any()"))
	}

	card = qltypes.Product(card, qltypes.AtMostOne)
	if card.IsMulti() {
		exclusive, err := in.filtersOnExclusive(result, where, inner)
		if err != nil {
			return 0, err
		}
		if exclusive {
			card = qltypes.AtMostOne
		}
	}
	return card, nil
}

func (in *Inferrer) singletonOnly(s *ir.Set, scope *scopetree.Node) error {
	card, err := in.Infer(s, in.scopeOf(s, scope))
	if err != nil {
		return err
	}
	if card.IsMulti() {
		return diag.NewQueryError(diag.ErrCodeCardinalityMismatch, s.Span,
			"possibly more than one element returned by an expression where only singletons are allowed")
	}
	return nil
}

func (in *Inferrer) inferConflicts(checks []*ir.OnConflictClause, scope *scopetree.Node) error {
	for _, c := range checks {
		if _, err := in.Infer(c.SelectIR, scope); err != nil {
			return err
		}
	}
	return nil
}
