package inference

import (
	"slices"

	"github.com/roach88/pathql/internal/ir"
	"github.com/roach88/pathql/internal/qltypes"
	"github.com/roach88/pathql/internal/schema"
	"github.com/roach88/pathql/internal/scopetree"
)

// filtersOnExclusive reports whether a FILTER clause pins the pointers of
// an exclusive constraint of result's type to singleton values, so at
// most one object can pass it.
func (in *Inferrer) filtersOnExclusive(result, where *ir.Set, scope *scopetree.Node) (bool, error) {
	s := in.env.Schema
	if s == nil {
		return false, nil
	}
	obj, ok := s.MaterialType(result.Type).(*schema.ObjectType)
	if !ok {
		return false, nil
	}
	ptrs, err := in.extractFilters(result, where, in.scopeOf(where, scope))
	if err != nil || len(ptrs) == 0 {
		return false, err
	}

	var names []string
	for _, p := range ptrs {
		for _, c := range s.PointerConstraints(p) {
			if enforcesUniqueness(c) {
				return true, nil
			}
		}
		names = append(names, p.ShortName)
	}
	for _, c := range s.ConstraintsOf(obj.Name) {
		if !c.IsObjectLevel() || !enforcesUniqueness(c) {
			continue
		}
		covered := true
		for _, p := range c.SubjectPointers {
			if !slices.Contains(names, p) {
				covered = false
				break
			}
		}
		if covered {
			return true, nil
		}
	}
	return false, nil
}

// Constraints with an except clause or delegated to subtypes do not
// guarantee uniqueness of the type they are declared on.
func enforcesUniqueness(c *schema.Constraint) bool {
	return c.IsExclusive() && !c.Abstract && !c.Delegated && c.Except == nil
}

// extractFilters collects the pointers of result compared with '=' to a
// singleton, through any number of ANDs.
func (in *Inferrer) extractFilters(result, filter *ir.Set, scope *scopetree.Node) ([]*schema.Pointer, error) {
	op, ok := filter.Expr.(*ir.OperatorCall)
	if !ok || len(op.Args) != 2 {
		return nil, nil
	}
	left, right := op.Args[0].Set, op.Args[1].Set

	switch op.Op {
	case schema.StdName("AND"):
		l, err := in.extractFilters(result, left, in.scopeOf(left, scope))
		if err != nil {
			return nil, err
		}
		r, err := in.extractFilters(result, right, in.scopeOf(right, scope))
		if err != nil {
			return nil, err
		}
		return append(l, r...), nil

	case schema.StdName("="):
		ptr := in.directPointer(result, left)
		other := right
		if ptr == nil {
			ptr, other = in.directPointer(result, right), left
		}
		if ptr == nil {
			return nil, nil
		}
		card, err := in.Infer(other, scope)
		if err != nil {
			return nil, err
		}
		if !card.IsSingle() {
			return nil, nil
		}
		return []*schema.Pointer{ptr}, nil
	}
	return nil, nil
}

// directPointer returns the schema pointer when s is a non-computed
// forward step from result, or the id pointer when s is result itself.
func (in *Inferrer) directPointer(result, s *ir.Set) *schema.Pointer {
	sch := in.env.Schema
	if s.PathID != nil && result.PathID != nil && s.PathID.Equal(result.PathID) {
		obj, ok := sch.MaterialType(result.Type).(*schema.ObjectType)
		if !ok {
			return nil
		}
		p, _ := sch.Pointer(obj.Name, "id")
		return p
	}
	step := s.Step()
	if step == nil || step.Computed || step.Direction != qltypes.Outbound || step.Ptr.LinkProp {
		return nil
	}
	if step.Source.PathID == nil || result.PathID == nil || !step.Source.PathID.Equal(result.PathID) {
		return nil
	}
	p, ok := sch.PointerByKey(step.Ptr.Key)
	if !ok {
		return nil
	}
	return p
}
