package schema

import "slices"

// MaxTypeDistance is the cast distance assigned to matches against
// abstract candidates and to comparisons involving std::anytype.
const MaxTypeDistance = 1_000_000_000

// Ancestors returns the ancestors of a named type, nearest first
// (breadth-first over the declared bases). Collections have no ancestors.
func (s *Schema) Ancestors(t Type) []Type {
	var out []Type
	seen := map[Name]bool{t.QualifiedName(): true}
	queue := slices.Clone(directBases(t))
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if seen[n] {
			continue
		}
		seen[n] = true
		bt, ok := s.types[n]
		if !ok {
			continue
		}
		out = append(out, bt)
		queue = append(queue, directBases(bt)...)
	}
	return out
}

func (s *Schema) selfAndAncestors(t Type) []Type {
	return append([]Type{t}, s.Ancestors(t)...)
}

// IsSubclass reports whether t is parent or derives from it. Collections
// are compared element-wise.
func (s *Schema) IsSubclass(t, parent Type) bool {
	if Same(t, parent) || IsAny(parent) {
		return true
	}
	switch t := t.(type) {
	case *ObjectType, *ScalarType:
		for _, a := range s.Ancestors(t) {
			if Same(a, parent) {
				return true
			}
		}
		return false
	case *ArrayType:
		p, ok := parent.(*ArrayType)
		return ok && s.IsSubclass(t.Element, p.Element)
	case *RangeType:
		p, ok := parent.(*RangeType)
		return ok && s.IsSubclass(t.Element, p.Element)
	case *MultirangeType:
		p, ok := parent.(*MultirangeType)
		return ok && s.IsSubclass(t.Element, p.Element)
	case *TupleType:
		if IsAnyTuple(parent) {
			return true
		}
		p, ok := parent.(*TupleType)
		if !ok || !sameTupleShape(t, p) {
			return false
		}
		for i := range t.Elements {
			if !s.IsSubclass(t.Elements[i].Type, p.Elements[i].Type) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func sameTupleShape(a, b *TupleType) bool {
	if len(a.Elements) != len(b.Elements) {
		return false
	}
	if a.Named && b.Named {
		return slices.Equal(a.ElementNames(), b.ElementNames())
	}
	return true
}

// Children returns the direct subtypes of t, sorted by name.
func (s *Schema) Children(t Type) []Type {
	names := s.children[t.QualifiedName()]
	out := make([]Type, 0, len(names))
	for _, n := range names {
		out = append(out, s.types[n])
	}
	return out
}

// Descendants returns every transitive subtype of t, sorted by name.
func (s *Schema) Descendants(t Type) []Type {
	seen := make(map[Name]bool)
	var names []Name
	queue := slices.Clone(s.children[t.QualifiedName()])
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if seen[n] {
			continue
		}
		seen[n] = true
		names = append(names, n)
		queue = append(queue, s.children[n]...)
	}
	sortNames(names)
	out := make([]Type, len(names))
	for i, n := range names {
		out[i] = s.types[n]
	}
	return out
}

// HasNonViewChildren reports whether t has subtypes that are not views.
func (s *Schema) HasNonViewChildren(t Type) bool {
	for _, c := range s.Children(t) {
		if o, ok := c.(*ObjectType); ok && o.View {
			continue
		}
		return true
	}
	return false
}

// NearestCommonAncestors returns the most specific types that all of types
// derive from (each type counts as its own ancestor). The result follows
// the ancestor order of the first type.
func (s *Schema) NearestCommonAncestors(types []Type) []Type {
	if len(types) == 0 {
		return nil
	}
	var common []Type
	for _, cand := range s.selfAndAncestors(types[0]) {
		all := true
		for _, other := range types[1:] {
			if !s.IsSubclass(other, cand) {
				all = false
				break
			}
		}
		if all {
			common = append(common, cand)
		}
	}

	var nearest []Type
	for _, c := range common {
		shadowed := false
		for _, d := range common {
			if !Same(c, d) && s.IsSubclass(d, c) {
				shadowed = true
				break
			}
		}
		if !shadowed {
			nearest = append(nearest, c)
		}
	}
	return nearest
}

// NearestCommonAncestor returns the first nearest common ancestor or nil.
func (s *Schema) NearestCommonAncestor(types []Type) Type {
	if nca := s.NearestCommonAncestors(types); len(nca) > 0 {
		return nca[0]
	}
	return nil
}

// MaterialType returns the schema type a view projects, or t itself.
func (s *Schema) MaterialType(t Type) Type {
	if o, ok := t.(*ObjectType); ok && o.View && !o.ViewOf.IsZero() {
		if base, ok := s.types[o.ViewOf]; ok {
			return base
		}
	}
	return t
}

// TopmostConcreteBase returns the most general non-abstract ancestor of a
// scalar, or the scalar itself.
func (s *Schema) TopmostConcreteBase(t *ScalarType) *ScalarType {
	top := t
	for _, a := range s.Ancestors(t) {
		if sc, ok := a.(*ScalarType); ok && !sc.Abstract {
			top = sc
		}
	}
	return top
}

// BaseForCast returns the type casts from t are registered against: enums
// use std::anyenum, other types themselves.
func (s *Schema) BaseForCast(t Type) Type {
	if IsEnum(t) {
		if ae, ok := s.types[StdName("anyenum")]; ok {
			return ae
		}
	}
	return t
}

// ImplicitCastDistance returns the number of implicit cast steps from ->
// to, 0 for identical types, or -1 when there is no implicit path.
func (s *Schema) ImplicitCastDistance(from, to Type) int {
	switch f := from.(type) {
	case *ScalarType:
		t, ok := to.(*ScalarType)
		if !ok || f.Abstract || t.Abstract {
			return -1
		}
		return s.scalarCastDistance(s.TopmostConcreteBase(f), s.TopmostConcreteBase(t))
	case *ArrayType:
		t, ok := to.(*ArrayType)
		if !ok {
			return -1
		}
		return s.ImplicitCastDistance(f.Element, t.Element)
	case *RangeType:
		switch t := to.(type) {
		case *RangeType:
			return s.ImplicitCastDistance(f.Element, t.Element)
		case *MultirangeType:
			if d := s.ImplicitCastDistance(f.Element, t.Element); d >= 0 {
				return d + 1
			}
		}
		return -1
	case *MultirangeType:
		t, ok := to.(*MultirangeType)
		if !ok {
			return -1
		}
		return s.ImplicitCastDistance(f.Element, t.Element)
	case *TupleType:
		t, ok := to.(*TupleType)
		if !ok || !sameTupleShape(f, t) {
			return -1
		}
		total := 0
		for i := range f.Elements {
			d := s.ImplicitCastDistance(f.Elements[i].Type, t.Elements[i].Type)
			if d < 0 {
				return -1
			}
			total += d
		}
		return total
	default:
		return -1
	}
}

// scalarCastDistance runs a breadth-first search over implicit casts.
func (s *Schema) scalarCastDistance(from, to Type) int {
	for _, step := range s.implicitCastLadder(from) {
		if Same(step.t, to) {
			return step.dist
		}
	}
	return -1
}

type ladderStep struct {
	t    Type
	dist int
}

// implicitCastLadder lists from and every type reachable from it by
// implicit casts, in breadth-first order with distances.
func (s *Schema) implicitCastLadder(from Type) []ladderStep {
	out := []ladderStep{{from, 0}}
	seen := map[Name]bool{from.QualifiedName(): true}
	for i := 0; i < len(out); i++ {
		for _, c := range s.ImplicitCastsFrom(out[i].t) {
			n := c.To.QualifiedName()
			if seen[n] {
				continue
			}
			seen[n] = true
			out = append(out, ladderStep{c.To, out[i].dist + 1})
		}
	}
	return out
}

// FindCommonImplicitlyCastableType returns the most specific type both a
// and b implicitly cast to, or nil.
func (s *Schema) FindCommonImplicitlyCastableType(a, b Type) Type {
	if Same(a, b) {
		return a
	}
	switch at := a.(type) {
	case *ScalarType:
		bt, ok := b.(*ScalarType)
		if !ok {
			return nil
		}
		if at.Abstract && bt.Abstract {
			return a
		}
		if at.Abstract || bt.Abstract {
			return nil
		}
		left, right := s.TopmostConcreteBase(at), s.TopmostConcreteBase(bt)
		if Same(left, right) {
			return left
		}
		return s.findCommonCastableType(left, right)
	case *ObjectType:
		if _, ok := b.(*ObjectType); !ok {
			return nil
		}
		return s.NearestCommonAncestor([]Type{a, b})
	case *ArrayType:
		bt, ok := b.(*ArrayType)
		if !ok {
			return nil
		}
		if el := s.FindCommonImplicitlyCastableType(at.Element, bt.Element); el != nil {
			return &ArrayType{Element: el}
		}
	case *RangeType:
		bt, ok := b.(*RangeType)
		if !ok {
			return nil
		}
		if el := s.FindCommonImplicitlyCastableType(at.Element, bt.Element); el != nil {
			return &RangeType{Element: el}
		}
	case *MultirangeType:
		bt, ok := b.(*MultirangeType)
		if !ok {
			return nil
		}
		if el := s.FindCommonImplicitlyCastableType(at.Element, bt.Element); el != nil {
			return &MultirangeType{Element: el}
		}
	case *TupleType:
		bt, ok := b.(*TupleType)
		if !ok || !sameTupleShape(at, bt) {
			return nil
		}
		els := make([]TupleElement, len(at.Elements))
		for i := range at.Elements {
			el := s.FindCommonImplicitlyCastableType(at.Elements[i].Type, bt.Elements[i].Type)
			if el == nil {
				return nil
			}
			els[i] = TupleElement{Name: at.Elements[i].Name, Type: el}
		}
		return &TupleType{Elements: els, Named: at.Named}
	}
	return nil
}

func (s *Schema) findCommonCastableType(source, target Type) Type {
	if s.scalarCastDistance(target, source) >= 0 {
		return source
	}
	if s.scalarCastDistance(source, target) >= 0 {
		return target
	}
	for _, step := range s.implicitCastLadder(target)[1:] {
		if s.scalarCastDistance(source, step.t) >= 0 {
			return step.t
		}
	}
	return nil
}

// CommonParentTypeDistance measures how far a is from the nearest type it
// shares with b. It is used to break ties between equally cheap overloads.
func (s *Schema) CommonParentTypeDistance(a, b Type) int {
	switch at := a.(type) {
	case *ObjectType, *ScalarType:
		if IsAny(a) || IsAny(b) {
			return MaxTypeDistance
		}
		if !sameKind(a, b) {
			return -1
		}
		if Same(a, b) {
			return 0
		}
		ancestors := s.NearestCommonAncestors([]Type{a, b})
		if len(ancestors) == 0 {
			return -1
		}
		all := s.Ancestors(at)
		best := -1
		for _, anc := range ancestors {
			if Same(anc, a) {
				return 0
			}
			for i, x := range all {
				if Same(x, anc) && (best < 0 || i+1 < best) {
					best = i + 1
				}
			}
		}
		return best
	case *ArrayType, *TupleType, *RangeType, *MultirangeType:
		if IsAny(b) {
			return 1
		}
		if !sameKind(a, b) {
			return -1
		}
		mine, others := Subtypes(a), Subtypes(b)
		if len(mine) != len(others) {
			return -1
		}
		total := 0
		for i := range mine {
			d := s.CommonParentTypeDistance(mine[i], others[i])
			if d < 0 {
				return -1
			}
			total += d
		}
		return total
	case *PseudoType:
		if IsAny(a) || IsAny(b) {
			return MaxTypeDistance
		}
		if Same(a, b) {
			return 0
		}
		return -1
	default:
		return -1
	}
}

func sameKind(a, b Type) bool {
	switch a.(type) {
	case *ObjectType:
		_, ok := b.(*ObjectType)
		return ok
	case *ScalarType:
		_, ok := b.(*ScalarType)
		return ok
	case *ArrayType:
		_, ok := b.(*ArrayType)
		return ok
	case *TupleType:
		_, ok := b.(*TupleType)
		return ok
	case *RangeType:
		_, ok := b.(*RangeType)
		return ok
	case *MultirangeType:
		_, ok := b.(*MultirangeType)
		return ok
	case *PseudoType:
		_, ok := b.(*PseudoType)
		return ok
	default:
		return false
	}
}

// TestPolymorphic reports whether t can be matched by the polymorphic
// type poly.
func (s *Schema) TestPolymorphic(t, poly Type) bool {
	if !IsPolymorphic(poly) {
		return false
	}
	if IsAny(poly) {
		return true
	}
	switch t := t.(type) {
	case *PseudoType:
		return IsAny(t) || (IsAnyTuple(t) && IsAnyTuple(poly))
	case *ScalarType:
		return s.IsSubclass(t, poly)
	case *ArrayType:
		p, ok := poly.(*ArrayType)
		return ok && s.testElement(t.Element, p.Element)
	case *RangeType:
		switch p := poly.(type) {
		case *RangeType:
			return s.testElement(t.Element, p.Element)
		case *MultirangeType:
			return s.testElement(t.Element, p.Element)
		}
		return false
	case *MultirangeType:
		p, ok := poly.(*MultirangeType)
		return ok && s.testElement(t.Element, p.Element)
	case *TupleType:
		if IsAnyTuple(poly) {
			return true
		}
		p, ok := poly.(*TupleType)
		if !ok || len(p.Elements) != len(t.Elements) {
			return false
		}
		for i := range t.Elements {
			if !s.testElement(t.Elements[i].Type, p.Elements[i].Type) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// testElement matches element types, which may be concrete on both sides.
func (s *Schema) testElement(t, p Type) bool {
	if IsPolymorphic(p) {
		return s.TestPolymorphic(t, p)
	}
	return s.IsSubclass(t, p)
}

// ResolvePolymorphic returns the concrete type the placeholder inside poly
// binds to when matched against concrete, or nil.
//
//	array<anytype> against array<int64>  -> int64
//	array<anytype> against tuple<int64>  -> nil
func (s *Schema) ResolvePolymorphic(poly, concrete Type) Type {
	if !IsPolymorphic(poly) {
		return nil
	}
	switch p := poly.(type) {
	case *PseudoType:
		if IsAny(p) {
			return concrete
		}
		if _, ok := concrete.(*TupleType); ok {
			return concrete
		}
		return nil
	case *ScalarType:
		if IsScalar(concrete) && !IsPolymorphic(concrete) {
			return concrete
		}
		return nil
	case *ArrayType:
		if c, ok := concrete.(*ArrayType); ok {
			return s.ResolvePolymorphic(p.Element, c.Element)
		}
		return nil
	case *RangeType:
		if c, ok := concrete.(*RangeType); ok {
			return s.ResolvePolymorphic(p.Element, c.Element)
		}
		return nil
	case *MultirangeType:
		switch c := concrete.(type) {
		case *MultirangeType:
			return s.ResolvePolymorphic(p.Element, c.Element)
		case *RangeType:
			return s.ResolvePolymorphic(p.Element, c.Element)
		}
		return nil
	case *TupleType:
		c, ok := concrete.(*TupleType)
		if !ok || len(c.Elements) != len(p.Elements) {
			return nil
		}
		for i := range p.Elements {
			if IsPolymorphic(p.Elements[i].Type) {
				return s.ResolvePolymorphic(p.Elements[i].Type, c.Elements[i].Type)
			}
		}
		return nil
	default:
		return nil
	}
}

// ToNonPolymorphic substitutes concrete for the placeholder inside poly.
//
//	array<anytype>, int64       -> array<int64>
//	tuple<int64, anytype>, str  -> tuple<int64, str>
func (s *Schema) ToNonPolymorphic(poly, concrete Type) Type {
	if !IsPolymorphic(poly) {
		return poly
	}
	switch p := poly.(type) {
	case *PseudoType, *ScalarType:
		return concrete
	case *ArrayType:
		return &ArrayType{Element: s.ToNonPolymorphic(p.Element, concrete)}
	case *RangeType:
		return &RangeType{Element: s.ToNonPolymorphic(p.Element, concrete)}
	case *MultirangeType:
		return &MultirangeType{Element: s.ToNonPolymorphic(p.Element, concrete)}
	case *TupleType:
		els := make([]TupleElement, len(p.Elements))
		for i, el := range p.Elements {
			els[i] = TupleElement{Name: el.Name, Type: s.ToNonPolymorphic(el.Type, concrete)}
		}
		return &TupleType{Elements: els, Named: p.Named}
	default:
		return poly
	}
}
