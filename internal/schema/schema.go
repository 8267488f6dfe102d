package schema

import (
	"maps"
	"slices"
	"sort"

	"github.com/roach88/pathql/internal/qltypes"
)

// Schema is an immutable snapshot of the schema. The zero value is not
// usable; start from New or Std.
type Schema struct {
	version uint64

	types       map[Name]Type
	children    map[Name][]Name
	pointers    map[string]*Pointer
	constraints map[Name]*Constraint
	casts       []*Cast
	functions   map[Name][]*Function
	operators   map[Name][]*Operator
}

// New returns an empty schema.
func New() *Schema {
	return &Schema{
		types:       make(map[Name]Type),
		children:    make(map[Name][]Name),
		pointers:    make(map[string]*Pointer),
		constraints: make(map[Name]*Constraint),
		functions:   make(map[Name][]*Function),
		operators:   make(map[Name][]*Operator),
	}
}

// Version increases with every functional update.
func (s *Schema) Version() uint64 {
	return s.version
}

func (s *Schema) clone() *Schema {
	return &Schema{
		version:     s.version + 1,
		types:       maps.Clone(s.types),
		children:    maps.Clone(s.children),
		pointers:    maps.Clone(s.pointers),
		constraints: maps.Clone(s.constraints),
		casts:       slices.Clone(s.casts),
		functions:   maps.Clone(s.functions),
		operators:   maps.Clone(s.operators),
	}
}

// WithType returns a schema with t added or replaced.
func (s *Schema) WithType(t Type) *Schema {
	n := s.clone()
	n.types[t.QualifiedName()] = t
	n.rebuildChildren()
	return n
}

func (s *Schema) rebuildChildren() {
	s.children = make(map[Name][]Name)
	for name, t := range s.types {
		for _, b := range directBases(t) {
			s.children[b] = append(s.children[b], name)
		}
	}
	for b := range s.children {
		sortNames(s.children[b])
	}
}

func directBases(t Type) []Name {
	switch t := t.(type) {
	case *ObjectType:
		return t.Bases
	case *ScalarType:
		return t.Bases
	default:
		return nil
	}
}

// WithPointer returns a schema with p added or replaced. The pointer is
// also listed on its source object type (or owning link).
func (s *Schema) WithPointer(p *Pointer) *Schema {
	n := s.clone()
	n.pointers[p.Key()] = p

	if p.IsLinkProperty() {
		if link, ok := n.pointers[p.Link]; ok && !slices.Contains(link.LinkProps, p.ShortName) {
			lc := link.clone()
			lc.LinkProps = append(lc.LinkProps, p.ShortName)
			n.pointers[lc.Key()] = lc
		}
		return n
	}

	if obj, ok := n.types[p.Source].(*ObjectType); ok && !obj.HasPointer(p.ShortName) {
		oc := *obj
		oc.Pointers = append(slices.Clone(obj.Pointers), p.ShortName)
		n.types[oc.Name] = &oc
	}
	return n
}

// WithPointerCardinality returns a schema where the pointer with the given
// key has its cardinality set.
func (s *Schema) WithPointerCardinality(key string, card qltypes.SchemaCardinality) *Schema {
	p, ok := s.pointers[key]
	if !ok {
		return s
	}
	n := s.clone()
	pc := p.clone()
	pc.Cardinality = card
	n.pointers[key] = pc
	return n
}

// WithConstraint returns a schema with c added or replaced.
func (s *Schema) WithConstraint(c *Constraint) *Schema {
	n := s.clone()
	n.constraints[c.Name] = c

	if c.IsObjectLevel() {
		if obj, ok := n.types[c.Subject].(*ObjectType); ok && !slices.Contains(obj.Constraints, c.Name) {
			oc := *obj
			oc.Constraints = append(slices.Clone(obj.Constraints), c.Name)
			n.types[oc.Name] = &oc
		}
		return n
	}

	key := PointerKey(c.Subject, c.SubjectPointer)
	if p, ok := n.pointers[key]; ok && !slices.Contains(p.Constraints, c.Name) {
		pc := p.clone()
		pc.Constraints = append(pc.Constraints, c.Name)
		n.pointers[key] = pc
	}
	return n
}

// WithCast returns a schema with c registered. An existing cast between
// the same two types is replaced.
func (s *Schema) WithCast(c *Cast) *Schema {
	n := s.withoutCast(c.From, c.To)
	n.casts = append(n.casts, c)
	return n
}

// WithoutCast returns a schema with the cast from -> to removed.
func (s *Schema) WithoutCast(from, to Type) *Schema {
	return s.withoutCast(from, to)
}

func (s *Schema) withoutCast(from, to Type) *Schema {
	n := s.clone()
	n.casts = slices.DeleteFunc(n.casts, func(c *Cast) bool {
		return Same(c.From, from) && Same(c.To, to)
	})
	return n
}

// WithFunction returns a schema with f added as an overload of its name.
func (s *Schema) WithFunction(f *Function) *Schema {
	n := s.clone()
	n.functions[f.Name] = append(slices.Clone(n.functions[f.Name]), f)
	return n
}

// WithOperator returns a schema with o added as an overload of its name.
func (s *Schema) WithOperator(o *Operator) *Schema {
	n := s.clone()
	n.operators[o.Name] = append(slices.Clone(n.operators[o.Name]), o)
	return n
}

// DeriveView returns a schema with a view type derived from base under
// name. Pointer lookups on the view fall back to the base type.
func (s *Schema) DeriveView(base *ObjectType, name Name) (*Schema, *ObjectType) {
	viewOf := base.Name
	if base.View && !base.ViewOf.IsZero() {
		viewOf = base.ViewOf
	}
	view := &ObjectType{
		Name:     name,
		Bases:    []Name{base.Name},
		Abstract: base.Abstract,
		Pointers: slices.Clone(base.Pointers),
		View:     true,
		ViewOf:   viewOf,
	}
	return s.WithType(view), view
}

// Type looks up a named type.
func (s *Schema) Type(name Name) (Type, bool) {
	t, ok := s.types[name]
	return t, ok
}

// ObjectType looks up a named object type.
func (s *Schema) ObjectType(name Name) (*ObjectType, bool) {
	t, ok := s.types[name].(*ObjectType)
	return t, ok
}

// ScalarType looks up a named scalar type.
func (s *Schema) ScalarType(name Name) (*ScalarType, bool) {
	t, ok := s.types[name].(*ScalarType)
	return t, ok
}

// MustType looks up a named type and panics if it is missing. It is meant
// for builtin names that are always present.
func (s *Schema) MustType(name Name) Type {
	t, ok := s.types[name]
	if !ok {
		panic("schema: missing builtin type " + name.String())
	}
	return t
}

// Types returns all named types sorted by name.
func (s *Schema) Types() []Type {
	names := make([]Name, 0, len(s.types))
	for n := range s.types {
		names = append(names, n)
	}
	sortNames(names)
	out := make([]Type, len(names))
	for i, n := range names {
		out[i] = s.types[n]
	}
	return out
}

// TypeNamesInModule lists the short names of the types in module.
func (s *Schema) TypeNamesInModule(module string) []string {
	var out []string
	for n := range s.types {
		if n.Module == module {
			out = append(out, n.Name)
		}
	}
	sort.Strings(out)
	return out
}

// Pointer looks up a pointer by short name on source, falling back to the
// source's ancestors for pointers that have not been materialized.
func (s *Schema) Pointer(source Name, short string) (*Pointer, bool) {
	if p, ok := s.pointers[PointerKey(source, short)]; ok {
		return p, true
	}
	t, ok := s.types[source]
	if !ok {
		return nil, false
	}
	for _, anc := range s.Ancestors(t) {
		if p, ok := s.pointers[PointerKey(anc.QualifiedName(), short)]; ok {
			return p, true
		}
	}
	return nil, false
}

// PointerByKey looks up a pointer by its key.
func (s *Schema) PointerByKey(key string) (*Pointer, bool) {
	p, ok := s.pointers[key]
	return p, ok
}

// LinkProperty looks up a property of link.
func (s *Schema) LinkProperty(link *Pointer, short string) (*Pointer, bool) {
	if p, ok := s.pointers[LinkPropKey(link.Key(), short)]; ok {
		return p, true
	}
	for _, b := range link.Bases {
		if p, ok := s.pointers[LinkPropKey(b, short)]; ok {
			return p, true
		}
	}
	return nil, false
}

// Pointers returns the pointers of obj in declaration order.
func (s *Schema) Pointers(obj *ObjectType) []*Pointer {
	out := make([]*Pointer, 0, len(obj.Pointers))
	for _, short := range obj.Pointers {
		if p, ok := s.Pointer(obj.Name, short); ok {
			out = append(out, p)
		}
	}
	return out
}

// PointerNames lists every pointer name reachable on t, own and
// inherited, sorted.
func (s *Schema) PointerNames(t Type) []string {
	obj, ok := t.(*ObjectType)
	if !ok {
		return nil
	}
	seen := make(map[string]bool)
	for _, p := range obj.Pointers {
		seen[p] = true
	}
	for _, anc := range s.Ancestors(obj) {
		if o, ok := anc.(*ObjectType); ok {
			for _, p := range o.Pointers {
				seen[p] = true
			}
		}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Backlinks returns the links named short whose target is target or one of
// its ancestors, sorted by key.
func (s *Schema) Backlinks(target Type, short string) []*Pointer {
	var out []*Pointer
	for _, p := range s.pointers {
		if p.ShortName != short || !p.IsLink() {
			continue
		}
		if s.IsSubclass(target, p.Target) || s.IsSubclass(p.Target, target) {
			if src, ok := s.types[p.Source].(*ObjectType); ok && !src.View {
				out = append(out, p)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Constraint looks up a constraint by name.
func (s *Schema) Constraint(name Name) (*Constraint, bool) {
	c, ok := s.constraints[name]
	return c, ok
}

// ConstraintsOf returns the constraints whose subject is the named type,
// pointer constraints first, each group sorted by name.
func (s *Schema) ConstraintsOf(subject Name) []*Constraint {
	var ptr, obj []*Constraint
	for _, c := range s.constraints {
		if c.Subject != subject {
			continue
		}
		if c.IsObjectLevel() {
			obj = append(obj, c)
		} else {
			ptr = append(ptr, c)
		}
	}
	byName := func(cs []*Constraint) {
		sort.Slice(cs, func(i, j int) bool { return cs[i].Name.String() < cs[j].Name.String() })
	}
	byName(ptr)
	byName(obj)
	return append(ptr, obj...)
}

// PointerConstraints returns the constraints attached to p.
func (s *Schema) PointerConstraints(p *Pointer) []*Constraint {
	out := make([]*Constraint, 0, len(p.Constraints))
	for _, n := range p.Constraints {
		if c, ok := s.constraints[n]; ok {
			out = append(out, c)
		}
	}
	return out
}

// CastsTo returns the casts whose target is t, in registration order.
func (s *Schema) CastsTo(t Type) []*Cast {
	var out []*Cast
	for _, c := range s.casts {
		if Same(c.To, t) {
			out = append(out, c)
		}
	}
	return out
}

// FindCast returns the cast registered from -> to.
func (s *Schema) FindCast(from, to Type) (*Cast, bool) {
	for _, c := range s.casts {
		if Same(c.From, from) && Same(c.To, to) {
			return c, true
		}
	}
	return nil, false
}

// ImplicitCastsFrom returns the implicit casts whose source is t.
func (s *Schema) ImplicitCastsFrom(t Type) []*Cast {
	var out []*Cast
	for _, c := range s.casts {
		if c.Implicit && Same(c.From, t) {
			out = append(out, c)
		}
	}
	return out
}

// Functions returns the overloads of the named function.
func (s *Schema) Functions(name Name) []*Function {
	return s.functions[name]
}

// FunctionNames lists all function names in module.
func (s *Schema) FunctionNames(module string) []string {
	var out []string
	for n := range s.functions {
		if n.Module == module {
			out = append(out, n.Name)
		}
	}
	sort.Strings(out)
	return out
}

// Operators returns the overloads of the named operator of the given kind.
func (s *Schema) Operators(name Name, kind qltypes.OperatorKind) []*Operator {
	var out []*Operator
	for _, o := range s.operators[name] {
		if o.Kind == kind {
			out = append(out, o)
		}
	}
	return out
}

func sortNames(names []Name) {
	sort.Slice(names, func(i, j int) bool { return names[i].String() < names[j].String() })
}
