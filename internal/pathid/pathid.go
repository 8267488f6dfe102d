// Package pathid implements PathID, the identity of a set variable in a
// compiled query.
//
// A PathID describes a path from a root type through pointer steps, e.g.
// User.friends.name, together with the set of namespaces it lives in. Two
// references to the same path in the same namespace denote the same set;
// the compiler and the scope tree use that to correlate references.
//
// PathIDs are immutable. Every operation returns a new value.
package pathid

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/pathql/internal/qltypes"
	"github.com/roach88/pathql/internal/schema"
)

var (
	// ErrEmptyPath is returned when extending a zero PathID.
	ErrEmptyPath = errors.New("cannot extend an empty path id")

	// ErrLinkPropOnNonLink is returned when a link property step is
	// appended to a path that is not a pointer path.
	ErrLinkPropOnNonLink = errors.New("link property path extension on a non-link path")
)

// PtrKind distinguishes real pointers from the synthetic steps used for
// tuple elements and type intersections.
type PtrKind int

const (
	PtrRegular PtrKind = iota
	PtrTupleIndirection
	PtrTypeIntersection
)

// PtrRef describes the pointer of a path step.
type PtrRef struct {
	// Name is the short name of the pointer, or the tuple element name.
	Name string
	// Key is the schema key of the pointer, empty for synthetic steps.
	Key string

	Source schema.Type
	Target schema.Type

	// Cardinality is the declared outbound cardinality, zero when
	// unknown.
	Cardinality qltypes.SchemaCardinality
	Required    bool

	LinkProp bool
	Kind     PtrKind
}

// DirCardinality is the cardinality of following the pointer from one
// source object in direction dir. Backward links are always MANY.
func (r *PtrRef) DirCardinality(dir qltypes.PointerDirection) qltypes.Cardinality {
	if dir == qltypes.Inbound {
		return qltypes.Many
	}
	if r.Cardinality == 0 {
		return qltypes.CardinalityUnknown
	}
	return r.Cardinality.AsCardinality(r.Required)
}

// IsSingle reports whether following the pointer in direction dir yields
// at most one object.
func (r *PtrRef) IsSingle(dir qltypes.PointerDirection) bool {
	return dir != qltypes.Inbound && r.Cardinality == qltypes.SchemaOne
}

type step struct {
	// Type steps.
	typ      schema.Type
	typeName string

	// Pointer steps.
	ptr *PtrRef
	dir qltypes.PointerDirection
}

func (s step) isPtr() bool { return s.ptr != nil }

// normKey is the part of the step that takes part in identity.
func (s step) normKey() string {
	if s.ptr == nil {
		return s.typeName
	}
	lp := ""
	if s.ptr.LinkProp {
		lp = "@"
	}
	return fmt.Sprintf("%s%s%s", s.dir, lp, s.ptr.Name)
}

// PathID identifies a set variable. The zero value is an empty path.
type PathID struct {
	path       []step
	namespace  NamespaceSet
	prefix     *PathID
	isPtr      bool
	isLinkprop bool

	key string
}

// FromType returns the PathID of a root set of type t.
func FromType(t schema.Type, ns ...Namespace) *PathID {
	return FromTypeNamed(t, t.QualifiedName(), ns...)
}

// FromTypeNamed returns a root PathID of type t whose identity is name
// rather than the type's name. Aliases and FOR iterators use it to get a
// variable distinct from other sets of the same type.
func FromTypeNamed(t schema.Type, name schema.Name, ns ...Namespace) *PathID {
	p := &PathID{
		path:      []step{{typ: t, typeName: name.String()}},
		namespace: NewNamespaceSet(ns...),
	}
	return p.seal()
}

func (p *PathID) clone() *PathID {
	c := *p
	c.key = ""
	return &c
}

func (p *PathID) seal() *PathID {
	var b strings.Builder
	if len(p.namespace) > 0 {
		b.WriteString(p.namespace.key())
		b.WriteString("@@")
	}
	for i, s := range p.path {
		if i > 0 {
			b.WriteByte(' ')
		}
		if !s.isPtr() && i > 0 {
			b.WriteString(materialName(s.typ))
		} else {
			b.WriteString(s.normKey())
		}
	}
	if p.isPtr {
		b.WriteString(" ptr")
	}
	if p.prefix != nil {
		b.WriteString(" <" + p.prefix.key + ">")
	}
	p.key = b.String()
	return p
}

func materialName(t schema.Type) string {
	if o, ok := t.(*schema.ObjectType); ok && o.View && !o.ViewOf.IsZero() {
		return o.ViewOf.String()
	}
	return t.QualifiedName().String()
}

// Len is the number of entries in the path: type steps plus pointer
// steps.
func (p *PathID) Len() int { return len(p.path) }

// IsEmpty reports whether p is the zero path.
func (p *PathID) IsEmpty() bool { return p == nil || len(p.path) == 0 }

// Namespace returns the namespace set, weak namespaces included.
func (p *PathID) Namespace() NamespaceSet { return p.namespace }

// Prefix returns the prefix recorded when the path entered a new
// namespace, or nil.
func (p *PathID) Prefix() *PathID { return p.prefix }

// Key is a string that is equal for equal PathIDs. It is suitable as a map
// key.
func (p *PathID) Key() string { return p.key }

// Equal compares normalized path, namespaces, prefix and the pointer-path
// flag.
func (p *PathID) Equal(o *PathID) bool {
	if p == nil || o == nil {
		return p == o
	}
	return p.key == o.key
}

// SameIdentity compares a and b ignoring weak namespaces.
func SameIdentity(a, b *PathID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.StripWeakNamespaces().Equal(b.StripWeakNamespaces())
}

// Extend returns the PathID of one pointer step from p. ns is merged into
// the namespace of the result; if that changes the namespace, p becomes the
// prefix of the result.
func (p *PathID) Extend(ptr *PtrRef, dir qltypes.PointerDirection, target schema.Type, ns ...Namespace) (*PathID, error) {
	if p.IsEmpty() {
		return nil, ErrEmptyPath
	}
	if ptr.LinkProp && !p.isPtr {
		return nil, ErrLinkPropOnNonLink
	}
	if dir == "" {
		dir = qltypes.Outbound
	}

	r := &PathID{
		path:       append(append(make([]step, 0, len(p.path)+2), p.path...), step{ptr: ptr, dir: dir}, step{typ: target, typeName: target.QualifiedName().String()}),
		isLinkprop: ptr.LinkProp,
		namespace:  p.namespace.Union(NewNamespaceSet(ns...)),
	}
	if !r.namespace.Equal(p.namespace) {
		r.prefix = p
	} else {
		r.prefix = p.prefix
	}
	return r.seal(), nil
}

// MustExtend is Extend for callers that have already checked the
// structural preconditions. It panics on error.
func (p *PathID) MustExtend(ptr *PtrRef, dir qltypes.PointerDirection, target schema.Type, ns ...Namespace) *PathID {
	r, err := p.Extend(ptr, dir, target, ns...)
	if err != nil {
		panic(err)
	}
	return r
}

// ReplaceNamespace returns p with its namespace set to ns.
func (p *PathID) ReplaceNamespace(ns NamespaceSet) *PathID {
	r := p.clone()
	r.namespace = ns
	if r.prefix != nil {
		r.prefix = r.minimalPrefix(r.prefix.ReplaceNamespace(ns))
	}
	return r.seal()
}

// MergeNamespace returns p with ns added to its namespace. With deep, the
// prefix chain is merged as well.
func (p *PathID) MergeNamespace(ns NamespaceSet, deep bool) *PathID {
	merged := p.namespace.Union(ns)
	if merged.Equal(p.namespace) && !deep {
		return p
	}
	r := p.clone()
	r.namespace = merged
	if deep && r.prefix != nil {
		r.prefix = r.prefix.MergeNamespace(merged, true)
	}
	if r.prefix != nil {
		r.prefix = r.minimalPrefix(r.prefix)
	}
	return r.seal()
}

// StripNamespace returns p with the namespaces named in ns removed.
func (p *PathID) StripNamespace(ns NamespaceSet) *PathID {
	if len(p.namespace) == 0 || len(ns) == 0 {
		return p
	}
	r := p.ReplaceNamespace(p.namespace.Minus(ns))
	if r.prefix != nil {
		r = r.clone()
		r.prefix = r.minimalPrefix(r.prefix.StripNamespace(ns))
		r.seal()
	}
	return r
}

// StripWeakNamespaces returns p with every weak namespace removed, along
// its whole prefix chain.
func (p *PathID) StripWeakNamespaces() *PathID {
	if !p.hasWeak() {
		return p
	}
	r := p.clone()
	r.namespace = p.namespace.Strong()
	if r.prefix != nil {
		r.prefix = r.minimalPrefix(r.prefix.StripWeakNamespaces())
	}
	return r.seal()
}

func (p *PathID) hasWeak() bool {
	for q := p; q != nil; q = q.prefix {
		if q.namespace.HasWeak() {
			return true
		}
	}
	return false
}

// minimalPrefix drops prefixes that are in the same namespace as p.
func (p *PathID) minimalPrefix(prefix *PathID) *PathID {
	for prefix != nil && prefix.namespace.Equal(p.namespace) {
		prefix = prefix.prefix
	}
	return prefix
}

// getPrefix returns the prefix of p with size entries.
func (p *PathID) getPrefix(size int) *PathID {
	if size < 0 {
		size = len(p.path) + size
	}
	if size == len(p.path) {
		return p
	}
	if p.prefix != nil {
		pl := p.prefix.Len()
		if pl == size {
			return p.prefix
		}
		if pl > size {
			return p.prefix.getPrefix(size)
		}
	}
	r := &PathID{
		path:      p.path[:size:size],
		prefix:    p.prefix,
		namespace: p.namespace,
	}
	if rp := r.Rptr(); rp != nil {
		r.isLinkprop = rp.LinkProp
	}
	if size < len(p.path) && p.path[size].isPtr() && p.path[size].ptr.LinkProp {
		r.isPtr = true
	}
	return r.seal()
}

// Target is the type of the set p denotes.
func (p *PathID) Target() schema.Type {
	return p.path[len(p.path)-1].typ
}

// Rptr returns the pointer of the last step, or nil for a root.
func (p *PathID) Rptr() *PtrRef {
	if len(p.path) > 1 {
		return p.path[len(p.path)-2].ptr
	}
	return nil
}

// RptrName returns the short name of the last pointer, or "".
func (p *PathID) RptrName() string {
	if r := p.Rptr(); r != nil {
		return r.Name
	}
	return ""
}

// RptrDir returns the direction of the last pointer step, or "".
func (p *PathID) RptrDir() qltypes.PointerDirection {
	if len(p.path) > 1 {
		return p.path[len(p.path)-2].dir
	}
	return ""
}

// SrcPath returns the immediate prefix, User.friends for
// User.friends.name, or nil for a root.
func (p *PathID) SrcPath() *PathID {
	if len(p.path) > 1 {
		return p.getPrefix(-2)
	}
	return nil
}

// PtrPath returns the pointer prefix shared by the link properties of the
// last link: PtrPath(User.friends) is the parent of User.friends@since.
func (p *PathID) PtrPath() *PathID {
	if p.isPtr {
		return p
	}
	r := p.clone()
	r.isPtr = true
	return r.seal()
}

// TgtPath is the inverse of PtrPath.
func (p *PathID) TgtPath() *PathID {
	if !p.isPtr {
		return p
	}
	r := p.clone()
	r.isPtr = false
	return r.seal()
}

// IterPrefixes returns every prefix of p from the root to p itself. Each
// prefix is in its own namespace. With includePtr, pointer prefixes are
// listed after their target paths.
func (p *PathID) IterPrefixes(includePtr bool) []*PathID {
	var out []*PathID
	start := 1
	if p.prefix != nil {
		out = append(out, p.prefix.IterPrefixes(includePtr)...)
		start = p.prefix.Len()
	} else {
		out = append(out, p.getPrefix(1))
	}
	for i := start; i < len(p.path)-1; i += 2 {
		pid := p.getPrefix(i + 2)
		if pid.isPtr {
			out = append(out, pid.TgtPath())
			if includePtr {
				out = append(out, pid)
			}
		} else {
			out = append(out, pid)
		}
	}
	return out
}

// StartsWith reports whether prefix is a prefix of p. With permissivePtr a
// pointer path also matches its target path.
func (p *PathID) StartsWith(prefix *PathID, permissivePtr bool) bool {
	if prefix.Len() > p.Len() {
		return false
	}
	base := p.getPrefix(prefix.Len())
	return base.Equal(prefix) || (permissivePtr && base.TgtPath().Equal(prefix))
}

// IsPtrPath reports whether p is a pointer prefix.
func (p *PathID) IsPtrPath() bool { return p.isPtr }

// IsLinkPropPath reports whether the last step is a link property.
func (p *PathID) IsLinkPropPath() bool { return p.isLinkprop }

// IsObjectPath reports whether p denotes objects.
func (p *PathID) IsObjectPath() bool {
	return !p.isPtr && schema.IsObject(p.Target())
}

// IsPropertyPath reports whether p denotes scalars.
func (p *PathID) IsPropertyPath() bool {
	return !p.isPtr && schema.IsScalar(p.Target())
}

// IsTuplePath reports whether p denotes tuples.
func (p *PathID) IsTuplePath() bool {
	if p.isPtr {
		return false
	}
	_, ok := p.Target().(*schema.TupleType)
	return ok
}

// IsCollectionPath reports whether p denotes arrays, tuples or ranges.
func (p *PathID) IsCollectionPath() bool {
	return !p.isPtr && schema.IsCollection(p.Target())
}

// IsTupleIndirectionPath reports whether p is a tuple element step.
func (p *PathID) IsTupleIndirectionPath() bool {
	src := p.SrcPath()
	return src != nil && src.IsTuplePath()
}

// IsTypeIntersectionPath reports whether p ends in a [is T] step.
func (p *PathID) IsTypeIntersectionPath() bool {
	r := p.Rptr()
	return r != nil && r.Kind == PtrTypeIntersection
}

// String is the verbose internal format, e.g.
// "ns~1@@(default::User).>friends[IS default::User]".
func (p *PathID) String() string {
	if p.IsEmpty() {
		return ""
	}
	var b strings.Builder
	if len(p.namespace) > 0 {
		b.WriteString(p.namespace.String())
		b.WriteString("@@")
	}
	fmt.Fprintf(&b, "(%s)", p.path[0].typeName)
	for i := 1; i+1 < len(p.path); i += 2 {
		ps, ts := p.path[i], p.path[i+1]
		if ps.ptr.LinkProp {
			b.WriteString("@")
		} else {
			b.WriteString("." + string(ps.dir))
		}
		fmt.Fprintf(&b, "%s[IS %s]", ps.ptr.Name, materialName(ts.typ))
	}
	if p.isPtr {
		b.WriteString("@")
	}
	return b.String()
}

func shortTypeName(name string) string {
	if strings.ContainsRune(name, '<') {
		return name
	}
	return schema.ParseName(name).Name
}

// Pformat renders p for user-visible messages: "User.friends@since".
func (p *PathID) Pformat() string {
	if p.IsEmpty() {
		return ""
	}
	var b strings.Builder
	b.WriteString(shortTypeName(p.path[0].typeName))
	for i := 1; i+1 < len(p.path); i += 2 {
		ps := p.path[i]
		switch {
		case ps.ptr.Kind == PtrTypeIntersection:
			fmt.Fprintf(&b, "[is %s]", p.path[i+1].typ.DisplayName())
			continue
		case ps.ptr.LinkProp:
			b.WriteString("@")
		case ps.dir == qltypes.Inbound:
			b.WriteString(".<")
		default:
			b.WriteString(".")
		}
		b.WriteString(ps.ptr.Name)
	}
	if p.isPtr {
		b.WriteString("@")
	}
	return b.String()
}
