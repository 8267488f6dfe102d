package schema

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Type is a schema type. The set of implementations is closed: ScalarType,
// ObjectType, ArrayType, TupleType, RangeType, MultirangeType and
// PseudoType.
type Type interface {
	// QualifiedName is the lookup key of the type. Collections have an
	// empty module and their type expression as name.
	QualifiedName() Name

	// DisplayName is the name used in diagnostics.
	DisplayName() string

	// ID is a deterministic id derived from the qualified name.
	ID() uuid.UUID

	typeNode()
}

// ScalarType is a named scalar. Abstract scalars (std::anyscalar,
// std::anyint, ...) act as polymorphic placeholders in callable
// signatures.
type ScalarType struct {
	Name       Name
	Bases      []Name
	Abstract   bool
	EnumValues []string
}

func (t *ScalarType) QualifiedName() Name { return t.Name }
func (t *ScalarType) DisplayName() string { return t.Name.String() }
func (t *ScalarType) ID() uuid.UUID       { return ObjectID("type", t.Name.String()) }
func (*ScalarType) typeNode()             {}

// IsEnum reports whether the scalar is an enumeration.
func (t *ScalarType) IsEnum() bool { return len(t.EnumValues) > 0 }

// ObjectType is a named object type, or a view derived from one.
type ObjectType struct {
	Name     Name
	Bases    []Name
	Abstract bool

	// Pointers lists the short names of the type's pointers in
	// declaration order, own and inherited.
	Pointers []string

	// Constraints lists object-level constraints.
	Constraints []Name

	// View is set on transient types derived for shapes and aliases.
	View   bool
	ViewOf Name
}

func (t *ObjectType) QualifiedName() Name { return t.Name }

// DisplayName shows views under the name of the type they project.
func (t *ObjectType) DisplayName() string {
	if t.View && !t.ViewOf.IsZero() {
		return t.ViewOf.String()
	}
	return t.Name.String()
}

func (t *ObjectType) ID() uuid.UUID { return ObjectID("type", t.Name.String()) }
func (*ObjectType) typeNode()       {}

// HasPointer reports whether short is among the type's pointer names.
func (t *ObjectType) HasPointer(short string) bool {
	for _, p := range t.Pointers {
		if p == short {
			return true
		}
	}
	return false
}

// ArrayType is array<Element>.
type ArrayType struct {
	Element Type
}

func (t *ArrayType) QualifiedName() Name { return Name{Name: t.DisplayName()} }
func (t *ArrayType) DisplayName() string { return "array<" + t.Element.DisplayName() + ">" }
func (t *ArrayType) ID() uuid.UUID       { return ObjectID("type", t.DisplayName()) }
func (*ArrayType) typeNode()             {}

// TupleElement is one element of a tuple type. Unnamed tuples use the
// element position as name.
type TupleElement struct {
	Name string
	Type Type
}

// TupleType is tuple<...>, optionally with named elements.
type TupleType struct {
	Elements []TupleElement
	Named    bool
}

// NewTuple builds an unnamed tuple type.
func NewTuple(types ...Type) *TupleType {
	els := make([]TupleElement, len(types))
	for i, t := range types {
		els[i] = TupleElement{Name: strconv.Itoa(i), Type: t}
	}
	return &TupleType{Elements: els}
}

// NewNamedTuple builds a named tuple type.
func NewNamedTuple(els ...TupleElement) *TupleType {
	return &TupleType{Elements: els, Named: true}
}

func (t *TupleType) QualifiedName() Name { return Name{Name: t.DisplayName()} }

func (t *TupleType) DisplayName() string {
	parts := make([]string, len(t.Elements))
	for i, el := range t.Elements {
		if t.Named {
			parts[i] = el.Name + ": " + el.Type.DisplayName()
		} else {
			parts[i] = el.Type.DisplayName()
		}
	}
	return "tuple<" + strings.Join(parts, ", ") + ">"
}

func (t *TupleType) ID() uuid.UUID { return ObjectID("type", t.DisplayName()) }
func (*TupleType) typeNode()       {}

// ElementNames returns the element names in order.
func (t *TupleType) ElementNames() []string {
	names := make([]string, len(t.Elements))
	for i, el := range t.Elements {
		names[i] = el.Name
	}
	return names
}

// Element returns the element with the given name or position.
func (t *TupleType) Element(name string) (TupleElement, int, bool) {
	for i, el := range t.Elements {
		if el.Name == name {
			return el, i, true
		}
	}
	return TupleElement{}, -1, false
}

// RangeType is range<Element>.
type RangeType struct {
	Element Type
}

func (t *RangeType) QualifiedName() Name { return Name{Name: t.DisplayName()} }
func (t *RangeType) DisplayName() string { return "range<" + t.Element.DisplayName() + ">" }
func (t *RangeType) ID() uuid.UUID       { return ObjectID("type", t.DisplayName()) }
func (*RangeType) typeNode()             {}

// MultirangeType is multirange<Element>.
type MultirangeType struct {
	Element Type
}

func (t *MultirangeType) QualifiedName() Name { return Name{Name: t.DisplayName()} }
func (t *MultirangeType) DisplayName() string { return "multirange<" + t.Element.DisplayName() + ">" }
func (t *MultirangeType) ID() uuid.UUID       { return ObjectID("type", t.DisplayName()) }
func (*MultirangeType) typeNode()             {}

// PseudoType is one of the generic placeholders std::anytype and
// std::anytuple.
type PseudoType struct {
	Name Name
}

func (t *PseudoType) QualifiedName() Name { return t.Name }
func (t *PseudoType) DisplayName() string { return t.Name.String() }
func (t *PseudoType) ID() uuid.UUID       { return ObjectID("type", t.Name.String()) }
func (*PseudoType) typeNode()             {}

var (
	// AnyType matches every type.
	AnyType = &PseudoType{Name: StdName("anytype")}
	// AnyTuple matches every tuple type.
	AnyTuple = &PseudoType{Name: StdName("anytuple")}
)

// Same reports whether a and b denote the same type.
func Same(a, b Type) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.QualifiedName() == b.QualifiedName()
}

// IsObject reports whether t is an object type.
func IsObject(t Type) bool {
	_, ok := t.(*ObjectType)
	return ok
}

// IsScalar reports whether t is a scalar type.
func IsScalar(t Type) bool {
	_, ok := t.(*ScalarType)
	return ok
}

// IsCollection reports whether t is an array, tuple, range or multirange.
func IsCollection(t Type) bool {
	switch t.(type) {
	case *ArrayType, *TupleType, *RangeType, *MultirangeType:
		return true
	default:
		return false
	}
}

// IsAny reports whether t is std::anytype.
func IsAny(t Type) bool {
	p, ok := t.(*PseudoType)
	return ok && p.Name == AnyType.Name
}

// IsAnyTuple reports whether t is std::anytuple.
func IsAnyTuple(t Type) bool {
	p, ok := t.(*PseudoType)
	return ok && p.Name == AnyTuple.Name
}

// IsEnum reports whether t is an enumerated scalar.
func IsEnum(t Type) bool {
	s, ok := t.(*ScalarType)
	return ok && s.IsEnum()
}

// IsPolymorphic reports whether t contains a generic placeholder.
func IsPolymorphic(t Type) bool {
	switch t := t.(type) {
	case *PseudoType:
		return true
	case *ScalarType:
		return t.Abstract
	case *ArrayType:
		return IsPolymorphic(t.Element)
	case *RangeType:
		return IsPolymorphic(t.Element)
	case *MultirangeType:
		return IsPolymorphic(t.Element)
	case *TupleType:
		for _, el := range t.Elements {
			if IsPolymorphic(el.Type) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Subtypes returns the element types of a collection, or nil.
func Subtypes(t Type) []Type {
	switch t := t.(type) {
	case *ArrayType:
		return []Type{t.Element}
	case *RangeType:
		return []Type{t.Element}
	case *MultirangeType:
		return []Type{t.Element}
	case *TupleType:
		out := make([]Type, len(t.Elements))
		for i, el := range t.Elements {
			out[i] = el.Type
		}
		return out
	default:
		return nil
	}
}

// ContainsObject reports whether t is or contains an object type.
func ContainsObject(t Type) bool {
	if IsObject(t) {
		return true
	}
	for _, st := range Subtypes(t) {
		if ContainsObject(st) {
			return true
		}
	}
	return false
}
