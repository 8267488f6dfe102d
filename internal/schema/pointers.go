package schema

import (
	"fmt"
	"slices"

	"github.com/roach88/pathql/internal/qlast"
	"github.com/roach88/pathql/internal/qltypes"
)

// Pointer is a link or property of an object type, or a property of a
// link (a link property).
type Pointer struct {
	ShortName string

	// Source is the object type the pointer is declared on. For link
	// properties it is the object type owning the link.
	Source Name

	// Link is the key of the owning link for link properties.
	Link string

	Target Type

	// Cardinality is zero for computed pointers whose cardinality has not
	// been declared or inferred yet.
	Cardinality qltypes.SchemaCardinality
	Required    bool
	Readonly    bool

	Computed bool
	Expr     qlast.Expr

	// Owned is false for pointers materialized from an ancestor.
	Owned bool
	// Bases lists the keys of the ancestor pointers this one derives from.
	Bases []string

	Constraints []Name
	LinkProps   []string
}

// PointerKey is the lookup key of the pointer short on source.
func PointerKey(source Name, short string) string {
	return source.String() + "." + short
}

// LinkPropKey is the lookup key of link property short on link.
func LinkPropKey(link, short string) string {
	return link + "@" + short
}

// Key is the pointer's lookup key in the schema.
func (p *Pointer) Key() string {
	if p.Link != "" {
		return LinkPropKey(p.Link, p.ShortName)
	}
	return PointerKey(p.Source, p.ShortName)
}

// IsLink reports whether the pointer targets objects.
func (p *Pointer) IsLink() bool {
	return p.Link == "" && IsObject(p.Target)
}

// IsLinkProperty reports whether the pointer is a property of a link.
func (p *Pointer) IsLinkProperty() bool {
	return p.Link != ""
}

// IsID reports whether the pointer is the object identity property.
func (p *Pointer) IsID() bool {
	return p.ShortName == "id" && p.Link == ""
}

// HasCardinality reports whether the cardinality is known.
func (p *Pointer) HasCardinality() bool {
	return p.Cardinality != 0
}

// IsMulti reports whether the pointer may hold more than one value.
func (p *Pointer) IsMulti() bool {
	return p.Cardinality == qltypes.SchemaMany
}

// VerboseName is used in diagnostics: "link 'friends'",
// "property 'name'", "link property 'since'".
func (p *Pointer) VerboseName() string {
	switch {
	case p.IsLinkProperty():
		return fmt.Sprintf("link property '%s'", p.ShortName)
	case p.IsLink():
		return fmt.Sprintf("link '%s'", p.ShortName)
	default:
		return fmt.Sprintf("property '%s'", p.ShortName)
	}
}

// Kind is "link" or "property".
func (p *Pointer) Kind() string {
	if p.IsLink() {
		return "link"
	}
	return "property"
}

func (p *Pointer) clone() *Pointer {
	c := *p
	c.Bases = slices.Clone(p.Bases)
	c.Constraints = slices.Clone(p.Constraints)
	c.LinkProps = slices.Clone(p.LinkProps)
	return &c
}

// Constraint is a constraint on an object type or one of its pointers.
type Constraint struct {
	Name Name
	// Base is the abstract constraint this one instantiates, e.g.
	// std::exclusive.
	Base Name

	Subject Name
	// SubjectPointer is the constrained pointer's short name, empty for
	// object-level constraints.
	SubjectPointer string
	// SubjectPointers lists the pointers an object-level constraint spans,
	// e.g. exclusive on (.first, .last).
	SubjectPointers []string

	Abstract  bool
	Delegated bool
	Owned     bool

	// Ancestors lists inherited constraint names, nearest first.
	Ancestors []Name

	Except qlast.Expr
}

// IsExclusive reports whether c instantiates std::exclusive.
func (c *Constraint) IsExclusive() bool {
	return c.Base == StdName("exclusive")
}

// IsObjectLevel reports whether the constraint is declared on the object
// type rather than one of its pointers.
func (c *Constraint) IsObjectLevel() bool {
	return c.SubjectPointer == ""
}

// Pointers returns the pointer names the constraint covers.
func (c *Constraint) Pointers() []string {
	if c.SubjectPointer != "" {
		return []string{c.SubjectPointer}
	}
	return c.SubjectPointers
}

// VerboseName is used in diagnostics.
func (c *Constraint) VerboseName() string {
	if c.SubjectPointer != "" {
		return fmt.Sprintf("constraint '%s' of property '%s' of object type '%s'",
			c.Base, c.SubjectPointer, c.Subject)
	}
	return fmt.Sprintf("constraint '%s' of object type '%s'", c.Base, c.Subject)
}

func (c *Constraint) clone() *Constraint {
	n := *c
	n.SubjectPointers = slices.Clone(c.SubjectPointers)
	n.Ancestors = slices.Clone(c.Ancestors)
	return &n
}

// ConstraintName derives the name of a constraint instance on subject.
func ConstraintName(subject Name, pointer string, base Name) Name {
	if pointer == "" {
		return NewName(subject.Module, subject.Name+"@"+base.String())
	}
	return NewName(subject.Module, subject.Name+"."+pointer+"@"+base.String())
}

// Cast is a registered conversion between two types.
type Cast struct {
	From Type
	To   Type

	Implicit   bool
	Assignment bool

	// Function names the backend function implementing the cast. Casts
	// with an empty Function are native backend casts.
	Function string
}

// Name is a stable identifier for the cast.
func (c *Cast) Name() Name {
	return StdName(fmt.Sprintf("cast<%s->%s>", c.From.DisplayName(), c.To.DisplayName()))
}
