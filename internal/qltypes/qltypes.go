// Package qltypes holds the small enumerations shared by the schema, the
// query AST, the IR and the compiler.
package qltypes

import "fmt"

// Cardinality is the inferred multiplicity class of a set-valued
// expression, expressed as a lower and upper bound.
type Cardinality int

const (
	// CardinalityUnknown is the placeholder used while inference is pending.
	CardinalityUnknown Cardinality = iota
	// AtMostOne is [0, 1].
	AtMostOne
	// One is [1, 1].
	One
	// Many is [0, inf).
	Many
	// AtLeastOne is [1, inf).
	AtLeastOne
)

func (c Cardinality) String() string {
	switch c {
	case AtMostOne:
		return "AT_MOST_ONE"
	case One:
		return "ONE"
	case Many:
		return "MANY"
	case AtLeastOne:
		return "AT_LEAST_ONE"
	default:
		return "UNKNOWN"
	}
}

// IsSingle reports whether the upper bound is one.
func (c Cardinality) IsSingle() bool {
	return c == AtMostOne || c == One
}

// IsMulti reports whether the upper bound is unbounded.
func (c Cardinality) IsMulti() bool {
	return c == Many || c == AtLeastOne
}

// CanBeZero reports whether the lower bound is zero.
func (c Cardinality) CanBeZero() bool {
	return c == AtMostOne || c == Many
}

// FromBounds builds a cardinality from its bounds.
func FromBounds(required, multi bool) Cardinality {
	switch {
	case required && multi:
		return AtLeastOne
	case required:
		return One
	case multi:
		return Many
	default:
		return AtMostOne
	}
}

// Product is the cardinality of a cross product of the two sets.
func Product(a, b Cardinality) Cardinality {
	if a == CardinalityUnknown || b == CardinalityUnknown {
		return CardinalityUnknown
	}
	return FromBounds(!a.CanBeZero() && !b.CanBeZero(), a.IsMulti() || b.IsMulti())
}

// Union is the cardinality of a UNION of the two sets.
func Union(a, b Cardinality) Cardinality {
	if a == CardinalityUnknown || b == CardinalityUnknown {
		return CardinalityUnknown
	}
	return FromBounds(!a.CanBeZero() || !b.CanBeZero(), true)
}

// Either is the cardinality of a value that comes from exactly one of the
// two sets (IF/ELSE, ??).
func Either(a, b Cardinality) Cardinality {
	if a == CardinalityUnknown || b == CardinalityUnknown {
		return CardinalityUnknown
	}
	return FromBounds(!a.CanBeZero() && !b.CanBeZero(), a.IsMulti() || b.IsMulti())
}

// SchemaCardinality is the declared cardinality of a pointer.
type SchemaCardinality int

const (
	SchemaOne SchemaCardinality = iota + 1
	SchemaMany
)

func (c SchemaCardinality) String() string {
	switch c {
	case SchemaOne:
		return "single"
	case SchemaMany:
		return "multi"
	default:
		return "unknown"
	}
}

// AsCardinality combines the declared upper bound with requiredness.
func (c SchemaCardinality) AsCardinality(required bool) Cardinality {
	return FromBounds(required, c == SchemaMany)
}

// ParseSchemaCardinality accepts "single" or "multi".
func ParseSchemaCardinality(s string) (SchemaCardinality, error) {
	switch s {
	case "single", "one":
		return SchemaOne, nil
	case "multi", "many":
		return SchemaMany, nil
	default:
		return 0, fmt.Errorf("invalid cardinality %q: must be single or multi", s)
	}
}

// TypeModifier describes how a callable parameter or result consumes sets.
type TypeModifier int

const (
	SingletonType TypeModifier = iota
	OptionalType
	SetOfType
)

func (m TypeModifier) String() string {
	switch m {
	case OptionalType:
		return "OPTIONAL"
	case SetOfType:
		return "SET OF"
	default:
		return "SINGLETON"
	}
}

// ParameterKind describes how an argument binds to a parameter.
type ParameterKind int

const (
	PositionalParam ParameterKind = iota
	NamedOnlyParam
	VariadicParam
)

func (k ParameterKind) String() string {
	switch k {
	case NamedOnlyParam:
		return "NAMED ONLY"
	case VariadicParam:
		return "VARIADIC"
	default:
		return "POSITIONAL"
	}
}

// CardinalityModifier is the OPTIONAL/REQUIRED modifier on a cast.
type CardinalityModifier int

const (
	CardModNone CardinalityModifier = iota
	CardModOptional
	CardModRequired
)

func (m CardinalityModifier) String() string {
	switch m {
	case CardModOptional:
		return "optional"
	case CardModRequired:
		return "required"
	default:
		return ""
	}
}

// Volatility of a callable.
type Volatility int

const (
	Immutable Volatility = iota
	Stable
	Volatile
	Modifying
)

func (v Volatility) String() string {
	switch v {
	case Stable:
		return "Stable"
	case Volatile:
		return "Volatile"
	case Modifying:
		return "Modifying"
	default:
		return "Immutable"
	}
}

// OperatorKind is the syntactic arity of an operator.
type OperatorKind int

const (
	Infix OperatorKind = iota
	Prefix
)

// PointerDirection of a path step.
type PointerDirection string

const (
	Outbound PointerDirection = ">"
	Inbound  PointerDirection = "<"
)
