// Package schema is the compiler's view of the database schema: named
// scalar and object types, collection types, pointers (links and
// properties), constraints, casts, functions and operators.
//
// A *Schema value is immutable. Every update goes through a With* method
// that returns a new *Schema, so the compiler always holds exactly one
// current schema version and earlier versions stay valid for anyone still
// holding them.
//
// The type lattice queries used by overload resolution and the cast engine
// live in lattice.go: IsSubclass, Ancestors, NearestCommonAncestors,
// Descendants, ImplicitCastDistance, FindCommonImplicitlyCastableType,
// CommonParentTypeDistance and the polymorphic resolution helpers.
//
// Std returns the standard library every user schema is layered on.
package schema
