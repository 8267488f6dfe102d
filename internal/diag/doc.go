// Package diag defines the error taxonomy shared by every stage of query
// compilation.
//
// Each error carries a kind, a stable code, a human-readable message, an
// optional hint and the source span of the offending query fragment:
//
//   - ReferenceError: a path or name does not resolve (unknown pointer,
//     out-of-scope path, correlated set behind a factoring fence).
//   - QueryError / TypeError: type checking failures, cast or overload
//     lookup failures, cardinality mismatches.
//   - UnsupportedFeatureError: a recognized construct that is not supported
//     in the given context.
//   - InternalServerError: an invariant violation inside the compiler.
//
// Errors are raised eagerly and unwind the whole compilation; there is no
// local recovery. Use the Is* predicates (which rely on errors.As) to
// classify wrapped errors.
package diag
