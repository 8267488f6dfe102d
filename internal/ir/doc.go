// Package ir defines the intermediate representation the compiler
// produces: sealed expression nodes wrapped in path-identified sets, the
// compiled Statement, and a stable encoding of statements to canonical
// JSON from which fingerprints are computed.
//
// The package depends on schema, pathid and scopetree but on nothing
// that compiles queries.
package ir
