// Package store is a SQLite cache of compiled statements.
//
// Entries are keyed by ir.QueryKey: the hash of the query source, the
// schema digest and the compiler options that affect output. Each entry
// stores the canonical JSON encoding of the statement, its fingerprint,
// result type and cardinality, plus the schema objects it references in
// a separate statement_refs table.
//
// Invalidation goes through the refs: dropping or altering a schema
// object invalidates exactly the statements that mention it. Entries
// compiled against an older schema digest can be pruned wholesale.
//
// All listings order by seq, a logical insertion counter, then by key, so
// results are deterministic across runs.
//
// The database runs in WAL mode with synchronous=NORMAL, a 5 second busy
// timeout and foreign keys enforced.
package store
