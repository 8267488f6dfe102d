// Package explain lowers compiled statements to relational plans and
// renders them as text or JSON.
//
// A plan is a tree of operators. Object type roots become scans, links
// become joins and properties projections; SELECT clauses hang off a
// select node in evaluation order, and DML nodes list the conflict
// checks the compiler synthesized. Literals are lifted out of the tree
// into numbered parameters, so two statements differing only in their
// constants produce the same tree.
//
// Plans are deterministic: rendering the same statement twice gives the
// same bytes, which the golden tests rely on.
package explain
