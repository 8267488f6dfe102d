package diag

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Span locates a fragment of query source.
//
// Line and Column are 1-based. Start and End are byte offsets into the
// source when known; End == Start means "a single position".
type Span struct {
	File   string `json:"file,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
	Start  int    `json:"start,omitempty"`
	End    int    `json:"end,omitempty"`
}

// IsValid reports whether the span points at a real source position.
func (s Span) IsValid() bool {
	return s.Line > 0
}

// Len returns the width of the span in bytes, at least 1.
func (s Span) Len() int {
	if s.End > s.Start {
		return s.End - s.Start
	}
	return 1
}

func (s Span) String() string {
	if !s.IsValid() {
		return "<unknown>"
	}
	if s.File != "" {
		return fmt.Sprintf("%s:%d:%d", s.File, s.Line, s.Column)
	}
	return fmt.Sprintf("%d:%d", s.Line, s.Column)
}

// Kind classifies a compilation error.
type Kind string

const (
	// KindReference indicates a path or name that does not resolve.
	KindReference Kind = "ReferenceError"

	// KindQuery indicates a generic query compilation failure.
	KindQuery Kind = "QueryError"

	// KindType indicates a type checking failure. It is a QueryError.
	KindType Kind = "TypeError"

	// KindUnsupported indicates a recognized but unsupported construct.
	KindUnsupported Kind = "UnsupportedFeatureError"

	// KindInternal indicates a compiler bug.
	KindInternal Kind = "InternalServerError"
)

// Code is a stable, machine-readable error identifier.
type Code string

// Reference error codes.
const (
	ErrCodeUnknownPointer       Code = "E201"
	ErrCodeUnresolvedPath       Code = "E202"
	ErrCodeCorrelatedSet        Code = "E203"
	ErrCodeInterpretationChange Code = "E204"
	ErrCodeUnknownName          Code = "E205"
	ErrCodeDuplicatePath        Code = "E206"
)

// Query and type error codes.
const (
	ErrCodeQuery               Code = "E300"
	ErrCodeNoCandidate         Code = "E301"
	ErrCodeAmbiguousCall       Code = "E302"
	ErrCodeCannotCast          Code = "E303"
	ErrCodeCardinalityMismatch Code = "E304"
	ErrCodeTypeMismatch        Code = "E305"
	ErrCodeIndeterminateType   Code = "E306"
	ErrCodeInvalidArgument     Code = "E307"
	ErrCodeInvalidConflict     Code = "E308"
)

// Remaining kinds.
const (
	ErrCodeUnsupported Code = "E401"
	ErrCodeInternal    Code = "E501"
)

// Error is a structured compilation error.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
	Hint    string
	Details map[string]string
	Span    Span
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Span.IsValid() {
		fmt.Fprintf(&b, " (at %s)", e.Span)
	}
	return b.String()
}

// WithHint returns e with its hint set.
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

// WithDetail records an additional key/value pair of context.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSpan sets the span if the error does not have one yet.
func (e *Error) WithSpan(span Span) *Error {
	if !e.Span.IsValid() {
		e.Span = span
	}
	return e
}

// DetailKeys returns the detail keys in sorted order.
func (e *Error) DetailKeys() []string {
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func newError(kind Kind, code Code, span Span, format string, args []any) *Error {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &Error{Kind: kind, Code: code, Message: msg, Span: span}
}

// NewReferenceError creates a ReferenceError.
func NewReferenceError(code Code, span Span, format string, args ...any) *Error {
	return newError(KindReference, code, span, format, args)
}

// NewQueryError creates a QueryError.
func NewQueryError(code Code, span Span, format string, args ...any) *Error {
	return newError(KindQuery, code, span, format, args)
}

// NewTypeError creates a TypeError.
func NewTypeError(code Code, span Span, format string, args ...any) *Error {
	return newError(KindType, code, span, format, args)
}

// NewUnsupportedError creates an UnsupportedFeatureError.
func NewUnsupportedError(span Span, format string, args ...any) *Error {
	return newError(KindUnsupported, ErrCodeUnsupported, span, format, args)
}

// NewInternalError creates an InternalServerError.
func NewInternalError(format string, args ...any) *Error {
	return newError(KindInternal, ErrCodeInternal, Span{}, format, args)
}

// KindOf returns the kind of err, or "" if err is not a *Error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// CodeOf returns the code of err, or "" if err is not a *Error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsReference reports whether err is a ReferenceError.
func IsReference(err error) bool {
	return KindOf(err) == KindReference
}

// IsQuery reports whether err is a QueryError, TypeErrors included.
func IsQuery(err error) bool {
	k := KindOf(err)
	return k == KindQuery || k == KindType
}

// IsUnsupported reports whether err is an UnsupportedFeatureError.
func IsUnsupported(err error) bool {
	return KindOf(err) == KindUnsupported
}

// IsInternal reports whether err is an InternalServerError.
func IsInternal(err error) bool {
	return KindOf(err) == KindInternal
}
