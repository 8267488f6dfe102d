package sdl

import (
	"errors"
	"fmt"

	"cuelang.org/go/cue/token"
)

// Error codes. L0xx are loading failures, L1xx schema validation
// failures.
const (
	ErrCodeGeneric     = "L001"
	ErrCodeNotFound    = "L002"
	ErrCodeNoFiles     = "L003"
	ErrCodeLoadFailed  = "L004"
	ErrCodeBuildFailed = "L005"

	ErrCodeUnknownType       = "L101"
	ErrCodeInheritanceCycle  = "L102"
	ErrCodeInvalidPointer    = "L103"
	ErrCodeInvalidExpr       = "L104"
	ErrCodeInvalidConstraint = "L105"
	ErrCodeInvalidCallable   = "L106"
	ErrCodeInvalidCast       = "L107"
	ErrCodeInvalidType       = "L108"
)

// LoadError is a failure to read or evaluate the CUE sources.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ValidationError is a well-formed CUE value that does not describe a
// valid schema. Path is the CUE path of the offending field.
type ValidationError struct {
	Code    string
	Path    string
	Message string
	Pos     token.Pos
}

func (e *ValidationError) Error() string {
	msg := e.Message
	if e.Path != "" {
		msg = e.Path + ": " + msg
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, msg)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Errors unpacks the errors joined into err by Load or Build.
func Errors(err error) []error {
	if err == nil {
		return nil
	}
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		return joined.Unwrap()
	}
	return []error{err}
}

// ErrorCode returns the code of a LoadError or ValidationError, or
// ErrCodeGeneric.
func ErrorCode(err error) string {
	var le *LoadError
	if errors.As(err, &le) {
		return le.Code
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ErrCodeGeneric
}
