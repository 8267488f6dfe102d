package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/roach88/pathql/internal/diag"
	"github.com/roach88/pathql/internal/sdl"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Query or schema errors, failed scenarios
	ExitCommandError = 2 // Command error (invalid paths, bad flags, etc.)
	ExitInternal     = 3 // Compiler bug
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format string
	Writer io.Writer

	// Color enables ANSI colors in rendered diagnostics.
	Color bool
}

func newFormatter(opts *RootOptions, w io.Writer) *OutputFormatter {
	return &OutputFormatter{
		Format: opts.Format,
		Writer: w,
		Color:  opts.Format == "text" && isTerminal(w),
	}
}

// isTerminal reports whether w is a terminal that accepts colors.
// NO_COLOR disables colors everywhere.
func isTerminal(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (f *OutputFormatter) encode(resp CLIResponse) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	return nil
}

// DiagnosticDetails is the JSON form of a diag.Error beyond its code and
// message.
type DiagnosticDetails struct {
	Kind    string            `json:"kind"`
	Hint    string            `json:"hint,omitempty"`
	Span    *diag.Span        `json:"span,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// QueryError reports a failure to decode or compile the query src and
// returns the ExitError the command should fail with. Internal compiler
// errors exit with ExitInternal.
func (f *OutputFormatter) QueryError(src string, err error) error {
	var de *diag.Error
	if !errors.As(err, &de) {
		if outErr := f.Error("E_QUERY", err.Error(), nil); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitFailure, "query failed", err)
	}

	if f.Format == "json" {
		details := DiagnosticDetails{Kind: string(de.Kind), Hint: de.Hint, Details: de.Details}
		if de.Span.IsValid() {
			span := de.Span
			details.Span = &span
		}
		if outErr := f.Error(string(de.Code), de.Message, details); outErr != nil {
			return outErr
		}
	} else {
		diag.Render(f.Writer, src, err, f.Color)
	}

	code := ExitFailure
	if diag.IsInternal(err) {
		code = ExitInternal
	}
	return NewExitError(code, fmt.Sprintf("%s: %s", de.Code, de.Message))
}

// SchemaError reports a failure to load the schema. Missing paths are
// command errors; everything else is a schema failure.
func (f *OutputFormatter) SchemaError(err error) error {
	errs := sdl.Errors(err)
	code := sdl.ErrorCode(errs[0])

	messages := make([]string, len(errs))
	for i, e := range errs {
		messages[i] = e.Error()
	}
	if f.Format == "json" {
		if outErr := f.Error(code, fmt.Sprintf("schema has %d error(s)", len(errs)), messages); outErr != nil {
			return outErr
		}
	} else {
		fmt.Fprintf(f.Writer, "✗ Schema invalid: %d error(s)\n", len(errs))
		for _, m := range messages {
			fmt.Fprintf(f.Writer, "  %s\n", m)
		}
	}

	exit := ExitFailure
	if code == sdl.ErrCodeNotFound || code == sdl.ErrCodeNoFiles {
		exit = ExitCommandError
	}
	return NewExitError(exit, fmt.Sprintf("%s: schema has %d error(s)", code, len(errs)))
}

func errorSummary(err error) (code, message string) {
	var de *diag.Error
	if errors.As(err, &de) {
		return string(de.Code), de.Message
	}
	return "E_QUERY", err.Error()
}

// renderIndented renders a query error two spaces in, under a list item.
func renderIndented(f *OutputFormatter, src string, err error) {
	var buf bytes.Buffer
	diag.Render(&buf, src, err, f.Color)
	for line := range strings.Lines(buf.String()) {
		fmt.Fprintf(f.Writer, "  %s", line)
	}
}
