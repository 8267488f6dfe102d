package diag

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
)

const (
	ansiRed   = "\x1b[31m"
	ansiBold  = "\x1b[1m"
	ansiReset = "\x1b[0m"
)

// Render writes a human-readable report of err to w. When src is the query
// text the error's span points into, the offending line is printed with a
// caret underline. Display width is used for alignment so that wide
// characters before the span do not shift the caret.
func Render(w io.Writer, src string, err error, color bool) {
	var de *Error
	if !errors.As(err, &de) {
		fmt.Fprintf(w, "error: %v\n", err)
		return
	}

	head := fmt.Sprintf("%s [%s]: %s", de.Kind, de.Code, de.Message)
	if color {
		head = ansiBold + ansiRed + head + ansiReset
	}
	fmt.Fprintln(w, head)

	if de.Span.IsValid() {
		fmt.Fprintf(w, "  --> %s\n", de.Span)
		if line, ok := sourceLine(src, de.Span.Line); ok {
			gutter := fmt.Sprintf("%d | ", de.Span.Line)
			fmt.Fprintf(w, "%s%s\n", gutter, line)
			fmt.Fprintf(w, "%s%s\n",
				strings.Repeat(" ", runewidth.StringWidth(gutter)),
				caretLine(line, de.Span, color))
		}
	}

	if de.Hint != "" {
		fmt.Fprintf(w, "  = hint: %s\n", de.Hint)
	}
	for _, k := range de.DetailKeys() {
		fmt.Fprintf(w, "  = %s: %s\n", k, de.Details[k])
	}
}

func sourceLine(src string, line int) (string, bool) {
	if src == "" || line <= 0 {
		return "", false
	}
	lines := strings.Split(src, "\n")
	if line > len(lines) {
		return "", false
	}
	return strings.TrimRight(lines[line-1], "\r"), true
}

// caretLine builds the underline for span within line. Column is a 1-based
// rune column.
func caretLine(line string, span Span, color bool) string {
	runes := []rune(line)
	col := min(max(span.Column-1, 0), len(runes))
	pad := runewidth.StringWidth(string(runes[:col]))

	width := 1
	if span.End > span.Start {
		end := min(col+span.Len(), len(runes))
		width = max(1, runewidth.StringWidth(string(runes[col:end])))
	}

	carets := strings.Repeat("^", width)
	if color {
		carets = ansiRed + carets + ansiReset
	}
	return strings.Repeat(" ", pad) + carets
}
