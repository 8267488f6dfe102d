package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/pathql/internal/compiler"
	"github.com/roach88/pathql/internal/ir"
	"github.com/roach88/pathql/internal/qlast"
	"github.com/roach88/pathql/internal/sdl"
)

// QueryOptions are the compiler flags shared by the commands that compile
// queries.
type QueryOptions struct {
	Expr        string // inline query text
	Module      string // default module, the schema's when empty
	ImplicitID  bool
	ImplicitTid bool
}

func addQueryFlags(cmd *cobra.Command, qo *QueryOptions) {
	cmd.Flags().StringVarP(&qo.Expr, "expr", "e", "", "inline query text")
	cmd.Flags().StringVar(&qo.Module, "module", "", "default module (defaults to the schema module)")
	cmd.Flags().BoolVar(&qo.ImplicitID, "implicit-id", false, "project id in every shape")
	cmd.Flags().BoolVar(&qo.ImplicitTid, "implicit-tid", false, "project __tid__ in every shape")
}

func (qo *QueryOptions) module(loaded *sdl.Result) string {
	if qo.Module != "" {
		return qo.Module
	}
	return loaded.Module
}

// value is the part of the options that changes compiler output. It is
// folded into cache keys.
func (qo *QueryOptions) value(loaded *sdl.Result) ir.Object {
	return ir.Obj(
		ir.F("module", ir.Str(qo.module(loaded))),
		ir.F("implicit_id", ir.Bool(qo.ImplicitID)),
		ir.F("implicit_tid", ir.Bool(qo.ImplicitTid)),
	)
}

// readQuery returns the query text from --expr, a file argument, or stdin
// when the argument is "-".
func readQuery(args []string, expr string, stdin io.Reader) (string, error) {
	switch {
	case expr != "" && len(args) > 0:
		return "", errors.New("pass either a query file or --expr, not both")
	case expr != "":
		return expr, nil
	case len(args) == 0:
		return "", errors.New("no query: pass a query file, - for stdin, or --expr")
	case args[0] == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func loadSchema(opts *RootOptions) (*sdl.Result, error) {
	loaded, err := sdl.Load(opts.Schema)
	if err != nil {
		return nil, err
	}
	opts.logger().Debug("schema loaded",
		"path", opts.Schema,
		"module", loaded.Module,
		"files", loaded.FileCount,
		"digest", loaded.Digest)
	return loaded, nil
}

// compileSource decodes and compiles one query.
func compileSource(src string, loaded *sdl.Result, qo *QueryOptions, log *slog.Logger) (*ir.Statement, error) {
	q, err := qlast.DecodeStatement([]byte(src))
	if err != nil {
		return nil, err
	}
	return compiler.Compile(loaded.Schema, q,
		compiler.WithModule(qo.module(loaded)),
		compiler.WithImplicitIDInShapes(qo.ImplicitID),
		compiler.WithImplicitTidInShapes(qo.ImplicitTid),
		compiler.WithLogger(log),
	)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}

func short(s string) string {
	if len(s) > 12 {
		return s[:12]
	}
	return s
}
