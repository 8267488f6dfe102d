package cli

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/pathql/internal/explain"
	"github.com/roach88/pathql/internal/ir"
	"github.com/roach88/pathql/internal/store"
)

// Emit modes of the compile command.
const (
	EmitPlan = "plan"
	EmitIR   = "ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	QueryOptions
	Emit string
}

// CompileOutput is the JSON payload of a successful compile.
type CompileOutput struct {
	Key         string          `json:"key,omitempty"`
	Fingerprint string          `json:"fingerprint"`
	ResultType  string          `json:"result_type"`
	Cardinality string          `json:"cardinality"`
	Refs        []string        `json:"refs"`
	Cached      bool            `json:"cached,omitempty"`
	Plan        ir.Value        `json:"plan,omitempty"`
	IR          json.RawMessage `json:"ir,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile [query-file | -]",
		Short: "Compile a query and print its plan or IR",
		Long: `Compile a query against the schema.

The default output is the relational plan of the compiled statement.
--emit ir prints the canonical JSON IR instead.

With --cache, every compiled statement is stored in the cache database,
and --emit ir is answered from the cache when the query, schema and
options are unchanged.

Exit codes:
  0 - Compiled
  1 - Query or schema error
  2 - Command error (missing files, bad flags)
  3 - Internal compiler error`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args, cmd)
		},
	}

	addQueryFlags(cmd, &opts.QueryOptions)
	cmd.Flags().StringVar(&opts.Emit, "emit", EmitPlan, "what to print (plan|ir)")

	return cmd
}

func runCompile(opts *CompileOptions, args []string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout())
	log := opts.logger()
	ctx := cmd.Context()

	if opts.Emit != EmitPlan && opts.Emit != EmitIR {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid --emit %q: must be plan or ir", opts.Emit))
	}

	src, err := readQuery(args, opts.Expr, cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "reading query", err)
	}

	loaded, err := loadSchema(opts.RootOptions)
	if err != nil {
		return f.SchemaError(err)
	}

	var cache *store.Store
	var key string
	if opts.Cache != "" {
		cache, err = store.Open(opts.Cache)
		if err != nil {
			return WrapExitError(ExitCommandError, "opening cache", err)
		}
		defer cache.Close()

		key, err = ir.QueryKey(src, loaded.Digest, opts.value(loaded))
		if err != nil {
			return err
		}
		if opts.Emit == EmitIR {
			e, ok, err := cache.Get(ctx, key)
			if err != nil {
				return WrapExitError(ExitCommandError, "reading cache", err)
			}
			if ok {
				log.Info("cache hit", "key", key, "fingerprint", e.Fingerprint)
				return outputIR(f, CompileOutput{
					Key:         e.Key,
					Fingerprint: e.Fingerprint,
					ResultType:  e.ResultType,
					Cardinality: e.Cardinality,
					Refs:        e.Refs,
					Cached:      true,
				}, e.IR)
			}
		}
	}

	stmt, err := compileSource(src, loaded, &opts.QueryOptions, log)
	if err != nil {
		return f.QueryError(src, err)
	}

	plan, err := explain.Explain(stmt)
	if err != nil {
		return f.QueryError(src, err)
	}
	out := CompileOutput{
		Key:         key,
		Fingerprint: stmt.Fingerprint,
		ResultType:  plan.ResultType,
		Cardinality: plan.Cardinality.String(),
		Refs:        plan.Refs,
	}
	if out.Refs == nil {
		out.Refs = []string{}
	}

	var irData []byte
	if cache != nil {
		e, err := store.NewEntry(key, src, loaded.Digest, stmt)
		if err != nil {
			return err
		}
		seq, err := cache.Put(ctx, e)
		if err != nil {
			return WrapExitError(ExitCommandError, "writing cache", err)
		}
		log.Info("statement cached", "key", key, "seq", seq, "refs", len(e.Refs))
		irData = e.IR
	}

	if opts.Emit == EmitPlan {
		if f.Format == "json" {
			out.Plan = plan.Value()
			return f.Success(out)
		}
		return explain.Write(f.Writer, plan, explain.FormatText)
	}

	if irData == nil {
		enc, err := ir.Encode(stmt)
		if err != nil {
			return err
		}
		if irData, err = ir.MarshalCanonical(enc); err != nil {
			return err
		}
	}
	return outputIR(f, out, irData)
}

func outputIR(f *OutputFormatter, out CompileOutput, data []byte) error {
	if f.Format == "json" {
		out.IR = json.RawMessage(data)
		return f.Success(out)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err := f.Writer.Write(buf.Bytes())
	return err
}
