package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ScopeOutput is the JSON payload of the scope command.
type ScopeOutput struct {
	Fingerprint string `json:"fingerprint"`
	Scope       string `json:"scope"`
}

// NewScopeCommand creates the scope command.
func NewScopeCommand(rootOpts *RootOptions) *cobra.Command {
	qo := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "scope [query-file | -]",
		Short: "Print the scope tree of a compiled query",
		Long: `Compile a query and print its scope tree: the fences, branches and
paths that decide which path references denote the same set.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScope(rootOpts, qo, args, cmd)
		},
	}

	addQueryFlags(cmd, qo)

	return cmd
}

func runScope(opts *RootOptions, qo *QueryOptions, args []string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd.OutOrStdout())

	src, err := readQuery(args, qo.Expr, cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "reading query", err)
	}
	loaded, err := loadSchema(opts)
	if err != nil {
		return f.SchemaError(err)
	}
	stmt, err := compileSource(src, loaded, qo, opts.logger())
	if err != nil {
		return f.QueryError(src, err)
	}

	tree := stmt.Scope.Pformat()
	if f.Format == "json" {
		return f.Success(ScopeOutput{Fingerprint: stmt.Fingerprint, Scope: tree})
	}
	fmt.Fprintln(f.Writer, tree)
	return nil
}
