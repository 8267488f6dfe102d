package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// CheckResult is the JSON payload of the check command.
type CheckResult struct {
	Module  string        `json:"module"`
	Files   int           `json:"files"`
	Digest  string        `json:"digest"`
	Types   []string      `json:"types"`
	Queries []QueryResult `json:"queries,omitempty"`
}

// QueryResult is the outcome of compiling one query file.
type QueryResult struct {
	File       string `json:"file"`
	Pass       bool   `json:"pass"`
	ResultType string `json:"result_type,omitempty"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message,omitempty"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	qo := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "check [query-file...]",
		Short: "Validate the schema and optionally compile queries",
		Long: `Load and validate the CUE schema, reporting every error found.

Query files given as arguments are compiled against the schema; each is
reported as passing or failing without stopping at the first failure.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, qo, args, cmd)
		},
	}

	cmd.Flags().StringVar(&qo.Module, "module", "", "default module (defaults to the schema module)")
	cmd.Flags().BoolVar(&qo.ImplicitID, "implicit-id", false, "project id in every shape")

	return cmd
}

func runCheck(opts *RootOptions, qo *QueryOptions, files []string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd.OutOrStdout())
	log := opts.logger()

	loaded, err := loadSchema(opts)
	if err != nil {
		return f.SchemaError(err)
	}

	result := CheckResult{
		Module: loaded.Module,
		Files:  loaded.FileCount,
		Digest: loaded.Digest,
		Types:  loaded.Schema.TypeNamesInModule(loaded.Module),
	}
	if result.Types == nil {
		result.Types = []string{}
	}

	failed := 0
	for _, file := range files {
		qr := QueryResult{File: file}
		src, err := readQuery([]string{file}, "", cmd.InOrStdin())
		if err != nil {
			return WrapExitError(ExitCommandError, "reading query", err)
		}
		stmt, err := compileSource(src, loaded, qo, log)
		if err != nil {
			failed++
			qr.Code, qr.Message = errorSummary(err)
			if f.Format != "json" {
				fmt.Fprintf(f.Writer, "✗ %s\n", file)
				renderIndented(f, src, err)
			}
		} else {
			qr.Pass = true
			if t := stmt.ResultType(); t != nil {
				qr.ResultType = t.DisplayName()
			}
			if f.Format != "json" {
				fmt.Fprintf(f.Writer, "✓ %s: %s %s\n", file, qr.ResultType, stmt.Cardinality)
			}
		}
		result.Queries = append(result.Queries, qr)
	}

	if f.Format == "json" {
		if err := f.Success(result); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(f.Writer, "✓ Schema valid: module %s, %d type(s), %d file(s)\n",
			result.Module, len(result.Types), result.Files)
		log.Debug("schema types", "types", result.Types)
	}

	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d query file(s) failed", failed))
	}
	return nil
}
