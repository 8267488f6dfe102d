package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/pathql/internal/store"
)

// CacheEntry is the listing form of a cached statement.
type CacheEntry struct {
	Seq           int64    `json:"seq"`
	Key           string   `json:"key"`
	Fingerprint   string   `json:"fingerprint"`
	SchemaVersion string   `json:"schema_version"`
	ResultType    string   `json:"result_type"`
	Cardinality   string   `json:"cardinality"`
	Refs          []string `json:"refs"`
	Source        string   `json:"source"`
}

// CacheCount is the payload of the commands that remove entries.
type CacheCount struct {
	Removed int64 `json:"removed"`
}

// NewCacheCommand creates the cache command and its subcommands.
func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the compiled-statement cache",
		Long: `Inspect and maintain the compiled-statement cache named by --cache.

Cached statements record the schema objects they depend on. Invalidating
a schema object removes every statement that references it.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "list",
		Short:         "List cached statements in insertion order",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(rootOpts, cmd, runCacheList)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "stats",
		Short:         "Count cached statements and references",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(rootOpts, cmd, runCacheStats)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "invalidate <schema-name>...",
		Short:         "Remove statements that depend on the named schema objects",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(rootOpts, cmd, func(ctx context.Context, f *OutputFormatter, c *store.Store) error {
				n, err := c.Invalidate(ctx, args...)
				if err != nil {
					return WrapExitError(ExitCommandError, "invalidating cache", err)
				}
				rootOpts.logger().Info("cache invalidated", "refs", args, "count", n)
				return reportRemoved(f, n, fmt.Sprintf("Invalidated %d statement(s)", n))
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "prune",
		Short: "Remove statements compiled against other schema versions",
		Long: `Remove every statement compiled against a schema other than the one
named by --schema.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(rootOpts, cmd, func(ctx context.Context, f *OutputFormatter, c *store.Store) error {
				loaded, err := loadSchema(rootOpts)
				if err != nil {
					return f.SchemaError(err)
				}
				n, err := c.Prune(ctx, loaded.Digest)
				if err != nil {
					return WrapExitError(ExitCommandError, "pruning cache", err)
				}
				rootOpts.logger().Info("cache pruned", "keep", loaded.Digest, "count", n)
				return reportRemoved(f, n, fmt.Sprintf("Pruned %d statement(s)", n))
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "purge",
		Short:         "Remove every cached statement",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(rootOpts, cmd, func(ctx context.Context, f *OutputFormatter, c *store.Store) error {
				n, err := c.Purge(ctx)
				if err != nil {
					return WrapExitError(ExitCommandError, "purging cache", err)
				}
				return reportRemoved(f, n, fmt.Sprintf("Purged %d statement(s)", n))
			})
		},
	})

	return cmd
}

// withCache opens the cache named by --cache for the duration of run.
func withCache(opts *RootOptions, cmd *cobra.Command, run func(context.Context, *OutputFormatter, *store.Store) error) error {
	if opts.Cache == "" {
		return NewExitError(ExitCommandError, "no cache: pass --cache <path>")
	}
	c, err := store.Open(opts.Cache)
	if err != nil {
		return WrapExitError(ExitCommandError, "opening cache", err)
	}
	defer c.Close()
	return run(cmd.Context(), newFormatter(opts, cmd.OutOrStdout()), c)
}

func runCacheList(ctx context.Context, f *OutputFormatter, c *store.Store) error {
	entries, err := c.List(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "listing cache", err)
	}

	if f.Format == "json" {
		out := make([]CacheEntry, len(entries))
		for i, e := range entries {
			out[i] = CacheEntry{
				Seq:           e.Seq,
				Key:           e.Key,
				Fingerprint:   e.Fingerprint,
				SchemaVersion: e.SchemaVersion,
				ResultType:    e.ResultType,
				Cardinality:   e.Cardinality,
				Refs:          e.Refs,
				Source:        e.Source,
			}
		}
		return f.Success(out)
	}

	if len(entries) == 0 {
		fmt.Fprintln(f.Writer, "Cache is empty.")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(f.Writer, "%4d  %s  %s %s  %s\n",
			e.Seq, short(e.Key), e.ResultType, e.Cardinality, firstLine(e.Source))
	}
	return nil
}

func runCacheStats(ctx context.Context, f *OutputFormatter, c *store.Store) error {
	stats, err := c.Stats(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "reading cache", err)
	}
	if f.Format == "json" {
		return f.Success(stats)
	}
	fmt.Fprintf(f.Writer, "statements: %d\nrefs: %d\n", stats.Statements, stats.Refs)
	return nil
}

func reportRemoved(f *OutputFormatter, n int64, text string) error {
	if f.Format == "json" {
		return f.Success(CacheCount{Removed: n})
	}
	fmt.Fprintln(f.Writer, text)
	return nil
}
