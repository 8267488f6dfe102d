// Command pathql compiles path queries against a CUE schema.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/pathql/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "pathql:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
