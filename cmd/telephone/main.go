// Command telephone passes clinical documents through chains of record
// systems and reports how they drift.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/telephone/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
