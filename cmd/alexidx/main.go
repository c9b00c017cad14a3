// Command alexidx is the query server and shard-build tooling for
// alexidx's sharded inverted index (spec §6 CLI surface, expanded with
// cobra subcommands per SPEC_FULL.md's DOMAIN STACK).
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
