package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "alexidx",
	Short: "alexidx is a sharded inverted index and query engine",
	Long: `alexidx serves free-text search over a sharded, on-disk inverted
index with link-graph scoring (spec §1-§9).

Get started:
  alexidx serve           Start the HTTP query server
  alexidx build-shard     Build one shard file from a posting dump
  alexidx inspect-shard    Print a shard file's header and slot summary`,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(buildShardCmd)
	rootCmd.AddCommand(inspectShardCmd)
}
