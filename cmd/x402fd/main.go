// Command x402fd is the x402 EVM settlement facilitator daemon: an HTTP
// server exposing /verify, /settle, and /supported (spec §6) backed by the
// Settlement Engine and its dependency graph.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "x402fd",
		Short: "x402 EVM settlement facilitator",
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newConfigCmd())
	return root
}
