// Command puregit is a thin CLI over this module's storage, index, and
// transport packages (spec.md §6), grounded on Nivl/git-go's
// cmd/git-go command tree (a persistent -C flag plus one cobra.Command
// per plumbing operation).
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
