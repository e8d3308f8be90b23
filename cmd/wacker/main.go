// Command wacker is the thin CLI front-end for wackerd: every subcommand
// translates directly onto one RPC call against the daemon's local
// socket, per spec.md §6.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "wacker: %v\n", err)
		os.Exit(1)
	}
}
