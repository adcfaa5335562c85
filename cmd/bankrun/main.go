// Command bankrun runs the puppet scenario against an in-process ledger or
// a JSON-RPC node, and serves metrics and a log stream for long sessions.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
