// Command ketsim runs quantum circuits described in YAML run files on the
// distributed state-vector simulator.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ketsim:", err)
		os.Exit(1)
	}
}
