// Command sysfail-ctl is a plan-authoring and diagnostic tool: it
// validates a JSON plan description offline, explains how a compiled
// plan would treat a given syscall, and checks whether the running
// kernel supports syscall user dispatch, all without ever starting a
// Session.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
