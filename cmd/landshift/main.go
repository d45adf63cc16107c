/*
main.go - Application entry point

PURPOSE:
  Entry point for the landshift CLI. All real wiring lives in root.go and
  the per-command files; this just dispatches and sets the exit code.

SEE ALSO:
  - root.go: Global flags, logger and store construction
*/
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
