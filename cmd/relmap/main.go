// Command relmap maps a declared schema onto SQLite or Postgres tables and
// serves it over HTTP and gRPC.
package main

import (
	"os"

	"github.com/fatih/color"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		color.New(color.FgRed, color.Bold).Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
