// Package main provides the entry point for kvgrid-admin.
//
// kvgrid-admin is the command-line administration tool for a kvgrid
// cluster: bootstrapping a genesis node's partition map, checking a
// node's view of the topology, and starting partition migrations.
package main

import (
	"fmt"
	"os"

	"github.com/kvgrid/kvgrid/internal/cli/command"
)

func main() {
	app := command.App()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
