// Package command provides the CLI command definitions for kvgrid-admin.
package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/kvgrid/kvgrid/internal/cli/connection"
	"github.com/kvgrid/kvgrid/internal/cli/output"
)

// Build information, set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// App creates the kvgrid-admin CLI application: one client talking to
// one node's admin endpoint per invocation, rather than a persistent
// connect/disconnect session — a node is addressed directly with
// --node on every call.
func App() *cli.App {
	return &cli.App{
		Name:    "kvgrid-admin",
		Usage:   "kvgrid cluster administration tool",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildTime),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			PingCommand(),
			StatusCommand(),
			ConfigureCommand(),
			MigrateCommand(),
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "node",
			Aliases: []string{"n"},
			Usage:   "Node admin address (e.g., localhost:6181)",
			EnvVars: []string{"KVGRID_ADMIN_NODE"},
			Value:   "localhost:6181",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json",
			Value:   "table",
		},
	}
}

// GlobalFlags carries the flags every subcommand needs.
type GlobalFlags struct {
	Node   string
	Output string
}

// ParseGlobalFlags extracts global flags from context.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	return &GlobalFlags{
		Node:   c.String("node"),
		Output: c.String("output"),
	}
}

// Client builds the HTTP client for the node this invocation targets.
func Client(c *cli.Context) *connection.HTTPClient {
	return connection.NewHTTPClient(ParseGlobalFlags(c).Node)
}

// Formatter builds the output.Formatter for this invocation's --output flag.
func Formatter(c *cli.Context) output.Formatter {
	return output.NewFormatter(output.Format(ParseGlobalFlags(c).Output))
}
