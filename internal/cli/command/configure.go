package command

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/kvgrid/kvgrid/internal/cli/connection"
)

// ConfigureCommand issues a genesis node's one-time partition-map
// bootstrap over its admin endpoint's /configure call.
func ConfigureCommand() *cli.Command {
	return &cli.Command{
		Name:      "configure",
		Usage:     "Assign the initial partition-to-group map on a genesis node",
		ArgsUsage: "PARTITION=GROUP [PARTITION=GROUP ...]",
		Action: func(c *cli.Context) error {
			assignments, err := parseAssignments(c.Args().Slice())
			if err != nil {
				return err
			}
			if len(assignments) == 0 {
				return fmt.Errorf("at least one PARTITION=GROUP assignment is required")
			}

			client := Client(c)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			body := map[string]any{"partitions": assignments}
			resp, err := client.Post(ctx, "/configure", body)
			if err != nil {
				return fmt.Errorf("request failed: %w", err)
			}
			if err := connection.ParseResponse(resp, nil); err != nil {
				return err
			}
			fmt.Printf("%s: configured %d partitions\n", client.BaseURL(), len(assignments))
			return nil
		},
	}
}

func parseAssignments(args []string) (map[string]int32, error) {
	out := make(map[string]int32, len(args))
	for _, arg := range args {
		parts := strings.SplitN(arg, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid assignment %q, want PARTITION=GROUP", arg)
		}
		if _, err := strconv.Atoi(parts[0]); err != nil {
			return nil, fmt.Errorf("invalid partition id %q: %w", parts[0], err)
		}
		group, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid group id %q: %w", parts[1], err)
		}
		out[parts[0]] = int32(group)
	}
	return out, nil
}
