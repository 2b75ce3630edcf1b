package command

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/kvgrid/kvgrid/internal/cli/connection"
	"github.com/kvgrid/kvgrid/internal/cli/output"
)

// PingCommand checks that a node's admin endpoint is reachable.
func PingCommand() *cli.Command {
	return &cli.Command{
		Name:  "ping",
		Usage: "Check that a node's admin endpoint is reachable",
		Action: func(c *cli.Context) error {
			client := Client(c)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			resp, err := client.Get(ctx, "/ping")
			if err != nil {
				return fmt.Errorf("ping %s: %w", client.BaseURL(), err)
			}
			if err := connection.ParseResponse(resp, nil); err != nil {
				return err
			}
			fmt.Printf("%s: ok\n", client.BaseURL())
			return nil
		},
	}
}

type topologyStatus struct {
	Seq           uint64              `json:"seq"`
	NumPartitions int32               `json:"num_partitions"`
	Partitions    map[string]int32    `json:"partitions"`
	Groups        map[string][]string `json:"groups"`
	Nodes         map[string]string   `json:"nodes"`
	Self          string              `json:"self"`
	SelfIsMaster  bool                `json:"self_is_master"`
}

// StatusCommand prints a node's view of the cluster topology.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show a node's view of the cluster topology",
		Action: func(c *cli.Context) error {
			client := Client(c)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			resp, err := client.Get(ctx, "/status")
			if err != nil {
				return fmt.Errorf("request failed: %w", err)
			}
			var status topologyStatus
			if err := connection.ParseResponse(resp, &status); err != nil {
				return err
			}

			flags := ParseGlobalFlags(c)
			if output.Format(flags.Output) == output.FormatJSON {
				return Formatter(c).Format(os.Stdout, status)
			}

			fmt.Printf("seq: %d   partitions: %d   self: %s (master=%t)\n\n",
				status.Seq, status.NumPartitions, status.Self, status.SelfIsMaster)

			table := &output.Table{Headers: []string{"PARTITION", "GROUP"}}
			keys := make([]string, 0, len(status.Partitions))
			for k := range status.Partitions {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				table.Rows = append(table.Rows, []string{k, fmt.Sprintf("%d", status.Partitions[k])})
			}
			return table.Render(os.Stdout)
		},
	}
}
