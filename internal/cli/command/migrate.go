package command

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/kvgrid/kvgrid/internal/cli/connection"
	"github.com/kvgrid/kvgrid/internal/cli/output"
)

type migrationRecord struct {
	Partition   int32  `json:"Partition"`
	Source      int32  `json:"Source"`
	Target      int32  `json:"Target"`
	FailedShard bool   `json:"FailedShard"`
	State       int    `json:"State"`
}

// MigrateCommand groups the migration-coordinator subcommands.
func MigrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Move a partition between groups",
		Subcommands: []*cli.Command{
			migrateStartCommand(),
		},
	}
}

func migrateStartCommand() *cli.Command {
	return &cli.Command{
		Name:  "start",
		Usage: "Start moving a partition from one group to another",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "partition", Required: true, Usage: "Partition id"},
			&cli.IntFlag{Name: "source", Required: true, Usage: "Current owning group id"},
			&cli.IntFlag{Name: "target", Required: true, Usage: "Destination group id"},
			&cli.BoolFlag{Name: "failed-shard", Usage: "Source group is unreachable; skip straight to the topology update step"},
		},
		Action: func(c *cli.Context) error {
			client := Client(c)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			body := map[string]any{
				"partition":    c.Int("partition"),
				"source_group": c.Int("source"),
				"target_group": c.Int("target"),
				"failed_shard": c.Bool("failed-shard"),
			}
			resp, err := client.Post(ctx, "/migrate", body)
			if err != nil {
				return fmt.Errorf("request failed: %w", err)
			}
			var rec migrationRecord
			if err := connection.ParseResponse(resp, &rec); err != nil {
				return err
			}

			flags := ParseGlobalFlags(c)
			if output.Format(flags.Output) == output.FormatJSON {
				return Formatter(c).Format(os.Stdout, rec)
			}
			fmt.Printf("migration started: partition=%d source=%d target=%d state=%d\n",
				rec.Partition, rec.Source, rec.Target, rec.State)
			return nil
		},
	}
}
