package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/cuemby/embedded-cassandra/pkg/node"
	"github.com/cuemby/embedded-cassandra/pkg/types"
	"github.com/spf13/cobra"
)

var psCmd = &cobra.Command{
	Use:   "ps",
	Short: "List registered Cassandra servers",
	Long: `List the Cassandra servers recorded in the registry.

STATUS is "running" while the server process exists, "orphaned" when the
program that started it is gone and "dead" when the server itself is gone.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		instances, err := registry(cmd).ListInstances()
		if err != nil {
			return fmt.Errorf("failed to list instances: %w", err)
		}
		if len(instances) == 0 {
			fmt.Println("No instances found")
			return nil
		}

		ctx := cmd.Context()
		now := time.Now()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "NAME\tVERSION\tPID\tCQL\tSTATUS\tUPTIME")
		for _, inst := range instances {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
				inst.Name,
				inst.Settings.Version,
				inst.Pid,
				inst.Settings.NativeAddress(),
				status(ctx, inst),
				inst.Uptime(now).Round(time.Second),
			)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(psCmd)
}

// Instance statuses shown by ps and used by reap.
const (
	statusRunning  = "running"
	statusOrphaned = "orphaned"
	statusDead     = "dead"
	statusUnknown  = "unknown"
)

func status(ctx context.Context, inst *types.Instance) string {
	if ctx == nil {
		ctx = context.Background()
	}
	if hostname, _ := os.Hostname(); inst.Hostname != "" && inst.Hostname != hostname {
		return statusUnknown
	}
	switch {
	case !node.Running(ctx, inst.Pid):
		return statusDead
	case inst.Owner > 0 && !node.Running(ctx, inst.Owner):
		return statusOrphaned
	default:
		return statusRunning
	}
}
