package main

import (
	"context"
	"fmt"

	"github.com/cuemby/embedded-cassandra/pkg/node"
	"github.com/cuemby/embedded-cassandra/pkg/types"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
)

var reapCmd = &cobra.Command{
	Use:   "reap [NAME...]",
	Short: "Stop orphaned servers and remove stale records",
	Long: `Stop Cassandra servers whose starting program died without stopping
them, and remove registry records of servers that are gone.

With names, only those instances are considered and running ones are stopped
as well.

Examples:
  # Clean up after crashed test runs
  embedded-cassandra reap

  # Stop one instance regardless of its owner
  embedded-cassandra reap cassandra-1a2b3c4d`,
	RunE: runReap,
}

func init() {
	reapCmd.Flags().Bool("dry-run", false, "Only print what would be done")
	rootCmd.AddCommand(reapCmd)
}

func runReap(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	reg := registry(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var instances []*types.Instance
	if len(args) > 0 {
		for _, name := range args {
			inst, err := reg.GetInstance(name)
			if err != nil {
				return err
			}
			instances = append(instances, inst)
		}
	} else {
		all, err := reg.ListInstances()
		if err != nil {
			return fmt.Errorf("failed to list instances: %w", err)
		}
		instances = all
	}

	var result error
	reaped := 0
	for _, inst := range instances {
		st := status(ctx, inst)
		stop := st == statusOrphaned || (len(args) > 0 && st == statusRunning)
		if !stop && st != statusDead {
			continue
		}

		if dryRun {
			if stop {
				fmt.Printf("Would stop %s (pid %d)\n", inst.Name, inst.Pid)
			} else {
				fmt.Printf("Would remove %s\n", inst.Name)
			}
			continue
		}

		if stop {
			fmt.Printf("Stopping %s (pid %d)...\n", inst.Name, inst.Pid)
			if err := node.StopPid(ctx, inst.Pid); err != nil {
				result = multierror.Append(result, fmt.Errorf("%s: %w", inst.Name, err))
				continue
			}
		}
		if err := reg.DeleteInstance(inst.Name); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", inst.Name, err))
			continue
		}
		fmt.Printf("✓ Reaped %s\n", inst.Name)
		reaped++
	}

	if !dryRun && reaped == 0 && result == nil {
		fmt.Println("Nothing to reap")
	}
	return result
}
