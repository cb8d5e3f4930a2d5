package main

import (
	"context"
	"fmt"
	"os"

	"github.com/cuemby/embedded-cassandra/pkg/cache"
	"github.com/cuemby/embedded-cassandra/pkg/log"
	"github.com/cuemby/embedded-cassandra/pkg/version"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage extracted distributions",
}

var cacheEnsureCmd = &cobra.Command{
	Use:   "ensure ARCHIVE",
	Short: "Extract a distribution archive into the cache",
	Long: `Extract a distribution archive into the cache unless it is already
there, and print the installation directory. Safe to run concurrently with
other processes sharing the cache.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetString("cassandra-version")
		v, err := version.Parse(raw)
		if err != nil {
			return err
		}
		root, _ := cmd.Flags().GetString("cache-dir")
		archive := args[0]

		c := cache.New(root, cache.WithLogger(log.WithComponent("cache")))
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		dir, err := c.Ensure(ctx, v, func(context.Context) (string, error) {
			if _, err := os.Stat(archive); err != nil {
				return "", err
			}
			return archive, nil
		})
		if err != nil {
			return err
		}
		fmt.Println(dir)
		return nil
	},
}

func init() {
	cacheEnsureCmd.Flags().String("cassandra-version", "", "Cassandra version of the archive (required)")
	_ = cacheEnsureCmd.MarkFlagRequired("cassandra-version")

	cacheCmd.AddCommand(cacheEnsureCmd)
	rootCmd.AddCommand(cacheCmd)
}
