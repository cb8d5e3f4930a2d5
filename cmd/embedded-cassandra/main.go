package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cuemby/embedded-cassandra/pkg/cache"
	"github.com/cuemby/embedded-cassandra/pkg/log"
	"github.com/cuemby/embedded-cassandra/pkg/storage"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "embedded-cassandra",
	Short: "Run Apache Cassandra as a local child process",
	Long: `embedded-cassandra starts an Apache Cassandra distribution as a child
process, waits until it accepts CQL connections and stops it again.

Distributions are extracted once into a shared cache. Every started server
gets its own configuration file, data directories and, on request, free
ports, so several servers can run side by side.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, _ := cmd.Flags().GetString("log-level")
		jsonOutput, _ := cmd.Flags().GetBool("log-json")
		log.Init(log.Config{
			Level:      log.ParseLevel(level),
			JSONOutput: jsonOutput,
		})
	},
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("embedded-cassandra version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"embedded-cassandra version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Log in JSON instead of console format")
	rootCmd.PersistentFlags().String("data-dir", defaultDataDir(), "Directory of the instance registry")
	rootCmd.PersistentFlags().String("cache-dir", cache.DefaultRoot(), "Directory distributions are extracted into")

	rootCmd.AddCommand(versionCmd)
}

func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "embedded-cassandra")
}

func registry(cmd *cobra.Command) *storage.Registry {
	dir, _ := cmd.Flags().GetString("data-dir")
	return storage.NewRegistry(dir)
}
