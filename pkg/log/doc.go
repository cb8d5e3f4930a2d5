/*
Package log configures the zerolog logger shared by every embedded-cassandra
package.

The global Logger discards everything until Init is called, so embedding the
library in a test suite is silent by default. Command line tools call Init
once at startup:

	log.Init(log.Config{Level: log.DebugLevel})

Packages derive child loggers carrying a component field, and the lifecycle
code adds the instance name:

	logger := log.WithInstance("node", "cassandra-1a2b3c4d")
	logger.Info().Int("pid", pid).Msg("Cassandra process started")

Output lines of the managed server are forwarded at debug level under the
"cassandra" component, which makes `--log-level debug` the quickest way to
see why a node refused to start.
*/
package log
