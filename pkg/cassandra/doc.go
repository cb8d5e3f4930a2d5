/*
Package cassandra runs a Cassandra server as a child process of the calling
program.

An instance is created from a Config with New and driven with Start and Stop:

	c, err := cassandra.New(cassandra.Config{
		Artifact: cassandra.ArchiveArtifact{
			Version: version.MustParse("4.1.3"),
			Path:    "apache-cassandra-4.1.3-bin.tar.gz",
		},
		Port: cassandra.Int(0),
	})
	if err != nil {
		return err
	}
	if err := c.Start(ctx); err != nil {
		return err
	}
	defer c.Stop(context.Background())

	settings, _ := c.Settings()
	fmt.Println(settings.NativeAddress())

Start extracts the distribution into the shared cache, writes a private
cassandra.yaml with the requested overrides, launches the server and waits
until every enabled transport accepts connections. Ports set to 0 are
replaced with free ephemeral ports.

# Lifecycle

	NEW ──start──▶ STARTING ──▶ STARTED ──stop──▶ STOPPING ──▶ STOPPED
	                  │                               │
	                  ├──▶ START_FAILED               ├──▶ STOP_FAILED
	                  └──▶ START_INTERRUPTED          └──▶ STOP_INTERRUPTED

Every state entered is published on Config.Events. Start and Stop are
serialized per instance; Start on a started instance and Stop on a stopped
one return nil.

A start that fails or whose context is cancelled stops whatever it already
launched before returning, so no process outlives an unsuccessful Start.
*/
package cassandra
