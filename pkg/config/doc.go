/*
Package config produces the effective cassandra.yaml for one start.

The shipped conf/cassandra.yaml of the installation is loaded into a
Document, which keeps key order and comments. Caller properties replace
top-level keys, data directories are pointed at the instance working
directory, and every well-known port whose effective value is 0 is replaced
with a port from the allocator. A system property always wins over the
document value of the same port.

The result is written to a throwaway file, conf/cassandra-<random>.yaml,
falling back to the working directory when conf is read-only. The
cassandra.config system property pointing at it is added to the returned
properties.

For 4.0 and later, seeds carry a port. When the storage port is replaced,
occurrences of the old port inside seed_provider strings are replaced too:

	seed_provider:
	  - class_name: org.apache.cassandra.locator.SimpleSeedProvider
	    parameters:
	      - seeds: "127.0.0.1:7000"
*/
package config
