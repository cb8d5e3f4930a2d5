/*
Package storage keeps a registry of running Cassandra instances in a BoltDB
(bbolt) file, <dataDir>/instances.db.

Each started instance is stored as JSON under its name in the "instances"
bucket and removed once it stopped. The registry outlives the process that
wrote it, which lets the command line tool list servers started by other
programs and stop servers whose owner died without cleaning up.

bbolt holds an exclusive file lock while the database is open. NewBoltStore
waits up to one second for another process to close it, so callers should
open the store, do their work and close it again rather than keep it open
for the lifetime of an instance. Registry does exactly that for every call.
*/
package storage
