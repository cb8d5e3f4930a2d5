// Package readiness decides when a starting Cassandra server can be used.
//
// Each transport (CQL native, Thrift RPC) gets a Detector fed with the
// server's output lines by Pump. A detector becomes ready on the start line,
// which also carries the bound address and port, or on the line saying the
// transport is disabled. Because the start line can be printed before the
// socket accepts connections, callers also Probe every captured port. A Tail
// keeps the last lines for error messages.
package readiness
