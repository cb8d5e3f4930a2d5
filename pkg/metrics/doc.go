/*
Package metrics provides Prometheus metrics for embedded Cassandra instances.

All collectors are registered with the default Prometheus registry at package
init, so any program embedding the library can expose them with Handler:

	http.Handle("/metrics", metrics.Handler())

# Metric Catalog

Lifecycle:
  - ecass_starts_total{outcome}: start attempts (success, failure, interrupted)
  - ecass_stops_total{outcome}: stop attempts (success, failure, interrupted)
  - ecass_start_duration_seconds: time until the node accepted connections
  - ecass_running_instances: instances currently in the STARTED state

Shutdown:
  - ecass_escalation_steps_total{step}: polite, forceful and destroy steps issued

Cache and ports:
  - ecass_extractions_total: archive extractions performed (cache misses)
  - ecass_ports_allocated_total: ephemeral ports handed out

# Timer Pattern

	timer := metrics.NewTimer()
	// ... wait for readiness ...
	timer.ObserveDuration(metrics.StartDuration)

A high ecass_extractions_total relative to starts means the cache directory is
not shared between runs; a non-zero destroy step count means nodes ignored
both SIGINT and SIGKILL within their budgets, which usually points at a stuck
JVM or a process running under a different user.
*/
package metrics
