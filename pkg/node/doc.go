/*
Package node starts and stops Cassandra server processes.

New picks the implementation for the running platform. On Unix the server is
started as

	<install>/bin/cassandra -f -p <work>/cassandra.pid [-R]

in its own process group, and the pid is taken from the process handle. On
Windows it is started through powershell running bin\cassandra.ps1, and the
pid is read from the pid file, polled for up to a second. When the pid never
appears the process is still controlled through its handle.

The environment is the current environment plus JAVA_HOME, the caller's
variables and JVM_EXTRA_OPTS holding the JVM options and system properties.
Standard output and standard error share one pipe, read through
Process.Output.

# Shutdown

Stop runs an Escalator:

	polite    SIGINT           stop-server.ps1
	forceful  SIGKILL          taskkill /T /F
	destroy   kill the group   terminate the handle

Each step is followed by a bounded wait for the exit (5s by default). A step
that fails is logged and the next one runs. If the process survives all
three, ErrNotStopped is returned together with the step errors.

StopPid applies the same escalation to a process known only by its pid.
*/
package node
