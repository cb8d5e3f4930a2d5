/*
Package types defines the value types shared by the lifecycle facade, the
instance registry and the command line tool.

Settings is the snapshot handed to callers once a server accepted
connections. It is produced only after readiness was confirmed and is never
mutated afterwards:

	settings, err := c.Settings()
	if err != nil {
		return err // not running
	}
	session := connect(settings.NativeAddress())

Instance is what the registry stores for every running server, so that a
later invocation of the command line tool can list servers started by other
processes or stop ones whose owner crashed.

Both types serialize to JSON; versions are written in their text form.
*/
package types
