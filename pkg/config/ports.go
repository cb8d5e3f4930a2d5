package config

// PortKey names one port setting. ConfigKey is the cassandra.yaml key (empty
// for ports that only exist as system properties) and Properties are the
// system properties that override it, in precedence order.
type PortKey struct {
	Name       string
	ConfigKey  string
	Properties []string
}

var (
	NativePort = PortKey{
		Name:       "native",
		ConfigKey:  "native_transport_port",
		Properties: []string{"cassandra.native_transport_port"},
	}
	NativeSSLPort = PortKey{
		Name:       "native_ssl",
		ConfigKey:  "native_transport_port_ssl",
		Properties: []string{"cassandra.native_transport_port_ssl"},
	}
	RPCPort = PortKey{
		Name:       "rpc",
		ConfigKey:  "rpc_port",
		Properties: []string{"cassandra.rpc_port"},
	}
	StoragePort = PortKey{
		Name:       "storage",
		ConfigKey:  "storage_port",
		Properties: []string{"cassandra.storage_port"},
	}
	SSLStoragePort = PortKey{
		Name:       "ssl_storage",
		ConfigKey:  "ssl_storage_port",
		Properties: []string{"cassandra.ssl_storage_port"},
	}
	JMXLocalPort = PortKey{
		Name:       "jmx_local",
		Properties: []string{"cassandra.jmx.local.port"},
	}
	JMXRemotePort = PortKey{
		Name:       "jmx_remote",
		Properties: []string{"cassandra.jmx.remote.port", "com.sun.management.jmxremote.port"},
	}
)

// PortKeys lists every port the overlay resolves.
var PortKeys = []PortKey{
	NativePort,
	NativeSSLPort,
	RPCPort,
	StoragePort,
	SSLStoragePort,
	JMXLocalPort,
	JMXRemotePort,
}
