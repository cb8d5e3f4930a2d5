package types

import (
	"net"
	"strconv"
	"time"

	"github.com/cuemby/embedded-cassandra/pkg/version"
)

// Settings describes a started Cassandra server. Ports are 0 when the
// corresponding transport is not bound.
type Settings struct {
	Name    string          `json:"name"`
	Version version.Version `json:"version"`

	// Address is the host the native (or, failing that, rpc) transport bound to.
	Address string `json:"address"`
	Port    int    `json:"port,omitempty"`
	SSLPort int    `json:"ssl_port,omitempty"`
	RPCPort int    `json:"rpc_port,omitempty"`

	NativeTransportEnabled bool `json:"native_transport_enabled"`
	RPCTransportEnabled    bool `json:"rpc_transport_enabled"`

	ConfigFile       string `json:"config_file"`
	InstallDirectory string `json:"install_directory"`
	WorkingDirectory string `json:"working_directory"`

	// Pid is 0 when the server pid could not be determined.
	Pid int `json:"pid,omitempty"`
}

// NativeAddress returns host:port of the CQL transport, or "" if unbound.
func (s Settings) NativeAddress() string {
	return hostPort(s.Address, s.Port)
}

// NativeSSLAddress returns host:port of the encrypted CQL transport, or "".
func (s Settings) NativeSSLAddress() string {
	return hostPort(s.Address, s.SSLPort)
}

// RPCAddress returns host:port of the Thrift transport, or "".
func (s Settings) RPCAddress() string {
	return hostPort(s.Address, s.RPCPort)
}

func hostPort(host string, port int) string {
	if port == 0 {
		return ""
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Instance is a registry record of a running server.
type Instance struct {
	Name     string `json:"name"`
	Pid      int    `json:"pid"`
	Hostname string `json:"hostname"`

	// Owner is the pid of the program that started the server.
	Owner     int       `json:"owner"`
	Settings  Settings  `json:"settings"`
	StartedAt time.Time `json:"started_at"`
}

// Uptime returns how long the instance has been running at now.
func (i *Instance) Uptime(now time.Time) time.Duration {
	if i.StartedAt.IsZero() {
		return 0
	}
	return now.Sub(i.StartedAt)
}
