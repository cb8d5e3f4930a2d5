package readiness

import (
	"sync"
	"testing"

	"github.com/cuemby/embedded-cassandra/pkg/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransition_Native(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Status
	}{
		{
			name: "4.x unencrypted",
			line: "INFO  [main] 2023-05-01 10:00:00,000 PipelineConfigurator.java:125 - Starting listening for CQL clients on localhost/127.0.0.1:9042 (unencrypted)...",
			want: Status{State: Ready, Host: "127.0.0.1", Port: 9042},
		},
		{
			name: "3.x encrypted",
			line: "INFO  [main] Server.java:156 - Starting listening for CQL clients on /127.0.0.1:9142 (encrypted)...",
			want: Status{State: Ready, Host: "127.0.0.1", SSLPort: 9142},
		},
		{
			name: "2.x without variant",
			line: "INFO  [main] Server.java:155 - Starting listening for CQL clients on localhost/127.0.0.1:9042...",
			want: Status{State: Ready, Host: "127.0.0.1", Port: 9042},
		},
		{
			name: "ipv6 host",
			line: "Starting listening for CQL clients on /0:0:0:0:0:0:0:1:9042 (unencrypted)...",
			want: Status{State: Ready, Host: "0:0:0:0:0:0:0:1", Port: 9042},
		},
		{
			name: "case insensitive",
			line: "STARTING LISTENING FOR CQL CLIENTS ON /10.0.0.5:19042",
			want: Status{State: Ready, Host: "10.0.0.5", Port: 19042},
		},
		{
			name: "disabled",
			line: "INFO  [main] CassandraDaemon.java:650 - Not starting native transport as requested. Use JMX (StorageService->startNativeTransport()) or nodetool (enablebinary) to start it",
			want: Status{State: Disabled},
		},
		{
			name: "unrelated",
			line: "INFO  [main] StorageService.java:1500 - JOINING: Finish joining ring",
			want: Status{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Transition(Status{}, tt.line, NativeRules))
		})
	}
}

func TestTransition_RPC(t *testing.T) {
	got := Transition(Status{}, "INFO  [main] ThriftServer.java:119 - Binding thrift service to localhost/127.0.0.1:9160", RPCRules)
	assert.Equal(t, Status{State: Ready, Host: "127.0.0.1", Port: 9160}, got)

	got = Transition(Status{}, "INFO  [main] CassandraDaemon.java:500 - Not starting RPC server as requested. Use JMX (StorageService->startRPCServer()) or nodetool (enablethrift) to start it", RPCRules)
	assert.Equal(t, Status{State: Disabled}, got)

	// Native lines do not affect the rpc transport
	got = Transition(Status{}, "Starting listening for CQL clients on /127.0.0.1:9042", RPCRules)
	assert.Equal(t, Status{}, got)
}

func TestTransition_FirstMatchWins(t *testing.T) {
	s := Transition(Status{}, "Starting listening for CQL clients on /127.0.0.1:9042 (unencrypted)...", NativeRules)

	// A later disabled line never reverts readiness
	s = Transition(s, "Not starting native transport as requested.", NativeRules)
	assert.Equal(t, Ready, s.State)

	// Same variant again does not overwrite the port
	s = Transition(s, "Starting listening for CQL clients on /127.0.0.1:1111 (unencrypted)...", NativeRules)
	assert.Equal(t, 9042, s.Port)

	// The other variant fills the empty slot
	s = Transition(s, "Starting listening for CQL clients on /127.0.0.1:9142 (encrypted)...", NativeRules)
	assert.Equal(t, Status{State: Ready, Host: "127.0.0.1", Port: 9042, SSLPort: 9142}, s)

	d := Transition(Status{}, "Not starting native transport as requested.", NativeRules)
	d = Transition(d, "Starting listening for CQL clients on /127.0.0.1:9042", NativeRules)
	assert.Equal(t, Status{State: Disabled}, d)
}

func TestTransition_Idempotent(t *testing.T) {
	line := "Starting listening for CQL clients on /127.0.0.1:9042 (unencrypted)..."
	once := Transition(Status{}, line, NativeRules)
	twice := Transition(once, line, NativeRules)
	assert.Equal(t, once, twice)
}

func TestNativeTransport_Versions(t *testing.T) {
	tests := []struct {
		version string
		enabled bool
		ready   bool
	}{
		{version: "1.1.12", enabled: true, ready: true},
		{version: "1.2.19", enabled: true, ready: false},
		{version: "1.2.19", enabled: false, ready: true},
		{version: "2.0.17", enabled: false, ready: false},
		{version: "4.1.3", enabled: true, ready: false},
		{version: "4.0-beta4", enabled: true, ready: false},
	}

	for _, tt := range tests {
		d := NativeTransport(version.MustParse(tt.version), tt.enabled)
		assert.Equal(t, tt.ready, d.Ready(), "%s enabled=%v", tt.version, tt.enabled)
		assert.Equal(t, "native", d.Name())
	}
}

func TestRPCTransport_Versions(t *testing.T) {
	assert.True(t, RPCTransport(version.MustParse("4.0.0"), true).Ready())
	assert.True(t, RPCTransport(version.MustParse("4.0-beta4"), true).Ready())
	assert.False(t, RPCTransport(version.MustParse("3.11.16"), true).Ready())
	assert.True(t, RPCTransport(version.MustParse("1.2.19"), false).Ready())
	assert.False(t, RPCTransport(version.MustParse("2.2.19"), false).Ready())
}

func TestDetector_ConcurrentAccept(t *testing.T) {
	d := NativeTransport(version.MustParse("4.1.3"), true)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				d.Accept("INFO  [main] Gossiper.java - No gossip backlog; proceeding")
				_ = d.Ready()
			}
		}()
	}
	d.Accept("Starting listening for CQL clients on /127.0.0.1:9042 (unencrypted)...")
	wg.Wait()

	require.True(t, d.Ready())
	assert.Equal(t, 9042, d.Status().Port)
}
