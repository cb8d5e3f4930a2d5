package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/cuemby/embedded-cassandra/pkg/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettings_Addresses(t *testing.T) {
	s := Settings{Address: "127.0.0.1", Port: 9042, RPCPort: 9160}
	assert.Equal(t, "127.0.0.1:9042", s.NativeAddress())
	assert.Equal(t, "", s.NativeSSLAddress())
	assert.Equal(t, "127.0.0.1:9160", s.RPCAddress())

	v6 := Settings{Address: "::1", Port: 9042}
	assert.Equal(t, "[::1]:9042", v6.NativeAddress())
}

func TestInstance_JSON(t *testing.T) {
	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	inst := &Instance{
		Name: "cassandra-1a2b3c4d",
		Pid:  4242,
		Settings: Settings{
			Name:    "cassandra-1a2b3c4d",
			Version: version.MustParse("4.1.3"),
			Address: "127.0.0.1",
			Port:    41234,
		},
		StartedAt: started,
	}

	data, err := json.Marshal(inst)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"version":"4.1.3"`)

	var decoded Instance
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, inst.Name, decoded.Name)
	assert.True(t, inst.Settings.Version.Equal(decoded.Settings.Version))
	assert.Equal(t, 41234, decoded.Settings.Port)
	assert.Equal(t, time.Hour, decoded.Uptime(started.Add(time.Hour)))
}
