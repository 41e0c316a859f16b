/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/budzeciak/rpc-proxy/config"
)

func TestConfig(t *testing.T) {
	tests := []struct {
		name        string
		cfgData     string
		expectedCfg func() *Config
	}{
		{
			name:        "defaults",
			cfgData:     "",
			expectedCfg: NewDefaultConfig,
		},
		{
			name: "yaml config",
			cfgData: `
server:
  address: "127.0.0.1:8080"
  timeouts:
    write: 1h
    read: 7m
    readHeader: 1m
    idle: 20m
    shutdown: 30s
  limits:
    maxBodySize: 64K
  log:
    requestStart: true
    excludedEndpoints: ["/healthz"]
    slowRequestThreshold: 2s
`,
			expectedCfg: func() *Config {
				cfg := NewDefaultConfig()
				cfg.Address = "127.0.0.1:8080"
				cfg.Timeouts = TimeoutsConfig{
					Write:      config.TimeDuration(time.Hour),
					Read:       config.TimeDuration(7 * time.Minute),
					ReadHeader: config.TimeDuration(time.Minute),
					Idle:       config.TimeDuration(20 * time.Minute),
					Shutdown:   config.TimeDuration(30 * time.Second),
				}
				cfg.Limits.MaxBodySizeBytes = 64 * 1024
				cfg.Log = LogConfig{
					RequestStart:         true,
					ExcludedEndpoints:    []string{"/healthz"},
					SlowRequestThreshold: config.TimeDuration(2 * time.Second),
				}
				return cfg
			},
		},
		{
			name: "body limit may be disabled",
			cfgData: `
server:
  limits:
    maxBodySize: 0
`,
			expectedCfg: func() *Config {
				cfg := NewDefaultConfig()
				cfg.Limits.MaxBodySizeBytes = 0
				return cfg
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			err := config.NewDefaultLoader("").LoadFromReader(strings.NewReader(tt.cfgData), config.DataTypeYAML, cfg)
			require.NoError(t, err)
			require.Equal(t, tt.expectedCfg(), cfg)
		})
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("SERVER_ADDRESS", ":9090")
	t.Setenv("SERVER_LIMITS_MAXBODYSIZE", "2M")

	cfg := NewConfig()
	require.NoError(t, config.NewDefaultLoader("").Load(cfg))
	require.Equal(t, ":9090", cfg.Address)
	require.Equal(t, uint64(2*1024*1024), cfg.Limits.MaxBodySizeBytes)
}

func TestConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		cfgData string
		errKey  string
	}{
		{name: "empty address", cfgData: "server:\n  address: \"\"\n", errKey: "server.address"},
		{name: "negative timeout", cfgData: "server:\n  timeouts:\n    write: -1s\n", errKey: "server.timeouts.write"},
		{name: "invalid body size", cfgData: "server:\n  limits:\n    maxBodySize: lots\n", errKey: "server.limits.maxBodySize"},
		{name: "invalid duration", cfgData: "server:\n  log:\n    slowRequestThreshold: soon\n", errKey: "server.log.slowRequestThreshold"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := config.NewDefaultLoader("").LoadFromReader(strings.NewReader(tt.cfgData), config.DataTypeYAML, NewConfig())
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.errKey)
		})
	}
}
