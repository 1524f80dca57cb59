package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const minimalYAML = `
security:
  jwt_secret: test-secret
`

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfigFile(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "behavioral-stream", cfg.Broker.Channel)
	assert.Equal(t, int64(4096), cfg.Ingest.MaxFrameBytes)
	assert.Equal(t, 60*time.Second, cfg.Ingest.ReadDeadline)
	assert.Equal(t, 10, cfg.Risk.WindowSize)
	assert.Equal(t, 50, cfg.Risk.MinEvents)
	assert.Equal(t, 10, cfg.Risk.MinVectors)
	assert.Equal(t, 100, cfg.Risk.TreeCount)
	assert.Equal(t, 256, cfg.Risk.SampleSize)
	assert.InDelta(t, 0.1, cfg.Risk.Contamination, 1e-9)
	assert.Equal(t, int64(42), cfg.Risk.RandomSeed)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
security:
  jwt_secret: test-secret
server:
  port: 9999
broker:
  channel: custom-stream
risk:
  window_size: 20
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "custom-stream", cfg.Broker.Channel)
	assert.Equal(t, 20, cfg.Risk.WindowSize)
	// Untouched values keep their defaults.
	assert.Equal(t, 50, cfg.Risk.MinEvents)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("BG_SERVER__PORT", "7777")
	t.Setenv("BG_SECURITY__JWT_SECRET", "env-secret")

	path := writeConfigFile(t, `
security:
  jwt_secret: file-secret
server:
  port: 9999
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, "env-secret", cfg.Security.JWTSecret)
}

func TestLoad_MissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	valid := func(t *testing.T) *Config {
		cfg, err := Load(writeConfigFile(t, minimalYAML))
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{
			name:    "missing jwt secret",
			mutate:  func(c *Config) { c.Security.JWTSecret = "" },
			wantErr: "jwt_secret",
		},
		{
			name:    "missing broker channel",
			mutate:  func(c *Config) { c.Broker.Channel = "" },
			wantErr: "broker.channel",
		},
		{
			name:    "window size below one",
			mutate:  func(c *Config) { c.Risk.WindowSize = 0 },
			wantErr: "window_size",
		},
		{
			name:    "contamination too high",
			mutate:  func(c *Config) { c.Risk.Contamination = 0.5 },
			wantErr: "contamination",
		},
		{
			name:    "contamination zero",
			mutate:  func(c *Config) { c.Risk.Contamination = 0 },
			wantErr: "contamination",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
