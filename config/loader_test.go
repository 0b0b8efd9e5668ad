package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_Defaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "least_loaded", cfg.Scheduler.Strategy)
	// Stale execution reports must not leak agent slots out of the box.
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.TaskTimeout)
	assert.Equal(t, 30*time.Second, cfg.Registry.LivenessWindow)
	assert.Equal(t, 3, cfg.Comms.MaxAttempts)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "agentcore", cfg.Metrics.Namespace)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoader_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  http_port: 9000
scheduler:
  strategy: priority_based
  default_max_retries: 5
registry:
  liveness_window: 45s
redis:
  enabled: true
  addr: redis.internal:6379
log:
  level: debug
  format: console
`), 0o600))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.HTTPPort)
	assert.Equal(t, "priority_based", cfg.Scheduler.Strategy)
	assert.Equal(t, 5, cfg.Scheduler.DefaultMaxRetries)
	assert.Equal(t, 45*time.Second, cfg.Registry.LivenessWindow)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Untouched sections keep their defaults.
	assert.Equal(t, 100*time.Millisecond, cfg.Scheduler.Tick)
	assert.Equal(t, 256, cfg.Events.BufferSize)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  http_port: 9000\n"), 0o600))

	t.Setenv("AGENTCORE_SERVER_HTTP_PORT", "7070")
	t.Setenv("AGENTCORE_SCHEDULER_TICK", "250ms")
	t.Setenv("AGENTCORE_COMMS_DELIVERY_RATE", "50.5")
	t.Setenv("AGENTCORE_REDIS_ENABLED", "true")
	t.Setenv("AGENTCORE_LOG_OUTPUT_PATHS", "stdout, /var/log/agentcore.log")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.HTTPPort)
	assert.Equal(t, 250*time.Millisecond, cfg.Scheduler.Tick)
	assert.Equal(t, 50.5, cfg.Comms.DeliveryRate)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, []string{"stdout", "/var/log/agentcore.log"}, cfg.Log.OutputPaths)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/does/not/exist.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o600))

	_, err := NewLoader().WithConfigPath(path).Load()
	require.Error(t, err)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("ORCH_SERVER_HTTP_PORT", "6060")

	cfg, err := NewLoader().WithEnvPrefix("ORCH").Load()
	require.NoError(t, err)
	assert.Equal(t, 6060, cfg.Server.HTTPPort)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.HTTPPort = -1 },
			wantErr: true,
		},
		{
			name:    "unknown strategy",
			mutate:  func(c *Config) { c.Scheduler.Strategy = "coin_flip" },
			wantErr: true,
		},
		{
			name:    "negative retries",
			mutate:  func(c *Config) { c.Scheduler.DefaultMaxRetries = -2 },
			wantErr: true,
		},
		{
			name:    "zero liveness window",
			mutate:  func(c *Config) { c.Registry.LivenessWindow = 0 },
			wantErr: true,
		},
		{
			name: "redis enabled without addr",
			mutate: func(c *Config) {
				c.Redis.Enabled = true
				c.Redis.Addr = ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoader_ValidatorHook(t *testing.T) {
	_, err := NewLoader().
		WithValidator(func(c *Config) error {
			if c.Server.HTTPPort == 8080 {
				return assert.AnError
			}
			return nil
		}).
		Load()
	require.Error(t, err)
}
