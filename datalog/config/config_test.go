package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 100*time.Millisecond, cfg.GetDebounce())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "janus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
evaluation:
  workers: 4
  store: badger
logging:
  level: debug
watch:
  debounce: 250ms
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Evaluation.Workers)
	assert.Equal(t, "badger", cfg.Evaluation.Store)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, 1000, cfg.Planner.CacheSize)
	assert.Equal(t, 250*time.Millisecond, cfg.GetDebounce())
	assert.NoError(t, cfg.Validate())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("JANUS_LIVE_WORKERS", "2")
	t.Setenv("JANUS_LIVE_STORE", "badger")
	t.Setenv("JANUS_LIVE_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Evaluation.Workers)
	assert.Equal(t, "badger", cfg.Evaluation.Store)
	assert.Equal(t, "warn", cfg.Logging.Level)

	t.Setenv("JANUS_LIVE_WORKERS", "many")
	_, err = Load("")
	assert.Error(t, err)
}

func TestMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("evaluation: [1, 2"), 0644))
	_, err := Load(path)
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"negative workers", func(c *Config) { c.Evaluation.Workers = -1 }, "invalid worker count"},
		{"negative rounds", func(c *Config) { c.Evaluation.MaxRounds = -5 }, "invalid max rounds"},
		{"unknown store", func(c *Config) { c.Evaluation.Store = "postgres" }, "invalid store"},
		{"unknown level", func(c *Config) { c.Logging.Level = "chatty" }, "invalid log level"},
		{"unknown format", func(c *Config) { c.Logging.Format = "xml" }, "invalid log format"},
		{"bad debounce", func(c *Config) { c.Watch.Debounce = "soon" }, "invalid watch debounce"},
		{"metrics without address", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Address = ""
		}, "metrics enabled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "janus.yaml")
	cfg := DefaultConfig()
	cfg.Metrics.Enabled = true
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Errorf("config changed across save/load (-saved +loaded):\n%s", diff)
	}
}
