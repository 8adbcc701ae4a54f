package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Scheduler.AbortThreshold)
	assert.Equal(t, 100, cfg.Scheduler.RunawayThreshold)
	assert.Equal(t, 100*time.Millisecond, cfg.GetBeatInterval())
	assert.NoError(t, cfg.Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "acolyte.yaml")
	data := []byte(`
scheduler:
  abort_threshold: 5
  beat_interval: 250ms
definitions:
  paths: [goals, ops]
  watch: true
logging:
  level: debug
  debug_mode: true
  categories:
    coordinator: false
`)
	require.NoError(t, os.WriteFile(path, data, 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Scheduler.AbortThreshold)
	assert.Equal(t, 100, cfg.Scheduler.RunawayThreshold, "unset fields keep defaults")
	assert.Equal(t, 250*time.Millisecond, cfg.GetBeatInterval())
	assert.Equal(t, []string{"goals", "ops"}, cfg.Definitions.Paths)
	assert.True(t, cfg.Definitions.Watch)
	assert.False(t, cfg.Logging.IsCategoryEnabled("coordinator"))
	assert.True(t, cfg.Logging.IsCategoryEnabled("scheduler"))
}

func TestLoadRejectsBrokenYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scheduler: [oops"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ACOLYTE_DEFINITIONS", "a"+string(os.PathListSeparator)+"b")
	t.Setenv("ACOLYTE_WORLD", "sim.yaml")
	t.Setenv("ACOLYTE_DB", "/tmp/j.db")
	t.Setenv("ACOLYTE_LOG_LEVEL", "warn")
	t.Setenv("ACOLYTE_BEAT_INTERVAL", "1s")
	t.Setenv("ACOLYTE_DEBUG", "true")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	assert.Equal(t, []string{"a", "b"}, cfg.Definitions.Paths)
	assert.Equal(t, "sim.yaml", cfg.World.Path)
	assert.Equal(t, "/tmp/j.db", cfg.Journal.DatabasePath)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, time.Second, cfg.GetBeatInterval())
	assert.True(t, cfg.Logging.DebugMode)
}

func TestDurationFallbacks(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, 10*time.Second, cfg.GetItemTimeout())
	assert.Equal(t, 5*time.Second, cfg.GetDrainTimeout())
	assert.Equal(t, 500*time.Millisecond, cfg.GetDebounce())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"abort threshold", func(c *Config) { c.Scheduler.AbortThreshold = 0 }},
		{"runaway threshold", func(c *Config) { c.Scheduler.RunawayThreshold = 0 }},
		{"stall beats", func(c *Config) { c.Reaction.StallBeats = 0 }},
		{"no definitions", func(c *Config) { c.Definitions.Paths = nil }},
		{"journal path", func(c *Config) { c.Journal.DatabasePath = "" }},
		{"bad duration", func(c *Config) { c.Coordinator.ItemTimeout = "soon" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "acolyte.yaml")
	cfg := DefaultConfig()
	cfg.Scheduler.AbortThreshold = 7
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Scheduler.AbortThreshold)
}
