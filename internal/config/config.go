package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all acolyte configuration.
type Config struct {
	Name string `yaml:"name"`

	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Reaction    ReactionConfig    `yaml:"reaction"`
	Definitions DefinitionsConfig `yaml:"definitions"`
	World       WorldConfig       `yaml:"world"`
	Journal     JournalConfig     `yaml:"journal"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// SchedulerConfig configures the imperative scheduler.
type SchedulerConfig struct {
	AbortThreshold   int    `yaml:"abort_threshold"`   // consecutive aborts that stop the scheduler
	RunawayThreshold int    `yaml:"runaway_threshold"` // consecutive busy beats that stop the scheduler
	BeatInterval     string `yaml:"beat_interval"`
	TidyWhenIdle     bool   `yaml:"tidy_when_idle"`
}

// CoordinatorConfig configures the action coordinator.
type CoordinatorConfig struct {
	ItemTimeout  string `yaml:"item_timeout"`
	DrainTimeout string `yaml:"drain_timeout"`
}

// ReactionConfig configures operation reactions.
type ReactionConfig struct {
	StallBeats int `yaml:"stall_beats"` // beats without progress before an operation aborts
}

// DefinitionsConfig locates the declarative goal/operation files.
type DefinitionsConfig struct {
	Paths    []string `yaml:"paths"`
	Watch    bool     `yaml:"watch"`
	Debounce string   `yaml:"debounce"`
}

// WorldConfig locates the simulated world description.
type WorldConfig struct {
	Path string `yaml:"path"`
}

// JournalConfig configures the lifecycle journal.
type JournalConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level"`  // debug, info, warn, error
	Format     string          `yaml:"format"` // json, console
	File       string          `yaml:"file"`
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
}

// IsCategoryEnabled returns whether logging is enabled for a category.
func (c *LoggingConfig) IsCategoryEnabled(category string) bool {
	if !c.DebugMode || c.Categories == nil {
		return true
	}
	enabled, exists := c.Categories[category]
	if !exists {
		return true
	}
	return enabled
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name: "acolyte",
		Scheduler: SchedulerConfig{
			AbortThreshold:   3,
			RunawayThreshold: 100,
			BeatInterval:     "100ms",
			TidyWhenIdle:     true,
		},
		Coordinator: CoordinatorConfig{
			ItemTimeout:  "10s",
			DrainTimeout: "5s",
		},
		Reaction: ReactionConfig{
			StallBeats: 300,
		},
		Definitions: DefinitionsConfig{
			Paths:    []string{"definitions"},
			Watch:    false,
			Debounce: "500ms",
		},
		World: WorldConfig{
			Path: "world.yaml",
		},
		Journal: JournalConfig{
			Enabled:      true,
			DatabasePath: ".acolyte/journal.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if p := os.Getenv("ACOLYTE_DEFINITIONS"); p != "" {
		c.Definitions.Paths = filepath.SplitList(p)
	}
	if p := os.Getenv("ACOLYTE_WORLD"); p != "" {
		c.World.Path = p
	}
	if p := os.Getenv("ACOLYTE_DB"); p != "" {
		c.Journal.DatabasePath = p
	}
	if lvl := os.Getenv("ACOLYTE_LOG_LEVEL"); lvl != "" {
		c.Logging.Level = lvl
	}
	if d := os.Getenv("ACOLYTE_BEAT_INTERVAL"); d != "" {
		c.Scheduler.BeatInterval = d
	}
	if v := os.Getenv("ACOLYTE_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Logging.DebugMode = b
		}
	}
}

// GetBeatInterval returns the beat interval as a duration.
func (c *Config) GetBeatInterval() time.Duration {
	return parseDuration(c.Scheduler.BeatInterval, 100*time.Millisecond)
}

// GetItemTimeout returns the per-item coordinator timeout.
func (c *Config) GetItemTimeout() time.Duration {
	return parseDuration(c.Coordinator.ItemTimeout, 10*time.Second)
}

// GetDrainTimeout returns how long Stop waits for the in-flight coordinator item.
func (c *Config) GetDrainTimeout() time.Duration {
	return parseDuration(c.Coordinator.DrainTimeout, 5*time.Second)
}

// GetDebounce returns the definitions watcher debounce window.
func (c *Config) GetDebounce() time.Duration {
	return parseDuration(c.Definitions.Debounce, 500*time.Millisecond)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Scheduler.AbortThreshold < 1 {
		return fmt.Errorf("scheduler.abort_threshold must be >= 1")
	}
	if c.Scheduler.RunawayThreshold < 1 {
		return fmt.Errorf("scheduler.runaway_threshold must be >= 1")
	}
	if c.Reaction.StallBeats < 1 {
		return fmt.Errorf("reaction.stall_beats must be >= 1")
	}
	if len(c.Definitions.Paths) == 0 {
		return fmt.Errorf("definitions.paths must name at least one file or directory")
	}
	if c.Journal.Enabled && c.Journal.DatabasePath == "" {
		return fmt.Errorf("journal.database_path is required when the journal is enabled")
	}
	for _, s := range []string{c.Scheduler.BeatInterval, c.Coordinator.ItemTimeout, c.Coordinator.DrainTimeout, c.Definitions.Debounce} {
		if s == "" {
			continue
		}
		if _, err := time.ParseDuration(s); err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
	}
	return nil
}
