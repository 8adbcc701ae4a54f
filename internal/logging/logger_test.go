package logging

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T, cfg Config) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	Use(zap.New(core), cfg)
	t.Cleanup(Reset)
	return logs
}

func TestDebugModeEmitsAllLevels(t *testing.T) {
	logs := observe(t, Config{DebugMode: true, Level: "debug"})

	SchedulerDebug("beat %d", 7)
	Scheduler("selected %s", "work")
	SchedulerWarn("abort %d/%d", 1, 3)

	require.Equal(t, 3, logs.Len())
	entries := logs.All()
	assert.Equal(t, "beat 7", entries[0].Message)
	assert.Equal(t, "scheduler", entries[0].LoggerName)
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
}

func TestProductionModeOnlyWarnings(t *testing.T) {
	logs := observe(t, Config{DebugMode: false, Level: "debug"})

	ReactionDebug("dropped")
	Reaction("dropped too")
	ReactionWarn("kept")
	Get(CategoryReaction).Error("kept as well")

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "kept", logs.All()[0].Message)
}

func TestCategoryToggle(t *testing.T) {
	logs := observe(t, Config{
		DebugMode:  true,
		Level:      "info",
		Categories: map[string]bool{"coordinator": false},
	})

	Coordinator("silenced")
	CoordinatorWarn("silenced")
	Agent("visible")

	require.Equal(t, 1, logs.Len())
	assert.False(t, IsCategoryEnabled(CategoryCoordinator))
	assert.True(t, IsCategoryEnabled(CategoryAgent))
}

func TestWithAddsFields(t *testing.T) {
	logs := observe(t, Config{DebugMode: true, Level: "info"})

	Get(CategoryScheduler).With(zap.String("impulse", "explore")).Info("started")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "explore", logs.All()[0].ContextMap()["impulse"])
}

func TestNoopBeforeInitialize(t *testing.T) {
	Reset()
	// Must not panic.
	Get(CategoryWorld).Error("nothing")
	World("nothing")
}

func TestInitializeWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "acolyte.log")
	require.NoError(t, Initialize(Config{DebugMode: true, Level: "debug", Format: "json", File: path}))
	t.Cleanup(Reset)

	Boot("hello %s", "file")
	require.NoError(t, Sync())
	assert.FileExists(t, path)
}

func TestInitializeRejectsBadLevel(t *testing.T) {
	err := Initialize(Config{Level: "loud"})
	assert.Error(t, err)
}
