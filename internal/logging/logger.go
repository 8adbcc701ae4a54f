// Package logging provides config-driven categorized logging for acolyte.
// Every subsystem logs through its own category so operators can silence noisy
// parts of the engine (the coordinator drain loop, per-beat scheduler traces)
// without losing warnings from the rest.
//
// The package is a no-op until Initialize or Use is called.
package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot        Category = "boot"        // Startup, config, wiring
	CategoryScheduler   Category = "scheduler"   // Imperative arbitration, circuit breaker
	CategoryReaction    Category = "reaction"    // Reaction lifecycle
	CategoryCoordinator Category = "coordinator" // Single-flight action queue
	CategoryResource    Category = "resource"    // Resource constraint claims
	CategoryDefinitions Category = "definitions" // Declarative loader, watcher
	CategoryJournal     Category = "journal"     // SQLite lifecycle journal
	CategoryWorld       Category = "world"       // Snapshot reads, simulator
	CategoryAgent       Category = "agent"       // Beat loop, motivation sequencing
)

// Categories lists every known category in display order.
var Categories = []Category{
	CategoryBoot,
	CategoryScheduler,
	CategoryReaction,
	CategoryCoordinator,
	CategoryResource,
	CategoryDefinitions,
	CategoryJournal,
	CategoryWorld,
	CategoryAgent,
}

// Config mirrors config.LoggingConfig to avoid an import cycle.
type Config struct {
	DebugMode  bool            // false = warnings and errors only
	Level      string          // debug, info, warn, error
	Format     string          // json, console
	File       string          // empty = stderr
	Categories map[string]bool // per-category toggles, only honoured in debug mode
}

// Logger is a category-scoped printf-style logger. The zero value is a no-op.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
	min      zapcore.Level
}

var (
	mu      sync.RWMutex
	base    = zap.NewNop()
	config  Config
	minimum = zapcore.WarnLevel
	loggers = make(map[Category]*Logger)
)

// Initialize builds a zap logger from cfg and installs it.
func Initialize(cfg Config) error {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return err
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	zc.Sampling = nil
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	switch strings.ToLower(cfg.Format) {
	case "", "console", "text":
		zc.Encoding = "console"
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	case "json":
		zc.Encoding = "json"
	default:
		return fmt.Errorf("unknown log format %q", cfg.Format)
	}
	if cfg.File != "" {
		zc.OutputPaths = []string{cfg.File}
	} else {
		zc.OutputPaths = []string{"stderr"}
	}

	l, err := zc.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	install(l, cfg, level)

	Get(CategoryBoot).Debug("logging initialized (level=%s, format=%s, debug_mode=%v)", level, zc.Encoding, cfg.DebugMode)
	return nil
}

// Use installs an already-built zap logger. Tests pass an observer-backed logger.
func Use(l *zap.Logger, cfg Config) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	install(l, cfg, level)
}

// Reset restores the no-op logger.
func Reset() {
	install(zap.NewNop(), Config{}, zapcore.WarnLevel)
}

func install(l *zap.Logger, cfg Config, level zapcore.Level) {
	if !cfg.DebugMode && level < zapcore.WarnLevel {
		level = zapcore.WarnLevel
	}

	mu.Lock()
	defer mu.Unlock()
	old := base
	base = l
	config = cfg
	minimum = level
	loggers = make(map[Category]*Logger)
	if old != nil && old != l {
		_ = old.Sync()
	}
}

func parseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// Sync flushes buffered entries.
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	err := base.Sync()
	if err != nil && isStdStreamSyncError(err) {
		return nil
	}
	return err
}

// stderr/stdout cannot be fsynced on most platforms.
func isStdStreamSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, os.Stderr.Name()) || strings.Contains(msg, "invalid argument") || strings.Contains(msg, "inappropriate ioctl")
}

// IsDebugMode returns whether debug logging is enabled
func IsDebugMode() bool {
	mu.RLock()
	defer mu.RUnlock()
	return config.DebugMode
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	return categoryEnabledLocked(category)
}

func categoryEnabledLocked(category Category) bool {
	if !config.DebugMode || config.Categories == nil {
		return true
	}
	enabled, exists := config.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if the category is disabled.
func Get(category Category) *Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	l := &Logger{category: category, min: minimum}
	if categoryEnabledLocked(category) {
		l.sugar = base.Named(string(category)).Sugar()
	}
	loggers[category] = l
	return l
}

// With returns a child logger carrying structured fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	if l.sugar == nil {
		return l
	}
	return &Logger{
		category: l.category,
		sugar:    l.sugar.Desugar().With(fields...).Sugar(),
		min:      l.min,
	}
}

// Category returns the logger's category.
func (l *Logger) Category() Category {
	return l.category
}

func (l *Logger) enabled(level zapcore.Level) bool {
	return l.sugar != nil && level >= l.min
}

// Debug logs a debug message (only if level <= debug)
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.enabled(zapcore.DebugLevel) {
		l.sugar.Debugf(format, args...)
	}
}

// Info logs an informational message (only if level <= info)
func (l *Logger) Info(format string, args ...interface{}) {
	if l.enabled(zapcore.InfoLevel) {
		l.sugar.Infof(format, args...)
	}
}

// Warn logs a warning message (only if level <= warn)
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.enabled(zapcore.WarnLevel) {
		l.sugar.Warnf(format, args...)
	}
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	if l.enabled(zapcore.ErrorLevel) {
		l.sugar.Errorf(format, args...)
	}
}

// =============================================================================
// Category helpers
// =============================================================================

func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

func BootDebug(format string, args ...interface{}) {
	Get(CategoryBoot).Debug(format, args...)
}

func Scheduler(format string, args ...interface{}) {
	Get(CategoryScheduler).Info(format, args...)
}

func SchedulerDebug(format string, args ...interface{}) {
	Get(CategoryScheduler).Debug(format, args...)
}

func SchedulerWarn(format string, args ...interface{}) {
	Get(CategoryScheduler).Warn(format, args...)
}

func SchedulerError(format string, args ...interface{}) {
	Get(CategoryScheduler).Error(format, args...)
}

func Reaction(format string, args ...interface{}) {
	Get(CategoryReaction).Info(format, args...)
}

func ReactionDebug(format string, args ...interface{}) {
	Get(CategoryReaction).Debug(format, args...)
}

func ReactionWarn(format string, args ...interface{}) {
	Get(CategoryReaction).Warn(format, args...)
}

func Coordinator(format string, args ...interface{}) {
	Get(CategoryCoordinator).Info(format, args...)
}

func CoordinatorDebug(format string, args ...interface{}) {
	Get(CategoryCoordinator).Debug(format, args...)
}

func CoordinatorWarn(format string, args ...interface{}) {
	Get(CategoryCoordinator).Warn(format, args...)
}

func ResourceDebug(format string, args ...interface{}) {
	Get(CategoryResource).Debug(format, args...)
}

func ResourceWarn(format string, args ...interface{}) {
	Get(CategoryResource).Warn(format, args...)
}

func Definitions(format string, args ...interface{}) {
	Get(CategoryDefinitions).Info(format, args...)
}

func DefinitionsDebug(format string, args ...interface{}) {
	Get(CategoryDefinitions).Debug(format, args...)
}

func DefinitionsWarn(format string, args ...interface{}) {
	Get(CategoryDefinitions).Warn(format, args...)
}

func Journal(format string, args ...interface{}) {
	Get(CategoryJournal).Info(format, args...)
}

func JournalWarn(format string, args ...interface{}) {
	Get(CategoryJournal).Warn(format, args...)
}

func World(format string, args ...interface{}) {
	Get(CategoryWorld).Info(format, args...)
}

func WorldDebug(format string, args ...interface{}) {
	Get(CategoryWorld).Debug(format, args...)
}

func Agent(format string, args ...interface{}) {
	Get(CategoryAgent).Info(format, args...)
}

func AgentDebug(format string, args ...interface{}) {
	Get(CategoryAgent).Debug(format, args...)
}

func AgentWarn(format string, args ...interface{}) {
	Get(CategoryAgent).Warn(format, args...)
}
