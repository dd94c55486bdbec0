// Package logging provides config-driven categorized logging for cardcat.
// Every category is a named child of one zap core; output goes to the
// configured file or to stderr.
// Logging is controlled by debug_mode - when false, Get returns no-op loggers.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot    Category = "boot"    // Startup, config
	CategoryLoad    Category = "load"    // Dataset fetch, cache fallback
	CategoryStore   Category = "store"   // SQLite key-value store
	CategorySearch  Category = "search"  // Query parsing and filtering
	CategorySave    Category = "save"    // Save workflow, duplicates
	CategoryLists   Category = "lists"   // Suggestion lists
	CategoryRemote  Category = "remote"  // Read/write endpoints
	CategoryServer  Category = "server"  // HTTP API
	CategoryWatch   Category = "watch"   // Local TSV file watcher
	CategoryOffline Category = "offline" // Asset proxy
	CategoryUI      Category = "ui"      // Terminal table
)

// Settings mirrors config.LoggingConfig to avoid an import cycle.
type Settings struct {
	DebugMode  bool
	Level      string
	JSONFormat bool
	File       string
	Categories map[string]bool
}

// Logger is a category logger. The zero value discards everything.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu       sync.RWMutex
	settings Settings
	base     *zap.Logger
	level    = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	loggers  = make(map[Category]*Logger)
	closers  []func() error
)

// Initialize builds the shared zap core. Calling it again replaces the core
// and drops cached category loggers.
func Initialize(s Settings) error {
	if err := initialize(s); err != nil {
		return err
	}
	if s.DebugMode {
		Get(CategoryBoot).Info("logging initialized (level=%s, json=%v, file=%q)", level.Level(), s.JSONFormat, s.File)
	}
	return nil
}

func initialize(s Settings) error {
	mu.Lock()
	defer mu.Unlock()

	closeLocked()
	settings = s
	loggers = make(map[Category]*Logger)
	base = nil

	if !s.DebugMode {
		return nil
	}
	level.SetLevel(parseLevel(s.Level))

	sink := zapcore.AddSync(os.Stderr)
	if s.File != "" {
		if err := os.MkdirAll(filepath.Dir(s.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(s.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		sink = zapcore.AddSync(f)
		closers = append(closers, f.Close)
	}

	base = zap.New(zapcore.NewCore(encoder(s.JSONFormat), sink, level))
	return nil
}

// NewForTest routes every category to l. Use with zaptest/observer cores.
func NewForTest(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	settings = Settings{DebugMode: true}
	loggers = make(map[Category]*Logger)
	base = l
	level.SetLevel(zapcore.DebugLevel)
}

func encoder(json bool) zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.NameKey = "cat"
	if json {
		return zapcore.NewJSONEncoder(cfg)
	}
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewConsoleEncoder(cfg)
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// IsDebugMode returns whether logging is enabled at all
func IsDebugMode() bool {
	mu.RLock()
	defer mu.RUnlock()
	return settings.DebugMode
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	return categoryEnabledLocked(category)
}

func categoryEnabledLocked(category Category) bool {
	if !settings.DebugMode || base == nil {
		return false
	}
	if settings.Categories == nil {
		return true
	}
	enabled, exists := settings.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if debug mode is disabled or category is disabled.
func Get(category Category) *Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	enabled := categoryEnabledLocked(category)
	mu.RUnlock()

	if !enabled {
		return &Logger{category: category}
	}

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	if base == nil {
		return &Logger{category: category}
	}
	l := &Logger{category: category, sugar: base.Named(string(category)).Sugar()}
	loggers[category] = l
	return l
}

// Zap returns the underlying zap logger, or a no-op logger.
func (l *Logger) Zap() *zap.Logger {
	if l.sugar == nil {
		return zap.NewNop()
	}
	return l.sugar.Desugar()
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.sugar != nil {
		l.sugar.Debugf(format, args...)
	}
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	if l.sugar != nil {
		l.sugar.Infof(format, args...)
	}
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.sugar != nil {
		l.sugar.Warnf(format, args...)
	}
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	if l.sugar != nil {
		l.sugar.Errorf(format, args...)
	}
}

// With returns a logger carrying structured key-value context.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	if l.sugar == nil {
		return l
	}
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// Sync flushes buffered entries.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if base != nil {
		_ = base.Sync()
	}
}

// CloseAll flushes and closes log files (call at shutdown)
func CloseAll() {
	mu.Lock()
	defer mu.Unlock()
	closeLocked()
	loggers = make(map[Category]*Logger)
	base = nil
}

func closeLocked() {
	if base != nil {
		_ = base.Sync()
	}
	for _, c := range closers {
		_ = c()
	}
	closers = nil
}

// =============================================================================
// CONVENIENCE FUNCTIONS - no-ops if the category is disabled
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) { Get(CategoryBoot).Info(format, args...) }

// Load logs to the load category
func Load(format string, args ...interface{}) { Get(CategoryLoad).Info(format, args...) }

// LoadDebug logs debug to the load category
func LoadDebug(format string, args ...interface{}) { Get(CategoryLoad).Debug(format, args...) }

// LoadWarn logs a warning to the load category
func LoadWarn(format string, args ...interface{}) { Get(CategoryLoad).Warn(format, args...) }

// StoreDebug logs debug to the store category
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }

// StoreError logs an error to the store category
func StoreError(format string, args ...interface{}) { Get(CategoryStore).Error(format, args...) }

// SearchDebug logs debug to the search category
func SearchDebug(format string, args ...interface{}) { Get(CategorySearch).Debug(format, args...) }

// Save logs to the save category
func Save(format string, args ...interface{}) { Get(CategorySave).Info(format, args...) }

// SaveWarn logs a warning to the save category
func SaveWarn(format string, args ...interface{}) { Get(CategorySave).Warn(format, args...) }

// ListsDebug logs debug to the lists category
func ListsDebug(format string, args ...interface{}) { Get(CategoryLists).Debug(format, args...) }

// RemoteDebug logs debug to the remote category
func RemoteDebug(format string, args ...interface{}) { Get(CategoryRemote).Debug(format, args...) }

// RemoteWarn logs a warning to the remote category
func RemoteWarn(format string, args ...interface{}) { Get(CategoryRemote).Warn(format, args...) }

// Server logs to the server category
func Server(format string, args ...interface{}) { Get(CategoryServer).Info(format, args...) }

// Watch logs to the watch category
func Watch(format string, args ...interface{}) { Get(CategoryWatch).Info(format, args...) }

// =============================================================================
// TIMING HELPERS
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
