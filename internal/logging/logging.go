// Package logging provides the engine's structured logging, built on
// log/slog with JSON output and lumberjack-backed file rotation.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	structuredLogger *slog.Logger
	loggerMu         sync.RWMutex
)

var currentLogLevel = new(slog.LevelVar)
var initOnce sync.Once

const (
	LevelTrace = slog.Level(-8)
	LevelFatal = slog.Level(12)
)

var levelNames = map[slog.Leveler]string{
	LevelTrace: "TRACE",
	LevelFatal: "FATAL",
}

func defaultReplaceAttr(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
		a.Value = slog.StringValue(a.Value.Time().Format("2006-01-02T15:04:05Z07:00"))
	}
	if a.Key == slog.LevelKey {
		if level, ok := a.Value.Any().(slog.Level); ok {
			label, exists := levelNames[level]
			if !exists {
				label = level.String()
			}
			a.Value = slog.StringValue(label)
		}
	}
	if a.Value.Kind() == slog.KindFloat64 {
		truncated := math.Trunc(a.Value.Float64()*100) / 100.0
		a.Value = slog.Float64Value(truncated)
	}
	return a
}

// Init sets up the global JSON logger writing to os.Stderr. Call once at
// process start; safe to call multiple times (no-op after the first).
func Init() {
	initOnce.Do(func() {
		currentLogLevel.Set(slog.LevelInfo)
		handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level:       currentLogLevel,
			ReplaceAttr: defaultReplaceAttr,
		})
		loggerMu.Lock()
		structuredLogger = slog.New(handler)
		loggerMu.Unlock()
		slog.SetDefault(structuredLogger)
	})
}

// SetLevel changes the level threshold for all loggers obtained through
// this package.
func SetLevel(level slog.Level) {
	currentLogLevel.Set(level)
}

// ForService returns a logger tagged with a "service" field. Returns the
// slog default logger if Init hasn't run yet, so packages can log safely
// during early startup or in tests.
func ForService(serviceName string) *slog.Logger {
	loggerMu.RLock()
	logger := structuredLogger
	loggerMu.RUnlock()
	if logger == nil {
		return slog.Default().With("service", serviceName)
	}
	return logger.With("service", serviceName)
}

// Fatal logs at the custom Fatal level and exits the process.
func Fatal(msg string, args ...any) {
	slog.Log(context.TODO(), LevelFatal, msg, args...)
	os.Exit(1)
}

// Trace logs at the custom Trace level.
func Trace(msg string, args ...any) {
	slog.Log(context.TODO(), LevelTrace, msg, args...)
}

// RotationPolicy configures lumberjack rotation for NewFileLogger. Unlike
// the teacher, which reads rotation settings from a global config
// singleton, this engine has no such singleton -- callers (the cmd/
// demo host) pass the policy explicitly.
type RotationPolicy struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// DefaultRotationPolicy matches the teacher's size-based default.
func DefaultRotationPolicy() RotationPolicy {
	return RotationPolicy{MaxSizeMB: 100, MaxBackups: 3, MaxAgeDays: 28}
}

// NewFileLogger creates a JSON slog.Logger writing to filePath through a
// lumberjack rotating writer, tagged with a "service" attribute. It
// returns a close function that flushes lumberjack's internal state.
func NewFileLogger(filePath, serviceName string, policy RotationPolicy, levelVar *slog.LevelVar) (*slog.Logger, func() error, error) {
	dir := filepath.Dir(filePath)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec
			return nil, nil, fmt.Errorf("create log directory %s: %w", dir, err)
		}
	}

	lj := &lumberjack.Logger{
		Filename:   filePath,
		MaxSize:    policy.MaxSizeMB,
		MaxBackups: policy.MaxBackups,
		MaxAge:     policy.MaxAgeDays,
		Compress:   policy.Compress,
	}

	if levelVar == nil {
		levelVar = currentLogLevel
	}

	handler := slog.NewJSONHandler(lj, &slog.HandlerOptions{
		Level:       levelVar,
		ReplaceAttr: defaultReplaceAttr,
	})

	logger := slog.New(handler).With("service", serviceName)
	return logger, lj.Close, nil
}

// ensure io.Closer satisfied without unused import if lumberjack signature changes
var _ io.Closer = (*lumberjack.Logger)(nil)
