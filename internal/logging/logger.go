// Package logging provides the leveled, component-tagged logger used by all
// squadron components. Logging is fire-and-forget: no caller consults a
// return value.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Level is the minimum severity a logger will write.
type Level int

const (
	// LevelDebug writes everything.
	LevelDebug Level = iota
	// LevelInfo writes informational messages and above.
	LevelInfo
	// LevelWarn writes warnings and errors only.
	LevelWarn
	// LevelError writes errors only.
	LevelError
)

// String returns the level name used in log lines.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a config string to a Level. Unknown values mean info.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger writes timestamped, component-tagged lines to a file.
// A zero-value or nil Logger is a safe no-op.
type Logger struct {
	mu   sync.Mutex
	file *os.File
	min  Level
}

// New creates a logger writing to the specified path at the given minimum
// level. An empty path returns a no-op logger. Parent directories are
// created as needed.
func New(path string, min Level) (*Logger, error) {
	if path == "" {
		return &Logger{min: min}, nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	l := &Logger{file: f, min: min}
	l.write(LevelInfo, "logging", "=== log started at %s ===", time.Now().Format(time.RFC3339))
	return l, nil
}

// Nop returns a no-op logger for tests or when logging is disabled.
func Nop() *Logger {
	return &Logger{min: LevelError}
}

// Debugf logs at debug level with a component tag.
func (l *Logger) Debugf(component, format string, args ...interface{}) {
	l.write(LevelDebug, component, format, args...)
}

// Infof logs at info level with a component tag.
func (l *Logger) Infof(component, format string, args ...interface{}) {
	l.write(LevelInfo, component, format, args...)
}

// Warnf logs at warn level with a component tag.
func (l *Logger) Warnf(component, format string, args ...interface{}) {
	l.write(LevelWarn, component, format, args...)
}

// Errorf logs at error level with a component tag.
func (l *Logger) Errorf(component, format string, args ...interface{}) {
	l.write(LevelError, component, format, args...)
}

func (l *Logger) write(level Level, component, format string, args ...interface{}) {
	if l == nil || l.file == nil || level < l.min {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	msg := fmt.Sprintf(format, args...)
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Fprintf(l.file, "[%s] %-5s [%s] %s\n", timestamp, level, component, msg)
}

// Close closes the log file. Safe on a nil or no-op logger.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
