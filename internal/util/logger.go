package util

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Logger is a levelled slog logger with an optional log file.
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
	file  *os.File
}

var (
	defaultLogger *Logger
	mu            sync.Mutex
)

// GetLogger returns the default logger, creating a stderr logger at info
// level on first use.
func GetLogger() *Logger {
	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(slog.LevelInfo, "")
	}
	return defaultLogger
}

// NewLogger creates a text logger at level. With a filePath the output goes
// to that file only, so it never interleaves with a terminal UI; without one
// it goes to stderr.
func NewLogger(level slog.Level, filePath string) *Logger {
	l := &Logger{level: new(slog.LevelVar)}
	l.level.Set(level)

	var out io.Writer = os.Stderr
	if filePath != "" {
		if err := EnsureDir(filepath.Dir(filePath)); err == nil {
			file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err == nil {
				l.file = file
				out = file
			}
		}
	}

	l.Logger = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: l.level}))
	return l
}

// NewWriterLogger creates a logger writing to w. Used in tests.
func NewWriterLogger(level slog.Level, w io.Writer) *Logger {
	l := &Logger{level: new(slog.LevelVar)}
	l.level.Set(level)
	l.Logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l.level}))
	return l
}

// SetLevel sets the logging level.
func (l *Logger) SetLevel(level slog.Level) {
	l.level.Set(level)
}

// Close closes the log file if open.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// ParseLevel parses a string log level; unknown values mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// InitLogger replaces the default logger using config values.
func InitLogger(level string, filePath string) *Logger {
	l := NewLogger(ParseLevel(level), filePath)
	SetLogger(l)
	return l
}

// SetLogger installs l as the default logger, closing the previous one.
func SetLogger(l *Logger) {
	mu.Lock()
	prev := defaultLogger
	defaultLogger = l
	mu.Unlock()
	if prev != nil && prev != l {
		prev.Close()
	}
}

// Debug logs a debug message using the default logger.
func Debug(msg string, args ...any) {
	GetLogger().Debug(msg, args...)
}

// Info logs an info message using the default logger.
func Info(msg string, args ...any) {
	GetLogger().Info(msg, args...)
}

// Warn logs a warning message using the default logger.
func Warn(msg string, args ...any) {
	GetLogger().Warn(msg, args...)
}

// Error logs an error message using the default logger.
func Error(msg string, args ...any) {
	GetLogger().Error(msg, args...)
}
