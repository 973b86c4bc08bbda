// Package logger provides the leveled stderr logger used across the
// engine. Worker-facing run logs go through internal/runlog instead;
// this package is for operator-facing diagnostics.
package logger

import (
	"fmt"
	"os"
	"strings"
)

// Level is a log severity level.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	// Current level, Info by default.
	currentLevel = LevelInfo
)

// SetLevel sets the log level.
func SetLevel(level Level) {
	currentLevel = level
}

// SetLevelFromString sets the log level from its string name.
// Unknown names fall back to Info.
func SetLevelFromString(level string) {
	switch strings.ToLower(level) {
	case "debug":
		currentLevel = LevelDebug
	case "info":
		currentLevel = LevelInfo
	case "warn", "warning":
		currentLevel = LevelWarn
	case "error":
		currentLevel = LevelError
	default:
		currentLevel = LevelInfo
	}
}

// EnableDebug switches to debug logging.
func EnableDebug() {
	currentLevel = LevelDebug
}

// DisableDebug switches back to info logging.
func DisableDebug() {
	currentLevel = LevelInfo
}

// IsDebugEnabled reports whether debug logging is on.
func IsDebugEnabled() bool {
	return currentLevel <= LevelDebug
}

// Debug logs a debug message.
func Debug(format string, args ...interface{}) {
	if currentLevel <= LevelDebug {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// Info logs an informational message.
func Info(format string, args ...interface{}) {
	if currentLevel <= LevelInfo {
		fmt.Fprintf(os.Stderr, "[INFO] "+format+"\n", args...)
	}
}

// Warn logs a warning.
func Warn(format string, args ...interface{}) {
	if currentLevel <= LevelWarn {
		fmt.Fprintf(os.Stderr, "[WARN] "+format+"\n", args...)
	}
}

// Error logs an error.
func Error(format string, args ...interface{}) {
	if currentLevel <= LevelError {
		fmt.Fprintf(os.Stderr, "[ERROR] "+format+"\n", args...)
	}
}
