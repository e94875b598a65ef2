// SPDX-License-Identifier: MIT
//
// Package log is a small levelled logger on top of the standard library
// logger. The level is global and atomic so it can be changed from config
// while the reactors are running. Components log through a named Logger so
// every line carries its origin ("Discovery: ...", "Session: ...").
package log

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync/atomic"
)

// LogLevel defines the severity of a log message.
type LogLevel uint32

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string (case-insensitive) to a LogLevel.
// Returns LevelInfo and false if the string is not recognized.
func ParseLevel(levelStr string) (LogLevel, bool) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO", "":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "FATAL":
		return LevelFatal, true
	default:
		return LevelInfo, false
	}
}

var (
	currentLevel atomic.Uint32
	logger       = stdlog.New(os.Stderr, "", stdlog.Ldate|stdlog.Ltime|stdlog.Lmicroseconds)
)

func init() {
	SetLevel(LevelInfo)
}

// SetLevel sets the global logging level atomically.
func SetLevel(level LogLevel) {
	currentLevel.Store(uint32(level))
}

// GetLevel gets the current global logging level atomically.
func GetLevel() LogLevel {
	return LogLevel(currentLevel.Load())
}

// SetOutput redirects every logger. Tests use it to capture or silence output.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

func shouldLog(level LogLevel) bool {
	return level >= GetLevel()
}

func output(level LogLevel, prefix, msg string) {
	if !shouldLog(level) {
		return
	}
	if prefix != "" {
		msg = prefix + ": " + msg
	}
	// Pad INFO/WARN so messages line up with the five letter levels.
	if len(level.String()) == 4 {
		logger.Printf("[%s]  %s", level, msg)
		return
	}
	logger.Printf("[%s] %s", level, msg)
}

// Logger tags every message with a component name.
type Logger struct {
	name string
}

// Named returns a Logger whose messages are prefixed with name.
func Named(name string) *Logger {
	return &Logger{name: name}
}

func (l *Logger) Debugf(format string, v ...any) { output(LevelDebug, l.name, fmt.Sprintf(format, v...)) }
func (l *Logger) Infof(format string, v ...any)  { output(LevelInfo, l.name, fmt.Sprintf(format, v...)) }
func (l *Logger) Warnf(format string, v ...any)  { output(LevelWarn, l.name, fmt.Sprintf(format, v...)) }
func (l *Logger) Errorf(format string, v ...any) { output(LevelError, l.name, fmt.Sprintf(format, v...)) }

// Debugf logs a formatted debug message if the level is appropriate.
func Debugf(format string, v ...any) { output(LevelDebug, "", fmt.Sprintf(format, v...)) }

// Infof logs a formatted info message if the level is appropriate.
func Infof(format string, v ...any) { output(LevelInfo, "", fmt.Sprintf(format, v...)) }

// Warnf logs a formatted warning message if the level is appropriate.
func Warnf(format string, v ...any) { output(LevelWarn, "", fmt.Sprintf(format, v...)) }

// Errorf logs a formatted error message if the level is appropriate.
func Errorf(format string, v ...any) { output(LevelError, "", fmt.Sprintf(format, v...)) }

// Fatalf logs a formatted fatal message and exits the application.
// Fatal messages are always logged regardless of the current level.
func Fatalf(format string, v ...any) {
	logger.Fatalf("[%s] %s", LevelFatal, fmt.Sprintf(format, v...))
}
