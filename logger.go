// Package tutorbridge provides the top-level logging interface for the
// assistant, built on top of the rag package's zap-backed logging system.
package tutorbridge

import (
	"github.com/eduassist/tutorbridge/rag"
)

// LogLevel represents the severity of a log message.
type LogLevel = rag.LogLevel

const (
	LogLevelOff   = rag.LogLevelOff
	LogLevelError = rag.LogLevelError
	LogLevelWarn  = rag.LogLevelWarn
	LogLevelInfo  = rag.LogLevelInfo
	LogLevelDebug = rag.LogLevelDebug
)

// Logger interface defines the logging operations available.
type Logger = rag.Logger

// SetLogLevel sets the global log level for the assistant.
func SetLogLevel(level LogLevel) {
	rag.SetGlobalLogLevel(level)
}

func Debug(msg string, keysAndValues ...interface{}) {
	rag.GlobalLogger.Debug(msg, keysAndValues...)
}

func Info(msg string, keysAndValues ...interface{}) {
	rag.GlobalLogger.Info(msg, keysAndValues...)
}

func Warn(msg string, keysAndValues ...interface{}) {
	rag.GlobalLogger.Warn(msg, keysAndValues...)
}

func Error(msg string, keysAndValues ...interface{}) {
	rag.GlobalLogger.Error(msg, keysAndValues...)
}
