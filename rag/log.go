// Package rag provides low-level building blocks (logging, token
// counting, sentence splitting, a BM25 sparse index and an RRF reranker)
// shared by the higher-level ingest, vectorstore and embed packages;
// embedding providers live in the rag/providers subpackage. This file
// defines the logging system
// used throughout: multiple severity levels and structured key-value
// logging, backed by zap.
package rag

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the severity level of a log message.
// Higher values indicate more verbose logging.
type LogLevel int

const (
	// LogLevelOff disables all logging
	LogLevelOff LogLevel = iota
	// LogLevelError enables only error messages
	LogLevelError
	// LogLevelWarn enables error and warning messages
	LogLevelWarn
	// LogLevelInfo enables error, warning, and info messages
	LogLevelInfo
	// LogLevelDebug enables all messages including debug
	LogLevelDebug
)

// Logger defines the interface for logging operations.
// Implementations must support multiple severity levels and
// structured logging with key-value pairs.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	SetLevel(level LogLevel)
}

// zapLogger implements Logger on top of zap.SugaredLogger. It wraps an
// AtomicLevel so SetLevel can flip verbosity at runtime without
// rebuilding the underlying core, which matters since GlobalLogger is
// shared across every component.
type zapLogger struct {
	sugar *zap.SugaredLogger
	atom  zap.AtomicLevel
}

func toZapLevel(level LogLevel) zapcore.Level {
	switch level {
	case LogLevelDebug:
		return zapcore.DebugLevel
	case LogLevelInfo:
		return zapcore.InfoLevel
	case LogLevelWarn:
		return zapcore.WarnLevel
	case LogLevelError:
		return zapcore.ErrorLevel
	default:
		// zap has no "off" level; Fatal+1 silences everything in practice.
		return zapcore.FatalLevel + 1
	}
}

// NewLogger creates a new Logger backed by zap, writing structured,
// leveled JSON to stderr.
func NewLogger(level LogLevel) Logger {
	atom := zap.NewAtomicLevelAt(toZapLevel(level))
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.Lock(zapcore.AddSync(os.Stderr)),
		atom,
	)
	logger := zap.New(core)
	return &zapLogger{sugar: logger.Sugar(), atom: atom}
}

func (l *zapLogger) SetLevel(level LogLevel) {
	l.atom.SetLevel(toZapLevel(level))
}

func (l *zapLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l *zapLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

func (l *zapLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, keysAndValues...)
}

func (l *zapLogger) Error(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, keysAndValues...)
}

// String returns the string representation of a LogLevel.
func (l LogLevel) String() string {
	return [...]string{"OFF", "ERROR", "WARN", "INFO", "DEBUG"}[l]
}

// UnmarshalText implements encoding.TextUnmarshaler so LogLevel can be
// configured from config files or environment variables.
func (l *LogLevel) UnmarshalText(text []byte) error {
	switch strings.ToUpper(string(text)) {
	case "OFF":
		*l = LogLevelOff
	case "ERROR":
		*l = LogLevelError
	case "WARN":
		*l = LogLevelWarn
	case "INFO":
		*l = LogLevelInfo
	case "DEBUG":
		*l = LogLevelDebug
	default:
		*l = LogLevelInfo
	}
	return nil
}

// GlobalLogger is the package-level logger instance used by default
// across rag, ingest, vectorstore, embed, websearch, session and agent.
var GlobalLogger Logger

func init() {
	GlobalLogger = NewLogger(LogLevelInfo)
}

// SetGlobalLogLevel sets the log level for the global logger instance.
func SetGlobalLogLevel(level LogLevel) {
	GlobalLogger.SetLevel(level)
}
