package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures NewLogger.
type Options struct {
	// Development switches the console to the colored human-readable encoder
	// and lowers the default level to debug.
	Development bool

	// Level overrides the default level when set (debug, info, warn, error).
	Level string

	// FilePath is the rotated JSON log file. Empty disables file output.
	FilePath string

	// File tunes rotation of FilePath. Zero fields fall back to defaults.
	File FileWriterConfig
}

// Logger wraps zap.Logger and redacts sensitive values before they are
// written.
//
// Example:
//
//	logger, err := NewLogger(Options{Development: true, FilePath: "app.log"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("server started", zap.String("addr", ":8000"))
type Logger struct {
	zap         *zap.Logger
	logFilePath string
}

// NewLogger builds a Logger that tees to stdout and, if configured, a
// rotated log file.
func NewLogger(opts Options) (*Logger, error) {
	defaultLevel := zapcore.InfoLevel
	if opts.Development {
		defaultLevel = zapcore.DebugLevel
	}
	level := ParseLogLevelString(opts.Level, defaultLevel)

	var fileWriter zapcore.WriteSyncer
	if opts.FilePath != "" {
		w, err := NewFileWriter(opts.FilePath, opts.File)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		fileWriter = w
	}

	l := NewWithCore(NewMultiCore(level, zapcore.Lock(os.Stdout), fileWriter, opts.Development),
		zap.AddCaller(), zap.AddCallerSkip(1))
	l.logFilePath = opts.FilePath
	return l, nil
}

// NewWithCore wraps an existing zapcore.Core, e.g. one from zaptest or
// zaptest/observer.
func NewWithCore(core zapcore.Core, opts ...zap.Option) *Logger {
	return newFromZap(zap.New(core, opts...))
}

// NewNop returns a Logger that discards everything.
func NewNop() *Logger {
	return newFromZap(zap.NewNop())
}

func newFromZap(z *zap.Logger) *Logger {
	return &Logger{zap: z}
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error {
	if l == nil || l.zap == nil {
		return nil
	}
	return l.zap.Sync()
}

// Debug logs a message at DebugLevel.
func (l *Logger) Debug(msg string, fields ...zap.Field) {
	l.zap.Debug(msg, redactFields(fields)...)
}

// Info logs a message at InfoLevel.
func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.zap.Info(msg, redactFields(fields)...)
}

// Warn logs a message at WarnLevel.
func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.zap.Warn(msg, redactFields(fields)...)
}

// Error logs a message at ErrorLevel.
func (l *Logger) Error(msg string, fields ...zap.Field) {
	l.zap.Error(msg, redactFields(fields)...)
}

// With returns a child logger that adds fields to every entry.
//
//	reqLogger := logger.With(zap.String("request_id", id))
func (l *Logger) With(fields ...zap.Field) *Logger {
	child := newFromZap(l.zap.With(redactFields(fields)...))
	child.logFilePath = l.logFilePath
	return child
}

// Named returns a child logger with a sub-logger name, shown in the
// "source" field.
func (l *Logger) Named(name string) *Logger {
	child := newFromZap(l.zap.Named(name))
	child.logFilePath = l.logFilePath
	return child
}

// Zap returns the underlying zap.Logger.
func (l *Logger) Zap() *zap.Logger {
	return l.zap
}

// LogFilePath returns the path to the log file, or "" for console only.
func (l *Logger) LogFilePath() string {
	return l.logFilePath
}

// redactFields filters sensitive data from zap.Field values.
func redactFields(fields []zap.Field) []zap.Field {
	if len(fields) == 0 {
		return fields
	}
	result := make([]zap.Field, len(fields))
	for i, field := range fields {
		result[i] = redactField(field)
	}
	return result
}

func redactField(field zap.Field) zap.Field {
	if IsSensitiveField(field.Key) {
		return zap.String(field.Key, RedactedPlaceholder)
	}
	switch field.Type {
	case zapcore.StringType:
		if redacted := RedactSensitiveData(field.String); redacted != field.String {
			return zap.String(field.Key, redacted)
		}
	case zapcore.ErrorType:
		if err, ok := field.Interface.(error); ok && err != nil {
			msg := err.Error()
			if redacted := RedactSensitiveData(msg); redacted != msg {
				return zap.String(field.Key, redacted)
			}
		}
	}
	return field
}
