// Package log provides structured logging with run context.
//
// Pipeline components take a *Logger and log a message plus a field map.
// A nil *Logger is never dereferenced; components wrap it with OrNop.
package log

import (
	"fmt"
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Output formats.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// RunContext identifies the run every log entry belongs to.
type RunContext struct {
	RunID   string
	Command string
}

// Logger provides structured logging with run context.
// All log entries include run_id and command.
type Logger struct {
	zap *zap.Logger
}

// NewLoggerWithWriter creates a logger writing to w at the given minimum
// level. format is FormatJSON (one object per line) or FormatConsole; empty
// means JSON.
func NewLoggerWithWriter(rc RunContext, w io.Writer, level zapcore.Level, format string) (*Logger, error) {
	var enc zapcore.Encoder
	switch format {
	case "", FormatJSON:
		enc = zapcore.NewJSONEncoder(encoderConfig())
	case FormatConsole:
		cfg := encoderConfig()
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.ConsoleSeparator = " "
		enc = zapcore.NewConsoleEncoder(cfg)
	default:
		return nil, fmt.Errorf("unknown log format %q (want %s or %s)", format, FormatJSON, FormatConsole)
	}

	fields := []zap.Field{zap.String("run_id", rc.RunID)}
	if rc.Command != "" {
		fields = append(fields, zap.String("command", rc.Command))
	}
	core := zapcore.NewCore(enc, zapcore.AddSync(w), level)
	return &Logger{zap: zap.New(core).With(fields...)}, nil
}

// NewNop returns a logger that discards everything. Intended for tests and
// for components constructed without a logger.
func NewNop() *Logger {
	return &Logger{zap: zap.NewNop()}
}

// OrNop returns l, or a no-op logger if l is nil.
func OrNop(l *Logger) *Logger {
	if l == nil {
		return NewNop()
	}
	return l
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
}

// Named returns a child logger tagged with a component name.
func (l *Logger) Named(component string) *Logger {
	return &Logger{zap: l.zap.With(zap.String("component", component))}
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, fields map[string]any) {
	l.zap.Debug(message, zap.Any("fields", fields))
}

// Info logs an info message.
func (l *Logger) Info(message string, fields map[string]any) {
	l.zap.Info(message, zap.Any("fields", fields))
}

// Warn logs a warning message.
func (l *Logger) Warn(message string, fields map[string]any) {
	l.zap.Warn(message, zap.Any("fields", fields))
}

// Error logs an error message.
func (l *Logger) Error(message string, fields map[string]any) {
	l.zap.Error(message, zap.Any("fields", fields))
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.zap.Sync()
}
