// Package log provides structured logging for novacore.
//
// Records carry the request/user/component context bound to the logger
// plus caller-supplied metadata. Output is JSON (one record per line) in
// production and staging, colorized console output otherwise. Writes
// never fail the caller: I/O errors are swallowed and non-serializable
// metadata degrades to its string form.
//
// When redaction is enabled, PII patterns in strings become sentinels and
// values under sensitive field names are replaced wholesale before
// encoding. See redact.go for the pattern set.
package log

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls logger construction.
type Config struct {
	// Level is the floor: debug, info, warn, error, or fatal.
	// Records below it are dropped silently. Invalid or empty values
	// select info.
	Level string
	// Environment selects the encoder: production and staging emit JSON,
	// anything else emits colorized console output.
	Environment string
	// Component is bound to every record from this logger.
	Component string
	// Redact enables PII redaction of messages and metadata.
	Redact bool
	// Output defaults to os.Stderr.
	Output io.Writer
}

// Context is the overlay merged into records by Child.
type Context struct {
	RequestID string
	UserID    string
	Component string
}

func (c Context) merge(overlay Context) Context {
	out := c
	if overlay.RequestID != "" {
		out.RequestID = overlay.RequestID
	}
	if overlay.UserID != "" {
		out.UserID = overlay.UserID
	}
	if overlay.Component != "" {
		out.Component = overlay.Component
	}
	return out
}

func (c Context) fields() []zap.Field {
	fields := make([]zap.Field, 0, 3)
	if c.RequestID != "" {
		fields = append(fields, zap.String("requestId", c.RequestID))
	}
	if c.UserID != "" {
		fields = append(fields, zap.String("userId", c.UserID))
	}
	if c.Component != "" {
		fields = append(fields, zap.String("component", c.Component))
	}
	return fields
}

// Logger is the structured logger. Obtain request- or user-scoped
// children via Child; the zero value is not usable, construct with New
// or Nop.
type Logger struct {
	root  *zap.Logger
	bound *zap.Logger
	ctx   Context
	red   *Redactor
}

// New builds a logger from the configuration.
func New(cfg Config) *Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zapcore.InfoLevel
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}

	var encoder zapcore.Encoder
	switch cfg.Environment {
	case "production", "staging":
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	default:
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(out), level)
	root := zap.New(core)

	ctx := Context{Component: cfg.Component}
	return &Logger{
		root:  root,
		bound: root.With(ctx.fields()...),
		ctx:   ctx,
		red:   NewRedactor(cfg.Redact),
	}
}

// Nop returns a logger that discards everything. Components treat a nil
// logger as Nop.
func Nop() *Logger {
	root := zap.NewNop()
	return &Logger{root: root, bound: root, red: NewRedactor(false)}
}

// OrNop returns l, or a discarding logger when l is nil.
func OrNop(l *Logger) *Logger {
	if l == nil {
		return Nop()
	}
	return l
}

// Child returns a logger whose context merges the parent's with the
// overlay. Non-empty overlay fields win.
func (l *Logger) Child(overlay Context) *Logger {
	merged := l.ctx.merge(overlay)
	return &Logger{
		root:  l.root,
		bound: l.root.With(merged.fields()...),
		ctx:   merged,
		red:   l.red,
	}
}

// emit applies redaction and normalization, then hands the record to zap.
// Metadata is pre-normalized so encoding can never fail structurally.
func (l *Logger) emit(level zapcore.Level, message string, fields map[string]any) {
	msg := l.red.String(message)
	var zfields []zap.Field
	if len(fields) > 0 {
		zfields = append(zfields, zap.Any("metadata", l.red.Value(fields, 0)))
	}
	if ce := l.bound.Check(level, msg); ce != nil {
		ce.Write(zfields...)
	}
}

// Debug logs a debug record.
func (l *Logger) Debug(message string, fields map[string]any) {
	l.emit(zapcore.DebugLevel, message, fields)
}

// Info logs an info record.
func (l *Logger) Info(message string, fields map[string]any) {
	l.emit(zapcore.InfoLevel, message, fields)
}

// Warn logs a warning record.
func (l *Logger) Warn(message string, fields map[string]any) {
	l.emit(zapcore.WarnLevel, message, fields)
}

// Error logs an error record.
func (l *Logger) Error(message string, fields map[string]any) {
	l.emit(zapcore.ErrorLevel, message, fields)
}

// Fatal logs a fatal record and exits the process. Reserve for mains.
func (l *Logger) Fatal(message string, fields map[string]any) {
	l.emit(zapcore.FatalLevel, message, fields)
}

// Sync flushes buffered records. Errors are deliberately dropped; the
// logger never fails its caller.
func (l *Logger) Sync() {
	_ = l.bound.Sync()
}
