// Package logger wraps zerolog for the schema cache, the HTTP handler and
// the CLI. Library code receives a *Logger explicitly; request handlers
// may carry one in the context with WithContext.
package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a thin wrapper over zerolog.Logger.
type Logger struct {
	zlog zerolog.Logger
}

// Config holds logger configuration
type Config struct {
	Level      string    `yaml:"level"`       // debug, info, warn, error
	Format     string    `yaml:"format"`      // json, console
	TimeFormat string    `yaml:"time_format"` // rfc3339, unix, unixms, unixmicro
	Output     io.Writer `yaml:"-"`
}

// DefaultConfig returns production defaults: info level, JSON to stderr.
func DefaultConfig() *Config {
	return &Config{
		Level:      "info",
		Format:     "json",
		TimeFormat: "rfc3339",
		Output:     os.Stderr,
	}
}

// New creates a logger from cfg. A nil cfg uses DefaultConfig.
func New(cfg *Config) *Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	zerolog.TimeFieldFormat = getTimeFormat(cfg.TimeFormat)

	var w io.Writer = out
	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	// Level is per logger so that tests and the CLI can coexist.
	zlog := zerolog.New(w).Level(parseLevel(cfg.Level)).With().Timestamp().Logger()
	return &Logger{zlog: zlog}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// WithContext adds logger to context
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return l.zlog.WithContext(ctx)
}

// FromContext retrieves the logger stored by WithContext, or a no-op logger.
func FromContext(ctx context.Context) *Logger {
	zlog := zerolog.Ctx(ctx)
	if zlog.GetLevel() == zerolog.Disabled {
		return Nop()
	}
	return &Logger{zlog: *zlog}
}

// With creates a child logger with additional fields
func (l *Logger) With() *Context {
	return &Context{ctx: l.zlog.With()}
}

// Context wraps zerolog.Context for field chaining
type Context struct {
	ctx zerolog.Context
}

func (c *Context) Str(key, val string) *Context {
	c.ctx = c.ctx.Str(key, val)
	return c
}

func (c *Context) Bool(key string, val bool) *Context {
	c.ctx = c.ctx.Bool(key, val)
	return c
}

func (c *Context) Logger() *Logger {
	return &Logger{zlog: c.ctx.Logger()}
}

// Logging methods
func (l *Logger) Debug(msg string) {
	l.zlog.Debug().Msg(msg)
}

func (l *Logger) Info(msg string) {
	l.zlog.Info().Msg(msg)
}

func (l *Logger) Error(msg string) {
	l.zlog.Error().Msg(msg)
}

// DebugWith logs msg at debug level with the given fields.
func (l *Logger) DebugWith(msg string, fields map[string]any) {
	event := l.zlog.Debug()
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
}

func (l *Logger) ErrorWith(msg string, err error, fields map[string]any) {
	event := l.zlog.Error().Err(err)
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
}

// Request logs one served HTTP request.
func (l *Logger) Request(method, path string, status int, elapsed time.Duration) {
	l.zlog.Info().
		Str("method", method).
		Str("path", path).
		Int("status", status).
		Dur("elapsed", elapsed).
		Msg("request")
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

func getTimeFormat(format string) string {
	switch format {
	case "unix":
		return zerolog.TimeFormatUnix
	case "unixms":
		return zerolog.TimeFormatUnixMs
	case "unixmicro":
		return zerolog.TimeFormatUnixMicro
	default:
		return time.RFC3339
	}
}
