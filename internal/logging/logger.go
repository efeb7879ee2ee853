// Package logging provides structured logging for the portal client.
// It wraps log/slog with component loggers, credential redaction and rotated file output.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel is the configured verbosity. It maps one to one onto slog levels.
type LogLevel slog.Level

const (
	DebugLevel = LogLevel(slog.LevelDebug)
	InfoLevel  = LogLevel(slog.LevelInfo)
	WarnLevel  = LogLevel(slog.LevelWarn)
	ErrorLevel = LogLevel(slog.LevelError)
)

func (l LogLevel) String() string {
	return slog.Level(l).String()
}

// ParseLevel converts a config string to a LogLevel, defaulting to InfoLevel
func ParseLevel(level string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// Logger is a component-scoped slog logger
type Logger struct {
	logger    *slog.Logger
	component string
}

// Config represents logging configuration
type Config struct {
	Level      LogLevel
	Format     string // "json" or "text"
	Output     string // "stdout", "stderr", "discard", or file path
	Component  string
	MaxSizeMB  int
	MaxBackups int
}

// DefaultConfig logs text at info level to stderr
func DefaultConfig() Config {
	return Config{
		Level:      InfoLevel,
		Format:     "text",
		Output:     "stderr",
		Component:  "portal",
		MaxSizeMB:  10,
		MaxBackups: 3,
	}
}

// sensitiveKeys are attribute keys whose values never reach the log output
var sensitiveKeys = []string{"token", "authorization", "password", "cookie"}

func redact(_ []string, a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return slog.String(a.Key, "[REDACTED]")
		}
	}
	return a
}

// openOutput resolves the Output setting. Anything that is not a stream name
// is a file path rotated by lumberjack, which is where the console logs since
// it owns the terminal.
func openOutput(config Config) io.Writer {
	switch config.Output {
	case "stdout":
		return os.Stdout
	case "stderr", "":
		return os.Stderr
	case "discard":
		return io.Discard
	}
	return &lumberjack.Logger{
		Filename:   config.Output,
		MaxSize:    config.MaxSizeMB,
		MaxBackups: config.MaxBackups,
	}
}

// NewLogger builds a logger from config
func NewLogger(config Config) (*Logger, error) {
	if config.Format != "" && config.Format != "text" && config.Format != "json" {
		return nil, fmt.Errorf("unsupported log format %q", config.Format)
	}
	return newLoggerWithWriter(config, openOutput(config)), nil
}

func newLoggerWithWriter(config Config, output io.Writer) *Logger {
	opts := &slog.HandlerOptions{Level: slog.Level(config.Level), ReplaceAttr: redact}

	var handler slog.Handler = slog.NewTextHandler(output, opts)
	if config.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	}
	return &Logger{logger: slog.New(handler), component: config.Component}
}

// NewTestLogger returns a logger writing text records to w at debug level
func NewTestLogger(w io.Writer) *Logger {
	cfg := DefaultConfig()
	cfg.Level = DebugLevel
	return newLoggerWithWriter(cfg, w)
}

// WithContext tags records with the request ID stored in ctx, if any
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if id, ok := RequestIDFromContext(ctx); ok {
		return l.WithField("request_id", id)
	}
	return l
}

// WithComponent derives a logger whose records carry component=name
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{logger: l.logger.With(slog.String("component", component)), component: component}
}

// WithField derives a logger with one extra attribute
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{logger: l.logger.With(slog.Any(key, value)), component: l.component}
}

func (l *Logger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

// LogHTTPRequest logs HTTP request details (without sensitive data)
func (l *Logger) LogHTTPRequest(method string, path string, statusCode int, duration time.Duration) {
	l.Debug("HTTP request completed",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status_code", statusCode),
		slog.Duration("duration", duration))
}

// LogRecovery logs the outcome of a session recovery attempt
func (l *Logger) LogRecovery(outcome string, waiters int, duration time.Duration) {
	l.Info("Session recovery concluded",
		slog.String("outcome", outcome),
		slog.Int("waiters_released", waiters),
		slog.Duration("duration", duration))
}

// LogSessionChange logs credential lifecycle transitions
func (l *Logger) LogSessionChange(action string, reason string) {
	l.Debug("Session changed",
		slog.String("action", action),
		slog.String("reason", reason))
}

// LogConfigLoad logs configuration loading operations
func (l *Logger) LogConfigLoad(configPath string, environment string) {
	l.Debug("Loading configuration",
		slog.String("config_path", configPath),
		slog.String("environment", environment))
}

// LogUIStateChange logs user interface state transitions
func (l *Logger) LogUIStateChange(from string, to string, reason string) {
	l.Debug("UI state change",
		slog.String("from", from),
		slog.String("to", to),
		slog.String("reason", reason))
}

type requestIDKey struct{}

// ContextWithRequestID stores a request ID for log correlation
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request ID stored by ContextWithRequestID
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok && id != ""
}

var (
	globalLogger *Logger
	globalMu     sync.RWMutex
)

// InitGlobalLogger initializes the global logger with the specified configuration
func InitGlobalLogger(config Config) error {
	logger, err := NewLogger(config)
	if err != nil {
		return fmt.Errorf("failed to initialize global logger: %w", err)
	}
	SetGlobalLogger(logger)
	return nil
}

// SetGlobalLogger replaces the global logger
func SetGlobalLogger(logger *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = logger
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	logger := globalLogger
	globalMu.RUnlock()
	if logger != nil {
		return logger
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger, _ = NewLogger(DefaultConfig())
	}
	return globalLogger
}

// Component-specific logger creators
func GetProtocolLogger() *Logger {
	return GetGlobalLogger().WithComponent("protocol")
}

func GetConfigLogger() *Logger {
	return GetGlobalLogger().WithComponent("config")
}

func GetSessionLogger() *Logger {
	return GetGlobalLogger().WithComponent("session")
}

func GetAuthLogger() *Logger {
	return GetGlobalLogger().WithComponent("auth")
}

func GetChatLogger() *Logger {
	return GetGlobalLogger().WithComponent("chat")
}

func GetUILogger() *Logger {
	return GetGlobalLogger().WithComponent("ui")
}

func GetWebLogger() *Logger {
	return GetGlobalLogger().WithComponent("web")
}

func GetProbeLogger() *Logger {
	return GetGlobalLogger().WithComponent("probe")
}
