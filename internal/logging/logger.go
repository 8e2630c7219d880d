// Package logging provides structured logging functionality for logspam.
//
// This package implements a centralized logging system with:
// - Structured logging using Go's slog package
// - Configurable log levels and output formats
// - Run correlation via run IDs
// - One-time process-wide setup before any worker starts
//
// Example usage:
//
//	logger, err := logging.NewLogger(cfg.Logging)
//	logger.Info("Fan-out started", "workers", 4, "lines_per_worker", 100)
//
//	// With context for correlation
//	ctx = logging.WithRunID(ctx, runID)
//	logger.InfoContext(ctx, "Worker finished", "worker", workerID)
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/logspam/logspam/internal/config"
)

// RunIDKey is the context key for run IDs
type RunIDKey struct{}

// Logger wraps slog.Logger with logspam-specific functionality
type Logger struct {
	*slog.Logger
	config config.LoggingConfig
	writer io.Writer
}

// LogLevel represents log levels
type LogLevel = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// NewLogger creates a new structured logger with the given configuration
func NewLogger(cfg config.LoggingConfig) (*Logger, error) {
	// Parse log level
	level, err := parseLogLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	// Set up output writer
	writer, err := createLogWriter(cfg.OutputFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create log writer: %w", err)
	}

	// Create handler based on format
	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.Verbose,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				// Format time consistently
				if t, ok := a.Value.Any().(time.Time); ok {
					return slog.String(slog.TimeKey, t.Format(time.RFC3339))
				}
			}
			return a
		},
	}

	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(writer, opts)
	case "text":
		handler = slog.NewTextHandler(writer, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.Format)
	}

	// Wrap handler to add run ID support
	handler = &RunIDHandler{Handler: handler}

	logger := &Logger{
		Logger: slog.New(handler),
		config: cfg,
		writer: writer,
	}

	return logger, nil
}

// NewWriterLogger creates a logger that writes to the given writer, for use
// where the destination is owned by the caller (child worker stdout, tests).
func NewWriterLogger(cfg config.LoggingConfig, w io.Writer) (*Logger, error) {
	level, err := parseLogLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.Format)
	}

	return &Logger{
		Logger: slog.New(&RunIDHandler{Handler: handler}),
		config: cfg,
		writer: w,
	}, nil
}

// parseLogLevel converts string log level to slog.Level
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s", level)
	}
}

// createLogWriter creates the appropriate writer for log output
func createLogWriter(outputFile string) (io.Writer, error) {
	if outputFile == "" {
		return os.Stderr, nil
	}

	// Ensure directory exists
	dir := filepath.Dir(outputFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %q: %w", dir, err)
	}

	// Open file for writing (append mode)
	file, err := os.OpenFile(outputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %q: %w", outputFile, err)
	}

	return file, nil
}

// RunIDHandler wraps another handler to add run ID support
type RunIDHandler struct {
	slog.Handler
}

// Handle processes log records and adds the run ID if present in context
func (h *RunIDHandler) Handle(ctx context.Context, r slog.Record) error {
	if runID := GetRunID(ctx); runID != "" {
		r.AddAttrs(slog.String("run_id", runID))
	}
	return h.Handler.Handle(ctx, r)
}

// WithAttrs returns a new handler with the given attributes
func (h *RunIDHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &RunIDHandler{Handler: h.Handler.WithAttrs(attrs)}
}

// WithGroup returns a new handler with the given group
func (h *RunIDHandler) WithGroup(name string) slog.Handler {
	return &RunIDHandler{Handler: h.Handler.WithGroup(name)}
}

// Run ID helpers

// WithRunID adds a run ID to the context
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey{}, runID)
}

// GetRunID retrieves the run ID from the context
func GetRunID(ctx context.Context) string {
	if id, ok := ctx.Value(RunIDKey{}).(string); ok {
		return id
	}
	return ""
}

// Component-specific logger creation

// NewSpamLogger creates a logger for the fan-out runner
func NewSpamLogger(cfg config.LoggingConfig) (*Logger, error) {
	logger, err := NewLogger(cfg)
	if err != nil {
		return nil, err
	}

	logger.Logger = logger.Logger.With(
		slog.String("component", "spam"),
		slog.String("service", "logspam"),
	)

	return logger, nil
}

// NewWorkerLogger creates a logger for a spam worker
func NewWorkerLogger(cfg config.LoggingConfig, workerID string) (*Logger, error) {
	logger, err := NewLogger(cfg)
	if err != nil {
		return nil, err
	}

	logger.Logger = logger.Logger.With(
		slog.String("component", "worker"),
		slog.String("service", "logspam"),
		slog.String("worker", workerID),
	)

	return logger, nil
}

// NewTeeLogger creates a logger for the rotating tee
func NewTeeLogger(cfg config.LoggingConfig, outputFile string) (*Logger, error) {
	logger, err := NewLogger(cfg)
	if err != nil {
		return nil, err
	}

	logger.Logger = logger.Logger.With(
		slog.String("component", "tee"),
		slog.String("service", "logspam"),
		slog.String("output_file", outputFile),
	)

	return logger, nil
}

// LogError logs an error with proper context and error details
func (l *Logger) LogError(ctx context.Context, msg string, err error, attrs ...slog.Attr) {
	allAttrs := []slog.Attr{
		slog.String("error", err.Error()),
		slog.String("error_type", fmt.Sprintf("%T", err)),
	}
	allAttrs = append(allAttrs, attrs...)

	l.LogAttrs(ctx, slog.LevelError, msg, allAttrs...)
}

// Close closes any file resources used by the logger
func (l *Logger) Close() error {
	if closer, ok := l.writer.(io.Closer); ok && l.writer != os.Stderr {
		return closer.Close()
	}
	return nil
}

// Global logger management

var defaultLogger *Logger

// SetDefault sets the default logger instance
func SetDefault(logger *Logger) {
	defaultLogger = logger
}

// Default returns the default logger instance
func Default() *Logger {
	if defaultLogger == nil {
		// Create a basic logger if none is set
		cfg := config.LoggingConfig{
			Level:  "info",
			Format: "text",
		}
		logger, _ := NewLogger(cfg)
		return logger
	}
	return defaultLogger
}

// Package-level convenience functions

// Info logs at Info level using the default logger
func Info(msg string, args ...any) {
	Default().Info(msg, args...)
}

// InfoContext logs at Info level with context using the default logger
func InfoContext(ctx context.Context, msg string, args ...any) {
	Default().InfoContext(ctx, msg, args...)
}

// Error logs at Error level using the default logger
func Error(msg string, args ...any) {
	Default().Error(msg, args...)
}

// Debug logs at Debug level using the default logger
func Debug(msg string, args ...any) {
	Default().Debug(msg, args...)
}

// Warn logs at Warn level using the default logger
func Warn(msg string, args ...any) {
	Default().Warn(msg, args...)
}
