package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/housing-backoffice/internal/infrastructure/config"
)

// serviceName is attached to every log entry.
const serviceName = "backoffice"

// Logger wraps slog.Logger with back office defaults.
//
// It embeds *slog.Logger so all standard methods (Info, Error, Debug, Warn)
// are available directly.
type Logger struct {
	*slog.Logger
}

// New creates a logger from configuration.
//
// Parameters:
//   - cfg: Logging configuration (level, format, output)
//   - version: Application version, added to every entry
//
// Returns:
//   - *Logger: Configured logger ready for use
func New(cfg config.LoggingConfig, version string) *Logger {
	return NewWithWriter(cfg, version, outputFor(cfg.Output))
}

// NewWithWriter is New with an explicit destination, used by tests and
// by callers that capture output.
func NewWithWriter(cfg config.LoggingConfig, version string, output io.Writer) *Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewJSONHandler(output, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

func outputFor(name string) io.Writer {
	switch strings.ToLower(name) {
	case "stderr":
		return os.Stderr
	case "discard":
		return io.Discard
	default:
		return os.Stdout
	}
}

// parseLevel converts a level string to slog.Level.
// Unknown values fall back to info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a Logger with additional default fields.
//
// Example:
//
//	authLog := logger.With("component", "auth")
//	authLog.Info("login succeeded", "principal_kind", "staff")
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
	}
}

// Default returns a logger with default settings, used before config is loaded.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *Logger {
	return New(config.LoggingConfig{Output: "discard"}, "test")
}
