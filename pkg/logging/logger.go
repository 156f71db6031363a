// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	// Set global log level
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	// Configure output
	var output io.Writer = cfg.Output
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: cfg.Output}
	}

	// Create logger with timestamp
	logger := zerolog.New(output).With().Timestamp().Logger()

	// Set as global logger
	log.Logger = logger

	return logger
}

// ParseLevel converts a level name such as "debug" or "WARN" to a LogLevel.
// Unknown names map to LevelInfo.
func ParseLevel(name string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch ParseLevel(string(level)) {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Component names used as the "component" field.
const (
	ComponentClient       = "news-client"
	ComponentPagination   = "pagination"
	ComponentRateLimit    = "ratelimit"
	ComponentSina         = "sina"
	ComponentAlphaVantage = "alphavantage"
	ComponentServer       = "server"
)

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Raw response bodies
//   - Per-page progress (items on page, running total)
//   - Drawn throttle delays
//
// Info: Normal operation events
//   - Request URLs
//   - Run start and summary (pages, items, stop reason)
//   - Server startup/shutdown
//
// Warn: Conditions that shorten a run but do not fail the caller
//   - Retry attempts
//   - Pages that could not be normalized
//   - Upstream blocks and breaker state changes
//   - Redis trouble (block tracking skipped)
//
// Error: Error conditions requiring attention
//   - Failed page fetches (run returns partial results)
//   - Items missing the projected field
//   - Configuration errors
//
// Context Fields:
//   - url: Request URL with credentials redacted
//   - feed: Feed name (zhibo, roll)
//   - page: Page number
//   - status: HTTP status code
//   - error_kind: transport, http, decode, malformed, blocked
//   - delay: Throttle or backoff delay
//   - items: Number of items collected
//   - stop: Why a run ended
