// Package logging configures structured logging with zerolog.
package logging

import (
	"fmt"
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

	// Pretty enables human-readable console output instead of JSON.
	Pretty bool

	// Service is attached to every line as the "service" field when set.
	Service string

	// Output is the writer logs go to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns JSON output at info level on stderr.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(toZerolog(normalize(cfg.Level)))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	ctx := zerolog.New(output).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	logger := ctx.Logger()

	log.Logger = logger
	return logger
}

// ParseLevel validates a level name. "warning" is accepted for warn.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// normalize maps unknown levels to info.
func normalize(level LogLevel) LogLevel {
	parsed, err := ParseLevel(string(level))
	if err != nil {
		return LevelInfo
	}
	return parsed
}

func toZerolog(level LogLevel) zerolog.Level {
	switch level {
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

// NewLogger creates a logger tagged with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: cache flow
//   - Cache hits (key, source, remaining validity)
//   - Retry scheduling and backoff
//   - Skipped fetches during an upstream cooldown
//
// Info: normal operation
//   - Live quotes cached
//   - Fetch succeeded after retry
//   - Server startup/shutdown
//
// Warn: degraded but serving
//   - Stale cache reuse and default fallbacks
//   - Exhausted retries
//   - Upstream rate limit cooldowns
//   - Rate limit store unavailable (fails open)
//
// Error: requires attention
//   - Invalid configuration
//   - Rate limit state could not be recorded
//   - HTTP server failures
//
// Context Fields:
//   - component: package emitting the line (resolver, retry, source, ratelimit, batch, http)
//   - key: cache key (pair key or ticker)
//   - error_class: client, server, rate_limit, network, malformed
//   - source: entry provenance (live, default)
//   - ttl: validity assigned to a written entry
//   - attempt: 1-indexed upstream attempt
