// Package config loads the quote proxy configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/quote-cache/pkg/batch"
	"github.com/Sternrassler/quote-cache/pkg/cache"
	"github.com/Sternrassler/quote-cache/pkg/logging"
	"github.com/Sternrassler/quote-cache/pkg/ratelimit"
	"github.com/Sternrassler/quote-cache/pkg/retry"
	"github.com/Sternrassler/quote-cache/pkg/source"
	"github.com/redis/go-redis/v9"
)

// Config is the process configuration.
type Config struct {
	Port string

	// RedisURL is either host:port or a redis:// URL. Empty keeps rate
	// limit state in process memory.
	RedisURL string

	LogLevel  logging.LogLevel
	LogPretty bool

	UpstreamBaseURL string
	UpstreamTimeout time.Duration
	UserAgent       string

	Retry             retry.Config
	Policy            cache.Policy
	RateLimitCooldown time.Duration

	BatchMaxConcurrency int
}

// Default returns the configuration used when no variables are set.
func Default() Config {
	return Config{
		Port:                "8080",
		LogLevel:            logging.LevelInfo,
		UpstreamBaseURL:     source.DefaultYahooBaseURL,
		UpstreamTimeout:     source.DefaultTimeout,
		UserAgent:           source.DefaultUserAgent,
		Retry:               retry.DefaultConfig(),
		Policy:              cache.DefaultPolicy(),
		RateLimitCooldown:   ratelimit.DefaultCooldown,
		BatchMaxConcurrency: batch.DefaultMaxConcurrency,
	}
}

// Load reads the environment on top of Default and validates the result.
func Load() (Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom is Load with a custom variable lookup.
func LoadFrom(getenv func(string) string) (Config, error) {
	cfg := Default()
	l := loader{getenv: getenv}

	cfg.Port = l.str("PORT", cfg.Port)
	cfg.RedisURL = l.str("REDIS_URL", cfg.RedisURL)
	cfg.LogLevel = l.level("LOG_LEVEL", cfg.LogLevel)
	cfg.LogPretty = l.boolean("LOG_PRETTY", cfg.LogPretty)

	cfg.UpstreamBaseURL = l.str("UPSTREAM_BASE_URL", cfg.UpstreamBaseURL)
	cfg.UpstreamTimeout = l.duration("UPSTREAM_TIMEOUT", cfg.UpstreamTimeout)
	cfg.UserAgent = l.str("USER_AGENT", cfg.UserAgent)

	cfg.Retry.MaxAttempts = l.integer("RETRY_MAX_ATTEMPTS", cfg.Retry.MaxAttempts)
	cfg.Retry.BaseDelay = l.duration("RETRY_BASE_DELAY", cfg.Retry.BaseDelay)

	cfg.Policy.Success = l.duration("TTL_SUCCESS", cfg.Policy.Success)
	cfg.Policy.Failure = l.duration("TTL_FAILURE", cfg.Policy.Failure)
	cfg.Policy.RateLimited = l.duration("TTL_RATE_LIMITED", cfg.Policy.RateLimited)
	cfg.RateLimitCooldown = l.duration("RATE_LIMIT_COOLDOWN", cfg.RateLimitCooldown)

	cfg.BatchMaxConcurrency = l.integer("BATCH_MAX_CONCURRENCY", cfg.BatchMaxConcurrency)

	if err := errors.Join(l.errs...); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var errs []error

	if c.Port == "" {
		errs = append(errs, fmt.Errorf("PORT must not be empty"))
	}
	if c.UpstreamBaseURL == "" {
		errs = append(errs, fmt.Errorf("UPSTREAM_BASE_URL must not be empty"))
	}
	if c.UpstreamTimeout <= 0 {
		errs = append(errs, fmt.Errorf("UPSTREAM_TIMEOUT must be > 0 (got %s)", c.UpstreamTimeout))
	}
	if err := c.Retry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("retry: %w", err))
	}
	if err := c.Policy.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("ttl: %w", err))
	}
	if c.RateLimitCooldown <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_COOLDOWN must be > 0 (got %s)", c.RateLimitCooldown))
	}
	if c.BatchMaxConcurrency < 1 {
		errs = append(errs, fmt.Errorf("BATCH_MAX_CONCURRENCY must be >= 1 (got %d)", c.BatchMaxConcurrency))
	}
	if c.RedisURL != "" {
		if _, err := c.RedisOptions(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// RedisOptions converts RedisURL into client options. A bare host:port is
// used as the address.
func (c Config) RedisOptions() (*redis.Options, error) {
	if c.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is not set")
	}
	if strings.HasPrefix(c.RedisURL, "redis://") || strings.HasPrefix(c.RedisURL, "rediss://") {
		opts, err := redis.ParseURL(c.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("REDIS_URL: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{Addr: c.RedisURL}, nil
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return ":" + c.Port
}

type loader struct {
	getenv func(string) string
	errs   []error
}

func (l *loader) str(key, def string) string {
	if v := strings.TrimSpace(l.getenv(key)); v != "" {
		return v
	}
	return def
}

func (l *loader) integer(key string, def int) int {
	v := l.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return def
	}
	return n
}

func (l *loader) boolean(key string, def bool) bool {
	v := l.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("%s: invalid boolean %q", key, v))
		return def
	}
	return b
}

func (l *loader) duration(key string, def time.Duration) time.Duration {
	v := l.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return def
	}
	return d
}

func (l *loader) level(key string, def logging.LogLevel) logging.LogLevel {
	v := l.str(key, "")
	if v == "" {
		return def
	}
	lvl, err := logging.ParseLevel(v)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return lvl
}
