// Package config loads the server configuration from the environment and an
// optional .env file.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the server.
type Config struct {
	// Server settings
	Port string

	// RedisURL enables shared upstream block tracking when set.
	// Accepts host:port or a redis:// URL.
	RedisURL string

	// Logging
	LogLevel  string
	LogPretty bool

	// Upstream client
	UserAgent   string
	HTTPTimeout time.Duration
	ThrottleMin time.Duration
	ThrottleMax time.Duration
	MaxRetries  int

	// Alpha Vantage; the sentiment and movers routes are disabled without a key.
	AlphaVantageAPIKey string `json:"-"`
}

// Load reads configuration from environment variables and the .env file
// in the working directory, if present. Real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// LoadFile reads configuration from the given .env files and the environment.
func LoadFile(filenames ...string) (*Config, error) {
	if err := godotenv.Load(filenames...); err != nil {
		return nil, err
	}
	return FromEnv()
}

// FromEnv reads configuration from environment variables only.
func FromEnv() (*Config, error) {
	p := parser{}

	cfg := &Config{
		Port:               p.str("PORT", "8080"),
		RedisURL:           p.str("REDIS_URL", ""),
		LogLevel:           p.str("LOG_LEVEL", "info"),
		LogPretty:          p.boolean("LOG_PRETTY", false),
		UserAgent:          p.str("USER_AGENT", "finnews-client/0.1.0"),
		HTTPTimeout:        p.duration("HTTP_TIMEOUT", 60*time.Second),
		ThrottleMin:        p.duration("THROTTLE_MIN", 1*time.Second),
		ThrottleMax:        p.duration("THROTTLE_MAX", 5*time.Second),
		MaxRetries:         p.integer("MAX_RETRIES", 3),
		AlphaVantageAPIKey: p.str("ALPHAVANTAGE_API_KEY", ""),
	}
	if p.err != nil {
		return nil, p.err
	}

	return cfg, cfg.validate()
}

// validate checks value ranges.
func (c *Config) validate() error {
	if c.UserAgent == "" {
		return &ConfigError{Field: "USER_AGENT", Message: "must not be empty"}
	}
	if c.HTTPTimeout <= 0 {
		return &ConfigError{Field: "HTTP_TIMEOUT", Message: "must be positive"}
	}
	if c.ThrottleMin < 0 {
		return &ConfigError{Field: "THROTTLE_MIN", Message: "must not be negative"}
	}
	if c.ThrottleMax < c.ThrottleMin {
		return &ConfigError{Field: "THROTTLE_MAX", Message: "must not be below THROTTLE_MIN"}
	}
	if c.MaxRetries < 1 {
		return &ConfigError{Field: "MAX_RETRIES", Message: "must be at least 1"}
	}
	return nil
}

// parser reads typed values and keeps the first parse failure.
type parser struct {
	err error
}

func (p *parser) fail(key, value, want string) {
	if p.err == nil {
		p.err = &ConfigError{Field: key, Message: strconv.Quote(value) + " is not " + want}
	}
}

func (p *parser) str(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func (p *parser) integer(key string, fallback int) int {
	value := p.str(key, "")
	if value == "" {
		return fallback
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		p.fail(key, value, "an integer")
		return fallback
	}
	return i
}

func (p *parser) boolean(key string, fallback bool) bool {
	value := p.str(key, "")
	if value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		p.fail(key, value, "a boolean")
		return fallback
	}
	return b
}

// duration accepts Go durations ("90s", "1m") or whole seconds.
func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	value := p.str(key, "")
	if value == "" {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if i, err := strconv.Atoi(value); err == nil {
		return time.Duration(i) * time.Second
	}
	p.fail(key, value, "a duration")
	return fallback
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
