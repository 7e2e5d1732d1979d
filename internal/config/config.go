// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Cache (Redis). The same client backs HotCache, the RateLimiter
	// counters, and the ClickTracker's Redis Streams publisher/worker,
	// so pool sizing needs to be well above what a cache-only client
	// would want.
	RedisURL          string `env:"REDIS_URL,required"`
	RedisPoolSize     int    `env:"REDIS_POOL_SIZE" envDefault:"20"`
	RedisMinIdleConns int    `env:"REDIS_MIN_IDLE_CONNS" envDefault:"5"`

	// AppBaseURL is used to construct the returned short URL and QR payload.
	AppBaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Redirect-path rate limiting (fixed window, per client IP).
	RateLimitEnabled       bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitWindowSeconds int  `env:"RATE_LIMIT_WINDOW_SECONDS" envDefault:"60"`
	RateLimitMaxRequests   int  `env:"RATE_LIMIT_MAX_REQUESTS" envDefault:"100"`

	// HotCache TTL, in hours.
	HotCacheTTLHours int `env:"HOTCACHE_TTL_HOURS" envDefault:"24"`

	// AnnotationStore TTL, in days.
	AnnotationTTLDays int `env:"ANNOTATION_TTL_DAYS" envDefault:"7"`

	// LLM enrichment.
	LLMBaseURL string `env:"LLM_BASE_URL" envDefault:"http://localhost:11434"`
	LLMModel   string `env:"LLM_MODEL" envDefault:"llama3"`

	// Metadata fetch.
	MetadataFetchTimeoutSeconds int   `env:"METADATA_FETCH_TIMEOUT_SECONDS" envDefault:"10"`
	MetadataMaxBodyBytes        int64 `env:"METADATA_MAX_BODY_BYTES" envDefault:"1048576"`

	// GeoIP lookup provider base URL.
	GeoIPBaseURL string `env:"GEOIP_BASE_URL" envDefault:"http://localhost:8081"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "https://example.com,https://app.example.com")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Request body size limit in bytes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// Load parses environment variables and returns a Config.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// RateLimitWindow returns the rate-limit window as a time.Duration.
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

// HotCacheTTL returns the HotCache TTL as a time.Duration.
func (c *Config) HotCacheTTL() time.Duration {
	return time.Duration(c.HotCacheTTLHours) * time.Hour
}

// AnnotationTTL returns the AnnotationStore TTL as a time.Duration.
func (c *Config) AnnotationTTL() time.Duration {
	return time.Duration(c.AnnotationTTLDays) * 24 * time.Hour
}

// MetadataFetchTimeout returns the metadata fetch timeout as a time.Duration.
func (c *Config) MetadataFetchTimeout() time.Duration {
	return time.Duration(c.MetadataFetchTimeoutSeconds) * time.Second
}

