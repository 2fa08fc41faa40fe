// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Storage backends.
const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`

	// Cache (Redis)
	RedisURL          string `env:"REDIS_URL,required"`
	RedisPoolSize     int    `env:"REDIS_POOL_SIZE" envDefault:"10"`
	RedisMinIdleConns int    `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`

	// Public origin used for temp_url and media URLs, e.g. https://img.example.com.
	// Empty means derive it from each request.
	PublicBaseURL string `env:"PUBLIC_BASE_URL"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts. Uploads need more room than the usual API call.
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Rate limiting
	RateLimitUserEnabled   bool `env:"RATE_LIMIT_USER_ENABLED" envDefault:"true"`
	RateLimitRedeemEnabled bool `env:"RATE_LIMIT_REDEEM_ENABLED" envDefault:"true"`
	RateLimitRedeemRPS     int  `env:"RATE_LIMIT_REDEEM_RPS" envDefault:"20"`
	RateLimitRedeemBurst   int  `env:"RATE_LIMIT_REDEEM_BURST" envDefault:"40"`

	// Comma-separated list of allowed origins (e.g., "https://example.com,https://app.example.com")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Upload size limit in bytes (default 10MB)
	MaxUploadSize int64 `env:"MAX_UPLOAD_SIZE" envDefault:"10485760"`

	// Blob storage
	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"local"`
	MediaRoot      string `env:"MEDIA_ROOT" envDefault:"./media"`
	S3             S3Config

	// Temporary links, in seconds
	LinkMinSeconds     int `env:"LINK_MIN_SECONDS" envDefault:"300"`
	LinkMaxSeconds     int `env:"LINK_MAX_SECONDS" envDefault:"30000"`
	LinkDefaultSeconds int `env:"LINK_DEFAULT_SECONDS" envDefault:"300"`

	// Source images above this many pixels are not thumbnailed. Zero uses the imaging default.
	MaxImagePixels int64 `env:"MAX_IMAGE_PIXELS" envDefault:"50000000"`
}

// S3Config holds S3-compatible storage settings.
type S3Config struct {
	Bucket        string        `env:"S3_BUCKET"`
	Region        string        `env:"S3_REGION" envDefault:"us-east-1"`
	Endpoint      string        `env:"S3_ENDPOINT"`
	AccessKey     string        `env:"S3_ACCESS_KEY"`
	SecretKey     string        `env:"S3_SECRET_KEY"`
	PresignExpiry time.Duration `env:"S3_PRESIGN_EXPIRY" envDefault:"0s"`
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

// Validate checks settings that env tags cannot express.
func (c *Config) Validate() error {
	var errs []error

	switch c.StorageBackend {
	case StorageLocal:
		if c.MediaRoot == "" {
			errs = append(errs, errors.New("MEDIA_ROOT is required for local storage"))
		}
	case StorageS3:
		if c.S3.Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required for s3 storage"))
		}
		if (c.S3.AccessKey == "") != (c.S3.SecretKey == "") {
			errs = append(errs, errors.New("S3_ACCESS_KEY and S3_SECRET_KEY must be set together"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORAGE_BACKEND must be %q or %q, got %q", StorageLocal, StorageS3, c.StorageBackend))
	}

	if c.LinkMinSeconds <= 0 || c.LinkMinSeconds > c.LinkMaxSeconds {
		errs = append(errs, fmt.Errorf("LINK_MIN_SECONDS must be positive and at most LINK_MAX_SECONDS"))
	}
	if c.LinkDefaultSeconds < c.LinkMinSeconds || c.LinkDefaultSeconds > c.LinkMaxSeconds {
		errs = append(errs, fmt.Errorf("LINK_DEFAULT_SECONDS must lie within [%d, %d]", c.LinkMinSeconds, c.LinkMaxSeconds))
	}
	if c.MaxUploadSize <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_SIZE must be positive"))
	}
	if c.PublicBaseURL != "" && !strings.HasPrefix(c.PublicBaseURL, "http://") && !strings.HasPrefix(c.PublicBaseURL, "https://") {
		errs = append(errs, errors.New("PUBLIC_BASE_URL must start with http:// or https://"))
	}

	return errors.Join(errs...)
}

// Load parses environment variables and returns a validated Config.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
