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

	// Cache (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// Identity provider
	IdentityAPIURL    string `env:"IDENTITY_API_URL" envDefault:"https://api.clerk.com/v1"`
	IdentityAPISecret string `env:"IDENTITY_API_SECRET,required"`
	IdentityJWTSecret string `env:"IDENTITY_JWT_SECRET,required"`

	// Text completion vendor (OpenAI-compatible endpoint)
	CompletionAPIURL string `env:"COMPLETION_API_URL" envDefault:"https://generativelanguage.googleapis.com/v1beta/openai"`
	CompletionAPIKey string `env:"COMPLETION_API_KEY,required"`
	CompletionModel  string `env:"COMPLETION_MODEL" envDefault:"gemini-2.0-flash"`

	// Image synthesis vendor
	ImageAPIURL string `env:"IMAGE_API_URL" envDefault:"https://clipdrop-api.co/text-to-image/v1"`
	ImageAPIKey string `env:"IMAGE_API_KEY,required"`

	// Media host (Cloudinary-compatible)
	MediaCloudName string `env:"MEDIA_CLOUD_NAME,required"`
	MediaAPIKey    string `env:"MEDIA_API_KEY,required"`
	MediaAPISecret string `env:"MEDIA_API_SECRET,required"`
	MediaBaseURL   string `env:"MEDIA_BASE_URL" envDefault:"https://api.cloudinary.com/v1_1"`

	// Free tier quota (counter-gated requests per user)
	FreeUsageLimit int `env:"FREE_USAGE_LIMIT" envDefault:"10"`

	// Upload limits in bytes
	MaxUploadSize int64 `env:"MAX_UPLOAD_SIZE" envDefault:"10485760"`
	MaxResumeSize int64 `env:"MAX_RESUME_SIZE" envDefault:"5242880"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "https://example.com,https://app.example.com")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Request body size limit for JSON endpoints in bytes (default 1MB)
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
