// Package server provides configuration helpers that define runtime defaults
// and validation for the GoChat relay.
package server

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"

	"github.com/Tyrowin/gochat/internal/auth"
)

var validate = validator.New()

// Config holds the relay settings. Values come from the environment (see
// LoadConfig) or from NewConfig for programmatic use.
type Config struct {
	Port              string        `env:"SERVER_PORT" envDefault:":8080" validate:"required"`
	AllowedOrigins    []string      `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:8080"`
	MaxMessageSize    int64         `env:"MAX_MESSAGE_SIZE" envDefault:"4096" validate:"gt=0"`
	SendBufferSize    int           `env:"SEND_BUFFER_SIZE" envDefault:"256" validate:"gt=0"`
	TokenSecret       string        `env:"TOKEN_SECRET" validate:"required,min=16"`
	TokenTTL          time.Duration `env:"TOKEN_TTL" envDefault:"1h" validate:"gt=0"`
	KeepaliveInterval time.Duration `env:"KEEPALIVE_INTERVAL" envDefault:"0s" validate:"gte=0"`
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s" validate:"gt=0"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s" validate:"gt=0"`
	LogLevel          string        `env:"LOG_LEVEL" envDefault:"INFO" validate:"oneof=DEBUG INFO WARN ERROR debug info warn error"`
	LogFormat         string        `env:"LOG_FORMAT" envDefault:"text" validate:"oneof=text json"`
}

// NewConfig creates a Config populated with default values. TokenSecret is
// left empty and must be set before Validate succeeds.
func NewConfig() *Config {
	return &Config{
		Port:            ":8080",
		AllowedOrigins:  []string{"http://localhost:8080"},
		MaxMessageSize:  4096,
		SendBufferSize:  256,
		TokenTTL:        auth.DefaultTTL,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        "INFO",
		LogFormat:       "text",
	}
}

// LoadConfig reads the configuration from environment variables and
// validates it.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
