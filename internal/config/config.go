package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr" validate:"required"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout" validate:"gt=0"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gt=0"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path" validate:"required"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret" validate:"required,min=16"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl" validate:"gt=0"`

	SuperModerator  string        `mapstructure:"super_moderator" yaml:"super_moderator" validate:"max=32"`
	RateLimit       int           `mapstructure:"rate_limit" yaml:"rate_limit" validate:"gt=0"`
	RateWindow      time.Duration `mapstructure:"rate_window" yaml:"rate_window" validate:"gt=0"`
	HistoryCapacity int           `mapstructure:"history_capacity" yaml:"history_capacity" validate:"gt=0,lte=1000"`

	CensoredWords           []string `mapstructure:"censored_words" yaml:"censored_words"`
	CensoredWordsFile       string   `mapstructure:"censored_words_file" yaml:"censored_words_file"`
	UseDefaultCensoredWords bool     `mapstructure:"use_default_censored_words" yaml:"use_default_censored_words"`
	CensorChar              string   `mapstructure:"censor_char" yaml:"censor_char" validate:"len=1"`

	MaxMessageBytes    int64 `mapstructure:"max_message_bytes" yaml:"max_message_bytes" validate:"gt=0"`
	MaxFramesPerMinute int   `mapstructure:"max_frames_per_minute" yaml:"max_frames_per_minute" validate:"gte=0"`

	BreakerFailureThreshold uint32        `mapstructure:"breaker_failure_threshold" yaml:"breaker_failure_threshold" validate:"gt=0"`
	BreakerTimeout          time.Duration `mapstructure:"breaker_timeout" yaml:"breaker_timeout" validate:"gt=0"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:                    ":8080",
		ReadHeaderTimeout:       5 * time.Second,
		ShutdownTimeout:         5 * time.Second,
		LogLevel:                "info",
		DatabasePath:            "chatroom.db",
		JWTSecret:               "change-me-in-production-please",
		JWTIssuer:               "chatroom",
		JWTAudience:             "chatroom-clients",
		JWTTTL:                  24 * time.Hour,
		SuperModerator:          "admin",
		RateLimit:               3,
		RateWindow:              60 * time.Second,
		HistoryCapacity:         25,
		UseDefaultCensoredWords: true,
		CensorChar:              "*",
		MaxMessageBytes:         8 << 10,
		MaxFramesPerMinute:      120,
		BreakerFailureThreshold: 5,
		BreakerTimeout:          10 * time.Second,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.SuperModerator != "" {
		c.SuperModerator = other.SuperModerator
	}
}

// CensorRune returns the mask rune for the profanity filter.
func (c *Config) CensorRune() rune {
	for _, r := range c.CensorChar {
		return r
	}
	return '*'
}

var validate = validator.New()

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
