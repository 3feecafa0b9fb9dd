// Package config loads service settings from the environment.
//
// Values come from the process environment first; `.env` and `.env.local`
// in the working directory fill in anything unset. Every field has a
// default, so an empty environment yields a runnable service bound to
// 0.0.0.0:5000.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr     string `env:"APP_ADDR" env-default:"0.0.0.0:5000" env-description:"listen address"`
	LogLevel string `env:"LOG_LEVEL" env-default:"info" env-description:"debug, info, warn or error"`

	HTTPServer HTTPServer
	RateLimit  RateLimit
	Security   Security
}

type HTTPServer struct {
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" env-default:"5s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" env-default:"10s"`
	IdleTimeout  time.Duration `env:"IDLE_TIMEOUT" env-default:"60s"`
	MaxBodyBytes int64         `env:"MAX_BODY_BYTES" env-default:"1048576"`
}

type RateLimit struct {
	PerMinute int  `env:"RATE_LIMIT_PER_MINUTE" env-default:"10" env-description:"list/create requests per client per minute"`
	TrustXFF  bool `env:"RATE_LIMIT_TRUST_XFF" env-default:"false"`
	// StatsRedisAddr switches limiter stats from memory to Redis when set.
	StatsRedisAddr string `env:"RATE_LIMIT_STATS_REDIS_ADDR"`
}

type Security struct {
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" env-separator:","`
	EnableHSTS         bool     `env:"ENABLE_HSTS" env-default:"false"`
}

// Load reads the configuration and checks it.
func Load() (*Config, error) {
	loadEnvFiles()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadEnvFiles() {
	// godotenv never overrides variables already set by the runtime.
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")
}

func (c *Config) validate() error {
	var errs []error
	if c.RateLimit.PerMinute < 1 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive, got %d", c.RateLimit.PerMinute))
	}
	if c.HTTPServer.MaxBodyBytes < 1 {
		errs = append(errs, fmt.Errorf("MAX_BODY_BYTES must be positive, got %d", c.HTTPServer.MaxBodyBytes))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return level, nil
}

// Usage describes every supported variable.
func Usage() string {
	var cfg Config
	text, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return ""
	}
	return text
}
