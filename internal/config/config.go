package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds service configuration parsed from environment variables.
type Config struct {
	// HTTP server
	Addr              string        `env:"TENANTCORE_ADDR" envDefault:":8080"`
	ReadTimeout       time.Duration `env:"TENANTCORE_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout      time.Duration `env:"TENANTCORE_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout       time.Duration `env:"TENANTCORE_IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout   time.Duration `env:"TENANTCORE_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	MaxBodyBytes      int64         `env:"TENANTCORE_MAX_BODY_BYTES" envDefault:"1048576"`
	RateLimitPerSec   int           `env:"TENANTCORE_RATE_LIMIT_PER_SEC" envDefault:"20"`
	RateLimitBurst    int           `env:"TENANTCORE_RATE_LIMIT_BURST" envDefault:"40"`

	// Postgres
	PostgresDSN string `env:"TENANTCORE_PG_DSN"`

	// Session tokens
	AuthSecret string        `env:"TENANTCORE_AUTH_SECRET"`
	TokenTTL   time.Duration `env:"TENANTCORE_TOKEN_TTL" envDefault:"30m"`

	// Risk analysis defaults
	AnalysisPeriodDays int `env:"TENANTCORE_ANALYSIS_PERIOD_DAYS" envDefault:"30"`

	// Dev
	AllowInsecureDefaults bool `env:"TENANTCORE_ALLOW_INSECURE_DEFAULTS" envDefault:"false"`
}

// Load parses environment variables into a Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate rejects configuration that must not reach production.
func (c *Config) Validate() error {
	if c.AllowInsecureDefaults {
		return nil
	}
	if c.AuthSecret == "" {
		return fmt.Errorf("TENANTCORE_AUTH_SECRET is not set; set a strong secret or TENANTCORE_ALLOW_INSECURE_DEFAULTS=true for local dev")
	}
	if len(c.AuthSecret) < 32 {
		return fmt.Errorf("TENANTCORE_AUTH_SECRET is too short (%d chars); minimum 32 characters required", len(c.AuthSecret))
	}
	return nil
}
