package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// minSecretLength is the shortest JWT_SECRET accepted outside development.
const minSecretLength = 32

// devSecret signs tokens when JWT_SECRET is unset in development.
const devSecret = "telecare-development-secret-do-not-use"

type Config struct {
	Port              string        `mapstructure:"PORT"`
	Env               string        `mapstructure:"ENV"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL          string        `mapstructure:"REDIS_URL"`
	RelayChannel      string        `mapstructure:"RELAY_CHANNEL"`
	JWTSecret         string        `mapstructure:"JWT_SECRET"`
	TokenTTL          time.Duration `mapstructure:"TOKEN_TTL"`
	CORSOrigins       []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS      float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst    int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout    time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LogLevel          string        `mapstructure:"LOG_LEVEL"`
	LogFile           string        `mapstructure:"LOG_FILE"`
	MigrationsDir     string        `mapstructure:"MIGRATIONS_DIR"`
	OTelEnabled       bool          `mapstructure:"OTEL_ENABLED"`
	OTelEndpoint      string        `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelSamplingRatio float64       `mapstructure:"OTEL_SAMPLING_RATIO"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"REDIS_URL", "RELAY_CHANNEL", "JWT_SECRET", "TOKEN_TTL", "CORS_ORIGINS",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT",
	"LOG_LEVEL", "LOG_FILE", "MIGRATIONS_DIR",
	"OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_SAMPLING_RATIO",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("RELAY_CHANNEL", "telecare:events")
	v.SetDefault("TOKEN_TTL", "24h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_SAMPLING_RATIO", 1.0)

	// Unmarshal only sees env vars that are bound.
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// .env is optional.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Env values arrive as one comma-separated string.
	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" && cfg.IsDev() {
		cfg.JWTSecret = devSecret
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate rejects configurations that are unsafe to serve with.
func (c *Config) Validate() error {
	switch c.Env {
	case "development", "staging", "production":
	default:
		return fmt.Errorf("ENV must be development, staging or production, got %q", c.Env)
	}
	if !c.IsDev() {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required when ENV=%s", c.Env)
		}
		if c.JWTSecret == devSecret {
			return fmt.Errorf("JWT_SECRET must not be the development default when ENV=%s", c.Env)
		}
		if len(c.JWTSecret) < minSecretLength {
			return fmt.Errorf("JWT_SECRET must be at least %d characters, got %d", minSecretLength, len(c.JWTSecret))
		}
	}
	if c.IsProduction() {
		for _, o := range c.CORSOrigins {
			if o == "*" {
				return fmt.Errorf("CORS_ORIGINS must list explicit origins in production")
			}
		}
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if c.OTelSamplingRatio < 0 || c.OTelSamplingRatio > 1 {
		return fmt.Errorf("OTEL_SAMPLING_RATIO must be within [0, 1], got %g", c.OTelSamplingRatio)
	}
	if c.OTelEnabled && c.OTelEndpoint == "" {
		return fmt.Errorf("OTEL_EXPORTER_OTLP_ENDPOINT is required when OTEL_ENABLED is true")
	}
	return nil
}
