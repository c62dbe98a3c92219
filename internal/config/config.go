package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port               string        `mapstructure:"PORT"`
	MetricsPort        string        `mapstructure:"METRICS_PORT"`
	Env                string        `mapstructure:"ENV"`
	DatabaseURL        string        `mapstructure:"DATABASE_URL"`
	DBMaxConns         int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns         int32         `mapstructure:"DB_MIN_CONNS"`
	DefaultTenant      string        `mapstructure:"DEFAULT_TENANT"`
	CORSOrigins        []string      `mapstructure:"CORS_ORIGINS"`
	AuthIssuer         string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience       string        `mapstructure:"AUTH_AUDIENCE"`
	AuthJWKSURL        string        `mapstructure:"AUTH_JWKS_URL"`
	AuthSigningKey     string        `mapstructure:"AUTH_SIGNING_KEY"`
	SignupHookSecret   string        `mapstructure:"SIGNUP_HOOK_SECRET"`
	RateLimitRPS       float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst     int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout     time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	KafkaBrokers       []string      `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic         string        `mapstructure:"KAFKA_TOPIC"`
	MaxResolveDays     int           `mapstructure:"MAX_RESOLVE_DAYS"`
	DefaultSlotMinutes int           `mapstructure:"DEFAULT_SLOT_MINUTES"`
	MigrationsDir      string        `mapstructure:"MIGRATIONS_DIR"`
	BodyLimit          string        `mapstructure:"BODY_LIMIT"`
	PracticeTimezone   string        `mapstructure:"PRACTICE_TIMEZONE"`
}

var keys = []string{
	"PORT", "METRICS_PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"DEFAULT_TENANT", "CORS_ORIGINS", "AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_JWKS_URL",
	"AUTH_SIGNING_KEY", "SIGNUP_HOOK_SECRET", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"REQUEST_TIMEOUT", "KAFKA_BROKERS", "KAFKA_TOPIC", "MAX_RESOLVE_DAYS",
	"DEFAULT_SLOT_MINUTES", "MIGRATIONS_DIR", "BODY_LIMIT",
	"PRACTICE_TIMEZONE",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DEFAULT_TENANT", "default")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("KAFKA_TOPIC", "telecare.events")
	v.SetDefault("MAX_RESOLVE_DAYS", 62)
	v.SetDefault("DEFAULT_SLOT_MINUTES", 30)
	v.SetDefault("MIGRATIONS_DIR", "./migrations")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("PRACTICE_TIMEZONE", "UTC")

	// Unmarshal only sees env vars that are bound.
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// A missing .env file is fine.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(cfg.CORSOrigins, v.GetString("CORS_ORIGINS"))
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers, v.GetString("KAFKA_BROKERS"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

// splitList normalizes list settings, which arrive either decoded by viper
// or as a raw comma-separated string.
func splitList(decoded []string, raw string) []string {
	if len(decoded) > 0 {
		raw = strings.Join(decoded, ",")
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
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

// Validate refuses configurations that would run production without real
// token verification, or that would break slot resolution.
func (c *Config) Validate() error {
	if c.IsProduction() {
		if c.AuthIssuer == "" {
			return fmt.Errorf("AUTH_ISSUER must be set in production (current ENV=%q)", c.Env)
		}
		if c.AuthSigningKey != "" {
			return fmt.Errorf("AUTH_SIGNING_KEY is for local testing only and must not be set in production")
		}
		if c.SignupHookSecret == "" {
			return fmt.Errorf("SIGNUP_HOOK_SECRET is required in production")
		}
	}
	if !c.IsDev() && c.AuthJWKSURL == "" && c.AuthSigningKey == "" {
		return fmt.Errorf("one of AUTH_JWKS_URL or AUTH_SIGNING_KEY is required when ENV=%q", c.Env)
	}
	if c.DefaultSlotMinutes <= 0 {
		return fmt.Errorf("DEFAULT_SLOT_MINUTES must be positive, got %d", c.DefaultSlotMinutes)
	}
	if c.MaxResolveDays <= 0 {
		return fmt.Errorf("MAX_RESOLVE_DAYS must be positive, got %d", c.MaxResolveDays)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must not be negative, got %s", c.RequestTimeout)
	}
	if _, err := time.LoadLocation(c.PracticeTimezone); err != nil {
		return fmt.Errorf("PRACTICE_TIMEZONE %q: %w", c.PracticeTimezone, err)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}

// Location is the practice time zone that schedule wall-clock times are in.
// It falls back to UTC for a zone Validate would reject.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.PracticeTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
