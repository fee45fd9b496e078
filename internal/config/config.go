package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/AniketSaini0/task-manager/pkg/config"
	"github.com/AniketSaini0/task-manager/pkg/database"
)

const defaultSecret = "change-this-to-a-secure-secret"

// Config holds all configuration for the task manager server.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"HTTP_PORT" envDefault:"8000"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"taskmanager"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"taskmanager_secret"`
	PostgresDB   string `env:"POSTGRES_DB" envDefault:"taskmanager"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Redis
	RedisHost string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPass string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Tokens. Access and refresh tokens are signed with distinct secrets so a
	// refresh token can never pass access-token verification or vice versa.
	AccessTokenSecret  string        `env:"ACCESS_TOKEN_SECRET" envDefault:"change-this-to-a-secure-secret"`
	RefreshTokenSecret string        `env:"REFRESH_TOKEN_SECRET" envDefault:"change-this-to-a-secure-secret-2"`
	AccessTokenExpiry  time.Duration `env:"ACCESS_TOKEN_EXPIRY" envDefault:"15m"`
	RefreshTokenExpiry time.Duration `env:"REFRESH_TOKEN_EXPIRY" envDefault:"168h"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:5173" envSeparator:","`

	// Tracing
	TracingEnabled  bool    `env:"TRACING_ENABLED" envDefault:"false"`
	OTLPEndpoint    string  `env:"OTLP_ENDPOINT" envDefault:"localhost:4318"`
	TraceSampleRate float64 `env:"TRACE_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.HTTPPort < 1 || cfg.HTTPPort > 65535 {
		return nil, fmt.Errorf("invalid HTTP port: %d", cfg.HTTPPort)
	}

	if cfg.AccessTokenSecret == cfg.RefreshTokenSecret {
		return nil, fmt.Errorf("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ")
	}

	// A refresh token that outlives its access token is the whole point of
	// the rotation scheme.
	if cfg.RefreshTokenExpiry <= cfg.AccessTokenExpiry {
		return nil, fmt.Errorf("REFRESH_TOKEN_EXPIRY (%s) must exceed ACCESS_TOKEN_EXPIRY (%s)",
			cfg.RefreshTokenExpiry, cfg.AccessTokenExpiry)
	}

	// In non-development environments, require explicitly set, strong secrets.
	if cfg.Environment != "development" {
		for name, secret := range map[string]string{
			"ACCESS_TOKEN_SECRET":  cfg.AccessTokenSecret,
			"REFRESH_TOKEN_SECRET": cfg.RefreshTokenSecret,
		} {
			if secret == defaultSecret || secret == defaultSecret+"-2" {
				return nil, fmt.Errorf("%s must be explicitly set via environment variable in %q mode", name, cfg.Environment)
			}
			if len(secret) < 32 {
				return nil, fmt.Errorf("%s must be at least 32 characters long, got %d", name, len(secret))
			}
		}
	}

	return cfg, nil
}

// PostgresConfig returns the database pool configuration.
func (c *Config) PostgresConfig() database.PostgresConfig {
	pg := database.DefaultPostgresConfig()
	pg.Host = c.PostgresHost
	pg.Port = c.PostgresPort
	pg.User = c.PostgresUser
	pg.Password = c.PostgresPass
	pg.DBName = c.PostgresDB
	pg.SSLMode = c.PostgresSSL
	return pg
}

// RedisConfig returns the cache client configuration.
func (c *Config) RedisConfig() database.RedisConfig {
	return database.RedisConfig{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPass,
		DB:       c.RedisDB,
	}
}
