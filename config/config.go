// Package config loads process configuration from the environment, with
// optional .env files for local development.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type DatabaseOptions struct {
	Name     string `env:"DB_NAME" envDefault:"opsconsole"`
	Host     string `env:"DB_HOST" envDefault:"db"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=%s TimeZone=UTC",
		d.Host, d.Port, d.User, d.Name, d.Password, d.SSLMode,
	)
}

type Config struct {
	Database DatabaseOptions

	Port        string `env:"PORT" envDefault:"8080"`
	Environment string `env:"GO_APP_ENV" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Fiber default BodyLimit is 4 MiB.
	BodyLimitMB    int    `env:"BODY_LIMIT_MB" envDefault:"4"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS" envDefault:"*"`

	RateLimitMax    int           `env:"RATE_LIMIT_MAX" envDefault:"60"`
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"60s"`

	// JWT_SECRET_KEY wins over JWT_SECRET.
	JWTSecretKey    string `env:"JWT_SECRET_KEY"`
	LegacyJWTSecret string `env:"JWT_SECRET"`

	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`

	RedisURL      string `env:"REDIS_URL"`
	NotifyChannel string `env:"NOTIFY_CHANNEL" envDefault:"workflow.events"`

	MetricsPath string `env:"METRICS_PATH" envDefault:"/metrics"`
}

// Load reads .env and .env.local when present, then the environment.
func Load() (*Config, error) {
	if err := loadEnvFiles(".env", ".env.local"); err != nil {
		return nil, err
	}
	return Parse()
}

// Parse reads the environment only.
func Parse() (*Config, error) {
	c := &Config{}
	if err := env.Parse(c); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func loadEnvFiles(files ...string) error {
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load %s: %w", strings.Join(existing, ", "), err)
	}
	return nil
}

func (c *Config) Validate() error {
	if c.JWTSecret() == "" {
		return fmt.Errorf("JWT secret not configured (set JWT_SECRET_KEY or JWT_SECRET)")
	}
	if c.StoreDriver != StoreMemory && c.StoreDriver != StorePostgres {
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreMemory, StorePostgres, c.StoreDriver)
	}
	if c.BodyLimitMB <= 0 {
		return fmt.Errorf("BODY_LIMIT_MB must be positive, got %d", c.BodyLimitMB)
	}
	if c.RateLimitMax <= 0 {
		return fmt.Errorf("RATE_LIMIT_MAX must be positive, got %d", c.RateLimitMax)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return nil
}

// JWTSecret returns the configured signing secret.
func (c *Config) JWTSecret() string {
	if s := strings.TrimSpace(c.JWTSecretKey); s != "" {
		return s
	}
	return strings.TrimSpace(c.LegacyJWTSecret)
}

func (c *Config) BodyLimitBytes() int { return c.BodyLimitMB * 1024 * 1024 }

func (c *Config) Production() bool { return c.Environment == "production" }

// Logger builds the process logger.
func (c *Config) Logger() *logrus.Logger {
	l := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)
	if c.Production() {
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	return l
}
