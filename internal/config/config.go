// Package config handles application configuration loading from environment
// variables and optional .env files. It provides a centralized Config
// struct used by the server and the CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Upper bound for IMPORT_BATCH_SIZE, matching the importer's own cap.
const maxBatchSize = 5000

// Config holds all application configuration values loaded from the environment.
type Config struct {
	// Server settings
	Host string `env:"APP_HOST" envDefault:"0.0.0.0"`
	Port string `env:"APP_PORT" envDefault:"8080"`
	Env  string `env:"APP_ENV" envDefault:"development"` // "development", "production", "testing"

	// PostgreSQL connection
	DBHost     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	DBPort     string `env:"POSTGRES_PORT" envDefault:"5432"`
	DBUser     string `env:"POSTGRES_USER" envDefault:"catalog"`
	DBPassword string `env:"POSTGRES_PASSWORD" envDefault:"changeme"`
	DBName     string `env:"POSTGRES_DB" envDefault:"catalog"`

	// Connection pool
	DBMaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"25"`
	DBMaxIdleTime  time.Duration `env:"DB_MAX_IDLE_TIME" envDefault:"15m"`

	// Valkey (Redis-compatible cache). An empty host disables the tree cache.
	ValkeyHost     string        `env:"VALKEY_HOST" envDefault:"localhost"`
	ValkeyPort     string        `env:"VALKEY_PORT" envDefault:"6379"`
	ValkeyPassword string        `env:"VALKEY_PASSWORD"`
	TreeCacheTTL   time.Duration `env:"TREE_CACHE_TTL" envDefault:"10m"`

	// S3-compatible archive for import uploads and exports. Optional.
	S3Endpoint  string `env:"S3_ENDPOINT"`
	S3Region    string `env:"S3_REGION" envDefault:"us-east-1"`
	S3AccessKey string `env:"S3_ACCESS_KEY"`
	S3SecretKey string `env:"S3_SECRET_KEY"`
	S3Bucket    string `env:"S3_BUCKET" envDefault:"catalog-archive"`

	// Import engine
	ImportBatchSize     int           `env:"IMPORT_BATCH_SIZE" envDefault:"500"`
	ImportMaxErrors     int           `env:"IMPORT_MAX_ERRORS" envDefault:"1000"`
	ImportMaxUploadMB   int64         `env:"IMPORT_MAX_UPLOAD_MB" envDefault:"50"`
	ImportRateLimit     int           `env:"IMPORT_RATE_LIMIT" envDefault:"10"` // imports started per window per IP
	ImportRateWindow    time.Duration `env:"IMPORT_RATE_WINDOW" envDefault:"1m"`
	ImportMaxConcurrent int           `env:"IMPORT_MAX_CONCURRENT" envDefault:"2"` // imports streaming at once per IP
	CategoryLockTimeout time.Duration `env:"CATEGORY_LOCK_TIMEOUT" envDefault:"5s"`

	// HTTP surface
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173"`
	MetricsPath        string   `env:"METRICS_PATH" envDefault:"/metrics"`
}

// Load reads .env and .env.local when present, then the environment,
// applying defaults for development where appropriate. Variables already
// set in the environment win over the files. Returns an error if values
// are out of range or critical values are missing in production mode.
func Load() (*Config, error) {
	return load(".env", ".env.local")
}

func load(files ...string) (*Config, error) {
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) > 0 {
		if err := godotenv.Load(existing...); err != nil {
			return nil, fmt.Errorf("load env files: %w", err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ImportBatchSize < 1 || c.ImportBatchSize > maxBatchSize {
		return fmt.Errorf("IMPORT_BATCH_SIZE must be between 1 and %d", maxBatchSize)
	}
	if c.ImportMaxErrors < 1 {
		return errors.New("IMPORT_MAX_ERRORS must be positive")
	}
	if c.ImportMaxUploadMB < 1 {
		return errors.New("IMPORT_MAX_UPLOAD_MB must be positive")
	}
	if c.ImportRateLimit < 1 {
		return errors.New("IMPORT_RATE_LIMIT must be positive")
	}
	if c.ImportRateWindow <= 0 {
		return errors.New("IMPORT_RATE_WINDOW must be positive")
	}
	if c.ImportMaxConcurrent < 1 {
		return errors.New("IMPORT_MAX_CONCURRENT must be positive")
	}
	if c.CategoryLockTimeout <= 0 {
		return errors.New("CATEGORY_LOCK_TIMEOUT must be positive")
	}

	if c.Env == "production" {
		if c.DBPassword == "changeme" {
			return errors.New("POSTGRES_PASSWORD must be set in production")
		}
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName,
	)
}

// Addr returns the server listen address (host:port).
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// IsDev returns true if the application is running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// MaxUploadBytes returns the import upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.ImportMaxUploadMB << 20
}

// ArchiveEnabled reports whether S3 archiving is configured.
func (c *Config) ArchiveEnabled() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}
