// Package config loads process configuration from the environment, after an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	BackendHTTP     = "http"
	BackendPostgres = "postgres"
	BackendS3       = "s3"
)

type Config struct {
	DataDir         string `env:"YAMS_DATA_DIR" envDefault:"./data"`
	ListenAddr      string `env:"LISTEN_ADDR" envDefault:":5200"`
	CloudListenAddr string `env:"CLOUD_LISTEN_ADDR" envDefault:":5300"`
	OwnerID         string `env:"YAMS_OWNER_ID"`

	RemoteBackend    string `env:"REMOTE_BACKEND" envDefault:"http"`
	SyncServiceURL   string `env:"SYNC_SERVICE_URL"`
	GameServiceToken string `env:"GAME_SERVICE_TOKEN"`
	DatabaseURL      string `env:"DATABASE_URL"`

	CloudflareAccountID string `env:"CLOUDFLARE_ACCOUNT_ID"`
	R2AccessKeyID       string `env:"R2_ACCESS_KEY_ID"`
	R2AccessKeySecret   string `env:"R2_ACCESS_KEY_SECRET"`
	R2BucketName        string `env:"R2_BUCKET_NAME"`

	SyncInterval         time.Duration `env:"SYNC_INTERVAL" envDefault:"5m"`
	SyncRetryBaseDelay   time.Duration `env:"SYNC_RETRY_BASE_DELAY" envDefault:"1s"`
	SyncRetryMaxAttempts int           `env:"SYNC_RETRY_MAX_ATTEMPTS" envDefault:"3"`
	SyncPendingMaxAge    time.Duration `env:"SYNC_PENDING_MAX_AGE" envDefault:"24h"`
	SyncPurgeInterval    time.Duration `env:"SYNC_PURGE_INTERVAL" envDefault:"1h"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`
}

// Load reads .env (if present) and parses the environment into a Config.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}
	return Parse()
}

// Parse reads the current environment without touching .env.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	cfg.RemoteBackend = strings.ToLower(strings.TrimSpace(cfg.RemoteBackend))
	return cfg, nil
}

// LocalDBPath is the sqlite file holding the device's profiles and queue.
func (c Config) LocalDBPath() string {
	return filepath.Join(c.DataDir, "yams.db")
}

// Validate checks the settings the selected remote backend needs.
func (c Config) Validate() error {
	var errs []error
	switch c.RemoteBackend {
	case BackendHTTP:
		if c.SyncServiceURL == "" {
			errs = append(errs, errors.New("SYNC_SERVICE_URL environment variable not set"))
		}
		if c.GameServiceToken == "" {
			errs = append(errs, errors.New("GAME_SERVICE_TOKEN environment variable not set"))
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL environment variable not set"))
		}
	case BackendS3:
		if c.CloudflareAccountID == "" || c.R2AccessKeyID == "" || c.R2AccessKeySecret == "" || c.R2BucketName == "" {
			errs = append(errs, errors.New("missing R2 configuration in environment variables"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown REMOTE_BACKEND %q (want http, postgres or s3)", c.RemoteBackend))
	}
	if c.SyncInterval <= 0 {
		errs = append(errs, errors.New("SYNC_INTERVAL must be positive"))
	}
	if c.SyncRetryMaxAttempts < 1 {
		errs = append(errs, errors.New("SYNC_RETRY_MAX_ATTEMPTS must be at least 1"))
	}
	if c.SyncRetryBaseDelay < 0 {
		errs = append(errs, errors.New("SYNC_RETRY_BASE_DELAY must not be negative"))
	}
	return errors.Join(errs...)
}

// ValidateCloud checks what the cloud API server needs.
func (c Config) ValidateCloud() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL environment variable not set"))
	}
	if c.GameServiceToken == "" {
		errs = append(errs, errors.New("GAME_SERVICE_TOKEN environment variable not set"))
	}
	return errors.Join(errs...)
}
