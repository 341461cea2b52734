package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Database drivers supported by the ledger.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver             string
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	SQLitePath         string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Enabled reports whether an object store has been configured.
func (c MinIOConfig) Enabled() bool {
	return c.Endpoint != ""
}

// Validate reports the first missing setting of an enabled store.
func (c MinIOConfig) Validate() error {
	var missing string
	switch {
	case c.Endpoint == "":
		missing = "MINIO_ENDPOINT"
	case c.AccessKey == "":
		missing = "MINIO_ACCESS_KEY"
	case c.SecretKey == "":
		missing = "MINIO_SECRET_KEY"
	case c.Bucket == "":
		missing = "MINIO_BUCKET"
	default:
		return nil
	}
	return fmt.Errorf("archive store: %s is required", missing)
}

// LedgerConfig controls record defaults and the retry poller.
type LedgerConfig struct {
	DefaultMaxRetries int
	PollerEnabled     bool
	PollInterval      time.Duration
	BatchSize         int
	ExecutorTimeout   time.Duration
	ArchiveExpiry     time.Duration
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost  string
	Port     string
	TimeZone string
	Database DatabaseConfig
	MinIO    MinIOConfig
	Ledger   LedgerConfig
}

// Location resolves TimeZone, falling back to UTC.
func (c *AppConfig) Location() *time.Location {
	if c.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	return &AppConfig{
		AppHost:  getEnv("APP_HOST", "localhost:8080"),
		Port:     getEnv("PORT", "8080"),
		TimeZone: getEnv("APP_TIMEZONE", "UTC"),
		Database: DatabaseConfig{
			Driver:             getEnv("DB_DRIVER", DriverPostgres),
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			SQLitePath:         getEnv("DB_SQLITE_PATH", "data/ledger.db"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", ""),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		Ledger: LedgerConfig{
			DefaultMaxRetries: getEnvInt("LEDGER_DEFAULT_MAX_RETRIES", 3),
			PollerEnabled:     getEnvBool("LEDGER_POLLER_ENABLED", true),
			PollInterval:      getEnvDuration("LEDGER_POLL_INTERVAL", 30*time.Second),
			BatchSize:         getEnvInt("LEDGER_POLL_BATCH_SIZE", 50),
			ExecutorTimeout:   getEnvDuration("LEDGER_EXECUTOR_TIMEOUT", 15*time.Second),
			ArchiveExpiry:     getEnvDuration("LEDGER_ARCHIVE_URL_EXPIRY", 15*time.Minute),
		},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil && d > 0 {
			return d
		}
	}
	return def
}
