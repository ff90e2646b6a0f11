// Package appconfig loads process configuration from the environment:
// os.Getenv plus github.com/joho/godotenv for local .env files.
package appconfig

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// StoreBackend selects which jobstore/connstore implementation to wire up.
type StoreBackend string

const (
	BackendFile     StoreBackend = "file"
	BackendPostgres StoreBackend = "postgres"
)

// Config is every environment-derived setting the scheduler process needs.
type Config struct {
	// Store backend selection.
	StoreBackend StoreBackend
	DataDir      string // file-backend JSON store location

	// Postgres connection.
	DBDriver                 string
	DBServer                 string
	DBPort                   int
	DBDatabase               string
	DBUsername               string
	DBPassword               string
	DBTrustedConnection      bool
	DBConnectionTimeout      int
	DBCommandTimeout         int
	DBEncrypt                bool
	DBTrustServerCertificate bool
	DBMaxOpenConns           int
	DBMaxIdleConns           int

	// API session signing / bearer auth.
	SecretKey string
	APIToken  string

	// Scheduler tuning.
	WorkerPoolSize    int
	MisfireGrace      time.Duration
	HeartbeatInterval time.Duration
	SweepInterval     time.Duration
	RetentionDays     int

	// HTTP listen address.
	ListenAddr string

	// Encryption key for connstore passwords at rest (internal/crypto).
	ConnectionEncryptionKey string
}

// Load reads .env (if present, non-fatal if absent) then builds Config from
// the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		StoreBackend: StoreBackend(getEnvDefault("STORE_BACKEND", string(BackendFile))),
		DataDir:      getEnvDefault("DATA_DIR", "./data"),

		DBDriver:                 getEnvDefault("DB_DRIVER", "postgres"),
		DBServer:                 os.Getenv("DB_SERVER"),
		DBPort:                   getEnvIntDefault("DB_PORT", 5432),
		DBDatabase:               os.Getenv("DB_DATABASE"),
		DBUsername:               os.Getenv("DB_USERNAME"),
		DBPassword:               os.Getenv("DB_PASSWORD"),
		DBTrustedConnection:      getEnvBoolDefault("DB_TRUSTED_CONNECTION", false),
		DBConnectionTimeout:      getEnvIntDefault("DB_CONNECTION_TIMEOUT", 30),
		DBCommandTimeout:         getEnvIntDefault("DB_COMMAND_TIMEOUT", 30),
		DBEncrypt:                getEnvBoolDefault("DB_ENCRYPT", true),
		DBTrustServerCertificate: getEnvBoolDefault("DB_TRUST_SERVER_CERTIFICATE", false),
		DBMaxOpenConns:           getEnvIntDefault("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:           getEnvIntDefault("DB_MAX_IDLE_CONNS", 10),

		SecretKey: os.Getenv("SECRET_KEY"),
		APIToken:  os.Getenv("API_TOKEN"),

		WorkerPoolSize:    getEnvIntDefault("WORKER_POOL_SIZE", 10),
		MisfireGrace:      getEnvDurationDefault("MISFIRE_GRACE_SECONDS", 30*time.Second),
		HeartbeatInterval: getEnvDurationDefault("HEARTBEAT_INTERVAL_SECONDS", 30*time.Second),
		SweepInterval:     getEnvDurationDefault("SWEEP_INTERVAL_SECONDS", 10*time.Second),
		RetentionDays:     getEnvIntDefault("RETENTION_DAYS", 0),

		ListenAddr: getEnvDefault("LISTEN_ADDR", ":8080"),

		ConnectionEncryptionKey: os.Getenv("CONNECTION_ENCRYPTION_KEY"),
	}

	if cfg.StoreBackend != BackendFile && cfg.StoreBackend != BackendPostgres {
		return nil, fmt.Errorf("invalid STORE_BACKEND %q: must be %q or %q", cfg.StoreBackend, BackendFile, BackendPostgres)
	}
	return cfg, nil
}

// DSN renders the Postgres connection string from the DB_* fields,
// mirroring connstore.BuildDSN's sslmode-from-Encrypt convention.
func (c *Config) DSN() string {
	sslmode := "disable"
	if c.DBEncrypt {
		if c.DBTrustServerCertificate {
			sslmode = "require"
		} else {
			sslmode = "verify-full"
		}
	}
	cred := c.DBUsername
	if c.DBPassword != "" {
		cred += ":" + c.DBPassword
	}
	at := ""
	if cred != "" {
		at = cred + "@"
	}
	return fmt.Sprintf("postgres://%s%s:%d/%s?sslmode=%s&connect_timeout=%d",
		at, c.DBServer, c.DBPort, c.DBDatabase, sslmode, c.DBConnectionTimeout)
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvDurationDefault(key string, def time.Duration) time.Duration {
	n := getEnvIntDefault(key, -1)
	if n < 0 {
		return def
	}
	return time.Duration(n) * time.Second
}
