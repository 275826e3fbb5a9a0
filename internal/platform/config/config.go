// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store backends accepted by LEDGER_STORE.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Duplicate matching modes accepted by LEDGER_DUPLICATE_MATCH_MODE.
const (
	MatchSubstring = "substring"
	MatchToken     = "token"
)

// Config is the full service configuration.
type Config struct {
	Server   Server
	Ledger   Ledger
	Redis    RedisConfig
	Kafka    KafkaConfig
	Outbox   OutboxConfig
	Database DatabaseConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr     string `env:"SANAD_ADDR" envDefault:":8080"`
	Env      string `env:"SANAD_ENV" envDefault:"development"`
	LogLevel string `env:"SANAD_LOG_LEVEL" envDefault:"info"`

	ReadTimeout  time.Duration `env:"SANAD_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout time.Duration `env:"SANAD_WRITE_TIMEOUT" envDefault:"30s"`
}

// Ledger configures the certificate ledger and its storage engine.
type Ledger struct {
	Store              string        `env:"LEDGER_STORE" envDefault:"sqlite"`
	SQLitePath         string        `env:"LEDGER_SQLITE_PATH" envDefault:"insurance_system.db"`
	SQLiteBusyTimeout  time.Duration `env:"LEDGER_SQLITE_BUSY_TIMEOUT" envDefault:"1s"`
	TxTimeout          time.Duration `env:"LEDGER_TX_TIMEOUT" envDefault:"5s"`
	TxMaxRetries       int           `env:"LEDGER_TX_MAX_RETRIES" envDefault:"5"`
	LockTimeout        time.Duration `env:"LEDGER_LOCK_TIMEOUT" envDefault:"2s"`
	DuplicateMatchMode string        `env:"LEDGER_DUPLICATE_MATCH_MODE" envDefault:"substring"`
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL          string        `env:"DATABASE_URL"`
	MaxOpenConns int           `env:"DATABASE_MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns int           `env:"DATABASE_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLife  time.Duration `env:"DATABASE_CONN_MAX_LIFETIME" envDefault:"30m"`
}

// RedisConfig holds Redis connection settings. An empty URL disables Redis.
type RedisConfig struct {
	URL            string        `env:"REDIS_URL"`
	PoolSize       int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns   int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout    time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout    time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout   time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`
}

// KafkaConfig holds broker settings. No brokers disables event publishing.
type KafkaConfig struct {
	Brokers          []string `env:"KAFKA_BROKERS" envSeparator:","`
	CertificateTopic string   `env:"KAFKA_CERTIFICATE_TOPIC" envDefault:"sanad.certificates.issued"`
	ClientID         string   `env:"KAFKA_CLIENT_ID" envDefault:"sanad"`
}

// OutboxConfig tunes the outbox relay.
type OutboxConfig struct {
	PollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"2s"`
	BatchSize    int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`
}

// IsProduction reports whether the service runs in production mode.
func (s Server) IsProduction() bool {
	return s.Env == "production"
}

// EventsEnabled reports whether certificate events should be written and relayed.
func (c *Config) EventsEnabled() bool {
	return len(c.Kafka.Brokers) > 0 && c.Ledger.Store != StoreMemory
}

// Load reads an optional .env file and then parses the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv parses configuration from the process environment only.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints env tags cannot express.
func (c *Config) Validate() error {
	switch c.Ledger.Store {
	case StoreMemory, StoreSQLite:
	case StorePostgres:
		if c.Database.URL == "" {
			return errors.New("DATABASE_URL is required when LEDGER_STORE=postgres")
		}
	default:
		return fmt.Errorf("unknown LEDGER_STORE %q", c.Ledger.Store)
	}
	switch c.Ledger.DuplicateMatchMode {
	case MatchSubstring, MatchToken:
	default:
		return fmt.Errorf("unknown LEDGER_DUPLICATE_MATCH_MODE %q", c.Ledger.DuplicateMatchMode)
	}
	if c.Ledger.TxMaxRetries < 0 {
		return errors.New("LEDGER_TX_MAX_RETRIES must not be negative")
	}
	if c.Ledger.TxTimeout <= 0 {
		return errors.New("LEDGER_TX_TIMEOUT must be positive")
	}
	if c.Ledger.SQLiteBusyTimeout <= 0 || c.Ledger.SQLiteBusyTimeout > c.Ledger.TxTimeout/2 {
		return errors.New("LEDGER_SQLITE_BUSY_TIMEOUT must be positive and at most half of LEDGER_TX_TIMEOUT")
	}
	if c.Server.WriteTimeout <= c.Ledger.TxTimeout {
		return errors.New("SANAD_WRITE_TIMEOUT must exceed LEDGER_TX_TIMEOUT")
	}
	if c.Outbox.BatchSize <= 0 {
		return errors.New("OUTBOX_BATCH_SIZE must be positive")
	}
	return nil
}
