// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"cityledger/internal/proposition/models"
	strutil "cityledger/pkg/platform/strings"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// database/sql driver names.
const (
	DriverPgx = "pgx"
	DriverPQ  = "postgres"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string        `env:"CITYLEDGER_ADDR" envDefault:":8080"`
	JWTSigningKey string        `env:"JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	JWTIssuer     string        `env:"JWT_ISSUER" envDefault:"cityledger"`
	JWTAudience   string        `env:"JWT_AUDIENCE" envDefault:"cityledger-api"`
	AdminToken    string        `env:"ADMIN_API_TOKEN"`
	LogFormat     string        `env:"LOG_FORMAT" envDefault:"json"`
	LogLevel      string        `env:"LOG_LEVEL" envDefault:"info"`
	Store         string        `env:"CITYLEDGER_STORE" envDefault:"memory"`
	DatabaseURL   string        `env:"DATABASE_URL"`
	// DatabaseDriver names the database/sql driver: pgx or postgres (lib/pq).
	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"pgx"`
	TxTimeout     time.Duration `env:"CITYLEDGER_TX_TIMEOUT" envDefault:"5s"`
	// RequestTimeout bounds HTTP handlers and therefore the transactions they run.
	RequestTimeout time.Duration `env:"CITYLEDGER_REQUEST_TIMEOUT" envDefault:"30s"`
	// TerminalStatuses lists the answers Update accepts.
	TerminalStatuses []string `env:"CITYLEDGER_TERMINAL_STATUSES" envSeparator:"," envDefault:"ACCEPTED,DENIED"`

	Redis  RedisConfig  `envPrefix:"REDIS_"`
	Events EventsConfig `envPrefix:"EVENTS_"`
}

// RedisConfig configures the shared proposition ID sequence. An empty URL
// keeps allocation inside the ledger store.
type RedisConfig struct {
	URL          string        `env:"URL"`
	PoolSize     int           `env:"POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"3s"`
	SequenceKey  string        `env:"SEQUENCE_KEY" envDefault:"cityledger:proposition:seq"`
}

// EventsConfig configures the outbox relay. Without brokers events are
// written to the log.
type EventsConfig struct {
	Brokers       []string      `env:"KAFKA_BROKERS" envSeparator:","`
	Topic         string        `env:"KAFKA_TOPIC" envDefault:"cityledger.events"`
	Partitions    int32         `env:"KAFKA_PARTITIONS" envDefault:"3"`
	Replication   int16         `env:"KAFKA_REPLICATION" envDefault:"1"`
	RelayInterval time.Duration `env:"RELAY_INTERVAL" envDefault:"1s"`
	BatchSize     int           `env:"RELAY_BATCH_SIZE" envDefault:"100"`
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return Server{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Events.Brokers = strutil.DedupeAndTrim(cfg.Events.Brokers)
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints env tags cannot express.
func (c Server) Validate() error {
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
		if c.DatabaseDriver != DriverPgx && c.DatabaseDriver != DriverPQ {
			return fmt.Errorf("unknown database driver %q", c.DatabaseDriver)
		}
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	if c.TxTimeout <= 0 {
		return fmt.Errorf("transaction timeout must be positive")
	}
	if _, err := c.Lifecycle(); err != nil {
		return fmt.Errorf("terminal statuses: %w", err)
	}
	return nil
}

// Lifecycle builds the proposition lifecycle from the configured terminal statuses.
func (c Server) Lifecycle() (*models.Lifecycle, error) {
	values := strutil.DedupeAndTrim(c.TerminalStatuses)
	statuses := make([]models.Status, 0, len(values))
	for _, s := range values {
		statuses = append(statuses, models.Status(s))
	}
	return models.NewLifecycle(statuses...)
}
