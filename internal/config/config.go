package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Backend selects which storage implementation the server runs against.
// The choice is made once at startup and handed to the storage factory;
// nothing re-inspects the environment afterwards.
type Backend string

const (
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
)

// Config holds every runtime setting the server consumes.
type Config struct {
	Port            int     `envconfig:"PORT" default:"3000"`
	Backend         Backend `envconfig:"STORAGE_BACKEND" default:"sqlite"`
	SQLitePath      string  `envconfig:"SQLITE_PATH" default:"chat.db"`
	DatabaseURL     string  `envconfig:"DATABASE_URL"`
	MaxPayloadBytes int64   `envconfig:"MAX_PAYLOAD_BYTES" default:"10485760"`
	HistoryLimit    int     `envconfig:"HISTORY_LIMIT" default:"50"`
	GuestMode       bool    `envconfig:"GUEST_MODE" default:"false"`
	KeepAliveURL    string  `envconfig:"KEEPALIVE_URL"`
	LogFile         string  `envconfig:"LOG_FILE" default:"server.log"`
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Backend {
	case BackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("config: SQLITE_PATH is required for the sqlite backend")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("config: unsupported storage backend %q", c.Backend)
	}
	if c.MaxPayloadBytes <= 0 {
		return fmt.Errorf("config: MAX_PAYLOAD_BYTES must be positive")
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("config: HISTORY_LIMIT must be positive")
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
