// Package storage persists user accounts and chat messages behind a
// single interface with two interchangeable backends: an embedded
// single-file SQLite store and a networked PostgreSQL store.
package storage

import (
	"context"
	"errors"
	"fmt"

	"webchat/internal/config"
	"webchat/internal/models"
)

var (
	ErrUserExists   = errors.New("user already exists")
	ErrUserNotFound = errors.New("user not found")
)

// DefaultHistoryLimit bounds RecentMessages when the caller passes a
// non-positive limit.
const DefaultHistoryLimit = 50

// Store is the contract both backends satisfy. Every method that
// touches the backing medium takes a context; these are the only
// suspension points in the request path.
type Store interface {
	// CreateUser persists a new account. Returns ErrUserExists when the
	// username is already taken.
	CreateUser(ctx context.Context, username, passwordHash string) error

	// GetUser looks up an account by username. Returns ErrUserNotFound
	// when no such account exists.
	GetUser(ctx context.Context, username string) (*models.User, error)

	// AppendMessage persists a chat message and returns it with the
	// store-assigned sequence number and timestamp filled in.
	AppendMessage(ctx context.Context, author, content, kind string) (*models.Message, error)

	// RecentMessages returns up to limit of the most recently persisted
	// messages in ascending sequence order.
	RecentMessages(ctx context.Context, limit int) ([]*models.Message, error)

	Close() error
}

// New selects and opens the backend named by the configuration. The
// selection happens exactly once, at startup.
func New(cfg *config.Config) (Store, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		return NewSQLiteStore(cfg.SQLitePath)
	case config.BackendPostgres:
		return NewPostgresStore(cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("storage: unsupported backend %q", cfg.Backend)
	}
}
