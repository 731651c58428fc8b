package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"webchat/internal/logger"
	"webchat/internal/models"
)

// uniqueViolation is the Postgres error code for a unique-constraint
// failure (duplicate primary key included).
const uniqueViolation = "23505"

// PostgresStore is the networked relational backend. database/sql
// provides the connection pool; TLS is controlled by sslmode in the
// connection string.
type PostgresStore struct {
	db  *sql.DB
	log *logger.Logger
}

// NewPostgresStore connects to the database named by connStr and
// prepares the schema.
func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	s := &PostgresStore{db: db, log: logger.New("postgres")}
	if err := s.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	s.log.Info("connected")
	return s, nil
}

// ensureSchema creates the tables and applies the kind-column patch.
// ADD COLUMN IF NOT EXISTS makes the patch a no-op on an already
// migrated database, so this is safe to run on every startup.
func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			username TEXT PRIMARY KEY,
			password_hash TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			seq BIGSERIAL PRIMARY KEY,
			author TEXT NOT NULL,
			content TEXT NOT NULL,
			time TEXT NOT NULL
		)`,
		`ALTER TABLE messages ADD COLUMN IF NOT EXISTS kind TEXT`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, username, passwordHash string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users (username, password_hash) VALUES ($1, $2)",
		username, passwordHash)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return ErrUserExists
		}
		return fmt.Errorf("postgres: create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUser(ctx context.Context, username string) (*models.User, error) {
	user := &models.User{}
	err := s.db.QueryRowContext(ctx,
		"SELECT username, password_hash FROM users WHERE username = $1",
		username).Scan(&user.Username, &user.PasswordHash)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) AppendMessage(ctx context.Context, author, content, kind string) (*models.Message, error) {
	msg := &models.Message{
		Author:  author,
		Content: content,
		Kind:    kind,
		Time:    models.Timestamp(time.Now()),
	}

	err := s.db.QueryRowContext(ctx,
		"INSERT INTO messages (author, content, time, kind) VALUES ($1, $2, $3, $4) RETURNING seq",
		msg.Author, msg.Content, msg.Time, msg.Kind).Scan(&msg.Seq)
	if err != nil {
		return nil, fmt.Errorf("postgres: append message: %w", err)
	}
	return msg, nil
}

func (s *PostgresStore) RecentMessages(ctx context.Context, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, author, content, time, COALESCE(kind, 'text')
		FROM (
			SELECT seq, author, content, time, kind
			FROM messages ORDER BY seq DESC LIMIT $1
		) recent
		ORDER BY seq ASC`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: recent messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg := &models.Message{}
		if err := rows.Scan(&msg.Seq, &msg.Author, &msg.Content, &msg.Time, &msg.Kind); err != nil {
			return nil, fmt.Errorf("postgres: scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: recent messages: %w", err)
	}
	return messages, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
