package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"webchat/internal/logger"
	"webchat/internal/models"
)

// SQLiteStore is the embedded single-file backend. It wraps a fixed
// pool of connections; SQLite serializes writes internally, so the
// pool mostly buys concurrent reads.
type SQLiteStore struct {
	pool *sqlitex.Pool
	log  *logger.Logger
}

// NewSQLiteStore opens (creating if necessary) the database file at
// path and prepares the schema. Use ":memory:" for tests; it is opened
// as a shared in-memory database so every pooled connection sees the
// same data.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	poolSize := 4
	uri := path
	if path == ":memory:" {
		// sqlitex.NewPool rejects the literal ":memory:"; this URI form
		// (named in its error message) shares one in-memory database
		// across all pooled connections.
		uri = "file::memory:?mode=memory&cache=shared"
	}

	pool, err := sqlitex.NewPool(uri, sqlitex.PoolOptions{
		PoolSize: poolSize,
		PrepareConn: func(conn *sqlite.Conn) error {
			return prepareConn(conn)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening %s: %w", path, err)
	}

	s := &SQLiteStore{pool: pool, log: logger.New("sqlite")}

	// Force one connection through PrepareConn now so schema problems
	// surface at startup instead of on the first request.
	conn, err := pool.Take(context.Background())
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("sqlite: preparing %s: %w", path, err)
	}
	pool.Put(conn)

	s.log.Info("opened %s (pool size %d)", path, poolSize)
	return s, nil
}

// prepareConn runs once per pooled connection: pragmas first, then the
// idempotent schema setup. In-memory databases get the schema through
// this same hook since every such connection starts empty.
func prepareConn(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}
	return ensureSchema(conn)
}

// ensureSchema creates the tables and applies the kind-column patch.
// Safe to run any number of times against the same database.
func ensureSchema(conn *sqlite.Conn) error {
	const tables = `
CREATE TABLE IF NOT EXISTS users (
	username TEXT PRIMARY KEY,
	password_hash TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	author TEXT NOT NULL,
	content TEXT NOT NULL,
	time TEXT NOT NULL
);
`
	if err := sqlitex.ExecuteScript(conn, tables, nil); err != nil {
		return fmt.Errorf("sqlite: creating schema: %w", err)
	}

	// Older databases predate the kind column. SQLite has no
	// ADD COLUMN IF NOT EXISTS, so attempt the ALTER and treat the
	// duplicate-column error as "already patched".
	err := sqlitex.ExecuteTransient(conn, "ALTER TABLE messages ADD COLUMN kind TEXT", nil)
	if err != nil && !strings.Contains(err.Error(), "duplicate column name") {
		return fmt.Errorf("sqlite: adding kind column: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("sqlite: create user: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		"INSERT INTO users (username, password_hash) VALUES (?, ?)",
		&sqlitex.ExecOptions{Args: []any{username, passwordHash}})
	if err != nil {
		code := sqlite.ErrCode(err)
		if code == sqlite.ResultConstraintPrimaryKey || code == sqlite.ResultConstraintUnique {
			return ErrUserExists
		}
		return fmt.Errorf("sqlite: create user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, username string) (*models.User, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get user: %w", err)
	}
	defer s.pool.Put(conn)

	var user *models.User
	err = sqlitex.Execute(conn,
		"SELECT username, password_hash FROM users WHERE username = ?",
		&sqlitex.ExecOptions{
			Args: []any{username},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				user = &models.User{
					Username:     stmt.ColumnText(0),
					PasswordHash: stmt.ColumnText(1),
				}
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("sqlite: get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, author, content, kind string) (*models.Message, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlite: append message: %w", err)
	}
	defer s.pool.Put(conn)

	msg := &models.Message{
		Author:  author,
		Content: content,
		Kind:    kind,
		Time:    models.Timestamp(time.Now()),
	}

	err = sqlitex.Execute(conn,
		"INSERT INTO messages (author, content, time, kind) VALUES (?, ?, ?, ?)",
		&sqlitex.ExecOptions{Args: []any{msg.Author, msg.Content, msg.Time, msg.Kind}})
	if err != nil {
		return nil, fmt.Errorf("sqlite: append message: %w", err)
	}

	msg.Seq = conn.LastInsertRowID()
	return msg, nil
}

func (s *SQLiteStore) RecentMessages(ctx context.Context, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlite: recent messages: %w", err)
	}
	defer s.pool.Put(conn)

	// Window to the newest rows, then flip back to ascending sequence
	// order for replay.
	const query = `
SELECT seq, author, content, time, COALESCE(kind, 'text')
FROM (
	SELECT seq, author, content, time, kind
	FROM messages ORDER BY seq DESC LIMIT ?
)
ORDER BY seq ASC`

	var messages []*models.Message
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: []any{limit},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			messages = append(messages, &models.Message{
				Seq:     stmt.ColumnInt64(0),
				Author:  stmt.ColumnText(1),
				Content: stmt.ColumnText(2),
				Time:    stmt.ColumnText(3),
				Kind:    stmt.ColumnText(4),
			})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: recent messages: %w", err)
	}
	return messages, nil
}

func (s *SQLiteStore) Close() error {
	return s.pool.Close()
}
