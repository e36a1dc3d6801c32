// Package session keeps the operator's auth token, the only client-side
// state persisted outside the in-memory model.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"dispatch-dashboard/internal/records"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

const tokenKey = "token"

// Store reads and writes the token. Token returns "" when none is stored.
type Store interface {
	Token(ctx context.Context) (string, error)
	SetToken(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// Memory keeps the token in process memory.
type Memory struct {
	mu    sync.RWMutex
	token string
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Token(context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, nil
}

func (m *Memory) SetToken(_ context.Context, token string) error {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
	return nil
}

func (m *Memory) Clear(ctx context.Context) error { return m.SetToken(ctx, "") }

// SQLite persists the token in a key/value state table.
type SQLite struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) the session database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		path = "dispatch-session.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}
	return &SQLite{db: db, path: path}, nil
}

func (s *SQLite) Token(ctx context.Context) (string, error) {
	var token string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, tokenKey).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("select token: %w", err)
	}
	return token, nil
}

func (s *SQLite) SetToken(ctx context.Context, token string) error {
	if token == "" {
		return s.Clear(ctx)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO state(key,value) VALUES(?,?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		tokenKey, token)
	if err != nil {
		return fmt.Errorf("upsert token: %w", err)
	}
	return nil
}

func (s *SQLite) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM state WHERE key = ?`, tokenKey); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error { return s.db.Close() }

// Path returns the database file.
func (s *SQLite) Path() string { return s.path }

var tokenField = records.Field{Name: "token", Aliases: []string{
	"token", "accessToken", "access_token", "jwt",
}}

// TokenFromLogin extracts the token from a login response, looking through
// a data/result wrapper. A plain-text response body (wrapped by the backend
// client as {"result": "..."}) is taken as the token itself.
func TokenFromLogin(payload any) (string, bool) {
	if rec := records.UnwrapOne(payload); rec != nil {
		if tok := records.String(rec, tokenField); tok != "" {
			return tok, true
		}
	}
	if outer, ok := payload.(map[string]any); ok {
		if tok := records.String(outer, tokenField); tok != "" {
			return tok, true
		}
		if s, ok := outer["result"].(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}
