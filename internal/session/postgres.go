package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Postgres keeps the token in a shared database so several dispatchd
// replicas behind one login see the same session.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects with dsn and ensures the session table exists.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS dispatch_session (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure session table: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Token(ctx context.Context) (string, error) {
	var token string
	err := p.db.QueryRowContext(ctx, `SELECT value FROM dispatch_session WHERE key = $1`, tokenKey).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("select token: %w", err)
	}
	return token, nil
}

func (p *Postgres) SetToken(ctx context.Context, token string) error {
	if token == "" {
		return p.Clear(ctx)
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO dispatch_session(key, value) VALUES($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		tokenKey, token)
	if err != nil {
		return fmt.Errorf("upsert token: %w", err)
	}
	return nil
}

func (p *Postgres) Clear(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM dispatch_session WHERE key = $1`, tokenKey); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}

func (p *Postgres) Close() error { return p.db.Close() }
